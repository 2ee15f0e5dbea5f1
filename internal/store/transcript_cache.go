package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rgarzadev/citabot/internal/conversation"
	"github.com/rgarzadev/citabot/pkg/logging"
)

// cacheDepth bounds how many transcript entries the hot cache retains per
// conversation; readers only ever ask for a handful.
const cacheDepth = 50

// CachedStore layers a Redis transcript cache over the Postgres store.
// Postgres stays the system of record; the cache only accelerates the
// transcript reads that feed the slot extractor every turn. Cache failures
// are logged and absorbed.
type CachedStore struct {
	inner  conversation.Store
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewCachedStore wraps inner with a transcript cache. ttl should match the
// session idle timeout so cache entries die with the session.
func NewCachedStore(inner conversation.Store, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedStore {
	if inner == nil {
		panic("store: inner store required")
	}
	if client == nil {
		panic("store: redis client required")
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedStore{inner: inner, redis: client, ttl: ttl, logger: logger}
}

var _ conversation.Store = (*CachedStore)(nil)

func transcriptKey(key string) string {
	return "citabot:transcript:" + key
}

// GetState delegates to Postgres.
func (c *CachedStore) GetState(ctx context.Context, key string) (*conversation.State, error) {
	return c.inner.GetState(ctx, key)
}

// PutState delegates to Postgres.
func (c *CachedStore) PutState(ctx context.Context, key string, st *conversation.State) error {
	return c.inner.PutState(ctx, key, st)
}

// AppendMessage writes through: Postgres first, then the cache.
func (c *CachedStore) AppendMessage(ctx context.Context, key, direction, body string) error {
	if err := c.inner.AppendMessage(ctx, key, direction, body); err != nil {
		return err
	}

	entry, err := json.Marshal(conversation.Message{
		Direction: direction,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil
	}
	rkey := transcriptKey(key)
	pipe := c.redis.TxPipeline()
	pipe.RPush(ctx, rkey, entry)
	pipe.LTrim(ctx, rkey, -cacheDepth, -1)
	pipe.Expire(ctx, rkey, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("transcript cache append failed", "error", err, "key", key)
	}
	return nil
}

// RecentMessages serves from the cache when warm, falling back to Postgres
// on a miss or any decode problem.
func (c *CachedStore) RecentMessages(ctx context.Context, key string, limit int) ([]conversation.Message, error) {
	if limit <= 0 {
		limit = 10
	}
	raw, err := c.redis.LRange(ctx, transcriptKey(key), int64(-limit), -1).Result()
	if err != nil || len(raw) == 0 {
		if err != nil && err != redis.Nil {
			c.logger.Warn("transcript cache read failed", "error", err, "key", key)
		}
		return c.inner.RecentMessages(ctx, key, limit)
	}

	out := make([]conversation.Message, 0, len(raw))
	for _, item := range raw {
		var msg conversation.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return c.inner.RecentMessages(ctx, key, limit)
		}
		out = append(out, msg)
	}
	return out, nil
}
