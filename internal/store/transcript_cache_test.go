package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rgarzadev/citabot/internal/conversation"
	"github.com/rgarzadev/citabot/pkg/logging"
)

// memoryStore is a minimal conversation.Store used as the inner layer.
type memoryStore struct {
	states   map[string]*conversation.State
	messages map[string][]conversation.Message
	appends  int
	reads    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		states:   make(map[string]*conversation.State),
		messages: make(map[string][]conversation.Message),
	}
}

func (m *memoryStore) GetState(_ context.Context, key string) (*conversation.State, error) {
	if st, ok := m.states[key]; ok {
		copied := *st
		return &copied, nil
	}
	return &conversation.State{}, nil
}

func (m *memoryStore) PutState(_ context.Context, key string, st *conversation.State) error {
	copied := *st
	m.states[key] = &copied
	return nil
}

func (m *memoryStore) AppendMessage(_ context.Context, key, direction, body string) error {
	m.appends++
	m.messages[key] = append(m.messages[key], conversation.Message{
		Direction: direction, Body: body, CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *memoryStore) RecentMessages(_ context.Context, key string, limit int) ([]conversation.Message, error) {
	m.reads++
	msgs := m.messages[key]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func newCachedStore(t *testing.T) (*CachedStore, *memoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	inner := newMemoryStore()
	return NewCachedStore(inner, client, 2*time.Hour, logging.New("error")), inner, mr
}

func TestCachedStoreWriteThrough(t *testing.T) {
	cached, inner, _ := newCachedStore(t)
	ctx := context.Background()

	if err := cached.AppendMessage(ctx, "key", "in", "hola"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := cached.AppendMessage(ctx, "key", "out", "¡Perfecto! ¿Podrías darme tu nombre completo?"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if inner.appends != 2 {
		t.Errorf("expected 2 durable appends, got %d", inner.appends)
	}

	msgs, err := cached.RecentMessages(ctx, "key", 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 cached messages, got %d", len(msgs))
	}
	if msgs[0].Body != "hola" || msgs[0].Direction != "in" {
		t.Errorf("unexpected first message %+v", msgs[0])
	}
	if inner.reads != 0 {
		t.Errorf("warm cache should not hit Postgres, inner reads = %d", inner.reads)
	}
}

func TestCachedStoreMissFallsBack(t *testing.T) {
	cached, inner, _ := newCachedStore(t)
	ctx := context.Background()

	// Seed durable history without warming the cache.
	_ = inner.AppendMessage(ctx, "key", "in", "hola")

	msgs, err := cached.RecentMessages(ctx, "key", 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Body != "hola" {
		t.Errorf("fallback did not serve durable history: %+v", msgs)
	}
	if inner.reads != 1 {
		t.Errorf("expected exactly one fallback read, got %d", inner.reads)
	}
}

func TestCachedStoreLimit(t *testing.T) {
	cached, _, _ := newCachedStore(t)
	ctx := context.Background()

	for _, body := range []string{"uno", "dos", "tres", "cuatro"} {
		if err := cached.AppendMessage(ctx, "key", "in", body); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := cached.RecentMessages(ctx, "key", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Body != "tres" || msgs[1].Body != "cuatro" {
		t.Errorf("expected last two messages oldest-first, got %+v", msgs)
	}
}

func TestCachedStoreEntriesExpireWithSession(t *testing.T) {
	cached, inner, mr := newCachedStore(t)
	ctx := context.Background()

	if err := cached.AppendMessage(ctx, "key", "in", "hola"); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(3 * time.Hour)

	if _, err := cached.RecentMessages(ctx, "key", 10); err != nil {
		t.Fatal(err)
	}
	if inner.reads != 1 {
		t.Errorf("expected fallback after TTL expiry, inner reads = %d", inner.reads)
	}
}

func TestCachedStoreRedisDownIsNotFatal(t *testing.T) {
	cached, inner, mr := newCachedStore(t)
	ctx := context.Background()
	mr.Close()

	if err := cached.AppendMessage(ctx, "key", "in", "hola"); err != nil {
		t.Fatalf("append must survive a dead cache: %v", err)
	}
	if inner.appends != 1 {
		t.Error("durable append missing")
	}

	msgs, err := cached.RecentMessages(ctx, "key", 10)
	if err != nil {
		t.Fatalf("read must fall back when the cache is dead: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("expected durable history, got %+v", msgs)
	}
}
