// Package store persists conversation state and transcripts in PostgreSQL,
// with an optional Redis layer for the hot transcript.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rgarzadev/citabot/internal/conversation"
)

// querier is the slice of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ConversationStore is the Postgres system of record for conversations.
type ConversationStore struct {
	pool querier
}

// NewConversationStore initializes the store backed by pgxpool.
func NewConversationStore(pool *pgxpool.Pool) *ConversationStore {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return &ConversationStore{pool: pool}
}

func newConversationStoreWithQuerier(q querier) *ConversationStore {
	if q == nil {
		panic("store: querier required")
	}
	return &ConversationStore{pool: q}
}

var _ conversation.Store = (*ConversationStore)(nil)

// GetState loads the state blob for a user key. An unknown key yields a
// fresh empty state, not an error.
func (s *ConversationStore) GetState(ctx context.Context, key string) (*conversation.State, error) {
	query := `SELECT state FROM conversations WHERE user_phone = $1`
	var raw []byte
	if err := s.pool.QueryRow(ctx, query, key).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &conversation.State{}, nil
		}
		return nil, fmt.Errorf("store: load state: %w", err)
	}

	var st conversation.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("store: decode state: %w", err)
	}
	return &st, nil
}

// PutState upserts the state blob for a user key.
func (s *ConversationStore) PutState(ctx context.Context, key string, st *conversation.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("store: encode state: %w", err)
	}
	query := `
		INSERT INTO conversations (user_phone, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_phone) DO UPDATE SET state = EXCLUDED.state, updated_at = now()
	`
	if _, err := s.pool.Exec(ctx, query, key, raw); err != nil {
		return fmt.Errorf("store: save state: %w", err)
	}
	return nil
}

// AppendMessage adds one immutable transcript entry.
func (s *ConversationStore) AppendMessage(ctx context.Context, key, direction, body string) error {
	query := `
		INSERT INTO messages (conversation_key, direction, body)
		VALUES ($1, $2, $3)
	`
	if _, err := s.pool.Exec(ctx, query, key, direction, body); err != nil {
		return fmt.Errorf("store: append message: %w", err)
	}
	return nil
}

// RecentMessages returns the last limit transcript entries, oldest first.
func (s *ConversationStore) RecentMessages(ctx context.Context, key string, limit int) ([]conversation.Message, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT direction, body, created_at
		FROM messages
		WHERE conversation_key = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, key, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var newestFirst []conversation.Message
	for rows.Next() {
		var msg conversation.Message
		if err := rows.Scan(&msg.Direction, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		newestFirst = append(newestFirst, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate messages: %w", err)
	}

	// Reverse into chronological order for the transcript.
	out := make([]conversation.Message, len(newestFirst))
	for i, msg := range newestFirst {
		out[len(newestFirst)-1-i] = msg
	}
	return out, nil
}
