package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProcessedStore records provider message ids that were already handled.
// Twilio delivers webhooks at-least-once; replays must not re-run a turn.
type ProcessedStore struct {
	pool querier
}

// NewProcessedStore initializes the store backed by pgxpool.
func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return &ProcessedStore{pool: pool}
}

func newProcessedStoreWithQuerier(q querier) *ProcessedStore {
	if q == nil {
		panic("store: querier required")
	}
	return &ProcessedStore{pool: q}
}

// MarkProcessed inserts the event id, returning false when it was already
// recorded by an earlier delivery.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	query := `
		INSERT INTO processed_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, provider, eventID)
	if err != nil {
		return false, fmt.Errorf("store: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
