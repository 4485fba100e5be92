package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"pumpswap-radar/internal/domain"
	"pumpswap-radar/internal/storage"
)

// HistoryStore implements storage.MetricsHistoryStore using PostgreSQL.
// Each pair holds its full history as one jsonb row.
type HistoryStore struct {
	pool *Pool
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(pool *Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MetricsHistoryStore = (*HistoryStore)(nil)

// Save upserts the full history for pair.
func (s *HistoryStore) Save(ctx context.Context, pair string, history []*domain.PoolMetrics) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history for %s: %w", pair, err)
	}

	query := `
		INSERT INTO pool_metrics_history (pair, history, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (pair) DO UPDATE
		SET history = EXCLUDED.history, updated_at = now()
	`

	if _, err := s.pool.Exec(ctx, query, pair, data); err != nil {
		return fmt.Errorf("save history for %s: %w", pair, err)
	}
	return nil
}

// GetByPair retrieves the stored history for pair.
func (s *HistoryStore) GetByPair(ctx context.Context, pair string) ([]*domain.PoolMetrics, error) {
	query := `SELECT history FROM pool_metrics_history WHERE pair = $1`

	var data []byte
	if err := s.pool.QueryRow(ctx, query, pair).Scan(&data); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get history for %s: %w", pair, err)
	}

	var history []*domain.PoolMetrics
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("unmarshal history for %s: %w", pair, err)
	}
	return history, nil
}
