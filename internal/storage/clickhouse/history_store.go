package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pumpswap-radar/internal/domain"
	"pumpswap-radar/internal/storage"
)

// HistoryStore implements storage.MetricsHistoryStore using ClickHouse.
// Saves append versioned rows into a ReplacingMergeTree keyed by pair;
// reads take the newest version, so a save acts as a full overwrite.
type HistoryStore struct {
	conn *Conn
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(conn *Conn) *HistoryStore {
	return &HistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.MetricsHistoryStore = (*HistoryStore)(nil)

// Save writes a new version of the pair's history.
func (s *HistoryStore) Save(ctx context.Context, pair string, history []*domain.PoolMetrics) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history for %s: %w", pair, err)
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO pool_metrics_history (pair, history, updated_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	if err := batch.Append(pair, string(data), time.Now()); err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByPair retrieves the newest stored history for pair.
func (s *HistoryStore) GetByPair(ctx context.Context, pair string) ([]*domain.PoolMetrics, error) {
	query := `
		SELECT history FROM pool_metrics_history
		WHERE pair = ?
		ORDER BY updated_at DESC
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, pair)
	if err != nil {
		return nil, fmt.Errorf("get history for %s: %w", pair, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, storage.ErrNotFound
	}

	var data string
	if err := rows.Scan(&data); err != nil {
		return nil, fmt.Errorf("scan history for %s: %w", pair, err)
	}

	var history []*domain.PoolMetrics
	if err := json.Unmarshal([]byte(data), &history); err != nil {
		return nil, fmt.Errorf("unmarshal history for %s: %w", pair, err)
	}
	return history, nil
}
