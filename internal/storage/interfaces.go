// Package storage defines the persistence interface for pool metrics
// history and its shared errors. Backends live in subpackages.
package storage

import (
	"context"

	"pumpswap-radar/internal/domain"
)

// MetricsHistoryStore persists the reconciliation history of tracked pairs.
type MetricsHistoryStore interface {
	// Save replaces the stored history for pair with the given records.
	// The tracker always writes the complete list it holds, so a save is
	// a full overwrite, never an append.
	Save(ctx context.Context, pair string, history []*domain.PoolMetrics) error

	// GetByPair retrieves the stored history for pair, oldest record
	// first. Returns ErrNotFound if the pair was never persisted.
	GetByPair(ctx context.Context, pair string) ([]*domain.PoolMetrics, error)
}
