// Package file implements metrics history persistence as one JSON file per
// pair, the default backend for single-node deployments.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"pumpswap-radar/internal/domain"
	"pumpswap-radar/internal/storage"
)

// HistoryStore implements storage.MetricsHistoryStore on the local
// filesystem. Each pair maps to <dir>/<pair>.json holding the full history.
type HistoryStore struct {
	dir string
	mu  sync.Mutex
}

// NewHistoryStore creates the store, making dir if needed.
func NewHistoryStore(dir string) (*HistoryStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &HistoryStore{dir: dir}, nil
}

// Compile-time interface check.
var _ storage.MetricsHistoryStore = (*HistoryStore)(nil)

// Save overwrites the pair's file with the full history. The write goes
// through a temp file and rename so a crash never leaves a torn file.
func (s *HistoryStore) Save(_ context.Context, pair string, history []*domain.PoolMetrics) error {
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history for %s: %w", pair, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(pair)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write history for %s: %w", pair, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace history for %s: %w", pair, err)
	}
	return nil
}

// GetByPair reads the pair's file back.
func (s *HistoryStore) GetByPair(_ context.Context, pair string) ([]*domain.PoolMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(pair))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("read history for %s: %w", pair, err)
	}

	var history []*domain.PoolMetrics
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("unmarshal history for %s: %w", pair, err)
	}
	return history, nil
}

func (s *HistoryStore) path(pair string) string {
	return filepath.Join(s.dir, pair+".json")
}
