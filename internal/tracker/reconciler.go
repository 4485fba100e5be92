package tracker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pumpswap-radar/internal/observability"
)

// Run drives the periodic reconciliation sweep until ctx is canceled.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.reconcile(ctx)
		}
	}
}

// reconcile refreshes holder metrics for every tracked pair concurrently
// and waits for all of them. A failed pair is skipped this cycle; it never
// blocks or poisons the others.
func (t *Tracker) reconcile(ctx context.Context) {
	t.mu.RLock()
	states := make([]*PoolState, 0, len(t.pools))
	for _, state := range t.pools {
		states = append(states, state)
	}
	t.mu.RUnlock()

	var failures atomic.Int64
	var g errgroup.Group
	for _, state := range states {
		g.Go(func() error {
			if err := t.reconcilePool(ctx, state); err != nil {
				failures.Add(1)
				t.logger.Warn("reconcile pair failed",
					zap.String("pair", state.pair), zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()

	observability.RecordReconcileRun(int(failures.Load()))
}

// reconcilePool runs one reconciliation cycle for a single pair: fetch the
// holder snapshot, rebuild holder and volume metrics, append and persist
// the metrics record, and evict the pair when its lifecycle ends.
func (t *Tracker) reconcilePool(ctx context.Context, state *PoolState) error {
	if t.holders == nil {
		return nil
	}
	mint := state.BaseMint()
	if mint == "" {
		// No swap seen yet, the base mint is still unknown.
		return nil
	}

	snap, err := t.holders.Snapshot(ctx, mint)
	if err != nil {
		observability.RecordHolderFetchError()
		return fmt.Errorf("holder snapshot for %s: %w", mint, err)
	}
	if snap == nil {
		// The source has no data yet; try again next cycle.
		return nil
	}

	history, evict := state.buildRecord(t.cfg, snap, time.Now())

	if err := t.store.Save(ctx, state.pair, history); err != nil {
		// Logged only: in-memory state is already advanced and a later
		// cycle persists the full history again.
		observability.RecordPersistError()
		t.logger.Error("persist metrics history failed",
			zap.String("pair", state.pair), zap.Error(err))
	}

	if evict {
		t.evict(state.pair)
		t.logger.Info("pool evicted",
			zap.String("pair", state.pair),
			zap.Int("records", len(history)))
	}
	return nil
}
