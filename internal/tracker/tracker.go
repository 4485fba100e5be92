// Package tracker owns all per-pair analytics state: prices, trailing
// volume windows, whale ledgers and holder metrics. Pairs enter on a
// migration event and leave when their market cap falls below the floor.
package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"pumpswap-radar/internal/domain"
	"pumpswap-radar/internal/holders"
	"pumpswap-radar/internal/observability"
	"pumpswap-radar/internal/solana"
	"pumpswap-radar/internal/storage"
)

// HolderSource provides holder balance snapshots for a mint.
// *holders.Client implements it.
type HolderSource interface {
	Snapshot(ctx context.Context, mint string) ([]holders.Holder, error)
}

// Config holds the analytics parameters.
type Config struct {
	// QuoteMint is the quote side of every tracked pair.
	QuoteMint string
	// Window is the trailing window for volume metrics.
	Window time.Duration
	// WhaleMinBuy is the minimum quote volume of a first buy that admits
	// a trader into the whale ledger.
	WhaleMinBuy float64
	// WhaleExitBalance prunes whales whose snapshot balance drops below it.
	WhaleExitBalance float64
	// MaxPriceJump caps the relative single-step price increase the max
	// price record accepts; larger jumps are treated as sandwich spikes.
	MaxPriceJump float64
	// TokenSupply and SOLPriceUSD turn a price into a market cap estimate.
	TokenSupply float64
	SOLPriceUSD float64
	// McapFloor evicts pairs whose estimated cap (in thousands USD) falls
	// below it.
	McapFloor float64
	// MaxHistory evicts pairs once their history reaches this many records.
	MaxHistory int
	// ReconcileInterval is the period of the holder refresh sweep.
	ReconcileInterval time.Duration
}

// DefaultConfig returns the default tracker parameters.
func DefaultConfig() Config {
	return Config{
		QuoteMint:         solana.WSOL,
		Window:            60 * time.Second,
		WhaleMinBuy:       3,
		WhaleExitBalance:  1,
		MaxPriceJump:      0.2,
		TokenSupply:       1e9,
		SOLPriceUSD:       176,
		McapFloor:         30,
		MaxHistory:        1000,
		ReconcileInterval: 20 * time.Second,
	}
}

// Tracker consumes decoded events and maintains one PoolState per tracked
// pair. Event intake and the periodic reconciler may run concurrently;
// access to each pool is serialized by its own lock.
type Tracker struct {
	cfg     Config
	holders HolderSource
	store   storage.MetricsHistoryStore
	logger  *zap.Logger

	mu    sync.RWMutex
	pools map[string]*PoolState
}

// New creates a tracker. holderSrc may be nil, in which case reconciliation
// skips every pair until a source is available.
func New(cfg Config, holderSrc HolderSource, store storage.MetricsHistoryStore, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		cfg:     cfg,
		holders: holderSrc,
		store:   store,
		logger:  logger,
		pools:   make(map[string]*PoolState),
	}
}

// OnEvent folds one decoded event into the tracker. Migrated liquidity
// events open a new pair; swaps on tracked pairs update its analytics;
// everything else is a no-op.
func (t *Tracker) OnEvent(ctx context.Context, ev *domain.DecodedEvent) {
	switch {
	case ev.Kind == domain.EventAddLiquidity && ev.Migrated:
		t.trackPair(ctx, ev)
	case ev.Kind == domain.EventSwap:
		t.applySwap(ev)
	}
}

// trackPair starts tracking the pair of a migration event. Repeated
// migration events for an already-tracked pair are ignored.
func (t *Tracker) trackPair(ctx context.Context, ev *domain.DecodedEvent) {
	baseMint := t.baseMintOf(ev)

	t.mu.Lock()
	if _, ok := t.pools[ev.Pair]; ok {
		t.mu.Unlock()
		return
	}
	state := newPoolState(ev.Pair, baseMint)
	t.pools[ev.Pair] = state
	total := len(t.pools)
	t.mu.Unlock()

	observability.UpdatePoolsTracked(total)
	t.logger.Info("pool migrated",
		zap.String("pair", ev.Pair),
		zap.String("mint", baseMint),
		zap.String("tx", ev.TxHash))

	// Seed the first-top10 ledger from the earliest holder snapshot
	// without blocking event intake. If this fetch fails, the first
	// successful reconciliation snapshot seeds it instead.
	if t.holders != nil && baseMint != "" {
		go func() {
			snap, err := t.holders.Snapshot(ctx, baseMint)
			if err != nil {
				observability.RecordHolderFetchError()
				t.logger.Debug("initial holder snapshot failed",
					zap.String("pair", ev.Pair), zap.Error(err))
				return
			}
			state.seedFirstTop10(snap)
		}()
	}
}

// applySwap routes a swap to its pool. Swaps for unknown pairs or pairs
// not quoted in the quote mint are ignored.
func (t *Tracker) applySwap(ev *domain.DecodedEvent) {
	t.mu.RLock()
	state := t.pools[ev.Pair]
	t.mu.RUnlock()

	if state == nil {
		return
	}
	if ev.InMint != t.cfg.QuoteMint && ev.OutMint != t.cfg.QuoteMint {
		return
	}
	if ev.VaultIn == nil || ev.VaultOut == nil {
		return
	}

	state.applySwap(t.cfg, ev, time.Now())
}

// baseMintOf picks the non-quote mint of a migration event.
func (t *Tracker) baseMintOf(ev *domain.DecodedEvent) string {
	if ev.InMint != "" && ev.InMint != t.cfg.QuoteMint {
		return ev.InMint
	}
	if ev.OutMint != "" && ev.OutMint != t.cfg.QuoteMint {
		return ev.OutMint
	}
	return ""
}

// Tracked reports whether pair is currently tracked.
func (t *Tracker) Tracked(pair string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.pools[pair]
	return ok
}

func (t *Tracker) evict(pair string) {
	t.mu.Lock()
	delete(t.pools, pair)
	total := len(t.pools)
	t.mu.Unlock()

	observability.UpdatePoolsTracked(total)
	observability.RecordPoolEvicted()
}
