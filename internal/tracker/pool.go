package tracker

import (
	"math"
	"sort"
	"sync"
	"time"

	"pumpswap-radar/internal/domain"
	"pumpswap-radar/internal/holders"
)

// windowTxn is one trade inside the trailing volume window.
type windowTxn struct {
	ts     time.Time
	side   domain.TradeSide
	volume float64
}

// PoolState holds all mutable analytics for one tracked pair. Every map and
// slice is owned by the state and guarded by its mutex: the event intake
// path and the reconciler mutate the same fields from different goroutines.
type PoolState struct {
	mu sync.Mutex

	pair     string
	baseMint string

	currentPrice float64
	maxPrice     float64
	maxPriceAt   time.Time

	recentTxns []windowTxn

	whales map[string]*domain.TraderLedger

	// firstTop10 is seeded once from the first holder snapshot after
	// migration and never admits new addresses afterwards.
	firstTop10       map[string]*domain.TraderLedger
	firstTop10Seeded bool

	history []*domain.PoolMetrics
}

func newPoolState(pair, baseMint string) *PoolState {
	return &PoolState{
		pair:       pair,
		baseMint:   baseMint,
		whales:     make(map[string]*domain.TraderLedger),
		firstTop10: make(map[string]*domain.TraderLedger),
	}
}

// BaseMint returns the cached base mint, or "" if not resolved yet.
func (s *PoolState) BaseMint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseMint
}

// applySwap folds one swap event into the state. The event is known to
// touch the quote mint on one side and to carry both vault snapshots.
func (s *PoolState) applySwap(cfg Config, ev *domain.DecodedEvent, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buy := ev.InMint == cfg.QuoteMint

	// Price is the quote reserve over the base reserve after the swap.
	var price float64
	if buy {
		if ev.VaultOut.UIAmount == 0 {
			return
		}
		price = ev.VaultIn.UIAmount / ev.VaultOut.UIAmount
	} else {
		if ev.VaultIn.UIAmount == 0 {
			return
		}
		price = ev.VaultOut.UIAmount / ev.VaultIn.UIAmount
	}

	s.updateMaxPrice(price, cfg.MaxPriceJump, now)
	s.currentPrice = price

	side := domain.SideSell
	amountQuote, amountBase := ev.OutUIAmount, ev.InUIAmount
	baseMint := ev.InMint
	if buy {
		side = domain.SideBuy
		amountQuote, amountBase = ev.InUIAmount, ev.OutUIAmount
		baseMint = ev.OutMint
	}

	if s.baseMint == "" {
		s.baseMint = baseMint
	}

	s.recentTxns = append(s.recentTxns, windowTxn{ts: now, side: side, volume: amountQuote})
	s.pruneWindow(now.Add(-cfg.Window))

	entry := domain.TradeEntry{
		Timestamp:   now,
		Side:        side,
		AmountQuote: amountQuote,
		AmountBase:  amountBase,
	}
	if ledger, ok := s.whales[ev.Signer]; ok {
		ledger.Txns = append(ledger.Txns, entry)
	} else if side == domain.SideBuy && amountQuote > cfg.WhaleMinBuy {
		s.whales[ev.Signer] = &domain.TraderLedger{
			Address: ev.Signer,
			Txns:    []domain.TradeEntry{entry},
		}
	}
	if ledger, ok := s.firstTop10[ev.Signer]; ok {
		ledger.Txns = append(ledger.Txns, entry)
	}
}

// updateMaxPrice advances the high-water mark, guarding it against
// single-transaction sandwich spikes: a jump of more than maxJump over the
// previous observed price never sets a record. A jump of exactly maxJump is
// accepted; a drop never touches the record.
func (s *PoolState) updateMaxPrice(price, maxJump float64, now time.Time) {
	prev := s.currentPrice
	if price < prev {
		return
	}
	if prev > 0 && (price-prev)/prev > maxJump {
		return
	}
	if price > s.maxPrice {
		s.maxPrice = price
		s.maxPriceAt = now
	}
}

// pruneWindow drops window entries at or before cutoff. Entries are
// appended in time order, so only the front is scanned.
func (s *PoolState) pruneWindow(cutoff time.Time) {
	i := 0
	for i < len(s.recentTxns) && !s.recentTxns[i].ts.After(cutoff) {
		i++
	}
	if i > 0 {
		s.recentTxns = append(s.recentTxns[:0], s.recentTxns[i:]...)
	}
}

// seedFirstTop10 fills the first-top10 ledger from the ten largest holders
// of snap, once. Later snapshots never reseed it.
func (s *PoolState) seedFirstTop10(snap []holders.Holder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.firstTop10Seeded || len(snap) == 0 {
		return
	}
	for _, h := range topHolders(snap, s.pair, 10) {
		s.firstTop10[h.Address] = &domain.TraderLedger{
			Address:          h.Address,
			LastKnownBalance: h.Balance,
		}
	}
	s.firstTop10Seeded = true
}

// buildRecord folds a fresh holder snapshot into the state and assembles
// the periodic metrics record. It returns the full history to persist and
// whether the pair should be evicted.
func (s *PoolState) buildRecord(cfg Config, snap []holders.Holder, now time.Time) (history []*domain.PoolMetrics, evict bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.firstTop10Seeded && len(snap) > 0 {
		for _, h := range topHolders(snap, s.pair, 10) {
			s.firstTop10[h.Address] = &domain.TraderLedger{
				Address:          h.Address,
				LastKnownBalance: h.Balance,
			}
		}
		s.firstTop10Seeded = true
	}

	// A wallet absent from the fresh snapshot holds nothing anymore.
	for _, ledger := range s.whales {
		ledger.LastKnownBalance = 0
	}
	for _, ledger := range s.firstTop10 {
		ledger.LastKnownBalance = 0
	}

	wallets := make([]holders.Holder, 0, len(snap))
	for _, h := range snap {
		if h.Address == s.pair {
			continue
		}
		wallets = append(wallets, h)
	}

	dist := domain.HolderDistribution{Holders: len(snap)}
	for _, h := range wallets {
		switch millions := h.Balance / 1e6; {
		case millions >= 5 && millions < 10:
			dist.Over5M++
		case millions >= 10 && millions < 20:
			dist.Over10M++
		case millions >= 20 && millions < 30:
			dist.Over20M++
		case millions >= 30:
			dist.Over30M++
		}
		if ledger, ok := s.whales[h.Address]; ok {
			ledger.LastKnownBalance = h.Balance
		}
		if ledger, ok := s.firstTop10[h.Address]; ok {
			ledger.LastKnownBalance = h.Balance
		}
	}

	var top10Sum float64
	for i := max(0, len(wallets)-10); i < len(wallets); i++ {
		top10Sum += wallets[i].Balance
	}
	dist.Top10Pct = int(math.Floor(top10Sum / 1e9 * 100))

	// Whales that fully exited stop being tracked.
	for addr, ledger := range s.whales {
		if ledger.LastKnownBalance < cfg.WhaleExitBalance {
			delete(s.whales, addr)
		}
	}

	s.pruneWindow(now.Add(-cfg.Window))
	var vol domain.VolumeMetrics
	for _, txn := range s.recentTxns {
		if txn.side == domain.SideBuy {
			vol.Buys++
			vol.BuyVolume += txn.volume
		} else {
			vol.Sells++
			vol.SellVolume += txn.volume
		}
	}

	mcap := math.Floor(s.currentPrice * cfg.TokenSupply * cfg.SOLPriceUSD / 1000)

	record := &domain.PoolMetrics{
		Timestamp:          now,
		Mcap:               mcap,
		WhaleTxns:          cloneLedgers(s.whales),
		FirstTop10:         cloneLedgers(s.firstTop10),
		HolderDistribution: dist,
		VolumeMetrics:      vol,
	}
	s.history = append(s.history, record)

	history = make([]*domain.PoolMetrics, len(s.history))
	copy(history, s.history)

	evict = mcap < cfg.McapFloor || len(s.history) > cfg.MaxHistory
	return history, evict
}

// topHolders returns up to n largest holders of snap, excluding the pool
// account itself. snap is sorted ascending by balance.
func topHolders(snap []holders.Holder, pool string, n int) []holders.Holder {
	wallets := make([]holders.Holder, 0, len(snap))
	for _, h := range snap {
		if h.Address == pool {
			continue
		}
		wallets = append(wallets, h)
	}
	if len(wallets) > n {
		wallets = wallets[len(wallets)-n:]
	}
	return wallets
}

// cloneLedgers deep-copies a ledger map into a slice ordered by address.
func cloneLedgers(ledgers map[string]*domain.TraderLedger) []*domain.TraderLedger {
	out := make([]*domain.TraderLedger, 0, len(ledgers))
	for _, ledger := range ledgers {
		out = append(out, ledger.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
