package domain

import "time"

// TradeSide distinguishes quote-in (buy) from quote-out (sell) swaps.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// TradeEntry is one trade attributed to a tracked wallet.
type TradeEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Side        TradeSide `json:"type"`
	AmountQuote float64   `json:"amountSol"`
	AmountBase  float64   `json:"amountToken"`
}

// TraderLedger is the append-only trade history of one wallet on one pair,
// together with the wallet's balance as of the last holder snapshot.
type TraderLedger struct {
	Address string `json:"address"`
	// LastKnownBalance is the raw token balance from the most recent
	// holder snapshot; zero means the wallet was absent from it.
	LastKnownBalance float64      `json:"lastTokenBalance"`
	Txns             []TradeEntry `json:"txns"`
}

// Clone returns a deep copy safe to hand to a metrics record.
func (l *TraderLedger) Clone() *TraderLedger {
	txns := make([]TradeEntry, len(l.Txns))
	copy(txns, l.Txns)
	return &TraderLedger{
		Address:          l.Address,
		LastKnownBalance: l.LastKnownBalance,
		Txns:             txns,
	}
}

// HolderDistribution buckets holder counts by raw balance size.
type HolderDistribution struct {
	Over5M  int `json:"holdOver5M"`
	Over10M int `json:"holdOver10M"`
	Over20M int `json:"holdOver20M"`
	Over30M int `json:"holdOver30M"`
	// Top10Pct is the top-10 balance total expressed as a floored
	// percentage of supply.
	Top10Pct int `json:"top10"`
	// Holders is the total holder count in the snapshot.
	Holders int `json:"holders"`
}

// VolumeMetrics summarizes trade flow over the trailing window.
type VolumeMetrics struct {
	Buys       int     `json:"buys"`
	Sells      int     `json:"sells"`
	BuyVolume  float64 `json:"buyVolume"`
	SellVolume float64 `json:"sellVolume"`
}

// PoolMetrics is one periodic reconciliation record for a tracked pair.
// The full ordered history of these records is what gets persisted.
type PoolMetrics struct {
	Timestamp time.Time `json:"timestamp"`
	// Mcap is the estimated market capitalization in thousands of USD.
	Mcap          float64         `json:"mcap"`
	WhaleTxns     []*TraderLedger `json:"whalesTxns"`
	FirstTop10    []*TraderLedger `json:"firstTop10Txns"`
	HolderDistribution
	VolumeMetrics
}
