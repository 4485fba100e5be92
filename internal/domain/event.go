package domain

import "time"

// EventKind classifies a decoded AMM instruction by its economic effect.
type EventKind string

const (
	// EventSwap is a buy or sell against the pool.
	EventSwap EventKind = "swap"
	// EventAddLiquidity covers pool creation and deposits.
	EventAddLiquidity EventKind = "add"
	// EventRemoveLiquidity is a withdrawal from the pool.
	EventRemoveLiquidity EventKind = "remove"
)

// TokenVault is the post-transaction balance snapshot of one pool reserve
// account.
type TokenVault struct {
	Address   string
	RawAmount uint64
	UIAmount  float64
	Decimals  int
}

// DecodedEvent is one normalized economic event extracted from a transaction.
// It is immutable once emitted by the decoder.
type DecodedEvent struct {
	TxHash string
	Signer string
	// Pair is the pool address (first account of the matched instruction).
	Pair string
	Kind EventKind

	InMint       string
	OutMint      string
	InAmountRaw  uint64
	OutAmountRaw uint64
	InUIAmount   float64
	OutUIAmount  float64

	// VaultIn is always set. VaultOut is nil for single-sided liquidity
	// events where no counter-transfer was found; swaps carry both.
	VaultIn  *TokenVault
	VaultOut *TokenVault

	// Migrated marks an AddLiquidity event whose account list carries the
	// bonding-curve program and its migration authority: the pair just
	// graduated into a fresh, trackable market.
	Migrated bool

	// ReceivedAt is the transport arrival time of the carrying transaction.
	ReceivedAt time.Time
}
