package pumpswap

import (
	"encoding/binary"

	"github.com/mr-tron/base58"
)

// instructionKind is the raw AMM instruction identified by its discriminator.
type instructionKind uint8

const (
	ixUnknown instructionKind = iota
	ixCreatePool
	ixBuy
	ixSell
	ixDeposit
	ixWithdraw
)

// Anchor-style discriminators: the first 8 bytes of the instruction payload
// read as a little-endian uint64.
const (
	discCreatePool uint64 = 13564957318303552233
	discBuy        uint64 = 16927863322537952870
	discSell       uint64 = 12502976635542562355
	discDeposit    uint64 = 13182846803881894898
	discWithdraw   uint64 = 2495396153584390839
)

// instructionTypeOf classifies a base58 instruction payload. Payloads that
// do not decode, are shorter than 8 bytes, or carry an unlisted
// discriminator map to ixUnknown.
func instructionTypeOf(data string) instructionKind {
	raw, err := base58.Decode(data)
	if err != nil || len(raw) < 8 {
		return ixUnknown
	}

	switch binary.LittleEndian.Uint64(raw[:8]) {
	case discCreatePool:
		return ixCreatePool
	case discBuy:
		return ixBuy
	case discSell:
		return ixSell
	case discDeposit:
		return ixDeposit
	case discWithdraw:
		return ixWithdraw
	default:
		return ixUnknown
	}
}
