package solana

import (
	"filippo.io/edwards25519"

	"github.com/mr-tron/base58"
)

// ValidAddress reports whether s is a base58-encoded 32-byte ed25519 point,
// i.e. a plausible wallet or mint address. Off-curve program-derived
// addresses fail this check, which is what callers want when an address
// must belong to a signing keypair.
func ValidAddress(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	raw, err := base58.Decode(s)
	if err != nil || len(raw) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}
