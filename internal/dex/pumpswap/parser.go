// Package pumpswap decodes PumpSwap AMM instructions out of jsonParsed
// transactions into normalized pool events.
package pumpswap

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pumpswap-radar/internal/domain"
	"pumpswap-radar/internal/observability"
	"pumpswap-radar/internal/solana"
)

const (
	// ProgramID is the PumpSwap AMM program.
	ProgramID = "pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA"
	// BondingCurveProgram is the pump.fun bonding curve program. Its
	// presence in a pool creation marks a graduation.
	BondingCurveProgram = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	// MigrationAuthority signs bonding curve graduations.
	MigrationAuthority = "39azUYFWPz3VHgKCf3VChUwbpURdCHRxjWVowf5jUJjg"
)

// Parser decodes AMM events from transactions. Safe for concurrent use.
type Parser struct {
	programID string
	logger    *zap.Logger
}

// NewParser creates a parser for programID; empty means the mainnet
// PumpSwap program.
func NewParser(programID string, logger *zap.Logger) *Parser {
	if programID == "" {
		programID = ProgramID
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{programID: programID, logger: logger}
}

// Parse extracts every AMM event from txn: top-level instructions first,
// then AMM instructions nested inside other programs' inner instruction
// sets. An instruction that cannot be decoded is skipped; the rest of the
// transaction still parses.
func (p *Parser) Parse(txn *solana.ParsedTransaction, receivedAt time.Time) []*domain.DecodedEvent {
	events := p.parseTopLevel(txn, receivedAt)
	return append(events, p.parseInner(txn, receivedAt)...)
}

func (p *Parser) parseTopLevel(txn *solana.ParsedTransaction, receivedAt time.Time) []*domain.DecodedEvent {
	var events []*domain.DecodedEvent

	for i := range txn.Transaction.Message.Instructions {
		ixn := &txn.Transaction.Message.Instructions[i]
		if ixn.ProgramID != p.programID {
			continue
		}
		kind := instructionTypeOf(ixn.Data)
		if kind == ixUnknown {
			continue
		}

		// Transfer legs of a top-level instruction live in the inner
		// set indexed by the instruction's position. System program
		// transfers there are rent funding, not swap legs.
		transfers := findTransferInstructions(
			innerSetFor(txn.Meta.InnerInstructions, i), 0, 2, solana.SystemProgram)

		ev, err := p.buildEvent(txn, ixn, transfers, kind, receivedAt)
		if err != nil {
			observability.RecordDecodeError()
			p.logger.Debug("skipping undecodable instruction",
				zap.String("tx", txn.Signature()), zap.Error(err))
			continue
		}
		if ev != nil {
			events = append(events, ev)
		}
	}
	return events
}

func (p *Parser) parseInner(txn *solana.ParsedTransaction, receivedAt time.Time) []*domain.DecodedEvent {
	var events []*domain.DecodedEvent

	for s := range txn.Meta.InnerInstructions {
		set := &txn.Meta.InnerInstructions[s]
		for i := range set.Instructions {
			ixn := &set.Instructions[i]
			if ixn.ProgramID != p.programID {
				continue
			}
			kind := instructionTypeOf(ixn.Data)
			if kind == ixUnknown {
				continue
			}

			// Legs follow the AMM instruction within the same set.
			transfers := findTransferInstructions(set.Instructions, i+1, 2, "")

			ev, err := p.buildEvent(txn, ixn, transfers, kind, receivedAt)
			if err != nil {
				observability.RecordDecodeError()
				p.logger.Debug("skipping undecodable inner instruction",
					zap.String("tx", txn.Signature()), zap.Error(err))
				continue
			}
			if ev != nil {
				events = append(events, ev)
			}
		}
	}
	return events
}

// transferLeg is a normalized SPL token movement.
type transferLeg struct {
	authority   string
	source      string
	destination string
	amount      string
}

// findTransferInstructions collects up to limit transfer or transferChecked
// instructions starting at from, skipping excludeProgram when set.
// transferChecked amounts are normalized to the raw base-unit string.
func findTransferInstructions(instructions []solana.Instruction, from, limit int, excludeProgram string) []transferLeg {
	var legs []transferLeg
	for i := from; i < len(instructions) && len(legs) < limit; i++ {
		ixn := &instructions[i]
		if ixn.Parsed == nil {
			continue
		}

		var amount string
		switch ixn.Parsed.Type {
		case "transfer":
			amount = ixn.Parsed.Info.Amount
		case "transferChecked":
			if ixn.Parsed.Info.TokenAmount == nil {
				continue
			}
			amount = ixn.Parsed.Info.TokenAmount.Amount
		default:
			continue
		}

		if excludeProgram != "" && ixn.ProgramID == excludeProgram {
			continue
		}

		legs = append(legs, transferLeg{
			authority:   ixn.Parsed.Info.Authority,
			source:      ixn.Parsed.Info.Source,
			destination: ixn.Parsed.Info.Destination,
			amount:      amount,
		})
	}
	return legs
}

// innerSetFor returns the inner instructions of the top-level instruction at
// index, or nil.
func innerSetFor(sets []solana.InnerInstructionSet, index int) []solana.Instruction {
	for i := range sets {
		if sets[i].Index == index {
			return sets[i].Instructions
		}
	}
	return nil
}

// buildEvent assembles one decoded event from an AMM instruction and its
// transfer legs. A nil event with nil error means the instruction carries
// nothing decodable (no legs at all); an error means the record is
// malformed.
func (p *Parser) buildEvent(txn *solana.ParsedTransaction, ixn *solana.Instruction, transfers []transferLeg, kind instructionKind, receivedAt time.Time) (*domain.DecodedEvent, error) {
	if len(transfers) == 0 {
		return nil, nil
	}
	if len(ixn.Accounts) == 0 {
		return nil, fmt.Errorf("instruction has no accounts")
	}
	pair := ixn.Accounts[0]
	eventKind := kind.eventKind()

	// For swaps the pool is the authority of its outbound leg, so legs are
	// matched by authority; liquidity events keep positional order.
	var in, out *transferLeg
	if eventKind == domain.EventSwap {
		if transfers[0].authority == pair {
			if len(transfers) < 2 {
				return nil, nil
			}
			in = &transfers[1]
		} else {
			in = &transfers[0]
		}
		if len(transfers) > 1 && transfers[1].authority == pair {
			out = &transfers[1]
		} else {
			out = &transfers[0]
		}
	} else {
		in = &transfers[0]
		if len(transfers) > 1 {
			out = &transfers[1]
		}
	}
	if len(transfers) < 2 {
		out = nil
	}

	// The pool vault of each leg: deposits land on destinations,
	// withdrawals leave sources, swaps do one of each.
	var inVault, outVault string
	switch eventKind {
	case domain.EventAddLiquidity:
		inVault = in.destination
		if out != nil {
			outVault = out.destination
		}
	case domain.EventRemoveLiquidity:
		inVault = in.source
		if out != nil {
			outVault = out.source
		}
	case domain.EventSwap:
		inVault = in.destination
		if out != nil {
			outVault = out.source
		}
	}

	keys := txn.Transaction.Message.AccountKeys
	inBal := postBalanceFor(keys, txn.Meta.PostTokenBalances, inVault)
	if inBal == nil {
		return nil, fmt.Errorf("vault %s missing from post token balances", inVault)
	}

	var outBal *solana.TokenBalance
	if outVault != "" {
		outBal = postBalanceFor(keys, txn.Meta.PostTokenBalances, outVault)
		if outBal == nil {
			return nil, fmt.Errorf("vault %s missing from post token balances", outVault)
		}
	}

	inRaw, err := strconv.ParseUint(in.amount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse in amount %q: %w", in.amount, err)
	}
	inUI, err := uiAmount(in.amount, inBal.UITokenAmount.Decimals)
	if err != nil {
		return nil, err
	}

	ev := &domain.DecodedEvent{
		TxHash:      txn.Signature(),
		Signer:      txn.Signer(),
		Pair:        pair,
		Kind:        eventKind,
		InMint:      inBal.Mint,
		InAmountRaw: inRaw,
		InUIAmount:  inUI,
		VaultIn:     vaultSnapshot(inVault, inBal),
		Migrated:    kind == ixCreatePool && hasKey(keys, BondingCurveProgram) && hasKey(keys, MigrationAuthority),
		ReceivedAt:  receivedAt,
	}

	if outBal != nil {
		outRaw, err := strconv.ParseUint(out.amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse out amount %q: %w", out.amount, err)
		}
		outUI, err := uiAmount(out.amount, outBal.UITokenAmount.Decimals)
		if err != nil {
			return nil, err
		}
		ev.OutMint = outBal.Mint
		ev.OutAmountRaw = outRaw
		ev.OutUIAmount = outUI
		ev.VaultOut = vaultSnapshot(outVault, outBal)
	}

	return ev, nil
}

// eventKind maps a raw instruction to its economic effect.
func (k instructionKind) eventKind() domain.EventKind {
	switch k {
	case ixCreatePool, ixDeposit:
		return domain.EventAddLiquidity
	case ixBuy, ixSell:
		return domain.EventSwap
	case ixWithdraw:
		return domain.EventRemoveLiquidity
	}
	return ""
}

// postBalanceFor resolves a token account address to its post-transaction
// balance via the account key list.
func postBalanceFor(keys []solana.AccountKey, balances []solana.TokenBalance, address string) *solana.TokenBalance {
	index := -1
	for i := range keys {
		if keys[i].Pubkey == address {
			index = i
			break
		}
	}
	if index < 0 {
		return nil
	}
	for i := range balances {
		if balances[i].AccountIndex == index {
			return &balances[i]
		}
	}
	return nil
}

func vaultSnapshot(address string, bal *solana.TokenBalance) *domain.TokenVault {
	raw, _ := strconv.ParseUint(bal.UITokenAmount.Amount, 10, 64)
	return &domain.TokenVault{
		Address:   address,
		RawAmount: raw,
		UIAmount:  bal.UITokenAmount.UIAmount,
		Decimals:  bal.UITokenAmount.Decimals,
	}
}

// uiAmount converts a raw base-unit amount string into its decimal-adjusted
// value.
func uiAmount(raw string, decimals int) (float64, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return d.Shift(int32(-decimals)).InexactFloat64(), nil
}

func hasKey(keys []solana.AccountKey, address string) bool {
	for i := range keys {
		if keys[i].Pubkey == address {
			return true
		}
	}
	return false
}
