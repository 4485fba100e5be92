package pumpswap

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpswap-radar/internal/domain"
	"pumpswap-radar/internal/solana"
)

const (
	testTrader     = "TraderWa11et1111111111111111111111111111111"
	testPair       = "Poo1Address11111111111111111111111111111111"
	testQuoteVault = "QuoteVau1t111111111111111111111111111111111"
	testBaseVault  = "BaseVau1t1111111111111111111111111111111111"
	testTraderWSOL = "TraderWso1Acc111111111111111111111111111111"
	testTraderBase = "TraderBaseAcc111111111111111111111111111111"
	testBaseMint   = "BaseMint11111111111111111111111111111111111"
)

// ixData encodes a discriminator as the base58 payload of an instruction.
func ixData(disc uint64) string {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint64(raw, disc)
	return base58.Encode(raw)
}

func transfer(authority, source, destination, amount string) solana.Instruction {
	return solana.Instruction{
		ProgramID: "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
		Parsed: &solana.ParsedInstruction{
			Type: "transfer",
			Info: solana.ParsedInfo{
				Authority:   authority,
				Source:      source,
				Destination: destination,
				Amount:      amount,
			},
		},
	}
}

func vaultBalance(index int, mint, amount string, decimals int, ui float64) solana.TokenBalance {
	return solana.TokenBalance{
		AccountIndex: index,
		Mint:         mint,
		UITokenAmount: solana.UITokenAmount{
			Amount:   amount,
			Decimals: decimals,
			UIAmount: ui,
		},
	}
}

// buyTxn is a top-level buy: the trader sends WSOL to the quote vault and
// the pool pays base tokens out of the base vault.
func buyTxn() *solana.ParsedTransaction {
	return &solana.ParsedTransaction{
		Slot: 1000,
		Transaction: solana.Transaction{
			Signatures: []string{"sigBuy"},
			Message: solana.Message{
				AccountKeys: []solana.AccountKey{
					{Pubkey: testTrader, Signer: true},
					{Pubkey: testPair},
					{Pubkey: testQuoteVault},
					{Pubkey: testBaseVault},
					{Pubkey: testTraderWSOL},
					{Pubkey: testTraderBase},
				},
				Instructions: []solana.Instruction{
					{
						ProgramID: ProgramID,
						Accounts:  []string{testPair, testTrader},
						Data:      ixData(discBuy),
					},
				},
			},
		},
		Meta: solana.Meta{
			InnerInstructions: []solana.InnerInstructionSet{
				{
					Index: 0,
					Instructions: []solana.Instruction{
						transfer(testTrader, testTraderWSOL, testQuoteVault, "50000000"),
						transfer(testPair, testBaseVault, testTraderBase, "10000000000"),
					},
				},
			},
			PostTokenBalances: []solana.TokenBalance{
				vaultBalance(2, solana.WSOL, "2000000000", 9, 2.0),
				vaultBalance(3, testBaseMint, "500000000000", 6, 500000.0),
			},
		},
	}
}

func TestInstructionTypeOf(t *testing.T) {
	tests := []struct {
		name string
		data string
		want instructionKind
	}{
		{"create pool", ixData(discCreatePool), ixCreatePool},
		{"buy", ixData(discBuy), ixBuy},
		{"sell", ixData(discSell), ixSell},
		{"deposit", ixData(discDeposit), ixDeposit},
		{"withdraw", ixData(discWithdraw), ixWithdraw},
		{"unknown discriminator", ixData(42), ixUnknown},
		{"short payload", base58.Encode([]byte{1, 2, 3}), ixUnknown},
		{"not base58", "0OIl", ixUnknown},
		{"empty", "", ixUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, instructionTypeOf(tt.data))
		})
	}
}

func TestUIAmountDecimalRange(t *testing.T) {
	const raw = "123456789"

	for decimals := 0; decimals <= 12; decimals++ {
		got, err := uiAmount(raw, decimals)
		require.NoError(t, err)

		assert.InEpsilon(t, 123456789/math.Pow10(decimals), got, 1e-12,
			"decimals=%d", decimals)
		// Scaling back up restores the raw amount.
		assert.InEpsilon(t, 123456789, got*math.Pow10(decimals), 1e-9,
			"decimals=%d", decimals)
	}
}

func TestUIAmountRejectsGarbage(t *testing.T) {
	_, err := uiAmount("not-a-number", 6)
	assert.Error(t, err)
}

func TestParseBuy(t *testing.T) {
	p := NewParser("", nil)
	receivedAt := time.Now()

	events := p.Parse(buyTxn(), receivedAt)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "sigBuy", ev.TxHash)
	assert.Equal(t, testTrader, ev.Signer)
	assert.Equal(t, testPair, ev.Pair)
	assert.Equal(t, domain.EventSwap, ev.Kind)
	assert.False(t, ev.Migrated)
	assert.Equal(t, receivedAt, ev.ReceivedAt)

	assert.Equal(t, solana.WSOL, ev.InMint)
	assert.Equal(t, uint64(50000000), ev.InAmountRaw)
	assert.InDelta(t, 0.05, ev.InUIAmount, 1e-12)

	assert.Equal(t, testBaseMint, ev.OutMint)
	assert.Equal(t, uint64(10000000000), ev.OutAmountRaw)
	assert.InDelta(t, 10000.0, ev.OutUIAmount, 1e-9)

	require.NotNil(t, ev.VaultIn)
	assert.Equal(t, testQuoteVault, ev.VaultIn.Address)
	assert.Equal(t, uint64(2000000000), ev.VaultIn.RawAmount)
	assert.InDelta(t, 2.0, ev.VaultIn.UIAmount, 1e-12)
	assert.Equal(t, 9, ev.VaultIn.Decimals)

	require.NotNil(t, ev.VaultOut)
	assert.Equal(t, testBaseVault, ev.VaultOut.Address)
	assert.InDelta(t, 500000.0, ev.VaultOut.UIAmount, 1e-6)
}

func TestParseSellLegOrder(t *testing.T) {
	// The pool's outbound WSOL leg comes first here; legs must be matched
	// by authority, not position.
	txn := buyTxn()
	txn.Transaction.Signatures = []string{"sigSell"}
	txn.Transaction.Message.Instructions[0].Data = ixData(discSell)
	txn.Meta.InnerInstructions[0].Instructions = []solana.Instruction{
		transfer(testPair, testQuoteVault, testTraderWSOL, "40000000"),
		transfer(testTrader, testTraderBase, testBaseVault, "8000000000"),
	}

	events := NewParser("", nil).Parse(txn, time.Now())
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, domain.EventSwap, ev.Kind)
	assert.Equal(t, testBaseMint, ev.InMint)
	assert.Equal(t, uint64(8000000000), ev.InAmountRaw)
	assert.Equal(t, solana.WSOL, ev.OutMint)
	assert.Equal(t, uint64(40000000), ev.OutAmountRaw)
	assert.Equal(t, testBaseVault, ev.VaultIn.Address)
	assert.Equal(t, testQuoteVault, ev.VaultOut.Address)
}

func TestParseSwapSinglePoolLegSkipped(t *testing.T) {
	// A lone transfer authorized by the pool has no inbound side to pair
	// with; the instruction decodes to nothing.
	txn := buyTxn()
	txn.Meta.InnerInstructions[0].Instructions = []solana.Instruction{
		transfer(testPair, testBaseVault, testTraderBase, "10000000000"),
	}

	events := NewParser("", nil).Parse(txn, time.Now())
	assert.Empty(t, events)
}

func TestParseCreatePoolMigration(t *testing.T) {
	txn := buyTxn()
	txn.Transaction.Message.Instructions[0].Data = ixData(discCreatePool)
	txn.Transaction.Message.AccountKeys = append(txn.Transaction.Message.AccountKeys,
		solana.AccountKey{Pubkey: BondingCurveProgram},
		solana.AccountKey{Pubkey: MigrationAuthority},
	)
	// Liquidity legs are positional: both vaults are destinations.
	txn.Meta.InnerInstructions[0].Instructions = []solana.Instruction{
		transfer(testTrader, testTraderBase, testBaseVault, "800000000000000"),
		transfer(testTrader, testTraderWSOL, testQuoteVault, "80000000000"),
	}
	txn.Meta.PostTokenBalances = []solana.TokenBalance{
		vaultBalance(2, solana.WSOL, "80000000000", 9, 80.0),
		vaultBalance(3, testBaseMint, "800000000000000", 6, 800000000.0),
	}

	events := NewParser("", nil).Parse(txn, time.Now())
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, domain.EventAddLiquidity, ev.Kind)
	assert.True(t, ev.Migrated)
	assert.Equal(t, testBaseMint, ev.InMint)
	assert.Equal(t, solana.WSOL, ev.OutMint)
	assert.Equal(t, testBaseVault, ev.VaultIn.Address)
	assert.Equal(t, testQuoteVault, ev.VaultOut.Address)
}

func TestParseCreatePoolWithoutMigrationKeys(t *testing.T) {
	txn := buyTxn()
	txn.Transaction.Message.Instructions[0].Data = ixData(discCreatePool)

	events := NewParser("", nil).Parse(txn, time.Now())
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventAddLiquidity, events[0].Kind)
	assert.False(t, events[0].Migrated)
}

func TestParseWithdrawSingleLeg(t *testing.T) {
	txn := buyTxn()
	txn.Transaction.Message.Instructions[0].Data = ixData(discWithdraw)
	txn.Meta.InnerInstructions[0].Instructions = []solana.Instruction{
		transfer(testPair, testBaseVault, testTraderBase, "10000000000"),
	}

	events := NewParser("", nil).Parse(txn, time.Now())
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, domain.EventRemoveLiquidity, ev.Kind)
	// Withdrawal legs leave vault sources.
	assert.Equal(t, testBaseVault, ev.VaultIn.Address)
	assert.Nil(t, ev.VaultOut)
	assert.Empty(t, ev.OutMint)
}

func TestParseTransferChecked(t *testing.T) {
	txn := buyTxn()
	legs := txn.Meta.InnerInstructions[0].Instructions
	legs[0].Parsed.Type = "transferChecked"
	legs[0].Parsed.Info.Amount = ""
	legs[0].Parsed.Info.TokenAmount = &solana.UITokenAmount{
		Amount:   "50000000",
		Decimals: 9,
		UIAmount: 0.05,
	}

	events := NewParser("", nil).Parse(txn, time.Now())
	require.Len(t, events, 1)
	assert.Equal(t, uint64(50000000), events[0].InAmountRaw)
}

func TestParseSkipsSystemTransfers(t *testing.T) {
	// Rent funding via the system program precedes the token legs and must
	// not be mistaken for the inbound leg.
	txn := buyTxn()
	rent := solana.Instruction{
		ProgramID: solana.SystemProgram,
		Parsed: &solana.ParsedInstruction{
			Type: "transfer",
			Info: solana.ParsedInfo{
				Source:      testTrader,
				Destination: testTraderWSOL,
				Amount:      "2039280",
			},
		},
	}
	txn.Meta.InnerInstructions[0].Instructions = append(
		[]solana.Instruction{rent}, txn.Meta.InnerInstructions[0].Instructions...)

	events := NewParser("", nil).Parse(txn, time.Now())
	require.Len(t, events, 1)
	assert.Equal(t, uint64(50000000), events[0].InAmountRaw)
	assert.Equal(t, uint64(10000000000), events[0].OutAmountRaw)
}

func TestParseInnerInstruction(t *testing.T) {
	// The AMM instruction itself nested inside another program's inner set,
	// with its legs following it in the same set.
	txn := buyTxn()
	txn.Transaction.Message.Instructions = []solana.Instruction{
		{ProgramID: "Routerrrrrrrrrrrrrrrrrrrrrrrrrrrrrrrrrrrrrr"},
	}
	txn.Meta.InnerInstructions = []solana.InnerInstructionSet{
		{
			Index: 0,
			Instructions: []solana.Instruction{
				{
					ProgramID: ProgramID,
					Accounts:  []string{testPair, testTrader},
					Data:      ixData(discBuy),
				},
				transfer(testTrader, testTraderWSOL, testQuoteVault, "50000000"),
				transfer(testPair, testBaseVault, testTraderBase, "10000000000"),
			},
		},
	}

	events := NewParser("", nil).Parse(txn, time.Now())
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventSwap, events[0].Kind)
	assert.Equal(t, solana.WSOL, events[0].InMint)
}

func TestParseIgnoresForeignPrograms(t *testing.T) {
	txn := buyTxn()
	txn.Transaction.Message.Instructions[0].ProgramID = "SomeOtherProgram1111111111111111111111111111"

	events := NewParser("", nil).Parse(txn, time.Now())
	assert.Empty(t, events)
}

func TestParseMissingVaultBalance(t *testing.T) {
	txn := buyTxn()
	txn.Meta.PostTokenBalances = txn.Meta.PostTokenBalances[:1]

	events := NewParser("", nil).Parse(txn, time.Now())
	assert.Empty(t, events)
}

func TestParseCustomProgramID(t *testing.T) {
	const custom = "CustomAmm11111111111111111111111111111111111"
	txn := buyTxn()
	txn.Transaction.Message.Instructions[0].ProgramID = custom

	events := NewParser(custom, nil).Parse(txn, time.Now())
	require.Len(t, events, 1)

	assert.Empty(t, NewParser("", nil).Parse(txn, time.Now()))
}
