// Package solana holds the jsonParsed transaction record model delivered by
// the upstream provider, plus small address helpers. The provider ships
// transactions already structured into accounts, instructions and balances;
// nothing here touches raw wire bytes.
package solana

// Well-known addresses.
const (
	// WSOL is the wrapped SOL mint, the quote side of every tracked pair.
	WSOL = "So11111111111111111111111111111111111111112"
	// SystemProgram funds accounts with SOL; its transfers are rent, not
	// swap legs.
	SystemProgram = "11111111111111111111111111111111"
)

// ParsedTransaction is one confirmed transaction in jsonParsed form.
type ParsedTransaction struct {
	Slot        int64       `json:"slot"`
	Transaction Transaction `json:"transaction"`
	Meta        Meta        `json:"meta"`
}

// Transaction carries the signatures and the decoded message.
type Transaction struct {
	Signatures []string `json:"signatures"`
	Message    Message  `json:"message"`
}

// Message is the decoded transaction message.
type Message struct {
	AccountKeys  []AccountKey  `json:"accountKeys"`
	Instructions []Instruction `json:"instructions"`
}

// AccountKey is one entry of the transaction account list. The first entry
// is the fee payer and signer.
type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// Instruction is a single instruction, either top-level or inner. Known
// programs (SPL token, system) arrive pre-parsed; everything else carries
// its base58 payload in Data.
type Instruction struct {
	ProgramID string             `json:"programId"`
	Program   string             `json:"program,omitempty"`
	Accounts  []string           `json:"accounts,omitempty"`
	Data      string             `json:"data,omitempty"`
	Parsed    *ParsedInstruction `json:"parsed,omitempty"`
}

// ParsedInstruction is the provider-decoded form of a known instruction.
type ParsedInstruction struct {
	Type string     `json:"type"`
	Info ParsedInfo `json:"info"`
}

// ParsedInfo holds the union of fields used by transfer and transferChecked
// instructions.
type ParsedInfo struct {
	Amount      string         `json:"amount,omitempty"`
	Authority   string         `json:"authority,omitempty"`
	Source      string         `json:"source,omitempty"`
	Destination string         `json:"destination,omitempty"`
	Mint        string         `json:"mint,omitempty"`
	TokenAmount *UITokenAmount `json:"tokenAmount,omitempty"`
}

// Meta is the post-execution metadata of a transaction.
type Meta struct {
	Err               any                   `json:"err"`
	InnerInstructions []InnerInstructionSet `json:"innerInstructions"`
	PostTokenBalances []TokenBalance        `json:"postTokenBalances"`
}

// InnerInstructionSet groups the inner instructions emitted while executing
// the top-level instruction at Index.
type InnerInstructionSet struct {
	Index        int           `json:"index"`
	Instructions []Instruction `json:"instructions"`
}

// TokenBalance is a post-execution token account balance, keyed back into
// the account list by AccountIndex.
type TokenBalance struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner,omitempty"`
	UITokenAmount UITokenAmount `json:"uiTokenAmount"`
}

// UITokenAmount is a raw amount plus its decimal-adjusted rendering.
type UITokenAmount struct {
	Amount         string  `json:"amount"`
	Decimals       int     `json:"decimals"`
	UIAmount       float64 `json:"uiAmount"`
	UIAmountString string  `json:"uiAmountString,omitempty"`
}

// Signature returns the transaction hash, or "" for a malformed record.
func (t *ParsedTransaction) Signature() string {
	if len(t.Transaction.Signatures) == 0 {
		return ""
	}
	return t.Transaction.Signatures[0]
}

// Signer returns the fee payer address, or "" for a malformed record.
func (t *ParsedTransaction) Signer() string {
	if len(t.Transaction.Message.AccountKeys) == 0 {
		return ""
	}
	return t.Transaction.Message.AccountKeys[0].Pubkey
}
