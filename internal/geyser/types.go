// Package geyser implements the transaction stream transport: a websocket
// client that subscribes to a program's confirmed transactions and keeps
// the subscription alive across provider drops and idle periods.
package geyser

import (
	"time"

	"pumpswap-radar/internal/solana"
)

// SubscribeRequest is the subscription message sent after every connect.
// The provider expects every filter family to be present, empty or not.
type SubscribeRequest struct {
	Accounts           map[string]AccountFilter     `json:"accounts"`
	Slots              map[string]SlotFilter        `json:"slots"`
	Transactions       map[string]TransactionFilter `json:"transactions"`
	TransactionsStatus map[string]TransactionFilter `json:"transactionsStatus"`
	Blocks             map[string]BlockFilter       `json:"blocks"`
	BlocksMeta         map[string]BlockFilter       `json:"blocksMeta"`
	Entry              map[string]EntryFilter       `json:"entry"`
	AccountsDataSlice  []DataSlice                  `json:"accountsDataSlice"`
	Commitment         string                       `json:"commitment,omitempty"`
	Ping               *Ping                        `json:"ping,omitempty"`
}

// AccountFilter, SlotFilter, BlockFilter and EntryFilter are filter families
// this client never populates; they exist so the request serializes with the
// full shape the provider expects.
type (
	AccountFilter struct{}
	SlotFilter    struct{}
	BlockFilter   struct{}
	EntryFilter   struct{}
)

// TransactionFilter selects transactions by vote/failed status and account
// mentions.
type TransactionFilter struct {
	Vote            bool     `json:"vote"`
	Failed          bool     `json:"failed"`
	AccountInclude  []string `json:"accountInclude"`
	AccountExclude  []string `json:"accountExclude,omitempty"`
	AccountRequired []string `json:"accountRequired,omitempty"`
}

// DataSlice limits account data in account updates; unused here.
type DataSlice struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

// Ping is the keep-alive payload, echoed back by the provider as a pong.
type Ping struct {
	ID int `json:"id"`
}

// NewSubscribeRequest builds a subscription for successful non-vote
// transactions mentioning programID.
func NewSubscribeRequest(programID, commitment string) SubscribeRequest {
	return SubscribeRequest{
		Accounts: map[string]AccountFilter{},
		Slots:    map[string]SlotFilter{},
		Transactions: map[string]TransactionFilter{
			"client": {
				Vote:           false,
				Failed:         false,
				AccountInclude: []string{programID},
			},
		},
		TransactionsStatus: map[string]TransactionFilter{},
		Blocks:             map[string]BlockFilter{},
		BlocksMeta:         map[string]BlockFilter{},
		Entry:              map[string]EntryFilter{},
		AccountsDataSlice:  []DataSlice{},
		Commitment:         commitment,
	}
}

// pingRequest is a SubscribeRequest carrying only the keep-alive payload.
func pingRequest() SubscribeRequest {
	req := NewSubscribeRequest("", "")
	req.Transactions = map[string]TransactionFilter{}
	req.Ping = &Ping{ID: 1}
	return req
}

// update is the inbound message envelope. A transaction update carries the
// jsonParsed record; everything else (pongs, acks) is ignored.
type update struct {
	Transaction *solana.ParsedTransaction `json:"transaction"`
	Pong        *Ping                     `json:"pong"`
}

// TransactionUpdate is one streamed transaction handed to the pipeline.
type TransactionUpdate struct {
	Txn        *solana.ParsedTransaction
	ReceivedAt time.Time
}
