package query

import (
	"github.com/google/uuid"
)

// BalanceResponse represents user balance state for API queries. Amounts
// are decimal strings of wei values.
type BalanceResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Asset  string    `json:"asset"`

	// Ledger balances (from journal entries)
	CashBalance string `json:"cash_balance"` // withdrawable funds
	BidEscrow   string `json:"bid_escrow"`   // locked under standing bids

	// Metadata
	AsOfSequence int64 `json:"as_of_sequence"` // last projected event sequence
}
