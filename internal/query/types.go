package query

import "github.com/google/uuid"

// LoanResponse represents a loan for API queries. Wei quantities are
// decimal strings.
type LoanResponse struct {
	LoanID            uint64    `json:"loan_id"`
	State             int32     `json:"state"`
	Borrower          uuid.UUID `json:"borrower"`
	NftAsset          string    `json:"nft_asset"`
	NftTokenID        uint64    `json:"nft_token_id"`
	ReserveAsset      string    `json:"reserve_asset"`
	ScaledAmount      string    `json:"scaled_amount"`
	BidStartTimestamp int64     `json:"bid_start_timestamp"`
	Bidder            uuid.UUID `json:"bidder"`
	BidPrice          string    `json:"bid_price,omitempty"`
	IsLiquidate       bool      `json:"is_liquidate"`
	RepayTime         int64     `json:"repay_time"`
	Version           int64     `json:"version"`
	AsOfSequence      int64     `json:"as_of_sequence"`
}

// AuctionHistoryResponse represents one bid or settlement record.
type AuctionHistoryResponse struct {
	LoanID     uint64    `json:"loan_id"`
	NftAsset   string    `json:"nft_asset"`
	NftTokenID uint64    `json:"nft_token_id"`
	Bidder     uuid.UUID `json:"bidder"`
	BidPrice   string    `json:"bid_price"`
	Settled    bool      `json:"settled"`
	Timestamp  int64     `json:"timestamp"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        string `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance string `json:"imbalance"`
}
