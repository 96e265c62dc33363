package event

import (
	"fmt"
	"math/big"
)

// ReserveConfigUpdate replaces a reserve's configuration and interest
// strategy. The core validates ranges before applying; an invalid update
// is rejected without touching state.
type ReserveConfigUpdate struct {
	Asset              string
	Active             bool
	Frozen             bool
	BorrowingEnabled   bool
	Decimals           uint8
	ReserveFactor      uint64   // Percentage units, 10000 = 100%
	BaseRate           *big.Int // Ray APR
	Slope1             *big.Int
	Slope2             *big.Int
	OptimalUtilization *big.Int // Ray
	Sequence           int64
	Timestamp          int64
}

func (r *ReserveConfigUpdate) IdempotencyKey() string {
	return fmt.Sprintf("reserve_config:%s:%d", r.Asset, r.Sequence)
}

func (r *ReserveConfigUpdate) EventType() EventType {
	return EventTypeReserveConfigUpdate
}

func (r *ReserveConfigUpdate) Partition() *string {
	a := r.Asset
	return &a
}

func (r *ReserveConfigUpdate) SourceSequence() int64 {
	return r.Sequence
}

// NftConfigUpdate replaces a collection's collateral configuration.
type NftConfigUpdate struct {
	NftAsset              string
	Active                bool
	Frozen                bool
	LTV                   uint64 // Percentage units
	LiquidationThreshold  uint64
	LiquidatePricePercent uint64 // Floor for the first bid, of collateral price
	AuctionDurationHours  uint64 // Countdown length, capped at 255
	MinTokenID            uint64
	MaxTokenID            uint64
	Sequence              int64
	Timestamp             int64
}

func (n *NftConfigUpdate) IdempotencyKey() string {
	return fmt.Sprintf("nft_config:%s:%d", n.NftAsset, n.Sequence)
}

func (n *NftConfigUpdate) EventType() EventType {
	return EventTypeNftConfigUpdate
}

func (n *NftConfigUpdate) Partition() *string {
	a := n.NftAsset
	return &a
}

func (n *NftConfigUpdate) SourceSequence() int64 {
	return n.Sequence
}
