package event

import (
	"math/big"

	"github.com/google/uuid"
)

// AuctionBid places an English-auction bid on an unhealthy loan. The first
// valid bid moves the loan to auction and starts the countdown; later bids
// must strictly exceed the standing bid.
type AuctionBid struct {
	BidID      uuid.UUID
	BidderID   uuid.UUID
	OnBehalfOf uuid.UUID // Receives the NFT if this bid wins
	NftAsset   string
	NftTokenID uint64
	BidPrice   *big.Int
	Sequence   int64
	Timestamp  int64
}

func (a *AuctionBid) IdempotencyKey() string {
	return a.BidID.String()
}

func (a *AuctionBid) EventType() EventType {
	return EventTypeAuctionBid
}

func (a *AuctionBid) Partition() *string {
	n := a.NftAsset
	return &n
}

func (a *AuctionBid) SourceSequence() int64 {
	return a.Sequence
}

// Winner returns the account that takes the NFT on liquidation.
func (a *AuctionBid) Winner() uuid.UUID {
	if a.OnBehalfOf != uuid.Nil {
		return a.OnBehalfOf
	}
	return a.BidderID
}

// Liquidate settles a loan whose auction countdown has elapsed: repays the
// pool from the winning bid, covers any shortfall from the caller's
// ExtraDebtAmount, and transfers the collateral to the winner.
type Liquidate struct {
	LiquidateID     uuid.UUID
	CallerID        uuid.UUID
	NftAsset        string
	NftTokenID      uint64
	ExtraDebtAmount *big.Int
	Sequence        int64
	Timestamp       int64
}

func (l *Liquidate) IdempotencyKey() string {
	return l.LiquidateID.String()
}

func (l *Liquidate) EventType() EventType {
	return EventTypeLiquidate
}

func (l *Liquidate) Partition() *string {
	n := l.NftAsset
	return &n
}

func (l *Liquidate) SourceSequence() int64 {
	return l.Sequence
}
