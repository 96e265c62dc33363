package event

import (
	"fmt"
	"math/big"
)

// NftPriceUpdate carries an oracle floor price observation for an NFT
// collection. PriceSequence is monotonic per collection.
type NftPriceUpdate struct {
	NftAsset       string
	Price          *big.Int // Wei, reference currency
	PriceSequence  int64
	PriceTimestamp int64 // Epoch microseconds (versioned input)
}

func (n *NftPriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("%s:nftprice:%d", n.NftAsset, n.PriceSequence)
}

func (n *NftPriceUpdate) EventType() EventType {
	return EventTypeNftPriceUpdate
}

func (n *NftPriceUpdate) Partition() *string {
	a := n.NftAsset
	return &a
}

func (n *NftPriceUpdate) SourceSequence() int64 {
	return n.PriceSequence
}

// ReservePriceUpdate carries an oracle price observation for a reserve
// asset, in the reference currency.
type ReservePriceUpdate struct {
	Asset          string
	Price          *big.Int
	PriceSequence  int64
	PriceTimestamp int64
}

func (r *ReservePriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("%s:price:%d", r.Asset, r.PriceSequence)
}

func (r *ReservePriceUpdate) EventType() EventType {
	return EventTypeReservePriceUpdate
}

func (r *ReservePriceUpdate) Partition() *string {
	a := r.Asset
	return &a
}

func (r *ReservePriceUpdate) SourceSequence() int64 {
	return r.PriceSequence
}
