package event

import (
	"math/big"

	"github.com/google/uuid"
)

// Supply moves user cash into a shared reserve pool, minting scaled
// cToken balance.
type Supply struct {
	SupplyID  uuid.UUID
	UserID    uuid.UUID
	Asset     string
	Amount    *big.Int
	Sequence  int64
	Timestamp int64
}

func (s *Supply) IdempotencyKey() string {
	return s.SupplyID.String()
}

func (s *Supply) EventType() EventType {
	return EventTypeSupply
}

func (s *Supply) Partition() *string {
	a := s.Asset
	return &a
}

func (s *Supply) SourceSequence() int64 {
	return s.Sequence
}

// Redeem burns scaled cToken balance and returns pool liquidity to the
// supplier's cash.
type Redeem struct {
	RedeemID  uuid.UUID
	UserID    uuid.UUID
	Asset     string
	Amount    *big.Int
	Sequence  int64
	Timestamp int64
}

func (r *Redeem) IdempotencyKey() string {
	return r.RedeemID.String()
}

func (r *Redeem) EventType() EventType {
	return EventTypeRedeem
}

func (r *Redeem) Partition() *string {
	a := r.Asset
	return &a
}

func (r *Redeem) SourceSequence() int64 {
	return r.Sequence
}
