package event

import (
	"math/big"

	"github.com/google/uuid"
)

// Repay pays down the active loan on an NFT. Amount above the owed debt is
// clamped; anyone may repay on a borrower's behalf.
type Repay struct {
	RepayID    uuid.UUID
	UserID     uuid.UUID // Payer
	NftAsset   string
	NftTokenID uint64
	Amount     *big.Int
	Sequence   int64
	Timestamp  int64
}

func (r *Repay) IdempotencyKey() string {
	return r.RepayID.String()
}

func (r *Repay) EventType() EventType {
	return EventTypeRepay
}

func (r *Repay) Partition() *string {
	a := r.NftAsset
	return &a
}

func (r *Repay) SourceSequence() int64 {
	return r.Sequence
}

// BatchRepay pays down several loans atomically. Slices are parallel and
// one failing leg rejects the whole batch.
type BatchRepay struct {
	BatchID     uuid.UUID
	UserID      uuid.UUID
	NftAssets   []string
	NftTokenIDs []uint64
	Amounts     []*big.Int
	Sequence    int64
	Timestamp   int64
}

func (b *BatchRepay) IdempotencyKey() string {
	return b.BatchID.String()
}

func (b *BatchRepay) EventType() EventType {
	return EventTypeBatchRepay
}

func (b *BatchRepay) Partition() *string {
	return nil
}

func (b *BatchRepay) SourceSequence() int64 {
	return b.Sequence
}

// Legs returns the batch as individual repay events with deterministic
// per-leg IDs derived from the batch ID.
func (b *BatchRepay) Legs() []*Repay {
	legs := make([]*Repay, 0, len(b.NftAssets))
	for i := range b.NftAssets {
		legs = append(legs, &Repay{
			RepayID:    uuid.NewSHA1(b.BatchID, []byte{byte(i)}),
			UserID:     b.UserID,
			NftAsset:   b.NftAssets[i],
			NftTokenID: b.NftTokenIDs[i],
			Amount:     b.Amounts[i],
			Sequence:   b.Sequence,
			Timestamp:  b.Timestamp,
		})
	}
	return legs
}
