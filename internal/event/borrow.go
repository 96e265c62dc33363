package event

import (
	"math/big"

	"github.com/google/uuid"
)

// Borrow requests reserves against a single NFT collateral. OnBehalfOf is
// the account that receives the debt (and must own or pledge the NFT);
// when zero it defaults to UserID.
type Borrow struct {
	BorrowID   uuid.UUID
	UserID     uuid.UUID
	OnBehalfOf uuid.UUID
	Asset      string
	Amount     *big.Int
	NftAsset   string
	NftTokenID uint64
	Sequence   int64
	Timestamp  int64
}

func (b *Borrow) IdempotencyKey() string {
	return b.BorrowID.String()
}

func (b *Borrow) EventType() EventType {
	return EventTypeBorrow
}

func (b *Borrow) Partition() *string {
	a := b.Asset
	return &a
}

func (b *Borrow) SourceSequence() int64 {
	return b.Sequence
}

// Borrower returns the account carrying the debt.
func (b *Borrow) Borrower() uuid.UUID {
	if b.OnBehalfOf != uuid.Nil {
		return b.OnBehalfOf
	}
	return b.UserID
}

// BatchBorrow requests several borrows atomically. The slices are
// parallel; all legs validate before any is applied, and one failing leg
// rejects the whole batch.
type BatchBorrow struct {
	BatchID     uuid.UUID
	UserID      uuid.UUID
	OnBehalfOf  uuid.UUID
	Assets      []string
	Amounts     []*big.Int
	NftAssets   []string
	NftTokenIDs []uint64
	Sequence    int64
	Timestamp   int64
}

func (b *BatchBorrow) IdempotencyKey() string {
	return b.BatchID.String()
}

func (b *BatchBorrow) EventType() EventType {
	return EventTypeBatchBorrow
}

func (b *BatchBorrow) Partition() *string {
	return nil // May span reserves
}

func (b *BatchBorrow) SourceSequence() int64 {
	return b.Sequence
}

func (b *BatchBorrow) Borrower() uuid.UUID {
	if b.OnBehalfOf != uuid.Nil {
		return b.OnBehalfOf
	}
	return b.UserID
}

// Legs returns the batch as individual borrow events with deterministic
// per-leg IDs derived from the batch ID.
func (b *BatchBorrow) Legs() []*Borrow {
	legs := make([]*Borrow, 0, len(b.Assets))
	for i := range b.Assets {
		legs = append(legs, &Borrow{
			BorrowID:   uuid.NewSHA1(b.BatchID, []byte{byte(i)}),
			UserID:     b.UserID,
			OnBehalfOf: b.OnBehalfOf,
			Asset:      b.Assets[i],
			Amount:     b.Amounts[i],
			NftAsset:   b.NftAssets[i],
			NftTokenID: b.NftTokenIDs[i],
			Sequence:   b.Sequence,
			Timestamp:  b.Timestamp,
		})
	}
	return legs
}
