package event

import (
	"math/big"

	"github.com/google/uuid"
)

// Deposit credits a user's in-system cash from the external boundary.
type Deposit struct {
	DepositID uuid.UUID
	UserID    uuid.UUID
	Asset     string
	Amount    *big.Int // Wei
	Sequence  int64
	Timestamp int64 // Epoch microseconds (versioned input)
}

func (d *Deposit) IdempotencyKey() string {
	return d.DepositID.String()
}

func (d *Deposit) EventType() EventType {
	return EventTypeDeposit
}

func (d *Deposit) Partition() *string {
	return nil // Global event
}

func (d *Deposit) SourceSequence() int64 {
	return d.Sequence
}

// Withdrawal returns user cash to the external boundary.
type Withdrawal struct {
	WithdrawalID uuid.UUID
	UserID       uuid.UUID
	Asset        string
	Amount       *big.Int
	Sequence     int64
	Timestamp    int64
}

func (w *Withdrawal) IdempotencyKey() string {
	return w.WithdrawalID.String()
}

func (w *Withdrawal) EventType() EventType {
	return EventTypeWithdrawal
}

func (w *Withdrawal) Partition() *string {
	return nil
}

func (w *Withdrawal) SourceSequence() int64 {
	return w.Sequence
}
