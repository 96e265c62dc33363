package state

import (
	"math/big"

	"github.com/google/uuid"
)

// LoanState tracks a loan through its lifecycle
type LoanState int32

const (
	LoanStateActive LoanState = iota
	LoanStateAuction
	LoanStateAvailableAuction
	LoanStateRepaid
	LoanStateDefaulted
)

func (ls LoanState) String() string {
	switch ls {
	case LoanStateActive:
		return "Active"
	case LoanStateAuction:
		return "Auction"
	case LoanStateAvailableAuction:
		return "AvailableAuction"
	case LoanStateRepaid:
		return "Repaid"
	case LoanStateDefaulted:
		return "Defaulted"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates state transitions. AvailableAuction keeps the
// repay exit open until the first bid lands; once a loan is in Auction the
// only exit is Defaulted. Repaid and Defaulted are terminal.
func (ls LoanState) CanTransitionTo(next LoanState) bool {
	validTransitions := map[LoanState][]LoanState{
		LoanStateActive: {
			LoanStateAuction,
			LoanStateAvailableAuction,
			LoanStateRepaid,
		},
		LoanStateAvailableAuction: {
			LoanStateAuction,
			LoanStateRepaid,
		},
		LoanStateAuction: {
			LoanStateDefaulted,
		},
	}

	allowed, ok := validTransitions[ls]
	if !ok {
		return false
	}

	for _, allowedState := range allowed {
		if next == allowedState {
			return true
		}
	}

	return false
}

// IsTerminal reports whether the loan has been settled.
func (ls LoanState) IsTerminal() bool {
	return ls == LoanStateRepaid || ls == LoanStateDefaulted
}

// IsEncumbering reports whether the loan still holds its collateral.
func (ls LoanState) IsEncumbering() bool {
	return !ls.IsTerminal()
}

// Bid is one entry in a loan's append-only auction history.
type Bid struct {
	Bidder    uuid.UUID
	Price     *big.Int
	Timestamp int64 // Epoch seconds (versioned input)
}

// LoanData is the authoritative record of one loan. ScaledAmount is the
// only persisted debt quantity; the owed amount is always recomputed as
// scaledAmount * currentBorrowIndex after the reserve has been touched.
type LoanData struct {
	LoanID       uint64
	State        LoanState
	Borrower     uuid.UUID
	NftAsset     string
	NftTokenID   uint64
	ReserveAsset string
	ScaledAmount *big.Int

	// Auction state. Bidder/BidPrice mirror the last history entry;
	// BidBorrowAmount is the owed debt captured at the first bid.
	BidStartTimestamp int64
	Bidder            uuid.UUID
	BidPrice          *big.Int
	BidBorrowAmount   *big.Int
	BidHistory        []Bid

	// Grace bookkeeping: set when a partial repay reduced but did not cure
	// an undercollateralized loan, gating forced re-auction.
	IsLiquidate bool
	RepayTime   int64

	Version int64 // Bumped on every mutation
}

// HasBid reports whether any bid has been recorded.
func (l *LoanData) HasBid() bool {
	return len(l.BidHistory) > 0
}

// Clone returns a deep copy safe to hand off outside the core loop.
func (l *LoanData) Clone() *LoanData {
	cp := *l
	cp.ScaledAmount = new(big.Int).Set(l.ScaledAmount)
	if l.BidPrice != nil {
		cp.BidPrice = new(big.Int).Set(l.BidPrice)
	}
	if l.BidBorrowAmount != nil {
		cp.BidBorrowAmount = new(big.Int).Set(l.BidBorrowAmount)
	}
	cp.BidHistory = make([]Bid, len(l.BidHistory))
	for i, b := range l.BidHistory {
		cp.BidHistory[i] = Bid{
			Bidder:    b.Bidder,
			Price:     new(big.Int).Set(b.Price),
			Timestamp: b.Timestamp,
		}
	}
	return &cp
}

// CanonicalBytes returns deterministic serialization for hashing
func (l *LoanData) CanonicalBytes() []byte {
	buf := make([]byte, 0, 192)

	buf = appendUint64LE(buf, l.LoanID)
	buf = append(buf, byte(l.State))
	buf = append(buf, l.Borrower[:]...)

	buf = append(buf, byte(len(l.NftAsset)))
	buf = append(buf, []byte(l.NftAsset)...)
	buf = appendUint64LE(buf, l.NftTokenID)

	buf = append(buf, byte(len(l.ReserveAsset)))
	buf = append(buf, []byte(l.ReserveAsset)...)
	buf = appendBigInt(buf, l.ScaledAmount)

	buf = appendInt64LE(buf, l.BidStartTimestamp)
	buf = append(buf, l.Bidder[:]...)
	buf = appendBigInt(buf, bigOrZero(l.BidPrice))
	buf = appendBigInt(buf, bigOrZero(l.BidBorrowAmount))
	buf = appendUint64LE(buf, uint64(len(l.BidHistory)))

	if l.IsLiquidate {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendInt64LE(buf, l.RepayTime)

	return buf
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func appendInt64LE(buf []byte, v int64) []byte {
	return appendUint64LE(buf, uint64(v))
}

func appendUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}
