package state

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/google/uuid"
)

// LoanRegistry is the authoritative store of loan records and their
// secondary indices. Loan IDs are monotonically increasing from 1. All
// index sets are id-keyed maps: removal is O(1) and order-free, membership
// is exact.
type LoanRegistry struct {
	loans      map[uint64]*LoanData
	nextLoanID uint64

	// collateralToLoan maps a pledged token to its single active loan.
	collateralToLoan map[NftKey]uint64

	// userLoans tracks active loans per borrower, bidderLoans the loans a
	// user currently holds the highest bid on, auctionLoans the set in an
	// auction state.
	userLoans    map[uuid.UUID]map[uint64]struct{}
	bidderLoans  map[uuid.UUID]map[uint64]struct{}
	auctionLoans map[uint64]struct{}

	// userCollateralCount counts active pledges per borrower+collection.
	userCollateralCount map[collateralCountKey]int
}

type collateralCountKey struct {
	Borrower uuid.UUID
	NftAsset string
}

func NewLoanRegistry() *LoanRegistry {
	return &LoanRegistry{
		loans:               make(map[uint64]*LoanData),
		nextLoanID:          1,
		collateralToLoan:    make(map[NftKey]uint64),
		userLoans:           make(map[uuid.UUID]map[uint64]struct{}),
		bidderLoans:         make(map[uuid.UUID]map[uint64]struct{}),
		auctionLoans:        make(map[uint64]struct{}),
		userCollateralCount: make(map[collateralCountKey]int),
	}
}

// GetLoan returns a loan by ID, or nil.
func (lr *LoanRegistry) GetLoan(loanID uint64) *LoanData {
	return lr.loans[loanID]
}

// GetCollateralLoanID returns the active loan encumbering a token.
func (lr *LoanRegistry) GetCollateralLoanID(key NftKey) (uint64, bool) {
	id, ok := lr.collateralToLoan[key]
	return id, ok
}

// MaxLoanID returns the highest loan ID issued so far (0 when none).
func (lr *LoanRegistry) MaxLoanID() uint64 {
	return lr.nextLoanID - 1
}

// CreateLoan opens a new Active loan against unencumbered collateral and
// returns its ID.
func (lr *LoanRegistry) CreateLoan(
	borrower uuid.UUID,
	nftAsset string,
	nftTokenID uint64,
	reserveAsset string,
	scaledAmount *big.Int,
) (uint64, error) {
	key := NftKey{Asset: nftAsset, TokenID: nftTokenID}
	if existing, encumbered := lr.collateralToLoan[key]; encumbered {
		return 0, fmt.Errorf("collateral %s already encumbered by loan %d", key, existing)
	}
	if scaledAmount == nil || scaledAmount.Sign() <= 0 {
		return 0, fmt.Errorf("scaled amount must be positive, got %v", scaledAmount)
	}

	loanID := lr.nextLoanID
	lr.nextLoanID++

	loan := &LoanData{
		LoanID:       loanID,
		State:        LoanStateActive,
		Borrower:     borrower,
		NftAsset:     nftAsset,
		NftTokenID:   nftTokenID,
		ReserveAsset: reserveAsset,
		ScaledAmount: new(big.Int).Set(scaledAmount),
	}

	lr.loans[loanID] = loan
	lr.collateralToLoan[key] = loanID
	lr.addToSet(lr.userLoans, borrower, loanID)
	lr.userCollateralCount[collateralCountKey{Borrower: borrower, NftAsset: nftAsset}]++

	return loanID, nil
}

// UpdateLoan grows (added) or shrinks (taken) a loan's scaled debt. Valid
// in Active and AvailableAuction; a bid locks the debt. A take that would
// underflow the scaled amount is rejected. When taken > 0 the repay time
// is recorded for grace gating.
func (lr *LoanRegistry) UpdateLoan(loanID uint64, scaledAdded, scaledTaken *big.Int, now int64) error {
	loan := lr.loans[loanID]
	if loan == nil {
		return fmt.Errorf("loan %d does not exist", loanID)
	}
	if loan.State != LoanStateActive && loan.State != LoanStateAvailableAuction {
		return fmt.Errorf("loan %d is %s, cannot reprice debt", loanID, loan.State)
	}

	if scaledAdded != nil && scaledAdded.Sign() > 0 {
		loan.ScaledAmount.Add(loan.ScaledAmount, scaledAdded)
	}
	if scaledTaken != nil && scaledTaken.Sign() > 0 {
		if loan.ScaledAmount.Cmp(scaledTaken) < 0 {
			return fmt.Errorf("loan %d: scaled take %s exceeds scaled amount %s",
				loanID, scaledTaken, loan.ScaledAmount)
		}
		loan.ScaledAmount.Sub(loan.ScaledAmount, scaledTaken)
		loan.RepayTime = now
	}

	loan.Version++
	return nil
}

// SetLiquidateGrace flags an undercollateralized loan that was partially
// repaid without curing, starting the forced-auction grace clock.
func (lr *LoanRegistry) SetLiquidateGrace(loanID uint64, isLiquidate bool, repayTime int64) error {
	loan := lr.loans[loanID]
	if loan == nil {
		return fmt.Errorf("loan %d does not exist", loanID)
	}
	loan.IsLiquidate = isLiquidate
	loan.RepayTime = repayTime
	loan.Version++
	return nil
}

// RepayLoan terminates a fully repaid loan: Active → Repaid, clears the
// collateral map and all indices. Scaled debt must already be burnt to
// zero by the caller.
func (lr *LoanRegistry) RepayLoan(loanID uint64) error {
	loan := lr.loans[loanID]
	if loan == nil {
		return fmt.Errorf("loan %d does not exist", loanID)
	}
	if !loan.State.CanTransitionTo(LoanStateRepaid) {
		return fmt.Errorf("loan %d is %s, cannot transition to Repaid", loanID, loan.State)
	}

	loan.State = LoanStateRepaid
	loan.ScaledAmount.SetInt64(0)
	loan.Version++
	lr.dropActiveIndices(loan)
	return nil
}

// AuctionLoan records a bid. The first bid transitions Active (or
// AvailableAuction) to Auction and starts the countdown; later bids must
// strictly exceed the standing price — equality is rejected. The previous
// bidder leaves the bidder index; refunding their escrow is the engine's
// responsibility, atomic with the new bid. History is append-only.
func (lr *LoanRegistry) AuctionLoan(
	loanID uint64,
	bidder uuid.UUID,
	bidPrice *big.Int,
	bidBorrowAmount *big.Int,
	now int64,
) error {
	loan := lr.loans[loanID]
	if loan == nil {
		return fmt.Errorf("loan %d does not exist", loanID)
	}
	if bidPrice == nil || bidPrice.Sign() <= 0 {
		return fmt.Errorf("bid price must be positive, got %v", bidPrice)
	}

	switch loan.State {
	case LoanStateActive, LoanStateAvailableAuction:
		if !loan.State.CanTransitionTo(LoanStateAuction) {
			return fmt.Errorf("loan %d is %s, cannot enter Auction", loanID, loan.State)
		}
		loan.State = LoanStateAuction
		loan.BidStartTimestamp = now
		loan.BidBorrowAmount = new(big.Int).Set(bidBorrowAmount)
	case LoanStateAuction:
		if loan.BidPrice != nil && bidPrice.Cmp(loan.BidPrice) <= 0 {
			return fmt.Errorf("loan %d: bid %s not above standing bid %s", loanID, bidPrice, loan.BidPrice)
		}
		lr.removeFromSet(lr.bidderLoans, loan.Bidder, loanID)
	default:
		return fmt.Errorf("loan %d is %s, cannot accept bids", loanID, loan.State)
	}

	loan.Bidder = bidder
	loan.BidPrice = new(big.Int).Set(bidPrice)
	loan.BidHistory = append(loan.BidHistory, Bid{
		Bidder:    bidder,
		Price:     new(big.Int).Set(bidPrice),
		Timestamp: now,
	})
	loan.Version++

	lr.addToSet(lr.bidderLoans, bidder, loanID)
	lr.auctionLoans[loanID] = struct{}{}

	return nil
}

// AvailableAuctionLoan proactively marks an undercollateralized loan as
// open for bidding. From Active it transitions to AvailableAuction; if the
// loan is already in Auction the call is a no-op.
func (lr *LoanRegistry) AvailableAuctionLoan(loanID uint64) error {
	loan := lr.loans[loanID]
	if loan == nil {
		return fmt.Errorf("loan %d does not exist", loanID)
	}
	if loan.State == LoanStateAuction || loan.State == LoanStateAvailableAuction {
		return nil
	}
	if !loan.State.CanTransitionTo(LoanStateAvailableAuction) {
		return fmt.Errorf("loan %d is %s, cannot transition to AvailableAuction", loanID, loan.State)
	}

	loan.State = LoanStateAvailableAuction
	loan.Version++
	lr.auctionLoans[loanID] = struct{}{}
	return nil
}

// LiquidateLoan terminates an auctioned loan: Auction → Defaulted, clears
// the collateral map and all indices. The winning bidder keeps their slot
// in history; settlement of funds and collateral is the engine's job.
func (lr *LoanRegistry) LiquidateLoan(loanID uint64) error {
	loan := lr.loans[loanID]
	if loan == nil {
		return fmt.Errorf("loan %d does not exist", loanID)
	}
	if !loan.State.CanTransitionTo(LoanStateDefaulted) {
		return fmt.Errorf("loan %d is %s, cannot transition to Defaulted", loanID, loan.State)
	}

	loan.State = LoanStateDefaulted
	loan.ScaledAmount.SetInt64(0)
	loan.Version++
	lr.dropActiveIndices(loan)
	lr.removeFromSet(lr.bidderLoans, loan.Bidder, loanID)
	return nil
}

// dropActiveIndices removes a terminated loan from the collateral map,
// per-user set, auction set, and collateral counters.
func (lr *LoanRegistry) dropActiveIndices(loan *LoanData) {
	key := NftKey{Asset: loan.NftAsset, TokenID: loan.NftTokenID}
	delete(lr.collateralToLoan, key)
	delete(lr.auctionLoans, loan.LoanID)
	lr.removeFromSet(lr.userLoans, loan.Borrower, loan.LoanID)

	countKey := collateralCountKey{Borrower: loan.Borrower, NftAsset: loan.NftAsset}
	if lr.userCollateralCount[countKey] > 0 {
		lr.userCollateralCount[countKey]--
		if lr.userCollateralCount[countKey] == 0 {
			delete(lr.userCollateralCount, countKey)
		}
	}
}

func (lr *LoanRegistry) addToSet(sets map[uuid.UUID]map[uint64]struct{}, owner uuid.UUID, loanID uint64) {
	set, ok := sets[owner]
	if !ok {
		set = make(map[uint64]struct{})
		sets[owner] = set
	}
	set[loanID] = struct{}{}
}

func (lr *LoanRegistry) removeFromSet(sets map[uuid.UUID]map[uint64]struct{}, owner uuid.UUID, loanID uint64) {
	if set, ok := sets[owner]; ok {
		delete(set, loanID)
		if len(set) == 0 {
			delete(sets, owner)
		}
	}
}

// GetUserLoanIDs returns the borrower's active loan IDs in ascending order.
func (lr *LoanRegistry) GetUserLoanIDs(borrower uuid.UUID) []uint64 {
	return sortedIDs(lr.userLoans[borrower])
}

// GetBidderLoanIDs returns the loans a user currently leads, ascending.
func (lr *LoanRegistry) GetBidderLoanIDs(bidder uuid.UUID) []uint64 {
	return sortedIDs(lr.bidderLoans[bidder])
}

// GetAuctionLoanIDs returns all loans in an auction state, ascending.
func (lr *LoanRegistry) GetAuctionLoanIDs() []uint64 {
	return sortedIDs(lr.auctionLoans)
}

// GetUserCollateralCount returns the borrower's active pledge count for a
// collection.
func (lr *LoanRegistry) GetUserCollateralCount(borrower uuid.UUID, nftAsset string) int {
	return lr.userCollateralCount[collateralCountKey{Borrower: borrower, NftAsset: nftAsset}]
}

// EffectiveLoanRange returns non-terminal loans with start <= loanID < end.
// The caller pages through [start, end) windows; end must exceed start.
func (lr *LoanRegistry) EffectiveLoanRange(start, end uint64) ([]*LoanData, error) {
	if end <= start {
		return nil, fmt.Errorf("range end %d must exceed start %d", end, start)
	}
	result := make([]*LoanData, 0)
	for id := start; id < end; id++ {
		loan := lr.loans[id]
		if loan == nil || loan.State.IsTerminal() {
			continue
		}
		result = append(result, loan)
	}
	return result, nil
}

// AllLoans returns every loan record in ascending ID order (snapshots,
// hashing).
func (lr *LoanRegistry) AllLoans() []*LoanData {
	ids := make([]uint64, 0, len(lr.loans))
	for id := range lr.loans {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	result := make([]*LoanData, 0, len(ids))
	for _, id := range ids {
		result = append(result, lr.loans[id])
	}
	return result
}

// RestoreLoan reinstalls a loan record and its indices (snapshot restore).
func (lr *LoanRegistry) RestoreLoan(loan *LoanData) {
	lr.loans[loan.LoanID] = loan
	if loan.LoanID >= lr.nextLoanID {
		lr.nextLoanID = loan.LoanID + 1
	}
	if loan.State.IsTerminal() {
		return
	}

	key := NftKey{Asset: loan.NftAsset, TokenID: loan.NftTokenID}
	lr.collateralToLoan[key] = loan.LoanID
	lr.addToSet(lr.userLoans, loan.Borrower, loan.LoanID)
	lr.userCollateralCount[collateralCountKey{Borrower: loan.Borrower, NftAsset: loan.NftAsset}]++

	if loan.State == LoanStateAuction || loan.State == LoanStateAvailableAuction {
		lr.auctionLoans[loan.LoanID] = struct{}{}
	}
	if loan.State == LoanStateAuction && loan.HasBid() {
		lr.addToSet(lr.bidderLoans, loan.Bidder, loan.LoanID)
	}
}

func sortedIDs(set map[uint64]struct{}) []uint64 {
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
