package core

import (
	"fmt"
	"math/big"

	"NFTLend/internal/ledger"
	fpmath "NFTLend/internal/math"
	"NFTLend/internal/state"

	"github.com/google/uuid"
)

// Read-side accessors. These answer against in-memory state as of the last
// applied event; they never mutate accrual state, so debt figures reflect
// the borrow index at the reserve's last update.

// NftDebtData is the health view of one collateralized loan.
type NftDebtData struct {
	LoanID                uint64
	State                 state.LoanState
	Borrower              uuid.UUID
	ReserveAsset          string
	Debt                  *big.Int
	ThresholdPrice        *big.Int
	LiquidatePrice        *big.Int
	HighestThresholdPrice *big.Int
	AuctionEligible       bool
	ForcedAuction         bool
	BidStartTimestamp     int64
	Bidder                uuid.UUID
	BidPrice              *big.Int
}

// AuctionCandidate pairs a loan with its health snapshot for auction scans.
type AuctionCandidate struct {
	Loan   *state.LoanData
	Health *state.LiquidatePriceData
	Forced bool
}

func (c *LendingCore) GetLoan(loanID uint64) *state.LoanData {
	return c.loans.GetLoan(loanID)
}

func (c *LendingCore) GetLoanByCollateral(nftAsset string, tokenID uint64) *state.LoanData {
	return c.loanByCollateral(nftAsset, tokenID)
}

func (c *LendingCore) GetUserLoanIDs(borrower uuid.UUID) []uint64 {
	return c.loans.GetUserLoanIDs(borrower)
}

func (c *LendingCore) GetBidderLoanIDs(bidder uuid.UUID) []uint64 {
	return c.loans.GetBidderLoanIDs(bidder)
}

func (c *LendingCore) GetAuctionLoanIDs() []uint64 {
	return c.loans.GetAuctionLoanIDs()
}

// GetNftDebtData returns the debt and liquidation view of the loan backed
// by the given token.
func (c *LendingCore) GetNftDebtData(nftAsset string, tokenID uint64) (*NftDebtData, error) {
	loan := c.loanByCollateral(nftAsset, tokenID)
	if loan == nil {
		return nil, fmt.Errorf("no active loan on %s#%d", nftAsset, tokenID)
	}

	reserve, ok := c.reserves.GetReserve(loan.ReserveAsset)
	if !ok {
		return nil, fmt.Errorf("unknown reserve: %s", loan.ReserveAsset)
	}
	nft, ok := c.nfts.GetCollection(loan.NftAsset)
	if !ok {
		return nil, fmt.Errorf("unknown collection: %s", loan.NftAsset)
	}

	nowSec := c.lastTimestamp / 1_000_000
	data, err := c.prices.CalculateLoanLiquidatePrice(loan, reserve, nft, nowSec)
	if err != nil {
		return nil, err
	}

	view := &NftDebtData{
		LoanID:                loan.LoanID,
		State:                 loan.State,
		Borrower:              loan.Borrower,
		ReserveAsset:          loan.ReserveAsset,
		Debt:                  data.BorrowAmount,
		ThresholdPrice:        data.ThresholdPrice,
		LiquidatePrice:        data.LiquidatePrice,
		HighestThresholdPrice: data.HighestThresholdPrice,
		AuctionEligible:       state.IsAuctionEligible(data),
		ForcedAuction:         state.IsForcedAuction(loan, data, c.params.RepayGraceSeconds, nowSec),
		BidStartTimestamp:     loan.BidStartTimestamp,
	}
	if loan.HasBid() {
		view.Bidder = loan.Bidder
		view.BidPrice = new(big.Int).Set(loan.BidPrice)
	}
	return view, nil
}

// GetAuctionList scans loans in [start, end) and returns the ones open to
// bidding, flagging those past the forced-auction gate. Loans without
// oracle coverage are skipped rather than failing the whole scan.
func (c *LendingCore) GetAuctionList(start, end uint64) ([]AuctionCandidate, error) {
	loans, err := c.loans.EffectiveLoanRange(start, end)
	if err != nil {
		return nil, err
	}

	nowSec := c.lastTimestamp / 1_000_000
	candidates := make([]AuctionCandidate, 0, len(loans))
	for _, loan := range loans {
		reserve, ok := c.reserves.GetReserve(loan.ReserveAsset)
		if !ok {
			continue
		}
		nft, ok := c.nfts.GetCollection(loan.NftAsset)
		if !ok {
			continue
		}
		data, err := c.prices.CalculateLoanLiquidatePrice(loan, reserve, nft, nowSec)
		if err != nil {
			continue
		}

		eligible := state.IsAuctionEligible(data)
		inAuction := loan.State == state.LoanStateAuction || loan.State == state.LoanStateAvailableAuction
		if !eligible && !inAuction {
			continue
		}
		candidates = append(candidates, AuctionCandidate{
			Loan:   loan,
			Health: data,
			Forced: state.IsForcedAuction(loan, data, c.params.RepayGraceSeconds, nowSec),
		})
	}
	return candidates, nil
}

// GetReserveView returns the reserve's current indexes and rates.
func (c *LendingCore) GetReserveView(asset string) (*state.ReserveData, bool) {
	return c.reserves.GetReserve(asset)
}

// GetPoolLiquidity returns the reserve pool's available underlying.
func (c *LendingCore) GetPoolLiquidity(asset string) (*big.Int, error) {
	assetID, ok := ledger.GetAssetID(asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", asset)
	}
	return c.balanceTracker.GetPoolLiquidity(assetID), nil
}

// GetVaultBalance returns accumulated auction rewards held by the vault.
func (c *LendingCore) GetVaultBalance(asset string) (*big.Int, error) {
	assetID, ok := ledger.GetAssetID(asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", asset)
	}
	return c.balanceTracker.GetVaultBalance(assetID), nil
}

// GetTreasuryBalance returns protocol fees held as treasury cash.
func (c *LendingCore) GetTreasuryBalance(asset string) (*big.Int, error) {
	assetID, ok := ledger.GetAssetID(asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", asset)
	}
	return c.balanceTracker.GetTreasuryBalance(assetID), nil
}

// GetUserCashBalance returns free in-system cash for a user.
func (c *LendingCore) GetUserCashBalance(userID uuid.UUID, asset string) (*big.Int, error) {
	assetID, ok := ledger.GetAssetID(asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", asset)
	}
	return c.balanceTracker.GetUserCashBalance(userID, assetID), nil
}

// GetSupplyBalance returns a supplier's underlying balance at the current
// liquidity index.
func (c *LendingCore) GetSupplyBalance(userID uuid.UUID, asset string) (*big.Int, error) {
	reserve, ok := c.reserves.GetReserve(asset)
	if !ok {
		return nil, fmt.Errorf("unknown reserve: %s", asset)
	}
	return fpmath.AmountFromScaled(reserve.SupplyBook.ScaledBalance(userID), reserve.LiquidityIndex)
}
