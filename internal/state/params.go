package state

import (
	"fmt"
	"math/big"

	fpmath "NFTLend/internal/math"
)

// ProtocolParams are the protocol-wide auction and lending knobs,
// configured once at startup as an explicit validated struct.
type ProtocolParams struct {
	// MinBidDeltaPercent is the minimum next-bid size as a percentage of
	// the standing bid (10100 = 101%).
	MinBidDeltaPercent uint64

	// BidRewardRatePercent is the vault's share of any auction surplus.
	BidRewardRatePercent uint64

	// RepayGraceSeconds is the buffer after a curing partial repay during
	// which a still-eligible loan is not forced into auction.
	RepayGraceSeconds int64

	// HighestPriceWindowSeconds is the lookback for the anti-flash-crash
	// highest observed collateral price.
	HighestPriceWindowSeconds int64

	// MinBorrowAmount is the smallest first borrow accepted, in the
	// smallest unit of the borrowed reserve asset.
	MinBorrowAmount *big.Int
}

func DefaultProtocolParams() ProtocolParams {
	return ProtocolParams{
		MinBidDeltaPercent:        10_100,
		BidRewardRatePercent:      500,
		RepayGraceSeconds:         2 * 3_600,
		HighestPriceWindowSeconds: 6 * 3_600,
		MinBorrowAmount:           big.NewInt(1),
	}
}

// ValidateProtocolParams checks parameter ranges at startup.
func ValidateProtocolParams(p *ProtocolParams) error {
	if p.MinBidDeltaPercent <= fpmath.PercentageFactor {
		return fmt.Errorf("min_bid_delta_percent must be > %d, got %d",
			fpmath.PercentageFactor, p.MinBidDeltaPercent)
	}
	if p.BidRewardRatePercent >= fpmath.PercentageFactor {
		return fmt.Errorf("bid_reward_rate_percent must be < %d, got %d",
			fpmath.PercentageFactor, p.BidRewardRatePercent)
	}
	if p.RepayGraceSeconds < 0 {
		return fmt.Errorf("repay_grace_seconds must be >= 0, got %d", p.RepayGraceSeconds)
	}
	if p.HighestPriceWindowSeconds <= 0 {
		return fmt.Errorf("highest_price_window_seconds must be > 0, got %d", p.HighestPriceWindowSeconds)
	}
	if p.MinBorrowAmount == nil || p.MinBorrowAmount.Sign() <= 0 {
		return fmt.Errorf("min_borrow_amount must be positive, got %v", p.MinBorrowAmount)
	}
	return nil
}
