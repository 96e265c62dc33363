package state

import (
	"fmt"
	"math/big"

	fpmath "NFTLend/internal/math"
)

// InterestRateStrategy maps pool utilization to borrow and supply rates.
type InterestRateStrategy interface {
	// Rates returns (liquidityRate, variableBorrowRate) in ray APR for the
	// given utilization (ray, 0..1) and reserve factor (percentage units).
	Rates(utilization *big.Int, reserveFactor uint64) (*big.Int, *big.Int, error)
}

// KinkedRateStrategy is the default two-slope curve: the borrow rate rises
// gently up to OptimalUtilization and steeply past it, pushing utilization
// back toward the kink.
type KinkedRateStrategy struct {
	BaseRate           *big.Int // Ray APR at zero utilization
	Slope1             *big.Int // Ray APR added across [0, optimal]
	Slope2             *big.Int // Ray APR added across (optimal, 1]
	OptimalUtilization *big.Int // Ray, in (0, 1)
}

// DefaultRateStrategy mirrors common money-market parameters: 0% base,
// 4% slope1, 60% slope2, 80% kink.
func DefaultRateStrategy() *KinkedRateStrategy {
	return &KinkedRateStrategy{
		BaseRate:           big.NewInt(0),
		Slope1:             rayPercent(400),
		Slope2:             rayPercent(6_000),
		OptimalUtilization: rayPercent(8_000),
	}
}

// rayPercent converts percentage units (10000 = 100%) into a ray fraction.
func rayPercent(pct uint64) *big.Int {
	v := new(big.Int).Mul(fpmath.Ray, new(big.Int).SetUint64(pct))
	return v.Quo(v, big.NewInt(fpmath.PercentageFactor))
}

func (s *KinkedRateStrategy) Validate() error {
	if s.BaseRate == nil || s.Slope1 == nil || s.Slope2 == nil || s.OptimalUtilization == nil {
		return fmt.Errorf("rate strategy has nil parameter")
	}
	if s.BaseRate.Sign() < 0 || s.Slope1.Sign() < 0 || s.Slope2.Sign() < 0 {
		return fmt.Errorf("rate strategy has negative slope")
	}
	if s.OptimalUtilization.Sign() <= 0 || s.OptimalUtilization.Cmp(fpmath.Ray) >= 0 {
		return fmt.Errorf("optimal utilization %s outside (0, 1)", s.OptimalUtilization)
	}
	return nil
}

// Rates implements InterestRateStrategy.
func (s *KinkedRateStrategy) Rates(utilization *big.Int, reserveFactor uint64) (*big.Int, *big.Int, error) {
	if utilization.Sign() < 0 {
		return nil, nil, fpmath.ErrNegativeValue
	}

	borrowRate := new(big.Int).Set(s.BaseRate)

	if utilization.Cmp(s.OptimalUtilization) <= 0 {
		// base + slope1 * u/optimal
		ratio, err := fpmath.RayDiv(utilization, s.OptimalUtilization)
		if err != nil {
			return nil, nil, err
		}
		part, err := fpmath.RayMul(s.Slope1, ratio)
		if err != nil {
			return nil, nil, err
		}
		borrowRate.Add(borrowRate, part)
	} else {
		// base + slope1 + slope2 * (u-optimal)/(1-optimal)
		excess := new(big.Int).Sub(utilization, s.OptimalUtilization)
		span := new(big.Int).Sub(fpmath.Ray, s.OptimalUtilization)
		ratio, err := fpmath.RayDiv(excess, span)
		if err != nil {
			return nil, nil, err
		}
		part, err := fpmath.RayMul(s.Slope2, ratio)
		if err != nil {
			return nil, nil, err
		}
		borrowRate.Add(borrowRate, s.Slope1)
		borrowRate.Add(borrowRate, part)
	}

	// liquidityRate = borrowRate * utilization * (1 - reserveFactor)
	gross, err := fpmath.RayMul(borrowRate, utilization)
	if err != nil {
		return nil, nil, err
	}
	if reserveFactor >= fpmath.PercentageFactor {
		return nil, nil, fmt.Errorf("reserve factor %d at or above 100%%", reserveFactor)
	}
	liquidityRate, err := fpmath.PercentMul(gross, fpmath.PercentageFactor-reserveFactor)
	if err != nil {
		return nil, nil, err
	}

	return liquidityRate, borrowRate, nil
}
