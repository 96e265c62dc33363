package math

import (
	"math/big"
)

var secondsPerYearBig = big.NewInt(SecondsPerYear)

// LinearInterest returns the linear accumulation factor, in ray, for an
// annualized ray rate over elapsed seconds:
//
//	factor = Ray + rate*elapsed/SecondsPerYear
//
// Supply-side index growth is linear; only borrow debt compounds.
func LinearInterest(rate *big.Int, elapsed int64) (*big.Int, error) {
	if rate.Sign() < 0 || elapsed < 0 {
		return nil, ErrNegativeValue
	}
	if elapsed == 0 || rate.Sign() == 0 {
		return new(big.Int).Set(Ray), nil
	}
	accrued := getInt()
	defer putInt(accrued)

	accrued.Mul(rate, big.NewInt(elapsed))
	accrued.Quo(accrued, secondsPerYearBig)

	result := new(big.Int).Add(Ray, accrued)
	if err := checkBounds(result); err != nil {
		return nil, err
	}
	return result, nil
}

// CompoundedInterest returns the per-second compounded accumulation factor,
// in ray, approximated by the first three terms of the binomial expansion:
//
//	(1+x)^n ~= 1 + n*x + n*(n-1)/2*x^2 + n*(n-1)*(n-2)/6*x^3
//
// where x = rate/SecondsPerYear and n = elapsed. The truncation error is
// negative, so the factor slightly understates true compounding; the
// half-up ray rounding elsewhere keeps recorded debt from shrinking.
func CompoundedInterest(rate *big.Int, elapsed int64) (*big.Int, error) {
	if rate.Sign() < 0 || elapsed < 0 {
		return nil, ErrNegativeValue
	}
	if elapsed == 0 || rate.Sign() == 0 {
		return new(big.Int).Set(Ray), nil
	}

	expMinusOne := elapsed - 1
	expMinusTwo := elapsed - 2
	if expMinusTwo < 0 {
		expMinusTwo = 0
	}

	ratePerSecond := new(big.Int).Quo(rate, secondsPerYearBig)

	basePowerTwo, err := RayMul(ratePerSecond, ratePerSecond)
	if err != nil {
		return nil, err
	}
	basePowerThree, err := RayMul(basePowerTwo, ratePerSecond)
	if err != nil {
		return nil, err
	}

	n := big.NewInt(elapsed)

	firstTerm := new(big.Int).Mul(n, ratePerSecond)

	secondTerm := new(big.Int).Mul(n, big.NewInt(expMinusOne))
	secondTerm.Mul(secondTerm, basePowerTwo)
	secondTerm.Quo(secondTerm, big.NewInt(2))

	thirdTerm := new(big.Int).Mul(n, big.NewInt(expMinusOne))
	thirdTerm.Mul(thirdTerm, big.NewInt(expMinusTwo))
	thirdTerm.Mul(thirdTerm, basePowerThree)
	thirdTerm.Quo(thirdTerm, big.NewInt(6))

	result := new(big.Int).Add(Ray, firstTerm)
	result.Add(result, secondTerm)
	result.Add(result, thirdTerm)
	if err := checkBounds(result); err != nil {
		return nil, err
	}
	return result, nil
}
