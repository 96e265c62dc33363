package math

import (
	"errors"
	"math/big"
	"sync"
)

// Fixed-point bases. Interest rates and accrual indexes are ray values
// (27 decimals). Risk parameters such as LTV and liquidation threshold are
// percentage values where 10000 == 100.00%.
const (
	RayDecimals      = 27
	PercentageFactor = 10_000
	HalfPercentage   = PercentageFactor / 2
	SecondsPerYear   = 31_536_000
	MaxValueBits     = 256
)

var (
	// Ray is 10^27, the unit value of a ray.
	Ray = new(big.Int).Exp(big.NewInt(10), big.NewInt(RayDecimals), nil)

	// HalfRay is used for half-up rounding of ray products.
	HalfRay = new(big.Int).Rsh(new(big.Int).Exp(big.NewInt(10), big.NewInt(RayDecimals), nil), 1)

	percentageFactorBig = big.NewInt(PercentageFactor)
	halfPercentageBig   = big.NewInt(HalfPercentage)

	// MaxValue is 2^256 - 1, the largest amount representable on the ledger.
	MaxValue = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), MaxValueBits), big.NewInt(1))
)

var (
	ErrDivisionByZero = errors.New("math: division by zero")
	ErrOverflow       = errors.New("math: value exceeds 256 bits")
	ErrNegativeValue  = errors.New("math: negative value")
)

// intPool holds big.Int scratch values for intermediate products.
var intPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt() *big.Int {
	return intPool.Get().(*big.Int)
}

func putInt(v *big.Int) {
	v.SetInt64(0)
	intPool.Put(v)
}

func checkBounds(v *big.Int) error {
	if v.Sign() < 0 {
		return ErrNegativeValue
	}
	if v.Cmp(MaxValue) > 0 {
		return ErrOverflow
	}
	return nil
}

// RayMul returns a*b/Ray rounded half up. Both operands must be
// non-negative and the result must fit in 256 bits.
func RayMul(a, b *big.Int) (*big.Int, error) {
	if a.Sign() < 0 || b.Sign() < 0 {
		return nil, ErrNegativeValue
	}
	product := getInt()
	defer putInt(product)

	product.Mul(a, b)
	product.Add(product, HalfRay)

	result := new(big.Int).Quo(product, Ray)
	if err := checkBounds(result); err != nil {
		return nil, err
	}
	return result, nil
}

// RayDiv returns a*Ray/b rounded half up.
func RayDiv(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	if a.Sign() < 0 || b.Sign() < 0 {
		return nil, ErrNegativeValue
	}
	numerator := getInt()
	half := getInt()
	defer putInt(numerator)
	defer putInt(half)

	half.Rsh(b, 1)
	numerator.Mul(a, Ray)
	numerator.Add(numerator, half)

	result := new(big.Int).Quo(numerator, b)
	if err := checkBounds(result); err != nil {
		return nil, err
	}
	return result, nil
}

// RayDivUp returns ceil(a*Ray/b), rounding any remainder away from zero.
// Used when converting a borrow amount into scaled debt so the recorded
// obligation never understates the principal.
func RayDivUp(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	if a.Sign() < 0 || b.Sign() < 0 {
		return nil, ErrNegativeValue
	}
	numerator := getInt()
	defer putInt(numerator)

	numerator.Mul(a, Ray)

	result := new(big.Int)
	remainder := new(big.Int)
	result.QuoRem(numerator, b, remainder)
	if remainder.Sign() > 0 {
		result.Add(result, big.NewInt(1))
	}
	if err := checkBounds(result); err != nil {
		return nil, err
	}
	return result, nil
}

// RayDivDown returns floor(a*Ray/b), discarding any remainder. Used when
// converting a repayment into scaled debt credit so the borrower is never
// credited more than was paid.
func RayDivDown(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	if a.Sign() < 0 || b.Sign() < 0 {
		return nil, ErrNegativeValue
	}
	numerator := getInt()
	defer putInt(numerator)

	numerator.Mul(a, Ray)

	result := new(big.Int).Quo(numerator, b)
	if err := checkBounds(result); err != nil {
		return nil, err
	}
	return result, nil
}

// PercentMul returns value*percentage/10000 rounded half up.
func PercentMul(value *big.Int, percentage uint64) (*big.Int, error) {
	if value.Sign() < 0 {
		return nil, ErrNegativeValue
	}
	product := getInt()
	defer putInt(product)

	product.Mul(value, new(big.Int).SetUint64(percentage))
	product.Add(product, halfPercentageBig)

	result := new(big.Int).Quo(product, percentageFactorBig)
	if err := checkBounds(result); err != nil {
		return nil, err
	}
	return result, nil
}

// PercentDiv returns value*10000/percentage rounded half up.
func PercentDiv(value *big.Int, percentage uint64) (*big.Int, error) {
	if percentage == 0 {
		return nil, ErrDivisionByZero
	}
	if value.Sign() < 0 {
		return nil, ErrNegativeValue
	}
	p := new(big.Int).SetUint64(percentage)
	half := getInt()
	numerator := getInt()
	defer putInt(half)
	defer putInt(numerator)

	half.Rsh(p, 1)
	numerator.Mul(value, percentageFactorBig)
	numerator.Add(numerator, half)

	result := new(big.Int).Quo(numerator, p)
	if err := checkBounds(result); err != nil {
		return nil, err
	}
	return result, nil
}

// ScaledFromAmount converts an underlying debt amount into scaled units at
// the given borrow index. Rounds up and never returns zero for a nonzero
// amount, so dust borrows still carry debt.
func ScaledFromAmount(amount, index *big.Int) (*big.Int, error) {
	if index.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	scaled, err := RayDivUp(amount, index)
	if err != nil {
		return nil, err
	}
	if scaled.Sign() == 0 && amount.Sign() > 0 {
		scaled.SetInt64(1)
	}
	return scaled, nil
}

// AmountFromScaled converts scaled units back to an underlying amount at
// the given index, rounding half up.
func AmountFromScaled(scaled, index *big.Int) (*big.Int, error) {
	return RayMul(scaled, index)
}
