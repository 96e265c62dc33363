package math

import (
	"math/big"
	"testing"
)

func bi(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad integer literal: " + s)
	}
	return v
}

func TestRayMulRoundsHalfUp(t *testing.T) {
	cases := []struct {
		name string
		a, b *big.Int
		want *big.Int
	}{
		{"identity", bi("123456789"), new(big.Int).Set(Ray), bi("123456789")},
		{"half rounds up", big.NewInt(1), new(big.Int).Set(HalfRay), big.NewInt(1)},
		{"below half rounds down", big.NewInt(1), new(big.Int).Sub(HalfRay, big.NewInt(1)), big.NewInt(0)},
		{"zero operand", big.NewInt(0), new(big.Int).Set(Ray), big.NewInt(0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := RayMul(tc.a, tc.b)
			if err != nil {
				t.Fatalf("RayMul: %v", err)
			}
			if got.Cmp(tc.want) != 0 {
				t.Errorf("RayMul(%s, %s) = %s, want %s", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestRayMulRejectsNegative(t *testing.T) {
	if _, err := RayMul(big.NewInt(-1), Ray); err != ErrNegativeValue {
		t.Errorf("got %v, want ErrNegativeValue", err)
	}
}

func TestRayDivByZero(t *testing.T) {
	if _, err := RayDiv(big.NewInt(1), big.NewInt(0)); err != ErrDivisionByZero {
		t.Errorf("got %v, want ErrDivisionByZero", err)
	}
}

func TestRayMulDivRoundTrip(t *testing.T) {
	// a -> rayDiv by index -> rayMul by index must not drift by more than
	// one unit for representative magnitudes.
	index := bi("1043672199563842291235712345678")
	amounts := []*big.Int{
		big.NewInt(1),
		big.NewInt(999),
		bi("1000000000000000000"),
		bi("123456789012345678901234567"),
	}
	for _, a := range amounts {
		scaled, err := RayDiv(a, index)
		if err != nil {
			t.Fatalf("RayDiv: %v", err)
		}
		back, err := RayMul(scaled, index)
		if err != nil {
			t.Fatalf("RayMul: %v", err)
		}
		diff := new(big.Int).Sub(back, a)
		diff.Abs(diff)
		if diff.Cmp(big.NewInt(1)) > 0 {
			t.Errorf("round trip of %s drifted by %s", a, diff)
		}
	}
}

func TestRayOverflow(t *testing.T) {
	huge := new(big.Int).Set(MaxValue)
	if _, err := RayMul(huge, huge); err != ErrOverflow {
		t.Errorf("got %v, want ErrOverflow", err)
	}
}

func TestPercentMul(t *testing.T) {
	cases := []struct {
		value      *big.Int
		percentage uint64
		want       *big.Int
	}{
		{big.NewInt(10_000), 5_000, big.NewInt(5_000)},
		{big.NewInt(10_000), 10_000, big.NewInt(10_000)},
		{big.NewInt(1), 5_000, big.NewInt(1)}, // 0.5 rounds up
		{big.NewInt(1), 4_999, big.NewInt(0)}, // below half
		{big.NewInt(100), 10_100, big.NewInt(101)},
	}
	for _, tc := range cases {
		got, err := PercentMul(tc.value, tc.percentage)
		if err != nil {
			t.Fatalf("PercentMul: %v", err)
		}
		if got.Cmp(tc.want) != 0 {
			t.Errorf("PercentMul(%s, %d) = %s, want %s", tc.value, tc.percentage, got, tc.want)
		}
	}
}

func TestPercentDivByZero(t *testing.T) {
	if _, err := PercentDiv(big.NewInt(100), 0); err != ErrDivisionByZero {
		t.Errorf("got %v, want ErrDivisionByZero", err)
	}
}

func TestScaledFromAmountNeverZero(t *testing.T) {
	index := new(big.Int).Mul(Ray, big.NewInt(1_000_000))
	scaled, err := ScaledFromAmount(big.NewInt(1), index)
	if err != nil {
		t.Fatalf("ScaledFromAmount: %v", err)
	}
	if scaled.Sign() == 0 {
		t.Error("nonzero amount produced zero scaled debt")
	}
}

func TestScaledFromAmountRoundsUp(t *testing.T) {
	// index = 1.5 ray, amount = 10 -> exact scaled = 6.66.., must round to 7
	index := new(big.Int).Add(Ray, HalfRay)
	scaled, err := ScaledFromAmount(big.NewInt(10), index)
	if err != nil {
		t.Fatalf("ScaledFromAmount: %v", err)
	}
	if scaled.Cmp(big.NewInt(7)) != 0 {
		t.Errorf("got %s, want 7", scaled)
	}
	// Conversion back never understates the original principal.
	back, err := AmountFromScaled(scaled, index)
	if err != nil {
		t.Fatalf("AmountFromScaled: %v", err)
	}
	if back.Cmp(big.NewInt(10)) < 0 {
		t.Errorf("debt %s understates principal 10", back)
	}
}

func TestLinearInterestZeroElapsed(t *testing.T) {
	factor, err := LinearInterest(big.NewInt(12345), 0)
	if err != nil {
		t.Fatalf("LinearInterest: %v", err)
	}
	if factor.Cmp(Ray) != 0 {
		t.Errorf("zero elapsed factor = %s, want ray", factor)
	}
}

func TestLinearInterestOneYear(t *testing.T) {
	// 5% APR over exactly one year yields factor 1.05 ray.
	rate, _ := PercentMul(Ray, 500)
	factor, err := LinearInterest(rate, SecondsPerYear)
	if err != nil {
		t.Fatalf("LinearInterest: %v", err)
	}
	want := new(big.Int).Add(Ray, rate)
	if factor.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", factor, want)
	}
}

func TestCompoundedInterestExceedsLinear(t *testing.T) {
	rate, _ := PercentMul(Ray, 2_000) // 20% APR
	elapsed := int64(SecondsPerYear / 2)

	linear, err := LinearInterest(rate, elapsed)
	if err != nil {
		t.Fatalf("LinearInterest: %v", err)
	}
	compounded, err := CompoundedInterest(rate, elapsed)
	if err != nil {
		t.Fatalf("CompoundedInterest: %v", err)
	}
	if compounded.Cmp(linear) <= 0 {
		t.Errorf("compounded %s not above linear %s", compounded, linear)
	}
}

func TestCompoundedInterestMonotone(t *testing.T) {
	rate, _ := PercentMul(Ray, 1_000)
	prev := new(big.Int).Set(Ray)
	for _, elapsed := range []int64{1, 60, 3_600, 86_400, SecondsPerYear} {
		factor, err := CompoundedInterest(rate, elapsed)
		if err != nil {
			t.Fatalf("CompoundedInterest(%d): %v", elapsed, err)
		}
		if factor.Cmp(prev) < 0 {
			t.Errorf("factor decreased at elapsed=%d: %s < %s", elapsed, factor, prev)
		}
		prev = factor
	}
}
