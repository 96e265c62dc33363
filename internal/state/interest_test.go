package state_test

import (
	"math/big"
	"testing"

	fpmath "NFTLend/internal/math"
	"NFTLend/internal/state"

	"github.com/google/uuid"
)

func rayFraction(t *testing.T, num, den int64) *big.Int {
	t.Helper()
	v := new(big.Int).Mul(fpmath.Ray, big.NewInt(num))
	return v.Quo(v, big.NewInt(den))
}

func testReserveConfig() state.ReserveConfig {
	return state.ReserveConfig{
		Active:           true,
		BorrowingEnabled: true,
		Decimals:         18,
		ReserveFactor:    1_000, // 10%
	}
}

// ===== Test: Kinked rate curve =====

func TestKinkedStrategy_RatesAtKeyPoints(t *testing.T) {
	s := state.DefaultRateStrategy()

	// Zero utilization: borrow rate is the base rate, liquidity rate zero.
	liq, borrow, err := s.Rates(new(big.Int), 0)
	if err != nil {
		t.Fatalf("Rates failed: %v", err)
	}
	if borrow.Sign() != 0 || liq.Sign() != 0 {
		t.Errorf("expected zero rates at zero utilization, got liq=%s borrow=%s", liq, borrow)
	}

	// At the kink (80%): borrow = base + slope1 = 4%.
	_, borrow, err = s.Rates(rayFraction(t, 8, 10), 0)
	if err != nil {
		t.Fatalf("Rates failed: %v", err)
	}
	want := rayFraction(t, 4, 100)
	if borrow.Cmp(want) != 0 {
		t.Errorf("borrow rate at kink: got %s, want %s", borrow, want)
	}

	// Halfway past the kink (90%): borrow = 4% + 60% * 0.5 = 34%.
	_, borrow, err = s.Rates(rayFraction(t, 9, 10), 0)
	if err != nil {
		t.Fatalf("Rates failed: %v", err)
	}
	want = rayFraction(t, 34, 100)
	if borrow.Cmp(want) != 0 {
		t.Errorf("borrow rate past kink: got %s, want %s", borrow, want)
	}
}

func TestKinkedStrategy_ReserveFactorCutsLiquidityRate(t *testing.T) {
	s := state.DefaultRateStrategy()
	u := rayFraction(t, 8, 10)

	liqFull, borrow, err := s.Rates(u, 0)
	if err != nil {
		t.Fatalf("Rates failed: %v", err)
	}
	liqCut, _, err := s.Rates(u, 1_000)
	if err != nil {
		t.Fatalf("Rates failed: %v", err)
	}

	// liquidityRate = borrow * u * (1 - rf); with rf=10% it is 90% of full.
	wantFull, err := fpmath.RayMul(borrow, u)
	if err != nil {
		t.Fatalf("RayMul failed: %v", err)
	}
	if liqFull.Cmp(wantFull) != 0 {
		t.Errorf("liquidity rate without fee: got %s, want %s", liqFull, wantFull)
	}
	wantCut, err := fpmath.PercentMul(wantFull, 9_000)
	if err != nil {
		t.Fatalf("PercentMul failed: %v", err)
	}
	if liqCut.Cmp(wantCut) != 0 {
		t.Errorf("liquidity rate with 10%% fee: got %s, want %s", liqCut, wantCut)
	}
}

func TestKinkedStrategy_Validate(t *testing.T) {
	bad := &state.KinkedRateStrategy{
		BaseRate:           big.NewInt(0),
		Slope1:             big.NewInt(0),
		Slope2:             big.NewInt(0),
		OptimalUtilization: new(big.Int).Set(fpmath.Ray), // must be < 1
	}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for optimal utilization of 1")
	}
	if err := state.DefaultRateStrategy().Validate(); err != nil {
		t.Errorf("default strategy should validate: %v", err)
	}
}

// ===== Test: Reserve accrual =====

func TestReserve_UpdateStateIdempotent(t *testing.T) {
	r, err := state.NewReserveData("WETH", testReserveConfig(), state.DefaultRateStrategy())
	if err != nil {
		t.Fatalf("NewReserveData failed: %v", err)
	}
	borrower := uuid.New()
	if err := r.DebtBook.Mint(borrower, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if err := r.UpdateInterestRates(big.NewInt(1_000_000)); err != nil {
		t.Fatalf("UpdateInterestRates failed: %v", err)
	}

	if err := r.UpdateState(31_536_000); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	liqIdx := new(big.Int).Set(r.LiquidityIndex)
	borrowIdx := new(big.Int).Set(r.VariableBorrowIndex)

	if borrowIdx.Cmp(fpmath.Ray) <= 0 {
		t.Error("borrow index should grow with outstanding debt")
	}
	if liqIdx.Cmp(fpmath.Ray) <= 0 {
		t.Error("liquidity index should grow with outstanding debt")
	}

	// Second call at the same instant changes nothing.
	if err := r.UpdateState(31_536_000); err != nil {
		t.Fatalf("repeated UpdateState failed: %v", err)
	}
	if r.LiquidityIndex.Cmp(liqIdx) != 0 || r.VariableBorrowIndex.Cmp(borrowIdx) != 0 {
		t.Error("UpdateState at the same instant must not move the indexes")
	}

	// Time never runs backward.
	if err := r.UpdateState(1); err == nil {
		t.Error("expected error for timestamp before last update")
	}
}

func TestReserve_UpdateStateNoDebtAdvancesClockOnly(t *testing.T) {
	r, err := state.NewReserveData("USDC", testReserveConfig(), state.DefaultRateStrategy())
	if err != nil {
		t.Fatalf("NewReserveData failed: %v", err)
	}
	if err := r.UpdateState(1_000); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if r.LastUpdateTimestamp != 1_000 {
		t.Errorf("expected timestamp 1000, got %d", r.LastUpdateTimestamp)
	}
	if r.LiquidityIndex.Cmp(fpmath.Ray) != 0 || r.VariableBorrowIndex.Cmp(fpmath.Ray) != 0 {
		t.Error("indexes must stay at ray with zero debt")
	}
}

func TestReserve_CompoundingBeatsLinearOverTime(t *testing.T) {
	r, err := state.NewReserveData("WETH", testReserveConfig(), state.DefaultRateStrategy())
	if err != nil {
		t.Fatalf("NewReserveData failed: %v", err)
	}
	if err := r.DebtBook.Mint(uuid.New(), big.NewInt(1_000_000)); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	// 90% utilization puts the borrow rate well past the supply rate.
	if err := r.UpdateInterestRates(big.NewInt(111_112)); err != nil {
		t.Fatalf("UpdateInterestRates failed: %v", err)
	}
	if r.CurrentBorrowRate.Cmp(r.CurrentLiquidityRate) <= 0 {
		t.Fatal("borrow rate should exceed liquidity rate")
	}

	prev := new(big.Int).Set(r.VariableBorrowIndex)
	for i := int64(1); i <= 4; i++ {
		if err := r.UpdateState(i * 7_884_000); err != nil {
			t.Fatalf("UpdateState failed at step %d: %v", i, err)
		}
		if r.VariableBorrowIndex.Cmp(prev) <= 0 {
			t.Fatalf("borrow index not monotone at step %d", i)
		}
		prev.Set(r.VariableBorrowIndex)
	}
}

func TestReserve_TreasuryAccrual(t *testing.T) {
	r, err := state.NewReserveData("WETH", testReserveConfig(), state.DefaultRateStrategy())
	if err != nil {
		t.Fatalf("NewReserveData failed: %v", err)
	}
	if err := r.DebtBook.Mint(uuid.New(), big.NewInt(1_000_000_000)); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if err := r.UpdateInterestRates(big.NewInt(1_000_000_000)); err != nil {
		t.Fatalf("UpdateInterestRates failed: %v", err)
	}

	if r.SupplyBook.ScaledBalance(state.TreasuryEntityID).Sign() != 0 {
		t.Fatal("treasury should start empty")
	}
	if err := r.UpdateState(31_536_000); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if r.SupplyBook.ScaledBalance(state.TreasuryEntityID).Sign() <= 0 {
		t.Error("treasury should receive its share of accrued interest")
	}
}

func TestReserveManager_ConfigUpdateValidation(t *testing.T) {
	rm := state.NewReserveManager()
	if _, err := rm.CreateReserve("WETH", testReserveConfig(), state.DefaultRateStrategy()); err != nil {
		t.Fatalf("CreateReserve failed: %v", err)
	}
	if _, err := rm.CreateReserve("WETH", testReserveConfig(), state.DefaultRateStrategy()); err == nil {
		t.Error("expected error for duplicate reserve")
	}

	bad := testReserveConfig()
	bad.ReserveFactor = 10_000
	if err := rm.ApplyConfigUpdate("WETH", bad, nil); err == nil {
		t.Error("expected error for reserve factor of 100%")
	}

	bad = testReserveConfig()
	bad.Decimals = 0
	if err := rm.ApplyConfigUpdate("WETH", bad, nil); err == nil {
		t.Error("expected error for zero decimals")
	}

	good := testReserveConfig()
	good.Frozen = true
	if err := rm.ApplyConfigUpdate("WETH", good, state.DefaultRateStrategy()); err != nil {
		t.Errorf("valid config update failed: %v", err)
	}
	r, _ := rm.GetReserve("WETH")
	if !r.Config.Frozen {
		t.Error("config update not applied")
	}
}

// ===== Test: Scaled book =====

func TestScaledBook_BurnUnderflow(t *testing.T) {
	sb := state.NewScaledBook()
	holder := uuid.New()

	if err := sb.Mint(holder, big.NewInt(100)); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if err := sb.Burn(holder, big.NewInt(101)); err == nil {
		t.Error("expected error burning more than the balance")
	}
	if err := sb.Burn(holder, big.NewInt(100)); err != nil {
		t.Fatalf("Burn failed: %v", err)
	}
	if sb.TotalScaled().Sign() != 0 {
		t.Errorf("expected empty book, total %s", sb.TotalScaled())
	}
	if err := sb.Mint(holder, big.NewInt(0)); err == nil {
		t.Error("expected error minting zero")
	}
}
