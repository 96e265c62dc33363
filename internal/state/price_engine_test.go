package state_test

import (
	"math/big"
	"testing"

	"NFTLend/internal/state"

	"github.com/google/uuid"
)

func testNftConfig() state.NftConfig {
	return state.NftConfig{
		Active:                true,
		LTV:                   3_000,
		LiquidationThreshold:  9_000,
		LiquidatePricePercent: 9_500,
		AuctionDurationHours:  24,
	}
}

// ===== Test: NFT config validation =====

func TestValidateNftConfig(t *testing.T) {
	cases := []struct {
		name   string
		mut    func(*state.NftConfig)
		wantOK bool
	}{
		{"valid", func(c *state.NftConfig) {}, true},
		{"ltv over 16 bits", func(c *state.NftConfig) { c.LTV = 65_536 }, false},
		{"threshold over 16 bits", func(c *state.NftConfig) { c.LiquidationThreshold = 70_000 }, false},
		{"ltv above threshold", func(c *state.NftConfig) { c.LTV = 9_500 }, false},
		{"liquidate price below threshold", func(c *state.NftConfig) { c.LiquidatePricePercent = 8_000 }, false},
		{"zero auction duration", func(c *state.NftConfig) { c.AuctionDurationHours = 0 }, false},
		{"auction duration over 8 bits", func(c *state.NftConfig) { c.AuctionDurationHours = 256 }, false},
		{"max auction duration", func(c *state.NftConfig) { c.AuctionDurationHours = 255 }, true},
		{"inverted token window", func(c *state.NftConfig) { c.MinTokenID = 10; c.MaxTokenID = 5 }, false},
		{"unbounded token window", func(c *state.NftConfig) { c.MinTokenID = 10; c.MaxTokenID = 0 }, true},
	}
	for _, tc := range cases {
		cfg := testNftConfig()
		tc.mut(&cfg)
		err := state.ValidateNftConfig(&cfg)
		if tc.wantOK && err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
		}
		if !tc.wantOK && err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestNftManager_WrapCollateral(t *testing.T) {
	nm := state.NewNftManager()
	if _, err := nm.CreateCollection("BAYC", testNftConfig()); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}

	borrower := uuid.New()
	key := state.NftKey{Asset: "BAYC", TokenID: 1}
	if err := nm.WrapCollateral(key, borrower); err != nil {
		t.Fatalf("WrapCollateral failed: %v", err)
	}
	if err := nm.WrapCollateral(key, uuid.New()); err == nil {
		t.Error("expected error wrapping an already-pledged token")
	}
	if owner, ok := nm.WrappedBy(key); !ok || owner != borrower {
		t.Error("wrapped registry should record the pledging borrower")
	}
	if err := nm.UnwrapCollateral(key); err != nil {
		t.Fatalf("UnwrapCollateral failed: %v", err)
	}
	if _, ok := nm.WrappedBy(key); ok {
		t.Error("token should be free after unwrap")
	}
}

// ===== Test: Price engine =====

func TestPriceEngine_StaleSequenceSkipped(t *testing.T) {
	pe := state.NewPriceEngine(21_600)

	if err := pe.UpdateNftPrice("BAYC", big.NewInt(100), 5, 1_000); err != nil {
		t.Fatalf("UpdateNftPrice failed: %v", err)
	}
	// Out-of-order oracle ticks are dropped, not applied.
	if err := pe.UpdateNftPrice("BAYC", big.NewInt(999), 4, 1_100); err != nil {
		t.Fatalf("stale update should be silently skipped: %v", err)
	}
	price, ok := pe.GetNftPrice("BAYC")
	if !ok || price.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("expected latest price 100, got %s", price)
	}
}

// Two-tier liquidation gate: a loan whose debt exceeds the current
// threshold but not the windowed-highest threshold is open for voluntary
// bids yet cannot be forced into auction until the window decays.
func TestPriceEngine_TwoTierLiquidationGate(t *testing.T) {
	pe := state.NewPriceEngine(21_600)

	cfg := testReserveConfig()
	cfg.Decimals = 2
	reserve, err := state.NewReserveData("WETH", cfg, state.DefaultRateStrategy())
	if err != nil {
		t.Fatalf("NewReserveData failed: %v", err)
	}
	// Price 100 with 2 decimals makes reserve units 1:1 with the reference
	// currency.
	if err := pe.UpdateReservePrice("WETH", big.NewInt(100), 1, 900); err != nil {
		t.Fatalf("UpdateReservePrice failed: %v", err)
	}

	nft := &state.NftData{Asset: "BAYC", Config: testNftConfig()}

	// Floor was 133 earlier in the window, then dropped to 100.
	if err := pe.UpdateNftPrice("BAYC", big.NewInt(133), 1, 1_000); err != nil {
		t.Fatalf("UpdateNftPrice failed: %v", err)
	}
	if err := pe.UpdateNftPrice("BAYC", big.NewInt(100), 2, 2_000); err != nil {
		t.Fatalf("UpdateNftPrice failed: %v", err)
	}

	loan := &state.LoanData{
		LoanID:       1,
		State:        state.LoanStateActive,
		NftAsset:     "BAYC",
		NftTokenID:   1,
		ReserveAsset: "WETH",
		ScaledAmount: big.NewInt(100), // debt 100 at index 1.0
	}

	data, err := pe.CalculateLoanLiquidatePrice(loan, reserve, nft, 3_000)
	if err != nil {
		t.Fatalf("CalculateLoanLiquidatePrice failed: %v", err)
	}
	if data.BorrowAmount.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("debt in reference currency: got %s, want 100", data.BorrowAmount)
	}
	if data.ThresholdPrice.Cmp(big.NewInt(90)) != 0 {
		t.Errorf("threshold: got %s, want 90", data.ThresholdPrice)
	}
	if data.HighestThresholdPrice.Cmp(big.NewInt(120)) != 0 {
		t.Errorf("highest threshold: got %s, want 120", data.HighestThresholdPrice)
	}
	if data.LiquidatePrice.Cmp(big.NewInt(95)) != 0 {
		t.Errorf("liquidate price: got %s, want 95", data.LiquidatePrice)
	}

	// Debt 100 > threshold 90: anyone may bid. Debt 100 <= highest 120: no
	// forced auction while the higher print is still in the window.
	if !state.IsAuctionEligible(data) {
		t.Error("loan should be open for voluntary bids")
	}
	if state.IsForcedAuction(loan, data, 7_200, 3_000) {
		t.Error("loan must not be force-auctioned while the windowed threshold holds")
	}

	// Once the 133 print ages out of the window, the highest threshold
	// collapses to the current one and the forced path opens.
	later := int64(2_000 + 21_600 + 1)
	data, err = pe.CalculateLoanLiquidatePrice(loan, reserve, nft, later)
	if err != nil {
		t.Fatalf("CalculateLoanLiquidatePrice failed: %v", err)
	}
	if data.HighestThresholdPrice.Cmp(big.NewInt(90)) != 0 {
		t.Errorf("decayed highest threshold: got %s, want 90", data.HighestThresholdPrice)
	}
	if !state.IsForcedAuction(loan, data, 7_200, later) {
		t.Error("loan should be force-auctionable after the window decays")
	}

	// A partial cure buys the borrower a grace period.
	loan.IsLiquidate = true
	loan.RepayTime = later
	if state.IsForcedAuction(loan, data, 7_200, later+7_200) {
		t.Error("grace period must hold off the forced auction")
	}
	if !state.IsForcedAuction(loan, data, 7_200, later+7_201) {
		t.Error("expired grace must reopen the forced auction")
	}
}

func TestPriceEngine_FromReferenceRoundsUp(t *testing.T) {
	pe := state.NewPriceEngine(21_600)
	cfg := testReserveConfig()
	cfg.Decimals = 2
	reserve, err := state.NewReserveData("WETH", cfg, state.DefaultRateStrategy())
	if err != nil {
		t.Fatalf("NewReserveData failed: %v", err)
	}
	if err := pe.UpdateReservePrice("WETH", big.NewInt(300), 1, 100); err != nil {
		t.Fatalf("UpdateReservePrice failed: %v", err)
	}

	// 100 ref * 10^2 / 300 = 33.33..., rounded up to 34 reserve units.
	units, err := pe.FromReference(reserve, big.NewInt(100))
	if err != nil {
		t.Fatalf("FromReference failed: %v", err)
	}
	if units.Cmp(big.NewInt(34)) != 0 {
		t.Errorf("FromReference: got %s, want 34", units)
	}

	// Converting back never understates the obligation.
	ref, err := pe.ToReference(reserve, units)
	if err != nil {
		t.Fatalf("ToReference failed: %v", err)
	}
	if ref.Cmp(big.NewInt(100)) < 0 {
		t.Errorf("round trip lost value: %s < 100", ref)
	}
}

// ===== Test: Protocol params =====

func TestValidateProtocolParams(t *testing.T) {
	good := state.DefaultProtocolParams()
	if err := state.ValidateProtocolParams(&good); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	p := state.DefaultProtocolParams()
	p.MinBidDeltaPercent = 10_000 // must demand a real increase
	if err := state.ValidateProtocolParams(&p); err == nil {
		t.Error("expected error for min bid delta of exactly 100%")
	}

	p = state.DefaultProtocolParams()
	p.BidRewardRatePercent = 10_000
	if err := state.ValidateProtocolParams(&p); err == nil {
		t.Error("expected error for bid reward rate of 100%")
	}

	p = state.DefaultProtocolParams()
	p.HighestPriceWindowSeconds = 0
	if err := state.ValidateProtocolParams(&p); err == nil {
		t.Error("expected error for zero price window")
	}
}
