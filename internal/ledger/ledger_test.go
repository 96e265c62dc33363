package ledger_test

import (
	"math/big"
	"testing"

	"NFTLend/internal/ledger"

	"github.com/google/uuid"
)

func amt(v int64) *big.Int {
	return big.NewInt(v)
}

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_UserPath(t *testing.T) {
	userID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	assetID, _ := ledger.GetAssetID("WETH")
	key := ledger.NewUserAccountKey(userID, ledger.SubTypeCash, assetID)

	path := key.AccountPath()
	expected := "user:550e8400-e29b-41d4-a716-446655440000:cash:WETH"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_PoolPath(t *testing.T) {
	assetID, _ := ledger.GetAssetID("WETH")
	key := ledger.NewPoolAccountKey(assetID)

	path := key.AccountPath()
	if path != "system:pool:WETH" {
		t.Errorf("got %q, want %q", path, "system:pool:WETH")
	}
}

func TestAccountKey_ExternalPath(t *testing.T) {
	assetID, _ := ledger.GetAssetID("WETH")
	key := ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, assetID)

	path := key.AccountPath()
	if path != "external:deposits:WETH" {
		t.Errorf("got %q, want %q", path, "external:deposits:WETH")
	}
}

func TestGetAssetID_Known(t *testing.T) {
	id, ok := ledger.GetAssetID("WETH")
	if !ok {
		t.Fatal("WETH should be a known asset")
	}
	if id == 0 {
		t.Error("WETH asset ID should be non-zero")
	}
}

func TestGetAssetID_Unknown(t *testing.T) {
	_, ok := ledger.GetAssetID("DOGE")
	if ok {
		t.Error("DOGE should not be a known asset")
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func depositJournal(userID uuid.UUID, assetID ledger.AssetID, amount int64) ledger.Journal {
	return ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewUserAccountKey(userID, ledger.SubTypeCash, assetID),
		CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, assetID),
		AssetID:       assetID,
		Amount:        amt(amount),
	}
}

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("WETH")

	balance := bt.GetUserCashBalance(userID, assetID)
	if balance.Sign() != 0 {
		t.Errorf("initial balance should be 0, got %s", balance)
	}
}

func TestBalanceTracker_ApplyJournal(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("WETH")

	bt.ApplyJournal(depositJournal(userID, assetID, 1_000_000))

	cash := bt.GetUserCashBalance(userID, assetID)
	if cash.Cmp(amt(1_000_000)) != 0 {
		t.Errorf("cash: got %s, want 1_000_000", cash)
	}
}

func TestBalanceTracker_GlobalBalanceZeroSum(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("WETH")

	bt.ApplyJournal(depositJournal(userID, assetID, 1_000_000))

	// Lock part of the cash into bid escrow
	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewUserAccountKey(userID, ledger.SubTypeBidEscrow, assetID),
		CreditAccount: ledger.NewUserAccountKey(userID, ledger.SubTypeCash, assetID),
		AssetID:       assetID,
		Amount:        amt(300_000),
	})

	totals := bt.ComputeGlobalBalance()
	for aid, total := range totals {
		if total.Sign() != 0 {
			t.Errorf("asset %d has non-zero global balance: %s", aid, total)
		}
	}
}

func TestBalanceTracker_ValidateSufficientCash(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("WETH")

	// No balance — should fail
	if err := bt.ValidateSufficientCash(userID, assetID, amt(100)); err == nil {
		t.Error("expected error for insufficient balance")
	}

	bt.ApplyJournal(depositJournal(userID, assetID, 1_000))

	if err := bt.ValidateSufficientCash(userID, assetID, amt(1_000)); err != nil {
		t.Errorf("should have sufficient balance: %v", err)
	}

	if err := bt.ValidateSufficientCash(userID, assetID, amt(1_001)); err == nil {
		t.Error("expected error for 1_001 > 1_000")
	}
}

func TestBalanceTracker_Snapshot(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("WETH")

	bt.ApplyJournal(depositJournal(userID, assetID, 999))

	snap := bt.Snapshot()
	if len(snap) == 0 {
		t.Fatal("snapshot should not be empty")
	}

	// Mutating snapshot should not affect tracker
	for k := range snap {
		snap[k].SetInt64(0)
	}

	if bt.GetUserCashBalance(userID, assetID).Cmp(amt(999)) != 0 {
		t.Error("tracker balance should not be affected by snapshot mutation")
	}
}

// ============================================================================
// Test: Batch Validation
// ============================================================================

func TestBatchValidate_EmptyBatch_Fails(t *testing.T) {
	batch := &ledger.Batch{
		BatchID:  uuid.New(),
		Journals: []ledger.Journal{},
	}

	if err := batch.Validate(); err == nil {
		t.Error("empty batch should fail validation")
	}
}

func TestBatchValidate_ZeroAmount_Fails(t *testing.T) {
	batchID := uuid.New()
	assetID, _ := ledger.GetAssetID("WETH")

	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  ledger.NewUserAccountKey(uuid.New(), ledger.SubTypeCash, assetID),
				CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, assetID),
				AssetID:       assetID,
				Amount:        amt(0),
			},
		},
	}

	if err := batch.Validate(); err == nil {
		t.Error("zero amount should fail validation")
	}
}

func TestBatchValidate_NilAmount_Fails(t *testing.T) {
	batchID := uuid.New()
	assetID, _ := ledger.GetAssetID("WETH")

	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  ledger.NewUserAccountKey(uuid.New(), ledger.SubTypeCash, assetID),
				CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, assetID),
				AssetID:       assetID,
				Amount:        nil,
			},
		},
	}

	if err := batch.Validate(); err == nil {
		t.Error("nil amount should fail validation")
	}
}

func TestBatchValidate_SelfTransfer_Fails(t *testing.T) {
	batchID := uuid.New()
	assetID, _ := ledger.GetAssetID("WETH")
	sameAccount := ledger.NewUserAccountKey(uuid.New(), ledger.SubTypeCash, assetID)

	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  sameAccount,
				CreditAccount: sameAccount,
				AssetID:       assetID,
				Amount:        amt(100),
			},
		},
	}

	if err := batch.Validate(); err == nil {
		t.Error("self-transfer should fail validation")
	}
}

func TestBatchValidate_MismatchedBatchID_Fails(t *testing.T) {
	batchID := uuid.New()
	assetID, _ := ledger.GetAssetID("WETH")

	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       uuid.New(), // Different batch ID
				DebitAccount:  ledger.NewUserAccountKey(uuid.New(), ledger.SubTypeCash, assetID),
				CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, assetID),
				AssetID:       assetID,
				Amount:        amt(100),
			},
		},
	}

	if err := batch.Validate(); err == nil {
		t.Error("mismatched batch ID should fail validation")
	}
}

// ============================================================================
// Test: JournalGenerator
// ============================================================================

func fundedTracker(t *testing.T, userID uuid.UUID, assetID ledger.AssetID, amount int64) *ledger.BalanceTracker {
	t.Helper()
	bt := ledger.NewBalanceTracker()
	bt.ApplyJournal(depositJournal(userID, assetID, amount))
	return bt
}

func TestGenerator_BorrowRequiresLiquidity(t *testing.T) {
	borrower := uuid.New()
	assetID, _ := ledger.GetAssetID("WETH")
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt)

	// Empty pool — borrow must be rejected
	if _, err := jg.GenerateBorrow(borrower, "loan-1", amt(1_000), assetID, 0); err == nil {
		t.Error("borrow against empty pool should fail")
	}

	// Fund the pool via a supply
	supplier := uuid.New()
	bt.ApplyJournal(depositJournal(supplier, assetID, 10_000))
	supplyBatch, err := jg.GenerateSupply(supplier, "supply-1", amt(10_000), assetID, 0)
	if err != nil {
		t.Fatalf("GenerateSupply: %v", err)
	}
	if err := bt.ApplyBatch(supplyBatch); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}

	borrowBatch, err := jg.GenerateBorrow(borrower, "loan-1", amt(1_000), assetID, 0)
	if err != nil {
		t.Fatalf("GenerateBorrow: %v", err)
	}
	if err := bt.ApplyBatch(borrowBatch); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}

	if got := bt.GetUserCashBalance(borrower, assetID); got.Cmp(amt(1_000)) != 0 {
		t.Errorf("borrower cash = %s, want 1000", got)
	}
	if got := bt.GetPoolLiquidity(assetID); got.Cmp(amt(9_000)) != 0 {
		t.Errorf("pool liquidity = %s, want 9000", got)
	}
}

func TestGenerator_BidLockRefundsPreviousBidder(t *testing.T) {
	assetID, _ := ledger.GetAssetID("WETH")
	first := uuid.New()
	second := uuid.New()

	bt := ledger.NewBalanceTracker()
	bt.ApplyJournal(depositJournal(first, assetID, 5_000))
	bt.ApplyJournal(depositJournal(second, assetID, 6_000))
	jg := ledger.NewJournalGenerator(1, bt)

	firstBatch, err := jg.GenerateBidLock(first, "loan-1:bid-1", amt(5_000), nil, nil, assetID, 0)
	if err != nil {
		t.Fatalf("first bid: %v", err)
	}
	if err := bt.ApplyBatch(firstBatch); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}

	secondBatch, err := jg.GenerateBidLock(second, "loan-1:bid-2", amt(6_000), &first, amt(5_000), assetID, 0)
	if err != nil {
		t.Fatalf("second bid: %v", err)
	}
	if len(secondBatch.Journals) != 2 {
		t.Fatalf("outbid batch should carry lock + refund, got %d journals", len(secondBatch.Journals))
	}
	if err := bt.ApplyBatch(secondBatch); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}

	// First bidder made whole, second bidder locked
	if got := bt.GetUserCashBalance(first, assetID); got.Cmp(amt(5_000)) != 0 {
		t.Errorf("first bidder cash = %s, want 5000", got)
	}
	if got := bt.GetUserBidEscrow(first, assetID); got.Sign() != 0 {
		t.Errorf("first bidder escrow = %s, want 0", got)
	}
	if got := bt.GetUserBidEscrow(second, assetID); got.Cmp(amt(6_000)) != 0 {
		t.Errorf("second bidder escrow = %s, want 6000", got)
	}
}

func TestGenerator_LiquidationSettlementSplit(t *testing.T) {
	assetID, _ := ledger.GetAssetID("WETH")
	winner := uuid.New()
	borrower := uuid.New()
	caller := uuid.New()

	bt := fundedTracker(t, winner, assetID, 10_000)
	jg := ledger.NewJournalGenerator(1, bt)

	bidBatch, err := jg.GenerateBidLock(winner, "loan-1:bid-1", amt(10_000), nil, nil, assetID, 0)
	if err != nil {
		t.Fatalf("bid: %v", err)
	}
	if err := bt.ApplyBatch(bidBatch); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}

	// Debt 8000, reward 200, surplus 1800
	split := ledger.LiquidationSplit{
		WinnerID:            winner,
		BorrowerID:          borrower,
		CallerID:            caller,
		DebtFromEscrow:      amt(8_000),
		ShortfallFromCaller: amt(0),
		RewardToVault:       amt(200),
		SurplusToBorrower:   amt(1_800),
	}

	batch, err := jg.GenerateLiquidationSettlement(split, "loan-1:liquidate", amt(10_000), assetID, 0)
	if err != nil {
		t.Fatalf("GenerateLiquidationSettlement: %v", err)
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}

	if got := bt.GetUserBidEscrow(winner, assetID); got.Sign() != 0 {
		t.Errorf("winner escrow = %s, want 0 after settlement", got)
	}
	if got := bt.GetPoolLiquidity(assetID); got.Cmp(amt(8_000)) != 0 {
		t.Errorf("pool = %s, want 8000", got)
	}
	if got := bt.GetVaultBalance(assetID); got.Cmp(amt(200)) != 0 {
		t.Errorf("vault = %s, want 200", got)
	}
	if got := bt.GetUserCashBalance(borrower, assetID); got.Cmp(amt(1_800)) != 0 {
		t.Errorf("borrower surplus = %s, want 1800", got)
	}

	v := ledger.NewInvariantValidator(bt)
	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("ledger not zero-sum after settlement: %v", err)
	}
}

func TestGenerator_LiquidationSplitMustConsumeBid(t *testing.T) {
	assetID, _ := ledger.GetAssetID("WETH")
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt)

	split := ledger.LiquidationSplit{
		WinnerID:            uuid.New(),
		BorrowerID:          uuid.New(),
		CallerID:            uuid.New(),
		DebtFromEscrow:      amt(5_000),
		ShortfallFromCaller: amt(0),
		RewardToVault:       amt(0),
		SurplusToBorrower:   amt(0),
	}

	if _, err := jg.GenerateLiquidationSettlement(split, "loan-1:liquidate", amt(10_000), assetID, 0); err == nil {
		t.Error("split leaving bid unconsumed should fail")
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator_GlobalBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("empty ledger should have zero global balance: %v", err)
	}

	assetID, _ := ledger.GetAssetID("WETH")
	bt.ApplyJournal(depositJournal(uuid.New(), assetID, 1_000_000))

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("balanced ledger should have zero global balance: %v", err)
	}
}
