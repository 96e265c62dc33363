package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"NFTLend/internal/event"
	"NFTLend/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseDeposit(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id":   "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"asset":        "WETH",
		"amount":       "1000000000000000000",
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "Deposit")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	dep, ok := evt.(*event.Deposit)
	if !ok {
		t.Fatalf("expected *event.Deposit, got %T", evt)
	}

	if dep.Asset != "WETH" {
		t.Errorf("asset: got %s, want WETH", dep.Asset)
	}
	if dep.Amount.String() != "1000000000000000000" {
		t.Errorf("amount: got %s, want 1000000000000000000", dep.Amount)
	}
	if dep.Sequence != 1 {
		t.Errorf("sequence: got %d, want 1", dep.Sequence)
	}
	if dep.EventType() != event.EventTypeDeposit {
		t.Errorf("event type: got %v, want Deposit", dep.EventType())
	}
}

func TestParseBorrow(t *testing.T) {
	payload := map[string]interface{}{
		"borrow_id":    "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"asset":        "WETH",
		"amount":       "250000000000000000000",
		"nft_asset":    "BAYC",
		"nft_token_id": uint64(1234),
		"sequence":     int64(7),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "Borrow")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	b, ok := evt.(*event.Borrow)
	if !ok {
		t.Fatalf("expected *event.Borrow, got %T", evt)
	}

	if b.NftAsset != "BAYC" {
		t.Errorf("nft_asset: got %s, want BAYC", b.NftAsset)
	}
	if b.NftTokenID != 1234 {
		t.Errorf("nft_token_id: got %d, want 1234", b.NftTokenID)
	}
	if b.Amount.String() != "250000000000000000000" {
		t.Errorf("amount: got %s, want 250000000000000000000", b.Amount)
	}
	// on_behalf_of omitted: defaults to the borrower
	if b.OnBehalfOf != b.UserID {
		t.Errorf("on_behalf_of: got %s, want %s", b.OnBehalfOf, b.UserID)
	}
}

func TestParseBorrow_OnBehalfOf(t *testing.T) {
	payload := map[string]interface{}{
		"borrow_id":    "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"on_behalf_of": "770e8400-e29b-41d4-a716-446655440002",
		"asset":        "WETH",
		"amount":       "100",
		"nft_asset":    "BAYC",
		"nft_token_id": uint64(1),
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "Borrow")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	b := evt.(*event.Borrow)
	if b.OnBehalfOf == b.UserID {
		t.Error("on_behalf_of should differ from user_id when set explicitly")
	}
	if b.OnBehalfOf.String() != "770e8400-e29b-41d4-a716-446655440002" {
		t.Errorf("on_behalf_of: got %s", b.OnBehalfOf)
	}
}

func TestParseBatchBorrow(t *testing.T) {
	payload := map[string]interface{}{
		"batch_id":      "550e8400-e29b-41d4-a716-446655440000",
		"user_id":       "660e8400-e29b-41d4-a716-446655440001",
		"assets":        []string{"WETH", "USDC"},
		"amounts":       []string{"100", "200"},
		"nft_assets":    []string{"BAYC", "AZUKI"},
		"nft_token_ids": []uint64{1, 2},
		"sequence":      int64(3),
		"timestamp_us":  int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "BatchBorrow")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	bb, ok := evt.(*event.BatchBorrow)
	if !ok {
		t.Fatalf("expected *event.BatchBorrow, got %T", evt)
	}

	if len(bb.Amounts) != 2 {
		t.Fatalf("amounts: got %d legs, want 2", len(bb.Amounts))
	}
	if bb.Amounts[1].String() != "200" {
		t.Errorf("amounts[1]: got %s, want 200", bb.Amounts[1])
	}
	if bb.NftAssets[1] != "AZUKI" {
		t.Errorf("nft_assets[1]: got %s, want AZUKI", bb.NftAssets[1])
	}
}

func TestParseAuctionBid(t *testing.T) {
	payload := map[string]interface{}{
		"bid_id":       "550e8400-e29b-41d4-a716-446655440000",
		"bidder_id":    "660e8400-e29b-41d4-a716-446655440001",
		"nft_asset":    "BAYC",
		"nft_token_id": uint64(42),
		"bid_price":    "305000000000000000000",
		"sequence":     int64(9),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "AuctionBid")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	bid, ok := evt.(*event.AuctionBid)
	if !ok {
		t.Fatalf("expected *event.AuctionBid, got %T", evt)
	}

	if bid.BidPrice.String() != "305000000000000000000" {
		t.Errorf("bid_price: got %s", bid.BidPrice)
	}
	if bid.OnBehalfOf != bid.BidderID {
		t.Errorf("on_behalf_of: got %s, want bidder %s", bid.OnBehalfOf, bid.BidderID)
	}
}

func TestParseLiquidate_OptionalExtraDebt(t *testing.T) {
	payload := map[string]interface{}{
		"liquidate_id": "550e8400-e29b-41d4-a716-446655440000",
		"caller_id":    "660e8400-e29b-41d4-a716-446655440001",
		"nft_asset":    "BAYC",
		"nft_token_id": uint64(42),
		"sequence":     int64(11),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "Liquidate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	liq := evt.(*event.Liquidate)
	if liq.ExtraDebtAmount != nil {
		t.Errorf("extra_debt_amount: got %s, want nil", liq.ExtraDebtAmount)
	}

	payload["extra_debt_amount"] = "5000"
	raw = rawFromJSON(t, payload)
	evt, err = ingestion.ParseRawEvent(raw, "Liquidate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	liq = evt.(*event.Liquidate)
	if liq.ExtraDebtAmount == nil || liq.ExtraDebtAmount.String() != "5000" {
		t.Errorf("extra_debt_amount: got %v, want 5000", liq.ExtraDebtAmount)
	}
}

func TestParseNftPriceUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"nft_asset":          "BAYC",
		"price":              "1000000000000000000000",
		"price_sequence":     int64(100),
		"price_timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "NftPriceUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	np, ok := evt.(*event.NftPriceUpdate)
	if !ok {
		t.Fatalf("expected *event.NftPriceUpdate, got %T", evt)
	}

	if np.NftAsset != "BAYC" {
		t.Errorf("nft_asset: got %s, want BAYC", np.NftAsset)
	}
	if np.PriceSequence != 100 {
		t.Errorf("price_sequence: got %d, want 100", np.PriceSequence)
	}
	if np.Price.String() != "1000000000000000000000" {
		t.Errorf("price: got %s", np.Price)
	}
}

func TestParseReserveConfigUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"asset":             "WETH",
		"active":            true,
		"frozen":            false,
		"borrowing_enabled": true,
		"decimals":          uint8(18),
		"reserve_factor":    uint64(1000),
		"base_rate":         "10000000000000000000000000",
		"slope1":            "40000000000000000000000000",
		"sequence":          int64(1),
		"timestamp_us":      int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "ReserveConfigUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	rc, ok := evt.(*event.ReserveConfigUpdate)
	if !ok {
		t.Fatalf("expected *event.ReserveConfigUpdate, got %T", evt)
	}

	if rc.Decimals != 18 {
		t.Errorf("decimals: got %d, want 18", rc.Decimals)
	}
	if rc.ReserveFactor != 1000 {
		t.Errorf("reserve_factor: got %d, want 1000", rc.ReserveFactor)
	}
	if rc.BaseRate == nil || rc.BaseRate.String() != "10000000000000000000000000" {
		t.Errorf("base_rate: got %v", rc.BaseRate)
	}
	// slope2 omitted: stays nil so the core keeps its current value
	if rc.Slope2 != nil {
		t.Errorf("slope2: got %v, want nil", rc.Slope2)
	}
}

func TestParseNftConfigUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"nft_asset":               "BAYC",
		"active":                  true,
		"ltv":                     uint64(3000),
		"liquidation_threshold":   uint64(8000),
		"liquidate_price_percent": uint64(9500),
		"auction_duration_hours":  uint64(24),
		"min_token_id":            uint64(0),
		"max_token_id":            uint64(9999),
		"sequence":                int64(1),
		"timestamp_us":            int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "NftConfigUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	nc, ok := evt.(*event.NftConfigUpdate)
	if !ok {
		t.Fatalf("expected *event.NftConfigUpdate, got %T", evt)
	}

	if nc.LTV != 3000 {
		t.Errorf("ltv: got %d, want 3000", nc.LTV)
	}
	if nc.LiquidationThreshold != 8000 {
		t.Errorf("liquidation_threshold: got %d, want 8000", nc.LiquidationThreshold)
	}
	if nc.AuctionDurationHours != 24 {
		t.Errorf("auction_duration_hours: got %d, want 24", nc.AuctionDurationHours)
	}
}

func TestParseUnknownEventType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawEvent(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawEvent(raw, "Deposit")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id":   "not-a-uuid",
		"user_id":      "also-not-a-uuid",
		"asset":        "WETH",
		"amount":       "1",
		"sequence":     int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "Deposit")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}

func TestParseInvalidAmount_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id":   "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"asset":        "WETH",
		"amount":       "1.5e18",
		"sequence":     int64(1),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "Deposit")
	if err == nil {
		t.Fatal("expected error for non-integer amount")
	}

	payload["amount"] = ""
	raw = rawFromJSON(t, payload)
	_, err = ingestion.ParseRawEvent(raw, "Deposit")
	if err == nil {
		t.Fatal("expected error for missing amount")
	}
}
