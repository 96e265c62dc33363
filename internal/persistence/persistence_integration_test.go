package persistence_test

import (
	"context"
	"testing"
	"time"

	"NFTLend/internal/persistence"
	"NFTLend/internal/testutil"

	"github.com/google/uuid"
)

func TestEventLogRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, "../../migrations")
	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	writer := persistence.NewEventLogWriter(db, 50, 10*time.Millisecond)
	partition := "WETH"
	events := []persistence.EventRow{
		{
			Sequence:       0,
			EventType:      "Deposit",
			IdempotencyKey: "dep-1",
			Payload:        []byte(`{"amount":"1000000000000000000"}`),
			StateHash:      make([]byte, 32),
			PrevHash:       make([]byte, 32),
			Timestamp:      time.Now().UTC(),
			SourceSequence: 1,
		},
		{
			Sequence:       1,
			EventType:      "Borrow",
			IdempotencyKey: "bor-1",
			Partition:      &partition,
			Payload:        []byte(`{"amount":"500000000000000000"}`),
			StateHash:      make([]byte, 32),
			PrevHash:       make([]byte, 32),
			Timestamp:      time.Now().UTC(),
			SourceSequence: 2,
		},
	}
	if err := writer.WriteEventBatch(ctx, events, nil); err != nil {
		t.Fatalf("write events: %v", err)
	}

	// Writes are idempotent on sequence.
	if err := writer.WriteEventBatch(ctx, events, nil); err != nil {
		t.Fatalf("rewrite events: %v", err)
	}

	journals := []persistence.JournalRow{
		{
			JournalID:     uuid.New().String(),
			BatchID:       uuid.New().String(),
			EventRef:      "dep-1",
			Sequence:      0,
			DebitAccount:  "user:11111111-1111-1111-1111-111111111111:cash:WETH",
			CreditAccount: "external:deposits:WETH",
			AssetID:       1,
			Amount:        "1000000000000000000",
			JournalType:   1,
			Timestamp:     time.Now().UnixMicro(),
		},
	}
	if err := writer.WriteJournalBatch(ctx, journals, nil); err != nil {
		t.Fatalf("write journals: %v", err)
	}

	snapMgr := persistence.NewSnapshotManager(db)
	latest, err := snapMgr.GetLatestSequence(ctx)
	if err != nil {
		t.Fatalf("latest sequence: %v", err)
	}
	if latest != 1 {
		t.Errorf("latest sequence = %d, want 1", latest)
	}

	loaded, err := snapMgr.LoadEventsFrom(ctx, 0, 10)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d events, want 2", len(loaded))
	}
	if loaded[1].Partition == nil || *loaded[1].Partition != "WETH" {
		t.Errorf("partition not preserved: %v", loaded[1].Partition)
	}
	if string(loaded[0].Payload) != `{"amount":"1000000000000000000"}` {
		t.Errorf("payload not preserved: %s", loaded[0].Payload)
	}

	checker := persistence.NewPostgresIdempotencyChecker(db)
	dup, err := checker.IsDuplicate("Deposit", "dep-1")
	if err != nil {
		t.Fatalf("is duplicate: %v", err)
	}
	if !dup {
		t.Error("dep-1 should be a duplicate")
	}
	dup, err = checker.IsDuplicate("Deposit", "dep-2")
	if err != nil {
		t.Fatalf("is duplicate: %v", err)
	}
	if dup {
		t.Error("dep-2 should not be a duplicate")
	}
}

func TestSnapshotSaveLoad(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, "../../migrations")
	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	snapMgr := persistence.NewSnapshotManager(db)

	snap := &persistence.SnapshotData{
		Sequence:      41,
		LastTimestamp: 1_700_000_000_000_000,
		StateHash:     make([]byte, 32),
		Balances: map[string]string{
			"system:pool:WETH": "123456789000000000000000",
		},
		Loans: []persistence.LoanSnap{
			{
				LoanID:       1,
				State:        0,
				Borrower:     uuid.New(),
				NftAsset:     "BAYC",
				NftTokenID:   42,
				ReserveAsset: "WETH",
				ScaledAmount: "900000000000000000",
				Version:      1,
			},
		},
		SequenceState:   map[string]int64{"WETH": 7},
		IdempotencyKeys: []string{"dep-1", "bor-1"},
		CreatedAt:       time.Now().UTC(),
	}

	if err := snapMgr.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	// Unverified snapshots are not eligible for recovery.
	got, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if got != nil {
		t.Fatal("unverified snapshot should not load")
	}

	if err := snapMgr.MarkVerified(ctx, 41); err != nil {
		t.Fatalf("mark verified: %v", err)
	}

	got, err = snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if got == nil {
		t.Fatal("verified snapshot should load")
	}
	if got.Sequence != 41 {
		t.Errorf("sequence = %d, want 41", got.Sequence)
	}
	if got.Balances["system:pool:WETH"] != "123456789000000000000000" {
		t.Errorf("balance not preserved: %v", got.Balances)
	}
	if len(got.Loans) != 1 || got.Loans[0].ScaledAmount != "900000000000000000" {
		t.Errorf("loans not preserved: %+v", got.Loans)
	}
	if got.SequenceState["WETH"] != 7 {
		t.Errorf("sequence state not preserved: %v", got.SequenceState)
	}
}
