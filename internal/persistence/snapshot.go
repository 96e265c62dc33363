package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager handles creating and loading state snapshots for recovery.
// Snapshots contain balances, reserves, loans, oracle prices, sequence
// counters, the idempotency LRU, and the last state hash.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the JSON-serializable image of the core's in-memory state
// at a point in time. All wei and ray quantities are decimal strings so the
// encoding is lossless for 256-bit values.
type SnapshotData struct {
	Sequence        int64                  `json:"sequence"`
	LastTimestamp   int64                  `json:"last_timestamp"`
	StateHash       []byte                 `json:"state_hash"`
	Balances        map[string]string      `json:"balances"` // account path -> wei
	Reserves        []ReserveSnap          `json:"reserves"`
	NftConfigs      map[string]NftSnap     `json:"nft_configs"`
	Blacklist       []string               `json:"blacklist"`
	Wrapped         []WrappedSnap          `json:"wrapped"`
	Loans           []LoanSnap             `json:"loans"`
	NftPrices       map[string][]PriceSnap `json:"nft_prices"`
	ReservePrices   map[string]PriceSnap   `json:"reserve_prices"`
	SequenceState   map[string]int64       `json:"sequence_state"` // partition -> next expected seq
	IdempotencyKeys []string               `json:"idempotency_keys"`
	CreatedAt       time.Time              `json:"created_at"`
}

// ReserveSnap is a serializable reserve: config, accrual state, and the
// scaled supply/debt books keyed by holder UUID.
type ReserveSnap struct {
	Asset               string            `json:"asset"`
	Active              bool              `json:"active"`
	Frozen              bool              `json:"frozen"`
	BorrowingEnabled    bool              `json:"borrowing_enabled"`
	Decimals            uint8             `json:"decimals"`
	ReserveFactor       uint64            `json:"reserve_factor"`
	LiquidityIndex      string            `json:"liquidity_index"`
	VariableBorrowIndex string            `json:"variable_borrow_index"`
	LiquidityRate       string            `json:"liquidity_rate"`
	BorrowRate          string            `json:"borrow_rate"`
	LastUpdateTimestamp int64             `json:"last_update_timestamp"`
	BaseRate            string            `json:"base_rate"`
	Slope1              string            `json:"slope1"`
	Slope2              string            `json:"slope2"`
	OptimalUtilization  string            `json:"optimal_utilization"`
	SupplyBook          map[string]string `json:"supply_book"`
	DebtBook            map[string]string `json:"debt_book"`
}

// NftSnap is a serializable collection config.
type NftSnap struct {
	Active                bool   `json:"active"`
	Frozen                bool   `json:"frozen"`
	LTV                   uint64 `json:"ltv"`
	LiquidationThreshold  uint64 `json:"liquidation_threshold"`
	LiquidatePricePercent uint64 `json:"liquidate_price_percent"`
	AuctionDurationHours  uint64 `json:"auction_duration_hours"`
	MinTokenID            uint64 `json:"min_token_id"`
	MaxTokenID            uint64 `json:"max_token_id"`
}

// WrappedSnap records one wrapped collateral token.
type WrappedSnap struct {
	NftAsset string    `json:"nft_asset"`
	TokenID  uint64    `json:"token_id"`
	Owner    uuid.UUID `json:"owner"`
}

// LoanSnap is a serializable loan.
type LoanSnap struct {
	LoanID            uint64    `json:"loan_id"`
	State             int32     `json:"state"`
	Borrower          uuid.UUID `json:"borrower"`
	NftAsset          string    `json:"nft_asset"`
	NftTokenID        uint64    `json:"nft_token_id"`
	ReserveAsset      string    `json:"reserve_asset"`
	ScaledAmount      string    `json:"scaled_amount"`
	BidStartTimestamp int64     `json:"bid_start_timestamp"`
	Bidder            uuid.UUID `json:"bidder"`
	BidPrice          string    `json:"bid_price,omitempty"`
	BidBorrowAmount   string    `json:"bid_borrow_amount,omitempty"`
	Bids              []BidSnap `json:"bids,omitempty"`
	IsLiquidate       bool      `json:"is_liquidate"`
	RepayTime         int64     `json:"repay_time"`
	Version           int64     `json:"version"`
}

// BidSnap is one auction history entry.
type BidSnap struct {
	Bidder    uuid.UUID `json:"bidder"`
	Price     string    `json:"price"`
	Timestamp int64     `json:"timestamp"`
}

// PriceSnap is a serializable oracle observation.
type PriceSnap struct {
	Price         string `json:"price"`
	PriceSequence int64  `json:"price_sequence"`
	Timestamp     int64  `json:"timestamp"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken
// periodically and verified by replaying events from the snapshot sequence
// forward before being trusted for recovery.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	sizeBytes := len(data)
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, sizeBytes, snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. On warm
// restart, load the snapshot then replay events from snapshot.sequence+1.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No snapshot — cold start
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads events from a given sequence for replay, for both
// warm restarts (replay from snapshot) and cold restarts (replay all).
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, partition, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Partition,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty event log
	}
	return seq.Int64, nil
}
