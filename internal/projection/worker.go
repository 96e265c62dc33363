package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// ProjectionOutput mirrors the data needed by projection workers.
// The orchestrator bridges between core.CoreOutput and this, attaching the
// post-event loan image and auction record where the event touched one.
type ProjectionOutput struct {
	Sequence       int64
	EventType      string
	Partition      *string
	JournalEntries []JournalEntry
	Loan           *LoanUpdate
	Auction        *AuctionUpdate
	Timestamp      int64
}

// LoanUpdate is the post-event image of a loan for the loans projection.
// Wei quantities are decimal strings.
type LoanUpdate struct {
	LoanID            uint64
	State             int32
	Borrower          uuid.UUID
	NftAsset          string
	NftTokenID        uint64
	ReserveAsset      string
	ScaledAmount      string
	BidStartTimestamp int64
	Bidder            uuid.UUID
	BidPrice          string // empty when no bid stands
	IsLiquidate       bool
	RepayTime         int64
	Version           int64
}

// AuctionUpdate records one accepted bid or a settlement.
type AuctionUpdate struct {
	LoanID     uint64
	NftAsset   string
	NftTokenID uint64
	Bidder     uuid.UUID
	BidPrice   string
	Settled    bool
	Timestamp  int64
}

// JournalEntry is a simplified journal for projection consumption. Amount
// is the decimal string form of the wei value.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        string
	JournalType   int32
}

// ProjectionWorker updates projection tables from processed events. The
// projection channel is non-blocking with drop: if projections fall behind,
// they can be rebuilt from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Sequence, err)
				// Continue — projections are eventually consistent
				// and can be rebuilt from the event log
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Update balance projections from journal entries
	for _, j := range output.JournalEntries {
		if err := pw.updateBalanceProjection(ctx, tx, j); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	if output.Loan != nil {
		if err := pw.upsertLoanProjection(ctx, tx, output); err != nil {
			return fmt.Errorf("loan projection: %w", err)
		}
	}

	if output.Auction != nil {
		if err := pw.insertAuctionHistory(ctx, tx, output); err != nil {
			return fmt.Errorf("auction projection: %w", err)
		}
	}

	// Update projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// updateBalanceProjection mirrors the in-memory ledger convention: a debit
// increases the account's balance, a credit decreases it.
func (pw *ProjectionWorker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, j JournalEntry) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3::NUMERIC, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3::NUMERIC, last_sequence = $4
	`, j.DebitAccount, j.AssetID, j.Amount, pw.lastSeq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, -$3::NUMERIC, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance - $3::NUMERIC, last_sequence = $4
	`, j.CreditAccount, j.AssetID, j.Amount, pw.lastSeq); err != nil {
		return err
	}

	return nil
}

func (pw *ProjectionWorker) upsertLoanProjection(ctx context.Context, tx *sql.Tx, output ProjectionOutput) error {
	l := output.Loan
	var bidPrice interface{}
	if l.BidPrice != "" {
		bidPrice = l.BidPrice
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.loans
			(loan_id, state, borrower, nft_asset, nft_token_id, reserve_asset,
			 scaled_amount, bid_start_timestamp, bidder, bid_price,
			 is_liquidate, repay_time, version, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (loan_id) DO UPDATE SET
			state = $2, scaled_amount = $7::NUMERIC, bid_start_timestamp = $8,
			bidder = $9, bid_price = $10, is_liquidate = $11, repay_time = $12,
			version = $13, last_sequence = $14
	`, l.LoanID, l.State, l.Borrower, l.NftAsset, l.NftTokenID, l.ReserveAsset,
		l.ScaledAmount, l.BidStartTimestamp, l.Bidder, bidPrice,
		l.IsLiquidate, l.RepayTime, l.Version, output.Sequence)
	return err
}

func (pw *ProjectionWorker) insertAuctionHistory(ctx context.Context, tx *sql.Tx, output ProjectionOutput) error {
	a := output.Auction
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.auction_history
			(loan_id, nft_asset, nft_token_id, bidder, bid_price, settled, sequence, timestamp)
		VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8)
		ON CONFLICT (sequence) DO NOTHING
	`, a.LoanID, a.NftAsset, a.NftTokenID, a.Bidder, a.BidPrice, a.Settled,
		output.Sequence, a.Timestamp)
	return err
}

// RebuildProjections rebuilds all projection tables from the event log.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	// Truncate all projection tables
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.loans`,
		`TRUNCATE projections.auction_history`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Rebuild from journal entries: debits add, credits subtract.
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY debit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
