package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// QueryService provides read-only access to projection tables. Queries are
// served via gRPC and HTTP/JSON (gRPC-Gateway), reading from PostgreSQL
// projections. All responses include as_of_sequence for freshness semantics.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetBalance returns a user's cash and bid-escrow balances for one asset.
func (qs *QueryService) GetBalance(
	ctx context.Context,
	userID uuid.UUID,
	asset string,
) (*BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	cashPath := fmt.Sprintf("user:%s:cash:%s", userID, asset)
	cash, err := qs.getProjectedBalance(ctx, cashPath)
	if err != nil {
		return nil, err
	}

	escrowPath := fmt.Sprintf("user:%s:bid_escrow:%s", userID, asset)
	escrow, err := qs.getProjectedBalance(ctx, escrowPath)
	if err != nil {
		return nil, err
	}

	return &BalanceResponse{
		UserID:       userID,
		Asset:        asset,
		CashBalance:  cash,
		BidEscrow:    escrow,
		AsOfSequence: asOfSeq,
	}, nil
}

// GetLoan returns one loan by ID.
func (qs *QueryService) GetLoan(ctx context.Context, loanID uint64) (*LoanResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	row := qs.db.QueryRowContext(ctx, `
		SELECT loan_id, state, borrower, nft_asset, nft_token_id, reserve_asset,
		       scaled_amount, bid_start_timestamp, bidder, COALESCE(bid_price::TEXT, ''),
		       is_liquidate, repay_time, version
		FROM projections.loans
		WHERE loan_id = $1
	`, loanID)

	loan, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("loan %d not found", loanID)
	}
	if err != nil {
		return nil, err
	}
	loan.AsOfSequence = asOfSeq
	return loan, nil
}

// GetCollateralLoan returns the open loan backed by the given token, if any.
func (qs *QueryService) GetCollateralLoan(
	ctx context.Context,
	nftAsset string,
	nftTokenID uint64,
) (*LoanResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	// States 0-2 are Active, Auction, AvailableAuction (still encumbering).
	row := qs.db.QueryRowContext(ctx, `
		SELECT loan_id, state, borrower, nft_asset, nft_token_id, reserve_asset,
		       scaled_amount, bid_start_timestamp, bidder, COALESCE(bid_price::TEXT, ''),
		       is_liquidate, repay_time, version
		FROM projections.loans
		WHERE nft_asset = $1 AND nft_token_id = $2 AND state IN (0, 1, 2)
		ORDER BY loan_id DESC
		LIMIT 1
	`, nftAsset, nftTokenID)

	loan, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, nil // Token is unencumbered
	}
	if err != nil {
		return nil, err
	}
	loan.AsOfSequence = asOfSeq
	return loan, nil
}

// GetUserLoans returns all open loans of a borrower.
func (qs *QueryService) GetUserLoans(
	ctx context.Context,
	borrower uuid.UUID,
) ([]LoanResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT loan_id, state, borrower, nft_asset, nft_token_id, reserve_asset,
		       scaled_amount, bid_start_timestamp, bidder, COALESCE(bid_price::TEXT, ''),
		       is_liquidate, repay_time, version
		FROM projections.loans
		WHERE borrower = $1 AND state IN (0, 1, 2)
		ORDER BY loan_id
	`, borrower)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLoans(rows, asOfSeq)
}

// GetAuctionLoans returns loans currently in auction, paged by loan ID.
func (qs *QueryService) GetAuctionLoans(
	ctx context.Context,
	limit int,
	afterLoanID *uint64,
) ([]LoanResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT loan_id, state, borrower, nft_asset, nft_token_id, reserve_asset,
		       scaled_amount, bid_start_timestamp, bidder, COALESCE(bid_price::TEXT, ''),
		       is_liquidate, repay_time, version
		FROM projections.loans
		WHERE state IN (1, 2)
	`
	args := []interface{}{}
	argIdx := 1

	if afterLoanID != nil {
		query += fmt.Sprintf(" AND loan_id > $%d", argIdx)
		args = append(args, *afterLoanID)
		argIdx++
	}

	query += " ORDER BY loan_id"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLoans(rows, asOfSeq)
}

// GetAuctionHistory returns bid and settlement records for a loan,
// newest first, with cursor-based pagination on timestamp.
func (qs *QueryService) GetAuctionHistory(
	ctx context.Context,
	loanID uint64,
	limit int,
	beforeTimestamp *int64,
) ([]AuctionHistoryResponse, error) {
	query := `
		SELECT loan_id, nft_asset, nft_token_id, bidder, bid_price::TEXT, settled, timestamp
		FROM projections.auction_history
		WHERE loan_id = $1
	`
	args := []interface{}{loanID}
	argIdx := 2

	if beforeTimestamp != nil {
		query += fmt.Sprintf(" AND timestamp < $%d", argIdx)
		args = append(args, *beforeTimestamp)
		argIdx++
	}

	query += " ORDER BY timestamp DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []AuctionHistoryResponse
	for rows.Next() {
		var h AuctionHistoryResponse
		if err := rows.Scan(
			&h.LoanID, &h.NftAsset, &h.NftTokenID, &h.Bidder,
			&h.BidPrice, &h.Settled, &h.Timestamp,
		); err != nil {
			return nil, err
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

// GetJournalHistory returns journal entries for a user with pagination.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("user:%s:%%", userID)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount::TEXT, journal_type, timestamp
		FROM event_log.journal
		WHERE debit_account LIKE $1 OR credit_account LIKE $1
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain and global balance invariants.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	// Check hash chain continuity
	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence, e1.prev_hash, e2.state_hash
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var prevHash, expectedHash []byte
		if err := rows.Scan(&seq, &prevHash, &expectedHash); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}

	// Check global balance (should sum to zero across all accounts per asset)
	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance)::TEXT as total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total string
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLoan(row rowScanner) (*LoanResponse, error) {
	var l LoanResponse
	if err := row.Scan(
		&l.LoanID, &l.State, &l.Borrower, &l.NftAsset, &l.NftTokenID,
		&l.ReserveAsset, &l.ScaledAmount, &l.BidStartTimestamp, &l.Bidder,
		&l.BidPrice, &l.IsLiquidate, &l.RepayTime, &l.Version,
	); err != nil {
		return nil, err
	}
	return &l, nil
}

func collectLoans(rows *sql.Rows, asOfSeq int64) ([]LoanResponse, error) {
	var loans []LoanResponse
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loan.AsOfSequence = asOfSeq
		loans = append(loans, *loan)
	}
	return loans, rows.Err()
}

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (string, error) {
	var balance string
	err := qs.db.QueryRowContext(ctx, `
		SELECT balance::TEXT FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return "0", nil
	}
	return balance, err
}
