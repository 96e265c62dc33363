package ledger

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches from protocol operations
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker // For pre-checks before committing a batch
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

// SetSequence aligns the generator with the core's event sequence after
// snapshot restore.
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

func (jg *JournalGenerator) newBatch(eventRef string, timestamp int64) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 2),
	}
}

func (jg *JournalGenerator) appendJournal(b *Batch, debit, credit AccountKey, assetID AssetID, amount *big.Int, jt JournalType) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      jg.sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       assetID,
		Amount:        new(big.Int).Set(amount),
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// GenerateDeposit credits a user's in-system cash from the external boundary.
// Moves funds: external:deposits → user:cash
func (jg *JournalGenerator) GenerateDeposit(
	userID uuid.UUID,
	eventRef string,
	amount *big.Int,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)
	jg.appendJournal(batch,
		NewUserAccountKey(userID, SubTypeCash, assetID),
		NewExternalAccountKey(SubTypeExternalDeposits, assetID),
		assetID, amount, JournalTypeDeposit)
	jg.sequence++
	return batch, nil
}

// GenerateWithdrawal returns user cash to the external boundary.
// Pre-check: user must have sufficient free cash.
func (jg *JournalGenerator) GenerateWithdrawal(
	userID uuid.UUID,
	eventRef string,
	amount *big.Int,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientCash(userID, assetID, amount); err != nil {
		return nil, fmt.Errorf("withdrawal pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp)
	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalWithdrawals, assetID),
		NewUserAccountKey(userID, SubTypeCash, assetID),
		assetID, amount, JournalTypeWithdrawal)
	jg.sequence++
	return batch, nil
}

// GenerateSupply moves user cash into the shared reserve pool. The caller
// mints the matching scaled cToken balance in the same operation.
// Moves funds: user:cash → system:pool
func (jg *JournalGenerator) GenerateSupply(
	userID uuid.UUID,
	eventRef string,
	amount *big.Int,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientCash(userID, assetID, amount); err != nil {
		return nil, fmt.Errorf("supply pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp)
	jg.appendJournal(batch,
		NewPoolAccountKey(assetID),
		NewUserAccountKey(userID, SubTypeCash, assetID),
		assetID, amount, JournalTypeSupply)
	jg.sequence++
	return batch, nil
}

// GenerateRedeem returns pool liquidity to a supplier's cash. The caller
// burns the matching scaled cToken balance.
// Pre-check: the pool must hold enough un-borrowed liquidity.
// Moves funds: system:pool → user:cash
func (jg *JournalGenerator) GenerateRedeem(
	userID uuid.UUID,
	eventRef string,
	amount *big.Int,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientLiquidity(assetID, amount); err != nil {
		return nil, fmt.Errorf("redeem pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp)
	jg.appendJournal(batch,
		NewUserAccountKey(userID, SubTypeCash, assetID),
		NewPoolAccountKey(assetID),
		assetID, amount, JournalTypeRedeem)
	jg.sequence++
	return batch, nil
}

// GenerateBorrow disburses borrowed reserves from the pool to the borrower.
// Pre-check: the pool must hold enough liquidity.
// Moves funds: system:pool → user:cash
func (jg *JournalGenerator) GenerateBorrow(
	borrowerID uuid.UUID,
	eventRef string,
	amount *big.Int,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientLiquidity(assetID, amount); err != nil {
		return nil, fmt.Errorf("borrow pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp)
	jg.appendJournal(batch,
		NewUserAccountKey(borrowerID, SubTypeCash, assetID),
		NewPoolAccountKey(assetID),
		assetID, amount, JournalTypeBorrowDisbursement)
	jg.sequence++
	return batch, nil
}

// GenerateRepay returns borrowed reserves plus interest to the pool.
// Pre-check: the payer must have sufficient free cash.
// Moves funds: user:cash → system:pool
func (jg *JournalGenerator) GenerateRepay(
	payerID uuid.UUID,
	eventRef string,
	amount *big.Int,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientCash(payerID, assetID, amount); err != nil {
		return nil, fmt.Errorf("repay pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp)
	jg.appendJournal(batch,
		NewPoolAccountKey(assetID),
		NewUserAccountKey(payerID, SubTypeCash, assetID),
		assetID, amount, JournalTypeRepayment)
	jg.sequence++
	return batch, nil
}

// GenerateBidLock escrows a new auction bid and, when outbid, refunds the
// previous bidder in the same batch so the two legs commit atomically.
// Moves funds: bidder user:cash → bidder user:bid_escrow
//
//	previous bidder user:bid_escrow → previous bidder user:cash
func (jg *JournalGenerator) GenerateBidLock(
	bidderID uuid.UUID,
	eventRef string,
	bidAmount *big.Int,
	previousBidder *uuid.UUID,
	previousBidAmount *big.Int,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientCash(bidderID, assetID, bidAmount); err != nil {
		return nil, fmt.Errorf("bid pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp)

	jg.appendJournal(batch,
		NewUserAccountKey(bidderID, SubTypeBidEscrow, assetID),
		NewUserAccountKey(bidderID, SubTypeCash, assetID),
		assetID, bidAmount, JournalTypeBidLock)

	if previousBidder != nil && previousBidAmount != nil && previousBidAmount.Sign() > 0 {
		jg.appendJournal(batch,
			NewUserAccountKey(*previousBidder, SubTypeCash, assetID),
			NewUserAccountKey(*previousBidder, SubTypeBidEscrow, assetID),
			assetID, previousBidAmount, JournalTypeBidRefund)
	}

	jg.sequence++
	return batch, nil
}

// LiquidationSplit is the settlement breakdown computed by the auction
// engine. DebtFromEscrow + RewardToVault + SurplusToBorrower must equal the
// winning bid, and ShortfallFromCaller covers any debt above the bid.
type LiquidationSplit struct {
	WinnerID            uuid.UUID
	BorrowerID          uuid.UUID
	CallerID            uuid.UUID
	DebtFromEscrow      *big.Int
	ShortfallFromCaller *big.Int
	RewardToVault       *big.Int
	SurplusToBorrower   *big.Int
}

// GenerateLiquidationSettlement settles a completed auction: repays the
// pool, covers any shortfall from the caller, pays the vault reward, and
// returns the surplus to the borrower. All legs commit in one batch.
func (jg *JournalGenerator) GenerateLiquidationSettlement(
	split LiquidationSplit,
	eventRef string,
	bidAmount *big.Int,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	consumed := new(big.Int).Add(split.DebtFromEscrow, split.RewardToVault)
	consumed.Add(consumed, split.SurplusToBorrower)
	if consumed.Cmp(bidAmount) != 0 {
		return nil, fmt.Errorf("liquidation split %s does not consume bid %s", consumed, bidAmount)
	}

	if split.ShortfallFromCaller.Sign() > 0 {
		if err := jg.balanceTracker.ValidateSufficientCash(split.CallerID, assetID, split.ShortfallFromCaller); err != nil {
			return nil, fmt.Errorf("liquidation shortfall pre-check failed: %w", err)
		}
	}

	escrow := jg.balanceTracker.GetUserBidEscrow(split.WinnerID, assetID)
	if escrow.Cmp(bidAmount) < 0 {
		return nil, fmt.Errorf("winner escrow %s below bid %s", escrow, bidAmount)
	}

	batch := jg.newBatch(eventRef, timestamp)

	if split.DebtFromEscrow.Sign() > 0 {
		jg.appendJournal(batch,
			NewPoolAccountKey(assetID),
			NewUserAccountKey(split.WinnerID, SubTypeBidEscrow, assetID),
			assetID, split.DebtFromEscrow, JournalTypeDebtSettlement)
	}

	if split.ShortfallFromCaller.Sign() > 0 {
		jg.appendJournal(batch,
			NewPoolAccountKey(assetID),
			NewUserAccountKey(split.CallerID, SubTypeCash, assetID),
			assetID, split.ShortfallFromCaller, JournalTypeDebtShortfall)
	}

	if split.RewardToVault.Sign() > 0 {
		jg.appendJournal(batch,
			NewVaultAccountKey(assetID),
			NewUserAccountKey(split.WinnerID, SubTypeBidEscrow, assetID),
			assetID, split.RewardToVault, JournalTypeBidReward)
	}

	if split.SurplusToBorrower.Sign() > 0 {
		jg.appendJournal(batch,
			NewUserAccountKey(split.BorrowerID, SubTypeCash, assetID),
			NewUserAccountKey(split.WinnerID, SubTypeBidEscrow, assetID),
			assetID, split.SurplusToBorrower, JournalTypeSurplusReturn)
	}

	jg.sequence++
	return batch, nil
}
