package core

import (
	"fmt"
	"math/big"
	"sort"
	"time"

	"NFTLend/internal/event"
	"NFTLend/internal/ledger"
	fpmath "NFTLend/internal/math"
	"NFTLend/internal/observability"
	"NFTLend/internal/state"

	"github.com/google/uuid"
)

// LendingCore is the single-threaded event processor. All protocol state
// lives here; every mutating operation arrives as an event and runs to
// completion before the next one starts, so no handler ever observes a
// half-applied operation.
type LendingCore struct {
	sequence          int64
	lastTimestamp     int64 // Epoch microseconds of the last applied event
	hasher            *StateHasher
	balanceTracker    *ledger.BalanceTracker
	journalGen        *ledger.JournalGenerator
	validator         *ledger.InvariantValidator
	reserves          *state.ReserveManager
	nfts              *state.NftManager
	loans             *state.LoanRegistry
	prices            *state.PriceEngine
	params            state.ProtocolParams
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch
	StateDelta []byte

	// Event is the source event, retained so the event log can store the
	// original wire payload for replay. Never mutated after processing.
	Event event.Event

	// Projection attachments: the post-event loan image and auction record
	// when the event touched a loan. Deep copies, safe to read off-thread.
	Loan    *state.LoanData
	Auction *AuctionRecord
}

// AuctionRecord is one accepted bid or settlement for the auction history
// projection.
type AuctionRecord struct {
	LoanID     uint64
	NftAsset   string
	NftTokenID uint64
	Bidder     uuid.UUID
	BidPrice   *big.Int
	Settled    bool
	Timestamp  int64 // Epoch microseconds
}

// defaultIdempotencyLRUCapacity sizes the tier-1 dedup cache when the
// caller does not supply a capacity.
const defaultIdempotencyLRUCapacity = 1_000_000

func NewLendingCore(
	startSequence int64,
	params state.ProtocolParams,
	persistChan, projectionChan chan<- CoreOutput,
	idempotencyCapacity int,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) (*LendingCore, error) {
	if err := state.ValidateProtocolParams(&params); err != nil {
		return nil, fmt.Errorf("invalid protocol params: %w", err)
	}
	if idempotencyCapacity <= 0 {
		idempotencyCapacity = defaultIdempotencyLRUCapacity
	}

	balanceTracker := ledger.NewBalanceTracker()

	return &LendingCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		balanceTracker:    balanceTracker,
		journalGen:        ledger.NewJournalGenerator(startSequence, balanceTracker),
		validator:         ledger.NewInvariantValidator(balanceTracker),
		reserves:          state.NewReserveManager(),
		nfts:              state.NewNftManager(),
		loans:             state.NewLoanRegistry(),
		prices:            state.NewPriceEngine(params.HighestPriceWindowSeconds),
		params:            params,
		idempotency:       NewIdempotencyChecker(idempotencyCapacity, dbChecker),
		sequenceValidator: NewSequenceValidator(),
		metrics:           metrics,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}, nil
}

// ProcessEvent is the main processing pipeline
func (c *LendingCore) ProcessEvent(evt event.Event) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	isDuplicate := c.idempotency.IsDuplicate(eventType, idempotencyKey)

	// Step 2: Sequence validation. Oracle feeds tolerate gaps; everything
	// else must arrive in strict per-partition order.
	switch e := evt.(type) {
	case *event.NftPriceUpdate:
		if err := c.sequenceValidator.ValidatePriceSequence("nft:"+e.NftAsset, e.PriceSequence); err != nil {
			return err
		}
	case *event.ReservePriceUpdate:
		if err := c.sequenceValidator.ValidatePriceSequence("reserve:"+e.Asset, e.PriceSequence); err != nil {
			return err
		}
	default:
		partition := c.getPartition(evt)
		if err := c.sequenceValidator.ValidateSequence(partition, evt.SourceSequence(), idempotencyKey, isDuplicate); err != nil {
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	// Capture open-loan IDs up front: repay and liquidate can close the
	// loan, dropping it from the collateral index before outputs are built.
	preLoanIDs := c.preEventLoanIDs(evt)

	// Step 3: Event dispatch - get batches
	var batches []*ledger.Batch
	var err error

	switch e := evt.(type) {
	case *event.BatchBorrow:
		batches, err = c.handleBatchBorrow(e)
		if err != nil {
			return fmt.Errorf("batch borrow failed: %w", err)
		}
	case *event.BatchRepay:
		batches, err = c.handleBatchRepay(e)
		if err != nil {
			return fmt.Errorf("batch repay failed: %w", err)
		}
	default:
		batch, dispatchErr := c.dispatchEvent(evt)
		if dispatchErr != nil {
			return fmt.Errorf("dispatch failed: %w", dispatchErr)
		}
		batches = []*ledger.Batch{batch}
	}

	// Step 4-9: Process each batch
	loanAttach, auctionAttach := c.projectionAttachments(evt, preLoanIDs, len(batches))
	outputs := make([]CoreOutput, 0, len(batches))

	for i, batch := range batches {
		// Skip validation and application for empty batches (state-only
		// events like price and config updates produce no journals but
		// still need an envelope in the event log).
		if len(batch.Journals) > 0 {
			if err := c.validator.ValidateBatchBalance(batch); err != nil {
				panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
			}
			if err := c.balanceTracker.ApplyBatch(batch); err != nil {
				return fmt.Errorf("apply batch failed: %w", err)
			}
		}

		stateDigest := c.computeStateDigest(batch)
		prevHash := c.hasher.GetPrevHash()
		stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

		envelope := &event.EventEnvelope{
			Sequence:       c.sequence,
			IdempotencyKey: idempotencyKey,
			EventType:      evt.EventType(),
			Partition:      evt.Partition(),
			Timestamp:      time.UnixMicro(c.getEventTimestamp(evt)),
			SourceSequence: evt.SourceSequence(),
			StateHash:      stateHash,
			PrevHash:       prevHash,
		}

		outputs = append(outputs, CoreOutput{
			Envelope:   envelope,
			Batch:      batch,
			StateDelta: stateDigest,
			Event:      evt,
			Loan:       loanAttach[i],
			Auction:    auctionAttach[i],
		})
		c.sequence++
		// State-only events skip the journal generator, so realign its
		// sequence with the core's.
		c.journalGen.SetSequence(c.sequence)
	}

	c.lastTimestamp = c.getEventTimestamp(evt)

	// Step 10: Post-checks
	if err := c.postCheckInvariants(evt); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 11: Emit outputs. Persist channel uses BLOCKING send
	// (backpressure); projection channel uses NON-BLOCKING send with
	// silent drop.
	for _, output := range outputs {
		c.persistChan <- output

		select {
		case c.projectionChan <- output:
		default:
			// Dropped — projection will catch up via rebuild
		}
	}

	// Step 12: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}

	return nil
}

// getPartition determines partition key for sequence validation
func (c *LendingCore) getPartition(evt event.Event) string {
	if p := evt.Partition(); p != nil {
		return fmt.Sprintf("partition:%s", *p)
	}
	return "global"
}

// getEventTimestamp extracts the versioned timestamp (epoch microseconds)
// from an event. The core never calls time.Now() for domain state; all
// timestamps are versioned inputs.
func (c *LendingCore) getEventTimestamp(evt event.Event) int64 {
	switch e := evt.(type) {
	case *event.Deposit:
		return e.Timestamp
	case *event.Withdrawal:
		return e.Timestamp
	case *event.Supply:
		return e.Timestamp
	case *event.Redeem:
		return e.Timestamp
	case *event.Borrow:
		return e.Timestamp
	case *event.BatchBorrow:
		return e.Timestamp
	case *event.Repay:
		return e.Timestamp
	case *event.BatchRepay:
		return e.Timestamp
	case *event.AuctionBid:
		return e.Timestamp
	case *event.Liquidate:
		return e.Timestamp
	case *event.NftPriceUpdate:
		return e.PriceTimestamp
	case *event.ReservePriceUpdate:
		return e.PriceTimestamp
	case *event.ReserveConfigUpdate:
		return e.Timestamp
	case *event.NftConfigUpdate:
		return e.Timestamp
	default:
		panic(fmt.Sprintf("FATAL: getEventTimestamp called with unhandled event type %T — deterministic core cannot use wall-clock time", evt))
	}
}

// eventSeconds converts an event's microsecond timestamp to the epoch
// seconds used by interest accrual and auction countdowns.
func (c *LendingCore) eventSeconds(evt event.Event) int64 {
	return c.getEventTimestamp(evt) / 1_000_000
}

// computeStateDigest creates canonical bytes for state hash
func (c *LendingCore) computeStateDigest(batch *ledger.Batch) []byte {
	affectedAccounts := make(map[ledger.AccountKey]bool)

	if batch != nil {
		for _, j := range batch.Journals {
			affectedAccounts[j.DebitAccount] = true
			affectedAccounts[j.CreditAccount] = true
		}
	}

	accounts := make([]ledger.AccountKey, 0, len(affectedAccounts))
	for key := range affectedAccounts {
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make([]byte, 0, len(accounts)*64)
	for _, key := range accounts {
		balance := c.balanceTracker.GetBalance(key)

		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendBigIntDigest(digest, balance)
	}

	return digest
}

// appendBigIntDigest appends a length-prefixed big-endian encoding.
func appendBigIntDigest(buf []byte, v *big.Int) []byte {
	b := v.Bytes()
	buf = append(buf, byte(len(b)))
	return append(buf, b...)
}

// postCheckInvariants validates invariants after batch application
func (c *LendingCore) postCheckInvariants(evt event.Event) error {
	switch e := evt.(type) {
	case *event.Withdrawal:
		assetID, _ := ledger.GetAssetID(e.Asset)
		if err := c.balanceTracker.ValidateCashNonNegative(e.UserID, assetID); err != nil {
			return fmt.Errorf("post-check withdrawal: %w", err)
		}

	case *event.Redeem:
		assetID, _ := ledger.GetAssetID(e.Asset)
		if err := c.validator.ValidatePoolNonNegative(assetID); err != nil {
			return fmt.Errorf("post-check redeem: %w", err)
		}

	case *event.Borrow:
		assetID, _ := ledger.GetAssetID(e.Asset)
		if err := c.validator.ValidatePoolNonNegative(assetID); err != nil {
			return fmt.Errorf("post-check borrow: %w", err)
		}

	case *event.AuctionBid:
		loan := c.loanByCollateral(e.NftAsset, e.NftTokenID)
		if loan != nil {
			assetID, _ := ledger.GetAssetID(loan.ReserveAsset)
			bidder := e.Winner()
			if err := c.balanceTracker.ValidateCashNonNegative(bidder, assetID); err != nil {
				return fmt.Errorf("post-check bid: %w", err)
			}
			if err := c.balanceTracker.ValidateEscrowNonNegative(bidder, assetID); err != nil {
				return fmt.Errorf("post-check bid escrow: %w", err)
			}
		}

	case *event.Liquidate:
		// The collateral index entry is gone after settlement, so the
		// reserve asset is no longer reachable from the event; check every
		// pool instead.
		for _, asset := range c.reserves.Assets() {
			assetID, ok := ledger.GetAssetID(asset)
			if !ok {
				continue
			}
			if err := c.validator.ValidatePoolNonNegative(assetID); err != nil {
				return fmt.Errorf("post-check liquidate: %w", err)
			}
		}
	}

	// Periodic global zero-sum check: the sum of every account balance per
	// asset must be exactly zero.
	if c.sequence > 0 && c.sequence%1000 == 0 {
		if err := c.validator.ValidateGlobalBalance(); err != nil {
			return fmt.Errorf("post-check global: %w (at seq %d)", err, c.sequence)
		}
	}

	return nil
}

func (c *LendingCore) loanByCollateral(nftAsset string, tokenID uint64) *state.LoanData {
	key := state.NftKey{Asset: nftAsset, TokenID: tokenID}
	loanID, ok := c.loans.GetCollateralLoanID(key)
	if !ok {
		return nil
	}
	return c.loans.GetLoan(loanID)
}

// preEventLoanIDs records which loans the event targets before dispatch.
// A zero entry means no open loan backed that leg's collateral.
func (c *LendingCore) preEventLoanIDs(evt event.Event) []uint64 {
	switch e := evt.(type) {
	case *event.Repay:
		if loan := c.loanByCollateral(e.NftAsset, e.NftTokenID); loan != nil {
			return []uint64{loan.LoanID}
		}
	case *event.BatchRepay:
		ids := make([]uint64, len(e.NftAssets))
		for i := range e.NftAssets {
			if loan := c.loanByCollateral(e.NftAssets[i], e.NftTokenIDs[i]); loan != nil {
				ids[i] = loan.LoanID
			}
		}
		return ids
	case *event.Liquidate:
		if loan := c.loanByCollateral(e.NftAsset, e.NftTokenID); loan != nil {
			return []uint64{loan.LoanID}
		}
	}
	return nil
}

// projectionAttachments builds the per-batch loan image and auction record
// after dispatch has mutated state. Slices are aligned with the batches.
func (c *LendingCore) projectionAttachments(
	evt event.Event,
	preIDs []uint64,
	legs int,
) ([]*state.LoanData, []*AuctionRecord) {
	loans := make([]*state.LoanData, legs)
	auctions := make([]*AuctionRecord, legs)
	if legs == 0 {
		return loans, auctions
	}

	switch e := evt.(type) {
	case *event.Borrow:
		if loan := c.loanByCollateral(e.NftAsset, e.NftTokenID); loan != nil {
			loans[0] = loan.Clone()
		}
	case *event.BatchBorrow:
		for i := range e.NftAssets {
			if i >= legs {
				break
			}
			if loan := c.loanByCollateral(e.NftAssets[i], e.NftTokenIDs[i]); loan != nil {
				loans[i] = loan.Clone()
			}
		}
	case *event.Repay:
		if len(preIDs) == 1 && preIDs[0] != 0 {
			if loan := c.loans.GetLoan(preIDs[0]); loan != nil {
				loans[0] = loan.Clone()
			}
		}
	case *event.BatchRepay:
		for i, id := range preIDs {
			if i >= legs || id == 0 {
				continue
			}
			if loan := c.loans.GetLoan(id); loan != nil {
				loans[i] = loan.Clone()
			}
		}
	case *event.AuctionBid:
		if loan := c.loanByCollateral(e.NftAsset, e.NftTokenID); loan != nil {
			loans[0] = loan.Clone()
			auctions[0] = &AuctionRecord{
				LoanID:     loan.LoanID,
				NftAsset:   loan.NftAsset,
				NftTokenID: loan.NftTokenID,
				Bidder:     loans[0].Bidder,
				BidPrice:   new(big.Int).Set(loans[0].BidPrice),
				Settled:    false,
				Timestamp:  e.Timestamp,
			}
		}
	case *event.Liquidate:
		if len(preIDs) == 1 && preIDs[0] != 0 {
			if loan := c.loans.GetLoan(preIDs[0]); loan != nil {
				loans[0] = loan.Clone()
				if loans[0].BidPrice != nil {
					auctions[0] = &AuctionRecord{
						LoanID:     loan.LoanID,
						NftAsset:   loan.NftAsset,
						NftTokenID: loan.NftTokenID,
						Bidder:     loans[0].Bidder,
						BidPrice:   new(big.Int).Set(loans[0].BidPrice),
						Settled:    true,
						Timestamp:  e.Timestamp,
					}
				}
			}
		}
	}

	return loans, auctions
}

func (c *LendingCore) handleDeposit(evt *event.Deposit) (*ledger.Batch, error) {
	assetID, ok := ledger.GetAssetID(evt.Asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}
	if evt.Amount == nil || evt.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive")
	}

	return c.journalGen.GenerateDeposit(evt.UserID, evt.IdempotencyKey(), evt.Amount, assetID, evt.Timestamp)
}

func (c *LendingCore) handleWithdrawal(evt *event.Withdrawal) (*ledger.Batch, error) {
	assetID, ok := ledger.GetAssetID(evt.Asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}
	if evt.Amount == nil || evt.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("withdrawal amount must be positive")
	}

	return c.journalGen.GenerateWithdrawal(evt.UserID, evt.IdempotencyKey(), evt.Amount, assetID, evt.Timestamp)
}

// handleSupply moves user cash into the reserve pool and mints the
// supplier's scaled balance at the post-accrual liquidity index.
func (c *LendingCore) handleSupply(evt *event.Supply) (*ledger.Batch, error) {
	assetID, reserve, err := c.activeReserve(evt.Asset)
	if err != nil {
		return nil, err
	}
	if reserve.Config.Frozen {
		return nil, fmt.Errorf("reserve %s is frozen", evt.Asset)
	}
	if evt.Amount == nil || evt.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("supply amount must be positive")
	}

	if err := reserve.UpdateState(c.eventSeconds(evt)); err != nil {
		return nil, err
	}

	scaled, err := fpmath.RayDiv(evt.Amount, reserve.LiquidityIndex)
	if err != nil {
		return nil, err
	}
	if scaled.Sign() == 0 {
		return nil, fmt.Errorf("supply amount %s too small at current index", evt.Amount)
	}

	batch, err := c.journalGen.GenerateSupply(evt.UserID, evt.IdempotencyKey(), evt.Amount, assetID, evt.Timestamp)
	if err != nil {
		return nil, err
	}
	if err := reserve.SupplyBook.Mint(evt.UserID, scaled); err != nil {
		return nil, err
	}

	liquidity := c.balanceTracker.GetPoolLiquidity(assetID)
	liquidity.Add(liquidity, evt.Amount)
	if err := reserve.UpdateInterestRates(liquidity); err != nil {
		return nil, err
	}

	return batch, nil
}

// handleRedeem burns supplier scaled balance and returns pool liquidity.
func (c *LendingCore) handleRedeem(evt *event.Redeem) (*ledger.Batch, error) {
	assetID, reserve, err := c.activeReserve(evt.Asset)
	if err != nil {
		return nil, err
	}
	if evt.Amount == nil || evt.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("redeem amount must be positive")
	}

	if err := reserve.UpdateState(c.eventSeconds(evt)); err != nil {
		return nil, err
	}

	scaledBalance := reserve.SupplyBook.ScaledBalance(evt.UserID)
	maxUnderlying, err := fpmath.AmountFromScaled(scaledBalance, reserve.LiquidityIndex)
	if err != nil {
		return nil, err
	}
	if evt.Amount.Cmp(maxUnderlying) > 0 {
		return nil, fmt.Errorf("redeem %s exceeds supplied balance %s", evt.Amount, maxUnderlying)
	}

	// Burn the whole scaled balance on a full exit so no dust is stranded.
	var scaledBurn *big.Int
	if evt.Amount.Cmp(maxUnderlying) == 0 {
		scaledBurn = scaledBalance
	} else {
		scaledBurn, err = fpmath.RayDivUp(evt.Amount, reserve.LiquidityIndex)
		if err != nil {
			return nil, err
		}
		if scaledBurn.Cmp(scaledBalance) > 0 {
			scaledBurn = scaledBalance
		}
	}

	batch, err := c.journalGen.GenerateRedeem(evt.UserID, evt.IdempotencyKey(), evt.Amount, assetID, evt.Timestamp)
	if err != nil {
		return nil, err
	}
	if scaledBurn.Sign() > 0 {
		if err := reserve.SupplyBook.Burn(evt.UserID, scaledBurn); err != nil {
			return nil, err
		}
	}

	liquidity := c.balanceTracker.GetPoolLiquidity(assetID)
	liquidity.Sub(liquidity, evt.Amount)
	if err := reserve.UpdateInterestRates(liquidity); err != nil {
		return nil, err
	}

	return batch, nil
}

// borrowPlan is a fully validated borrow leg awaiting application. Batch
// borrows validate every leg before applying any of them.
type borrowPlan struct {
	evt       *event.Borrow
	assetID   ledger.AssetID
	reserve   *state.ReserveData
	loanID    uint64 // 0 for a new loan
	scaledAdd *big.Int
}

func (c *LendingCore) handleBorrow(evt *event.Borrow) (*ledger.Batch, error) {
	plan, err := c.planBorrowLeg(evt, c.eventSeconds(evt), newPendingTotals())
	if err != nil {
		return nil, err
	}
	return c.applyBorrowPlan(plan, newPendingTotals())
}

// handleBatchBorrow validates all legs against current state plus the
// batch's own pending effects, then applies them. One bad leg rejects the
// whole batch before any state changes.
func (c *LendingCore) handleBatchBorrow(evt *event.BatchBorrow) ([]*ledger.Batch, error) {
	legs := evt.Legs()
	if len(legs) == 0 {
		return nil, fmt.Errorf("batch borrow has no legs")
	}
	if len(evt.Assets) != len(evt.Amounts) || len(evt.Assets) != len(evt.NftAssets) || len(evt.Assets) != len(evt.NftTokenIDs) {
		return nil, fmt.Errorf("batch borrow leg slices are not parallel")
	}

	nowSec := c.eventSeconds(evt)
	pending := newPendingTotals()

	plans := make([]*borrowPlan, 0, len(legs))
	for i, leg := range legs {
		plan, err := c.planBorrowLeg(leg, nowSec, pending)
		if err != nil {
			return nil, fmt.Errorf("leg %d: %w", i, err)
		}
		plans = append(plans, plan)
	}

	// Reset disbursement totals: applyBorrowPlan re-accumulates them to
	// compute post-leg liquidity.
	applyPending := newPendingTotals()
	batches := make([]*ledger.Batch, 0, len(plans))
	for i, plan := range plans {
		batch, err := c.applyBorrowPlan(plan, applyPending)
		if err != nil {
			// Validation guaranteed every leg applies; an error here means
			// core state diverged mid-batch.
			panic(fmt.Sprintf("FATAL: batch borrow leg %d failed after validation: %v", i, err))
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// pendingTotals accumulates a batch's own effects so later legs validate
// against the state the earlier legs will produce.
type pendingTotals struct {
	outflow    map[ledger.AssetID]*big.Int
	collateral map[state.NftKey]bool
}

func newPendingTotals() *pendingTotals {
	return &pendingTotals{
		outflow:    make(map[ledger.AssetID]*big.Int),
		collateral: make(map[state.NftKey]bool),
	}
}

func (p *pendingTotals) outflowFor(assetID ledger.AssetID) *big.Int {
	v, ok := p.outflow[assetID]
	if !ok {
		v = new(big.Int)
		p.outflow[assetID] = v
	}
	return v
}

func (c *LendingCore) planBorrowLeg(evt *event.Borrow, nowSec int64, pending *pendingTotals) (*borrowPlan, error) {
	assetID, reserve, err := c.activeReserve(evt.Asset)
	if err != nil {
		return nil, err
	}
	if reserve.Config.Frozen {
		return nil, fmt.Errorf("reserve %s is frozen", evt.Asset)
	}
	if !reserve.Config.BorrowingEnabled {
		return nil, fmt.Errorf("borrowing disabled for reserve %s", evt.Asset)
	}
	if evt.Amount == nil || evt.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("borrow amount must be positive")
	}

	nft, err := c.activeCollection(evt.NftAsset)
	if err != nil {
		return nil, err
	}
	if !nft.AcceptsToken(evt.NftTokenID) {
		return nil, fmt.Errorf("token %d outside collateral window for %s", evt.NftTokenID, evt.NftAsset)
	}

	if err := reserve.UpdateState(nowSec); err != nil {
		return nil, err
	}

	borrower := evt.Borrower()
	key := state.NftKey{Asset: evt.NftAsset, TokenID: evt.NftTokenID}

	existingDebt := new(big.Int)
	var loanID uint64
	if id, encumbered := c.loans.GetCollateralLoanID(key); encumbered {
		loan := c.loans.GetLoan(id)
		if loan.State != state.LoanStateActive {
			return nil, fmt.Errorf("loan %d is %s, cannot borrow more", id, loan.State)
		}
		if loan.Borrower != borrower {
			return nil, fmt.Errorf("collateral %s pledged by another borrower", key)
		}
		if loan.ReserveAsset != evt.Asset {
			return nil, fmt.Errorf("loan %d borrows %s, cannot mix in %s", id, loan.ReserveAsset, evt.Asset)
		}
		existingDebt, err = fpmath.AmountFromScaled(loan.ScaledAmount, reserve.VariableBorrowIndex)
		if err != nil {
			return nil, err
		}
		loanID = id
	} else {
		if pending.collateral[key] {
			return nil, fmt.Errorf("collateral %s pledged twice in one batch", key)
		}
		if evt.Amount.Cmp(c.params.MinBorrowAmount) < 0 {
			return nil, fmt.Errorf("first borrow %s below minimum %s", evt.Amount, c.params.MinBorrowAmount)
		}
	}

	// Collateral value check: total debt after the borrow must stay within
	// the collection's loan-to-value share of the current floor price.
	newDebt := new(big.Int).Add(existingDebt, evt.Amount)
	debtRef, err := c.prices.ToReference(reserve, newDebt)
	if err != nil {
		return nil, err
	}
	floorPrice, ok := c.prices.GetNftPrice(evt.NftAsset)
	if !ok {
		return nil, fmt.Errorf("no oracle price for collection %s", evt.NftAsset)
	}
	maxBorrowRef, err := fpmath.PercentMul(floorPrice, nft.Config.LTV)
	if err != nil {
		return nil, err
	}
	if debtRef.Cmp(maxBorrowRef) > 0 {
		return nil, fmt.Errorf("borrow exceeds ltv: debt %s above limit %s", debtRef, maxBorrowRef)
	}

	// Liquidity check including this batch's earlier legs.
	available := c.balanceTracker.GetPoolLiquidity(assetID)
	available.Sub(available, pending.outflowFor(assetID))
	if available.Cmp(evt.Amount) < 0 {
		return nil, fmt.Errorf("insufficient pool liquidity: have %s, need %s", available, evt.Amount)
	}
	pending.outflowFor(assetID).Add(pending.outflowFor(assetID), evt.Amount)
	pending.collateral[key] = true

	scaledAdd, err := fpmath.ScaledFromAmount(evt.Amount, reserve.VariableBorrowIndex)
	if err != nil {
		return nil, err
	}

	return &borrowPlan{
		evt:       evt,
		assetID:   assetID,
		reserve:   reserve,
		loanID:    loanID,
		scaledAdd: scaledAdd,
	}, nil
}

func (c *LendingCore) applyBorrowPlan(plan *borrowPlan, pending *pendingTotals) (*ledger.Batch, error) {
	evt := plan.evt
	borrower := evt.Borrower()
	key := state.NftKey{Asset: evt.NftAsset, TokenID: evt.NftTokenID}
	nowSec := evt.Timestamp / 1_000_000

	batch, err := c.journalGen.GenerateBorrow(evt.UserID, evt.IdempotencyKey(), evt.Amount, plan.assetID, evt.Timestamp)
	if err != nil {
		return nil, err
	}
	if err := plan.reserve.DebtBook.Mint(borrower, plan.scaledAdd); err != nil {
		return nil, err
	}

	if plan.loanID != 0 {
		if err := c.loans.UpdateLoan(plan.loanID, plan.scaledAdd, nil, nowSec); err != nil {
			return nil, err
		}
	} else {
		if _, err := c.loans.CreateLoan(borrower, evt.NftAsset, evt.NftTokenID, evt.Asset, plan.scaledAdd); err != nil {
			return nil, err
		}
		if err := c.nfts.WrapCollateral(key, borrower); err != nil {
			return nil, err
		}
	}

	pending.outflowFor(plan.assetID).Add(pending.outflowFor(plan.assetID), evt.Amount)
	liquidity := c.balanceTracker.GetPoolLiquidity(plan.assetID)
	liquidity.Sub(liquidity, pending.outflowFor(plan.assetID))
	if err := plan.reserve.UpdateInterestRates(liquidity); err != nil {
		return nil, err
	}

	return batch, nil
}

// repayPlan is a fully validated repay leg awaiting application.
type repayPlan struct {
	evt          *event.Repay
	assetID      ledger.AssetID
	reserve      *state.ReserveData
	loanID       uint64
	payAmount    *big.Int
	scaledCredit *big.Int
	fullRepay    bool
}

func (c *LendingCore) handleRepay(evt *event.Repay) (*ledger.Batch, error) {
	plan, err := c.planRepayLeg(evt, c.eventSeconds(evt), newPendingTotals())
	if err != nil {
		return nil, err
	}
	return c.applyRepayPlan(plan, newPendingTotals())
}

func (c *LendingCore) handleBatchRepay(evt *event.BatchRepay) ([]*ledger.Batch, error) {
	legs := evt.Legs()
	if len(legs) == 0 {
		return nil, fmt.Errorf("batch repay has no legs")
	}
	if len(evt.NftAssets) != len(evt.NftTokenIDs) || len(evt.NftAssets) != len(evt.Amounts) {
		return nil, fmt.Errorf("batch repay leg slices are not parallel")
	}

	nowSec := c.eventSeconds(evt)
	pending := newPendingTotals()

	plans := make([]*repayPlan, 0, len(legs))
	for i, leg := range legs {
		plan, err := c.planRepayLeg(leg, nowSec, pending)
		if err != nil {
			return nil, fmt.Errorf("leg %d: %w", i, err)
		}
		plans = append(plans, plan)
	}

	applyPending := newPendingTotals()
	batches := make([]*ledger.Batch, 0, len(plans))
	for i, plan := range plans {
		batch, err := c.applyRepayPlan(plan, applyPending)
		if err != nil {
			panic(fmt.Sprintf("FATAL: batch repay leg %d failed after validation: %v", i, err))
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

func (c *LendingCore) planRepayLeg(evt *event.Repay, nowSec int64, pending *pendingTotals) (*repayPlan, error) {
	loan := c.loanByCollateral(evt.NftAsset, evt.NftTokenID)
	if loan == nil {
		return nil, fmt.Errorf("no active loan on %s#%d", evt.NftAsset, evt.NftTokenID)
	}
	if loan.State != state.LoanStateActive && loan.State != state.LoanStateAvailableAuction {
		return nil, fmt.Errorf("loan %d is %s, cannot repay", loan.LoanID, loan.State)
	}
	if evt.Amount == nil || evt.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("repay amount must be positive")
	}
	key := state.NftKey{Asset: evt.NftAsset, TokenID: evt.NftTokenID}
	if pending.collateral[key] {
		return nil, fmt.Errorf("loan on %s repaid twice in one batch", key)
	}

	assetID, ok := ledger.GetAssetID(loan.ReserveAsset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", loan.ReserveAsset)
	}
	reserve, ok := c.reserves.GetReserve(loan.ReserveAsset)
	if !ok {
		return nil, fmt.Errorf("unknown reserve: %s", loan.ReserveAsset)
	}
	if err := reserve.UpdateState(nowSec); err != nil {
		return nil, err
	}

	debt, err := fpmath.AmountFromScaled(loan.ScaledAmount, reserve.VariableBorrowIndex)
	if err != nil {
		return nil, err
	}

	// Overpayment is clamped to the owed debt.
	pay := new(big.Int).Set(evt.Amount)
	full := false
	if pay.Cmp(debt) >= 0 {
		pay.Set(debt)
		full = true
	}

	var scaledCredit *big.Int
	if full {
		scaledCredit = new(big.Int).Set(loan.ScaledAmount)
	} else {
		// Round the credit down so debt is never forgiven by rounding.
		scaledCredit, err = fpmath.RayDivDown(pay, reserve.VariableBorrowIndex)
		if err != nil {
			return nil, err
		}
	}

	// Payer must cover this leg plus the batch's earlier legs.
	required := new(big.Int).Add(pay, pending.outflowFor(assetID))
	if err := c.balanceTracker.ValidateSufficientCash(evt.UserID, assetID, required); err != nil {
		return nil, fmt.Errorf("repay pre-check failed: %w", err)
	}
	pending.outflowFor(assetID).Add(pending.outflowFor(assetID), pay)
	pending.collateral[key] = true

	return &repayPlan{
		evt:          evt,
		assetID:      assetID,
		reserve:      reserve,
		loanID:       loan.LoanID,
		payAmount:    pay,
		scaledCredit: scaledCredit,
		fullRepay:    full,
	}, nil
}

func (c *LendingCore) applyRepayPlan(plan *repayPlan, pending *pendingTotals) (*ledger.Batch, error) {
	evt := plan.evt
	nowSec := evt.Timestamp / 1_000_000
	loan := c.loans.GetLoan(plan.loanID)
	key := state.NftKey{Asset: evt.NftAsset, TokenID: evt.NftTokenID}

	batch, err := c.journalGen.GenerateRepay(evt.UserID, evt.IdempotencyKey(), plan.payAmount, plan.assetID, evt.Timestamp)
	if err != nil {
		return nil, err
	}
	if plan.scaledCredit.Sign() > 0 {
		if err := plan.reserve.DebtBook.Burn(loan.Borrower, plan.scaledCredit); err != nil {
			return nil, err
		}
	}

	if plan.fullRepay {
		if err := c.loans.RepayLoan(plan.loanID); err != nil {
			return nil, err
		}
		if err := c.nfts.UnwrapCollateral(key); err != nil {
			return nil, err
		}
	} else {
		if err := c.loans.UpdateLoan(plan.loanID, nil, plan.scaledCredit, nowSec); err != nil {
			return nil, err
		}
		c.flagPartialCure(plan, nowSec)
	}

	pending.outflowFor(plan.assetID).Add(pending.outflowFor(plan.assetID), plan.payAmount)
	liquidity := c.balanceTracker.GetPoolLiquidity(plan.assetID)
	liquidity.Add(liquidity, pending.outflowFor(plan.assetID))
	if err := plan.reserve.UpdateInterestRates(liquidity); err != nil {
		return nil, err
	}

	return batch, nil
}

// flagPartialCure updates the repay-grace flag after a partial repayment:
// a payment that leaves the loan undercollateralized starts (or restarts)
// the grace clock; one that cures it clears the flag.
func (c *LendingCore) flagPartialCure(plan *repayPlan, nowSec int64) {
	loan := c.loans.GetLoan(plan.loanID)
	nft, ok := c.nfts.GetCollection(loan.NftAsset)
	if !ok {
		return
	}
	data, err := c.prices.CalculateLoanLiquidatePrice(loan, plan.reserve, nft, nowSec)
	if err != nil {
		// No oracle data: leave the flag untouched.
		return
	}
	if state.IsAuctionEligible(data) {
		_ = c.loans.SetLiquidateGrace(plan.loanID, true, nowSec)
	} else if loan.IsLiquidate {
		_ = c.loans.SetLiquidateGrace(plan.loanID, false, nowSec)
	}
}

// handleAuctionBid validates and escrows an English-auction bid.
func (c *LendingCore) handleAuctionBid(evt *event.AuctionBid) (*ledger.Batch, error) {
	loan := c.loanByCollateral(evt.NftAsset, evt.NftTokenID)
	if loan == nil {
		return nil, fmt.Errorf("no active loan on %s#%d", evt.NftAsset, evt.NftTokenID)
	}
	if evt.BidPrice == nil || evt.BidPrice.Sign() <= 0 {
		return nil, fmt.Errorf("bid price must be positive")
	}

	assetID, ok := ledger.GetAssetID(loan.ReserveAsset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", loan.ReserveAsset)
	}
	reserve, ok := c.reserves.GetReserve(loan.ReserveAsset)
	if !ok {
		return nil, fmt.Errorf("unknown reserve: %s", loan.ReserveAsset)
	}
	nft, ok := c.nfts.GetCollection(loan.NftAsset)
	if !ok {
		return nil, fmt.Errorf("unknown collection: %s", loan.NftAsset)
	}

	nowSec := c.eventSeconds(evt)
	if err := reserve.UpdateState(nowSec); err != nil {
		return nil, err
	}

	bidder := evt.Winner()
	debt, err := fpmath.AmountFromScaled(loan.ScaledAmount, reserve.VariableBorrowIndex)
	if err != nil {
		return nil, err
	}

	switch loan.State {
	case state.LoanStateActive, state.LoanStateAvailableAuction:
		data, err := c.prices.CalculateLoanLiquidatePrice(loan, reserve, nft, nowSec)
		if err != nil {
			return nil, err
		}
		// Eligibility is checked against the current price even for loans
		// already flagged AvailableAuction, so a recovered floor closes the
		// bid window again.
		if !state.IsAuctionEligible(data) {
			return nil, fmt.Errorf("loan %d is healthy, not open for bids", loan.LoanID)
		}

		// The opening bid must cover both the liquidate-price floor and
		// the full owed debt.
		floorUnits, err := c.prices.FromReference(reserve, data.LiquidatePrice)
		if err != nil {
			return nil, err
		}
		if evt.BidPrice.Cmp(floorUnits) < 0 {
			return nil, fmt.Errorf("bid %s below liquidate price %s", evt.BidPrice, floorUnits)
		}
		if evt.BidPrice.Cmp(debt) < 0 {
			return nil, fmt.Errorf("bid %s below owed debt %s", evt.BidPrice, debt)
		}

	case state.LoanStateAuction:
		durationSec := int64(nft.Config.AuctionDurationHours) * 3600
		if nowSec > loan.BidStartTimestamp+durationSec {
			return nil, fmt.Errorf("auction on loan %d ended at %d", loan.LoanID, loan.BidStartTimestamp+durationSec)
		}
		if evt.BidPrice.Cmp(loan.BidPrice) <= 0 {
			return nil, fmt.Errorf("bid %s not above standing bid %s", evt.BidPrice, loan.BidPrice)
		}
		minNext, err := fpmath.PercentMul(loan.BidPrice, c.params.MinBidDeltaPercent)
		if err != nil {
			return nil, err
		}
		if evt.BidPrice.Cmp(minNext) < 0 {
			return nil, fmt.Errorf("bid %s below minimum increment %s", evt.BidPrice, minNext)
		}

	default:
		return nil, fmt.Errorf("loan %d is %s, cannot accept bids", loan.LoanID, loan.State)
	}

	// Escrow the new bid and refund the outbid escrow in one batch.
	var prevBidder *uuid.UUID
	var prevAmount *big.Int
	if loan.HasBid() {
		pb := loan.Bidder
		prevBidder = &pb
		prevAmount = loan.BidPrice
	}

	batch, err := c.journalGen.GenerateBidLock(bidder, evt.IdempotencyKey(), evt.BidPrice, prevBidder, prevAmount, assetID, evt.Timestamp)
	if err != nil {
		return nil, err
	}

	if err := c.loans.AuctionLoan(loan.LoanID, bidder, evt.BidPrice, debt, nowSec); err != nil {
		return nil, err
	}

	return batch, nil
}

// handleLiquidate settles an auctioned loan after its countdown elapsed.
func (c *LendingCore) handleLiquidate(evt *event.Liquidate) (*ledger.Batch, error) {
	loan := c.loanByCollateral(evt.NftAsset, evt.NftTokenID)
	if loan == nil {
		return nil, fmt.Errorf("no active loan on %s#%d", evt.NftAsset, evt.NftTokenID)
	}
	if loan.State != state.LoanStateAuction || !loan.HasBid() {
		return nil, fmt.Errorf("loan %d is %s, nothing to settle", loan.LoanID, loan.State)
	}

	assetID, ok := ledger.GetAssetID(loan.ReserveAsset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", loan.ReserveAsset)
	}
	reserve, ok := c.reserves.GetReserve(loan.ReserveAsset)
	if !ok {
		return nil, fmt.Errorf("unknown reserve: %s", loan.ReserveAsset)
	}
	nft, ok := c.nfts.GetCollection(loan.NftAsset)
	if !ok {
		return nil, fmt.Errorf("unknown collection: %s", loan.NftAsset)
	}

	nowSec := c.eventSeconds(evt)
	durationSec := int64(nft.Config.AuctionDurationHours) * 3600
	if nowSec <= loan.BidStartTimestamp+durationSec {
		return nil, fmt.Errorf("auction on loan %d still open until %d", loan.LoanID, loan.BidStartTimestamp+durationSec)
	}

	if err := reserve.UpdateState(nowSec); err != nil {
		return nil, err
	}
	debt, err := fpmath.AmountFromScaled(loan.ScaledAmount, reserve.VariableBorrowIndex)
	if err != nil {
		return nil, err
	}

	bid := new(big.Int).Set(loan.BidPrice)
	split := ledger.LiquidationSplit{
		WinnerID:            loan.Bidder,
		BorrowerID:          loan.Borrower,
		CallerID:            evt.CallerID,
		DebtFromEscrow:      new(big.Int),
		ShortfallFromCaller: new(big.Int),
		RewardToVault:       new(big.Int),
		SurplusToBorrower:   new(big.Int),
	}

	if bid.Cmp(debt) >= 0 {
		// Bid covers the debt; the surplus splits between vault reward and
		// the borrower.
		split.DebtFromEscrow.Set(debt)
		surplus := new(big.Int).Sub(bid, debt)
		reward, err := fpmath.PercentMul(surplus, c.params.BidRewardRatePercent)
		if err != nil {
			return nil, err
		}
		split.RewardToVault.Set(reward)
		split.SurplusToBorrower.Sub(surplus, reward)
	} else {
		// Bid falls short; the caller committed ExtraDebtAmount to cover
		// the gap.
		split.DebtFromEscrow.Set(bid)
		shortfall := new(big.Int).Sub(debt, bid)
		extra := evt.ExtraDebtAmount
		if extra == nil || extra.Cmp(shortfall) < 0 {
			return nil, fmt.Errorf("shortfall %s exceeds extra debt amount %v", shortfall, extra)
		}
		split.ShortfallFromCaller.Set(shortfall)
	}

	batch, err := c.journalGen.GenerateLiquidationSettlement(split, evt.IdempotencyKey(), bid, assetID, evt.Timestamp)
	if err != nil {
		return nil, err
	}

	scaled := new(big.Int).Set(loan.ScaledAmount)
	if scaled.Sign() > 0 {
		if err := reserve.DebtBook.Burn(loan.Borrower, scaled); err != nil {
			return nil, err
		}
	}
	if err := c.loans.LiquidateLoan(loan.LoanID); err != nil {
		return nil, err
	}
	key := state.NftKey{Asset: evt.NftAsset, TokenID: evt.NftTokenID}
	if err := c.nfts.UnwrapCollateral(key); err != nil {
		return nil, err
	}

	liquidity := c.balanceTracker.GetPoolLiquidity(assetID)
	liquidity.Add(liquidity, debt)
	if err := reserve.UpdateInterestRates(liquidity); err != nil {
		return nil, err
	}

	return batch, nil
}

// handleNftPriceUpdate records an oracle floor price. Price updates
// mutate only in-memory state and emit an empty batch for the event log.
func (c *LendingCore) handleNftPriceUpdate(evt *event.NftPriceUpdate) (*ledger.Batch, error) {
	if evt.Price == nil || evt.Price.Sign() <= 0 {
		return nil, fmt.Errorf("price must be positive")
	}
	if err := c.prices.UpdateNftPrice(evt.NftAsset, evt.Price, evt.PriceSequence, evt.PriceTimestamp/1_000_000); err != nil {
		return nil, err
	}
	c.markForcedAuctions(evt.NftAsset, evt.PriceTimestamp/1_000_000)
	return c.emptyBatch(evt.IdempotencyKey(), evt.PriceTimestamp), nil
}

// markForcedAuctions flags loans in the repriced collection whose debt
// exceeds the highest recently observed threshold price as open for bids.
// Loans that only breach the current threshold stay Active: a single-block
// price dip is not sufficient to force default, and the borrower keeps the
// repay path until the forced tier is hit.
func (c *LendingCore) markForcedAuctions(nftAsset string, nowSec int64) {
	nft, ok := c.nfts.GetCollection(nftAsset)
	if !ok {
		return
	}
	for _, loan := range c.loans.AllLoans() {
		if loan.State != state.LoanStateActive || loan.NftAsset != nftAsset {
			continue
		}
		reserve, ok := c.reserves.GetReserve(loan.ReserveAsset)
		if !ok {
			continue
		}
		data, err := c.prices.CalculateLoanLiquidatePrice(loan, reserve, nft, nowSec)
		if err != nil {
			continue
		}
		if state.IsForcedAuction(loan, data, c.params.RepayGraceSeconds, nowSec) {
			// Cannot fail from Active; the registry treats re-marking as a no-op.
			_ = c.loans.AvailableAuctionLoan(loan.LoanID)
		}
	}
}

func (c *LendingCore) handleReservePriceUpdate(evt *event.ReservePriceUpdate) (*ledger.Batch, error) {
	if evt.Price == nil || evt.Price.Sign() <= 0 {
		return nil, fmt.Errorf("price must be positive")
	}
	if err := c.prices.UpdateReservePrice(evt.Asset, evt.Price, evt.PriceSequence, evt.PriceTimestamp/1_000_000); err != nil {
		return nil, err
	}
	return c.emptyBatch(evt.IdempotencyKey(), evt.PriceTimestamp), nil
}

// handleReserveConfigUpdate creates or reconfigures a reserve. An invalid
// update is rejected without touching state.
func (c *LendingCore) handleReserveConfigUpdate(evt *event.ReserveConfigUpdate) (*ledger.Batch, error) {
	cfg := state.ReserveConfig{
		Active:           evt.Active,
		Frozen:           evt.Frozen,
		BorrowingEnabled: evt.BorrowingEnabled,
		Decimals:         evt.Decimals,
		ReserveFactor:    evt.ReserveFactor,
	}

	var strategy *state.KinkedRateStrategy
	if evt.BaseRate != nil || evt.Slope1 != nil || evt.Slope2 != nil || evt.OptimalUtilization != nil {
		strategy = &state.KinkedRateStrategy{
			BaseRate:           evt.BaseRate,
			Slope1:             evt.Slope1,
			Slope2:             evt.Slope2,
			OptimalUtilization: evt.OptimalUtilization,
		}
		if err := strategy.Validate(); err != nil {
			return nil, err
		}
	}

	if _, exists := c.reserves.GetReserve(evt.Asset); exists {
		if err := c.reserves.ApplyConfigUpdate(evt.Asset, cfg, strategy); err != nil {
			return nil, err
		}
	} else {
		// The chart of accounts must know the asset before a pool opens.
		if _, ok := ledger.GetAssetID(evt.Asset); !ok {
			return nil, fmt.Errorf("asset %s not registered in the ledger", evt.Asset)
		}
		var s state.InterestRateStrategy = state.DefaultRateStrategy()
		if strategy != nil {
			s = strategy
		}
		if _, err := c.reserves.CreateReserve(evt.Asset, cfg, s); err != nil {
			return nil, err
		}
	}

	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

func (c *LendingCore) handleNftConfigUpdate(evt *event.NftConfigUpdate) (*ledger.Batch, error) {
	cfg := state.NftConfig{
		Active:                evt.Active,
		Frozen:                evt.Frozen,
		LTV:                   evt.LTV,
		LiquidationThreshold:  evt.LiquidationThreshold,
		LiquidatePricePercent: evt.LiquidatePricePercent,
		AuctionDurationHours:  evt.AuctionDurationHours,
		MinTokenID:            evt.MinTokenID,
		MaxTokenID:            evt.MaxTokenID,
	}

	if _, exists := c.nfts.GetCollection(evt.NftAsset); exists {
		if err := c.nfts.ApplyConfigUpdate(evt.NftAsset, cfg); err != nil {
			return nil, err
		}
	} else {
		if _, err := c.nfts.CreateCollection(evt.NftAsset, cfg); err != nil {
			return nil, err
		}
	}

	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

func (c *LendingCore) emptyBatch(eventRef string, timestamp int64) *ledger.Batch {
	return &ledger.Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  c.sequence,
		Timestamp: timestamp,
		Journals:  []ledger.Journal{},
	}
}

func (c *LendingCore) activeReserve(asset string) (ledger.AssetID, *state.ReserveData, error) {
	assetID, ok := ledger.GetAssetID(asset)
	if !ok {
		return 0, nil, fmt.Errorf("unknown asset: %s", asset)
	}
	reserve, ok := c.reserves.GetReserve(asset)
	if !ok {
		return 0, nil, fmt.Errorf("unknown reserve: %s", asset)
	}
	if !reserve.Config.Active {
		return 0, nil, fmt.Errorf("reserve %s is not active", asset)
	}
	return assetID, reserve, nil
}

func (c *LendingCore) activeCollection(nftAsset string) (*state.NftData, error) {
	if c.nfts.IsBlacklisted(nftAsset) {
		return nil, fmt.Errorf("collection %s is blacklisted", nftAsset)
	}
	nft, ok := c.nfts.GetCollection(nftAsset)
	if !ok {
		return nil, fmt.Errorf("unknown collection: %s", nftAsset)
	}
	if !nft.Config.Active {
		return nil, fmt.Errorf("collection %s is not active", nftAsset)
	}
	if nft.Config.Frozen {
		return nil, fmt.Errorf("collection %s is frozen", nftAsset)
	}
	return nft, nil
}

func (c *LendingCore) dispatchEvent(evt event.Event) (*ledger.Batch, error) {
	switch e := evt.(type) {
	case *event.Deposit:
		return c.handleDeposit(e)
	case *event.Withdrawal:
		return c.handleWithdrawal(e)
	case *event.Supply:
		return c.handleSupply(e)
	case *event.Redeem:
		return c.handleRedeem(e)
	case *event.Borrow:
		return c.handleBorrow(e)
	case *event.Repay:
		return c.handleRepay(e)
	case *event.AuctionBid:
		return c.handleAuctionBid(e)
	case *event.Liquidate:
		return c.handleLiquidate(e)
	case *event.NftPriceUpdate:
		return c.handleNftPriceUpdate(e)
	case *event.ReservePriceUpdate:
		return c.handleReservePriceUpdate(e)
	case *event.ReserveConfigUpdate:
		return c.handleReserveConfigUpdate(e)
	case *event.NftConfigUpdate:
		return c.handleNftConfigUpdate(e)
	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
}
