package ledger

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]*big.Int
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]*big.Int),
	}
}

func (bt *BalanceTracker) balance(key AccountKey) *big.Int {
	b, ok := bt.balances[key]
	if !ok {
		b = new(big.Int)
		bt.balances[key] = b
	}
	return b
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	debit := bt.balance(j.DebitAccount)
	debit.Add(debit, j.Amount)

	credit := bt.balance(j.CreditAccount)
	credit.Sub(credit, j.Amount)
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns a copy of the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) *big.Int {
	if b, ok := bt.balances[key]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// === User Balance Queries ===

// GetUserCashBalance returns the user's free in-system balance
func (bt *BalanceTracker) GetUserCashBalance(userID uuid.UUID, assetID AssetID) *big.Int {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeCash, assetID))
}

// GetUserBidEscrow returns the user's locked auction bid balance
func (bt *BalanceTracker) GetUserBidEscrow(userID uuid.UUID, assetID AssetID) *big.Int {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeBidEscrow, assetID))
}

// GetPoolLiquidity returns the reserve pool's available underlying.
// This is the cash available for borrows and withdrawals, not total
// supplied (borrowed funds have left the pool account).
func (bt *BalanceTracker) GetPoolLiquidity(assetID AssetID) *big.Int {
	return bt.GetBalance(NewPoolAccountKey(assetID))
}

// GetTreasuryBalance returns accrued protocol fees held as cash
func (bt *BalanceTracker) GetTreasuryBalance(assetID AssetID) *big.Int {
	return bt.GetBalance(NewTreasuryAccountKey(assetID))
}

// GetVaultBalance returns accumulated first-bidder rewards
func (bt *BalanceTracker) GetVaultBalance(assetID AssetID) *big.Int {
	return bt.GetBalance(NewVaultAccountKey(assetID))
}

// === Invariant Checks ===

// ValidateCashNonNegative checks user cash >= 0
func (bt *BalanceTracker) ValidateCashNonNegative(userID uuid.UUID, assetID AssetID) error {
	cash := bt.GetUserCashBalance(userID, assetID)
	if cash.Sign() < 0 {
		return fmt.Errorf("user %s has negative cash balance for asset %d: %s",
			userID.String(), assetID, cash)
	}
	return nil
}

// ValidateEscrowNonNegative checks user bid escrow >= 0
func (bt *BalanceTracker) ValidateEscrowNonNegative(userID uuid.UUID, assetID AssetID) error {
	escrow := bt.GetUserBidEscrow(userID, assetID)
	if escrow.Sign() < 0 {
		return fmt.Errorf("user %s has negative bid escrow for asset %d: %s",
			userID.String(), assetID, escrow)
	}
	return nil
}

// ValidateSufficientCash checks if user has enough free balance
func (bt *BalanceTracker) ValidateSufficientCash(userID uuid.UUID, assetID AssetID, required *big.Int) error {
	cash := bt.GetUserCashBalance(userID, assetID)
	if cash.Cmp(required) < 0 {
		return fmt.Errorf("insufficient cash balance: have=%s, need=%s", cash, required)
	}
	return nil
}

// ValidateSufficientLiquidity checks the pool can cover a disbursement
func (bt *BalanceTracker) ValidateSufficientLiquidity(assetID AssetID, required *big.Int) error {
	liquidity := bt.GetPoolLiquidity(assetID)
	if liquidity.Cmp(required) < 0 {
		return fmt.Errorf("insufficient pool liquidity: have=%s, need=%s", liquidity, required)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]*big.Int {
	totals := make(map[AssetID]*big.Int)

	for key, balance := range bt.balances {
		total, ok := totals[key.AssetID]
		if !ok {
			total = new(big.Int)
			totals[key.AssetID] = total
		}
		total.Add(total, balance)
	}

	return totals
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance.Sign() < 0 {
		return fmt.Errorf("account %s has negative balance: %s", key.AccountPath(), balance)
	}
	return nil
}

// Snapshot returns a deep copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]*big.Int {
	snapshot := make(map[AccountKey]*big.Int, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = new(big.Int).Set(v)
	}
	return snapshot
}

// Restore replaces all balances from a snapshot
func (bt *BalanceTracker) Restore(snapshot map[AccountKey]*big.Int) {
	bt.balances = make(map[AccountKey]*big.Int, len(snapshot))
	for k, v := range snapshot {
		bt.balances[k] = new(big.Int).Set(v)
	}
}
