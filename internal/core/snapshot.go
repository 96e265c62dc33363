package core

import (
	"fmt"
	"math/big"

	"NFTLend/internal/ledger"
	"NFTLend/internal/state"

	"github.com/google/uuid"
)

// SnapshotState holds the serializable in-memory state for restore.
// This mirrors persistence.SnapshotData but uses typed fields.
type SnapshotState struct {
	Sequence        int64
	LastTimestamp   int64
	StateHash       [32]byte
	Balances        map[ledger.AccountKey]*big.Int
	Reserves        []*ReserveSnapshot
	NftConfigs      map[string]state.NftConfig
	Blacklist       []string
	Wrapped         map[state.NftKey]uuid.UUID
	Loans           []*state.LoanData
	NftPrices       map[string][]*state.PriceObservation
	ReservePrices   map[string]*state.PriceObservation
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// ReserveSnapshot captures one reserve's accrual state. The rate strategy
// is stored concretely; the kinked model is the only one in use.
type ReserveSnapshot struct {
	Asset                string
	Config               state.ReserveConfig
	Strategy             *state.KinkedRateStrategy
	LiquidityIndex       *big.Int
	VariableBorrowIndex  *big.Int
	CurrentLiquidityRate *big.Int
	CurrentBorrowRate    *big.Int
	LastUpdateTimestamp  int64
	SupplyBook           map[uuid.UUID]*big.Int
	DebtBook             map[uuid.UUID]*big.Int
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *LendingCore) CreateSnapshotState() *SnapshotState {
	reserves := c.reserves.AllReserves()
	reserveSnaps := make([]*ReserveSnapshot, 0, len(reserves))
	for _, r := range reserves {
		strategy, _ := r.Strategy.(*state.KinkedRateStrategy)
		reserveSnaps = append(reserveSnaps, &ReserveSnapshot{
			Asset:                r.Asset,
			Config:               r.Config,
			Strategy:             strategy,
			LiquidityIndex:       new(big.Int).Set(r.LiquidityIndex),
			VariableBorrowIndex:  new(big.Int).Set(r.VariableBorrowIndex),
			CurrentLiquidityRate: new(big.Int).Set(r.CurrentLiquidityRate),
			CurrentBorrowRate:    new(big.Int).Set(r.CurrentBorrowRate),
			LastUpdateTimestamp:  r.LastUpdateTimestamp,
			SupplyBook:           r.SupplyBook.Snapshot(),
			DebtBook:             r.DebtBook.Snapshot(),
		})
	}

	return &SnapshotState{
		Sequence:        c.sequence - 1, // Last processed sequence
		LastTimestamp:   c.lastTimestamp,
		StateHash:       c.hasher.GetPrevHash(),
		Balances:        c.balanceTracker.Snapshot(),
		Reserves:        reserveSnaps,
		NftConfigs:      c.nfts.AllCollections(),
		Blacklist:       c.nfts.Blacklisted(),
		Wrapped:         c.nfts.WrappedEntries(),
		Loans:           c.loans.AllLoans(),
		NftPrices:       c.prices.AllNftPrices(),
		ReservePrices:   c.prices.AllReservePrices(),
		SequenceState:   c.sequenceValidator.AllPartitions(),
		IdempotencyKeys: c.idempotency.lru.GetAllKeys(),
	}
}

// RestoreFromSnapshot restores the core's in-memory state from a snapshot.
// On warm restart: load latest snapshot, then replay events after it.
func (c *LendingCore) RestoreFromSnapshot(snap *SnapshotState) error {
	c.sequence = snap.Sequence + 1 // Next sequence to assign
	c.lastTimestamp = snap.LastTimestamp
	c.hasher.SetPrevHash(snap.StateHash)
	c.journalGen.SetSequence(c.sequence)

	c.balanceTracker.Restore(snap.Balances)

	for _, rs := range snap.Reserves {
		var strategy state.InterestRateStrategy = state.DefaultRateStrategy()
		if rs.Strategy != nil {
			strategy = rs.Strategy
		}
		r, err := state.NewReserveData(rs.Asset, rs.Config, strategy)
		if err != nil {
			return fmt.Errorf("restore reserve %s: %w", rs.Asset, err)
		}
		r.LiquidityIndex.Set(rs.LiquidityIndex)
		r.VariableBorrowIndex.Set(rs.VariableBorrowIndex)
		r.CurrentLiquidityRate.Set(rs.CurrentLiquidityRate)
		r.CurrentBorrowRate.Set(rs.CurrentBorrowRate)
		r.LastUpdateTimestamp = rs.LastUpdateTimestamp
		r.SupplyBook.Restore(rs.SupplyBook)
		r.DebtBook.Restore(rs.DebtBook)
		c.reserves.RestoreReserve(r)
	}

	for asset, cfg := range snap.NftConfigs {
		if _, exists := c.nfts.GetCollection(asset); exists {
			if err := c.nfts.ApplyConfigUpdate(asset, cfg); err != nil {
				return fmt.Errorf("restore collection %s: %w", asset, err)
			}
		} else if _, err := c.nfts.CreateCollection(asset, cfg); err != nil {
			return fmt.Errorf("restore collection %s: %w", asset, err)
		}
	}
	for _, asset := range snap.Blacklist {
		c.nfts.SetBlacklisted(asset, true)
	}
	c.nfts.RestoreWrapped(snap.Wrapped)

	for _, loan := range snap.Loans {
		c.loans.RestoreLoan(loan)
	}

	c.prices.RestoreNftPrices(snap.NftPrices)
	c.prices.RestoreReservePrices(snap.ReservePrices)

	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.SetExpectedSequence(partition, nextSeq)
	}

	return nil
}

// WarmLRU loads recent idempotency keys into the LRU cache so recently
// processed events skip the cold-path DB lookup.
func (c *LendingCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the current global sequence number.
func (c *LendingCore) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *LendingCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}
