package state

import (
	"fmt"
	"math/big"

	fpmath "NFTLend/internal/math"
)

// ReserveConfig holds a reserve's operational flags and fee settings as an
// explicit validated struct.
type ReserveConfig struct {
	Active           bool
	Frozen           bool
	BorrowingEnabled bool
	Decimals         uint8
	ReserveFactor    uint64 // Percentage units; share of borrow interest to treasury
}

// ValidateReserveConfig checks configuration ranges before application.
func ValidateReserveConfig(cfg *ReserveConfig) error {
	if cfg.Decimals == 0 || cfg.Decimals > 36 {
		return fmt.Errorf("decimals must be in [1, 36], got %d", cfg.Decimals)
	}
	if cfg.ReserveFactor >= fpmath.PercentageFactor {
		return fmt.Errorf("reserve_factor must be < %d, got %d", fpmath.PercentageFactor, cfg.ReserveFactor)
	}
	return nil
}

// ReserveData is the accrual state of one shared lending pool. Interest is
// materialized lazily: indexes advance only when UpdateState is called with
// a later timestamp, and both indexes are monotonically non-decreasing.
type ReserveData struct {
	Asset  string
	Config ReserveConfig

	// Accrual indexes, ray. LiquidityIndex grows linearly with the supply
	// rate; VariableBorrowIndex compounds with the borrow rate.
	LiquidityIndex      *big.Int
	VariableBorrowIndex *big.Int

	// Current annualized rates, ray. Recomputed after every fund movement.
	CurrentLiquidityRate *big.Int
	CurrentBorrowRate    *big.Int

	// Last accrual instant, epoch seconds (versioned input, not wall clock).
	LastUpdateTimestamp int64

	Strategy InterestRateStrategy

	// Receipt-token books: scaled supply (cTokens) and scaled variable debt.
	SupplyBook *ScaledBook
	DebtBook   *ScaledBook
}

func NewReserveData(asset string, cfg ReserveConfig, strategy InterestRateStrategy) (*ReserveData, error) {
	if err := ValidateReserveConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config for reserve %s: %w", asset, err)
	}
	return &ReserveData{
		Asset:                asset,
		Config:               cfg,
		LiquidityIndex:       new(big.Int).Set(fpmath.Ray),
		VariableBorrowIndex:  new(big.Int).Set(fpmath.Ray),
		CurrentLiquidityRate: new(big.Int),
		CurrentBorrowRate:    new(big.Int),
		Strategy:             strategy,
		SupplyBook:           NewScaledBook(),
		DebtBook:             NewScaledBook(),
	}, nil
}

// TotalDebt returns the reserve's outstanding debt at the current borrow
// index. Call UpdateState first for an up-to-date figure.
func (r *ReserveData) TotalDebt() (*big.Int, error) {
	return fpmath.AmountFromScaled(r.DebtBook.TotalScaled(), r.VariableBorrowIndex)
}

// UpdateState advances both accrual indexes to now and mints the treasury's
// share of accrued borrow interest. Idempotent: a second call at the same
// instant is a no-op, and time never moves the indexes backward.
func (r *ReserveData) UpdateState(now int64) error {
	elapsed := now - r.LastUpdateTimestamp
	if elapsed < 0 {
		return fmt.Errorf("reserve %s: timestamp %d before last update %d", r.Asset, now, r.LastUpdateTimestamp)
	}
	if elapsed == 0 {
		return nil
	}
	if r.DebtBook.TotalScaled().Sign() == 0 {
		// No debt: nothing accrues, just advance the clock.
		r.LastUpdateTimestamp = now
		return nil
	}

	prevDebt, err := r.TotalDebt()
	if err != nil {
		return err
	}

	if r.CurrentLiquidityRate.Sign() > 0 {
		factor, err := fpmath.LinearInterest(r.CurrentLiquidityRate, elapsed)
		if err != nil {
			return err
		}
		next, err := fpmath.RayMul(r.LiquidityIndex, factor)
		if err != nil {
			return err
		}
		r.LiquidityIndex = next
	}

	if r.CurrentBorrowRate.Sign() > 0 {
		factor, err := fpmath.CompoundedInterest(r.CurrentBorrowRate, elapsed)
		if err != nil {
			return err
		}
		next, err := fpmath.RayMul(r.VariableBorrowIndex, factor)
		if err != nil {
			return err
		}
		r.VariableBorrowIndex = next
	}

	r.LastUpdateTimestamp = now

	return r.mintToTreasury(prevDebt)
}

// mintToTreasury converts the reserve-factor share of newly accrued debt
// interest into scaled supply held by the treasury.
func (r *ReserveData) mintToTreasury(prevDebt *big.Int) error {
	if r.Config.ReserveFactor == 0 {
		return nil
	}
	currentDebt, err := r.TotalDebt()
	if err != nil {
		return err
	}
	accrued := new(big.Int).Sub(currentDebt, prevDebt)
	if accrued.Sign() <= 0 {
		return nil
	}
	fee, err := fpmath.PercentMul(accrued, r.Config.ReserveFactor)
	if err != nil {
		return err
	}
	if fee.Sign() == 0 {
		return nil
	}
	scaled, err := fpmath.RayDiv(fee, r.LiquidityIndex)
	if err != nil {
		return err
	}
	if scaled.Sign() == 0 {
		return nil
	}
	return r.SupplyBook.Mint(TreasuryEntityID, scaled)
}

// UpdateInterestRates recomputes the reserve's rates from post-operation
// utilization. availableLiquidity is the pool's un-borrowed cash after the
// fund movement being recorded.
func (r *ReserveData) UpdateInterestRates(availableLiquidity *big.Int) error {
	totalDebt, err := r.TotalDebt()
	if err != nil {
		return err
	}

	utilization := new(big.Int)
	if totalDebt.Sign() > 0 {
		denom := new(big.Int).Add(totalDebt, availableLiquidity)
		utilization, err = fpmath.RayDiv(totalDebt, denom)
		if err != nil {
			return err
		}
	}

	liquidityRate, borrowRate, err := r.Strategy.Rates(utilization, r.Config.ReserveFactor)
	if err != nil {
		return err
	}

	r.CurrentLiquidityRate = liquidityRate
	r.CurrentBorrowRate = borrowRate
	return nil
}

// CanonicalBytes returns deterministic serialization for hashing.
func (r *ReserveData) CanonicalBytes() []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, byte(len(r.Asset)))
	buf = append(buf, []byte(r.Asset)...)
	buf = appendBigInt(buf, r.LiquidityIndex)
	buf = appendBigInt(buf, r.VariableBorrowIndex)
	buf = appendBigInt(buf, r.CurrentLiquidityRate)
	buf = appendBigInt(buf, r.CurrentBorrowRate)
	buf = appendInt64LE(buf, r.LastUpdateTimestamp)
	buf = append(buf, r.SupplyBook.CanonicalBytes()...)
	buf = append(buf, r.DebtBook.CanonicalBytes()...)
	return buf
}

// ReserveManager holds all configured reserves.
type ReserveManager struct {
	reserves map[string]*ReserveData
	assets   []string // Creation order, for deterministic iteration
}

func NewReserveManager() *ReserveManager {
	return &ReserveManager{
		reserves: make(map[string]*ReserveData),
	}
}

func (rm *ReserveManager) CreateReserve(asset string, cfg ReserveConfig, strategy InterestRateStrategy) (*ReserveData, error) {
	if _, exists := rm.reserves[asset]; exists {
		return nil, fmt.Errorf("reserve %s already exists", asset)
	}
	r, err := NewReserveData(asset, cfg, strategy)
	if err != nil {
		return nil, err
	}
	rm.reserves[asset] = r
	rm.assets = append(rm.assets, asset)
	return r, nil
}

func (rm *ReserveManager) GetReserve(asset string) (*ReserveData, bool) {
	r, ok := rm.reserves[asset]
	return r, ok
}

// Assets returns reserve symbols in creation order.
func (rm *ReserveManager) Assets() []string {
	out := make([]string, len(rm.assets))
	copy(out, rm.assets)
	return out
}

// ApplyConfigUpdate validates and installs new configuration and strategy
// parameters for an existing reserve.
func (rm *ReserveManager) ApplyConfigUpdate(asset string, cfg ReserveConfig, strategy *KinkedRateStrategy) error {
	r, ok := rm.reserves[asset]
	if !ok {
		return fmt.Errorf("unknown reserve %s", asset)
	}
	if err := ValidateReserveConfig(&cfg); err != nil {
		return fmt.Errorf("invalid config for reserve %s: %w", asset, err)
	}
	if strategy != nil {
		if err := strategy.Validate(); err != nil {
			return fmt.Errorf("invalid strategy for reserve %s: %w", asset, err)
		}
		r.Strategy = strategy
	}
	r.Config = cfg
	return nil
}

// AllReserves returns every reserve in creation order for snapshotting.
func (rm *ReserveManager) AllReserves() []*ReserveData {
	out := make([]*ReserveData, 0, len(rm.assets))
	for _, asset := range rm.assets {
		out = append(out, rm.reserves[asset])
	}
	return out
}

// RestoreReserve installs a reserve rebuilt from a snapshot, replacing any
// existing entry for the same asset.
func (rm *ReserveManager) RestoreReserve(r *ReserveData) {
	if _, exists := rm.reserves[r.Asset]; !exists {
		rm.assets = append(rm.assets, r.Asset)
	}
	rm.reserves[r.Asset] = r
}
