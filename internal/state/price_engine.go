package state

import (
	"fmt"
	"math/big"

	fpmath "NFTLend/internal/math"
)

// PriceObservation is one oracle reading.
type PriceObservation struct {
	Price     *big.Int
	Sequence  int64
	Timestamp int64 // Epoch seconds (versioned input)
}

// priceWindow keeps the latest observation plus the recent history needed
// for the windowed-highest query.
type priceWindow struct {
	latest  *PriceObservation
	history []*PriceObservation // Ascending by timestamp, pruned to window
}

// PriceEngine tracks oracle prices and computes per-loan liquidation
// figures. NFT collections keep a rolling window of observations so that a
// single price dip cannot immediately force a loan into auction; reserve
// assets keep only the latest reading.
type PriceEngine struct {
	nftPrices     map[string]*priceWindow
	reservePrices map[string]*PriceObservation
	windowSeconds int64
}

func NewPriceEngine(windowSeconds int64) *PriceEngine {
	return &PriceEngine{
		nftPrices:     make(map[string]*priceWindow),
		reservePrices: make(map[string]*PriceObservation),
		windowSeconds: windowSeconds,
	}
}

// UpdateNftPrice records a collection floor price. Stale or duplicate
// sequences are silently ignored (idempotent replay).
func (pe *PriceEngine) UpdateNftPrice(asset string, price *big.Int, sequence, timestamp int64) error {
	if price == nil || price.Sign() < 0 {
		return fmt.Errorf("nft price for %s must be non-negative, got %v", asset, price)
	}

	w := pe.nftPrices[asset]
	if w == nil {
		w = &priceWindow{}
		pe.nftPrices[asset] = w
	}
	if w.latest != nil && sequence <= w.latest.Sequence {
		return nil
	}

	obs := &PriceObservation{
		Price:     new(big.Int).Set(price),
		Sequence:  sequence,
		Timestamp: timestamp,
	}
	w.latest = obs
	w.history = append(w.history, obs)
	pe.prune(w, timestamp)

	return nil
}

func (pe *PriceEngine) prune(w *priceWindow, now int64) {
	cutoff := now - pe.windowSeconds
	i := 0
	for i < len(w.history) && w.history[i].Timestamp < cutoff {
		i++
	}
	if i > 0 {
		w.history = w.history[i:]
	}
}

// UpdateReservePrice records a reserve asset price in the reference
// currency. Stale sequences are ignored.
func (pe *PriceEngine) UpdateReservePrice(asset string, price *big.Int, sequence, timestamp int64) error {
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("reserve price for %s must be positive, got %v", asset, price)
	}
	current := pe.reservePrices[asset]
	if current != nil && sequence <= current.Sequence {
		return nil
	}
	pe.reservePrices[asset] = &PriceObservation{
		Price:     new(big.Int).Set(price),
		Sequence:  sequence,
		Timestamp: timestamp,
	}
	return nil
}

// GetNftPrice returns the latest floor price for a collection.
func (pe *PriceEngine) GetNftPrice(asset string) (*big.Int, bool) {
	w := pe.nftPrices[asset]
	if w == nil || w.latest == nil {
		return nil, false
	}
	return new(big.Int).Set(w.latest.Price), true
}

// GetHighestNftPrice returns the highest floor price observed within the
// lookback window ending at now.
func (pe *PriceEngine) GetHighestNftPrice(asset string, now int64) (*big.Int, bool) {
	w := pe.nftPrices[asset]
	if w == nil || w.latest == nil {
		return nil, false
	}
	cutoff := now - pe.windowSeconds

	highest := new(big.Int)
	found := false
	for _, obs := range w.history {
		if obs.Timestamp < cutoff {
			continue
		}
		if obs.Price.Cmp(highest) > 0 {
			highest.Set(obs.Price)
		}
		found = true
	}
	if !found {
		// Window empty (prices older than the window): fall back to latest.
		return new(big.Int).Set(w.latest.Price), true
	}
	return highest, true
}

// GetReservePrice returns the latest price for a reserve asset.
func (pe *PriceEngine) GetReservePrice(asset string) (*big.Int, bool) {
	obs := pe.reservePrices[asset]
	if obs == nil {
		return nil, false
	}
	return new(big.Int).Set(obs.Price), true
}

// LiquidatePriceData is the health snapshot of one loan, all figures in
// the reference currency.
type LiquidatePriceData struct {
	// BorrowAmount is the loan's current owed debt.
	BorrowAmount *big.Int

	// ThresholdPrice is the debt level at which the loan becomes
	// auction-eligible (collateral price x liquidation threshold).
	ThresholdPrice *big.Int

	// LiquidatePrice is the minimum acceptable first bid.
	LiquidatePrice *big.Int

	// HighestThresholdPrice applies the threshold to the highest price in
	// the lookback window; debt must exceed it for a forced auction.
	HighestThresholdPrice *big.Int
}

// CalculateLoanLiquidatePrice computes the health snapshot for a loan.
// The reserve must have had UpdateState called for the current instant,
// otherwise the debt figure is stale.
func (pe *PriceEngine) CalculateLoanLiquidatePrice(
	loan *LoanData,
	reserve *ReserveData,
	nft *NftData,
	now int64,
) (*LiquidatePriceData, error) {
	debt, err := fpmath.AmountFromScaled(loan.ScaledAmount, reserve.VariableBorrowIndex)
	if err != nil {
		return nil, err
	}
	debtRef, err := pe.ToReference(reserve, debt)
	if err != nil {
		return nil, err
	}

	collateralPrice, ok := pe.GetNftPrice(loan.NftAsset)
	if !ok {
		return nil, fmt.Errorf("no oracle price for collection %s", loan.NftAsset)
	}
	highestPrice, ok := pe.GetHighestNftPrice(loan.NftAsset, now)
	if !ok {
		return nil, fmt.Errorf("no windowed price for collection %s", loan.NftAsset)
	}

	threshold, err := fpmath.PercentMul(collateralPrice, nft.Config.LiquidationThreshold)
	if err != nil {
		return nil, err
	}
	liquidatePrice, err := fpmath.PercentMul(collateralPrice, nft.Config.LiquidatePricePercent)
	if err != nil {
		return nil, err
	}
	highestThreshold, err := fpmath.PercentMul(highestPrice, nft.Config.LiquidationThreshold)
	if err != nil {
		return nil, err
	}

	return &LiquidatePriceData{
		BorrowAmount:          debtRef,
		ThresholdPrice:        threshold,
		LiquidatePrice:        liquidatePrice,
		HighestThresholdPrice: highestThreshold,
	}, nil
}

// ToReference converts an amount of reserve units into the reference
// currency using the latest oracle price and the reserve's decimals.
func (pe *PriceEngine) ToReference(reserve *ReserveData, amount *big.Int) (*big.Int, error) {
	price, ok := pe.GetReservePrice(reserve.Asset)
	if !ok {
		return nil, fmt.Errorf("no oracle price for reserve %s", reserve.Asset)
	}
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(reserve.Config.Decimals)), nil)
	out := new(big.Int).Mul(amount, price)
	return out.Quo(out, unit), nil
}

// FromReference converts a reference-currency amount into reserve units,
// rounding up so debt obligations never shrink in conversion.
func (pe *PriceEngine) FromReference(reserve *ReserveData, refAmount *big.Int) (*big.Int, error) {
	price, ok := pe.GetReservePrice(reserve.Asset)
	if !ok {
		return nil, fmt.Errorf("no oracle price for reserve %s", reserve.Asset)
	}
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(reserve.Config.Decimals)), nil)
	num := new(big.Int).Mul(refAmount, unit)
	out, rem := new(big.Int).QuoRem(num, price, new(big.Int))
	if rem.Sign() > 0 {
		out.Add(out, big.NewInt(1))
	}
	return out, nil
}

// IsForcedAuction reports whether a loan must enter auction with no grace:
// debt exceeds even the highest windowed threshold, and any repay-grace
// period from a prior partial cure has expired.
func IsForcedAuction(loan *LoanData, data *LiquidatePriceData, graceSeconds, now int64) bool {
	if data.BorrowAmount.Cmp(data.HighestThresholdPrice) <= 0 {
		return false
	}
	if loan.IsLiquidate && now <= loan.RepayTime+graceSeconds {
		return false
	}
	return true
}

// IsAuctionEligible reports whether debt exceeds the current threshold.
func IsAuctionEligible(data *LiquidatePriceData) bool {
	return data.BorrowAmount.Cmp(data.ThresholdPrice) > 0
}

// AllNftPrices returns latest+history per collection (snapshots).
func (pe *PriceEngine) AllNftPrices() map[string][]*PriceObservation {
	out := make(map[string][]*PriceObservation, len(pe.nftPrices))
	for asset, w := range pe.nftPrices {
		hist := make([]*PriceObservation, len(w.history))
		copy(hist, w.history)
		out[asset] = hist
	}
	return out
}

// AllReservePrices returns the latest reserve observations (snapshots).
func (pe *PriceEngine) AllReservePrices() map[string]*PriceObservation {
	out := make(map[string]*PriceObservation, len(pe.reservePrices))
	for asset, obs := range pe.reservePrices {
		out[asset] = obs
	}
	return out
}

// RestoreNftPrices reinstalls collection price history (snapshot restore).
func (pe *PriceEngine) RestoreNftPrices(prices map[string][]*PriceObservation) {
	pe.nftPrices = make(map[string]*priceWindow, len(prices))
	for asset, hist := range prices {
		if len(hist) == 0 {
			continue
		}
		w := &priceWindow{history: hist}
		w.latest = hist[len(hist)-1]
		pe.nftPrices[asset] = w
	}
}

// RestoreReservePrices reinstalls reserve prices (snapshot restore).
func (pe *PriceEngine) RestoreReservePrices(prices map[string]*PriceObservation) {
	pe.reservePrices = make(map[string]*PriceObservation, len(prices))
	for asset, obs := range prices {
		pe.reservePrices[asset] = obs
	}
}
