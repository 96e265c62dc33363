package state

import (
	"fmt"

	"github.com/google/uuid"
)

// NftConfig holds a collection's collateral parameters as an explicit
// validated struct. Field ranges match the packed-storage limits the wire
// format inherits: percentages fit in 16 bits and the auction countdown
// fits in 8 bits of hours.
type NftConfig struct {
	Active bool
	Frozen bool

	LTV                   uint64 // Percentage units; max borrow vs collateral price
	LiquidationThreshold  uint64 // Percentage units; debt above this is liquidatable
	LiquidatePricePercent uint64 // Percentage units; first-bid floor vs collateral price

	AuctionDurationHours uint64 // English-auction countdown

	// Token ID window accepted as collateral (inclusive). Zero MaxTokenID
	// means unbounded.
	MinTokenID uint64
	MaxTokenID uint64
}

const (
	maxConfigPercent        = 65_535 // 16-bit packed percentage limit
	maxAuctionDurationHours = 255    // 8-bit packed hours limit
)

// ValidateNftConfig checks configuration ranges before application.
func ValidateNftConfig(cfg *NftConfig) error {
	if cfg.LTV > maxConfigPercent {
		return fmt.Errorf("ltv must be <= %d, got %d", maxConfigPercent, cfg.LTV)
	}
	if cfg.LiquidationThreshold > maxConfigPercent {
		return fmt.Errorf("liquidation_threshold must be <= %d, got %d", maxConfigPercent, cfg.LiquidationThreshold)
	}
	if cfg.LiquidatePricePercent > maxConfigPercent {
		return fmt.Errorf("liquidate_price_percent must be <= %d, got %d", maxConfigPercent, cfg.LiquidatePricePercent)
	}
	if cfg.LTV > cfg.LiquidationThreshold {
		return fmt.Errorf("ltv (%d) must not exceed liquidation_threshold (%d)", cfg.LTV, cfg.LiquidationThreshold)
	}
	if cfg.LiquidatePricePercent < cfg.LiquidationThreshold {
		return fmt.Errorf("liquidate_price_percent (%d) must be >= liquidation_threshold (%d)",
			cfg.LiquidatePricePercent, cfg.LiquidationThreshold)
	}
	if cfg.AuctionDurationHours == 0 || cfg.AuctionDurationHours > maxAuctionDurationHours {
		return fmt.Errorf("auction_duration_hours must be in [1, %d], got %d",
			maxAuctionDurationHours, cfg.AuctionDurationHours)
	}
	if cfg.MaxTokenID != 0 && cfg.MinTokenID > cfg.MaxTokenID {
		return fmt.Errorf("min_token_id (%d) above max_token_id (%d)", cfg.MinTokenID, cfg.MaxTokenID)
	}
	return nil
}

// NftData is the per-collection collateral state.
type NftData struct {
	Asset  string // Collection symbol
	Config NftConfig
}

// AcceptsToken reports whether a token ID falls inside the configured
// collateral window.
func (n *NftData) AcceptsToken(tokenID uint64) bool {
	if tokenID < n.Config.MinTokenID {
		return false
	}
	if n.Config.MaxTokenID != 0 && tokenID > n.Config.MaxTokenID {
		return false
	}
	return true
}

// NftKey identifies a single collateral token.
type NftKey struct {
	Asset   string
	TokenID uint64
}

func (k NftKey) String() string {
	return fmt.Sprintf("%s#%d", k.Asset, k.TokenID)
}

// NftManager holds collection configs, the collection blacklist, and the
// wrapped-collateral registry (which user custody-locked which token).
type NftManager struct {
	collections map[string]*NftData
	blacklist   map[string]bool

	// wrapped marks tokens held as live collateral, keyed by token and
	// valued by the pledging borrower.
	wrapped map[NftKey]uuid.UUID
}

func NewNftManager() *NftManager {
	return &NftManager{
		collections: make(map[string]*NftData),
		blacklist:   make(map[string]bool),
		wrapped:     make(map[NftKey]uuid.UUID),
	}
}

func (nm *NftManager) CreateCollection(asset string, cfg NftConfig) (*NftData, error) {
	if _, exists := nm.collections[asset]; exists {
		return nil, fmt.Errorf("collection %s already exists", asset)
	}
	if err := ValidateNftConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config for collection %s: %w", asset, err)
	}
	n := &NftData{Asset: asset, Config: cfg}
	nm.collections[asset] = n
	return n, nil
}

func (nm *NftManager) GetCollection(asset string) (*NftData, bool) {
	n, ok := nm.collections[asset]
	return n, ok
}

// ApplyConfigUpdate validates and installs a new collection config.
func (nm *NftManager) ApplyConfigUpdate(asset string, cfg NftConfig) error {
	n, ok := nm.collections[asset]
	if !ok {
		return fmt.Errorf("unknown collection %s", asset)
	}
	if err := ValidateNftConfig(&cfg); err != nil {
		return fmt.Errorf("invalid config for collection %s: %w", asset, err)
	}
	n.Config = cfg
	return nil
}

// SetBlacklisted marks or clears a collection ban. Banned collections
// reject new borrows; existing loans keep running.
func (nm *NftManager) SetBlacklisted(asset string, banned bool) {
	if banned {
		nm.blacklist[asset] = true
	} else {
		delete(nm.blacklist, asset)
	}
}

func (nm *NftManager) IsBlacklisted(asset string) bool {
	return nm.blacklist[asset]
}

// WrapCollateral records custody of a pledged token. Fails if the token is
// already locked, which also enforces one active loan per token.
func (nm *NftManager) WrapCollateral(key NftKey, borrower uuid.UUID) error {
	if holder, exists := nm.wrapped[key]; exists {
		return fmt.Errorf("token %s already pledged by %s", key, holder)
	}
	nm.wrapped[key] = borrower
	return nil
}

// UnwrapCollateral releases custody of a token (repay or liquidation).
func (nm *NftManager) UnwrapCollateral(key NftKey) error {
	if _, exists := nm.wrapped[key]; !exists {
		return fmt.Errorf("token %s is not pledged", key)
	}
	delete(nm.wrapped, key)
	return nil
}

// WrappedBy returns the borrower holding a pledged token, if any.
func (nm *NftManager) WrappedBy(key NftKey) (uuid.UUID, bool) {
	holder, ok := nm.wrapped[key]
	return holder, ok
}

// AllCollections returns collection configs keyed by asset for snapshotting.
func (nm *NftManager) AllCollections() map[string]NftConfig {
	out := make(map[string]NftConfig, len(nm.collections))
	for asset, n := range nm.collections {
		out[asset] = n.Config
	}
	return out
}

// Blacklisted returns the currently banned collections.
func (nm *NftManager) Blacklisted() []string {
	out := make([]string, 0, len(nm.blacklist))
	for asset := range nm.blacklist {
		out = append(out, asset)
	}
	return out
}

// WrappedEntries returns a copy of the wrapped-collateral registry.
func (nm *NftManager) WrappedEntries() map[NftKey]uuid.UUID {
	out := make(map[NftKey]uuid.UUID, len(nm.wrapped))
	for key, holder := range nm.wrapped {
		out[key] = holder
	}
	return out
}

// RestoreWrapped replaces the wrapped-collateral registry from a snapshot.
func (nm *NftManager) RestoreWrapped(entries map[NftKey]uuid.UUID) {
	nm.wrapped = make(map[NftKey]uuid.UUID, len(entries))
	for key, holder := range entries {
		nm.wrapped[key] = holder
	}
}
