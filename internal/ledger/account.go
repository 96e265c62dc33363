package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeCash AccountSubType = iota
	SubTypeBidEscrow

	// System sub-types
	SubTypeSystemPool
	SubTypeSystemTreasury
	SubTypeSystemVault

	// External sub-types
	SubTypeExternalDeposits
	SubTypeExternalWithdrawals
)

// AssetID maps reserve asset symbols to numeric IDs for performance
type AssetID uint16

var (
	assetToID = map[string]AssetID{
		"WETH": 1,
		"USDC": 2,
		"USDT": 3,
		"DAI":  4,
	}
	idToAsset = map[AssetID]string{
		1: "WETH",
		2: "USDC",
		3: "USDT",
		4: "DAI",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// RegisterAsset adds a reserve asset symbol at startup. Not safe for
// concurrent use; call before the core starts processing.
func RegisterAsset(symbol string, id AssetID) {
	assetToID[symbol] = id
	idToAsset[id] = symbol
}

// AccountKey is the in-memory key for balance tracking (21 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for users, name bytes for system accounts
	SubType  AccountSubType
	AssetID  AssetID
}

// NewUserAccountKey creates a key for user accounts
func NewUserAccountKey(userID uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewSystemAccountKey creates a key for system accounts
func NewSystemAccountKey(name string, subType AccountSubType, assetID AssetID) AccountKey {
	var entityID [16]byte
	copy(entityID[:], []byte(name))
	return AccountKey{
		Scope:    AccountScopeSystem,
		EntityID: entityID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewPoolAccountKey creates the shared reserve pool account for an asset.
// Pool underlying liquidity lives here; cToken scaled balances are tracked
// separately in the scaled books.
func NewPoolAccountKey(assetID AssetID) AccountKey {
	return NewSystemAccountKey("pool", SubTypeSystemPool, assetID)
}

// NewTreasuryAccountKey creates the protocol treasury account for an asset
func NewTreasuryAccountKey(assetID AssetID) AccountKey {
	return NewSystemAccountKey("treasury", SubTypeSystemTreasury, assetID)
}

// NewVaultAccountKey creates the bid-reward vault account for an asset
func NewVaultAccountKey(assetID AssetID) AccountKey {
	return NewSystemAccountKey("vault", SubTypeSystemVault, assetID)
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s:%s", uid.String(), k.subTypeName(), assetName)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

// ParseAccountPath reconstructs an AccountKey from its storage form.
// Only paths produced by AccountPath round-trip; malformed input yields
// a zero key.
func ParseAccountPath(path string) AccountKey {
	parts := strings.Split(path, ":")

	switch parts[0] {
	case "user":
		if len(parts) != 4 {
			return AccountKey{}
		}
		uid, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}
		}
		assetID, _ := GetAssetID(parts[3])
		return NewUserAccountKey(uid, subTypeFromName(parts[2]), assetID)
	case "system":
		if len(parts) != 3 {
			return AccountKey{}
		}
		assetID, _ := GetAssetID(parts[2])
		return NewSystemAccountKey(parts[1], subTypeFromName(parts[1]), assetID)
	case "external":
		if len(parts) != 3 {
			return AccountKey{}
		}
		assetID, _ := GetAssetID(parts[2])
		return NewExternalAccountKey(subTypeFromName(parts[1]), assetID)
	}
	return AccountKey{}
}

func subTypeFromName(name string) AccountSubType {
	switch name {
	case "cash":
		return SubTypeCash
	case "bid_escrow":
		return SubTypeBidEscrow
	case "pool":
		return SubTypeSystemPool
	case "treasury":
		return SubTypeSystemTreasury
	case "vault":
		return SubTypeSystemVault
	case "deposits":
		return SubTypeExternalDeposits
	case "withdrawals":
		return SubTypeExternalWithdrawals
	default:
		return SubTypeCash
	}
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeCash:
		return "cash"
	case SubTypeBidEscrow:
		return "bid_escrow"
	case SubTypeSystemPool:
		return "pool"
	case SubTypeSystemTreasury:
		return "treasury"
	case SubTypeSystemVault:
		return "vault"
	case SubTypeExternalDeposits:
		return "deposits"
	case SubTypeExternalWithdrawals:
		return "withdrawals"
	default:
		return "unknown"
	}
}
