package state

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/google/uuid"
)

// TreasuryEntityID is the synthetic holder of the protocol's cToken
// position (reserve-factor interest accrues here as scaled supply).
var TreasuryEntityID = uuid.MustParse("00000000-0000-0000-0000-00000000f3e5")

// ScaledBook tracks per-holder scaled balances for one reserve's receipt
// token (cToken supply or variable debt). Underlying amounts are always
// derived as scaled * index at read time; the book itself never accrues.
type ScaledBook struct {
	balances map[uuid.UUID]*big.Int
	total    *big.Int
}

func NewScaledBook() *ScaledBook {
	return &ScaledBook{
		balances: make(map[uuid.UUID]*big.Int),
		total:    new(big.Int),
	}
}

// Mint adds scaled units to a holder.
func (sb *ScaledBook) Mint(holder uuid.UUID, scaled *big.Int) error {
	if scaled == nil || scaled.Sign() <= 0 {
		return fmt.Errorf("mint amount must be positive, got %v", scaled)
	}
	b, ok := sb.balances[holder]
	if !ok {
		b = new(big.Int)
		sb.balances[holder] = b
	}
	b.Add(b, scaled)
	sb.total.Add(sb.total, scaled)
	return nil
}

// Burn removes scaled units from a holder. Fails rather than going
// negative.
func (sb *ScaledBook) Burn(holder uuid.UUID, scaled *big.Int) error {
	if scaled == nil || scaled.Sign() <= 0 {
		return fmt.Errorf("burn amount must be positive, got %v", scaled)
	}
	b, ok := sb.balances[holder]
	if !ok || b.Cmp(scaled) < 0 {
		return fmt.Errorf("burn %s exceeds scaled balance %v", scaled, b)
	}
	b.Sub(b, scaled)
	if b.Sign() == 0 {
		delete(sb.balances, holder)
	}
	sb.total.Sub(sb.total, scaled)
	return nil
}

// ScaledBalance returns a copy of the holder's scaled balance.
func (sb *ScaledBook) ScaledBalance(holder uuid.UUID) *big.Int {
	if b, ok := sb.balances[holder]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// TotalScaled returns a copy of the book's scaled total.
func (sb *ScaledBook) TotalScaled() *big.Int {
	return new(big.Int).Set(sb.total)
}

// Holders returns holder IDs in deterministic order.
func (sb *ScaledBook) Holders() []uuid.UUID {
	holders := make([]uuid.UUID, 0, len(sb.balances))
	for h := range sb.balances {
		holders = append(holders, h)
	}
	sort.Slice(holders, func(i, j int) bool {
		for k := 0; k < 16; k++ {
			if holders[i][k] != holders[j][k] {
				return holders[i][k] < holders[j][k]
			}
		}
		return false
	})
	return holders
}

// CanonicalBytes returns deterministic serialization for hashing.
func (sb *ScaledBook) CanonicalBytes() []byte {
	holders := sb.Holders()
	buf := make([]byte, 0, len(holders)*48)
	for _, h := range holders {
		buf = append(buf, h[:]...)
		buf = appendBigInt(buf, sb.balances[h])
	}
	return buf
}

// Snapshot returns a deep copy of holder balances.
func (sb *ScaledBook) Snapshot() map[uuid.UUID]*big.Int {
	snap := make(map[uuid.UUID]*big.Int, len(sb.balances))
	for h, b := range sb.balances {
		snap[h] = new(big.Int).Set(b)
	}
	return snap
}

// Restore replaces the book's contents from a snapshot.
func (sb *ScaledBook) Restore(snapshot map[uuid.UUID]*big.Int) {
	sb.balances = make(map[uuid.UUID]*big.Int, len(snapshot))
	sb.total = new(big.Int)
	for h, b := range snapshot {
		if b.Sign() == 0 {
			continue
		}
		sb.balances[h] = new(big.Int).Set(b)
		sb.total.Add(sb.total, b)
	}
}

// appendBigInt appends a length-prefixed big-endian encoding.
func appendBigInt(buf []byte, v *big.Int) []byte {
	b := v.Bytes()
	buf = append(buf, byte(len(b)))
	return append(buf, b...)
}
