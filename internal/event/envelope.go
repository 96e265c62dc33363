package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeDeposit
	EventTypeWithdrawal
	EventTypeSupply
	EventTypeRedeem
	EventTypeBorrow
	EventTypeBatchBorrow
	EventTypeRepay
	EventTypeBatchRepay
	EventTypeAuctionBid
	EventTypeLiquidate
	EventTypeNftPriceUpdate
	EventTypeReservePriceUpdate
	EventTypeReserveConfigUpdate
	EventTypeNftConfigUpdate
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Partition context: reserve asset or NFT collection symbol
	// (nullable for global events)
	Partition *string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Partition returns the ordering partition (nil for global events)
	Partition() *string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeDeposit:
		return "Deposit"
	case EventTypeWithdrawal:
		return "Withdrawal"
	case EventTypeSupply:
		return "Supply"
	case EventTypeRedeem:
		return "Redeem"
	case EventTypeBorrow:
		return "Borrow"
	case EventTypeBatchBorrow:
		return "BatchBorrow"
	case EventTypeRepay:
		return "Repay"
	case EventTypeBatchRepay:
		return "BatchRepay"
	case EventTypeAuctionBid:
		return "AuctionBid"
	case EventTypeLiquidate:
		return "Liquidate"
	case EventTypeNftPriceUpdate:
		return "NftPriceUpdate"
	case EventTypeReservePriceUpdate:
		return "ReservePriceUpdate"
	case EventTypeReserveConfigUpdate:
		return "ReserveConfigUpdate"
	case EventTypeNftConfigUpdate:
		return "NftConfigUpdate"
	default:
		return "Unknown"
	}
}
