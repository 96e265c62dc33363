package ingestion

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"NFTLend/internal/event"

	"github.com/google/uuid"
)

// GRPCIngestService provides admin/manual event injection via gRPC.
// Intended for admin operations and manual event injection,
// not for high-throughput ingestion (use NATS for that).
type GRPCIngestService struct {
	eventChan chan<- event.Event
}

func NewGRPCIngestService(eventChan chan<- event.Event) *GRPCIngestService {
	return &GRPCIngestService{eventChan: eventChan}
}

// EventChan exposes the injection channel for transport handlers.
func (s *GRPCIngestService) EventChan() chan<- event.Event {
	return s.eventChan
}

// InjectDeposit manually injects a Deposit event.
func (s *GRPCIngestService) InjectDeposit(
	ctx context.Context,
	userID uuid.UUID,
	asset string,
	amount *big.Int,
) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	now := time.Now().UnixMicro()
	evt := &event.Deposit{
		DepositID: uuid.New(),
		UserID:    userID,
		Asset:     asset,
		Amount:    new(big.Int).Set(amount),
		Sequence:  now, // Admin-injected: use timestamp as sequence
		Timestamp: now,
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectWithdrawal manually injects a Withdrawal event.
func (s *GRPCIngestService) InjectWithdrawal(
	ctx context.Context,
	userID uuid.UUID,
	asset string,
	amount *big.Int,
) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	now := time.Now().UnixMicro()
	evt := &event.Withdrawal{
		WithdrawalID: uuid.New(),
		UserID:       userID,
		Asset:        asset,
		Amount:       new(big.Int).Set(amount),
		Sequence:     now,
		Timestamp:    now,
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectNftPrice manually injects an NftPriceUpdate event.
func (s *GRPCIngestService) InjectNftPrice(
	ctx context.Context,
	nftAsset string,
	price *big.Int,
	priceSequence int64,
) error {
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("price must be positive")
	}

	evt := &event.NftPriceUpdate{
		NftAsset:       nftAsset,
		Price:          new(big.Int).Set(price),
		PriceSequence:  priceSequence,
		PriceTimestamp: time.Now().UnixMicro(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectReservePrice manually injects a ReservePriceUpdate event.
func (s *GRPCIngestService) InjectReservePrice(
	ctx context.Context,
	asset string,
	price *big.Int,
	priceSequence int64,
) error {
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("price must be positive")
	}

	evt := &event.ReservePriceUpdate{
		Asset:          asset,
		Price:          new(big.Int).Set(price),
		PriceSequence:  priceSequence,
		PriceTimestamp: time.Now().UnixMicro(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
