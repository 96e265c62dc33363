package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds events
// into the deterministic core via the eventChan. JetStream is the primary
// high-throughput ingestion surface; each subject maps to an event type.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
}

// RawEvent is the parsed-but-untyped event from NATS, ready for the shell
// to validate and convert into a typed event.Event before sending to the core.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps NATS subjects to event types. Each event type has its
// own subject so consumers can scale independently.
type SubjectConfig struct {
	Subject      string
	EventType    string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "nftlend.deposits.>", EventType: "Deposit", ConsumerName: "ledger-deposits", StreamName: "NFTLEND_FUNDS"},
		{Subject: "nftlend.withdrawals.>", EventType: "Withdrawal", ConsumerName: "ledger-withdrawals", StreamName: "NFTLEND_FUNDS"},
		{Subject: "nftlend.supply.>", EventType: "Supply", ConsumerName: "ledger-supply", StreamName: "NFTLEND_POOL"},
		{Subject: "nftlend.redeem.>", EventType: "Redeem", ConsumerName: "ledger-redeem", StreamName: "NFTLEND_POOL"},
		{Subject: "nftlend.borrow.single.>", EventType: "Borrow", ConsumerName: "ledger-borrow", StreamName: "NFTLEND_LOANS"},
		{Subject: "nftlend.borrow.batch.>", EventType: "BatchBorrow", ConsumerName: "ledger-borrow-batch", StreamName: "NFTLEND_LOANS"},
		{Subject: "nftlend.repay.single.>", EventType: "Repay", ConsumerName: "ledger-repay", StreamName: "NFTLEND_LOANS"},
		{Subject: "nftlend.repay.batch.>", EventType: "BatchRepay", ConsumerName: "ledger-repay-batch", StreamName: "NFTLEND_LOANS"},
		{Subject: "nftlend.auction.bid.>", EventType: "AuctionBid", ConsumerName: "ledger-auction-bid", StreamName: "NFTLEND_AUCTIONS"},
		{Subject: "nftlend.auction.liquidate.>", EventType: "Liquidate", ConsumerName: "ledger-liquidate", StreamName: "NFTLEND_AUCTIONS"},
		{Subject: "nftlend.prices.nft.>", EventType: "NftPriceUpdate", ConsumerName: "ledger-nft-prices", StreamName: "NFTLEND_PRICES"},
		{Subject: "nftlend.prices.reserve.>", EventType: "ReservePriceUpdate", ConsumerName: "ledger-reserve-prices", StreamName: "NFTLEND_PRICES"},
		{Subject: "nftlend.config.reserve.>", EventType: "ReserveConfigUpdate", ConsumerName: "ledger-reserve-config", StreamName: "NFTLEND_CONFIG"},
		{Subject: "nftlend.config.nft.>", EventType: "NftConfigUpdate", ConsumerName: "ledger-nft-config", StreamName: "NFTLEND_CONFIG"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
				// Successfully queued for processing
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "NFTLEND_FUNDS",
			Subjects:  []string{"nftlend.deposits.>", "nftlend.withdrawals.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "NFTLEND_POOL",
			Subjects:  []string{"nftlend.supply.>", "nftlend.redeem.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "NFTLEND_LOANS",
			Subjects:  []string{"nftlend.borrow.>", "nftlend.repay.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "NFTLEND_AUCTIONS",
			Subjects:  []string{"nftlend.auction.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "NFTLEND_PRICES",
			Subjects:  []string{"nftlend.prices.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "NFTLEND_CONFIG",
			Subjects:  []string{"nftlend.config.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
