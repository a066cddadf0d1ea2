// Package payment consumes payment outcome events and applies them to
// bookings through the finalizer.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/seatwise/seatwise/internal/booking"
	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/events"
	"github.com/seatwise/seatwise/internal/logger"
)

// ConsumerConfig holds configuration for the payment outcome consumer
type ConsumerConfig struct {
	Brokers          []string
	GroupID          string
	ClientID         string
	SessionTimeout   time.Duration
	RebalanceTimeout time.Duration
}

// Consumer reads payment.outcomes and settles the matching bookings. Offsets
// commit after processing; the finalizer's transitions are idempotent, so a
// redelivered outcome is harmless.
type Consumer struct {
	client    *kgo.Client
	finalizer *booking.Finalizer
	log       *logger.Logger
	wg        sync.WaitGroup
	stopCh    chan struct{}
}

// NewConsumer creates a payment outcome consumer
func NewConsumer(ctx context.Context, cfg *ConsumerConfig, finalizer *booking.Finalizer) (*Consumer, error) {
	sessionTimeout := cfg.SessionTimeout
	if sessionTimeout <= 0 {
		sessionTimeout = 30 * time.Second
	}
	rebalanceTimeout := cfg.RebalanceTimeout
	if rebalanceTimeout <= 0 {
		rebalanceTimeout = 60 * time.Second
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(events.TopicPaymentOutcomes),
		kgo.SessionTimeout(sessionTimeout),
		kgo.RebalanceTimeout(rebalanceTimeout),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to kafka: %w", err)
	}

	return &Consumer{
		client:    client,
		finalizer: finalizer,
		log:       logger.Get(),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start starts the consume loop
func (c *Consumer) Start(ctx context.Context) {
	c.log.Info("Starting payment outcome consumer")
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop stops the consumer and waits for in-flight processing
func (c *Consumer) Stop() {
	close(c.stopCh)
	c.wg.Wait()
	c.client.Close()
	c.log.Info("Payment outcome consumer stopped")
}

func (c *Consumer) run(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.log.Error("fetch error",
				zap.String("topic", topic),
				zap.Int32("partition", partition),
				zap.Error(err))
		})

		fetches.EachRecord(func(record *kgo.Record) {
			c.handle(ctx, record)
		})

		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			c.log.Error("failed to commit offsets", zap.Error(err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, record *kgo.Record) {
	var outcome events.PaymentOutcomeEvent
	if err := json.Unmarshal(record.Value, &outcome); err != nil {
		c.log.Error("failed to decode payment outcome",
			zap.Int64("offset", record.Offset), zap.Error(err))
		return
	}

	err := c.finalizer.HandlePaymentOutcome(ctx, &outcome)
	if err != nil {
		if domain.IsNotFoundError(err) {
			c.log.Warn("payment outcome for unknown booking",
				zap.String("booking_id", outcome.BookingID),
				zap.String("gateway_order_id", outcome.GatewayOrderID))
			return
		}
		c.log.Error("failed to apply payment outcome",
			zap.String("booking_id", outcome.BookingID),
			zap.String("event_type", outcome.EventType),
			zap.Error(err))
	}
}
