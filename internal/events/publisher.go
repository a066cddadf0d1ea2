package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/kafka"
	"github.com/seatwise/seatwise/internal/logger"
)

// Publisher pushes queue position updates and booking lifecycle events to
// interested consumers. Implementations own transport only; payloads are
// produced by the services.
type Publisher interface {
	PublishPositionUpdate(ctx context.Context, update *domain.PositionUpdate) error
	PublishBookingEvent(ctx context.Context, event *BookingEvent) error
	Close()
}

// KafkaPublisher publishes events through a Kafka producer. Publish failures
// are logged and swallowed: notification is best effort and must never fail
// the state transition that triggered it.
type KafkaPublisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

func NewKafkaPublisher(producer *kafka.Producer, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, log: log}
}

func (p *KafkaPublisher) PublishPositionUpdate(ctx context.Context, update *domain.PositionUpdate) error {
	err := p.producer.ProduceJSON(ctx, TopicQueueUpdates, update.UserID, update, map[string]string{
		"event_id": update.EventID,
	})
	if err != nil {
		p.log.Warn("failed to publish position update",
			zap.String("event_id", update.EventID),
			zap.String("user_id", update.UserID),
			zap.Error(err),
		)
	}
	return nil
}

func (p *KafkaPublisher) PublishBookingEvent(ctx context.Context, event *BookingEvent) error {
	err := p.producer.ProduceJSON(ctx, TopicBookingLifecycle, event.BookingID, event, map[string]string{
		"type": string(event.Type),
	})
	if err != nil {
		p.log.Warn("failed to publish booking event",
			zap.String("booking_id", event.BookingID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
	return nil
}

func (p *KafkaPublisher) Close() {
	p.producer.Close()
}

// NoopPublisher drops all events; used when Kafka is disabled and in tests.
type NoopPublisher struct{}

func (NoopPublisher) PublishPositionUpdate(ctx context.Context, update *domain.PositionUpdate) error {
	return nil
}

func (NoopPublisher) PublishBookingEvent(ctx context.Context, event *BookingEvent) error {
	return nil
}

func (NoopPublisher) Close() {}
