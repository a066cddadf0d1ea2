package events

import "time"

// Kafka topics
const (
	TopicQueueUpdates     = "queue.position-updates"
	TopicBookingLifecycle = "booking.lifecycle"
	TopicPaymentOutcomes  = "payment.outcomes"
)

// BookingEventType identifies a booking lifecycle transition
type BookingEventType string

const (
	BookingCreated   BookingEventType = "booking.created"
	BookingConfirmed BookingEventType = "booking.confirmed"
	BookingCancelled BookingEventType = "booking.cancelled"
	BookingFailed    BookingEventType = "booking.failed"
)

// BookingEvent is published on every booking lifecycle transition
type BookingEvent struct {
	Type        BookingEventType `json:"type"`
	BookingID   string           `json:"booking_id"`
	UserID      string           `json:"user_id"`
	EventID     string           `json:"event_id"`
	CartID      string           `json:"cart_id,omitempty"`
	Amount      int64            `json:"amount"`
	TicketCount int              `json:"ticket_count"`
	Reason      string           `json:"reason,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// PaymentOutcomeEvent is consumed from the payment collaborator. Exactly one
// outcome arrives per gateway order; redeliveries are possible and handled
// idempotently downstream.
type PaymentOutcomeEvent struct {
	EventType      string    `json:"event_type"` // payment.succeeded | payment.failed
	BookingID      string    `json:"booking_id"`
	GatewayOrderID string    `json:"gateway_order_id"`
	PaymentID      string    `json:"payment_id"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	Reason         string    `json:"reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

const (
	PaymentSucceeded = "payment.succeeded"
	PaymentFailed    = "payment.failed"
)
