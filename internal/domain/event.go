package domain

import "time"

// Event is the sellable occasion seats belong to. Queue settings live here so
// admission control is configurable per event.
type Event struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Venue           string    `json:"venue,omitempty"`
	StartsAt        time.Time `json:"starts_at"`
	BookingOpensAt  time.Time `json:"booking_opens_at"`
	BookingClosesAt time.Time `json:"booking_closes_at"`
	TotalSeats      int       `json:"total_seats"`
	AvailableSeats  int       `json:"available_seats"`
	IsActive        bool      `json:"is_active"`

	// Virtual queue configuration
	QueueEnabled      bool `json:"queue_enabled"`
	QueueBatchSize    int  `json:"queue_batch_size"`   // max concurrently-processing users
	ProcessingMinutes int  `json:"processing_minutes"` // checkout window once admitted

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BookingOpen reports whether the event accepts new carts and queue joins.
func (e *Event) BookingOpen(now time.Time) bool {
	return e.IsActive && !now.Before(e.BookingOpensAt) && now.Before(e.BookingClosesAt)
}
