package domain

import "time"

// SeatCategory is a price tier within an event. For general-admission
// categories no Seat rows exist and AvailableSeats is the sole inventory
// signal; for assigned seating AvailableSeats mirrors the booked seat count.
type SeatCategory struct {
	ID             string    `json:"id"`
	EventID        string    `json:"event_id"`
	Name           string    `json:"name"`
	Price          int64     `json:"price"` // minor currency units
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats int       `json:"available_seats"`
	HasAssigned    bool      `json:"has_assigned_seating"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Sold returns the number of units sold so far.
func (c *SeatCategory) Sold() int {
	return c.TotalSeats - c.AvailableSeats
}
