package domain

import "time"

// SeatStatus is the lifecycle state of a physical seat
type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "available"
	SeatStatusLocked    SeatStatus = "locked"
	SeatStatusBooked    SeatStatus = "booked"
	SeatStatusBlocked   SeatStatus = "blocked"
)

// Seat represents one unit of assigned-seating inventory.
// Only the seat ledger mutates Status, LockedBy and LockedUntil.
type Seat struct {
	ID          string     `json:"id"`
	EventID     string     `json:"event_id"`
	CategoryID  string     `json:"category_id"`
	Label       string     `json:"label,omitempty"` // e.g. "A-12", optional for GA categories
	Status      SeatStatus `json:"status"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockedBy    *string    `json:"locked_by,omitempty"`
	BookingID   *string    `json:"booking_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SellableAt reports whether the seat can be handed to a new holder at the
// given instant. A locked seat whose lock passed LockedUntil counts as
// available even before a sweep resets the row.
func (s *Seat) SellableAt(now time.Time) bool {
	switch s.Status {
	case SeatStatusAvailable:
		return true
	case SeatStatusLocked:
		return s.LockedUntil != nil && !now.Before(*s.LockedUntil)
	default:
		return false
	}
}

// HeldBy reports whether the seat currently carries a live lock for holder.
func (s *Seat) HeldBy(holder string, now time.Time) bool {
	return s.Status == SeatStatusLocked &&
		s.LockedBy != nil && *s.LockedBy == holder &&
		s.LockedUntil != nil && now.Before(*s.LockedUntil)
}
