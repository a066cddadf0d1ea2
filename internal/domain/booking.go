package domain

import "time"

// BookingStatus is the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusFailed    BookingStatus = "failed"
)

// ContactInfo is the buyer contact snapshot captured at checkout.
type ContactInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Booking is the immutable record a cart converts into. Item snapshots must
// not change if the seat or category is later edited.
type Booking struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	EventID        string        `json:"event_id"`
	CartID         string        `json:"cart_id"`
	Status         BookingStatus `json:"status"`
	StatusReason   string        `json:"status_reason,omitempty"`
	TotalAmount    int64         `json:"total_amount"`
	TicketCount    int           `json:"ticket_count"`
	Contact        ContactInfo   `json:"contact"`
	GatewayOrderID string        `json:"gateway_order_id,omitempty"`
	Reversed       bool          `json:"reversed"` // inventory handed back after failure/cancel
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	ConfirmedAt    *time.Time    `json:"confirmed_at,omitempty"`
	CancelledAt    *time.Time    `json:"cancelled_at,omitempty"`
}

// CountsAsSold reports whether the booking's tickets count against inventory.
func (b *Booking) CountsAsSold() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

// BookingItem is one ticket inside a booking, snapshotting price, category
// and seat label at creation time.
type BookingItem struct {
	ID           string  `json:"id"`
	BookingID    string  `json:"booking_id"`
	CategoryID   string  `json:"category_id"`
	CategoryName string  `json:"category_name"`
	SeatID       *string `json:"seat_id,omitempty"` // nil for general admission
	SeatLabel    string  `json:"seat_label,omitempty"`
	UnitPrice    int64   `json:"unit_price"`
	TicketNumber string  `json:"ticket_number"`
}

// BookingWithItems is the aggregate returned by the booking repository.
type BookingWithItems struct {
	Booking Booking       `json:"booking"`
	Items   []BookingItem `json:"items"`
}
