package domain

import "time"

// CartStatus is the lifecycle state of a cart
type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusConverted CartStatus = "converted"
	CartStatusAbandoned CartStatus = "abandoned"
	CartStatusExpired   CartStatus = "expired"
)

// Terminal reports whether the status is one of the one-way end states.
func (s CartStatus) Terminal() bool {
	return s == CartStatusConverted || s == CartStatusAbandoned || s == CartStatusExpired
}

// Cart scopes a user's in-progress selection to one event. At most one active
// cart exists per (user, event); expiry is evaluated lazily on access.
type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	EventID   string     `json:"event_id"`
	Status    CartStatus `json:"status"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Expired reports whether the cart TTL has elapsed. Readers must treat an
// active-but-expired cart as expired even before the sweep transitions it.
func (c *Cart) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Usable reports whether the cart accepts mutations at the given instant.
func (c *Cart) Usable(now time.Time) bool {
	return c.Status == CartStatusActive && !c.Expired(now)
}

// CartItem is one category line inside a cart: either an explicit seat
// selection (assigned seating) or a bare quantity (general admission).
type CartItem struct {
	ID          string    `json:"id"`
	CartID      string    `json:"cart_id"`
	CategoryID  string    `json:"category_id"`
	SeatIDs     []string  `json:"seat_ids,omitempty"`
	Quantity    int       `json:"quantity"`
	UnitPrice   int64     `json:"unit_price"` // price snapshot at add time
	LockedUntil time.Time `json:"locked_until"`
	CreatedAt   time.Time `json:"created_at"`
}

// Assigned reports whether the item references explicit seats.
func (i *CartItem) Assigned() bool {
	return len(i.SeatIDs) > 0
}

// Units returns the ticket count the item represents.
func (i *CartItem) Units() int {
	if i.Assigned() {
		return len(i.SeatIDs)
	}
	return i.Quantity
}

// CartWithItems is the explicit aggregate handed across component boundaries;
// no lazy loading, the repository assembles it in one call.
type CartWithItems struct {
	Cart  Cart       `json:"cart"`
	Items []CartItem `json:"items"`
}

// TotalUnits returns the ticket count across all items.
func (c *CartWithItems) TotalUnits() int {
	total := 0
	for i := range c.Items {
		total += c.Items[i].Units()
	}
	return total
}

// TotalAmount returns the sum of unit price times units across all items.
func (c *CartWithItems) TotalAmount() int64 {
	var total int64
	for i := range c.Items {
		total += c.Items[i].UnitPrice * int64(c.Items[i].Units())
	}
	return total
}
