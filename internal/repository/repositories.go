package repository

import (
	"context"
	"time"

	"github.com/seatwise/seatwise/internal/domain"
)

// TxManager runs fn atomically. Repository calls made with the ctx passed to
// fn join the same transaction; a returned error rolls everything back.
type TxManager interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TickResult reports the entries a queue tick transitioned.
type TickResult struct {
	Promoted []*domain.QueueEntry
	Expired  []*domain.QueueEntry
}

// SeatRepository owns seat rows. ClaimBatch is the conflict-free selection
// primitive: concurrent claims on the same seat produce exactly one winner
// and explicit conflicts for the rest, never a double grant.
type SeatRepository interface {
	// CreateBatch inserts seats at seeding time.
	CreateBatch(ctx context.Context, seats []*domain.Seat) error

	// GetByIDs returns the seats in the order found; missing ids surface as
	// domain.ErrSeatNotFound.
	GetByIDs(ctx context.Context, seatIDs []string) ([]*domain.Seat, error)

	// ClaimBatch locks every seat for holder until the given time, treating
	// seats with a lapsed LockedUntil as available. All-or-nothing: any seat
	// unavailable fails the whole batch with domain.ErrSeatConflict.
	ClaimBatch(ctx context.Context, seatIDs []string, holder string, until, now time.Time) error

	// Release returns locked seats to available. Idempotent; only the current
	// holder's locks are touched. Returns the number of seats released.
	Release(ctx context.Context, seatIDs []string, holder string) (int, error)

	// Commit transitions locked seats to booked for the given booking.
	// Fails with domain.ErrSeatNotHeld if any seat is not locked by holder.
	Commit(ctx context.Context, seatIDs []string, holder, bookingID string) error

	// Uncommit returns booked seats to available (payment failure/cancel).
	// Idempotent; returns the number of seats restored.
	Uncommit(ctx context.Context, seatIDs []string) (int, error)

	// AllHeldBy reports whether every seat carries a live lock for holder.
	AllHeldBy(ctx context.Context, seatIDs []string, holder string, now time.Time) (bool, error)

	// ReleaseExpired resets seats whose lock lapsed; used by the sweep for
	// operational visibility, readers never depend on it having run.
	ReleaseExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// CategoryRepository owns seat-category rows and their counters. Counter
// mutations are conditional so a lost race surfaces as an error, not a
// negative count.
type CategoryRepository interface {
	Create(ctx context.Context, c *domain.SeatCategory) error
	GetByID(ctx context.Context, id string) (*domain.SeatCategory, error)
	ListByEvent(ctx context.Context, eventID string) ([]*domain.SeatCategory, error)

	// DecrementAvailable subtracts qty, failing with
	// domain.ErrInsufficientSeats when fewer than qty remain.
	DecrementAvailable(ctx context.Context, id string, qty int) error

	// RestoreAvailable adds qty back, capped by TotalSeats.
	RestoreAvailable(ctx context.Context, id string, qty int) error
}

// EventRepository owns event rows and the event-level aggregate counter.
type EventRepository interface {
	Create(ctx context.Context, e *domain.Event) error
	GetByID(ctx context.Context, id string) (*domain.Event, error)
	DecrementAvailable(ctx context.Context, id string, qty int) error
	RestoreAvailable(ctx context.Context, id string, qty int) error
}

// CartRepository owns carts and cart items.
type CartRepository interface {
	Create(ctx context.Context, cart *domain.Cart) error
	GetByID(ctx context.Context, id string) (*domain.Cart, error)

	// GetActiveByUserAndEvent returns the active cart or (nil, nil) when none
	// exists. Expiry is not evaluated here; callers apply the lazy rule.
	GetActiveByUserAndEvent(ctx context.Context, userID, eventID string) (*domain.Cart, error)

	// GetWithItems assembles the full aggregate in one call.
	GetWithItems(ctx context.Context, cartID string) (*domain.CartWithItems, error)

	// UpdateStatus performs the conditional transition from -> to, failing
	// with domain.ErrCartNotActive when the cart is no longer in from.
	UpdateStatus(ctx context.Context, cartID string, from, to domain.CartStatus) error

	// Touch extends the cart TTL.
	Touch(ctx context.Context, cartID string, expiresAt time.Time) error

	// AddItem inserts a line, failing with domain.ErrDuplicateCategoryItem
	// when the cart already holds that category.
	AddItem(ctx context.Context, item *domain.CartItem) error

	GetItem(ctx context.Context, itemID string) (*domain.CartItem, error)
	UpdateItemQuantity(ctx context.Context, itemID string, qty int, lockedUntil time.Time) error
	RemoveItem(ctx context.Context, itemID string) error

	// ListExpiredActive returns active carts whose TTL lapsed, for the sweep.
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*domain.Cart, error)
}

// BookingRepository owns bookings and their item snapshots.
type BookingRepository interface {
	Create(ctx context.Context, b *domain.Booking, items []*domain.BookingItem) error
	GetByID(ctx context.Context, id string) (*domain.BookingWithItems, error)

	// GetByGatewayOrderID resolves the payment collaborator's order id.
	GetByGatewayOrderID(ctx context.Context, orderID string) (*domain.BookingWithItems, error)

	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error)

	// UpdateStatus performs the conditional transition from -> to, failing
	// with domain.ErrBookingNotPending when the booking left from already.
	UpdateStatus(ctx context.Context, id string, from, to domain.BookingStatus, reason string) error

	SetGatewayOrderID(ctx context.Context, id, orderID string) error

	// MarkReversed flips the reversed flag exactly once; the second call
	// returns false so counter restoration stays idempotent.
	MarkReversed(ctx context.Context, id string) (bool, error)

	// CountSoldByCategory counts booking items in pending/confirmed bookings
	// for a category; used by seat-count recalculation and invariant checks.
	CountSoldByCategory(ctx context.Context, categoryID string) (int, error)
}

// QueueRepository owns queue entries. Join assigns positions under a
// per-event serialization point; Tick claims waiting entries with
// skip-locked semantics so concurrent ticks pick disjoint batches.
type QueueRepository interface {
	// Join returns the existing active entry unchanged (created=false) or
	// creates a waiting entry with the next monotonic position.
	Join(ctx context.Context, eventID, userID string, now time.Time) (entry *domain.QueueEntry, created bool, err error)

	// Get returns the user's latest entry for the event.
	Get(ctx context.Context, eventID, userID string) (*domain.QueueEntry, error)

	// CountWaitingAhead counts waiting entries with a lower position.
	CountWaitingAhead(ctx context.Context, eventID string, position int64) (int64, error)

	// Tick expires lapsed processing entries, then promotes the
	// lowest-position waiting entries into the freed slots.
	Tick(ctx context.Context, eventID string, batchSize int, window time.Duration, now time.Time) (*TickResult, error)

	// Leave marks the user's active entry as left. Positions are never
	// renumbered.
	Leave(ctx context.Context, eventID, userID string) (*domain.QueueEntry, error)

	// Complete marks a processing entry completed after checkout.
	Complete(ctx context.Context, eventID, userID string) error

	// ActiveEventIDs lists events with at least one active entry.
	ActiveEventIDs(ctx context.Context) ([]string, error)
}
