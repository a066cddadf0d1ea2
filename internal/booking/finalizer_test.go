package booking

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatwise/seatwise/internal/clock"
	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/events"
	"github.com/seatwise/seatwise/internal/ledger"
	"github.com/seatwise/seatwise/internal/logger"
	"github.com/seatwise/seatwise/internal/repository"
)

type queueGateStub struct {
	mu      sync.Mutex
	calls   []string
	blocked bool
}

func (q *queueGateStub) CanProceed(ctx context.Context, eventID, userID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.blocked, nil
}

func (q *queueGateStub) Complete(ctx context.Context, eventID, userID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, eventID+"/"+userID)
	return nil
}

type finalizerFixture struct {
	fin    *Finalizer
	store  *repository.MemoryStore
	ledger *ledger.Service
	clk    *clock.Fake
	queue  *queueGateStub

	eventID    string
	assignedID string
	gaID       string
	seatIDs    []string
}

func newFinalizerFixture(t *testing.T) *finalizerFixture {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	led := ledger.NewService(store, clk, logger.Get())

	f := &finalizerFixture{
		store:      store,
		ledger:     led,
		clk:        clk,
		queue:      &queueGateStub{},
		eventID:    "evt-1",
		assignedID: "cat-assigned",
		gaID:       "cat-ga",
	}

	now := clk.Now()
	require.NoError(t, store.CreateEvent(ctx, &domain.Event{
		ID:              f.eventID,
		Name:            "Test Concert",
		StartsAt:        now.Add(48 * time.Hour),
		BookingOpensAt:  now.Add(-time.Hour),
		BookingClosesAt: now.Add(24 * time.Hour),
		TotalSeats:      12,
		AvailableSeats:  12,
		IsActive:        true,
	}))
	require.NoError(t, store.CreateCategory(ctx, &domain.SeatCategory{
		ID: f.assignedID, EventID: f.eventID, Name: "Front Row",
		Price: 15000, TotalSeats: 10, AvailableSeats: 10,
		HasAssigned: true, IsActive: true,
	}))
	require.NoError(t, store.CreateCategory(ctx, &domain.SeatCategory{
		ID: f.gaID, EventID: f.eventID, Name: "Standing",
		Price: 5000, TotalSeats: 2, AvailableSeats: 2,
		IsActive: true,
	}))

	labels := make([]string, 10)
	for i := range labels {
		labels[i] = fmt.Sprintf("A-%d", i+1)
	}
	seats, err := led.Seed(ctx, f.eventID, f.assignedID, labels)
	require.NoError(t, err)
	for _, seat := range seats {
		f.seatIDs = append(f.seatIDs, seat.ID)
	}

	f.fin = NewFinalizer(FinalizerParams{
		Tx:         store,
		Carts:      repository.NewMemoryCartRepository(store),
		Bookings:   repository.NewMemoryBookingRepository(store),
		Categories: repository.NewMemoryCategoryRepository(store),
		Events:     repository.NewMemoryEventRepository(store),
		Ledger:     led,
		Queue:      f.queue,
		Publisher:  events.NoopPublisher{},
		Clock:      clk,
		Logger:     logger.Get(),
	})
	return f
}

// gaCart inserts an active cart with one general-admission line.
func (f *finalizerFixture) gaCart(t *testing.T, userID string, qty int) string {
	t.Helper()
	return f.cartWithItem(t, userID, &domain.CartItem{
		CategoryID: f.gaID,
		Quantity:   qty,
		UnitPrice:  5000,
	})
}

// assignedCart inserts an active cart holding live locks on the given seats.
func (f *finalizerFixture) assignedCart(t *testing.T, userID string, seatIDs []string) string {
	t.Helper()
	cartID := f.cartWithItem(t, userID, &domain.CartItem{
		CategoryID: f.assignedID,
		SeatIDs:    seatIDs,
		Quantity:   len(seatIDs),
		UnitPrice:  15000,
	})
	_, err := f.ledger.Lock(context.Background(), seatIDs, cartID, 10*time.Minute)
	require.NoError(t, err)
	return cartID
}

func (f *finalizerFixture) cartWithItem(t *testing.T, userID string, item *domain.CartItem) string {
	t.Helper()
	ctx := context.Background()
	now := f.clk.Now()
	cart := &domain.Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventID:   f.eventID,
		Status:    domain.CartStatusActive,
		ExpiresAt: now.Add(30 * time.Minute),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.store.CreateCart(ctx, cart))
	if item != nil {
		item.ID = uuid.NewString()
		item.CartID = cart.ID
		item.LockedUntil = now.Add(10 * time.Minute)
		item.CreatedAt = now
		require.NoError(t, f.store.AddCartItem(ctx, item))
	}
	return cart.ID
}

func (f *finalizerFixture) categoryAvailable(t *testing.T, id string) int {
	t.Helper()
	c, err := f.store.GetCategory(context.Background(), id)
	require.NoError(t, err)
	return c.AvailableSeats
}

var contact = domain.ContactInfo{Name: "Alice Example", Email: "alice@example.com"}

func TestFinalizeGeneralAdmissionTwoBuyers(t *testing.T) {
	f := newFinalizerFixture(t)
	ctx := context.Background()

	// two seats left, both buyers want both
	cartA := f.gaCart(t, "user-a", 2)
	cartB := f.gaCart(t, "user-b", 2)

	agg, err := f.fin.Finalize(ctx, "user-a", cartA, contact)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPending, agg.Booking.Status)
	assert.Equal(t, 2, agg.Booking.TicketCount)
	assert.Equal(t, int64(10000), agg.Booking.TotalAmount)

	_, err = f.fin.Finalize(ctx, "user-b", cartB, contact)
	require.ErrorIs(t, err, domain.ErrInsufficientSeats)

	// the loser's cart survives so the buyer can adjust
	cart, err := f.store.GetCart(ctx, cartB)
	require.NoError(t, err)
	assert.Equal(t, domain.CartStatusActive, cart.Status)

	assert.Equal(t, 0, f.categoryAvailable(t, f.gaID))
}

func TestFinalizeConcurrentNoOversell(t *testing.T) {
	f := newFinalizerFixture(t)
	ctx := context.Background()

	cartA := f.gaCart(t, "user-a", 2)
	cartB := f.gaCart(t, "user-b", 2)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, tc := range []struct{ user, cart string }{{"user-a", cartA}, {"user-b", cartB}} {
		wg.Add(1)
		go func(i int, user, cart string) {
			defer wg.Done()
			_, errs[i] = f.fin.Finalize(ctx, user, cart, contact)
		}(i, tc.user, tc.cart)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, domain.ErrInsufficientSeats)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 0, f.categoryAvailable(t, f.gaID), "never below zero, never oversold")
}

func TestFinalizeAssignedSeats(t *testing.T) {
	f := newFinalizerFixture(t)
	ctx := context.Background()

	seatIDs := f.seatIDs[:2]
	cartID := f.assignedCart(t, "user-a", seatIDs)

	agg, err := f.fin.Finalize(ctx, "user-a", cartID, contact)
	require.NoError(t, err)
	require.Len(t, agg.Items, 2)
	assert.Equal(t, fmt.Sprintf("TKT-%s-001", strings.ToUpper(agg.Booking.ID[:8])), agg.Items[0].TicketNumber)
	assert.Equal(t, "Front Row", agg.Items[0].CategoryName)
	require.NotNil(t, agg.Items[0].SeatID)

	seats, err := f.ledger.Seats(ctx, seatIDs)
	require.NoError(t, err)
	for _, seat := range seats {
		assert.Equal(t, domain.SeatStatusBooked, seat.Status)
		require.NotNil(t, seat.BookingID)
		assert.Equal(t, agg.Booking.ID, *seat.BookingID)
	}

	cart, err := f.store.GetCart(ctx, cartID)
	require.NoError(t, err)
	assert.Equal(t, domain.CartStatusConverted, cart.Status)
	assert.Equal(t, 8, f.categoryAvailable(t, f.assignedID))

	event, err := f.store.GetEvent(ctx, f.eventID)
	require.NoError(t, err)
	assert.Equal(t, 10, event.AvailableSeats)
}

func TestFinalizeRejectsExpiredSeatLocks(t *testing.T) {
	f := newFinalizerFixture(t)
	ctx := context.Background()

	cartID := f.assignedCart(t, "user-a", f.seatIDs[:2])
	f.clk.Advance(11 * time.Minute) // locks lapse, cart TTL has not

	_, err := f.fin.Finalize(ctx, "user-a", cartID, contact)
	require.ErrorIs(t, err, domain.ErrLockExpired)

	// nothing was written
	cart, err := f.store.GetCart(ctx, cartID)
	require.NoError(t, err)
	assert.Equal(t, domain.CartStatusActive, cart.Status)
	assert.Equal(t, 10, f.categoryAvailable(t, f.assignedID))
}

func TestFinalizeRejectsEmptyCart(t *testing.T) {
	f := newFinalizerFixture(t)
	cartID := f.cartWithItem(t, "user-a", nil)

	_, err := f.fin.Finalize(context.Background(), "user-a", cartID, contact)
	require.ErrorIs(t, err, domain.ErrCartNotValidated)
}

func TestFinalizeRejectsForeignCart(t *testing.T) {
	f := newFinalizerFixture(t)
	cartID := f.gaCart(t, "user-a", 1)

	_, err := f.fin.Finalize(context.Background(), "user-b", cartID, contact)
	require.ErrorIs(t, err, domain.ErrCartNotFound)
}

func TestFinalizeRequiresLiveAdmission(t *testing.T) {
	f := newFinalizerFixture(t)
	ctx := context.Background()

	// flip the fixture event to queue-gated
	event, err := f.store.GetEvent(ctx, f.eventID)
	require.NoError(t, err)
	event.QueueEnabled = true
	require.NoError(t, f.store.CreateEvent(ctx, event))

	cartID := f.gaCart(t, "user-a", 1)
	f.queue.blocked = true

	_, err = f.fin.Finalize(ctx, "user-a", cartID, contact)
	require.ErrorIs(t, err, domain.ErrNotAdmitted)

	// nothing was written, the cart survives for a later window
	cart, err := f.store.GetCart(ctx, cartID)
	require.NoError(t, err)
	assert.Equal(t, domain.CartStatusActive, cart.Status)
	assert.Equal(t, 2, f.categoryAvailable(t, f.gaID))

	f.queue.blocked = false
	_, err = f.fin.Finalize(ctx, "user-a", cartID, contact)
	require.NoError(t, err)
}

func TestFinalizeRecountsSoldTickets(t *testing.T) {
	f := newFinalizerFixture(t)
	ctx := context.Background()

	// both general-admission tickets sell
	_, err := f.fin.Finalize(ctx, "user-a", f.gaCart(t, "user-a", 2), contact)
	require.NoError(t, err)
	require.Equal(t, 0, f.categoryAvailable(t, f.gaID))

	// the cached counter drifts back up; the recount from booking rows
	// still refuses to sell a third ticket
	require.NoError(t, f.store.RestoreCategoryAvailable(ctx, f.gaID, 2))
	_, err = f.fin.Finalize(ctx, "user-b", f.gaCart(t, "user-b", 1), contact)
	require.ErrorIs(t, err, domain.ErrInsufficientSeats)
}

func TestFinalizeCompletesQueueEntry(t *testing.T) {
	f := newFinalizerFixture(t)
	cartID := f.gaCart(t, "user-a", 1)

	_, err := f.fin.Finalize(context.Background(), "user-a", cartID, contact)
	require.NoError(t, err)
	assert.Equal(t, []string{f.eventID + "/user-a"}, f.queue.calls)
}

func TestPaymentSuccessConfirmsOnce(t *testing.T) {
	f := newFinalizerFixture(t)
	ctx := context.Background()

	agg, err := f.fin.Finalize(ctx, "user-a", f.gaCart(t, "user-a", 1), contact)
	require.NoError(t, err)

	outcome := &events.PaymentOutcomeEvent{
		EventType: events.PaymentSucceeded,
		BookingID: agg.Booking.ID,
	}
	require.NoError(t, f.fin.HandlePaymentOutcome(ctx, outcome))
	require.NoError(t, f.fin.HandlePaymentOutcome(ctx, outcome), "redelivery is a no-op")

	got, err := f.store.GetBooking(ctx, agg.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, got.Booking.Status)
	assert.NotNil(t, got.Booking.ConfirmedAt)
}

func TestPaymentFailureReversesExactlyOnce(t *testing.T) {
	f := newFinalizerFixture(t)
	ctx := context.Background()

	agg, err := f.fin.Finalize(ctx, "user-a", f.gaCart(t, "user-a", 2), contact)
	require.NoError(t, err)
	require.Equal(t, 0, f.categoryAvailable(t, f.gaID))

	outcome := &events.PaymentOutcomeEvent{
		EventType: events.PaymentFailed,
		BookingID: agg.Booking.ID,
		Reason:    "card declined",
	}
	require.NoError(t, f.fin.HandlePaymentOutcome(ctx, outcome))

	got, err := f.store.GetBooking(ctx, agg.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusFailed, got.Booking.Status)
	assert.Equal(t, "card declined", got.Booking.StatusReason)
	assert.True(t, got.Booking.Reversed)
	assert.Equal(t, 2, f.categoryAvailable(t, f.gaID), "inventory returned")

	// redelivered failure restores nothing a second time
	require.NoError(t, f.fin.HandlePaymentOutcome(ctx, outcome))
	assert.Equal(t, 2, f.categoryAvailable(t, f.gaID))

	// cancelling a failed booking is rejected, not double-reversed
	require.ErrorIs(t, f.fin.Cancel(ctx, "user-a", agg.Booking.ID, "too late"), domain.ErrBookingNotPending)
	assert.Equal(t, 2, f.categoryAvailable(t, f.gaID))
}

func TestPaymentOutcomeResolvesByGatewayOrderID(t *testing.T) {
	f := newFinalizerFixture(t)
	ctx := context.Background()

	agg, err := f.fin.Finalize(ctx, "user-a", f.gaCart(t, "user-a", 1), contact)
	require.NoError(t, err)
	require.NotEmpty(t, agg.Booking.GatewayOrderID)

	require.NoError(t, f.fin.HandlePaymentOutcome(ctx, &events.PaymentOutcomeEvent{
		EventType:      events.PaymentSucceeded,
		GatewayOrderID: agg.Booking.GatewayOrderID,
	}))

	got, err := f.store.GetBooking(ctx, agg.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, got.Booking.Status)
}

func TestCancelRestoresSeatsAndCounters(t *testing.T) {
	f := newFinalizerFixture(t)
	ctx := context.Background()

	seatIDs := f.seatIDs[:2]
	agg, err := f.fin.Finalize(ctx, "user-a", f.assignedCart(t, "user-a", seatIDs), contact)
	require.NoError(t, err)

	require.ErrorIs(t, f.fin.Cancel(ctx, "user-b", agg.Booking.ID, ""), domain.ErrBookingNotFound)
	require.NoError(t, f.fin.Cancel(ctx, "user-a", agg.Booking.ID, "changed my mind"))

	got, err := f.store.GetBooking(ctx, agg.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, got.Booking.Status)

	seats, err := f.ledger.Seats(ctx, seatIDs)
	require.NoError(t, err)
	for _, seat := range seats {
		assert.Equal(t, domain.SeatStatusAvailable, seat.Status)
	}
	assert.Equal(t, 10, f.categoryAvailable(t, f.assignedID))

	event, err := f.store.GetEvent(ctx, f.eventID)
	require.NoError(t, err)
	assert.Equal(t, 12, event.AvailableSeats)
}

func TestListAndGetScopeToOwner(t *testing.T) {
	f := newFinalizerFixture(t)
	ctx := context.Background()

	agg, err := f.fin.Finalize(ctx, "user-a", f.gaCart(t, "user-a", 1), contact)
	require.NoError(t, err)

	_, err = f.fin.Get(ctx, "user-b", agg.Booking.ID)
	require.ErrorIs(t, err, domain.ErrBookingNotFound)

	got, err := f.fin.Get(ctx, "user-a", agg.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, agg.Booking.ID, got.Booking.ID)

	list, err := f.fin.List(ctx, "user-a", 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = f.fin.List(ctx, "user-b", 20, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}
