package cart

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatwise/seatwise/internal/clock"
	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/ledger"
	"github.com/seatwise/seatwise/internal/logger"
	"github.com/seatwise/seatwise/internal/repository"
)

type admissionStub struct{ ok bool }

func (a *admissionStub) CanProceed(ctx context.Context, eventID, userID string) (bool, error) {
	return a.ok, nil
}

type cartFixture struct {
	mgr       *Manager
	store     *repository.MemoryStore
	ledger    *ledger.Service
	clk       *clock.Fake
	admission *admissionStub

	eventID    string
	assignedID string // category with explicit seats
	gaID       string // general admission category
	seatIDs    []string
}

func newCartFixture(t *testing.T, admitted bool, queueEnabled bool) *cartFixture {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	led := ledger.NewService(store, clk, logger.Get())

	f := &cartFixture{
		store:      store,
		ledger:     led,
		clk:        clk,
		admission:  &admissionStub{ok: admitted},
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
		TotalSeats:      110,
		AvailableSeats:  110,
		IsActive:        true,
		QueueEnabled:    queueEnabled,
	}))
	require.NoError(t, store.CreateCategory(ctx, &domain.SeatCategory{
		ID: f.assignedID, EventID: f.eventID, Name: "Front Row",
		Price: 15000, TotalSeats: 10, AvailableSeats: 10,
		HasAssigned: true, IsActive: true,
	}))
	require.NoError(t, store.CreateCategory(ctx, &domain.SeatCategory{
		ID: f.gaID, EventID: f.eventID, Name: "Standing",
		Price: 5000, TotalSeats: 100, AvailableSeats: 100,
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

	f.mgr = NewManager(ManagerParams{
		Carts:      repository.NewMemoryCartRepository(store),
		Events:     repository.NewMemoryEventRepository(store),
		Categories: repository.NewMemoryCategoryRepository(store),
		Ledger:     led,
		Admission:  f.admission,
		Clock:      clk,
		Logger:     logger.Get(),
		CartTTL:    30 * time.Minute,
		LockTTL:    10 * time.Minute,
	})
	return f
}

func TestGetOrCreateReturnsSameActiveCart(t *testing.T) {
	f := newCartFixture(t, true, false)
	ctx := context.Background()

	first, err := f.mgr.GetOrCreate(ctx, "user-a", f.eventID)
	require.NoError(t, err)
	second, err := f.mgr.GetOrCreate(ctx, "user-a", f.eventID)
	require.NoError(t, err)
	assert.Equal(t, first.Cart.ID, second.Cart.ID, "one active cart per user and event")
}

func TestGetOrCreateReplacesExpiredCart(t *testing.T) {
	f := newCartFixture(t, true, false)
	ctx := context.Background()

	first, err := f.mgr.GetOrCreate(ctx, "user-a", f.eventID)
	require.NoError(t, err)

	f.clk.Advance(31 * time.Minute)
	second, err := f.mgr.GetOrCreate(ctx, "user-a", f.eventID)
	require.NoError(t, err)
	assert.NotEqual(t, first.Cart.ID, second.Cart.ID)

	old, err := f.store.GetCart(ctx, first.Cart.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CartStatusExpired, old.Status)
}

func TestAdmissionGatesQueueEnabledEvents(t *testing.T) {
	denied := newCartFixture(t, false, true)
	_, err := denied.mgr.GetOrCreate(context.Background(), "user-a", denied.eventID)
	require.ErrorIs(t, err, domain.ErrNotAdmitted)

	admitted := newCartFixture(t, true, true)
	_, err = admitted.mgr.GetOrCreate(context.Background(), "user-a", admitted.eventID)
	require.NoError(t, err)
}

func TestAdmissionLapseBlocksCartMutations(t *testing.T) {
	f := newCartFixture(t, true, true)
	ctx := context.Background()

	agg, err := f.mgr.GetOrCreate(ctx, "user-a", f.eventID)
	require.NoError(t, err)
	agg, err = f.mgr.AddItem(ctx, "user-a", AddItemParams{
		CartID: agg.Cart.ID, CategoryID: f.gaID, Quantity: 1,
	})
	require.NoError(t, err)
	itemID := agg.Items[0].ID

	// the processing window lapses while the cart TTL is still running
	f.admission.ok = false

	_, err = f.mgr.AddItem(ctx, "user-a", AddItemParams{
		CartID: agg.Cart.ID, CategoryID: f.assignedID, SeatIDs: f.seatIDs[:1],
	})
	require.ErrorIs(t, err, domain.ErrNotAdmitted)
	_, err = f.mgr.UpdateItemQuantity(ctx, "user-a", agg.Cart.ID, itemID, 2)
	require.ErrorIs(t, err, domain.ErrNotAdmitted)
	_, err = f.mgr.RemoveItem(ctx, "user-a", agg.Cart.ID, itemID)
	require.ErrorIs(t, err, domain.ErrNotAdmitted)

	// regaining a window restores access to the same cart
	f.admission.ok = true
	agg, err = f.mgr.UpdateItemQuantity(ctx, "user-a", agg.Cart.ID, itemID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, agg.Items[0].Quantity)
}

func TestAddItemAssignedLocksSeats(t *testing.T) {
	f := newCartFixture(t, true, false)
	ctx := context.Background()

	agg, err := f.mgr.GetOrCreate(ctx, "user-a", f.eventID)
	require.NoError(t, err)

	agg, err = f.mgr.AddItem(ctx, "user-a", AddItemParams{
		CartID:     agg.Cart.ID,
		CategoryID: f.assignedID,
		SeatIDs:    f.seatIDs[:2],
	})
	require.NoError(t, err)
	require.Len(t, agg.Items, 1)
	assert.Equal(t, 2, agg.Items[0].Quantity)
	assert.Equal(t, int64(15000), agg.Items[0].UnitPrice)

	held, err := f.ledger.HeldBy(ctx, f.seatIDs[:2], agg.Cart.ID)
	require.NoError(t, err)
	assert.True(t, held, "the cart holds its seats' locks")
}

func TestAddItemDuplicateCategoryReleasesNewLocks(t *testing.T) {
	f := newCartFixture(t, true, false)
	ctx := context.Background()

	agg, err := f.mgr.GetOrCreate(ctx, "user-a", f.eventID)
	require.NoError(t, err)
	cartID := agg.Cart.ID

	_, err = f.mgr.AddItem(ctx, "user-a", AddItemParams{
		CartID: cartID, CategoryID: f.assignedID, SeatIDs: f.seatIDs[:2],
	})
	require.NoError(t, err)

	_, err = f.mgr.AddItem(ctx, "user-a", AddItemParams{
		CartID: cartID, CategoryID: f.assignedID, SeatIDs: f.seatIDs[4:6],
	})
	require.ErrorIs(t, err, domain.ErrDuplicateCategoryItem)

	held, err := f.ledger.HeldBy(ctx, f.seatIDs[:2], cartID)
	require.NoError(t, err)
	assert.True(t, held, "the original line keeps its locks")

	seats, err := f.ledger.Seats(ctx, f.seatIDs[4:6])
	require.NoError(t, err)
	for _, seat := range seats {
		assert.Equal(t, domain.SeatStatusAvailable, seat.Status,
			"locks taken for the rejected line are handed back")
	}
}

func TestConcurrentAddItemDisjointLocks(t *testing.T) {
	f := newCartFixture(t, true, false)
	ctx := context.Background()

	cartA, err := f.mgr.GetOrCreate(ctx, "user-a", f.eventID)
	require.NoError(t, err)
	cartB, err := f.mgr.GetOrCreate(ctx, "user-b", f.eventID)
	require.NoError(t, err)

	contested := f.seatIDs[:3]
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, c := range []*domain.CartWithItems{cartA, cartB} {
		wg.Add(1)
		go func(i int, cartID, userID string) {
			defer wg.Done()
			_, errs[i] = f.mgr.AddItem(ctx, userID, AddItemParams{
				CartID: cartID, CategoryID: f.assignedID, SeatIDs: contested,
			})
		}(i, c.Cart.ID, c.Cart.UserID)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t, domain.IsConflictError(err))
		}
	}
	assert.Equal(t, 1, winners, "the same seats never end up in two carts")
}

func TestAddItemGeneralAdmission(t *testing.T) {
	f := newCartFixture(t, true, false)
	ctx := context.Background()

	agg, err := f.mgr.GetOrCreate(ctx, "user-a", f.eventID)
	require.NoError(t, err)
	cartID := agg.Cart.ID

	_, err = f.mgr.AddItem(ctx, "user-a", AddItemParams{
		CartID: cartID, CategoryID: f.gaID, Quantity: 0,
	})
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.mgr.AddItem(ctx, "user-a", AddItemParams{
		CartID: cartID, CategoryID: f.gaID, Quantity: 101,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientSeats)

	agg, err = f.mgr.AddItem(ctx, "user-a", AddItemParams{
		CartID: cartID, CategoryID: f.gaID, Quantity: 4,
	})
	require.NoError(t, err)
	require.Len(t, agg.Items, 1)
	assert.Equal(t, 4, agg.Items[0].Quantity)
	assert.False(t, agg.Items[0].Assigned())
}

func TestUpdateQuantityRejectsAssignedLines(t *testing.T) {
	f := newCartFixture(t, true, false)
	ctx := context.Background()

	agg, err := f.mgr.GetOrCreate(ctx, "user-a", f.eventID)
	require.NoError(t, err)
	agg, err = f.mgr.AddItem(ctx, "user-a", AddItemParams{
		CartID: agg.Cart.ID, CategoryID: f.assignedID, SeatIDs: f.seatIDs[:2],
	})
	require.NoError(t, err)

	_, err = f.mgr.UpdateItemQuantity(ctx, "user-a", agg.Cart.ID, agg.Items[0].ID, 5)
	require.ErrorIs(t, err, domain.ErrAssignedSeatQuantity)
}

func TestCartExpiresLazilyAndReleasesLocks(t *testing.T) {
	f := newCartFixture(t, true, false)
	ctx := context.Background()

	agg, err := f.mgr.GetOrCreate(ctx, "user-a", f.eventID)
	require.NoError(t, err)
	cartID := agg.Cart.ID
	_, err = f.mgr.AddItem(ctx, "user-a", AddItemParams{
		CartID: cartID, CategoryID: f.assignedID, SeatIDs: f.seatIDs[:2],
	})
	require.NoError(t, err)

	f.clk.Advance(31 * time.Minute)

	_, err = f.mgr.AddItem(ctx, "user-a", AddItemParams{
		CartID: cartID, CategoryID: f.gaID, Quantity: 1,
	})
	require.ErrorIs(t, err, domain.ErrCartExpired)

	cart, err := f.store.GetCart(ctx, cartID)
	require.NoError(t, err)
	assert.Equal(t, domain.CartStatusExpired, cart.Status)

	seats, err := f.ledger.Seats(ctx, f.seatIDs[:2])
	require.NoError(t, err)
	for _, seat := range seats {
		assert.Equal(t, domain.SeatStatusAvailable, seat.Status)
	}
}

func TestValidateSeparatesErrorsFromWarnings(t *testing.T) {
	f := newCartFixture(t, true, false)
	ctx := context.Background()

	agg, err := f.mgr.GetOrCreate(ctx, "user-a", f.eventID)
	require.NoError(t, err)
	cartID := agg.Cart.ID

	_, err = f.mgr.AddItem(ctx, "user-a", AddItemParams{
		CartID: cartID, CategoryID: f.assignedID, SeatIDs: f.seatIDs[:2],
	})
	require.NoError(t, err)
	_, err = f.mgr.AddItem(ctx, "user-a", AddItemParams{
		CartID: cartID, CategoryID: f.gaID, Quantity: 10,
	})
	require.NoError(t, err)

	result, _, err := f.mgr.Validate(ctx, cartID)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)

	// seat locks lapse while the cart itself is still live, and GA inventory
	// drains below the requested quantity
	f.clk.Advance(15 * time.Minute)
	require.NoError(t, f.store.DecrementCategoryAvailable(ctx, f.gaID, 95))

	result, _, err = f.mgr.Validate(ctx, cartID)
	require.NoError(t, err)
	assert.False(t, result.OK)

	// a lapsed lock is repairable, drained inventory is not
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, f.assignedID, result.Warnings[0].CategoryID)
	assert.Equal(t, "seat lock expired, re-lock required", result.Warnings[0].Reason)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, f.gaID, result.Errors[0].CategoryID)
	assert.Equal(t, "insufficient availability", result.Errors[0].Reason)
}

func TestAbandonReleasesLocks(t *testing.T) {
	f := newCartFixture(t, true, false)
	ctx := context.Background()

	agg, err := f.mgr.GetOrCreate(ctx, "user-a", f.eventID)
	require.NoError(t, err)
	_, err = f.mgr.AddItem(ctx, "user-a", AddItemParams{
		CartID: agg.Cart.ID, CategoryID: f.assignedID, SeatIDs: f.seatIDs[:2],
	})
	require.NoError(t, err)

	require.ErrorIs(t, f.mgr.Abandon(ctx, "user-b", agg.Cart.ID), domain.ErrCartNotFound)
	require.NoError(t, f.mgr.Abandon(ctx, "user-a", agg.Cart.ID))

	cart, err := f.store.GetCart(ctx, agg.Cart.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CartStatusAbandoned, cart.Status)

	seats, err := f.ledger.Seats(ctx, f.seatIDs[:2])
	require.NoError(t, err)
	for _, seat := range seats {
		assert.Equal(t, domain.SeatStatusAvailable, seat.Status)
	}
}

func TestRemoveItemReleasesItsLocks(t *testing.T) {
	f := newCartFixture(t, true, false)
	ctx := context.Background()

	agg, err := f.mgr.GetOrCreate(ctx, "user-a", f.eventID)
	require.NoError(t, err)
	agg, err = f.mgr.AddItem(ctx, "user-a", AddItemParams{
		CartID: agg.Cart.ID, CategoryID: f.assignedID, SeatIDs: f.seatIDs[:2],
	})
	require.NoError(t, err)

	agg, err = f.mgr.RemoveItem(ctx, "user-a", agg.Cart.ID, agg.Items[0].ID)
	require.NoError(t, err)
	assert.Empty(t, agg.Items)

	seats, err := f.ledger.Seats(ctx, f.seatIDs[:2])
	require.NoError(t, err)
	for _, seat := range seats {
		assert.Equal(t, domain.SeatStatusAvailable, seat.Status)
	}
}

func TestSweepExpiredClosesLapsedCarts(t *testing.T) {
	f := newCartFixture(t, true, false)
	ctx := context.Background()

	agg, err := f.mgr.GetOrCreate(ctx, "user-a", f.eventID)
	require.NoError(t, err)
	_, err = f.mgr.AddItem(ctx, "user-a", AddItemParams{
		CartID: agg.Cart.ID, CategoryID: f.assignedID, SeatIDs: f.seatIDs[:2],
	})
	require.NoError(t, err)
	_, err = f.mgr.GetOrCreate(ctx, "user-b", f.eventID)
	require.NoError(t, err)

	f.clk.Advance(31 * time.Minute)
	swept, err := f.mgr.SweepExpired(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, swept)

	cart, err := f.store.GetCart(ctx, agg.Cart.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CartStatusExpired, cart.Status)
}
