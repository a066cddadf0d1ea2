// Package cart manages reservation carts: one active cart per user and
// event, TTL-bounded, with seat locks held on the cart's behalf by the seat
// ledger. Expiry is lazy; any access that finds a lapsed cart expires it in
// place, and a background sweep handles the rest for hygiene.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seatwise/seatwise/internal/clock"
	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/ledger"
	"github.com/seatwise/seatwise/internal/logger"
	"github.com/seatwise/seatwise/internal/metrics"
	"github.com/seatwise/seatwise/internal/repository"
	"github.com/seatwise/seatwise/internal/telemetry"
)

// AdmissionChecker gates cart creation on queue-enabled events. The queue
// controller implements it; events without a queue bypass it entirely.
type AdmissionChecker interface {
	CanProceed(ctx context.Context, eventID, userID string) (bool, error)
}

// AddItemParams describes one category line to add. SeatIDs selects explicit
// seats (assigned seating); an empty SeatIDs with Quantity > 0 is a
// general-admission line.
type AddItemParams struct {
	CartID     string
	CategoryID string
	SeatIDs    []string
	Quantity   int
}

// Problem describes one validation failure for a cart item.
type Problem struct {
	ItemID     string `json:"item_id"`
	CategoryID string `json:"category_id"`
	Reason     string `json:"reason"`
}

// ValidationResult is the outcome of a pre-checkout cart validation. Errors
// block checkout outright; warnings flag lines the buyer can still repair,
// like re-locking seats whose hold lapsed.
type ValidationResult struct {
	OK       bool      `json:"ok"`
	Errors   []Problem `json:"errors,omitempty"`
	Warnings []Problem `json:"warnings,omitempty"`
}

type Manager struct {
	carts      repository.CartRepository
	events     repository.EventRepository
	categories repository.CategoryRepository
	ledger     *ledger.Service
	admission  AdmissionChecker
	clock      clock.Clock
	log        *logger.Logger

	cartTTL time.Duration
	lockTTL time.Duration
}

type ManagerParams struct {
	Carts      repository.CartRepository
	Events     repository.EventRepository
	Categories repository.CategoryRepository
	Ledger     *ledger.Service
	Admission  AdmissionChecker
	Clock      clock.Clock
	Logger     *logger.Logger
	CartTTL    time.Duration
	LockTTL    time.Duration
}

func NewManager(p ManagerParams) *Manager {
	return &Manager{
		carts:      p.Carts,
		events:     p.Events,
		categories: p.Categories,
		ledger:     p.Ledger,
		admission:  p.Admission,
		clock:      p.Clock,
		log:        p.Logger,
		cartTTL:    p.CartTTL,
		lockTTL:    p.LockTTL,
	}
}

// GetOrCreate returns the user's active cart for the event, creating one if
// none exists. An active cart past its TTL is expired on the spot and
// replaced. On queue-enabled events the user must hold a valid processing
// window or the call fails with domain.ErrNotAdmitted.
func (m *Manager) GetOrCreate(ctx context.Context, userID, eventID string) (*domain.CartWithItems, error) {
	ctx, span := telemetry.StartSpan(ctx, "Cart.GetOrCreate")
	defer span.End()

	now := m.clock.Now()

	event, err := m.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.BookingOpen(now) {
		return nil, domain.ErrBookingWindowClosed
	}
	if event.QueueEnabled {
		ok, err := m.admission.CanProceed(ctx, eventID, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrNotAdmitted
		}
	}

	existing, err := m.carts.GetActiveByUserAndEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.Expired(now) {
			return m.carts.GetWithItems(ctx, existing.ID)
		}
		if err := m.expire(ctx, existing); err != nil {
			return nil, err
		}
	}

	cart := &domain.Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventID:   eventID,
		Status:    domain.CartStatusActive,
		ExpiresAt: now.Add(m.cartTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = m.carts.Create(ctx, cart)
	if errors.Is(err, domain.ErrCartAlreadyActive) {
		// lost the creation race, the other cart wins
		raced, rerr := m.carts.GetActiveByUserAndEvent(ctx, userID, eventID)
		if rerr != nil || raced == nil {
			return nil, err
		}
		return m.carts.GetWithItems(ctx, raced.ID)
	}
	if err != nil {
		return nil, err
	}

	metrics.ActiveCarts.Add(ctx, 1)
	m.log.Info("cart created",
		zap.String("cart_id", cart.ID),
		zap.String("user_id", userID),
		zap.String("event_id", eventID),
	)
	return &domain.CartWithItems{Cart: *cart}, nil
}

// Get returns the user's active cart for the event. A lapsed cart is expired
// in place and reported as domain.ErrCartExpired.
func (m *Manager) Get(ctx context.Context, userID, eventID string) (*domain.CartWithItems, error) {
	ctx, span := telemetry.StartSpan(ctx, "Cart.Get")
	defer span.End()

	cart, err := m.carts.GetActiveByUserAndEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, domain.ErrCartNotFound
	}
	if cart.Expired(m.clock.Now()) {
		if err := m.expire(ctx, cart); err != nil {
			return nil, err
		}
		return nil, domain.ErrCartExpired
	}
	return m.carts.GetWithItems(ctx, cart.ID)
}

// AddItem adds one category line to the cart. Assigned-seating lines lock
// the seats with the cart as holder before the line is written; a lock
// conflict adds nothing. Adding also refreshes the cart TTL.
func (m *Manager) AddItem(ctx context.Context, userID string, params AddItemParams) (*domain.CartWithItems, error) {
	ctx, span := telemetry.StartSpan(ctx, "Cart.AddItem")
	defer span.End()

	cart, err := m.usableCart(ctx, userID, params.CartID)
	if err != nil {
		return nil, err
	}

	category, err := m.categories.GetByID(ctx, params.CategoryID)
	if err != nil {
		return nil, err
	}
	if category.EventID != cart.EventID {
		return nil, domain.ErrCategoryWrongEvent
	}
	if !category.IsActive {
		return nil, domain.ErrCategoryInactive
	}

	now := m.clock.Now()
	item := &domain.CartItem{
		ID:         uuid.NewString(),
		CartID:     cart.ID,
		CategoryID: category.ID,
		UnitPrice:  category.Price,
		CreatedAt:  now,
	}

	if len(params.SeatIDs) > 0 {
		if !category.HasAssigned {
			return nil, fmt.Errorf("%w: category has no assigned seating", domain.ErrCategoryWrongEvent)
		}
		seats, err := m.ledger.Seats(ctx, params.SeatIDs)
		if err != nil {
			return nil, err
		}
		for _, seat := range seats {
			if seat.EventID != cart.EventID || seat.CategoryID != category.ID {
				return nil, fmt.Errorf("%w: seat %s", domain.ErrCategoryWrongEvent, seat.ID)
			}
		}

		lockedUntil, err := m.ledger.Lock(ctx, params.SeatIDs, cart.ID, m.lockTTL)
		if err != nil {
			return nil, err
		}
		item.SeatIDs = params.SeatIDs
		item.Quantity = len(params.SeatIDs)
		item.LockedUntil = lockedUntil
	} else {
		if params.Quantity < 1 {
			return nil, domain.ErrInvalidQuantity
		}
		if category.AvailableSeats < params.Quantity {
			return nil, domain.ErrInsufficientSeats
		}
		item.Quantity = params.Quantity
		item.LockedUntil = now.Add(m.lockTTL)
	}

	if err := m.carts.AddItem(ctx, item); err != nil {
		if item.Assigned() {
			if _, rerr := m.ledger.Release(ctx, item.SeatIDs, cart.ID); rerr != nil {
				m.log.Warn("failed to release seats after add failure",
					zap.String("cart_id", cart.ID), zap.Error(rerr))
			}
		}
		return nil, err
	}

	if err := m.carts.Touch(ctx, cart.ID, now.Add(m.cartTTL)); err != nil {
		return nil, err
	}
	return m.carts.GetWithItems(ctx, cart.ID)
}

// UpdateItemQuantity changes a general-admission line's quantity. Assigned
// lines reject quantity edits; the seat list is the quantity.
func (m *Manager) UpdateItemQuantity(ctx context.Context, userID, cartID, itemID string, qty int) (*domain.CartWithItems, error) {
	ctx, span := telemetry.StartSpan(ctx, "Cart.UpdateItemQuantity")
	defer span.End()

	cart, err := m.usableCart(ctx, userID, cartID)
	if err != nil {
		return nil, err
	}

	item, err := m.cartItem(ctx, cart.ID, itemID)
	if err != nil {
		return nil, err
	}
	if item.Assigned() {
		return nil, domain.ErrAssignedSeatQuantity
	}
	if qty < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	if qty > item.Quantity {
		category, err := m.categories.GetByID(ctx, item.CategoryID)
		if err != nil {
			return nil, err
		}
		if category.AvailableSeats < qty {
			return nil, domain.ErrInsufficientSeats
		}
	}

	now := m.clock.Now()
	if err := m.carts.UpdateItemQuantity(ctx, itemID, qty, now.Add(m.lockTTL)); err != nil {
		return nil, err
	}
	if err := m.carts.Touch(ctx, cart.ID, now.Add(m.cartTTL)); err != nil {
		return nil, err
	}
	return m.carts.GetWithItems(ctx, cart.ID)
}

// RemoveItem drops a line, releasing any seat locks it held.
func (m *Manager) RemoveItem(ctx context.Context, userID, cartID, itemID string) (*domain.CartWithItems, error) {
	ctx, span := telemetry.StartSpan(ctx, "Cart.RemoveItem")
	defer span.End()

	cart, err := m.usableCart(ctx, userID, cartID)
	if err != nil {
		return nil, err
	}

	item, err := m.cartItem(ctx, cart.ID, itemID)
	if err != nil {
		return nil, err
	}
	if item.Assigned() {
		if _, err := m.ledger.Release(ctx, item.SeatIDs, cart.ID); err != nil {
			return nil, err
		}
	}
	if err := m.carts.RemoveItem(ctx, itemID); err != nil {
		return nil, err
	}
	if err := m.carts.Touch(ctx, cart.ID, m.clock.Now().Add(m.cartTTL)); err != nil {
		return nil, err
	}
	return m.carts.GetWithItems(ctx, cart.ID)
}

// Validate checks every line against live inventory: assigned lines must
// still hold their seat locks, general-admission lines must fit the current
// availability. Instead of failing fast it reports everything at once, as
// blocking errors or repairable warnings.
func (m *Manager) Validate(ctx context.Context, cartID string) (*ValidationResult, *domain.CartWithItems, error) {
	ctx, span := telemetry.StartSpan(ctx, "Cart.Validate")
	defer span.End()

	agg, err := m.carts.GetWithItems(ctx, cartID)
	if err != nil {
		return nil, nil, err
	}
	if !agg.Cart.Usable(m.clock.Now()) {
		if agg.Cart.Status == domain.CartStatusActive {
			return nil, nil, domain.ErrCartExpired
		}
		return nil, nil, domain.ErrCartNotActive
	}

	result := &ValidationResult{OK: true}
	for i := range agg.Items {
		item := &agg.Items[i]
		if item.Assigned() {
			held, err := m.ledger.HeldBy(ctx, item.SeatIDs, cartID)
			if err != nil {
				return nil, nil, err
			}
			if !held {
				result.OK = false
				result.Warnings = append(result.Warnings, Problem{
					ItemID:     item.ID,
					CategoryID: item.CategoryID,
					Reason:     "seat lock expired, re-lock required",
				})
			}
			continue
		}

		category, err := m.categories.GetByID(ctx, item.CategoryID)
		if err != nil {
			return nil, nil, err
		}
		if category.AvailableSeats < item.Quantity {
			result.OK = false
			result.Errors = append(result.Errors, Problem{
				ItemID:     item.ID,
				CategoryID: item.CategoryID,
				Reason:     "insufficient availability",
			})
		}
	}
	return result, agg, nil
}

// Abandon voluntarily closes the cart and hands its seat locks back.
func (m *Manager) Abandon(ctx context.Context, userID, cartID string) error {
	ctx, span := telemetry.StartSpan(ctx, "Cart.Abandon")
	defer span.End()

	cart, err := m.carts.GetByID(ctx, cartID)
	if err != nil {
		return err
	}
	if cart.UserID != userID {
		return domain.ErrCartNotFound
	}
	return m.close(ctx, cart, domain.CartStatusAbandoned)
}

// SweepExpired transitions lapsed active carts and releases their locks.
// Lazy expiry already hides these carts from readers; the sweep reclaims the
// rows and keeps metrics honest.
func (m *Manager) SweepExpired(ctx context.Context, limit int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "Cart.SweepExpired")
	defer span.End()

	carts, err := m.carts.ListExpiredActive(ctx, m.clock.Now(), limit)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, cart := range carts {
		if err := m.expire(ctx, cart); err != nil {
			m.log.Warn("failed to expire cart",
				zap.String("cart_id", cart.ID), zap.Error(err))
			continue
		}
		swept++
	}
	return swept, nil
}

func (m *Manager) expire(ctx context.Context, cart *domain.Cart) error {
	return m.close(ctx, cart, domain.CartStatusExpired)
}

func (m *Manager) close(ctx context.Context, cart *domain.Cart, to domain.CartStatus) error {
	agg, err := m.carts.GetWithItems(ctx, cart.ID)
	if err != nil {
		return err
	}

	err = m.carts.UpdateStatus(ctx, cart.ID, domain.CartStatusActive, to)
	if errors.Is(err, domain.ErrCartNotActive) {
		// someone else closed it first
		return nil
	}
	if err != nil {
		return err
	}

	for i := range agg.Items {
		if !agg.Items[i].Assigned() {
			continue
		}
		if _, err := m.ledger.Release(ctx, agg.Items[i].SeatIDs, cart.ID); err != nil {
			m.log.Warn("failed to release seats for closed cart",
				zap.String("cart_id", cart.ID), zap.Error(err))
		}
	}

	metrics.ActiveCarts.Add(ctx, -1)
	m.log.Info("cart closed",
		zap.String("cart_id", cart.ID),
		zap.String("status", string(to)),
	)
	return nil
}

// usableCart loads the cart, verifies ownership and applies lazy expiry. On
// queue-enabled events the owner must still hold a valid processing window;
// a cart can outlive the window, the right to mutate it cannot.
func (m *Manager) usableCart(ctx context.Context, userID, cartID string) (*domain.Cart, error) {
	cart, err := m.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart.UserID != userID {
		return nil, domain.ErrCartNotFound
	}
	if cart.Status != domain.CartStatusActive {
		return nil, domain.ErrCartNotActive
	}
	if cart.Expired(m.clock.Now()) {
		if err := m.expire(ctx, cart); err != nil {
			return nil, err
		}
		return nil, domain.ErrCartExpired
	}

	event, err := m.events.GetByID(ctx, cart.EventID)
	if err != nil {
		return nil, err
	}
	if event.QueueEnabled {
		ok, err := m.admission.CanProceed(ctx, cart.EventID, cart.UserID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrNotAdmitted
		}
	}
	return cart, nil
}

func (m *Manager) cartItem(ctx context.Context, cartID, itemID string) (*domain.CartItem, error) {
	item, err := m.carts.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.CartID != cartID {
		return nil, domain.ErrCartItemNotFound
	}
	return item, nil
}
