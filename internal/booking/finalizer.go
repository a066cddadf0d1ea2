// Package booking converts validated carts into bookings and reverses them
// when payment fails or the buyer cancels. Finalization is a single atomic
// unit: booking row, seat commits, counter decrements and cart conversion
// all land together or not at all.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seatwise/seatwise/internal/clock"
	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/events"
	"github.com/seatwise/seatwise/internal/ledger"
	"github.com/seatwise/seatwise/internal/logger"
	"github.com/seatwise/seatwise/internal/metrics"
	"github.com/seatwise/seatwise/internal/repository"
	"github.com/seatwise/seatwise/internal/telemetry"
)

// QueueGate couples checkout to the admission queue: on queue-enabled events
// finalizing requires a live processing window, and success closes out the
// buyer's entry.
type QueueGate interface {
	CanProceed(ctx context.Context, eventID, userID string) (bool, error)
	Complete(ctx context.Context, eventID, userID string) error
}

type Finalizer struct {
	tx         repository.TxManager
	carts      repository.CartRepository
	bookings   repository.BookingRepository
	categories repository.CategoryRepository
	eventRepo  repository.EventRepository
	ledger     *ledger.Service
	queue      QueueGate
	publisher  events.Publisher
	clock      clock.Clock
	log        *logger.Logger
}

type FinalizerParams struct {
	Tx         repository.TxManager
	Carts      repository.CartRepository
	Bookings   repository.BookingRepository
	Categories repository.CategoryRepository
	Events     repository.EventRepository
	Ledger     *ledger.Service
	Queue      QueueGate
	Publisher  events.Publisher
	Clock      clock.Clock
	Logger     *logger.Logger
}

func NewFinalizer(p FinalizerParams) *Finalizer {
	return &Finalizer{
		tx:         p.Tx,
		carts:      p.Carts,
		bookings:   p.Bookings,
		categories: p.Categories,
		eventRepo:  p.Events,
		ledger:     p.Ledger,
		queue:      p.Queue,
		publisher:  p.Publisher,
		clock:      p.Clock,
		log:        p.Logger,
	}
}

// Finalize converts the user's cart into a pending booking. Every check runs
// before the first write: the cart must be live, the buyer still admitted on
// queue-gated events, every assigned seat still locked by the cart, and every
// general-admission line within current availability. Then, atomically: create the booking with item snapshots,
// commit the seats, decrement the counters, convert the cart. Losing a
// counter race surfaces as domain.ErrInsufficientSeats and the cart stays
// active for the buyer to adjust.
func (f *Finalizer) Finalize(ctx context.Context, userID, cartID string, contact domain.ContactInfo) (*domain.BookingWithItems, error) {
	ctx, span := telemetry.StartSpan(ctx, "Booking.Finalize")
	defer span.End()

	start := time.Now()
	var result *domain.BookingWithItems

	err := f.tx.InTx(ctx, func(ctx context.Context) error {
		now := f.clock.Now()

		agg, err := f.carts.GetWithItems(ctx, cartID)
		if err != nil {
			return err
		}
		if agg.Cart.UserID != userID {
			return domain.ErrCartNotFound
		}
		if agg.Cart.Status != domain.CartStatusActive {
			return domain.ErrCartNotActive
		}
		if agg.Cart.Expired(now) {
			return domain.ErrCartExpired
		}
		if len(agg.Items) == 0 {
			return fmt.Errorf("%w: cart is empty", domain.ErrCartNotValidated)
		}

		event, err := f.eventRepo.GetByID(ctx, agg.Cart.EventID)
		if err != nil {
			return err
		}
		if event.QueueEnabled && f.queue != nil {
			ok, err := f.queue.CanProceed(ctx, event.ID, userID)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrNotAdmitted
			}
		}

		booking := &domain.Booking{
			ID:             uuid.NewString(),
			UserID:         userID,
			EventID:        agg.Cart.EventID,
			CartID:         cartID,
			Status:         domain.BookingStatusPending,
			TotalAmount:    agg.TotalAmount(),
			TicketCount:    agg.TotalUnits(),
			Contact:        contact,
			GatewayOrderID: "ord-" + uuid.NewString(),
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		items, seatIDs, perCategory, err := f.buildItems(ctx, booking, agg, now)
		if err != nil {
			return err
		}

		if err := f.bookings.Create(ctx, booking, items); err != nil {
			return err
		}
		if len(seatIDs) > 0 {
			if err := f.ledger.Commit(ctx, seatIDs, cartID, booking.ID); err != nil {
				return err
			}
		}
		for categoryID, qty := range perCategory {
			if err := f.categories.DecrementAvailable(ctx, categoryID, qty); err != nil {
				return err
			}
		}
		if err := f.eventRepo.DecrementAvailable(ctx, booking.EventID, booking.TicketCount); err != nil {
			return err
		}
		if err := f.carts.UpdateStatus(ctx, cartID, domain.CartStatusActive, domain.CartStatusConverted); err != nil {
			return err
		}

		result = &domain.BookingWithItems{Booking: *booking}
		for _, item := range items {
			result.Items = append(result.Items, *item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.BookingsFinalized.Inc(ctx)
	metrics.ActiveCarts.Add(ctx, -1)
	metrics.FinalizeDuration.Record(ctx, time.Since(start).Seconds())

	if f.queue != nil {
		if err := f.queue.Complete(ctx, result.Booking.EventID, userID); err != nil {
			f.log.Warn("failed to complete queue entry",
				zap.String("user_id", userID), zap.Error(err))
		}
	}
	f.publish(ctx, events.BookingCreated, &result.Booking, "")

	f.log.Info("booking finalized",
		zap.String("booking_id", result.Booking.ID),
		zap.String("cart_id", cartID),
		zap.Int("tickets", result.Booking.TicketCount),
		zap.Int64("amount", result.Booking.TotalAmount),
	)
	return result, nil
}

// buildItems validates every cart line against live inventory and produces
// the immutable booking item snapshots. Runs before any write.
func (f *Finalizer) buildItems(
	ctx context.Context,
	booking *domain.Booking,
	agg *domain.CartWithItems,
	now time.Time,
) ([]*domain.BookingItem, []string, map[string]int, error) {
	var items []*domain.BookingItem
	var seatIDs []string
	perCategory := make(map[string]int)
	ticketSeq := 0

	for i := range agg.Items {
		line := &agg.Items[i]

		category, err := f.categories.GetByID(ctx, line.CategoryID)
		if err != nil {
			return nil, nil, nil, err
		}
		perCategory[category.ID] += line.Units()

		if line.Assigned() {
			held, err := f.ledger.HeldBy(ctx, line.SeatIDs, agg.Cart.ID)
			if err != nil {
				return nil, nil, nil, err
			}
			if !held {
				return nil, nil, nil, domain.ErrLockExpired
			}

			seats, err := f.ledger.Seats(ctx, line.SeatIDs)
			if err != nil {
				return nil, nil, nil, err
			}
			for _, seat := range seats {
				ticketSeq++
				seatID := seat.ID
				items = append(items, &domain.BookingItem{
					ID:           uuid.NewString(),
					BookingID:    booking.ID,
					CategoryID:   category.ID,
					CategoryName: category.Name,
					SeatID:       &seatID,
					SeatLabel:    seat.Label,
					UnitPrice:    line.UnitPrice,
					TicketNumber: ticketNumber(booking.ID, ticketSeq),
				})
				seatIDs = append(seatIDs, seat.ID)
			}
			continue
		}

		if category.AvailableSeats < line.Quantity {
			return nil, nil, nil, domain.ErrInsufficientSeats
		}
		// the availability counter is a cache of total minus sold; recount
		// sold tickets from the booking rows so counter drift never oversells
		sold, err := f.bookings.CountSoldByCategory(ctx, category.ID)
		if err != nil {
			return nil, nil, nil, err
		}
		if category.TotalSeats-sold < line.Quantity {
			return nil, nil, nil, domain.ErrInsufficientSeats
		}
		for n := 0; n < line.Quantity; n++ {
			ticketSeq++
			items = append(items, &domain.BookingItem{
				ID:           uuid.NewString(),
				BookingID:    booking.ID,
				CategoryID:   category.ID,
				CategoryName: category.Name,
				UnitPrice:    line.UnitPrice,
				TicketNumber: ticketNumber(booking.ID, ticketSeq),
			})
		}
	}
	return items, seatIDs, perCategory, nil
}

// HandlePaymentOutcome applies the payment collaborator's verdict. Success
// confirms the booking; failure fails it and reverses the inventory.
// Redeliveries are safe: the pending->terminal transition fires once.
func (f *Finalizer) HandlePaymentOutcome(ctx context.Context, outcome *events.PaymentOutcomeEvent) error {
	ctx, span := telemetry.StartSpan(ctx, "Booking.HandlePaymentOutcome")
	defer span.End()

	agg, err := f.resolve(ctx, outcome)
	if err != nil {
		return err
	}

	if outcome.EventType == events.PaymentSucceeded {
		err := f.bookings.UpdateStatus(ctx, agg.Booking.ID,
			domain.BookingStatusPending, domain.BookingStatusConfirmed, "")
		if errors.Is(err, domain.ErrBookingNotPending) {
			return nil
		}
		if err != nil {
			return err
		}
		metrics.BookingsConfirmed.Inc(ctx)
		f.publish(ctx, events.BookingConfirmed, &agg.Booking, "")
		return nil
	}

	reason := outcome.Reason
	if reason == "" {
		reason = "payment failed"
	}
	err = f.bookings.UpdateStatus(ctx, agg.Booking.ID,
		domain.BookingStatusPending, domain.BookingStatusFailed, reason)
	if errors.Is(err, domain.ErrBookingNotPending) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := f.reverse(ctx, agg); err != nil {
		return err
	}
	metrics.BookingsFailed.Inc(ctx)
	f.publish(ctx, events.BookingFailed, &agg.Booking, reason)
	return nil
}

// Cancel voids a pending or confirmed booking and returns its inventory.
func (f *Finalizer) Cancel(ctx context.Context, userID, bookingID, reason string) error {
	ctx, span := telemetry.StartSpan(ctx, "Booking.Cancel")
	defer span.End()

	agg, err := f.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if agg.Booking.UserID != userID {
		return domain.ErrBookingNotFound
	}
	from := agg.Booking.Status
	if from != domain.BookingStatusPending && from != domain.BookingStatusConfirmed {
		return domain.ErrBookingNotPending
	}

	if err := f.bookings.UpdateStatus(ctx, bookingID, from, domain.BookingStatusCancelled, reason); err != nil {
		return err
	}
	if err := f.reverse(ctx, agg); err != nil {
		return err
	}

	metrics.BookingsCancelled.Inc(ctx)
	f.publish(ctx, events.BookingCancelled, &agg.Booking, reason)
	return nil
}

// Get returns the booking if it belongs to the user.
func (f *Finalizer) Get(ctx context.Context, userID, bookingID string) (*domain.BookingWithItems, error) {
	agg, err := f.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if agg.Booking.UserID != userID {
		return nil, domain.ErrBookingNotFound
	}
	return agg, nil
}

// List returns the user's bookings, newest first.
func (f *Finalizer) List(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
	if limit <= 0 {
		limit = 20
	}
	return f.bookings.ListByUser(ctx, userID, limit, offset)
}

// reverse returns the booking's inventory exactly once. The reversed flag is
// a compare-and-set, so concurrent failure handling, cancellation and
// redelivered outcomes restore each seat and counter a single time.
func (f *Finalizer) reverse(ctx context.Context, agg *domain.BookingWithItems) error {
	return f.tx.InTx(ctx, func(ctx context.Context) error {
		first, err := f.bookings.MarkReversed(ctx, agg.Booking.ID)
		if err != nil {
			return err
		}
		if !first {
			return nil
		}

		var seatIDs []string
		perCategory := make(map[string]int)
		for i := range agg.Items {
			item := &agg.Items[i]
			perCategory[item.CategoryID]++
			if item.SeatID != nil {
				seatIDs = append(seatIDs, *item.SeatID)
			}
		}

		if len(seatIDs) > 0 {
			if _, err := f.ledger.Uncommit(ctx, seatIDs); err != nil {
				return err
			}
		}
		for categoryID, qty := range perCategory {
			if err := f.categories.RestoreAvailable(ctx, categoryID, qty); err != nil {
				return err
			}
		}
		if err := f.eventRepo.RestoreAvailable(ctx, agg.Booking.EventID, len(agg.Items)); err != nil {
			return err
		}

		f.log.Info("booking reversed",
			zap.String("booking_id", agg.Booking.ID),
			zap.Int("tickets", len(agg.Items)),
		)
		return nil
	})
}

func (f *Finalizer) resolve(ctx context.Context, outcome *events.PaymentOutcomeEvent) (*domain.BookingWithItems, error) {
	if outcome.BookingID != "" {
		return f.bookings.GetByID(ctx, outcome.BookingID)
	}
	if outcome.GatewayOrderID != "" {
		return f.bookings.GetByGatewayOrderID(ctx, outcome.GatewayOrderID)
	}
	return nil, domain.ErrBookingNotFound
}

func (f *Finalizer) publish(ctx context.Context, typ events.BookingEventType, b *domain.Booking, reason string) {
	_ = f.publisher.PublishBookingEvent(ctx, &events.BookingEvent{
		Type:        typ,
		BookingID:   b.ID,
		UserID:      b.UserID,
		EventID:     b.EventID,
		CartID:      b.CartID,
		Amount:      b.TotalAmount,
		TicketCount: b.TicketCount,
		Reason:      reason,
		Timestamp:   f.clock.Now(),
	})
}

func ticketNumber(bookingID string, seq int) string {
	return fmt.Sprintf("TKT-%s-%03d", strings.ToUpper(bookingID[:8]), seq)
}
