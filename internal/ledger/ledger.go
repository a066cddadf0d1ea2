// Package ledger is the seat inventory authority. Every seat state
// transition (lock, release, commit, restore) goes through here; other
// services never touch seat rows directly.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seatwise/seatwise/internal/clock"
	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/logger"
	"github.com/seatwise/seatwise/internal/metrics"
	"github.com/seatwise/seatwise/internal/repository"
	"github.com/seatwise/seatwise/internal/telemetry"
)

type Service struct {
	seats repository.SeatRepository
	clock clock.Clock
	log   *logger.Logger
}

func NewService(seats repository.SeatRepository, clk clock.Clock, log *logger.Logger) *Service {
	return &Service{seats: seats, clock: clk, log: log}
}

// Lock claims all seats for holder with the given TTL, all-or-nothing.
// Concurrent calls for overlapping seat sets produce exactly one winner; the
// losers get domain.ErrSeatConflict and no seats change hands. Seats whose
// previous lock lapsed are claimable immediately, no sweep required.
func (s *Service) Lock(ctx context.Context, seatIDs []string, holder string, ttl time.Duration) (time.Time, error) {
	ctx, span := telemetry.StartSpan(ctx, "Ledger.Lock")
	defer span.End()

	now := s.clock.Now()
	until := now.Add(ttl)

	if err := s.seats.ClaimBatch(ctx, seatIDs, holder, until, now); err != nil {
		if domain.IsConflictError(err) {
			metrics.SeatConflicts.Inc(ctx)
		}
		return time.Time{}, err
	}

	metrics.SeatsLocked.Add(ctx, int64(len(seatIDs)))
	return until, nil
}

// Extend refreshes the holder's lock deadline. It rides the same claim path:
// the holder's own live locks count as claimable, anything else conflicts.
func (s *Service) Extend(ctx context.Context, seatIDs []string, holder string, ttl time.Duration) (time.Time, error) {
	ctx, span := telemetry.StartSpan(ctx, "Ledger.Extend")
	defer span.End()

	now := s.clock.Now()
	until := now.Add(ttl)
	if err := s.seats.ClaimBatch(ctx, seatIDs, holder, until, now); err != nil {
		return time.Time{}, err
	}
	return until, nil
}

// Release hands the holder's locks back. Idempotent: seats already released,
// expired or re-locked by someone else are skipped silently.
func (s *Service) Release(ctx context.Context, seatIDs []string, holder string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "Ledger.Release")
	defer span.End()

	return s.seats.Release(ctx, seatIDs, holder)
}

// Commit converts the holder's locks into booked seats.
func (s *Service) Commit(ctx context.Context, seatIDs []string, holder, bookingID string) error {
	ctx, span := telemetry.StartSpan(ctx, "Ledger.Commit")
	defer span.End()

	return s.seats.Commit(ctx, seatIDs, holder, bookingID)
}

// Uncommit returns booked seats to the pool after a payment failure or
// cancellation. Idempotent.
func (s *Service) Uncommit(ctx context.Context, seatIDs []string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "Ledger.Uncommit")
	defer span.End()

	return s.seats.Uncommit(ctx, seatIDs)
}

// HeldBy reports whether holder still carries a live lock on every seat.
func (s *Service) HeldBy(ctx context.Context, seatIDs []string, holder string) (bool, error) {
	return s.seats.AllHeldBy(ctx, seatIDs, holder, s.clock.Now())
}

// Seats fetches the current seat rows for validation and display.
func (s *Service) Seats(ctx context.Context, seatIDs []string) ([]*domain.Seat, error) {
	return s.seats.GetByIDs(ctx, seatIDs)
}

// Seed bulk-creates available seats for an event category.
func (s *Service) Seed(ctx context.Context, eventID, categoryID string, labels []string) ([]*domain.Seat, error) {
	ctx, span := telemetry.StartSpan(ctx, "Ledger.Seed")
	defer span.End()

	now := s.clock.Now()
	seats := make([]*domain.Seat, len(labels))
	for i, label := range labels {
		seats[i] = &domain.Seat{
			ID:         uuid.NewString(),
			EventID:    eventID,
			CategoryID: categoryID,
			Label:      label,
			Status:     domain.SeatStatusAvailable,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	if err := s.seats.CreateBatch(ctx, seats); err != nil {
		return nil, err
	}
	return seats, nil
}

// SweepExpired resets seats with lapsed locks. Readers never depend on the
// sweep; it exists so dashboards and ad-hoc queries see clean rows.
func (s *Service) SweepExpired(ctx context.Context, limit int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "Ledger.SweepExpired")
	defer span.End()

	released, err := s.seats.ReleaseExpired(ctx, s.clock.Now(), limit)
	if err != nil {
		return 0, err
	}
	if released > 0 {
		metrics.SweepReleased.Add(ctx, int64(released))
		s.log.Debug("released expired seat locks", zap.Int("count", released))
	}
	return released, nil
}
