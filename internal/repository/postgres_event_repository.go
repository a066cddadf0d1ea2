package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/telemetry"
)

type PostgresEventRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresEventRepository(pool *pgxpool.Pool) *PostgresEventRepository {
	return &PostgresEventRepository{pool: pool}
}

func (r *PostgresEventRepository) Create(ctx context.Context, e *domain.Event) error {
	ctx, span := telemetry.StartSpan(ctx, "EventRepository.Create")
	defer span.End()

	query := `
		INSERT INTO events (
			id, name, venue, starts_at, booking_opens_at, booking_closes_at,
			total_seats, available_seats, is_active,
			queue_enabled, queue_batch_size, processing_minutes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := querier(ctx, r.pool).Exec(ctx, query,
		e.ID, e.Name, e.Venue, e.StartsAt, e.BookingOpensAt, e.BookingClosesAt,
		e.TotalSeats, e.AvailableSeats, e.IsActive,
		e.QueueEnabled, e.QueueBatchSize, e.ProcessingMinutes,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (r *PostgresEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "EventRepository.GetByID")
	defer span.End()

	query := `
		SELECT id, name, venue, starts_at, booking_opens_at, booking_closes_at,
		       total_seats, available_seats, is_active,
		       queue_enabled, queue_batch_size, processing_minutes,
		       created_at, updated_at
		FROM events
		WHERE id = $1`

	var e domain.Event
	err := querier(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&e.ID, &e.Name, &e.Venue, &e.StartsAt, &e.BookingOpensAt, &e.BookingClosesAt,
		&e.TotalSeats, &e.AvailableSeats, &e.IsActive,
		&e.QueueEnabled, &e.QueueBatchSize, &e.ProcessingMinutes,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &e, nil
}

func (r *PostgresEventRepository) DecrementAvailable(ctx context.Context, id string, qty int) error {
	ctx, span := telemetry.StartSpan(ctx, "EventRepository.DecrementAvailable")
	defer span.End()

	query := `
		UPDATE events
		SET available_seats = available_seats - $2, updated_at = NOW()
		WHERE id = $1 AND available_seats >= $2`

	tag, err := querier(ctx, r.pool).Exec(ctx, query, id, qty)
	if err != nil {
		return fmt.Errorf("failed to decrement event seats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrInsufficientSeats
	}
	return nil
}

func (r *PostgresEventRepository) RestoreAvailable(ctx context.Context, id string, qty int) error {
	ctx, span := telemetry.StartSpan(ctx, "EventRepository.RestoreAvailable")
	defer span.End()

	query := `
		UPDATE events
		SET available_seats = LEAST(total_seats, available_seats + $2), updated_at = NOW()
		WHERE id = $1`

	tag, err := querier(ctx, r.pool).Exec(ctx, query, id, qty)
	if err != nil {
		return fmt.Errorf("failed to restore event seats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}
