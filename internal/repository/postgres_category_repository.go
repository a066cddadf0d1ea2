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

type PostgresCategoryRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresCategoryRepository(pool *pgxpool.Pool) *PostgresCategoryRepository {
	return &PostgresCategoryRepository{pool: pool}
}

const categoryColumns = `id, event_id, name, price, total_seats, available_seats,
	has_assigned_seating, is_active, created_at, updated_at`

func (r *PostgresCategoryRepository) Create(ctx context.Context, c *domain.SeatCategory) error {
	ctx, span := telemetry.StartSpan(ctx, "CategoryRepository.Create")
	defer span.End()

	query := `
		INSERT INTO seat_categories (` + categoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := querier(ctx, r.pool).Exec(ctx, query,
		c.ID, c.EventID, c.Name, c.Price, c.TotalSeats, c.AvailableSeats,
		c.HasAssigned, c.IsActive, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert category: %w", err)
	}
	return nil
}

func (r *PostgresCategoryRepository) GetByID(ctx context.Context, id string) (*domain.SeatCategory, error) {
	ctx, span := telemetry.StartSpan(ctx, "CategoryRepository.GetByID")
	defer span.End()

	query := `SELECT ` + categoryColumns + ` FROM seat_categories WHERE id = $1`

	c, err := scanCategory(querier(ctx, r.pool).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return c, nil
}

func (r *PostgresCategoryRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.SeatCategory, error) {
	ctx, span := telemetry.StartSpan(ctx, "CategoryRepository.ListByEvent")
	defer span.End()

	query := `SELECT ` + categoryColumns + ` FROM seat_categories WHERE event_id = $1 ORDER BY name`

	rows, err := querier(ctx, r.pool).Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []*domain.SeatCategory
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read categories: %w", err)
	}
	return out, nil
}

func (r *PostgresCategoryRepository) DecrementAvailable(ctx context.Context, id string, qty int) error {
	ctx, span := telemetry.StartSpan(ctx, "CategoryRepository.DecrementAvailable")
	defer span.End()

	// The guard keeps the counter non-negative under concurrent checkouts;
	// losing the race is the InsufficientInventory signal.
	query := `
		UPDATE seat_categories
		SET available_seats = available_seats - $2, updated_at = NOW()
		WHERE id = $1 AND available_seats >= $2`

	tag, err := querier(ctx, r.pool).Exec(ctx, query, id, qty)
	if err != nil {
		return fmt.Errorf("failed to decrement category seats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrInsufficientSeats
	}
	return nil
}

func (r *PostgresCategoryRepository) RestoreAvailable(ctx context.Context, id string, qty int) error {
	ctx, span := telemetry.StartSpan(ctx, "CategoryRepository.RestoreAvailable")
	defer span.End()

	query := `
		UPDATE seat_categories
		SET available_seats = LEAST(total_seats, available_seats + $2), updated_at = NOW()
		WHERE id = $1`

	tag, err := querier(ctx, r.pool).Exec(ctx, query, id, qty)
	if err != nil {
		return fmt.Errorf("failed to restore category seats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCategoryNotFound
	}
	return nil
}

func scanCategory(row pgx.Row) (*domain.SeatCategory, error) {
	var c domain.SeatCategory
	err := row.Scan(
		&c.ID, &c.EventID, &c.Name, &c.Price, &c.TotalSeats, &c.AvailableSeats,
		&c.HasAssigned, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
