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

type PostgresBookingRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresBookingRepository(pool *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool}
}

const bookingColumns = `id, user_id, event_id, cart_id, status, status_reason,
	total_amount, ticket_count, contact_name, contact_email, contact_phone,
	gateway_order_id, reversed, created_at, updated_at, confirmed_at, cancelled_at`

func (r *PostgresBookingRepository) Create(ctx context.Context, b *domain.Booking, items []*domain.BookingItem) error {
	ctx, span := telemetry.StartSpan(ctx, "BookingRepository.Create")
	defer span.End()

	q := querier(ctx, r.pool)

	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := q.Exec(ctx, query,
		b.ID, b.UserID, b.EventID, b.CartID, b.Status, b.StatusReason,
		b.TotalAmount, b.TicketCount, b.Contact.Name, b.Contact.Email, b.Contact.Phone,
		b.GatewayOrderID, b.Reversed, b.CreatedAt, b.UpdatedAt, b.ConfirmedAt, b.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	itemQuery := `
		INSERT INTO booking_items (id, booking_id, category_id, category_name, seat_id, seat_label, unit_price, ticket_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for _, item := range items {
		_, err := q.Exec(ctx, itemQuery,
			item.ID, item.BookingID, item.CategoryID, item.CategoryName,
			item.SeatID, item.SeatLabel, item.UnitPrice, item.TicketNumber,
		)
		if err != nil {
			return fmt.Errorf("failed to insert booking item: %w", err)
		}
	}
	return nil
}

func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.BookingWithItems, error) {
	ctx, span := telemetry.StartSpan(ctx, "BookingRepository.GetByID")
	defer span.End()

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresBookingRepository) GetByGatewayOrderID(ctx context.Context, orderID string) (*domain.BookingWithItems, error) {
	ctx, span := telemetry.StartSpan(ctx, "BookingRepository.GetByGatewayOrderID")
	defer span.End()

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE gateway_order_id = $1`
	return r.getOne(ctx, query, orderID)
}

func (r *PostgresBookingRepository) getOne(ctx context.Context, query string, arg any) (*domain.BookingWithItems, error) {
	b, err := scanBooking(querier(ctx, r.pool).QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	items, err := r.listItems(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return &domain.BookingWithItems{Booking: *b, Items: items}, nil
}

func (r *PostgresBookingRepository) listItems(ctx context.Context, bookingID string) ([]domain.BookingItem, error) {
	query := `
		SELECT id, booking_id, category_id, category_name, seat_id, seat_label, unit_price, ticket_number
		FROM booking_items
		WHERE booking_id = $1
		ORDER BY ticket_number`

	rows, err := querier(ctx, r.pool).Query(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query booking items: %w", err)
	}
	defer rows.Close()

	var items []domain.BookingItem
	for rows.Next() {
		var item domain.BookingItem
		if err := rows.Scan(
			&item.ID, &item.BookingID, &item.CategoryID, &item.CategoryName,
			&item.SeatID, &item.SeatLabel, &item.UnitPrice, &item.TicketNumber,
		); err != nil {
			return nil, fmt.Errorf("failed to scan booking item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read booking items: %w", err)
	}
	return items, nil
}

func (r *PostgresBookingRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "BookingRepository.ListByUser")
	defer span.End()

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := querier(ctx, r.pool).Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var out []*domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bookings: %w", err)
	}
	return out, nil
}

func (r *PostgresBookingRepository) UpdateStatus(ctx context.Context, id string, from, to domain.BookingStatus, reason string) error {
	ctx, span := telemetry.StartSpan(ctx, "BookingRepository.UpdateStatus")
	defer span.End()

	query := `
		UPDATE bookings
		SET status = $3,
		    status_reason = $4,
		    updated_at = NOW(),
		    confirmed_at = CASE WHEN $3 = 'confirmed' THEN NOW() ELSE confirmed_at END,
		    cancelled_at = CASE WHEN $3 IN ('cancelled', 'failed') THEN NOW() ELSE cancelled_at END
		WHERE id = $1 AND status = $2`

	tag, err := querier(ctx, r.pool).Exec(ctx, query, id, from, to, reason)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrBookingNotPending
	}
	return nil
}

func (r *PostgresBookingRepository) SetGatewayOrderID(ctx context.Context, id, orderID string) error {
	ctx, span := telemetry.StartSpan(ctx, "BookingRepository.SetGatewayOrderID")
	defer span.End()

	query := `UPDATE bookings SET gateway_order_id = $2, updated_at = NOW() WHERE id = $1`

	tag, err := querier(ctx, r.pool).Exec(ctx, query, id, orderID)
	if err != nil {
		return fmt.Errorf("failed to set gateway order id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

func (r *PostgresBookingRepository) MarkReversed(ctx context.Context, id string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "BookingRepository.MarkReversed")
	defer span.End()

	// Compare-and-set: exactly one caller wins, repeat reversals no-op.
	query := `UPDATE bookings SET reversed = TRUE, updated_at = NOW() WHERE id = $1 AND reversed = FALSE`

	tag, err := querier(ctx, r.pool).Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark booking reversed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *PostgresBookingRepository) CountSoldByCategory(ctx context.Context, categoryID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "BookingRepository.CountSoldByCategory")
	defer span.End()

	query := `
		SELECT COUNT(*)
		FROM booking_items bi
		JOIN bookings b ON b.id = bi.booking_id
		WHERE bi.category_id = $1 AND b.status IN ('pending', 'confirmed')`

	var count int
	if err := querier(ctx, r.pool).QueryRow(ctx, query, categoryID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sold tickets: %w", err)
	}
	return count, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(
		&b.ID, &b.UserID, &b.EventID, &b.CartID, &b.Status, &b.StatusReason,
		&b.TotalAmount, &b.TicketCount, &b.Contact.Name, &b.Contact.Email, &b.Contact.Phone,
		&b.GatewayOrderID, &b.Reversed, &b.CreatedAt, &b.UpdatedAt, &b.ConfirmedAt, &b.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
