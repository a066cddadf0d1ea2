package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/telemetry"
)

// PostgresCartRepository stores carts and cart_items. A partial unique index
// on (user_id, event_id) WHERE status = 'active' enforces the one-active-cart
// rule; losing that race surfaces as domain.ErrCartAlreadyActive.
type PostgresCartRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresCartRepository(pool *pgxpool.Pool) *PostgresCartRepository {
	return &PostgresCartRepository{pool: pool}
}

func (r *PostgresCartRepository) Create(ctx context.Context, cart *domain.Cart) error {
	ctx, span := telemetry.StartSpan(ctx, "CartRepository.Create")
	defer span.End()

	query := `
		INSERT INTO carts (id, user_id, event_id, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := querier(ctx, r.pool).Exec(ctx, query,
		cart.ID, cart.UserID, cart.EventID, cart.Status, cart.ExpiresAt,
		cart.CreatedAt, cart.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrCartAlreadyActive
	}
	if err != nil {
		return fmt.Errorf("failed to insert cart: %w", err)
	}
	return nil
}

func (r *PostgresCartRepository) GetByID(ctx context.Context, id string) (*domain.Cart, error) {
	ctx, span := telemetry.StartSpan(ctx, "CartRepository.GetByID")
	defer span.End()

	query := `
		SELECT id, user_id, event_id, status, expires_at, created_at, updated_at
		FROM carts
		WHERE id = $1`

	cart, err := scanCart(querier(ctx, r.pool).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return cart, nil
}

func (r *PostgresCartRepository) GetActiveByUserAndEvent(ctx context.Context, userID, eventID string) (*domain.Cart, error) {
	ctx, span := telemetry.StartSpan(ctx, "CartRepository.GetActiveByUserAndEvent")
	defer span.End()

	query := `
		SELECT id, user_id, event_id, status, expires_at, created_at, updated_at
		FROM carts
		WHERE user_id = $1 AND event_id = $2 AND status = 'active'`

	cart, err := scanCart(querier(ctx, r.pool).QueryRow(ctx, query, userID, eventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active cart: %w", err)
	}
	return cart, nil
}

func (r *PostgresCartRepository) GetWithItems(ctx context.Context, cartID string) (*domain.CartWithItems, error) {
	ctx, span := telemetry.StartSpan(ctx, "CartRepository.GetWithItems")
	defer span.End()

	cart, err := r.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, cart_id, category_id, seat_ids, quantity, unit_price, locked_until, created_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY created_at, id`

	rows, err := querier(ctx, r.pool).Query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	agg := &domain.CartWithItems{Cart: *cart}
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(
			&item.ID, &item.CartID, &item.CategoryID, &item.SeatIDs,
			&item.Quantity, &item.UnitPrice, &item.LockedUntil, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		agg.Items = append(agg.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cart items: %w", err)
	}
	return agg, nil
}

func (r *PostgresCartRepository) UpdateStatus(ctx context.Context, cartID string, from, to domain.CartStatus) error {
	ctx, span := telemetry.StartSpan(ctx, "CartRepository.UpdateStatus")
	defer span.End()

	query := `UPDATE carts SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`

	tag, err := querier(ctx, r.pool).Exec(ctx, query, cartID, from, to)
	if err != nil {
		return fmt.Errorf("failed to update cart status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, cartID); err != nil {
			return err
		}
		return domain.ErrCartNotActive
	}
	return nil
}

func (r *PostgresCartRepository) Touch(ctx context.Context, cartID string, expiresAt time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "CartRepository.Touch")
	defer span.End()

	query := `UPDATE carts SET expires_at = $2, updated_at = NOW() WHERE id = $1`

	tag, err := querier(ctx, r.pool).Exec(ctx, query, cartID, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to touch cart: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCartNotFound
	}
	return nil
}

func (r *PostgresCartRepository) AddItem(ctx context.Context, item *domain.CartItem) error {
	ctx, span := telemetry.StartSpan(ctx, "CartRepository.AddItem")
	defer span.End()

	query := `
		INSERT INTO cart_items (id, cart_id, category_id, seat_ids, quantity, unit_price, locked_until, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := querier(ctx, r.pool).Exec(ctx, query,
		item.ID, item.CartID, item.CategoryID, item.SeatIDs,
		item.Quantity, item.UnitPrice, item.LockedUntil, item.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateCategoryItem
	}
	if err != nil {
		return fmt.Errorf("failed to insert cart item: %w", err)
	}
	return nil
}

func (r *PostgresCartRepository) GetItem(ctx context.Context, itemID string) (*domain.CartItem, error) {
	ctx, span := telemetry.StartSpan(ctx, "CartRepository.GetItem")
	defer span.End()

	query := `
		SELECT id, cart_id, category_id, seat_ids, quantity, unit_price, locked_until, created_at
		FROM cart_items
		WHERE id = $1`

	var item domain.CartItem
	err := querier(ctx, r.pool).QueryRow(ctx, query, itemID).Scan(
		&item.ID, &item.CartID, &item.CategoryID, &item.SeatIDs,
		&item.Quantity, &item.UnitPrice, &item.LockedUntil, &item.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCartItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart item: %w", err)
	}
	return &item, nil
}

func (r *PostgresCartRepository) UpdateItemQuantity(ctx context.Context, itemID string, qty int, lockedUntil time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "CartRepository.UpdateItemQuantity")
	defer span.End()

	query := `UPDATE cart_items SET quantity = $2, locked_until = $3 WHERE id = $1`

	tag, err := querier(ctx, r.pool).Exec(ctx, query, itemID, qty, lockedUntil)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCartItemNotFound
	}
	return nil
}

func (r *PostgresCartRepository) RemoveItem(ctx context.Context, itemID string) error {
	ctx, span := telemetry.StartSpan(ctx, "CartRepository.RemoveItem")
	defer span.End()

	tag, err := querier(ctx, r.pool).Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCartItemNotFound
	}
	return nil
}

func (r *PostgresCartRepository) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*domain.Cart, error) {
	ctx, span := telemetry.StartSpan(ctx, "CartRepository.ListExpiredActive")
	defer span.End()

	query := `
		SELECT id, user_id, event_id, status, expires_at, created_at, updated_at
		FROM carts
		WHERE status = 'active' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`

	rows, err := querier(ctx, r.pool).Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired carts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Cart
	for rows.Next() {
		cart, err := scanCart(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart: %w", err)
		}
		out = append(out, cart)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read carts: %w", err)
	}
	return out, nil
}

func scanCart(row pgx.Row) (*domain.Cart, error) {
	var cart domain.Cart
	err := row.Scan(
		&cart.ID, &cart.UserID, &cart.EventID, &cart.Status, &cart.ExpiresAt,
		&cart.CreatedAt, &cart.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cart, nil
}
