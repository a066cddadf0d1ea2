package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/telemetry"
)

// PostgresSeatRepository stores seats in the seats table. ClaimBatch is
// all-or-nothing: called outside a transaction it opens its own and rolls a
// short match back; inside TxManager.InTx it joins and the caller's rollback
// applies.
type PostgresSeatRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSeatRepository(pool *pgxpool.Pool) *PostgresSeatRepository {
	return &PostgresSeatRepository{pool: pool}
}

func (r *PostgresSeatRepository) CreateBatch(ctx context.Context, seats []*domain.Seat) error {
	ctx, span := telemetry.StartSpan(ctx, "SeatRepository.CreateBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("seat.count", len(seats)))

	q := querier(ctx, r.pool)
	query := `
		INSERT INTO seats (id, event_id, category_id, label, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, seat := range seats {
		_, err := q.Exec(ctx, query,
			seat.ID, seat.EventID, seat.CategoryID, seat.Label,
			seat.Status, seat.CreatedAt, seat.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert seat %s: %w", seat.ID, err)
		}
	}
	return nil
}

func (r *PostgresSeatRepository) GetByIDs(ctx context.Context, seatIDs []string) ([]*domain.Seat, error) {
	ctx, span := telemetry.StartSpan(ctx, "SeatRepository.GetByIDs")
	defer span.End()

	query := `
		SELECT id, event_id, category_id, label, status,
		       locked_until, locked_by, booking_id, created_at, updated_at
		FROM seats
		WHERE id = ANY($1)`

	rows, err := querier(ctx, r.pool).Query(ctx, query, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query seats: %w", err)
	}
	defer rows.Close()

	found := make(map[string]*domain.Seat, len(seatIDs))
	for rows.Next() {
		var seat domain.Seat
		if err := rows.Scan(
			&seat.ID, &seat.EventID, &seat.CategoryID, &seat.Label, &seat.Status,
			&seat.LockedUntil, &seat.LockedBy, &seat.BookingID, &seat.CreatedAt, &seat.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan seat: %w", err)
		}
		found[seat.ID] = &seat
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seats: %w", err)
	}

	out := make([]*domain.Seat, 0, len(seatIDs))
	for _, id := range seatIDs {
		seat, ok := found[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrSeatNotFound, id)
		}
		out = append(out, seat)
	}
	return out, nil
}

func (r *PostgresSeatRepository) ClaimBatch(ctx context.Context, seatIDs []string, holder string, until, now time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "SeatRepository.ClaimBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("seat.count", len(seatIDs)))

	if tx, ok := querier(ctx, r.pool).(pgx.Tx); ok {
		return claimSeats(ctx, tx, seatIDs, holder, until, now)
	}

	// standalone claim: a partial match must not auto-commit, or the matched
	// subset stays locked by a loser until the TTL lapses
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin claim: %w", err)
	}
	if err := claimSeats(ctx, tx, seatIDs, holder, until, now); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit claim: %w", err)
	}
	return nil
}

func claimSeats(ctx context.Context, q Querier, seatIDs []string, holder string, until, now time.Time) error {
	// A seat whose lock has lapsed is claimable even before any sweep runs.
	query := `
		UPDATE seats
		SET status = 'locked', locked_by = $2, locked_until = $3, updated_at = $4
		WHERE id = ANY($1)
		  AND (status = 'available'
		       OR (status = 'locked' AND (locked_until <= $4 OR locked_by = $2)))`

	tag, err := q.Exec(ctx, query, seatIDs, holder, until, now)
	if err != nil {
		return fmt.Errorf("failed to lock seats: %w", err)
	}
	if int(tag.RowsAffected()) != len(seatIDs) {
		return domain.ErrSeatConflict
	}
	return nil
}

func (r *PostgresSeatRepository) Release(ctx context.Context, seatIDs []string, holder string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "SeatRepository.Release")
	defer span.End()

	query := `
		UPDATE seats
		SET status = 'available', locked_by = NULL, locked_until = NULL, updated_at = NOW()
		WHERE id = ANY($1) AND status = 'locked' AND locked_by = $2`

	tag, err := querier(ctx, r.pool).Exec(ctx, query, seatIDs, holder)
	if err != nil {
		return 0, fmt.Errorf("failed to release seats: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresSeatRepository) Commit(ctx context.Context, seatIDs []string, holder, bookingID string) error {
	ctx, span := telemetry.StartSpan(ctx, "SeatRepository.Commit")
	defer span.End()

	query := `
		UPDATE seats
		SET status = 'booked', booking_id = $3, locked_by = NULL, locked_until = NULL, updated_at = NOW()
		WHERE id = ANY($1) AND status = 'locked' AND locked_by = $2`

	tag, err := querier(ctx, r.pool).Exec(ctx, query, seatIDs, holder, bookingID)
	if err != nil {
		return fmt.Errorf("failed to commit seats: %w", err)
	}
	if int(tag.RowsAffected()) != len(seatIDs) {
		return domain.ErrSeatNotHeld
	}
	return nil
}

func (r *PostgresSeatRepository) Uncommit(ctx context.Context, seatIDs []string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "SeatRepository.Uncommit")
	defer span.End()

	query := `
		UPDATE seats
		SET status = 'available', booking_id = NULL, updated_at = NOW()
		WHERE id = ANY($1) AND status = 'booked'`

	tag, err := querier(ctx, r.pool).Exec(ctx, query, seatIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to restore seats: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresSeatRepository) AllHeldBy(ctx context.Context, seatIDs []string, holder string, now time.Time) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "SeatRepository.AllHeldBy")
	defer span.End()

	query := `
		SELECT COUNT(*)
		FROM seats
		WHERE id = ANY($1) AND status = 'locked' AND locked_by = $2 AND locked_until > $3`

	var held int
	if err := querier(ctx, r.pool).QueryRow(ctx, query, seatIDs, holder, now).Scan(&held); err != nil {
		return false, fmt.Errorf("failed to count held seats: %w", err)
	}
	return held == len(seatIDs), nil
}

func (r *PostgresSeatRepository) ReleaseExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "SeatRepository.ReleaseExpired")
	defer span.End()

	// SKIP LOCKED keeps concurrent sweeps and in-flight claims from blocking
	// each other; whatever this pass misses the next pass picks up.
	query := `
		UPDATE seats
		SET status = 'available', locked_by = NULL, locked_until = NULL, updated_at = $1
		WHERE id IN (
			SELECT id FROM seats
			WHERE status = 'locked' AND locked_until <= $1
			ORDER BY locked_until
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`

	tag, err := querier(ctx, r.pool).Exec(ctx, query, now, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to release expired locks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
