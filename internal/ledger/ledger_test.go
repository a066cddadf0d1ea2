package ledger

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
	"github.com/seatwise/seatwise/internal/logger"
	"github.com/seatwise/seatwise/internal/repository"
)

func newTestLedger(t *testing.T) (*Service, *repository.MemoryStore, *clock.Fake) {
	t.Helper()
	store := repository.NewMemoryStore()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewService(store, clk, logger.Get()), store, clk
}

func seedSeats(t *testing.T, svc *Service, n int) []string {
	t.Helper()
	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("A-%d", i+1)
	}
	seats, err := svc.Seed(context.Background(), "evt-1", "cat-1", labels)
	require.NoError(t, err)
	ids := make([]string, len(seats))
	for i, seat := range seats {
		ids[i] = seat.ID
	}
	return ids
}

func TestLockConcurrentSingleWinner(t *testing.T) {
	svc, _, _ := newTestLedger(t)
	seatIDs := seedSeats(t, svc, 3)
	ctx := context.Background()

	const holders = 20
	var wg sync.WaitGroup
	errs := make([]error, holders)
	for i := 0; i < holders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Lock(ctx, seatIDs, fmt.Sprintf("cart-%d", i), 10*time.Minute)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t, domain.IsConflictError(err), "loser must get a conflict, got %v", err)
		}
	}
	assert.Equal(t, 1, winners, "exactly one holder wins an overlapping claim")
}

func TestLockAllOrNothing(t *testing.T) {
	svc, _, _ := newTestLedger(t)
	seatIDs := seedSeats(t, svc, 3)
	ctx := context.Background()

	_, err := svc.Lock(ctx, seatIDs[2:], "cart-a", 10*time.Minute)
	require.NoError(t, err)

	// cart-b wants all three; the overlap on the last seat fails the batch
	_, err = svc.Lock(ctx, seatIDs, "cart-b", 10*time.Minute)
	require.ErrorIs(t, err, domain.ErrSeatConflict)

	seats, err := svc.Seats(ctx, seatIDs[:2])
	require.NoError(t, err)
	for _, seat := range seats {
		assert.Equal(t, domain.SeatStatusAvailable, seat.Status,
			"failed batch must not leave partial locks behind")
	}
}

func TestExpiredLockIsClaimable(t *testing.T) {
	svc, _, clk := newTestLedger(t)
	seatIDs := seedSeats(t, svc, 2)
	ctx := context.Background()

	_, err := svc.Lock(ctx, seatIDs, "cart-a", 10*time.Minute)
	require.NoError(t, err)

	// still live: competing claim loses
	_, err = svc.Lock(ctx, seatIDs, "cart-b", 10*time.Minute)
	require.ErrorIs(t, err, domain.ErrSeatConflict)

	// past the TTL the seats are claimable without any sweep running
	clk.Advance(10*time.Minute + time.Second)
	_, err = svc.Lock(ctx, seatIDs, "cart-b", 10*time.Minute)
	require.NoError(t, err)

	held, err := svc.HeldBy(ctx, seatIDs, "cart-b")
	require.NoError(t, err)
	assert.True(t, held)
}

func TestExtendRefreshesOwnLock(t *testing.T) {
	svc, _, clk := newTestLedger(t)
	seatIDs := seedSeats(t, svc, 1)
	ctx := context.Background()

	first, err := svc.Lock(ctx, seatIDs, "cart-a", 10*time.Minute)
	require.NoError(t, err)

	clk.Advance(5 * time.Minute)
	extended, err := svc.Extend(ctx, seatIDs, "cart-a", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, extended.After(first))
}

func TestReleaseIsIdempotent(t *testing.T) {
	svc, _, _ := newTestLedger(t)
	seatIDs := seedSeats(t, svc, 3)
	ctx := context.Background()

	_, err := svc.Lock(ctx, seatIDs, "cart-a", 10*time.Minute)
	require.NoError(t, err)

	released, err := svc.Release(ctx, seatIDs, "cart-a")
	require.NoError(t, err)
	assert.Equal(t, 3, released)

	released, err = svc.Release(ctx, seatIDs, "cart-a")
	require.NoError(t, err)
	assert.Equal(t, 0, released)
}

func TestReleaseSkipsForeignLocks(t *testing.T) {
	svc, _, _ := newTestLedger(t)
	seatIDs := seedSeats(t, svc, 1)
	ctx := context.Background()

	_, err := svc.Lock(ctx, seatIDs, "cart-a", 10*time.Minute)
	require.NoError(t, err)

	released, err := svc.Release(ctx, seatIDs, "cart-b")
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	held, err := svc.HeldBy(ctx, seatIDs, "cart-a")
	require.NoError(t, err)
	assert.True(t, held, "foreign release must not touch the lock")
}

func TestCommitAndUncommit(t *testing.T) {
	svc, _, _ := newTestLedger(t)
	seatIDs := seedSeats(t, svc, 2)
	ctx := context.Background()

	require.ErrorIs(t, svc.Commit(ctx, seatIDs, "cart-a", "bkg-1"), domain.ErrSeatNotHeld)

	_, err := svc.Lock(ctx, seatIDs, "cart-a", 10*time.Minute)
	require.NoError(t, err)
	require.NoError(t, svc.Commit(ctx, seatIDs, "cart-a", "bkg-1"))

	seats, err := svc.Seats(ctx, seatIDs)
	require.NoError(t, err)
	for _, seat := range seats {
		assert.Equal(t, domain.SeatStatusBooked, seat.Status)
		require.NotNil(t, seat.BookingID)
		assert.Equal(t, "bkg-1", *seat.BookingID)
	}

	restored, err := svc.Uncommit(ctx, seatIDs)
	require.NoError(t, err)
	assert.Equal(t, 2, restored)

	restored, err = svc.Uncommit(ctx, seatIDs)
	require.NoError(t, err)
	assert.Equal(t, 0, restored, "uncommit is idempotent")
}

func TestHeldByExpiresLazily(t *testing.T) {
	svc, _, clk := newTestLedger(t)
	seatIDs := seedSeats(t, svc, 1)
	ctx := context.Background()

	_, err := svc.Lock(ctx, seatIDs, "cart-a", 10*time.Minute)
	require.NoError(t, err)

	held, err := svc.HeldBy(ctx, seatIDs, "cart-a")
	require.NoError(t, err)
	assert.True(t, held)

	clk.Advance(11 * time.Minute)
	held, err = svc.HeldBy(ctx, seatIDs, "cart-a")
	require.NoError(t, err)
	assert.False(t, held, "a lapsed lock no longer counts as held")
}

func TestSweepExpiredResetsRows(t *testing.T) {
	svc, _, clk := newTestLedger(t)
	seatIDs := seedSeats(t, svc, 3)
	ctx := context.Background()

	_, err := svc.Lock(ctx, seatIDs[:2], "cart-a", 10*time.Minute)
	require.NoError(t, err)
	clk.Advance(11 * time.Minute)

	released, err := svc.SweepExpired(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, released)

	seats, err := svc.Seats(ctx, seatIDs)
	require.NoError(t, err)
	for _, seat := range seats {
		assert.Equal(t, domain.SeatStatusAvailable, seat.Status)
	}
}
