package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatwise/seatwise/internal/clock"
	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/events"
	"github.com/seatwise/seatwise/internal/logger"
	"github.com/seatwise/seatwise/internal/queue"
	"github.com/seatwise/seatwise/internal/repository"
)

func newTickWorkerFixture(t *testing.T) (*QueueTickWorker, *queue.Controller, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	now := clk.Now()
	require.NoError(t, store.CreateEvent(context.Background(), &domain.Event{
		ID:              "evt-1",
		Name:            "Test Concert",
		BookingOpensAt:  now.Add(-time.Hour),
		BookingClosesAt: now.Add(24 * time.Hour),
		IsActive:        true,
		QueueEnabled:    true,
		QueueBatchSize:  1,
	}))

	ctrl := queue.NewController(store, repository.NewMemoryEventRepository(store),
		events.NoopPublisher{}, clk, logger.Get(), queue.Config{
			DefaultBatchSize:         100,
			DefaultProcessingMinutes: 10,
			AvgCheckoutMinutes:       5,
			JWTSecret:                "test-secret",
			JWTIssuer:                "seatwise",
		})

	w := NewQueueTickWorker(ctrl, &QueueTickWorkerConfig{TickInterval: 10 * time.Millisecond})
	return w, ctrl, store
}

func TestQueueTickWorkerPromotesWaiters(t *testing.T) {
	w, ctrl, _ := newTickWorkerFixture(t)
	ctx := context.Background()

	_, err := ctrl.Join(ctx, "evt-1", "alice")
	require.NoError(t, err)

	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.Eventually(t, func() bool {
		ok, err := ctrl.CanProceed(ctx, "evt-1", "alice")
		return err == nil && ok
	}, time.Second, 10*time.Millisecond, "the worker should promote alice within a few ticks")
}

func TestQueueTickWorkerStartTwice(t *testing.T) {
	w, _, _ := newTickWorkerFixture(t)
	ctx := context.Background()

	require.NoError(t, w.Start(ctx))
	assert.Error(t, w.Start(ctx), "a running worker rejects a second start")
	w.Stop()
	w.Stop() // stopping again is a no-op
}

func TestQueueTickWorkerStopsOnContextCancel(t *testing.T) {
	w, _, _ := newTickWorkerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, w.Start(ctx))
	cancel()
	// Stop still returns promptly after the context already ended the loop
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}
