// Package queue is the admission controller for high-demand events. Users
// join a per-event virtual queue, receive a monotonic position, and are
// promoted in batches into bounded processing windows that gate checkout.
package queue

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/seatwise/seatwise/internal/clock"
	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/events"
	"github.com/seatwise/seatwise/internal/logger"
	"github.com/seatwise/seatwise/internal/metrics"
	"github.com/seatwise/seatwise/internal/repository"
	"github.com/seatwise/seatwise/internal/telemetry"
)

// Config holds queue defaults applied when an event does not override them.
type Config struct {
	DefaultBatchSize         int
	DefaultProcessingMinutes int
	AvgCheckoutMinutes       int
	JWTSecret                string
	JWTIssuer                string
	AdmissionPassTTL         time.Duration
}

type Controller struct {
	queue     repository.QueueRepository
	events    repository.EventRepository
	publisher events.Publisher
	clock     clock.Clock
	log       *logger.Logger
	cfg       Config

	// collapses concurrent position polls for the same user
	sf singleflight.Group
}

func NewController(
	queue repository.QueueRepository,
	eventRepo repository.EventRepository,
	publisher events.Publisher,
	clk clock.Clock,
	log *logger.Logger,
	cfg Config,
) *Controller {
	return &Controller{
		queue:     queue,
		events:    eventRepo,
		publisher: publisher,
		clock:     clk,
		log:       log,
		cfg:       cfg,
	}
}

// Position is a queue status snapshot plus, once the user is inside a valid
// processing window, a signed admission pass for the checkout edge.
type Position struct {
	Update        *domain.PositionUpdate `json:"update"`
	AdmissionPass string                 `json:"admission_pass,omitempty"`
}

// Join enters the user into the event's queue. Idempotent: a user with an
// active entry gets that entry back, same position, no new one is created.
func (c *Controller) Join(ctx context.Context, eventID, userID string) (*Position, error) {
	ctx, span := telemetry.StartSpan(ctx, "Queue.Join")
	defer span.End()

	event, err := c.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.QueueEnabled {
		return nil, domain.ErrQueueDisabled
	}
	now := c.clock.Now()
	if !event.BookingOpen(now) {
		return nil, domain.ErrBookingWindowClosed
	}

	entry, created, err := c.queue.Join(ctx, eventID, userID, now)
	if err != nil {
		return nil, err
	}
	if created {
		metrics.QueueJoined.Inc(ctx)
		c.log.Info("user joined queue",
			zap.String("event_id", eventID),
			zap.String("user_id", userID),
			zap.Int64("position", entry.Position),
		)
	}

	pos, err := c.position(ctx, event, entry)
	if err != nil {
		return nil, err
	}
	if created {
		_ = c.publisher.PublishPositionUpdate(ctx, pos.Update)
	}
	return pos, nil
}

// GetPosition returns the user's current queue snapshot. Concurrent polls
// for the same user collapse into one backend lookup.
func (c *Controller) GetPosition(ctx context.Context, eventID, userID string) (*Position, error) {
	ctx, span := telemetry.StartSpan(ctx, "Queue.GetPosition")
	defer span.End()

	v, err, _ := c.sf.Do(eventID+":"+userID, func() (interface{}, error) {
		event, err := c.events.GetByID(ctx, eventID)
		if err != nil {
			return nil, err
		}
		entry, err := c.queue.Get(ctx, eventID, userID)
		if err != nil {
			return nil, err
		}
		return c.position(ctx, event, entry)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Position), nil
}

// Status is a public snapshot of the event's queue, safe to poll without an
// entry in the queue.
type Status struct {
	EventID      string `json:"event_id"`
	QueueEnabled bool   `json:"queue_enabled"`
	BookingOpen  bool   `json:"booking_open"`
	TotalWaiting int64  `json:"total_waiting"`
}

// GetStatus returns the event's queue snapshot.
func (c *Controller) GetStatus(ctx context.Context, eventID string) (*Status, error) {
	ctx, span := telemetry.StartSpan(ctx, "Queue.GetStatus")
	defer span.End()

	event, err := c.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	status := &Status{
		EventID:      eventID,
		QueueEnabled: event.QueueEnabled,
		BookingOpen:  event.BookingOpen(c.clock.Now()),
	}
	if event.QueueEnabled {
		waiting, err := c.queue.CountWaitingAhead(ctx, eventID, math.MaxInt64)
		if err != nil {
			return nil, err
		}
		status.TotalWaiting = waiting
	}
	return status, nil
}

// Leave voluntarily exits the queue. The entry keeps its position forever;
// rejoining later assigns a fresh, higher one.
func (c *Controller) Leave(ctx context.Context, eventID, userID string) error {
	ctx, span := telemetry.StartSpan(ctx, "Queue.Leave")
	defer span.End()

	entry, err := c.queue.Leave(ctx, eventID, userID)
	if err != nil {
		return err
	}

	metrics.QueueLeft.Inc(ctx)
	_ = c.publisher.PublishPositionUpdate(ctx, &domain.PositionUpdate{
		EventID:  eventID,
		UserID:   userID,
		Position: entry.Position,
		Status:   domain.QueueStatusLeft,
	})
	return nil
}

// Tick runs one promotion cycle for the event: expire lapsed processing
// windows first, then fill the freed slots from the head of the waiting
// line, strictly in position order.
func (c *Controller) Tick(ctx context.Context, eventID string) (*repository.TickResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "Queue.Tick")
	defer span.End()

	event, err := c.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	result, err := c.queue.Tick(ctx, eventID, c.batchSize(event), c.window(event), c.clock.Now())
	if err != nil {
		return nil, err
	}

	if n := len(result.Expired); n > 0 {
		metrics.QueueExpired.Add(ctx, int64(n))
	}
	if n := len(result.Promoted); n > 0 {
		metrics.QueuePromoted.Add(ctx, int64(n))
		c.log.Info("promoted queue batch",
			zap.String("event_id", eventID),
			zap.Int("promoted", n),
			zap.Int("expired", len(result.Expired)),
		)
	}

	for _, entry := range result.Expired {
		_ = c.publisher.PublishPositionUpdate(ctx, &domain.PositionUpdate{
			EventID:  eventID,
			UserID:   entry.UserID,
			Position: entry.Position,
			Status:   domain.QueueStatusExpired,
		})
	}
	for _, entry := range result.Promoted {
		_ = c.publisher.PublishPositionUpdate(ctx, &domain.PositionUpdate{
			EventID:    eventID,
			UserID:     entry.UserID,
			Position:   entry.Position,
			Status:     domain.QueueStatusProcessing,
			ExpiresAt:  entry.ExpiresAt,
			CanProceed: true,
		})
	}
	return result, nil
}

// TickAll runs a promotion cycle for every event with queue activity.
func (c *Controller) TickAll(ctx context.Context) error {
	eventIDs, err := c.queue.ActiveEventIDs(ctx)
	if err != nil {
		return err
	}
	for _, eventID := range eventIDs {
		if _, err := c.Tick(ctx, eventID); err != nil {
			c.log.Error("queue tick failed",
				zap.String("event_id", eventID), zap.Error(err))
		}
	}
	return nil
}

// Complete marks the user's processing entry done after a successful
// checkout. Idempotent: a missing or already-terminal entry is fine.
func (c *Controller) Complete(ctx context.Context, eventID, userID string) error {
	err := c.queue.Complete(ctx, eventID, userID)
	if errors.Is(err, domain.ErrQueueEntryNotFound) {
		return nil
	}
	return err
}

// CanProceed reports whether the user currently holds a valid processing
// window for the event. A lapsed window counts as expired immediately, even
// before a tick transitions the entry.
func (c *Controller) CanProceed(ctx context.Context, eventID, userID string) (bool, error) {
	entry, err := c.queue.Get(ctx, eventID, userID)
	if errors.Is(err, domain.ErrQueueEntryNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return entry.ProcessingValid(c.clock.Now()), nil
}

func (c *Controller) position(ctx context.Context, event *domain.Event, entry *domain.QueueEntry) (*Position, error) {
	now := c.clock.Now()
	update := &domain.PositionUpdate{
		EventID:    entry.EventID,
		UserID:     entry.UserID,
		Position:   entry.Position,
		Status:     entry.Status,
		ExpiresAt:  entry.ExpiresAt,
		CanProceed: entry.ProcessingValid(now),
	}

	if entry.Status == domain.QueueStatusWaiting {
		ahead, err := c.queue.CountWaitingAhead(ctx, entry.EventID, entry.Position)
		if err != nil {
			return nil, err
		}
		update.TotalAhead = ahead
		update.EstimatedWaitMinutes = c.EstimateWait(ahead, event)
	}

	pos := &Position{Update: update}
	if update.CanProceed {
		pass, err := c.IssueAdmissionPass(entry)
		if err != nil {
			return nil, err
		}
		pos.AdmissionPass = pass
	}
	return pos, nil
}

// EstimateWait is a coarse heuristic. Users inside the first batch are next
// up and wait zero; everyone else waits one cycle per full batch ahead of
// them, a cycle being the shorter of the average checkout time and the
// processing window. Presented as an estimate, never a promise.
func (c *Controller) EstimateWait(ahead int64, event *domain.Event) int64 {
	batch := int64(c.batchSize(event))
	if ahead < batch {
		return 0
	}
	cycle := int64(c.cfg.AvgCheckoutMinutes)
	if w := int64(c.window(event) / time.Minute); w < cycle {
		cycle = w
	}
	return (ahead / batch) * cycle
}

func (c *Controller) batchSize(event *domain.Event) int {
	if event.QueueBatchSize > 0 {
		return event.QueueBatchSize
	}
	return c.cfg.DefaultBatchSize
}

func (c *Controller) window(event *domain.Event) time.Duration {
	minutes := event.ProcessingMinutes
	if minutes <= 0 {
		minutes = c.cfg.DefaultProcessingMinutes
	}
	return time.Duration(minutes) * time.Minute
}
