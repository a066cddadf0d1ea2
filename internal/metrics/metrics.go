package metrics

import (
	"sync"

	"github.com/seatwise/seatwise/internal/telemetry"
)

var (
	// Booking counters
	BookingsFinalized *telemetry.Counter
	BookingsConfirmed *telemetry.Counter
	BookingsCancelled *telemetry.Counter
	BookingsFailed    *telemetry.Counter

	// Queue counters
	QueueJoined   *telemetry.Counter
	QueueLeft     *telemetry.Counter
	QueuePromoted *telemetry.Counter
	QueueExpired  *telemetry.Counter

	// Inventory counters
	SeatsLocked   *telemetry.Counter
	SeatConflicts *telemetry.Counter
	SweepReleased *telemetry.Counter

	// Histograms
	FinalizeDuration *telemetry.Histogram

	// Gauges
	ActiveCarts *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all application metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	if BookingsFinalized, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "bookings_finalized_total",
		Description: "Total number of carts converted into bookings",
		Unit:        "1",
	}); err != nil {
		return err
	}

	if BookingsConfirmed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "bookings_confirmed_total",
		Description: "Total number of bookings confirmed after payment",
		Unit:        "1",
	}); err != nil {
		return err
	}

	if BookingsCancelled, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "bookings_cancelled_total",
		Description: "Total number of bookings cancelled by users",
		Unit:        "1",
	}); err != nil {
		return err
	}

	if BookingsFailed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "bookings_failed_total",
		Description: "Total number of bookings failed on payment outcome",
		Unit:        "1",
	}); err != nil {
		return err
	}

	if QueueJoined, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "queue_joins_total",
		Description: "Total number of users who joined a virtual queue",
		Unit:        "1",
	}); err != nil {
		return err
	}

	if QueueLeft, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "queue_leaves_total",
		Description: "Total number of users who voluntarily left a queue",
		Unit:        "1",
	}); err != nil {
		return err
	}

	if QueuePromoted, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "queue_promotions_total",
		Description: "Total number of queue entries promoted to processing",
		Unit:        "1",
	}); err != nil {
		return err
	}

	if QueueExpired, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "queue_processing_expirations_total",
		Description: "Total number of processing windows that expired",
		Unit:        "1",
	}); err != nil {
		return err
	}

	if SeatsLocked, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "seats_locked_total",
		Description: "Total number of seats locked into carts",
		Unit:        "1",
	}); err != nil {
		return err
	}

	if SeatConflicts, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "seat_lock_conflicts_total",
		Description: "Total number of seat lock attempts rejected as conflicts",
		Unit:        "1",
	}); err != nil {
		return err
	}

	if SweepReleased, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "sweep_released_total",
		Description: "Total number of expired holds released by the sweeper",
		Unit:        "1",
	}); err != nil {
		return err
	}

	if FinalizeDuration, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "booking_finalize_duration_seconds",
		Description: "Duration of cart finalization",
		Unit:        "s",
	}); err != nil {
		return err
	}

	if ActiveCarts, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "active_carts",
		Description: "Number of currently active carts",
		Unit:        "1",
	}); err != nil {
		return err
	}

	return nil
}
