package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricOpts describes a metric instrument
type MetricOpts struct {
	Name        string
	Description string
	Unit        string
}

func meter() metric.Meter {
	return otel.Meter(tracerName)
}

// Counter is a monotonically increasing counter
type Counter struct {
	c metric.Int64Counter
}

// NewCounter creates a new counter instrument
func NewCounter(opts MetricOpts) (*Counter, error) {
	c, err := meter().Int64Counter(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, err
	}
	return &Counter{c: c}, nil
}

// Inc increments the counter by one. A nil counter drops the measurement so
// instruments stay optional outside the wired binary.
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Add increments the counter by n
func (c *Counter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.c.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Histogram records a distribution of values
type Histogram struct {
	h metric.Float64Histogram
}

// NewHistogram creates a new histogram instrument
func NewHistogram(opts MetricOpts) (*Histogram, error) {
	h, err := meter().Float64Histogram(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, err
	}
	return &Histogram{h: h}, nil
}

// Record records a single observation
func (h *Histogram) Record(ctx context.Context, v float64, attrs ...attribute.KeyValue) {
	if h == nil {
		return
	}
	h.h.Record(ctx, v, metric.WithAttributes(attrs...))
}

// UpDownCounter tracks a value that can go up and down
type UpDownCounter struct {
	c metric.Int64UpDownCounter
}

// NewUpDownCounter creates a new up/down counter instrument
func NewUpDownCounter(opts MetricOpts) (*UpDownCounter, error) {
	c, err := meter().Int64UpDownCounter(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, err
	}
	return &UpDownCounter{c: c}, nil
}

// Add adjusts the counter by n (may be negative)
func (c *UpDownCounter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.c.Add(ctx, n, metric.WithAttributes(attrs...))
}
