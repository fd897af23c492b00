package cache

import (
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type options struct {
	now          func() time.Time
	meter        metric.Meter
	singleFlight bool
}

func defaultOptions() options {
	return options{
		now:   time.Now,
		meter: noop.NewMeterProvider().Meter("cache"),
	}
}

// Option customises an InMemoryTTLCache.
type Option func(*options)

// WithClock replaces the wall clock used to stamp and check expiry times.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMeter records hit and miss counters on the given meter.
func WithMeter(meter metric.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithSingleFlight collapses concurrent misses for the same key into a single
// fallback call. Without it every concurrent miss calls the fallback and the
// last write wins.
func WithSingleFlight() Option {
	return func(o *options) {
		o.singleFlight = true
	}
}
