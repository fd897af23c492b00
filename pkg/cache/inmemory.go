// Package cache provides a generic read-through, in-memory cache with a fixed
// time-to-live.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

// TTLConfig holds the configuration for an InMemoryTTLCache.
type TTLConfig struct {
	// Name identifies the cache in logs and metric attributes.
	Name string
	// TTL is how long a successfully fetched value is served before it is
	// treated as absent. Must be > 0.
	TTL time.Duration
}

// entry is a cached value and the instant after which it must not be served.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// InMemoryTTLCache is a generic, thread-safe, in-memory read-through cache.
// Only successful fallback results are stored; fallback errors are returned
// unchanged and never cached. Expired entries are not purged eagerly, they are
// simply ignored on lookup and overwritten by the next successful fetch.
type InMemoryTTLCache[K comparable, V any] struct {
	name     string
	ttl      time.Duration
	fallback Fetcher[K, V]
	logger   zerolog.Logger
	now      func() time.Time

	group        singleflight.Group
	singleFlight bool

	hits   metric.Int64Counter
	misses metric.Int64Counter
	attrs  metric.MeasurementOption

	mu   sync.RWMutex
	data map[K]entry[V]
}

// NewInMemoryTTLCache creates a new read-through cache in front of fallback.
// fallback may be nil, in which case the cache only serves values written
// with WriteToCache.
func NewInMemoryTTLCache[K comparable, V any](
	cfg *TTLConfig,
	fallback Fetcher[K, V],
	logger zerolog.Logger,
	opts ...Option,
) (*InMemoryTTLCache[K, V], error) {
	if cfg == nil {
		return nil, fmt.Errorf("cache config cannot be nil")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("ttl must be greater than 0")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	hits, err := o.meter.Int64Counter(
		"cache.hits",
		metric.WithDescription("Lookups served from the cache"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hit counter: %w", err)
	}
	misses, err := o.meter.Int64Counter(
		"cache.misses",
		metric.WithDescription("Lookups that fell through to the source"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create miss counter: %w", err)
	}

	name := cfg.Name
	if name == "" {
		name = "default"
	}

	return &InMemoryTTLCache[K, V]{
		name:         name,
		ttl:          cfg.TTL,
		fallback:     fallback,
		logger:       logger.With().Str("component", "InMemoryTTLCache").Str("cache", name).Logger(),
		now:          o.now,
		singleFlight: o.singleFlight,
		hits:         hits,
		misses:       misses,
		attrs:        metric.WithAttributes(attribute.String("cache.name", name)),
		data:         make(map[K]entry[V]),
	}, nil
}

// Fetch returns the cached value for key if it has not expired. Otherwise it
// calls the fallback, stores a successful result for the configured TTL and
// returns it.
func (c *InMemoryTTLCache[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	if value, ok := c.lookup(key); ok {
		c.hits.Add(ctx, 1, c.attrs)
		c.logger.Debug().Str("key", fmt.Sprintf("%v", key)).Msg("Cache hit.")
		return value, nil
	}
	c.misses.Add(ctx, 1, c.attrs)
	c.logger.Debug().Str("key", fmt.Sprintf("%v", key)).Msg("Cache miss.")

	var zero V
	if c.fallback == nil {
		return zero, fmt.Errorf("key '%v' not found in cache and no fallback is configured", key)
	}

	if !c.singleFlight {
		return c.load(ctx, key)
	}

	// The shared load outlives any one caller's cancellation; each caller
	// still stops waiting when its own ctx is done.
	ch := c.group.DoChan(fmt.Sprintf("%v", key), func() (any, error) {
		return c.load(context.WithoutCancel(ctx), key)
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.logger.Debug().Str("key", fmt.Sprintf("%v", key)).Msg("Joined an in-flight fetch.")
		}
		if res.Err != nil {
			return zero, res.Err
		}
		value, _ := res.Val.(V)
		return value, nil
	}
}

// load calls the fallback and writes a successful result back to the cache.
func (c *InMemoryTTLCache[K, V]) load(ctx context.Context, key K) (V, error) {
	value, err := c.fallback.Fetch(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	c.store(key, value)
	return value, nil
}

// lookup returns the value for key if present and not expired.
func (c *InMemoryTTLCache[K, V]) lookup(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()

	if !ok || c.now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *InMemoryTTLCache[K, V]) store(key K, value V) {
	expiresAt := c.now().Add(c.ttl)

	c.mu.Lock()
	c.data[key] = entry[V]{value: value, expiresAt: expiresAt}
	c.mu.Unlock()

	c.logger.Debug().Str("key", fmt.Sprintf("%v", key)).Time("expires_at", expiresAt).Msg("Stored value in cache.")
}

// WriteToCache adds an item to the cache with the configured TTL.
func (c *InMemoryTTLCache[K, V]) WriteToCache(_ context.Context, key K, value V) error {
	c.store(key, value)
	return nil
}

// Invalidate removes an item from the cache.
func (c *InMemoryTTLCache[K, V]) Invalidate(_ context.Context, key K) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *InMemoryTTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Close closes the fallback, if any.
func (c *InMemoryTTLCache[K, V]) Close() error {
	if c.fallback == nil {
		return nil
	}
	if err := c.fallback.Close(); err != nil {
		c.logger.Error().Err(err).Msg("Error closing fallback.")
		return fmt.Errorf("error closing fallback: %w", err)
	}
	return nil
}

var _ Cache[string, any] = (*InMemoryTTLCache[string, any])(nil)
