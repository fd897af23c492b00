package cache

import (
	"context"
	"io"
)

// Fetcher is the source contract a read-through cache falls back to on a miss.
// Implementations return their own error values unchanged so callers can
// classify them with errors.Is / errors.As.
type Fetcher[K comparable, V any] interface {
	Fetch(ctx context.Context, key K) (V, error)
	io.Closer
}

// Cache is a generic interface for a read-through caching layer.
type Cache[K comparable, V any] interface {
	Fetcher[K, V]
	// WriteToCache adds an item to the cache.
	WriteToCache(ctx context.Context, key K, value V) error
	// Invalidate removes an item from the cache. Idempotent.
	Invalidate(ctx context.Context, key K) error
}
