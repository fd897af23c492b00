package cpi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-cpiservice/pkg/cache"
	"github.com/rs/zerolog"
)

// DefaultCacheTTL is how long a fetched record is served from memory.
const DefaultCacheTTL = 24 * time.Hour

// ServiceConfig holds the configuration for the CachingService.
type ServiceConfig struct {
	CacheTTL time.Duration
	// SingleFlight collapses concurrent misses for one query into a single
	// upstream call.
	SingleFlight bool
}

// CachingService serves CPI records through an in-memory read-through cache
// keyed by the normalized query. Only successful lookups are cached.
type CachingService struct {
	cache  *cache.InMemoryTTLCache[Query, Record]
	logger zerolog.Logger
}

// NewCachingService creates a CachingService in front of source, usually a
// *BLSClient.
func NewCachingService(
	cfg *ServiceConfig,
	source cache.Fetcher[Query, Record],
	logger zerolog.Logger,
	opts ...cache.Option,
) (*CachingService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("service config cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("source fetcher cannot be nil")
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if cfg.SingleFlight {
		opts = append(opts, cache.WithSingleFlight())
	}

	c, err := cache.NewInMemoryTTLCache[Query, Record](&cache.TTLConfig{Name: "cpi", TTL: ttl}, source, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create cpi cache: %w", err)
	}

	logger.Info().Dur("ttl", ttl).Bool("single_flight", cfg.SingleFlight).Msg("CachingService initialized.")

	return &CachingService{
		cache:  c,
		logger: logger.With().Str("component", "CachingService").Logger(),
	}, nil
}

// GetCpi returns the CPI record for year and month. Errors from the source are
// returned unchanged: ErrNotFound when no record exists and *UpstreamError
// when the upstream is broken.
func (s *CachingService) GetCpi(ctx context.Context, year int, month string) (Record, error) {
	q := Query{Year: year, Month: month}.Normalize()

	record, err := s.cache.Fetch(ctx, q)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug().Str("query", q.String()).Msg("No CPI data for query.")
		} else {
			s.logger.Error().Err(err).Str("query", q.String()).Msg("Failed to get CPI.")
		}
		return Record{}, err
	}
	return record, nil
}

// Close closes the cache and its source.
func (s *CachingService) Close() error {
	return s.cache.Close()
}
