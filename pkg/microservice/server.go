package microservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultReadHeaderTimeout = 10 * time.Second

// ServerConfig holds the listener settings for a BaseServer.
type ServerConfig struct {
	// HTTPPort is a listen address such as ":8080" or "127.0.0.1:0".
	HTTPPort          string
	ReadHeaderTimeout time.Duration
}

// BaseServer owns the HTTP listener, the mux and graceful shutdown.
type BaseServer struct {
	cfg        ServerConfig
	logger     zerolog.Logger
	httpServer *http.Server
	mux        *http.ServeMux

	mu       sync.RWMutex
	listener net.Listener
}

// NewBaseServer creates a BaseServer with /healthz registered. Every request
// is tagged with a request ID before it reaches the mux.
func NewBaseServer(cfg ServerConfig, logger zerolog.Logger) *BaseServer {
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", HealthzHandler)

	return &BaseServer{
		cfg:    cfg,
		logger: logger,
		mux:    mux,
		httpServer: &http.Server{
			Handler:           RequestID(mux),
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
	}
}

// Start binds the listener and serves in a background goroutine.
func (s *BaseServer) Start() error {
	listener, err := net.Listen("tcp", s.cfg.HTTPPort)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTPPort, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info().Str("address", listener.Addr().String()).Msg("CPI service listening.")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server failed.")
		}
	}()
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *BaseServer) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server.")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Error during HTTP server shutdown.")
		return err
	}
	s.logger.Info().Msg("HTTP server stopped.")
	return nil
}

// Addr returns the bound listen address, or the configured one before Start.
func (s *BaseServer) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return s.cfg.HTTPPort
	}
	return s.listener.Addr().String()
}

// Mux returns the underlying ServeMux.
func (s *BaseServer) Mux() *http.ServeMux {
	return s.mux
}

// Handler returns the root handler, request ID middleware included.
func (s *BaseServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// HealthzHandler responds to liveness checks.
func HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
