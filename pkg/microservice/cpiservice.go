// Package microservice hosts the CPI lookup behind an HTTP server.
package microservice

import (
	"net/http"

	"github.com/illmade-knight/go-cpiservice/pkg/auth"
	"github.com/rs/zerolog"
)

// CpiServiceConfig holds the HTTP-facing configuration.
type CpiServiceConfig struct {
	HTTPPort string
}

// CpiService wires the CPI and token handlers onto a BaseServer.
type CpiService struct {
	*BaseServer
}

// NewCpiService registers the service routes. tokens may be nil, in which case
// the CPI endpoint is unauthenticated and no token endpoint is exposed.
// metrics may be nil when the exporter is push based.
func NewCpiService(
	cfg *CpiServiceConfig,
	getter CpiGetter,
	tokens *auth.TokenManager,
	metrics http.Handler,
	logger zerolog.Logger,
) *CpiService {
	base := NewBaseServer(ServerConfig{HTTPPort: cfg.HTTPPort}, logger.With().Str("component", "CpiService").Logger())
	mux := base.Mux()

	var cpiHandler http.Handler = CpiHandler(getter, logger)
	if tokens != nil {
		cpiHandler = auth.Middleware(tokens, logger)(cpiHandler)
		mux.Handle("POST /api/auth/token", TokenHandler(tokens, logger))
	} else {
		logger.Warn().Msg("Authentication is disabled; /api/cpi is open.")
	}
	mux.Handle("GET /api/cpi", cpiHandler)

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	return &CpiService{BaseServer: base}
}
