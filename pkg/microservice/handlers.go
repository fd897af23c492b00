package microservice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/illmade-knight/go-cpiservice/pkg/auth"
	"github.com/illmade-knight/go-cpiservice/pkg/cpi"
	"github.com/rs/zerolog"
)

const notFoundMessage = "No CPI data found for given month/year."

// CpiGetter is the read side of the CPI cache.
type CpiGetter interface {
	GetCpi(ctx context.Context, year int, month string) (cpi.Record, error)
}

// TokenIssuer exchanges credentials for a bearer token.
type TokenIssuer interface {
	Issue(username, password string) (string, error)
}

// LoginRequest is the body of a token request.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is the body of a successful token request.
type TokenResponse struct {
	Token string `json:"token"`
}

// CpiHandler serves GET /api/cpi?year=<int>&month=<name>. NotFound maps to
// 404 and upstream failures map to 502.
func CpiHandler(getter CpiGetter, logger zerolog.Logger) http.HandlerFunc {
	logger = logger.With().Str("component", "CpiHandler").Logger()
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		year, err := strconv.Atoi(strings.TrimSpace(query.Get("year")))
		if err != nil {
			http.Error(w, "year must be an integer", http.StatusBadRequest)
			return
		}
		month := query.Get("month")
		if strings.TrimSpace(month) == "" {
			http.Error(w, "month is required", http.StatusBadRequest)
			return
		}

		record, err := getter.GetCpi(r.Context(), year, month)
		switch {
		case errors.Is(err, cpi.ErrNotFound):
			http.Error(w, notFoundMessage, http.StatusNotFound)
			return
		case err != nil:
			logger.Error().Err(err).
				Str("request_id", RequestIDFromContext(r.Context())).
				Int("year", year).
				Str("month", month).
				Msg("CPI lookup failed.")
			http.Error(w, "upstream CPI service unavailable", http.StatusBadGateway)
			return
		}

		writeJSON(w, http.StatusOK, record, logger)
	}
}

// TokenHandler serves POST /api/auth/token.
func TokenHandler(issuer TokenIssuer, logger zerolog.Logger) http.HandlerFunc {
	logger = logger.With().Str("component", "TokenHandler").Logger()
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			http.Error(w, "invalid login request", http.StatusBadRequest)
			return
		}

		token, err := issuer.Issue(req.Username, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrMissingCredentials) {
				logger.Info().Str("username", req.Username).Msg("Rejected login.")
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			logger.Error().Err(err).Msg("Failed to issue token.")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, TokenResponse{Token: token}, logger)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, logger zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("Failed to write response.")
	}
}
