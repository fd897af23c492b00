package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

const bearerPrefix = "Bearer "

type subjectKey struct{}

// SubjectFromContext returns the authenticated subject stored by Middleware.
func SubjectFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectKey{}).(string)
	return s, ok
}

// Verifier checks a bearer token and returns its subject.
type Verifier interface {
	Verify(token string) (string, error)
}

// Middleware rejects requests without a valid bearer token with 401.
func Middleware(v Verifier, logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "AuthMiddleware").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer`)
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			subject, err := v.Verify(token)
			if err != nil {
				logger.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected bearer token.")
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, subject)))
		})
	}
}

// bearerToken extracts the credentials of a Bearer authorization header. The
// scheme name is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}
