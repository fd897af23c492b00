package microservice_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/illmade-knight/go-cpiservice/pkg/auth"
	"github.com/illmade-knight/go-cpiservice/pkg/cpi"
	"github.com/illmade-knight/go-cpiservice/pkg/microservice"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockGetter is a test double for the CPI cache.
type mockGetter struct {
	GetFunc func(ctx context.Context, year int, month string) (cpi.Record, error)
}

func (m *mockGetter) GetCpi(ctx context.Context, year int, month string) (cpi.Record, error) {
	return m.GetFunc(ctx, year, month)
}

func newTokenManager(t *testing.T) *auth.TokenManager {
	t.Helper()
	m, err := auth.NewTokenManager(auth.Config{
		Issuer:     "cpiservice",
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
		Users:      map[string]string{"analyst": "s3cret"},
	})
	require.NoError(t, err)
	return m
}

func serve(h http.Handler, method, target string, body io.Reader, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCpiService_OpenEndpoint(t *testing.T) {
	getter := &mockGetter{GetFunc: func(ctx context.Context, year int, month string) (cpi.Record, error) {
		switch {
		case year == 2023 && month == "January":
			return cpi.Record{Value: 299, Notes: "preliminary"}, nil
		case year == 1900:
			return cpi.Record{}, cpi.ErrNotFound
		default:
			return cpi.Record{}, &cpi.UpstreamError{Op: cpi.OpRequest, Err: errors.New("connection refused")}
		}
	}}
	h := microservice.NewCpiService(&microservice.CpiServiceConfig{HTTPPort: ":0"}, getter, nil, nil, zerolog.Nop()).Handler()

	t.Run("Found", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/api/cpi?year=2023&month=January", nil, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var got map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, map[string]any{"cpiValue": float64(299), "notes": "preliminary"}, got)
	})

	t.Run("Not found", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/api/cpi?year=1900&month=January", nil, nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "No CPI data found")
	})

	t.Run("Upstream failure", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/api/cpi?year=2024&month=January", nil, nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("Bad parameters", func(t *testing.T) {
		for _, target := range []string{"/api/cpi?month=January", "/api/cpi?year=abc&month=January", "/api/cpi?year=2023", "/api/cpi?year=2023&month=%20"} {
			rec := serve(h, http.MethodGet, target, nil, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		}
	})

	t.Run("No token endpoint without auth", func(t *testing.T) {
		rec := serve(h, http.MethodPost, "/api/auth/token", strings.NewReader(`{}`), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Request ID is assigned or propagated", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/healthz", nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(microservice.RequestIDHeader))

		rec = serve(h, http.MethodGet, "/healthz", nil, http.Header{microservice.RequestIDHeader: {"abc-123"}})
		assert.Equal(t, "abc-123", rec.Header().Get(microservice.RequestIDHeader))
	})
}

func TestCpiService_WithAuth(t *testing.T) {
	getter := &mockGetter{GetFunc: func(ctx context.Context, year int, month string) (cpi.Record, error) {
		return cpi.Record{Value: 300}, nil
	}}
	h := microservice.NewCpiService(&microservice.CpiServiceConfig{HTTPPort: ":0"}, getter, newTokenManager(t), nil, zerolog.Nop()).Handler()

	t.Run("CPI requires a token", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/api/cpi?year=2023&month=March", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Rejected login", func(t *testing.T) {
		rec := serve(h, http.MethodPost, "/api/auth/token", strings.NewReader(`{"username":"analyst","password":"nope"}`), nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Malformed login", func(t *testing.T) {
		rec := serve(h, http.MethodPost, "/api/auth/token", strings.NewReader(`{`), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Login then lookup", func(t *testing.T) {
		rec := serve(h, http.MethodPost, "/api/auth/token", strings.NewReader(`{"username":"analyst","password":"s3cret"}`), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var tok microservice.TokenResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
		require.NotEmpty(t, tok.Token)

		rec = serve(h, http.MethodGet, "/api/cpi?year=2023&month=March", nil, http.Header{"Authorization": {"Bearer " + tok.Token}})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"cpiValue":300`)
	})
}

func TestCpiService_MetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("cache_hits_total 1\n"))
	})
	getter := &mockGetter{GetFunc: func(ctx context.Context, year int, month string) (cpi.Record, error) {
		return cpi.Record{}, cpi.ErrNotFound
	}}
	h := microservice.NewCpiService(&microservice.CpiServiceConfig{HTTPPort: ":0"}, getter, nil, metrics, zerolog.Nop()).Handler()

	rec := serve(h, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cache_hits_total")
}

func TestBaseServer_StartAndShutdown(t *testing.T) {
	// Arrange
	server := microservice.NewBaseServer(microservice.ServerConfig{HTTPPort: "127.0.0.1:0"}, zerolog.Nop())
	assert.Equal(t, "127.0.0.1:0", server.Addr())

	// Act
	require.NoError(t, server.Start())
	addr := server.Addr()

	// Assert
	require.NotEqual(t, "127.0.0.1:0", addr)
	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := microservice.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = microservice.RequestIDFromContext(r.Context())
	}))

	t.Run("Caller ID is propagated regardless of header case", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("x-request-id", "abc-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rec.Header().Get(microservice.RequestIDHeader))
	})

	t.Run("Oversized ID is replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(microservice.RequestIDHeader, strings.Repeat("x", 200))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Len(t, seen, 36)
		assert.Equal(t, seen, rec.Header().Get(microservice.RequestIDHeader))
	})
}
