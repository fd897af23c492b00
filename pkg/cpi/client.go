package cpi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// DefaultBaseURL is the BLS v1 endpoint for the all-items, U.S. city
	// average, not seasonally adjusted CPI-U series.
	DefaultBaseURL = "https://api.bls.gov/publicAPI/v1/timeseries/data/CUUR0000SA0"
	// DefaultTimeout bounds one upstream round trip.
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 4 << 20
)

// ClientConfig holds the configuration for the BLS client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	// RegistrationKey is sent as the registrationkey query parameter when set.
	RegistrationKey string
}

// BLSClient issues one GET per Fetch against the BLS time-series API and
// normalizes the matching monthly record. It does no caching or retrying.
type BLSClient struct {
	baseURL         *url.URL
	registrationKey string
	httpClient      *http.Client
	logger          zerolog.Logger
}

// NewBLSClient creates a new BLSClient. If httpClient is nil a client with
// cfg.Timeout is created; a supplied client is used as-is.
func NewBLSClient(cfg *ClientConfig, httpClient *http.Client, logger zerolog.Logger) (*BLSClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("client config cannot be nil")
	}
	rawURL := cfg.BaseURL
	if rawURL == "" {
		rawURL = DefaultBaseURL
	}
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", rawURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", rawURL)
	}

	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger.Info().Str("base_url", base.String()).Msg("BLSClient initialized.")

	return &BLSClient{
		baseURL:         base,
		registrationKey: cfg.RegistrationKey,
		httpClient:      httpClient,
		logger:          logger.With().Str("component", "BLSClient").Logger(),
	}, nil
}

// Fetch retrieves the CPI record for q. It returns ErrNotFound when the
// response holds no matching record and an *UpstreamError when the upstream
// could not be reached or answered with something unusable.
func (c *BLSClient) Fetch(ctx context.Context, q Query) (Record, error) {
	requestURL := c.requestURL(q.Year)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return Record{}, &UpstreamError{Op: OpRequest, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("query", q.String()).Msg("Upstream request failed.")
		return Record{}, &UpstreamError{Op: OpRequest, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		c.logger.Error().Int("status", resp.StatusCode).Str("query", q.String()).Msg("Upstream returned a non-success status.")
		return Record{}, &UpstreamError{Op: OpStatus, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Record{}, &UpstreamError{Op: OpRequest, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	record, err := parseDocument(body, q)
	switch {
	case errors.Is(err, ErrNotFound):
		// BLS reports quota and validation problems inside a 200 response.
		c.logger.Debug().
			Str("query", q.String()).
			Str("upstream_status", gjson.GetBytes(body, "status").String()).
			Str("upstream_message", gjson.GetBytes(body, "message.0").String()).
			Msg("No matching record in upstream response.")
		return Record{}, err
	case err != nil:
		c.logger.Error().Err(err).Str("query", q.String()).Msg("Failed to parse upstream response.")
		return Record{}, err
	}

	c.logger.Debug().Str("query", q.String()).Int("cpi_value", record.Value).Msg("Fetched record from upstream.")
	return record, nil
}

func (c *BLSClient) requestURL(year int) string {
	u := *c.baseURL
	params := u.Query()
	y := strconv.Itoa(year)
	params.Set("startyear", y)
	params.Set("endyear", y)
	if c.registrationKey != "" {
		params.Set("registrationkey", c.registrationKey)
	}
	u.RawQuery = params.Encode()
	return u.String()
}

// Close releases idle upstream connections.
func (c *BLSClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
