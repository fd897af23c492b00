// Package config loads the service configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/illmade-knight/go-cpiservice/pkg/auth"
	"github.com/illmade-knight/go-cpiservice/pkg/cpi"
	"github.com/illmade-knight/go-cpiservice/pkg/telemetry"
)

// Config is the complete service configuration.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	HTTPPort  string `yaml:"http_port"`

	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Auth     AuthConfig     `yaml:"auth"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// UpstreamConfig configures the BLS client.
type UpstreamConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	RegistrationKey string        `yaml:"registration_key"`
}

// CacheConfig configures the CPI cache.
type CacheConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	SingleFlight bool          `yaml:"single_flight"`
}

// AuthConfig configures bearer token issuance and checking.
type AuthConfig struct {
	Enabled    bool              `yaml:"enabled"`
	Issuer     string            `yaml:"issuer"`
	Audience   string            `yaml:"audience"`
	SigningKey string            `yaml:"signing_key"`
	TokenTTL   time.Duration     `yaml:"token_ttl"`
	Users      map[string]string `yaml:"users"`
}

// MetricsConfig selects the metrics exporter.
type MetricsConfig struct {
	Exporter string `yaml:"exporter"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "json",
		HTTPPort:  ":8080",
		Upstream: UpstreamConfig{
			BaseURL: cpi.DefaultBaseURL,
			Timeout: cpi.DefaultTimeout,
		},
		Cache: CacheConfig{
			TTL: cpi.DefaultCacheTTL,
		},
		Auth: AuthConfig{
			Issuer:   "cpiservice",
			Audience: "cpiservice",
			TokenTTL: auth.DefaultTokenTTL,
		},
		Metrics: MetricsConfig{
			Exporter: "none",
		},
	}
}

// Load reads path over the defaults and validates the result. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("log_format: must be json or console, got %q", c.LogFormat))
	}
	if c.HTTPPort == "" {
		errs = append(errs, errors.New("http_port: must not be empty"))
	}
	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("upstream.base_url: must not be empty"))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, errors.New("upstream.timeout: must be greater than 0"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl: must be greater than 0"))
	}
	if c.Auth.Enabled {
		if len(c.Auth.SigningKey) < 32 {
			errs = append(errs, errors.New("auth.signing_key: must be at least 32 bytes when auth is enabled"))
		}
		if len(c.Auth.Users) == 0 {
			errs = append(errs, errors.New("auth.users: at least one user is required when auth is enabled"))
		}
	}
	if !slices.Contains(telemetry.ValidExporters, c.Metrics.Exporter) {
		errs = append(errs, fmt.Errorf("metrics.exporter: unknown exporter %q", c.Metrics.Exporter))
	}
	return errors.Join(errs...)
}

// ClientConfig returns the BLS client configuration.
func (c Config) ClientConfig() *cpi.ClientConfig {
	return &cpi.ClientConfig{
		BaseURL:         c.Upstream.BaseURL,
		Timeout:         c.Upstream.Timeout,
		RegistrationKey: c.Upstream.RegistrationKey,
	}
}

// ServiceConfig returns the caching service configuration.
func (c Config) ServiceConfig() *cpi.ServiceConfig {
	return &cpi.ServiceConfig{
		CacheTTL:     c.Cache.TTL,
		SingleFlight: c.Cache.SingleFlight,
	}
}

// AuthManagerConfig returns the token manager configuration.
func (c Config) AuthManagerConfig() auth.Config {
	return auth.Config{
		Issuer:     c.Auth.Issuer,
		Audience:   c.Auth.Audience,
		SigningKey: []byte(c.Auth.SigningKey),
		TokenTTL:   c.Auth.TokenTTL,
		Users:      c.Auth.Users,
	}
}
