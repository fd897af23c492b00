package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/metric"

	"github.com/illmade-knight/go-cpiservice/pkg/auth"
	"github.com/illmade-knight/go-cpiservice/pkg/cache"
	"github.com/illmade-knight/go-cpiservice/pkg/config"
	"github.com/illmade-knight/go-cpiservice/pkg/cpi"
	"github.com/illmade-knight/go-cpiservice/pkg/microservice"
	"github.com/illmade-knight/go-cpiservice/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "cpiservice",
		Usage: "Consumer Price Index lookups backed by the BLS public API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				Sources: cli.NewValueSourceChain(cli.EnvVar("CPISERVICE_CONFIG")),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "overrides log_level (trace, debug, info, warn, error)",
				Sources: cli.NewValueSourceChain(cli.EnvVar("CPISERVICE_LOG_LEVEL")),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			getCommand(),
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "http-port",
				Usage:   "overrides http_port, e.g. :8080",
				Sources: cli.NewValueSourceChain(cli.EnvVar("CPISERVICE_HTTP_PORT")),
			},
		},
		Action: serveAction,
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:  "get",
		Usage: "look up one month and print it as JSON",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "year", Aliases: []string{"y"}, Required: true},
			&cli.StringFlag{Name: "month", Aliases: []string{"m"}, Required: true},
		},
		Action: getAction,
	}
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("http-port") {
		cfg.HTTPPort = cmd.String("http-port")
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "cpiservice").Logger()
}

// newCachingService builds the BLS client and the cache in front of it.
func newCachingService(cfg config.Config, meter metric.Meter, logger zerolog.Logger) (*cpi.CachingService, error) {
	client, err := cpi.NewBLSClient(cfg.ClientConfig(), nil, logger)
	if err != nil {
		return nil, err
	}
	var opts []cache.Option
	if meter != nil {
		opts = append(opts, cache.WithMeter(meter))
	}
	return cpi.NewCachingService(cfg.ServiceConfig(), client, logger, opts...)
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)

	provider, err := telemetry.NewProvider(ctx, cfg.Metrics.Exporter)
	if err != nil {
		return err
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("Error shutting down meter provider.")
		}
	}()

	svc, err := newCachingService(cfg, provider.Meter("github.com/illmade-knight/go-cpiservice"), logger)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	var tokens *auth.TokenManager
	if cfg.Auth.Enabled {
		tokens, err = auth.NewTokenManager(cfg.AuthManagerConfig())
		if err != nil {
			return err
		}
	}

	server := microservice.NewCpiService(&microservice.CpiServiceConfig{HTTPPort: cfg.HTTPPort}, svc, tokens, provider.Handler, logger)
	if err := server.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info().Msg("Received shutdown signal.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func getAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.Root().ErrWriter)

	svc, err := newCachingService(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	record, err := svc.GetCpi(ctx, cmd.Int("year"), cmd.String("month"))
	if errors.Is(err, cpi.ErrNotFound) {
		return fmt.Errorf("no CPI data found for %s %d", cmd.String("month"), cmd.Int("year"))
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}
