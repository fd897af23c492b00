// Package telemetry builds the OpenTelemetry meter provider used for cache
// hit/miss counters.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ValidExporters lists the accepted metrics exporter names.
var ValidExporters = []string{"none", "stdout", "prometheus", "otlp", ""}

// Provider bundles a meter provider with the HTTP handler that exposes it, if
// the exporter is pull based.
type Provider struct {
	*sdkmetric.MeterProvider
	// Handler serves the Prometheus exposition format. Nil for push exporters.
	Handler http.Handler
}

// NewMetricsReader creates a metrics reader based on the exporter name.
func NewMetricsReader(ctx context.Context, name string) (sdkmetric.Reader, error) {
	switch name {
	case "stdout":
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stdout))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metrics exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil

	case "otlp":
		endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		if endpoint == "" {
			endpoint = os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
		}
		if endpoint == "" {
			return nil, fmt.Errorf("OTLP metrics endpoint not configured: set OTEL_EXPORTER_OTLP_ENDPOINT or OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
		}
		exp, err := otlpmetricgrpc.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil

	case "prometheus":
		exp, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		return exp, nil

	case "none", "":
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(io.Discard))
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil

	default:
		return nil, fmt.Errorf("unknown metrics exporter: %q", name)
	}
}

// NewProvider creates a meter provider for the named exporter. Callers must
// Shutdown the provider to flush push exporters.
func NewProvider(ctx context.Context, exporter string) (*Provider, error) {
	reader, err := NewMetricsReader(ctx, exporter)
	if err != nil {
		return nil, err
	}
	p := &Provider{MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))}
	if exporter == "prometheus" {
		p.Handler = promhttp.Handler()
	}
	return p, nil
}
