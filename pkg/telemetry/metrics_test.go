package telemetry_test

import (
	"context"
	"testing"

	"github.com/illmade-knight/go-cpiservice/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsReader(t *testing.T) {
	ctx := context.Background()

	t.Run("Unknown exporter", func(t *testing.T) {
		_, err := telemetry.NewMetricsReader(ctx, "carrier-pigeon")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown metrics exporter")
	})

	t.Run("OTLP without endpoint", func(t *testing.T) {
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
		t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")

		_, err := telemetry.NewMetricsReader(ctx, "otlp")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "endpoint")
	})

	for _, name := range []string{"none", "", "stdout"} {
		t.Run("Exporter "+name, func(t *testing.T) {
			reader, err := telemetry.NewMetricsReader(ctx, name)
			require.NoError(t, err)
			assert.NotNil(t, reader)
		})
	}
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("Push exporter has no handler", func(t *testing.T) {
		p, err := telemetry.NewProvider(ctx, "none")
		require.NoError(t, err)
		t.Cleanup(func() { _ = p.Shutdown(ctx) })

		assert.Nil(t, p.Handler)
		assert.NotNil(t, p.Meter("test"))
	})

	t.Run("Prometheus exposes a handler", func(t *testing.T) {
		p, err := telemetry.NewProvider(ctx, "prometheus")
		require.NoError(t, err)
		t.Cleanup(func() { _ = p.Shutdown(ctx) })

		assert.NotNil(t, p.Handler)
	})
}
