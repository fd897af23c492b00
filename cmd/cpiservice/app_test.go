package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/illmade-knight/go-cpiservice/pkg/config"
	"github.com/illmade-knight/go-cpiservice/pkg/cpi"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const upstreamBody = `{"Results":{"series":[{"data":[
  {"year":"2023","periodName":"January","value":"299.170","footnotes":[{"text":"preliminary"}]}
]}]}}`

func writeTestConfig(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cpiservice.yaml")
	content := "log_level: error\nupstream:\n  base_url: " + baseURL + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestGetCommand(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(upstreamBody))
	}))
	t.Cleanup(upstream.Close)
	cfgPath := writeTestConfig(t, upstream.URL)

	t.Run("Prints the record", func(t *testing.T) {
		var out, errOut bytes.Buffer
		app := newApp()
		app.Writer = &out
		app.ErrWriter = &errOut

		err := app.Run(context.Background(), []string{"cpiservice", "--config", cfgPath, "get", "--year", "2023", "--month", "january"})

		require.NoError(t, err)
		var record cpi.Record
		require.NoError(t, json.Unmarshal(out.Bytes(), &record))
		assert.Equal(t, cpi.Record{Value: 299, Notes: "preliminary"}, record)
	})

	t.Run("Reports a missing month", func(t *testing.T) {
		var out bytes.Buffer
		app := newApp()
		app.Writer = &out
		app.ErrWriter = &bytes.Buffer{}

		err := app.Run(context.Background(), []string{"cpiservice", "--config", cfgPath, "get", "--year", "2023", "--month", "June"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "no CPI data found")
		assert.Empty(t, out.String())
	})
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default()
	cfg.LogLevel = "warn"

	logger := newLogger(cfg, &buf)
	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}
