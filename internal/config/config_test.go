package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/ward-air-quality/internal/airquality/upstream"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, upstream.DefaultGoogleURL, cfg.GoogleURL)
	assert.False(t, cfg.UseProxy())
	assert.Equal(t, "data/ward_aqi.json", cfg.WardDatasetSource)
	assert.True(t, cfg.EnhanceEnabled)
	assert.Equal(t, 20, cfg.EnhanceBatchSize)
	assert.Equal(t, 5, cfg.FetchChunkSize)
	assert.Equal(t, 100*time.Millisecond, cfg.FetchChunkDelay)
	assert.Equal(t, 15*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, 96, cfg.StoreMaxHistory)
	assert.Equal(t, 24*time.Hour, cfg.StoreMaxAge)
	assert.Equal(t, 5*time.Minute, cfg.ProxyCacheTTL)
	assert.InDelta(t, 10.0, cfg.ProxyRateLimit, 1e-9)
	assert.Equal(t, 5, cfg.ProxyRateBurst)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("GOOGLE_AIR_QUALITY_API_KEY", " secret ")
	t.Setenv("UPSTREAM_PROXY_URL", "http://localhost:9090/api/air-quality")
	t.Setenv("ENHANCE_ENABLED", "false")
	t.Setenv("ENHANCE_BATCH_SIZE", "7")
	t.Setenv("FETCH_CHUNK_DELAY", "250ms")
	t.Setenv("REFRESH_INTERVAL", "0s")
	t.Setenv("PROXY_RATE_LIMIT", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "secret", cfg.GoogleAPIKey)
	assert.True(t, cfg.UseProxy())
	assert.False(t, cfg.EnhanceEnabled)
	assert.Equal(t, 7, cfg.EnhanceBatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.FetchChunkDelay)
	assert.Zero(t, cfg.RefreshInterval)
	assert.InDelta(t, 2.5, cfg.ProxyRateLimit, 1e-9)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "bad duration", key: "HTTP_TIMEOUT", val: "ten seconds"},
		{name: "bad bool", key: "ENHANCE_ENABLED", val: "maybe"},
		{name: "bad int", key: "FETCH_CHUNK_SIZE", val: "five"},
		{name: "zero chunk size", key: "FETCH_CHUNK_SIZE", val: "0"},
		{name: "negative delay", key: "FETCH_CHUNK_DELAY", val: "-1s"},
		{name: "unknown log level", key: "LOG_LEVEL", val: "verbose"},
		{name: "proxy url not a url", key: "UPSTREAM_PROXY_URL", val: "not a url"},
		{name: "non numeric port", key: "PORT", val: "http"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			require.Error(t, err)
		})
	}
}
