package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/ward-air-quality/internal/airquality/upstream"
)

var validate = validator.New()

type AppConfig struct {
	Port            string        `validate:"required,numeric"`
	LogLevel        string        `validate:"oneof=debug info warn error"`
	LogFormat       string        `validate:"oneof=json console text"`
	HTTPTimeout     time.Duration `validate:"gt=0s"`
	ShutdownTimeout time.Duration `validate:"gt=0s"`

	GoogleAPIKey string
	GoogleURL    string `validate:"required,url"`

	// UpstreamProxyURL is where the reconciler sends lookups. Empty means the
	// in-process Google client is used directly.
	UpstreamProxyURL string `validate:"omitempty,url"`

	WardDatasetSource string `validate:"required"`
	WardNamesSource   string
	StaticDir         string

	EnhanceEnabled   bool
	EnhanceBatchSize int           `validate:"min=1"`
	FetchChunkSize   int           `validate:"min=1"`
	FetchChunkDelay  time.Duration `validate:"min=0s"`

	// RefreshInterval controls periodic re-enhancement (0 disables it).
	RefreshInterval time.Duration `validate:"min=0s"`

	// In-memory history retention.
	StoreMaxHistory int           `validate:"min=0"` // readings per ward (0 = unlimited)
	StoreMaxAge     time.Duration `validate:"min=0s"`

	ProxyCacheTTL  time.Duration `validate:"min=0s"`
	ProxyRateLimit float64       `validate:"gte=0"` // requests per second to Google, 0 = unlimited
	ProxyRateBurst int           `validate:"min=1"`

	// EnvFileLoaded is true when a .env file was read.
	EnvFileLoaded bool
}

// Load reads configuration from the environment (and an optional .env file)
// with sensible defaults.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := godotenv.Load(); err == nil {
		cfg.EnvFileLoaded = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := &envReader{}
	cfg.Port = getenvDefault("PORT", "8080")
	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))
	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "json"))
	cfg.HTTPTimeout = env.duration("HTTP_TIMEOUT", 10*time.Second)
	cfg.ShutdownTimeout = env.duration("SHUTDOWN_TIMEOUT", 10*time.Second)

	cfg.GoogleAPIKey = strings.TrimSpace(os.Getenv("GOOGLE_AIR_QUALITY_API_KEY"))
	cfg.GoogleURL = getenvDefault("GOOGLE_AIR_QUALITY_URL", upstream.DefaultGoogleURL)
	cfg.UpstreamProxyURL = os.Getenv("UPSTREAM_PROXY_URL")

	cfg.WardDatasetSource = getenvDefault("WARD_DATASET_SOURCE", "data/ward_aqi.json")
	cfg.WardNamesSource = getenvDefault("WARD_NAMES_SOURCE", "data/ward_names.json")
	cfg.StaticDir = getenvDefault("STATIC_DIR", "data")

	cfg.EnhanceEnabled = env.boolean("ENHANCE_ENABLED", true)
	cfg.EnhanceBatchSize = env.integer("ENHANCE_BATCH_SIZE", 20)
	cfg.FetchChunkSize = env.integer("FETCH_CHUNK_SIZE", 5)
	cfg.FetchChunkDelay = env.duration("FETCH_CHUNK_DELAY", 100*time.Millisecond)
	cfg.RefreshInterval = env.duration("REFRESH_INTERVAL", 15*time.Minute)

	cfg.StoreMaxHistory = env.integer("STORE_MAX_HISTORY", 96) // roughly 24h at 15-minute intervals
	cfg.StoreMaxAge = env.duration("STORE_MAX_AGE", 24*time.Hour)

	cfg.ProxyCacheTTL = env.duration("PROXY_CACHE_TTL", 5*time.Minute)
	cfg.ProxyRateLimit = env.float("PROXY_RATE_LIMIT", 10)
	cfg.ProxyRateBurst = env.integer("PROXY_RATE_BURST", 5)

	if err := errors.Join(env.errs...); err != nil {
		return nil, err
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// UseProxy reports whether lookups go through an external proxy endpoint.
func (c *AppConfig) UseProxy() bool {
	return c.UpstreamProxyURL != ""
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envReader parses typed values and collects every malformed key.
type envReader struct {
	errs []error
}

func (r *envReader) integer(key string, def int) int {
	v := getenvDefault(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}

func (r *envReader) float(key string, def float64) float64 {
	v := getenvDefault(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return f
}

func (r *envReader) boolean(key string, def bool) bool {
	v := getenvDefault(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return b
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v := getenvDefault(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return d
}
