package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/i474232898/ward-air-quality/internal/observability"
)

// DefaultGoogleURL is the current-conditions endpoint of the Google Air Quality API.
const DefaultGoogleURL = "https://airquality.googleapis.com/v1/currentConditions:lookup"

// GoogleClient calls the Air Quality API directly with the server credential.
// It backs the proxy endpoint and the in-process lookup mode.
type GoogleClient struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewGoogleClient creates a client. A nil limiter disables outbound pacing.
func NewGoogleClient(client *http.Client, apiKey, baseURL string, limiter *rate.Limiter, logger *zap.Logger, metrics *observability.Metrics) *GoogleClient {
	if baseURL == "" {
		baseURL = DefaultGoogleURL
	}
	return &GoogleClient{
		name:    "google",
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
		circuit: newBreaker("google-air-quality"),
		limiter: limiter,
		logger:  logger,
		metrics: metrics,
	}
}

func (c *GoogleClient) Name() string {
	return c.name
}

// Configured reports whether an API key is available.
func (c *GoogleClient) Configured() bool {
	return c.apiKey != ""
}

// Forward performs the lookup and returns the upstream status and body as-is.
// Non-2xx answers are not errors here; err is set only when no answer was
// obtained at all.
func (c *GoogleClient) Forward(ctx context.Context, lat, lon float64) (int, []byte, error) {
	if !c.Configured() {
		return 0, nil, ErrMissingCredential
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	buildRequest := func() (*http.Request, error) {
		var body googleRequest
		body.Location.Latitude = lat
		body.Location.Longitude = lon
		body.ExtraComputations = []string{"LOCAL_AQI", "DOMINANT_POLLUTANT_CONCENTRATION", "POLLUTANT_CONCENTRATION"}
		body.LanguageCode = "en"

		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}

		values := url.Values{}
		values.Set("key", c.apiKey)
		req, err := http.NewRequest(http.MethodPost, c.baseURL+"?"+values.Encode(), bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	start := time.Now()
	raw, err := doRequestWithResilience(ctx, c.client, c.circuit, buildRequest)
	c.metrics.ObserveUpstream(c.name, time.Since(start), err)

	var se *StatusError
	if errors.As(err, &se) {
		c.logger.Warn("air quality api returned non-2xx",
			zap.Int("status", se.StatusCode),
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
		)
		return se.StatusCode, se.Body, nil
	}
	if err != nil {
		return 0, nil, err
	}
	return raw.StatusCode, raw.Body, nil
}

// Lookup performs the lookup and decodes the answer. Any failure is wrapped
// in ErrUpstreamUnavailable (ErrMissingCredential stays matchable too).
func (c *GoogleClient) Lookup(ctx context.Context, lat, lon float64) (Response, error) {
	status, body, err := c.Forward(ctx, lat, lon)
	if err != nil {
		c.logger.Warn("air quality lookup failed",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Error(err),
		)
		return Response{}, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	if status < 200 || status >= 300 {
		return Response{}, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, status)
	}

	var payload Response
	if err := json.Unmarshal(body, &payload); err != nil {
		return Response{}, fmt.Errorf("%w: decode response: %v", ErrUpstreamUnavailable, err)
	}
	return payload, nil
}
