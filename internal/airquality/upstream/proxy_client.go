package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/ward-air-quality/internal/observability"
)

// ProxyClient looks up current conditions through the same-origin proxy
// endpoint, which injects the server-held credential.
type ProxyClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewProxyClient creates a client posting to endpoint (e.g.
// http://localhost:8080/api/air-quality).
func NewProxyClient(client *http.Client, endpoint string, logger *zap.Logger, metrics *observability.Metrics) *ProxyClient {
	return &ProxyClient{
		endpoint:   endpoint,
		httpClient: client,
		logger:     logger,
		metrics:    metrics,
	}
}

// Lookup fetches the reading for one point. Every failure is returned wrapped
// in ErrUpstreamUnavailable and logged as a warning; there are no retries.
func (c *ProxyClient) Lookup(ctx context.Context, lat, lon float64) (Response, error) {
	start := time.Now()
	resp, err := c.lookup(ctx, lat, lon)
	c.metrics.ObserveUpstream("proxy", time.Since(start), err)
	if err != nil {
		c.logger.Warn("air quality lookup failed",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Error(err),
		)
		return Response{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return resp, nil
}

func (c *ProxyClient) lookup(ctx context.Context, lat, lon float64) (Response, error) {
	body, err := json.Marshal(LookupRequest{Lat: &lat, Lon: &lon})
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("proxy request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Response{}, fmt.Errorf("proxy status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var payload Response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return payload, nil
}
