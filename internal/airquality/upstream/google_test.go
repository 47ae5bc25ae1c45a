package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/i474232898/ward-air-quality/internal/observability"
)

const testAPIKey = "test-key"

func testGoogleClient(baseURL, key string) *GoogleClient {
	return NewGoogleClient(&http.Client{Timeout: 5 * time.Second}, key, baseURL, nil, zap.NewNop(), observability.NewMetricsForTesting())
}

func TestGoogleClient_Forward_MissingKey(t *testing.T) {
	c := testGoogleClient("http://127.0.0.1:1", "")
	assert.False(t, c.Configured())

	_, _, err := c.Forward(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrMissingCredential)

	_, err = c.Lookup(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestGoogleClient_Lookup_SendsLocationAndKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, testAPIKey, r.URL.Query().Get("key"))

		var body googleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.InDelta(t, 28.7, body.Location.Latitude, 1e-9)
		assert.InDelta(t, 77.1, body.Location.Longitude, 1e-9)
		assert.Contains(t, body.ExtraComputations, "LOCAL_AQI")

		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(sampleResponse()))
	}))
	defer srv.Close()

	resp, err := testGoogleClient(srv.URL, testAPIKey).Lookup(context.Background(), 28.7, 77.1)
	require.NoError(t, err)
	assert.Equal(t, "in", resp.RegionCode)
	assert.Len(t, resp.Indexes, 2)
}

func TestGoogleClient_Forward_PassesThroughClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"status":"PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	c := testGoogleClient(srv.URL, testAPIKey)
	status, body, err := c.Forward(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, string(body), "PERMISSION_DENIED")

	_, err = c.Lookup(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestGoogleClient_DoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	status, _, err := testGoogleClient(srv.URL, testAPIKey).Forward(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGoogleClient_BreakerOpensAfterServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testGoogleClient(srv.URL, testAPIKey)
	// gobreaker's default ReadyToTrip opens after more than 5 consecutive failures.
	for i := 0; i < 6; i++ {
		_, _, err := c.Forward(context.Background(), 1, 2)
		require.NoError(t, err)
	}

	_, _, err := c.Forward(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(6), calls.Load())
}
