package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRequest(url string) func() (*http.Request, error) {
	return func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, url, nil)
	}
}

func TestDoRequestWithResilience_SingleAttemptOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"busy"}`))
	}))
	defer srv.Close()

	_, err := doRequestWithResilience(context.Background(), srv.Client(), newBreaker("test"), getRequest(srv.URL))

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.JSONEq(t, `{"error":"busy"}`, string(se.Body))
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoRequestWithResilience_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	raw, err := doRequestWithResilience(context.Background(), srv.Client(), newBreaker("test"), getRequest(srv.URL))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, raw.StatusCode)
	assert.Equal(t, "ok", string(raw.Body))
}

func TestDoRequestWithResilience_Preconditions(t *testing.T) {
	_, err := doRequestWithResilience(context.Background(), nil, newBreaker("test"), getRequest("http://127.0.0.1"))
	assert.ErrorIs(t, err, errNoHTTPClient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	built := false
	_, err = doRequestWithResilience(ctx, http.DefaultClient, newBreaker("test"), func() (*http.Request, error) {
		built = true
		return http.NewRequest(http.MethodGet, "http://127.0.0.1", nil)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, built)
}
