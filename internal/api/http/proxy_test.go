package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/i474232898/ward-air-quality/internal/airquality/upstream"
	"github.com/i474232898/ward-air-quality/internal/observability"
)

type fakeForwarder struct {
	calls  atomic.Int32
	status int
	body   string
	err    error
	gotLat float64
	gotLon float64
}

func (f *fakeForwarder) Forward(_ context.Context, lat, lon float64) (int, []byte, error) {
	f.calls.Add(1)
	f.gotLat, f.gotLon = lat, lon
	if f.err != nil {
		return 0, nil, f.err
	}
	return f.status, []byte(f.body), nil
}

func newProxyApp(f Forwarder, ttl time.Duration, metrics *observability.Metrics) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	NewProxyHandler(f, ttl, zap.NewNop(), metrics).Register(app)
	return app
}

func postProxy(t *testing.T, app *fiber.App, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, ProxyPath, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(out)
}

func TestProxy_Success(t *testing.T) {
	f := &fakeForwarder{status: http.StatusOK, body: `{"indexes":[{"code":"uaqi","aqi":40}]}`}
	app := newProxyApp(f, 0, nil)

	status, body := postProxy(t, app, `{"lat": 28.61, "lon": 77.23}`)

	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, f.body, body)
	assert.InDelta(t, 28.61, f.gotLat, 1e-9)
	assert.InDelta(t, 77.23, f.gotLon, 1e-9)
}

func TestProxy_BadInput(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "missing lon", body: `{"lat": 28.61}`, wantMsg: msgNotNumbers},
		{name: "string lat", body: `{"lat": "north", "lon": 77.2}`, wantMsg: msgNotNumbers},
		{name: "lat out of range", body: `{"lat": 95, "lon": 77.2}`, wantMsg: msgOutOfRange},
		{name: "lon out of range", body: `{"lat": 28.6, "lon": -181}`, wantMsg: msgOutOfRange},
		{name: "not json", body: `lat=28&lon=77`, wantMsg: msgNotNumbers},
		{name: "empty", body: ``, wantMsg: msgNotNumbers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeForwarder{status: http.StatusOK, body: `{}`}
			status, body := postProxy(t, newProxyApp(f, 0, nil), tt.body)

			assert.Equal(t, http.StatusBadRequest, status)
			assert.Zero(t, f.calls.Load())

			var errBody struct {
				Error   bool   `json:"error"`
				Message string `json:"message"`
			}
			require.NoError(t, json.Unmarshal([]byte(body), &errBody))
			assert.True(t, errBody.Error)
			assert.Equal(t, tt.wantMsg, errBody.Message)
		})
	}
}

func TestProxy_MissingCredential(t *testing.T) {
	f := &fakeForwarder{err: upstream.ErrMissingCredential}

	status, body := postProxy(t, newProxyApp(f, 0, nil), `{"lat": 1, "lon": 2}`)

	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body, "not configured")
}

func TestProxy_UpstreamErrorPassedThrough(t *testing.T) {
	f := &fakeForwarder{status: http.StatusForbidden, body: `{"error":{"code":403,"message":"API key not valid"}}`}

	status, body := postProxy(t, newProxyApp(f, time.Minute, nil), `{"lat": 1, "lon": 2}`)

	assert.Equal(t, http.StatusForbidden, status)
	assert.JSONEq(t, f.body, body)
}

func TestProxy_OtherFailure(t *testing.T) {
	f := &fakeForwarder{err: errors.New("dial tcp: connection refused")}

	status, body := postProxy(t, newProxyApp(f, 0, nil), `{"lat": 1, "lon": 2}`)

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.NotContains(t, body, "connection refused")
}

func TestProxy_CachesSuccessfulBodies(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	f := &fakeForwarder{status: http.StatusOK, body: `{"regionCode":"in"}`}
	app := newProxyApp(f, time.Minute, metrics)

	for range 3 {
		status, body := postProxy(t, app, `{"lat": 28.610001, "lon": 77.23}`)
		require.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, f.body, body)
	}
	postProxy(t, app, `{"lat": 19.07, "lon": 72.87}`)

	assert.Equal(t, int32(2), f.calls.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ProxyCache.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ProxyCache.WithLabelValues("miss")))
}

func TestProxy_ErrorsAreNotCached(t *testing.T) {
	f := &fakeForwarder{status: http.StatusTooManyRequests, body: `{}`}
	app := newProxyApp(f, time.Minute, nil)

	postProxy(t, app, `{"lat": 1, "lon": 2}`)
	postProxy(t, app, `{"lat": 1, "lon": 2}`)

	assert.Equal(t, int32(2), f.calls.Load())
}
