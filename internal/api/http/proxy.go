package httpapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/i474232898/ward-air-quality/internal/airquality/upstream"
	"github.com/i474232898/ward-air-quality/internal/observability"
)

// ProxyPath is where the credential-injecting proxy is mounted.
const ProxyPath = "/api/air-quality"

// Forwarder performs the upstream call and returns the raw status and body.
type Forwarder interface {
	Forward(ctx context.Context, lat, lon float64) (int, []byte, error)
}

// ProxyHandler relays {lat, lon} lookups to the air-quality API, adding the
// server-side credential. Successful bodies are cached per coordinate.
type ProxyHandler struct {
	forwarder Forwarder
	cache     *cache.Cache
	ttl       time.Duration
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewProxyHandler creates a handler. A ttl <= 0 disables caching.
func NewProxyHandler(f Forwarder, ttl time.Duration, logger *zap.Logger, metrics *observability.Metrics) *ProxyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &ProxyHandler{
		forwarder: f,
		ttl:       ttl,
		logger:    logger,
		metrics:   metrics,
	}
	if ttl > 0 {
		h.cache = cache.New(ttl, 2*ttl)
	}
	return h
}

func (h *ProxyHandler) Register(app *fiber.App) {
	app.Post(ProxyPath, h.lookup)
}

func (h *ProxyHandler) lookup(c *fiber.Ctx) error {
	var req upstream.LookupRequest
	if err := c.App().Config().JSONDecoder(c.Body(), &req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, msgNotNumbers)
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, lookupValidationMessage(err))
	}
	lat, lon := *req.Lat, *req.Lon

	key := cacheKey(lat, lon)
	if h.cache != nil {
		if body, ok := h.cache.Get(key); ok {
			h.metrics.ObserveProxyCache(true)
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Send(body.([]byte))
		}
		h.metrics.ObserveProxyCache(false)
	}

	status, body, err := h.forwarder.Forward(c.UserContext(), lat, lon)
	if err != nil {
		if errors.Is(err, upstream.ErrMissingCredential) {
			return fiber.NewError(fiber.StatusServiceUnavailable, "air quality API key not configured")
		}
		h.logger.Error("air quality proxy failed",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Error(err),
		)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch air quality")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if status < 200 || status >= 300 {
		h.logger.Warn("air quality API returned an error",
			zap.Int("status", status),
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
		)
		return c.Status(status).Send(body)
	}

	if h.cache != nil {
		h.cache.Set(key, body, h.ttl)
	}
	return c.Status(status).Send(body)
}

const (
	msgNotNumbers = "lat and lon must be numbers"
	msgOutOfRange = "lat must be within [-90, 90] and lon within [-180, 180]"
)

func lookupValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "latitude" || fe.Tag() == "longitude" {
				return msgOutOfRange
			}
		}
	}
	return msgNotNumbers
}

// cacheKey rounds to about a metre so equal ward centroids share an entry.
func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("%.5f,%.5f", lat, lon)
}
