package httpapi

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/ward-air-quality/internal/airquality"
	"github.com/i474232898/ward-air-quality/internal/reconcile"
	"github.com/i474232898/ward-air-quality/internal/store"
)

var validate = validator.New()

// WardService is the read and refresh surface of the reconciler.
type WardService interface {
	Snapshot() reconcile.State
	Ward(wardUnique string) (airquality.WardAQIData, bool)
	RefreshFromUpstream(ctx context.Context) reconcile.EnhanceResult
}

// HistoryReader serves stored readings.
type HistoryReader interface {
	Range(ward string, from, to time.Time) ([]airquality.Reading, error)
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the ward read API into the Fiber app.
func RegisterRoutes(app *fiber.App, wards WardService, history HistoryReader) {
	v1 := app.Group("/api/v1")

	v1.Get("/wards", func(c *fiber.Ctx) error {
		var q wardsQuery
		q.bind(c)
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		state := wards.Snapshot()
		filtered := make([]airquality.WardAQIData, 0, len(state.Wards))
		for _, w := range state.Wards {
			if q.matches(w) {
				filtered = append(filtered, w)
			}
		}

		var lastUpdated *time.Time
		if !state.LastUpdated.IsZero() {
			lastUpdated = &state.LastUpdated
		}
		return c.JSON(fiber.Map{
			"wards":       filtered,
			"count":       len(filtered),
			"dataSource":  state.DataSource,
			"lastUpdated": lastUpdated,
			"loading":     state.Loading,
			"error":       state.Error,
		})
	})

	v1.Get("/wards/:ward", func(c *fiber.Ctx) error {
		w, ok := wards.Ward(c.Params("ward"))
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "ward not found")
		}
		return c.JSON(w)
	})

	v1.Get("/wards/:ward/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		readings, err := history.Range(req.Ward, req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no readings for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch ward history")
		}

		return c.JSON(fiber.Map{
			"ward":     req.Ward,
			"from":     req.From,
			"to":       req.To,
			"readings": readings,
		})
	})

	v1.Post("/refresh", func(c *fiber.Ctx) error {
		res := wards.RefreshFromUpstream(c.UserContext())
		if res.Err != nil {
			if errors.Is(res.Err, reconcile.ErrEnhancementDisabled) || errors.Is(res.Err, reconcile.ErrClosed) {
				return fiber.NewError(fiber.StatusServiceUnavailable, res.Err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, res.Err.Error())
		}
		return c.JSON(res)
	})
}

// wardsQuery holds the optional filters of the ward list.
type wardsQuery struct {
	Zone     string `validate:"omitempty,alpha,max=3"`
	Category string `validate:"omitempty,oneof=good satisfactory moderate poor very_poor severe unknown"`
}

func (q *wardsQuery) bind(c *fiber.Ctx) {
	q.Zone = strings.ToUpper(strings.TrimSpace(c.Query("zone")))
	q.Category = strings.ToLower(strings.TrimSpace(c.Query("category")))
}

func (q wardsQuery) matches(w airquality.WardAQIData) bool {
	if q.Zone != "" && !strings.EqualFold(w.Zone, q.Zone) {
		return false
	}
	if q.Category != "" && string(w.AQICategory) != q.Category {
		return false
	}
	return true
}

// historyQuery holds the parameters of the history endpoint. Both bounds are
// optional: from defaults to the epoch and to defaults to now.
type historyQuery struct {
	Ward string    `validate:"required"`
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	h.Ward = c.Params("ward")
	h.From = time.Unix(0, 0).UTC()
	h.To = time.Now().UTC()

	if s := c.Query("from"); s != "" {
		from, err := parseTime(s)
		if err != nil {
			return err
		}
		h.From = from
	}
	if s := c.Query("to"); s != "" {
		to, err := parseTime(s)
		if err != nil {
			return err
		}
		h.To = to
	}
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
