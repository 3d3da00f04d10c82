package api

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/tejusbharadwaj/pvwatch/internal/history"
	"github.com/tejusbharadwaj/pvwatch/internal/ingest"
	"github.com/tejusbharadwaj/pvwatch/internal/models"
)

var validate = newValidator()

// newValidator registers the "metric" tag, which accepts the names listed by
// history.Metrics.
func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("metric", func(fl validator.FieldLevel) bool {
		return slices.Contains(history.Metrics(), fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// QueryService is the read side exposed over HTTP.
type QueryService interface {
	FetchLatest(ctx context.Context) (models.Reading, error)
	QueryRange(ctx context.Context, window time.Duration) ([]models.Record, error)
	Aggregate(ctx context.Context, window time.Duration) (models.Stats, error)
	Series(ctx context.Context, window time.Duration, metric string) ([]models.SeriesPoint, error)
}

// StatusSource reports the state of the poll loop.
type StatusSource interface {
	Status() ingest.Status
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, svc QueryService, status StatusSource) {
	app.Get("/health", func(c *fiber.Ctx) error {
		s := status.Status()
		code := fiber.StatusOK
		if s.Ticks > 0 && !s.Healthy {
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"service": "pvwatch",
			"ingest":  s,
		})
	})

	v1 := app.Group("/api/v1")

	v1.Get("/readings/latest", func(c *fiber.Ctx) error {
		reading, err := svc.FetchLatest(c.UserContext())
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(reading)
	})

	v1.Get("/readings", func(c *fiber.Ctx) error {
		window, err := parseWindowQuery(c)
		if err != nil {
			return err
		}
		records, err := svc.QueryRange(c.UserContext(), window)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(fiber.Map{
			"window":  window.String(),
			"count":   len(records),
			"records": records,
		})
	})

	v1.Get("/stats", func(c *fiber.Ctx) error {
		window, err := parseWindowQuery(c)
		if err != nil {
			return err
		}
		stats, err := svc.Aggregate(c.UserContext(), window)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(fiber.Map{
			"window": window.String(),
			"stats":  stats,
		})
	})

	v1.Get("/series", func(c *fiber.Ctx) error {
		q := seriesQuery{Metric: c.Query("metric", "live_power")}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest,
				fmt.Sprintf("unknown metric %q, expected one of %s", q.Metric, strings.Join(history.Metrics(), ", ")))
		}
		window, err := parseWindowQuery(c)
		if err != nil {
			return err
		}
		points, err := svc.Series(c.UserContext(), window, q.Metric)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(fiber.Map{
			"metric": q.Metric,
			"window": window.String(),
			"points": points,
		})
	})
}

// windowQuery holds the trailing window parameter.
type windowQuery struct {
	Window string `validate:"omitempty,max=16,printascii"`
}

// seriesQuery holds the metric selector.
type seriesQuery struct {
	Metric string `validate:"required,metric"`
}

func parseWindowQuery(c *fiber.Ctx) (time.Duration, error) {
	q := windowQuery{Window: c.Query("window")}
	if err := validate.Struct(q); err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	window, err := history.ParseWindow(q.Window)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return window, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, history.ErrNoData):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, history.ErrUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, history.ErrInvalidWindow), errors.Is(err, history.ErrUnknownMetric):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "query failed")
	}
}
