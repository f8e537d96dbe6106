package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/i474232898/sleep-weather-logger/internal/sleeplog"
	"github.com/i474232898/sleep-weather-logger/internal/store"
	"github.com/i474232898/sleep-weather-logger/internal/weather"
)

var validate = validator.New()

// Journal is the part of sleeplog.Journal the API needs.
type Journal interface {
	Night(ctx context.Context, req weather.NightRequest) (weather.NightResult, error)
	Log(ctx context.Context, req weather.NightRequest, entry sleeplog.Entry) (sleeplog.Record, error)
}

// RecordLister reads the record log.
type RecordLister interface {
	List(ctx context.Context) ([]sleeplog.Record, error)
}

// Deps are the handlers' collaborators. Metrics may be nil.
type Deps struct {
	Journal Journal
	Records RecordLister
	Metrics http.Handler
}

// NewApp creates the Fiber app with the centralized error handler.
func NewApp(logger *zap.Logger) *fiber.App {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := fiber.New(fiber.Config{
		AppName:               "sleep-weather-logger",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				logger.Error("http request failed",
					zap.String("method", c.Method()),
					zap.String("path", c.Path()),
					zap.Int("status", code),
					zap.Error(err))
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	return app
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "sleep-weather-logger",
		})
	})

	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}

	v1 := app.Group("/api/v1")

	v1.Get("/night", func(c *fiber.Ctx) error {
		q := nightQuery{
			Zip:  c.Query("zip"),
			Date: c.Query("date"),
		}
		req, err := q.toRequest()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		res, err := deps.Journal.Night(c.UserContext(), req)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(res)
	})

	v1.Post("/records", func(c *fiber.Ctx) error {
		var body recordRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		req, err := body.nightQuery().toRequest()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rec, err := deps.Journal.Log(c.UserContext(), req, body.Entry)
		if err != nil {
			return toHTTPError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(rec)
	})

	v1.Get("/records", func(c *fiber.Ctx) error {
		recs, err := deps.Records.List(c.UserContext())
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(fiber.Map{
			"count":   len(recs),
			"records": recs,
		})
	})
}

// nightQuery holds the parameters identifying one night.
type nightQuery struct {
	Zip  string `validate:"required,max=10"`
	Date string `validate:"omitempty,datetime=2006-01-02"`
}

func (q nightQuery) toRequest() (weather.NightRequest, error) {
	if err := validate.Struct(q); err != nil {
		return weather.NightRequest{}, err
	}
	req := weather.NightRequest{PostalCode: q.Zip}
	if q.Date != "" {
		d, err := weather.ParseDate(q.Date)
		if err != nil {
			return weather.NightRequest{}, err
		}
		req.Date = d
	}
	return req, nil
}

// recordRequest is the body of POST /api/v1/records. A blank date selects the live path.
type recordRequest struct {
	Zip   string         `json:"zip"`
	Date  string         `json:"date"`
	Entry sleeplog.Entry `json:"entry"`
}

func (r recordRequest) nightQuery() nightQuery {
	return nightQuery{Zip: r.Zip, Date: r.Date}
}

// toHTTPError maps pipeline and storage errors onto status codes.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, sleeplog.ErrInvalidEntry):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, weather.ErrLocationNotFound),
		errors.Is(err, weather.ErrNoStationsNearby):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "no records logged yet")
	case errors.Is(err, sleeplog.ErrNoNightData):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, weather.ErrStationLookupFailed),
		errors.Is(err, weather.ErrObservationFetchFailed),
		errors.Is(err, weather.ErrArchiveFetchFailed),
		errors.Is(err, weather.ErrMalformedArchiveResponse):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to process request")
	}
}
