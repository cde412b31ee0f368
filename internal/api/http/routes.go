package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weathermap/internal/geo"
	"github.com/i474232898/weathermap/internal/layers"
	"github.com/i474232898/weathermap/internal/store"
	"github.com/i474232898/weathermap/internal/weatherapi"
	"github.com/i474232898/weathermap/internal/weathermap"
)

var validate = validator.New()

// WeatherService serves the place based endpoints.
type WeatherService interface {
	ObservationForPlace(ctx context.Context, place weatherapi.Place, opts weatherapi.RequestOptions) (weatherapi.Observation, error)
	ForecastForPlace(ctx context.Context, place weatherapi.Place, opts weatherapi.RequestOptions) (weatherapi.Forecast, error)
}

// ArchiveReader serves archived layer payloads.
type ArchiveReader interface {
	Range(ctx context.Context, t layers.Type, from, to time.Time) ([]store.PayloadSnapshot, error)
}

// Services are the backends behind the routes. Weather and Archive may be nil,
// in which case their routes answer 503.
type Services struct {
	Map     *weathermap.WeatherMap
	Weather WeatherService
	Archive ArchiveReader
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, svc Services) {
	v1 := app.Group("/api/v1")

	v1.Get("/layers", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"layers":     layers.Supported(),
			"categories": layers.ByCategory(),
		})
	})

	m := v1.Group("/map")

	m.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(svc.Map.Snapshot())
	})

	m.Post("/layers", func(c *fiber.Ctx) error {
		var req addLayerRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		t, err := layers.Parse(req.Type)
		if err != nil {
			return err
		}
		pos, err := req.positions()
		if err != nil {
			return err
		}

		status := fiber.StatusCreated
		if svc.Map.ContainsLayer(t) {
			status = fiber.StatusOK
		}
		if err := svc.Map.AddLayer(c.UserContext(), t, pos...); err != nil {
			return err
		}
		return c.Status(status).JSON(layerResponse(svc.Map.DataLayer(t)))
	})

	m.Delete("/layers/:type", func(c *fiber.Ctx) error {
		t, err := layers.Parse(c.Params("type"))
		if err != nil {
			return err
		}
		if !svc.Map.ContainsLayer(t) {
			return weathermap.ErrLayerNotActive
		}
		svc.Map.RemoveLayer(t)
		return c.SendStatus(fiber.StatusNoContent)
	})

	m.Post("/layers/:type/refresh", func(c *fiber.Ctx) error {
		t, err := layers.Parse(c.Params("type"))
		if err != nil {
			return err
		}
		if err := svc.Map.RefreshLayer(c.UserContext(), t); err != nil {
			return err
		}
		return c.JSON(layerResponse(svc.Map.DataLayer(t)))
	})

	m.Post("/refresh", func(c *fiber.Ctx) error {
		var err error
		if c.QueryBool("points") {
			err = svc.Map.UpdatePointDataForCurrentMapBounds(c.UserContext())
		} else {
			err = svc.Map.RefreshAllLayers(c.UserContext())
		}
		if err != nil {
			return err
		}
		return c.JSON(svc.Map.Snapshot())
	})

	m.Put("/autorefresh", func(c *fiber.Ctx) error {
		var req autoRefreshRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if *req.Enabled {
			if err := svc.Map.EnableAutoRefresh(); err != nil {
				return err
			}
		} else {
			svc.Map.DisableAutoRefresh()
		}
		return c.JSON(fiber.Map{"enabled": svc.Map.AutoRefreshEnabled()})
	})

	m.Post("/animation/:action", func(c *fiber.Ctx) error {
		switch c.Params("action") {
		case "start":
			var from time.Time
			if s := c.Query("from"); s != "" {
				t, err := parseTime(s)
				if err != nil {
					return fiber.NewError(fiber.StatusBadRequest, err.Error())
				}
				from = t
			}
			if err := svc.Map.StartAnimatingFrom(from); err != nil {
				return err
			}
			return c.Status(fiber.StatusAccepted).JSON(animationResponse(svc.Map))
		case "pause":
			svc.Map.PauseAnimation()
		case "stop":
			svc.Map.StopAnimating()
		default:
			return fiber.NewError(fiber.StatusNotFound, "unknown animation action")
		}
		return c.JSON(animationResponse(svc.Map))
	})

	m.Put("/timeline", func(c *fiber.Ctx) error {
		var req timelineRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		at, err := parseTime(req.Time)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := svc.Map.GoToTime(c.UserContext(), at); err != nil {
			return err
		}
		return c.JSON(animationResponse(svc.Map))
	})

	m.Put("/timeline/range", func(c *fiber.Ctx) error {
		var req timelineRangeRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		start, err := parseTime(req.Start)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		end, err := parseTime(req.End)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := svc.Map.SetTimelineRange(start, end); err != nil {
			return err
		}
		return c.JSON(animationResponse(svc.Map))
	})

	m.Delete("/timeline/range", func(c *fiber.Ctx) error {
		svc.Map.ResetTimelineRange()
		return c.JSON(animationResponse(svc.Map))
	})

	m.Put("/center", func(c *fiber.Ctx) error {
		var req centerRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		svc.Map.SetMapCenter(geo.Coordinate{Lat: *req.Lat, Lon: *req.Lon}, req.Zoom, req.Animated)
		return c.JSON(fiber.Map{"region": svc.Map.Host().Region()})
	})

	v1.Get("/observations", func(c *fiber.Ctx) error {
		if svc.Weather == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "weather api not configured")
		}
		place, err := parsePlaceQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		ob, err := svc.Weather.ObservationForPlace(c.UserContext(), place, weatherapi.RequestOptions{Filter: c.Query("filter")})
		if err != nil {
			return err
		}
		return c.JSON(ob)
	})

	v1.Get("/forecasts", func(c *fiber.Ctx) error {
		if svc.Weather == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "weather api not configured")
		}
		place, err := parsePlaceQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		limit := c.QueryInt("limit", 0)
		if limit < 0 || limit > 15 {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 15")
		}
		fc, err := svc.Weather.ForecastForPlace(c.UserContext(), place, weatherapi.RequestOptions{Filter: c.Query("filter"), Limit: limit})
		if err != nil {
			return err
		}
		return c.JSON(fc)
	})

	v1.Get("/archive/:type", func(c *fiber.Ctx) error {
		if svc.Archive == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "archive not configured")
		}
		t, err := layers.Parse(c.Params("type"))
		if err != nil {
			return err
		}
		var req archiveQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		snapshots, err := svc.Archive.Range(c.UserContext(), t, req.From, req.To)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"layer":     t,
			"from":      req.From,
			"to":        req.To,
			"snapshots": snapshots,
		})
	})
}

// ErrorHandler renders errors as {"error": true, "message": ...} with a
// status derived from the error.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

func statusFor(err error) int {
	var fe *fiber.Error
	var ve validator.ValidationErrors
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.As(err, &ve),
		errors.Is(err, weathermap.ErrUnsupportedLayerType),
		errors.Is(err, weathermap.ErrInvalidTimeRange):
		return fiber.StatusBadRequest
	case errors.Is(err, weathermap.ErrNoData),
		errors.Is(err, weathermap.ErrLayerNotActive),
		errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, weathermap.ErrAnimationDisabled):
		return fiber.StatusConflict
	case errors.Is(err, weathermap.ErrClosed):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, weathermap.ErrNetwork):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

type addLayerRequest struct {
	Type         string `json:"type" validate:"required"`
	Above        string `json:"above"`
	Below        string `json:"below"`
	AboveOverlay string `json:"aboveOverlay"`
	BelowOverlay string `json:"belowOverlay"`
	Index        *int   `json:"index" validate:"omitempty,gte=0"`
}

func (r addLayerRequest) positions() ([]weathermap.Position, error) {
	var pos []weathermap.Position
	if r.Above != "" {
		t, err := layers.Parse(r.Above)
		if err != nil {
			return nil, err
		}
		pos = append(pos, weathermap.AboveLayer(t))
	}
	if r.Below != "" {
		t, err := layers.Parse(r.Below)
		if err != nil {
			return nil, err
		}
		pos = append(pos, weathermap.BelowLayer(t))
	}
	if r.AboveOverlay != "" {
		pos = append(pos, weathermap.AboveOverlay(r.AboveOverlay))
	}
	if r.BelowOverlay != "" {
		pos = append(pos, weathermap.BelowOverlay(r.BelowOverlay))
	}
	if r.Index != nil {
		pos = append(pos, weathermap.AtIndex(*r.Index))
	}
	return pos, nil
}

type autoRefreshRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type timelineRequest struct {
	Time string `json:"time" validate:"required"`
}

type timelineRangeRequest struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

type centerRequest struct {
	Lat      *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon      *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	Zoom     uint     `json:"zoom" validate:"lte=22"`
	Animated bool     `json:"animated"`
}

func layerResponse(dl *weathermap.DataLayer) fiber.Map {
	if dl == nil {
		return fiber.Map{}
	}
	p := dl.Payload()
	return fiber.Map{
		"type":      dl.Type(),
		"name":      dl.Info().Name,
		"overlayId": dl.OverlayID(),
		"loaded":    dl.Loaded(),
		"payload":   p,
	}
}

func animationResponse(m *weathermap.WeatherMap) fiber.Map {
	return fiber.Map{
		"state":    m.State(),
		"timeline": m.Timeline(),
	}
}

func parsePlaceQuery(c *fiber.Ctx) (weatherapi.Place, error) {
	s := c.Query("place")
	if s == "" {
		return weatherapi.Place{}, errors.New("place query parameter is required")
	}
	return weatherapi.ParsePlace(s)
}

// archiveQuery holds query parameters for the archive endpoint.
type archiveQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (q *archiveQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	q.From = from
	q.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
