// Package api serves the fleetwatch HTTP API under /api/v2.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/fleetwatch/fleetwatch/internal/alertcache"
	"github.com/fleetwatch/fleetwatch/internal/datastore/repository"
	"github.com/fleetwatch/fleetwatch/internal/errors"
	"github.com/fleetwatch/fleetwatch/internal/logger"
	"github.com/fleetwatch/fleetwatch/internal/notification"
	"github.com/fleetwatch/fleetwatch/internal/observability"
)

// Config holds the dependencies of the controller. Telemetry, ConditionLog,
// Stream and Metrics are optional; their routes are not registered when nil.
type Config struct {
	Cache        *alertcache.Cache
	Reloader     *alertcache.AgentReloader
	Telemetry    repository.TelemetryRepository
	ConditionLog repository.ConditionLogRepository
	Stream       *notification.Stream
	Metrics      *observability.Metrics
}

// Controller owns the echo routes of the API.
type Controller struct {
	Echo  *echo.Echo
	Group *echo.Group

	cache     *alertcache.Cache
	reloader  *alertcache.AgentReloader
	telemetry repository.TelemetryRepository
	condLog   repository.ConditionLogRepository
	stream    *notification.Stream
	metrics   *observability.Metrics
	log       logger.Logger
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// New registers the API on e and returns the controller.
func New(e *echo.Echo, cfg *Config, log logger.Logger) *Controller {
	c := &Controller{
		Echo:      e,
		cache:     cfg.Cache,
		reloader:  cfg.Reloader,
		telemetry: cfg.Telemetry,
		condLog:   cfg.ConditionLog,
		stream:    cfg.Stream,
		metrics:   cfg.Metrics,
		log:       log.Module("api"),
	}

	e.Use(middleware.Recover())
	if c.metrics != nil {
		e.Use(c.metricsMiddleware)
		e.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}

	c.Group = e.Group("/api/v2")
	c.initAlertCacheRoutes()
	c.initTelemetryRoutes()
	c.initNotificationRoutes()
	return c
}

// metricsMiddleware records every request against its route pattern.
func (c *Controller) metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		err := next(ctx)
		status := ctx.Response().Status
		if err != nil {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
		}
		path := ctx.Path()
		if path == "" {
			path = "unmatched"
		}
		c.metrics.ObserveHTTP(ctx.Request().Method, path, status, time.Since(start))
		return err
	}
}

// HandleError logs err and writes an ErrorResponse with the given status.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	if code >= http.StatusInternalServerError {
		c.logErrorIfEnabled(message,
			logger.Error(err),
			logger.String("path", ctx.Path()),
			logger.String("category", string(errors.CategoryOf(err))))
	}
	return ctx.JSON(code, ErrorResponse{Error: err.Error(), Message: message, Code: code})
}

func (c *Controller) logErrorIfEnabled(msg string, fields ...logger.Field) {
	if c.log != nil {
		c.log.Error(msg, fields...)
	}
}

func (c *Controller) logInfoIfEnabled(msg string, fields ...logger.Field) {
	if c.log != nil {
		c.log.Info(msg, fields...)
	}
}

func (c *Controller) logDebugIfEnabled(msg string, fields ...logger.Field) {
	if c.log != nil {
		c.log.Debug(msg, fields...)
	}
}

// parseUintParam parses a uint route parameter.
func parseUintParam(ctx echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}
