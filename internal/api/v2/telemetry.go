package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fleetwatch/fleetwatch/internal/alertcache"
	"github.com/fleetwatch/fleetwatch/internal/datastore/entities"
)

// initTelemetryRoutes registers ingest endpoints. Each persists the data when
// a telemetry repository is configured, then checks it against the caches.
func (c *Controller) initTelemetryRoutes() {
	if c.cache == nil {
		return
	}

	telemetry := c.Group.Group("/telemetry")
	telemetry.POST("/measurements", c.IngestMeasurements)
	telemetry.POST("/traits", c.IngestTraits)
	telemetry.POST("/availability", c.IngestAvailability)
	telemetry.POST("/events", c.IngestEvents)
	telemetry.POST("/operations", c.IngestOperation)
	telemetry.POST("/configurations", c.IngestConfiguration)
}

// stamp replaces a zero timestamp with the receive time.
func stamp(ts, now time.Time) time.Time {
	if ts.IsZero() {
		return now
	}
	return ts
}

// knownSchedules drops samples whose schedule does not exist so persisting the
// batch cannot fail on a foreign key.
func (c *Controller) knownSchedules(ctx echo.Context, ids []uint) (map[uint]bool, error) {
	found, err := c.telemetry.ScheduleIDs(ctx.Request().Context(), ids)
	if err != nil {
		return nil, err
	}
	known := make(map[uint]bool, len(found))
	for _, id := range found {
		known[id] = true
	}
	return known, nil
}

// IngestMeasurements checks numeric samples.
func (c *Controller) IngestMeasurements(ctx echo.Context) error {
	var body struct {
		Measurements []alertcache.MeasurementValue `json:"measurements"`
	}
	if err := ctx.Bind(&body); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	now := time.Now()
	for i := range body.Measurements {
		body.Measurements[i].Timestamp = stamp(body.Measurements[i].Timestamp, now)
	}

	if c.telemetry != nil {
		ids := make([]uint, 0, len(body.Measurements))
		for _, m := range body.Measurements {
			ids = append(ids, m.ScheduleID)
		}
		known, err := c.knownSchedules(ctx, ids)
		if err != nil {
			return c.HandleError(ctx, err, "Failed to look up schedules", http.StatusInternalServerError)
		}
		body.Measurements = slices.DeleteFunc(body.Measurements, func(m alertcache.MeasurementValue) bool {
			return !known[m.ScheduleID]
		})
		rows := make([]entities.MeasurementDataNumeric, 0, len(body.Measurements))
		for _, m := range body.Measurements {
			rows = append(rows, entities.MeasurementDataNumeric{ScheduleID: m.ScheduleID, Timestamp: m.Timestamp, Value: m.Value})
		}
		if err := c.telemetry.SaveNumeric(ctx.Request().Context(), rows); err != nil {
			return c.HandleError(ctx, err, "Failed to save measurements", http.StatusInternalServerError)
		}
	}

	return ctx.JSON(http.StatusOK, c.cache.CheckMeasurements(body.Measurements...))
}

// IngestTraits checks trait samples.
func (c *Controller) IngestTraits(ctx echo.Context) error {
	var body struct {
		Traits []alertcache.TraitValue `json:"traits"`
	}
	if err := ctx.Bind(&body); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	now := time.Now()
	for i := range body.Traits {
		body.Traits[i].Timestamp = stamp(body.Traits[i].Timestamp, now)
	}

	if c.telemetry != nil {
		ids := make([]uint, 0, len(body.Traits))
		for _, tr := range body.Traits {
			ids = append(ids, tr.ScheduleID)
		}
		known, err := c.knownSchedules(ctx, ids)
		if err != nil {
			return c.HandleError(ctx, err, "Failed to look up schedules", http.StatusInternalServerError)
		}
		body.Traits = slices.DeleteFunc(body.Traits, func(tr alertcache.TraitValue) bool {
			return !known[tr.ScheduleID]
		})
		rows := make([]entities.MeasurementDataTrait, 0, len(body.Traits))
		for _, tr := range body.Traits {
			rows = append(rows, entities.MeasurementDataTrait{ScheduleID: tr.ScheduleID, Timestamp: tr.Timestamp, Value: tr.Value})
		}
		if err := c.telemetry.SaveTraits(ctx.Request().Context(), rows); err != nil {
			return c.HandleError(ctx, err, "Failed to save traits", http.StatusInternalServerError)
		}
	}

	return ctx.JSON(http.StatusOK, c.cache.CheckTraits(body.Traits...))
}

// IngestAvailability checks availability changes. The cache is checked before
// the new interval is recorded.
func (c *Controller) IngestAvailability(ctx echo.Context) error {
	var body struct {
		Changes []alertcache.AvailabilityChange `json:"changes"`
	}
	if err := ctx.Bind(&body); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	now := time.Now()
	for i := range body.Changes {
		body.Changes[i].Timestamp = stamp(body.Changes[i].Timestamp, now)
	}

	stats := c.cache.CheckAvailability(body.Changes...)

	if c.telemetry != nil {
		for _, ch := range body.Changes {
			if err := c.telemetry.RecordAvailability(ctx.Request().Context(), ch.ResourceID, string(ch.Type), ch.Timestamp); err != nil {
				return c.HandleError(ctx, err, "Failed to record availability", http.StatusInternalServerError)
			}
		}
	}
	return ctx.JSON(http.StatusOK, stats)
}

// IngestEvents checks a batch of events from one source.
func (c *Controller) IngestEvents(ctx echo.Context) error {
	var body struct {
		Source alertcache.EventSource `json:"source"`
		Events []alertcache.Event     `json:"events"`
	}
	if err := ctx.Bind(&body); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	now := time.Now()
	for i := range body.Events {
		body.Events[i].Timestamp = stamp(body.Events[i].Timestamp, now)
	}
	return ctx.JSON(http.StatusOK, c.cache.CheckEvents(body.Source, body.Events...))
}

// IngestOperation checks one finished operation.
func (c *Controller) IngestOperation(ctx echo.Context) error {
	var result alertcache.OperationResult
	if err := ctx.Bind(&result); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	result.Timestamp = stamp(result.Timestamp, time.Now())
	return ctx.JSON(http.StatusOK, c.cache.CheckOperation(result))
}

// IngestConfiguration checks a new configuration snapshot. The cache is checked
// before the snapshot is stored.
func (c *Controller) IngestConfiguration(ctx echo.Context) error {
	var update alertcache.ConfigurationUpdate
	if err := ctx.Bind(&update); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	update.Timestamp = stamp(update.Timestamp, time.Now())

	stats := c.cache.CheckConfiguration(update)

	if c.telemetry != nil {
		if err := c.telemetry.SaveConfiguration(ctx.Request().Context(), update.ResourceID, update.Properties); err != nil {
			return c.HandleError(ctx, err, "Failed to save configuration", http.StatusInternalServerError)
		}
	}
	return ctx.JSON(http.StatusOK, stats)
}
