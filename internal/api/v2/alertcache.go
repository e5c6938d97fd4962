package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fleetwatch/fleetwatch/internal/alertcache"
	"github.com/fleetwatch/fleetwatch/internal/datastore/repository"
	"github.com/fleetwatch/fleetwatch/internal/errors"
	"github.com/fleetwatch/fleetwatch/internal/logger"
)

const maxHistoryLimit = 200

// initAlertCacheRoutes registers cache introspection and mutation endpoints.
func (c *Controller) initAlertCacheRoutes() {
	if c.cache == nil {
		return
	}

	cache := c.Group.Group("/alertcache")
	cache.GET("/counts", c.GetCacheCounts)
	cache.GET("/caches", c.ListCaches)
	cache.POST("/caches/:name/print", c.PrintCache)
	cache.POST("/clear", c.ClearCaches)
	cache.POST("/reload", c.ReloadCaches)
	cache.GET("/validate", c.ValidateCaches)
	cache.GET("/conditions/:id", c.GetConditionState)
	cache.POST("/definitions/:id", c.UpdateDefinition)
	cache.POST("/baselines", c.UpdateBaselines)
	if c.condLog != nil {
		cache.GET("/history", c.ListConditionHistory)
	}

	agents := c.Group.Group("/agents")
	agents.POST("/:id/connect", c.ConnectAgent)
	agents.DELETE("/:id", c.DisconnectAgent)
}

// GetCacheCounts returns the number of entries per cache.
func (c *Controller) GetCacheCounts(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.cache.CacheCounts())
}

// ListCaches returns the cache names accepted by PrintCache.
func (c *Controller) ListCaches(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{"caches": alertcache.CacheNames()})
}

// PrintCache dumps one cache to the debug log.
func (c *Controller) PrintCache(ctx echo.Context) error {
	name := ctx.Param("name")
	n, err := c.cache.PrintCache(name)
	if err != nil {
		if errors.Is(err, alertcache.ErrUnknownCache) {
			return c.HandleError(ctx, err, "Unknown cache", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to print cache", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"cache": name, "printed": n})
}

// ClearCaches empties every cache.
func (c *Controller) ClearCaches(ctx echo.Context) error {
	c.cache.ClearCaches()
	c.logInfoIfEnabled("alert condition caches cleared")
	return ctx.JSON(http.StatusOK, c.cache.CacheCounts())
}

// ReloadCaches clears the caches and loads the conditions of every agent.
func (c *Controller) ReloadCaches(ctx echo.Context) error {
	stats, err := c.cache.LoadCaches(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "Failed to reload caches", http.StatusInternalServerError)
	}
	c.logInfoIfEnabled("alert condition caches reloaded", logger.String("stats", stats.String()))
	return ctx.JSON(http.StatusOK, stats)
}

// ValidateCaches reports store and inverse index inconsistencies.
func (c *Controller) ValidateCaches(ctx echo.Context) error {
	problems := c.cache.Validate()
	if problems == nil {
		problems = []string{}
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"valid":    len(problems) == 0,
		"problems": problems,
	})
}

// GetConditionState returns the cached elements of one condition.
func (c *Controller) GetConditionState(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid condition ID"})
	}
	states, ok := c.cache.ConditionState(id)
	if !ok {
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Condition not cached"})
	}
	return ctx.JSON(http.StatusOK, map[string]any{"conditionId": id, "elements": states})
}

// UpdateDefinition applies a structural change of an alert definition.
func (c *Controller) UpdateDefinition(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid definition ID"})
	}
	var body struct {
		Event alertcache.DefinitionEvent `json:"event"`
	}
	if err := ctx.Bind(&body); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	stats, err := c.cache.UpdateConditions(ctx.Request().Context(), id, body.Event)
	if err != nil {
		if errors.Is(err, alertcache.ErrUnknownDefinitionEvent) {
			return c.HandleError(ctx, err, "Unknown definition event", http.StatusBadRequest)
		}
		return c.HandleError(ctx, err, "Failed to update definition conditions", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, stats)
}

// UpdateBaselines recomputes the thresholds of baseline conditions.
func (c *Controller) UpdateBaselines(ctx echo.Context) error {
	var body struct {
		Baselines []alertcache.BaselineUpdate `json:"baselines"`
	}
	if err := ctx.Bind(&body); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	return ctx.JSON(http.StatusOK, c.cache.UpdateBaselines(body.Baselines...))
}

// ListConditionHistory returns paginated activate and deactivate records.
func (c *Controller) ListConditionHistory(ctx echo.Context) error {
	filter := repository.ConditionLogFilter{Kind: ctx.QueryParam("kind"), Limit: 50}

	if idParam := ctx.QueryParam("condition_id"); idParam != "" {
		v, err := strconv.ParseUint(idParam, 10, 64)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid condition_id"})
		}
		filter.ConditionID = uint(v)
	}
	if limitParam := ctx.QueryParam("limit"); limitParam != "" {
		if v, err := strconv.Atoi(limitParam); err == nil && v > 0 {
			filter.Limit = min(v, maxHistoryLimit)
		}
	}
	if offsetParam := ctx.QueryParam("offset"); offsetParam != "" {
		if v, err := strconv.Atoi(offsetParam); err == nil && v >= 0 {
			filter.Offset = v
		}
	}

	items, total, err := c.condLog.List(ctx.Request().Context(), filter)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list condition history", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"history": items,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// ConnectAgent reloads the conditions of an agent that (re)connected.
// ?force=true bypasses the debounce window.
func (c *Controller) ConnectAgent(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid agent ID"})
	}
	if c.reloader == nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Agent reload not available"})
	}
	force := ctx.QueryParam("force") == "true"

	res, err := c.reloader.Reload(ctx.Request().Context(), id, force)
	switch {
	case errors.Is(err, alertcache.ErrReloadTimeout):
		return c.HandleError(ctx, err, "Agent reload still running", http.StatusGatewayTimeout)
	case err != nil:
		return c.HandleError(ctx, err, "Failed to reload agent conditions", http.StatusInternalServerError)
	}

	c.logDebugIfEnabled("agent connected",
		logger.Uint64("agent_id", uint64(id)),
		logger.Bool("skipped", res.Skipped),
		logger.Bool("shared", res.Shared))
	return ctx.JSON(http.StatusOK, res)
}

// DisconnectAgent removes the conditions of an agent from the caches.
func (c *Controller) DisconnectAgent(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid agent ID"})
	}
	stats := c.cache.UnloadCachesForAgent(id)
	if c.reloader != nil {
		c.reloader.Forget(id)
	}
	return ctx.JSON(http.StatusOK, stats)
}
