package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/fleetwatch/fleetwatch/internal/logger"
	"github.com/fleetwatch/fleetwatch/internal/notification"
)

// SSE connection configuration
const (
	maxSSEConnectionDuration = 30 * time.Minute
	heartbeatInterval        = 30 * time.Second

	rateLimitWindow            = 1 * time.Minute
	rateLimitRequestsPerWindow = 10
	rateLimitBurst             = 15
)

// SSENotificationData is the payload of a "notification" event.
type SSENotificationData struct {
	*notification.Notification
	EventType string `json:"eventType"`
}

// initNotificationRoutes registers the live notification stream.
func (c *Controller) initNotificationRoutes() {
	if c.stream == nil {
		return
	}

	rateLimiterConfig := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rateLimitRequestsPerWindow,
				Burst:     rateLimitBurst,
				ExpiresIn: rateLimitWindow,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, _ error) error {
			return ctx.JSON(http.StatusForbidden, map[string]string{"error": "Unable to identify client"})
		},
		DenyHandler: func(ctx echo.Context, _ string, _ error) error {
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Too many notification stream connection attempts, please wait before trying again",
			})
		},
	}

	c.Group.GET("/notifications/stream", c.StreamNotifications, middleware.RateLimiterWithConfig(rateLimiterConfig))
}

// StreamNotifications streams activate and deactivate notifications as server-sent events.
func (c *Controller) StreamNotifications(ctx echo.Context) error {
	timeoutCtx, cancel := context.WithTimeout(ctx.Request().Context(), maxSSEConnectionDuration)
	defer cancel()

	setSSEHeaders(ctx)
	clientID, ch := c.stream.Subscribe()
	defer c.stream.Unsubscribe(clientID)

	if err := sendSSEMessage(ctx, "connected", map[string]string{"clientId": clientID}); err != nil {
		return err
	}
	c.logDebugIfEnabled("notification SSE client connected",
		logger.String("clientId", clientID),
		logger.String("ip", ctx.RealIP()))
	defer c.logDebugIfEnabled("notification SSE client disconnected", logger.String("clientId", clientID))

	return c.runNotificationEventLoop(timeoutCtx, ctx, clientID, ch)
}

func (c *Controller) runNotificationEventLoop(done context.Context, ctx echo.Context, clientID string, ch <-chan *notification.Notification) error {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case notif, ok := <-ch:
			if !ok {
				return nil
			}
			event := SSENotificationData{Notification: notif, EventType: string(notif.Kind)}
			if err := sendSSEMessage(ctx, "notification", event); err != nil {
				c.logErrorIfEnabled("failed to send notification SSE",
					logger.Error(err),
					logger.String("clientId", clientID))
				return err
			}
		case <-ticker.C:
			if err := sendSSEMessage(ctx, "heartbeat", map[string]string{
				"timestamp": time.Now().Format(time.RFC3339),
			}); err != nil {
				return err
			}
		case <-done.Done():
			return nil
		}
	}
}

func setSSEHeaders(ctx echo.Context) {
	h := ctx.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	ctx.Response().WriteHeader(http.StatusOK)
}

// sendSSEMessage writes one event and flushes it to the client.
func sendSSEMessage(ctx echo.Context, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(ctx.Response(), "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	ctx.Response().Flush()
	return nil
}
