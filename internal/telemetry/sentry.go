// Package telemetry forwards selected errors to Sentry.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/fleetwatch/fleetwatch/internal/conf"
	"github.com/fleetwatch/fleetwatch/internal/errors"
	"github.com/fleetwatch/fleetwatch/internal/logger"
)

// reportedCategories are the error categories worth an external report.
// Construction and evaluation errors are routine per-condition noise and stay in the log.
var reportedCategories = map[errors.Category]bool{
	errors.CategoryDatabase:     true,
	errors.CategoryNotification: true,
}

// Reporter sends EnhancedErrors to a sentry hub.
type Reporter struct {
	hub *sentry.Hub
}

// NewReporter wraps an existing hub. Tests pass a hub bound to a custom transport.
func NewReporter(hub *sentry.Hub) *Reporter {
	return &Reporter{hub: hub}
}

// Report captures err if its category is reportable.
func (r *Reporter) Report(err *errors.EnhancedError) {
	if err == nil || !reportedCategories[err.GetCategory()] {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", err.GetComponent())
		scope.SetTag("category", string(err.GetCategory()))
		for k, v := range err.GetContext() {
			scope.SetExtra(k, fmt.Sprint(v))
		}
		r.hub.CaptureException(err)
	})
}

// Init configures Sentry and installs the reporter into the errors package.
// It returns a flush function to call on shutdown. When Sentry is disabled it is a no-op.
func Init(settings conf.SentrySettings, release string, log logger.Logger) (func(), error) {
	if !settings.Enabled {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:     settings.DSN,
		Release: release,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize sentry: %w", err)
	}

	r := NewReporter(sentry.CurrentHub())
	errors.SetReporter(r.Report)
	log.Info("error reporting enabled", logger.String("release", release))

	return func() {
		errors.SetReporter(nil)
		sentry.Flush(2 * time.Second)
	}, nil
}
