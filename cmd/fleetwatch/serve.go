package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/fleetwatch/fleetwatch/internal/alertcache"
	api "github.com/fleetwatch/fleetwatch/internal/api/v2"
	"github.com/fleetwatch/fleetwatch/internal/conf"
	"github.com/fleetwatch/fleetwatch/internal/datastore"
	"github.com/fleetwatch/fleetwatch/internal/datastore/repository"
	"github.com/fleetwatch/fleetwatch/internal/logger"
	"github.com/fleetwatch/fleetwatch/internal/notification"
	"github.com/fleetwatch/fleetwatch/internal/observability"
	"github.com/fleetwatch/fleetwatch/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the alert condition cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, log, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, settings, log)
		},
	}
}

// service holds every long-lived component of a running server.
type service struct {
	mgr      *datastore.Manager
	notifier *notification.Service
	cache    *alertcache.Cache
	echo     *echo.Echo
	flush    func()
	log      logger.Logger
}

// newService wires the components in dependency order. On error everything
// already started is shut down.
func newService(ctx context.Context, settings *conf.Settings, log logger.Logger) (*service, error) {
	s := &service{log: log.Module("serve"), flush: func() {}}
	started := false
	defer func() {
		if !started {
			s.close()
		}
	}()

	flush, err := telemetry.Init(settings.Sentry, version, log)
	if err != nil {
		return nil, err
	}
	s.flush = flush

	s.mgr, err = datastore.Open(settings.Database, log)
	if err != nil {
		return nil, err
	}
	if err := s.mgr.Initialize(); err != nil {
		return nil, err
	}
	db := s.mgr.DB()

	metrics := observability.New()
	logRepo := repository.NewConditionLogRepository(db)
	s.notifier, err = notification.NewService(ctx, &notification.ServiceConfig{
		Settings: settings.Notification,
		LogRepo:  logRepo,
		Metrics:  metrics,
	}, log)
	if err != nil {
		return nil, err
	}

	condRepo := repository.NewConditionRepository(db)
	s.cache = alertcache.New(condRepo, condRepo, s.notifier.Bus(), log,
		alertcache.WithPageSize(settings.AlertCache.PageSize),
		alertcache.WithObserver(metrics))
	reloader := alertcache.NewAgentReloader(s.cache, alertcache.ReloaderConfig{
		Timeout:  settings.AlertCache.ReloadTimeout.Std(),
		Debounce: settings.AlertCache.ReloadDebounce.Std(),
		Rate:     settings.AlertCache.ReloadRate,
	}, log)

	if settings.AlertCache.LoadOnStartup {
		stats, err := s.cache.LoadCaches(ctx)
		if err != nil {
			return nil, err
		}
		s.log.Info("alert condition caches loaded", logger.String("stats", stats.String()))
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	api.New(s.echo, &api.Config{
		Cache:        s.cache,
		Reloader:     reloader,
		Telemetry:    repository.NewTelemetryRepository(db),
		ConditionLog: logRepo,
		Stream:       s.notifier.Stream(),
		Metrics:      metrics,
	}, log)
	started = true
	return s, nil
}

// close stops the components in reverse dependency order. It tolerates a
// partially built service.
func (s *service) close() {
	if s.echo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.echo.Shutdown(ctx); err != nil {
			s.log.Warn("http server shutdown", logger.Error(err))
		}
		cancel()
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.notifier != nil {
		s.notifier.Stop()
	}
	if s.mgr != nil {
		if err := s.mgr.Close(); err != nil {
			s.log.Warn("failed to close database", logger.Error(err))
		}
	}
	s.flush()
}

func serve(ctx context.Context, settings *conf.Settings, log logger.Logger) error {
	s, err := newService(ctx, settings, log)
	if err != nil {
		return err
	}
	defer s.close()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", logger.String("listen", settings.WebServer.Listen))
		if err := s.echo.Start(settings.WebServer.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}
