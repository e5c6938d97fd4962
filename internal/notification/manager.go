package notification

import (
	"context"
	"fmt"

	"github.com/fleetwatch/fleetwatch/internal/conf"
	"github.com/fleetwatch/fleetwatch/internal/datastore/repository"
	"github.com/fleetwatch/fleetwatch/internal/logger"
)

// ServiceConfig holds what NewService needs.
type ServiceConfig struct {
	Settings conf.NotificationSettings
	// LogRepo enables the condition log recorder when set.
	LogRepo repository.ConditionLogRepository
	Metrics Metrics
}

// Service owns the notification bus and the handlers subscribed to it.
type Service struct {
	bus      *Bus
	stream   *Stream
	recorder *Recorder
	mqtt     *MQTTPublisher
	log      logger.Logger
}

// NewService creates the bus with its live stream, subscribes the configured
// handlers and starts condition log retention. A failed MQTT connection is
// returned as an error after the bus has been stopped.
func NewService(ctx context.Context, cfg *ServiceConfig, log logger.Logger) (*Service, error) {
	s := &Service{
		bus: NewBus(cfg.Settings.BufferSize, cfg.Metrics, log),
		log: log.Module("notification"),
	}
	s.stream = NewStream(cfg.Metrics)
	s.bus.Subscribe(s.stream)

	if cfg.LogRepo != nil {
		s.recorder = NewRecorder(cfg.LogRepo, log)
		s.bus.Subscribe(s.recorder)
		s.recorder.StartRetentionCleanup(cfg.Settings.RetentionPeriod(), 0)
	}

	if cfg.Settings.MQTT.Enabled {
		pub, err := NewMQTTPublisher(cfg.Settings.MQTT, log)
		if err != nil {
			s.Stop()
			return nil, fmt.Errorf("failed to create mqtt publisher: %w", err)
		}
		if err := pub.Connect(ctx); err != nil {
			s.Stop()
			return nil, err
		}
		s.mqtt = pub
		s.bus.Subscribe(pub)
	}

	s.log.Info("notification service started",
		logger.Bool("condition_log", s.recorder != nil),
		logger.Bool("mqtt", s.mqtt != nil))
	return s, nil
}

// Bus returns the bus; it is the alert condition cache's sink.
func (s *Service) Bus() *Bus { return s.bus }

// Stream returns the live fan-out used by streaming clients.
func (s *Service) Stream() *Stream { return s.stream }

// Subscribe adds an extra handler to the bus.
func (s *Service) Subscribe(h Handler) { s.bus.Subscribe(h) }

// Stop drains the bus, then stops retention cleanup and disconnects from the broker.
func (s *Service) Stop() {
	s.bus.Stop()
	if s.recorder != nil {
		s.recorder.Stop()
	}
	if s.mqtt != nil {
		s.mqtt.Close()
	}
}
