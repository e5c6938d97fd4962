package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/fleetwatch/fleetwatch/internal/conf"
	"github.com/fleetwatch/fleetwatch/internal/errors"
	"github.com/fleetwatch/fleetwatch/internal/logger"
)

const (
	defaultMQTTTopic          = "fleetwatch/alerts"
	defaultMQTTConnectTimeout = 10 * time.Second
	publishTimeout            = 5 * time.Second
	disconnectQuiesceMillis   = 250
)

// MQTTPublisher publishes notifications as JSON to
// <topic>/<activate|deactivate>/<condition id>.
type MQTTPublisher struct {
	client         paho.Client
	topic          string
	qos            byte
	connectTimeout time.Duration
	log            logger.Logger
}

// mqttPayload is the wire format of a published notification.
type mqttPayload struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	ConditionID uint      `json:"conditionId"`
	Timestamp   time.Time `json:"timestamp"`
	Value       string    `json:"value,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

// NewMQTTPublisher creates a publisher for the configured broker. Call Connect before use.
func NewMQTTPublisher(settings conf.MQTTSettings, log logger.Logger) (*MQTTPublisher, error) {
	if settings.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is not configured")
	}
	clientID := settings.ClientID
	if clientID == "" {
		clientID = "fleetwatch-" + uuid.NewString()[:8]
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(settings.Broker)
	opts.SetClientID(clientID)
	opts.SetUsername(settings.Username)
	opts.SetPassword(settings.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)

	p := newMQTTPublisher(nil, settings, log)
	opts.SetConnectTimeout(p.connectTimeout)
	opts.SetOnConnectHandler(func(paho.Client) {
		p.log.Info("connected to mqtt broker", logger.String("broker", settings.Broker))
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.log.Warn("mqtt connection lost", logger.String("broker", settings.Broker), logger.Error(err))
	})
	p.client = paho.NewClient(opts)
	return p, nil
}

func newMQTTPublisher(client paho.Client, settings conf.MQTTSettings, log logger.Logger) *MQTTPublisher {
	topic := strings.TrimSuffix(settings.Topic, "/")
	if topic == "" {
		topic = defaultMQTTTopic
	}
	timeout := settings.ConnectTimeout.Std()
	if timeout <= 0 {
		timeout = defaultMQTTConnectTimeout
	}
	return &MQTTPublisher{
		client:         client,
		topic:          topic,
		qos:            settings.QoS,
		connectTimeout: timeout,
		log:            log.Module("mqtt"),
	}
}

// Connect opens the broker connection.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	if err := waitToken(ctx, p.client.Connect(), p.connectTimeout); err != nil {
		return errors.New(fmt.Errorf("failed to connect to mqtt broker: %w", err)).
			Component("notification").
			Category(errors.CategoryNetwork).
			Build()
	}
	return nil
}

// Name implements Handler.
func (p *MQTTPublisher) Name() string { return "mqtt" }

// Topic returns the topic a notification is published to.
func (p *MQTTPublisher) Topic(n *Notification) string {
	return fmt.Sprintf("%s/%s/%d", p.topic, n.Kind, n.ConditionID)
}

// Handle implements Handler.
func (p *MQTTPublisher) Handle(ctx context.Context, n *Notification) error {
	if !p.client.IsConnectionOpen() {
		return fmt.Errorf("mqtt client is not connected")
	}
	payload, err := json.Marshal(mqttPayload{
		ID:          n.ID,
		Kind:        n.Kind,
		ConditionID: n.ConditionID,
		Timestamp:   n.Timestamp,
		Value:       n.ValueString(),
		Detail:      n.Detail,
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := waitToken(ctx, p.client.Publish(p.Topic(n), p.qos, false, payload), publishTimeout); err != nil {
		return errors.New(fmt.Errorf("failed to publish notification: %w", err)).
			Component("notification").
			Category(errors.CategoryNotification).
			Context("condition_id", n.ConditionID).
			Context("topic", p.Topic(n)).
			Build()
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiesceMillis)
	}
}

func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
