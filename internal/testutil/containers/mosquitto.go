//go:build integration

//nolint:misspell // Mosquitto is the official Eclipse project name
package containers

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// mosquittoConfig allows anonymous clients on the default listener.
const mosquittoConfig = `listener 1883
allow_anonymous true
persistence false
`

// MosquittoContainer wraps a testcontainers Eclipse Mosquitto broker.
type MosquittoContainer struct {
	container testcontainers.Container
	brokerURL string
}

// NewMosquittoContainer starts a Mosquitto broker. An empty imageTag uses "2.0".
func NewMosquittoContainer(ctx context.Context, imageTag string) (*MosquittoContainer, error) {
	if imageTag == "" {
		imageTag = "2.0"
	}

	container, err := testcontainers.Run(ctx, "eclipse-mosquitto:"+imageTag,
		testcontainers.WithExposedPorts("1883/tcp"),
		testcontainers.WithCmd("mosquitto", "-c", "/mosquitto-test.conf"),
		testcontainers.WithFiles(testcontainers.ContainerFile{
			Reader:            strings.NewReader(mosquittoConfig),
			ContainerFilePath: "/mosquitto-test.conf",
			FileMode:          0o644,
		}),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("1883/tcp").WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start Mosquitto container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "1883/tcp")
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	mc := &MosquittoContainer{
		container: container,
		brokerURL: "tcp://" + net.JoinHostPort(host, port.Port()),
	}
	client, err := mc.CreateClient("healthcheck")
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	client.Disconnect(250)
	return mc, nil
}

// GetBrokerURL returns the broker URL (e.g., "tcp://localhost:32768").
func (c *MosquittoContainer) GetBrokerURL(t *testing.T) string {
	t.Helper()
	if c.brokerURL == "" {
		t.Fatal("broker URL is empty")
	}
	return c.brokerURL
}

// CreateClient connects a new client to the broker. The caller disconnects it.
func (c *MosquittoContainer) CreateClient(clientID string, opts ...func(*mqtt.ClientOptions)) (mqtt.Client, error) {
	mqttOpts := mqtt.NewClientOptions()
	mqttOpts.AddBroker(c.brokerURL)
	mqttOpts.SetClientID(clientID)
	mqttOpts.SetConnectTimeout(10 * time.Second)
	mqttOpts.SetAutoReconnect(false)
	for _, opt := range opts {
		opt(mqttOpts)
	}

	client := mqtt.NewClient(mqttOpts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect timeout for client %s", clientID)
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect client: %w", token.Error())
	}
	return client, nil
}

// Terminate stops and removes the container.
func (c *MosquittoContainer) Terminate(ctx context.Context) error {
	if c.container == nil {
		return nil
	}
	if err := c.container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate container: %w", err)
	}
	return nil
}
