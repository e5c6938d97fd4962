//go:build integration

//nolint:misspell // Mosquitto is the official Eclipse project name
package notification

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwatch/fleetwatch/internal/conf"
	"github.com/fleetwatch/fleetwatch/internal/testutil/containers"
)

var mqttBroker *containers.MosquittoContainer

func TestMain(m *testing.M) {
	var err error
	mqttBroker, err = containers.NewMosquittoContainer(context.Background(), "")
	if err != nil {
		panic("failed to create MQTT broker: " + err.Error())
	}

	code := m.Run()

	_ = mqttBroker.Terminate(context.Background())
	os.Exit(code)
}

func TestMQTTIntegration_BusToBroker(t *testing.T) {
	brokerURL := mqttBroker.GetBrokerURL(t)

	received := make(chan paho.Message, 4)
	sub, err := mqttBroker.CreateClient("fleetwatch-it-sub")
	require.NoError(t, err)
	t.Cleanup(func() { sub.Disconnect(250) })
	token := sub.Subscribe("fleetwatch-it/#", 1, func(_ paho.Client, msg paho.Message) {
		received <- msg
	})
	require.True(t, token.WaitTimeout(10*time.Second), "subscribe timeout")
	require.NoError(t, token.Error())

	pub, err := NewMQTTPublisher(conf.MQTTSettings{
		Broker:         brokerURL,
		Topic:          "fleetwatch-it",
		ClientID:       "fleetwatch-it-pub",
		QoS:            1,
		ConnectTimeout: conf.Duration(10 * time.Second),
	}, testLogger())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(t.Context(), 15*time.Second)
	defer cancel()
	require.NoError(t, pub.Connect(ctx))
	t.Cleanup(pub.Close)

	bus := NewBus(4, nil, testLogger())
	bus.Subscribe(pub)
	require.NoError(t, bus.Activate(21, time.Now(), 99.0, "threshold exceeded"))
	bus.Stop()

	select {
	case msg := <-received:
		assert.Equal(t, "fleetwatch-it/activate/21", msg.Topic())
		var payload map[string]any
		require.NoError(t, json.Unmarshal(msg.Payload(), &payload))
		assert.Equal(t, "99", payload["value"])
		assert.Equal(t, "threshold exceeded", payload["detail"])
	case <-time.After(10 * time.Second):
		t.Fatal("no message received from broker")
	}
}
