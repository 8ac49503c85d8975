//go:build integration

// Integration tests for the MQTT publishing client against a real
// Mosquitto broker managed by testcontainers.
package mqtt_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actransporte/portal/internal/conf"
	"github.com/actransporte/portal/internal/logger"
	"github.com/actransporte/portal/internal/mqtt"
	"github.com/actransporte/portal/internal/testutil/containers"
)

var mqttBroker *containers.MosquittoContainer

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	mqttBroker, err = containers.NewMosquittoContainer(ctx)
	if err != nil {
		log.Fatalf("failed to start Mosquitto container: %v", err)
	}

	code := m.Run()

	_ = mqttBroker.Terminate(context.Background())
	os.Exit(code)
}

func newBrokerClient(t *testing.T) mqtt.Client {
	t.Helper()

	testLog := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	client, err := mqtt.NewClient(conf.MQTTSettings{
		Enabled:     true,
		Broker:      mqttBroker.BrokerURL(),
		ConnectWait: conf.Duration(10 * time.Second),
	}, testLog)
	require.NoError(t, err)
	t.Cleanup(client.Disconnect)
	return client
}

func TestIntegration_ConnectAndDisconnect(t *testing.T) {
	client := newBrokerClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	require.NoError(t, client.Connect(ctx))
	assert.True(t, client.IsConnected())

	client.Disconnect()
	assert.False(t, client.IsConnected())
}

func TestIntegration_ConnectIsIdempotent(t *testing.T) {
	client := newBrokerClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	require.NoError(t, client.Connect(ctx))
	require.NoError(t, client.Connect(ctx))
	assert.True(t, client.IsConnected())
}

func TestIntegration_PublishReachesSubscriber(t *testing.T) {
	cleanup := containers.NewCleanupManager()
	cleanup.RegisterTestCleanup(t)

	subscriber, err := mqttBroker.Subscriber("portal-test-subscriber")
	require.NoError(t, err)
	cleanup.Add("subscriber", func() error {
		subscriber.Disconnect(250)
		return nil
	})

	topic := "actransporte/rotas/M123"
	received := make(chan []byte, 1)
	token := subscriber.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		select {
		case received <- msg.Payload():
		default:
		}
	})
	require.True(t, token.WaitTimeout(10*time.Second))
	require.NoError(t, token.Error())

	client := newBrokerClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))

	payload, err := json.Marshal(map[string]any{
		"motorista": "Ana",
		"rota":      "ROTA 01",
		"latitude":  -3.1,
		"longitude": -60.0,
		"ativo":     true,
	})
	require.NoError(t, err)
	require.NoError(t, client.Publish(ctx, topic, payload))

	select {
	case got := <-received:
		var record map[string]any
		require.NoError(t, json.Unmarshal(got, &record))
		assert.Equal(t, "ROTA 01", record["rota"])
		assert.Equal(t, "Ana", record["motorista"])
	case <-time.After(10 * time.Second):
		t.Fatal("published sample never reached the subscriber")
	}
}

func TestIntegration_PublishWithoutConnectFails(t *testing.T) {
	client := newBrokerClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := client.Publish(ctx, "actransporte/rotas/M123", []byte("{}"))
	assert.Error(t, err)
}

func TestIntegration_ConcurrentPublishes(t *testing.T) {
	client := newBrokerClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))

	const publishers = 5
	var wg sync.WaitGroup
	errs := make(chan error, publishers)
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			topic := fmt.Sprintf("actransporte/rotas/M%03d", n)
			errs <- client.Publish(ctx, topic, []byte(`{"ativo":true}`))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestIntegration_DisconnectIsIdempotent(t *testing.T) {
	client := newBrokerClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))

	client.Disconnect()
	client.Disconnect()
	assert.False(t, client.IsConnected())
}
