// Package mqtt provides the portal's MQTT publishing client, used to fan
// live-route position samples out to external consumers (fleet dashboards,
// stop displays).
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/actransporte/portal/internal/conf"
	"github.com/actransporte/portal/internal/errors"
	"github.com/actransporte/portal/internal/logger"
)

const (
	// disconnectQuiesceMs is how long Disconnect waits for in-flight
	// messages before dropping the connection.
	disconnectQuiesceMs = 250
	// defaultConnectWait bounds Connect when no value is configured.
	defaultConnectWait = 10 * time.Second
	// publishQoS is at-least-once: position records are idempotent upserts
	// keyed by driver, so duplicates collapse on the consumer side.
	publishQoS = 1
)

// Client is the publishing interface the broadcast sink consumes.
type Client interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Publish(ctx context.Context, topic string, payload []byte) error
	Disconnect()
}

type client struct {
	settings conf.MQTTSettings
	log      logger.Logger

	mu   sync.Mutex
	conn paho.Client
}

// NewClient creates an MQTT client from settings. The connection is opened
// by Connect, not here.
func NewClient(settings conf.MQTTSettings, log logger.Logger) (Client, error) {
	if settings.Broker == "" {
		return nil, errors.Newf("mqtt broker not configured").
			Component("mqtt").
			Category(errors.CategoryConfig).
			Build()
	}
	return &client{settings: settings, log: log}, nil
}

// Connect establishes the broker connection, bounded by the configured
// connect wait or ctx, whichever ends first.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.settings.Broker)
	opts.SetClientID(fmt.Sprintf("portal-%d", time.Now().UnixNano()))
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	if c.settings.Username != "" {
		opts.SetUsername(c.settings.Username)
		opts.SetPassword(c.settings.Password)
	}
	opts.SetOnConnectHandler(func(paho.Client) {
		c.log.Info("mqtt connected", logger.String("broker", c.settings.Broker))
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.log.Warn("mqtt connection lost", logger.Error(err))
	})

	conn := paho.NewClient(opts)
	token := conn.Connect()

	wait := c.settings.ConnectWait.Std()
	if wait <= 0 {
		wait = defaultConnectWait
	}
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < wait {
			wait = until
		}
	}
	if !token.WaitTimeout(wait) {
		return errors.Newf("mqtt connect timed out after %s", wait).
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Context("broker", c.settings.Broker).
			Build()
	}

	c.conn = conn
	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Publish sends one payload, bounded by ctx.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || !conn.IsConnected() {
		return errors.Newf("mqtt not connected").
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Build()
	}

	token := conn.Publish(topic, publishQoS, false, payload)
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Context("topic", topic).
			Build()
	}
	return nil
}

// Disconnect closes the broker connection after a short quiesce.
func (c *client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Disconnect(disconnectQuiesceMs)
	}
}
