// Package mqtt publishes decoded telemetry updates to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Options configures a Publisher.
type Options struct {
	// BrokerURL is the broker address, e.g. "tcp://localhost:1883".
	BrokerURL string

	// ClientID identifies this client to the broker. Defaults to
	// "joyc-<pid>" when empty.
	ClientID string

	// Topic receives the published updates.
	Topic string
}

// Publisher is a connection-tracking MQTT publisher. The underlying paho
// client reconnects on its own; Publish fails fast while the link is down.
type Publisher struct {
	logger *logrus.Logger
	client mqtt.Client
	topic  string

	mu        sync.RWMutex
	connected bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewPublisher creates a publisher for the given broker and topic.
func NewPublisher(opts *Options, logger *logrus.Logger) (*Publisher, error) {
	if opts == nil || opts.BrokerURL == "" {
		return nil, fmt.Errorf("broker URL is required")
	}
	if opts.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	clientID := opts.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("joyc-%d", os.Getpid())
	}

	p := &Publisher{
		topic:  opts.Topic,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(clientID)

	clientOpts.SetCleanSession(true)

	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectRetry(true)
	clientOpts.SetConnectRetryInterval(5 * time.Second)
	clientOpts.SetMaxReconnectInterval(60 * time.Second)

	clientOpts.SetKeepAlive(30 * time.Second)
	clientOpts.SetPingTimeout(10 * time.Second)

	// Callbacks keep internal state accurate
	clientOpts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		logger.WithFields(logrus.Fields{
			"broker": opts.BrokerURL,
			"topic":  opts.Topic,
		}).Info("MQTT connected")
	})

	clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		logger.WithError(err).Warn("MQTT connection lost")
	})

	p.client = mqtt.NewClient(clientOpts)
	return p, nil
}

// Connect establishes the broker connection. It waits for the initial
// connection and respects ctx and Disconnect().
func (p *Publisher) Connect(ctx context.Context) error {
	// Fail fast if already stopped
	select {
	case <-p.stopCh:
		return fmt.Errorf("publisher stopped")
	default:
	}

	if p.IsConnected() {
		return nil
	}

	// With ConnectRetry(true) the token may keep retrying internally
	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for !token.WaitTimeout(poll) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return fmt.Errorf("publisher stopped")
		default:
		}
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	// OnConnectHandler sets connected=true
	return nil
}

// Publish serializes payload as JSON and publishes it to the configured topic
// at QoS 1.
func (p *Publisher) Publish(payload any) error {
	if !p.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	token := p.client.Publish(p.topic, 1, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout for topic %s", p.topic)
	}
	if token.Error() != nil {
		p.logger.WithFields(logrus.Fields{
			"topic": p.topic,
			"error": token.Error(),
		}).Error("Failed to publish update")
		return fmt.Errorf("publish update: %w", token.Error())
	}

	p.logger.WithField("topic", p.topic).Debug("Published update")
	return nil
}

// IsConnected returns whether the client is connected.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect stops the publisher and closes the broker connection.
// Idempotent. After Disconnect, Connect() returns an error.
func (p *Publisher) Disconnect() {
	// Signal shutdown once, unblocking any Connect loops
	p.stopOnce.Do(func() { close(p.stopCh) })

	// Paho quiesces in-flight work for the given ms
	if p.client != nil {
		p.client.Disconnect(250)
	}

	p.setConnected(false)
	p.logger.Info("MQTT disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
