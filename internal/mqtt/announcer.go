// Package mqtt mirrors newly created posts onto an MQTT topic.
//
// Each post is published once, QoS 0 and not retained, as the same JSON event
// the websocket channel sends. The announcer never blocks or fails a write:
// while the broker is unreachable posts are dropped and logged.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/oklog/ulid/v2"

	"github.com/blackmichael/journal/internal/broadcast"
	"github.com/blackmichael/journal/internal/domain"
)

// Compile-time interface check.
var _ domain.PostListener = (*Announcer)(nil)

const (
	// DefaultTopic is the topic posts are published to.
	DefaultTopic = "journal/posts"

	connectTimeout = 30 * time.Second
	publishTimeout = 10 * time.Second
)

// Config holds the configuration for an Announcer.
type Config struct {
	// Broker is the MQTT broker URL (e.g., "tcp://broker.example.com:1883").
	Broker string
	// Username for MQTT authentication. Leave empty if not required.
	Username string
	// Password for MQTT authentication. Leave empty if not required.
	Password string
	// UseTLS enables TLS for the MQTT connection.
	UseTLS bool
	// ClientID is the MQTT client identifier. If empty, one is generated.
	ClientID string
	// Topic is the topic posts are published to (default: "journal/posts").
	Topic string
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Announcer publishes created posts to MQTT.
type Announcer struct {
	cfg       Config
	client    paho.Client
	log       *slog.Logger
	mu        sync.RWMutex
	connected bool
}

// New creates an Announcer. It does not connect until Start.
func New(cfg Config) *Announcer {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Announcer{
		cfg: cfg,
		log: cfg.Logger.WithGroup("mqtt"),
	}
}

// Start connects to the broker. The client keeps reconnecting on its own
// after the first successful connection.
func (a *Announcer) Start(ctx context.Context) error {
	if a.cfg.Broker == "" {
		return errors.New("broker URL is required")
	}

	clientID := a.cfg.ClientID
	if clientID == "" {
		clientID = "journal-" + ulid.Make().String()
	}

	opts := paho.NewClientOptions().
		AddBroker(a.cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(2 * time.Minute).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetOnConnectHandler(a.onConnected).
		SetConnectionLostHandler(a.onConnectionLost).
		SetReconnectingHandler(a.onReconnecting)

	if a.cfg.Username != "" {
		opts.SetUsername(a.cfg.Username)
	}
	if a.cfg.Password != "" {
		opts.SetPassword(a.cfg.Password)
	}
	if a.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	client := paho.NewClient(opts)
	a.mu.Lock()
	a.client = client
	a.mu.Unlock()

	token := client.Connect()
	timer := time.NewTimer(connectTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		return errors.New("connection timeout")
	case <-ctx.Done():
		client.Disconnect(250)
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

// Stop disconnects from the broker.
func (a *Announcer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		a.client.Disconnect(1000)
		a.connected = false
	}
}

// IsConnected reports whether the broker connection is up.
func (a *Announcer) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected && a.client != nil && a.client.IsConnected()
}

// Topic returns the topic posts are published to.
func (a *Announcer) Topic() string {
	return a.cfg.Topic
}

// PostCreated publishes the post. The publish completes in the background.
func (a *Announcer) PostCreated(_ context.Context, post domain.Post) {
	if !a.IsConnected() {
		a.log.Debug("not connected, post not announced", "id", post.ID)
		return
	}

	payload, err := broadcast.EncodePostCreated(post)
	if err != nil {
		a.log.Error("encode post failed", "id", post.ID, "error", err)
		return
	}

	a.mu.RLock()
	token := a.client.Publish(a.cfg.Topic, 0, false, payload)
	a.mu.RUnlock()

	go func() {
		if !token.WaitTimeout(publishTimeout) {
			a.log.Warn("timeout publishing post", "id", post.ID)
			return
		}
		if err := token.Error(); err != nil {
			a.log.Error("publish post failed", "id", post.ID, "error", err)
		}
	}()
}

func (a *Announcer) onConnected(_ paho.Client) {
	a.mu.Lock()
	a.connected = true
	a.mu.Unlock()

	a.log.Info("connected to MQTT broker", "broker", a.cfg.Broker, "topic", a.cfg.Topic)
}

func (a *Announcer) onConnectionLost(_ paho.Client, err error) {
	a.mu.Lock()
	a.connected = false
	a.mu.Unlock()

	a.log.Error("MQTT connection lost", "error", err)
}

func (a *Announcer) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	a.log.Info("reconnecting to MQTT broker")
}
