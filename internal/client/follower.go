package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blackmichael/journal/internal/api"
	"github.com/blackmichael/journal/internal/broadcast"
	"github.com/blackmichael/journal/internal/domain"
)

// DefaultReconnectDelay is the fixed wait between live channel connections.
const DefaultReconnectDelay = 3 * time.Second

// Follower keeps a live view of the journal. On every (re)connect it
// re-fetches the first page, because posts broadcast while it was
// disconnected are never replayed.
type Follower struct {
	client *Client
	delay  time.Duration
	logger *slog.Logger

	// OnPage receives the first page after each connect.
	OnPage func(*api.PageResponse)

	// OnPost receives posts broadcast while connected.
	OnPost func(domain.Post)
}

// NewFollower creates a follower using the client's session. A delay of
// zero or less selects DefaultReconnectDelay.
func (c *Client) NewFollower(delay time.Duration, logger *slog.Logger) *Follower {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &Follower{
		client: c,
		delay:  delay,
		logger: logger,
	}
}

// Start follows the live channel until the context is cancelled. It
// reconnects after every failure.
func (f *Follower) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := f.follow(ctx); err != nil && ctx.Err() == nil {
				f.logger.Error("live connection error, reconnecting", "error", err, "delay", f.delay)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.delay):
				// backoff before reconnecting
			}
		}
	}
}

func (f *Follower) follow(ctx context.Context) error {
	wsURL := f.client.WebSocketURL()
	f.logger.Info("connecting to live channel", "url", wsURL)

	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: 10 * time.Second,
		Jar:              f.client.jar,
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial live channel: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial live channel: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	f.logger.Info("connected to live channel")

	page, err := f.client.Posts(ctx, 1)
	if err != nil {
		return err
	}
	if f.OnPage != nil {
		f.OnPage(page)
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		event, err := broadcast.ParseEvent(message)
		if err != nil {
			f.logger.Error("failed to parse event", "error", err)
			continue
		}
		if event.Type != broadcast.TypePostCreated {
			f.logger.Debug("ignoring event", "type", event.Type)
			continue
		}
		if f.OnPost != nil {
			f.OnPost(event.Post)
		}
	}
}
