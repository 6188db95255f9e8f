// Package broadcast pushes newly created posts to connected websocket
// clients.
//
// Delivery is at most once. Each subscriber has a small outbound buffer; a
// subscriber whose buffer is full is skipped for that message. Nothing is
// replayed to later subscribers, so clients re-fetch the first page whenever
// they (re)connect.
package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blackmichael/journal/internal/domain"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512

	// sendBuffer is how many messages may wait for a subscriber's writer.
	sendBuffer = 16
)

// ErrClosed is returned by ServeWS after Close.
var ErrClosed = errors.New("broadcast hub closed")

type subscriber struct {
	id      uint64
	session string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// Hub is the live subscriber registry.
type Hub struct {
	mu       sync.RWMutex
	subs     map[uint64]*subscriber
	nextID   uint64
	closed   bool
	wg       sync.WaitGroup
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[uint64]*subscriber),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ServeWS upgrades the request and serves the subscriber until the
// connection ends. The caller has already checked the session.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sess domain.Session) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return err
	}

	sub, err := h.register(conn, sess)
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return err
	}
	defer h.wg.Done()

	h.logger.Info("subscriber connected", "subscriber", sub.id, "session", sess.ID, "subscribers", h.Count())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(sub)
	}()

	h.readLoop(sub)

	h.unregister(sub)
	sub.stop()
	<-writerDone
	conn.Close()

	h.logger.Info("subscriber disconnected", "subscriber", sub.id, "subscribers", h.Count())
	return nil
}

func (h *Hub) register(conn *websocket.Conn, sess domain.Session) (*subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	h.nextID++
	sub := &subscriber{
		id:      h.nextID,
		session: sess.ID,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
	}
	h.subs[sub.id] = sub
	h.wg.Add(1)
	return sub, nil
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub.id)
	h.mu.Unlock()
}

// readLoop discards client messages and keeps the read deadline moving
// while pongs arrive. It returns when the connection fails or is closed.
func (h *Hub) readLoop(sub *subscriber) {
	conn := sub.conn
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("subscriber read failed", "subscriber", sub.id, "error", err)
			}
			return
		}
	}
}

// writeLoop is the only goroutine writing data frames to the connection.
func (h *Hub) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-sub.done:
			return
		case msg := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("subscriber write failed", "subscriber", sub.id, "error", err)
				sub.conn.Close()
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sub.conn.Close()
				return
			}
		}
	}
}

// PostCreated queues the post for every subscriber with room in its buffer.
// It never blocks on a subscriber and never fails.
func (h *Hub) PostCreated(_ context.Context, post domain.Post) {
	msg, err := EncodePostCreated(post)
	if err != nil {
		h.logger.Error("encode broadcast failed", "id", post.ID, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var delivered, skipped int
	for _, sub := range h.subs {
		select {
		case sub.send <- msg:
			delivered++
		default:
			skipped++
		}
	}
	h.logger.Debug("post broadcast", "id", post.ID, "delivered", delivered, "skipped", skipped)
}

// DropSession disconnects every subscriber opened with the given session.
func (h *Hub) DropSession(sessionID string) int {
	if sessionID == "" {
		return 0
	}

	h.mu.RLock()
	var victims []*subscriber
	for _, sub := range h.subs {
		if sub.session == sessionID {
			victims = append(victims, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range victims {
		disconnect(sub, websocket.ClosePolicyViolation, "session ended")
	}
	if len(victims) > 0 {
		h.logger.Info("session subscribers dropped", "session", sessionID, "count", len(victims))
	}
	return len(victims)
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects all subscribers, waits for their goroutines to finish
// and rejects later connections.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		disconnect(sub, websocket.CloseGoingAway, "server shutting down")
	}
	h.wg.Wait()
}

// disconnect sends a close frame and closes the connection, which ends the
// subscriber's read loop.
func disconnect(sub *subscriber, code int, reason string) {
	sub.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait))
	sub.conn.Close()
}
