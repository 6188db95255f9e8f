package broadcast

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blackmichael/journal/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := domain.Session{ID: r.URL.Query().Get("session"), Role: domain.RoleViewer}
		_ = hub.ServeWS(w, r, sess)
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?session=" + session
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEvents forwards received messages until the connection fails.
func readEvents(conn *websocket.Conn) <-chan []byte {
	ch := make(chan []byte, 8)
	go func() {
		defer close(ch)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case ch <- msg:
			default:
			}
		}
	}()
	return ch
}

func receive(t *testing.T, events <-chan []byte) []byte {
	t.Helper()
	select {
	case msg, ok := <-events:
		require.True(t, ok, "connection closed before a message arrived")
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("no broadcast received")
		return nil
	}
}

func testPost() domain.Post {
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	return domain.Post{
		ID:        "01JNHS3Q7E2V3M5YB0Z1X2C3D4",
		Text:      "hello",
		Timestamp: now.Format(domain.DisplayDateLayout),
		CreatedAt: now,
	}
}

func TestHub_BroadcastReachesSubscriber(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "s1")
	events := readEvents(conn)

	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.PostCreated(context.Background(), testPost())
	msg := receive(t, events)

	ev, err := ParseEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, TypePostCreated, ev.Type)
	assert.Equal(t, "hello", ev.Post.Text)
	assert.Equal(t, testPost().ID, ev.Post.ID)
	assert.True(t, testPost().CreatedAt.Equal(ev.Post.CreatedAt))
}

func TestHub_BackToBackPostsAllArrive(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "s1")
	events := readEvents(conn)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	for round := 0; round < 10; round++ {
		first, second := testPost(), testPost()
		first.Text = fmt.Sprintf("first %d", round)
		second.Text = fmt.Sprintf("second %d", round)
		hub.PostCreated(context.Background(), first)
		hub.PostCreated(context.Background(), second)

		for _, want := range []string{first.Text, second.Text} {
			ev, err := ParseEvent(receive(t, events))
			require.NoError(t, err)
			assert.Equal(t, want, ev.Post.Text)
		}
	}
}

func TestHub_FullBufferSkipsSubscriber(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	sub := &subscriber{id: 1, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	hub.subs[sub.id] = sub

	for i := 0; i < sendBuffer+5; i++ {
		assert.NotPanics(t, func() { hub.PostCreated(context.Background(), testPost()) })
	}
	assert.Len(t, sub.send, sendBuffer)
}

func TestHub_NoReplayForLateSubscribers(t *testing.T) {
	hub, srv := startHub(t)

	first := dial(t, srv, "s1")
	firstEvents := readEvents(first)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.PostCreated(context.Background(), testPost())
	receive(t, firstEvents)

	late := dial(t, srv, "s2")
	lateEvents := readEvents(late)
	require.Eventually(t, func() bool { return hub.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	select {
	case msg := <-lateEvents:
		t.Fatalf("late subscriber got %s", msg)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestHub_BroadcastWithoutSubscribers(t *testing.T) {
	hub, _ := startHub(t)
	assert.NotPanics(t, func() { hub.PostCreated(context.Background(), testPost()) })
	assert.Zero(t, hub.Count())
}

func TestHub_DropSession(t *testing.T) {
	hub, srv := startHub(t)

	a := dial(t, srv, "a")
	aEvents := readEvents(a)
	b := dial(t, srv, "b")
	bEvents := readEvents(b)
	require.Eventually(t, func() bool { return hub.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, hub.DropSession("a"))
	assert.Zero(t, hub.DropSession(""))

	select {
	case _, ok := <-aEvents:
		assert.False(t, ok, "dropped subscriber should be disconnected")
	case <-time.After(2 * time.Second):
		t.Fatal("dropped subscriber still connected")
	}
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.PostCreated(context.Background(), testPost())
	msg := receive(t, bEvents)
	assert.Contains(t, string(msg), TypePostCreated)
}

func TestHub_CloseDisconnectsAndRejects(t *testing.T) {
	hub, srv := startHub(t)

	conn := dial(t, srv, "s1")
	events := readEvents(conn)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Zero(t, hub.Count())

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber not disconnected on close")
	}

	late := dial(t, srv, "s2")
	_, _, err := late.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestParseEvent(t *testing.T) {
	_, err := ParseEvent([]byte(`{"post":{}}`))
	assert.Error(t, err)

	_, err = ParseEvent([]byte(`not json`))
	assert.Error(t, err)

	ev, err := ParseEvent([]byte(`{"type":"other"}`))
	require.NoError(t, err)
	assert.Equal(t, "other", ev.Type)
}
