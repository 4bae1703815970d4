package fanout

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSubscriber struct {
	initial []byte
}

func (s staticSubscriber) Subscribe(register func([]byte)) error {
	register(s.initial)
	return nil
}

func dial(t *testing.T, h *Hub, sub Subscriber) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Serve(w, r, sub)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	return string(data)
}

func waitForObservers(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Len() == n }, 5*time.Second, 10*time.Millisecond)
}

func TestHubSendsInitialThenBroadcasts(t *testing.T) {
	h := NewHub(4, nil)
	conn := dial(t, h, staticSubscriber{initial: []byte(`{"type":"initial"}`)})

	assert.Equal(t, `{"type":"initial"}`, readText(t, conn))
	waitForObservers(t, h, 1)

	h.Broadcast([]byte(`{"type":"update","n":1}`))
	h.Broadcast([]byte(`{"type":"update","n":2}`))
	assert.Equal(t, `{"type":"update","n":1}`, readText(t, conn))
	assert.Equal(t, `{"type":"update","n":2}`, readText(t, conn))
}

func TestHubBroadcastReachesEveryObserver(t *testing.T) {
	h := NewHub(4, nil)
	sub := staticSubscriber{initial: []byte(`{}`)}
	a := dial(t, h, sub)
	b := dial(t, h, sub)
	readText(t, a)
	readText(t, b)
	waitForObservers(t, h, 2)

	h.Broadcast([]byte(`{"type":"update"}`))
	assert.Equal(t, `{"type":"update"}`, readText(t, a))
	assert.Equal(t, `{"type":"update"}`, readText(t, b))
}

func TestHubForgetsObserverThatHangsUp(t *testing.T) {
	h := NewHub(4, nil)
	conn := dial(t, h, staticSubscriber{initial: []byte(`{}`)})
	readText(t, conn)
	waitForObservers(t, h, 1)

	require.NoError(t, conn.Close())
	waitForObservers(t, h, 0)

	h.Broadcast([]byte(`{"type":"update"}`))
}

func TestHubDropsObserverWithFullQueue(t *testing.T) {
	h := NewHub(1, nil)
	slow := &client{send: make(chan []byte, 1)}
	fast := &client{send: make(chan []byte, 8)}
	h.clients[slow] = struct{}{}
	h.clients[fast] = struct{}{}

	h.Broadcast([]byte("one"))
	h.Broadcast([]byte("two"))

	assert.Equal(t, 1, h.Len())
	assert.Equal(t, "one", string(<-slow.send))
	_, open := <-slow.send
	assert.False(t, open)
	assert.Len(t, fast.send, 2)
}

func TestHubCloseDisconnectsAndRefusesObservers(t *testing.T) {
	h := NewHub(4, nil)
	conn := dial(t, h, staticSubscriber{initial: []byte(`{}`)})
	readText(t, conn)
	waitForObservers(t, h, 1)

	h.Close()
	assert.Equal(t, 0, h.Len())

	late := dial(t, h, staticSubscriber{initial: []byte(`{}`)})
	require.NoError(t, late.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := late.ReadMessage()
	require.Error(t, err)
}
