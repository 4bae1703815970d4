// Package fanout pushes ledger snapshots to websocket observers. Each
// observer owns a bounded queue; one that falls behind is dropped without
// holding up the others.
package fanout

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"boardbank/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 1024

	dropQueueFull   = "queue_full"
	dropWriteFailed = "write_failed"
	dropShutdown    = "shutdown"
	dropClosed      = "closed"
)

// Subscriber hands register the current state while no update can be
// broadcast, then returns.
type Subscriber interface {
	Subscribe(register func(initial []byte)) error
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type Hub struct {
	log      *slog.Logger
	queue    int
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub(queue int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if queue <= 0 {
		queue = 16
	}
	return &Hub{
		log:   logger,
		queue: queue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Observers are read-only: inbound frames are discarded, so any
			// origin may watch.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Broadcast queues msg for every observer. It never blocks.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.removeLocked(c, dropQueueFull)
		}
	}
}

// Len reports the number of connected observers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every observer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c, dropShutdown)
	}
}

// Serve upgrades the request and streams messages until the observer goes
// away. The first message is the initial state from sub.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sub Subscriber) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Info("websocket upgrade failed", "err", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, h.queue)}

	joined := false
	err = sub.Subscribe(func(initial []byte) {
		c.send <- initial
		joined = h.add(c)
	})
	if err != nil || !joined {
		if err != nil {
			h.log.Error("subscribe observer", "err", err)
		}
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	metrics.ObserverConnected()
	h.log.Info("observer connected", "remote", c.remoteAddr(), "observers", len(h.clients))
	return true
}

func (h *Hub) remove(c *client, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c, reason)
}

// removeLocked is a no-op for an observer that is already gone. Closing send
// makes the writer emit a close frame and hang up.
func (h *Hub) removeLocked(c *client, reason string) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.ObserverDisconnected()
	if reason != dropClosed {
		metrics.RecordObserverDrop(reason)
	}
	h.log.Info("observer disconnected", "remote", c.remoteAddr(), "reason", reason, "observers", len(h.clients))
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c, dropWriteFailed)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c, dropWriteFailed)
				return
			}
		}
	}
}

// readPump discards inbound frames; it exists to process control frames and
// notice when the peer goes away.
func (h *Hub) readPump(c *client) {
	defer h.remove(c, dropClosed)
	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) remoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}
