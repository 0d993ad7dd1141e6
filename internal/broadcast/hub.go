// Package broadcast implements the WebSocket fan-out layer: a
// client registry keyed by view selection, concurrent view-filtered sends
// with per-client back-pressure handling, and a log-entry batching
// flusher.
package broadcast

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nodewatch/storj-node-monitor/infrastructure/logging"
	"github.com/nodewatch/storj-node-monitor/infrastructure/metrics"
	"github.com/nodewatch/storj-node-monitor/internal/model"
	"github.com/nodewatch/storj-node-monitor/internal/stats"
)

// writeTimeout bounds how long a single client send may take before it is
// considered unresponsive and evicted.
const writeTimeout = 5 * time.Second

// sendBufferSize is each client's outbound queue depth; a client that falls
// this far behind is slow enough to be worth disconnecting rather than
// buffering indefinitely.
const sendBufferSize = 256

// Client is one registered WebSocket session.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	view stats.View

	closeOnce sync.Once
}

// NewClient wraps an established connection, defaulting to the Aggregate
// view until the client sends set_view. Each client gets a random ID so log
// lines from its read pump, write pump, and eviction all correlate.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBufferSize), view: stats.NewView(nil)}
}

// ID returns this connection's correlation ID.
func (c *Client) ID() string { return c.id }

// SetView updates which nodes this client wants to hear about.
func (c *Client) SetView(v stats.View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = v
}

// View returns the client's current view selection.
func (c *Client) View() stats.View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// Conn exposes the underlying connection for the read pump.
func (c *Client) Conn() *websocket.Conn { return c.conn }

// enqueue offers a frame to this client's outbound queue, dropping it and
// reporting false if the client is already backed up to capacity.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// writePump drains the client's outbound queue onto the socket. It is the
// sole goroutine permitted to call WriteMessage on this connection, per
// gorilla/websocket's single-writer requirement. Returns when send is
// closed or a write fails/times out.
func (c *Client) writePump() {
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// Hub is the client registry and broadcast dispatcher.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	log     *logging.Logger
}

// NewHub creates an empty registry.
func NewHub(log *logging.Logger) *Hub {
	return &Hub{clients: make(map[*Client]struct{}), log: log}
}

// Register adds a client and starts its write pump.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	if m := metrics.Global(); m != nil {
		m.SetWebSocketClients(count)
	}
	go c.writePump()
}

// Unregister removes and closes a client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		c.close()
		if m := metrics.Global(); m != nil {
			m.SetWebSocketClients(count)
		}
	}
}

// Count reports the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Frame is the envelope every server→client message is wrapped in.
type Frame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Broadcast delivers a frame to every client whose view matches nodeName.
// An empty nodeName means "every node" — every client receives it
// regardless of their own view. A non-empty nodeName reaches only clients
// whose view is Aggregate or explicitly contains that node. Sends are
// concurrent and a slow/dead client never delays the others; over-capacity
// and write-timeout clients are evicted.
func (h *Hub) Broadcast(frameType string, payload interface{}, nodeName string) error {
	body, err := json.Marshal(Frame{Type: frameType, Payload: payload})
	if err != nil {
		return err
	}

	h.mu.RLock()
	recipients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if nodeName == "" || c.View().Contains(nodeName) {
			recipients = append(recipients, c)
		}
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	var failures int64
	for _, c := range recipients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			if !c.enqueue(body) {
				atomic.AddInt64(&failures, 1)
				if h.log != nil {
					h.log.Warn(nil, "client send buffer full, evicting", map[string]interface{}{"client_id": c.ID()})
				}
				h.Unregister(c)
			}
		}(c)
	}
	wg.Wait()

	if m := metrics.Global(); m != nil {
		m.RecordBroadcast(frameType, int(atomic.LoadInt64(&failures)))
	}
	return nil
}

// BroadcastAlert implements alert.Broadcaster without importing the alert
// package, wrapping the alert in a new_alert frame scoped to its node.
func (h *Hub) BroadcastAlert(nodeName string, a model.Alert) {
	_ = h.Broadcast("new_alert", a, nodeName)
}

// SendTo delivers a frame to exactly one client, regardless of its view —
// used for request/response frames (e.g. get_storage_data) rather than
// fan-out broadcasts.
func (h *Hub) SendTo(c *Client, frameType string, payload interface{}) error {
	body, err := json.Marshal(Frame{Type: frameType, Payload: payload})
	if err != nil {
		return err
	}
	if !c.enqueue(body) {
		if h.log != nil {
			h.log.Warn(nil, "client send buffer full, evicting", map[string]interface{}{"client_id": c.ID()})
		}
		h.Unregister(c)
	}
	return nil
}
