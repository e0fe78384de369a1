// Package ws implements the WebSocket hub that streams review lifecycle
// events to connected dashboards.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Message is the envelope for every frame sent to dashboard clients.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// sendQueueSize bounds the per-client backlog. A client that falls this far
// behind is disconnected rather than allowed to stall the hub.
const sendQueueSize = 32

// writeTimeout caps a single frame write.
const writeTimeout = 5 * time.Second

// conn is one subscribed client with its outbound queue.
type conn struct {
	ws   *websocket.Conn
	send chan []byte
}

// Hub fans review lifecycle events out to connected clients. Broadcasts
// never block: each connection drains its own queue on a writer goroutine.
type Hub struct {
	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[*conn]struct{})}
}

// HandleWS upgrades the request and subscribes the client until it
// disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept", "error", err)
		return
	}

	c := &conn{ws: ws, send: make(chan []byte, sendQueueSize)}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	slog.Info("websocket connected", "remote", r.RemoteAddr)

	go h.writeLoop(c)

	// Reads surface disconnects and consume control frames. The feed is
	// one-way, so inbound data frames are discarded.
	for {
		if _, _, err := ws.Read(r.Context()); err != nil {
			break
		}
	}
	h.drop(c)
}

func (h *Hub) writeLoop(c *conn) {
	for data := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.ws.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			h.drop(c)
			return
		}
	}
	_ = c.ws.Close(websocket.StatusNormalClosure, "")
}

// Broadcast queues msg for every client. Clients whose queue is full are
// dropped so one stalled reader cannot hold up the rest.
func (h *Hub) Broadcast(_ context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal", "error", err)
		return
	}

	var stalled []*conn
	h.mu.RLock()
	for c := range h.conns {
		select {
		case c.send <- data:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stalled {
		slog.Warn("websocket client too slow, dropping")
		h.drop(c)
	}
}

// ConnectionCount reports the number of subscribed clients.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// drop unsubscribes c and closes its queue; the writer goroutine finishes
// the backlog and closes the socket. Safe to call more than once.
func (h *Hub) drop(c *conn) {
	h.mu.Lock()
	if _, ok := h.conns[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c)
	h.mu.Unlock()

	close(c.send)
	slog.Info("websocket disconnected")
}
