// Package events streams bot activity to operators over WebSocket.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Event names
const (
	EventConnected         = "stream.connected"
	EventDispatchStarted   = "dispatch.started"
	EventDispatchCompleted = "dispatch.completed"
	EventDispatchFailed    = "dispatch.failed"
	EventActionExecuted    = "action.executed"
	EventMessageDelivered  = "message.delivered"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

// Message is the frame written to clients.
type Message struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"ts"`
	Seq       int64       `json:"seq"`
}

type client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Hub fans events out to every connected client. A client whose buffer is
// full is disconnected rather than slowing the publisher.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	upgrader websocket.Upgrader
	seq      uint64
	closed   bool
	logger   zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "events").Logger(),
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "Event stream is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	id, err := gonanoid.New()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to generate client id")
		_ = conn.Close()
		return
	}
	c := &client{id: id, conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	h.logger.Info().Str("clientId", id).Str("ip", r.RemoteAddr).Msg("Client connected")

	go h.writeLoop(c)
	h.deliver(c, h.frame(EventConnected, map[string]string{"client_id": id}))
	go h.readLoop(c)
}

// Publish sends an event to every client.
func (h *Hub) Publish(event string, data interface{}) {
	frame := h.frame(event, data)
	if frame == nil {
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.deliver(c, frame)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) frame(event string, data interface{}) []byte {
	msg := Message{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Seq:       int64(atomic.AddUint64(&h.seq, 1)),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Int64("seq", msg.Seq).Msg("Failed to marshal event")
		return nil
	}
	return raw
}

func (h *Hub) deliver(c *client, frame []byte) {
	defer func() {
		// send on a client closed concurrently by remove
		_ = recover()
	}()
	select {
	case c.send <- frame:
	default:
		h.logger.Warn().Str("clientId", c.id).Msg("Client too slow, disconnecting")
		h.remove(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if existing, ok := h.clients[c.id]; ok && existing == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) writeLoop(c *client) {
	defer func() {
		_ = c.conn.Close()
		h.logger.Info().Str("clientId", c.id).Msg("Client disconnected")
	}()

	for frame := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			h.logger.Warn().Err(err).Str("clientId", c.id).Msg("Failed to write event")
			h.remove(c)
			// drain so that deliver never blocks on a dead client
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
}

// readLoop discards client frames and notices disconnects.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("clientId", c.id).Msg("WebSocket read error")
			}
			h.remove(c)
			return
		}
	}
}
