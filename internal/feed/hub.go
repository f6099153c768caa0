// Package feed streams automation events to dashboards over WebSocket.
package feed

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/matthewbaird/rentpulse/internal/event"
)

const (
	// clientBuffer is how many events a slow client may fall behind before
	// it is disconnected.
	clientBuffer = 64
	writeTimeout = 5 * time.Second
)

// ServerMessage is the envelope written to every client.
type ServerMessage struct {
	Type  string             `json:"type"`
	Event *event.DomainEvent `json:"event,omitempty"`
}

type client struct {
	events   chan event.DomainEvent
	category string // empty means everything
}

// Hub fans events out to connected WebSocket clients. It is an eventbus
// handler and an http.Handler.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger.With("component", "feed"),
	}
}

// Clients reports how many clients are connected.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleEvent queues evt for every interested client. A client whose buffer
// is full is dropped rather than blocking the bus.
func (h *Hub) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.category != "" && c.category != evt.Category {
			continue
		}
		select {
		case c.events <- evt:
		default:
			h.logger.Warn("client too slow, disconnecting")
			delete(h.clients, c)
			close(c.events)
		}
	}
	return nil
}

// ServeHTTP upgrades to WebSocket and streams events until the client leaves.
// The optional "category" query parameter narrows the stream.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// The server's write timeout would otherwise cut long-lived feeds.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	c := &client{
		events:   make(chan event.DomainEvent, clientBuffer),
		category: r.URL.Query().Get("category"),
	}
	h.add(c)
	defer h.remove(c)

	// The feed is one-way; CloseRead handles pings and notices disconnects.
	ctx := conn.CloseRead(r.Context())

	if err := h.send(ctx, conn, ServerMessage{Type: "hello"}); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			if status := websocket.CloseStatus(ctx.Err()); status != -1 {
				h.logger.Debug("client closed", "status", status)
			}
			return
		case evt, ok := <-c.events:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "client too slow")
				return
			}
			if err := h.send(ctx, conn, ServerMessage{Type: "event", Event: &evt}); err != nil {
				return
			}
		}
	}
}

func (h *Hub) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		h.logger.Debug("write failed", "error", err)
		return err
	}
	return nil
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.events)
	}
}
