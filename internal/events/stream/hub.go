// Package stream fans relayed events out to websocket subscribers.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"landregistry/internal/registry/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/httputil"
	"landregistry/pkg/requestcontext"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

type client struct {
	send    chan []byte
	tokenID *id.TokenID
	closed  chan struct{}
	once    sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.closed) })
}

func (c *client) wants(e models.Event) bool {
	return c.tokenID == nil || (e.TokenID != nil && *e.TokenID == *c.tokenID)
}

// Hub is an outbox sink that broadcasts each event to every subscriber.
// A subscriber that cannot keep up is disconnected rather than slowing the
// relay down.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *Hub) Name() string { return "stream" }

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Publish(_ context.Context, events []models.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return nil
	}
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return err
		}
		for c := range h.clients {
			if !c.wants(e) {
				continue
			}
			select {
			case c.send <- payload:
			default:
				c.close()
			}
		}
	}
	return nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// ServeHTTP upgrades the request and streams events until either side goes
// away. An optional token_id query parameter limits the stream to one
// property.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c := &client{
		send:   make(chan []byte, clientBuffer),
		closed: make(chan struct{}),
	}
	if raw := r.URL.Query().Get("token_id"); raw != "" {
		tokenID, err := id.ParseTokenID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		c.tokenID = &tokenID
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed",
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		return
	}
	h.register(c)
	h.logger.InfoContext(r.Context(), "event stream subscriber connected",
		"caller", requestcontext.Caller(r.Context()).String(),
		"request_id", requestcontext.RequestID(r.Context()),
	)

	go h.readLoop(conn, c)
	h.writeLoop(conn, c)

	h.unregister(c)
	_ = conn.Close()
}

// readLoop discards client messages and notices disconnects.
func (h *Hub) readLoop(conn *websocket.Conn, c *client) {
	defer c.close()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case payload := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.close()
	}
}
