// Package ws pushes dashboard projections to browser clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/lobwatch/internal/projector"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 32

	// allPanels subscribes a client to the full projection.
	allPanels = "*"
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origins are enforced by the CORS middleware in front of the hub.
		return true
	},
}

// ViewSource returns the latest published projection.
type ViewSource interface {
	Views() *projector.Views
}

// Recorder tracks connected clients. *metrics.Registry satisfies it.
type Recorder interface {
	ClientConnected(delta int)
}

// Envelope types sent to clients.
const (
	TypeViews  = "views"
	TypePanels = "panels"
)

// envelope is the outgoing message. A client subscribed to every panel gets
// TypeViews with the whole projection; otherwise TypePanels with a map keyed
// by panel name.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// subscribeMsg is the JSON message a client sends to pick panels.
type subscribeMsg struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Panels []string `json:"panels"`
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	panels map[string]bool
}

// Hub manages connected clients and fans every new projection out to them.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan *projector.Views
	register   chan *client
	unregister chan *client
	done       chan struct{}

	src    ViewSource
	rec    Recorder
	logger *slog.Logger
}

// NewHub creates a hub. rec may be nil.
func NewHub(src ViewSource, rec Recorder, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan *projector.Views, 1),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		src:        src,
		rec:        rec,
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// Publish queues v for broadcast. It never blocks: when the hub is behind,
// the queued projection is replaced by v since only the newest one matters.
// It is meant to be registered as a dashboard listener.
func (h *Hub) Publish(v *projector.Views) {
	for {
		select {
		case h.broadcast <- v:
			return
		default:
		}
		select {
		case <-h.broadcast:
		default:
		}
	}
}

// Run starts the hub's main event loop. It handles client registration,
// unregistration, and broadcasting, and exits when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return ctx.Err()

		case c := <-h.register:
			h.clients[c] = true
			h.clientDelta(1)
			h.logger.Info("ws: client connected", slog.Int("total_clients", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", len(h.clients)))

		case v := <-h.broadcast:
			var full []byte
			for c := range h.clients {
				var msg []byte
				if c.wantsAll() {
					if full == nil {
						full = encode(TypeViews, v)
					}
					msg = full
				} else {
					panels := c.selectPanels(v)
					if panels == nil {
						continue
					}
					msg = encode(TypePanels, panels)
				}
				if msg == nil {
					continue
				}
				select {
				case c.send <- msg:
				default:
					// Client's send buffer is full; drop the message.
					h.logger.Warn("ws: dropping message for slow client")
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.clientDelta(-1)
}

func (h *Hub) clientDelta(n int) {
	if h.rec != nil {
		h.rec.ClientConnected(n)
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection, sends the
// current projection, and registers the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		panels: map[string]bool{allPanels: true},
	}

	// Queue the current state before registering so the first frame a client
	// sees is never older than the broadcasts that follow.
	if v := h.src.Views(); v != nil {
		if msg := encode(TypeViews, v); msg != nil {
			c.send <- msg
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func encode(kind string, data any) []byte {
	msg, err := json.Marshal(envelope{Type: kind, Data: data})
	if err != nil {
		return nil
	}
	return msg
}

// readPump reads messages from the WebSocket connection. It handles panel
// subscription requests (JSON text frames) from the client.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if jsonErr := json.Unmarshal(message, &sub); jsonErr == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription processes subscribe/unsubscribe requests. Subscribing
// to named panels replaces the implicit "*" subscription.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, p := range msg.Panels {
			if p == allPanels {
				c.panels = map[string]bool{allPanels: true}
				return
			}
		}
		delete(c.panels, allPanels)
		for _, p := range msg.Panels {
			c.panels[p] = true
		}
	case "unsubscribe":
		for _, p := range msg.Panels {
			delete(c.panels, p)
		}
	}
}

func (c *client) wantsAll() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.panels[allPanels]
}

// selectPanels returns the subscribed subset of v, or nil when the client
// follows nothing.
func (c *client) selectPanels(v *projector.Views) map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.panels) == 0 {
		return nil
	}
	out := make(map[string]any, len(c.panels))
	for name := range c.panels {
		if p, ok := v.Panel(name); ok {
			out[name] = p
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// writePump pumps messages from the hub to the WebSocket connection as text
// frames, with periodic pings for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
