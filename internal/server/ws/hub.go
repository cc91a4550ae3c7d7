// Package ws bridges the Redis signal bus to WebSocket clients. The hub
// subscribes to every auction event channel and fans each event out to the
// clients watching that auction.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nationforge/economy/internal/domain"
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
	sendBufferSize = 256
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// client represents a single WebSocket connection and the set of auction ids
// it watches.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool // auction ids; "*" watches everything
	mu   sync.RWMutex
}

// subscribeMsg is the JSON frame a client sends to manage its auction
// subscriptions: {"action":"subscribe","auction_ids":["..."]}.
type subscribeMsg struct {
	Action     string   `json:"action"` // "subscribe" or "unsubscribe"
	AuctionIDs []string `json:"auction_ids"`
}

// broadcastMsg carries one event along with the auction it belongs to.
type broadcastMsg struct {
	auctionID string
	data      []byte
}

// Hub manages the connected WebSocket clients and routes auction events from
// the signal bus to the clients subscribed to each auction.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	bus        domain.SignalBus
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
}

// NewHub creates a Hub backed by the given signal bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		startedAt:  time.Now().UTC(),
	}
}

// Run starts the hub's event loop: client registration, unregistration, and
// event fan-out. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	go h.consumeBus(ctx)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total_clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", h.clientCount()))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.watches(msg.auctionID) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					// Client's send buffer is full; drop the event.
					h.logger.Warn("dropping event for slow client",
						slog.String("auction_id", msg.auctionID),
					)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// consumeBus subscribes to the auction event pattern and forwards every
// received event to the hub's broadcast loop.
func (h *Hub) consumeBus(ctx context.Context) {
	msgCh, err := h.bus.Subscribe(ctx, domain.EventChannelPattern)
	if err != nil {
		h.logger.Error("bus subscribe failed", slog.String("error", err.Error()))
		return
	}
	h.logger.Info("subscribed to auction events")

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("bus subscription closed")
				return
			}
			// The envelope carries its auction id; route on that rather
			// than the channel name, which the bus does not expose.
			var event domain.AuctionEvent
			if err := json.Unmarshal(data, &event); err != nil {
				h.logger.Warn("dropping malformed event", slog.String("error", err.Error()))
				continue
			}
			h.broadcast <- broadcastMsg{auctionID: event.AuctionID, data: data}
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub. Clients start with no subscriptions and opt in to
// the auctions they want; ?auction_id=... pre-subscribes on connect.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}
	if id := strings.TrimSpace(r.URL.Query().Get("auction_id")); id != "" {
		c.subs[id] = true
	}

	h.register <- c
	c.sendWelcome()

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads subscription frames from the connection until it closes.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
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
				c.hub.logger.Warn("unexpected close error", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err != nil {
			continue
		}
		c.handleSubscription(sub)
	}
}

// handleSubscription processes subscribe/unsubscribe requests.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, id := range msg.AuctionIDs {
			if id = strings.TrimSpace(id); id != "" {
				c.subs[id] = true
			}
		}
	case "unsubscribe":
		for _, id := range msg.AuctionIDs {
			delete(c.subs, strings.TrimSpace(id))
		}
	}
}

// sendWelcome pushes a small status envelope so clients can mark the
// connection healthy before any auction events flow.
func (c *client) sendWelcome() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	msg, err := json.Marshal(map[string]any{
		"type": "connected",
		"payload": map[string]any{
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// watches reports whether the client subscribed to the given auction.
func (c *client) watches(auctionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[auctionID] || c.subs["*"]
}

// writePump pumps events from the hub to the connection and keeps the
// connection alive with periodic pings.
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
