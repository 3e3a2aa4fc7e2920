package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/draymont/passage-core/internal/event"
	"github.com/draymont/passage-core/internal/infrastructure/config"
	"github.com/draymont/passage-core/internal/infrastructure/logging"
)

// Broadcast channels clients can subscribe to.
const (
	ChannelEventProcessed = "event.processed"
	ChannelVisitChanged   = "visit.changed"
)

// Client-to-server and server-to-client message types.
const (
	wsTypeSubscribe   = "subscribe"
	wsTypeUnsubscribe = "unsubscribe"
	wsTypePing        = "ping"
	wsTypePong        = "pong"
	wsTypeEvent       = "event"
	wsTypeResponse    = "response"
	wsTypeError       = "error"
)

// wsSendBuffer is the per-client outbound queue. A client that falls
// this far behind starts losing broadcasts rather than blocking the hub.
const wsSendBuffer = 256

// wsEnvelope is the wire format in both directions. Payload is opaque
// here; subscribe and unsubscribe payloads decode into wsChannelList.
type wsEnvelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	EventType string          `json:"event_type,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type wsChannelList struct {
	Channels []string `json:"channels"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS middleware.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// Hub tracks connected WebSocket clients and fans announcements out to
// whoever subscribed to the matching channel. It satisfies the event
// pipeline's Announcer interface, so accepted events stream to admin
// UIs without polling; duplicate submissions never reach it.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, c)
	}
}

// AnnounceEvent streams a freshly accepted access event.
func (h *Hub) AnnounceEvent(ev *event.ProcessedEvent) {
	h.Broadcast(ChannelEventProcessed, ev)
}

// AnnounceVisitChange streams a guest-visit state transition.
func (h *Hub) AnnounceVisitChange(payload any) {
	h.Broadcast(ChannelVisitChanged, payload)
}

// Broadcast delivers payload to every client subscribed to channel.
// The client set is snapshotted under the hub lock first; sends happen
// lock-free so one slow client cannot stall the others.
func (h *Hub) Broadcast(channel string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshalling broadcast payload", "channel", channel, "error", err)
		return
	}
	data, err := json.Marshal(wsEnvelope{
		Type:      wsTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   body,
	})
	if err != nil {
		h.logger.Error("marshalling broadcast envelope", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if c.subscribed(channel) {
			c.trySend(data)
		}
	}
}

// ClientCount returns how many clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) attach(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// detach removes the client and closes its send channel. Only the
// caller that wins the map delete closes the channel, so a concurrent
// shutdown cannot double-close.
func (h *Hub) detach(c *wsClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if present {
		close(c.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// wsClient is one connected admin UI.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// subject is the authenticated principal carried over from the
	// single-use connection ticket.
	subject string

	mu       sync.RWMutex
	channels map[string]struct{}
}

// handleWebSocket upgrades the connection. Browsers cannot set an
// Authorization header on WebSocket dials, so auth rides on a
// single-use ticket from POST /auth/ws-ticket instead.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	entry, ok := s.validateTicket(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBuffer),
		subject:  entry.subject,
		channels: make(map[string]struct{}),
	}
	s.hub.attach(c)

	go c.writeLoop(s.wsCfg)
	go c.readLoop(s.wsCfg)
}

func (c *wsClient) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()

	deadline := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(deadline)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Any inbound traffic counts as liveness, not just pongs.
		c.conn.SetReadDeadline(time.Now().Add(deadline)) //nolint:errcheck
		c.dispatch(data)
	}
}

func (c *wsClient) writeLoop(cfg config.WebSocketConfig) {
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) dispatch(data []byte) {
	var msg wsEnvelope
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", wsTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch msg.Type {
	case wsTypeSubscribe:
		c.updateChannels(msg, true)
	case wsTypeUnsubscribe:
		c.updateChannels(msg, false)
	case wsTypePing:
		c.reply(msg.ID, wsTypePong, nil)
	default:
		c.reply(msg.ID, wsTypeError, map[string]string{"message": "unknown message type: " + msg.Type})
	}
}

func (c *wsClient) updateChannels(msg wsEnvelope, add bool) {
	var list wsChannelList
	if err := json.Unmarshal(msg.Payload, &list); err != nil {
		c.reply(msg.ID, wsTypeError, map[string]string{"message": "invalid channel payload"})
		return
	}

	c.mu.Lock()
	for _, ch := range list.Channels {
		if add {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
	c.mu.Unlock()

	key := "unsubscribed"
	if add {
		key = "subscribed"
	}
	c.reply(msg.ID, wsTypeResponse, map[string]any{key: list.Channels})
}

func (c *wsClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

// trySend queues data without blocking. A full buffer drops the
// message; a closed channel (client mid-disconnect) is absorbed.
func (c *wsClient) trySend(data []byte) {
	defer func() { recover() }() //nolint:errcheck

	select {
	case c.send <- data:
	default:
	}
}

func (c *wsClient) reply(id, msgType string, payload any) {
	var body json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return
		}
		body = b
	}
	data, err := json.Marshal(wsEnvelope{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   body,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}
