// Package ws pushes heatmap update notifications to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Format is the frame encoding a client asked for.
type Format string

const (
	FormatJSON  Format = "json"
	FormatProto Format = "proto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type frame struct {
	kind int
	data []byte
}

type client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	format Format
	send   chan frame

	mu   sync.RWMutex
	subs map[string]bool
}

// subscribeMsg is what clients send to change their channel set.
type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

type broadcastMsg struct {
	channel string
	data    []byte
}

// Config describes what the hub relays.
type Config struct {
	Symbol   string
	Mode     string
	Channels []string
}

// Hub fans out SignalBus messages to connected clients.
type Hub struct {
	bus      domain.SignalBus
	cfg      Config
	logger   *slog.Logger
	started  time.Time
	clients  map[*client]bool
	mu       sync.RWMutex
	register chan *client
	leave    chan *client
	messages chan broadcastMsg
	done     chan struct{}
}

// NewHub creates a Hub relaying cfg.Channels from bus.
func NewHub(bus domain.SignalBus, cfg Config, logger *slog.Logger) *Hub {
	return &Hub{
		bus:      bus,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "ws_hub")),
		started:  time.Now().UTC(),
		clients:  make(map[*client]bool),
		register: make(chan *client),
		leave:    make(chan *client),
		messages: make(chan broadcastMsg, 256),
		done:     make(chan struct{}),
	}
}

// Run subscribes to the configured channels and serves clients until ctx
// is done.
func (h *Hub) Run(ctx context.Context) error {
	for _, ch := range h.cfg.Channels {
		go h.relay(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			close(h.done)
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
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.String("client_id", c.id), slog.String("format", string(c.format)), slog.Int("clients", n))

		case c := <-h.leave:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.String("client_id", c.id), slog.Int("clients", n))

		case msg := <-h.messages:
			h.broadcast(msg)
		}
	}
}

func (h *Hub) broadcast(msg broadcastMsg) {
	var protoFrame []byte
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.isSubscribed(msg.channel) {
			continue
		}
		f := frame{kind: websocket.TextMessage, data: msg.data}
		if c.format == FormatProto {
			if protoFrame == nil {
				var err error
				if protoFrame, err = EncodeProto(msg.channel, msg.data); err != nil {
					h.logger.Warn("ws: proto encode failed", slog.String("error", err.Error()))
					continue
				}
			}
			f = frame{kind: websocket.BinaryMessage, data: protoFrame}
		}
		select {
		case c.send <- f:
		default:
			h.logger.Warn("ws: dropping message for slow client", slog.String("client_id", c.id))
		}
	}
}

func (h *Hub) relay(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: subscribe failed", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				return
			}
			select {
			case h.messages <- broadcastMsg{channel: channel, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// EncodeProto converts a JSON object payload into a binary
// google.protobuf.Struct with the channel added under "channel".
func EncodeProto(channel string, payload []byte) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("ws: decode payload: %w", err)
	}
	m["channel"] = channel
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("ws: build struct: %w", err)
	}
	return proto.Marshal(st)
}

// HandleWS upgrades the request and registers a client subscribed to every
// relayed channel.
// GET /ws?format=json|proto
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	format := Format(r.URL.Query().Get("format"))
	switch format {
	case "":
		format = FormatJSON
	case FormatJSON, FormatProto:
	default:
		http.Error(w, `{"error":"format must be json or proto"}`, http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		id:     uuid.NewString(),
		hub:    h,
		conn:   conn,
		format: format,
		send:   make(chan frame, sendBufferSize),
		subs:   make(map[string]bool),
	}
	for _, ch := range h.cfg.Channels {
		c.subs[ch] = true
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	c.hello()

	go c.writePump()
	go c.readPump()
}

func (c *client) hello() {
	msg, err := json.Marshal(map[string]any{
		"type":           "hello",
		"client_id":      c.id,
		"symbol":         c.hub.cfg.Symbol,
		"mode":           c.hub.cfg.Mode,
		"channels":       c.hub.cfg.Channels,
		"uptime_seconds": int64(time.Since(c.hub.started).Seconds()),
	})
	if err != nil {
		return
	}
	f := frame{kind: websocket.TextMessage, data: msg}
	if c.format == FormatProto {
		data, err := EncodeProto("hello", msg)
		if err != nil {
			return
		}
		f = frame{kind: websocket.BinaryMessage, data: data}
	}
	select {
	case c.send <- f:
	default:
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.leave <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close", slog.String("client_id", c.id), slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil {
			c.apply(sub)
		}
	}
}

func (c *client) apply(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
}

// isSubscribed matches channel against the client's subscriptions, which
// may be glob patterns such as "heatmap:*".
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if ok, _ := path.Match(sub, channel); ok {
			return true
		}
	}
	return false
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(f.kind, f.data); err != nil {
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
