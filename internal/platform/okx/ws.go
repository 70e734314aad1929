// Package okx streams books5 snapshots and trades from the OKX v5 public
// WebSocket.
package okx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

const (
	writeWait = 10 * time.Second

	// OKX closes connections with no traffic for 30s.
	readWait = 30 * time.Second
)

// Config configures one OKX venue stream.
type Config struct {
	VenueID      string
	WsHost       string
	InstID       string
	PingInterval time.Duration
}

// Client reads books5 and trades for one instrument.
type Client struct {
	cfg    Config
	logger *slog.Logger

	writeMu sync.Mutex
}

// NewClient creates a Client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "okx"), slog.String("venue", cfg.VenueID)),
	}
}

// VenueID returns the id this client reports books under.
func (c *Client) VenueID() string { return c.cfg.VenueID }

// SubscribeCommand returns the subscription sent after connecting.
func (c *Client) SubscribeCommand() Command {
	return Command{Op: "subscribe", Args: []Arg{
		{Channel: "books5", InstID: c.cfg.InstID},
		{Channel: "trades", InstID: c.cfg.InstID},
	}}
}

// Stream connects, subscribes and delivers books and trades until ctx is
// cancelled or the connection fails.
func (c *Client) Stream(ctx context.Context, onBook func(domain.VenueBook), onTrade func(domain.TradePrice)) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.cfg.WsHost, nil)
	if err != nil {
		return fmt.Errorf("okx: dial: %w", err)
	}
	defer conn.Close()

	if err := c.writeJSON(conn, c.SubscribeCommand()); err != nil {
		return fmt.Errorf("okx: subscribe: %w", err)
	}
	c.logger.InfoContext(ctx, "okx: subscribed", slog.String("inst_id", c.cfg.InstID))

	done := make(chan struct{})
	defer close(done)
	go c.pingLoop(conn, done)
	go func() {
		select {
		case <-ctx.Done():
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			c.writeMu.Unlock()
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("okx: read: %w: %w", domain.ErrWSDisconnect, err)
		}
		if err := c.dispatch(raw, onBook, onTrade); err != nil {
			if errors.Is(err, errSubscribe) {
				return err
			}
			c.logger.Debug("okx: message skipped", slog.String("error", err.Error()))
		}
	}
}

var errSubscribe = errors.New("okx: subscription rejected")

func (c *Client) dispatch(raw []byte, onBook func(domain.VenueBook), onTrade func(domain.TradePrice)) error {
	if string(raw) == "pong" {
		return nil
	}
	var msg pushMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("okx: decode: %w", err)
	}
	switch msg.Event {
	case "":
	case "error":
		return fmt.Errorf("%w: %s %s", errSubscribe, msg.Code, msg.Msg)
	default:
		return nil
	}

	switch msg.Arg.Channel {
	case "books5":
		var books []BookData
		if err := json.Unmarshal(msg.Data, &books); err != nil {
			return fmt.Errorf("okx: decode books5: %w", err)
		}
		for i := range books {
			book, err := BookToDomain(c.cfg.VenueID, &books[i])
			if err != nil {
				return err
			}
			if onBook != nil {
				onBook(book)
			}
		}
	case "trades":
		var trades []TradeData
		if err := json.Unmarshal(msg.Data, &trades); err != nil {
			return fmt.Errorf("okx: decode trades: %w", err)
		}
		for i := range trades {
			tp, err := TradeToDomain(c.cfg.VenueID, &trades[i])
			if err != nil {
				return err
			}
			if onTrade != nil {
				onTrade(tp)
			}
		}
	}
	return nil
}

// pingLoop sends the text "ping" keep-alive OKX expects.
func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) writeJSON(conn *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
