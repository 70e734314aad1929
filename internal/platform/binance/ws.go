// Package binance streams partial order book depth and aggregated trades
// from the Binance spot WebSocket API.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

const (
	dialTimeout = 15 * time.Second
	readLimit   = 1 << 20
	// Binance drops connections silent for longer than this; partial depth
	// arrives every 100ms or 1s, so a gap this long means a dead stream.
	idleTimeout = 30 * time.Second
)

// Config configures one Binance venue stream.
type Config struct {
	VenueID     string
	WsHost      string
	Symbol      string
	DepthLevels int
	UpdateSpeed string
}

// Client reads one combined depth + aggTrade stream.
type Client struct {
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.DepthLevels == 0 {
		cfg.DepthLevels = 20
	}
	return &Client{
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "binance"), slog.String("venue", cfg.VenueID)),
	}
}

// VenueID returns the id this client reports books under.
func (c *Client) VenueID() string { return c.cfg.VenueID }

// URL returns the combined stream endpoint.
func (c *Client) URL() string {
	depth, trade := StreamNames(c.cfg.Symbol, c.cfg.DepthLevels, c.cfg.UpdateSpeed)
	return strings.TrimRight(c.cfg.WsHost, "/") + "/stream?streams=" + depth + "/" + trade
}

// Stream connects and delivers books and trades until ctx is cancelled or
// the connection fails. It never reconnects; callers wrap it in a retry loop.
func (c *Client) Stream(ctx context.Context, onBook func(domain.VenueBook), onTrade func(domain.TradePrice)) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.URL(), nil)
	cancel()
	if err != nil {
		return fmt.Errorf("binance: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutdown")
	conn.SetReadLimit(readLimit)

	c.logger.InfoContext(ctx, "binance: stream connected", slog.String("url", c.URL()))

	depthStream, tradeStream := StreamNames(c.cfg.Symbol, c.cfg.DepthLevels, c.cfg.UpdateSpeed)
	for {
		readCtx, cancelRead := context.WithTimeout(ctx, idleTimeout)
		typ, data, err := conn.Read(readCtx)
		cancelRead()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return fmt.Errorf("binance: closed by peer: %w", domain.ErrWSDisconnect)
			}
			return fmt.Errorf("binance: read: %w: %w", domain.ErrWSDisconnect, err)
		}
		if typ != websocket.MessageText {
			continue
		}
		if err := c.dispatch(data, depthStream, tradeStream, onBook, onTrade); err != nil {
			c.logger.Debug("binance: message skipped", slog.String("error", err.Error()))
		}
	}
}

func (c *Client) dispatch(data []byte, depthStream, tradeStream string, onBook func(domain.VenueBook), onTrade func(domain.TradePrice)) error {
	var env streamEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("binance: decode envelope: %w", err)
	}
	switch env.Stream {
	case depthStream:
		var m DepthMessage
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return fmt.Errorf("binance: decode depth: %w", err)
		}
		book, err := DepthToBook(c.cfg.VenueID, c.cfg.Symbol, &m, c.now())
		if err != nil {
			return err
		}
		if onBook != nil {
			onBook(book)
		}
	case tradeStream:
		var m AggTradeMessage
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return fmt.Errorf("binance: decode trade: %w", err)
		}
		tp, err := AggTradeToPrice(c.cfg.VenueID, c.cfg.Symbol, &m)
		if err != nil {
			return err
		}
		if onTrade != nil {
			onTrade(tp)
		}
	default:
		return errors.New("binance: unexpected stream " + env.Stream)
	}
	return nil
}
