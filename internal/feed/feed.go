// Package feed moves venue books and trades from their transports into a
// Sink: reconnecting venue streams, the relay stream reader, and the relay
// publisher.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

// Sink receives books and trades from a feed.
type Sink interface {
	HandleBook(ctx context.Context, book domain.VenueBook)
	HandleTrade(ctx context.Context, trade domain.TradePrice)
}

// Envelope types carried on the relay stream.
const (
	EventBook  = "order_book_depth"
	EventTrade = "trade_tick"
)

// Envelope is the relay stream wire format.
type Envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Venue   string          `json:"venue"`
	Symbol  string          `json:"symbol"`
	TsEvent time.Time       `json:"ts_event"`
	Payload json.RawMessage `json:"payload"`
}

// NewBookEnvelope wraps a book for the relay stream.
func NewBookEnvelope(book domain.VenueBook) (Envelope, error) {
	raw, err := json.Marshal(book)
	if err != nil {
		return Envelope{}, fmt.Errorf("feed: marshal book: %w", err)
	}
	return Envelope{
		ID:      uuid.NewString(),
		Type:    EventBook,
		Venue:   book.VenueID,
		Symbol:  book.Symbol,
		TsEvent: book.Timestamp,
		Payload: raw,
	}, nil
}

// NewTradeEnvelope wraps a trade for the relay stream.
func NewTradeEnvelope(trade domain.TradePrice) (Envelope, error) {
	raw, err := json.Marshal(trade)
	if err != nil {
		return Envelope{}, fmt.Errorf("feed: marshal trade: %w", err)
	}
	return Envelope{
		ID:      uuid.NewString(),
		Type:    EventTrade,
		Venue:   trade.VenueID,
		Symbol:  trade.Symbol,
		TsEvent: trade.Timestamp,
		Payload: raw,
	}, nil
}

// Deliver decodes env's payload and hands it to sink.
func Deliver(ctx context.Context, env Envelope, sink Sink) error {
	switch env.Type {
	case EventBook:
		var book domain.VenueBook
		if err := json.Unmarshal(env.Payload, &book); err != nil {
			return fmt.Errorf("feed: decode book %s: %w", env.ID, err)
		}
		sink.HandleBook(ctx, book)
	case EventTrade:
		var trade domain.TradePrice
		if err := json.Unmarshal(env.Payload, &trade); err != nil {
			return fmt.Errorf("feed: decode trade %s: %w", env.ID, err)
		}
		sink.HandleTrade(ctx, trade)
	default:
		return fmt.Errorf("feed: unknown envelope type %q", env.Type)
	}
	return nil
}
