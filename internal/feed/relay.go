package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

// Relay is a Sink that appends every book and trade to a Redis stream for
// view-mode instances to consume.
type Relay struct {
	bus    domain.SignalBus
	stream string
	logger *slog.Logger

	published atomic.Int64
	failed    atomic.Int64
}

// NewRelay creates a Relay writing to stream.
func NewRelay(bus domain.SignalBus, stream string, logger *slog.Logger) *Relay {
	return &Relay{
		bus:    bus,
		stream: stream,
		logger: logger.With(slog.String("component", "relay"), slog.String("stream", stream)),
	}
}

// HandleBook implements Sink.
func (r *Relay) HandleBook(ctx context.Context, book domain.VenueBook) {
	env, err := NewBookEnvelope(book)
	r.append(ctx, env, err)
}

// HandleTrade implements Sink.
func (r *Relay) HandleTrade(ctx context.Context, trade domain.TradePrice) {
	env, err := NewTradeEnvelope(trade)
	r.append(ctx, env, err)
}

func (r *Relay) append(ctx context.Context, env Envelope, err error) {
	if err == nil {
		var raw []byte
		raw, err = json.Marshal(env)
		if err == nil {
			err = r.bus.StreamAppend(ctx, r.stream, raw)
		}
	}
	if err != nil {
		r.failed.Add(1)
		r.logger.WarnContext(ctx, "relay: append failed",
			slog.String("venue", env.Venue),
			slog.String("type", env.Type),
			slog.String("error", err.Error()),
		)
		return
	}
	r.published.Add(1)
}

// Counts returns how many envelopes were appended and how many failed.
func (r *Relay) Counts() (published, failed int64) {
	return r.published.Load(), r.failed.Load()
}

var _ Sink = (*Relay)(nil)

// Tee delivers every book and trade to each sink in order.
type Tee []Sink

// HandleBook implements Sink.
func (t Tee) HandleBook(ctx context.Context, book domain.VenueBook) {
	for _, s := range t {
		s.HandleBook(ctx, book)
	}
}

// HandleTrade implements Sink.
func (t Tee) HandleTrade(ctx context.Context, trade domain.TradePrice) {
	for _, s := range t {
		s.HandleTrade(ctx, trade)
	}
}
