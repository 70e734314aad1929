package feed

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

const (
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// Source is one venue transport. Stream runs a single connection and
// returns when it ends.
type Source interface {
	VenueID() string
	Stream(ctx context.Context, onBook func(domain.VenueBook), onTrade func(domain.TradePrice)) error
}

// VenueFeed runs a Source forever, reconnecting with exponential backoff.
type VenueFeed struct {
	src    Source
	sink   Sink
	logger *slog.Logger

	minDelay time.Duration
	maxDelay time.Duration
}

// NewVenueFeed creates a feed delivering src's data to sink.
func NewVenueFeed(src Source, sink Sink, logger *slog.Logger) *VenueFeed {
	return &VenueFeed{
		src:      src,
		sink:     sink,
		logger:   logger.With(slog.String("component", "venue_feed"), slog.String("venue", src.VenueID())),
		minDelay: reconnectDelay,
		maxDelay: maxReconnectDelay,
	}
}

// Run streams until ctx is cancelled. The backoff resets once a connection
// has delivered data.
func (f *VenueFeed) Run(ctx context.Context) error {
	delay := f.minDelay
	for {
		var received atomic.Bool
		err := f.src.Stream(ctx,
			func(b domain.VenueBook) {
				received.Store(true)
				f.sink.HandleBook(ctx, b)
			},
			func(t domain.TradePrice) {
				received.Store(true)
				f.sink.HandleTrade(ctx, t)
			},
		)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received.Load() {
			delay = f.minDelay
		}

		attrs := []any{slog.Duration("retry_in", delay)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		f.logger.WarnContext(ctx, "feed: venue disconnected, reconnecting", attrs...)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = nextDelay(delay, f.maxDelay)
	}
}

func nextDelay(cur, limit time.Duration) time.Duration {
	cur *= 2
	if cur > limit {
		return limit
	}
	return cur
}
