package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

// StreamFeed replays and follows the relay stream, delivering every envelope
// to a Sink.
type StreamFeed struct {
	bus    domain.SignalBus
	stream string
	count  int
	block  time.Duration
	lastID string
	sink   Sink
	logger *slog.Logger

	retryDelay time.Duration
}

// NewStreamFeed creates a StreamFeed starting at entries newer than since.
// A zero since follows only new entries.
func NewStreamFeed(bus domain.SignalBus, stream string, count int, block time.Duration, since time.Time, sink Sink, logger *slog.Logger) *StreamFeed {
	lastID := "$"
	if !since.IsZero() {
		lastID = strconv.FormatInt(since.UnixMilli(), 10) + "-0"
	}
	if count <= 0 {
		count = 256
	}
	return &StreamFeed{
		bus:        bus,
		stream:     stream,
		count:      count,
		block:      block,
		lastID:     lastID,
		sink:       sink,
		logger:     logger.With(slog.String("component", "stream_feed"), slog.String("stream", stream)),
		retryDelay: time.Second,
	}
}

// Run reads until ctx is cancelled. Read errors are logged and retried.
func (f *StreamFeed) Run(ctx context.Context) error {
	f.logger.InfoContext(ctx, "feed: stream reader started", slog.String("from", f.lastID))
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgs, err := f.bus.StreamRead(ctx, f.stream, f.lastID, f.count, f.block)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.WarnContext(ctx, "feed: stream read failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.retryDelay):
			}
			continue
		}
		for _, m := range msgs {
			f.lastID = m.ID
			var env Envelope
			if err := json.Unmarshal(m.Payload, &env); err != nil {
				f.logger.Debug("feed: bad envelope", slog.String("id", m.ID), slog.String("error", err.Error()))
				continue
			}
			if err := Deliver(ctx, env, f.sink); err != nil {
				f.logger.Debug("feed: envelope skipped", slog.String("id", m.ID), slog.String("error", err.Error()))
			}
		}
	}
}
