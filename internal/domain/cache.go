package domain

import (
	"context"
	"time"
)

// PriceCache keeps the last trade per venue so a restarted view can show a
// price before the first new trade arrives.
type PriceCache interface {
	SetPrice(ctx context.Context, venueID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, venueID string) (float64, time.Time, error)
	GetPrices(ctx context.Context, venueIDs []string) (map[string]float64, error)
}

// BookCache holds the newest raw book per venue plus its top of book.
type BookCache interface {
	SetBook(ctx context.Context, book VenueBook) error
	GetBook(ctx context.Context, venueID string) (VenueBook, error)
	GetBBO(ctx context.Context, venueID string) (bestBid, bestAsk float64, err error)
}

// RateLimiter admits at most limit calls per key inside a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage is one stream entry. ID orders entries within a stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus carries relay snapshots (streams) and update notices (pub/sub)
// between bookmap processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe accepts glob patterns. The channel closes with ctx.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	// StreamRead returns entries after afterID, waiting up to block for
	// the first one. An empty result is not an error.
	StreamRead(ctx context.Context, stream string, afterID string, count int, block time.Duration) ([]StreamMessage, error)
}
