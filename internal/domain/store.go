package domain

import (
	"context"
	"time"
)

// ListOpts pages through time-ordered records. A nil Since or Until leaves that
// side of the range open.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// VenueStore is the durable venue catalog. Config venues are upserted on
// start and the enabled set is read back per symbol.
type VenueStore interface {
	Upsert(ctx context.Context, venue Venue) error
	ListEnabled(ctx context.Context, symbol string) ([]Venue, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

// SessionEventStore is an append-only log of display changes such as
// layout switches, venue toggles and view resets.
type SessionEventStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]SessionEvent, error)
}
