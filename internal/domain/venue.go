package domain

import "time"

// VenueKind distinguishes centralized order books from on-chain pools.
type VenueKind string

const (
	VenueKindCEX VenueKind = "cex"
	VenueKindDEX VenueKind = "dex"
)

// Venue is a catalog entry describing one liquidity source.
type Venue struct {
	ID        string    `json:"id"`
	Kind      VenueKind `json:"kind"`
	Symbol    string    `json:"symbol"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionEvent is one recorded session change.
type SessionEvent struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}
