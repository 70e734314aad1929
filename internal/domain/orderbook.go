package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// VenueBook is one venue's raw orderbook reading at one instant, as delivered
// by a transport. Bids and asks both count as resting liquidity.
type VenueBook struct {
	VenueID   string       `json:"venue_id"`
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// Levels returns bids followed by asks.
func (b VenueBook) Levels() []PriceLevel {
	out := make([]PriceLevel, 0, len(b.Bids)+len(b.Asks))
	out = append(out, b.Bids...)
	return append(out, b.Asks...)
}

// BestBid returns the highest bid price, or 0 when there are no bids.
func (b VenueBook) BestBid() float64 {
	var best float64
	for _, l := range b.Bids {
		if l.Price > best {
			best = l.Price
		}
	}
	return best
}

// BestAsk returns the lowest ask price, or 0 when there are no asks.
func (b VenueBook) BestAsk() float64 {
	var best float64
	for _, l := range b.Asks {
		if best == 0 || l.Price < best {
			best = l.Price
		}
	}
	return best
}

// TradePrice is a single trade (or pool spot price) observation used for the
// live price trace.
type TradePrice struct {
	VenueID   string    `json:"venue_id"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}
