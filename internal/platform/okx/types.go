package okx

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

// Arg identifies a channel subscription.
type Arg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// Command is an op request sent to the public endpoint.
type Command struct {
	Op   string `json:"op"`
	Args []Arg  `json:"args"`
}

// pushMessage is either an event acknowledgement or a data push.
type pushMessage struct {
	Event string          `json:"event"`
	Code  string          `json:"code"`
	Msg   string          `json:"msg"`
	Arg   Arg             `json:"arg"`
	Data  json.RawMessage `json:"data"`
}

// BookData is one books5 entry. Levels are [price, size, deprecated, orders].
type BookData struct {
	Asks   [][]string `json:"asks"`
	Bids   [][]string `json:"bids"`
	InstID string     `json:"instId"`
	Ts     string     `json:"ts"`
	SeqID  int64      `json:"seqId"`
}

// TradeData is one trades entry.
type TradeData struct {
	InstID  string `json:"instId"`
	TradeID string `json:"tradeId"`
	Px      string `json:"px"`
	Sz      string `json:"sz"`
	Side    string `json:"side"`
	Ts      string `json:"ts"`
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, fmt.Errorf("okx: timestamp %q: %w", s, domain.ErrMalformedSnapshot)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func parseLevels(raw [][]string) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, l := range raw {
		if len(l) < 2 {
			return nil, fmt.Errorf("okx: level %v: %w", l, domain.ErrMalformedSnapshot)
		}
		px, err1 := strconv.ParseFloat(l[0], 64)
		sz, err2 := strconv.ParseFloat(l[1], 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("okx: level %v: %w", l, domain.ErrMalformedSnapshot)
		}
		if sz == 0 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: px, Size: sz})
	}
	return out, nil
}

// BookToDomain converts a books5 entry into a VenueBook.
func BookToDomain(venueID string, d *BookData) (domain.VenueBook, error) {
	ts, err := parseMillis(d.Ts)
	if err != nil {
		return domain.VenueBook{}, err
	}
	bids, err := parseLevels(d.Bids)
	if err != nil {
		return domain.VenueBook{}, err
	}
	asks, err := parseLevels(d.Asks)
	if err != nil {
		return domain.VenueBook{}, err
	}
	return domain.VenueBook{VenueID: venueID, Symbol: d.InstID, Bids: bids, Asks: asks, Timestamp: ts}, nil
}

// TradeToDomain converts a trades entry into a TradePrice.
func TradeToDomain(venueID string, d *TradeData) (domain.TradePrice, error) {
	ts, err := parseMillis(d.Ts)
	if err != nil {
		return domain.TradePrice{}, err
	}
	px, err := strconv.ParseFloat(d.Px, 64)
	if err != nil {
		return domain.TradePrice{}, fmt.Errorf("okx: trade px %q: %w", d.Px, domain.ErrMalformedSnapshot)
	}
	sz, _ := strconv.ParseFloat(d.Sz, 64)
	return domain.TradePrice{VenueID: venueID, Symbol: d.InstID, Price: px, Size: sz, Timestamp: ts}, nil
}
