package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

// streamEnvelope wraps every message on a combined stream connection.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// DepthMessage is a partial book depth payload (<symbol>@depth<levels>).
type DepthMessage struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// AggTradeMessage is an aggregated trade payload (<symbol>@aggTrade).
type AggTradeMessage struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
	BuyerMM   bool   `json:"m"`
}

// parseLevels converts ["price","qty"] pairs into price levels. Zero-size
// levels are skipped.
func parseLevels(raw [][]string) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("binance: level %v: %w", pair, domain.ErrMalformedSnapshot)
		}
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			return nil, fmt.Errorf("binance: level price %q: %w", pair[0], domain.ErrMalformedSnapshot)
		}
		size, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return nil, fmt.Errorf("binance: level size %q: %w", pair[1], domain.ErrMalformedSnapshot)
		}
		if size == 0 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out, nil
}

// DepthToBook converts a partial depth payload received at ts into a
// VenueBook. Partial depth streams carry no event time, so the receive time
// is used.
func DepthToBook(venueID, symbol string, m *DepthMessage, ts time.Time) (domain.VenueBook, error) {
	bids, err := parseLevels(m.Bids)
	if err != nil {
		return domain.VenueBook{}, err
	}
	asks, err := parseLevels(m.Asks)
	if err != nil {
		return domain.VenueBook{}, err
	}
	return domain.VenueBook{
		VenueID:   venueID,
		Symbol:    symbol,
		Bids:      bids,
		Asks:      asks,
		Timestamp: ts,
	}, nil
}

// AggTradeToPrice converts an aggTrade payload into a TradePrice stamped with
// the exchange trade time.
func AggTradeToPrice(venueID, symbol string, m *AggTradeMessage) (domain.TradePrice, error) {
	price, err := strconv.ParseFloat(m.Price, 64)
	if err != nil {
		return domain.TradePrice{}, fmt.Errorf("binance: trade price %q: %w", m.Price, domain.ErrMalformedSnapshot)
	}
	size, err := strconv.ParseFloat(m.Quantity, 64)
	if err != nil {
		return domain.TradePrice{}, fmt.Errorf("binance: trade qty %q: %w", m.Quantity, domain.ErrMalformedSnapshot)
	}
	ms := m.TradeTime
	if ms == 0 {
		ms = m.EventTime
	}
	return domain.TradePrice{
		VenueID:   venueID,
		Symbol:    symbol,
		Price:     price,
		Size:      size,
		Timestamp: time.UnixMilli(ms).UTC(),
	}, nil
}

// StreamNames returns the depth and trade stream names for symbol.
func StreamNames(symbol string, depth int, speed string) (depthStream, tradeStream string) {
	sym := strings.ToLower(symbol)
	depthStream = fmt.Sprintf("%s@depth%d", sym, depth)
	if speed != "" && speed != "1000ms" {
		depthStream += "@" + speed
	}
	return depthStream, sym + "@aggTrade"
}
