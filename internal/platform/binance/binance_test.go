package binance

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

const depthPayload = `{"stream":"btcusdt@depth20@100ms","data":{"lastUpdateId":160,
"bids":[["64010.50","1.200"],["64010.00","0.000"],["64009.90","3.5"]],
"asks":[["64011.00","0.75"]]}}`

const tradePayload = `{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","E":1772460000123,
"s":"BTCUSDT","a":5933014,"p":"64010.70","q":"0.015","f":100,"l":105,"T":1772460000120,"m":true}}`

func testClient() *Client {
	c := NewClient(Config{
		VenueID:     "binance",
		WsHost:      "wss://stream.binance.com:9443/",
		Symbol:      "BTCUSDT",
		DepthLevels: 20,
		UpdateSpeed: "100ms",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.now = func() time.Time { return time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC) }
	return c
}

func TestURL(t *testing.T) {
	assert.Equal(t,
		"wss://stream.binance.com:9443/stream?streams=btcusdt@depth20@100ms/btcusdt@aggTrade",
		testClient().URL())

	depth, trade := StreamNames("ETHUSDT", 5, "1000ms")
	assert.Equal(t, "ethusdt@depth5", depth)
	assert.Equal(t, "ethusdt@aggTrade", trade)
}

func TestDispatchDepth(t *testing.T) {
	c := testClient()
	depth, trade := StreamNames(c.cfg.Symbol, c.cfg.DepthLevels, c.cfg.UpdateSpeed)

	var got []domain.VenueBook
	err := c.dispatch([]byte(depthPayload), depth, trade, func(b domain.VenueBook) { got = append(got, b) }, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)

	book := got[0]
	assert.Equal(t, "binance", book.VenueID)
	assert.Equal(t, "BTCUSDT", book.Symbol)
	assert.Equal(t, []domain.PriceLevel{{Price: 64010.50, Size: 1.2}, {Price: 64009.90, Size: 3.5}}, book.Bids)
	assert.Equal(t, []domain.PriceLevel{{Price: 64011.00, Size: 0.75}}, book.Asks)
	assert.Equal(t, c.now(), book.Timestamp)
}

func TestDispatchTrade(t *testing.T) {
	c := testClient()
	depth, trade := StreamNames(c.cfg.Symbol, c.cfg.DepthLevels, c.cfg.UpdateSpeed)

	var got []domain.TradePrice
	err := c.dispatch([]byte(tradePayload), depth, trade, nil, func(tp domain.TradePrice) { got = append(got, tp) })
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 64010.70, got[0].Price, 1e-9)
	assert.InDelta(t, 0.015, got[0].Size, 1e-12)
	assert.Equal(t, time.UnixMilli(1772460000120).UTC(), got[0].Timestamp)
}

func TestDispatchRejectsBadPayloads(t *testing.T) {
	c := testClient()
	depth, trade := StreamNames(c.cfg.Symbol, c.cfg.DepthLevels, c.cfg.UpdateSpeed)
	called := false
	onBook := func(domain.VenueBook) { called = true }

	err := c.dispatch([]byte(`{"stream":"btcusdt@depth20@100ms","data":{"bids":[["x","1"]],"asks":[]}}`), depth, trade, onBook, nil)
	assert.ErrorIs(t, err, domain.ErrMalformedSnapshot)

	err = c.dispatch([]byte(`{"stream":"btcusdt@depth20@100ms","data":{"bids":[["1"]],"asks":[]}}`), depth, trade, onBook, nil)
	assert.ErrorIs(t, err, domain.ErrMalformedSnapshot)

	assert.Error(t, c.dispatch([]byte(`{"stream":"other","data":{}}`), depth, trade, onBook, nil))
	assert.Error(t, c.dispatch([]byte(`not json`), depth, trade, onBook, nil))
	assert.False(t, called)
}
