package okx

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

func testClient() *Client {
	return NewClient(Config{VenueID: "okx", WsHost: "wss://ws.okx.com:8443/ws/v5/public", InstID: "BTC-USDT"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSubscribeCommand(t *testing.T) {
	raw, err := json.Marshal(testClient().SubscribeCommand())
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"op":"subscribe","args":[{"channel":"books5","instId":"BTC-USDT"},{"channel":"trades","instId":"BTC-USDT"}]}`,
		string(raw))
}

func TestDispatchBooks5(t *testing.T) {
	payload := `{"arg":{"channel":"books5","instId":"BTC-USDT"},"data":[{
		"asks":[["64011.2","0.5","0","3"],["64011.3","0","0","0"]],
		"bids":[["64010.9","1.25","0","7"]],
		"instId":"BTC-USDT","ts":"1772460000500","seqId":42}]}`

	var got []domain.VenueBook
	err := testClient().dispatch([]byte(payload), func(b domain.VenueBook) { got = append(got, b) }, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "okx", got[0].VenueID)
	assert.Equal(t, []domain.PriceLevel{{Price: 64010.9, Size: 1.25}}, got[0].Bids)
	assert.Equal(t, []domain.PriceLevel{{Price: 64011.2, Size: 0.5}}, got[0].Asks)
	assert.Equal(t, time.UnixMilli(1772460000500).UTC(), got[0].Timestamp)
}

func TestDispatchTrades(t *testing.T) {
	payload := `{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[
		{"instId":"BTC-USDT","tradeId":"1","px":"64011","sz":"0.01","side":"buy","ts":"1772460000600"},
		{"instId":"BTC-USDT","tradeId":"2","px":"64012","sz":"0.02","side":"sell","ts":"1772460000700"}]}`

	var got []domain.TradePrice
	err := testClient().dispatch([]byte(payload), nil, func(tp domain.TradePrice) { got = append(got, tp) })
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 64012.0, got[1].Price)
	assert.Equal(t, time.UnixMilli(1772460000700).UTC(), got[1].Timestamp)
}

func TestDispatchEvents(t *testing.T) {
	c := testClient()
	assert.NoError(t, c.dispatch([]byte("pong"), nil, nil))
	assert.NoError(t, c.dispatch([]byte(`{"event":"subscribe","arg":{"channel":"books5","instId":"BTC-USDT"}}`), nil, nil))

	err := c.dispatch([]byte(`{"event":"error","code":"60018","msg":"doesn't exist"}`), nil, nil)
	assert.ErrorIs(t, err, errSubscribe)

	err = c.dispatch([]byte(`{"arg":{"channel":"books5"},"data":[{"asks":[],"bids":[],"ts":"bad"}]}`), nil, nil)
	assert.ErrorIs(t, err, domain.ErrMalformedSnapshot)
}
