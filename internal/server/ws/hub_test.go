package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/bookmap/internal/cache/memory"
)

func TestEncodeProto(t *testing.T) {
	data, err := EncodeProto("heatmap:*", []byte(`{"type":"update","version":7,"venues":["binance"]}`))
	require.NoError(t, err)

	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(data, &st))
	m := st.AsMap()
	assert.Equal(t, "update", m["type"])
	assert.Equal(t, 7.0, m["version"])
	assert.Equal(t, []any{"binance"}, m["venues"])
	assert.Equal(t, "heatmap:*", m["channel"])

	_, err = EncodeProto("prices", []byte(`[1,2]`))
	assert.Error(t, err)
}

func TestClientSubscriptions(t *testing.T) {
	c := &client{subs: map[string]bool{"heatmap:*": true}}
	assert.True(t, c.isSubscribed("heatmap:*"))
	assert.True(t, c.isSubscribed("heatmap:BTC-USDT"))
	assert.False(t, c.isSubscribed("prices"))

	c.apply(subscribeMsg{Action: "subscribe", Channels: []string{"prices"}})
	assert.True(t, c.isSubscribed("prices"))

	c.apply(subscribeMsg{Action: "unsubscribe", Channels: []string{"heatmap:*"}})
	assert.False(t, c.isSubscribed("heatmap:BTC-USDT"))
}

func TestHubRelaysBusMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := memory.NewBus(0)
	hub := NewHub(bus, Config{Symbol: "BTC-USDT", Mode: "live", Channels: []string{"heatmap:*"}},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, hello, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Contains(t, string(hello), `"type":"hello"`)
	assert.Contains(t, string(hello), `"symbol":"BTC-USDT"`)

	// The relay subscribes asynchronously, so publish until a frame arrives.
	go func() {
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				_ = bus.Publish(ctx, "heatmap:BTC-USDT", []byte(`{"type":"update","version":1}`))
			}
		}
	}()

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"update","version":1}`, string(msg))
}

func TestHandleWSRejectsUnknownFormat(t *testing.T) {
	hub := NewHub(memory.NewBus(0), Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	hub.HandleWS(rec, httptest.NewRequest(http.MethodGet, "/ws?format=xml", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
