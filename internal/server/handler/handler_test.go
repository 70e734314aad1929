package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bookmap/internal/domain"
	"github.com/alanyoungcy/bookmap/internal/heatmap"
	"github.com/alanyoungcy/bookmap/internal/service"
)

var t0 = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T) (http.Handler, *service.HeatmapService) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := heatmap.New(heatmap.Config{
		Symbol:                   "BTC-USDT",
		Venues:                   []string{"binance", "okx"},
		BucketSize:               1,
		TimeWindow:               time.Minute,
		LayoutMode:               domain.LayoutGrid,
		VisiblePriceRangePercent: 5,
		Zoom:                     heatmap.ZoomBounds{Min: 0.5, Max: 8},
		PriceTicks:               5,
		TimeTicks:                5,
		ShowMinimap:              true,
	}, logger, heatmap.WithClock(func() time.Time { return t0.Add(time.Second) }))
	require.NoError(t, err)
	svc := service.NewHeatmapService(engine, service.Deps{}, time.Second, logger)

	hm, view, venues := NewHeatmapHandler(svc), NewViewHandler(svc), NewVenueHandler(svc)
	r := chi.NewRouter()
	r.Get("/api/layout", hm.Layout)
	r.Put("/api/layout/mode", hm.SetLayoutMode)
	r.Get("/api/panels", hm.Panels)
	r.Get("/api/panels/{index}/cells", hm.Cells)
	r.Get("/api/trace", hm.Trace)
	r.Get("/api/minimap", hm.Minimap)
	r.Get("/api/view", view.Get)
	r.Put("/api/view", view.Put)
	r.Post("/api/view/zoom", view.Zoom)
	r.Post("/api/view/pan", view.Pan)
	r.Post("/api/view/reset", view.Reset)
	r.Get("/api/venues", venues.List)
	r.Put("/api/venues", venues.Put)
	r.Get("/api/prices", venues.Prices)
	r.Get("/api/venues/{id}/book", venues.Book)
	r.Get("/api/session/events", venues.SessionEvents)
	return r, svc
}

func seed(t *testing.T, svc *service.HeatmapService) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, svc.Engine().Ingest(ctx, domain.VenueBook{
		VenueID:   "binance",
		Symbol:    "BTC-USDT",
		Bids:      []domain.PriceLevel{{Price: 100, Size: 3}},
		Asks:      []domain.PriceLevel{{Price: 101, Size: 2}},
		Timestamp: t0,
	}))
	require.NoError(t, svc.Engine().RecordTrade(ctx, domain.TradePrice{VenueID: "binance", Price: 100.5, Timestamp: t0}))
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, rd))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestLayoutAndMode(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/layout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	layout := decode[domain.LayoutConfig](t, rec)
	assert.Equal(t, domain.LayoutGrid, layout.Mode)
	assert.Len(t, layout.Panels, 3)

	rec = do(t, h, http.MethodPut, "/api/layout/mode", `{"mode":"combined"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	layout = decode[domain.LayoutConfig](t, rec)
	assert.Equal(t, domain.LayoutCombined, layout.Mode)
	require.Len(t, layout.Panels, 1)
	assert.True(t, layout.Panels[0].IsCombined)

	rec = do(t, h, http.MethodPut, "/api/layout/mode", `{"mode":"mosaic"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/layout/mode", `{"mode":"grid","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPanelsAndCells(t *testing.T) {
	h, svc := newTestRouter(t)
	seed(t, svc)

	rec := do(t, h, http.MethodGet, "/api/panels?width=800&height=600", "")
	require.Equal(t, http.StatusOK, rec.Code)
	panels := decode[[]domain.VisiblePanel](t, rec)
	require.Len(t, panels, 3)
	assert.Equal(t, domain.PriceSourceTrade, panels[0].PriceSource)
	assert.False(t, panels[0].Price.Empty())

	rec = do(t, h, http.MethodGet, "/api/panels/1/cells?width=800&height=600", "")
	require.Equal(t, http.StatusOK, rec.Code)
	frame := decode[domain.PanelFrame](t, rec)
	assert.Equal(t, "binance", frame.Panel.Venue)
	assert.NotEmpty(t, frame.Cells)
	assert.Len(t, frame.Trace, 1)

	rec = do(t, h, http.MethodGet, "/api/panels/99/cells", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/panels/abc/cells", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/panels?width=-5", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTraceAndMinimap(t *testing.T) {
	h, svc := newTestRouter(t)
	seed(t, svc)

	from := t0.Add(-time.Second).UnixMilli()
	to := t0.Add(time.Second).UnixMilli()
	rec := do(t, h, http.MethodGet, "/api/trace?from="+itoa(from)+"&to="+itoa(to), "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Points []domain.PricePoint `json:"points"`
	}](t, rec)
	require.Len(t, body.Points, 1)
	assert.Equal(t, 100.5, body.Points[0].Price)

	rec = do(t, h, http.MethodGet, "/api/trace?from="+itoa(to)+"&to="+itoa(from), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/minimap?width=300&height=100", "")
	require.Equal(t, http.StatusOK, rec.Code)
	mm := decode[domain.Minimap](t, rec)
	assert.NotEmpty(t, mm.Frame.Cells)
	assert.Greater(t, mm.Viewport.W, 0.0)
}

func TestViewEndpoints(t *testing.T) {
	h, svc := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/view/zoom", `{"factor":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, decode[domain.ViewState](t, rec).PriceZoom)

	rec = do(t, h, http.MethodPost, "/api/view/zoom", `{"factor":100}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 8.0, decode[domain.ViewState](t, rec).PriceZoom)

	rec = do(t, h, http.MethodPost, "/api/view/zoom", `{"factor":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/view/pan", `{"delta_ms":5000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5*time.Second, decode[domain.ViewState](t, rec).TimeOffset)

	rec = do(t, h, http.MethodPost, "/api/view/pan", `{"delta_ms":-9000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[domain.ViewState](t, rec).TimeOffset)

	rec = do(t, h, http.MethodPost, "/api/view/pan", `{"delta_ms":9223372036854775807}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, svc.Engine().View().TimeOffset)

	rec = do(t, h, http.MethodPut, "/api/view", `{"price_zoom":1.5,"time_offset":0,"visible_price_range_percent":120,"layout_mode":"grid"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/view", `{"price_zoom":1.5,"time_offset":0,"visible_price_range_percent":10,"layout_mode":"split"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[domain.ViewState](t, rec)
	assert.Equal(t, domain.LayoutSplit, view.LayoutMode)

	rec = do(t, h, http.MethodPost, "/api/view/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view = decode[domain.ViewState](t, rec)
	assert.Equal(t, 1.0, view.PriceZoom)
	assert.Zero(t, view.TimeOffset)
	assert.Equal(t, domain.LayoutSplit, view.LayoutMode)
}

func TestVenueEndpoints(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodPut, "/api/venues", `{"venues":["okx"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"okx"}, decode[map[string][]string](t, rec)["venues"])

	rec = do(t, h, http.MethodPut, "/api/venues", `{"venues":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/venues", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"venues":["okx"]`)

	// No caches or event store are wired in this router.
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/prices", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/venues/okx/book", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/session/events", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/session/events?limit=-1", "").Code)
}

func TestParseTime(t *testing.T) {
	got, err := parseTime("1772460000000")
	require.NoError(t, err)
	assert.Equal(t, t0, got)

	got, err = parseTime("2026-03-02T14:00:00Z")
	require.NoError(t, err)
	assert.True(t, got.Equal(t0))

	_, err = parseTime("yesterday")
	assert.ErrorIs(t, err, errBadRequest)
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
