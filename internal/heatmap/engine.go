package heatmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

// Config holds the engine parameters. All of them are validated by New;
// nothing is re-checked per snapshot.
type Config struct {
	Symbol                   string
	Venues                   []string
	BucketSize               float64
	TimeWindow               time.Duration
	Resolution               time.Duration
	MinPriceLevels           int
	LayoutMode               domain.LayoutMode
	VisiblePriceRangePercent float64
	Zoom                     ZoomBounds
	IntensityScale           IntensityScale
	Palette                  []string
	PanelGap                 float64
	PriceTicks               int
	TimeTicks                int
	ShowMinimap              bool
	QueueSize                int
	EvictInterval            time.Duration
}

// Recorder receives engine measurements. The instrumentation package
// provides a Prometheus implementation.
type Recorder interface {
	SnapshotIngested(venue string)
	SnapshotDropped(venue, reason string)
	SnapshotsEvicted(n int)
	WindowSize(snapshots int)
	TracePoints(n int)
	QueryLatency(op string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) SnapshotIngested(string)            {}
func (nopRecorder) SnapshotDropped(string, string)     {}
func (nopRecorder) SnapshotsEvicted(int)               {}
func (nopRecorder) WindowSize(int)                     {}
func (nopRecorder) TracePoints(int)                    {}
func (nopRecorder) QueryLatency(string, time.Duration) {}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used for visible time ranges and
// stale-data eviction.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// update is one item on the ingestion queue.
type update struct {
	book  *domain.VenueBook
	trade *domain.TradePrice
}

// Engine owns the window, the price trace and the session view, and answers
// the renderer's pull queries. Appends are serialized; queries read
// copy-on-read snapshots and may run concurrently with ingestion.
type Engine struct {
	cfg        Config
	bucketer   *Bucketer
	normalizer *Normalizer
	buffer     *WindowBuffer
	trace      *PriceHistory
	view       *View
	palette    Palette
	updates    chan update
	recorder   Recorder
	logger     *slog.Logger
	now        func() time.Time

	ingestMu sync.Mutex

	mu      sync.RWMutex
	venues  []string
	removed map[string]bool
	seed    domain.PricePoint

	peakMu      sync.Mutex
	peakVersion uint64
	peaks       map[string]float64
}

// New validates cfg and returns an idle engine. Invalid parameters fail with
// domain.ErrInvalidConfig and nothing is started.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if cfg.TimeWindow <= 0 {
		return nil, fmt.Errorf("heatmap: time window %s: %w", cfg.TimeWindow, domain.ErrInvalidConfig)
	}
	if cfg.Resolution <= 0 {
		cfg.Resolution = time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.EvictInterval <= 0 {
		cfg.EvictInterval = time.Second
	}
	if cfg.IntensityScale == "" {
		cfg.IntensityScale = ScaleSqrt
	}
	if _, err := ParseIntensityScale(string(cfg.IntensityScale)); err != nil {
		return nil, err
	}
	if len(cfg.Palette) == 0 {
		cfg.Palette = DefaultPalette
	}

	bucketer, err := NewBucketer(cfg.BucketSize)
	if err != nil {
		return nil, err
	}
	normalizer, err := NewNormalizer(bucketer, cfg.MinPriceLevels)
	if err != nil {
		return nil, err
	}
	buffer, err := NewWindowBuffer(cfg.Resolution)
	if err != nil {
		return nil, err
	}
	view, err := NewView(cfg.VisiblePriceRangePercent, cfg.LayoutMode, cfg.Zoom)
	if err != nil {
		return nil, err
	}
	palette, err := ParsePalette(cfg.Palette)
	if err != nil {
		return nil, err
	}
	venues, err := uniqueVenues(cfg.Venues)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		bucketer:   bucketer,
		normalizer: normalizer,
		buffer:     buffer,
		trace:      NewPriceHistory(cfg.TimeWindow),
		view:       view,
		palette:    palette,
		updates:    make(chan update, cfg.QueueSize),
		recorder:   nopRecorder{},
		logger:     logger.With(slog.String("component", "heatmap"), slog.String("symbol", cfg.Symbol)),
		now:        time.Now,
		venues:     venues,
		removed:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Symbol returns the instrument the engine displays.
func (e *Engine) Symbol() string {
	return e.cfg.Symbol
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// ---------------------------------------------------------------------------
// Ingestion
// ---------------------------------------------------------------------------

// SubmitBook queues a book for the ingestion loop started by Run.
func (e *Engine) SubmitBook(ctx context.Context, book domain.VenueBook) error {
	select {
	case e.updates <- update{book: &book}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitTrade queues a trade for the ingestion loop started by Run.
func (e *Engine) SubmitTrade(ctx context.Context, trade domain.TradePrice) error {
	select {
	case e.updates <- update{trade: &trade}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the single writer: it drains the ingestion queue and periodically
// evicts data that has aged out by the wall clock, so a stalled transport
// empties the window instead of freezing it. It blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.EvictInterval)
	defer ticker.Stop()

	e.logger.InfoContext(ctx, "heatmap: engine started",
		slog.Int("venues", len(e.Venues())),
		slog.Duration("window", e.cfg.TimeWindow),
		slog.Float64("bucket_size", e.cfg.BucketSize),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u := <-e.updates:
			var err error
			switch {
			case u.book != nil:
				err = e.Ingest(ctx, *u.book)
			case u.trade != nil:
				err = e.RecordTrade(ctx, *u.trade)
			}
			// Dropped updates are already logged and counted.
			if err != nil && !IsDropped(err) {
				e.logger.ErrorContext(ctx, "heatmap: update failed", slog.String("error", err.Error()))
			}
		case <-ticker.C:
			e.EvictStale()
		}
	}
}

// Ingest normalizes book and appends it to the window, then evicts snapshots
// older than the window relative to the newest one. Malformed and
// out-of-order books are dropped, logged and returned as errors; the window
// is left untouched.
func (e *Engine) Ingest(ctx context.Context, book domain.VenueBook) error {
	e.ingestMu.Lock()
	defer e.ingestMu.Unlock()

	snap, err := e.normalizer.Normalize(book, e.buffer.Prices())
	if err != nil {
		e.dropped(ctx, book.VenueID, "malformed", err)
		return err
	}
	if err := e.buffer.Append(snap); err != nil {
		e.dropped(ctx, book.VenueID, "out_of_order", err)
		return err
	}
	e.addVenue(book.VenueID)

	if bounds, ok := e.buffer.Bounds(); ok {
		if n := e.buffer.Evict(bounds.To, e.cfg.TimeWindow); n > 0 {
			e.recorder.SnapshotsEvicted(n)
		}
	}
	e.recorder.SnapshotIngested(book.VenueID)
	e.recorder.WindowSize(e.buffer.Len())
	return nil
}

// RecordTrade appends a trade to the price trace.
func (e *Engine) RecordTrade(ctx context.Context, trade domain.TradePrice) error {
	err := e.trace.Append(domain.PricePoint{Timestamp: trade.Timestamp, Price: trade.Price})
	if err != nil {
		e.logger.DebugContext(ctx, "heatmap: trade dropped",
			slog.String("venue", trade.VenueID),
			slog.String("error", err.Error()),
		)
		return err
	}
	e.recorder.TracePoints(e.trace.Len())
	return nil
}

// EvictStale drops window snapshots and trace points older than the window
// relative to the wall clock, returning the number of snapshots removed.
func (e *Engine) EvictStale() int {
	now := e.now()
	n := e.buffer.Evict(now, e.cfg.TimeWindow)
	e.trace.Trim(now)
	if n > 0 {
		e.recorder.SnapshotsEvicted(n)
		e.recorder.WindowSize(e.buffer.Len())
	}
	e.recorder.TracePoints(e.trace.Len())
	return n
}

func (e *Engine) dropped(ctx context.Context, venue, reason string, err error) {
	e.recorder.SnapshotDropped(venue, reason)
	e.logger.WarnContext(ctx, "heatmap: snapshot dropped",
		slog.String("venue", venue),
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
}

// ---------------------------------------------------------------------------
// Venues and view
// ---------------------------------------------------------------------------

// Venues returns the active venue set in display order.
func (e *Engine) Venues() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.venues))
	copy(out, e.venues)
	return out
}

// SetVenues replaces the active venue set and resets the view. Data already
// in the window is kept. Venues dropped from the set stay out of it, and out
// of combined totals, even when their books keep arriving.
func (e *Engine) SetVenues(ids []string) error {
	venues, err := uniqueVenues(ids)
	if err != nil {
		return err
	}
	if len(venues) == 0 {
		return fmt.Errorf("heatmap: empty venue set: %w", domain.ErrInvalidConfig)
	}
	e.mu.Lock()
	for _, v := range e.venues {
		e.removed[v] = true
	}
	for _, v := range venues {
		delete(e.removed, v)
	}
	e.venues = venues
	e.mu.Unlock()

	e.peakMu.Lock()
	e.peaks = nil
	e.peakMu.Unlock()

	e.view.Reset()
	return nil
}

func (e *Engine) hasVenue(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, v := range e.venues {
		if v == id {
			return true
		}
	}
	return false
}

// addVenue extends the active set with a venue first seen in the data,
// unless SetVenues removed it.
func (e *Engine) addVenue(id string) {
	if e.hasVenue(id) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed[id] {
		return
	}
	for _, v := range e.venues {
		if v == id {
			return
		}
	}
	e.venues = append(e.venues, id)
	e.logger.Info("heatmap: venue added", slog.String("venue", id))
}

// View returns the session view state.
func (e *Engine) View() domain.ViewState {
	return e.view.State()
}

// SetView replaces the session view state.
func (e *Engine) SetView(s domain.ViewState) (domain.ViewState, error) {
	return e.view.Set(s)
}

// Zoom multiplies the session price zoom by factor.
func (e *Engine) Zoom(factor float64) (domain.ViewState, error) {
	return e.view.Zoom(factor)
}

// Pan moves the session view back in time by delta (forward when negative).
func (e *Engine) Pan(delta time.Duration) domain.ViewState {
	return e.view.Pan(delta)
}

// ResetView restores zoom 1 and no pan.
func (e *Engine) ResetView() domain.ViewState {
	return e.view.Reset()
}

// SetLayoutMode changes the session layout mode.
func (e *Engine) SetLayoutMode(mode domain.LayoutMode) (domain.ViewState, error) {
	return e.view.SetLayoutMode(mode)
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// GetLayout returns the layout for the active venues and the session mode.
func (e *Engine) GetLayout() domain.LayoutConfig {
	layout, err := ComputeLayout(e.Venues(), e.view.State().LayoutMode)
	if err != nil {
		// The session mode is validated on every change.
		e.logger.Error("heatmap: compute layout", slog.String("error", err.Error()))
	}
	return layout
}

// GetVisiblePanels positions every panel of view's layout on canvas and
// attaches the time and price ranges view selects. With no current trade
// price the price range comes from the data; with no data either it is empty.
func (e *Engine) GetVisiblePanels(view domain.ViewState, canvas domain.Rect) ([]domain.VisiblePanel, error) {
	start := time.Now()
	defer func() { e.recorder.QueryLatency("visible_panels", time.Since(start)) }()

	if err := ValidateView(view); err != nil {
		return nil, err
	}
	layout, err := ComputeLayout(e.Venues(), view.LayoutMode)
	if err != nil {
		return nil, err
	}
	rects := PanelRects(layout, canvas, e.cfg.PanelGap)
	tr := VisibleTimeRange(view, e.now(), e.cfg.TimeWindow)
	pr, src := e.visiblePriceRange(view)

	out := make([]domain.VisiblePanel, len(layout.Panels))
	for i, p := range layout.Panels {
		out[i] = domain.VisiblePanel{
			Panel:       p,
			Rect:        rects[i],
			Time:        tr,
			Price:       pr,
			PriceSource: src,
		}
	}
	return out, nil
}

// GetCells maps the window data for panel over its time and price range into
// panel-local cells, together with the trace overlay and axis ticks. An empty
// window yields an empty frame, not an error.
func (e *Engine) GetCells(panel domain.VisiblePanel) (domain.PanelFrame, error) {
	start := time.Now()
	defer func() { e.recorder.QueryLatency("cells", time.Since(start)) }()

	if !panel.IsCombined && !e.hasVenue(panel.Venue) {
		return domain.PanelFrame{}, fmt.Errorf("heatmap: venue %q: %w", panel.Venue, domain.ErrUnknownPanel)
	}

	m := Mapper{
		Width:        panel.Rect.W,
		Height:       panel.Rect.H,
		Time:         panel.Time,
		Price:        panel.Price,
		MaxLiquidity: e.peak(panel.Panel),
		CellDuration: e.cfg.Resolution,
		BucketSize:   e.cfg.BucketSize,
		Scale:        e.cfg.IntensityScale,
		Palette:      e.palette,
	}
	if panel.IsCombined {
		m.Venues = e.Venues()
	}

	frame := domain.PanelFrame{
		Panel:        panel,
		Cells:        []domain.Cell{},
		Trace:        []domain.TracePoint{},
		MaxLiquidity: m.MaxLiquidity,
	}
	if panel.Price.Empty() || panel.Time.Duration() <= 0 {
		return frame, nil
	}

	for _, s := range e.buffer.QueryRange(panel.Time, panel.Price) {
		if panel.IsCombined {
			frame.Cells = append(frame.Cells, m.MapCombined(s)...)
		} else {
			frame.Cells = append(frame.Cells, m.MapVenue(s, panel.Venue)...)
		}
	}
	frame.Trace = m.MapTrace(e.trace.Range(panel.Time))
	frame.PriceTicks = m.PriceTicks(e.cfg.PriceTicks)
	frame.TimeTicks = m.TimeTicks(e.cfg.TimeTicks)
	return frame, nil
}

// GetMinimap returns a combined overview of the whole window, ignoring zoom
// and pan and downsampled to one cell per canvas pixel, plus the rectangle
// the session view currently shows.
func (e *Engine) GetMinimap(canvas domain.Rect) (domain.Minimap, error) {
	if !e.cfg.ShowMinimap {
		return domain.Minimap{}, fmt.Errorf("heatmap: minimap disabled: %w", domain.ErrNotFound)
	}

	now := e.now()
	tr := domain.TimeRange{From: now.Add(-e.cfg.TimeWindow), To: now}
	pr, ok := e.dataPriceRange()
	src := domain.PriceSourceData
	if !ok {
		src = domain.PriceSourceNone
	}

	frame, err := e.GetCells(domain.VisiblePanel{
		Panel:       domain.Panel{Venue: domain.CombinedVenue, WidthSpan: 1, IsCombined: true},
		Rect:        canvas,
		Time:        tr,
		Price:       pr,
		PriceSource: src,
	})
	if err != nil {
		return domain.Minimap{}, err
	}

	frame.Cells = Downsample(frame.Cells)
	out := domain.Minimap{Frame: frame}
	if ok {
		view := e.view.State()
		vtr := VisibleTimeRange(view, now, e.cfg.TimeWindow)
		vpr, _ := e.visiblePriceRange(view)
		m := Mapper{Width: canvas.W, Height: canvas.H, Time: tr, Price: pr}
		x0, x1 := m.X(vtr.From), m.X(vtr.To)
		y0, y1 := m.Y(vpr.Max), m.Y(vpr.Min)
		out.Viewport = domain.Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
	}
	return out, nil
}

// Trace returns the trace points inside tr.
func (e *Engine) Trace(tr domain.TimeRange) []domain.PricePoint {
	return e.trace.Range(tr)
}

// SeedPrice sets the price used as current until the trace has a point of
// its own, typically a last trade restored from a cache after a restart.
// The seed expires with the window like any trace point.
func (e *Engine) SeedPrice(p domain.PricePoint) error {
	if p.Price <= 0 || p.Timestamp.IsZero() {
		return fmt.Errorf("heatmap: seed price %v at %s: %w", p.Price, p.Timestamp, domain.ErrMalformedSnapshot)
	}
	e.mu.Lock()
	e.seed = p
	e.mu.Unlock()
	return nil
}

// CurrentPrice returns the latest trace point, or the seed price while the
// trace is empty. It fails with domain.ErrStalePrice when neither lies inside
// the window.
func (e *Engine) CurrentPrice() (domain.PricePoint, error) {
	if p, ok := e.trace.Last(); ok {
		return p, nil
	}
	e.mu.RLock()
	seed := e.seed
	e.mu.RUnlock()
	if !seed.Timestamp.IsZero() && !seed.Timestamp.Before(e.now().Add(-e.cfg.TimeWindow)) {
		return seed, nil
	}
	return domain.PricePoint{}, fmt.Errorf("heatmap: %s: %w", e.cfg.Symbol, domain.ErrStalePrice)
}

// Version changes whenever the window contents change.
func (e *Engine) Version() uint64 {
	return e.buffer.Version()
}

// Stats summarises the window for status reporting.
type Stats struct {
	Symbol      string        `json:"symbol"`
	Venues      []string      `json:"venues"`
	DataVenues  []string      `json:"data_venues"`
	Snapshots   int           `json:"snapshots"`
	PriceLevels int           `json:"price_levels"`
	TracePoints int           `json:"trace_points"`
	Oldest      time.Time     `json:"oldest,omitempty"`
	Newest      time.Time     `json:"newest,omitempty"`
	Window      time.Duration `json:"window"`
}

// Stats returns a summary of the current window.
func (e *Engine) Stats() Stats {
	st := Stats{
		Symbol:      e.cfg.Symbol,
		Venues:      e.Venues(),
		DataVenues:  e.buffer.Venues(),
		Snapshots:   e.buffer.Len(),
		PriceLevels: len(e.buffer.Prices()),
		TracePoints: e.trace.Len(),
		Window:      e.cfg.TimeWindow,
	}
	if b, ok := e.buffer.Bounds(); ok {
		st.Oldest, st.Newest = b.From, b.To
	}
	return st
}

// visiblePriceRange resolves view's price range, preferring the latest
// trade price and falling back to the data range when it is stale.
func (e *Engine) visiblePriceRange(view domain.ViewState) (domain.PriceRange, domain.PriceSource) {
	last, err := e.CurrentPrice()
	data, hasData := e.dataPriceRange()
	return VisiblePriceRange(view, last.Price, err == nil, data, hasData)
}

// dataPriceRange returns the axis bounds, widened by one bucket on each side
// when the axis holds a single price.
func (e *Engine) dataPriceRange() (domain.PriceRange, bool) {
	r, ok := e.buffer.PriceBounds()
	if !ok {
		return r, false
	}
	if r.Span() == 0 {
		r.Min -= e.cfg.BucketSize
		r.Max += e.cfg.BucketSize
	}
	return r, true
}

// peak returns the largest liquidity the panel kind reaches anywhere in the
// window. Results are cached until the window changes.
func (e *Engine) peak(panel domain.Panel) float64 {
	version := e.buffer.Version()
	key := panel.Venue
	if panel.IsCombined {
		key = domain.CombinedVenue
	}

	e.peakMu.Lock()
	defer e.peakMu.Unlock()
	if e.peaks == nil || e.peakVersion != version {
		e.peaks = make(map[string]float64)
		e.peakVersion = version
	}
	if v, ok := e.peaks[key]; ok {
		return v
	}

	snaps := e.buffer.Snapshots()
	var v float64
	if panel.IsCombined {
		v = maxCombinedLiquidity(snaps, e.Venues()...)
	} else {
		v = maxVenueLiquidity(snaps, panel.Venue)
	}
	e.peaks[key] = v
	return v
}

func uniqueVenues(ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("heatmap: empty venue id: %w", domain.ErrInvalidConfig)
		}
		if id == domain.CombinedVenue {
			return nil, fmt.Errorf("heatmap: venue id %q is reserved: %w", id, domain.ErrInvalidConfig)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// IsDropped reports whether err is one of the per-snapshot rejections that
// Ingest logs and recovers from.
func IsDropped(err error) bool {
	return errors.Is(err, domain.ErrMalformedSnapshot) || errors.Is(err, domain.ErrOutOfOrder)
}
