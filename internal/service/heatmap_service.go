package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/bookmap/internal/domain"
	"github.com/alanyoungcy/bookmap/internal/heatmap"
)

// Channels published by HeatmapService.
const (
	PricesChannel = "prices"
	updatePrefix  = "heatmap:"
)

// UpdateChannel returns the update notification channel for symbol.
func UpdateChannel(symbol string) string {
	return updatePrefix + symbol
}

// Session event names.
const (
	EventLayoutChanged = "layout_changed"
	EventVenuesChanged = "venues_changed"
	EventViewReset     = "view_reset"
)

// UpdateEvent is the advisory notification sent when the window changes.
type UpdateEvent struct {
	Type      string    `json:"type"`
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Venues    []string  `json:"venues"`
	Snapshots int       `json:"snapshots"`
	Version   uint64    `json:"version"`
}

// TradeEvent is published on the prices channel for every trade.
type TradeEvent struct {
	Type      string    `json:"type"`
	Venue     string    `json:"venue"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// Deps holds the optional collaborators of HeatmapService. Nil fields
// disable the matching feature.
type Deps struct {
	Bus        domain.SignalBus
	PriceCache domain.PriceCache
	BookCache  domain.BookCache
	Venues     domain.VenueStore
	Events     domain.SessionEventStore
}

// HeatmapService connects feeds to the engine, keeps the latest-state caches
// current, publishes update notifications and records session changes.
type HeatmapService struct {
	engine          *heatmap.Engine
	deps            Deps
	publishInterval time.Duration
	logger          *slog.Logger
}

// NewHeatmapService creates a HeatmapService around engine.
func NewHeatmapService(engine *heatmap.Engine, deps Deps, publishInterval time.Duration, logger *slog.Logger) *HeatmapService {
	if publishInterval <= 0 {
		publishInterval = 250 * time.Millisecond
	}
	return &HeatmapService{
		engine:          engine,
		deps:            deps,
		publishInterval: publishInterval,
		logger:          logger.With(slog.String("component", "heatmap_service")),
	}
}

// Engine returns the underlying engine.
func (s *HeatmapService) Engine() *heatmap.Engine {
	return s.engine
}

// HandleBook caches book and queues it for the engine.
func (s *HeatmapService) HandleBook(ctx context.Context, book domain.VenueBook) {
	if s.deps.BookCache != nil {
		if err := s.deps.BookCache.SetBook(ctx, book); err != nil {
			s.logger.WarnContext(ctx, "heatmap_service: cache book failed",
				slog.String("venue", book.VenueID),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.engine.SubmitBook(ctx, book); err != nil && ctx.Err() == nil {
		s.logger.WarnContext(ctx, "heatmap_service: submit book failed", slog.String("error", err.Error()))
	}
}

// HandleTrade caches the trade price, queues it for the trace and publishes
// it on the prices channel.
func (s *HeatmapService) HandleTrade(ctx context.Context, trade domain.TradePrice) {
	if s.deps.PriceCache != nil {
		if err := s.deps.PriceCache.SetPrice(ctx, trade.VenueID, trade.Price, trade.Timestamp); err != nil {
			s.logger.WarnContext(ctx, "heatmap_service: cache price failed",
				slog.String("venue", trade.VenueID),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.engine.SubmitTrade(ctx, trade); err != nil && ctx.Err() == nil {
		s.logger.WarnContext(ctx, "heatmap_service: submit trade failed", slog.String("error", err.Error()))
	}
	s.publish(ctx, PricesChannel, TradeEvent{
		Type:      "trade",
		Venue:     trade.VenueID,
		Symbol:    trade.Symbol,
		Price:     trade.Price,
		Size:      trade.Size,
		Timestamp: trade.Timestamp,
	})
}

// RunPublisher publishes an UpdateEvent on UpdateChannel every
// publishInterval in which the window changed. It blocks until ctx is done.
func (s *HeatmapService) RunPublisher(ctx context.Context) error {
	if s.deps.Bus == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(s.publishInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			last = s.publishIfChanged(ctx, last)
		}
	}
}

func (s *HeatmapService) publishIfChanged(ctx context.Context, last uint64) uint64 {
	v := s.engine.Version()
	if v == last {
		return last
	}
	st := s.engine.Stats()
	s.publish(ctx, UpdateChannel(st.Symbol), UpdateEvent{
		Type:      "heatmap_update",
		Symbol:    st.Symbol,
		Timestamp: st.Newest,
		Venues:    st.DataVenues,
		Snapshots: st.Snapshots,
		Version:   v,
	})
	return v
}

func (s *HeatmapService) publish(ctx context.Context, channel string, v any) {
	if s.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.ErrorContext(ctx, "heatmap_service: marshal event", slog.String("error", err.Error()))
		return
	}
	if err := s.deps.Bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "heatmap_service: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// ---------------------------------------------------------------------------
// Venue catalog
// ---------------------------------------------------------------------------

// SyncCatalog registers feeds in the venue catalog and merges the catalog's
// enabled venues for the symbol into the active set. Without a store the
// configured venues are used as-is.
func (s *HeatmapService) SyncCatalog(ctx context.Context, feeds []domain.Venue) ([]string, error) {
	active := s.engine.Venues()
	if s.deps.Venues == nil {
		return active, nil
	}
	for _, v := range feeds {
		if err := s.deps.Venues.Upsert(ctx, v); err != nil {
			return nil, fmt.Errorf("heatmap_service: register venue %s: %w", v.ID, err)
		}
	}
	stored, err := s.deps.Venues.ListEnabled(ctx, s.engine.Symbol())
	if err != nil {
		return nil, fmt.Errorf("heatmap_service: list venues: %w", err)
	}
	merged := active
	seen := make(map[string]bool, len(active))
	for _, id := range active {
		seen[id] = true
	}
	for _, v := range stored {
		if !seen[v.ID] {
			seen[v.ID] = true
			merged = append(merged, v.ID)
		}
	}
	if len(merged) != len(active) {
		if err := s.engine.SetVenues(merged); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "heatmap_service: venues merged from catalog", slog.Any("venues", merged))
	}
	return merged, nil
}

// ---------------------------------------------------------------------------
// Session changes
// ---------------------------------------------------------------------------

// SetLayoutMode changes the layout mode and records the change.
func (s *HeatmapService) SetLayoutMode(ctx context.Context, mode domain.LayoutMode) (domain.ViewState, error) {
	prev := s.engine.View().LayoutMode
	view, err := s.engine.SetLayoutMode(mode)
	if err != nil {
		return view, err
	}
	s.record(ctx, EventLayoutChanged, map[string]any{"from": string(prev), "to": string(mode)})
	return view, nil
}

// SetVenues replaces the active venue set, mirrors it into the catalog's
// enabled flags and records the change.
func (s *HeatmapService) SetVenues(ctx context.Context, ids []string) ([]string, error) {
	prev := s.engine.Venues()
	if err := s.engine.SetVenues(ids); err != nil {
		return nil, err
	}
	venues := s.engine.Venues()
	s.persistEnabled(ctx, prev, venues)
	s.record(ctx, EventVenuesChanged, map[string]any{"venues": venues})
	return venues, nil
}

// persistEnabled disables catalog venues that left the active set and
// enables the ones in it. Venues missing from the catalog are skipped.
func (s *HeatmapService) persistEnabled(ctx context.Context, prev, active []string) {
	if s.deps.Venues == nil {
		return
	}
	enabled := make(map[string]bool, len(prev)+len(active))
	for _, id := range prev {
		enabled[id] = false
	}
	for _, id := range active {
		enabled[id] = true
	}
	for id, on := range enabled {
		err := s.deps.Venues.SetEnabled(ctx, id, on)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "heatmap_service: persist venue state failed",
				slog.String("venue", id),
				slog.Bool("enabled", on),
				slog.String("error", err.Error()),
			)
		}
	}
}

// ResetView restores the default view and records the reset.
func (s *HeatmapService) ResetView(ctx context.Context) domain.ViewState {
	view := s.engine.ResetView()
	s.record(ctx, EventViewReset, nil)
	return view
}

func (s *HeatmapService) record(ctx context.Context, event string, detail map[string]any) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "heatmap_service: record session event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// SessionEvents lists recorded session events.
func (s *HeatmapService) SessionEvents(ctx context.Context, opts domain.ListOpts) ([]domain.SessionEvent, error) {
	if s.deps.Events == nil {
		return nil, fmt.Errorf("heatmap_service: session events: %w", domain.ErrNotFound)
	}
	return s.deps.Events.List(ctx, opts)
}

// ---------------------------------------------------------------------------
// Latest state
// ---------------------------------------------------------------------------

// LatestPrices returns the last trade price of every active venue that has
// one.
func (s *HeatmapService) LatestPrices(ctx context.Context) (map[string]float64, error) {
	if s.deps.PriceCache == nil {
		return nil, fmt.Errorf("heatmap_service: price cache: %w", domain.ErrNotFound)
	}
	prices, err := s.deps.PriceCache.GetPrices(ctx, s.engine.Venues())
	if err != nil {
		return nil, fmt.Errorf("heatmap_service: latest prices: %w", err)
	}
	return prices, nil
}

// BookSummary is a cached raw book with its top of book.
type BookSummary struct {
	domain.VenueBook
	BestBid float64 `json:"best_bid"`
	BestAsk float64 `json:"best_ask"`
}

// LatestBook returns the last raw book received from venueID.
func (s *HeatmapService) LatestBook(ctx context.Context, venueID string) (BookSummary, error) {
	if s.deps.BookCache == nil {
		return BookSummary{}, fmt.Errorf("heatmap_service: book cache: %w", domain.ErrNotFound)
	}
	book, err := s.deps.BookCache.GetBook(ctx, venueID)
	if err != nil {
		return BookSummary{}, err
	}
	bid, ask, err := s.deps.BookCache.GetBBO(ctx, venueID)
	if err != nil {
		return BookSummary{}, fmt.Errorf("heatmap_service: bbo %s: %w", venueID, err)
	}
	return BookSummary{VenueBook: book, BestBid: bid, BestAsk: ask}, nil
}

// SeedPrice restores the newest cached trade price of the active venues as
// the engine's current price, so a restarted view centres on the market
// before the first new trade. It reports whether a price was restored.
func (s *HeatmapService) SeedPrice(ctx context.Context) (bool, error) {
	if s.deps.PriceCache == nil {
		return false, nil
	}
	var (
		best  domain.PricePoint
		venue string
	)
	for _, id := range s.engine.Venues() {
		price, ts, err := s.deps.PriceCache.GetPrice(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("heatmap_service: seed price %s: %w", id, err)
		}
		if venue == "" || ts.After(best.Timestamp) {
			best, venue = domain.PricePoint{Timestamp: ts, Price: price}, id
		}
	}
	if venue == "" {
		return false, nil
	}
	if err := s.engine.SeedPrice(best); err != nil {
		return false, fmt.Errorf("heatmap_service: seed price %s: %w", venue, err)
	}
	if _, err := s.engine.CurrentPrice(); err != nil {
		return false, nil
	}
	s.logger.InfoContext(ctx, "heatmap_service: price restored from cache",
		slog.String("venue", venue),
		slog.Float64("price", best.Price),
		slog.Time("at", best.Timestamp),
	)
	return true, nil
}
