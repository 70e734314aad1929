package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alanyoungcy/bookmap/internal/service"
)

// VenueHandler serves the venue set, latest books and prices, and the
// session event log.
type VenueHandler struct {
	svc *service.HeatmapService
}

// NewVenueHandler creates a VenueHandler.
func NewVenueHandler(svc *service.HeatmapService) *VenueHandler {
	return &VenueHandler{svc: svc}
}

// List returns the active venues and those with data in the window.
// GET /api/venues
func (h *VenueHandler) List(w http.ResponseWriter, r *http.Request) {
	st := h.svc.Engine().Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":      st.Symbol,
		"venues":      st.Venues,
		"data_venues": st.DataVenues,
	})
}

// Put replaces the active venue set.
// PUT /api/venues  {"venues":["binance","okx"]}
func (h *VenueHandler) Put(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Venues []string `json:"venues"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeErr(w, err)
		return
	}
	venues, err := h.svc.SetVenues(r.Context(), body.Venues)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"venues": venues})
}

// Book returns the last raw book of a venue.
// GET /api/venues/{id}/book
func (h *VenueHandler) Book(w http.ResponseWriter, r *http.Request) {
	book, err := h.svc.LatestBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// Prices returns the last trade price per venue.
// GET /api/prices
func (h *VenueHandler) Prices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.svc.LatestPrices(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prices)
}

// SessionEvents lists recorded session changes.
// GET /api/session/events?limit=&offset=&since=&until=
func (h *VenueHandler) SessionEvents(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	events, err := h.svc.SessionEvents(r.Context(), opts)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
