package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/bookmap/internal/domain"
	"github.com/alanyoungcy/bookmap/internal/service"
)

// ViewHandler reads and changes the session view.
type ViewHandler struct {
	svc *service.HeatmapService
}

// NewViewHandler creates a ViewHandler.
func NewViewHandler(svc *service.HeatmapService) *ViewHandler {
	return &ViewHandler{svc: svc}
}

// Get returns the session view.
// GET /api/view
func (h *ViewHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Engine().View())
}

// Put replaces the session view.
// PUT /api/view
func (h *ViewHandler) Put(w http.ResponseWriter, r *http.Request) {
	var v domain.ViewState
	if err := decodeBody(w, r, &v); err != nil {
		writeErr(w, err)
		return
	}
	state, err := h.svc.Engine().SetView(v)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Zoom multiplies the price zoom.
// POST /api/view/zoom  {"factor":2}
func (h *ViewHandler) Zoom(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Factor float64 `json:"factor"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeErr(w, err)
		return
	}
	state, err := h.svc.Engine().Zoom(body.Factor)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Pan moves the time window back by delta_ms (forward when negative).
// POST /api/view/pan  {"delta_ms":5000}
func (h *ViewHandler) Pan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DeltaMs int64 `json:"delta_ms"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeErr(w, err)
		return
	}
	if body.DeltaMs > maxPanMs || body.DeltaMs < -maxPanMs {
		writeErr(w, badRequest("delta_ms must be within [-%d, %d]", maxPanMs, maxPanMs))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Engine().Pan(time.Duration(body.DeltaMs)*time.Millisecond))
}

// Reset restores zoom 1 and no pan.
// POST /api/view/reset
func (h *ViewHandler) Reset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ResetView(r.Context()))
}
