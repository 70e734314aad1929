package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alanyoungcy/bookmap/internal/domain"
	"github.com/alanyoungcy/bookmap/internal/service"
)

// HeatmapHandler serves layout, panels, cells, trace and minimap.
type HeatmapHandler struct {
	svc *service.HeatmapService
}

// NewHeatmapHandler creates a HeatmapHandler.
func NewHeatmapHandler(svc *service.HeatmapService) *HeatmapHandler {
	return &HeatmapHandler{svc: svc}
}

// Layout returns the current layout.
// GET /api/layout
func (h *HeatmapHandler) Layout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Engine().GetLayout())
}

// SetLayoutMode changes the layout mode.
// PUT /api/layout/mode  {"mode":"grid"}
func (h *HeatmapHandler) SetLayoutMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeErr(w, err)
		return
	}
	mode, err := domain.ParseLayoutMode(body.Mode)
	if err != nil {
		writeErr(w, err)
		return
	}
	if _, err := h.svc.SetLayoutMode(r.Context(), mode); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Engine().GetLayout())
}

// Panels positions every panel of the session view on the canvas.
// GET /api/panels?width=&height=
func (h *HeatmapHandler) Panels(w http.ResponseWriter, r *http.Request) {
	panels, err := h.visiblePanels(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, panels)
}

// Cells returns the mapped frame of one panel.
// GET /api/panels/{index}/cells?width=&height=
func (h *HeatmapHandler) Cells(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeErr(w, badRequest("panel index must be an integer"))
		return
	}
	panels, err := h.visiblePanels(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if index < 0 || index >= len(panels) {
		writeErr(w, fmt.Errorf("panel %d: %w", index, domain.ErrUnknownPanel))
		return
	}
	frame, err := h.svc.Engine().GetCells(panels[index])
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, frame)
}

func (h *HeatmapHandler) visiblePanels(r *http.Request) ([]domain.VisiblePanel, error) {
	canvas, err := parseCanvas(r)
	if err != nil {
		return nil, err
	}
	engine := h.svc.Engine()
	return engine.GetVisiblePanels(engine.View(), canvas)
}

// Trace returns raw trace points, by default over the whole window.
// GET /api/trace?from=&to=
func (h *HeatmapHandler) Trace(w http.ResponseWriter, r *http.Request) {
	tr := domain.TimeRange{To: time.Now().UTC()}
	tr.From = tr.To.Add(-h.svc.Engine().Config().TimeWindow)

	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			writeErr(w, err)
			return
		}
		tr.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			writeErr(w, err)
			return
		}
		tr.To = t
	}
	if tr.To.Before(tr.From) {
		writeErr(w, badRequest("to is before from"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"range":  tr,
		"points": h.svc.Engine().Trace(tr),
	})
}

// Minimap returns the whole-window overview.
// GET /api/minimap?width=&height=
func (h *HeatmapHandler) Minimap(w http.ResponseWriter, r *http.Request) {
	canvas, err := parseCanvas(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	mm, err := h.svc.Engine().GetMinimap(canvas)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mm)
}
