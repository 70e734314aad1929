package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/bookmap/internal/service"
)

// HealthHandler serves liveness and status.
type HealthHandler struct {
	svc       *service.HeatmapService
	mode      string
	startedAt time.Time
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(svc *service.HeatmapService, mode string, startedAt time.Time) *HealthHandler {
	return &HealthHandler{svc: svc, mode: mode, startedAt: startedAt}
}

// HealthCheck reports that the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Status reports the symbol, mode, venues and window statistics.
// GET /api/status
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	engine := h.svc.Engine()
	body := map[string]any{
		"mode":           h.mode,
		"started_at":     h.startedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"view":           engine.View(),
		"window":         engine.Stats(),
		"last_price":     nil,
	}
	if p, err := engine.CurrentPrice(); err == nil {
		body["last_price"] = p
	}
	writeJSON(w, http.StatusOK, body)
}
