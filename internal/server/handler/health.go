package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/lobwatch/internal/projector"
	"github.com/alanyoungcy/lobwatch/internal/selection"
)

// StatusSource reports the live dashboard state. *dashboard.Dashboard
// implements it.
type StatusSource interface {
	Views() *projector.Views
	State() selection.State
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	src       StatusSource
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided logger.
func NewHealthHandler(src StatusSource, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{src: src, startedAt: time.Now(), logger: logger}
}

// HealthCheck responds with a JSON status indicating the server is alive,
// along with buffer occupancy and the selection state.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"buffer_len":     h.src.Views().BufferLen,
		"selection":      h.src.State().String(),
	})
}
