package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/lobwatch/internal/projector"
)

// ViewSource returns the latest published projection.
type ViewSource interface {
	Views() *projector.Views
}

// ViewsHandler serves panel datasets.
type ViewsHandler struct {
	src    ViewSource
	logger *slog.Logger
}

// NewViewsHandler creates a ViewsHandler reading from src.
func NewViewsHandler(src ViewSource, logger *slog.Logger) *ViewsHandler {
	return &ViewsHandler{src: src, logger: logger}
}

// GetViews returns every panel.
// GET /api/views
func (h *ViewsHandler) GetViews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.src.Views())
}

// GetPanel returns a single panel by name.
// GET /api/views/{panel}
func (h *ViewsHandler) GetPanel(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("panel")
	panel, ok := h.src.Views().Panel(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown panel "+name)
		return
	}
	writeJSON(w, http.StatusOK, panel)
}

// ListPanels returns the panel names in display order.
// GET /api/panels
func (h *ViewsHandler) ListPanels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"panels": projector.PanelNames})
}
