package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/lobwatch/internal/domain"
	"github.com/alanyoungcy/lobwatch/internal/selection"
)

// Selector drives the hover state. *dashboard.Dashboard implements it.
type Selector interface {
	Hover(ctx context.Context, ts domain.Timestamp) error
	HoverGap(ctx context.Context, ts domain.Timestamp, price float64) error
	Unhover(ctx context.Context) error
	State() selection.State
}

// SelectionHandler exposes hover and unhover to a remote UI.
type SelectionHandler struct {
	sel    Selector
	logger *slog.Logger
}

// NewSelectionHandler creates a SelectionHandler.
func NewSelectionHandler(sel Selector, logger *slog.Logger) *SelectionHandler {
	return &SelectionHandler{sel: sel, logger: logHandler(logger, "selection")}
}

// hoverRequest names the snapshot to pin. GapPrice, when present, pins a gap
// marker of that snapshot instead of the plain point.
type hoverRequest struct {
	Timestamp domain.Timestamp `json:"timestamp"`
	GapPrice  *float64         `json:"gap_price,omitempty"`
}

type selectionResponse struct {
	State string `json:"state"`
}

// GetSelection reports the current selection state.
// GET /api/selection
func (h *SelectionHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, selectionResponse{State: h.sel.State().String()})
}

// Hover pins a buffered snapshot.
// POST /api/selection/hover {"timestamp": ..., "gap_price": ...}
func (h *SelectionHandler) Hover(w http.ResponseWriter, r *http.Request) {
	var req hoverRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Timestamp.IsZero() {
		writeError(w, http.StatusBadRequest, "timestamp is required")
		return
	}

	var err error
	if req.GapPrice != nil {
		err = h.sel.HoverGap(r.Context(), req.Timestamp, *req.GapPrice)
	} else {
		err = h.sel.Hover(r.Context(), req.Timestamp)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("hover failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, selectionResponse{State: h.sel.State().String()})
}

// Unhover returns the selection to live.
// DELETE /api/selection/hover
func (h *SelectionHandler) Unhover(w http.ResponseWriter, r *http.Request) {
	if err := h.sel.Unhover(r.Context()); err != nil {
		h.logger.Error("unhover failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, selectionResponse{State: h.sel.State().String()})
}
