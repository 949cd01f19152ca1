package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/lobwatch/internal/domain"
	"github.com/alanyoungcy/lobwatch/internal/replay"
)

// ReplayController forwards playback commands. *replay.Gateway implements it.
type ReplayController interface {
	Do(ctx context.Context, cmd replay.Command) error
	Fire(cmd replay.Command) error
	SetSpeed(ctx context.Context, v float64) error
}

// ReplayHandler passes playback commands through to the backend.
type ReplayHandler struct {
	ctl    ReplayController
	logger *slog.Logger
}

// NewReplayHandler creates a ReplayHandler.
func NewReplayHandler(ctl ReplayController, logger *slog.Logger) *ReplayHandler {
	return &ReplayHandler{ctl: ctl, logger: logHandler(logger, "replay")}
}

type replayResponse struct {
	Command string   `json:"command"`
	Speed   *float64 `json:"speed,omitempty"`
	Status  string   `json:"status"`
}

// Command forwards start, pause, resume or stop. With ?wait=false the request
// is sent in the background and the reply is 202 without a backend outcome.
// POST /api/replay/{command}
func (h *ReplayHandler) Command(w http.ResponseWriter, r *http.Request) {
	cmd, ok := replay.ParseCommand(r.PathValue("command"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown replay command "+r.PathValue("command"))
		return
	}
	if r.URL.Query().Get("wait") == "false" {
		if err := h.ctl.Fire(cmd); err != nil {
			h.fail(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, replayResponse{Command: string(cmd), Status: "queued"})
		return
	}
	if err := h.ctl.Do(r.Context(), cmd); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, replayResponse{Command: string(cmd), Status: "sent"})
}

// Speed forwards a playback rate.
// POST /api/replay/speed/{value}
func (h *ReplayHandler) Speed(w http.ResponseWriter, r *http.Request) {
	v, err := strconv.ParseFloat(r.PathValue("value"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "speed must be a number")
		return
	}
	if err := h.ctl.SetSpeed(r.Context(), v); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, replayResponse{Command: string(replay.CommandSpeed), Speed: &v, Status: "sent"})
}

// fail maps a gateway error onto a response. Invalid arguments are the
// caller's fault; anything else means the backend did not accept the command.
func (h *ReplayHandler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrInvalidSpeed) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body := map[string]any{"error": err.Error()}
	var ce *replay.ControlError
	if errors.As(err, &ce) && ce.StatusCode != 0 {
		body["backend_status"] = ce.StatusCode
	}
	h.logger.Warn("replay command failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusBadGateway, body)
}
