// Package replay issues playback control requests to the analytics backend.
// It never touches the snapshot buffer or the selection; the effect of a
// command shows up, if at all, in the frames that follow.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/alanyoungcy/lobwatch/internal/domain"
	"github.com/alanyoungcy/lobwatch/internal/platform/backend"
)

// Command is a replay control verb.
type Command string

const (
	CommandStart  Command = "start"
	CommandPause  Command = "pause"
	CommandResume Command = "resume"
	CommandStop   Command = "stop"
	CommandSpeed  Command = "speed"
)

// ParseCommand accepts the four argument-less verbs.
func ParseCommand(s string) (Command, bool) {
	switch c := Command(s); c {
	case CommandStart, CommandPause, CommandResume, CommandStop:
		return c, true
	default:
		return "", false
	}
}

// Poster sends one POST to {backend}/replay/{path}. *backend.ControlClient
// implements it.
type Poster interface {
	PostReplay(ctx context.Context, path string) (requestID string, err error)
}

// Recorder counts control requests. *metrics.Registry satisfies it.
type Recorder interface {
	ControlRequest(command string, ok bool)
}

// ControlError describes a failed control request. StatusCode is zero when
// no HTTP response was received.
type ControlError struct {
	Command    Command
	StatusCode int
	Err        error
}

func (e *ControlError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("replay: %s: status %d: %v", e.Command, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("replay: %s: %v", e.Command, e.Err)
}

func (e *ControlError) Unwrap() error { return e.Err }

// Gateway maps control calls onto single requests. There is no retry and no
// client-side state: each call either succeeded or returns a *ControlError.
type Gateway struct {
	poster      Poster
	rec         Recorder
	fireTimeout time.Duration
	logger      *slog.Logger
}

// NewGateway creates a Gateway. rec may be nil. fireTimeout bounds Fire
// requests; zero means 10 seconds.
func NewGateway(poster Poster, rec Recorder, fireTimeout time.Duration, logger *slog.Logger) *Gateway {
	if fireTimeout <= 0 {
		fireTimeout = 10 * time.Second
	}
	return &Gateway{
		poster:      poster,
		rec:         rec,
		fireTimeout: fireTimeout,
		logger:      logger.With(slog.String("component", "replay_gateway")),
	}
}

// Start begins playback from the beginning of the loaded session.
func (g *Gateway) Start(ctx context.Context) error {
	return g.send(ctx, CommandStart, string(CommandStart))
}

// Pause holds playback at the current frame.
func (g *Gateway) Pause(ctx context.Context) error {
	return g.send(ctx, CommandPause, string(CommandPause))
}

// Resume continues a paused playback.
func (g *Gateway) Resume(ctx context.Context) error {
	return g.send(ctx, CommandResume, string(CommandResume))
}

// Stop ends playback.
func (g *Gateway) Stop(ctx context.Context) error {
	return g.send(ctx, CommandStop, string(CommandStop))
}

// SetSpeed requests playback at multiplier v. Non-positive and non-finite
// values are rejected locally with domain.ErrInvalidSpeed and nothing is sent.
func (g *Gateway) SetSpeed(ctx context.Context, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return &ControlError{Command: CommandSpeed, Err: fmt.Errorf("%w: %v", domain.ErrInvalidSpeed, v)}
	}
	return g.send(ctx, CommandSpeed, SpeedPath(v))
}

// Do runs a parsed argument-less command.
func (g *Gateway) Do(ctx context.Context, cmd Command) error {
	if _, ok := ParseCommand(string(cmd)); !ok {
		return &ControlError{Command: cmd, Err: fmt.Errorf("unknown command %q", cmd)}
	}
	return g.send(ctx, cmd, string(cmd))
}

// Fire sends cmd in the background with its own timeout. Only an unknown
// command is reported; the outcome of the request is logged by send and
// nothing waits for it.
func (g *Gateway) Fire(cmd Command) error {
	if _, ok := ParseCommand(string(cmd)); !ok {
		return &ControlError{Command: cmd, Err: fmt.Errorf("unknown command %q", cmd)}
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.fireTimeout)
		defer cancel()
		_ = g.send(ctx, cmd, string(cmd))
	}()
	return nil
}

// SpeedPath renders the speed endpoint path with the shortest exact decimal
// form of v, e.g. "speed/2" or "speed/0.5".
func SpeedPath(v float64) string {
	return "speed/" + strconv.FormatFloat(v, 'f', -1, 64)
}

func (g *Gateway) send(ctx context.Context, cmd Command, path string) error {
	reqID, err := g.poster.PostReplay(ctx, path)
	if g.rec != nil {
		g.rec.ControlRequest(string(cmd), err == nil)
	}
	if err != nil {
		cerr := &ControlError{Command: cmd, Err: err}
		var se *backend.StatusError
		if errors.As(err, &se) {
			cerr.StatusCode = se.Code
		}
		g.logger.Warn("replay control failed",
			slog.String("command", string(cmd)),
			slog.String("request_id", reqID),
			slog.Int("status", cerr.StatusCode),
			slog.String("error", err.Error()),
		)
		return cerr
	}
	g.logger.Info("replay control sent",
		slog.String("command", string(cmd)),
		slog.String("path", path),
		slog.String("request_id", reqID),
	)
	return nil
}
