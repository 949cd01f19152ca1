// Package feed turns raw stream frames into buffer mutations.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/lobwatch/internal/domain"
)

// Kind classifies an accepted frame.
type Kind string

const (
	KindHistory Kind = "history"
	KindTick    Kind = "tick"
)

// Executor runs tasks one at a time. Submit blocks until the task is queued
// or ctx is done.
type Executor interface {
	Submit(ctx context.Context, task func()) error
}

// Recorder receives ingestion counters. *metrics.Registry satisfies it.
type Recorder interface {
	FrameAccepted(kind string, bufferLen int)
	FrameDropped(reason string)
}

// AcceptedHandler is called, on the executor, after a frame changed the store.
type AcceptedHandler func(kind Kind)

// Drop reasons reported to the Recorder.
const (
	dropMalformed = "malformed"
	dropEmpty     = "empty"
)

// Ingestor owns the only writes to the snapshot store. A history frame
// replaces the store contents; any other frame is a single live tick.
type Ingestor struct {
	source   domain.FrameSource
	store    domain.SnapshotStore
	exec     Executor
	onAccept AcceptedHandler
	rec      Recorder
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithExecutor serializes ingestion through exec instead of running it on
// the reading goroutine.
func WithExecutor(exec Executor) Option {
	return func(i *Ingestor) { i.exec = exec }
}

// WithAcceptedHandler registers a hook run after each accepted frame.
func WithAcceptedHandler(h AcceptedHandler) Option {
	return func(i *Ingestor) { i.onAccept = h }
}

// WithRecorder attaches ingestion counters.
func WithRecorder(rec Recorder) Option {
	return func(i *Ingestor) { i.rec = rec }
}

// NewIngestor creates an Ingestor reading from source into store.
func NewIngestor(source domain.FrameSource, store domain.SnapshotStore, logger *slog.Logger, opts ...Option) *Ingestor {
	i := &Ingestor{
		source: source,
		store:  store,
		logger: logger.With(slog.String("component", "ingestor")),
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Ingest applies one raw frame to the store. A malformed frame returns an
// error wrapping domain.ErrMalformedFrame and leaves the store untouched.
func (i *Ingestor) Ingest(raw []byte) (Kind, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", i.drop(dropEmpty, fmt.Errorf("%w: empty payload", domain.ErrMalformedFrame))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", i.drop(dropMalformed, fmt.Errorf("%w: %v", domain.ErrMalformedFrame, err))
	}

	if env.Type == string(KindHistory) {
		snaps, err := decodeHistory(env.Data)
		if err != nil {
			return "", i.drop(dropMalformed, err)
		}
		i.store.ReplaceAll(snaps)
		i.accepted(KindHistory)
		i.logger.Info("history loaded",
			slog.Int("received", len(snaps)),
			slog.Int("buffered", i.store.Len()),
		)
		return KindHistory, nil
	}

	snap, err := domain.DecodeSnapshot(raw)
	if err != nil {
		return "", i.drop(dropMalformed, err)
	}
	i.store.Append(snap)
	i.accepted(KindTick)
	return KindTick, nil
}

// decodeHistory validates every element before anything is applied, so a
// bad element rejects the whole frame.
func decodeHistory(data json.RawMessage) ([]domain.Snapshot, error) {
	if len(data) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, fmt.Errorf("%w: history without data", domain.ErrMalformedFrame)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("%w: history data: %v", domain.ErrMalformedFrame, err)
	}
	snaps := make([]domain.Snapshot, 0, len(elems))
	for idx, e := range elems {
		s, err := domain.DecodeSnapshot(e)
		if err != nil {
			return nil, fmt.Errorf("history[%d]: %w", idx, err)
		}
		snaps = append(snaps, s)
	}
	return snaps, nil
}

func (i *Ingestor) accepted(kind Kind) {
	if i.rec != nil {
		i.rec.FrameAccepted(string(kind), i.store.Len())
	}
	if i.onAccept != nil {
		i.onAccept(kind)
	}
}

func (i *Ingestor) drop(reason string, err error) error {
	i.logger.Warn("dropping frame",
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
	if i.rec != nil {
		i.rec.FrameDropped(reason)
	}
	return err
}

// Run streams frames from the source until it closes or ctx is done. It
// returns domain.ErrStreamClosed when the source ends and ctx.Err() on
// cancellation. There is no reconnect here; the transport decides that.
func (i *Ingestor) Run(ctx context.Context) error {
	frames, err := i.source.Stream(ctx)
	if err != nil {
		return fmt.Errorf("feed: open stream: %w", err)
	}
	i.logger.Info("stream opened")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-frames:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				i.logger.Warn("stream closed by transport")
				return domain.ErrStreamClosed
			}
			if err := i.dispatch(ctx, raw); err != nil {
				return err
			}
		}
	}
}

func (i *Ingestor) dispatch(ctx context.Context, raw []byte) error {
	if i.exec == nil {
		_, _ = i.Ingest(raw)
		return nil
	}
	err := i.exec.Submit(ctx, func() { _, _ = i.Ingest(raw) })
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("feed: submit: %w", err)
	}
	return err
}

// Close closes the underlying source. It is safe to call more than once.
func (i *Ingestor) Close() error {
	i.closeOnce.Do(func() {
		i.closeErr = i.source.Close()
	})
	return i.closeErr
}
