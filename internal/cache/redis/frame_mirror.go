package redis

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/lobwatch/internal/domain"
)

// publisher is the slice of *Client the mirror needs.
type publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// FrameMirror wraps a FrameSource and republishes every frame it yields on a
// Redis channel, so further dashboards can follow one upstream connection
// through FrameSubscriber. Publishing is best-effort: a failed publish is
// logged and the frame is still delivered downstream.
type FrameMirror struct {
	src     domain.FrameSource
	pub     publisher
	channel string
	logger  *slog.Logger
}

var _ domain.FrameSource = (*FrameMirror)(nil)

// NewFrameMirror creates a mirror of src onto channel.
func NewFrameMirror(src domain.FrameSource, c *Client, channel string, logger *slog.Logger) *FrameMirror {
	return newFrameMirror(src, c, channel, logger)
}

func newFrameMirror(src domain.FrameSource, pub publisher, channel string, logger *slog.Logger) *FrameMirror {
	return &FrameMirror{
		src:     src,
		pub:     pub,
		channel: channel,
		logger:  logger.With(slog.String("component", "redis_mirror")),
	}
}

// Stream opens the wrapped source and tees its frames.
func (m *FrameMirror) Stream(ctx context.Context) (<-chan []byte, error) {
	in, err := m.src.Stream(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, frameBuffer)
	go func() {
		defer close(out)
		for frame := range in {
			if err := m.pub.Publish(ctx, m.channel, frame); err != nil && ctx.Err() == nil {
				m.logger.Warn("mirror publish failed",
					slog.String("channel", m.channel),
					slog.String("error", err.Error()),
				)
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close closes the wrapped source. The Redis client is owned by the caller.
func (m *FrameMirror) Close() error {
	return m.src.Close()
}
