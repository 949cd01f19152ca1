// Package kafka reads snapshot frames from a Kafka topic with segmentio/kafka-go.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/lobwatch/internal/domain"
)

const frameBuffer = 128

// Config selects the topic to read.
type Config struct {
	Brokers []string
	Topic   string
	// GroupID joins a consumer group. Empty reads partition 0 starting at
	// the newest offset, which suits a dashboard that only wants live data.
	GroupID string
	// MaxBytes caps a single fetch.
	MaxBytes int
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// FrameReader is a domain.FrameSource over a Kafka topic. Each message
// value is one frame.
type FrameReader struct {
	reader messageReader
	topic  string
	logger *slog.Logger

	mu       sync.Mutex
	streamed bool
	closeErr error
	closed   bool
}

var _ domain.FrameSource = (*FrameReader)(nil)

func readerConfig(cfg Config) kafka.ReaderConfig {
	rc := kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topic:   cfg.Topic,
	}
	if cfg.MaxBytes > 0 {
		rc.MaxBytes = cfg.MaxBytes
	}
	return rc
}

// newReader builds the kafka-go reader. StartOffset only applies to group
// readers, so a partition reader is moved to the newest offset explicitly.
func newReader(cfg Config) (*kafka.Reader, error) {
	r := kafka.NewReader(readerConfig(cfg))
	if cfg.GroupID == "" {
		if err := r.SetOffset(kafka.LastOffset); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("kafka: seek %s to newest offset: %w", cfg.Topic, err)
		}
	}
	return r, nil
}

// NewFrameReader creates a reader. No connection is made until Stream.
func NewFrameReader(cfg Config, logger *slog.Logger) (*FrameReader, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: no topic configured")
	}
	r, err := newReader(cfg)
	if err != nil {
		return nil, err
	}
	return newFrameReader(r, cfg.Topic, logger), nil
}

func newFrameReader(r messageReader, topic string, logger *slog.Logger) *FrameReader {
	return &FrameReader{
		reader: r,
		topic:  topic,
		logger: logger.With(slog.String("component", "kafka_frames")),
	}
}

// Stream starts reading. The returned channel closes when ctx is cancelled,
// the reader is closed, or a read fails.
func (f *FrameReader) Stream(ctx context.Context) (<-chan []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, fmt.Errorf("kafka: stream: %w", domain.ErrClosed)
	}
	if f.streamed {
		return nil, fmt.Errorf("kafka: stream %s: already open", f.topic)
	}
	f.streamed = true

	out := make(chan []byte, frameBuffer)
	go f.pump(ctx, out)
	f.logger.Info("reading topic", slog.String("topic", f.topic))
	return out, nil
}

func (f *FrameReader) pump(ctx context.Context, out chan<- []byte) {
	defer close(out)
	for {
		msg, err := f.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				return
			}
			f.logger.Warn("kafka read failed", slog.String("error", err.Error()))
			return
		}
		select {
		case out <- msg.Value:
		case <-ctx.Done():
			return
		}
	}
}

// Close closes the underlying reader. It is safe to call more than once.
func (f *FrameReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return f.closeErr
	}
	f.closed = true
	f.closeErr = f.reader.Close()
	return f.closeErr
}
