package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/lobwatch/internal/domain"
)

// frameBuffer is the capacity of the channel handed out by Stream.
const frameBuffer = 128

// FrameSubscriber reads snapshot frames published on a Redis channel. It is a
// domain.FrameSource; Pub/Sub has no replay, so a subscriber only sees
// frames published after Stream returns.
type FrameSubscriber struct {
	client  *Client
	channel string
	logger  *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	closed bool
}

var _ domain.FrameSource = (*FrameSubscriber)(nil)

// NewFrameSubscriber creates a subscriber for channel. Glob patterns such as
// "lob:*" subscribe with PSUBSCRIBE.
func NewFrameSubscriber(c *Client, channel string, logger *slog.Logger) *FrameSubscriber {
	return &FrameSubscriber{
		client:  c,
		channel: channel,
		logger:  logger.With(slog.String("component", "redis_frames")),
	}
}

// Stream subscribes and returns a channel of raw payloads. The channel is
// closed when ctx is cancelled or the subscriber is closed.
func (s *FrameSubscriber) Stream(ctx context.Context) (<-chan []byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("redis: subscribe: %w", domain.ErrClosed)
	}
	if s.pubsub != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("redis: subscribe %s: already subscribed", s.channel)
	}

	var pubsub *redis.PubSub
	if hasPattern(s.channel) {
		pubsub = s.client.rdb.PSubscribe(ctx, s.channel)
	} else {
		pubsub = s.client.rdb.Subscribe(ctx, s.channel)
	}
	s.pubsub = pubsub
	s.mu.Unlock()

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", s.channel, err)
	}
	s.logger.Info("subscribed", slog.String("channel", s.channel))

	out := make(chan []byte, frameBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close ends the subscription and the connection pool. It is safe to call
// more than once.
func (s *FrameSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.pubsub != nil {
		_ = s.pubsub.Close()
	}
	return s.client.Close()
}

// hasPattern returns true when the Redis channel includes glob-style
// wildcards, in which case PSubscribe must be used instead of Subscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}
