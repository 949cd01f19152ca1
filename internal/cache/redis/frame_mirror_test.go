package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanSource struct {
	frames chan []byte
	closed int
}

func (s *chanSource) Stream(context.Context) (<-chan []byte, error) { return s.frames, nil }

func (s *chanSource) Close() error {
	s.closed++
	return nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	got  []string
	fail bool
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("redis down")
	}
	p.got = append(p.got, channel+"|"+string(payload))
	return nil
}

func TestFrameMirror_TeesFrames(t *testing.T) {
	src := &chanSource{frames: make(chan []byte, 2)}
	src.frames <- []byte(`{"timestamp":1}`)
	src.frames <- []byte(`{"timestamp":2}`)
	close(src.frames)

	pub := &recordingPublisher{}
	m := newFrameMirror(src, pub, "lob:mirror", slog.New(slog.NewTextHandler(io.Discard, nil)))

	ch, err := m.Stream(context.Background())
	require.NoError(t, err)
	var got []string
	for f := range ch {
		got = append(got, string(f))
	}
	assert.Equal(t, []string{`{"timestamp":1}`, `{"timestamp":2}`}, got)
	assert.Equal(t, []string{`lob:mirror|{"timestamp":1}`, `lob:mirror|{"timestamp":2}`}, pub.got)

	require.NoError(t, m.Close())
	assert.Equal(t, 1, src.closed)
}

func TestFrameMirror_PublishFailureStillDelivers(t *testing.T) {
	src := &chanSource{frames: make(chan []byte, 1)}
	src.frames <- []byte(`{"timestamp":1}`)
	close(src.frames)

	m := newFrameMirror(src, &recordingPublisher{fail: true}, "lob:mirror", slog.New(slog.NewTextHandler(io.Discard, nil)))
	ch, err := m.Stream(context.Background())
	require.NoError(t, err)

	n := 0
	for range ch {
		n++
	}
	assert.Equal(t, 1, n)
}
