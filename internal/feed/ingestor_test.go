package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lobwatch/internal/buffer"
	"github.com/alanyoungcy/lobwatch/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	frames chan []byte
	closes int
	mu     sync.Mutex
}

func newFakeSource(n int) *fakeSource {
	return &fakeSource{frames: make(chan []byte, n)}
}

func (f *fakeSource) Stream(context.Context) (<-chan []byte, error) { return f.frames, nil }

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

type countingRecorder struct {
	mu       sync.Mutex
	accepted map[string]int
	dropped  map[string]int
	lastLen  int
}

func newRecorder() *countingRecorder {
	return &countingRecorder{accepted: map[string]int{}, dropped: map[string]int{}}
}

func (r *countingRecorder) FrameAccepted(kind string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted[kind]++
	r.lastLen = n
}

func (r *countingRecorder) FrameDropped(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped[reason]++
}

func tick(ms int) []byte {
	return []byte(fmt.Sprintf(`{"timestamp":%d,"mid_price":100.5}`, ms))
}

func history(from, to int) []byte {
	parts := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		parts = append(parts, fmt.Sprintf(`{"timestamp":%d}`, i))
	}
	return []byte(`{"type":"history","data":[` + strings.Join(parts, ",") + `]}`)
}

func timestamps(buf *buffer.Buffer) []int64 {
	all := buf.All()
	out := make([]int64, len(all))
	for i, s := range all {
		out[i] = s.Timestamp.UnixMilli()
	}
	return out
}

func TestIngest_HistoryReplacesBuffer(t *testing.T) {
	buf := buffer.New()
	rec := newRecorder()
	ing := NewIngestor(newFakeSource(0), buf, discardLogger(), WithRecorder(rec))

	for i := 1; i <= 5; i++ {
		_, err := ing.Ingest(tick(i))
		require.NoError(t, err)
	}

	kind, err := ing.Ingest(history(1, 250))
	require.NoError(t, err)
	assert.Equal(t, KindHistory, kind)
	require.Equal(t, buffer.Capacity, buf.Len())
	ts := timestamps(buf)
	assert.Equal(t, int64(151), ts[0])
	assert.Equal(t, int64(250), ts[len(ts)-1])

	latest, ok := buf.Latest()
	require.True(t, ok)
	assert.Equal(t, int64(250), latest.Timestamp.UnixMilli())

	assert.Equal(t, 5, rec.accepted["tick"])
	assert.Equal(t, 1, rec.accepted["history"])
	assert.Equal(t, buffer.Capacity, rec.lastLen)
}

func TestIngest_EmptyHistoryClears(t *testing.T) {
	buf := buffer.New()
	ing := NewIngestor(newFakeSource(0), buf, discardLogger())
	_, _ = ing.Ingest(tick(1))

	_, err := ing.Ingest([]byte(`{"type":"history","data":[]}`))
	require.NoError(t, err)
	assert.Equal(t, 0, buf.Len())
}

func TestIngest_TickAppends(t *testing.T) {
	buf := buffer.New()
	ing := NewIngestor(newFakeSource(0), buf, discardLogger())

	kind, err := ing.Ingest([]byte(`{"timestamp":"2024-01-02T03:04:05.123456","mid_price":100.25,"bids":[[100.2,12]],"asks":[[100.3,9]]}`))
	require.NoError(t, err)
	assert.Equal(t, KindTick, kind)

	s, ok := buf.Latest()
	require.True(t, ok)
	require.NotNil(t, s.MidPrice)
	assert.Equal(t, 100.25, *s.MidPrice)
	require.Len(t, s.Bids, 1)
	assert.Equal(t, 12.0, s.Bids[0].Volume)
}

func TestIngest_MalformedFramesAreDropped(t *testing.T) {
	cases := map[string]string{
		"not json":             `{"timestamp":`,
		"empty payload":        `   `,
		"missing timestamp":    `{"mid_price":100}`,
		"bad level":            `{"timestamp":1,"bids":[[100]]}`,
		"history not array":    `{"type":"history","data":{"timestamp":1}}`,
		"history without data": `{"type":"history"}`,
		"history bad element":  `{"type":"history","data":[{"timestamp":1},{"mid_price":1}]}`,
		"array frame":          `[1,2,3]`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			buf := buffer.New()
			rec := newRecorder()
			ing := NewIngestor(newFakeSource(0), buf, discardLogger(), WithRecorder(rec))
			_, _ = ing.Ingest(tick(1))

			assert.NotPanics(t, func() {
				_, err := ing.Ingest([]byte(raw))
				assert.True(t, errors.Is(err, domain.ErrMalformedFrame), "got %v", err)
			})
			assert.Equal(t, []int64{1}, timestamps(buf))
			assert.Equal(t, 1, rec.dropped["malformed"]+rec.dropped["empty"])
		})
	}
}

func TestIngest_AcceptedHandler(t *testing.T) {
	var kinds []Kind
	ing := NewIngestor(newFakeSource(0), buffer.New(), discardLogger(),
		WithAcceptedHandler(func(k Kind) { kinds = append(kinds, k) }))

	_, _ = ing.Ingest(history(1, 3))
	_, _ = ing.Ingest(tick(4))
	_, _ = ing.Ingest([]byte(`nope`))

	assert.Equal(t, []Kind{KindHistory, KindTick}, kinds)
}

func TestRun_ReturnsStreamClosed(t *testing.T) {
	src := newFakeSource(4)
	buf := buffer.New()
	ing := NewIngestor(src, buf, discardLogger())

	src.frames <- history(1, 3)
	src.frames <- []byte(`garbage`)
	src.frames <- tick(4)
	close(src.frames)

	err := ing.Run(context.Background())
	assert.True(t, errors.Is(err, domain.ErrStreamClosed))
	assert.Equal(t, []int64{1, 2, 3, 4}, timestamps(buf))
}

func TestRun_ContextCancel(t *testing.T) {
	src := newFakeSource(0)
	ing := NewIngestor(src, buffer.New(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type inlineExecutor struct{ calls int }

func (e *inlineExecutor) Submit(_ context.Context, task func()) error {
	e.calls++
	task()
	return nil
}

func TestRun_UsesExecutor(t *testing.T) {
	src := newFakeSource(2)
	exec := &inlineExecutor{}
	buf := buffer.New()
	ing := NewIngestor(src, buf, discardLogger(), WithExecutor(exec))

	src.frames <- tick(1)
	src.frames <- tick(2)
	close(src.frames)

	_ = ing.Run(context.Background())
	assert.Equal(t, 2, exec.calls)
	assert.Equal(t, 2, buf.Len())
}

func TestClose_Idempotent(t *testing.T) {
	src := newFakeSource(0)
	ing := NewIngestor(src, buffer.New(), discardLogger())

	require.NoError(t, ing.Close())
	require.NoError(t, ing.Close())
	assert.Equal(t, 1, src.closes)
}
