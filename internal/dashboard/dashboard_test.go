package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lobwatch/internal/domain"
	"github.com/alanyoungcy/lobwatch/internal/feed"
	"github.com/alanyoungcy/lobwatch/internal/projector"
	"github.com/alanyoungcy/lobwatch/internal/selection"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// harness runs a Loop and a Dashboard with an ingestor feeding it.
type harness struct {
	d   *Dashboard
	ing *feed.Ingestor
}

type nopSource struct{}

func (nopSource) Stream(context.Context) (<-chan []byte, error) { return make(chan []byte), nil }
func (nopSource) Close() error { return nil }

func newHarness(t *testing.T) *harness {
	t.Helper()
	loop := NewLoop(0, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	d := New(loop, discardLogger())
	ing := feed.NewIngestor(nopSource{}, d.Buffer(), discardLogger(),
		feed.WithAcceptedHandler(d.OnAccepted))
	return &harness{d: d, ing: ing}
}

// ingest applies raw on the loop and waits for it.
func (h *harness) ingest(t *testing.T, raw string) {
	t.Helper()
	require.NoError(t, h.d.Loop().Do(context.Background(), func() { _, _ = h.ing.Ingest([]byte(raw)) }))
}

func tickJSON(ms int, mid float64) string {
	return fmt.Sprintf(`{"timestamp":%d,"mid_price":%v,"vpin":0.4}`, ms, mid)
}

func TestDashboard_EmptyViewsBeforeData(t *testing.T) {
	h := newHarness(t)
	v := h.d.Views()
	require.NotNil(t, v)
	assert.True(t, v.Live)
	assert.Equal(t, 0, v.BufferLen)
	assert.Len(t, v.Heatmap.Rows, 20)
	assert.Equal(t, projector.DefaultMidPrice, v.Liquidity.MidPrice)
}

func TestDashboard_LiveFollowsTicks(t *testing.T) {
	h := newHarness(t)
	h.ingest(t, tickJSON(1, 100))
	h.ingest(t, tickJSON(2, 100.5))

	v := h.d.Views()
	assert.Equal(t, 2, v.BufferLen)
	assert.True(t, v.Live)
	assert.Equal(t, int64(2), v.Inspector.Timestamp.UnixMilli())
	assert.Equal(t, 100.5, v.Liquidity.MidPrice)
}

func TestDashboard_HoverStaysPinned(t *testing.T) {
	h := newHarness(t)
	for i := 1; i <= 5; i++ {
		h.ingest(t, tickJSON(i, 100+float64(i)/10))
	}

	require.NoError(t, h.d.Hover(context.Background(), domain.TimestampMillis(5)))
	h.ingest(t, tickJSON(6, 101))

	v := h.d.Views()
	assert.False(t, v.Live)
	assert.Equal(t, selection.Hovered, h.d.State())
	assert.Equal(t, int64(5), v.Inspector.Timestamp.UnixMilli())
	assert.Equal(t, 6, v.BufferLen, "buffer keeps growing while hovered")

	require.NoError(t, h.d.Unhover(context.Background()))
	v = h.d.Views()
	assert.True(t, v.Live)
	assert.Equal(t, int64(6), v.Inspector.Timestamp.UnixMilli())
}

func TestDashboard_HoverUnknownTimestamp(t *testing.T) {
	h := newHarness(t)
	h.ingest(t, tickJSON(1, 100))

	err := h.d.Hover(context.Background(), domain.TimestampMillis(99))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, selection.Live, h.d.State())
}

func TestDashboard_HoverGap(t *testing.T) {
	h := newHarness(t)
	h.ingest(t, `{"timestamp":1,"mid_price":100,"liquidity_gaps":[{"price":100.3,"side":"ask","level":3,"volume":5,"risk_score":72,"distance_from_mid":0.3}]}`)

	require.NoError(t, h.d.HoverGap(context.Background(), domain.TimestampMillis(1), 100.305))
	v := h.d.Views()
	require.NotNil(t, v.Inspector.HoveredGap)
	assert.Equal(t, 72.0, v.Inspector.HoveredGap.RiskScore)

	err := h.d.HoverGap(context.Background(), domain.TimestampMillis(1), 99.0)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestDashboard_HistoryResetsBufferButKeepsHover(t *testing.T) {
	h := newHarness(t)
	h.ingest(t, tickJSON(1, 100))
	require.NoError(t, h.d.Hover(context.Background(), domain.TimestampMillis(1)))

	h.ingest(t, `{"type":"history","data":[{"timestamp":10},{"timestamp":11}]}`)
	v := h.d.Views()
	assert.Equal(t, 2, v.BufferLen)
	assert.Equal(t, int64(1), v.Inspector.Timestamp.UnixMilli(), "pinned copy survives replacement")
}

func TestDashboard_FallbackMidCarriesOver(t *testing.T) {
	h := newHarness(t)
	h.ingest(t, tickJSON(1, 101.25))
	h.ingest(t, `{"timestamp":2}`)

	v := h.d.Views()
	assert.Equal(t, 101.25, v.Liquidity.MidPrice)
}

func TestDashboard_ListenersSeeEveryUpdate(t *testing.T) {
	h := newHarness(t)
	var calls atomic.Int32
	unsubscribe := h.d.Subscribe(func(v *projector.Views) { calls.Add(1) })

	h.ingest(t, tickJSON(1, 100))
	h.ingest(t, `not json`)
	h.ingest(t, tickJSON(2, 100))
	assert.Equal(t, int32(2), calls.Load())

	unsubscribe()
	h.ingest(t, tickJSON(3, 100))
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoop_RunsTasksInOrder(t *testing.T) {
	loop := NewLoop(4, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, loop.Submit(ctx, func() { got = append(got, i) }))
	}
	require.NoError(t, loop.Do(ctx, func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestLoop_PanicDoesNotKillLoop(t *testing.T) {
	loop := NewLoop(0, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	require.NoError(t, loop.Submit(ctx, func() { panic("boom") }))
	ran := false
	require.NoError(t, loop.Do(ctx, func() { ran = true }))
	assert.True(t, ran)
}

func TestLoop_SubmitAfterStop(t *testing.T) {
	loop := NewLoop(0, discardLogger())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(context.Background())
	}()
	loop.Stop()
	loop.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	err := loop.Submit(context.Background(), func() {})
	assert.True(t, errors.Is(err, domain.ErrClosed))
}
