// Package dashboard owns the live state: the snapshot buffer, the selection
// and the display fallback. Every mutation runs on the Loop and ends with a
// fresh projection published for readers.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/lobwatch/internal/buffer"
	"github.com/alanyoungcy/lobwatch/internal/domain"
	"github.com/alanyoungcy/lobwatch/internal/feed"
	"github.com/alanyoungcy/lobwatch/internal/projector"
	"github.com/alanyoungcy/lobwatch/internal/selection"
)

// Listener is notified with every newly published Views. It runs on the
// loop goroutine and must not block.
type Listener func(*projector.Views)

// Dashboard ties the buffer, the selection and the projector together.
type Dashboard struct {
	loop *Loop
	buf  *buffer.Buffer
	sel  *selection.Coordinator

	// fallback is only touched on the loop.
	fallback projector.DisplayFallback

	views atomic.Pointer[projector.Views]

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int

	logger *slog.Logger
}

// New creates a Dashboard driven by loop, with an empty projection
// published.
func New(loop *Loop, logger *slog.Logger) *Dashboard {
	d := &Dashboard{
		loop:      loop,
		buf:       buffer.New(),
		sel:       selection.NewCoordinator(),
		listeners: make(map[int]Listener),
		logger:    logger.With(slog.String("component", "dashboard")),
	}
	empty := projector.Project(nil, nil, d.fallback)
	d.views.Store(&empty)
	return d
}

// Buffer returns the snapshot store the ingestor writes to.
func (d *Dashboard) Buffer() *buffer.Buffer { return d.buf }

// Loop returns the executor that serializes state changes.
func (d *Dashboard) Loop() *Loop { return d.loop }

// State reports the selection state.
func (d *Dashboard) State() selection.State { return d.sel.State() }

// Views returns the latest published projection. The value is shared and
// must not be modified.
func (d *Dashboard) Views() *projector.Views { return d.views.Load() }

// Subscribe registers l and returns a function that removes it.
func (d *Dashboard) Subscribe(l Listener) (unsubscribe func()) {
	d.listenersMu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = l
	d.listenersMu.Unlock()

	return func() {
		d.listenersMu.Lock()
		delete(d.listeners, id)
		d.listenersMu.Unlock()
	}
}

// OnAccepted is the ingestor hook; it runs on the loop after each frame.
func (d *Dashboard) OnAccepted(kind feed.Kind) {
	d.refresh()
}

// Hover pins the buffered snapshot with timestamp ts.
func (d *Dashboard) Hover(ctx context.Context, ts domain.Timestamp) error {
	var err error
	doErr := d.loop.Do(ctx, func() {
		s, ok := d.find(ts)
		if !ok {
			err = fmt.Errorf("dashboard: hover %s: %w", ts.Format("15:04:05.000"), domain.ErrNotFound)
			return
		}
		d.sel.OnHover(s)
		d.refresh()
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// HoverGap pins the snapshot with timestamp ts and annotates it with the gap
// lying at price.
func (d *Dashboard) HoverGap(ctx context.Context, ts domain.Timestamp, price float64) error {
	var err error
	doErr := d.loop.Do(ctx, func() {
		s, ok := d.find(ts)
		if !ok {
			err = fmt.Errorf("dashboard: hover gap: snapshot: %w", domain.ErrNotFound)
			return
		}
		gap, ok := projector.GapAt(s, price)
		if !ok {
			err = fmt.Errorf("dashboard: hover gap at %v: %w", price, domain.ErrNotFound)
			return
		}
		d.sel.OnHoverGapMarker(s, gap)
		d.refresh()
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Unhover returns the selection to live.
func (d *Dashboard) Unhover(ctx context.Context) error {
	return d.loop.Do(ctx, func() {
		d.sel.OnUnhover()
		d.refresh()
	})
}

// find returns the newest buffered snapshot with timestamp ts.
func (d *Dashboard) find(ts domain.Timestamp) (domain.Snapshot, bool) {
	all := d.buf.All()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Timestamp.Equal(ts) {
			return all[i], true
		}
	}
	return domain.Snapshot{}, false
}

// refresh re-projects from one copy of the buffer and publishes the result.
// It must run on the loop.
func (d *Dashboard) refresh() {
	snaps := d.buf.All()

	var resolved *selection.Resolved
	var selected *domain.Snapshot
	if r, ok := d.sel.Resolve(selection.Frozen(snaps)); ok {
		resolved = &r
		selected = &r.Snapshot
	}

	views := projector.Project(snaps, resolved, d.fallback)
	d.fallback = d.fallback.Observe(selected)
	d.views.Store(&views)

	d.listenersMu.RLock()
	defer d.listenersMu.RUnlock()
	for _, l := range d.listeners {
		l(&views)
	}
}
