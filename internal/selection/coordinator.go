// Package selection resolves which snapshot the snapshot-scoped panels
// (inspector, ladder, liquidity overlay) render: the live tick or a pinned
// historical point the user is hovering.
package selection

import (
	"sync"

	"github.com/alanyoungcy/lobwatch/internal/domain"
)

// State is the coordinator state.
type State int

const (
	Live State = iota
	Hovered
)

func (s State) String() string {
	if s == Hovered {
		return "hovered"
	}
	return "live"
}

// LatestSource is anything that can report the newest snapshot.
type LatestSource interface {
	Latest() (domain.Snapshot, bool)
}

// Resolved is the outcome of Resolve.
type Resolved struct {
	Snapshot domain.Snapshot
	State    State
	// HoveredGap is set only when the hover started on a gap marker.
	HoveredGap *domain.LiquidityGap
}

// Coordinator is the process-wide Live/Hovered state machine. It starts Live
// and has no terminal state. The last hover always wins.
type Coordinator struct {
	mu     sync.RWMutex
	state  State
	pinned domain.Snapshot
	gap    *domain.LiquidityGap
}

// NewCoordinator returns a Coordinator in the Live state.
func NewCoordinator() *Coordinator {
	return &Coordinator{state: Live}
}

// OnHover pins s, replacing any earlier hover.
func (c *Coordinator) OnHover(s domain.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Hovered
	c.pinned = s
	c.gap = nil
}

// OnHoverGapMarker pins s and annotates the selection with the gap under the
// pointer.
func (c *Coordinator) OnHoverGapMarker(s domain.Snapshot, gap domain.LiquidityGap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Hovered
	c.pinned = s
	c.gap = &gap
}

// OnUnhover returns to Live.
func (c *Coordinator) OnUnhover() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Live
	c.pinned = domain.Snapshot{}
	c.gap = nil
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Resolve returns src.Latest() while Live, or the pinned copy while Hovered.
// The pinned value does not follow later appends or evictions in src.
// ok is false only when Live and src is empty.
func (c *Coordinator) Resolve(src LatestSource) (Resolved, bool) {
	c.mu.RLock()
	state, pinned, gap := c.state, c.pinned, c.gap
	c.mu.RUnlock()

	if state == Hovered {
		r := Resolved{Snapshot: pinned, State: Hovered}
		if gap != nil {
			g := *gap
			r.HoveredGap = &g
		}
		return r, true
	}

	latest, ok := src.Latest()
	if !ok {
		return Resolved{State: Live}, false
	}
	return Resolved{Snapshot: latest, State: Live}, true
}

// Frozen adapts an already-copied slice of snapshots to LatestSource, so a
// projection can resolve against exactly the contents it is rendering.
type Frozen []domain.Snapshot

// Latest implements LatestSource.
func (f Frozen) Latest() (domain.Snapshot, bool) {
	if len(f) == 0 {
		return domain.Snapshot{}, false
	}
	return f[len(f)-1], true
}
