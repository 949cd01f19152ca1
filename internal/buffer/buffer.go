// Package buffer holds the bounded rolling snapshot history shared by every
// dashboard panel.
package buffer

import (
	"sync"

	"github.com/alanyoungcy/lobwatch/internal/domain"
)

// Capacity is the number of snapshots kept. It is fixed at compile time.
const Capacity = 100

// Buffer is a fixed-size FIFO ring of snapshots in arrival order. Once full,
// every Append evicts the oldest entry. Entries are never re-sorted.
//
// All methods are safe for concurrent use; a reader always observes the
// contents as they were either fully before or fully after a mutation.
type Buffer struct {
	mu   sync.RWMutex
	ring [Capacity]domain.Snapshot
	head int // index of the oldest entry
	size int
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// ReplaceAll sets the contents to the last Capacity elements of snaps,
// keeping their relative order.
func (b *Buffer) ReplaceAll(snaps []domain.Snapshot) {
	if len(snaps) > Capacity {
		snaps = snaps[len(snaps)-Capacity:]
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring = [Capacity]domain.Snapshot{}
	copy(b.ring[:], snaps)
	b.head = 0
	b.size = len(snaps)
}

// Append adds s at the end, evicting the oldest entry when full.
func (b *Buffer) Append(s domain.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size < Capacity {
		b.ring[(b.head+b.size)%Capacity] = s
		b.size++
		return
	}
	// Full: overwrite the oldest slot and advance head.
	b.ring[b.head] = s
	b.head = (b.head + 1) % Capacity
}

// Latest returns the most recently appended snapshot.
func (b *Buffer) Latest() (domain.Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return domain.Snapshot{}, false
	}
	return b.ring[(b.head+b.size-1)%Capacity], true
}

// All returns a copy of the contents, oldest first.
func (b *Buffer) All() []domain.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.Snapshot, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.ring[(b.head+i)%Capacity]
	}
	return out
}

// Len returns the number of snapshots held.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*Buffer)(nil)
