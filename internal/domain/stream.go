package domain

import "context"

// FrameSource is one long-lived inbound feed connection. Stream returns a
// channel of raw frames; the channel is closed when the transport goes away
// or the context is cancelled. Close must be idempotent.
type FrameSource interface {
	Stream(ctx context.Context) (<-chan []byte, error)
	Close() error
}

// SnapshotStore is the write side of the snapshot history.
type SnapshotStore interface {
	ReplaceAll(snaps []Snapshot)
	Append(s Snapshot)
	Latest() (Snapshot, bool)
	All() []Snapshot
	Len() int
}
