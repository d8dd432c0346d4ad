package eventbus

import "sync/atomic"

// RingChannel is a bounded channel-like buffer with overwrite-oldest
// semantics. Publishers never block: if the buffer is full, the oldest
// element is discarded. A slow event subscriber therefore sees the most
// recent events rather than stalling the connection manager.
type RingChannel[T any] struct {
	ch          chan T
	written     atomic.Int64
	overwritten atomic.Int64
}

// NewRingChannel creates a ring channel with the given capacity.
func NewRingChannel[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("eventbus: ring channel capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. Consumers range over it until closed.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts an item, discarding the oldest buffered one if necessary.
// Never blocks indefinitely.
func (rc *RingChannel[T]) Send(v T) {
	select {
	case rc.ch <- v:
	default:
		select {
		case <-rc.ch:
			rc.overwritten.Add(1)
		default:
		}
		rc.ch <- v
	}
	rc.written.Add(1)
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Close closes the underlying channel. Send after Close panics.
func (rc *RingChannel[T]) Close() {
	close(rc.ch)
}

// Stats reports how many elements were written and how many were discarded
// to make room.
func (rc *RingChannel[T]) Stats() (written, overwritten int64) {
	return rc.written.Load(), rc.overwritten.Load()
}
