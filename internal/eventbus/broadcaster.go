// Package eventbus provides in-process broadcast of connection-state and
// barcode events. Each subscriber gets its own bounded ring channel, so
// publish order is delivery order and a stuck subscriber cannot block the
// publisher or other subscribers.
package eventbus

import "sync"

// Broadcaster fans values out to any number of subscribers.
type Broadcaster[T any] struct {
	buffer int

	mu     sync.RWMutex
	subs   []*RingChannel[T]
	closed bool
}

// NewBroadcaster creates a broadcaster whose subscribers buffer up to buffer
// undelivered events each.
func NewBroadcaster[T any](buffer int) *Broadcaster[T] {
	return &Broadcaster[T]{buffer: buffer}
}

// Subscribe registers a new subscriber and returns its event channel. The
// channel is closed when the broadcaster closes.
func (b *Broadcaster[T]) Subscribe() <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()

	rc := NewRingChannel[T](b.buffer)
	if b.closed {
		rc.Close()
		return rc.C()
	}
	b.subs = append(b.subs, rc)
	return rc.C()
}

// Publish delivers v to every subscriber in subscription order.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, rc := range b.subs {
		rc.Send(v)
	}
}

// Close closes all subscriber channels. Publish becomes a no-op.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, rc := range b.subs {
		rc.Close()
	}
	b.subs = nil
}
