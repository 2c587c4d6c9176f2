// Package ringchan bounds a channel with overwrite-oldest semantics so
// producers never stall behind a slow consumer.
package ringchan

import "sync/atomic"

// Metrics is a point-in-time snapshot of a RingChannel's traffic counters.
type Metrics struct {
	Processed   int64
	Written     int64
	Overwritten int64
}

// RingChannel is a buffered channel that sheds its oldest element instead of
// blocking the producer when full. Readers either range over C directly or
// call Receive/TryReceive to keep the Processed counter accurate.
type RingChannel[T any] struct {
	ch chan T

	processed   atomic.Int64
	written     atomic.Int64
	overwritten atomic.Int64
}

// NewRingChannel creates a RingChannel holding at most capacity elements.
func NewRingChannel[T any](capacity int) *RingChannel[T] {
	if capacity < 1 {
		panic("ringchan: capacity must be positive")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C exposes the receive side as a plain channel. Reads through C bypass the
// Processed counter.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest buffered value when full.
func (rc *RingChannel[T]) Send(v T) {
	rc.ForceSend(v)
}

// TrySend inserts v only if there is room, reporting whether it did.
func (rc *RingChannel[T]) TrySend(v T) bool {
	select {
	case rc.ch <- v:
	default:
		return false
	}
	rc.written.Add(1)
	return true
}

// ForceSend inserts v without ever blocking, dropping the oldest buffered
// value if that is what it takes. It reports whether a value was dropped.
func (rc *RingChannel[T]) ForceSend(v T) bool {
	dropped := false

	select {
	case rc.ch <- v:
	default:
		// Full. Evict one, unless a consumer beat us to it.
		select {
		case <-rc.ch:
			rc.overwritten.Add(1)
			dropped = true
		default:
		}
		rc.ch <- v
	}

	rc.written.Add(1)
	return dropped
}

// Receive blocks until a value arrives or the channel closes.
func (rc *RingChannel[T]) Receive() (T, bool) {
	v, ok := <-rc.ch
	if ok {
		rc.processed.Add(1)
	}
	return v, ok
}

// TryReceive is the non-blocking variant of Receive.
func (rc *RingChannel[T]) TryReceive() (T, bool) {
	select {
	case v, ok := <-rc.ch:
		if ok {
			rc.processed.Add(1)
		}
		return v, ok
	default:
	}
	var zero T
	return zero, false
}

// Len reports how many values are buffered.
func (rc *RingChannel[T]) Len() int { return len(rc.ch) }

// Cap reports the buffer capacity.
func (rc *RingChannel[T]) Cap() int { return cap(rc.ch) }

// Close closes the channel. Sends after Close panic.
func (rc *RingChannel[T]) Close() {
	close(rc.ch)
}

// GetMetrics snapshots the traffic counters.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Processed:   rc.processed.Load(),
		Written:     rc.written.Load(),
		Overwritten: rc.overwritten.Load(),
	}
}
