// shim/ring.go

package shim

import (
	"context"
	"sync/atomic"
)

// Ring is a fixed-size single-producer single-consumer queue. Put is safe
// to call from an interrupt callback: it never blocks or allocates. The
// consumer waits on Readable, which is signalled (coalesced) on every Put.
type Ring[T any] struct {
	buf     []T
	mask    uint32
	head    atomic.Uint32
	tail    atomic.Uint32
	dropped atomic.Uint32
	notify  chan struct{}
}

// NewRing returns a ring holding size elements, rounded up to a power of two.
func NewRing[T any](size int) *Ring[T] {
	n := 1
	for n < size {
		n <<= 1
	}
	return &Ring[T]{
		buf:    make([]T, n),
		mask:   uint32(n - 1),
		notify: make(chan struct{}, 1),
	}
}

// Size returns the capacity of the ring.
func (r *Ring[T]) Size() int { return len(r.buf) }

// Used returns how many elements are queued.
func (r *Ring[T]) Used() int { return int(r.head.Load() - r.tail.Load()) }

// Dropped is the number of Puts refused because the ring was full.
func (r *Ring[T]) Dropped() uint32 { return r.dropped.Load() }

// Put queues v. If the ring is full it returns false.
func (r *Ring[T]) Put(v T) bool {
	h := r.head.Load()
	if h-r.tail.Load() == uint32(len(r.buf)) {
		r.dropped.Add(1)
		return false
	}
	r.buf[h&r.mask] = v // 1) write data
	r.head.Store(h + 1) // 2) publish
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return true
}

// Get dequeues the oldest element. If the ring is empty it returns false.
func (r *Ring[T]) Get() (T, bool) {
	t := r.tail.Load()
	if r.head.Load() == t {
		var zero T
		return zero, false
	}
	v := r.buf[t&r.mask] // 1) read current element
	r.tail.Store(t + 1)  // 2) publish consumption
	return v, true
}

// Readable is signalled after Put. A signal may cover several elements.
func (r *Ring[T]) Readable() <-chan struct{} { return r.notify }

// Wait blocks until the ring holds an element or ctx is done.
func (r *Ring[T]) Wait(ctx context.Context) error {
	for r.Used() == 0 {
		select {
		case <-r.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
