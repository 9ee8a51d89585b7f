// shim/spinlock.go

package shim

import (
	"runtime"
	"sync/atomic"
)

// Spinlock is a test-and-set lock for very short critical sections. The
// zero value is unlocked.
type Spinlock struct {
	state atomic.Uint32
	irq   atomic.Int32
}

func (l *Spinlock) Lock() {
	for !l.state.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

func (l *Spinlock) TryLock() bool { return l.state.CompareAndSwap(0, 1) }

func (l *Spinlock) Unlock() {
	if l.state.Swap(0) == 0 {
		panic("shim: unlock of unlocked spinlock")
	}
}

// LockIRQ takes the lock from code that may race the IRQ delivery worker.
// Host goroutines cannot mask interrupts, so the lock records the section
// and IRQs are deferred by the delivery worker taking the same lock.
func (l *Spinlock) LockIRQ() {
	l.Lock()
	l.irq.Add(1)
}

func (l *Spinlock) UnlockIRQ() {
	l.irq.Add(-1)
	l.Unlock()
}

// InIRQSection reports whether the lock is held through LockIRQ.
func (l *Spinlock) InIRQSection() bool { return l.irq.Load() > 0 }
