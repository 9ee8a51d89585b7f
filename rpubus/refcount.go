// rpubus/refcount.go

package rpubus

import (
	"sync"
	"sync/atomic"
)

// refGate is a reference count whose 0→1 and 1→0 transitions run a setup
// and a teardown. Transitions are serialised by mu so a failing setup never
// leaves the count raised and concurrent holders never observe a half-built
// resource; the count itself is atomic so observers need no lock.
type refGate struct {
	mu sync.Mutex
	n  atomic.Int32
	// observe, if set, sees every new count while mu is held.
	observe func(int32)
}

// acquire takes a reference, running up first if this is the first one.
func (g *refGate) acquire(up func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.n.Load() == 0 && up != nil {
		if err := up(); err != nil {
			return err
		}
	}
	g.notify(g.n.Add(1))
	return nil
}

// release drops a reference, running down if it was the last one. The
// reference is dropped even when down fails.
func (g *refGate) release(down func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.n.Load() == 0 {
		return ErrNotHeld
	}
	n := g.n.Add(-1)
	g.notify(n)
	if n == 0 && down != nil {
		return down()
	}
	return nil
}

func (g *refGate) notify(n int32) {
	if g.observe != nil {
		g.observe(n)
	}
}

func (g *refGate) count() int32 { return g.n.Load() }
