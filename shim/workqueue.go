// shim/workqueue.go

package shim

import (
	"context"
	"sync/atomic"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

// Tasklet is a unit of deferred work. Scheduling an already pending
// tasklet is a no-op, so a burst of schedules runs it once.
type Tasklet struct {
	fn      func(context.Context)
	pending atomic.Bool
	killed  atomic.Bool
}

func NewTasklet(fn func(context.Context)) *Tasklet { return &Tasklet{fn: fn} }

// WorkQueue runs tasklets on a fixed set of worker goroutines.
type WorkQueue struct {
	log    logr.Logger
	ch     chan *Tasklet
	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group
}

// NewWorkQueue starts workers goroutines that run until Close or until ctx
// is done.
func NewWorkQueue(ctx context.Context, log logr.Logger, workers int) *WorkQueue {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	eg, ctx := errgroup.WithContext(ctx)
	q := &WorkQueue{
		log:    log.WithName("workqueue"),
		ch:     make(chan *Tasklet, 64),
		ctx:    ctx,
		cancel: cancel,
		eg:     eg,
	}
	for i := 0; i < workers; i++ {
		eg.Go(q.worker)
	}
	return q
}

func (q *WorkQueue) worker() error {
	for {
		select {
		case t := <-q.ch:
			t.pending.Store(false)
			if t.killed.Load() {
				continue
			}
			t.fn(q.ctx)
		case <-q.ctx.Done():
			return nil
		}
	}
}

// Schedule queues t. It reports false if t was already pending, was
// killed, or the queue is closed.
func (q *WorkQueue) Schedule(t *Tasklet) bool {
	if t.killed.Load() || !t.pending.CompareAndSwap(false, true) {
		return false
	}
	select {
	case q.ch <- t:
		return true
	case <-q.ctx.Done():
		t.pending.Store(false)
		return false
	}
}

// Kill stops t from running again. A run already in progress completes.
func (q *WorkQueue) Kill(t *Tasklet) { t.killed.Store(true) }

// Close stops the workers and waits for them to exit.
func (q *WorkQueue) Close() error {
	q.cancel()
	err := q.eg.Wait()
	q.log.V(1).Info("closed")
	return err
}
