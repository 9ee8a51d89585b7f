package shim

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
)

func TestWorkQueue_RunsAndDedups(t *testing.T) {
	q := NewWorkQueue(context.Background(), logr.Discard(), 1)
	defer q.Close()

	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var runs atomic.Int32
	tl := NewTasklet(func(context.Context) {
		runs.Add(1)
		started <- struct{}{}
		<-release
	})

	if !q.Schedule(tl) {
		t.Fatal("first schedule refused")
	}
	<-started
	// Running, not pending: one more schedule is accepted, the rest coalesce.
	if !q.Schedule(tl) {
		t.Fatal("schedule while running refused")
	}
	if q.Schedule(tl) || q.Schedule(tl) {
		t.Fatal("schedule while pending accepted")
	}
	close(release)
	<-started
	if got := runs.Load(); got != 2 {
		t.Fatalf("runs = %d", got)
	}
}

func TestWorkQueue_KilledTaskletDoesNotRun(t *testing.T) {
	q := NewWorkQueue(context.Background(), logr.Discard(), 2)
	ran := make(chan struct{}, 1)
	tl := NewTasklet(func(context.Context) { ran <- struct{}{} })
	q.Kill(tl)
	if q.Schedule(tl) {
		t.Fatal("killed tasklet scheduled")
	}
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ran:
		t.Fatal("killed tasklet ran")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestWorkQueue_ScheduleAfterClose(t *testing.T) {
	q := NewWorkQueue(context.Background(), logr.Discard(), 1)
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	// Fill the channel so the send cannot succeed.
	for i := 0; i < cap(q.ch); i++ {
		q.ch <- NewTasklet(func(context.Context) {})
	}
	if q.Schedule(NewTasklet(func(context.Context) {})) {
		t.Fatal("schedule after close accepted")
	}
}
