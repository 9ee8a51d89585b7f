package shim

import (
	"context"
	"testing"
	"time"

	"github.com/jangala-dev/tinygo-nrf70bus/rpusim"
)

func TestClock_Microseconds(t *testing.T) {
	vc := rpusim.NewClock()
	c := NewClock(vc)
	ctx := context.Background()

	start := c.TimeNowUS()
	if start != 0 {
		t.Fatalf("start = %d", start)
	}
	_ = c.SleepMS(ctx, 3)
	_ = c.DelayUS(ctx, 250)
	if got := c.TimeElapsedUS(start); got != 3250 {
		t.Fatalf("elapsed = %dus", got)
	}
	if c.TimeElapsedUS(1 << 40) != 0 {
		t.Fatal("elapsed from the future is not zero")
	}
	want := []time.Duration{3 * time.Millisecond, 250 * time.Microsecond}
	got := vc.Sleeps()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("sleeps %v", got)
	}
}

func TestClock_DefaultsToSystemClock(t *testing.T) {
	c := NewClock(nil)
	if c.Now().IsZero() {
		t.Fatal("zero time")
	}
}
