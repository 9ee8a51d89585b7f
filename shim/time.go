// shim/time.go

package shim

import (
	"context"
	"time"

	"github.com/jangala-dev/tinygo-nrf70bus/rpubus"
)

// Clock gives the upper driver microsecond timestamps and sleeps on the
// same time source the device polls with.
type Clock struct {
	clk   rpubus.Clock
	start time.Time
}

func NewClock(clk rpubus.Clock) *Clock {
	if clk == nil {
		clk = rpubus.SystemClock
	}
	return &Clock{clk: clk, start: clk.Now()}
}

func (c *Clock) Now() time.Time { return c.clk.Now() }

// TimeNowUS is the number of microseconds since the clock was created.
func (c *Clock) TimeNowUS() uint64 { return uint64(c.clk.Now().Sub(c.start) / time.Microsecond) }

// TimeElapsedUS is the number of microseconds since startUS.
func (c *Clock) TimeElapsedUS(startUS uint64) uint64 {
	now := c.TimeNowUS()
	if now < startUS {
		return 0
	}
	return now - startUS
}

func (c *Clock) SleepMS(ctx context.Context, ms int) error {
	return c.clk.Sleep(ctx, time.Duration(ms)*time.Millisecond)
}

func (c *Clock) DelayUS(ctx context.Context, us int) error {
	return c.clk.Sleep(ctx, time.Duration(us)*time.Microsecond)
}
