// rpusim/clock.go

package rpusim

import (
	"context"
	"sync"
	"time"

	"github.com/jangala-dev/tinygo-nrf70bus/hal"
)

// Clock is a virtual clock. Sleep advances time instantly.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return nil
}

// Sleeps lists every requested sleep, oldest first.
func (c *Clock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// Elapsed is the total virtual time slept.
func (c *Clock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var t time.Duration
	for _, d := range c.sleeps {
		t += d
	}
	return t
}

// Divider is a fake shared clock-domain divider.
type Divider struct {
	mu      sync.Mutex
	value   uint8
	sets    []uint8
	failSet error
}

var _ hal.ClockControl = (*Divider)(nil)

func NewDivider(initial uint8) *Divider { return &Divider{value: initial} }

func (d *Divider) Divider() (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, nil
}

func (d *Divider) SetDivider(v uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sets = append(d.sets, v)
	if d.failSet != nil {
		return d.failSet
	}
	d.value = v
	return nil
}

// FailSet makes every SetDivider return err.
func (d *Divider) FailSet(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failSet = err
}

func (d *Divider) Value() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

// Sets lists every divider value requested, failed ones included.
func (d *Divider) Sets() []uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint8(nil), d.sets...)
}
