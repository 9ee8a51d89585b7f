// rpubus/lock.go

package rpubus

import (
	"context"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"

	"github.com/jangala-dev/tinygo-nrf70bus/hal"
)

// busLock serialises physical transfers. On clock-scaled hosts it also
// switches the shared clock domain to a faster divider for the duration of
// the hold and restores the previous divider on every exit path.
type busLock struct {
	sem     *semaphore.Weighted
	clk     hal.ClockControl // nil when the bus has no shared clock domain
	divider uint8
	log     logr.Logger
}

func newBusLock(clk hal.ClockControl, divider uint8, log logr.Logger) *busLock {
	return &busLock{
		sem:     semaphore.NewWeighted(1),
		clk:     clk,
		divider: divider,
		log:     log,
	}
}

// do runs fn with the bus held. Errors from restoring the clock divider are
// merged into fn's error.
func (l *busLock) do(ctx context.Context, fn func() error) (err error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return busError("lock", 0, err)
	}
	defer l.sem.Release(1)

	if l.clk != nil {
		prev, err := l.clk.Divider()
		if err != nil {
			return busError("clock divider get", 0, err)
		}
		if prev != l.divider {
			if err := l.clk.SetDivider(l.divider); err != nil {
				return busError("clock divider set", 0, err)
			}
			defer func() {
				if rerr := l.clk.SetDivider(prev); rerr != nil {
					l.log.Error(rerr, "restoring clock divider", "divider", prev)
					err = multierr.Append(err, busError("clock divider restore", 0, rerr))
				}
			}()
		}
	}
	return fn()
}
