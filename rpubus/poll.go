// rpubus/poll.go

package rpubus

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Clock is the time source for settle delays and poll intervals. Tests
// inject a virtual clock; production uses SystemClock.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

// SystemClock sleeps on real timers.
var SystemClock Clock = systemClock{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PollPolicy bounds a polling loop by attempt count and, optionally, by a
// wall-clock deadline measured on the injected Clock.
type PollPolicy struct {
	MaxAttempts int
	Interval    time.Duration
	Deadline    time.Duration // zero: attempts only
	// RetryOnError treats a failed probe as a negative result instead of
	// aborting the loop.
	RetryOnError bool
}

// Poll calls cond until it reports true, the attempts or deadline run out,
// or ctx is done. It sleeps Interval between attempts, never after the last
// one. On exhaustion the error wraps ErrPollExhausted and, if the last probe
// failed, that failure too.
func (p PollPolicy) Poll(ctx context.Context, clk Clock, cond func(context.Context) (bool, error)) (int, error) {
	max := p.MaxAttempts
	if max <= 0 {
		max = 1
	}
	var deadline time.Time
	if p.Deadline > 0 {
		deadline = clk.Now().Add(p.Deadline)
	}
	var lastErr error
	attempts := 0
	for attempts < max {
		attempts++
		ok, err := cond(ctx)
		if err != nil {
			if !p.RetryOnError {
				return attempts, err
			}
			lastErr = err
		} else if ok {
			return attempts, nil
		} else {
			lastErr = nil
		}
		if attempts == max {
			break
		}
		if !deadline.IsZero() && !clk.Now().Before(deadline) {
			break
		}
		if err := clk.Sleep(ctx, p.Interval); err != nil {
			return attempts, err
		}
	}
	if lastErr != nil {
		return attempts, fmt.Errorf("%w after %d attempts: %w", ErrPollExhausted, attempts, lastErr)
	}
	return attempts, fmt.Errorf("%w after %d attempts", ErrPollExhausted, attempts)
}

func isExhausted(err error) bool { return errors.Is(err, ErrPollExhausted) }
