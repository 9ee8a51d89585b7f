// rpubus/handshake.go

package rpubus

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	"github.com/jangala-dev/tinygo-nrf70bus/hal"
)

// handshake drives the wake/sleep protocol over the status registers.
type handshake struct {
	t      Transport
	wakeHz uint32
	cfg    HandshakeConfig
	clk    Clock
	log    logr.Logger
	m      *Metrics
}

// wake requests the chip out of sleep and waits for the awake bit. The bus
// runs at the wake frequency for the duration and the durable frequency is
// restored on every path. Running it against an already awake chip
// succeeds.
func (h *handshake) wake(ctx context.Context) (err error) {
	prev := h.t.Frequency()
	if h.wakeHz != 0 && h.wakeHz != prev {
		if err := h.t.SetFrequency(ctx, h.wakeHz); err != nil {
			return err
		}
		defer func() {
			if rerr := h.t.SetFrequency(context.WithoutCancel(ctx), prev); rerr != nil {
				h.log.Error(rerr, "restoring bus frequency", "hz", prev)
				err = multierr.Append(err, rerr)
			}
		}()
	}

	if err := h.t.WriteStatus(ctx, SR2, hal.SR2WakeupNow); err != nil {
		return err
	}

	n, err := h.cfg.Ack.Poll(ctx, h.clk, func(ctx context.Context) (bool, error) {
		v, err := h.t.ReadStatus(ctx, SR2)
		return v&hal.SR2WakeupNow != 0, err
	})
	h.m.polls(n)
	if err != nil {
		return h.timedOut("wake ack", n, err)
	}

	n, err = h.cfg.Ready.Poll(ctx, h.clk, func(ctx context.Context) (bool, error) {
		v, err := h.t.ReadStatus(ctx, SR1)
		return v&hal.SR1Awake != 0, err
	})
	h.m.polls(n)
	if err != nil {
		return h.timedOut("awake", n, err)
	}
	h.log.V(1).Info("awake", "polls", n)
	return nil
}

// timedOut reports an exhausted poll as ErrHandshakeTimeout. Bus errors and
// cancellation that aborted the loop pass through.
func (h *handshake) timedOut(step string, polls int, err error) error {
	if !isExhausted(err) {
		return err
	}
	h.m.timeout()
	h.log.Info("handshake timed out", "step", step, "polls", polls)
	return fmt.Errorf("%w: %s: %w", ErrHandshakeTimeout, step, err)
}

// sleep clears the wake request. No acknowledgement is polled.
func (h *handshake) sleep(ctx context.Context) error {
	return h.t.WriteStatus(ctx, SR2, 0)
}

// status reads SR1 and reports Awake or Asleep.
func (h *handshake) status(ctx context.Context) (PowerState, error) {
	v, err := h.t.ReadStatus(ctx, SR1)
	if err != nil {
		return Off, err
	}
	if v&hal.SR1Awake != 0 {
		return Awake, nil
	}
	return Asleep, nil
}
