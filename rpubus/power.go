// rpubus/power.go

package rpubus

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	"github.com/jangala-dev/tinygo-nrf70bus/hal"
)

// Pins are the GPIO lines the power sequencer owns. BuckEn and IOVDD may be
// the same pin on boards that share one enable line for both rails.
// HostIRQ is optional.
type Pins struct {
	BuckEn  hal.Pin
	IOVDD   hal.Pin
	HostIRQ hal.Pin
}

const (
	pinBuckEn  = "bucken"
	pinIOVDD   = "iovdd"
	pinHostIRQ = "host-irq"
)

// samePin reports whether a and b are the same line. Pins with
// non-comparable dynamic types are never considered shared.
func samePin(a, b hal.Pin) bool {
	if a == nil || b == nil {
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// PowerSequencer drives the two supply rails and owns the host IRQ line.
type PowerSequencer struct {
	pins   Pins
	shared bool
	cfg    PowerConfig
	clk    Clock
	log    logr.Logger

	mu       sync.Mutex
	irqArmed bool
}

func NewPowerSequencer(pins Pins, cfg PowerConfig, clk Clock, log logr.Logger) (*PowerSequencer, error) {
	if pins.BuckEn == nil || pins.IOVDD == nil {
		return nil, gpioError(pinBuckEn, "claim", hal.ErrInvalidParam)
	}
	if clk == nil {
		clk = SystemClock
	}
	return &PowerSequencer{
		pins:   pins,
		shared: samePin(pins.BuckEn, pins.IOVDD),
		cfg:    cfg,
		clk:    clk,
		log:    log.WithName("power"),
	}, nil
}

// Shared reports whether both rails are driven by one pin.
func (p *PowerSequencer) Shared() bool { return p.shared }

func claim(pin hal.Pin, name string) error {
	if err := pin.Configure(hal.PinOutput); err != nil {
		return gpioError(name, "configure", err)
	}
	return gpioError(name, "set low", pin.Set(false))
}

// GPIOInit claims both rail pins as low outputs. If the second claim fails
// the first is released again.
func (p *PowerSequencer) GPIOInit() error {
	if err := claim(p.pins.BuckEn, pinBuckEn); err != nil {
		return err
	}
	if p.shared {
		return nil
	}
	if err := claim(p.pins.IOVDD, pinIOVDD); err != nil {
		rerr := p.pins.BuckEn.Configure(hal.PinDisconnected)
		return multierr.Append(err, gpioError(pinBuckEn, "release", rerr))
	}
	return nil
}

// GPIOTeardown releases both rail pins. Every release is attempted and all
// failures are returned together.
func (p *PowerSequencer) GPIOTeardown() error {
	err := gpioError(pinBuckEn, "release", p.pins.BuckEn.Configure(hal.PinDisconnected))
	if !p.shared {
		err = multierr.Append(err, gpioError(pinIOVDD, "release", p.pins.IOVDD.Configure(hal.PinDisconnected)))
	}
	if err != nil {
		p.log.Error(err, "gpio teardown")
	}
	return err
}

// PowerOn raises BuckEn then IOVDD, waiting one tick after each and the
// shared settle time when both rails are one pin. A failure after BuckEn
// went high drives the rails low again before returning.
func (p *PowerSequencer) PowerOn(ctx context.Context) error {
	if err := p.pins.BuckEn.Set(true); err != nil {
		return gpioError(pinBuckEn, "set high", err)
	}
	if err := p.clk.Sleep(ctx, p.cfg.Tick); err != nil {
		return multierr.Append(err, p.PowerOff())
	}
	if err := p.pins.IOVDD.Set(true); err != nil {
		return multierr.Append(gpioError(pinIOVDD, "set high", err),
			gpioError(pinBuckEn, "set low", p.pins.BuckEn.Set(false)))
	}
	settle := p.cfg.Tick
	if p.shared {
		settle += time.Duration(p.cfg.SharedSettleTicks) * p.cfg.Tick
	}
	if err := p.clk.Sleep(ctx, settle); err != nil {
		return multierr.Append(err, p.PowerOff())
	}
	p.log.V(1).Info("rails up", "shared", p.shared)
	return nil
}

// PowerOff drives IOVDD then BuckEn low. Both are attempted.
func (p *PowerSequencer) PowerOff() error {
	err := gpioError(pinIOVDD, "set low", p.pins.IOVDD.Set(false))
	if !p.shared {
		err = multierr.Append(err, gpioError(pinBuckEn, "set low", p.pins.BuckEn.Set(false)))
	}
	if err == nil {
		p.log.V(1).Info("rails down")
	}
	return err
}

// IRQRegister configures HostIRQ as an input and arms a rising-edge
// interrupt calling handler. Only one handler may be armed at a time.
func (p *PowerSequencer) IRQRegister(handler func()) error {
	if p.pins.HostIRQ == nil {
		return ErrNotSupported
	}
	if handler == nil {
		return gpioError(pinHostIRQ, "register", hal.ErrInvalidParam)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.irqArmed {
		return gpioError(pinHostIRQ, "register", hal.ErrBusy)
	}
	irq := p.pins.HostIRQ
	if err := irq.Configure(hal.PinInput); err != nil {
		return gpioError(pinHostIRQ, "configure", err)
	}
	if err := irq.SetInterrupt(hal.PinRising, handler); err != nil {
		rerr := irq.Configure(hal.PinDisconnected)
		return multierr.Append(gpioError(pinHostIRQ, "arm", err), gpioError(pinHostIRQ, "release", rerr))
	}
	p.irqArmed = true
	return nil
}

// IRQRemove disarms the interrupt and disconnects the pin. The line is
// considered released even if a step fails.
func (p *PowerSequencer) IRQRemove() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.irqArmed {
		return nil
	}
	p.irqArmed = false
	irq := p.pins.HostIRQ
	return multierr.Append(
		gpioError(pinHostIRQ, "disarm", irq.SetInterrupt(hal.PinRising, nil)),
		gpioError(pinHostIRQ, "release", irq.Configure(hal.PinDisconnected)),
	)
}

// IRQArmed reports whether a handler is installed.
func (p *PowerSequencer) IRQArmed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.irqArmed
}
