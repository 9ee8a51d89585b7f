// rpubus/device.go

package rpubus

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	"github.com/jangala-dev/tinygo-nrf70bus/hal"
	"github.com/jangala-dev/tinygo-nrf70bus/memmap"
)

// Device is the single entry point upper layers use to talk to the
// companion chip. Every transfer is validated against the memory map and
// dispatched to the fast or high-latency read path the matched region
// calls for.
type Device struct {
	t     Transport
	mm    memmap.Map
	power *PowerSequencer
	hs    handshake
	clk   Clock
	log   logr.Logger
	m     *Metrics

	mu    sync.Mutex // serialises power transitions
	state atomic.Uint32
	users refGate
}

type options struct {
	log  logr.Logger
	m    *Metrics
	clk  Clock
	mm   memmap.Map
	pcfg PowerConfig
	hcfg HandshakeConfig
	wake uint32
}

type Option func(*options)

func WithLogger(log logr.Logger) Option { return func(o *options) { o.log = log } }

// WithMetrics enables accounting. A nil m is accepted.
func WithMetrics(m *Metrics) Option { return func(o *options) { o.m = m } }

func WithClock(clk Clock) Option { return func(o *options) { o.clk = clk } }

// WithMemoryMap replaces the nRF7002 region table.
func WithMemoryMap(mm memmap.Map) Option { return func(o *options) { o.mm = mm } }

func WithPowerConfig(cfg PowerConfig) Option { return func(o *options) { o.pcfg = cfg } }

func WithHandshakeConfig(cfg HandshakeConfig) Option { return func(o *options) { o.hcfg = cfg } }

// WithWakeFrequency sets the bus clock used during a wake handshake. The
// default is DefaultBusConfig().WakeFrequencyHz; zero keeps the bus at its
// current frequency.
func WithWakeFrequency(hz uint32) Option { return func(o *options) { o.wake = hz } }

// New composes a device over t. The rail pins in pins are required; the
// IRQ pin is optional.
func New(t Transport, pins Pins, opts ...Option) (*Device, error) {
	o := options{
		log:  logr.Discard(),
		clk:  SystemClock,
		mm:   memmap.Default,
		pcfg: DefaultPowerConfig(),
		hcfg: DefaultHandshakeConfig(),
		wake: DefaultBusConfig().WakeFrequencyHz,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if t == nil {
		return nil, ErrNotReady
	}
	log := o.log.WithName("rpu")
	power, err := NewPowerSequencer(pins, o.pcfg, o.clk, log)
	if err != nil {
		return nil, err
	}
	d := &Device{
		t:     t,
		mm:    o.mm,
		power: power,
		clk:   o.clk,
		log:   log,
		m:     o.m,
	}
	d.users.observe = d.m.users
	d.hs = handshake{t: t, wakeHz: o.wake, cfg: o.hcfg, clk: o.clk, log: log.WithName("handshake"), m: o.m}
	d.m.state(Off)
	return d, nil
}

// State is the host's view of the chip's power state.
func (d *Device) State() PowerState { return PowerState(d.state.Load()) }

func (d *Device) setState(s PowerState) {
	d.state.Store(uint32(s))
	d.m.state(s)
}

// Transport returns the bus the device was built on.
func (d *Device) Transport() Transport { return d.t }

// Power returns the sequencer owning the rail and IRQ pins.
func (d *Device) Power() *PowerSequencer { return d.power }

// Init claims the rail pins, powers the chip and opens the bus. Any failure
// unwinds the steps already taken and disarms the host IRQ. Init on a
// powered device is a no-op.
func (d *Device) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State() != Off {
		return nil
	}
	if err := d.power.GPIOInit(); err != nil {
		return multierr.Append(err, d.power.IRQRemove())
	}
	if err := d.power.PowerOn(ctx); err != nil {
		return multierr.Combine(err, d.power.GPIOTeardown(), d.power.IRQRemove())
	}
	if err := d.t.Open(ctx); err != nil {
		return multierr.Combine(err, d.power.PowerOff(), d.power.GPIOTeardown(), d.power.IRQRemove())
	}
	d.setState(PoweredOn)
	d.log.Info("powered on", "bus", d.t.Kind())
	return nil
}

// Enable wakes the chip and turns on its clocks. If either step fails the
// chip is powered off and the pins, host IRQ included, are released before
// the error is returned.
func (d *Device) Enable(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State() == Off {
		return ErrNotReady
	}
	err := d.wakeLocked(ctx)
	if err == nil {
		var w [4]byte
		binary.LittleEndian.PutUint32(w[:], hal.ClockEnableValue)
		err = d.write(ctx, hal.ClockEnableAddr, w[:])
	}
	if err != nil {
		d.log.Error(err, "enable failed, powering off")
		return multierr.Append(err, d.disableLocked())
	}
	return nil
}

// Disable disarms the host IRQ, powers the chip off, releases the rail pins
// and closes the bus. Every step is attempted and all failures are returned
// together.
func (d *Device) Disable(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State() == Off {
		return nil
	}
	return d.disableLocked()
}

func (d *Device) disableLocked() error {
	err := multierr.Combine(d.power.IRQRemove(), d.power.PowerOff(), d.power.GPIOTeardown(), d.t.Close())
	d.setState(Off)
	d.log.Info("powered off")
	return err
}

// Deinit removes any armed IRQ handler and then disables the device. Unlike
// Disable it also disarms the IRQ of a device that is already off.
func (d *Device) Deinit(ctx context.Context) error {
	return multierr.Append(d.power.IRQRemove(), d.Disable(ctx))
}

// Acquire takes a reference to the device. The first holder initialises and
// enables it.
func (d *Device) Acquire(ctx context.Context) error {
	return d.users.acquire(func() error {
		if err := d.Init(ctx); err != nil {
			return err
		}
		return d.Enable(ctx)
	})
}

// Release drops a reference. The last holder deinitialises the device.
func (d *Device) Release(ctx context.Context) error {
	return d.users.release(func() error { return d.Deinit(ctx) })
}

// Users is the number of outstanding Acquire references.
func (d *Device) Users() int32 { return d.users.count() }

// Wake runs the wake handshake. It is safe to call on an awake chip.
func (d *Device) Wake(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State() == Off {
		return ErrNotReady
	}
	return d.wakeLocked(ctx)
}

func (d *Device) wakeLocked(ctx context.Context) error {
	prev := d.State()
	d.setState(WakeRequested)
	if err := d.hs.wake(ctx); err != nil {
		d.setState(prev)
		return err
	}
	d.setState(Awake)
	return nil
}

// Sleep asks the chip to sleep. No acknowledgement is awaited.
func (d *Device) Sleep(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev := d.State()
	if prev == Off {
		return ErrNotReady
	}
	d.setState(SleepRequested)
	if err := d.hs.sleep(ctx); err != nil {
		d.setState(prev)
		return err
	}
	d.setState(Asleep)
	return nil
}

// SleepStatus reads the chip's awake bit. It does not change State.
func (d *Device) SleepStatus(ctx context.Context) (PowerState, error) {
	if d.State() == Off {
		return Off, ErrNotReady
	}
	return d.hs.status(ctx)
}

// EnableEncryption turns on bus encryption with key. SPI transports return
// ErrNotSupported.
func (d *Device) EnableEncryption(ctx context.Context, key [16]byte) error {
	if d.State() == Off {
		return ErrNotReady
	}
	return d.t.EnableEncryption(ctx, key)
}

func (d *Device) IRQRegister(handler func()) error { return d.power.IRQRegister(handler) }

func (d *Device) IRQRemove() error { return d.power.IRQRemove() }

// Read returns n bytes from addr.
func (d *Device) Read(ctx context.Context, addr uint32, n int) ([]byte, error) {
	if n <= 0 {
		d.m.reject(ErrInvalidLength)
		return nil, ErrInvalidLength
	}
	p := make([]byte, n)
	if err := d.ReadInto(ctx, addr, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ReadInto fills p from addr.
func (d *Device) ReadInto(ctx context.Context, addr uint32, p []byte) error {
	if d.State() == Off {
		d.m.reject(ErrNotReady)
		return ErrNotReady
	}
	r, err := d.mm.Validate(addr, uint32(len(p)), memmap.Read)
	if err != nil {
		d.m.reject(err)
		return err
	}
	if r.Latency == memmap.Immediate {
		if err := d.t.Read(ctx, addr, p); err != nil {
			return err
		}
		d.m.transfer("read", "fast", len(p))
		return nil
	}
	if err := d.highLatencyRead(ctx, addr, p, r.LatencyWords()); err != nil {
		return err
	}
	d.m.transfer("read", "high_latency", len(p))
	return nil
}

// highLatencyRead widens an unaligned window to whole words and splices the
// requested bytes out of it.
func (d *Device) highLatencyRead(ctx context.Context, addr uint32, p []byte, latency int) error {
	base := addr &^ (wordSize - 1)
	end := (addr + uint32(len(p)) + wordSize - 1) &^ (wordSize - 1)
	if base == addr && end-base == uint32(len(p)) {
		return d.t.HighLatencyRead(ctx, addr, p, latency)
	}
	buf := make([]byte, end-base)
	if err := d.t.HighLatencyRead(ctx, base, buf, latency); err != nil {
		return err
	}
	copy(p, buf[addr-base:])
	return nil
}

// Write stores data at addr. ROM regions are refused.
func (d *Device) Write(ctx context.Context, addr uint32, data []byte) error {
	if d.State() == Off {
		d.m.reject(ErrNotReady)
		return ErrNotReady
	}
	return d.write(ctx, addr, data)
}

func (d *Device) write(ctx context.Context, addr uint32, data []byte) error {
	r, err := d.mm.Validate(addr, uint32(len(data)), memmap.Write)
	if err != nil {
		d.m.reject(err)
		return err
	}
	if err := d.t.Write(ctx, addr, data, r.LatencyWords()); err != nil {
		if errors.Is(err, ErrInvalidAlignment) {
			d.m.reject(err)
		}
		return err
	}
	d.m.transfer("write", "fast", len(data))
	return nil
}
