// shim/busdev.go

package shim

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/jangala-dev/tinygo-nrf70bus/rpubus"
)

// BusOps is the operation table an upper MAC driver drives the companion
// chip through. Every call blocks until it completes or the
// implementation's timeout expires.
type BusOps interface {
	Add() error
	Remove() error
	Init() error
	Deinit() error
	Read(addr uint32, p []byte) error
	Write(addr uint32, p []byte) error
	Sleep() error
	Wake() error
	SleepStatus() (rpubus.PowerState, error)
	IRQRegister(handler func()) error
	IRQUnregister() error
}

// DefaultTimeout bounds every BusDev call.
const DefaultTimeout = 2 * time.Second

// BusDev implements BusOps over an rpubus.Device. Host IRQ edges are queued
// on a Ring from the interrupt callback and the handler runs on a
// dedicated goroutine, so handlers may issue bus operations.
type BusDev struct {
	dev     *rpubus.Device
	timeout time.Duration
	depth   int
	log     logr.Logger

	mu     sync.Mutex
	events *Ring[uint32]
	cancel context.CancelFunc
	eg     *errgroup.Group
}

var _ BusOps = (*BusDev)(nil)

type BusDevOption func(*BusDev)

func WithTimeout(d time.Duration) BusDevOption { return func(b *BusDev) { b.timeout = d } }

func WithLogger(log logr.Logger) BusDevOption { return func(b *BusDev) { b.log = log } }

// WithIRQDepth sets how many undelivered edges are queued before new ones
// are dropped.
func WithIRQDepth(n int) BusDevOption { return func(b *BusDev) { b.depth = n } }

func NewBusDev(dev *rpubus.Device, opts ...BusDevOption) *BusDev {
	b := &BusDev{
		dev:     dev,
		timeout: DefaultTimeout,
		depth:   16,
		log:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.WithName("busdev")
	return b
}

func (b *BusDev) call(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	return fn(ctx)
}

// Add takes a reference on the device, bringing it up for the first user.
func (b *BusDev) Add() error { return b.call(b.dev.Acquire) }

// Remove drops a reference, powering the device off after the last user.
// The device disarms the IRQ line on the way down, so the delivery
// goroutine is stopped with it.
func (b *BusDev) Remove() error {
	err := b.call(b.dev.Release)
	if b.dev.Users() == 0 && !b.dev.Power().IRQArmed() {
		b.mu.Lock()
		b.stopLocked()
		b.mu.Unlock()
	}
	return err
}

// Init powers the device and wakes it.
func (b *BusDev) Init() error {
	return b.call(func(ctx context.Context) error {
		if err := b.dev.Init(ctx); err != nil {
			return err
		}
		return b.dev.Enable(ctx)
	})
}

// Deinit removes the IRQ handler and powers the device off.
func (b *BusDev) Deinit() error {
	if err := b.IRQUnregister(); err != nil {
		b.log.Error(err, "unregistering irq")
	}
	return b.call(b.dev.Deinit)
}

func (b *BusDev) Read(addr uint32, p []byte) error {
	return b.call(func(ctx context.Context) error { return b.dev.ReadInto(ctx, addr, p) })
}

func (b *BusDev) Write(addr uint32, p []byte) error {
	return b.call(func(ctx context.Context) error { return b.dev.Write(ctx, addr, p) })
}

func (b *BusDev) Sleep() error { return b.call(b.dev.Sleep) }

func (b *BusDev) Wake() error { return b.call(b.dev.Wake) }

func (b *BusDev) SleepStatus() (s rpubus.PowerState, err error) {
	err = b.call(func(ctx context.Context) error {
		s, err = b.dev.SleepStatus(ctx)
		return err
	})
	return s, err
}

// IRQRegister arms the host IRQ line. handler runs on the delivery
// goroutine once per queued edge.
func (b *BusDev) IRQRegister(handler func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		if b.dev.Power().IRQArmed() {
			return b.dev.IRQRegister(handler) // reports the line as busy
		}
		// The device dropped the line underneath us.
		b.stopLocked()
	}

	events := NewRing[uint32](b.depth)
	ctx, cancel := context.WithCancel(context.Background())
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		for {
			if _, ok := events.Get(); ok {
				handler()
				continue
			}
			if err := events.Wait(ctx); err != nil {
				return nil
			}
		}
	})

	var seq uint32
	if err := b.dev.IRQRegister(func() {
		seq++
		if !events.Put(seq) {
			b.log.V(1).Info("irq edge dropped", "dropped", events.Dropped())
		}
	}); err != nil {
		cancel()
		_ = eg.Wait()
		return err
	}
	b.events, b.cancel, b.eg = events, cancel, eg
	return nil
}

// IRQUnregister disarms the line and stops the delivery goroutine. Edges
// still queued are discarded.
func (b *BusDev) IRQUnregister() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel == nil {
		return nil
	}
	err := b.dev.IRQRemove()
	b.stopLocked()
	return err
}

func (b *BusDev) stopLocked() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	_ = b.eg.Wait()
	b.events, b.cancel, b.eg = nil, nil, nil
}

// DroppedIRQs is the number of edges lost because the queue was full.
func (b *BusDev) DroppedIRQs() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.events == nil {
		return 0
	}
	return b.events.Dropped()
}
