package rpubus_test

import (
	"github.com/prometheus/client_golang/prometheus"

	. "github.com/onsi/gomega"

	"github.com/jangala-dev/tinygo-nrf70bus/hal"
	"github.com/jangala-dev/tinygo-nrf70bus/rpubus"
	"github.com/jangala-dev/tinygo-nrf70bus/rpusim"
)

// rig is a device wired to a simulated chip over one bus kind.
type rig struct {
	chip     *rpusim.Chip
	buck     *rpusim.Pin
	iovdd    *rpusim.Pin
	irq      *rpusim.Pin
	cs       *rpusim.Pin
	rec      *rpusim.Recorder
	clk      *rpusim.Clock
	div      *rpusim.Divider
	t        rpubus.Transport
	dev      *rpubus.Device
	m        *rpubus.Metrics
	cfg      rpubus.BusConfig
	extra    []rpubus.Option
	shared   bool
	chipOpts []rpusim.Option
}

type rigOption func(*rig)

func sharedRail() rigOption { return func(r *rig) { r.shared = true } }

func busConfig(cfg rpubus.BusConfig) rigOption { return func(r *rig) { r.cfg = cfg } }

func deviceOptions(opts ...rpubus.Option) rigOption {
	return func(r *rig) { r.extra = append(r.extra, opts...) }
}

func chipOptions(opts ...rpusim.Option) rigOption {
	return func(r *rig) { r.chipOpts = append(r.chipOpts, opts...) }
}

func newRig(kind rpubus.BusKind, opts ...rigOption) *rig {
	r := &rig{
		buck:  rpusim.NewPin("bucken"),
		iovdd: rpusim.NewPin("iovdd"),
		irq:   rpusim.NewPin("host-irq"),
		cs:    rpusim.NewPin("cs"),
		rec:   &rpusim.Recorder{},
		clk:   rpusim.NewClock(),
		div:   rpusim.NewDivider(4),
		cfg:   rpubus.DefaultBusConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.shared {
		r.iovdd = r.buck
	}

	var err error
	switch kind {
	case rpubus.KindSPI:
		r.chip = rpusim.NewChip(append(r.chipOpts, rpusim.WithChipSelect(r.cs))...)
		r.t, err = rpubus.NewSPI(r.chip.SPI(), r.cs, r.cfg, testLog)
	default:
		r.chip = rpusim.NewChip(r.chipOpts...)
		r.t, err = rpubus.NewQSPI(r.chip, r.div, r.cfg, testLog)
	}
	Expect(err).NotTo(HaveOccurred())

	r.m, err = rpubus.NewMetrics(prometheus.NewRegistry())
	Expect(err).NotTo(HaveOccurred())

	pins := rpubus.Pins{
		BuckEn:  r.rec.Watch(r.buck),
		IOVDD:   r.rec.Watch(r.iovdd),
		HostIRQ: r.irq,
	}
	devOpts := append([]rpubus.Option{
		rpubus.WithLogger(testLog),
		rpubus.WithClock(r.clk),
		rpubus.WithMetrics(r.m),
	}, r.extra...)
	r.dev, err = rpubus.New(r.t, pins, devOpts...)
	Expect(err).NotTo(HaveOccurred())
	return r
}

// railsDown reports whether neither rail is driven high.
func (r *rig) railsDown() bool {
	return !r.buck.Level() && !r.iovdd.Level()
}

func (r *rig) pinsReleased() bool {
	return r.buck.Mode() == hal.PinDisconnected && r.iovdd.Mode() == hal.PinDisconnected
}
