// rpubus/qspi.go

package rpubus

import (
	"context"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/jangala-dev/tinygo-nrf70bus/hal"
)

// QSPI is the quad-SPI transport. The peripheral is activated on demand for
// each locked operation and the shared clock domain, when present, runs at
// BusConfig.LockDivider while the lock is held.
type QSPI struct {
	ctrl   hal.QSPIController
	cfg    BusConfig
	lock   *busLock
	active refGate
	bus    wordBus
	log    logr.Logger

	freq      atomic.Uint32
	encrypted atomic.Bool
}

var _ Transport = (*QSPI)(nil)

// NewQSPI builds a QSPI transport over ctrl. clk may be nil on hosts
// without a clock-scaled bus domain.
func NewQSPI(ctrl hal.QSPIController, clk hal.ClockControl, cfg BusConfig, log logr.Logger) (*QSPI, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.AddrMask%wordSize != 0 {
		return nil, ErrInvalidAlignment
	}
	log = log.WithName("qspi")
	q := &QSPI{
		ctrl: ctrl,
		cfg:  cfg,
		lock: newBusLock(clk, cfg.LockDivider, log),
		log:  log,
	}
	q.bus = wordBus{io: qspiWords{ctrl}, mask: cfg.AddrMask, log: log}
	q.freq.Store(cfg.FrequencyHz)
	return q, nil
}

func (q *QSPI) Kind() BusKind { return KindQSPI }

func (q *QSPI) Open(ctx context.Context) error {
	return q.lock.do(ctx, func() error {
		return q.configure(q.freq.Load())
	})
}

func (q *QSPI) Close() error {
	q.encrypted.Store(false)
	return nil
}

func (q *QSPI) configure(hz uint32) error {
	err := q.ctrl.Configure(hal.QSPIConfig{FrequencyHz: hz, Quad: q.cfg.Lines == Quad})
	if err != nil {
		return busError("configure", 0, err)
	}
	q.freq.Store(hz)
	q.log.V(1).Info("configured", "hz", hz, "quad", q.cfg.Lines == Quad)
	return nil
}

// locked runs fn with the bus held and the peripheral active.
func (q *QSPI) locked(ctx context.Context, fn func() error) error {
	return q.lock.do(ctx, func() (err error) {
		activate := func() error { return busError("activate", 0, q.ctrl.Activate()) }
		if err := q.active.acquire(activate); err != nil {
			return err
		}
		defer func() {
			deactivate := func() error { return busError("deactivate", 0, q.ctrl.Deactivate()) }
			if rerr := q.active.release(deactivate); rerr != nil && err == nil {
				err = rerr
			}
		}()
		return fn()
	})
}

func (q *QSPI) Read(ctx context.Context, addr uint32, p []byte) error {
	return q.locked(ctx, func() error { return q.bus.read(addr, p) })
}

func (q *QSPI) Write(ctx context.Context, addr uint32, p []byte, latencyWords int) error {
	return q.locked(ctx, func() error { return q.bus.write(addr, p, latencyWords) })
}

func (q *QSPI) HighLatencyRead(ctx context.Context, addr uint32, p []byte, latencyWords int) error {
	return q.locked(ctx, func() error { return q.bus.highLatencyRead(addr, p, latencyWords) })
}

func (q *QSPI) ReadStatus(ctx context.Context, reg StatusReg) (uint8, error) {
	op, err := readOpcode(reg)
	if err != nil {
		return 0, err
	}
	var rx [1]byte
	err = q.locked(ctx, func() error {
		return busError("read "+reg.String(), 0, q.ctrl.Cinstr(op, nil, rx[:]))
	})
	return rx[0], err
}

func (q *QSPI) WriteStatus(ctx context.Context, reg StatusReg, v uint8) error {
	if reg != SR2 {
		return ErrNotSupported
	}
	return q.locked(ctx, func() error {
		return busError("write "+reg.String(), 0, q.ctrl.Cinstr(hal.OpWRSR2, []byte{v}, nil))
	})
}

func (q *QSPI) Frequency() uint32 { return q.freq.Load() }

func (q *QSPI) SetFrequency(ctx context.Context, hz uint32) error {
	if hz == 0 {
		return busError("configure", 0, hal.ErrInvalidParam)
	}
	return q.lock.do(ctx, func() error { return q.configure(hz) })
}

// EnableEncryption programs the on-the-fly encryption key. It stays active
// until Close.
func (q *QSPI) EnableEncryption(ctx context.Context, key [16]byte) error {
	err := q.locked(ctx, func() error {
		return busError("set encryption", 0, q.ctrl.SetEncryption(key, hal.EncryptionNonce))
	})
	if err != nil {
		return err
	}
	q.encrypted.Store(true)
	q.log.Info("encryption enabled")
	return nil
}

// Encrypted reports whether EnableEncryption succeeded since the last Close.
func (q *QSPI) Encrypted() bool { return q.encrypted.Load() }

type qspiWords struct{ ctrl hal.QSPIController }

func (w qspiWords) readWords(addr uint32, p []byte) error  { return w.ctrl.Read(addr, p) }
func (w qspiWords) writeWords(addr uint32, p []byte) error { return w.ctrl.Write(addr, p) }

func readOpcode(reg StatusReg) (byte, error) {
	switch reg {
	case SR0:
		return hal.OpRDSR0, nil
	case SR1:
		return hal.OpRDSR1, nil
	case SR2:
		return hal.OpRDSR2, nil
	}
	return 0, ErrNotSupported
}
