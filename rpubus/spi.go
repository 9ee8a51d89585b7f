// rpubus/spi.go

package rpubus

import (
	"context"
	"sync/atomic"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	"github.com/jangala-dev/tinygo-nrf70bus/hal"
)

// SPI is the single-line SPI transport. Memory traffic is framed as
// opcode + 24-bit address (+ one dummy byte on reads) followed by data.
type SPI struct {
	ctrl hal.SPIController
	cs   hal.Pin // nil when the controller drives chip select itself
	cfg  BusConfig
	lock *busLock
	bus  wordBus
	log  logr.Logger

	freq atomic.Uint32
}

var _ Transport = (*SPI)(nil)

func NewSPI(ctrl hal.SPIController, cs hal.Pin, cfg BusConfig, log logr.Logger) (*SPI, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.AddrMask%wordSize != 0 {
		return nil, ErrInvalidAlignment
	}
	if cfg.AddrMask >= spiAddrSpan {
		return nil, busError("address mask", cfg.AddrMask, hal.ErrInvalidParam)
	}
	log = log.WithName("spi")
	s := &SPI{
		ctrl: ctrl,
		cs:   cs,
		cfg:  cfg,
		lock: newBusLock(nil, 0, log),
		log:  log,
	}
	s.bus = wordBus{io: spiWords{s}, mask: cfg.AddrMask, log: log}
	s.freq.Store(cfg.FrequencyHz)
	return s, nil
}

func (s *SPI) Kind() BusKind { return KindSPI }

func (s *SPI) Open(ctx context.Context) error {
	return s.lock.do(ctx, func() error {
		if s.cs != nil {
			if err := s.cs.Configure(hal.PinOutput); err != nil {
				return busError("chip select", 0, err)
			}
			if err := s.cs.Set(true); err != nil {
				return busError("chip select", 0, err)
			}
		}
		return s.configure(s.freq.Load())
	})
}

func (s *SPI) Close() error {
	if s.cs == nil {
		return nil
	}
	return busError("chip select", 0, s.cs.Configure(hal.PinDisconnected))
}

func (s *SPI) configure(hz uint32) error {
	if err := s.ctrl.Configure(hal.SPIConfig{FrequencyHz: hz}); err != nil {
		return busError("configure", 0, err)
	}
	s.freq.Store(hz)
	s.log.V(1).Info("configured", "hz", hz)
	return nil
}

// tx runs one chip-select framed transaction.
func (s *SPI) tx(w, r []byte) (err error) {
	if s.cs != nil {
		if err := s.cs.Set(false); err != nil {
			return err
		}
		defer func() {
			err = multierr.Append(err, s.cs.Set(true))
		}()
	}
	return s.ctrl.Tx(w, r)
}

func (s *SPI) Read(ctx context.Context, addr uint32, p []byte) error {
	return s.lock.do(ctx, func() error { return s.bus.read(addr, p) })
}

func (s *SPI) Write(ctx context.Context, addr uint32, p []byte, latencyWords int) error {
	return s.lock.do(ctx, func() error { return s.bus.write(addr, p, latencyWords) })
}

func (s *SPI) HighLatencyRead(ctx context.Context, addr uint32, p []byte, latencyWords int) error {
	return s.lock.do(ctx, func() error { return s.bus.highLatencyRead(addr, p, latencyWords) })
}

func (s *SPI) ReadStatus(ctx context.Context, reg StatusReg) (uint8, error) {
	op, err := readOpcode(reg)
	if err != nil {
		return 0, err
	}
	w := [2]byte{op, 0}
	var r [2]byte
	err = s.lock.do(ctx, func() error {
		return busError("read "+reg.String(), 0, s.tx(w[:], r[:]))
	})
	return r[1], err
}

func (s *SPI) WriteStatus(ctx context.Context, reg StatusReg, v uint8) error {
	if reg != SR2 {
		return ErrNotSupported
	}
	w := [2]byte{hal.OpWRSR2, v}
	return s.lock.do(ctx, func() error {
		return busError("write "+reg.String(), 0, s.tx(w[:], nil))
	})
}

func (s *SPI) Frequency() uint32 { return s.freq.Load() }

func (s *SPI) SetFrequency(ctx context.Context, hz uint32) error {
	if hz == 0 {
		return busError("configure", 0, hal.ErrInvalidParam)
	}
	return s.lock.do(ctx, func() error { return s.configure(hz) })
}

// EnableEncryption is a QSPI-only feature.
func (s *SPI) EnableEncryption(context.Context, [16]byte) error { return ErrNotSupported }

type spiWords struct{ s *SPI }

// spiAddrSpan bounds the 24-bit address field of a memory frame.
const spiAddrSpan = 1 << 24

func putAddr(b []byte, addr uint32) {
	b[0] = byte(addr >> 16)
	b[1] = byte(addr >> 8)
	b[2] = byte(addr)
}

func (w spiWords) readWords(addr uint32, p []byte) error {
	out := make([]byte, hal.SPIReadHeader+len(p))
	in := make([]byte, len(out))
	out[0] = hal.OpFastRead
	putAddr(out[1:], addr)
	if err := w.s.tx(out, in); err != nil {
		return err
	}
	copy(p, in[hal.SPIReadHeader:])
	return nil
}

func (w spiWords) writeWords(addr uint32, p []byte) error {
	out := make([]byte, hal.SPIWriteHeader+len(p))
	out[0] = hal.OpPageWrite
	putAddr(out[1:], addr)
	copy(out[hal.SPIWriteHeader:], p)
	return w.s.tx(out, nil)
}
