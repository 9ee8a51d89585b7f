// otp/otp.go

// Package otp reads and programs the companion chip's one-time-programmable
// memory (the FICR words holding MAC addresses, the bus encryption key and
// calibration data) through the OTP controller on the system bus.
package otp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/jangala-dev/tinygo-nrf70bus/rpubus"
)

var (
	ErrNotReady      = errors.New("otp: controller not ready")
	ErrLocked        = errors.New("otp: region protection is programmed")
	ErrNotProgrammed = errors.New("otp: field not programmed")
	ErrInvalidField  = errors.New("otp: invalid field")
)

// Controller registers.
const (
	RegRWSBMode = 0x01B800
	RegPoll     = 0x01B804
	RegWrEnable = 0x01B808
	RegWriteReg = 0x01B80C
	RegRdEnable = 0x01B810
	RegReadReg  = 0x01B814
	RegTiming1  = 0x01B820
	RegTiming2  = 0x01B824
	RegVoltCtrl = 0x019004
)

const (
	pollWrDone    = 1 << 0
	pollReadValid = 1 << 1
	pollReady     = 1 << 2

	modeStandby   = 0x0
	modeRead      = 0x1
	modeByteWrite = 0x42

	timing1 = 0x0
	timing2 = 0x030D8B

	volt2V5 = 0x3B
	volt1V8 = 0xB

	// EnablePattern in the first RegionProtect word locks the array.
	EnablePattern = 0x50FA50FA
	// Blank is the value of an unprogrammed word.
	Blank = 0xFFFFFFFF
)

// Field is a run of OTP words.
type Field struct {
	Name   string
	Offset int
	Words  int
}

var (
	InfoPart              = Field{"info.part", 0, 1}
	InfoVariant           = Field{"info.variant", 1, 1}
	InfoUUID              = Field{"info.uuid", 2, 4}
	ProdtestFTProgVersion = Field{"prodtest.ft_prog_version", 29, 1}
	RegionProtect         = Field{"region_protect", 64, 4}
	QSPIKey               = Field{"qspi_key", 68, 4}
	MAC0                  = Field{"mac0", 72, 2}
	MAC1                  = Field{"mac1", 74, 2}
	CalibXO               = Field{"calib.xo", 76, 1}
	RegionDefaults        = Field{"region_defaults", 85, 1}
)

// Fields lists every known field in offset order.
var Fields = []Field{
	InfoPart, InfoVariant, InfoUUID, ProdtestFTProgVersion, RegionProtect,
	QSPIKey, MAC0, MAC1, CalibXO, RegionDefaults,
}

// Memory is the chip address space. *rpubus.Device satisfies it.
type Memory interface {
	ReadInto(ctx context.Context, addr uint32, p []byte) error
	Write(ctx context.Context, addr uint32, data []byte) error
}

// OTP drives the controller. It is not safe for concurrent use.
type OTP struct {
	mem  Memory
	poll rpubus.PollPolicy
	clk  rpubus.Clock
	log  logr.Logger
}

type Option func(*OTP)

func WithLogger(log logr.Logger) Option { return func(o *OTP) { o.log = log } }

func WithClock(clk rpubus.Clock) Option { return func(o *OTP) { o.clk = clk } }

// WithPollPolicy bounds every wait on the controller's poll register.
func WithPollPolicy(p rpubus.PollPolicy) Option { return func(o *OTP) { o.poll = p } }

func New(mem Memory, opts ...Option) *OTP {
	o := &OTP{
		mem:  mem,
		poll: rpubus.PollPolicy{MaxAttempts: 100, Interval: 100 * time.Microsecond},
		clk:  rpubus.SystemClock,
		log:  logr.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.WithName("otp")
	return o
}

func (o *OTP) get(ctx context.Context, reg uint32) (uint32, error) {
	var b [4]byte
	if err := o.mem.ReadInto(ctx, reg, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (o *OTP) set(ctx context.Context, reg, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return o.mem.Write(ctx, reg, b[:])
}

// wait polls until every bit of mask is set.
func (o *OTP) wait(ctx context.Context, mask uint32) error {
	_, err := o.poll.Poll(ctx, o.clk, func(ctx context.Context) (bool, error) {
		v, err := o.get(ctx, RegPoll)
		return v&mask == mask, err
	})
	if errors.Is(err, rpubus.ErrPollExhausted) {
		return fmt.Errorf("%w: poll mask %#x: %w", ErrNotReady, mask, err)
	}
	return err
}

func (o *OTP) mode(ctx context.Context, m uint32) error {
	if err := o.set(ctx, RegRWSBMode, m); err != nil {
		return err
	}
	return o.wait(ctx, pollReady)
}

func (f Field) check() error {
	if f.Words <= 0 || f.Offset < 0 {
		return fmt.Errorf("%w: %q", ErrInvalidField, f.Name)
	}
	return nil
}

// Read returns the words of f.
func (o *OTP) Read(ctx context.Context, f Field) (words []uint32, err error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	defer func() { err = multierr.Append(err, o.set(ctx, RegRWSBMode, modeStandby)) }()
	if err := o.mode(ctx, modeRead); err != nil {
		return nil, err
	}

	words = make([]uint32, f.Words)
	for i := range words {
		if err := o.set(ctx, RegRdEnable, uint32(f.Offset+i)); err != nil {
			return nil, err
		}
		if err := o.wait(ctx, pollReadValid); err != nil {
			return nil, err
		}
		if words[i], err = o.get(ctx, RegReadReg); err != nil {
			return nil, err
		}
	}
	return words, nil
}

// Protected reports whether region protection has been programmed.
func (o *OTP) Protected(ctx context.Context) (bool, error) {
	w, err := o.Read(ctx, RegionProtect)
	if err != nil {
		return false, err
	}
	return w[0] == EnablePattern, nil
}

// Protection returns the raw region protection words.
func (o *OTP) Protection(ctx context.Context) ([]uint32, error) {
	return o.Read(ctx, RegionProtect)
}

// Write programs words into f. Programming can only clear bits. Writes are
// refused once region protection is set, except to RegionProtect itself.
func (o *OTP) Write(ctx context.Context, f Field, words []uint32) (err error) {
	if err := f.check(); err != nil {
		return err
	}
	if len(words) != f.Words {
		return fmt.Errorf("%w: %q takes %d words, got %d", ErrInvalidField, f.Name, f.Words, len(words))
	}
	if f != RegionProtect {
		locked, err := o.Protected(ctx)
		if err != nil {
			return err
		}
		if locked {
			return ErrLocked
		}
	}

	if err := o.set(ctx, RegTiming1, timing1); err != nil {
		return err
	}
	if err := o.set(ctx, RegTiming2, timing2); err != nil {
		return err
	}
	if err := o.set(ctx, RegVoltCtrl, volt2V5); err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err,
			o.set(ctx, RegRWSBMode, modeStandby),
			o.set(ctx, RegVoltCtrl, volt1V8))
	}()
	if err := o.mode(ctx, modeByteWrite); err != nil {
		return err
	}
	for i, w := range words {
		if err := o.set(ctx, RegWrEnable, uint32(f.Offset+i)); err != nil {
			return err
		}
		if err := o.set(ctx, RegWriteReg, w); err != nil {
			return err
		}
		if err := o.wait(ctx, pollWrDone); err != nil {
			return err
		}
	}
	o.log.Info("programmed", "field", f.Name, "words", len(words))
	return nil
}

func leBytes(words []uint32) []byte {
	b := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[4*i:], w)
	}
	return b
}

func blank(words []uint32) bool {
	for _, w := range words {
		if w != Blank {
			return false
		}
	}
	return true
}

// MAC returns MAC address idx (0 or 1).
func (o *OTP) MAC(ctx context.Context, idx int) (net.HardwareAddr, error) {
	var f Field
	switch idx {
	case 0:
		f = MAC0
	case 1:
		f = MAC1
	default:
		return nil, fmt.Errorf("%w: mac%d", ErrInvalidField, idx)
	}
	w, err := o.Read(ctx, f)
	if err != nil {
		return nil, err
	}
	if blank(w) {
		return nil, fmt.Errorf("%w: %s", ErrNotProgrammed, f.Name)
	}
	return net.HardwareAddr(leBytes(w)[:6]), nil
}

// SetMAC programs MAC address idx.
func (o *OTP) SetMAC(ctx context.Context, idx int, mac net.HardwareAddr) error {
	if len(mac) != 6 {
		return fmt.Errorf("%w: mac must be 6 bytes", ErrInvalidField)
	}
	f := MAC0
	if idx == 1 {
		f = MAC1
	} else if idx != 0 {
		return fmt.Errorf("%w: mac%d", ErrInvalidField, idx)
	}
	var b [8]byte
	copy(b[:], mac)
	b[6], b[7] = 0xFF, 0xFF
	return o.Write(ctx, f, []uint32{
		binary.LittleEndian.Uint32(b[0:]),
		binary.LittleEndian.Uint32(b[4:]),
	})
}

// UUID returns the chip's unique identifier.
func (o *OTP) UUID(ctx context.Context) (uuid.UUID, error) {
	w, err := o.Read(ctx, InfoUUID)
	if err != nil {
		return uuid.Nil, err
	}
	if blank(w) {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrNotProgrammed, InfoUUID.Name)
	}
	return uuid.FromBytes(leBytes(w))
}

// QSPIKey returns the bus encryption key.
func (o *OTP) QSPIKey(ctx context.Context) ([16]byte, error) {
	var key [16]byte
	w, err := o.Read(ctx, QSPIKey)
	if err != nil {
		return key, err
	}
	if blank(w) {
		return key, fmt.Errorf("%w: %s", ErrNotProgrammed, QSPIKey.Name)
	}
	copy(key[:], leBytes(w))
	return key, nil
}
