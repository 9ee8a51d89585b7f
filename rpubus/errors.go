// rpubus/errors.go

package rpubus

import (
	"context"
	"errors"
	"fmt"

	"github.com/jangala-dev/tinygo-nrf70bus/hal"
	"github.com/jangala-dev/tinygo-nrf70bus/memmap"
)

// Validation errors are the memmap sentinels so callers need one import.
var (
	ErrNotMapped     = memmap.ErrNotMapped
	ErrReadOnly      = memmap.ErrReadOnly
	ErrInvalidLength = memmap.ErrInvalidLength
)

var (
	ErrInvalidAlignment = errors.New("rpubus: invalid alignment")
	ErrHandshakeTimeout = errors.New("rpubus: handshake timeout")
	ErrBus              = errors.New("rpubus: bus error")
	ErrGPIO             = errors.New("rpubus: gpio error")
	ErrNotReady         = errors.New("rpubus: device not powered")
	ErrNotSupported     = errors.New("rpubus: not supported by this transport")
	ErrPollExhausted    = errors.New("rpubus: poll attempts exhausted")
	ErrNotHeld          = errors.New("rpubus: release without matching acquire")
)

// BusErrorKind is the closed set of physical-layer failures.
type BusErrorKind uint8

const (
	BusFault BusErrorKind = iota
	BusBusy
	BusTimeout
	BusInvalidParam
)

func (k BusErrorKind) String() string {
	switch k {
	case BusBusy:
		return "busy"
	case BusTimeout:
		return "timeout"
	case BusInvalidParam:
		return "invalid parameter"
	default:
		return "fault"
	}
}

// BusError is a physical-layer failure. It matches ErrBus with errors.Is and
// unwraps to the backend's error.
type BusError struct {
	Kind BusErrorKind
	Op   string
	Addr uint32
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("rpubus: %s at 0x%06X: %s: %v", e.Op, e.Addr, e.Kind, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

func (e *BusError) Is(target error) bool { return target == ErrBus }

// busError classifies a backend error. Errors that are already *BusError
// pass through untouched.
func busError(op string, addr uint32, err error) error {
	if err == nil {
		return nil
	}
	var be *BusError
	if errors.As(err, &be) {
		return err
	}
	kind := BusFault
	switch {
	case errors.Is(err, hal.ErrBusy):
		kind = BusBusy
	case errors.Is(err, hal.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		kind = BusTimeout
	case errors.Is(err, hal.ErrInvalidParam):
		kind = BusInvalidParam
	}
	return &BusError{Kind: kind, Op: op, Addr: addr, Err: err}
}

// GPIOError is a rail or IRQ pin failure.
type GPIOError struct {
	Pin string // "bucken", "iovdd", "host-irq"
	Op  string
	Err error
}

func (e *GPIOError) Error() string {
	return fmt.Sprintf("rpubus: gpio %s: %s: %v", e.Pin, e.Op, e.Err)
}

func (e *GPIOError) Unwrap() error { return e.Err }

func (e *GPIOError) Is(target error) bool { return target == ErrGPIO }

func gpioError(pin, op string, err error) error {
	if err == nil {
		return nil
	}
	return &GPIOError{Pin: pin, Op: op, Err: err}
}
