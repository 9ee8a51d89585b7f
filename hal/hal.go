// hal/hal.go

// Package hal describes the hardware capabilities the nRF70 bus transport
// consumes: GPIO lines for power sequencing and the host IRQ, the raw
// QSPI/SPI peripheral that moves words to and from the companion chip, and
// the clock divider of clock-scaled hosts. Backends live elsewhere
// (rpusim for tests, internal/linuxhw for Linux, board/* for TinyGo).
package hal

import "errors"

// Errors a physical layer may report. Transports map them onto a closed set
// of bus error kinds; anything else is treated as a generic fault.
var (
	ErrBusy         = errors.New("hal: peripheral busy")
	ErrTimeout      = errors.New("hal: peripheral timeout")
	ErrInvalidParam = errors.New("hal: invalid parameter")
)

// PinMode selects how a GPIO line is driven.
type PinMode uint8

const (
	// PinDisconnected releases the line (input buffer off, no pulls).
	PinDisconnected PinMode = iota
	// PinInput configures the line as a plain input.
	PinInput
	// PinOutput configures the line as a push-pull output.
	PinOutput
)

func (m PinMode) String() string {
	switch m {
	case PinDisconnected:
		return "disconnected"
	case PinInput:
		return "input"
	case PinOutput:
		return "output"
	default:
		return "unknown"
	}
}

// PinChange selects the edge(s) that trigger a pin interrupt.
type PinChange uint8

const (
	PinRising PinChange = iota
	PinFalling
	PinToggle
)

// Pin is a single GPIO line. Implementations must be comparable: two Pin
// values that refer to the same physical line compare equal.
type Pin interface {
	Configure(mode PinMode) error
	Set(high bool) error
	Get() (bool, error)
	// SetInterrupt arms edge detection and installs handler. A nil handler
	// disarms the line. Handlers may run in interrupt context and must not
	// block.
	SetInterrupt(change PinChange, handler func()) error
}

// QSPIConfig is the subset of QSPI peripheral settings the transport drives.
type QSPIConfig struct {
	FrequencyHz uint32
	Quad        bool // false selects single-line (SPI-compatible) opcodes
}

// QSPIController is a memory-mapped style QSPI peripheral: reads and writes
// move whole 32-bit words at word-aligned addresses, and custom instructions
// carry status register traffic.
type QSPIController interface {
	Configure(cfg QSPIConfig) error
	Activate() error
	Deactivate() error
	Read(addr uint32, p []byte) error
	Write(addr uint32, p []byte) error
	// Cinstr sends opcode followed by tx and clocks in len(rx) bytes.
	Cinstr(opcode byte, tx, rx []byte) error
	SetEncryption(key [16]byte, nonce [3]uint32) error
}

// SPIConfig is the subset of SPI master settings the transport drives.
type SPIConfig struct {
	FrequencyHz uint32
}

// SPIController is a plain full-duplex SPI master. Chip select is handled by
// the caller.
type SPIController interface {
	Configure(cfg SPIConfig) error
	// Tx clocks out w while clocking in r. r is either nil or len(w) long.
	Tx(w, r []byte) error
}

// ClockControl exposes the divider of a clock domain shared with the bus
// peripheral (e.g. HFCLK192M on clock-scaled SoCs).
type ClockControl interface {
	Divider() (uint8, error)
	SetDivider(div uint8) error
}
