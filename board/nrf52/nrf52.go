//go:build tinygo && nrf52840

package nrf52

import (
	"machine"

	"github.com/jangala-dev/tinygo-nrf70bus/hal"
)

// Pin is a GPIO line. It is a value type, so two Pins on the same line
// compare equal.
type Pin struct {
	machine.Pin
}

var _ hal.Pin = Pin{}

func (p Pin) Configure(mode hal.PinMode) error {
	switch mode {
	case hal.PinOutput:
		p.Pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	case hal.PinInput, hal.PinDisconnected:
		p.Pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	default:
		return hal.ErrInvalidParam
	}
	return nil
}

func (p Pin) Set(high bool) error {
	p.Pin.Set(high)
	return nil
}

func (p Pin) Get() (bool, error) { return p.Pin.Get(), nil }

func (p Pin) SetInterrupt(change hal.PinChange, handler func()) error {
	if handler == nil {
		return p.Pin.SetInterrupt(0, nil)
	}
	c := machine.PinRising
	switch change {
	case hal.PinFalling:
		c = machine.PinFalling
	case hal.PinToggle:
		c = machine.PinToggle
	}
	return p.Pin.SetInterrupt(c, func(machine.Pin) { handler() })
}

// SPI is an SPIM peripheral. Chip select is driven separately by the
// transport through a Pin.
type SPI struct {
	Bus           *machine.SPI
	SCK, SDO, SDI machine.Pin
	Mode          uint8
}

var _ hal.SPIController = (*SPI)(nil)

func (s *SPI) Configure(cfg hal.SPIConfig) error {
	if cfg.FrequencyHz == 0 {
		return hal.ErrInvalidParam
	}
	return s.Bus.Configure(machine.SPIConfig{
		Frequency: cfg.FrequencyHz,
		SCK:       s.SCK,
		SDO:       s.SDO,
		SDI:       s.SDI,
		Mode:      s.Mode,
	})
}

func (s *SPI) Tx(w, r []byte) error { return s.Bus.Tx(w, r) }
