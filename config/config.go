// config/config.go

// Package config loads a board description from YAML: which bus the
// companion chip sits on, the GPIO lines wired to it, and the timing of the
// power and wake sequences.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ghodss/yaml"

	"github.com/jangala-dev/tinygo-nrf70bus/rpubus"
)

var ErrInvalid = errors.New("config: invalid board")

// Duration is a time.Duration written as a string such as "1ms".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type Bus struct {
	// Kind is "qspi" or "spi".
	Kind string `json:"kind"`
	// Device is the host bus device, e.g. /dev/spidev0.0.
	Device          string `json:"device,omitempty"`
	SPIMode         uint8  `json:"spiMode,omitempty"`
	Quad            bool   `json:"quad"`
	FrequencyHz     uint32 `json:"frequencyHz"`
	WakeFrequencyHz uint32 `json:"wakeFrequencyHz"`
	AddrMask        uint32 `json:"addrMask,omitempty"`
	LockDivider     uint8  `json:"lockDivider,omitempty"`
}

// Pins are host GPIO numbers. BuckEn and IOVDD may name the same line.
type Pins struct {
	BuckEn  int  `json:"bucken"`
	IOVDD   int  `json:"iovdd"`
	HostIRQ *int `json:"hostIRQ,omitempty"`
	CS      *int `json:"cs,omitempty"`
}

type Power struct {
	Tick              Duration `json:"tick"`
	SharedSettleTicks int      `json:"sharedSettleTicks"`
}

type Poll struct {
	MaxAttempts  int      `json:"maxAttempts"`
	Interval     Duration `json:"interval"`
	Deadline     Duration `json:"deadline,omitempty"`
	RetryOnError bool     `json:"retryOnError,omitempty"`
}

type Handshake struct {
	Ack   Poll `json:"ack"`
	Ready Poll `json:"ready"`
}

// Board is the top-level configuration document.
type Board struct {
	Name      string    `json:"name,omitempty"`
	Bus       Bus       `json:"bus"`
	Pins      Pins      `json:"pins"`
	Power     Power     `json:"power"`
	Handshake Handshake `json:"handshake"`
}

func fromPoll(p rpubus.PollPolicy) Poll {
	return Poll{
		MaxAttempts:  p.MaxAttempts,
		Interval:     Duration{p.Interval},
		Deadline:     Duration{p.Deadline},
		RetryOnError: p.RetryOnError,
	}
}

// Default is the nRF7002 DK on an nRF5340 host, as the rpubus defaults
// describe it. Pin numbers are left unset (-1).
func Default() Board {
	bc := rpubus.DefaultBusConfig()
	pc := rpubus.DefaultPowerConfig()
	hc := rpubus.DefaultHandshakeConfig()
	return Board{
		Bus: Bus{
			Kind:            "qspi",
			Quad:            bc.Lines == rpubus.Quad,
			FrequencyHz:     bc.FrequencyHz,
			WakeFrequencyHz: bc.WakeFrequencyHz,
			AddrMask:        bc.AddrMask,
			LockDivider:     bc.LockDivider,
		},
		Pins: Pins{BuckEn: -1, IOVDD: -1},
		Power: Power{
			Tick:              Duration{pc.Tick},
			SharedSettleTicks: pc.SharedSettleTicks,
		},
		Handshake: Handshake{
			Ack:   fromPoll(hc.Ack),
			Ready: fromPoll(hc.Ready),
		},
	}
}

// Parse overlays the YAML document b on Default and validates the result.
func Parse(b []byte) (Board, error) {
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Board{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Board{}, err
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (Board, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Board{}, fmt.Errorf("config: %w", err)
	}
	return Parse(b)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks the board for settings no transport could run with.
func (b Board) Validate() error {
	switch b.Bus.Kind {
	case "qspi", "spi":
	default:
		return invalid("bus kind %q, want qspi or spi", b.Bus.Kind)
	}
	if b.Bus.FrequencyHz == 0 {
		return invalid("bus frequency must be set")
	}
	if b.Bus.WakeFrequencyHz == 0 || b.Bus.WakeFrequencyHz > b.Bus.FrequencyHz {
		return invalid("wake frequency %d must be in (0, %d]", b.Bus.WakeFrequencyHz, b.Bus.FrequencyHz)
	}
	if b.Bus.AddrMask%4 != 0 {
		return invalid("address mask %#x is not word aligned", b.Bus.AddrMask)
	}
	if b.Bus.Kind == "spi" && b.Bus.AddrMask >= 1<<24 {
		return invalid("address mask %#x does not fit the 24-bit spi address", b.Bus.AddrMask)
	}
	if b.Bus.SPIMode > 3 {
		return invalid("spi mode %d", b.Bus.SPIMode)
	}
	if b.Bus.Kind == "spi" && b.Pins.CS == nil {
		return invalid("spi bus needs a chip-select pin")
	}
	if b.Pins.BuckEn < 0 || b.Pins.IOVDD < 0 {
		return invalid("bucken and iovdd pins are required")
	}
	if irq := b.Pins.HostIRQ; irq != nil && (*irq == b.Pins.BuckEn || *irq == b.Pins.IOVDD) {
		return invalid("host irq pin %d is also a rail pin", *irq)
	}
	if b.Power.Tick.Duration <= 0 {
		return invalid("power tick must be positive")
	}
	if b.Power.SharedSettleTicks < 0 {
		return invalid("shared settle ticks must not be negative")
	}
	for name, p := range map[string]Poll{"ack": b.Handshake.Ack, "ready": b.Handshake.Ready} {
		if p.MaxAttempts < 1 {
			return invalid("handshake %s needs at least one attempt", name)
		}
		if p.Interval.Duration < 0 || p.Deadline.Duration < 0 {
			return invalid("handshake %s durations must not be negative", name)
		}
	}
	return nil
}

// SharedRail reports whether both rails are driven by one line.
func (b Board) SharedRail() bool { return b.Pins.BuckEn == b.Pins.IOVDD }

func (b Board) BusKind() rpubus.BusKind {
	if b.Bus.Kind == "spi" {
		return rpubus.KindSPI
	}
	return rpubus.KindQSPI
}

func (b Board) BusConfig() rpubus.BusConfig {
	lines := rpubus.Single
	if b.Bus.Quad {
		lines = rpubus.Quad
	}
	return rpubus.BusConfig{
		Lines:           lines,
		FrequencyHz:     b.Bus.FrequencyHz,
		WakeFrequencyHz: b.Bus.WakeFrequencyHz,
		AddrMask:        b.Bus.AddrMask,
		LockDivider:     b.Bus.LockDivider,
	}
}

func (b Board) PowerConfig() rpubus.PowerConfig {
	return rpubus.PowerConfig{
		Tick:              b.Power.Tick.Duration,
		SharedSettleTicks: b.Power.SharedSettleTicks,
	}
}

func (p Poll) policy() rpubus.PollPolicy {
	return rpubus.PollPolicy{
		MaxAttempts:  p.MaxAttempts,
		Interval:     p.Interval.Duration,
		Deadline:     p.Deadline.Duration,
		RetryOnError: p.RetryOnError,
	}
}

func (b Board) HandshakeConfig() rpubus.HandshakeConfig {
	return rpubus.HandshakeConfig{Ack: b.Handshake.Ack.policy(), Ready: b.Handshake.Ready.policy()}
}

// DeviceOptions returns the rpubus options the board implies.
func (b Board) DeviceOptions() []rpubus.Option {
	return []rpubus.Option{
		rpubus.WithPowerConfig(b.PowerConfig()),
		rpubus.WithHandshakeConfig(b.HandshakeConfig()),
		rpubus.WithWakeFrequency(b.Bus.WakeFrequencyHz),
	}
}
