// rpubus/config.go

package rpubus

import (
	"fmt"
	"time"
)

// BusKind selects the physical transport variant.
type BusKind uint8

const (
	KindQSPI BusKind = iota
	KindSPI
)

func (k BusKind) String() string {
	if k == KindSPI {
		return "spi"
	}
	return "qspi"
}

// Lines selects single- or quad-line opcodes on QSPI.
type Lines uint8

const (
	Quad Lines = iota
	Single
)

// StatusReg names the companion chip's status registers.
type StatusReg uint8

const (
	SR0 StatusReg = iota
	SR1
	SR2
)

func (r StatusReg) String() string { return fmt.Sprintf("SR%d", uint8(r)) }

// BusConfig is the transport's durable configuration. The transport that is
// constructed with it owns it; the encryption flag and the bus lock live next
// to it inside the transport.
type BusConfig struct {
	Lines Lines
	// FrequencyHz is the steady-state bus clock.
	FrequencyHz uint32
	// WakeFrequencyHz is used only for the duration of a wake handshake.
	WakeFrequencyHz uint32
	// AddrMask is OR-ed into every physical transfer address.
	AddrMask uint32
	// LockDivider is applied to the shared clock domain while the bus lock
	// is held (QSPI on clock-scaled hosts only).
	LockDivider uint8
}

// DefaultBusConfig matches the nRF7002 DK wiring.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		Lines:           Quad,
		FrequencyHz:     24_000_000,
		WakeFrequencyHz: 8_000_000,
		LockDivider:     1,
	}
}

func (c BusConfig) validate() error {
	if c.FrequencyHz == 0 {
		return fmt.Errorf("rpubus: bus frequency must be set")
	}
	if c.WakeFrequencyHz == 0 || c.WakeFrequencyHz > c.FrequencyHz {
		return fmt.Errorf("rpubus: wake frequency %d must be in (0, %d]", c.WakeFrequencyHz, c.FrequencyHz)
	}
	return nil
}

// PowerConfig sets the rail settling delays.
type PowerConfig struct {
	// Tick is one scheduling tick of settle time after each rail.
	Tick time.Duration
	// SharedSettleTicks is the extra settle time when both rails are the
	// same physical line.
	SharedSettleTicks int
}

func DefaultPowerConfig() PowerConfig {
	return PowerConfig{Tick: time.Millisecond, SharedSettleTicks: 4}
}

// HandshakeConfig bounds the two polling steps of a wake.
type HandshakeConfig struct {
	Ack   PollPolicy // SR2 wake-request acknowledgement
	Ready PollPolicy // SR1 awake bit
}

func DefaultHandshakeConfig() HandshakeConfig {
	return HandshakeConfig{
		Ack:   PollPolicy{MaxAttempts: 1, RetryOnError: true},
		Ready: PollPolicy{MaxAttempts: 10, Interval: time.Millisecond},
	}
}

// PowerState is the companion chip's power state as tracked by the host.
type PowerState uint8

const (
	Off PowerState = iota
	PoweredOn
	Asleep
	WakeRequested
	Awake
	SleepRequested
)

func (s PowerState) String() string {
	switch s {
	case Off:
		return "off"
	case PoweredOn:
		return "powered-on"
	case Asleep:
		return "asleep"
	case WakeRequested:
		return "wake-requested"
	case Awake:
		return "awake"
	case SleepRequested:
		return "sleep-requested"
	default:
		return "unknown"
	}
}
