//go:build !tinygo

package rpubus

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jangala-dev/tinygo-nrf70bus/memmap"
)

// Metrics accounts for facade traffic. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Transfers         *prometheus.CounterVec
	Bytes             *prometheus.CounterVec
	Rejected          *prometheus.CounterVec
	HandshakePolls    prometheus.Counter
	HandshakeTimeouts prometheus.Counter
	PowerTransitions  *prometheus.CounterVec
	PowerState        prometheus.Gauge
	Users             prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// skips registration.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpubus_transfers_total",
				Help: "Number of bus transfers issued by the facade",
			},
			[]string{"op", "path"},
		),
		Bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpubus_transfer_bytes_total",
				Help: "Number of payload bytes moved by the facade",
			},
			[]string{"op"},
		),
		Rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpubus_rejected_total",
				Help: "Number of transfers rejected before reaching the bus",
			},
			[]string{"reason"},
		),
		HandshakePolls: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rpubus_handshake_polls_total",
				Help: "Number of status register polls issued by wake handshakes",
			},
		),
		HandshakeTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rpubus_handshake_timeouts_total",
				Help: "Number of wake handshakes that timed out",
			},
		),
		PowerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpubus_power_transitions_total",
				Help: "Number of power state transitions by target state",
			},
			[]string{"state"},
		),
		PowerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rpubus_power_state",
				Help: "Current power state (0 off, 1 powered-on, 2 asleep, 3 wake-requested, 4 awake, 5 sleep-requested)",
			},
		),
		Users: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rpubus_users",
				Help: "Number of active Acquire holders",
			},
		),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.Transfers, m.Bytes, m.Rejected, m.HandshakePolls,
		m.HandshakeTimeouts, m.PowerTransitions, m.PowerState, m.Users,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) transfer(op, path string, n int) {
	if m == nil {
		return
	}
	m.Transfers.WithLabelValues(op, path).Inc()
	m.Bytes.WithLabelValues(op).Add(float64(n))
}

func (m *Metrics) reject(err error) {
	if m == nil {
		return
	}
	reason := "other"
	switch {
	case errors.Is(err, memmap.ErrNotMapped):
		reason = "not_mapped"
	case errors.Is(err, memmap.ErrReadOnly):
		reason = "read_only"
	case errors.Is(err, memmap.ErrInvalidLength):
		reason = "invalid_length"
	case errors.Is(err, ErrInvalidAlignment):
		reason = "alignment"
	case errors.Is(err, ErrNotReady):
		reason = "not_ready"
	}
	m.Rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) polls(n int) {
	if m == nil {
		return
	}
	m.HandshakePolls.Add(float64(n))
}

func (m *Metrics) timeout() {
	if m == nil {
		return
	}
	m.HandshakeTimeouts.Inc()
}

func (m *Metrics) state(s PowerState) {
	if m == nil {
		return
	}
	m.PowerTransitions.WithLabelValues(s.String()).Inc()
	m.PowerState.Set(float64(s))
}

func (m *Metrics) users(n int32) {
	if m == nil {
		return
	}
	m.Users.Set(float64(n))
}
