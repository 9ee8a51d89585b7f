// rpusim/pin.go

package rpusim

import (
	"sync"

	"github.com/jangala-dev/tinygo-nrf70bus/hal"
)

// Pin is a fake GPIO line. It records every level it was driven to.
type Pin struct {
	Name string

	mu      sync.Mutex
	mode    hal.PinMode
	level   bool
	history []bool
	change  hal.PinChange
	handler func()

	failConfigure error
	failRelease   error
	failSet       error
	failArm       error
}

var _ hal.Pin = (*Pin)(nil)

func NewPin(name string) *Pin { return &Pin{Name: name} }

func (p *Pin) Configure(mode hal.PinMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if mode == hal.PinDisconnected && p.failRelease != nil {
		return p.failRelease
	}
	if mode != hal.PinDisconnected && p.failConfigure != nil {
		return p.failConfigure
	}
	p.mode = mode
	if mode == hal.PinDisconnected {
		p.level = false
	}
	return nil
}

func (p *Pin) Set(high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failSet != nil && high {
		return p.failSet
	}
	if p.mode != hal.PinOutput {
		return hal.ErrInvalidParam
	}
	p.level = high
	p.history = append(p.history, high)
	return nil
}

func (p *Pin) Get() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level, nil
}

func (p *Pin) SetInterrupt(change hal.PinChange, handler func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if handler != nil && p.failArm != nil {
		return p.failArm
	}
	if handler != nil && p.mode != hal.PinInput {
		return hal.ErrInvalidParam
	}
	p.change, p.handler = change, handler
	return nil
}

// FailConfigure makes every Configure other than a release return err.
func (p *Pin) FailConfigure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failConfigure = err
}

// FailRelease makes Configure(hal.PinDisconnected) return err.
func (p *Pin) FailRelease(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failRelease = err
}

// FailSet makes every attempt to drive the pin high return err.
func (p *Pin) FailSet(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failSet = err
}

// FailArm makes arming an interrupt return err.
func (p *Pin) FailArm(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failArm = err
}

// Level is the level the pin is currently driven to.
func (p *Pin) Level() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *Pin) Mode() hal.PinMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// History lists the levels the pin was driven to, oldest first.
func (p *Pin) History() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.history...)
}

// Armed reports whether an interrupt handler is installed.
func (p *Pin) Armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handler != nil
}

// Fire delivers an edge to the installed handler, as an interrupt would.
// It reports whether a handler ran.
func (p *Pin) Fire() bool {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h == nil {
		return false
	}
	h()
	return true
}

// Recorder collects rail transitions across several pins in order.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

// Events lists the recorded transitions, e.g. "bucken=1", oldest first.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Watch wraps p so that every Set is recorded in r as "name=0|1".
func (r *Recorder) Watch(p *Pin) hal.Pin { return recordedPin{Pin: p, r: r} }

type recordedPin struct {
	*Pin
	r *Recorder
}

func (rp recordedPin) Set(high bool) error {
	if err := rp.Pin.Set(high); err != nil {
		return err
	}
	v := "0"
	if high {
		v = "1"
	}
	rp.r.mu.Lock()
	rp.r.events = append(rp.r.events, rp.Name+"="+v)
	rp.r.mu.Unlock()
	return nil
}
