//go:build linux

package linuxhw

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/jangala-dev/tinygo-nrf70bus/hal"
)

// Sysfs is a /sys/class/gpio tree. Pins handed out by one Sysfs are
// unique per line number, so the same line compares equal.
type Sysfs struct {
	root string
	log  logr.Logger

	mu   sync.Mutex
	pins map[int]*GPIO
}

// DefaultSysfs is the kernel's GPIO class directory.
var DefaultSysfs = NewSysfs("/sys/class/gpio", logr.Discard())

func NewSysfs(root string, log logr.Logger) *Sysfs {
	return &Sysfs{root: root, log: log.WithName("gpio"), pins: make(map[int]*GPIO)}
}

// ExportPin exports line n of DefaultSysfs.
func ExportPin(n int) (*GPIO, error) { return DefaultSysfs.Pin(n) }

// Pin exports line n if needed and returns its handle.
func (s *Sysfs) Pin(n int) (*GPIO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.pins[n]; ok {
		return g, nil
	}
	dir := filepath.Join(s.root, "gpio"+strconv.Itoa(n))
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(filepath.Join(s.root, "export"), []byte(strconv.Itoa(n)), 0o644); err != nil {
			return nil, fmt.Errorf("linuxhw: export gpio%d: %w", n, err)
		}
	}
	g := &GPIO{n: n, dir: dir, sys: s, log: s.log.WithValues("line", n)}
	s.pins[n] = g
	return g, nil
}

// GPIO is one sysfs line. Edge interrupts are delivered from a watcher
// goroutine blocked in poll(2) on the value file.
type GPIO struct {
	n   int
	dir string
	sys *Sysfs
	log logr.Logger

	mu    sync.Mutex
	watch *watcher
}

var _ hal.Pin = (*GPIO)(nil)

func (g *GPIO) attr(name, v string) error {
	if err := os.WriteFile(filepath.Join(g.dir, name), []byte(v), 0o644); err != nil {
		return fmt.Errorf("linuxhw: gpio%d %s=%s: %w", g.n, name, v, err)
	}
	return nil
}

func (g *GPIO) Configure(mode hal.PinMode) error {
	switch mode {
	case hal.PinOutput:
		// "low" sets the direction without glitching the line high.
		return g.attr("direction", "low")
	case hal.PinInput:
		return g.attr("direction", "in")
	case hal.PinDisconnected:
		if err := g.attr("direction", "in"); err != nil {
			return err
		}
		return g.attr("edge", "none")
	}
	return hal.ErrInvalidParam
}

func (g *GPIO) Set(high bool) error {
	v := "0"
	if high {
		v = "1"
	}
	return g.attr("value", v)
}

func (g *GPIO) Get() (bool, error) {
	b, err := os.ReadFile(filepath.Join(g.dir, "value"))
	if err != nil {
		return false, fmt.Errorf("linuxhw: gpio%d read: %w", g.n, err)
	}
	return bytes.HasPrefix(bytes.TrimSpace(b), []byte("1")), nil
}

func edgeName(c hal.PinChange) string {
	switch c {
	case hal.PinFalling:
		return "falling"
	case hal.PinToggle:
		return "both"
	}
	return "rising"
}

// SetInterrupt arms edge detection. The handler runs on the watcher
// goroutine. A nil handler stops the watcher and disarms the line; when
// called from inside the handler it returns without waiting for the
// watcher to exit.
func (g *GPIO) SetInterrupt(change hal.PinChange, handler func()) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.watch != nil {
		g.watch.stop()
		g.watch = nil
	}
	if handler == nil {
		return g.attr("edge", "none")
	}
	if err := g.attr("edge", edgeName(change)); err != nil {
		return err
	}
	w, err := startWatcher(filepath.Join(g.dir, "value"), handler, g.log)
	if err != nil {
		return multierr.Append(err, g.attr("edge", "none"))
	}
	g.watch = w
	return nil
}

// Unexport releases the line back to the kernel.
func (g *GPIO) Unexport() error {
	if err := g.SetInterrupt(hal.PinRising, nil); err != nil {
		g.log.Error(err, "disarming before unexport")
	}
	s := g.sys
	s.mu.Lock()
	delete(s.pins, g.n)
	s.mu.Unlock()
	return os.WriteFile(filepath.Join(s.root, "unexport"), []byte(strconv.Itoa(g.n)), 0o644)
}

// edgeEvents is the poll(2) condition sysfs raises on an edge.
var edgeEvents int16 = unix.POLLPRI

type watcher struct {
	valueFD int
	stopFD  int
	done    chan struct{}
	busy    atomic.Bool // handler running

	mu     sync.Mutex
	closed bool
}

func startWatcher(path string, handler func(), log logr.Logger) (*watcher, error) {
	vfd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("linuxhw: open %s: %w", path, err)
	}
	efd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(vfd)
		return nil, fmt.Errorf("linuxhw: eventfd: %w", err)
	}
	w := &watcher{valueFD: vfd, stopFD: efd, done: make(chan struct{})}
	// The first read clears the pending state sysfs reports on open.
	var buf [8]byte
	_, _ = unix.Pread(vfd, buf[:], 0)
	go w.run(handler, edgeEvents, log)
	return w, nil
}

func (w *watcher) run(handler func(), edge int16, log logr.Logger) {
	defer close(w.done)
	defer w.release()
	fds := []unix.PollFd{
		{Fd: int32(w.valueFD), Events: edge | unix.POLLERR},
		{Fd: int32(w.stopFD), Events: unix.POLLIN},
	}
	var buf [8]byte
	for {
		fds[0].Revents, fds[1].Revents = 0, 0
		if _, err := unix.Poll(fds, -1); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			log.Error(err, "poll failed, edge watcher stopped")
			return
		}
		if fds[1].Revents != 0 {
			return
		}
		if fds[0].Revents&edge != 0 {
			_, _ = unix.Pread(w.valueFD, buf[:], 0)
			w.busy.Store(true)
			handler()
			w.busy.Store(false)
		}
	}
}

func (w *watcher) release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	unix.Close(w.valueFD)
	unix.Close(w.stopFD)
}

// stop signals the watcher and waits for it, unless a handler is running,
// which may be the caller itself.
func (w *watcher) stop() {
	w.mu.Lock()
	if !w.closed {
		var one [8]byte
		binary.NativeEndian.PutUint64(one[:], 1)
		_, _ = unix.Write(w.stopFD, one[:])
	}
	w.mu.Unlock()
	if !w.busy.Load() {
		<-w.done
	}
}
