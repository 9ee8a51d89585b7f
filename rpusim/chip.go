// rpusim/chip.go

// Package rpusim simulates an nRF7002 companion chip behind either bus
// framing, together with fake pins and a virtual clock. It backs the
// package tests, the examples and rpuctl -sim.
package rpusim

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/jangala-dev/tinygo-nrf70bus/hal"
	"github.com/jangala-dev/tinygo-nrf70bus/memmap"
)

// Op names a class of chip operation for counting and fault injection.
type Op uint8

const (
	OpConfigure Op = iota
	OpActivate
	OpRead
	OpWrite
	OpStatusRead
	OpStatusWrite
	OpEncryption
	numOps
)

func (o Op) String() string {
	switch o {
	case OpConfigure:
		return "configure"
	case OpActivate:
		return "activate"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpStatusRead:
		return "status-read"
	case OpStatusWrite:
		return "status-write"
	case OpEncryption:
		return "encryption"
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

type fault struct {
	err error
	n   int // remaining; negative is forever
}

// Chip is a simulated companion chip. It implements hal.QSPIController
// directly and hands out a hal.SPIController view with SPI; both framings
// reach the same memory and status registers.
type Chip struct {
	mu sync.Mutex

	mm       memmap.Map
	addrMask uint32
	mem      map[uint32]byte

	sr0, sr2   uint8
	awake      bool
	wakeDelay  int // SR1 reads after a wake request before the awake bit shows
	pending    int
	neverReady bool
	dropAck    bool

	active    int
	qcfg      hal.QSPIConfig
	scfg      hal.SPIConfig
	freqs     []uint32
	key       [16]byte
	nonce     [3]uint32
	encrypted bool

	cs *Pin

	counts      [numOps]int
	statusReads [3]int
	faults      [numOps]fault
	srFaults    [3]fault

	lastAddr uint32

	otp otpModel
}

var (
	_ hal.QSPIController = (*Chip)(nil)
	_ hal.SPIController  = spiView{}
)

type Option func(*Chip)

// WithMemoryMap replaces the nRF7002 region table used to decide which
// reads carry latency words.
func WithMemoryMap(mm memmap.Map) Option { return func(c *Chip) { c.mm = mm } }

// WithAddrMask strips mask from every physical address the host sends.
func WithAddrMask(mask uint32) Option { return func(c *Chip) { c.addrMask = mask } }

// WithWakeDelay makes the awake bit appear only after n SR1 reads.
func WithWakeDelay(n int) Option { return func(c *Chip) { c.wakeDelay = n } }

// WithChipSelect makes SPI frames fail unless cs is driven low.
func WithChipSelect(cs *Pin) Option { return func(c *Chip) { c.cs = cs } }

// NewChip returns an asleep chip with zeroed memory and a fresh OTP array.
func NewChip(opts ...Option) *Chip {
	c := &Chip{
		mm:  memmap.Default,
		mem: make(map[uint32]byte),
		otp: newOTPModel(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NeverReady keeps the awake bit clear regardless of wake requests.
func (c *Chip) NeverReady(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.neverReady = v
}

// DropAck makes SR2 read back zero so wake requests are never acknowledged.
func (c *Chip) DropAck(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropAck = v
}

// SetAwake forces the chip's sleep state.
func (c *Chip) SetAwake(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.awake = v
	c.pending = 0
	if v {
		c.sr2 |= hal.SR2WakeupNow
	} else {
		c.sr2 &^= hal.SR2WakeupNow
	}
}

func (c *Chip) Awake() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awake
}

// Fail makes the next n operations of kind op return err. A negative n
// fails forever; n == 0 clears the fault.
func (c *Chip) Fail(op Op, n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults[op] = fault{err: err, n: n}
}

// FailStatusRead makes the next n reads of status register reg (0, 1 or 2)
// return err.
func (c *Chip) FailStatusRead(reg, n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.srFaults[reg] = fault{err: err, n: n}
}

// Count is the number of op operations attempted, failed ones included.
func (c *Chip) Count(op Op) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[op]
}

// StatusReads is the number of status register reads of reg (0, 1 or 2).
func (c *Chip) StatusReads(reg int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusReads[reg]
}

// ResetCounts zeroes every counter.
func (c *Chip) ResetCounts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = [numOps]int{}
	c.statusReads = [3]int{}
}

// Frequencies lists every bus frequency the host configured, in order.
func (c *Chip) Frequencies() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint32(nil), c.freqs...)
}

// Active reports whether the QSPI peripheral is currently activated.
func (c *Chip) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active > 0
}

// Encryption returns the programmed key and nonce.
func (c *Chip) Encryption() (key [16]byte, nonce [3]uint32, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key, c.nonce, c.encrypted
}

// LastAddr is the physical address of the last memory transfer, before the
// address mask was stripped.
func (c *Chip) LastAddr() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAddr
}

// Peek returns len(p) bytes of memory without going through a bus.
func (c *Chip) Peek(addr uint32, p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range p {
		p[i] = c.mem[addr+uint32(i)]
	}
}

// Poke stores p without going through a bus.
func (c *Chip) Poke(addr uint32, p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, b := range p {
		c.mem[addr+uint32(i)] = b
	}
}

// OTP returns a copy of the OTP word array.
func (c *Chip) OTP() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint32(nil), c.otp.words[:]...)
}

// begin counts op and returns its injected fault, if any. c.mu is held.
func (c *Chip) begin(op Op) error {
	c.counts[op]++
	f := &c.faults[op]
	if f.n == 0 {
		return nil
	}
	if f.n > 0 {
		f.n--
	}
	return f.err
}

// dummyWord is what the chip drives during slave turnaround.
var dummyWord = [4]byte{0xA5, 0xA5, 0xA5, 0xA5}

// memRead fills p from addr, prefixing the latency words of a
// high-latency region. c.mu is held.
func (c *Chip) memRead(addr uint32, p []byte) error {
	if addr%4 != 0 || len(p)%4 != 0 {
		return hal.ErrInvalidParam
	}
	c.lastAddr = addr
	addr &^= c.addrMask
	skip := 0
	if r, ok := c.mm.Lookup(addr); ok {
		skip = 4 * r.LatencyWords()
	}
	for off := 0; off < len(p); off += 4 {
		w := p[off : off+4]
		if off < skip {
			copy(w, dummyWord[:])
			continue
		}
		a := addr + uint32(off-skip)
		if c.otp.handles(a) {
			binary.LittleEndian.PutUint32(w, c.otp.read(a))
			continue
		}
		for j := range w {
			w[j] = c.mem[a+uint32(j)]
		}
	}
	return nil
}

// memWrite stores p at addr. c.mu is held.
func (c *Chip) memWrite(addr uint32, p []byte) error {
	if addr%4 != 0 || len(p)%4 != 0 {
		return hal.ErrInvalidParam
	}
	c.lastAddr = addr
	addr &^= c.addrMask
	for i := 0; i < len(p); i += 4 {
		a := addr + uint32(i)
		if c.otp.handles(a) {
			c.otp.write(a, binary.LittleEndian.Uint32(p[i:]))
			continue
		}
		for j, b := range p[i : i+4] {
			c.mem[a+uint32(j)] = b
		}
	}
	return nil
}

// readStatus counts a read of reg and applies its injected fault. c.mu is
// held.
func (c *Chip) readStatus(reg int) (uint8, error) {
	if err := c.begin(OpStatusRead); err != nil {
		return 0, err
	}
	c.statusReads[reg]++
	if f := &c.srFaults[reg]; f.n != 0 {
		if f.n > 0 {
			f.n--
		}
		return 0, f.err
	}
	return c.status(reg), nil
}

// status returns the value of reg. c.mu is held.
func (c *Chip) status(reg int) uint8 {
	switch reg {
	case 0:
		return c.sr0
	case 2:
		if c.dropAck {
			return 0
		}
		return c.sr2
	}
	if c.sr2&hal.SR2WakeupNow != 0 && !c.awake && !c.neverReady {
		if c.pending > 0 {
			c.pending--
		} else {
			c.awake = true
		}
	}
	if c.awake {
		return hal.SR1Awake | hal.SR1Ready
	}
	return 0
}

// writeSR2 handles a WRSR2 command. c.mu is held.
func (c *Chip) writeSR2(v uint8) {
	c.sr2 = v
	if v&hal.SR2WakeupNow == 0 {
		c.awake = false
		c.pending = 0
		return
	}
	if !c.awake {
		c.pending = c.wakeDelay
	}
}

func statusIndex(op byte) (int, bool) {
	switch op {
	case hal.OpRDSR0:
		return 0, true
	case hal.OpRDSR1:
		return 1, true
	case hal.OpRDSR2:
		return 2, true
	}
	return 0, false
}
