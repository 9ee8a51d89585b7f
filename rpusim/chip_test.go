package rpusim

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jangala-dev/tinygo-nrf70bus/hal"
)

func TestQSPI_ReadWriteImmediateRegion(t *testing.T) {
	c := NewChip()
	if err := c.Activate(); err != nil {
		t.Fatal(err)
	}
	in := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := c.Write(0x0C0000, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := make([]byte, 8)
	if err := c.Read(0x0C0000, out); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Fatalf("got % X want % X", out, in)
	}
}

func TestQSPI_HighLatencyRegionLeadsWithDummyWord(t *testing.T) {
	c := NewChip()
	c.Poke(0x040000, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	_ = c.Activate()

	out := make([]byte, 8)
	if err := c.Read(0x040000, out); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out[:4], dummyWord[:]) {
		t.Fatalf("first word % X, want dummy", out[:4])
	}
	if !bytes.Equal(out[4:], []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Fatalf("data word % X", out[4:])
	}
}

func TestQSPI_RequiresActivation(t *testing.T) {
	c := NewChip()
	if err := c.Read(0x0C0000, make([]byte, 4)); !errors.Is(err, hal.ErrBusy) {
		t.Fatalf("read while inactive: %v", err)
	}
	if err := c.Deactivate(); !errors.Is(err, hal.ErrInvalidParam) {
		t.Fatalf("unbalanced deactivate: %v", err)
	}
}

func TestQSPI_UnalignedTransferRejected(t *testing.T) {
	c := NewChip()
	_ = c.Activate()
	if err := c.Read(0x0C0001, make([]byte, 4)); !errors.Is(err, hal.ErrInvalidParam) {
		t.Fatalf("got %v", err)
	}
	if err := c.Write(0x0C0000, make([]byte, 3)); !errors.Is(err, hal.ErrInvalidParam) {
		t.Fatalf("got %v", err)
	}
}

func TestStatus_WakeAndSleep(t *testing.T) {
	c := NewChip(WithWakeDelay(2))
	_ = c.Activate()
	rx := make([]byte, 1)

	if err := c.Cinstr(hal.OpWRSR2, []byte{hal.SR2WakeupNow}, nil); err != nil {
		t.Fatal(err)
	}
	_ = c.Cinstr(hal.OpRDSR2, nil, rx)
	if rx[0]&hal.SR2WakeupNow == 0 {
		t.Fatalf("SR2 = %#x, want wake ack", rx[0])
	}
	for i := 0; i < 2; i++ {
		_ = c.Cinstr(hal.OpRDSR1, nil, rx)
		if rx[0] != 0 {
			t.Fatalf("read %d: SR1 = %#x before wake delay elapsed", i, rx[0])
		}
	}
	_ = c.Cinstr(hal.OpRDSR1, nil, rx)
	if rx[0]&hal.SR1Awake == 0 {
		t.Fatalf("SR1 = %#x, want awake", rx[0])
	}

	_ = c.Cinstr(hal.OpWRSR2, []byte{0}, nil)
	_ = c.Cinstr(hal.OpRDSR1, nil, rx)
	if rx[0] != 0 || c.Awake() {
		t.Fatalf("SR1 = %#x after sleep", rx[0])
	}
	if got := c.StatusReads(1); got != 4 {
		t.Fatalf("SR1 reads = %d, want 4", got)
	}
}

func TestStatus_NeverReady(t *testing.T) {
	c := NewChip()
	c.NeverReady(true)
	_ = c.Activate()
	_ = c.Cinstr(hal.OpWRSR2, []byte{hal.SR2WakeupNow}, nil)
	rx := make([]byte, 1)
	for i := 0; i < 20; i++ {
		_ = c.Cinstr(hal.OpRDSR1, nil, rx)
		if rx[0] != 0 {
			t.Fatalf("SR1 = %#x", rx[0])
		}
	}
}

func TestSPI_Framing(t *testing.T) {
	cs := NewPin("cs")
	_ = cs.Configure(hal.PinOutput)
	_ = cs.Set(true)
	c := NewChip(WithChipSelect(cs))
	spi := c.SPI()

	write := []byte{hal.OpPageWrite, 0x0C, 0x00, 0x10, 0xAA, 0xBB, 0xCC, 0xDD}
	if err := spi.Tx(write, nil); !errors.Is(err, hal.ErrBusy) {
		t.Fatalf("frame with CS high: %v", err)
	}
	_ = cs.Set(false)
	if err := spi.Tx(write, nil); err != nil {
		t.Fatal(err)
	}

	w := make([]byte, hal.SPIReadHeader+4)
	w[0], w[1], w[2], w[3] = hal.OpFastRead, 0x0C, 0x00, 0x10
	r := make([]byte, len(w))
	if err := spi.Tx(w, r); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(r[hal.SPIReadHeader:], []byte{0xAA, 0xBB, 0xCC, 0xDD}) {
		t.Fatalf("read back % X", r[hal.SPIReadHeader:])
	}

	if err := spi.Tx([]byte{hal.OpWRSR2, hal.SR2WakeupNow}, nil); err != nil {
		t.Fatal(err)
	}
	sr := make([]byte, 2)
	if err := spi.Tx([]byte{hal.OpRDSR1, 0}, sr); err != nil {
		t.Fatal(err)
	}
	if sr[1]&hal.SR1Awake == 0 {
		t.Fatalf("SR1 = %#x", sr[1])
	}
}

func TestFaultInjection(t *testing.T) {
	c := NewChip()
	_ = c.Activate()
	boom := errors.New("boom")
	c.Fail(OpRead, 2, boom)

	for i := 0; i < 2; i++ {
		if err := c.Read(0x0C0000, make([]byte, 4)); !errors.Is(err, boom) {
			t.Fatalf("read %d: %v", i, err)
		}
	}
	if err := c.Read(0x0C0000, make([]byte, 4)); err != nil {
		t.Fatalf("read after fault drained: %v", err)
	}
	if got := c.Count(OpRead); got != 3 {
		t.Fatalf("Count(read) = %d", got)
	}
}

func TestAddrMaskStripped(t *testing.T) {
	c := NewChip(WithAddrMask(0x800000))
	_ = c.Activate()
	if err := c.Write(0x8C0000, []byte{9, 9, 9, 9}); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 4)
	c.Peek(0x0C0000, got)
	if !bytes.Equal(got, []byte{9, 9, 9, 9}) {
		t.Fatalf("got % X", got)
	}
	if c.LastAddr() != 0x8C0000 {
		t.Fatalf("LastAddr = %#x", c.LastAddr())
	}
}

func TestOTP_ProgramOnlyClearsBits(t *testing.T) {
	c := NewChip()
	_ = c.Activate()
	put := func(addr, v uint32) {
		t.Helper()
		b := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
		if err := c.Write(addr, b); err != nil {
			t.Fatal(err)
		}
	}
	put(otpRWSBMode, otpModeByteWrite)
	put(otpWrEnable, 72)
	put(otpWriteReg, 0x12345678)
	put(otpWriteReg, 0xFFFF0000)

	if got := c.OTP()[72]; got != 0x12340000 {
		t.Fatalf("word 72 = %#x", got)
	}
	if got := c.OTPReg(otpPoll); got&otpWrDone == 0 {
		t.Fatalf("poll = %#x, want WR_DONE", got)
	}
	if c.OTPWrites() != 2 {
		t.Fatalf("writes = %d", c.OTPWrites())
	}
}

func TestPin_HistoryAndInterrupt(t *testing.T) {
	p := NewPin("irq")
	if err := p.Set(true); !errors.Is(err, hal.ErrInvalidParam) {
		t.Fatalf("set on unconfigured pin: %v", err)
	}
	_ = p.Configure(hal.PinInput)
	fired := 0
	if err := p.SetInterrupt(hal.PinRising, func() { fired++ }); err != nil {
		t.Fatal(err)
	}
	p.Fire()
	p.Fire()
	_ = p.SetInterrupt(hal.PinRising, nil)
	if p.Fire() || fired != 2 {
		t.Fatalf("fired = %d", fired)
	}
}

func TestRecorder_OrdersAcrossPins(t *testing.T) {
	var rec Recorder
	a, b := NewPin("a"), NewPin("b")
	_ = a.Configure(hal.PinOutput)
	_ = b.Configure(hal.PinOutput)
	wa, wb := rec.Watch(a), rec.Watch(b)
	_ = wa.Set(true)
	_ = wb.Set(true)
	_ = wb.Set(false)
	_ = wa.Set(false)
	want := []string{"a=1", "b=1", "b=0", "a=0"}
	got := rec.Events()
	if len(got) != len(want) {
		t.Fatalf("events %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events %v, want %v", got, want)
		}
	}
}
