// rpusim/otp.go

package rpusim

// OTP controller registers, as seen on the ExtSysBus.
const (
	otpRWSBMode = 0x01B800
	otpPoll     = 0x01B804
	otpWrEnable = 0x01B808
	otpWriteReg = 0x01B80C
	otpRdEnable = 0x01B810
	otpReadReg  = 0x01B814
	otpTiming1  = 0x01B820
	otpTiming2  = 0x01B824
	otpVoltCtrl = 0x019004

	otpWrDone    = 1 << 0
	otpReadValid = 1 << 1
	otpReady     = 1 << 2

	otpModeRead      = 0x1
	otpModeByteWrite = 0x42

	// OTPWords is the size of the simulated OTP array in 32-bit words.
	OTPWords = 128
)

// otpModel is the OTP controller: writes can only clear bits, and results
// are signalled through the poll register.
type otpModel struct {
	words    [OTPWords]uint32
	mode     uint32
	poll     uint32
	wrAddr   uint32
	readReg  uint32
	regs     map[uint32]uint32
	writes   int
	notReady bool
}

func newOTPModel() otpModel {
	m := otpModel{regs: make(map[uint32]uint32)}
	for i := range m.words {
		m.words[i] = 0xFFFFFFFF
	}
	return m
}

func (m *otpModel) handles(a uint32) bool {
	switch a {
	case otpRWSBMode, otpPoll, otpWrEnable, otpWriteReg, otpRdEnable,
		otpReadReg, otpTiming1, otpTiming2, otpVoltCtrl:
		return true
	}
	return false
}

func (m *otpModel) read(a uint32) uint32 {
	switch a {
	case otpRWSBMode:
		return m.mode
	case otpPoll:
		if m.notReady {
			return 0
		}
		return m.poll | otpReady
	case otpReadReg:
		return m.readReg
	}
	return m.regs[a]
}

func (m *otpModel) write(a, v uint32) {
	switch a {
	case otpRWSBMode:
		m.mode = v
		m.poll &^= otpWrDone | otpReadValid
	case otpWrEnable:
		m.wrAddr = v
	case otpWriteReg:
		if m.notReady || m.mode != otpModeByteWrite || m.wrAddr >= OTPWords {
			return
		}
		m.words[m.wrAddr] &= v
		m.writes++
		m.poll |= otpWrDone
	case otpRdEnable:
		if m.notReady || m.mode != otpModeRead || v >= OTPWords {
			return
		}
		m.readReg = m.words[v]
		m.poll |= otpReadValid
	default:
		m.regs[a] = v
	}
}

// SetOTP overwrites OTP words starting at word offset off, bypassing the
// one-way programming rule.
func (c *Chip) SetOTP(off int, words ...uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.otp.words[off:], words)
}

// OTPNotReady holds the OTP controller's ready bit low.
func (c *Chip) OTPNotReady(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.otp.notReady = v
}

// OTPWrites is the number of words the OTP controller programmed.
func (c *Chip) OTPWrites() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.otp.writes
}

// OTPReg returns the last value written to an OTP controller register such
// as the timing or voltage control words.
func (c *Chip) OTPReg(addr uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.otp.read(addr)
}
