// hal/regs.go

package hal

// Status register opcodes shared by the QSPI and SPI framings.
const (
	OpRDSR0 byte = 0x05
	OpRDSR1 byte = 0x1F
	OpRDSR2 byte = 0x2F
	OpWRSR2 byte = 0x3F
)

// SPI memory framing: opcode, 24-bit big-endian address, then data. Reads
// carry one dummy byte after the address.
const (
	OpFastRead  byte = 0x0B
	OpPageWrite byte = 0x02

	SPIAddrBytes   = 3
	SPIReadDummy   = 1
	SPIReadHeader  = 1 + SPIAddrBytes + SPIReadDummy
	SPIWriteHeader = 1 + SPIAddrBytes
)

// Status register bits.
const (
	SR2WakeupNow uint8 = 1 << 0 // SR2: host requests wake (RW)
	SR1Awake     uint8 = 1 << 1 // SR1: RPU awake from sleep (RO)
	SR1Ready     uint8 = 1 << 2 // SR1: RPU ready (RO)
)

// Clock gating of the RPU cores, written once after wake.
const (
	ClockEnableAddr  uint32 = 0x048C20
	ClockEnableValue uint32 = 0x100
)

// EncryptionNonce is the fixed nonce programmed with the QSPI key.
var EncryptionNonce = [3]uint32{0x16181648, 0x0, 0x1}
