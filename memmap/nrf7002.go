// memmap/nrf7002.go

package memmap

// Region indices of the nRF7002 map, in table order.
const (
	SysBus = iota
	ExtSysBus
	PBus
	PKTRAM
	GRAM
	LMACROM
	LMACRetRAM
	LMACSrcRAM
	UMACROM
	UMACRetRAM
	UMACSrcRAM
	NumRegions
)

// nrf7002 is the companion chip address space as seen over QSPI/SPI. The
// bounds and latency flags must match the RPU firmware bit-for-bit.
var nrf7002 = [NumRegions]Region{
	SysBus:     {Name: "SysBus", Start: 0x000000, End: 0x008FFF, Latency: HighLatency},
	ExtSysBus:  {Name: "ExtSysBus", Start: 0x009000, End: 0x03FFFF, Latency: HighLatency},
	PBus:       {Name: "PBus", Start: 0x040000, End: 0x07FFFF, Latency: HighLatency},
	PKTRAM:     {Name: "PKTRAM", Start: 0x0C0000, End: 0x0F0FFF, Latency: Immediate},
	GRAM:       {Name: "GRAM", Start: 0x080000, End: 0x092000, Latency: HighLatency},
	LMACROM:    {Name: "LMAC_ROM", Start: 0x100000, End: 0x134000, Latency: HighLatency, ReadOnly: true},
	LMACRetRAM: {Name: "LMAC_RETRAM", Start: 0x140000, End: 0x14C000, Latency: HighLatency},
	LMACSrcRAM: {Name: "LMAC_SRC_RAM", Start: 0x180000, End: 0x190000, Latency: HighLatency},
	UMACROM:    {Name: "UMAC_ROM", Start: 0x200000, End: 0x261800, Latency: HighLatency, ReadOnly: true},
	UMACRetRAM: {Name: "UMAC_RETRAM", Start: 0x280000, End: 0x2A4000, Latency: HighLatency},
	UMACSrcRAM: {Name: "UMAC_SRC_RAM", Start: 0x300000, End: 0x338000, Latency: HighLatency},
}

// Default is the nRF7002 map.
var Default = Map{regions: nrf7002[:]}

// NRF7002 returns region i of the default map (see the SysBus.. constants).
func NRF7002(i int) Region { return nrf7002[i] }
