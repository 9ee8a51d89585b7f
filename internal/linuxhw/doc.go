// Package linuxhw backs the hal capabilities with Linux userspace
// interfaces: spidev for the SPI master and sysfs GPIO for the rail and
// host IRQ lines. It builds only on Linux.
package linuxhw
