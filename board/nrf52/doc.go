// Package nrf52 backs the hal capabilities with TinyGo's machine package on
// an nRF52840 host wired to an nRF7002 over SPI. The adapters build only
// with the tinygo toolchain and the nrf52840 target.
//
//	spi := &nrf52.SPI{Bus: machine.SPI1, SCK: machine.P1_15, SDO: machine.P1_13, SDI: machine.P1_14}
//	t, err := rpubus.NewSPI(spi, nrf52.Pin{Pin: machine.P1_12}, cfg, log)
package nrf52
