package main

import (
	"github.com/go-logr/logr"

	"github.com/jangala-dev/tinygo-nrf70bus/config"
	"github.com/jangala-dev/tinygo-nrf70bus/otp"
	"github.com/jangala-dev/tinygo-nrf70bus/rpubus"
	"github.com/jangala-dev/tinygo-nrf70bus/rpusim"
)

// hardware is what a device is built on: the transport, the rail pins and
// the clock, plus whatever must be released on exit.
type hardware struct {
	transport rpubus.Transport
	pins      rpubus.Pins
	clock     rpubus.Clock
	chip      *rpusim.Chip // only with -sim
	closers   []func() error
}

func (h *hardware) close() {
	for _, c := range h.closers {
		_ = c()
	}
	h.closers = nil
}

// openSim builds a simulated chip wired the way board describes, with a
// programmed OTP so every command has something to show.
func openSim(board config.Board, log logr.Logger) (*hardware, error) {
	h := &hardware{clock: rpusim.NewClock()}
	buck := rpusim.NewPin("bucken")
	iovdd := buck
	if !board.SharedRail() {
		iovdd = rpusim.NewPin("iovdd")
	}
	h.pins = rpubus.Pins{BuckEn: buck, IOVDD: iovdd, HostIRQ: rpusim.NewPin("host-irq")}

	var err error
	switch board.BusKind() {
	case rpubus.KindSPI:
		cs := rpusim.NewPin("cs")
		h.chip = rpusim.NewChip(rpusim.WithAddrMask(board.Bus.AddrMask), rpusim.WithWakeDelay(2), rpusim.WithChipSelect(cs))
		h.transport, err = rpubus.NewSPI(h.chip.SPI(), cs, board.BusConfig(), log)
	default:
		h.chip = rpusim.NewChip(rpusim.WithAddrMask(board.Bus.AddrMask), rpusim.WithWakeDelay(2))
		h.transport, err = rpubus.NewQSPI(h.chip, rpusim.NewDivider(4), board.BusConfig(), log)
	}
	if err != nil {
		return nil, err
	}
	h.chip.SetOTP(otp.InfoUUID.Offset, 0x70020001, 0x4E524637, 0x00C0FFEE, 0xA5A50001)
	h.chip.SetOTP(otp.MAC0.Offset, 0x36CEF400, 0xFFFF2010) // 00:f4:ce:36:10:20
	return h, nil
}
