//go:build linux

package main

import (
	"errors"

	"github.com/go-logr/logr"

	"github.com/jangala-dev/tinygo-nrf70bus/config"
	"github.com/jangala-dev/tinygo-nrf70bus/internal/linuxhw"
	"github.com/jangala-dev/tinygo-nrf70bus/rpubus"
)

func openHardware(board config.Board, log logr.Logger) (*hardware, error) {
	if board.BusKind() != rpubus.KindSPI {
		return nil, errors.New("linux hosts reach the chip over spidev; set bus.kind: spi")
	}
	if board.Bus.Device == "" {
		return nil, errors.New("bus.device must name a spidev node")
	}
	h := &hardware{clock: rpubus.SystemClock}
	ok := false
	defer func() {
		if !ok {
			h.close()
		}
	}()

	spi, err := linuxhw.OpenSPIDev(board.Bus.Device, board.Bus.SPIMode|linuxhw.SPINoCS)
	if err != nil {
		return nil, err
	}
	h.closers = append(h.closers, spi.Close)

	cs, err := exportPin(h, *board.Pins.CS)
	if err != nil {
		return nil, err
	}
	buck, err := exportPin(h, board.Pins.BuckEn)
	if err != nil {
		return nil, err
	}
	iovdd, err := exportPin(h, board.Pins.IOVDD)
	if err != nil {
		return nil, err
	}
	h.pins = rpubus.Pins{BuckEn: buck, IOVDD: iovdd}
	if board.Pins.HostIRQ != nil {
		irq, err := exportPin(h, *board.Pins.HostIRQ)
		if err != nil {
			return nil, err
		}
		h.pins.HostIRQ = irq
	}

	h.transport, err = rpubus.NewSPI(spi, cs, board.BusConfig(), log)
	if err != nil {
		return nil, err
	}
	ok = true
	return h, nil
}

func exportPin(h *hardware, n int) (*linuxhw.GPIO, error) {
	g, err := linuxhw.ExportPin(n)
	if err != nil {
		return nil, err
	}
	h.closers = append(h.closers, g.Unexport)
	return g, nil
}
