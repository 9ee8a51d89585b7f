// rpusim/bus.go

package rpusim

import "github.com/jangala-dev/tinygo-nrf70bus/hal"

// QSPI side.

func (c *Chip) Configure(cfg hal.QSPIConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(OpConfigure); err != nil {
		return err
	}
	if cfg.FrequencyHz == 0 {
		return hal.ErrInvalidParam
	}
	c.qcfg = cfg
	c.freqs = append(c.freqs, cfg.FrequencyHz)
	return nil
}

func (c *Chip) Activate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(OpActivate); err != nil {
		return err
	}
	c.active++
	return nil
}

func (c *Chip) Deactivate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == 0 {
		return hal.ErrInvalidParam
	}
	c.active--
	return nil
}

func (c *Chip) Read(addr uint32, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(OpRead); err != nil {
		return err
	}
	if c.active == 0 {
		return hal.ErrBusy
	}
	return c.memRead(addr, p)
}

func (c *Chip) Write(addr uint32, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(OpWrite); err != nil {
		return err
	}
	if c.active == 0 {
		return hal.ErrBusy
	}
	return c.memWrite(addr, p)
}

func (c *Chip) Cinstr(opcode byte, tx, rx []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == 0 {
		return hal.ErrBusy
	}
	if reg, ok := statusIndex(opcode); ok {
		if len(rx) < 1 {
			return hal.ErrInvalidParam
		}
		v, err := c.readStatus(reg)
		rx[0] = v
		return err
	}
	if opcode == hal.OpWRSR2 {
		if err := c.begin(OpStatusWrite); err != nil {
			return err
		}
		if len(tx) < 1 {
			return hal.ErrInvalidParam
		}
		c.writeSR2(tx[0])
		return nil
	}
	return hal.ErrInvalidParam
}

func (c *Chip) SetEncryption(key [16]byte, nonce [3]uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(OpEncryption); err != nil {
		return err
	}
	c.key, c.nonce, c.encrypted = key, nonce, true
	return nil
}

// SPI side. The chip is a single device, so the SPI view shares memory and
// status registers with the QSPI view.

// SPI returns the chip's SPI controller view.
func (c *Chip) SPI() hal.SPIController { return spiView{c} }

type spiView struct{ c *Chip }

func (v spiView) Configure(cfg hal.SPIConfig) error {
	c := v.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(OpConfigure); err != nil {
		return err
	}
	if cfg.FrequencyHz == 0 {
		return hal.ErrInvalidParam
	}
	c.scfg = cfg
	c.freqs = append(c.freqs, cfg.FrequencyHz)
	return nil
}

func (v spiView) Tx(w, r []byte) error {
	c := v.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(w) == 0 || (r != nil && len(r) != len(w)) {
		return hal.ErrInvalidParam
	}
	if c.cs != nil && c.cs.Level() {
		return hal.ErrBusy
	}
	if r == nil {
		r = make([]byte, len(w))
	}

	op := w[0]
	if reg, ok := statusIndex(op); ok {
		if len(w) < 2 {
			return hal.ErrInvalidParam
		}
		v, err := c.readStatus(reg)
		r[1] = v
		return err
	}
	switch op {
	case hal.OpWRSR2:
		if err := c.begin(OpStatusWrite); err != nil {
			return err
		}
		if len(w) < 2 {
			return hal.ErrInvalidParam
		}
		c.writeSR2(w[1])
		return nil
	case hal.OpFastRead:
		if err := c.begin(OpRead); err != nil {
			return err
		}
		if len(w) < hal.SPIReadHeader {
			return hal.ErrInvalidParam
		}
		return c.memRead(frameAddr(w), r[hal.SPIReadHeader:])
	case hal.OpPageWrite:
		if err := c.begin(OpWrite); err != nil {
			return err
		}
		if len(w) < hal.SPIWriteHeader {
			return hal.ErrInvalidParam
		}
		return c.memWrite(frameAddr(w), w[hal.SPIWriteHeader:])
	}
	return hal.ErrInvalidParam
}

func frameAddr(w []byte) uint32 {
	return uint32(w[1])<<16 | uint32(w[2])<<8 | uint32(w[3])
}
