// rpubus/wordbus.go

package rpubus

import (
	"github.com/go-logr/logr"
)

const wordSize = 4

// wordIO moves whole aligned words. Implementations assume the bus lock is
// held and that addr and len(p) are multiples of four.
type wordIO interface {
	readWords(addr uint32, p []byte) error
	writeWords(addr uint32, p []byte) error
}

// wordBus is the framing shared by the QSPI and SPI variants: it turns
// arbitrary byte windows into aligned word transfers. Callers hold the bus
// lock for the whole call.
type wordBus struct {
	io   wordIO
	mask uint32
	log  logr.Logger
}

func (b *wordBus) phys(addr uint32) uint32 { return addr | b.mask }

func (b *wordBus) readWord(addr uint32, w *[wordSize]byte) error {
	tracef(b.log, "read word", addr, wordSize)
	return busError("read", addr, b.io.readWords(b.phys(addr), w[:]))
}

func (b *wordBus) writeWord(addr uint32, w *[wordSize]byte) error {
	tracef(b.log, "write word", addr, wordSize)
	return busError("write", addr, b.io.writeWords(b.phys(addr), w[:]))
}

// read fills p from addr. The window is split into an unaligned prefix and
// suffix, each fetched as its containing word and spliced, and an aligned
// middle moved in one bulk transfer straight into p.
func (b *wordBus) read(addr uint32, p []byte) error {
	if len(p) == 0 {
		return ErrInvalidLength
	}
	var w [wordSize]byte

	if off := addr & (wordSize - 1); off != 0 {
		base := addr - off
		if err := b.readWord(base, &w); err != nil {
			return err
		}
		n := copy(p, w[off:])
		p = p[n:]
		addr = base + wordSize
	}

	if mid := len(p) &^ (wordSize - 1); mid > 0 {
		tracef(b.log, "read bulk", addr, mid)
		if err := b.io.readWords(b.phys(addr), p[:mid]); err != nil {
			return busError("read", addr, err)
		}
		p = p[mid:]
		addr += uint32(mid)
	}

	if len(p) > 0 {
		if err := b.readWord(addr, &w); err != nil {
			return err
		}
		copy(p, w[:len(p)])
	}
	return nil
}

// write stores p at the word-aligned addr. Whole words go out directly; a
// 1-3 byte write is a read-modify-write of the containing word.
func (b *wordBus) write(addr uint32, p []byte, latency int) error {
	switch {
	case len(p) == 0:
		return ErrInvalidLength
	case addr%wordSize != 0:
		return ErrInvalidAlignment
	case len(p) < wordSize:
		var w [wordSize]byte
		if latency > 0 {
			if err := b.highLatencyRead(addr, w[:], latency); err != nil {
				return err
			}
		} else if err := b.readWord(addr, &w); err != nil {
			return err
		}
		copy(w[:], p)
		return b.writeWord(addr, &w)
	case len(p)%wordSize != 0:
		return ErrInvalidAlignment
	}
	tracef(b.log, "write bulk", addr, len(p))
	return busError("write", addr, b.io.writeWords(b.phys(addr), p))
}

// highLatencyRead reads regions whose data trails latency dummy words. Each
// requested word is fetched with an over-read of 4*latency bytes and only
// the trailing word is kept.
func (b *wordBus) highLatencyRead(addr uint32, p []byte, latency int) error {
	switch {
	case len(p) == 0:
		return ErrInvalidLength
	case addr%wordSize != 0:
		return ErrInvalidAlignment
	case latency < 0:
		return ErrInvalidLength
	}
	buf := make([]byte, wordSize+wordSize*latency)
	tail := buf[len(buf)-wordSize:]
	for off := 0; off < len(p); off += wordSize {
		a := addr + uint32(off)
		tracef(b.log, "read high-latency", a, len(buf))
		if err := b.io.readWords(b.phys(a), buf); err != nil {
			return busError("read", a, err)
		}
		copy(p[off:], tail)
	}
	return nil
}
