// shim/nbuf.go

package shim

import "errors"

var ErrNoRoom = errors.New("shim: not enough room in buffer")

// Nbuf is a packet buffer with reserved headroom so headers can be pushed
// in front of the payload without copying.
type Nbuf struct {
	buf      []byte
	off, end int
	prio     uint8
}

// NewNbuf allocates a buffer of size bytes, headroom of which are reserved
// in front of the (initially empty) data.
func NewNbuf(size, headroom int) (*Nbuf, error) {
	if size < 0 || headroom < 0 || headroom > size {
		return nil, ErrNoRoom
	}
	return &Nbuf{buf: Zalloc(size), off: headroom, end: headroom}, nil
}

// Free releases the backing storage. The Nbuf must not be used afterwards.
func (b *Nbuf) Free() {
	Free(b.buf)
	b.buf = nil
	b.off, b.end = 0, 0
}

func (b *Nbuf) Data() []byte    { return b.buf[b.off:b.end] }
func (b *Nbuf) Len() int        { return b.end - b.off }
func (b *Nbuf) Headroom() int   { return b.off }
func (b *Nbuf) Tailroom() int   { return len(b.buf) - b.end }
func (b *Nbuf) Priority() uint8 { return b.prio }

func (b *Nbuf) SetPriority(p uint8) { b.prio = p }

// Put extends the data at the tail by n bytes and returns them.
func (b *Nbuf) Put(n int) ([]byte, error) {
	if n < 0 || n > b.Tailroom() {
		return nil, ErrNoRoom
	}
	p := b.buf[b.end : b.end+n]
	b.end += n
	return p, nil
}

// Push extends the data at the head by n bytes and returns them.
func (b *Nbuf) Push(n int) ([]byte, error) {
	if n < 0 || n > b.off {
		return nil, ErrNoRoom
	}
	b.off -= n
	return b.buf[b.off : b.off+n], nil
}

// Pull strips n bytes from the head of the data and returns them.
func (b *Nbuf) Pull(n int) ([]byte, error) {
	if n < 0 || n > b.Len() {
		return nil, ErrNoRoom
	}
	p := b.buf[b.off : b.off+n]
	b.off += n
	return p, nil
}

// Trim shortens the data to n bytes.
func (b *Nbuf) Trim(n int) error {
	if n < 0 || n > b.Len() {
		return ErrNoRoom
	}
	b.end = b.off + n
	return nil
}
