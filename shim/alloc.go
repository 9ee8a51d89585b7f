// shim/alloc.go

// Package shim is the runtime glue an upper MAC driver is written against:
// allocation, locks, lists, packet buffers, deferred work, time and the bus
// operations of an rpubus.Device. Blocking calls block the calling
// goroutine until they complete or the shim's timeout expires; errors from
// the device are passed through unchanged.
package shim

import "sync"

// Allocations are served from size-class pools. Anything above the largest
// class goes straight to the heap and is not pooled on Free.
var classes = [...]int{64, 256, 1024, 4096, 16384}

var pools [len(classes)]sync.Pool

func init() {
	for i, size := range classes {
		size := size
		pools[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
}

func classFor(n int) int {
	for i, size := range classes {
		if n <= size {
			return i
		}
	}
	return -1
}

// Alloc returns a buffer of length n. Its contents are undefined.
func Alloc(n int) []byte {
	if n < 0 {
		return nil
	}
	c := classFor(n)
	if c < 0 {
		return make([]byte, n)
	}
	bp := pools[c].Get().(*[]byte)
	return (*bp)[:n]
}

// Zalloc returns a zeroed buffer of length n.
func Zalloc(n int) []byte {
	b := Alloc(n)
	clear(b)
	return b
}

// Free returns b to its pool. b must not be used afterwards.
func Free(b []byte) {
	c := classFor(cap(b))
	if c < 0 || classes[c] != cap(b) {
		return
	}
	b = b[:cap(b)]
	pools[c].Put(&b)
}
