// memmap/memmap.go

// Package memmap holds the companion chip's address map and validates
// transfer ranges against it before any bus traffic is generated.
//
// Validation is pure: it returns the matched region, including its latency
// class, and the caller threads that into the read path it selects. Nothing
// is cached between a validation and the transfer it gates.
package memmap

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotMapped     = errors.New("memmap: range not within a single mapped region")
	ErrReadOnly      = errors.New("memmap: region is read-only")
	ErrInvalidLength = errors.New("memmap: zero-length range")
	ErrOverlap       = errors.New("memmap: regions overlap")
)

// LatencyClass tells the bus whether a region returns read data immediately
// or only after slave turnaround cycles.
type LatencyClass uint8

const (
	Immediate LatencyClass = iota
	HighLatency
)

func (c LatencyClass) String() string {
	if c == HighLatency {
		return "high-latency"
	}
	return "immediate"
}

// Direction of a transfer.
type Direction uint8

const (
	Read Direction = iota
	Write
)

func (d Direction) String() string {
	if d == Write {
		return "write"
	}
	return "read"
}

// Region is one contiguous, inclusive address window of the companion chip.
type Region struct {
	Name     string
	Start    uint32
	End      uint32 // inclusive
	Latency  LatencyClass
	ReadOnly bool
}

// Contains reports whether addr lies within [Start, End].
func (r Region) Contains(addr uint32) bool { return addr >= r.Start && addr <= r.End }

// Size is the number of addressable bytes in the region.
func (r Region) Size() uint64 { return uint64(r.End) - uint64(r.Start) + 1 }

// LatencyWords is the number of dummy 32-bit words the chip clocks out
// before valid read data for this region.
func (r Region) LatencyWords() int {
	if r.Latency == HighLatency {
		return 1
	}
	return 0
}

func (r Region) String() string {
	return fmt.Sprintf("%s[0x%06X-0x%06X]", r.Name, r.Start, r.End)
}

// AddressError describes a rejected range.
type AddressError struct {
	Addr   uint32
	Len    uint32
	Dir    Direction
	Region string // empty when no region matched
	Err    error
}

func (e *AddressError) Error() string {
	if e.Region != "" {
		return fmt.Sprintf("%s 0x%06X+%d (%s): %v", e.Dir, e.Addr, e.Len, e.Region, e.Err)
	}
	return fmt.Sprintf("%s 0x%06X+%d: %v", e.Dir, e.Addr, e.Len, e.Err)
}

func (e *AddressError) Unwrap() error { return e.Err }

// Map is an immutable, ordered set of non-overlapping regions.
type Map struct {
	regions []Region
}

// New builds a Map, rejecting inverted or overlapping regions. The given
// order is kept for lookups.
func New(regions ...Region) (Map, error) {
	sorted := make([]Region, len(regions))
	copy(sorted, regions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	for i, r := range sorted {
		if r.End < r.Start {
			return Map{}, fmt.Errorf("memmap: region %s ends before it starts", r.Name)
		}
		if i > 0 && sorted[i-1].End >= r.Start {
			return Map{}, fmt.Errorf("%w: %s and %s", ErrOverlap, sorted[i-1], r)
		}
	}
	m := Map{regions: make([]Region, len(regions))}
	copy(m.regions, regions)
	return m, nil
}

// Regions returns a copy of the table.
func (m Map) Regions() []Region {
	out := make([]Region, len(m.regions))
	copy(out, m.regions)
	return out
}

// Lookup returns the region containing addr.
func (m Map) Lookup(addr uint32) (Region, bool) {
	for _, r := range m.regions {
		if r.Contains(addr) {
			return r, true
		}
	}
	return Region{}, false
}

// Validate checks that [addr, addr+length-1] falls inside exactly one region
// and that the region accepts dir. It returns the matched region so the
// caller can pick the read path for its latency class.
func (m Map) Validate(addr, length uint32, dir Direction) (Region, error) {
	if length == 0 {
		return Region{}, &AddressError{Addr: addr, Len: length, Dir: dir, Err: ErrInvalidLength}
	}
	end := uint64(addr) + uint64(length) - 1
	if end > 0xFFFFFFFF {
		return Region{}, &AddressError{Addr: addr, Len: length, Dir: dir, Err: ErrNotMapped}
	}
	for _, r := range m.regions {
		if !r.Contains(addr) || !r.Contains(uint32(end)) {
			continue
		}
		if dir == Write && r.ReadOnly {
			return r, &AddressError{Addr: addr, Len: length, Dir: dir, Region: r.Name, Err: ErrReadOnly}
		}
		return r, nil
	}
	return Region{}, &AddressError{Addr: addr, Len: length, Dir: dir, Err: ErrNotMapped}
}
