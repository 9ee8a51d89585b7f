// rpubus/transport.go

package rpubus

import "context"

// Transport moves bytes between the host and the companion chip. Every
// method takes the bus lock for its whole duration and blocks until the
// transfer completes or ctx is done. Physical failures come back as
// *BusError and are never retried here.
type Transport interface {
	Kind() BusKind

	// Open configures the peripheral; Close releases it.
	Open(ctx context.Context) error
	Close() error

	Read(ctx context.Context, addr uint32, p []byte) error
	// Write stores p at addr. latencyWords applies to the read half of a
	// sub-word read-modify-write.
	Write(ctx context.Context, addr uint32, p []byte, latencyWords int) error
	// HighLatencyRead reads a region whose data trails latencyWords dummy
	// words.
	HighLatencyRead(ctx context.Context, addr uint32, p []byte, latencyWords int) error

	ReadStatus(ctx context.Context, reg StatusReg) (uint8, error)
	WriteStatus(ctx context.Context, reg StatusReg, v uint8) error

	Frequency() uint32
	SetFrequency(ctx context.Context, hz uint32) error

	EnableEncryption(ctx context.Context, key [16]byte) error
}
