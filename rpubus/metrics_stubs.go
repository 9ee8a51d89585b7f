//go:build tinygo

package rpubus

// Metrics records nothing on microcontroller targets; the collector stack
// only builds for hosted platforms.
type Metrics struct{}

func (*Metrics) transfer(string, string, int) {}
func (*Metrics) reject(error)                 {}
func (*Metrics) polls(int)                    {}
func (*Metrics) timeout()                     {}
func (*Metrics) state(PowerState)             {}
func (*Metrics) users(int32)                  {}
