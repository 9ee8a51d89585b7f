//go:build rpubusdebug

package rpubus

import (
	"fmt"

	"github.com/go-logr/logr"
)

// Called for every word-level transfer the framing layer issues.
func tracef(log logr.Logger, msg string, addr uint32, n int) {
	log.V(2).Info(msg, "addr", fmt.Sprintf("0x%06X", addr), "len", n)
}
