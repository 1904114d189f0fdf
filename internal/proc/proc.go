// Package proc holds the per-platform pieces of process control: graceful
// termination, spawn attributes and hook script invocation.
package proc

import (
	"bytes"
	"errors"
	"os"
)

// ErrNoGracefulStop is returned by Terminate on platforms without a graceful
// termination mechanism. Callers fall back to killing the process.
var ErrNoGracefulStop = errors.New("graceful stop not supported on this platform")

// Stopper is the graceful stop capability consumed by the supervisor
type Stopper interface {
	Terminate(p *os.Process) error
}

// StopperFunc adapts a function to the Stopper interface
type StopperFunc func(p *os.Process) error

// Terminate calls f(p)
func (f StopperFunc) Terminate(p *os.Process) error {
	return f(p)
}

// Platform is the Stopper selected at build time
var Platform Stopper = StopperFunc(Terminate)

func hasShebang(content []byte) bool {
	return bytes.HasPrefix(content, []byte("#!"))
}
