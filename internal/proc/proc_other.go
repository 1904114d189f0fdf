//go:build !unix && !windows

package proc

import (
	"context"
	"os"
	"os/exec"
	"syscall"
)

// ScriptExt is the extension given to hook script files
const ScriptExt = ".sh"

// Terminate always fails so the caller kills the process immediately
func Terminate(*os.Process) error {
	return ErrNoGracefulStop
}

// SysProcAttr returns the attributes used when spawning the core
func SysProcAttr() *syscall.SysProcAttr {
	return nil
}

// EnsureExecutable is a no-op on this platform
func EnsureExecutable(string) error {
	return nil
}

// ScriptCommand builds the command running the hook script at path
func ScriptCommand(ctx context.Context, path string, _ []byte) *exec.Cmd {
	return exec.CommandContext(ctx, path)
}
