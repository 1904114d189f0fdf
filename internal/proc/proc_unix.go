//go:build unix

package proc

import (
	"context"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// ScriptExt is the extension given to hook script files
const ScriptExt = ".sh"

// Terminate sends SIGTERM to p
func Terminate(p *os.Process) error {
	if p == nil {
		return os.ErrProcessDone
	}
	return p.Signal(unix.SIGTERM)
}

// SysProcAttr returns the attributes used when spawning the core
func SysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}

// EnsureExecutable adds the execute bits to path unless it is already executable
func EnsureExecutable(path string) error {
	if unix.Access(path, unix.X_OK) == nil {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.Chmod(path, info.Mode().Perm()|0o111)
}

// ScriptCommand builds the command running the hook script at path.
// Scripts without an interpreter line run under /bin/sh.
func ScriptCommand(ctx context.Context, path string, content []byte) *exec.Cmd {
	if hasShebang(content) {
		return exec.CommandContext(ctx, path)
	}
	return exec.CommandContext(ctx, "/bin/sh", path)
}
