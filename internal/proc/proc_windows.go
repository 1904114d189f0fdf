//go:build windows

package proc

import (
	"context"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// ScriptExt is the extension given to hook script files
const ScriptExt = ".bat"

// Terminate sends CTRL_BREAK to the process group led by p. The core is
// spawned with CREATE_NEW_PROCESS_GROUP so its pid names that group.
func Terminate(p *os.Process) error {
	if p == nil {
		return os.ErrProcessDone
	}
	return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(p.Pid))
}

// SysProcAttr returns the attributes used when spawning the core
func SysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
}

// EnsureExecutable is a no-op; Windows has no execute permission bit
func EnsureExecutable(string) error {
	return nil
}

// ScriptCommand builds the command running the hook script at path
func ScriptCommand(ctx context.Context, path string, _ []byte) *exec.Cmd {
	return exec.CommandContext(ctx, "cmd", "/C", path)
}
