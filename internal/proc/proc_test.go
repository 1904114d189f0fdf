//go:build linux || darwin

package proc

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/renameio/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core")
	require.NoError(t, renameio.WriteFile(path, []byte("#!/bin/sh\n"), 0o644))

	require.NoError(t, EnsureExecutable(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	// already executable is left alone
	require.NoError(t, EnsureExecutable(path))

	assert.Error(t, EnsureExecutable(filepath.Join(t.TempDir(), "missing")))
}

func TestTerminate(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	cmd.SysProcAttr = SysProcAttr()
	require.NoError(t, cmd.Start())

	require.NoError(t, Platform.Terminate(cmd.Process))

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		require.Error(t, err, "sleep should die from SIGTERM")
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatal("process did not exit after SIGTERM")
	}

	assert.Error(t, Terminate(nil))
}

func TestScriptCommand(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{name: "shebang", content: "#!/bin/sh\necho hi\n"},
		{name: "plain", content: "echo hi\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+ScriptExt)
			require.NoError(t, renameio.WriteFile(path, []byte(tt.content), 0o755))

			out, err := ScriptCommand(context.Background(), path, []byte(tt.content)).Output()
			require.NoError(t, err)
			assert.Equal(t, "hi\n", string(out))
		})
	}
}
