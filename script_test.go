//go:build linux || darwin

package boxmgr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScripts(t *testing.T) {
	store := newMemStore()
	store.setScript(RunBeforeStart, "true")
	store.setScript(RunAfterClose, "true")

	r, err := LoadScripts(context.Background(), store, t.TempDir(), nil)
	require.NoError(t, err)
	assert.True(t, r.Has(RunBeforeStart))
	assert.False(t, r.Has(RunAfterStart))
	assert.False(t, r.Has(RunBeforeClose))
	assert.True(t, r.Has(RunAfterClose))

	store.err = errors.New("db down")
	_, err = LoadScripts(context.Background(), store, t.TempDir(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.err)
	assert.Contains(t, err.Error(), "before start script")
}

func TestScriptRunnerRun(t *testing.T) {
	tempDir := t.TempDir()
	out := filepath.Join(t.TempDir(), "out.txt")

	store := newMemStore()
	store.setScript(RunBeforeStart, "#!/bin/sh\necho started > '"+out+"'\n")
	store.setScript(RunAfterStart, "echo no shebang >> '"+out+"'\n")
	store.setScript(RunBeforeClose, "#!/bin/sh\necho oops >&2\nexit 3\n")

	r, err := LoadScripts(context.Background(), store, tempDir, nil)
	require.NoError(t, err)

	r.Run(context.Background(), RunBeforeStart)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "started\n", string(data))

	r.Run(context.Background(), RunAfterStart)
	data, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "started\nno shebang\n", string(data))

	// failures and missing scripts return normally
	r.Run(context.Background(), RunBeforeClose)
	r.Run(context.Background(), RunAfterClose)

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "script files must be removed after running")
}

func TestScriptRunnerMissingTempDir(t *testing.T) {
	store := newMemStore()
	store.setScript(RunAfterClose, "true")

	r, err := LoadScripts(context.Background(), store, filepath.Join(t.TempDir(), "missing"), nil)
	require.NoError(t, err)

	r.Run(context.Background(), RunAfterClose)
}
