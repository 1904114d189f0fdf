//go:build linux || darwin

package boxmgr

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCore(t *testing.T) {
	fc := writeFakeCore(t, t.TempDir(), fakeCoreOptions{})

	info, err := QueryCore(context.Background(), fc.Path)
	require.NoError(t, err)
	assert.Equal(t, fakeCoreVersion, info.Version)
	assert.Equal(t, []string{"with_gvisor", "with_clash_api"}, info.Tags)

	bad := writeFakeCore(t, t.TempDir(), fakeCoreOptions{BadVersion: true})
	info, err = QueryCore(context.Background(), bad.Path)
	require.NoError(t, err, "a non-zero exit is not a spawn failure")
	assert.Empty(t, info.Version)

	_, err = QueryCore(context.Background(), filepath.Join(t.TempDir(), "missing"))
	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, OpVersion, opErr.Op)
}
