package boxmgr

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// UploadCore stores a new core binary read from r under dir. The stream is
// written to "<name>.temp", validated by running it with the "version"
// argument, and only then renamed to its final name. The temporary file is
// removed on every failure and the final path is left untouched. The
// returned path is where the core now lives.
func UploadCore(ctx context.Context, dir, filename string, r io.Reader) (string, error) {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." || name == "" {
		name = DefaultCoreName
	}
	finalPath := filepath.Join(dir, name)
	tempPath := finalPath + UploadTempSuffix

	if err := os.MkdirAll(dir, DirMode); err != nil {
		return "", &OpError{Op: OpUploadWrite, Path: dir, Err: err}
	}

	if err := writeTempCore(tempPath, r); err != nil {
		_ = os.Remove(tempPath)
		return "", &OpError{Op: OpUploadWrite, Path: tempPath, Err: err}
	}

	if err := validateCore(ctx, tempPath); err != nil {
		_ = os.Remove(tempPath)
		return "", &OpError{Op: OpUploadValidate, Path: tempPath, Err: err}
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return "", &OpError{Op: OpUploadPublish, Path: finalPath, Err: err}
	}
	return finalPath, nil
}

// writeTempCore streams r into path. The file is fully written and closed
// before it is ever executed.
func writeTempCore(path string, r io.Reader) error {
	t, err := renameio.NewPendingFile(path, renameio.WithStaticPermissions(ExecMode))
	if err != nil {
		return err
	}
	defer func() {
		_ = t.Cleanup()
	}()

	if _, err := io.Copy(t, r); err != nil {
		return err
	}
	return t.CloseAtomicallyReplace()
}

func validateCore(ctx context.Context, path string) error {
	out, err := exec.CommandContext(ctx, path, "version").Output()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCore, err)
	}
	if _, ok := parseCoreInfo(out); !ok {
		return fmt.Errorf("%w: no %q line in version output", ErrInvalidCore, VersionPrefix)
	}
	return nil
}
