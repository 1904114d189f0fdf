package boxmgr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/axondata/go-boxmgr/internal/proc"
)

// ScriptRunner runs the lifecycle scripts of one core instance.
// Scripts are loaded once and never reloaded for the instance's lifetime.
type ScriptRunner struct {
	scripts map[RunType]*Script
	tempDir string
	logger  *slog.Logger
}

// LoadScripts reads the script of every lifecycle point from store.
// A lifecycle point without a script is skipped silently by Run.
func LoadScripts(ctx context.Context, store Store, tempDir string, logger *slog.Logger) (*ScriptRunner, error) {
	if logger == nil {
		logger = discardLogger()
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	r := &ScriptRunner{
		scripts: make(map[RunType]*Script, len(LifecycleRunTypes)),
		tempDir: tempDir,
		logger:  logger.With("component", "script"),
	}
	for _, rt := range LifecycleRunTypes {
		script, err := store.Script(ctx, rt)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", rt.Label(), err)
		}
		if script != nil {
			r.scripts[rt] = script
		}
	}
	return r, nil
}

// Has reports whether a script is attached to rt
func (r *ScriptRunner) Has(rt RunType) bool {
	_, ok := r.scripts[rt]
	return ok
}

// Run executes the script attached to rt and waits for it to finish.
// Failures are logged and never returned; a broken hook must not hold up
// the lifecycle transition it belongs to.
func (r *ScriptRunner) Run(ctx context.Context, rt RunType) {
	script, ok := r.scripts[rt]
	if !ok {
		return
	}

	label := rt.Label()
	logger := r.logger.With("script", label, "tag", script.Tag)
	logger.Debug("running script")

	name := strings.ReplaceAll(label, " ", "_") + "_" + strings.ReplaceAll(uuid.NewString(), "-", "") + proc.ScriptExt
	path := filepath.Join(r.tempDir, name)

	content := []byte(script.Content)
	if err := renameio.WriteFile(path, content, ExecMode); err != nil {
		logger.Error("failed to write script file", "path", path, "error", err)
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			logger.Error("failed to remove script file", "path", path, "error", err)
		}
	}()

	var stdout, stderr bytes.Buffer
	cmd := proc.ScriptCommand(ctx, path, content)
	cmd.Dir = r.tempDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		logger.Error("failed to run script", "error", err)
		return
	}

	attrs := []any{"exit_code", cmd.ProcessState.ExitCode()}
	if stdout.Len() > 0 {
		attrs = append(attrs, "stdout", stdout.String())
	}
	if stderr.Len() > 0 {
		attrs = append(attrs, "stderr", stderr.String())
	}
	if exitErr != nil {
		logger.Warn("script exited with failure", attrs...)
		return
	}
	logger.Debug("script finished", attrs...)
}
