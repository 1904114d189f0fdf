package boxmgr

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"
)

// coreWatcher reports replacements of the core binary. The parent
// directory is watched, since an atomic replace swaps the inode the binary
// name points to.
type coreWatcher struct {
	watcher  *fsnotify.Watcher
	sctx     *stopper.Context
	debounce time.Duration
	onChange func(path string)
	logger   *slog.Logger

	mu        sync.Mutex
	path      string
	dir       string
	debouncer *time.Timer
}

func newCoreWatcher(ctx context.Context, debounce time.Duration, onChange func(string), logger *slog.Logger) (*coreWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &coreWatcher{
		watcher:  watcher,
		sctx:     stopper.WithContext(ctx),
		debounce: debounce,
		onChange: onChange,
		logger:   logger.With("component", "core-watch"),
	}

	w.sctx.Defer(func() {
		_ = watcher.Close()
	})
	w.sctx.Go(w.run)
	return w, nil
}

// Watch switches the watcher to path, replacing any previous path
func (w *coreWatcher) Watch(path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dir != dir {
		if w.dir != "" {
			_ = w.watcher.Remove(w.dir)
			w.dir = ""
		}
		if err := w.watcher.Add(dir); err != nil {
			w.path = ""
			return err
		}
		w.dir = dir
	}
	w.path = path
	return nil
}

// Unwatch stops reporting changes until the next Watch
func (w *coreWatcher) Unwatch() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.path = ""
	if w.debouncer != nil {
		w.debouncer.Stop()
		w.debouncer = nil
	}
}

// Close stops the watcher and waits for its goroutine
func (w *coreWatcher) Close() error {
	w.Unwatch()
	w.sctx.Stop(100 * time.Millisecond)
	return w.sctx.Wait()
}

func (w *coreWatcher) run(sctx *stopper.Context) error {
	for !sctx.IsStopping() {
		select {
		case <-sctx.Stopping():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			w.touch(filepath.Clean(event.Name))

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				w.logger.Warn("watch error", "error", err)
			}
		}
	}
	return nil
}

// touch schedules onChange once events for the watched path settle
func (w *coreWatcher) touch(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.path == "" || name != w.path {
		return
	}
	if w.debouncer != nil {
		w.debouncer.Stop()
	}

	path := w.path
	w.debouncer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		current := w.path
		w.mu.Unlock()
		if current != path || w.sctx.IsStopping() {
			return
		}
		w.onChange(path)
	})
}
