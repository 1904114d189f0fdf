package boxmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/axondata/go-boxmgr/internal/proc"
)

// Supervisor runs at most one core instance at a time. Start, Stop and
// Restart are serialized: a second caller waits for the first to finish,
// and a restart fully tears down the previous instance before building the
// next one.
type Supervisor struct {
	store  Store
	board  *StatusBoard
	logs   *LogQueue[LogLine]
	logger *slog.Logger
	// root is the unscoped logger handed to instances
	root *slog.Logger

	logCapacity   int
	tempDir       string
	dataDir       string
	stopTimeout   time.Duration
	writeTimeout  time.Duration
	readyMarker   string
	defaultListen string
	coreWatch     bool
	debounce      time.Duration
	stopper       proc.Stopper

	// sem serializes lifecycle operations
	sem chan struct{}
	// closed is set by Close; read and written only while holding sem
	closed bool

	// mu guards current; held only for pointer swaps
	mu      sync.Mutex
	current *processInstance

	watcher *coreWatcher

	base   context.Context
	cancel context.CancelFunc

	startsOK     atomic.Uint64
	startsFailed atomic.Uint64
}

// Option configures a Supervisor
type Option func(*Supervisor)

// WithLogger sets the logger; the default discards everything
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithLogCapacity sets how many console lines new log subscribers receive
func WithLogCapacity(n int) Option {
	return func(s *Supervisor) {
		s.logCapacity = n
	}
}

// WithTempDir sets the directory for hook script files
func WithTempDir(dir string) Option {
	return func(s *Supervisor) {
		s.tempDir = dir
	}
}

// WithDataDir sets the directory uploaded cores are stored in. The core
// also runs with it as working directory.
func WithDataDir(dir string) Option {
	return func(s *Supervisor) {
		s.dataDir = dir
	}
}

// WithStopTimeout sets how long the core may take to exit after the
// graceful stop signal before it is killed
func WithStopTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.stopTimeout = d
	}
}

// WithConfigWriteTimeout bounds how long the core may take to read its configuration
func WithConfigWriteTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.writeTimeout = d
	}
}

// WithReadyMarker sets the console line fragment that marks the core as ready
func WithReadyMarker(marker string) Option {
	return func(s *Supervisor) {
		s.readyMarker = marker
	}
}

// WithDefaultControlListen sets the control API address injected into
// configurations that do not declare one
func WithDefaultControlListen(addr string) Option {
	return func(s *Supervisor) {
		s.defaultListen = addr
	}
}

// WithCoreWatch restarts a running core when its binary is replaced on disk
func WithCoreWatch(enabled bool) Option {
	return func(s *Supervisor) {
		s.coreWatch = enabled
	}
}

// WithCoreWatchDebounce sets how long binary changes settle before a restart
func WithCoreWatchDebounce(d time.Duration) Option {
	return func(s *Supervisor) {
		s.debounce = d
	}
}

// WithStopper replaces the platform graceful stop mechanism
func WithStopper(st proc.Stopper) Option {
	return func(s *Supervisor) {
		s.stopper = st
	}
}

// New creates a Supervisor reading its configuration from store.
// No core is started until Boot, Start or Restart is called.
func New(store Store, opts ...Option) (*Supervisor, error) {
	if store == nil {
		return nil, errors.New("boxmgr: store is required")
	}

	s := &Supervisor{
		store:         store,
		board:         NewStatusBoard(),
		logCapacity:   DefaultLogCapacity,
		stopTimeout:   DefaultStopTimeout,
		writeTimeout:  DefaultConfigWriteTimeout,
		readyMarker:   ReadyMarker,
		defaultListen: DefaultControlListen,
		debounce:      DefaultCoreWatchDebounce,
		stopper:       proc.Platform,
		sem:           make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = discardLogger()
	}
	if s.tempDir == "" {
		s.tempDir = os.TempDir()
	}
	if s.stopTimeout <= 0 {
		s.stopTimeout = DefaultStopTimeout
	}
	if s.readyMarker == "" {
		s.readyMarker = ReadyMarker
	}
	if s.defaultListen == "" {
		s.defaultListen = DefaultControlListen
	}
	s.logs = NewLogQueue[LogLine](s.logCapacity)
	s.root = s.logger
	s.logger = s.root.With("component", "supervisor")

	s.base, s.cancel = context.WithCancel(context.Background())

	if s.coreWatch {
		w, err := newCoreWatcher(s.base, s.debounce, s.onCoreReplaced, s.root)
		if err != nil {
			s.cancel()
			return nil, fmt.Errorf("boxmgr: core watcher: %w", err)
		}
		s.watcher = w
	}

	return s, nil
}

// Boot starts the core once if the store's auto start flag is set.
// Failures are logged; they never fail the caller's own startup.
func (s *Supervisor) Boot(ctx context.Context) {
	auto, err := s.store.AutoStart(ctx)
	if err != nil {
		s.logger.Error("failed to read auto start flag", "error", err)
		return
	}
	if !auto {
		return
	}
	if err := s.Start(ctx); err != nil {
		s.logger.Error("auto start failed", "error", err)
	}
}

// Start is Restart: any running core is torn down and a fresh one started
func (s *Supervisor) Start(ctx context.Context) error {
	return s.restart(ctx, OpStart)
}

// Restart tears down the running core, if any, then starts a new one from
// the store's current core path and active configuration. On failure no
// core is left running.
func (s *Supervisor) Restart(ctx context.Context) error {
	return s.restart(ctx, OpRestart)
}

func (s *Supervisor) restart(ctx context.Context, op Operation) error {
	if err := s.acquire(ctx); err != nil {
		return &OpError{Op: op, Err: err}
	}
	defer s.release()

	if s.closed {
		return &OpError{Op: op, Err: ErrClosed}
	}
	s.teardown()

	corePath, cfg, err := s.prepare(ctx)
	if err != nil {
		s.startsFailed.Add(1)
		return &OpError{Op: op, Err: err}
	}

	inst, err := startInstance(ctx, s.base, instanceConfig{
		corePath:      corePath,
		config:        cfg,
		store:         s.store,
		board:         s.board,
		logs:          s.logs,
		logger:        s.root,
		stopper:       s.stopper,
		tempDir:       s.tempDir,
		workDir:       s.dataDir,
		defaultListen: s.defaultListen,
		readyMarker:   s.readyMarker,
		stopTimeout:   s.stopTimeout,
		writeTimeout:  s.writeTimeout,
	})
	if err != nil {
		s.startsFailed.Add(1)
		return &OpError{Op: op, Err: err}
	}

	s.mu.Lock()
	s.current = inst
	s.mu.Unlock()
	s.startsOK.Add(1)

	if s.watcher != nil {
		if err := s.watcher.Watch(corePath); err != nil {
			s.logger.Warn("failed to watch core binary", "path", corePath, "error", err)
		}
	}
	return nil
}

// prepare reads the core path and active configuration.
// A missing value is reported with its own error.
func (s *Supervisor) prepare(ctx context.Context) (string, *Config, error) {
	corePath, err := s.store.CorePath(ctx)
	if err != nil {
		return "", nil, &OpError{Op: OpPrepare, Err: fmt.Errorf("get core path: %w", err)}
	}
	if corePath == "" {
		return "", nil, ErrCorePathNotSet
	}

	cfg, err := s.store.ActiveConfig(ctx)
	if err != nil {
		return "", nil, &OpError{Op: OpPrepare, Err: fmt.Errorf("get config: %w", err)}
	}
	if cfg == nil {
		return "", nil, ErrConfigNotSet
	}
	return corePath, cfg, nil
}

// Stop tears down the running core. Stopping with nothing running is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return &OpError{Op: OpStop, Err: err}
	}
	defer s.release()

	s.teardown()
	return nil
}

// teardown cancels and awaits the current instance; callers hold sem
func (s *Supervisor) teardown() {
	s.mu.Lock()
	inst := s.current
	s.mu.Unlock()
	if inst == nil {
		return
	}

	if s.watcher != nil {
		s.watcher.Unwatch()
	}
	inst.cancelAndWait()

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

func (s *Supervisor) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) release() {
	<-s.sem
}

// Close stops the running core and releases background resources. Later
// Start and Restart calls fail with ErrClosed. Teardown failures are
// collected and returned but do not stop the remaining cleanup.
func (s *Supervisor) Close(ctx context.Context) error {
	merr := &MultiError{}

	if err := s.acquire(ctx); err != nil {
		s.logger.Error("failed to stop core on close", "error", err)
		merr.Add(&OpError{Op: OpStop, Err: err})
	} else {
		s.closed = true
		s.teardown()
		s.release()
	}
	if s.watcher != nil {
		merr.Add(s.watcher.Close())
	}
	s.cancel()
	return merr.Err()
}

// CurrentConfig returns the configuration document the running core was
// given, after normalization. It is nil while no core instance exists.
func (s *Supervisor) CurrentConfig() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return append(json.RawMessage(nil), s.current.document...)
}

// Status returns a snapshot of the runtime metrics
func (s *Supervisor) Status() Status {
	return s.board.Snapshot()
}

// Changed returns a channel closed at the next status change
func (s *Supervisor) Changed() <-chan struct{} {
	return s.board.Changed()
}

// Board exposes the underlying StatusBoard
func (s *Supervisor) Board() *StatusBoard {
	return s.board
}

// SubscribeLogs returns a listener replaying the recent console lines and
// following new ones
func (s *Supervisor) SubscribeLogs() *Listener[LogLine] {
	return s.logs.Subscribe()
}

// UploadCore stores a core binary under the data directory after checking
// that it answers a version query. It does not change the store's core
// path; callers decide whether to point the store at the returned path.
func (s *Supervisor) UploadCore(ctx context.Context, r io.Reader, filename string) (string, error) {
	dir := s.dataDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", &OpError{Op: OpUploadWrite, Err: err}
		}
		dir = wd
	}
	return UploadCore(ctx, dir, filename, r)
}

// Starts reports how many starts succeeded and failed since creation
func (s *Supervisor) Starts() (ok, failed uint64) {
	return s.startsOK.Load(), s.startsFailed.Load()
}

// onCoreReplaced restarts a running core whose binary changed on disk
func (s *Supervisor) onCoreReplaced(path string) {
	s.mu.Lock()
	running := s.current != nil
	s.mu.Unlock()
	if !running {
		return
	}

	s.logger.Info("core binary replaced, restarting", "path", path)
	s.logs.Push(newLogLine(SourceInternal, "core binary replaced, restarting"))
	err := s.Restart(s.base)
	switch {
	case err == nil:
	case errors.Is(err, ErrClosed), errors.Is(err, context.Canceled):
		s.logger.Debug("supervisor closed, core replacement ignored")
	default:
		s.logger.Error("restart after core replacement failed", "error", err)
	}
}
