package boxmgr

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"vawter.tech/stopper"

	"github.com/axondata/go-boxmgr/internal/proc"
)

// drainTimeout bounds how long output still buffered in the pipes is read
// after the core exits on its own
const drainTimeout = 500 * time.Millisecond

// instanceConfig carries everything one core run needs from the supervisor
type instanceConfig struct {
	corePath      string
	config        *Config
	store         Store
	board         *StatusBoard
	logs          *LogQueue[LogLine]
	logger        *slog.Logger
	stopper       proc.Stopper
	tempDir       string
	workDir       string
	defaultListen string
	readyMarker   string
	stopTimeout   time.Duration
	writeTimeout  time.Duration
}

// processInstance owns exactly one run of the core process
type processInstance struct {
	instanceConfig

	// base outlives the instance; hook scripts run under it so that
	// before-close still runs while the instance is stopping
	base context.Context

	document []byte
	control  controlPlane
	scripts  *ScriptRunner
	cmd      *exec.Cmd
	stdout   *os.File
	stderr   *os.File

	sctx      *stopper.Context
	done      chan struct{}
	ready     chan struct{}
	readyOnce sync.Once
}

// startInstance prepares the configuration, spawns the core and launches
// the pump and metrics tasks. On error nothing is left running.
func startInstance(ctx, base context.Context, cfg instanceConfig) (*processInstance, error) {
	i := &processInstance{
		instanceConfig: cfg,
		base:           base,
		done:           make(chan struct{}),
		ready:          make(chan struct{}),
	}
	i.logger = cfg.logger.With("component", "instance", "config", cfg.config.Tag)

	i.board.SetRunningConfig(cfg.config.Tag)
	i.board.Notify()

	scripts, err := LoadScripts(ctx, cfg.store, cfg.tempDir, cfg.logger)
	if err != nil {
		return nil, &OpError{Op: OpPrepare, Err: err}
	}
	i.scripts = scripts

	doc, control, err := normalizeConfig(cfg.config.Document, cfg.defaultListen)
	if err != nil {
		return nil, &OpError{Op: OpPrepare, Err: err}
	}
	i.document = doc
	i.control = control

	if err := proc.EnsureExecutable(cfg.corePath); err != nil {
		return nil, &OpError{Op: OpPrepare, Path: cfg.corePath, Err: err}
	}

	info, err := QueryCore(ctx, cfg.corePath)
	if err != nil {
		return nil, err
	}
	i.board.SetCoreVersion(info.Version)
	i.board.Notify()
	i.logger.Debug("core info", "version", info.Version, "tags", info.Tags)

	i.scripts.Run(base, RunBeforeStart)

	if err := i.spawn(doc); err != nil {
		return nil, err
	}

	i.sctx = stopper.WithContext(base)
	i.sctx.Go(i.pump)
	newMetricsPoller(control, i.board, cfg.logger).Start(i.sctx, i.ready)

	i.logger.Info("core started", "pid", i.cmd.Process.Pid, "control", control.Endpoint)
	return i, nil
}

// spawn starts the core in run mode and hands it doc over stdin
func (i *processInstance) spawn(doc []byte) error {
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return &OpError{Op: OpSpawn, Path: i.corePath, Err: err}
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW)
		return &OpError{Op: OpSpawn, Path: i.corePath, Err: err}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW)
		return &OpError{Op: OpSpawn, Path: i.corePath, Err: err}
	}

	cmd := exec.Command(i.corePath, "run", "--config", "stdin", "--disable-color")
	cmd.SysProcAttr = proc.SysProcAttr()
	cmd.Dir = i.workDir
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	// the child holds its own copies now
	closeAll(stdinR, stdoutW, stderrW)
	if err != nil {
		closeAll(stdinW, stdoutR, stderrR)
		return &OpError{Op: OpSpawn, Path: i.corePath, Err: err}
	}

	if err := writeConfig(stdinW, doc, i.writeTimeout); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		closeAll(stdoutR, stderrR)
		return &OpError{Op: OpSpawn, Path: i.corePath, Err: err}
	}

	i.cmd = cmd
	i.stdout = stdoutR
	i.stderr = stderrR
	return nil
}

// writeConfig writes doc and closes w so the core sees end of input
func writeConfig(w *os.File, doc []byte, timeout time.Duration) error {
	if timeout > 0 {
		// pipes without deadline support simply block
		_ = w.SetWriteDeadline(time.Now().Add(timeout))
	}
	_, err := w.Write(doc)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrStdinUnavailable
	}
	return err
}

// pump relays console output until the core exits or the instance stops
func (i *processInstance) pump(sctx *stopper.Context) error {
	defer close(i.done)

	exited := make(chan error, 1)
	go func() {
		exited <- i.cmd.Wait()
	}()

	lines := make(chan LogLine)
	quit := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(2)
	go i.readLines(&readers, i.stdout, SourceStdout, lines, quit)
	go i.readLines(&readers, i.stderr, SourceStderr, lines, quit)
	readersDone := make(chan struct{})
	go func() {
		readers.Wait()
		close(readersDone)
	}()

	i.board.SetRunning(true)
	i.logs.Push(newLogLine(SourceInternal, "service is started"))
	i.board.Notify()

loop:
	for {
		select {
		case line := <-lines:
			i.handleLine(line)

		case err := <-exited:
			i.logger.Warn("core exited", "exit_code", i.cmd.ProcessState.ExitCode(), "error", err)
			i.drain(lines, readersDone, i.handleLine)
			break loop

		case <-sctx.Stopping():
			i.scripts.Run(i.base, RunBeforeClose)
			i.logger.Debug("core is cancelled")
			i.terminate(exited, lines)
			i.drain(lines, readersDone, i.relayLine)
			break loop
		}
	}

	close(quit)
	closeAll(i.stdout, i.stderr)

	i.scripts.Run(i.base, RunAfterClose)
	i.logs.Push(newLogLine(SourceInternal, "service is closed"))
	sctx.Stop(i.stopTimeout)
	i.board.SetRunning(false)
	i.board.Notify()
	i.logger.Info("core stopped")
	return nil
}

// drain passes lines still buffered in the pipes to handle once the core
// has exited, until both streams end or drainTimeout passes
func (i *processInstance) drain(lines <-chan LogLine, readersDone <-chan struct{}, handle func(LogLine)) {
	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	for {
		select {
		case line := <-lines:
			handle(line)
		case <-readersDone:
			return
		case <-timer.C:
			return
		}
	}
}

func (i *processInstance) handleLine(line LogLine) {
	i.relayLine(line)

	if strings.Contains(line.Text, i.readyMarker) {
		i.scripts.Run(i.base, RunAfterStart)
		i.logger.Debug("core is ready")
		i.readyOnce.Do(func() {
			close(i.ready)
		})
	}
}

// relayLine records a console line without reacting to its content
func (i *processInstance) relayLine(line LogLine) {
	i.logs.Push(line)
	i.logger.Debug("core output", "source", line.Source.String(), "line", line.Text)
}

// readLines forwards every non-empty line of r until EOF or quit. Lines
// longer than MaxLineSize are truncated; the rest of such a line is skipped.
func (i *processInstance) readLines(wg *sync.WaitGroup, r io.Reader, source Source, out chan<- LogLine, quit <-chan struct{}) {
	defer wg.Done()

	br := bufio.NewReaderSize(r, 64*1024)
	var buf []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		if room := MaxLineSize - len(buf); room > 0 && len(chunk) > 0 {
			buf = append(buf, chunk[:min(len(chunk), room)]...)
		}
		if err == nil && isPrefix {
			continue
		}

		if text := strings.TrimRight(string(buf), " \t"); text != "" {
			select {
			case out <- newLogLine(source, text):
			case <-quit:
				return
			}
		}
		buf = buf[:0]

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				i.logger.Warn("stopped reading core output", "source", source.String(), "error", err)
			}
			return
		}
	}
}

// terminate asks the core to exit and kills it once the stop timeout passes.
// exited delivers the result of cmd.Wait; output arriving meanwhile is
// relayed so the core never blocks on a full pipe.
func (i *processInstance) terminate(exited <-chan error, lines <-chan LogLine) {
	p := i.cmd.Process

	if err := i.stopper.Terminate(p); err != nil {
		i.logger.Warn("graceful stop unavailable, killing core", "error", err)
		_ = p.Kill()
		i.awaitExit(exited, lines)
		return
	}

	timer := time.NewTimer(i.stopTimeout)
	defer timer.Stop()

	for {
		select {
		case line := <-lines:
			i.relayLine(line)
		case err := <-exited:
			i.logger.Debug("core exited after stop signal", "error", err)
			return
		case <-timer.C:
			i.logger.Warn("core ignored stop signal, killing", "timeout", i.stopTimeout)
			_ = p.Kill()
			i.awaitExit(exited, lines)
			return
		}
	}
}

// awaitExit waits for a killed core while still relaying its output
func (i *processInstance) awaitExit(exited <-chan error, lines <-chan LogLine) {
	for {
		select {
		case line := <-lines:
			i.relayLine(line)
		case <-exited:
			return
		}
	}
}

// cancelAndWait stops the instance and blocks until its teardown is
// complete, then zeroes the runtime metrics
func (i *processInstance) cancelAndWait() {
	i.sctx.Stop(i.stopTimeout)
	<-i.done
	if err := i.sctx.Wait(); err != nil {
		i.logger.Warn("instance tasks ended with error", "error", err)
	}
	i.board.ResetMetrics()
	i.board.Notify()
}

// Ready is closed the first time the core reports readiness
func (i *processInstance) Ready() <-chan struct{} {
	return i.ready
}

// Done is closed once the pump has finished its teardown
func (i *processInstance) Done() <-chan struct{} {
	return i.done
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
