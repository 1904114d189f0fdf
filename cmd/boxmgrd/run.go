package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/axondata/go-boxmgr"
)

const shutdownTimeout = 10 * time.Second

type Run struct {
	TempDir        string        `name:"temp-dir" help:"Directory for hook scripts; defaults to the system temp dir"`
	MetricsListen  string        `name:"metrics-listen" placeholder:"127.0.0.1:9190" help:"Serve Prometheus metrics on this address"`
	WatchCore      bool          `name:"watch-core" default:"false" help:"Restart the core when its binary is replaced"`
	StopTimeout    time.Duration `name:"stop-timeout" default:"5s" help:"Grace period before a stopping core is killed"`
	ControlListen  string        `name:"control-listen" default:"${control_listen}" help:"Control API address injected when a config has none"`
	FollowCoreLogs bool          `name:"follow-core-logs" default:"true" negatable:"" help:"Copy core output into the daemon log"`
}

func (r Run) Run(ctx context.Context, globals *Globals) error {
	logger, closer, err := configureLogger(globals.GlobalLogger)
	if err != nil {
		return err
	}
	defer closer.Close()

	store, err := globals.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []boxmgr.Option{
		boxmgr.WithLogger(logger),
		boxmgr.WithDataDir(globals.DataDir),
		boxmgr.WithStopTimeout(r.StopTimeout),
		boxmgr.WithCoreWatch(r.WatchCore),
		boxmgr.WithDefaultControlListen(r.ControlListen),
	}
	if r.TempDir != "" {
		opts = append(opts, boxmgr.WithTempDir(r.TempDir))
	}

	sup, err := boxmgr.New(store, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if r.FollowCoreLogs {
		l := sup.SubscribeLogs()
		go l.Listen(ctx, func(line boxmgr.LogLine) error {
			logger.Debug(line.Text, "source", line.Source.String())
			return nil
		})
	}

	var srv *http.Server
	if r.MetricsListen != "" {
		srv, err = serveMetrics(r.MetricsListen, sup, logger)
		if err != nil {
			_ = sup.Close(context.Background())
			return err
		}
	}

	logger.Info("boxmgrd started", "version", boxmgr.Version, "data_dir", globals.DataDir)
	sup.Boot(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if srv != nil {
		errs = append(errs, srv.Shutdown(shutdownCtx))
	}
	errs = append(errs, sup.Close(shutdownCtx))
	return errors.Join(errs...)
}

func serveMetrics(addr string, sup *boxmgr.Supervisor, logger *slog.Logger) (*http.Server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		boxmgr.NewCollector(sup),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return srv, nil
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, boxmgr.DirMode)
}

func parentDir(path string) string {
	return filepath.Dir(path)
}
