package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"disorder.dev/shandler"
	"github.com/natefinch/lumberjack"
)

// configureLogger builds the daemon logger. The returned closer releases a
// rotated log file, if one was opened.
func configureLogger(cfg GlobalLogger) (*slog.Logger, io.Closer, error) {
	var handlerOpts []shandler.HandlerOption

	switch cfg.LogLevel {
	case "debug":
		handlerOpts = append(handlerOpts, shandler.WithLogLevel(slog.LevelDebug))
	case "info":
		handlerOpts = append(handlerOpts, shandler.WithLogLevel(slog.LevelInfo))
	case "warn":
		handlerOpts = append(handlerOpts, shandler.WithLogLevel(slog.LevelWarn))
	case "trace":
		handlerOpts = append(handlerOpts, shandler.WithLogLevel(shandler.LevelTrace))
	default:
		handlerOpts = append(handlerOpts, shandler.WithLogLevel(slog.LevelError))
	}

	switch cfg.LogTimeFormat {
	case "TimeOnly":
		handlerOpts = append(handlerOpts, shandler.WithTimeFormat(time.TimeOnly))
	case "RFC3339":
		handlerOpts = append(handlerOpts, shandler.WithTimeFormat(time.RFC3339))
	default:
		handlerOpts = append(handlerOpts, shandler.WithTimeFormat(time.DateTime))
	}

	if cfg.LogJSON {
		handlerOpts = append(handlerOpts, shandler.WithJSON())
	}
	if cfg.LogColor {
		handlerOpts = append(handlerOpts, shandler.WithColor())
	}

	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.LogFile {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	case "off":
		return slog.New(slog.DiscardHandler), closer, nil
	default:
		if err := ensureDir(parentDir(cfg.LogFile)); err != nil {
			return nil, nil, fmt.Errorf("log file: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		out, closer = lj, lj
	}

	handlerOpts = append(handlerOpts, shandler.WithStdOut(out))
	handlerOpts = append(handlerOpts, shandler.WithStdErr(out))

	return slog.New(shandler.NewHandler(handlerOpts...)), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
