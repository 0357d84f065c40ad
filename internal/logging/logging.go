// Package logging builds the component loggers used across tasksync.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tasksync/tasksync/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func rotating(cfg config.LogConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
}

// Output returns the destination for component logs: stderr, plus a
// rotating file when cfg.File is set. The closer releases the file and is
// a no-op when no file is configured.
func Output(cfg config.LogConfig) (io.Writer, io.Closer) {
	if cfg.File == "" {
		return os.Stderr, nopCloser{}
	}
	file := rotating(cfg)
	return io.MultiWriter(os.Stderr, file), file
}

// FileOnly is like Output but never writes to stderr. One-shot commands use
// it so component chatter stays out of the terminal.
func FileOnly(cfg config.LogConfig) (io.Writer, io.Closer) {
	if cfg.File == "" {
		return io.Discard, nopCloser{}
	}
	file := rotating(cfg)
	return file, file
}

// New returns a logger with a bracketed component prefix, e.g. "[sync] ".
func New(w io.Writer, component string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.New(w, "["+component+"] ", log.LstdFlags)
}
