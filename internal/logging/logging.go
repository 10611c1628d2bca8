// Package logging opens the run log and builds the logr.Logger handed to the
// dispatcher and monitor. Lines go to the log file and to the console.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	crzap "sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Config describes where run logs go
type Config struct {
	// Path of the append-only run log; empty logs to Console only
	Path string
	// Console receives a copy of every line; defaults to stderr
	Console io.Writer
	// Verbosity enables V(n) lines up to n
	Verbosity int
	// Development switches to the human-readable encoder
	Development bool
}

// Handle owns the log file for the lifetime of one run
type Handle struct {
	logger logr.Logger
	raw    *zap.Logger
	file   *os.File

	once sync.Once
	err  error
}

// Open creates the log file (and its directory) and builds the logger
func Open(cfg Config) (*Handle, error) {
	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	h := &Handle{}
	out := console
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		h.file = f
		out = io.MultiWriter(f, console)
	}

	h.raw = crzap.NewRaw(
		crzap.WriteTo(out),
		crzap.UseDevMode(cfg.Development),
		crzap.Level(zap.NewAtomicLevelAt(zapcore.Level(-cfg.Verbosity))),
	)
	h.logger = zapr.NewLogger(h.raw)
	return h, nil
}

// Logger returns the run logger
func (h *Handle) Logger() logr.Logger {
	return h.logger
}

// Path returns the log file path, or "" when logging to the console only
func (h *Handle) Path() string {
	if h.file == nil {
		return ""
	}
	return h.file.Name()
}

// Close flushes buffered lines and closes the file. It is safe to call more
// than once.
func (h *Handle) Close() error {
	h.once.Do(func() {
		// Sync on a terminal or pipe returns EINVAL and is not worth reporting.
		_ = h.raw.Sync()
		if h.file != nil {
			h.err = errors.Join(h.file.Sync(), h.file.Close())
		}
	})
	return h.err
}
