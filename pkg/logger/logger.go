// Package logger wires the process-wide slog loggers: an application logger
// and an audit logger that records intent and ledger lifecycle events.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config describes how the application logger should behave.
type Config struct {
	Level       string      `yaml:"level" json:"level"`
	Format      string      `yaml:"format" json:"format"`
	OutputPaths []string    `yaml:"outputs" json:"outputs"`
	Audit       AuditConfig `yaml:"audit" json:"audit"`
}

// AuditConfig controls where audit records go. When disabled the audit
// logger shares the application logger.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	auditLogger   *slog.Logger
	closers       []io.Closer
)

// Init configures the global logger instances. Calling it again replaces the
// previous configuration and closes the files it opened.
func Init(cfg Config) error {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var opened []io.Closer
	handler, err := buildHandler(cfg.Format, cfg.OutputPaths, opts, &opened)
	if err != nil {
		closeAll(opened)
		return err
	}
	app := slog.New(handler)

	audit := app
	if cfg.Audit.Enabled {
		if strings.TrimSpace(cfg.Audit.Path) == "" {
			closeAll(opened)
			return errors.New("audit log path cannot be empty when enabled")
		}
		writer, closer, err := openWriter(cfg.Audit.Path)
		if err != nil {
			closeAll(opened)
			return err
		}
		if closer != nil {
			opened = append(opened, closer)
		}
		audit = slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	mu.Lock()
	previous := closers
	defaultLogger, auditLogger, closers = app, audit, opened
	mu.Unlock()
	closeAll(previous)
	return nil
}

func buildHandler(format string, outputs []string, opts *slog.HandlerOptions, opened *[]io.Closer) (slog.Handler, error) {
	writers := make([]io.Writer, 0, len(outputs))
	for _, out := range outputs {
		writer, closer, err := openWriter(out)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			*opened = append(*opened, closer)
		}
		writers = append(writers, writer)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(writer, opts), nil
	}
	return slog.NewJSONHandler(writer, opts), nil
}

func openWriter(path string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(path) {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	case "discard":
		return io.Discard, nil, nil
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		return file, file, nil
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the structured logger instance.
func L() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l != nil {
		return l
	}
	_ = Init(Config{})
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Audit returns the audit logger.
func Audit() *slog.Logger {
	mu.RLock()
	l := auditLogger
	mu.RUnlock()
	if l == nil {
		return L()
	}
	return l
}

// Named returns a child logger tagged with the component name.
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}

// Sync closes file outputs opened by Init.
func Sync() error {
	mu.Lock()
	opened := closers
	closers = nil
	mu.Unlock()
	return closeAll(opened)
}

func closeAll(list []io.Closer) error {
	var err error
	for _, closer := range list {
		err = errors.Join(err, closer.Close())
	}
	return err
}
