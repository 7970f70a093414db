// Package logging builds the process logger and defines the narrow logger
// contract the dispatch core accepts.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const DefaultLogFilename = "endpoint-proxy.log"

// Logger is the leveled logger accepted by the dispatch core, executors and
// the refresh coordinator. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}

// Nop returns a Logger that drops everything.
func Nop() Logger {
	return nopLogger{}
}

// OrNop returns l, or a no-op logger when l is absent. A typed nil
// *slog.Logger counts as absent.
func OrNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}

	if sl, ok := l.(*slog.Logger); ok && sl == nil {
		return nopLogger{}
	}

	return l
}

// Options controls New.
type Options struct {
	Verbose bool
	Level   string

	// FilePath enables a rotating log file next to stdout output.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
}

// New creates the process logger. Output always goes to stdout; when
// FilePath is set it is also written to a size-rotated file.
func New(opts Options) *slog.Logger {
	var out io.Writer = os.Stdout

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0750); err == nil {
			out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
				Filename:   opts.FilePath,
				MaxSize:    orDefault(opts.MaxSizeMB, 10),
				MaxBackups: orDefault(opts.MaxBackups, 3),
				Compress:   true,
			})
		}
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: ParseLevel(opts.Level, opts.Verbose)})

	return slog.New(handler)
}

// Discard returns a logger that writes nowhere. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel maps a textual level to slog. verbose forces debug.
func ParseLevel(level string, verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}

	switch strings.ToLower(strings.TrimSpace(level)) {
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

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}

	return v
}
