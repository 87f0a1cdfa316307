package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ErrorLogFile is the name of the rotating error log under the log directory.
const ErrorLogFile = "workflow-repository.log"

// NewLogger creates a configured slog.Logger.
//
// level: slog level (DEBUG, INFO, WARN, ERROR)
// format: "text" (human-readable), "json" (structured) or "pretty"
// (colored when stderr is a terminal)
//
// Output goes to stderr by default (stdout is reserved for program output).
func NewLogger(level slog.Level, format string) *slog.Logger {
	return NewLoggerWithWriter(level, format, os.Stderr)
}

// NewLoggerWithWriter creates a logger writing to the given writer.
func NewLoggerWithWriter(level slog.Level, format string, w io.Writer) *slog.Logger {
	return slog.New(newHandler(level, format, w))
}

func newHandler(level slog.Level, format string, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(format) {
	case "json":
		return slog.NewJSONHandler(w, opts)
	case "pretty":
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
			NoColor:    !isTerminal(w),
		})
	default:
		return slog.NewTextHandler(w, opts)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// Options configures a service logger.
type Options struct {
	Level  slog.Level
	Format string
	Output io.Writer // console output, stderr when nil

	// Dir, when set, receives a rotating log file holding records at
	// ERROR and above.
	Dir        string
	MaxSizeMB  int // default 100
	MaxBackups int // default 20
}

// New creates a logger writing to the console and, when opts.Dir is set,
// to a rotating error log. The returned closer releases the log file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	console := newHandler(opts.Level, opts.Format, out)
	if opts.Dir == "" {
		return slog.New(console), nopCloser{}, nil
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, nil, err
	}
	size, backups := opts.MaxSizeMB, opts.MaxBackups
	if size <= 0 {
		size = 100
	}
	if backups <= 0 {
		backups = 20
	}
	file := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, ErrorLogFile),
		MaxSize:    size,
		MaxBackups: backups,
	}
	errorLog := slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(&teeHandler{handlers: []slog.Handler{console, errorLog}}), file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// teeHandler sends each record to every handler enabled for its level.
type teeHandler struct {
	handlers []slog.Handler
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, r.Level) {
			errs = append(errs, hh.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		out[i] = hh.WithAttrs(attrs)
	}
	return &teeHandler{handlers: out}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		out[i] = hh.WithGroup(name)
	}
	return &teeHandler{handlers: out}
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
