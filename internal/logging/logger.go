package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger so binaries share one construction path.
type Logger struct {
	*slog.Logger
}

type Options struct {
	Level   string
	Service string
	Output  io.Writer
}

// New creates a JSON logger at the given level, tagged with the service name.
func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	var level slog.Level
	switch opts.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler = slog.NewJSONHandler(opts.Output, &slog.HandlerOptions{Level: level})
	if opts.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", opts.Service)})
	}

	return &Logger{Logger: slog.New(handler)}
}

// Default returns an info level logger writing to stdout.
func Default() *Logger {
	return New(Options{Level: "info"})
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return New(Options{Output: io.Discard})
}

// With returns a child logger carrying the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Fatal logs at error level and exits with status 1.
func (l *Logger) Fatal(msg string, args ...any) {
	l.Error(msg, args...)
	os.Exit(1)
}
