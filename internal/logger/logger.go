// Package logger provides structured logging carried through context,
// backed by log/slog with multi-destination fan-out.
package logger

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// Logger is the logging interface used across the application.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a logger with the given attributes attached to
	// every subsequent record.
	With(args ...any) Logger
}

var defaultLogger = NewLogger()

type appLogger struct {
	logger *slog.Logger
}

var _ Logger = (*appLogger)(nil)

// Option configures the logger.
type Option func(*options)

type options struct {
	debug  bool
	quiet  bool
	format string
	writer io.Writer
}

// WithDebug enables debug level logging.
func WithDebug() Option {
	return func(o *options) { o.debug = true }
}

// WithQuiet suppresses the stderr destination.
func WithQuiet() Option {
	return func(o *options) { o.quiet = true }
}

// WithFormat sets the output format, "text" (default) or "json".
func WithFormat(format string) Option {
	return func(o *options) { o.format = format }
}

// WithWriter adds an extra destination receiving JSON records, typically
// a log file.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// NewLogger creates a new Logger with the given options.
func NewLogger(opts ...Option) Logger {
	opt := &options{format: "text"}
	for _, fn := range opts {
		fn(opt)
	}

	level := slog.LevelInfo
	if opt.debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if !opt.quiet {
		if opt.format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, handlerOpts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, handlerOpts))
		}
	}
	if opt.writer != nil {
		handlers = append(handlers, slog.NewJSONHandler(opt.writer, handlerOpts))
	}

	return &appLogger{logger: slog.New(slogmulti.Fanout(handlers...))}
}

func (a *appLogger) Debug(msg string, args ...any) { a.logger.Debug(msg, args...) }
func (a *appLogger) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *appLogger) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *appLogger) Error(msg string, args ...any) { a.logger.Error(msg, args...) }

func (a *appLogger) With(args ...any) Logger {
	return &appLogger{logger: a.logger.With(args...)}
}
