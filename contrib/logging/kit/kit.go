// Package kit adapts a github.com/go-kit/log logger to strand's Logger
// interface.
//
// Usage:
//
//	base := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
//	logger := kit.New(base, kit.WithLevel(level.AllowInfo()))
//	session, _ := strand.NewSession(meta, pools, strand.WithLogger(logger))
package kit

import (
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/arloliu/strand/types"
)

// Option configures a Logger.
type Option func(*Logger)

// WithLevel filters records below the allowed level.
//
// Parameters:
//   - allowed: A go-kit level option such as level.AllowWarn()
//
// Returns:
//   - Option: A configuration option
func WithLevel(allowed level.Option) Option {
	return func(l *Logger) {
		l.filter = allowed
	}
}

// WithExit sets the function called after a Fatal record. Default: os.Exit.
func WithExit(exit func(code int)) Option {
	return func(l *Logger) {
		l.exit = exit
	}
}

// Logger writes strand log records as go-kit key/value records with a
// "msg" key and a "level" key.
type Logger struct {
	base   log.Logger
	filter level.Option
	exit   func(code int)
}

var _ types.Logger = (*Logger)(nil)

// New wraps base.
//
// Parameters:
//   - base: The go-kit logger receiving records
//   - opts: Configuration options
//
// Returns:
//   - *Logger: A logger implementing types.Logger
func New(base log.Logger, opts ...Option) *Logger {
	l := &Logger{exit: os.Exit}
	for _, opt := range opts {
		opt(l)
	}
	if l.filter != nil {
		base = level.NewFilter(base, l.filter)
	}
	l.base = base

	return l
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, keysAndValues ...any) {
	l.log(level.Debug(l.base), msg, keysAndValues)
}

// Info logs at info level.
func (l *Logger) Info(msg string, keysAndValues ...any) {
	l.log(level.Info(l.base), msg, keysAndValues)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, keysAndValues ...any) {
	l.log(level.Warn(l.base), msg, keysAndValues)
}

// Error logs at error level.
func (l *Logger) Error(msg string, keysAndValues ...any) {
	l.log(level.Error(l.base), msg, keysAndValues)
}

// Fatal logs at error level and exits with status 1.
func (l *Logger) Fatal(msg string, keysAndValues ...any) {
	l.log(level.Error(l.base), msg, keysAndValues)
	l.exit(1)
}

func (l *Logger) log(logger log.Logger, msg string, keysAndValues []any) {
	kvs := make([]any, 0, len(keysAndValues)+2)
	kvs = append(kvs, "msg", msg)
	kvs = append(kvs, keysAndValues...)
	if len(keysAndValues)%2 != 0 {
		kvs = append(kvs, log.ErrMissingValue)
	}
	_ = logger.Log(kvs...)
}
