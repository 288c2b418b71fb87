package types

// Logger defines the structured logging interface used throughout strand.
//
// Methods take a message and alternating key/value pairs. The method set is
// compatible with *zap.SugaredLogger's "w" variants adapted to plain names,
// and contrib/logging/kit adapts a go-kit logger to it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Fatal(msg string, keysAndValues ...any)
}
