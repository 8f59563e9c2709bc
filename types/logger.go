// Package types holds small interfaces shared across packages that would
// otherwise need to import one another directly.
package types

// Logger is the structured logging facade accepted by session.Client,
// runtime.DBHost, and the compiler CLI. It mirrors the subset of the
// teacher's StandardLogger/StructuredLogger split that this module actually
// calls: leveled messages plus key/value pairs, nothing more.
type Logger interface {
	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)

	// Sync flushes any buffered log entries. Implementations backed by an
	// unbuffered writer may make this a no-op.
	Sync() error
}
