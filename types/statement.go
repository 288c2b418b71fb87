package types

import "time"

// Statement is the request description consumed by the execution engine.
//
// Statements are created by the caller and must not be mutated while a
// send is in flight.
type Statement interface {
	// Keyspace returns the keyspace the statement targets, or "" for the
	// session keyspace.
	Keyspace() string

	// RoutingKey returns the serialized partition key, or nil when unknown.
	RoutingKey() []byte

	// Idempotence returns the idempotence flag of the statement.
	Idempotence() Idempotence

	// Consistency returns the statement consistency level if one was set.
	Consistency() (Consistency, bool)

	// SerialConsistency returns the statement serial consistency if one was set.
	SerialConsistency() (Consistency, bool)

	// Host returns the host the statement is pinned to, or nil.
	Host() *Host

	// RetryPolicy returns a statement-level retry policy override, or nil.
	RetryPolicy() RetryPolicy

	// ReadTimeout returns the per-attempt timeout override, or 0 for the
	// session default.
	ReadTimeout() time.Duration
}

// TargetedStatement is a Statement that names a host to try first.
//
// Unlike a pinned host the preferred host is only a hint: the rest of the
// query plan is still available for retries.
type TargetedStatement interface {
	Statement

	// PreferredHost returns the host to try first, or nil.
	PreferredHost() *Host
}
