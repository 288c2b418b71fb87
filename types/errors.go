package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrNoHostAvailable indicates that the query plan was exhausted across
	// every execution of a request. The concrete error is a *NoHostAvailableError.
	ErrNoHostAvailable = errors.New("strand: no host available")

	// ErrSessionClosed indicates an operation was attempted on a closed session.
	ErrSessionClosed = errors.New("strand: session is closed")

	// ErrNilStatement indicates that a nil statement was sent.
	ErrNilStatement = errors.New("strand: statement cannot be nil")

	// ErrNilMetadata indicates that a session was built without a topology collaborator.
	ErrNilMetadata = errors.New("strand: metadata cannot be nil")

	// ErrNilPoolFactory indicates that a session was built without a pool factory.
	ErrNilPoolFactory = errors.New("strand: pool factory cannot be nil")

	// ErrUnpreparedNotPrepared indicates that the server reported an unknown
	// prepared statement for a request that was never prepared.
	ErrUnpreparedNotPrepared = errors.New("strand: unprepared error for a non-prepared request")

	// ErrSchemaAgreementTimeout indicates that the cluster did not reach schema
	// agreement within the configured wait.
	ErrSchemaAgreementTimeout = errors.New("strand: schema agreement timed out")

	// ErrUnexpectedResponse indicates a response whose shape does not match the request.
	ErrUnexpectedResponse = errors.New("strand: unexpected response")

	// ErrReplayQueueFull indicates that a bounded replay queue rejected a payload.
	ErrReplayQueueFull = errors.New("strand: replay queue is full")

	// ErrReplayerClosed indicates that a payload was enqueued on a closed replayer.
	ErrReplayerClosed = errors.New("strand: replayer is closed")

	// ErrNotReplayable indicates a statement that cannot be captured for replay.
	ErrNotReplayable = errors.New("strand: statement is not replayable")
)

// ErrorKind classifies a failed request exchange.
//
// The set of kinds is closed; the request execution matches it exhaustively
// to decide which retry policy method to consult.
type ErrorKind int

const (
	// KindSocket is a transport failure on an established connection.
	KindSocket ErrorKind = iota
	// KindOperationTimeout is a client-side timeout waiting for a response.
	KindOperationTimeout
	// KindUnavailable means the coordinator knew too few replicas were alive.
	KindUnavailable
	// KindReadTimeout means replicas failed to answer a read in time.
	KindReadTimeout
	// KindWriteTimeout means replicas failed to acknowledge a write in time.
	KindWriteTimeout
	// KindOverloaded means the coordinator is overloaded.
	KindOverloaded
	// KindIsBootstrapping means the coordinator is still bootstrapping.
	KindIsBootstrapping
	// KindTruncate means a truncate operation failed on the server.
	KindTruncate
	// KindUnprepared means the server does not know the prepared statement ID.
	KindUnprepared
	// KindBusyPool means no connection could be borrowed from the host pool.
	KindBusyPool
	// KindUnsupportedProtocol means the host does not support the protocol version.
	KindUnsupportedProtocol
	// KindProtocol means the response was malformed.
	KindProtocol
	// KindServer is an internal server error.
	KindServer
	// KindInvalid covers syntax, invalid query and authorization errors.
	KindInvalid
)

var errorKindNames = map[ErrorKind]string{
	KindSocket:              "socket",
	KindOperationTimeout:    "operation_timeout",
	KindUnavailable:         "unavailable",
	KindReadTimeout:         "read_timeout",
	KindWriteTimeout:        "write_timeout",
	KindOverloaded:          "overloaded",
	KindIsBootstrapping:     "is_bootstrapping",
	KindTruncate:            "truncate",
	KindUnprepared:          "unprepared",
	KindBusyPool:            "busy_pool",
	KindUnsupportedProtocol: "unsupported_protocol",
	KindProtocol:            "protocol",
	KindServer:              "server",
	KindInvalid:             "invalid",
}

// String returns the metric-friendly name of the kind.
func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}

	return "unknown"
}

// RequestError is the classified failure of one request exchange.
//
// Only the fields relevant to Kind are populated:
//   - Unavailable: Consistency, Required, Alive
//   - ReadTimeout: Consistency, Required, Received, DataPresent
//   - WriteTimeout: Consistency, Required, Received, WriteType
//   - Unprepared: PreparedID
type RequestError struct {
	Kind        ErrorKind
	Message     string
	Consistency Consistency
	Required    int
	Received    int
	Alive       int
	DataPresent bool
	WriteType   WriteType
	PreparedID  []byte

	// Cause is the underlying driver or transport error, if any.
	Cause error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	var b strings.Builder
	b.WriteString("strand: ")
	b.WriteString(e.Kind.String())
	switch e.Kind {
	case KindUnavailable:
		fmt.Fprintf(&b, " (cl=%s required=%d alive=%d)", e.Consistency, e.Required, e.Alive)
	case KindReadTimeout:
		fmt.Fprintf(&b, " (cl=%s required=%d received=%d data_present=%t)",
			e.Consistency, e.Required, e.Received, e.DataPresent)
	case KindWriteTimeout:
		fmt.Fprintf(&b, " (cl=%s required=%d received=%d write_type=%s)",
			e.Consistency, e.Required, e.Received, e.WriteType)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *RequestError) Unwrap() error {
	return e.Cause
}

// IsServerReported reports whether the error was produced by a coordinator,
// as opposed to the client or the transport.
func (e *RequestError) IsServerReported() bool {
	switch e.Kind {
	case KindSocket, KindOperationTimeout, KindBusyPool, KindUnsupportedProtocol:
		return false
	default:
		return true
	}
}

// NewSocketError creates a KindSocket error wrapping a transport failure.
func NewSocketError(cause error) *RequestError {
	return &RequestError{Kind: KindSocket, Cause: cause}
}

// NewOperationTimeoutError creates a KindOperationTimeout error.
func NewOperationTimeoutError(cause error) *RequestError {
	return &RequestError{Kind: KindOperationTimeout, Cause: cause}
}

// NewUnavailableError creates a KindUnavailable error.
func NewUnavailableError(cl Consistency, required, alive int) *RequestError {
	return &RequestError{Kind: KindUnavailable, Consistency: cl, Required: required, Alive: alive}
}

// NewReadTimeoutError creates a KindReadTimeout error.
func NewReadTimeoutError(cl Consistency, required, received int, dataPresent bool) *RequestError {
	return &RequestError{
		Kind:        KindReadTimeout,
		Consistency: cl,
		Required:    required,
		Received:    received,
		DataPresent: dataPresent,
	}
}

// NewWriteTimeoutError creates a KindWriteTimeout error.
func NewWriteTimeoutError(cl Consistency, writeType WriteType, required, received int) *RequestError {
	return &RequestError{
		Kind:        KindWriteTimeout,
		Consistency: cl,
		Required:    required,
		Received:    received,
		WriteType:   writeType,
	}
}

// NewUnpreparedError creates a KindUnprepared error for the given statement ID.
func NewUnpreparedError(id []byte) *RequestError {
	return &RequestError{Kind: KindUnprepared, PreparedID: id}
}

// NewRequestError creates an error of any kind with a message.
func NewRequestError(kind ErrorKind, message string) *RequestError {
	return &RequestError{Kind: kind, Message: message}
}

// NoHostAvailableError is returned when every host of the query plan was
// tried or skipped across all executions of a request.
//
// TriedHosts maps host address to the last error observed on that host; a
// nil value means the host was considered but never failed (for example it
// was ignored by the load balancing policy or marked down).
//
// Replayed is set when the session replayer accepted the write for later
// execution.
type NoHostAvailableError struct {
	TriedHosts map[string]error
	Replayed   bool
}

// Error implements the error interface.
func (e *NoHostAvailableError) Error() string {
	if len(e.TriedHosts) == 0 {
		return "strand: no host available (no host was tried)"
	}

	addrs := make([]string, 0, len(e.TriedHosts))
	for addr := range e.TriedHosts {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	var b strings.Builder
	b.WriteString("strand: no host available, tried: ")
	for i, addr := range addrs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(addr)
		if err := e.TriedHosts[addr]; err != nil {
			b.WriteString(" (")
			b.WriteString(err.Error())
			b.WriteString(")")
		}
	}

	return b.String()
}

// Errors returns a copy of the tried-hosts map.
func (e *NoHostAvailableError) Errors() map[string]error {
	out := make(map[string]error, len(e.TriedHosts))
	for k, v := range e.TriedHosts {
		out[k] = v
	}

	return out
}

// Unwrap returns ErrNoHostAvailable followed by every recorded host error.
func (e *NoHostAvailableError) Unwrap() []error {
	errs := []error{ErrNoHostAvailable}
	for _, err := range e.TriedHosts {
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}
