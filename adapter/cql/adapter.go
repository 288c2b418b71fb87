// Package cql defines the connection collaborator consumed by the strand
// request execution engine, and the request/response shapes exchanged with it.
package cql

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/arloliu/strand/types"
)

// Type aliases for convenience - re-export from types package.
type (
	BatchType   = types.BatchType
	Consistency = types.Consistency
)

// Re-export batch type constants for convenience.
const (
	LoggedBatch   = types.LoggedBatch
	UnloggedBatch = types.UnloggedBatch
	CounterBatch  = types.CounterBatch
)

// RequestKind is the protocol operation carried by a Request.
type RequestKind int

const (
	// KindQuery executes a query string.
	KindQuery RequestKind = iota
	// KindExecute executes a prepared statement.
	KindExecute
	// KindBatch executes a batch of queries and prepared statements.
	KindBatch
	// KindPrepare prepares a query string.
	KindPrepare
)

// String returns a readable form of the request kind.
func (k RequestKind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindExecute:
		return "execute"
	case KindBatch:
		return "batch"
	case KindPrepare:
		return "prepare"
	default:
		return "unknown"
	}
}

// BatchEntry is one statement of a batch request.
//
// PreparedID is set for prepared entries; Query is always set so that
// drivers preparing implicitly can use it.
type BatchEntry struct {
	Query      string
	PreparedID []byte
	Values     []any
}

// Request is an opaque protocol request handed to a Connection.
//
// The execution engine only rewrites Consistency on retries and never
// mutates a Request after it was sent; Clone before changing it.
type Request struct {
	Kind       RequestKind
	Query      string
	PreparedID []byte
	Values     []any
	Entries    []BatchEntry
	BatchType  BatchType
	Keyspace   string

	Consistency          Consistency
	SerialConsistency    Consistency
	HasSerialConsistency bool

	PageSize    int
	PagingState []byte
	// Timestamp is the client-side write timestamp in microseconds; 0 means unset.
	Timestamp  int64
	Tracing    bool
	Idempotent bool
}

// Clone returns a shallow copy of the request whose slices can be replaced
// without affecting the original.
func (r *Request) Clone() *Request {
	c := *r
	c.Values = slices.Clone(r.Values)
	c.Entries = slices.Clone(r.Entries)

	return &c
}

// IsPrepared reports whether the request references prepared statement IDs.
func (r *Request) IsPrepared() bool {
	if r.Kind == KindExecute {
		return true
	}
	if r.Kind == KindBatch {
		for _, e := range r.Entries {
			if len(e.PreparedID) > 0 {
				return true
			}
		}
	}

	return false
}

// ResponseKind is the high-level shape of a Response.
type ResponseKind int

const (
	// ResponseVoid carries no result.
	ResponseVoid ResponseKind = iota
	// ResponseRows carries a page of rows.
	ResponseRows
	// ResponseSetKeyspace is returned by USE statements.
	ResponseSetKeyspace
	// ResponsePrepared is returned by prepare requests.
	ResponsePrepared
	// ResponseSchemaChange is returned by DDL statements.
	ResponseSchemaChange
)

// ColumnInfo describes one result column.
type ColumnInfo struct {
	Keyspace string
	Table    string
	Name     string
	TypeInfo any
}

// SchemaChange describes a schema-altering response.
type SchemaChange struct {
	Change   string // CREATED, UPDATED or DROPPED
	Target   string // KEYSPACE, TABLE, TYPE, FUNCTION or AGGREGATE
	Keyspace string
	Name     string
}

// Response is the decoded result of one request.
type Response struct {
	Kind        ResponseKind
	Columns     []ColumnInfo
	Rows        []map[string]any
	PagingState []byte
	Warnings    []string
	TraceID     uuid.UUID

	// Keyspace is set for ResponseSetKeyspace.
	Keyspace string

	// PreparedID and RoutingIndexes are set for ResponsePrepared.
	// RoutingIndexes lists the bind marker positions forming the partition key.
	PreparedID     []byte
	RoutingIndexes []int

	// Schema is set for ResponseSchemaChange.
	Schema *SchemaChange
}

// Connection is an established, keyspace-set transport to one host.
//
// Send must be safe for concurrent use; errors must be *types.RequestError
// values so the engine can classify them.
type Connection interface {
	// Send executes a request and waits for its response or ctx cancellation.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Host returns the host this connection is bound to.
	Host() *types.Host

	// Closed reports whether the connection can no longer be used.
	Closed() bool

	// Close releases the connection.
	Close() error
}

// Pool hands out connections to one host.
type Pool interface {
	// Borrow returns a usable connection. Failures are reported as
	// *types.RequestError of kind KindBusyPool or KindUnsupportedProtocol.
	Borrow(ctx context.Context) (Connection, error)

	// Remove discards a connection that failed at the transport level.
	Remove(conn Connection)

	// Close closes every connection of the pool.
	Close()
}

// KeyspaceSetter is implemented by pools that can switch the keyspace of
// their connections after a USE statement.
type KeyspaceSetter interface {
	SetKeyspace(keyspace string)
}

// PoolFactory creates the pool of a host.
type PoolFactory func(host *types.Host) (Pool, error)
