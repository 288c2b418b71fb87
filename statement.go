package strand

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/strand/adapter/cql"
	"github.com/arloliu/strand/types"
)

// StatementOptions holds the per-statement settings shared by every
// statement kind. The zero value defers everything to the session.
type StatementOptions struct {
	keyspace       string
	routingKey     []byte
	idempotence    Idempotence
	consistency    Consistency
	hasConsistency bool
	serial         Consistency
	hasSerial      bool
	host           *Host
	preferredHost  *Host
	retryPolicy    RetryPolicy
	readTimeout    time.Duration
	pageSize       int
	pagingState    []byte
	timestamp      int64
	tracing        bool
	replay         bool
}

// StatementOption configures a statement.
type StatementOption func(*StatementOptions)

// StmtKeyspace sets the keyspace the statement targets.
func StmtKeyspace(keyspace string) StatementOption {
	return func(o *StatementOptions) {
		o.keyspace = keyspace
	}
}

// StmtRoutingKey sets the serialized partition key used by token-aware routing.
func StmtRoutingKey(key []byte) StatementOption {
	return func(o *StatementOptions) {
		o.routingKey = key
	}
}

// StmtIdempotent marks the statement as idempotent or not.
//
// Only idempotent statements are executed speculatively and retried after
// client-side timeouts or transport failures.
//
// Parameters:
//   - idempotent: Whether applying the statement twice is safe
//
// Returns:
//   - StatementOption: Statement option
func StmtIdempotent(idempotent bool) StatementOption {
	return func(o *StatementOptions) {
		if idempotent {
			o.idempotence = types.Idempotent
		} else {
			o.idempotence = types.NotIdempotent
		}
	}
}

// StmtConsistency sets the consistency level of the statement.
func StmtConsistency(cl Consistency) StatementOption {
	return func(o *StatementOptions) {
		o.consistency = cl
		o.hasConsistency = true
	}
}

// StmtSerialConsistency sets the serial consistency of conditional statements.
func StmtSerialConsistency(cl Consistency) StatementOption {
	return func(o *StatementOptions) {
		o.serial = cl
		o.hasSerial = true
	}
}

// StmtHost pins the statement to one host.
//
// A pinned statement never fails over: the query plan contains that host only.
func StmtHost(host *Host) StatementOption {
	return func(o *StatementOptions) {
		o.host = host
	}
}

// StmtPreferredHost names a host to try first.
//
// Unlike StmtHost the rest of the query plan stays available. It is honored
// by policy.DefaultLoadBalancingPolicy.
func StmtPreferredHost(host *Host) StatementOption {
	return func(o *StatementOptions) {
		o.preferredHost = host
	}
}

// StmtRetryPolicy overrides the session retry policy for this statement.
func StmtRetryPolicy(p RetryPolicy) StatementOption {
	return func(o *StatementOptions) {
		o.retryPolicy = p
	}
}

// StmtReadTimeout overrides the per-attempt timeout for this statement.
func StmtReadTimeout(d time.Duration) StatementOption {
	return func(o *StatementOptions) {
		o.readTimeout = d
	}
}

// StmtPageSize sets the number of rows fetched per page.
func StmtPageSize(n int) StatementOption {
	return func(o *StatementOptions) {
		o.pageSize = n
	}
}

// StmtPagingState resumes paging from a state returned by RowSet.PagingState.
func StmtPagingState(state []byte) StatementOption {
	return func(o *StatementOptions) {
		o.pagingState = state
	}
}

// StmtTimestamp sets the client-side write timestamp.
func StmtTimestamp(ts time.Time) StatementOption {
	return func(o *StatementOptions) {
		o.timestamp = ts.UnixMicro()
	}
}

// StmtTracing enables request tracing.
func StmtTracing(enabled bool) StatementOption {
	return func(o *StatementOptions) {
		o.tracing = enabled
	}
}

// StmtReplayOnFailure hands the statement to the session replayer when it
// fails with no host available. Only idempotent statements are replayed,
// since a host may have applied the write before its connection failed.
func StmtReplayOnFailure(enabled bool) StatementOption {
	return func(o *StatementOptions) {
		o.replay = enabled
	}
}

func newStatementOptions(opts []StatementOption) StatementOptions {
	var o StatementOptions
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// Keyspace returns the keyspace set on the statement, or "".
func (o *StatementOptions) Keyspace() string {
	return o.keyspace
}

// RoutingKey returns the explicit routing key, or nil.
func (o *StatementOptions) RoutingKey() []byte {
	return o.routingKey
}

// Idempotence returns the idempotence flag of the statement.
func (o *StatementOptions) Idempotence() Idempotence {
	return o.idempotence
}

// Consistency returns the statement consistency if one was set.
func (o *StatementOptions) Consistency() (Consistency, bool) {
	return o.consistency, o.hasConsistency
}

// SerialConsistency returns the statement serial consistency if one was set.
func (o *StatementOptions) SerialConsistency() (Consistency, bool) {
	return o.serial, o.hasSerial
}

// Host returns the pinned host, or nil.
func (o *StatementOptions) Host() *Host {
	return o.host
}

// PreferredHost returns the host to try first, or nil.
func (o *StatementOptions) PreferredHost() *Host {
	return o.preferredHost
}

// RetryPolicy returns the statement retry policy, or nil.
func (o *StatementOptions) RetryPolicy() RetryPolicy {
	return o.retryPolicy
}

// ReadTimeout returns the per-attempt timeout override, or 0.
func (o *StatementOptions) ReadTimeout() time.Duration {
	return o.readTimeout
}

// requestBuilder is implemented by the statements the session can send.
type requestBuilder interface {
	TargetedStatement

	buildRequest() *cql.Request
	replayOnFailure() bool
}

func (o *StatementOptions) replayOnFailure() bool {
	return o.replay
}

func (o *StatementOptions) applyTo(req *cql.Request) {
	req.PageSize = o.pageSize
	req.PagingState = o.pagingState
	req.Timestamp = o.timestamp
	req.Tracing = o.tracing
	req.Keyspace = o.keyspace
}

// SimpleStatement is a query string sent as is, with optional positional values.
type SimpleStatement struct {
	StatementOptions

	query  string
	values []any
}

// Compile-time assertion that SimpleStatement implements TargetedStatement.
var _ TargetedStatement = (*SimpleStatement)(nil)

// NewSimpleStatement creates a statement from a query string.
//
// Parameters:
//   - query: CQL query with optional '?' bind markers
//   - values: Positional values for the bind markers
//   - opts: Statement options
//
// Returns:
//   - *SimpleStatement: A new statement
func NewSimpleStatement(query string, values []any, opts ...StatementOption) *SimpleStatement {
	return &SimpleStatement{
		StatementOptions: newStatementOptions(opts),
		query:            query,
		values:           values,
	}
}

// Query returns the query string.
func (s *SimpleStatement) Query() string {
	return s.query
}

// Values returns the bound values.
func (s *SimpleStatement) Values() []any {
	return s.values
}

func (s *SimpleStatement) buildRequest() *cql.Request {
	req := &cql.Request{Kind: cql.KindQuery, Query: s.query, Values: s.values}
	s.applyTo(req)

	return req
}

// PreparedStatement is a query prepared on the cluster.
//
// It is safe for concurrent use once returned by Session.Prepare; bind it
// to values with Bind.
type PreparedStatement struct {
	id             []byte
	query          string
	keyspace       string
	routingIndexes []int
	defaults       []StatementOption
}

// ID returns the prepared statement ID.
func (p *PreparedStatement) ID() []byte {
	return p.id
}

// Query returns the prepared query string.
func (p *PreparedStatement) Query() string {
	return p.query
}

// Keyspace returns the keyspace the statement was prepared in.
func (p *PreparedStatement) Keyspace() string {
	return p.keyspace
}

// RoutingIndexes returns the bind marker positions forming the partition key.
func (p *PreparedStatement) RoutingIndexes() []int {
	return p.routingIndexes
}

// Bind creates a bound statement from positional values.
//
// Parameters:
//   - values: Positional values, one per bind marker
//
// Returns:
//   - *BoundStatement: A statement ready to execute
func (p *PreparedStatement) Bind(values ...any) *BoundStatement {
	return p.BindWith(values)
}

// BindWith creates a bound statement with statement options.
//
// Options given here override the defaults passed to Session.Prepare.
func (p *PreparedStatement) BindWith(values []any, opts ...StatementOption) *BoundStatement {
	all := make([]StatementOption, 0, len(p.defaults)+len(opts))
	all = append(all, p.defaults...)
	all = append(all, opts...)

	return &BoundStatement{
		StatementOptions: newStatementOptions(all),
		prepared:         p,
		values:           values,
	}
}

// BoundStatement is a prepared statement bound to values.
type BoundStatement struct {
	StatementOptions

	prepared *PreparedStatement
	values   []any
}

// Compile-time assertion that BoundStatement implements TargetedStatement.
var _ TargetedStatement = (*BoundStatement)(nil)

// Prepared returns the statement this one was bound from.
func (b *BoundStatement) Prepared() *PreparedStatement {
	return b.prepared
}

// Values returns the bound values.
func (b *BoundStatement) Values() []any {
	return b.values
}

// Keyspace returns the explicit keyspace, or the one the statement was
// prepared in.
func (b *BoundStatement) Keyspace() string {
	if b.keyspace != "" {
		return b.keyspace
	}

	return b.prepared.keyspace
}

// RoutingKey returns the explicit routing key or one computed from the
// values at the prepared routing indexes. It returns nil when a component
// cannot be serialized.
func (b *BoundStatement) RoutingKey() []byte {
	if b.routingKey != nil {
		return b.routingKey
	}
	idx := b.prepared.routingIndexes
	if len(idx) == 0 {
		return nil
	}

	parts := make([][]byte, 0, len(idx))
	for _, i := range idx {
		if i < 0 || i >= len(b.values) {
			return nil
		}
		part, err := encodeRoutingComponent(b.values[i])
		if err != nil {
			return nil
		}
		parts = append(parts, part)
	}

	return composeRoutingKey(parts)
}

func (b *BoundStatement) buildRequest() *cql.Request {
	req := &cql.Request{
		Kind:       cql.KindExecute,
		Query:      b.prepared.query,
		PreparedID: b.prepared.id,
		Values:     b.values,
	}
	b.applyTo(req)
	req.Keyspace = b.Keyspace()

	return req
}

type batchEntry struct {
	query    string
	prepared *PreparedStatement
	values   []any
	stmt     Statement
}

// BatchStatement groups simple and bound statements into one request.
type BatchStatement struct {
	StatementOptions

	batchType BatchType
	entries   []batchEntry
}

// Compile-time assertion that BatchStatement implements TargetedStatement.
var _ TargetedStatement = (*BatchStatement)(nil)

// NewBatchStatement creates an empty batch.
//
// Parameters:
//   - batchType: LoggedBatch, UnloggedBatch or CounterBatch
//   - opts: Statement options applying to the whole batch
//
// Returns:
//   - *BatchStatement: A new batch
func NewBatchStatement(batchType BatchType, opts ...StatementOption) *BatchStatement {
	return &BatchStatement{
		StatementOptions: newStatementOptions(opts),
		batchType:        batchType,
	}
}

// Add appends a query string to the batch.
func (b *BatchStatement) Add(query string, values ...any) *BatchStatement {
	b.entries = append(b.entries, batchEntry{query: query, values: values})

	return b
}

// AddBound appends a bound statement to the batch.
func (b *BatchStatement) AddBound(stmt *BoundStatement) *BatchStatement {
	b.entries = append(b.entries, batchEntry{
		query:    stmt.prepared.query,
		prepared: stmt.prepared,
		values:   stmt.values,
		stmt:     stmt,
	})

	return b
}

// Size returns the number of statements in the batch.
func (b *BatchStatement) Size() int {
	return len(b.entries)
}

// Type returns the batch type.
func (b *BatchStatement) Type() BatchType {
	return b.batchType
}

// Keyspace returns the explicit keyspace, or the keyspace of the first
// bound statement.
func (b *BatchStatement) Keyspace() string {
	if b.keyspace != "" {
		return b.keyspace
	}
	for _, e := range b.entries {
		if e.stmt != nil {
			if ks := e.stmt.Keyspace(); ks != "" {
				return ks
			}
		}
	}

	return ""
}

// RoutingKey returns the explicit routing key, or the first routing key of
// a bound statement in the batch.
func (b *BatchStatement) RoutingKey() []byte {
	if b.routingKey != nil {
		return b.routingKey
	}
	for _, e := range b.entries {
		if e.stmt != nil {
			if key := e.stmt.RoutingKey(); key != nil {
				return key
			}
		}
	}

	return nil
}

func (b *BatchStatement) buildRequest() *cql.Request {
	req := &cql.Request{
		Kind:      cql.KindBatch,
		BatchType: b.batchType,
		Entries:   make([]cql.BatchEntry, 0, len(b.entries)),
	}
	for _, e := range b.entries {
		entry := cql.BatchEntry{Query: e.query, Values: e.values}
		if e.prepared != nil {
			entry.PreparedID = e.prepared.id
		}
		req.Entries = append(req.Entries, entry)
	}
	b.applyTo(req)
	req.Keyspace = b.Keyspace()

	return req
}

// composeRoutingKey joins partition key components. A single component is
// used as is; several are each prefixed by a 2-byte length and followed by
// a zero byte.
func composeRoutingKey(parts [][]byte) []byte {
	if len(parts) == 1 {
		return parts[0]
	}

	size := 0
	for _, p := range parts {
		size += 2 + len(p) + 1
	}
	out := make([]byte, 0, size)
	for _, p := range parts {
		out = binary.BigEndian.AppendUint16(out, uint16(len(p)))
		out = append(out, p...)
		out = append(out, 0)
	}

	return out
}

// encodeRoutingComponent serializes a partition key value the way the
// server does for the common key types.
func encodeRoutingComponent(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	case int:
		return binary.BigEndian.AppendUint64(nil, uint64(x)), nil
	case int64:
		return binary.BigEndian.AppendUint64(nil, uint64(x)), nil
	case int32:
		return binary.BigEndian.AppendUint32(nil, uint32(x)), nil
	case int16:
		return binary.BigEndian.AppendUint16(nil, uint16(x)), nil
	case int8:
		return []byte{byte(x)}, nil
	case float64:
		return binary.BigEndian.AppendUint64(nil, math.Float64bits(x)), nil
	case float32:
		return binary.BigEndian.AppendUint32(nil, math.Float32bits(x)), nil
	case bool:
		if x {
			return []byte{1}, nil
		}

		return []byte{0}, nil
	case uuid.UUID:
		return x[:], nil
	case time.Time:
		return binary.BigEndian.AppendUint64(nil, uint64(x.UnixMilli())), nil
	default:
		return nil, fmt.Errorf("strand: cannot serialize routing key component of type %T", v)
	}
}
