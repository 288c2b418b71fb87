// Package v1 provides a connection adapter for gocql v1.x (github.com/gocql/gocql).
package v1

import (
	"context"
	"net"
	"time"

	"github.com/gocql/gocql"

	"github.com/arloliu/strand/adapter/cql"
	"github.com/arloliu/strand/types"
)

// Option configures the gocql clusters created by NewPoolFactory.
type Option func(*config)

type config struct {
	keyspace       string
	timeout        time.Duration
	connectTimeout time.Duration
	protoVersion   int
	numConns       int
	configure      func(*gocql.ClusterConfig)
}

// WithKeyspace sets the initial keyspace of every connection.
//
// Parameters:
//   - keyspace: Keyspace name
//
// Returns:
//   - Option: Configuration option
func WithKeyspace(keyspace string) Option {
	return func(c *config) {
		c.keyspace = keyspace
	}
}

// WithTimeout sets the gocql request timeout.
//
// The engine applies its own per-attempt read timeout through the context;
// this only bounds requests sent without a deadline.
//
// Parameters:
//   - d: Timeout duration
//
// Returns:
//   - Option: Configuration option
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithConnectTimeout sets the gocql connect timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *config) {
		c.connectTimeout = d
	}
}

// WithProtoVersion pins the native protocol version.
func WithProtoVersion(v int) Option {
	return func(c *config) {
		c.protoVersion = v
	}
}

// WithNumConns sets the number of gocql connections per host.
func WithNumConns(n int) Option {
	return func(c *config) {
		c.numConns = n
	}
}

// WithClusterConfig registers a hook applied to every gocql.ClusterConfig
// after the adapter's own settings, for authentication, TLS and the like.
//
// The hook must not change the host list, host filter or retry policy.
func WithClusterConfig(fn func(*gocql.ClusterConfig)) Option {
	return func(c *config) {
		c.configure = fn
	}
}

// NewPoolFactory returns a cql.PoolFactory creating one single-host gocql
// session per host.
//
// Each session is restricted to its host and never retries by itself, so
// host selection and retries stay with the strand engine.
//
// Parameters:
//   - opts: Optional configuration
//
// Returns:
//   - cql.PoolFactory: Factory for strand.NewSession
func NewPoolFactory(opts ...Option) cql.PoolFactory {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(host *types.Host) (cql.Pool, error) {
		return cql.NewLazyPool(host, cfg.keyspace, cfg.dial), nil
	}
}

func (c *config) newCluster(host *types.Host, keyspace string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(host.Address())

	ip, _, err := net.SplitHostPort(host.Address())
	if err != nil {
		ip = host.Address()
	}
	cluster.HostFilter = gocql.WhiteListHostFilter(ip)
	cluster.DisableInitialHostLookup = true
	cluster.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: 0}
	cluster.Keyspace = keyspace

	if c.timeout > 0 {
		cluster.Timeout = c.timeout
	}
	if c.connectTimeout > 0 {
		cluster.ConnectTimeout = c.connectTimeout
	}
	if c.protoVersion > 0 {
		cluster.ProtoVersion = c.protoVersion
	}
	if c.numConns > 0 {
		cluster.NumConns = c.numConns
	}
	if c.configure != nil {
		c.configure(cluster)
	}

	return cluster
}

func (c *config) dial(_ context.Context, host *types.Host, keyspace string) (cql.Connection, error) {
	session, err := c.newCluster(host, keyspace).CreateSession()
	if err != nil {
		return nil, &types.RequestError{Kind: types.KindBusyPool, Cause: err}
	}

	return NewConn(session, host), nil
}

// Conn is a cql.Connection over a gocql v1 session bound to one host.
type Conn struct {
	session *gocql.Session
	host    *types.Host
}

// Compile-time assertion that Conn implements cql.Connection.
var _ cql.Connection = (*Conn)(nil)

// NewConn wraps an existing gocql session.
//
// The session should only reach host; see NewPoolFactory for the settings
// applied to sessions created by the adapter.
//
// Parameters:
//   - session: A gocql.Session instance
//   - host: The host the session is bound to
//
// Returns:
//   - *Conn: An adapter implementing cql.Connection
func NewConn(session *gocql.Session, host *types.Host) *Conn {
	return &Conn{session: session, host: host}
}

// Session returns the underlying gocql.Session.
func (c *Conn) Session() *gocql.Session {
	return c.session
}

// Host returns the host the connection is bound to.
func (c *Conn) Host() *types.Host {
	return c.host
}

// Closed reports whether the session was closed.
func (c *Conn) Closed() bool {
	return c.session == nil || c.session.Closed()
}

// Close closes the session.
func (c *Conn) Close() error {
	if c.session != nil {
		c.session.Close()
	}

	return nil
}

// Send executes req on the session.
//
// Prepare requests only derive the statement ID: gocql prepares lazily and
// transparently re-prepares, so execute requests are sent as their query
// text with bound values.
func (c *Conn) Send(ctx context.Context, req *cql.Request) (*cql.Response, error) {
	switch req.Kind {
	case cql.KindPrepare:
		return &cql.Response{Kind: cql.ResponsePrepared, PreparedID: cql.PreparedID(req.Query)}, nil
	case cql.KindBatch:
		return c.sendBatch(ctx, req)
	default:
		return c.sendQuery(ctx, req)
	}
}

func (c *Conn) sendQuery(ctx context.Context, req *cql.Request) (*cql.Response, error) {
	// gocql rejects USE statements; the pool switches keyspace instead.
	if ks, ok := cql.ParseUse(req.Query); ok {
		return &cql.Response{Kind: cql.ResponseSetKeyspace, Keyspace: ks}, nil
	}

	q := c.session.Query(req.Query, bindValues(req.Values)...).
		WithContext(ctx).
		Consistency(ToGocqlConsistency(req.Consistency)).
		Idempotent(req.Idempotent)
	if req.PageSize > 0 {
		q = q.PageSize(req.PageSize)
	}
	if len(req.PagingState) > 0 {
		q = q.PageState(req.PagingState)
	}
	if req.Timestamp != 0 {
		q = q.WithTimestamp(req.Timestamp)
	}
	if req.HasSerialConsistency {
		q = q.SerialConsistency(ToGocqlSerialConsistency(req.SerialConsistency))
	}

	iter := q.Iter()
	resp := &cql.Response{Kind: cql.ResponseVoid}

	// Only the current page: scanning past NumRows would fetch the next one.
	n := iter.NumRows()
	for i := 0; i < n; i++ {
		row := make(map[string]any)
		if !iter.MapScan(row) {
			break
		}
		resp.Rows = append(resp.Rows, row)
	}
	cols := iter.Columns()
	resp.PagingState = iter.PageState()
	resp.Warnings = iter.Warnings()
	if err := iter.Close(); err != nil {
		return nil, ClassifyError(err)
	}

	if change, ok := cql.ParseSchemaChange(req.Query); ok {
		resp.Kind = cql.ResponseSchemaChange
		resp.Schema = change

		return resp, nil
	}
	if len(cols) > 0 {
		resp.Kind = cql.ResponseRows
		resp.Columns = make([]cql.ColumnInfo, len(cols))
		for i, col := range cols {
			resp.Columns[i] = cql.ColumnInfo{
				Keyspace: col.Keyspace,
				Table:    col.Table,
				Name:     col.Name,
				TypeInfo: col.TypeInfo,
			}
		}
	}

	return resp, nil
}

func (c *Conn) sendBatch(ctx context.Context, req *cql.Request) (*cql.Response, error) {
	b := c.session.NewBatch(ToGocqlBatchType(req.BatchType)).WithContext(ctx)
	for _, e := range req.Entries {
		b.Query(e.Query, bindValues(e.Values)...)
	}
	b.SetConsistency(ToGocqlConsistency(req.Consistency))
	if req.Timestamp != 0 {
		b.WithTimestamp(req.Timestamp)
	}
	if req.HasSerialConsistency {
		b.SerialConsistency(ToGocqlSerialConsistency(req.SerialConsistency))
	}

	if err := c.session.ExecuteBatch(b); err != nil {
		return nil, ClassifyError(err)
	}

	return &cql.Response{Kind: cql.ResponseVoid}, nil
}
