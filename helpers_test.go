package strand

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/strand/adapter/cql"
	"github.com/arloliu/strand/policy"
	"github.com/arloliu/strand/types"
)

// handlerFunc answers one request sent to a host.
type handlerFunc func(ctx context.Context, req *cql.Request) (*cql.Response, error)

// fakeConn is a connection whose answers come from its cluster.
type fakeConn struct {
	cluster *fakeCluster
	host    *Host
	closed  atomic.Bool
}

func (c *fakeConn) Send(ctx context.Context, req *cql.Request) (*cql.Response, error) {
	return c.cluster.dispatch(ctx, c.host, req)
}

func (c *fakeConn) Host() *Host {
	return c.host
}

func (c *fakeConn) Closed() bool {
	return c.closed.Load()
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

// fakePool hands out a single connection, or borrowErr.
type fakePool struct {
	conn      *fakeConn
	borrowErr error
	removed   atomic.Int32
	closed    atomic.Bool
	keyspace  atomic.Value
}

func (p *fakePool) Borrow(context.Context) (cql.Connection, error) {
	if p.borrowErr != nil {
		return nil, p.borrowErr
	}
	if p.closed.Load() {
		return nil, &types.RequestError{Kind: types.KindBusyPool, Cause: cql.ErrPoolClosed}
	}

	return p.conn, nil
}

func (p *fakePool) Remove(cql.Connection) {
	p.removed.Add(1)
}

func (p *fakePool) Close() {
	p.closed.Store(true)
}

func (p *fakePool) SetKeyspace(keyspace string) {
	p.keyspace.Store(keyspace)
}

// fakeCluster routes requests to per-host handlers and records them.
type fakeCluster struct {
	mu         sync.Mutex
	handlers   map[string]handlerFunc
	borrowErrs map[string]error
	requests   map[string][]*cql.Request
	pools      map[string]*fakePool
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		handlers:   make(map[string]handlerFunc),
		borrowErrs: make(map[string]error),
		requests:   make(map[string][]*cql.Request),
		pools:      make(map[string]*fakePool),
	}
}

func (c *fakeCluster) on(host *Host, fn handlerFunc) {
	c.mu.Lock()
	c.handlers[host.Address()] = fn
	c.mu.Unlock()
}

func (c *fakeCluster) failBorrow(host *Host, err error) {
	c.mu.Lock()
	c.borrowErrs[host.Address()] = err
	c.mu.Unlock()
}

func (c *fakeCluster) dispatch(ctx context.Context, host *Host, req *cql.Request) (*cql.Response, error) {
	c.mu.Lock()
	c.requests[host.Address()] = append(c.requests[host.Address()], req)
	fn := c.handlers[host.Address()]
	c.mu.Unlock()

	if fn == nil {
		return rowsResponse(host.Address()), nil
	}

	return fn(ctx, req)
}

// sent returns the requests received by host.
func (c *fakeCluster) sent(host *Host) []*cql.Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*cql.Request(nil), c.requests[host.Address()]...)
}

func (c *fakeCluster) pool(host *Host) *fakePool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pools[host.Address()]
}

func (c *fakeCluster) factory() cql.PoolFactory {
	return func(host *Host) (cql.Pool, error) {
		c.mu.Lock()
		defer c.mu.Unlock()

		p := &fakePool{
			conn:      &fakeConn{cluster: c, host: host},
			borrowErr: c.borrowErrs[host.Address()],
		}
		c.pools[host.Address()] = p

		return p, nil
	}
}

func rowsResponse(from string) *cql.Response {
	return &cql.Response{
		Kind:    cql.ResponseRows,
		Columns: []cql.ColumnInfo{{Name: "host"}},
		Rows:    []map[string]any{{"host": from}},
	}
}

// respond always returns resp.
func respond(resp *cql.Response) handlerFunc {
	return func(context.Context, *cql.Request) (*cql.Response, error) {
		return resp, nil
	}
}

// fail always returns err.
func fail(err error) handlerFunc {
	return func(context.Context, *cql.Request) (*cql.Response, error) {
		return nil, err
	}
}

// sequence answers the n-th request with fns[n], repeating the last one.
func sequence(fns ...handlerFunc) handlerFunc {
	var n atomic.Int32

	return func(ctx context.Context, req *cql.Request) (*cql.Response, error) {
		i := int(n.Add(1)) - 1
		if i >= len(fns) {
			i = len(fns) - 1
		}

		return fns[i](ctx, req)
	}
}

// block waits for ctx cancellation and reports it on cancelled.
func block(cancelled chan<- struct{}) handlerFunc {
	return func(ctx context.Context, _ *cql.Request) (*cql.Response, error) {
		<-ctx.Done()
		if cancelled != nil {
			cancelled <- struct{}{}
		}

		return nil, ctx.Err()
	}
}

// fakeMetadata is a static topology.
type fakeMetadata struct {
	hosts []*Host

	mu          sync.Mutex
	listeners   []func(HostEvent)
	agreed      bool
	unreachable []string
}

func newFakeMetadata(hosts ...*Host) *fakeMetadata {
	return &fakeMetadata{hosts: hosts, agreed: true}
}

func (m *fakeMetadata) AllHosts() []*Host {
	return m.hosts
}

func (m *fakeMetadata) GetReplicas(string, []byte) []*Host {
	return nil
}

func (m *fakeMetadata) Subscribe(listener func(HostEvent)) func() {
	m.mu.Lock()
	m.listeners = append(m.listeners, listener)
	m.mu.Unlock()

	return func() {}
}

func (m *fakeMetadata) emit(ev HostEvent) {
	m.mu.Lock()
	listeners := append([]func(HostEvent)(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

func (m *fakeMetadata) CheckSchemaAgreement(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.agreed, nil
}

func (m *fakeMetadata) ReportUnreachable(host *Host, _ error) {
	m.mu.Lock()
	m.unreachable = append(m.unreachable, host.Address())
	m.mu.Unlock()
}

func (m *fakeMetadata) unreachableHosts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.unreachable...)
}

// orderedPolicy always yields hosts in registry order; hosts in ignored
// are reported as Ignored.
type orderedPolicy struct {
	meta    Metadata
	ignored map[*Host]bool
}

func (p *orderedPolicy) Initialize(meta Metadata) error {
	p.meta = meta
	return nil
}

func (p *orderedPolicy) Distance(host *Host) Distance {
	if p.ignored[host] {
		return types.Ignored
	}

	return types.Local
}

func (p *orderedPolicy) NewQueryPlan(string, Statement) QueryPlan {
	return policy.SlicePlan(p.meta.AllHosts()...)
}

func testHosts(n int) []*Host {
	hosts := make([]*Host, n)
	for i := range hosts {
		hosts[i] = types.NewHost("10.0.0."+string(rune('1'+i))+":9042", "dc1", "r1")
	}

	return hosts
}

// newTestSession builds a session over hosts with a deterministic plan.
func newTestSession(t *testing.T, cluster *fakeCluster, hosts []*Host, opts ...Option) (*Session, *fakeMetadata) {
	t.Helper()

	meta := newFakeMetadata(hosts...)
	all := append([]Option{
		WithLoadBalancingPolicy(&orderedPolicy{}),
		WithReadTimeout(time.Second),
	}, opts...)

	s, err := NewSession(meta, cluster.factory(), all...)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s, meta
}

func requireRequestError(t *testing.T, err error, kind types.ErrorKind) *types.RequestError {
	t.Helper()

	var reqErr *types.RequestError
	require.True(t, errors.As(err, &reqErr), "expected *RequestError, got %v", err)
	require.Equal(t, kind, reqErr.Kind)

	return reqErr
}
