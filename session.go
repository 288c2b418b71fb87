package strand

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/strand/adapter/cql"
	"github.com/arloliu/strand/internal/logging"
	"github.com/arloliu/strand/internal/metrics"
	"github.com/arloliu/strand/policy"
	"github.com/arloliu/strand/types"
)

const (
	// schemaAgreementInterval is the delay between two schema agreement checks.
	schemaAgreementInterval = 200 * time.Millisecond

	// prepareConcurrency bounds the hosts prepared on concurrently.
	prepareConcurrency = 8
)

// Session executes statements against a cluster.
//
// The session owns the per-host pools created through its pool factory and
// consults the configured policies for every request. It is safe for
// concurrent use from multiple goroutines.
//
// # Lifecycle
//
//	meta := topology.NewLocal(hosts)
//	session, err := strand.NewSession(meta, v1.NewPoolFactory(v1.WithKeyspace("app")))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
// After Close() is called, new requests fail with ErrSessionClosed and
// every pool is closed.
type Session struct {
	config      *SessionConfig
	metadata    Metadata
	poolFactory cql.PoolFactory
	logger      Logger
	metrics     MetricsCollector

	pools    *xsync.MapOf[string, cql.Pool]
	prepared *xsync.MapOf[string, *PreparedStatement]
	trackers []types.RequestTracker

	keyspace    atomic.Pointer[string]
	closed      atomic.Bool
	unsubscribe func()
}

// NewSession creates a session.
//
// The load balancing policy is initialized with metadata, and the
// reconnection policy is handed to metadata when it schedules reconnections
// itself (see types.ReconnectionPolicySetter).
//
// Parameters:
//   - metadata: Topology collaborator (e.g., topology.NewLocal(...))
//   - poolFactory: Creates the connection pool of a host
//   - opts: Optional configuration options
//
// Returns:
//   - *Session: A new session
//   - error: ErrNilMetadata, ErrNilPoolFactory, or a policy initialization error
func NewSession(metadata Metadata, poolFactory cql.PoolFactory, opts ...Option) (*Session, error) {
	if metadata == nil {
		return nil, types.ErrNilMetadata
	}
	if poolFactory == nil {
		return nil, types.ErrNilPoolFactory
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	applyConfigDefaults(cfg)

	s := &Session{
		config:      cfg,
		metadata:    metadata,
		poolFactory: poolFactory,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		pools:       xsync.NewMapOf[string, cql.Pool](),
		prepared:    xsync.NewMapOf[string, *PreparedStatement](),
		trackers:    requestTrackers(cfg.LoadBalancingPolicy),
	}
	ks := cfg.Keyspace
	s.keyspace.Store(&ks)

	if err := cfg.LoadBalancingPolicy.Initialize(metadata); err != nil {
		return nil, fmt.Errorf("strand: initialize load balancing policy: %w", err)
	}
	if setter, ok := metadata.(types.ReconnectionPolicySetter); ok {
		setter.SetReconnectionPolicy(cfg.ReconnectionPolicy)
	}
	s.unsubscribe = metadata.Subscribe(s.onHostEvent)

	return s, nil
}

// requestTrackers collects the trackers along the decorator chain of p.
func requestTrackers(p types.LoadBalancingPolicy) []types.RequestTracker {
	var trackers []types.RequestTracker
	for p != nil {
		if t, ok := p.(types.RequestTracker); ok {
			trackers = append(trackers, t)
		}
		w, ok := p.(types.WrappingPolicy)
		if !ok {
			break
		}
		p = w.Child()
	}

	return trackers
}

// trackAttempt reports the outcome of one attempt on host to the trackers.
func (s *Session) trackAttempt(host *Host, err error, latency time.Duration) {
	if len(s.trackers) == 0 || host == nil {
		return
	}
	if err == nil {
		for _, t := range s.trackers {
			t.OnAttemptSuccess(host, latency)
		}

		return
	}
	reqErr := asRequestError(err)
	if reqErr == nil {
		return
	}
	for _, t := range s.trackers {
		t.OnAttemptError(host, reqErr, latency)
	}
}

// applyConfigDefaults replaces nil collaborators so nothing is nil-checked later.
func applyConfigDefaults(cfg *SessionConfig) {
	if cfg.LoadBalancingPolicy == nil {
		cfg.LoadBalancingPolicy = policy.NewDefaultLoadBalancingPolicy()
	}
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = policy.NewDefaultRetryPolicy()
	}
	if cfg.SpeculativeExecutionPolicy == nil {
		cfg.SpeculativeExecutionPolicy = policy.NewNoSpeculativeExecutionPolicy()
	}
	if cfg.ReconnectionPolicy == nil {
		cfg.ReconnectionPolicy, _ = policy.NewExponentialReconnectionPolicy(
			DefaultReconnectionBaseDelay, DefaultReconnectionMaxDelay)
	}
	cfg.Metrics = metrics.OrNop(cfg.Metrics)
	cfg.Logger = logging.OrNop(cfg.Logger)
}

// Config returns the session configuration. It must not be modified.
func (s *Session) Config() *SessionConfig {
	return s.config
}

// Keyspace returns the current session keyspace.
func (s *Session) Keyspace() string {
	return *s.keyspace.Load()
}

// IsClosed reports whether Close was called.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Execute sends a statement and waits for its result.
//
// Parameters:
//   - ctx: Context bounding the whole request, retries included
//   - stmt: A *SimpleStatement, *BoundStatement or *BatchStatement
//
// Returns:
//   - *RowSet: The first page of results
//   - error: *RequestError, *NoHostAvailableError, ErrSessionClosed or a context error
func (s *Session) Execute(ctx context.Context, stmt Statement) (*RowSet, error) {
	return s.ExecuteAsync(ctx, stmt).Get(ctx)
}

// ExecuteAsync sends a statement and returns immediately.
//
// Parameters:
//   - ctx: Context bounding the whole request; cancelling it fails the request
//   - stmt: A *SimpleStatement, *BoundStatement or *BatchStatement
//
// Returns:
//   - *Future: Resolved exactly once with the result or the error
func (s *Session) ExecuteAsync(ctx context.Context, stmt Statement) *Future {
	if stmt == nil {
		return failedFuture(types.ErrNilStatement)
	}
	if s.closed.Load() {
		return failedFuture(types.ErrSessionClosed)
	}
	rb, ok := stmt.(requestBuilder)
	if !ok {
		return failedFuture(fmt.Errorf("strand: unsupported statement type %T", stmt))
	}
	if err := ctx.Err(); err != nil {
		return failedFuture(err)
	}

	return newRequestHandler(ctx, s, rb).send()
}

func failedFuture(err error) *Future {
	f := newFuture()
	f.resolve(nil, err)

	return f
}

// prepareStatement sends a query as a prepare request.
type prepareStatement struct {
	*SimpleStatement
}

func (p *prepareStatement) buildRequest() *cql.Request {
	req := p.SimpleStatement.buildRequest()
	req.Kind = cql.KindPrepare
	req.Values = nil

	return req
}

// Prepare prepares a query and caches the result per keyspace and query.
//
// With PrepareOnAllHosts enabled the statement is also prepared on every
// other up host, so that the first execution on a host does not need a
// re-prepare round trip. Failures of that step are logged only.
//
// Parameters:
//   - ctx: Context bounding the prepare
//   - query: CQL query with '?' bind markers
//   - opts: Default options of the statements bound from the result
//
// Returns:
//   - *PreparedStatement: The prepared statement
//   - error: The prepare failure
func (s *Session) Prepare(ctx context.Context, query string, opts ...StatementOption) (*PreparedStatement, error) {
	defaults := newStatementOptions(opts)
	keyspace := defaults.keyspace
	if keyspace == "" {
		keyspace = s.Keyspace()
	}
	cacheKey := keyspace + "\x00" + query
	if ps, ok := s.prepared.Load(cacheKey); ok {
		return ps, nil
	}

	stmtOpts := make([]StatementOption, 0, len(opts)+2)
	stmtOpts = append(stmtOpts, opts...)
	stmtOpts = append(stmtOpts, StmtKeyspace(keyspace), StmtIdempotent(true))
	stmt := &prepareStatement{SimpleStatement: NewSimpleStatement(query, nil, stmtOpts...)}

	rs, err := s.ExecuteAsync(ctx, stmt).Get(ctx)
	if err != nil {
		return nil, err
	}
	resp := rs.response
	if resp == nil || resp.Kind != cql.ResponsePrepared {
		return nil, fmt.Errorf("%w: prepare returned no prepared result", types.ErrUnexpectedResponse)
	}

	ps := &PreparedStatement{
		id:             resp.PreparedID,
		query:          query,
		keyspace:       keyspace,
		routingIndexes: resp.RoutingIndexes,
		defaults:       opts,
	}
	if s.config.PrepareOnAllHosts {
		s.prepareOnAllHosts(ctx, query, keyspace, rs.info.QueriedHost)
	}

	actual, _ := s.prepared.LoadOrStore(cacheKey, ps)

	return actual, nil
}

func (s *Session) prepareOnAllHosts(ctx context.Context, query, keyspace string, skip *Host) {
	req := &cql.Request{Kind: cql.KindPrepare, Query: query, Keyspace: keyspace}

	var g errgroup.Group
	g.SetLimit(prepareConcurrency)
	for _, host := range s.metadata.AllHosts() {
		if host == skip || !host.IsUp() || s.config.LoadBalancingPolicy.Distance(host) == types.Ignored {
			continue
		}
		g.Go(func() error {
			_, conn, err := s.borrow(ctx, host)
			if err != nil {
				return fmt.Errorf("strand: prepare on %s: %w", host.Address(), err)
			}
			pctx := ctx
			if t := s.config.ReadTimeout; t > 0 {
				var cancel context.CancelFunc
				pctx, cancel = context.WithTimeout(ctx, t)
				defer cancel()
			}
			if _, err := conn.Send(pctx, req); err != nil {
				return fmt.Errorf("strand: prepare on %s: %w", host.Address(), err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Warn("failed to prepare statement on every host",
			"query", query,
			"error", err,
		)
	}
}

// Close closes every pool and stops listening to topology events.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.pools.Range(func(addr string, p cql.Pool) bool {
		s.pools.Delete(addr)
		p.Close()

		return true
	})
}

// pool returns the pool of host, creating it on first use.
func (s *Session) pool(host *Host) (cql.Pool, error) {
	if p, ok := s.pools.Load(host.Address()); ok {
		return p, nil
	}

	var createErr error
	p, _ := s.pools.Compute(host.Address(), func(old cql.Pool, loaded bool) (cql.Pool, bool) {
		if loaded {
			return old, false
		}
		np, err := s.poolFactory(host)
		if err != nil {
			createErr = err
			return nil, true
		}
		if setter, ok := np.(cql.KeyspaceSetter); ok {
			if ks := s.Keyspace(); ks != "" {
				setter.SetKeyspace(ks)
			}
		}

		return np, false
	})
	if createErr != nil {
		return nil, &types.RequestError{Kind: types.KindBusyPool, Cause: createErr}
	}

	return p, nil
}

// borrow returns a connection to host. Connection failures other than a
// closed pool are reported to the topology.
func (s *Session) borrow(ctx context.Context, host *Host) (cql.Pool, cql.Connection, error) {
	if s.closed.Load() {
		return nil, nil, types.ErrSessionClosed
	}

	p, err := s.pool(host)
	if err == nil {
		var conn cql.Connection
		conn, err = p.Borrow(ctx)
		if err == nil {
			return p, conn, nil
		}
	}

	if !errors.Is(err, cql.ErrPoolClosed) && ctx.Err() == nil {
		if reporter, ok := s.metadata.(types.HostStateReporter); ok {
			reporter.ReportUnreachable(host, err)
		}
	}

	return nil, nil, err
}

// setKeyspace records a keyspace switch and applies it to every pool.
func (s *Session) setKeyspace(keyspace string) {
	if keyspace == "" {
		return
	}
	s.keyspace.Store(&keyspace)
	s.pools.Range(func(_ string, p cql.Pool) bool {
		if setter, ok := p.(cql.KeyspaceSetter); ok {
			setter.SetKeyspace(keyspace)
		}

		return true
	})
	s.logger.Info("session keyspace changed", "keyspace", keyspace)
}

// waitSchemaAgreement polls the topology until every host agrees on the
// schema or MaxSchemaAgreementWait elapses. The result is returned either way.
func (s *Session) waitSchemaAgreement(rs *RowSet) *RowSet {
	checker, ok := s.metadata.(types.SchemaAgreementChecker)
	if !ok || s.config.MaxSchemaAgreementWait <= 0 {
		return rs
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.MaxSchemaAgreementWait)
	defer cancel()

	ticker := time.NewTicker(schemaAgreementInterval)
	defer ticker.Stop()

	for {
		agreed, err := checker.CheckSchemaAgreement(ctx)
		if err == nil && agreed {
			rs.info.SchemaInAgreement = true
			return rs
		}
		if err != nil {
			s.logger.Debug("schema agreement check failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Warn("schema agreement not reached",
				"wait", s.config.MaxSchemaAgreementWait,
				"error", types.ErrSchemaAgreementTimeout,
			)

			return rs
		case <-ticker.C:
		}
	}
}

// onHostEvent drops the pool of hosts that went down or left the cluster.
func (s *Session) onHostEvent(ev HostEvent) {
	addr := ev.Host.Address()
	switch ev.Kind {
	case types.HostDown, types.HostRemoved:
		if p, ok := s.pools.LoadAndDelete(addr); ok {
			p.Close()
		}
		s.logger.Info("host unavailable, pool closed",
			"host", addr,
			"event", ev.Kind.String(),
		)
	case types.HostUp, types.HostAdded:
		s.logger.Info("host available",
			"host", addr,
			"event", ev.Kind.String(),
		)
	}
}
