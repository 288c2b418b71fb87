package strand

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/strand/adapter/cql"
	"github.com/arloliu/strand/policy"
	"github.com/arloliu/strand/types"
)

const (
	handlerRunning int32 = iota
	handlerCompleted
)

// postAction runs on the completing goroutine before a successful result
// is handed to the caller.
type postAction func(rs *RowSet) *RowSet

// requestHandler drives one logical request across every execution started
// for it: the first one, retries, and speculative ones.
//
// Executions share one query plan, so a host handed to an execution is never
// handed to another. The handler completes exactly once; everything that
// arrives after completion is dropped.
type requestHandler struct {
	session *Session
	stmt    requestBuilder
	request *cql.Request

	keyspace    string
	retryPolicy RetryPolicy
	idempotent  bool
	readTimeout time.Duration

	callerCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc

	state   atomic.Int32
	future  *Future
	started time.Time

	planMu sync.Mutex
	plan   QueryPlan

	// preferred is the host named by the statement; it is Local for this
	// request whatever the policy says about it.
	preferred *Host

	// triedHosts maps host address to the last error seen on it; a nil
	// value means the host was pulled from the plan but never failed.
	triedHosts *xsync.MapOf[string, error]

	specPlan    SpeculativePlan
	speculative atomic.Int32

	mu        sync.Mutex
	running   map[*requestExecution]struct{}
	timer     *time.Timer
	stopWatch func() bool
}

func newRequestHandler(ctx context.Context, s *Session, stmt requestBuilder) *requestHandler {
	cfg := s.config
	req := stmt.buildRequest()

	keyspace := req.Keyspace
	if keyspace == "" {
		keyspace = s.Keyspace()
		req.Keyspace = keyspace
	}

	req.Consistency = cfg.Consistency
	if cl, ok := stmt.Consistency(); ok {
		req.Consistency = cl
	}
	req.SerialConsistency = cfg.SerialConsistency
	if cl, ok := stmt.SerialConsistency(); ok {
		req.SerialConsistency = cl
	}
	req.HasSerialConsistency = true

	idempotent := stmt.Idempotence().Resolve(cfg.DefaultIdempotence)
	req.Idempotent = idempotent

	retryPolicy := stmt.RetryPolicy()
	if retryPolicy == nil {
		retryPolicy = cfg.RetryPolicy
	}
	readTimeout := stmt.ReadTimeout()
	if readTimeout <= 0 {
		readTimeout = cfg.ReadTimeout
	}

	var plan QueryPlan
	if host := stmt.Host(); host != nil {
		plan = policy.SlicePlan(host)
	} else {
		plan = cfg.LoadBalancingPolicy.NewQueryPlan(keyspace, stmt)
	}

	hctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	return &requestHandler{
		session:     s,
		stmt:        stmt,
		request:     req,
		keyspace:    keyspace,
		retryPolicy: retryPolicy,
		idempotent:  idempotent,
		readTimeout: readTimeout,
		callerCtx:   ctx,
		ctx:         hctx,
		cancel:      cancel,
		future:      newFuture(),
		plan:        plan,
		preferred:   stmt.PreferredHost(),
		triedHosts:  xsync.NewMapOf[string, error](),
		specPlan:    cfg.SpeculativeExecutionPolicy.NewPlan(keyspace, stmt),
		running:     make(map[*requestExecution]struct{}),
	}
}

// send starts the first execution and returns the future of the request.
func (h *requestHandler) send() *Future {
	h.started = time.Now()
	h.session.metrics.IncRequestTotal()

	h.mu.Lock()
	h.stopWatch = context.AfterFunc(h.callerCtx, func() {
		h.setCompleted(h.callerCtx.Err(), nil, nil)
	})
	h.mu.Unlock()

	go h.startNewExecution()

	return h.future
}

func (h *requestHandler) isDone() bool {
	return h.state.Load() == handlerCompleted
}

// startNewExecution registers a new execution, starts it and schedules the
// next speculative one.
func (h *requestHandler) startNewExecution() {
	exec := newRequestExecution(h)

	h.mu.Lock()
	if h.isDone() {
		h.mu.Unlock()
		exec.cancel()

		return
	}
	h.running[exec] = struct{}{}
	h.mu.Unlock()

	if host := exec.start(false); host != nil {
		h.scheduleNext(host)
	}
}

// scheduleNext arms the speculative timer after an execution was started on
// host. Statements that are not idempotent are never executed twice.
func (h *requestHandler) scheduleNext(host *Host) {
	if !h.idempotent {
		return
	}
	delay := h.specPlan.NextExecution(host)
	if delay <= 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.isDone() {
		return
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(delay, h.onSpeculativeTimer)
}

func (h *requestHandler) onSpeculativeTimer() {
	if h.isDone() {
		return
	}

	n := h.speculative.Add(1)
	h.session.metrics.IncSpeculativeExecution()
	h.session.logger.Debug("starting speculative execution",
		"keyspace", h.keyspace,
		"execution", n,
	)
	h.startNewExecution()
}

// getNextValidHost pulls hosts from the shared plan until one is up and not
// ignored by the load balancing policy. The preferred host of the statement
// is never ignored. Every pulled host is recorded as tried.
func (h *requestHandler) getNextValidHost() (*Host, bool) {
	lb := h.session.config.LoadBalancingPolicy
	for {
		h.planMu.Lock()
		host, ok := h.plan.Next()
		h.planMu.Unlock()
		if !ok {
			return nil, false
		}

		h.triedHosts.LoadOrStore(host.Address(), nil)
		if !host.IsUp() || (host != h.preferred && lb.Distance(host) == types.Ignored) {
			continue
		}

		return host, true
	}
}

func (h *requestHandler) recordError(host *Host, err error) {
	if host == nil {
		return
	}
	h.triedHosts.Store(host.Address(), err)
}

func (h *requestHandler) triedHostsSnapshot() map[string]error {
	out := make(map[string]error, h.triedHosts.Size())
	h.triedHosts.Range(func(addr string, err error) bool {
		out[addr] = err
		return true
	})

	return out
}

// setNoMoreHosts is called by an execution that exhausted the plan. The
// request fails with a NoHostAvailableError once no execution is left.
func (h *requestHandler) setNoMoreHosts(exec *requestExecution) {
	h.mu.Lock()
	delete(h.running, exec)
	remaining := len(h.running)
	h.mu.Unlock()

	exec.cancel()
	if remaining > 0 {
		return
	}

	h.setCompleted(&NoHostAvailableError{TriedHosts: h.triedHostsSnapshot()}, nil, nil)
}

// setCompleted resolves the request. Only the first call wins; it stops the
// speculative timer, cancels every running execution and reports whether
// it completed the request.
//
// Parameters:
//   - err: Failure of the request, nil on success
//   - rs: Result on success
//   - post: Optional action run before the result is handed out
//
// Returns:
//   - bool: true if this call completed the request
func (h *requestHandler) setCompleted(err error, rs *RowSet, post postAction) bool {
	if !h.state.CompareAndSwap(handlerRunning, handlerCompleted) {
		return false
	}

	h.mu.Lock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	running := make([]*requestExecution, 0, len(h.running))
	for exec := range h.running {
		running = append(running, exec)
	}
	clear(h.running)
	stopWatch := h.stopWatch
	h.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}
	for _, exec := range running {
		exec.cancel()
	}

	h.session.metrics.ObserveRequestDuration(time.Since(h.started).Seconds())

	if err != nil {
		var nhErr *NoHostAvailableError
		if errors.As(err, &nhErr) {
			h.session.metrics.IncNoHostAvailable()
			h.session.logger.Debug("no host available",
				"keyspace", h.keyspace,
				"tried", len(nhErr.TriedHosts),
			)
			nhErr.Replayed = h.session.enqueueReplay(h)
		}
		h.future.resolve(nil, err)
	} else {
		if post != nil {
			rs = post(rs)
		}
		h.future.resolve(rs, nil)
	}
	h.cancel()

	return true
}

// rowSet builds the result of exec from resp, which may be nil.
func (h *requestHandler) rowSet(exec *requestExecution, resp *cql.Response) *RowSet {
	info := ExecutionInfo{
		QueriedHost:           exec.host,
		TriedHosts:            h.triedHostsSnapshot(),
		AchievedConsistency:   exec.request.Consistency,
		SpeculativeExecutions: int(h.speculative.Load()),
	}
	if resp != nil {
		info.Warnings = resp.Warnings
		info.TraceID = resp.TraceID
	}

	return newRowSet(resp, info)
}
