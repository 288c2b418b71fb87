package policy

import (
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/strand/internal/logging"
	"github.com/arloliu/strand/types"
)

// HostCircuitBreakerPolicy moves hosts that keep failing to the end of the
// child's query plans.
//
// Each host has its own breaker counting consecutive failures. Once the
// count reaches the threshold the breaker opens and the host is yielded
// after every healthy host, so it is only contacted when nothing else is
// left. A failure older than the reset timeout restarts the count, and a
// success closes the breaker.
//
// With a latency limit, successful attempts slower than the limit count as
// failures. This catches hosts that answer but are too slow to be useful.
//
// The session reports attempt outcomes automatically (see
// types.RequestTracker), also when this policy is wrapped by a token-aware
// policy.
//
// Example:
//
//	lb := policy.NewTokenAwarePolicy(policy.NewHostCircuitBreakerPolicy(
//	    policy.NewDCAwareRoundRobinPolicy(),
//	    policy.WithBreakerThreshold(5),
//	    policy.WithBreakerLatencyMax(500*time.Millisecond),
//	))
type HostCircuitBreakerPolicy struct {
	child        types.LoadBalancingPolicy
	threshold    int
	resetTimeout time.Duration
	latencyMax   time.Duration
	logger       types.Logger
	now          func() time.Time
	breakers     *xsync.MapOf[string, *hostBreaker]
}

type hostBreaker struct {
	failures    atomic.Int32
	lastFailure atomic.Int64 // Unix nano
}

// Compile-time assertions for HostCircuitBreakerPolicy.
var (
	_ types.LoadBalancingPolicy = (*HostCircuitBreakerPolicy)(nil)
	_ types.RequestTracker      = (*HostCircuitBreakerPolicy)(nil)
	_ types.WrappingPolicy      = (*HostCircuitBreakerPolicy)(nil)
)

// HostCircuitBreakerOption configures a HostCircuitBreakerPolicy.
type HostCircuitBreakerOption func(*HostCircuitBreakerPolicy)

// WithBreakerThreshold sets the number of consecutive failures opening a
// host's breaker. Values below 1 are ignored.
//
// Default: 3
//
// Parameters:
//   - n: Number of failures required
//
// Returns:
//   - HostCircuitBreakerOption: Configuration option
func WithBreakerThreshold(n int) HostCircuitBreakerOption {
	return func(p *HostCircuitBreakerPolicy) {
		if n > 0 {
			p.threshold = n
		}
	}
}

// WithBreakerResetTimeout sets the duration after which a host's failure
// count restarts. An open breaker is half-open once it elapsed.
//
// Default: 30s
//
// Parameters:
//   - d: Reset timeout duration
//
// Returns:
//   - HostCircuitBreakerOption: Configuration option
func WithBreakerResetTimeout(d time.Duration) HostCircuitBreakerOption {
	return func(p *HostCircuitBreakerPolicy) {
		if d > 0 {
			p.resetTimeout = d
		}
	}
}

// WithBreakerLatencyMax treats successful attempts slower than d as
// failures. Zero disables the latency check.
//
// Parameters:
//   - d: Maximum acceptable latency
//
// Returns:
//   - HostCircuitBreakerOption: Configuration option
func WithBreakerLatencyMax(d time.Duration) HostCircuitBreakerOption {
	return func(p *HostCircuitBreakerPolicy) {
		p.latencyMax = d
	}
}

// WithBreakerLogger sets the logger reporting breaker transitions.
func WithBreakerLogger(l types.Logger) HostCircuitBreakerOption {
	return func(p *HostCircuitBreakerPolicy) {
		p.logger = l
	}
}

// NewHostCircuitBreakerPolicy creates a new HostCircuitBreakerPolicy.
//
// Parameters:
//   - child: Policy supplying distances and plans (nil uses RoundRobinPolicy)
//   - opts: Optional configuration options
//
// Returns:
//   - *HostCircuitBreakerPolicy: A new circuit breaker decorator
func NewHostCircuitBreakerPolicy(child types.LoadBalancingPolicy, opts ...HostCircuitBreakerOption) *HostCircuitBreakerPolicy {
	if child == nil {
		child = NewRoundRobinPolicy()
	}
	p := &HostCircuitBreakerPolicy{
		child:        child,
		threshold:    3,
		resetTimeout: 30 * time.Second,
		now:          time.Now,
		breakers:     xsync.NewMapOf[string, *hostBreaker](),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.OrNop(p.logger)

	return p
}

// Child returns the wrapped policy.
func (p *HostCircuitBreakerPolicy) Child() types.LoadBalancingPolicy {
	return p.child
}

// Initialize initializes the child.
func (p *HostCircuitBreakerPolicy) Initialize(metadata types.Metadata) error {
	return p.child.Initialize(metadata)
}

// Distance delegates to the child policy.
func (p *HostCircuitBreakerPolicy) Distance(host *types.Host) types.Distance {
	return p.child.Distance(host)
}

// NewQueryPlan yields the child plan with open hosts moved to the end.
func (p *HostCircuitBreakerPolicy) NewQueryPlan(keyspace string, stmt types.Statement) types.QueryPlan {
	plan := p.child.NewQueryPlan(keyspace, stmt)
	var (
		deferred []*types.Host
		tail     types.QueryPlan
	)

	return PlanFunc(func() (*types.Host, bool) {
		if tail == nil {
			for {
				h, ok := plan.Next()
				if !ok {
					break
				}
				if !p.IsOpen(h) {
					return h, true
				}
				deferred = append(deferred, h)
			}
			tail = SlicePlan(deferred...)
		}

		return tail.Next()
	})
}

// IsOpen reports whether host's breaker is open.
func (p *HostCircuitBreakerPolicy) IsOpen(host *types.Host) bool {
	b, ok := p.breakers.Load(host.Address())
	if !ok {
		return false
	}
	if int(b.failures.Load()) < p.threshold {
		return false
	}

	return p.now().Sub(time.Unix(0, b.lastFailure.Load())) <= p.resetTimeout
}

// Failures returns the consecutive failures recorded for host.
func (p *HostCircuitBreakerPolicy) Failures(host *types.Host) int {
	b, ok := p.breakers.Load(host.Address())
	if !ok {
		return 0
	}

	return int(b.failures.Load())
}

// OnAttemptSuccess closes host's breaker, unless the attempt was slower
// than the latency limit.
func (p *HostCircuitBreakerPolicy) OnAttemptSuccess(host *types.Host, latency time.Duration) {
	if p.latencyMax > 0 && latency > p.latencyMax {
		p.recordFailure(host, "slow response")
		return
	}

	b, ok := p.breakers.Load(host.Address())
	if !ok {
		return
	}
	wasOpen := int(b.failures.Swap(0)) >= p.threshold
	b.lastFailure.Store(0)
	if wasOpen {
		p.logger.Info("host circuit breaker closed", "host", host.Address())
	}
}

// OnAttemptError counts failures that point at the host itself. Errors the
// coordinator reports about replicas or about the request do not count.
func (p *HostCircuitBreakerPolicy) OnAttemptError(host *types.Host, err *types.RequestError, _ time.Duration) {
	switch err.Kind {
	case types.KindSocket, types.KindOperationTimeout, types.KindOverloaded,
		types.KindIsBootstrapping, types.KindBusyPool, types.KindServer:
		p.recordFailure(host, err.Kind.String())
	default:
	}
}

func (p *HostCircuitBreakerPolicy) recordFailure(host *types.Host, reason string) {
	b, _ := p.breakers.LoadOrCompute(host.Address(), func() *hostBreaker { return &hostBreaker{} })

	now := p.now().UnixNano()
	var failures int32
	if last := b.lastFailure.Load(); last > 0 && time.Duration(now-last) > p.resetTimeout {
		b.failures.Store(1)
		failures = 1
	} else {
		failures = b.failures.Add(1)
	}
	b.lastFailure.Store(now)

	if int(failures) == p.threshold {
		p.logger.Warn("host circuit breaker opened",
			"host", host.Address(),
			"threshold", p.threshold,
			"reason", reason,
		)
	}
}
