package policy

import (
	"github.com/arloliu/strand/types"
)

// DefaultLoadBalancingPolicy is the policy used when none is configured:
// token-aware routing over DC-aware round-robin.
//
// Statements implementing types.TargetedStatement with a preferred host get
// that host first in their plan. Distance does not know about it: the
// request handler treats the preferred host of its own statement as Local,
// so concurrent targeted requests never see each other's preferred host.
type DefaultLoadBalancingPolicy struct {
	child types.LoadBalancingPolicy
}

// Compile-time assertion that DefaultLoadBalancingPolicy implements types.LoadBalancingPolicy.
var _ types.LoadBalancingPolicy = (*DefaultLoadBalancingPolicy)(nil)

// NewDefaultLoadBalancingPolicy creates TokenAware(DCAwareRoundRobin(opts...)).
//
// Parameters:
//   - opts: Options for the inner DC-aware policy
//
// Returns:
//   - *DefaultLoadBalancingPolicy: A new default policy
func NewDefaultLoadBalancingPolicy(opts ...DCAwareOption) *DefaultLoadBalancingPolicy {
	return &DefaultLoadBalancingPolicy{
		child: NewTokenAwarePolicy(NewDCAwareRoundRobinPolicy(opts...)),
	}
}

// Child returns the wrapped token-aware policy.
func (p *DefaultLoadBalancingPolicy) Child() types.LoadBalancingPolicy {
	return p.child
}

// Initialize initializes the wrapped policies.
func (p *DefaultLoadBalancingPolicy) Initialize(metadata types.Metadata) error {
	return p.child.Initialize(metadata)
}

// Distance delegates to the wrapped policy.
func (p *DefaultLoadBalancingPolicy) Distance(host *types.Host) types.Distance {
	return p.child.Distance(host)
}

// NewQueryPlan yields the preferred host first when the statement names one.
func (p *DefaultLoadBalancingPolicy) NewQueryPlan(keyspace string, stmt types.Statement) types.QueryPlan {
	targeted, ok := stmt.(types.TargetedStatement)
	if !ok {
		return p.child.NewQueryPlan(keyspace, stmt)
	}
	preferred := targeted.PreferredHost()
	if preferred == nil {
		return p.child.NewQueryPlan(keyspace, stmt)
	}

	seen := map[*types.Host]struct{}{preferred: {}}

	return concatPlans(
		SlicePlan(preferred),
		excludingPlan(p.child.NewQueryPlan(keyspace, stmt), seen),
	)
}
