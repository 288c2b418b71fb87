package policy

import (
	"math/rand/v2"

	"github.com/arloliu/strand/types"
)

// TokenAwarePolicy routes requests to the replicas owning their partition.
//
// When a statement carries a routing key, the plan first yields the
// replicas the child policy considers Local, rotated from a random start to
// spread load, then the child's own plan without the replicas already
// yielded. Without a routing key the child plan is used unchanged.
type TokenAwarePolicy struct {
	child    types.LoadBalancingPolicy
	metadata types.Metadata
}

// Compile-time assertion that TokenAwarePolicy implements types.LoadBalancingPolicy.
var _ types.LoadBalancingPolicy = (*TokenAwarePolicy)(nil)

// NewTokenAwarePolicy creates a new TokenAwarePolicy.
//
// Parameters:
//   - child: Policy supplying distances and the fallback plan
//
// Returns:
//   - *TokenAwarePolicy: A new token-aware decorator
func NewTokenAwarePolicy(child types.LoadBalancingPolicy) *TokenAwarePolicy {
	return &TokenAwarePolicy{child: child}
}

// Child returns the wrapped policy.
func (p *TokenAwarePolicy) Child() types.LoadBalancingPolicy {
	return p.child
}

// Initialize stores the metadata and initializes the child.
func (p *TokenAwarePolicy) Initialize(metadata types.Metadata) error {
	if metadata == nil {
		return types.ErrNilMetadata
	}
	p.metadata = metadata

	return p.child.Initialize(metadata)
}

// Distance delegates to the child policy.
func (p *TokenAwarePolicy) Distance(host *types.Host) types.Distance {
	return p.child.Distance(host)
}

// NewQueryPlan yields local replicas first, then the child plan.
func (p *TokenAwarePolicy) NewQueryPlan(keyspace string, stmt types.Statement) types.QueryPlan {
	if stmt == nil || p.metadata == nil {
		return p.child.NewQueryPlan(keyspace, stmt)
	}
	routingKey := stmt.RoutingKey()
	if len(routingKey) == 0 {
		return p.child.NewQueryPlan(keyspace, stmt)
	}
	if ks := stmt.Keyspace(); ks != "" {
		keyspace = ks
	}

	replicas := p.metadata.GetReplicas(keyspace, routingKey)
	if len(replicas) == 0 {
		return p.child.NewQueryPlan(keyspace, stmt)
	}

	local := make([]*types.Host, 0, len(replicas))
	for _, h := range replicas {
		if p.child.Distance(h) == types.Local {
			local = append(local, h)
		}
	}

	seen := make(map[*types.Host]struct{}, len(local))
	replicaPlan := rotatedPlan(local, rand.Uint64())
	var fallback types.QueryPlan

	return PlanFunc(func() (*types.Host, bool) {
		if h, ok := replicaPlan(); ok {
			seen[h] = struct{}{}
			return h, true
		}
		// the child plan is built lazily so requests served by a replica
		// never advance the child's round-robin index
		if fallback == nil {
			fallback = excludingPlan(p.child.NewQueryPlan(keyspace, stmt), seen)
		}

		return fallback.Next()
	})
}
