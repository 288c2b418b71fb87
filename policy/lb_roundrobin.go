package policy

import (
	"sync/atomic"

	"github.com/arloliu/strand/types"
)

// RoundRobinPolicy spreads requests evenly over every known host.
//
// All hosts are considered Local. Each query plan contains every host once,
// rotated from a start index that is atomically incremented per plan.
type RoundRobinPolicy struct {
	metadata types.Metadata
	index    atomic.Uint64
}

// Compile-time assertion that RoundRobinPolicy implements types.LoadBalancingPolicy.
var _ types.LoadBalancingPolicy = (*RoundRobinPolicy)(nil)

// NewRoundRobinPolicy creates a new RoundRobinPolicy.
//
// Returns:
//   - *RoundRobinPolicy: A new round-robin policy
func NewRoundRobinPolicy() *RoundRobinPolicy {
	return &RoundRobinPolicy{}
}

// Initialize stores the cluster metadata.
func (p *RoundRobinPolicy) Initialize(metadata types.Metadata) error {
	if metadata == nil {
		return types.ErrNilMetadata
	}
	p.metadata = metadata

	return nil
}

// Distance returns types.Local for every host.
func (p *RoundRobinPolicy) Distance(*types.Host) types.Distance {
	return types.Local
}

// NewQueryPlan returns every known host, rotated.
func (p *RoundRobinPolicy) NewQueryPlan(string, types.Statement) types.QueryPlan {
	if p.metadata == nil {
		return emptyPlan
	}
	hosts := p.metadata.AllHosts()
	// Add wraps on overflow, which keeps the rotation going.
	start := p.index.Add(1) - 1

	return rotatedPlan(hosts, start)
}
