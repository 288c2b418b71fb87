package policy

import "github.com/arloliu/strand/types"

// PlanFunc adapts an iteration closure to types.QueryPlan.
//
// Policies build their plans as closures over per-plan state, which keeps a
// plan lazy: hosts are only computed when pulled.
type PlanFunc func() (*types.Host, bool)

// Next implements types.QueryPlan.
func (f PlanFunc) Next() (*types.Host, bool) {
	return f()
}

// SlicePlan returns a plan yielding hosts in order.
//
// Parameters:
//   - hosts: Hosts to yield (not copied)
//
// Returns:
//   - types.QueryPlan: A plan over hosts
func SlicePlan(hosts ...*types.Host) types.QueryPlan {
	i := 0

	return PlanFunc(func() (*types.Host, bool) {
		if i >= len(hosts) {
			return nil, false
		}
		h := hosts[i]
		i++

		return h, true
	})
}

// emptyPlan is an exhausted plan.
var emptyPlan = PlanFunc(func() (*types.Host, bool) { return nil, false })

// rotatedPlan yields every host of hosts once, starting at start modulo len.
func rotatedPlan(hosts []*types.Host, start uint64) PlanFunc {
	n := len(hosts)
	if n == 0 {
		return emptyPlan
	}
	offset := int(start % uint64(n))
	i := 0

	return func() (*types.Host, bool) {
		if i >= n {
			return nil, false
		}
		h := hosts[(offset+i)%n]
		i++

		return h, true
	}
}

// concatPlans yields every host of each plan in turn.
func concatPlans(plans ...types.QueryPlan) PlanFunc {
	return func() (*types.Host, bool) {
		for len(plans) > 0 {
			if h, ok := plans[0].Next(); ok {
				return h, true
			}
			plans = plans[1:]
		}

		return nil, false
	}
}

// excludingPlan yields the hosts of plan that are not in seen.
func excludingPlan(plan types.QueryPlan, seen map[*types.Host]struct{}) PlanFunc {
	return func() (*types.Host, bool) {
		for {
			h, ok := plan.Next()
			if !ok {
				return nil, false
			}
			if _, dup := seen[h]; !dup {
				return h, true
			}
		}
	}
}
