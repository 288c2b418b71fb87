// Package types provides shared types, policy contracts and error definitions
// for the strand request execution engine.
//
// This is a leaf package with zero strand imports to prevent import cycles.
// The root package re-exports the contracts as aliases, and the policy
// package implements them without importing the root package.
//
// # Hosts
//
// Host is a node of the cluster. Its up/down flag is atomic; everything else
// is immutable after construction. Distance is not stored on the host: it is
// always asked from the LoadBalancingPolicy.
//
// # Retry decisions
//
// RetryDecision is a closed variant built by its constructors:
//
//	types.Retry()                   // same host, same consistency
//	types.RetryNextHost()           // next plan host, same consistency
//	types.RetryWith(types.One, false)
//	types.Rethrow()
//	types.Ignore()                  // complete with an empty result
//
// # Errors
//
// Every failed exchange with a host is classified into a *RequestError whose
// Kind selects the retry policy method consulted. When the query plan is
// exhausted a *NoHostAvailableError is returned; it matches
// ErrNoHostAvailable with errors.Is and carries the last error per host.
package types
