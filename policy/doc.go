// Package policy provides the load balancing, retry, speculative execution
// and reconnection policies used by a strand session.
//
// # Load Balancing Policies
//
// A load balancing policy orders the hosts tried for one request. Every
// request gets its own query plan, which is pulled lazily and is safe for
// concurrent use by the executions of that request:
//
//	type LoadBalancingPolicy interface {
//	    Initialize(metadata Metadata) error
//	    Distance(host *Host) Distance
//	    NewQueryPlan(keyspace string, stmt Statement) QueryPlan
//	}
//
// Available policies:
//
//   - [RoundRobinPolicy]: Rotates over every up host
//   - [DCAwareRoundRobinPolicy]: Local datacenter first, then a few hosts per remote datacenter
//   - [TokenAwarePolicy]: Replicas of the routing key first, then the child plan
//   - [DefaultLoadBalancingPolicy]: Token-aware over DC-aware round-robin
//   - [HostCircuitBreakerPolicy]: Defers hosts that keep failing to the end of the child plan
//
// Example:
//
//	lb := policy.NewHostCircuitBreakerPolicy(
//	    policy.NewDefaultLoadBalancingPolicy(policy.WithLocalDC("dc1")),
//	    policy.WithBreakerThreshold(5),
//	    policy.WithBreakerLatencyMax(time.Second),
//	)
//	session, _ := strand.NewSession(meta, factory, strand.WithLoadBalancingPolicy(lb))
//
// # Retry Policies
//
// A retry policy decides what happens after a failed attempt: retry on the
// same or the next host, rethrow, or ignore the error.
//
//   - [DefaultRetryPolicy]: Retries once when a retry is likely to succeed
//   - [DowngradingConsistencyRetryPolicy]: Also retries at a lower consistency
//   - [FallthroughRetryPolicy]: Never retries
//   - [IdempotenceAwareRetryPolicy]: Rethrows ambiguous failures of non-idempotent statements
//   - [LoggingRetryPolicy]: Logs every decision other than rethrow
//
// Decorators compose:
//
//	retry := policy.NewLoggingRetryPolicy(
//	    policy.NewIdempotenceAwareRetryPolicy(policy.NewDefaultRetryPolicy()),
//	    policy.WithRetryLogger(logger),
//	)
//
// # Speculative Execution Policies
//
//   - [NoSpeculativeExecutionPolicy]: Never starts extra executions
//   - [ConstantSpeculativeExecutionPolicy]: Starts one every delay, up to a maximum
//
// # Reconnection Policies
//
//   - [ConstantReconnectionPolicy]: Same delay between attempts
//   - [ExponentialReconnectionPolicy]: Doubling delay with jitter, capped at a maximum
package policy
