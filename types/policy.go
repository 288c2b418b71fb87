package types

import (
	"context"
	"time"
)

// QueryPlan is a lazily evaluated, single-consumption sequence of hosts.
//
// A plan is not safe for concurrent use; the request handler serializes
// access to it when several executions share one plan.
type QueryPlan interface {
	// Next returns the next host, or false when the plan is exhausted.
	Next() (*Host, bool)
}

// Metadata is the topology collaborator consulted by policies and the session.
type Metadata interface {
	// AllHosts returns a snapshot of every known host.
	AllHosts() []*Host

	// GetReplicas returns the replicas owning the routing key in keyspace,
	// in ring order. It returns nil when the replicas cannot be computed.
	GetReplicas(keyspace string, routingKey []byte) []*Host

	// Subscribe registers a listener for host events.
	//
	// Returns:
	//   - func(): Unsubscribes the listener
	Subscribe(listener func(HostEvent)) func()
}

// SchemaAgreementChecker is implemented by topology collaborators that can
// tell whether every live host reports the same schema version.
type SchemaAgreementChecker interface {
	CheckSchemaAgreement(ctx context.Context) (bool, error)
}

// LoadBalancingPolicy decides which hosts a request is sent to and in what order.
type LoadBalancingPolicy interface {
	// Initialize is called once with the cluster metadata before any plan is built.
	Initialize(metadata Metadata) error

	// Distance classifies a host. Ignored hosts are never contacted.
	Distance(host *Host) Distance

	// NewQueryPlan returns a fresh plan for one request.
	NewQueryPlan(keyspace string, stmt Statement) QueryPlan
}

// RetryPolicy decides what to do after a server-reported timeout or
// unavailable error.
//
// The attempt parameter counts retries already performed for the request
// (0 on the first failure).
type RetryPolicy interface {
	OnReadTimeout(stmt Statement, cl Consistency, required, received int, dataRetrieved bool, attempt int) RetryDecision
	OnWriteTimeout(stmt Statement, cl Consistency, writeType WriteType, required, received int, attempt int) RetryDecision
	OnUnavailable(stmt Statement, cl Consistency, required, alive int, attempt int) RetryDecision
}

// ExtendedRetryPolicy also decides on client-side and coordinator errors
// that carry no replica accounting (socket, timeouts, overloaded, ...).
type ExtendedRetryPolicy interface {
	RetryPolicy

	OnRequestError(stmt Statement, err *RequestError, attempt int) RetryDecision
}

// SpeculativeExecutionPolicy decides when additional executions of the same
// request are started.
type SpeculativeExecutionPolicy interface {
	NewPlan(keyspace string, stmt Statement) SpeculativePlan
}

// SpeculativePlan is the per-request speculative schedule.
type SpeculativePlan interface {
	// NextExecution returns the delay before starting another execution
	// after one was started on lastHost. A value <= 0 means no more.
	NextExecution(lastHost *Host) time.Duration
}

// ReconnectionPolicy produces delay schedules for reconnecting to a down host.
type ReconnectionPolicy interface {
	NewSchedule() ReconnectionSchedule
}

// ReconnectionSchedule yields successive reconnection delays.
type ReconnectionSchedule interface {
	NextDelay() time.Duration
}

// ReconnectionPolicySetter is implemented by topology collaborators that
// schedule reconnections to down hosts themselves.
type ReconnectionPolicySetter interface {
	SetReconnectionPolicy(p ReconnectionPolicy)
}

// HostStateReporter is implemented by topology collaborators that accept
// connectivity reports from the session.
type HostStateReporter interface {
	// ReportUnreachable tells the topology that no connection to host
	// could be opened.
	ReportUnreachable(host *Host, cause error)
}

// WrappingPolicy is implemented by load balancing policies that decorate
// another policy.
type WrappingPolicy interface {
	Child() LoadBalancingPolicy
}

// RequestTracker is implemented by load balancing policies that adapt their
// plans to the outcome of attempts. The session looks for trackers along
// the WrappingPolicy chain of its policy and reports every attempt that was
// not cancelled.
type RequestTracker interface {
	// OnAttemptSuccess is called when host answered an attempt.
	OnAttemptSuccess(host *Host, latency time.Duration)

	// OnAttemptError is called when an attempt on host failed.
	OnAttemptError(host *Host, err *RequestError, latency time.Duration)
}
