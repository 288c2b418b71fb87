package types

// MetricsCollector defines methods for collecting operational metrics of the
// request execution engine.
//
// Implementations should be thread-safe as methods may be called concurrently.
//
// Example usage with VictoriaMetrics (via contrib/metrics/vm):
//
//	import vmmetrics "github.com/arloliu/strand/contrib/metrics/vm"
//
//	collector := vmmetrics.New(vmmetrics.WithPrefix("myapp"))
//	session, _ := strand.NewSession(meta, pools,
//	    strand.WithMetrics(collector),
//	)
//
//	// Expose metrics via HTTP
//	http.HandleFunc("/metrics", collector.Handler)
type MetricsCollector interface {
	// ----------------------
	// Requests
	// ----------------------

	// IncRequestTotal increments the counter of requests sent.
	IncRequestTotal()

	// IncRequestError increments the counter of failed attempts by error kind.
	IncRequestError(kind ErrorKind)

	// ObserveRequestDuration records the end-to-end duration of a request in seconds.
	ObserveRequestDuration(seconds float64)

	// IncNoHostAvailable increments the counter of requests that exhausted their plan.
	IncNoHostAvailable()

	// ----------------------
	// Retries
	// ----------------------

	// IncRetry increments the counter of retry policy decisions by outcome.
	IncRetry(decision DecisionType)

	// IncIgnore increments the counter of errors ignored by the retry policy.
	IncIgnore(kind ErrorKind)

	// ----------------------
	// Speculative executions
	// ----------------------

	// IncSpeculativeExecution increments the counter of speculative executions started.
	IncSpeculativeExecution()

	// ----------------------
	// Hosts
	// ----------------------

	// IncHostDown increments the counter when a host transitions to down.
	IncHostDown(host string)

	// IncHostUp increments the counter when a host transitions to up.
	IncHostUp(host string)

	// IncReconnectionAttempt increments the counter of reconnection probes.
	IncReconnectionAttempt(host string)

	// ----------------------
	// Replay
	// ----------------------

	// IncReplayEnqueued increments the counter of writes handed to the replayer.
	IncReplayEnqueued()

	// IncReplaySuccess increments the counter of successful replays.
	IncReplaySuccess()

	// IncReplayError increments the counter of failed replay attempts.
	IncReplayError()

	// IncReplayDropped increments the counter of writes given up on.
	IncReplayDropped()

	// ObserveReplayDuration records the duration of one replay attempt in seconds.
	ObserveReplayDuration(seconds float64)
}
