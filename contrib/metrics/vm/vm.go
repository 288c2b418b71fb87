package vm

import (
	"fmt"
	"io"
	"net/http"

	"github.com/VictoriaMetrics/metrics"

	"github.com/arloliu/strand/types"
)

// Option configures a Collector.
type Option func(*Collector)

// WithPrefix sets the metric name prefix.
//
// Default: "strand"
//
// Parameters:
//   - prefix: The prefix to use for all metric names
//
// Returns:
//   - Option: A configuration option
func WithPrefix(prefix string) Option {
	return func(c *Collector) {
		c.prefix = prefix
	}
}

// WithMetricsSet sets the metrics set to use.
//
// If provided, the collector will register metrics with this set instead of
// creating a new one. The caller is responsible for exposing this set
// (e.g., via metrics.WritePrometheus or a custom handler).
//
// Parameters:
//   - set: The metrics set to use
//
// Returns:
//   - Option: A configuration option
func WithMetricsSet(set *metrics.Set) Option {
	return func(c *Collector) {
		c.set = set
	}
}

// Collector implements types.MetricsCollector using VictoriaMetrics.
//
// Request metrics are pre-created at initialization. Per-host metrics are
// created on first use since the host set is only known at runtime.
// Thread-safe for concurrent use.
type Collector struct {
	set    *metrics.Set
	prefix string

	requestTotal       *metrics.Counter
	requestErrors      map[types.ErrorKind]*metrics.Counter
	requestDuration    *metrics.Histogram
	noHostAvailable    *metrics.Counter
	retries            map[types.DecisionType]*metrics.Counter
	ignores            map[types.ErrorKind]*metrics.Counter
	speculativeStarted *metrics.Counter

	replayEnqueued *metrics.Counter
	replaySuccess  *metrics.Counter
	replayErrors   *metrics.Counter
	replayDropped  *metrics.Counter
	replayDuration *metrics.Histogram
}

var _ types.MetricsCollector = (*Collector)(nil)

// New creates a new VictoriaMetrics-based metrics collector.
//
// The collector creates its own metrics.Set and registers it globally unless
// WithMetricsSet is given.
//
// Parameters:
//   - opts: Configuration options (e.g., WithPrefix)
//
// Returns:
//   - *Collector: A new metrics collector ready for use
//
// Example:
//
//	collector := vm.New(vm.WithPrefix("myapp"))
//	session, _ := strand.NewSession(meta, pools,
//	    strand.WithMetrics(collector),
//	)
func New(opts ...Option) *Collector {
	c := &Collector{
		prefix: "strand",
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.set == nil {
		c.set = metrics.NewSet()
		metrics.RegisterSet(c.set)
	}

	c.initMetrics()

	return c
}

func (c *Collector) initMetrics() {
	p := c.prefix

	c.requestTotal = c.set.NewCounter(p + "_requests_total")
	c.requestDuration = c.set.NewHistogram(p + "_request_duration_seconds")
	c.noHostAvailable = c.set.NewCounter(p + "_no_host_available_total")
	c.speculativeStarted = c.set.NewCounter(p + "_speculative_executions_total")

	c.replayEnqueued = c.set.NewCounter(p + "_replay_enqueued_total")
	c.replaySuccess = c.set.NewCounter(p + "_replay_success_total")
	c.replayErrors = c.set.NewCounter(p + "_replay_errors_total")
	c.replayDropped = c.set.NewCounter(p + "_replay_dropped_total")
	c.replayDuration = c.set.NewHistogram(p + "_replay_duration_seconds")

	c.requestErrors = make(map[types.ErrorKind]*metrics.Counter)
	c.ignores = make(map[types.ErrorKind]*metrics.Counter)
	for kind := types.KindSocket; kind <= types.KindInvalid; kind++ {
		c.requestErrors[kind] = c.set.NewCounter(fmt.Sprintf(`%s_request_errors_total{kind="%s"}`, p, kind))
		c.ignores[kind] = c.set.NewCounter(fmt.Sprintf(`%s_ignored_errors_total{kind="%s"}`, p, kind))
	}

	c.retries = make(map[types.DecisionType]*metrics.Counter)
	for _, d := range []types.DecisionType{types.DecisionRetry, types.DecisionRethrow, types.DecisionIgnore} {
		c.retries[d] = c.set.NewCounter(fmt.Sprintf(`%s_retry_decisions_total{decision="%s"}`, p, d))
	}
}

// Set returns the underlying metrics set.
func (c *Collector) Set() *metrics.Set {
	return c.set
}

// Handler exposes metrics in Prometheus format.
//
// Example:
//
//	http.HandleFunc("/metrics", collector.Handler)
func (c *Collector) Handler(w http.ResponseWriter, _ *http.Request) {
	c.set.WritePrometheus(w)
}

// WritePrometheus writes all metrics in Prometheus format to w.
func (c *Collector) WritePrometheus(w io.Writer) {
	c.set.WritePrometheus(w)
}

// ----------------------
// Requests
// ----------------------

// IncRequestTotal increments the counter of requests sent.
func (c *Collector) IncRequestTotal() {
	c.requestTotal.Inc()
}

// IncRequestError increments the counter of failed attempts by error kind.
func (c *Collector) IncRequestError(kind types.ErrorKind) {
	if counter, ok := c.requestErrors[kind]; ok {
		counter.Inc()
	}
}

// ObserveRequestDuration records a request duration in seconds.
func (c *Collector) ObserveRequestDuration(seconds float64) {
	c.requestDuration.Update(seconds)
}

// IncNoHostAvailable increments the counter of exhausted query plans.
func (c *Collector) IncNoHostAvailable() {
	c.noHostAvailable.Inc()
}

// ----------------------
// Retries
// ----------------------

// IncRetry increments the counter of retry decisions by outcome.
func (c *Collector) IncRetry(decision types.DecisionType) {
	if counter, ok := c.retries[decision]; ok {
		counter.Inc()
	}
}

// IncIgnore increments the counter of ignored errors by kind.
func (c *Collector) IncIgnore(kind types.ErrorKind) {
	if counter, ok := c.ignores[kind]; ok {
		counter.Inc()
	}
}

// IncSpeculativeExecution increments the counter of speculative executions.
func (c *Collector) IncSpeculativeExecution() {
	c.speculativeStarted.Inc()
}

// ----------------------
// Hosts
// ----------------------

// IncHostDown increments the counter of up to down transitions of host.
func (c *Collector) IncHostDown(host string) {
	c.hostCounter("host_down_total", host).Inc()
}

// IncHostUp increments the counter of down to up transitions of host.
func (c *Collector) IncHostUp(host string) {
	c.hostCounter("host_up_total", host).Inc()
}

// IncReconnectionAttempt increments the counter of reconnection probes of host.
func (c *Collector) IncReconnectionAttempt(host string) {
	c.hostCounter("reconnection_attempts_total", host).Inc()
}

// ----------------------
// Replay
// ----------------------

// IncReplayEnqueued increments the counter of writes handed to the replayer.
func (c *Collector) IncReplayEnqueued() {
	c.replayEnqueued.Inc()
}

// IncReplaySuccess increments the counter of successful replays.
func (c *Collector) IncReplaySuccess() {
	c.replaySuccess.Inc()
}

// IncReplayError increments the counter of failed replay attempts.
func (c *Collector) IncReplayError() {
	c.replayErrors.Inc()
}

// IncReplayDropped increments the counter of dropped replays.
func (c *Collector) IncReplayDropped() {
	c.replayDropped.Inc()
}

// ObserveReplayDuration records a replay attempt duration in seconds.
func (c *Collector) ObserveReplayDuration(seconds float64) {
	c.replayDuration.Update(seconds)
}

func (c *Collector) hostCounter(name, host string) *metrics.Counter {
	return c.set.GetOrCreateCounter(fmt.Sprintf(`%s_%s{host=%q}`, c.prefix, name, host))
}
