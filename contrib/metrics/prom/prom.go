// Package prom provides a Prometheus client_golang implementation of the
// MetricsCollector interface.
//
// Basic usage:
//
//	collector := prom.New(prom.WithRegisterer(prometheus.DefaultRegisterer))
//	session, _ := strand.NewSession(meta, pools,
//	    strand.WithMetrics(collector),
//	)
//	http.Handle("/metrics", promhttp.Handler())
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/strand/types"
)

// Option configures a Collector.
type Option func(*Collector)

// WithNamespace sets the metric namespace.
//
// Default: "strand"
func WithNamespace(namespace string) Option {
	return func(c *Collector) {
		c.namespace = namespace
	}
}

// WithRegisterer sets the registerer the collector registers its metrics
// with.
//
// Default: a new prometheus.Registry, available through Registry.
//
// Parameters:
//   - reg: The registerer to use
//
// Returns:
//   - Option: A configuration option
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Collector) {
		c.registerer = reg
	}
}

// WithDurationBuckets sets the buckets of the request duration histogram.
func WithDurationBuckets(buckets []float64) Option {
	return func(c *Collector) {
		c.buckets = buckets
	}
}

// Collector implements types.MetricsCollector with Prometheus vectors.
type Collector struct {
	namespace  string
	registerer prometheus.Registerer
	registry   *prometheus.Registry
	buckets    []float64

	requestTotal       prometheus.Counter
	requestErrors      *prometheus.CounterVec
	requestDuration    prometheus.Histogram
	noHostAvailable    prometheus.Counter
	retries            *prometheus.CounterVec
	ignores            *prometheus.CounterVec
	speculativeStarted prometheus.Counter
	hostDown           *prometheus.CounterVec
	hostUp             *prometheus.CounterVec
	reconnections      *prometheus.CounterVec
	replays            *prometheus.CounterVec
	replayDuration     prometheus.Histogram
}

var _ types.MetricsCollector = (*Collector)(nil)

// New creates a Prometheus metrics collector and registers its metrics.
//
// Registration panics on duplicate metrics, like prometheus.MustRegister.
//
// Parameters:
//   - opts: Configuration options
//
// Returns:
//   - *Collector: A new metrics collector ready for use
func New(opts ...Option) *Collector {
	c := &Collector{
		namespace: "strand",
		// request latencies range from sub-millisecond reads to multi-second timeouts
		buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registerer == nil {
		c.registry = prometheus.NewRegistry()
		c.registerer = c.registry
	}

	ns := c.namespace
	c.requestTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "requests_total",
		Help:      "Total count of requests sent.",
	})
	c.requestErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "request_errors_total",
		Help:      "Total count of failed attempts by error kind.",
	}, []string{"kind"})
	c.requestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "request_duration_seconds",
		Help:      "End-to-end request duration in seconds.",
		Buckets:   c.buckets,
	})
	c.noHostAvailable = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "no_host_available_total",
		Help:      "Total count of requests that exhausted their query plan.",
	})
	c.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "retry_decisions_total",
		Help:      "Total count of retry policy decisions by outcome.",
	}, []string{"decision"})
	c.ignores = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "ignored_errors_total",
		Help:      "Total count of errors ignored by the retry policy.",
	}, []string{"kind"})
	c.speculativeStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "speculative_executions_total",
		Help:      "Total count of speculative executions started.",
	})
	c.hostDown = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "host_down_total",
		Help:      "Total count of host transitions to down.",
	}, []string{"host"})
	c.hostUp = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "host_up_total",
		Help:      "Total count of host transitions to up.",
	}, []string{"host"})
	c.reconnections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "reconnection_attempts_total",
		Help:      "Total count of reconnection probes.",
	}, []string{"host"})

	c.replays = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "replays_total",
		Help:      "Total count of replayed writes by outcome.",
	}, []string{"outcome"})
	c.replayDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "replay_duration_seconds",
		Help:      "Duration of replay attempts in seconds.",
		Buckets:   c.buckets,
	})

	c.registerer.MustRegister(
		c.requestTotal,
		c.requestErrors,
		c.requestDuration,
		c.noHostAvailable,
		c.retries,
		c.ignores,
		c.speculativeStarted,
		c.hostDown,
		c.hostUp,
		c.reconnections,
		c.replays,
		c.replayDuration,
	)

	return c
}

// Registry returns the registry created by New, or nil when WithRegisterer
// was given.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// IncRequestTotal increments the counter of requests sent.
func (c *Collector) IncRequestTotal() {
	c.requestTotal.Inc()
}

// IncRequestError increments the counter of failed attempts by error kind.
func (c *Collector) IncRequestError(kind types.ErrorKind) {
	c.requestErrors.WithLabelValues(kind.String()).Inc()
}

// ObserveRequestDuration records a request duration in seconds.
func (c *Collector) ObserveRequestDuration(seconds float64) {
	c.requestDuration.Observe(seconds)
}

// IncNoHostAvailable increments the counter of exhausted query plans.
func (c *Collector) IncNoHostAvailable() {
	c.noHostAvailable.Inc()
}

// IncRetry increments the counter of retry decisions by outcome.
func (c *Collector) IncRetry(decision types.DecisionType) {
	c.retries.WithLabelValues(decision.String()).Inc()
}

// IncIgnore increments the counter of ignored errors by kind.
func (c *Collector) IncIgnore(kind types.ErrorKind) {
	c.ignores.WithLabelValues(kind.String()).Inc()
}

// IncSpeculativeExecution increments the counter of speculative executions.
func (c *Collector) IncSpeculativeExecution() {
	c.speculativeStarted.Inc()
}

// IncHostDown increments the counter of up to down transitions of host.
func (c *Collector) IncHostDown(host string) {
	c.hostDown.WithLabelValues(host).Inc()
}

// IncHostUp increments the counter of down to up transitions of host.
func (c *Collector) IncHostUp(host string) {
	c.hostUp.WithLabelValues(host).Inc()
}

// IncReconnectionAttempt increments the counter of reconnection probes of host.
func (c *Collector) IncReconnectionAttempt(host string) {
	c.reconnections.WithLabelValues(host).Inc()
}

// IncReplayEnqueued increments the replay counter with outcome "enqueued".
func (c *Collector) IncReplayEnqueued() {
	c.replays.WithLabelValues("enqueued").Inc()
}

// IncReplaySuccess increments the replay counter with outcome "success".
func (c *Collector) IncReplaySuccess() {
	c.replays.WithLabelValues("success").Inc()
}

// IncReplayError increments the replay counter with outcome "error".
func (c *Collector) IncReplayError() {
	c.replays.WithLabelValues("error").Inc()
}

// IncReplayDropped increments the replay counter with outcome "dropped".
func (c *Collector) IncReplayDropped() {
	c.replays.WithLabelValues("dropped").Inc()
}

// ObserveReplayDuration records a replay attempt duration in seconds.
func (c *Collector) ObserveReplayDuration(seconds float64) {
	c.replayDuration.Observe(seconds)
}
