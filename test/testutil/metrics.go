package testutil

import (
	"sync"
	"sync/atomic"

	"github.com/arloliu/strand/types"
)

// TestMetricsCollector is a test implementation of types.MetricsCollector
// that tracks method calls for assertion in integration tests.
type TestMetricsCollector struct {
	mu sync.RWMutex

	// Requests
	RequestErrors map[types.ErrorKind]int64
	Durations     []float64

	// Retries
	RetryDecisions map[types.DecisionType]int64
	Ignored        map[types.ErrorKind]int64

	// Hosts
	HostDown             map[string]int64
	HostUp               map[string]int64
	ReconnectionAttempts map[string]int64

	// Atomic counters for quick access
	requestTotal     atomic.Int64
	noHostAvailable  atomic.Int64
	speculativeTotal atomic.Int64
	replayEnqueued   atomic.Int64
	replaySuccess    atomic.Int64
	replayErrors     atomic.Int64
	replayDropped    atomic.Int64
}

// Compile-time assertion that TestMetricsCollector implements types.MetricsCollector.
var _ types.MetricsCollector = (*TestMetricsCollector)(nil)

// NewTestMetricsCollector creates a new test metrics collector.
func NewTestMetricsCollector() *TestMetricsCollector {
	m := &TestMetricsCollector{}
	m.Reset()

	return m
}

// IncRequestTotal implements types.MetricsCollector.
func (m *TestMetricsCollector) IncRequestTotal() {
	m.requestTotal.Add(1)
}

// IncRequestError implements types.MetricsCollector.
func (m *TestMetricsCollector) IncRequestError(kind types.ErrorKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestErrors[kind]++
}

// ObserveRequestDuration implements types.MetricsCollector.
func (m *TestMetricsCollector) ObserveRequestDuration(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Durations = append(m.Durations, seconds)
}

// IncNoHostAvailable implements types.MetricsCollector.
func (m *TestMetricsCollector) IncNoHostAvailable() {
	m.noHostAvailable.Add(1)
}

// IncRetry implements types.MetricsCollector.
func (m *TestMetricsCollector) IncRetry(decision types.DecisionType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RetryDecisions[decision]++
}

// IncIgnore implements types.MetricsCollector.
func (m *TestMetricsCollector) IncIgnore(kind types.ErrorKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Ignored[kind]++
}

// IncSpeculativeExecution implements types.MetricsCollector.
func (m *TestMetricsCollector) IncSpeculativeExecution() {
	m.speculativeTotal.Add(1)
}

// IncHostDown implements types.MetricsCollector.
func (m *TestMetricsCollector) IncHostDown(host string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HostDown[host]++
}

// IncHostUp implements types.MetricsCollector.
func (m *TestMetricsCollector) IncHostUp(host string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HostUp[host]++
}

// IncReconnectionAttempt implements types.MetricsCollector.
func (m *TestMetricsCollector) IncReconnectionAttempt(host string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReconnectionAttempts[host]++
}

// IncReplayEnqueued implements types.MetricsCollector.
func (m *TestMetricsCollector) IncReplayEnqueued() {
	m.replayEnqueued.Add(1)
}

// IncReplaySuccess implements types.MetricsCollector.
func (m *TestMetricsCollector) IncReplaySuccess() {
	m.replaySuccess.Add(1)
}

// IncReplayError implements types.MetricsCollector.
func (m *TestMetricsCollector) IncReplayError() {
	m.replayErrors.Add(1)
}

// IncReplayDropped implements types.MetricsCollector.
func (m *TestMetricsCollector) IncReplayDropped() {
	m.replayDropped.Add(1)
}

// ObserveReplayDuration implements types.MetricsCollector.
func (m *TestMetricsCollector) ObserveReplayDuration(float64) {}

// GetReplayEnqueued returns the number of writes handed to the replayer.
func (m *TestMetricsCollector) GetReplayEnqueued() int64 {
	return m.replayEnqueued.Load()
}

// GetReplaySuccess returns the number of successful replays.
func (m *TestMetricsCollector) GetReplaySuccess() int64 {
	return m.replaySuccess.Load()
}

// GetReplayDropped returns the number of dropped replays.
func (m *TestMetricsCollector) GetReplayDropped() int64 {
	return m.replayDropped.Load()
}

// GetRequestTotal returns the number of requests sent.
func (m *TestMetricsCollector) GetRequestTotal() int64 {
	return m.requestTotal.Load()
}

// GetNoHostAvailable returns the number of requests that exhausted their plan.
func (m *TestMetricsCollector) GetNoHostAvailable() int64 {
	return m.noHostAvailable.Load()
}

// GetSpeculativeExecutions returns the number of speculative executions started.
func (m *TestMetricsCollector) GetSpeculativeExecutions() int64 {
	return m.speculativeTotal.Load()
}

// GetRequestErrors returns the number of failed attempts of the given kind.
func (m *TestMetricsCollector) GetRequestErrors(kind types.ErrorKind) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.RequestErrors[kind]
}

// GetRetryDecisions returns the number of retry decisions of the given type.
func (m *TestMetricsCollector) GetRetryDecisions(decision types.DecisionType) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.RetryDecisions[decision]
}

// GetHostDown returns the number of down transitions of host.
func (m *TestMetricsCollector) GetHostDown(host string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.HostDown[host]
}

// Reset clears all recorded metrics.
func (m *TestMetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RequestErrors = make(map[types.ErrorKind]int64)
	m.Durations = nil
	m.RetryDecisions = make(map[types.DecisionType]int64)
	m.Ignored = make(map[types.ErrorKind]int64)
	m.HostDown = make(map[string]int64)
	m.HostUp = make(map[string]int64)
	m.ReconnectionAttempts = make(map[string]int64)

	m.requestTotal.Store(0)
	m.noHostAvailable.Store(0)
	m.speculativeTotal.Store(0)
	m.replayEnqueued.Store(0)
	m.replaySuccess.Store(0)
	m.replayErrors.Store(0)
	m.replayDropped.Store(0)
}
