// Package metrics provides internal metrics utilities for strand.
package metrics

import "github.com/arloliu/strand/types"

// NopMetrics is a no-op metrics collector that discards all metrics.
//
// This is used as the default metrics collector when no collector is configured,
// avoiding nil checks throughout the codebase.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements types.MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNopMetrics creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A collector that discards all metrics
func NewNopMetrics() *NopMetrics {
	return &NopMetrics{}
}

// OrNop returns collector, or a NopMetrics when collector is nil.
func OrNop(collector types.MetricsCollector) types.MetricsCollector {
	if collector == nil {
		return NewNopMetrics()
	}

	return collector
}

// IncRequestTotal discards the metric.
func (m *NopMetrics) IncRequestTotal() {}

// IncRequestError discards the metric.
func (m *NopMetrics) IncRequestError(_ types.ErrorKind) {}

// ObserveRequestDuration discards the metric.
func (m *NopMetrics) ObserveRequestDuration(_ float64) {}

// IncNoHostAvailable discards the metric.
func (m *NopMetrics) IncNoHostAvailable() {}

// IncRetry discards the metric.
func (m *NopMetrics) IncRetry(_ types.DecisionType) {}

// IncIgnore discards the metric.
func (m *NopMetrics) IncIgnore(_ types.ErrorKind) {}

// IncSpeculativeExecution discards the metric.
func (m *NopMetrics) IncSpeculativeExecution() {}

// IncHostDown discards the metric.
func (m *NopMetrics) IncHostDown(_ string) {}

// IncHostUp discards the metric.
func (m *NopMetrics) IncHostUp(_ string) {}

// IncReconnectionAttempt discards the metric.
func (m *NopMetrics) IncReconnectionAttempt(_ string) {}

// IncReplayEnqueued discards the metric.
func (m *NopMetrics) IncReplayEnqueued() {}

// IncReplaySuccess discards the metric.
func (m *NopMetrics) IncReplaySuccess() {}

// IncReplayError discards the metric.
func (m *NopMetrics) IncReplayError() {}

// IncReplayDropped discards the metric.
func (m *NopMetrics) IncReplayDropped() {}

// ObserveReplayDuration discards the metric.
func (m *NopMetrics) ObserveReplayDuration(_ float64) {}
