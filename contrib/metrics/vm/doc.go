// Package vm provides a VictoriaMetrics-based implementation of the
// MetricsCollector interface.
//
// This package uses github.com/VictoriaMetrics/metrics for lightweight,
// Prometheus-compatible metrics collection.
//
// # Basic Usage
//
//	collector := vm.New()
//	session, _ := strand.NewSession(meta, pools,
//	    strand.WithMetrics(collector),
//	)
//
// Use WithPrefix to customize the metric name prefix:
//
//	collector := vm.New(vm.WithPrefix("myapp"))
//
// # Exposing Metrics
//
//	http.HandleFunc("/metrics", collector.Handler)
//	http.ListenAndServe(":8080", nil)
//
// # Metrics Provided
//
// Requests:
//   - {prefix}_requests_total - Counter of requests sent
//   - {prefix}_request_errors_total{kind} - Counter of failed attempts by error kind
//   - {prefix}_request_duration_seconds - Histogram of end-to-end request latencies
//   - {prefix}_no_host_available_total - Counter of requests that exhausted their query plan
//
// Retries:
//   - {prefix}_retry_decisions_total{decision} - Counter of retry policy decisions
//   - {prefix}_ignored_errors_total{kind} - Counter of errors ignored by the retry policy
//   - {prefix}_speculative_executions_total - Counter of speculative executions started
//
// Hosts:
//   - {prefix}_host_down_total{host} - Counter of up to down transitions
//   - {prefix}_host_up_total{host} - Counter of down to up transitions
//   - {prefix}_reconnection_attempts_total{host} - Counter of reconnection probes
//
// # Performance Notes
//
// Request metrics are pre-created with the NewXXX functions so the hot path
// never takes the set's lock. Host metrics use GetOrCreateCounter because
// hosts join and leave at runtime.
package vm
