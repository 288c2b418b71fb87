// Package testutil provides helpers for strand integration tests.
//
// # Containers
//
//   - [StartCQLCluster]: Starts a single-node ScyllaDB or Cassandra
//     container and creates the test keyspace (requires Docker)
//   - [StartEmbeddedNATS]: Starts an in-process NATS server with JetStream
//
// # Doubles
//
//   - [TestMetricsCollector]: Records every metric for assertions
//   - [SlowPoolFactory]: Delays requests to chosen hosts so speculative
//     executions can be observed against a real database
package testutil
