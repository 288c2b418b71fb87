// Package v1 provides a strand connection adapter for gocql v1.x.
//
// Every host gets its own gocql session restricted to that host with a host
// filter, initial host lookup disabled and gocql's retry policy turned off.
// Host selection, retries and speculative executions are then entirely
// driven by the strand request execution engine.
//
// # Usage
//
//	import (
//	    "github.com/arloliu/strand"
//	    v1 "github.com/arloliu/strand/adapter/cql/v1"
//	    "github.com/gocql/gocql"
//	)
//
//	pools := v1.NewPoolFactory(
//	    v1.WithKeyspace("my_keyspace"),
//	    v1.WithClusterConfig(func(c *gocql.ClusterConfig) {
//	        c.Authenticator = gocql.PasswordAuthenticator{Username: "u", Password: "p"}
//	    }),
//	)
//	session, err := strand.NewSession(registry, pools)
//
// # Error classification
//
// [ClassifyError] maps gocql errors to *types.RequestError: unavailable,
// read and write timeouts keep their replica counts, other server errors
// are classified by protocol code, gocql.ErrTimeoutNoResponse and context
// deadlines become operation timeouts, and transport errors become socket
// errors.
//
// # Type Conversions
//
//   - [ToGocqlConsistency]: Converts strand Consistency to gocql.Consistency
//   - [FromGocqlConsistency]: Converts gocql.Consistency to strand Consistency
//   - [ToGocqlSerialConsistency]: Converts strand Consistency to gocql.SerialConsistency
//   - [ToGocqlBatchType]: Converts strand BatchType to gocql.BatchType
//
// # Thread Safety
//
// All adapter types are safe for concurrent use, matching gocql's thread safety guarantees.
package v1
