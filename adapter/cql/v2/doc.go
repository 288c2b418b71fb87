// Package v2 provides a strand connection adapter for the Apache Cassandra
// gocql driver v2 (github.com/apache/cassandra-gocql-driver/v2).
//
// It mirrors the v1 adapter: one gocql session per host, restricted to that
// host, with gocql's own retries disabled. The only differences are the
// driver API used underneath: context-aware IterContext/ExecContext and
// serial consistency expressed as gocql.Consistency.
//
// # Usage
//
//	import (
//	    "github.com/arloliu/strand"
//	    v2 "github.com/arloliu/strand/adapter/cql/v2"
//	)
//
//	pools := v2.NewPoolFactory(v2.WithKeyspace("my_keyspace"), v2.WithProtoVersion(4))
//	session, err := strand.NewSession(registry, pools)
//
// # Type Conversions
//
//   - [ToGocqlConsistency]: Converts strand Consistency to gocql.Consistency
//   - [FromGocqlConsistency]: Converts gocql.Consistency to strand Consistency
//   - [ToGocqlSerialConsistency]: Converts strand Consistency to gocql.Consistency for serial use
//   - [ToGocqlBatchType]: Converts strand BatchType to gocql.BatchType
package v2
