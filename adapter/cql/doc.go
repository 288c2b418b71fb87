// Package cql defines the connection collaborator of the strand request
// execution engine.
//
// The engine never encodes protocol frames itself. It hands a Request to a
// Connection borrowed from the Pool of the chosen host and inspects only the
// high-level shape of the Response (rows, set-keyspace, prepared, schema
// change) and the classification of returned *types.RequestError values.
//
// # Interfaces
//
//   - Connection: Sends a Request over an established transport
//   - Pool: Hands out connections to one host
//   - PoolFactory: Creates the pool of a host when the session first needs it
//
// LazyPool is a ready-made Pool holding one multiplexed connection per host,
// built from a Dialer.
//
// # Adapters
//
// Driver-specific adapters are provided in subpackages:
//
//   - [github.com/arloliu/strand/adapter/cql/v1]: Adapter for gocql v1.x
//   - [github.com/arloliu/strand/adapter/cql/v2]: Adapter for apache/cassandra-gocql-driver v2.x
//
// # Usage
//
//	import (
//	    "github.com/arloliu/strand"
//	    v1 "github.com/arloliu/strand/adapter/cql/v1"
//	    "github.com/arloliu/strand/topology"
//	)
//
//	registry := topology.NewLocal(topology.WithHosts(hosts...))
//	session, _ := strand.NewSession(registry, v1.NewPoolFactory(v1.WithKeyspace("app")))
//	defer session.Close()
package cql
