// Package topology provides the cluster metadata collaborators of a strand
// session.
//
// # Local
//
// [Local] is an in-memory host registry implementing [types.Metadata]:
//
//	meta := topology.NewLocal(
//	    topology.WithHosts(
//	        types.NewHost("10.0.0.1:9042", "dc1", "r1"),
//	        types.NewHost("10.0.0.2:9042", "dc1", "r2"),
//	    ),
//	    topology.WithReplicationFactor("app", 3),
//	)
//	defer meta.Close()
//
// Replicas of a routing key are found on a token ring built with xxhash,
// which gives token-aware load balancing a stable replica set without a
// connection to the cluster's system tables.
//
// Hosts the session cannot connect to are reported through
// [types.HostStateReporter]. Local marks them down, emits a HostDown event and
// probes them on the schedule of the session's reconnection policy until a
// probe succeeds.
//
// Local also answers schema agreement checks from the schema versions
// recorded with [Local.SetSchemaVersion].
//
// # Drain Mode
//
// [NATS] watches a NATS KV key and drains the hosts listed in it:
//
//	{
//	    "hosts": ["10.0.0.2:9042"],
//	    "reason": "OS Patching"
//	}
//
// A drained host is marked down without reconnection probes, so load
// balancing policies skip it until the key no longer lists it. Deleting the
// key undrains every host.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package topology
