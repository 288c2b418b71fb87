// Package strand is the request execution engine of a wide-column store
// client: it turns one statement into a response by picking hosts, retrying
// and starting speculative executions according to pluggable policies.
//
// Strand sits between the caller and a connection layer. The topology
// (which hosts exist, which are up, which own a partition) and the wire
// protocol are collaborators consumed through narrow interfaces, with
// implementations in the topology and adapter/cql packages.
//
// # Key Features
//
//   - Query Plans: Token-aware, DC-aware round-robin host ordering
//   - Retry Policies: Default, downgrading, idempotence-aware, logging and fallthrough
//   - Speculative Executions: Extra executions of slow idempotent requests
//   - Exactly-Once Completion: The first outcome wins, later ones are dropped
//   - Re-prepare: Statements unknown to a host are prepared again transparently
//
// # Basic Usage
//
//	meta := topology.NewLocal(topology.WithHosts(
//	    types.NewHost("10.0.0.1:9042", "dc1", "r1"),
//	    types.NewHost("10.0.0.2:9042", "dc1", "r2"),
//	))
//	defer meta.Close()
//
//	session, err := strand.NewSession(meta, v1.NewPoolFactory(v1.WithKeyspace("app")),
//	    strand.WithConsistency(strand.LocalQuorum),
//	    strand.WithSpeculativeExecutionPolicy(spec),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	rs, err := session.Execute(ctx, strand.NewSimpleStatement(
//	    "SELECT name FROM users WHERE id = ?", []any{id},
//	    strand.StmtIdempotent(true),
//	))
//
// # Error Handling
//
// A request fails with one of:
//
//   - *types.RequestError: The last error of an attempt the retry policy rethrew
//   - *types.NoHostAvailableError: Every host of the plan was tried or skipped
//   - types.ErrSessionClosed: The session was closed
//   - ctx.Err(): The caller cancelled the request
//
// NoHostAvailableError lists every host pulled from the plan together with
// the last error seen on it:
//
//	var nhErr *types.NoHostAvailableError
//	if errors.As(err, &nhErr) {
//	    for addr, cause := range nhErr.Errors() {
//	        log.Printf("%s: %v", addr, cause)
//	    }
//	}
//
// # Idempotence
//
// Statements declare whether executing them twice is safe with
// StmtIdempotent. Only idempotent statements are executed speculatively and
// retried after transport failures or client-side timeouts. Statements that
// do not declare it follow WithDefaultIdempotence, which defaults to false.
//
// # Ignored Errors
//
// A retry policy may ignore an error, in which case the request succeeds
// with an empty RowSet. Callers cannot tell such a result from an empty
// query result; only policies that trade correctness for availability, like
// policy.DowngradingConsistencyRetryPolicy, ever ignore errors.
package strand
