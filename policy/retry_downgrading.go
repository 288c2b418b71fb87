package policy

import "github.com/arloliu/strand/types"

// DowngradingConsistencyRetryPolicy retries at a lower consistency level
// when the requested one cannot be reached.
//
// WARNING: this policy breaks the consistency guarantees the caller asked
// for. A read that succeeds at a downgraded level may miss the latest write,
// and a write acknowledged at a downgraded level may be lost if the replicas
// that applied it fail. Only use it when availability matters more than
// consistency, and only by explicit opt-in.
//
// The retry level is the highest one likely to succeed given the number of
// replicas known to be healthy: 3 or more gives Three, 2 gives Two, 1 gives
// One and 0 rethrows. It never retries more than once.
type DowngradingConsistencyRetryPolicy struct{}

// Compile-time assertion that DowngradingConsistencyRetryPolicy implements types.ExtendedRetryPolicy.
var _ types.ExtendedRetryPolicy = (*DowngradingConsistencyRetryPolicy)(nil)

// NewDowngradingConsistencyRetryPolicy creates a new DowngradingConsistencyRetryPolicy.
//
// Returns:
//   - *DowngradingConsistencyRetryPolicy: A new downgrading retry policy
func NewDowngradingConsistencyRetryPolicy() *DowngradingConsistencyRetryPolicy {
	return &DowngradingConsistencyRetryPolicy{}
}

// maxLikelyToWork returns the decision for a retry given knownOK healthy
// replicas. Zero known replicas always rethrows, EACH_QUORUM included.
func maxLikelyToWork(knownOK int) types.RetryDecision {
	switch {
	case knownOK >= 3:
		return types.RetryWith(types.Three, true)
	case knownOK == 2:
		return types.RetryWith(types.Two, true)
	case knownOK == 1:
		return types.RetryWith(types.One, true)
	default:
		return types.Rethrow()
	}
}

// OnReadTimeout downgrades when too few replicas answered, and retries at the
// same level when enough answered without data.
//
// Parameters:
//   - stmt: The statement that timed out (unused)
//   - cl: Consistency level of the failed attempt
//   - required: Number of responses required by cl
//   - received: Number of responses received
//   - dataRetrieved: Whether the data replica responded
//   - attempt: Retries already performed
//
// Returns:
//   - types.RetryDecision: Retry at a possibly lower level, or Rethrow
func (p *DowngradingConsistencyRetryPolicy) OnReadTimeout(_ types.Statement, cl types.Consistency, required, received int, dataRetrieved bool, attempt int) types.RetryDecision {
	if attempt != 0 {
		return types.Rethrow()
	}
	// Serial reads cannot be downgraded to a non-serial level.
	if cl.IsSerial() {
		return types.Rethrow()
	}
	if received < required {
		return maxLikelyToWork(received)
	}
	if !dataRetrieved {
		return types.Retry()
	}

	return types.Rethrow()
}

// OnWriteTimeout ignores partially applied simple and batch writes, downgrades
// unlogged batches and retries batch-log writes.
func (p *DowngradingConsistencyRetryPolicy) OnWriteTimeout(_ types.Statement, _ types.Consistency, writeType types.WriteType, _, received int, attempt int) types.RetryDecision {
	if attempt != 0 {
		return types.Rethrow()
	}

	switch writeType {
	case types.WriteTypeSimple, types.WriteTypeBatch:
		// At least one replica has the write; it will be propagated eventually.
		if received > 0 {
			return types.Ignore()
		}

		return types.Rethrow()
	case types.WriteTypeUnloggedBatch:
		// Parts of the batch may be applied; retrying at a level that can
		// succeed gets the remaining parts in.
		return maxLikelyToWork(received)
	case types.WriteTypeBatchLog:
		return types.Retry()
	default:
		return types.Rethrow()
	}
}

// OnUnavailable downgrades to the number of live replicas.
//
// A serial unavailable is raised during the paxos phase and is retried on
// the next host at the same level instead.
func (p *DowngradingConsistencyRetryPolicy) OnUnavailable(_ types.Statement, cl types.Consistency, _, alive int, attempt int) types.RetryDecision {
	if attempt != 0 {
		return types.Rethrow()
	}
	if cl.IsSerial() {
		return types.RetryNextHost()
	}

	return maxLikelyToWork(alive)
}

// OnRequestError retries on the next host.
func (p *DowngradingConsistencyRetryPolicy) OnRequestError(types.Statement, *types.RequestError, int) types.RetryDecision {
	return types.RetryNextHost()
}
