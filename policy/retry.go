package policy

import "github.com/arloliu/strand/types"

// DefaultRetryPolicy is the retry policy used when none is configured.
//
// It only retries when the outcome is very likely to change and never
// retries more than once per failure category:
//   - read timeout: retry on the same host at the same consistency if enough
//     replicas answered but the data was not retrieved
//   - write timeout: retry only batch-log writes
//   - unavailable: retry once on the next host
//   - request errors: retry transport, timeout, overloaded and bootstrapping
//     errors on the next host; rethrow everything else
type DefaultRetryPolicy struct{}

// Compile-time assertion that DefaultRetryPolicy implements types.ExtendedRetryPolicy.
var _ types.ExtendedRetryPolicy = (*DefaultRetryPolicy)(nil)

// NewDefaultRetryPolicy creates a new DefaultRetryPolicy.
//
// Returns:
//   - *DefaultRetryPolicy: A new default retry policy
func NewDefaultRetryPolicy() *DefaultRetryPolicy {
	return &DefaultRetryPolicy{}
}

// OnReadTimeout retries once when enough replicas responded but none
// returned data.
//
// Parameters:
//   - stmt: The statement that timed out (unused)
//   - cl: Consistency level of the failed attempt (unused)
//   - required: Number of responses required by the consistency level
//   - received: Number of responses received
//   - dataRetrieved: Whether the data replica responded
//   - attempt: Retries already performed
//
// Returns:
//   - types.RetryDecision: Retry on the same host, or Rethrow
func (p *DefaultRetryPolicy) OnReadTimeout(_ types.Statement, _ types.Consistency, required, received int, dataRetrieved bool, attempt int) types.RetryDecision {
	if attempt != 0 {
		return types.Rethrow()
	}
	if received >= required && !dataRetrieved {
		return types.Retry()
	}

	return types.Rethrow()
}

// OnWriteTimeout retries once for batch-log writes only.
//
// Any other write may have been partially applied, so retrying is left to
// the caller.
func (p *DefaultRetryPolicy) OnWriteTimeout(_ types.Statement, _ types.Consistency, writeType types.WriteType, _, _ int, attempt int) types.RetryDecision {
	if attempt != 0 {
		return types.Rethrow()
	}
	if writeType == types.WriteTypeBatchLog {
		return types.Retry()
	}

	return types.Rethrow()
}

// OnUnavailable retries once on the next host.
//
// The coordinator's view of the ring may be stale; another coordinator can
// see enough live replicas.
func (p *DefaultRetryPolicy) OnUnavailable(_ types.Statement, _ types.Consistency, _, _ int, attempt int) types.RetryDecision {
	if attempt != 0 {
		return types.Rethrow()
	}

	return types.RetryNextHost()
}

// OnRequestError retries errors that are specific to one coordinator on the
// next host.
func (p *DefaultRetryPolicy) OnRequestError(_ types.Statement, err *types.RequestError, _ int) types.RetryDecision {
	switch err.Kind {
	case types.KindSocket, types.KindOperationTimeout, types.KindOverloaded, types.KindIsBootstrapping:
		return types.RetryNextHost()
	default:
		return types.Rethrow()
	}
}

// FallthroughRetryPolicy never retries.
//
// Every failure is surfaced to the caller, which is expected to implement
// its own retry logic.
type FallthroughRetryPolicy struct{}

// Compile-time assertion that FallthroughRetryPolicy implements types.ExtendedRetryPolicy.
var _ types.ExtendedRetryPolicy = (*FallthroughRetryPolicy)(nil)

// NewFallthroughRetryPolicy creates a new FallthroughRetryPolicy.
//
// Returns:
//   - *FallthroughRetryPolicy: A policy that always rethrows
func NewFallthroughRetryPolicy() *FallthroughRetryPolicy {
	return &FallthroughRetryPolicy{}
}

// OnReadTimeout always rethrows.
func (p *FallthroughRetryPolicy) OnReadTimeout(types.Statement, types.Consistency, int, int, bool, int) types.RetryDecision {
	return types.Rethrow()
}

// OnWriteTimeout always rethrows.
func (p *FallthroughRetryPolicy) OnWriteTimeout(types.Statement, types.Consistency, types.WriteType, int, int, int) types.RetryDecision {
	return types.Rethrow()
}

// OnUnavailable always rethrows.
func (p *FallthroughRetryPolicy) OnUnavailable(types.Statement, types.Consistency, int, int, int) types.RetryDecision {
	return types.Rethrow()
}

// OnRequestError always rethrows.
func (p *FallthroughRetryPolicy) OnRequestError(types.Statement, *types.RequestError, int) types.RetryDecision {
	return types.Rethrow()
}
