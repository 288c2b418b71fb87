package policy

import "github.com/arloliu/strand/types"

// IdempotenceAwareRetryPolicy wraps a child policy and prevents retrying
// writes that are not known to be idempotent.
//
// Read timeouts and unavailable errors are delegated to the child. Write
// timeouts and request errors are rethrown unless the statement is marked
// types.Idempotent; statements with unknown idempotence are treated as not
// idempotent.
type IdempotenceAwareRetryPolicy struct {
	child types.RetryPolicy
}

// Compile-time assertion that IdempotenceAwareRetryPolicy implements types.ExtendedRetryPolicy.
var _ types.ExtendedRetryPolicy = (*IdempotenceAwareRetryPolicy)(nil)

// NewIdempotenceAwareRetryPolicy creates a new IdempotenceAwareRetryPolicy.
//
// Parameters:
//   - child: Policy consulted for idempotent statements (nil uses DefaultRetryPolicy)
//
// Returns:
//   - *IdempotenceAwareRetryPolicy: A new idempotence-aware wrapper
func NewIdempotenceAwareRetryPolicy(child types.RetryPolicy) *IdempotenceAwareRetryPolicy {
	if child == nil {
		child = NewDefaultRetryPolicy()
	}

	return &IdempotenceAwareRetryPolicy{child: child}
}

// Child returns the wrapped policy.
func (p *IdempotenceAwareRetryPolicy) Child() types.RetryPolicy {
	return p.child
}

func isIdempotent(stmt types.Statement) bool {
	return stmt != nil && stmt.Idempotence() == types.Idempotent
}

// OnReadTimeout delegates to the child policy.
func (p *IdempotenceAwareRetryPolicy) OnReadTimeout(stmt types.Statement, cl types.Consistency, required, received int, dataRetrieved bool, attempt int) types.RetryDecision {
	return p.child.OnReadTimeout(stmt, cl, required, received, dataRetrieved, attempt)
}

// OnWriteTimeout delegates to the child for idempotent statements and
// rethrows otherwise.
func (p *IdempotenceAwareRetryPolicy) OnWriteTimeout(stmt types.Statement, cl types.Consistency, writeType types.WriteType, required, received int, attempt int) types.RetryDecision {
	if !isIdempotent(stmt) {
		return types.Rethrow()
	}

	return p.child.OnWriteTimeout(stmt, cl, writeType, required, received, attempt)
}

// OnUnavailable delegates to the child policy.
//
// Nothing was applied when the coordinator reports unavailable, so retrying
// is safe regardless of idempotence.
func (p *IdempotenceAwareRetryPolicy) OnUnavailable(stmt types.Statement, cl types.Consistency, required, alive int, attempt int) types.RetryDecision {
	return p.child.OnUnavailable(stmt, cl, required, alive, attempt)
}

// OnRequestError rethrows for statements that are not idempotent.
//
// For idempotent statements it delegates to the child when the child is an
// extended policy, and retries on the next host otherwise.
func (p *IdempotenceAwareRetryPolicy) OnRequestError(stmt types.Statement, err *types.RequestError, attempt int) types.RetryDecision {
	if !isIdempotent(stmt) {
		return types.Rethrow()
	}
	if ext, ok := p.child.(types.ExtendedRetryPolicy); ok {
		return ext.OnRequestError(stmt, err, attempt)
	}

	return types.RetryNextHost()
}
