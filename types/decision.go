package types

// DecisionType is the tag of a RetryDecision.
type DecisionType int

const (
	// DecisionRetry resends the request.
	DecisionRetry DecisionType = iota
	// DecisionRethrow surfaces the error to the caller.
	DecisionRethrow
	// DecisionIgnore completes the request with an empty result.
	DecisionIgnore
)

// String returns the metric-friendly name of the decision.
func (t DecisionType) String() string {
	switch t {
	case DecisionRetry:
		return "retry"
	case DecisionRethrow:
		return "rethrow"
	case DecisionIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

// RetryDecision is what a RetryPolicy wants done after a failed attempt.
//
// Only a Retry decision may carry a consistency level and a same-host flag.
// The zero value is equivalent to RetryNextHost.
type RetryDecision struct {
	typ            DecisionType
	consistency    Consistency
	hasConsistency bool
	useCurrentHost bool
}

// Retry retries on the same host with the consistency level used for the
// failed attempt.
func Retry() RetryDecision {
	return RetryDecision{typ: DecisionRetry, useCurrentHost: true}
}

// RetryNextHost retries on the next host of the query plan with the
// consistency level used for the failed attempt.
func RetryNextHost() RetryDecision {
	return RetryDecision{typ: DecisionRetry}
}

// RetryWith retries with an explicit consistency level.
//
// Parameters:
//   - cl: Consistency level for the next attempt
//   - useCurrentHost: Retry on the same host instead of the next plan host
//
// Returns:
//   - RetryDecision: A Retry decision carrying cl
func RetryWith(cl Consistency, useCurrentHost bool) RetryDecision {
	return RetryDecision{
		typ:            DecisionRetry,
		consistency:    cl,
		hasConsistency: true,
		useCurrentHost: useCurrentHost,
	}
}

// Rethrow surfaces the error to the caller.
func Rethrow() RetryDecision {
	return RetryDecision{typ: DecisionRethrow}
}

// Ignore completes the request successfully with an empty result set.
func Ignore() RetryDecision {
	return RetryDecision{typ: DecisionIgnore}
}

// Type returns the decision tag.
func (d RetryDecision) Type() DecisionType {
	return d.typ
}

// Consistency returns the consistency level to retry with, if any.
//
// Returns:
//   - Consistency: The new level
//   - bool: false when the previous level should be kept
func (d RetryDecision) Consistency() (Consistency, bool) {
	return d.consistency, d.hasConsistency
}

// UseCurrentHost reports whether a Retry should target the same host.
func (d RetryDecision) UseCurrentHost() bool {
	return d.useCurrentHost
}

// String implements fmt.Stringer.
func (d RetryDecision) String() string {
	if d.typ != DecisionRetry {
		return d.typ.String()
	}
	s := "retry"
	if d.useCurrentHost {
		s += " same-host"
	} else {
		s += " next-host"
	}
	if d.hasConsistency {
		s += " at " + d.consistency.String()
	}

	return s
}
