package policy

import (
	"github.com/arloliu/strand/internal/logging"
	"github.com/arloliu/strand/types"
)

// LoggingRetryPolicy wraps a child policy and logs the decisions that do
// not surface as an error.
//
// Retry and Ignore decisions are logged at Info level. Rethrow is never
// logged since the error reaches the caller anyway.
type LoggingRetryPolicy struct {
	child  types.RetryPolicy
	logger types.Logger
}

// Compile-time assertion that LoggingRetryPolicy implements types.ExtendedRetryPolicy.
var _ types.ExtendedRetryPolicy = (*LoggingRetryPolicy)(nil)

// LoggingRetryOption configures a LoggingRetryPolicy.
type LoggingRetryOption func(*LoggingRetryPolicy)

// WithRetryLogger sets the logger used by the LoggingRetryPolicy.
//
// Parameters:
//   - l: The logger
//
// Returns:
//   - LoggingRetryOption: Configuration option
func WithRetryLogger(l types.Logger) LoggingRetryOption {
	return func(p *LoggingRetryPolicy) {
		p.logger = l
	}
}

// NewLoggingRetryPolicy creates a new LoggingRetryPolicy.
//
// Parameters:
//   - child: Policy whose decisions are logged (nil uses DefaultRetryPolicy)
//   - opts: Optional configuration
//
// Returns:
//   - *LoggingRetryPolicy: A new logging wrapper
func NewLoggingRetryPolicy(child types.RetryPolicy, opts ...LoggingRetryOption) *LoggingRetryPolicy {
	if child == nil {
		child = NewDefaultRetryPolicy()
	}
	p := &LoggingRetryPolicy{child: child}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.OrNop(p.logger)

	return p
}

func (p *LoggingRetryPolicy) log(d types.RetryDecision, msg string, cl types.Consistency, keysAndValues ...any) {
	switch d.Type() {
	case types.DecisionIgnore:
		p.logger.Info("ignoring "+msg, append(keysAndValues, "consistency", cl.String())...)
	case types.DecisionRetry:
		next := cl
		if c, ok := d.Consistency(); ok {
			next = c
		}
		p.logger.Info("retrying on "+msg, append(keysAndValues,
			"consistency", cl.String(),
			"retryConsistency", next.String(),
			"sameHost", d.UseCurrentHost(),
		)...)
	}
}

// OnReadTimeout delegates and logs the decision.
func (p *LoggingRetryPolicy) OnReadTimeout(stmt types.Statement, cl types.Consistency, required, received int, dataRetrieved bool, attempt int) types.RetryDecision {
	d := p.child.OnReadTimeout(stmt, cl, required, received, dataRetrieved, attempt)
	p.log(d, "read timeout", cl,
		"required", required, "received", received, "dataRetrieved", dataRetrieved, "attempt", attempt)

	return d
}

// OnWriteTimeout delegates and logs the decision.
func (p *LoggingRetryPolicy) OnWriteTimeout(stmt types.Statement, cl types.Consistency, writeType types.WriteType, required, received int, attempt int) types.RetryDecision {
	d := p.child.OnWriteTimeout(stmt, cl, writeType, required, received, attempt)
	p.log(d, "write timeout", cl,
		"writeType", string(writeType), "required", required, "received", received, "attempt", attempt)

	return d
}

// OnUnavailable delegates and logs the decision.
func (p *LoggingRetryPolicy) OnUnavailable(stmt types.Statement, cl types.Consistency, required, alive int, attempt int) types.RetryDecision {
	d := p.child.OnUnavailable(stmt, cl, required, alive, attempt)
	p.log(d, "unavailable", cl, "required", required, "alive", alive, "attempt", attempt)

	return d
}

// OnRequestError delegates and logs the decision.
//
// A child that is not an extended policy retries on the next host.
func (p *LoggingRetryPolicy) OnRequestError(stmt types.Statement, err *types.RequestError, attempt int) types.RetryDecision {
	d := types.RetryNextHost()
	if ext, ok := p.child.(types.ExtendedRetryPolicy); ok {
		d = ext.OnRequestError(stmt, err, attempt)
	}

	var cl types.Consistency
	if stmt != nil {
		cl, _ = stmt.Consistency()
	}
	p.log(d, "request error", cl, "error", err.Error(), "attempt", attempt)

	return d
}
