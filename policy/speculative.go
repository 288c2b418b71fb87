package policy

import (
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/arloliu/strand/types"
)

// ErrInvalidSpeculativeConfig is returned for a non-positive delay or execution count.
var ErrInvalidSpeculativeConfig = errors.New("strand: speculative delay and max executions must be positive")

// NoSpeculativeExecutionPolicy never starts additional executions.
type NoSpeculativeExecutionPolicy struct{}

// Compile-time assertion that NoSpeculativeExecutionPolicy implements types.SpeculativeExecutionPolicy.
var _ types.SpeculativeExecutionPolicy = (*NoSpeculativeExecutionPolicy)(nil)

// NewNoSpeculativeExecutionPolicy creates a new NoSpeculativeExecutionPolicy.
func NewNoSpeculativeExecutionPolicy() *NoSpeculativeExecutionPolicy {
	return &NoSpeculativeExecutionPolicy{}
}

// NewPlan returns a plan that never schedules.
func (p *NoSpeculativeExecutionPolicy) NewPlan(string, types.Statement) types.SpeculativePlan {
	return noSpeculativePlan{}
}

type noSpeculativePlan struct{}

func (noSpeculativePlan) NextExecution(*types.Host) time.Duration {
	return 0
}

// ConstantSpeculativeExecutionPolicy starts up to a fixed number of
// additional executions, each a fixed delay after the previous one.
//
// The counter belongs to each plan, so every request gets the full budget.
type ConstantSpeculativeExecutionPolicy struct {
	delay         time.Duration
	maxExecutions int
}

// Compile-time assertion that ConstantSpeculativeExecutionPolicy implements types.SpeculativeExecutionPolicy.
var _ types.SpeculativeExecutionPolicy = (*ConstantSpeculativeExecutionPolicy)(nil)

// NewConstantSpeculativeExecutionPolicy creates a new ConstantSpeculativeExecutionPolicy.
//
// Parameters:
//   - delay: Delay before each additional execution
//   - maxExecutions: Maximum number of additional executions per request
//
// Returns:
//   - *ConstantSpeculativeExecutionPolicy: A new constant policy
//   - error: ErrInvalidSpeculativeConfig if delay or maxExecutions is not positive
func NewConstantSpeculativeExecutionPolicy(delay time.Duration, maxExecutions int) (*ConstantSpeculativeExecutionPolicy, error) {
	if delay <= 0 || maxExecutions <= 0 {
		return nil, ErrInvalidSpeculativeConfig
	}

	return &ConstantSpeculativeExecutionPolicy{delay: delay, maxExecutions: maxExecutions}, nil
}

// Delay returns the configured delay.
func (p *ConstantSpeculativeExecutionPolicy) Delay() time.Duration {
	return p.delay
}

// MaxExecutions returns the configured execution budget.
func (p *ConstantSpeculativeExecutionPolicy) MaxExecutions() int {
	return p.maxExecutions
}

// NewPlan returns a plan with a fresh execution budget.
func (p *ConstantSpeculativeExecutionPolicy) NewPlan(string, types.Statement) types.SpeculativePlan {
	plan := &constantSpeculativePlan{delay: p.delay}
	plan.remaining.Store(int32(min(p.maxExecutions, math.MaxInt32)))

	return plan
}

type constantSpeculativePlan struct {
	delay     time.Duration
	remaining atomic.Int32
}

// NextExecution is called from concurrently running executions.
func (p *constantSpeculativePlan) NextExecution(*types.Host) time.Duration {
	if p.remaining.Add(-1) < 0 {
		return 0
	}

	return p.delay
}
