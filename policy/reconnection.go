package policy

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/arloliu/strand/types"
)

// ErrInvalidReconnectionDelay is returned for non-positive or inverted delays.
var ErrInvalidReconnectionDelay = errors.New("strand: reconnection delays must be positive and base <= max")

// ConstantReconnectionPolicy waits the same delay between reconnection attempts.
type ConstantReconnectionPolicy struct {
	delay time.Duration
}

// Compile-time assertion that ConstantReconnectionPolicy implements types.ReconnectionPolicy.
var _ types.ReconnectionPolicy = (*ConstantReconnectionPolicy)(nil)

// NewConstantReconnectionPolicy creates a new ConstantReconnectionPolicy.
//
// Parameters:
//   - delay: Delay between attempts
//
// Returns:
//   - *ConstantReconnectionPolicy: A new constant policy
//   - error: ErrInvalidReconnectionDelay if delay is not positive
func NewConstantReconnectionPolicy(delay time.Duration) (*ConstantReconnectionPolicy, error) {
	if delay <= 0 {
		return nil, ErrInvalidReconnectionDelay
	}

	return &ConstantReconnectionPolicy{delay: delay}, nil
}

// NewSchedule returns a schedule that always yields the configured delay.
func (p *ConstantReconnectionPolicy) NewSchedule() types.ReconnectionSchedule {
	return constantSchedule(p.delay)
}

type constantSchedule time.Duration

func (s constantSchedule) NextDelay() time.Duration {
	return time.Duration(s)
}

// ExponentialReconnectionPolicy grows the delay between attempts up to a cap.
//
// Delays follow the "decorrelated jitter" approach: each delay is drawn
// uniformly from [base, previous*3) and capped at max, so concurrent
// schedules for many hosts do not synchronize.
type ExponentialReconnectionPolicy struct {
	base time.Duration
	max  time.Duration
}

// Compile-time assertion that ExponentialReconnectionPolicy implements types.ReconnectionPolicy.
var _ types.ReconnectionPolicy = (*ExponentialReconnectionPolicy)(nil)

// NewExponentialReconnectionPolicy creates a new ExponentialReconnectionPolicy.
//
// Parameters:
//   - base: First and minimum delay
//   - maxDelay: Maximum delay
//
// Returns:
//   - *ExponentialReconnectionPolicy: A new exponential policy
//   - error: ErrInvalidReconnectionDelay if base or maxDelay is invalid
func NewExponentialReconnectionPolicy(base, maxDelay time.Duration) (*ExponentialReconnectionPolicy, error) {
	if base <= 0 || maxDelay < base {
		return nil, ErrInvalidReconnectionDelay
	}

	return &ExponentialReconnectionPolicy{base: base, max: maxDelay}, nil
}

// NewSchedule returns a fresh schedule starting at the base delay.
func (p *ExponentialReconnectionPolicy) NewSchedule() types.ReconnectionSchedule {
	return &exponentialSchedule{base: p.base, max: p.max}
}

type exponentialSchedule struct {
	base time.Duration
	max  time.Duration
	prev time.Duration
}

// NextDelay is not safe for concurrent use; each schedule serves one host.
func (s *exponentialSchedule) NextDelay() time.Duration {
	if s.prev == 0 {
		s.prev = s.base
		return s.base
	}

	// prev*3 overflows long before max could be reached.
	upper := s.max
	if s.prev <= s.max/3 {
		upper = s.prev * 3
	}

	next := s.base
	if upper > s.base {
		next += time.Duration(rand.Int64N(int64(upper - s.base)))
	}
	if next > s.max {
		next = s.max
	}
	s.prev = next

	return next
}
