package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConstantReconnection(t *testing.T) {
	p, err := NewConstantReconnectionPolicy(2 * time.Second)
	require.NoError(t, err)

	s := p.NewSchedule()
	for i := 0; i < 5; i++ {
		require.Equal(t, 2*time.Second, s.NextDelay())
	}

	_, err = NewConstantReconnectionPolicy(0)
	require.ErrorIs(t, err, ErrInvalidReconnectionDelay)
}

func TestExponentialReconnectionBounds(t *testing.T) {
	base := 100 * time.Millisecond
	maxDelay := 10 * time.Second
	p, err := NewExponentialReconnectionPolicy(base, maxDelay)
	require.NoError(t, err)

	s := p.NewSchedule()
	require.Equal(t, base, s.NextDelay(), "first delay is the base delay")

	prev := base
	for i := 0; i < 1000; i++ {
		d := s.NextDelay()
		require.GreaterOrEqual(t, d, base)
		require.LessOrEqual(t, d, maxDelay)
		require.Less(t, d, max(prev*3, base+1))
		prev = d
	}
}

func TestExponentialReconnectionNeverOverflows(t *testing.T) {
	p, err := NewExponentialReconnectionPolicy(time.Second, time.Duration(1<<62))
	require.NoError(t, err)

	s := p.NewSchedule()
	for i := 0; i < 500; i++ {
		require.Positive(t, s.NextDelay())
	}
}

func TestExponentialReconnectionValidation(t *testing.T) {
	_, err := NewExponentialReconnectionPolicy(0, time.Second)
	require.ErrorIs(t, err, ErrInvalidReconnectionDelay)

	_, err = NewExponentialReconnectionPolicy(time.Second, time.Millisecond)
	require.ErrorIs(t, err, ErrInvalidReconnectionDelay)
}

func TestExponentialSchedulesAreIndependent(t *testing.T) {
	p, err := NewExponentialReconnectionPolicy(time.Millisecond, time.Second)
	require.NoError(t, err)

	a := p.NewSchedule()
	for i := 0; i < 10; i++ {
		a.NextDelay()
	}
	require.Equal(t, time.Millisecond, p.NewSchedule().NextDelay())
}
