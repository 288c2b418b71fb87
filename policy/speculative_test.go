package policy

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNoSpeculativeExecution(t *testing.T) {
	plan := NewNoSpeculativeExecutionPolicy().NewPlan("ks", nil)
	require.LessOrEqual(t, plan.NextExecution(nil), time.Duration(0))
}

func TestConstantSpeculativeExecution(t *testing.T) {
	p, err := NewConstantSpeculativeExecutionPolicy(50*time.Millisecond, 2)
	require.NoError(t, err)

	plan := p.NewPlan("ks", nil)
	require.Equal(t, 50*time.Millisecond, plan.NextExecution(nil))
	require.Equal(t, 50*time.Millisecond, plan.NextExecution(nil))
	require.Zero(t, plan.NextExecution(nil))
	require.Zero(t, plan.NextExecution(nil))

	// each plan gets its own budget
	other := p.NewPlan("ks", nil)
	require.Equal(t, 50*time.Millisecond, other.NextExecution(nil))
}

func TestConstantSpeculativeExecutionConcurrent(t *testing.T) {
	p, err := NewConstantSpeculativeExecutionPolicy(time.Millisecond, 5)
	require.NoError(t, err)
	plan := p.NewPlan("ks", nil)

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if plan.NextExecution(nil) > 0 {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(5), granted.Load())
}

func TestConstantSpeculativeExecutionValidation(t *testing.T) {
	_, err := NewConstantSpeculativeExecutionPolicy(0, 1)
	require.ErrorIs(t, err, ErrInvalidSpeculativeConfig)

	_, err = NewConstantSpeculativeExecutionPolicy(time.Second, 0)
	require.ErrorIs(t, err, ErrInvalidSpeculativeConfig)
}
