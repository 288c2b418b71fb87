package scenarios

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/strand/test/simulation/types"
)

// SlowHost adds latency to one host so speculative executions kick in.
type SlowHost struct {
	Latency time.Duration
}

func (s *SlowHost) Name() string {
	return "slow-host"
}

func (s *SlowHost) Description() string {
	return "Adds latency to one host and checks speculative executions keep p50 low"
}

func (s *SlowHost) Run(ctx context.Context, env *types.Environment) error {
	latency := s.Latency
	if latency == 0 {
		latency = 300 * time.Millisecond
	}
	slow := env.Hosts[0].Address()

	env.Logger.Info("phase 1: baseline")
	env.Tracker.Reset()
	if err := observe(ctx, 2*time.Second); err != nil {
		return err
	}
	baseline := env.Tracker.Snapshot()

	env.Logger.Info("phase 2: slowing host", "host", slow, "latency", latency)
	env.Cluster.SetLatency(slow, latency)
	env.Tracker.Reset()
	if err := observe(ctx, 5*time.Second); err != nil {
		return err
	}
	degraded := env.Tracker.Snapshot()

	env.Logger.Info("phase 3: recovering host", "host", slow)
	env.Cluster.SetLatency(slow, 0)

	env.Logger.Info("slow host results",
		"baseline_p50", baseline.P50,
		"degraded_p50", degraded.P50,
		"degraded_p99", degraded.P99,
		"speculative", degraded.Speculative,
	)

	if degraded.Successes == 0 {
		return fmt.Errorf("no successful request while %s was slow", slow)
	}
	if degraded.P50 >= latency {
		return fmt.Errorf("p50 %v not below injected latency %v", degraded.P50, latency)
	}

	return nil
}
