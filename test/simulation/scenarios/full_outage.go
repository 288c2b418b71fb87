package scenarios

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/strand/test/simulation/types"
)

// FullOutage takes every host offline and checks that replayable writes
// failing meanwhile are applied once the cluster is back.
type FullOutage struct {
	Duration time.Duration
}

func (s *FullOutage) Name() string {
	return "full-outage"
}

func (s *FullOutage) Description() string {
	return "Takes the whole cluster offline and checks queued writes are replayed after recovery"
}

func (s *FullOutage) Run(ctx context.Context, env *types.Environment) error {
	duration := s.Duration
	if duration <= 0 {
		duration = 3 * time.Second
	}

	env.Logger.Info("phase 1: taking every host offline", "duration", duration)
	for _, h := range env.Hosts {
		env.Cluster.SetOffline(h.Address(), true)
	}
	env.Tracker.Reset()

	if err := observe(ctx, duration); err != nil {
		return err
	}

	snap := env.Tracker.Snapshot()
	if snap.Failures["replayed"] == 0 {
		return fmt.Errorf("no write was queued for replay during the outage (failures: %v)", snap.Failures)
	}
	env.Logger.Info("writes queued for replay", "replayed", snap.Failures["replayed"], "pending", env.Replayer.Len())

	env.Logger.Info("phase 2: bringing the cluster back")
	for _, h := range env.Hosts {
		env.Cluster.SetOffline(h.Address(), false)
	}

	if err := waitUntil(ctx, 30*time.Second, func() bool {
		for _, h := range env.Hosts {
			if !h.IsUp() {
				return false
			}
		}

		return true
	}); err != nil {
		return fmt.Errorf("cluster never reconnected: %w", err)
	}

	if err := waitUntil(ctx, 30*time.Second, func() bool { return env.Replayer.Len() == 0 }); err != nil {
		return fmt.Errorf("%d writes still waiting for replay: %w", env.Replayer.Len(), err)
	}

	return nil
}
