package scenarios

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/strand/test/simulation/types"
)

// HostOutage takes one host offline and waits for reconnection after it
// comes back.
type HostOutage struct{}

func (s *HostOutage) Name() string {
	return "host-outage"
}

func (s *HostOutage) Description() string {
	return "Takes a host offline, checks failover and reconnection"
}

func (s *HostOutage) Run(ctx context.Context, env *types.Environment) error {
	host := env.Hosts[1]

	env.Logger.Info("phase 1: taking host offline", "host", host.Address())
	env.Cluster.SetOffline(host.Address(), true)
	env.Tracker.Reset()

	if err := waitUntil(ctx, 10*time.Second, func() bool { return !host.IsUp() }); err != nil {
		return fmt.Errorf("host %s never marked down: %w", host.Address(), err)
	}
	if err := observe(ctx, 3*time.Second); err != nil {
		return err
	}

	snap := env.Tracker.Snapshot()
	if snap.Failures["no_host_available"] > 0 {
		return fmt.Errorf("%d requests found no host with a single host offline", snap.Failures["no_host_available"])
	}

	env.Logger.Info("phase 2: bringing host back", "host", host.Address())
	env.Cluster.SetOffline(host.Address(), false)

	if err := waitUntil(ctx, 30*time.Second, host.IsUp); err != nil {
		return fmt.Errorf("host %s never reconnected: %w", host.Address(), err)
	}

	served := env.Cluster.Served(host.Address())

	return waitUntil(ctx, 10*time.Second, func() bool {
		return env.Cluster.Served(host.Address()) > served
	})
}
