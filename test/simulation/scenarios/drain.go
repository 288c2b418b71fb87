package scenarios

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/strand/test/simulation/types"
)

// Drain takes a host out of rotation administratively.
type Drain struct{}

func (s *Drain) Name() string {
	return "drain"
}

func (s *Drain) Description() string {
	return "Drains a host and checks no request reaches it until undrained"
}

func (s *Drain) Run(ctx context.Context, env *types.Environment) error {
	host := env.Hosts[0].Address()

	env.Logger.Info("phase 1: draining host", "host", host)
	if !env.Topology.Drain(host, "simulation") {
		return fmt.Errorf("host %s could not be drained", host)
	}
	// let in-flight requests finish
	if err := observe(ctx, 500*time.Millisecond); err != nil {
		return err
	}

	served := env.Cluster.Served(host)
	if err := observe(ctx, 3*time.Second); err != nil {
		return err
	}
	if leaked := env.Cluster.Served(host) - served; leaked > 0 {
		return fmt.Errorf("drained host %s served %d requests", host, leaked)
	}

	env.Logger.Info("phase 2: undraining host", "host", host)
	env.Topology.Undrain(host)

	return waitUntil(ctx, 10*time.Second, func() bool {
		return env.Cluster.Served(host) > served
	})
}
