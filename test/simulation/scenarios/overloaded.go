package scenarios

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/strand/test/simulation/chaos"
	"github.com/arloliu/strand/test/simulation/types"
	strandtypes "github.com/arloliu/strand/types"
)

// Overloaded makes one host fail half of its requests with overloaded errors.
type Overloaded struct{}

func (s *Overloaded) Name() string {
	return "overloaded"
}

func (s *Overloaded) Description() string {
	return "Fails requests on one host and checks the retry policy moves them to another host"
}

func (s *Overloaded) Run(ctx context.Context, env *types.Environment) error {
	host := env.Hosts[2].Address()

	env.Logger.Info("phase 1: overloading host", "host", host)
	env.Cluster.Set(host, chaos.HostConfig{ErrorRate: 0.5, ErrorKind: strandtypes.KindOverloaded})
	env.Tracker.Reset()

	if err := observe(ctx, 5*time.Second); err != nil {
		return err
	}
	env.Cluster.Set(host, chaos.HostConfig{})

	snap := env.Tracker.Snapshot()
	env.Logger.Info("overloaded results",
		"successes", snap.Successes,
		"failures", snap.Failures,
		"injected", env.Cluster.Failed(host),
	)

	if env.Cluster.Failed(host) == 0 {
		return fmt.Errorf("host %s received no request", host)
	}
	if snap.Failures[strandtypes.KindOverloaded.String()] > snap.Total()/10 {
		return fmt.Errorf("too many overloaded errors surfaced: %d of %d", snap.Failures[strandtypes.KindOverloaded.String()], snap.Total())
	}

	return nil
}
