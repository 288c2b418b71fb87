package types

import (
	"context"

	"github.com/arloliu/strand"
	"github.com/arloliu/strand/replay"
	"github.com/arloliu/strand/test/simulation/chaos"
	"github.com/arloliu/strand/test/simulation/workload"
	"github.com/arloliu/strand/topology"
	strandtypes "github.com/arloliu/strand/types"
)

// Environment holds the shared resources of a simulation run.
type Environment struct {
	Session  *strand.Session
	Topology *topology.Local
	Cluster  *chaos.Cluster
	Hosts    []*strandtypes.Host
	Tracker  *workload.Tracker
	Replayer *replay.MemoryReplayer
	Logger   strandtypes.Logger
}

// Scenario is one phase of a simulation run.
type Scenario interface {
	// Name returns the unique name of the scenario.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// Run executes the scenario while the workload is running.
	Run(ctx context.Context, env *Environment) error
}
