// Package simulation drives a strand session against a chaos cluster and
// runs fault scenarios while a workload is running.
package simulation

import (
	"context"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/arloliu/strand"
	vmmetrics "github.com/arloliu/strand/contrib/metrics/vm"
	"github.com/arloliu/strand/replay"
	"github.com/arloliu/strand/test/simulation/chaos"
	"github.com/arloliu/strand/test/simulation/config"
	simtypes "github.com/arloliu/strand/test/simulation/types"
	"github.com/arloliu/strand/test/simulation/workload"
	"github.com/arloliu/strand/topology"
	"github.com/arloliu/strand/types"
)

// Simulation orchestrates the test execution.
type Simulation struct {
	config    *config.Config
	logger    types.Logger
	metrics   *vmmetrics.Collector
	env       *simtypes.Environment
	worker    *replay.Worker
	scenarios []simtypes.Scenario
}

// New creates a new simulation instance.
func New(cfg *config.Config, logger types.Logger) *Simulation {
	return &Simulation{
		config:  cfg,
		logger:  logger,
		metrics: vmmetrics.New(vmmetrics.WithPrefix("strand_sim"), vmmetrics.WithMetricsSet(metrics.NewSet())),
	}
}

// Metrics returns the collector wired into the session.
func (s *Simulation) Metrics() *vmmetrics.Collector {
	return s.metrics
}

// RegisterScenario adds a scenario to the simulation.
func (s *Simulation) RegisterScenario(scenario simtypes.Scenario) {
	s.scenarios = append(s.scenarios, scenario)
}

// Run sets up the environment, starts the workload and runs every
// registered scenario in order.
//
// Returns:
//   - error: Setup error or the first scenario failure
func (s *Simulation) Run(ctx context.Context) error {
	s.logger.Info("initializing simulation environment")

	if err := s.setupEnvironment(ctx); err != nil {
		return fmt.Errorf("failed to setup environment: %w", err)
	}
	defer s.teardown()

	gen, err := workload.NewGenerator(ctx, s.env.Session, s.env.Tracker, s.config.Simulation.Rate)
	if err != nil {
		return fmt.Errorf("failed to prepare workload: %w", err)
	}

	workloadCtx, stopWorkload := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		gen.Run(workloadCtx)
	}()
	defer func() {
		stopWorkload()
		<-done
	}()

	var firstErr error
	for _, scenario := range s.scenarios {
		if ctx.Err() != nil {
			break
		}

		s.logger.Info("running scenario", "name", scenario.Name(), "description", scenario.Description())
		if err := scenario.Run(ctx, s.env); err != nil {
			s.logger.Error("scenario failed", "name", scenario.Name(), "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("scenario %s: %w", scenario.Name(), err)
			}
		} else {
			s.logger.Info("scenario passed", "name", scenario.Name())
		}

		s.env.Cluster.Reset()
		s.applyBaseLatency()
		time.Sleep(time.Second)
	}

	return firstErr
}

func (s *Simulation) setupEnvironment(ctx context.Context) error {
	cc := s.config.Cluster

	hosts := make([]*types.Host, 0, cc.Hosts)
	for i := range cc.Hosts {
		dc := fmt.Sprintf("dc%d", i%cc.Datacenters+1)
		hosts = append(hosts, types.NewHost(fmt.Sprintf("10.0.%d.%d:9042", i%cc.Datacenters, i+1), dc, "r1"))
	}

	cluster := chaos.NewCluster(s.config.Session.Keyspace)
	topo := topology.NewLocal(
		topology.WithHosts(hosts...),
		topology.WithDefaultReplicationFactor(cc.ReplicationFactor),
		topology.WithProbe(cluster.Probe),
		topology.WithLogger(s.logger),
		topology.WithMetrics(s.metrics),
	)

	opts, err := s.config.Session.Options(s.logger)
	if err != nil {
		topo.Close()
		return err
	}
	replayer := replay.NewMemoryReplayer(replay.WithQueueCapacity(10_000))
	opts = append(opts, strand.WithMetrics(s.metrics), strand.WithReplayer(replayer))

	session, err := strand.NewSession(topo, cluster.PoolFactory(), opts...)
	if err != nil {
		topo.Close()
		return err
	}

	s.worker = replay.NewMemoryWorker(replayer, session.Replay,
		replay.WithConcurrency(4),
		replay.WithRetryDelay(200*time.Millisecond),
		replay.WithMaxRetryDelay(2*time.Second),
		replay.WithMaxAttempts(20),
		replay.WithWorkerMetrics(s.metrics),
		replay.WithWorkerLogger(s.logger),
	)
	if err := s.worker.Start(); err != nil {
		session.Close()
		_ = topo.Close()
		return err
	}

	s.env = &simtypes.Environment{
		Session:  session,
		Topology: topo,
		Cluster:  cluster,
		Hosts:    hosts,
		Tracker:  workload.NewTracker(),
		Replayer: replayer,
		Logger:   s.logger,
	}
	s.applyBaseLatency()

	_, err = session.Execute(ctx, strand.NewSimpleStatement(
		"CREATE TABLE IF NOT EXISTS sim_data (id uuid PRIMARY KEY, data blob)", nil))
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

func (s *Simulation) applyBaseLatency() {
	for _, h := range s.env.Hosts {
		s.env.Cluster.Set(h.Address(), chaos.HostConfig{
			Latency: s.config.Cluster.BaseLatency,
			Jitter:  s.config.Cluster.Jitter,
		})
	}
}

func (s *Simulation) teardown() {
	if s.env == nil {
		return
	}
	s.worker.Stop()
	s.env.Replayer.Close()
	s.env.Session.Close()
	_ = s.env.Topology.Close()
}
