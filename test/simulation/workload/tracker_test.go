package workload_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/strand"
	"github.com/arloliu/strand/test/simulation/chaos"
	"github.com/arloliu/strand/test/simulation/workload"
	"github.com/arloliu/strand/topology"
	"github.com/arloliu/strand/types"
)

func newSession(t *testing.T) (*strand.Session, *chaos.Cluster) {
	t.Helper()

	cluster := chaos.NewCluster("sim")
	topo := topology.NewLocal(topology.WithHosts(
		types.NewHost("10.0.0.1:9042", "dc1", "r1"),
		types.NewHost("10.0.0.2:9042", "dc1", "r1"),
		types.NewHost("10.0.0.3:9042", "dc1", "r1"),
	))
	t.Cleanup(func() { _ = topo.Close() })

	session, err := strand.NewSession(topo, cluster.PoolFactory(), strand.WithKeyspace("sim"))
	require.NoError(t, err)
	t.Cleanup(session.Close)

	return session, cluster
}

func TestTracker_RecordsOutcomes(t *testing.T) {
	session, _ := newSession(t)
	tracker := workload.NewTracker()

	rs, err := session.Execute(context.Background(), strand.NewSimpleStatement("SELECT * FROM sim_data", nil))
	require.NoError(t, err)

	tracker.Record(rs, nil, 2*time.Millisecond)
	tracker.Record(nil, types.NewUnavailableError(types.Quorum, 2, 1), 4*time.Millisecond)
	tracker.Record(nil, errors.New("boom"), 6*time.Millisecond)

	snap := tracker.Snapshot()
	assert.Equal(t, 1, snap.Successes)
	assert.Equal(t, 3, snap.Total())
	assert.Equal(t, 1, snap.Failures[types.KindUnavailable.String()])
	assert.Equal(t, 1, snap.Failures["other"])
	assert.Equal(t, 1, snap.ByHost[rs.Info().QueriedHost.Address()])
	assert.Equal(t, 4*time.Millisecond, snap.P50)
	assert.Equal(t, 6*time.Millisecond, snap.P99)

	tracker.Reset()
	snap = tracker.Snapshot()
	assert.Zero(t, snap.Total())
	assert.Zero(t, snap.P50)
}

func TestGenerator_SendsTraffic(t *testing.T) {
	session, cluster := newSession(t)
	tracker := workload.NewTracker()

	gen, err := workload.NewGenerator(context.Background(), session, tracker, 500)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	gen.Run(ctx)

	snap := tracker.Snapshot()
	require.Positive(t, snap.Successes)
	assert.Zero(t, snap.Total()-snap.Successes)

	var served int64
	for _, addr := range []string{"10.0.0.1:9042", "10.0.0.2:9042", "10.0.0.3:9042"} {
		served += cluster.Served(addr)
	}
	assert.GreaterOrEqual(t, served, int64(snap.Successes))
}

func TestTracker_SeparatesReplayedWrites(t *testing.T) {
	tracker := workload.NewTracker()

	tracker.Record(nil, &types.NoHostAvailableError{}, time.Millisecond)
	tracker.Record(nil, &types.NoHostAvailableError{Replayed: true}, time.Millisecond)
	tracker.Record(nil, &types.NoHostAvailableError{Replayed: true}, time.Millisecond)

	snap := tracker.Snapshot()
	assert.Equal(t, 1, snap.Failures["no_host_available"])
	assert.Equal(t, 2, snap.Failures["replayed"])
}
