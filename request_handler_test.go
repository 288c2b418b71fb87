package strand

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/arloliu/strand/adapter/cql"
	"github.com/arloliu/strand/policy"
	"github.com/arloliu/strand/types"
)

func TestExecute_FirstHostSucceeds(t *testing.T) {
	defer goleak.VerifyNone(t)

	hosts := testHosts(3)
	cluster := newFakeCluster()
	s, _ := newTestSession(t, cluster, hosts)

	rs, err := s.Execute(context.Background(), NewSimpleStatement("SELECT * FROM t", nil))
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())
	assert.Equal(t, hosts[0].Address(), rs.Rows()[0]["host"])

	info := rs.Info()
	assert.Same(t, hosts[0], info.QueriedHost)
	assert.Equal(t, map[string]error{hosts[0].Address(): nil}, info.TriedHosts)
	assert.Equal(t, DefaultConsistency, info.AchievedConsistency)
	assert.Empty(t, cluster.sent(hosts[1]))
}

func TestExecute_AppliesStatementSettings(t *testing.T) {
	hosts := testHosts(1)
	cluster := newFakeCluster()
	s, _ := newTestSession(t, cluster, hosts, WithKeyspace("app"))

	stmt := NewSimpleStatement("SELECT * FROM t WHERE id = ?", []any{1},
		StmtConsistency(types.Quorum),
		StmtSerialConsistency(types.LocalSerial),
		StmtPageSize(50),
		StmtIdempotent(true),
	)
	_, err := s.Execute(context.Background(), stmt)
	require.NoError(t, err)

	sent := cluster.sent(hosts[0])
	require.Len(t, sent, 1)
	req := sent[0]
	assert.Equal(t, cql.KindQuery, req.Kind)
	assert.Equal(t, types.Quorum, req.Consistency)
	assert.Equal(t, types.LocalSerial, req.SerialConsistency)
	assert.True(t, req.HasSerialConsistency)
	assert.Equal(t, 50, req.PageSize)
	assert.Equal(t, "app", req.Keyspace)
	assert.True(t, req.Idempotent)
	assert.Equal(t, []any{1}, req.Values)
}

func TestExecute_UnavailableRetriesNextHost(t *testing.T) {
	defer goleak.VerifyNone(t)

	hosts := testHosts(3)
	cluster := newFakeCluster()
	unavailable := types.NewUnavailableError(types.Quorum, 2, 1)
	cluster.on(hosts[0], fail(unavailable))
	s, _ := newTestSession(t, cluster, hosts)

	rs, err := s.Execute(context.Background(), NewSimpleStatement("SELECT * FROM t", nil))
	require.NoError(t, err)
	assert.Same(t, hosts[1], rs.Info().QueriedHost)

	tried := rs.Info().TriedHosts
	require.Len(t, tried, 2)
	assert.Equal(t, unavailable, tried[hosts[0].Address()])
	assert.Nil(t, tried[hosts[1].Address()])
}

func TestExecute_UnavailableRethrownOnSecondFailure(t *testing.T) {
	hosts := testHosts(3)
	cluster := newFakeCluster()
	for _, h := range hosts {
		cluster.on(h, fail(types.NewUnavailableError(types.Quorum, 2, 1)))
	}
	s, _ := newTestSession(t, cluster, hosts)

	_, err := s.Execute(context.Background(), NewSimpleStatement("SELECT * FROM t", nil))
	requireRequestError(t, err, types.KindUnavailable)
	assert.Len(t, cluster.sent(hosts[0]), 1)
	assert.Len(t, cluster.sent(hosts[1]), 1)
	assert.Empty(t, cluster.sent(hosts[2]))
}

func TestExecute_ReadTimeoutRetriesSameHost(t *testing.T) {
	hosts := testHosts(2)
	cluster := newFakeCluster()
	cluster.on(hosts[0], sequence(
		fail(types.NewReadTimeoutError(types.Quorum, 2, 2, false)),
		respond(rowsResponse("retried")),
	))
	s, _ := newTestSession(t, cluster, hosts)

	rs, err := s.Execute(context.Background(), NewSimpleStatement("SELECT * FROM t", nil))
	require.NoError(t, err)
	assert.Equal(t, "retried", rs.Rows()[0]["host"])
	assert.Len(t, cluster.sent(hosts[0]), 2)
	assert.Empty(t, cluster.sent(hosts[1]))
}

func TestExecute_SocketErrorOnIdempotentStatement(t *testing.T) {
	hosts := testHosts(3)
	cluster := newFakeCluster()
	for _, h := range hosts {
		cluster.on(h, fail(types.NewSocketError(errors.New("connection reset"))))
	}
	s, _ := newTestSession(t, cluster, hosts)

	_, err := s.Execute(context.Background(),
		NewSimpleStatement("SELECT * FROM t", nil, StmtIdempotent(true)))
	require.ErrorIs(t, err, ErrNoHostAvailable)

	var nhErr *NoHostAvailableError
	require.ErrorAs(t, err, &nhErr)
	require.Len(t, nhErr.TriedHosts, 3)
	for _, h := range hosts {
		cause := nhErr.TriedHosts[h.Address()]
		requireRequestError(t, cause, types.KindSocket)
		assert.Equal(t, int32(1), cluster.pool(h).removed.Load())
	}
}

func TestExecute_SocketErrorOnNonIdempotentStatement(t *testing.T) {
	hosts := testHosts(3)
	cluster := newFakeCluster()
	cluster.on(hosts[0], fail(types.NewSocketError(errors.New("broken pipe"))))
	s, _ := newTestSession(t, cluster, hosts)

	_, err := s.Execute(context.Background(),
		NewSimpleStatement("INSERT INTO t (id) VALUES (1)", nil, StmtIdempotent(false)))
	requireRequestError(t, err, types.KindSocket)
	assert.Empty(t, cluster.sent(hosts[1]))
}

func TestExecute_DefaultIdempotenceAllowsRetry(t *testing.T) {
	hosts := testHosts(2)
	cluster := newFakeCluster()
	cluster.on(hosts[0], fail(types.NewOperationTimeoutError(context.DeadlineExceeded)))
	s, _ := newTestSession(t, cluster, hosts, WithDefaultIdempotence(true))

	rs, err := s.Execute(context.Background(), NewSimpleStatement("SELECT * FROM t", nil))
	require.NoError(t, err)
	assert.Same(t, hosts[1], rs.Info().QueriedHost)
}

func TestExecute_AllHostsIgnored(t *testing.T) {
	hosts := testHosts(3)
	cluster := newFakeCluster()
	lb := &orderedPolicy{ignored: map[*Host]bool{hosts[0]: true, hosts[1]: true, hosts[2]: true}}
	s, _ := newTestSession(t, cluster, hosts, WithLoadBalancingPolicy(lb))

	_, err := s.Execute(context.Background(), NewSimpleStatement("SELECT * FROM t", nil))

	var nhErr *NoHostAvailableError
	require.ErrorAs(t, err, &nhErr)
	require.Len(t, nhErr.TriedHosts, 3)
	for _, h := range hosts {
		v, ok := nhErr.TriedHosts[h.Address()]
		assert.True(t, ok)
		assert.Nil(t, v)
		assert.Empty(t, cluster.sent(h))
	}
}

func TestExecute_DownHostsSkipped(t *testing.T) {
	hosts := testHosts(3)
	hosts[0].SetDown()
	cluster := newFakeCluster()
	s, _ := newTestSession(t, cluster, hosts)

	rs, err := s.Execute(context.Background(), NewSimpleStatement("SELECT * FROM t", nil))
	require.NoError(t, err)
	assert.Same(t, hosts[1], rs.Info().QueriedHost)
	assert.Contains(t, rs.Info().TriedHosts, hosts[0].Address())
	assert.Empty(t, cluster.sent(hosts[0]))
}

func TestExecute_BorrowFailureMovesToNextHost(t *testing.T) {
	hosts := testHosts(2)
	cluster := newFakeCluster()
	cluster.failBorrow(hosts[0], &types.RequestError{Kind: types.KindBusyPool, Cause: errors.New("dial refused")})
	s, meta := newTestSession(t, cluster, hosts)

	rs, err := s.Execute(context.Background(), NewSimpleStatement("SELECT * FROM t", nil))
	require.NoError(t, err)
	assert.Same(t, hosts[1], rs.Info().QueriedHost)
	requireRequestError(t, rs.Info().TriedHosts[hosts[0].Address()], types.KindBusyPool)
	assert.Equal(t, []string{hosts[0].Address()}, meta.unreachableHosts())
}

func TestExecute_PinnedHostNeverFailsOver(t *testing.T) {
	hosts := testHosts(3)
	cluster := newFakeCluster()
	cluster.on(hosts[1], fail(types.NewRequestError(types.KindOverloaded, "busy")))
	s, _ := newTestSession(t, cluster, hosts)

	_, err := s.Execute(context.Background(),
		NewSimpleStatement("SELECT * FROM t", nil, StmtHost(hosts[1])))

	var nhErr *NoHostAvailableError
	require.ErrorAs(t, err, &nhErr)
	require.Len(t, nhErr.TriedHosts, 1)
	requireRequestError(t, nhErr.TriedHosts[hosts[1].Address()], types.KindOverloaded)
	assert.Empty(t, cluster.sent(hosts[0]))
	assert.Empty(t, cluster.sent(hosts[2]))
}

func TestExecute_ServerErrorRethrown(t *testing.T) {
	hosts := testHosts(2)
	cluster := newFakeCluster()
	cluster.on(hosts[0], fail(types.NewRequestError(types.KindInvalid, "unconfigured table t")))
	s, _ := newTestSession(t, cluster, hosts)

	_, err := s.Execute(context.Background(), NewSimpleStatement("SELECT * FROM t", nil))
	reqErr := requireRequestError(t, err, types.KindInvalid)
	assert.Equal(t, "unconfigured table t", reqErr.Message)
	assert.Empty(t, cluster.sent(hosts[1]))
}

func TestExecute_UnclassifiedErrorPropagates(t *testing.T) {
	hosts := testHosts(2)
	cluster := newFakeCluster()
	boom := errors.New("boom")
	cluster.on(hosts[0], fail(boom))
	s, _ := newTestSession(t, cluster, hosts)

	_, err := s.Execute(context.Background(), NewSimpleStatement("SELECT * FROM t", nil))
	require.ErrorIs(t, err, boom)
	assert.Empty(t, cluster.sent(hosts[1]))
}

func TestExecute_DowngradingRetryOverwritesConsistency(t *testing.T) {
	hosts := testHosts(2)
	cluster := newFakeCluster()
	cluster.on(hosts[0], sequence(
		fail(types.NewUnavailableError(types.Quorum, 2, 1)),
		respond(rowsResponse("downgraded")),
	))
	s, _ := newTestSession(t, cluster, hosts,
		WithRetryPolicy(policy.NewDowngradingConsistencyRetryPolicy()))

	rs, err := s.Execute(context.Background(),
		NewSimpleStatement("SELECT * FROM t", nil, StmtConsistency(types.Quorum)))
	require.NoError(t, err)
	assert.Equal(t, types.One, rs.Info().AchievedConsistency)

	sent := cluster.sent(hosts[0])
	require.Len(t, sent, 2)
	assert.Equal(t, types.Quorum, sent[0].Consistency)
	assert.Equal(t, types.One, sent[1].Consistency)
}

func TestExecute_IgnoreYieldsEmptyResult(t *testing.T) {
	hosts := testHosts(2)
	cluster := newFakeCluster()
	cluster.on(hosts[0], fail(types.NewWriteTimeoutError(types.Quorum, types.WriteTypeSimple, 2, 1)))
	s, _ := newTestSession(t, cluster, hosts,
		WithRetryPolicy(policy.NewDowngradingConsistencyRetryPolicy()))

	rs, err := s.Execute(context.Background(),
		NewSimpleStatement("INSERT INTO t (id) VALUES (1)", nil, StmtConsistency(types.Quorum)))
	require.NoError(t, err)
	assert.True(t, rs.IsEmpty())
	assert.Empty(t, rs.Columns())
	assert.Empty(t, cluster.sent(hosts[1]))
}

func TestExecute_StatementRetryPolicyOverridesSession(t *testing.T) {
	hosts := testHosts(2)
	cluster := newFakeCluster()
	cluster.on(hosts[0], fail(types.NewUnavailableError(types.Quorum, 2, 1)))
	s, _ := newTestSession(t, cluster, hosts)

	_, err := s.Execute(context.Background(), NewSimpleStatement("SELECT * FROM t", nil,
		StmtRetryPolicy(policy.NewFallthroughRetryPolicy())))
	requireRequestError(t, err, types.KindUnavailable)
	assert.Empty(t, cluster.sent(hosts[1]))
}

func TestExecute_SpeculativeExecutionWins(t *testing.T) {
	defer goleak.VerifyNone(t)

	hosts := testHosts(3)
	cluster := newFakeCluster()
	cancelled := make(chan struct{}, 1)
	cluster.on(hosts[0], block(cancelled))

	spec, err := policy.NewConstantSpeculativeExecutionPolicy(20*time.Millisecond, 2)
	require.NoError(t, err)
	s, _ := newTestSession(t, cluster, hosts, WithSpeculativeExecutionPolicy(spec))

	rs, err := s.Execute(context.Background(),
		NewSimpleStatement("SELECT * FROM t", nil, StmtIdempotent(true)))
	require.NoError(t, err)
	assert.Same(t, hosts[1], rs.Info().QueriedHost)
	assert.Equal(t, 1, rs.Info().SpeculativeExecutions)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("slow execution was not cancelled")
	}
}

func TestExecute_NoSpeculationForNonIdempotentStatement(t *testing.T) {
	hosts := testHosts(3)
	cluster := newFakeCluster()
	cluster.on(hosts[0], func(ctx context.Context, _ *cql.Request) (*cql.Response, error) {
		time.Sleep(80 * time.Millisecond)
		return rowsResponse("slow"), nil
	})

	spec, err := policy.NewConstantSpeculativeExecutionPolicy(10*time.Millisecond, 3)
	require.NoError(t, err)
	s, _ := newTestSession(t, cluster, hosts, WithSpeculativeExecutionPolicy(spec))

	rs, err := s.Execute(context.Background(), NewSimpleStatement("INSERT INTO t (id) VALUES (1)", nil))
	require.NoError(t, err)
	assert.Equal(t, "slow", rs.Rows()[0]["host"])
	assert.Zero(t, rs.Info().SpeculativeExecutions)
	assert.Empty(t, cluster.sent(hosts[1]))
	assert.Empty(t, cluster.sent(hosts[2]))
}

func TestExecute_SpeculativeExecutionsShareThePlan(t *testing.T) {
	defer goleak.VerifyNone(t)

	hosts := testHosts(3)
	cluster := newFakeCluster()
	for _, h := range hosts {
		cluster.on(h, block(nil))
	}

	spec, err := policy.NewConstantSpeculativeExecutionPolicy(5*time.Millisecond, 10)
	require.NoError(t, err)
	s, _ := newTestSession(t, cluster, hosts,
		WithSpeculativeExecutionPolicy(spec),
		WithReadTimeout(100*time.Millisecond),
		WithRetryPolicy(policy.NewFallthroughRetryPolicy()),
	)

	_, err = s.Execute(context.Background(),
		NewSimpleStatement("SELECT * FROM t", nil, StmtIdempotent(true)))
	requireRequestError(t, err, types.KindOperationTimeout)

	// each host was handed to exactly one execution
	for _, h := range hosts {
		assert.LessOrEqual(t, len(cluster.sent(h)), 1)
	}
}

func TestExecute_CallerCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	hosts := testHosts(2)
	cluster := newFakeCluster()
	cancelled := make(chan struct{}, 1)
	cluster.on(hosts[0], block(cancelled))
	s, _ := newTestSession(t, cluster, hosts, WithReadTimeout(0))

	ctx, cancel := context.WithCancel(context.Background())
	f := s.ExecuteAsync(ctx, NewSimpleStatement("SELECT * FROM t", nil, StmtIdempotent(true)))
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := f.Get(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("in-flight attempt was not cancelled")
	}
	assert.Empty(t, cluster.sent(hosts[1]))
}

func TestExecute_ReadTimeoutBoundsAttempt(t *testing.T) {
	hosts := testHosts(1)
	cluster := newFakeCluster()
	cluster.on(hosts[0], block(nil))
	s, _ := newTestSession(t, cluster, hosts, WithReadTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := s.Execute(context.Background(), NewSimpleStatement("SELECT * FROM t", nil,
		StmtIdempotent(false)))
	requireRequestError(t, err, types.KindOperationTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecute_FutureResolvedOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	hosts := testHosts(3)
	cluster := newFakeCluster()
	for _, h := range hosts {
		cluster.on(h, func(context.Context, *cql.Request) (*cql.Response, error) {
			time.Sleep(15 * time.Millisecond)
			return rowsResponse("any"), nil
		})
	}
	spec, err := policy.NewConstantSpeculativeExecutionPolicy(time.Millisecond, 5)
	require.NoError(t, err)
	s, _ := newTestSession(t, cluster, hosts, WithSpeculativeExecutionPolicy(spec))

	futures := make([]*Future, 20)
	for i := range futures {
		futures[i] = s.ExecuteAsync(context.Background(),
			NewSimpleStatement("SELECT * FROM t", nil, StmtIdempotent(true)))
	}
	for _, f := range futures {
		rs, err := f.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, rs.Len())
	}
}

func TestRequestHandler_SetCompletedOnlyOnce(t *testing.T) {
	hosts := testHosts(1)
	cluster := newFakeCluster()
	s, _ := newTestSession(t, cluster, hosts)

	h := newRequestHandler(context.Background(), s, NewSimpleStatement("SELECT 1", nil))
	first := errors.New("first")
	require.True(t, h.setCompleted(first, nil, nil))
	require.False(t, h.setCompleted(nil, newRowSet(nil, ExecutionInfo{}), nil))

	_, err := h.future.Get(context.Background())
	require.ErrorIs(t, err, first)
}

func TestExecute_PreferredHostOfOverlappingRequests(t *testing.T) {
	local := types.NewHost("10.0.1.1:9042", "A", "r1")
	r1 := types.NewHost("10.0.2.1:9042", "B", "r1")
	r2 := types.NewHost("10.0.2.2:9042", "B", "r1")
	cluster := newFakeCluster()
	s, _ := newTestSession(t, cluster, []*Host{local, r1, r2},
		WithLoadBalancingPolicy(policy.NewDefaultLoadBalancingPolicy(policy.WithLocalDC("A"))),
	)

	first := newRequestHandler(context.Background(), s,
		NewSimpleStatement("SELECT * FROM t", nil, StmtPreferredHost(r1)))
	second := newRequestHandler(context.Background(), s,
		NewSimpleStatement("SELECT * FROM t", nil, StmtPreferredHost(r2)))
	defer first.cancel()
	defer second.cancel()

	host, ok := first.getNextValidHost()
	require.True(t, ok)
	assert.Same(t, r1, host, "the later targeted plan must not hide the first preferred host")

	host, ok = first.getNextValidHost()
	require.True(t, ok)
	assert.Same(t, local, host)
	_, ok = first.getNextValidHost()
	assert.False(t, ok, "remote hosts other than the preferred one stay ignored")

	host, ok = second.getNextValidHost()
	require.True(t, ok)
	assert.Same(t, r2, host)

	rs, err := s.Execute(context.Background(),
		NewSimpleStatement("SELECT * FROM t", nil, StmtPreferredHost(r1)))
	require.NoError(t, err)
	assert.Same(t, r1, rs.Info().QueriedHost)
}

func TestRequestHandler_SetCompletedRaceSuccessAndFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	hosts := testHosts(1)
	s, _ := newTestSession(t, newFakeCluster(), hosts)

	for round := 0; round < 50; round++ {
		h := newRequestHandler(context.Background(), s, NewSimpleStatement("SELECT 1", nil))

		const k = 16
		failure := errors.New("failed")
		success := newRowSet(rowsResponse("winner"), ExecutionInfo{})

		var (
			start sync.WaitGroup
			done  sync.WaitGroup
			mu    sync.Mutex
			wins  []int
		)
		start.Add(1)
		for i := 0; i < k; i++ {
			done.Add(1)
			go func() {
				defer done.Done()
				start.Wait()

				var won bool
				if i%2 == 0 {
					won = h.setCompleted(failure, nil, nil)
				} else {
					won = h.setCompleted(nil, success, nil)
				}
				if won {
					mu.Lock()
					wins = append(wins, i)
					mu.Unlock()
				}
			}()
		}
		start.Done()
		done.Wait()

		require.Len(t, wins, 1, "exactly one completion must win")

		rs, err := h.future.Get(context.Background())
		if wins[0]%2 == 0 {
			require.ErrorIs(t, err, failure)
			require.Nil(t, rs)
		} else {
			require.NoError(t, err)
			require.Same(t, success, rs)
		}
	}
}
