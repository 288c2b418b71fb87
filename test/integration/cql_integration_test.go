package integration_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/strand"
	"github.com/arloliu/strand/test/testutil"
	"github.com/arloliu/strand/types"
)

var drivers = []driverVersion{driverV1, driverV2}

func TestCQLIntegration_SimpleAndPrepared(t *testing.T) {
	for _, v := range drivers {
		t.Run(v.String(), func(t *testing.T) {
			ctx := t.Context()
			cluster := requireCluster(t)
			session := newSession(t, v, nil, nil)
			table := createTable(t, session, "users", usersTableSchema)

			id := uuid.NewString()
			_, err := session.Execute(ctx, strand.NewSimpleStatement(
				fmt.Sprintf("INSERT INTO %s (id, name, email) VALUES (?, ?, ?)", table),
				[]any{id, "alice", "alice@example.com"},
			))
			require.NoError(t, err)

			stmt, err := session.Prepare(ctx,
				fmt.Sprintf("SELECT name, email FROM %s WHERE id = ?", table),
				strand.StmtIdempotent(true))
			require.NoError(t, err)

			rs, err := session.Execute(ctx, stmt.Bind(id))
			require.NoError(t, err)
			require.Equal(t, 1, rs.Len())
			assert.Equal(t, "alice", rs.Rows()[0]["name"])
			assert.Equal(t, "alice@example.com", rs.Rows()[0]["email"])

			info := rs.Info()
			require.NotNil(t, info.QueriedHost)
			assert.Equal(t, cluster.Address, info.QueriedHost.Address())
			assert.Equal(t, strand.One, info.AchievedConsistency)
		})
	}
}

func TestCQLIntegration_Batch(t *testing.T) {
	for _, v := range drivers {
		t.Run(v.String(), func(t *testing.T) {
			ctx := t.Context()
			session := newSession(t, v, nil, nil)
			table := createTable(t, session, "batch", usersTableSchema)

			insert := fmt.Sprintf("INSERT INTO %s (id, name, email) VALUES (?, ?, ?)", table)
			batch := strand.NewBatchStatement(strand.LoggedBatch).
				Add(insert, uuid.NewString(), "bob", "bob@example.com").
				Add(insert, uuid.NewString(), "carol", "carol@example.com")

			_, err := session.Execute(ctx, batch)
			require.NoError(t, err)

			rs, err := session.Execute(ctx, strand.NewSimpleStatement(fmt.Sprintf("SELECT name FROM %s", table), nil))
			require.NoError(t, err)
			assert.Equal(t, 2, rs.Len())
		})
	}
}

func TestCQLIntegration_Paging(t *testing.T) {
	for _, v := range drivers {
		t.Run(v.String(), func(t *testing.T) {
			ctx := t.Context()
			session := newSession(t, v, nil, nil)
			table := createTable(t, session, "paging", usersTableSchema)

			insert := fmt.Sprintf("INSERT INTO %s (id, name, email) VALUES (?, ?, ?)", table)
			for i := range 10 {
				_, err := session.Execute(ctx, strand.NewSimpleStatement(insert,
					[]any{uuid.NewString(), fmt.Sprintf("user-%d", i), ""}))
				require.NoError(t, err)
			}

			query := fmt.Sprintf("SELECT name FROM %s", table)
			var (
				total int
				pages int
				state []byte
			)
			for {
				rs, err := session.Execute(ctx, strand.NewSimpleStatement(query, nil,
					strand.StmtPageSize(3), strand.StmtPagingState(state)))
				require.NoError(t, err)

				total += rs.Len()
				pages++
				state = rs.PagingState()
				if len(state) == 0 {
					break
				}
				require.Less(t, pages, 10, "paging does not terminate")
			}

			assert.Equal(t, 10, total)
			assert.GreaterOrEqual(t, pages, 4)
		})
	}
}

func TestCQLIntegration_ExecuteAsync(t *testing.T) {
	for _, v := range drivers {
		t.Run(v.String(), func(t *testing.T) {
			session := newSession(t, v, nil, nil)

			future := session.ExecuteAsync(t.Context(),
				strand.NewSimpleStatement("SELECT release_version FROM system.local", nil))
			rs, err := future.Get(t.Context())
			require.NoError(t, err)
			require.Equal(t, 1, rs.Len())
			assert.NotEmpty(t, rs.Rows()[0]["release_version"])
		})
	}
}

func TestCQLIntegration_InvalidQuery(t *testing.T) {
	for _, v := range drivers {
		t.Run(v.String(), func(t *testing.T) {
			session := newSession(t, v, nil, nil)

			_, err := session.Execute(t.Context(), strand.NewSimpleStatement("SELECT * FROM no_such_table", nil))
			require.Error(t, err)

			var reqErr *types.RequestError
			require.ErrorAs(t, err, &reqErr)
			assert.Equal(t, types.KindInvalid, reqErr.Kind)
			assert.True(t, reqErr.IsServerReported())
		})
	}
}

func TestCQLIntegration_ReadTimeoutOnSlowHost(t *testing.T) {
	cluster := requireCluster(t)
	factory := testutil.SlowPoolFactory(poolFactory(driverV1), map[string]time.Duration{
		cluster.Address: 500 * time.Millisecond,
	})
	metrics := testutil.NewTestMetricsCollector()
	session := newSession(t, driverV1, factory, nil, strand.WithMetrics(metrics))

	_, err := session.Execute(t.Context(), strand.NewSimpleStatement(
		"SELECT release_version FROM system.local", nil,
		strand.StmtReadTimeout(50*time.Millisecond),
	))
	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrNoHostAvailable) || isKind(err, types.KindOperationTimeout), "got %v", err)
	assert.Positive(t, metrics.GetRequestTotal())
	assert.Positive(t, metrics.GetRequestErrors(types.KindOperationTimeout))

	rs, err := session.Execute(t.Context(), strand.NewSimpleStatement(
		"SELECT release_version FROM system.local", nil,
		strand.StmtReadTimeout(5*time.Second),
	))
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())
}

func isKind(err error, kind types.ErrorKind) bool {
	var reqErr *types.RequestError

	return errors.As(err, &reqErr) && reqErr.Kind == kind
}
