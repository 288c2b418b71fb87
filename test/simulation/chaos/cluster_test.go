package chaos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/strand/adapter/cql"
	"github.com/arloliu/strand/types"
)

func borrow(t *testing.T, c *Cluster, host *types.Host) cql.Connection {
	t.Helper()

	pool, err := c.PoolFactory()(host)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	conn, err := pool.Borrow(context.Background())
	require.NoError(t, err)

	return conn
}

func TestCluster_AnswersWithQueriedHost(t *testing.T) {
	c := NewCluster("ks")
	host := types.NewHost("10.0.0.1:9042", "dc1", "r1")
	conn := borrow(t, c, host)

	resp, err := conn.Send(context.Background(), &cql.Request{Kind: cql.KindQuery, Query: "SELECT * FROM t"})
	require.NoError(t, err)
	require.Equal(t, cql.ResponseRows, resp.Kind)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "10.0.0.1:9042", resp.Rows[0]["host"])
	assert.Equal(t, int64(1), c.Served(host.Address()))

	resp, err = conn.Send(context.Background(), &cql.Request{Kind: cql.KindPrepare, Query: "SELECT * FROM t WHERE id = ?"})
	require.NoError(t, err)
	assert.Equal(t, cql.ResponsePrepared, resp.Kind)
	assert.Equal(t, []int{0}, resp.RoutingIndexes)
}

func TestCluster_Offline(t *testing.T) {
	c := NewCluster("ks")
	host := types.NewHost("10.0.0.1:9042", "dc1", "r1")
	conn := borrow(t, c, host)

	c.SetOffline(host.Address(), true)
	require.ErrorIs(t, c.Probe(context.Background(), host), ErrConnectionRefused)

	_, err := conn.Send(context.Background(), &cql.Request{Kind: cql.KindQuery})
	var reqErr *types.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, types.KindSocket, reqErr.Kind)
	assert.True(t, conn.Closed())

	c.SetOffline(host.Address(), false)
	require.NoError(t, c.Probe(context.Background(), host))
}

func TestCluster_InjectedErrors(t *testing.T) {
	c := NewCluster("ks")
	host := types.NewHost("10.0.0.1:9042", "dc1", "r1")
	conn := borrow(t, c, host)

	c.Set(host.Address(), HostConfig{ErrorRate: 1, ErrorKind: types.KindUnavailable})

	_, err := conn.Send(context.Background(), &cql.Request{Kind: cql.KindQuery, Consistency: types.Quorum})
	var reqErr *types.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, types.KindUnavailable, reqErr.Kind)
	assert.Equal(t, int64(1), c.Failed(host.Address()))
	assert.Equal(t, int64(0), c.Served(host.Address()))

	c.Reset()
	_, err = conn.Send(context.Background(), &cql.Request{Kind: cql.KindQuery})
	require.NoError(t, err)
}

func TestCluster_LatencyHonorsContext(t *testing.T) {
	c := NewCluster("ks")
	host := types.NewHost("10.0.0.1:9042", "dc1", "r1")
	conn := borrow(t, c, host)

	c.SetLatency(host.Address(), time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := conn.Send(ctx, &cql.Request{Kind: cql.KindQuery})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
