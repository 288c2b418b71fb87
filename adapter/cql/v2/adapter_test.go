package v2_test

import (
	"context"
	"testing"

	gocql "github.com/apache/cassandra-gocql-driver/v2"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/strand/adapter/cql"
	v2 "github.com/arloliu/strand/adapter/cql/v2"
	"github.com/arloliu/strand/types"
)

func TestConnImplementsInterface(t *testing.T) {
	var _ cql.Connection = (*v2.Conn)(nil)
}

func TestPrepareAndUseAreAnsweredLocally(t *testing.T) {
	conn := v2.NewConn(nil, types.NewHost("127.0.0.1:9042", "dc1", ""))
	require.True(t, conn.Closed())

	resp, err := conn.Send(context.Background(), &cql.Request{Kind: cql.KindPrepare, Query: "SELECT 1"})
	require.NoError(t, err)
	require.Equal(t, cql.PreparedID("SELECT 1"), resp.PreparedID)

	resp, err = conn.Send(context.Background(), &cql.Request{Kind: cql.KindQuery, Query: `USE "Quoted"`})
	require.NoError(t, err)
	require.Equal(t, "Quoted", resp.Keyspace)
}

func TestClassifyError(t *testing.T) {
	got := v2.ClassifyError(&gocql.RequestErrUnavailable{Consistency: gocql.Quorum, Required: 3, Alive: 2})
	require.Equal(t, types.KindUnavailable, got.Kind)
	require.Equal(t, types.Quorum, got.Consistency)
	require.Equal(t, 3, got.Required)
	require.Equal(t, 2, got.Alive)

	require.Equal(t, types.KindOperationTimeout, v2.ClassifyError(gocql.ErrTimeoutNoResponse).Kind)
	require.Equal(t, types.KindOperationTimeout, v2.ClassifyError(context.DeadlineExceeded).Kind)
}

func TestConsistencyConversion(t *testing.T) {
	require.Equal(t, gocql.LocalQuorum, v2.ToGocqlConsistency(types.LocalQuorum))
	require.Equal(t, gocql.LocalSerial, v2.ToGocqlSerialConsistency(types.LocalSerial))
	require.Equal(t, types.One, v2.FromGocqlConsistency(gocql.One))
}
