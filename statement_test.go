package strand

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/strand/adapter/cql"
	"github.com/arloliu/strand/types"
)

func TestSimpleStatement_Options(t *testing.T) {
	host := types.NewHost("10.0.0.1:9042", "dc1", "r1")
	ts := time.UnixMicro(1_700_000_000_000_000)

	stmt := NewSimpleStatement("SELECT * FROM t", []any{1},
		StmtKeyspace("app"),
		StmtRoutingKey([]byte("k")),
		StmtIdempotent(true),
		StmtConsistency(types.LocalQuorum),
		StmtPreferredHost(host),
		StmtReadTimeout(time.Second),
		StmtPagingState([]byte{1}),
		StmtTimestamp(ts),
		StmtTracing(true),
	)

	assert.Equal(t, "app", stmt.Keyspace())
	assert.Equal(t, []byte("k"), stmt.RoutingKey())
	assert.Equal(t, types.Idempotent, stmt.Idempotence())
	cl, ok := stmt.Consistency()
	assert.True(t, ok)
	assert.Equal(t, types.LocalQuorum, cl)
	_, ok = stmt.SerialConsistency()
	assert.False(t, ok)
	assert.Same(t, host, stmt.PreferredHost())
	assert.Nil(t, stmt.Host())
	assert.Equal(t, time.Second, stmt.ReadTimeout())

	req := stmt.buildRequest()
	assert.Equal(t, cql.KindQuery, req.Kind)
	assert.Equal(t, ts.UnixMicro(), req.Timestamp)
	assert.True(t, req.Tracing)
	assert.Equal(t, []byte{1}, req.PagingState)
}

func TestSimpleStatement_DefaultIdempotenceUnknown(t *testing.T) {
	stmt := NewSimpleStatement("SELECT 1", nil)
	assert.Equal(t, types.IdempotenceUnknown, stmt.Idempotence())

	stmt = NewSimpleStatement("SELECT 1", nil, StmtIdempotent(false))
	assert.Equal(t, types.NotIdempotent, stmt.Idempotence())
}

func TestBoundStatement_RoutingKeySingleComponent(t *testing.T) {
	ps := &PreparedStatement{id: []byte{1}, query: "SELECT * FROM t WHERE id = ?", routingIndexes: []int{0}}

	assert.Equal(t, []byte("user-1"), ps.Bind("user-1").RoutingKey())
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 7}, ps.Bind(int64(7)).RoutingKey())
	assert.Equal(t, []byte{0, 0, 0, 7}, ps.Bind(int32(7)).RoutingKey())

	id := uuid.New()
	assert.Equal(t, id[:], ps.Bind(id).RoutingKey())
}

func TestBoundStatement_RoutingKeyComposite(t *testing.T) {
	ps := &PreparedStatement{
		id:             []byte{1},
		query:          "SELECT * FROM t WHERE a = ? AND b = ? AND c = ?",
		routingIndexes: []int{2, 0},
	}

	key := ps.Bind("ab", "ignored", true).RoutingKey()
	expected := []byte{
		0, 1, 1, 0, // c = true
		0, 2, 'a', 'b', 0, // a = "ab"
	}
	assert.Equal(t, expected, key)
}

func TestBoundStatement_RoutingKeyUnavailable(t *testing.T) {
	ps := &PreparedStatement{id: []byte{1}, routingIndexes: []int{0}}
	assert.Nil(t, ps.Bind(struct{}{}).RoutingKey())
	assert.Nil(t, ps.Bind().RoutingKey())

	noIdx := &PreparedStatement{id: []byte{1}}
	assert.Nil(t, noIdx.Bind("x").RoutingKey())

	explicit := ps.BindWith([]any{struct{}{}}, StmtRoutingKey([]byte("rk")))
	assert.Equal(t, []byte("rk"), explicit.RoutingKey())
}

func TestBoundStatement_InheritsPrepareDefaults(t *testing.T) {
	ps := &PreparedStatement{
		id:       []byte{1},
		query:    "SELECT * FROM t WHERE id = ?",
		keyspace: "app",
		defaults: []StatementOption{StmtConsistency(types.Quorum), StmtIdempotent(true)},
	}

	b := ps.BindWith([]any{1}, StmtConsistency(types.One))
	cl, ok := b.Consistency()
	require.True(t, ok)
	assert.Equal(t, types.One, cl)
	assert.Equal(t, types.Idempotent, b.Idempotence())
	assert.Equal(t, "app", b.Keyspace())

	req := b.buildRequest()
	assert.Equal(t, cql.KindExecute, req.Kind)
	assert.Equal(t, []byte{1}, req.PreparedID)
	assert.Equal(t, "app", req.Keyspace)
	assert.True(t, req.IsPrepared())
}

func TestBatchStatement_Build(t *testing.T) {
	ps := &PreparedStatement{
		id:             []byte{9},
		query:          "INSERT INTO t (id) VALUES (?)",
		keyspace:       "app",
		routingIndexes: []int{0},
	}

	batch := NewBatchStatement(UnloggedBatch).
		Add("INSERT INTO log (msg) VALUES (?)", "a").
		AddBound(ps.Bind("key"))

	assert.Equal(t, 2, batch.Size())
	assert.Equal(t, UnloggedBatch, batch.Type())
	assert.Equal(t, "app", batch.Keyspace())
	assert.Equal(t, []byte("key"), batch.RoutingKey())

	req := batch.buildRequest()
	assert.Equal(t, cql.KindBatch, req.Kind)
	assert.Equal(t, UnloggedBatch, req.BatchType)
	require.Len(t, req.Entries, 2)
	assert.Empty(t, req.Entries[0].PreparedID)
	assert.Equal(t, []byte{9}, req.Entries[1].PreparedID)
	assert.True(t, req.IsPrepared())
}

func TestBatchStatement_SimpleOnlyIsNotPrepared(t *testing.T) {
	batch := NewBatchStatement(LoggedBatch).Add("INSERT INTO t (id) VALUES (1)")
	assert.False(t, batch.buildRequest().IsPrepared())
	assert.Nil(t, batch.RoutingKey())
	assert.Empty(t, batch.Keyspace())
}
