package strand

import (
	"github.com/google/uuid"

	"github.com/arloliu/strand/adapter/cql"
)

// ExecutionInfo describes how a request was executed.
type ExecutionInfo struct {
	// QueriedHost is the host that produced the result.
	QueriedHost *Host
	// TriedHosts maps every host pulled from the query plan to the last
	// error observed on it; nil means attempted only.
	TriedHosts map[string]error
	// AchievedConsistency is the consistency of the successful attempt,
	// which differs from the requested one after a downgrading retry.
	AchievedConsistency Consistency
	Warnings            []string
	TraceID             uuid.UUID
	// SpeculativeExecutions counts the executions started by the
	// speculative execution policy.
	SpeculativeExecutions int
	// SchemaInAgreement is set after schema-altering statements.
	SchemaInAgreement bool
}

// RowSet is one page of results.
//
// A request whose failure was ignored by the retry policy yields an empty
// RowSet, indistinguishable from a query that matched nothing.
type RowSet struct {
	columns     []cql.ColumnInfo
	rows        []map[string]any
	pagingState []byte
	info        ExecutionInfo

	response *cql.Response
}

func newRowSet(resp *cql.Response, info ExecutionInfo) *RowSet {
	rs := &RowSet{info: info, response: resp}
	if resp != nil {
		rs.columns = resp.Columns
		rs.rows = resp.Rows
		rs.pagingState = resp.PagingState
	}

	return rs
}

// Columns returns the result columns.
func (r *RowSet) Columns() []cql.ColumnInfo {
	return r.columns
}

// Rows returns the rows of this page, keyed by column name.
func (r *RowSet) Rows() []map[string]any {
	return r.rows
}

// Len returns the number of rows of this page.
func (r *RowSet) Len() int {
	return len(r.rows)
}

// IsEmpty reports whether the page holds no row.
func (r *RowSet) IsEmpty() bool {
	return len(r.rows) == 0
}

// PagingState returns the state to fetch the next page, or nil on the last page.
func (r *RowSet) PagingState() []byte {
	return r.pagingState
}

// Info returns the execution details.
func (r *RowSet) Info() ExecutionInfo {
	return r.info
}
