package v1

import (
	"testing"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindValuesConvertsUUID(t *testing.T) {
	id := uuid.New()
	values := []any{id, "name", 3}

	out := bindValues(values)
	require.Len(t, out, 3)
	assert.Equal(t, gocql.UUID(id), out[0])
	assert.Equal(t, "name", out[1])

	// the caller's slice is untouched
	assert.Equal(t, id, values[0])
}

func TestBindValuesWithoutUUID(t *testing.T) {
	values := []any{"a", 1}
	out := bindValues(values)
	assert.Same(t, &values[0], &out[0])
	assert.Nil(t, bindValues(nil))
}
