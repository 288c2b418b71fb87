package v1

import (
	"errors"
	"net"
	"slices"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/arloliu/strand/adapter/cql"
	"github.com/arloliu/strand/types"
)

// ToGocqlConsistency converts a strand Consistency to gocql.Consistency.
//
// Parameters:
//   - c: Strand consistency level
//
// Returns:
//   - gocql.Consistency: The equivalent gocql consistency level
func ToGocqlConsistency(c types.Consistency) gocql.Consistency {
	return gocql.Consistency(c)
}

// FromGocqlConsistency converts a gocql.Consistency to strand Consistency.
func FromGocqlConsistency(c gocql.Consistency) types.Consistency {
	return types.Consistency(c)
}

// ToGocqlSerialConsistency converts a strand Consistency to gocql.SerialConsistency.
//
// In gocql v1 serial consistency is a separate type from Consistency.
//
// Parameters:
//   - c: Strand consistency level (should be Serial or LocalSerial)
//
// Returns:
//   - gocql.SerialConsistency: The equivalent gocql serial consistency level
func ToGocqlSerialConsistency(c types.Consistency) gocql.SerialConsistency {
	return gocql.SerialConsistency(c)
}

// ToGocqlBatchType converts a strand BatchType to gocql.BatchType.
func ToGocqlBatchType(bt types.BatchType) gocql.BatchType {
	return gocql.BatchType(bt)
}

// ClassifyError converts an error returned by gocql into a *types.RequestError.
//
// Server errors carrying replica accounting keep their fields; other server
// errors are classified by code. Transport failures become KindSocket,
// client-side timeouts KindOperationTimeout, and anything unrecognized
// KindInvalid so that it is never retried blindly.
//
// Parameters:
//   - err: Error returned by gocql (nil returns nil)
//
// Returns:
//   - *types.RequestError: The classified error with err as Cause
func ClassifyError(err error) *types.RequestError {
	if err == nil {
		return nil
	}

	var (
		unavailable  *gocql.RequestErrUnavailable
		readTimeout  *gocql.RequestErrReadTimeout
		writeTimeout *gocql.RequestErrWriteTimeout
		unprepared   *gocql.RequestErrUnprepared
		serverErr    gocql.RequestError
		netErr       net.Error
		classified   *types.RequestError
	)

	switch {
	case errors.As(err, &unavailable):
		classified = types.NewUnavailableError(
			FromGocqlConsistency(unavailable.Consistency), unavailable.Required, unavailable.Alive)
	case errors.As(err, &readTimeout):
		classified = types.NewReadTimeoutError(
			FromGocqlConsistency(readTimeout.Consistency),
			readTimeout.BlockFor, readTimeout.Received, readTimeout.DataPresent != 0)
	case errors.As(err, &writeTimeout):
		classified = types.NewWriteTimeoutError(
			FromGocqlConsistency(writeTimeout.Consistency),
			types.WriteType(writeTimeout.WriteType), writeTimeout.BlockFor, writeTimeout.Received)
	case errors.As(err, &unprepared):
		classified = types.NewUnpreparedError(unprepared.StatementId)
	case errors.As(err, &serverErr):
		classified = cql.FromCode(serverErr.Code(), serverErr.Message())
	case errors.Is(err, gocql.ErrTimeoutNoResponse):
		classified = types.NewOperationTimeoutError(nil)
	case cql.ClassifyContextError(err) != nil:
		classified = types.NewOperationTimeoutError(nil)
	case errors.Is(err, gocql.ErrConnectionClosed), errors.Is(err, gocql.ErrNoConnections), errors.As(err, &netErr):
		classified = types.NewSocketError(nil)
	default:
		classified = types.NewRequestError(types.KindInvalid, "")
	}
	classified.Cause = err

	return classified
}

// bindValues converts the values gocql cannot marshal on its own.
// values is returned as is when nothing needs converting.
func bindValues(values []any) []any {
	out := values
	for i, v := range values {
		u, ok := v.(uuid.UUID)
		if !ok {
			continue
		}
		if len(out) > 0 && &out[0] == &values[0] {
			out = slices.Clone(values)
		}
		out[i] = gocql.UUID(u)
	}

	return out
}
