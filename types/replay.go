package types

import (
	"context"

	"github.com/google/uuid"
)

// ReplayPayload is a write captured after it failed on every host, to be
// executed again once the cluster recovers.
//
// Timestamp is the client-side write timestamp in microseconds. Replays
// carry it so that a late replay never overwrites a newer write.
type ReplayPayload struct {
	ID          uuid.UUID
	Keyspace    string
	Query       string
	Values      []any
	Batch       []ReplayStatement
	BatchType   BatchType
	Consistency Consistency
	RoutingKey  []byte
	Timestamp   int64
}

// ReplayStatement is one statement of a replayed batch.
type ReplayStatement struct {
	Query  string
	Values []any
}

// IsBatch reports whether the payload is a batch.
func (p ReplayPayload) IsBatch() bool {
	return len(p.Batch) > 0
}

// Replayer accepts writes for later execution.
//
// Implementations must be safe for concurrent use. Enqueue returns
// ErrReplayQueueFull or ErrReplayerClosed when the payload is rejected.
type Replayer interface {
	Enqueue(ctx context.Context, payload ReplayPayload) error
}
