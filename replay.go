package strand

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/strand/adapter/cql"
	"github.com/arloliu/strand/types"
)

// replayEnqueueTimeout bounds the hand-off of a failed write to the replayer.
const replayEnqueueTimeout = time.Second

// replayPayload captures req for later execution.
//
// Writes without a client timestamp get ts, so that a replay loses against
// any write issued after the failure.
func replayPayload(req *cql.Request, routingKey []byte, ts int64) (types.ReplayPayload, error) {
	payload := types.ReplayPayload{
		ID:          uuid.New(),
		Keyspace:    req.Keyspace,
		Consistency: req.Consistency,
		RoutingKey:  routingKey,
		Timestamp:   req.Timestamp,
	}
	if payload.Timestamp == 0 {
		payload.Timestamp = ts
	}

	switch req.Kind {
	case cql.KindQuery, cql.KindExecute:
		payload.Query = req.Query
		payload.Values = req.Values
	case cql.KindBatch:
		payload.BatchType = req.BatchType
		payload.Batch = make([]types.ReplayStatement, 0, len(req.Entries))
		for _, e := range req.Entries {
			payload.Batch = append(payload.Batch, types.ReplayStatement{Query: e.Query, Values: e.Values})
		}
		if len(payload.Batch) == 0 {
			return payload, types.ErrNotReplayable
		}
	default:
		return payload, types.ErrNotReplayable
	}

	return payload, nil
}

// enqueueReplay hands the request of h to the replayer and reports whether
// it was accepted.
func (s *Session) enqueueReplay(h *requestHandler) bool {
	r := s.config.Replayer
	if r == nil || !h.idempotent || !h.stmt.replayOnFailure() {
		return false
	}

	payload, err := replayPayload(h.request, h.stmt.RoutingKey(), h.started.UnixMicro())
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(h.callerCtx), replayEnqueueTimeout)
	defer cancel()

	if err := r.Enqueue(ctx, payload); err != nil {
		s.metrics.IncReplayDropped()
		s.logger.Warn("failed to enqueue write for replay",
			"keyspace", payload.Keyspace,
			"id", payload.ID.String(),
			"error", err,
		)

		return false
	}
	s.metrics.IncReplayEnqueued()

	return true
}

// Replay executes a captured write.
//
// The write keeps its timestamp and consistency and is sent as idempotent.
// A replay that fails again is not handed back to the replayer; the caller
// (usually a replay.Worker) decides whether to try again.
//
// Parameters:
//   - ctx: Context bounding the request
//   - payload: The captured write
//
// Returns:
//   - error: The request error
func (s *Session) Replay(ctx context.Context, payload types.ReplayPayload) error {
	opts := []StatementOption{
		StmtIdempotent(true),
		StmtConsistency(payload.Consistency),
	}
	if payload.Keyspace != "" {
		opts = append(opts, StmtKeyspace(payload.Keyspace))
	}
	if len(payload.RoutingKey) > 0 {
		opts = append(opts, StmtRoutingKey(payload.RoutingKey))
	}
	if payload.Timestamp != 0 {
		opts = append(opts, StmtTimestamp(time.UnixMicro(payload.Timestamp)))
	}

	var stmt Statement
	switch {
	case payload.IsBatch():
		batch := NewBatchStatement(payload.BatchType, opts...)
		for _, e := range payload.Batch {
			batch.Add(e.Query, e.Values...)
		}
		stmt = batch
	case payload.Query != "":
		stmt = NewSimpleStatement(payload.Query, payload.Values, opts...)
	default:
		return fmt.Errorf("%w: empty payload %s", types.ErrNotReplayable, payload.ID)
	}

	if _, err := s.Execute(ctx, stmt); err != nil {
		return fmt.Errorf("strand: replay %s: %w", payload.ID, err)
	}

	return nil
}
