// Package replay queues writes that failed with no host available and
// executes them again once the cluster recovers.
//
// A session hands a failed write to its replayer when the statement opted
// in with strand.StmtReplayOnFailure and is idempotent:
//
//	replayer := replay.NewMemoryReplayer(replay.WithQueueCapacity(1000))
//	session, _ := strand.NewSession(meta, pools, strand.WithReplayer(replayer))
//
//	worker := replay.NewMemoryWorker(replayer, session.Replay,
//	    replay.WithRetryDelay(500*time.Millisecond),
//	)
//	_ = worker.Start()
//	defer worker.Stop()
//
//	_, err := session.Execute(ctx, strand.NewSimpleStatement(
//	    "UPDATE users SET name = ? WHERE id = ?", []any{name, id},
//	    strand.StmtIdempotent(true),
//	    strand.StmtReplayOnFailure(true),
//	))
//	var nhErr *strand.NoHostAvailableError
//	if errors.As(err, &nhErr) && nhErr.Replayed {
//	    // the write will be applied later
//	}
//
// # Replayers
//
// [MemoryReplayer] is a bounded in-process queue; its content is lost when
// the process exits. [NATSReplayer] stores writes in a NATS JetStream work
// queue stream, encoded with MessagePack, so they survive restarts and can
// be replayed by any instance.
//
// # Ordering
//
// Every payload carries the client-side timestamp of the original write, or
// the time the request started when the statement had none. A replay
// arriving after a newer write of the same cell therefore loses.
package replay
