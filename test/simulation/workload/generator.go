package workload

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/strand"
	"github.com/arloliu/strand/types"
)

// Generator sends a steady stream of idempotent reads and writes through a
// session. Half of the writes are non-idempotent inserts; the other half are
// idempotent upserts queued for replay when no host is available.
type Generator struct {
	session  *strand.Session
	tracker  *Tracker
	read     *strand.PreparedStatement
	interval time.Duration
}

// NewGenerator prepares the workload statements and returns a generator.
//
// Parameters:
//   - ctx: Context bounding the prepare requests
//   - session: Session to send requests through
//   - tracker: Tracker receiving outcomes
//   - rate: Requests per second
//
// Returns:
//   - *Generator: A generator ready to Run
//   - error: Prepare error
func NewGenerator(ctx context.Context, session *strand.Session, tracker *Tracker, rate int) (*Generator, error) {
	read, err := session.Prepare(ctx, "SELECT data FROM sim_data WHERE id = ?", strand.StmtIdempotent(true))
	if err != nil {
		return nil, err
	}
	if rate <= 0 {
		rate = 100
	}

	return &Generator{
		session:  session,
		tracker:  tracker,
		read:     read,
		interval: time.Second / time.Duration(rate),
	}, nil
}

// Run sends requests until ctx is cancelled and waits for in-flight ones.
// Every tenth request is a write.
func (g *Generator) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var stmt types.Statement
		id := uuid.New()
		switch {
		case n%20 == 0:
			stmt = strand.NewSimpleStatement(
				"INSERT INTO sim_data (id, data) VALUES (?, ?)",
				[]any{id, id[:]},
				strand.StmtRoutingKey(id[:]),
			)
		case n%10 == 0:
			stmt = strand.NewSimpleStatement(
				"UPDATE sim_data SET data = ? WHERE id = ?",
				[]any{id[:], id},
				strand.StmtRoutingKey(id[:]),
				strand.StmtIdempotent(true),
				strand.StmtReplayOnFailure(true),
				strand.StmtTimestamp(time.Now()),
			)
		default:
			stmt = g.read.Bind(id)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			rs, err := g.session.Execute(context.WithoutCancel(ctx), stmt)
			g.tracker.Record(rs, err, time.Since(start))
		}()
	}
}
