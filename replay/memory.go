package replay

import (
	"context"
	"sync/atomic"

	"github.com/arloliu/strand/types"
)

// DefaultQueueCapacity is the capacity of a MemoryReplayer without
// WithQueueCapacity.
const DefaultQueueCapacity = 10_000

// MemoryReplayer is a bounded in-process replay queue.
//
// Payloads are lost when the process exits; use NATSReplayer when writes
// must survive a restart. All methods are safe for concurrent use. Close
// does not close the underlying channel, so a concurrent Enqueue never
// panics.
type MemoryReplayer struct {
	queue    chan types.ReplayPayload
	closed   atomic.Bool
	closedCh chan struct{}
}

// MemoryReplayerOption configures a MemoryReplayer.
type MemoryReplayerOption func(*memoryConfig)

type memoryConfig struct {
	capacity int
}

// WithQueueCapacity sets the maximum number of pending payloads.
//
// Parameters:
//   - n: Queue capacity, ignored unless positive (default: 10000)
//
// Returns:
//   - MemoryReplayerOption: Configuration option
func WithQueueCapacity(n int) MemoryReplayerOption {
	return func(c *memoryConfig) {
		if n > 0 {
			c.capacity = n
		}
	}
}

var _ types.Replayer = (*MemoryReplayer)(nil)

// NewMemoryReplayer creates an empty in-memory replayer.
func NewMemoryReplayer(opts ...MemoryReplayerOption) *MemoryReplayer {
	cfg := memoryConfig{capacity: DefaultQueueCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &MemoryReplayer{
		queue:    make(chan types.ReplayPayload, cfg.capacity),
		closedCh: make(chan struct{}),
	}
}

// Enqueue adds a payload without blocking.
//
// Returns:
//   - error: ErrReplayerClosed after Close, ErrReplayQueueFull when the queue is full
func (m *MemoryReplayer) Enqueue(_ context.Context, payload types.ReplayPayload) error {
	if m.closed.Load() {
		return types.ErrReplayerClosed
	}

	select {
	case m.queue <- payload:
		return nil
	default:
		return types.ErrReplayQueueFull
	}
}

// Dequeue blocks until a payload is available, ctx is done or the replayer
// is closed and drained.
//
// Returns:
//   - types.ReplayPayload: The oldest payload
//   - error: ctx.Err() or ErrReplayerClosed
func (m *MemoryReplayer) Dequeue(ctx context.Context) (types.ReplayPayload, error) {
	select {
	case p := <-m.queue:
		return p, nil
	default:
	}

	select {
	case p := <-m.queue:
		return p, nil
	case <-ctx.Done():
		return types.ReplayPayload{}, ctx.Err()
	case <-m.closedCh:
		// payloads enqueued before Close are still handed out
		if p, ok := m.TryDequeue(); ok {
			return p, nil
		}

		return types.ReplayPayload{}, types.ErrReplayerClosed
	}
}

// TryDequeue returns the oldest payload, if any, without blocking.
func (m *MemoryReplayer) TryDequeue() (types.ReplayPayload, bool) {
	select {
	case p := <-m.queue:
		return p, true
	default:
		return types.ReplayPayload{}, false
	}
}

// DrainAll removes and returns every pending payload.
func (m *MemoryReplayer) DrainAll() []types.ReplayPayload {
	var out []types.ReplayPayload
	for {
		p, ok := m.TryDequeue()
		if !ok {
			return out
		}
		out = append(out, p)
	}
}

// Len returns the number of pending payloads.
func (m *MemoryReplayer) Len() int {
	return len(m.queue)
}

// Cap returns the queue capacity.
func (m *MemoryReplayer) Cap() int {
	return cap(m.queue)
}

// Close rejects further payloads. Pending payloads can still be dequeued.
func (m *MemoryReplayer) Close() {
	if m.closed.CompareAndSwap(false, true) {
		close(m.closedCh)
	}
}

// IsClosed reports whether Close was called.
func (m *MemoryReplayer) IsClosed() bool {
	return m.closed.Load()
}
