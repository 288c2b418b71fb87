package strand

import "context"

// Future is the pending result of an asynchronous request.
//
// It is resolved exactly once, with either a RowSet or an error.
type Future struct {
	done chan struct{}
	rs   *RowSet
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// resolve must be called at most once; the request handler guarantees it.
func (f *Future) resolve(rs *RowSet, err error) {
	f.rs = rs
	f.err = err
	close(f.done)
}

// Done returns a channel closed when the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Get waits for the result.
//
// Cancelling ctx only stops waiting; the request itself is bound to the
// context it was sent with.
//
// Parameters:
//   - ctx: Context bounding the wait
//
// Returns:
//   - *RowSet: The result on success
//   - error: The request error, or ctx.Err() if the wait was cancelled
func (f *Future) Get(ctx context.Context) (*RowSet, error) {
	select {
	case <-f.done:
		return f.rs, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
