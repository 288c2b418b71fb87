package cql

import (
	"context"
	"errors"
	"sync"

	"github.com/arloliu/strand/types"
)

// ErrPoolClosed is the cause reported by Borrow on a closed pool.
var ErrPoolClosed = errors.New("strand: pool is closed")

// Dialer opens a connection to host using keyspace.
type Dialer func(ctx context.Context, host *types.Host, keyspace string) (Connection, error)

// LazyPool is a Pool holding a single multiplexed connection per host.
//
// The connection is dialed on first Borrow and re-dialed after it was
// removed or closed. Drivers such as gocql multiplex many streams over their
// own connections, so one logical connection per host is enough.
//
// At most one dial runs at a time and it runs without holding the pool lock.
// Concurrent borrowers wait for that dial and give up as soon as their own
// context is done; the dial itself is shared and is not cancelled by any
// single borrower.
type LazyPool struct {
	host *types.Host
	dial Dialer

	mu       sync.Mutex
	conn     Connection
	dialing  *dialCall
	keyspace string
	closed   bool
}

// dialCall is a dial in progress; done is closed once conn and err are set.
// A nil conn with a nil err means the result was discarded and the waiter
// should borrow again.
type dialCall struct {
	done chan struct{}
	conn Connection
	err  error
}

// Compile-time assertions.
var (
	_ Pool           = (*LazyPool)(nil)
	_ KeyspaceSetter = (*LazyPool)(nil)
)

// NewLazyPool creates a pool for host.
//
// Parameters:
//   - host: Host served by the pool
//   - keyspace: Initial keyspace, may be empty
//   - dial: Function opening a connection
//
// Returns:
//   - *LazyPool: A new pool with no open connection
func NewLazyPool(host *types.Host, keyspace string, dial Dialer) *LazyPool {
	return &LazyPool{host: host, dial: dial, keyspace: keyspace}
}

// Borrow returns the pooled connection, dialing it if needed.
func (p *LazyPool) Borrow(ctx context.Context) (Connection, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, &types.RequestError{Kind: types.KindBusyPool, Cause: ErrPoolClosed}
		}
		if p.conn != nil && !p.conn.Closed() {
			conn := p.conn
			p.mu.Unlock()

			return conn, nil
		}
		call := p.dialing
		if call == nil {
			call = &dialCall{done: make(chan struct{})}
			p.dialing = call
			go p.runDial(context.WithoutCancel(ctx), call, p.keyspace)
		}
		p.mu.Unlock()

		select {
		case <-call.done:
		case <-ctx.Done():
			return nil, &types.RequestError{Kind: types.KindBusyPool, Cause: ctx.Err()}
		}

		if call.err != nil {
			return nil, borrowError(call.err)
		}
		if call.conn != nil {
			return call.conn, nil
		}
	}
}

func (p *LazyPool) runDial(ctx context.Context, call *dialCall, keyspace string) {
	conn, err := p.dial(ctx, p.host, keyspace)

	var stale Connection
	p.mu.Lock()
	p.dialing = nil
	switch {
	case err != nil:
		call.err = err
	case p.closed:
		stale, call.err = conn, ErrPoolClosed
	case p.keyspace != keyspace:
		// keyspace changed while dialing; waiters borrow again
		stale = conn
	default:
		p.conn, call.conn = conn, conn
	}
	p.mu.Unlock()
	close(call.done)

	if stale != nil {
		_ = stale.Close()
	}
}

func borrowError(err error) error {
	var reqErr *types.RequestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	return &types.RequestError{Kind: types.KindBusyPool, Cause: err}
}

// Remove closes conn and forgets it if it is the pooled connection.
func (p *LazyPool) Remove(conn Connection) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	if p.conn == conn {
		p.conn = nil
	}
	p.mu.Unlock()

	_ = conn.Close()
}

// SetKeyspace switches the keyspace used for future connections and drops
// the current one if the keyspace changed.
func (p *LazyPool) SetKeyspace(keyspace string) {
	p.mu.Lock()
	if p.keyspace == keyspace {
		p.mu.Unlock()
		return
	}
	p.keyspace = keyspace
	old := p.conn
	p.conn = nil
	p.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
}

// Keyspace returns the keyspace used for new connections.
func (p *LazyPool) Keyspace() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.keyspace
}

// Close closes the pooled connection; later Borrow calls fail.
func (p *LazyPool) Close() {
	p.mu.Lock()
	p.closed = true
	old := p.conn
	p.conn = nil
	p.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
}
