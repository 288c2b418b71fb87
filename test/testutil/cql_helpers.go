package testutil

import (
	"context"
	"time"

	"github.com/arloliu/strand/adapter/cql"
	"github.com/arloliu/strand/types"
)

// SlowPoolFactory wraps a pool factory and delays every request sent to
// the hosts listed in delays. It is useful to trigger speculative
// executions against a real database.
//
// Parameters:
//   - factory: The factory creating the real pools
//   - delays: Extra latency per host address
//
// Returns:
//   - cql.PoolFactory: A factory whose pools hand out delayed connections
func SlowPoolFactory(factory cql.PoolFactory, delays map[string]time.Duration) cql.PoolFactory {
	return func(host *types.Host) (cql.Pool, error) {
		pool, err := factory(host)
		if err != nil {
			return nil, err
		}

		return &slowPool{Pool: pool, delay: delays[host.Address()]}, nil
	}
}

type slowPool struct {
	cql.Pool
	delay time.Duration
}

func (p *slowPool) Borrow(ctx context.Context) (cql.Connection, error) {
	conn, err := p.Pool.Borrow(ctx)
	if err != nil || p.delay <= 0 {
		return conn, err
	}

	return &slowConn{Connection: conn, delay: p.delay}, nil
}

func (p *slowPool) Remove(conn cql.Connection) {
	if slow, ok := conn.(*slowConn); ok {
		conn = slow.Connection
	}
	p.Pool.Remove(conn)
}

type slowConn struct {
	cql.Connection
	delay time.Duration
}

func (c *slowConn) Send(ctx context.Context, req *cql.Request) (*cql.Response, error) {
	timer := time.NewTimer(c.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	return c.Connection.Send(ctx, req)
}
