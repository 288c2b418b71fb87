// Package chaos provides an in-memory cluster whose hosts can be slowed
// down, made to fail or taken offline while a session is running.
package chaos

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/strand/adapter/cql"
	"github.com/arloliu/strand/types"
)

// ErrConnectionRefused is returned when dialing an offline host.
var ErrConnectionRefused = errors.New("chaos: connection refused")

// HostConfig holds the chaos configuration of one host.
type HostConfig struct {
	Latency   time.Duration   // Base latency of every request
	Jitter    time.Duration   // Uniform extra latency in [0, Jitter)
	ErrorRate float64         // 0.0-1.0 probability to fail a request
	ErrorKind types.ErrorKind // Kind of injected errors
	Offline   bool            // Dials fail and open connections break
}

// Cluster is a set of simulated hosts answering every request with one row.
type Cluster struct {
	keyspace string
	configs  *xsync.MapOf[string, HostConfig]
	served   *xsync.MapOf[string, *atomic.Int64]
	failed   *xsync.MapOf[string, *atomic.Int64]
}

// NewCluster creates a cluster whose connections use keyspace.
func NewCluster(keyspace string) *Cluster {
	return &Cluster{
		keyspace: keyspace,
		configs:  xsync.NewMapOf[string, HostConfig](),
		served:   xsync.NewMapOf[string, *atomic.Int64](),
		failed:   xsync.NewMapOf[string, *atomic.Int64](),
	}
}

// Set replaces the chaos configuration of the host at addr.
func (c *Cluster) Set(addr string, cfg HostConfig) {
	c.configs.Store(addr, cfg)
}

// SetLatency sets a fixed latency on the host at addr, keeping other settings.
func (c *Cluster) SetLatency(addr string, d time.Duration) {
	c.configs.Compute(addr, func(cfg HostConfig, _ bool) (HostConfig, bool) {
		cfg.Latency = d
		return cfg, false
	})
}

// SetOffline takes the host at addr offline or back online.
func (c *Cluster) SetOffline(addr string, offline bool) {
	c.configs.Compute(addr, func(cfg HostConfig, _ bool) (HostConfig, bool) {
		cfg.Offline = offline
		return cfg, false
	})
}

// Reset clears every chaos configuration.
func (c *Cluster) Reset() {
	c.configs.Clear()
}

// Served returns the number of requests the host at addr answered.
func (c *Cluster) Served(addr string) int64 {
	return c.counter(c.served, addr).Load()
}

// Failed returns the number of requests the host at addr failed on purpose.
func (c *Cluster) Failed(addr string) int64 {
	return c.counter(c.failed, addr).Load()
}

func (c *Cluster) counter(m *xsync.MapOf[string, *atomic.Int64], addr string) *atomic.Int64 {
	v, _ := m.LoadOrCompute(addr, func() *atomic.Int64 { return new(atomic.Int64) })
	return v
}

func (c *Cluster) config(addr string) HostConfig {
	cfg, _ := c.configs.Load(addr)
	return cfg
}

// PoolFactory returns the factory creating one lazy pool per host.
func (c *Cluster) PoolFactory() cql.PoolFactory {
	return func(host *types.Host) (cql.Pool, error) {
		return cql.NewLazyPool(host, c.keyspace, c.dial), nil
	}
}

// Probe reports whether host accepts connections. It matches the
// topology.ProbeFunc signature.
func (c *Cluster) Probe(_ context.Context, host *types.Host) error {
	if c.config(host.Address()).Offline {
		return ErrConnectionRefused
	}

	return nil
}

func (c *Cluster) dial(_ context.Context, host *types.Host, _ string) (cql.Connection, error) {
	if c.config(host.Address()).Offline {
		return nil, types.NewSocketError(ErrConnectionRefused)
	}

	return &conn{cluster: c, host: host}, nil
}

type conn struct {
	cluster *Cluster
	host    *types.Host
	closed  atomic.Bool
}

func (k *conn) Host() *types.Host {
	return k.host
}

func (k *conn) Closed() bool {
	return k.closed.Load()
}

func (k *conn) Close() error {
	k.closed.Store(true)
	return nil
}

func (k *conn) Send(ctx context.Context, req *cql.Request) (*cql.Response, error) {
	addr := k.host.Address()
	cfg := k.cluster.config(addr)

	if cfg.Offline {
		_ = k.Close()
		return nil, types.NewSocketError(ErrConnectionRefused)
	}

	delay := cfg.Latency
	if cfg.Jitter > 0 {
		delay += rand.N(cfg.Jitter)
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if cfg.ErrorRate > 0 && rand.Float64() < cfg.ErrorRate {
		k.cluster.counter(k.cluster.failed, addr).Add(1)
		return nil, injectedError(cfg.ErrorKind, req.Consistency)
	}

	k.cluster.counter(k.cluster.served, addr).Add(1)

	switch req.Kind {
	case cql.KindPrepare:
		return &cql.Response{
			Kind:           cql.ResponsePrepared,
			PreparedID:     []byte(req.Query),
			RoutingIndexes: []int{0},
		}, nil
	case cql.KindBatch:
		return &cql.Response{Kind: cql.ResponseVoid}, nil
	default:
		return &cql.Response{
			Kind: cql.ResponseRows,
			Rows: []map[string]any{{"host": addr}},
		}, nil
	}
}

func injectedError(kind types.ErrorKind, cl types.Consistency) error {
	switch kind {
	case types.KindUnavailable:
		return types.NewUnavailableError(cl, 2, 1)
	case types.KindReadTimeout:
		return types.NewReadTimeoutError(cl, 2, 2, false)
	case types.KindWriteTimeout:
		return types.NewWriteTimeoutError(cl, types.WriteTypeSimple, 2, 1)
	case types.KindSocket:
		return types.NewSocketError(errors.New("chaos: connection reset"))
	default:
		return types.NewRequestError(kind, "chaos: injected "+kind.String())
	}
}
