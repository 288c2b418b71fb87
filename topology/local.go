package topology

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/arloliu/strand/internal/logging"
	"github.com/arloliu/strand/internal/metrics"
	"github.com/arloliu/strand/types"
)

const (
	// DefaultVirtualNodes is the number of ring tokens owned by each host.
	DefaultVirtualNodes = 16

	// DefaultReplicationFactor applies to keyspaces without an explicit one.
	DefaultReplicationFactor = 3
)

// ErrDuplicateHost is returned by AddHost for an address already registered.
var ErrDuplicateHost = errors.New("strand/topology: host already registered")

// ProbeFunc checks whether a down host accepts connections again.
type ProbeFunc func(ctx context.Context, host *types.Host) error

type ringEntry struct {
	token uint64
	host  *types.Host
}

// Local is an in-memory topology: a host registry with a token ring,
// up/down tracking and reconnection scheduling.
//
// Replicas are computed SimpleStrategy-style: the routing key is hashed with
// xxhash onto the ring and the next distinct hosts clockwise own it.
//
// Hosts reported unreachable are marked down and probed on the schedule of
// the reconnection policy until a probe succeeds. Drained hosts are down on
// purpose and are never probed.
type Local struct {
	vnodes    int
	defaultRF int
	rf        map[string]int
	probe     ProbeFunc
	logger    types.Logger
	metrics   types.MetricsCollector

	mu             sync.RWMutex
	hosts          []*types.Host
	byAddr         map[string]*types.Host
	ring           []ringEntry
	schemaVersions map[string]uuid.UUID
	drained        map[string]string
	reconnecting   map[string]context.CancelFunc
	reconnection   types.ReconnectionPolicy
	listeners      map[int]func(types.HostEvent)
	nextListener   int
	closed         bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Compile-time assertions.
var (
	_ types.Metadata                 = (*Local)(nil)
	_ types.SchemaAgreementChecker   = (*Local)(nil)
	_ types.ReconnectionPolicySetter = (*Local)(nil)
	_ types.HostStateReporter        = (*Local)(nil)
	_ Drainer                        = (*Local)(nil)
)

// LocalOption configures a Local topology.
type LocalOption func(*Local)

// WithHosts registers the initial hosts.
//
// Parameters:
//   - hosts: Hosts known at startup, in contact-point order
//
// Returns:
//   - LocalOption: Configuration option
func WithHosts(hosts ...*types.Host) LocalOption {
	return func(l *Local) {
		for _, h := range hosts {
			if _, ok := l.byAddr[h.Address()]; ok {
				continue
			}
			l.hosts = append(l.hosts, h)
			l.byAddr[h.Address()] = h
		}
	}
}

// WithVirtualNodes sets the number of ring tokens per host.
func WithVirtualNodes(n int) LocalOption {
	return func(l *Local) {
		if n > 0 {
			l.vnodes = n
		}
	}
}

// WithReplicationFactor sets the replication factor of one keyspace.
//
// Parameters:
//   - keyspace: Keyspace name
//   - rf: Number of replicas per partition
//
// Returns:
//   - LocalOption: Configuration option
func WithReplicationFactor(keyspace string, rf int) LocalOption {
	return func(l *Local) {
		if rf > 0 {
			l.rf[keyspace] = rf
		}
	}
}

// WithDefaultReplicationFactor sets the replication factor of keyspaces
// without an explicit one.
func WithDefaultReplicationFactor(rf int) LocalOption {
	return func(l *Local) {
		if rf > 0 {
			l.defaultRF = rf
		}
	}
}

// WithProbe sets the function checking whether a down host is back.
//
// Without a probe a down host is brought back up after the first
// reconnection delay, leaving the actual check to the next connection attempt.
func WithProbe(probe ProbeFunc) LocalOption {
	return func(l *Local) {
		l.probe = probe
	}
}

// WithLocalReconnectionPolicy sets the reconnection policy. A session
// replaces it with its own policy when created.
func WithLocalReconnectionPolicy(p types.ReconnectionPolicy) LocalOption {
	return func(l *Local) {
		l.reconnection = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger types.Logger) LocalOption {
	return func(l *Local) {
		l.logger = logger
	}
}

// WithMetrics sets the metrics collector for host transitions.
func WithMetrics(collector types.MetricsCollector) LocalOption {
	return func(l *Local) {
		l.metrics = collector
	}
}

// NewLocal creates an in-memory topology.
//
// Parameters:
//   - opts: Configuration options, typically WithHosts
//
// Returns:
//   - *Local: A new topology; call Close to stop reconnection probes
func NewLocal(opts ...LocalOption) *Local {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Local{
		vnodes:         DefaultVirtualNodes,
		defaultRF:      DefaultReplicationFactor,
		rf:             make(map[string]int),
		byAddr:         make(map[string]*types.Host),
		schemaVersions: make(map[string]uuid.UUID),
		drained:        make(map[string]string),
		reconnecting:   make(map[string]context.CancelFunc),
		listeners:      make(map[int]func(types.HostEvent)),
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.OrNop(l.logger)
	l.metrics = metrics.OrNop(l.metrics)
	l.rebuildRing()

	return l
}

// rebuildRing recomputes the token ring. Callers hold mu or own l exclusively.
func (l *Local) rebuildRing() {
	ring := make([]ringEntry, 0, len(l.hosts)*l.vnodes)
	for _, h := range l.hosts {
		for i := 0; i < l.vnodes; i++ {
			ring = append(ring, ringEntry{
				token: xxhash.Sum64String(h.Address() + "#" + strconv.Itoa(i)),
				host:  h,
			})
		}
	}
	sort.Slice(ring, func(i, j int) bool {
		return ring[i].token < ring[j].token
	})
	l.ring = ring
}

// AllHosts returns a snapshot of every registered host.
func (l *Local) AllHosts() []*types.Host {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return slices.Clone(l.hosts)
}

// Host returns the host registered at addr.
func (l *Local) Host(addr string) (*types.Host, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	h, ok := l.byAddr[addr]

	return h, ok
}

// ReplicationFactor returns the replication factor of keyspace.
func (l *Local) ReplicationFactor(keyspace string) int {
	if rf, ok := l.rf[keyspace]; ok {
		return rf
	}

	return l.defaultRF
}

// GetReplicas returns the hosts owning routingKey in keyspace, primary
// replica first. It returns nil for an empty routing key.
//
// Parameters:
//   - keyspace: Keyspace of the statement
//   - routingKey: Serialized partition key
//
// Returns:
//   - []*types.Host: Up to the replication factor of distinct hosts
func (l *Local) GetReplicas(keyspace string, routingKey []byte) []*types.Host {
	if len(routingKey) == 0 {
		return nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.ring) == 0 {
		return nil
	}

	rf := min(l.ReplicationFactor(keyspace), len(l.hosts))
	token := xxhash.Sum64(routingKey)
	start := sort.Search(len(l.ring), func(i int) bool {
		return l.ring[i].token >= token
	})

	replicas := make([]*types.Host, 0, rf)
	for i := 0; i < len(l.ring) && len(replicas) < rf; i++ {
		h := l.ring[(start+i)%len(l.ring)].host
		if !slices.Contains(replicas, h) {
			replicas = append(replicas, h)
		}
	}

	return replicas
}

// Subscribe registers a listener for host events.
//
// Listeners are called synchronously, outside of any lock, in the order of
// the changes.
func (l *Local) Subscribe(listener func(types.HostEvent)) func() {
	l.mu.Lock()
	id := l.nextListener
	l.nextListener++
	l.listeners[id] = listener
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}

func (l *Local) emit(ev types.HostEvent) {
	l.mu.RLock()
	ids := make([]int, 0, len(l.listeners))
	for id := range l.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]func(types.HostEvent), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, l.listeners[id])
	}
	l.mu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// AddHost registers a host and rebuilds the ring.
//
// Returns:
//   - error: ErrDuplicateHost if the address is already registered
func (l *Local) AddHost(host *types.Host) error {
	l.mu.Lock()
	if _, ok := l.byAddr[host.Address()]; ok {
		l.mu.Unlock()
		return ErrDuplicateHost
	}
	l.hosts = append(l.hosts, host)
	l.byAddr[host.Address()] = host
	l.rebuildRing()
	l.mu.Unlock()

	l.logger.Info("host added", "host", host.Address(), "datacenter", host.Datacenter())
	l.emit(types.HostEvent{Kind: types.HostAdded, Host: host})

	return nil
}

// RemoveHost unregisters the host at addr and reports whether it existed.
func (l *Local) RemoveHost(addr string) bool {
	l.mu.Lock()
	host, ok := l.byAddr[addr]
	if !ok {
		l.mu.Unlock()
		return false
	}
	delete(l.byAddr, addr)
	delete(l.schemaVersions, addr)
	delete(l.drained, addr)
	l.hosts = slices.DeleteFunc(l.hosts, func(h *types.Host) bool {
		return h == host
	})
	l.rebuildRing()
	if stop, ok := l.reconnecting[addr]; ok {
		stop()
		delete(l.reconnecting, addr)
	}
	l.mu.Unlock()

	l.logger.Info("host removed", "host", addr)
	l.emit(types.HostEvent{Kind: types.HostRemoved, Host: host})

	return true
}

// SetReconnectionPolicy sets the policy scheduling probes of down hosts.
func (l *Local) SetReconnectionPolicy(p types.ReconnectionPolicy) {
	l.mu.Lock()
	l.reconnection = p
	l.mu.Unlock()
}

// ReportUnreachable marks host down and starts probing it. Reports for
// drained or unknown hosts are ignored.
func (l *Local) ReportUnreachable(host *types.Host, cause error) {
	l.mu.RLock()
	_, known := l.byAddr[host.Address()]
	_, drained := l.drained[host.Address()]
	l.mu.RUnlock()
	if !known || drained {
		return
	}

	if l.MarkDown(host) {
		l.logger.Warn("host unreachable, marked down",
			"host", host.Address(),
			"error", cause,
		)
	}
}

// MarkDown marks host down and schedules reconnection probes.
//
// Returns:
//   - bool: true if the host transitioned from up to down
func (l *Local) MarkDown(host *types.Host) bool {
	if !host.SetDown() {
		return false
	}
	l.metrics.IncHostDown(host.Address())
	l.emit(types.HostEvent{Kind: types.HostDown, Host: host})
	l.startReconnection(host)

	return true
}

// MarkUp marks host up and stops probing it.
//
// Returns:
//   - bool: true if the host transitioned from down to up
func (l *Local) MarkUp(host *types.Host) bool {
	l.mu.Lock()
	if stop, ok := l.reconnecting[host.Address()]; ok {
		stop()
		delete(l.reconnecting, host.Address())
	}
	l.mu.Unlock()

	if !host.SetUp() {
		return false
	}
	l.metrics.IncHostUp(host.Address())
	l.logger.Info("host up", "host", host.Address())
	l.emit(types.HostEvent{Kind: types.HostUp, Host: host})

	return true
}

// Drain takes the host at addr out of rotation without probing it.
//
// Parameters:
//   - addr: Host address
//   - reason: Human-readable reason, logged
//
// Returns:
//   - bool: true if the host exists and was not drained yet
func (l *Local) Drain(addr, reason string) bool {
	l.mu.Lock()
	host, ok := l.byAddr[addr]
	if !ok {
		l.mu.Unlock()
		return false
	}
	if _, already := l.drained[addr]; already {
		l.mu.Unlock()
		return false
	}
	l.drained[addr] = reason
	if stop, ok := l.reconnecting[addr]; ok {
		stop()
		delete(l.reconnecting, addr)
	}
	l.mu.Unlock()

	l.logger.Warn("host drained", "host", addr, "reason", reason)
	if host.SetDown() {
		l.metrics.IncHostDown(addr)
		l.emit(types.HostEvent{Kind: types.HostDown, Host: host})
	}

	return true
}

// Undrain puts a drained host back into rotation.
func (l *Local) Undrain(addr string) bool {
	l.mu.Lock()
	host, ok := l.byAddr[addr]
	if !ok {
		l.mu.Unlock()
		return false
	}
	if _, drained := l.drained[addr]; !drained {
		l.mu.Unlock()
		return false
	}
	delete(l.drained, addr)
	l.mu.Unlock()

	l.logger.Info("host undrained", "host", addr)
	l.MarkUp(host)

	return true
}

// Drained returns the addresses of drained hosts and their reasons.
func (l *Local) Drained() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]string, len(l.drained))
	for addr, reason := range l.drained {
		out[addr] = reason
	}

	return out
}

func (l *Local) startReconnection(host *types.Host) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.reconnection == nil {
		return
	}
	if _, ok := l.reconnecting[host.Address()]; ok {
		return
	}

	ctx, cancel := context.WithCancel(l.ctx)
	l.reconnecting[host.Address()] = cancel
	schedule := l.reconnection.NewSchedule()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.reconnect(ctx, host, schedule)
	}()
}

// reconnect probes host on schedule until a probe succeeds or ctx ends.
func (l *Local) reconnect(ctx context.Context, host *types.Host, schedule types.ReconnectionSchedule) {
	for {
		delay := schedule.NextDelay()
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		l.metrics.IncReconnectionAttempt(host.Address())
		if l.probe == nil {
			l.finishReconnection(host)
			return
		}
		if err := l.probe(ctx, host); err != nil {
			l.logger.Debug("reconnection probe failed",
				"host", host.Address(),
				"next_delay", delay,
				"error", err,
			)

			continue
		}
		l.finishReconnection(host)

		return
	}
}

func (l *Local) finishReconnection(host *types.Host) {
	l.mu.Lock()
	delete(l.reconnecting, host.Address())
	l.mu.Unlock()

	l.MarkUp(host)
}

// SetSchemaVersion records the schema version reported by the host at addr.
func (l *Local) SetSchemaVersion(addr string, version uuid.UUID) {
	l.mu.Lock()
	l.schemaVersions[addr] = version
	l.mu.Unlock()
}

// CheckSchemaAgreement reports whether every up host that reported a schema
// version reported the same one.
func (l *Local) CheckSchemaAgreement(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var agreed uuid.UUID
	seen := false
	for _, h := range l.hosts {
		if !h.IsUp() {
			continue
		}
		v, ok := l.schemaVersions[h.Address()]
		if !ok {
			continue
		}
		if seen && v != agreed {
			return false, nil
		}
		agreed, seen = v, true
	}

	return true, nil
}

// Close stops every reconnection probe and waits for them to return.
func (l *Local) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	clear(l.reconnecting)
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()

	return nil
}
