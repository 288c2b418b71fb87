package topology

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/strand/internal/logging"
	"github.com/arloliu/strand/types"
)

// Drainer applies drain decisions to a host registry. Local implements it.
type Drainer interface {
	// Drain takes the host at addr out of rotation and reports whether its
	// state changed.
	Drain(addr, reason string) bool

	// Undrain puts the host at addr back into rotation and reports whether
	// its state changed.
	Undrain(addr string) bool
}

// DrainUpdate describes a change of the drain state of one host.
type DrainUpdate struct {
	Address string
	Drained bool
	Reason  string
}

// NATS watches a NATS KV key holding a DrainConfig and applies it to a
// Drainer, so operators can take hosts out of rotation before maintenance
// without restarting clients.
//
// Watch should be called once per instance. Subsequent calls return the
// same channel. The channel is closed when Close is called or the watch
// context is cancelled.
type NATS struct {
	kv     jetstream.KeyValue
	target Drainer
	config WatcherConfig
	logger types.Logger

	mu           sync.RWMutex
	drained      map[string]string
	updates      chan DrainUpdate
	done         chan struct{}
	closed       bool
	watchStarted bool
	closeOnce    sync.Once
}

// NewNATS creates a drain watcher.
//
// Parameters:
//   - kv: A NATS JetStream KeyValue store
//   - target: Registry receiving drain decisions, typically a *Local
//   - opts: Optional configuration options
//
// Returns:
//   - *NATS: A new watcher instance
//   - error: Error if kv or target is nil
//
// Example:
//
//	nc, _ := nats.Connect("nats://localhost:4222")
//	js, _ := jetstream.New(nc)
//	kv, _ := js.KeyValue(ctx, "strand-config")
//
//	watcher, _ := topology.NewNATS(kv, meta, topology.WithKey("cassandra.drain"))
//	go func() {
//	    for range watcher.Watch(ctx) {
//	    }
//	}()
func NewNATS(kv jetstream.KeyValue, target Drainer, opts ...WatcherOption) (*NATS, error) {
	if kv == nil {
		return nil, errors.New("strand/topology: KeyValue store is nil")
	}
	if target == nil {
		return nil, errors.New("strand/topology: drain target is nil")
	}

	config := DefaultWatcherConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &NATS{
		kv:      kv,
		target:  target,
		config:  config,
		logger:  logging.NewNopLogger(),
		drained: make(map[string]string),
		updates: make(chan DrainUpdate, 16),
		done:    make(chan struct{}),
	}, nil
}

// SetLogger sets the logger used to report KV errors.
func (n *NATS) SetLogger(logger types.Logger) {
	n.logger = logging.OrNop(logger)
}

// Watch starts applying the KV drain configuration and returns a channel of
// the applied changes.
//
// Only the first call's context controls the watch lifecycle. Updates are
// delivered best effort: when the channel is full they are dropped, the
// drain state itself is always applied to the target.
//
// Parameters:
//   - ctx: Context for cancellation (only used on first call)
//
// Returns:
//   - <-chan DrainUpdate: Channel of applied changes
func (n *NATS) Watch(ctx context.Context) <-chan DrainUpdate {
	n.mu.Lock()
	if n.watchStarted {
		n.mu.Unlock()
		return n.updates
	}
	n.watchStarted = true
	n.mu.Unlock()

	go n.watchLoop(ctx)

	return n.updates
}

// Close stops the watcher. It is safe to call multiple times.
func (n *NATS) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	close(n.done)

	return nil
}

// Config returns the watcher configuration.
func (n *NATS) Config() WatcherConfig {
	return n.config
}

// IsDrained reports whether the watcher currently drains addr.
func (n *NATS) IsDrained(addr string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	_, ok := n.drained[addr]

	return ok
}

func (n *NATS) watchLoop(ctx context.Context) {
	defer n.closeOnce.Do(func() { close(n.updates) })

	n.fetchAndApply(ctx)

	watcher, err := n.kv.Watch(ctx, n.config.Key)
	if err != nil {
		n.logger.Warn("drain watch failed, polling instead", "key", n.config.Key, "error", err)
		n.pollLoop(ctx)

		return
	}
	defer func() { _ = watcher.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.done:
			return
		case entry, ok := <-watcher.Updates():
			if !ok {
				n.pollLoop(ctx)
				return
			}
			// nil marks the end of the initial values
			if entry == nil {
				continue
			}
			n.processEntry(entry)
		}
	}
}

func (n *NATS) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(n.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.done:
			return
		case <-ticker.C:
			n.fetchAndApply(ctx)
		}
	}
}

func (n *NATS) fetchAndApply(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, n.config.FetchTimeout)
	defer cancel()

	entry, err := n.kv.Get(fetchCtx, n.config.Key)
	if err != nil {
		if !errors.Is(err, jetstream.ErrKeyNotFound) {
			n.logger.Warn("drain config fetch failed", "key", n.config.Key, "error", err)
			return
		}
		n.apply(DrainConfig{})

		return
	}

	n.processEntry(entry)
}

func (n *NATS) processEntry(entry jetstream.KeyValueEntry) {
	if entry.Operation() == jetstream.KeyValueDelete || entry.Operation() == jetstream.KeyValuePurge {
		n.apply(DrainConfig{})
		return
	}

	var config DrainConfig
	if err := json.Unmarshal(entry.Value(), &config); err != nil {
		n.logger.Warn("invalid drain config ignored", "key", n.config.Key, "error", err)
		return
	}

	n.apply(config)
}

// apply drains hosts newly listed in config and undrains hosts no longer listed.
func (n *NATS) apply(config DrainConfig) {
	n.mu.Lock()
	var added, removed []string
	for _, addr := range config.Hosts {
		if _, ok := n.drained[addr]; !ok && !slices.Contains(added, addr) {
			added = append(added, addr)
		}
	}
	for addr := range n.drained {
		if !config.Contains(addr) {
			removed = append(removed, addr)
		}
	}
	sort.Strings(removed)
	for _, addr := range added {
		n.drained[addr] = config.Reason
	}
	for _, addr := range removed {
		delete(n.drained, addr)
	}
	n.mu.Unlock()

	for _, addr := range added {
		n.target.Drain(addr, config.Reason)
		n.emit(DrainUpdate{Address: addr, Drained: true, Reason: config.Reason})
	}
	for _, addr := range removed {
		n.target.Undrain(addr)
		n.emit(DrainUpdate{Address: addr})
	}
}

func (n *NATS) emit(update DrainUpdate) {
	select {
	case n.updates <- update:
	default:
	}
}
