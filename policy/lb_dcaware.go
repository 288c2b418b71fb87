package policy

import (
	"errors"
	"sort"
	"sync/atomic"

	"github.com/arloliu/strand/internal/logging"
	"github.com/arloliu/strand/types"
)

// ErrNoLocalDC is returned when the local datacenter can neither be read
// from the configuration nor inferred from the known hosts.
var ErrNoLocalDC = errors.New("strand: cannot infer local datacenter: no host known")

// DCAwareRoundRobinPolicy prefers the hosts of the local datacenter.
//
// Query plans contain every local host, rotated round-robin, followed by up
// to UsedHostsPerRemoteDC up hosts of each remote datacenter. With the
// default of 0 remote hosts are never used.
//
// Distance is Local for hosts in the local datacenter, Remote for the up
// hosts of each remote datacenter that fall within the per-DC cap, and
// Ignored for the rest. The remote selection is recomputed on every host
// event, so a remote host going down hands its slot to the next live one.
type DCAwareRoundRobinPolicy struct {
	localDC              string
	usedHostsPerRemoteDC int
	logger               types.Logger

	metadata    types.Metadata
	snapshot    atomic.Pointer[dcSnapshot]
	index       atomic.Uint64
	unsubscribe func()
}

// dcSnapshot is an immutable split of the known hosts.
type dcSnapshot struct {
	local     []*types.Host
	remote    []*types.Host
	remoteSet map[*types.Host]struct{}
}

// Compile-time assertion that DCAwareRoundRobinPolicy implements types.LoadBalancingPolicy.
var _ types.LoadBalancingPolicy = (*DCAwareRoundRobinPolicy)(nil)

// DCAwareOption configures a DCAwareRoundRobinPolicy.
type DCAwareOption func(*DCAwareRoundRobinPolicy)

// WithLocalDC sets the local datacenter explicitly.
//
// Parameters:
//   - dc: Local datacenter name
//
// Returns:
//   - DCAwareOption: Configuration option
func WithLocalDC(dc string) DCAwareOption {
	return func(p *DCAwareRoundRobinPolicy) {
		p.localDC = dc
	}
}

// WithUsedHostsPerRemoteDC sets how many hosts of each remote datacenter are
// appended to query plans.
//
// Parameters:
//   - n: Hosts per remote datacenter (negative values are treated as 0)
//
// Returns:
//   - DCAwareOption: Configuration option
func WithUsedHostsPerRemoteDC(n int) DCAwareOption {
	return func(p *DCAwareRoundRobinPolicy) {
		p.usedHostsPerRemoteDC = max(n, 0)
	}
}

// WithDCAwareLogger sets the logger for the policy.
//
// Parameters:
//   - l: The logger
//
// Returns:
//   - DCAwareOption: Configuration option
func WithDCAwareLogger(l types.Logger) DCAwareOption {
	return func(p *DCAwareRoundRobinPolicy) {
		p.logger = l
	}
}

// NewDCAwareRoundRobinPolicy creates a new DCAwareRoundRobinPolicy.
//
// When no local datacenter is configured it is inferred at Initialize from
// the first host reported by the metadata, which is the contact point the
// session connected to first.
//
// Parameters:
//   - opts: Optional configuration
//
// Returns:
//   - *DCAwareRoundRobinPolicy: A new DC-aware policy
func NewDCAwareRoundRobinPolicy(opts ...DCAwareOption) *DCAwareRoundRobinPolicy {
	p := &DCAwareRoundRobinPolicy{}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.OrNop(p.logger)
	p.snapshot.Store(&dcSnapshot{})

	return p
}

// Initialize resolves the local datacenter and subscribes to host changes.
func (p *DCAwareRoundRobinPolicy) Initialize(metadata types.Metadata) error {
	if metadata == nil {
		return types.ErrNilMetadata
	}
	p.metadata = metadata

	hosts := metadata.AllHosts()
	if p.localDC == "" {
		if len(hosts) == 0 {
			return ErrNoLocalDC
		}
		p.localDC = hosts[0].Datacenter()
		p.logger.Info("inferred local datacenter", "datacenter", p.localDC, "from", hosts[0].Address())
	} else if !containsDC(hosts, p.localDC) {
		p.logger.Warn("configured local datacenter has no known host", "datacenter", p.localDC)
	}

	p.refresh()
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	p.unsubscribe = metadata.Subscribe(func(types.HostEvent) {
		p.refresh()
	})

	return nil
}

// LocalDC returns the local datacenter name.
func (p *DCAwareRoundRobinPolicy) LocalDC() string {
	return p.localDC
}

// Close stops listening to host changes.
func (p *DCAwareRoundRobinPolicy) Close() {
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
}

func containsDC(hosts []*types.Host, dc string) bool {
	for _, h := range hosts {
		if h.Datacenter() == dc {
			return true
		}
	}

	return false
}

func (p *DCAwareRoundRobinPolicy) refresh() {
	snap := &dcSnapshot{remoteSet: make(map[*types.Host]struct{})}
	byDC := make(map[string][]*types.Host)
	for _, h := range p.metadata.AllHosts() {
		if h.Datacenter() == p.localDC {
			snap.local = append(snap.local, h)
			continue
		}
		if h.IsUp() && len(byDC[h.Datacenter()]) < p.usedHostsPerRemoteDC {
			byDC[h.Datacenter()] = append(byDC[h.Datacenter()], h)
		}
	}

	dcs := make([]string, 0, len(byDC))
	for dc := range byDC {
		dcs = append(dcs, dc)
	}
	sort.Strings(dcs)
	for _, dc := range dcs {
		for _, h := range byDC[dc] {
			snap.remote = append(snap.remote, h)
			snap.remoteSet[h] = struct{}{}
		}
	}

	p.snapshot.Store(snap)
}

// Distance classifies a host by datacenter.
func (p *DCAwareRoundRobinPolicy) Distance(host *types.Host) types.Distance {
	if host.Datacenter() == p.localDC {
		return types.Local
	}
	if _, ok := p.snapshot.Load().remoteSet[host]; ok {
		return types.Remote
	}

	return types.Ignored
}

// NewQueryPlan returns the local hosts rotated, then the used remote hosts rotated.
func (p *DCAwareRoundRobinPolicy) NewQueryPlan(string, types.Statement) types.QueryPlan {
	snap := p.snapshot.Load()
	start := p.index.Add(1) - 1

	return concatPlans(rotatedPlan(snap.local, start), rotatedPlan(snap.remote, start))
}
