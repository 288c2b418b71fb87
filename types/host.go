package types

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Distance classifies a host from the point of view of a load balancing policy.
//
// It controls connection pooling eagerness and eligibility for query plans.
type Distance int

const (
	// Local hosts are preferred and fully pooled.
	Local Distance = iota
	// Remote hosts are used as fallback.
	Remote
	// Ignored hosts are never contacted.
	Ignored
)

// String returns a readable form of the distance.
func (d Distance) String() string {
	switch d {
	case Local:
		return "local"
	case Remote:
		return "remote"
	default:
		return "ignored"
	}
}

// Host is a node of the cluster.
//
// Hosts are created and removed by the topology collaborator and are
// read-only to the execution engine, except for the up/down flag which is
// safe for concurrent use.
type Host struct {
	address    string
	datacenter string
	rack       string
	id         uuid.UUID
	down       atomic.Bool
}

// NewHost creates a host that starts in the up state.
//
// Parameters:
//   - address: Host address in "host:port" form
//   - datacenter: Datacenter the host belongs to
//   - rack: Rack the host belongs to (may be empty)
//
// Returns:
//   - *Host: A new host with a random host ID
func NewHost(address, datacenter, rack string) *Host {
	return &Host{
		address:    address,
		datacenter: datacenter,
		rack:       rack,
		id:         uuid.New(),
	}
}

// NewHostWithID creates a host with a known host ID.
func NewHostWithID(id uuid.UUID, address, datacenter, rack string) *Host {
	h := NewHost(address, datacenter, rack)
	h.id = id

	return h
}

// Address returns the host address.
func (h *Host) Address() string {
	return h.address
}

// Datacenter returns the datacenter label.
func (h *Host) Datacenter() string {
	return h.datacenter
}

// Rack returns the rack label.
func (h *Host) Rack() string {
	return h.rack
}

// ID returns the host ID.
func (h *Host) ID() uuid.UUID {
	return h.id
}

// IsUp reports whether the host is considered up.
func (h *Host) IsUp() bool {
	return !h.down.Load()
}

// SetDown marks the host down.
//
// Returns:
//   - bool: true if the host transitioned from up to down
func (h *Host) SetDown() bool {
	return h.down.CompareAndSwap(false, true)
}

// SetUp marks the host up.
//
// Returns:
//   - bool: true if the host transitioned from down to up
func (h *Host) SetUp() bool {
	return h.down.CompareAndSwap(true, false)
}

// String implements fmt.Stringer.
func (h *Host) String() string {
	return h.address
}

// HostEventKind is the type of a topology change.
type HostEventKind int

const (
	// HostAdded is emitted when a host joins the registry.
	HostAdded HostEventKind = iota
	// HostRemoved is emitted when a host leaves the registry.
	HostRemoved
	// HostUp is emitted when a host transitions to up.
	HostUp
	// HostDown is emitted when a host transitions to down.
	HostDown
)

// String returns a readable form of the event kind.
func (k HostEventKind) String() string {
	switch k {
	case HostAdded:
		return "added"
	case HostRemoved:
		return "removed"
	case HostUp:
		return "up"
	case HostDown:
		return "down"
	default:
		return "unknown"
	}
}

// HostEvent is a topology change notification.
type HostEvent struct {
	Kind HostEventKind
	Host *Host
}
