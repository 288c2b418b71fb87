// Package workload generates simulation traffic and records its outcome.
package workload

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/arloliu/strand"
	"github.com/arloliu/strand/types"
)

// maxSamples bounds the latency samples kept between two resets.
const maxSamples = 100_000

// Tracker records request outcomes for scenario assertions.
type Tracker struct {
	mu          sync.Mutex
	successes   int
	failures    map[string]int
	speculative int
	byHost      map[string]int
	latencies   []time.Duration
}

// Snapshot is a point-in-time view of a Tracker.
type Snapshot struct {
	Successes   int
	Failures    map[string]int
	Speculative int
	ByHost      map[string]int
	P50         time.Duration
	P99         time.Duration
}

// Total returns the number of recorded requests.
func (s Snapshot) Total() int {
	total := s.Successes
	for _, n := range s.Failures {
		total += n
	}

	return total
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.Reset()

	return t
}

// Record adds the outcome of one request.
//
// Parameters:
//   - rs: The result, nil on failure
//   - err: The request error
//   - latency: End-to-end latency observed by the caller
func (t *Tracker) Record(rs *strand.RowSet, err error, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.latencies) < maxSamples {
		t.latencies = append(t.latencies, latency)
	}

	if err != nil {
		t.failures[failureLabel(err)]++
		return
	}

	t.successes++
	info := rs.Info()
	t.speculative += info.SpeculativeExecutions
	if info.QueriedHost != nil {
		t.byHost[info.QueriedHost.Address()]++
	}
}

func failureLabel(err error) string {
	var nhe *types.NoHostAvailableError
	if errors.As(err, &nhe) {
		if nhe.Replayed {
			return "replayed"
		}

		return "no_host_available"
	}
	var reqErr *types.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind.String()
	}

	return "other"
}

// Reset clears every recorded outcome.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.successes = 0
	t.speculative = 0
	t.failures = make(map[string]int)
	t.byHost = make(map[string]int)
	t.latencies = t.latencies[:0]
}

// Snapshot returns the current counters and latency percentiles.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		Successes:   t.successes,
		Speculative: t.speculative,
		Failures:    make(map[string]int, len(t.failures)),
		ByHost:      make(map[string]int, len(t.byHost)),
	}
	for k, v := range t.failures {
		snap.Failures[k] = v
	}
	for k, v := range t.byHost {
		snap.ByHost[k] = v
	}

	if len(t.latencies) > 0 {
		sorted := slices.Clone(t.latencies)
		slices.Sort(sorted)
		snap.P50 = sorted[len(sorted)*50/100]
		snap.P99 = sorted[min(len(sorted)*99/100, len(sorted)-1)]
	}

	return snap
}
