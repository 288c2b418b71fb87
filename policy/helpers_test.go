package policy

import (
	"sync"
	"time"

	"github.com/arloliu/strand/types"
)

// fakeMetadata is an in-memory types.Metadata for policy tests.
type fakeMetadata struct {
	mu        sync.Mutex
	hosts     []*types.Host
	replicas  map[string][]*types.Host
	listeners map[int]func(types.HostEvent)
	nextID    int
}

func newFakeMetadata(hosts ...*types.Host) *fakeMetadata {
	return &fakeMetadata{
		hosts:     hosts,
		replicas:  make(map[string][]*types.Host),
		listeners: make(map[int]func(types.HostEvent)),
	}
}

func (m *fakeMetadata) AllHosts() []*types.Host {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]*types.Host(nil), m.hosts...)
}

func (m *fakeMetadata) GetReplicas(_ string, routingKey []byte) []*types.Host {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.replicas[string(routingKey)]
}

func (m *fakeMetadata) Subscribe(listener func(types.HostEvent)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = listener

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *fakeMetadata) addHost(h *types.Host) {
	m.mu.Lock()
	m.hosts = append(m.hosts, h)
	m.mu.Unlock()

	m.emit(types.HostEvent{Kind: types.HostAdded, Host: h})
}

// setDown marks h down and notifies subscribers like the topology does.
func (m *fakeMetadata) setDown(h *types.Host) {
	if h.SetDown() {
		m.emit(types.HostEvent{Kind: types.HostDown, Host: h})
	}
}

// setUp marks h up and notifies subscribers.
func (m *fakeMetadata) setUp(h *types.Host) {
	if h.SetUp() {
		m.emit(types.HostEvent{Kind: types.HostUp, Host: h})
	}
}

func (m *fakeMetadata) emit(ev types.HostEvent) {
	m.mu.Lock()
	listeners := make([]func(types.HostEvent), 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

// testStatement is a minimal types.Statement.
type testStatement struct {
	keyspace    string
	routingKey  []byte
	idempotence types.Idempotence
	cl          types.Consistency
	hasCL       bool
	preferred   *types.Host
}

func (s *testStatement) Keyspace() string {
	return s.keyspace
}

func (s *testStatement) RoutingKey() []byte {
	return s.routingKey
}

func (s *testStatement) Idempotence() types.Idempotence {
	return s.idempotence
}

func (s *testStatement) Consistency() (types.Consistency, bool) {
	return s.cl, s.hasCL
}

func (s *testStatement) SerialConsistency() (types.Consistency, bool) {
	return 0, false
}

func (s *testStatement) Host() *types.Host {
	return nil
}

func (s *testStatement) RetryPolicy() types.RetryPolicy {
	return nil
}

func (s *testStatement) ReadTimeout() time.Duration {
	return 0
}

// targetedStatement adds a preferred host.
type targetedStatement struct {
	testStatement
}

func (s *targetedStatement) PreferredHost() *types.Host {
	return s.preferred
}

// recordingLogger captures log calls.
type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+": "+msg)
}

func (l *recordingLogger) Debug(msg string, _ ...any) {
	l.record("debug", msg)
}

func (l *recordingLogger) Info(msg string, _ ...any) {
	l.record("info", msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.record("warn", msg)
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.record("error", msg)
}

func (l *recordingLogger) Fatal(msg string, _ ...any) {
	l.record("fatal", msg)
}

func (l *recordingLogger) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.entries...)
}

func drain(plan types.QueryPlan) []*types.Host {
	var out []*types.Host
	for {
		h, ok := plan.Next()
		if !ok {
			return out
		}
		out = append(out, h)
	}
}

func hostsOf(dc string, n int) []*types.Host {
	hosts := make([]*types.Host, n)
	for i := range hosts {
		hosts[i] = types.NewHost(dc+"-"+string(rune('a'+i))+":9042", dc, "r1")
	}

	return hosts
}
