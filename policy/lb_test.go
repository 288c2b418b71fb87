package policy

import (
	"testing"

	"github.com/arloliu/strand/types"
	"github.com/stretchr/testify/require"
)

func TestRoundRobinRotates(t *testing.T) {
	hosts := hostsOf("dc1", 3)
	p := NewRoundRobinPolicy()
	require.NoError(t, p.Initialize(newFakeMetadata(hosts...)))

	first := drain(p.NewQueryPlan("", nil))
	second := drain(p.NewQueryPlan("", nil))

	require.ElementsMatch(t, hosts, first)
	require.ElementsMatch(t, hosts, second)
	require.Equal(t, hosts, first)
	require.Equal(t, []*types.Host{hosts[1], hosts[2], hosts[0]}, second)

	for _, h := range hosts {
		require.Equal(t, types.Local, p.Distance(h))
	}
}

func TestRoundRobinRequiresMetadata(t *testing.T) {
	p := NewRoundRobinPolicy()
	require.ErrorIs(t, p.Initialize(nil), types.ErrNilMetadata)
	require.Empty(t, drain(p.NewQueryPlan("", nil)))
}

func TestDCAwareLocalThenRemote(t *testing.T) {
	dcA := hostsOf("A", 3)
	dcB := hostsOf("B", 2)
	meta := newFakeMetadata(append(append([]*types.Host{}, dcA...), dcB...)...)

	p := NewDCAwareRoundRobinPolicy(WithLocalDC("A"), WithUsedHostsPerRemoteDC(1))
	require.NoError(t, p.Initialize(meta))

	starts := make(map[*types.Host]bool)
	for i := 0; i < 3; i++ {
		plan := drain(p.NewQueryPlan("", nil))
		require.Len(t, plan, 4)
		require.ElementsMatch(t, dcA, plan[:3])
		require.Equal(t, "B", plan[3].Datacenter())
		starts[plan[0]] = true
	}
	require.Len(t, starts, 3, "start index must rotate")

	for _, h := range dcA {
		require.Equal(t, types.Local, p.Distance(h))
	}
	require.Equal(t, types.Remote, p.Distance(dcB[0]))
	require.Equal(t, types.Ignored, p.Distance(dcB[1]))
}

func TestDCAwareRemoteSlotMovesToLiveHost(t *testing.T) {
	dcA := hostsOf("A", 3)
	dcB := hostsOf("B", 2)
	meta := newFakeMetadata(append(append([]*types.Host{}, dcA...), dcB...)...)

	p := NewDCAwareRoundRobinPolicy(WithLocalDC("A"), WithUsedHostsPerRemoteDC(1))
	require.NoError(t, p.Initialize(meta))
	require.Equal(t, types.Remote, p.Distance(dcB[0]))
	require.Equal(t, types.Ignored, p.Distance(dcB[1]))

	meta.setDown(dcB[0])

	require.Equal(t, types.Ignored, p.Distance(dcB[0]))
	require.Equal(t, types.Remote, p.Distance(dcB[1]))
	plan := drain(p.NewQueryPlan("", nil))
	require.Len(t, plan, 4)
	require.Equal(t, dcB[1], plan[3])

	meta.setUp(dcB[0])

	require.Equal(t, types.Remote, p.Distance(dcB[0]), "first live host of the DC takes the slot back")
	require.Equal(t, types.Ignored, p.Distance(dcB[1]))
}

func TestDCAwareDefaultsToNoRemoteHosts(t *testing.T) {
	dcA := hostsOf("A", 2)
	dcB := hostsOf("B", 2)
	meta := newFakeMetadata(append(append([]*types.Host{}, dcA...), dcB...)...)

	p := NewDCAwareRoundRobinPolicy()
	require.NoError(t, p.Initialize(meta))
	require.Equal(t, "A", p.LocalDC(), "local DC is inferred from the first host")

	plan := drain(p.NewQueryPlan("", nil))
	require.ElementsMatch(t, dcA, plan)
	require.Equal(t, types.Ignored, p.Distance(dcB[0]))
}

func TestDCAwareInferenceNeedsHosts(t *testing.T) {
	p := NewDCAwareRoundRobinPolicy()
	require.ErrorIs(t, p.Initialize(newFakeMetadata()), ErrNoLocalDC)
}

func TestDCAwareRefreshesOnHostAdded(t *testing.T) {
	meta := newFakeMetadata(hostsOf("A", 1)...)
	logger := &recordingLogger{}
	p := NewDCAwareRoundRobinPolicy(WithLocalDC("A"), WithDCAwareLogger(logger))
	require.NoError(t, p.Initialize(meta))
	defer p.Close()

	added := types.NewHost("10.0.0.9:9042", "A", "r2")
	meta.addHost(added)

	require.Contains(t, drain(p.NewQueryPlan("", nil)), added)
}

func TestDCAwareWarnsOnUnknownLocalDC(t *testing.T) {
	logger := &recordingLogger{}
	p := NewDCAwareRoundRobinPolicy(WithLocalDC("Z"), WithDCAwareLogger(logger))
	require.NoError(t, p.Initialize(newFakeMetadata(hostsOf("A", 1)...)))

	require.Contains(t, logger.Entries(), "warn: configured local datacenter has no known host")
}

func TestTokenAwareReplicasFirst(t *testing.T) {
	hosts := hostsOf("dc1", 5)
	meta := newFakeMetadata(hosts...)
	meta.replicas["pk"] = []*types.Host{hosts[3], hosts[1]}

	p := NewTokenAwarePolicy(NewRoundRobinPolicy())
	require.NoError(t, p.Initialize(meta))

	for i := 0; i < 10; i++ {
		plan := drain(p.NewQueryPlan("ks", &testStatement{routingKey: []byte("pk")}))
		require.Len(t, plan, 5, "no duplicates")
		require.ElementsMatch(t, []*types.Host{hosts[1], hosts[3]}, plan[:2])
		require.ElementsMatch(t, hosts, plan)
	}
}

func TestTokenAwareSkipsNonLocalReplicas(t *testing.T) {
	dcA := hostsOf("A", 2)
	dcB := hostsOf("B", 1)
	meta := newFakeMetadata(append(append([]*types.Host{}, dcA...), dcB...)...)
	meta.replicas["pk"] = []*types.Host{dcB[0], dcA[1]}

	p := NewTokenAwarePolicy(NewDCAwareRoundRobinPolicy(WithLocalDC("A")))
	require.NoError(t, p.Initialize(meta))

	plan := drain(p.NewQueryPlan("ks", &testStatement{routingKey: []byte("pk")}))
	require.Equal(t, dcA[1], plan[0])
	require.ElementsMatch(t, dcA, plan)
}

func TestTokenAwareWithoutRoutingKeyDelegates(t *testing.T) {
	hosts := hostsOf("dc1", 3)
	meta := newFakeMetadata(hosts...)
	p := NewTokenAwarePolicy(NewRoundRobinPolicy())
	require.NoError(t, p.Initialize(meta))

	require.Equal(t, hosts, drain(p.NewQueryPlan("ks", &testStatement{})))

	// unknown key: replicas cannot be computed
	require.Len(t, drain(p.NewQueryPlan("ks", &testStatement{routingKey: []byte("nope")})), 3)
}

func TestDefaultPolicyPreferredHostFirst(t *testing.T) {
	dcA := hostsOf("A", 3)
	remote := types.NewHost("10.9.9.9:9042", "B", "r1")
	meta := newFakeMetadata(append(append([]*types.Host{}, dcA...), remote)...)

	p := NewDefaultLoadBalancingPolicy(WithLocalDC("A"))
	require.NoError(t, p.Initialize(meta))
	require.Equal(t, types.Ignored, p.Distance(remote))

	stmt := &targetedStatement{testStatement{preferred: remote}}
	plan := drain(p.NewQueryPlan("ks", stmt))

	require.Equal(t, remote, plan[0])
	require.Len(t, plan, 4)
	require.ElementsMatch(t, dcA, plan[1:])
	require.Equal(t, types.Ignored, p.Distance(remote), "preference is scoped to the request, not the policy")
}

func TestDefaultPolicyOverlappingTargetedPlans(t *testing.T) {
	dcA := hostsOf("A", 2)
	dcB := hostsOf("B", 2)
	meta := newFakeMetadata(append(append([]*types.Host{}, dcA...), dcB...)...)

	p := NewDefaultLoadBalancingPolicy(WithLocalDC("A"))
	require.NoError(t, p.Initialize(meta))

	first := p.NewQueryPlan("ks", &targetedStatement{testStatement{preferred: dcB[0]}})
	second := p.NewQueryPlan("ks", &targetedStatement{testStatement{preferred: dcB[1]}})

	firstHosts := drain(first)
	require.Equal(t, dcB[0], firstHosts[0])
	require.NotContains(t, firstHosts[1:], dcB[1])

	secondHosts := drain(second)
	require.Equal(t, dcB[1], secondHosts[0])
	require.NotContains(t, secondHosts[1:], dcB[0])
}

func TestDefaultPolicyWithoutPreferredHost(t *testing.T) {
	dcA := hostsOf("A", 2)
	p := NewDefaultLoadBalancingPolicy()
	require.NoError(t, p.Initialize(newFakeMetadata(dcA...)))

	plan := drain(p.NewQueryPlan("ks", &targetedStatement{}))
	require.ElementsMatch(t, dcA, plan)
	require.IsType(t, &TokenAwarePolicy{}, p.Child())
}

func TestSlicePlan(t *testing.T) {
	hosts := hostsOf("dc1", 2)
	plan := SlicePlan(hosts...)

	require.Equal(t, hosts, drain(plan))
	_, ok := plan.Next()
	require.False(t, ok, "exhaustion is terminal")
}
