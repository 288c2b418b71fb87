package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/strand"
	"github.com/arloliu/strand/internal/logging"
	"github.com/arloliu/strand/policy"
	"github.com/arloliu/strand/types"
)

const fullDocument = `
keyspace: app
consistency: local_quorum
serial_consistency: LOCAL_SERIAL
default_idempotence: true
read_timeout: 2s
max_schema_agreement_wait: 5s
prepare_on_all_hosts: false
load_balancing:
  type: token_aware
  local_dc: dc2
  used_hosts_per_remote_dc: 1
retry:
  type: downgrading
  idempotence_aware: true
  logging: true
speculative:
  type: constant
  delay: 50ms
  max_executions: 2
reconnection:
  type: exponential
  base_delay: 1s
  max_delay: 1m
`

func apply(t *testing.T, opts []strand.Option) *strand.SessionConfig {
	t.Helper()

	cfg := strand.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

func TestParse_FullDocument(t *testing.T) {
	pc, err := Parse([]byte(fullDocument))
	require.NoError(t, err)

	assert.Equal(t, "app", pc.Keyspace)
	assert.Equal(t, 2*time.Second, pc.ReadTimeout)
	assert.Equal(t, "token_aware", pc.LoadBalancing.Type)
	assert.Equal(t, 50*time.Millisecond, pc.Speculative.Delay)
	require.NotNil(t, pc.DefaultIdempotence)
	assert.True(t, *pc.DefaultIdempotence)

	opts, err := pc.Options(logging.NewNopLogger())
	require.NoError(t, err)

	cfg := apply(t, opts)
	assert.Equal(t, "app", cfg.Keyspace)
	assert.Equal(t, types.LocalQuorum, cfg.Consistency)
	assert.Equal(t, types.LocalSerial, cfg.SerialConsistency)
	assert.True(t, cfg.DefaultIdempotence)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 5*time.Second, cfg.MaxSchemaAgreementWait)
	assert.False(t, cfg.PrepareOnAllHosts)

	tokenAware, ok := cfg.LoadBalancingPolicy.(*policy.TokenAwarePolicy)
	require.True(t, ok)
	dc, ok := tokenAware.Child().(*policy.DCAwareRoundRobinPolicy)
	require.True(t, ok)
	assert.Equal(t, "dc2", dc.LocalDC())

	_, ok = cfg.RetryPolicy.(*policy.LoggingRetryPolicy)
	assert.True(t, ok)

	spec, ok := cfg.SpeculativeExecutionPolicy.(*policy.ConstantSpeculativeExecutionPolicy)
	require.True(t, ok)
	assert.Equal(t, 2, spec.MaxExecutions())

	_, ok = cfg.ReconnectionPolicy.(*policy.ExponentialReconnectionPolicy)
	assert.True(t, ok)
}

func TestParse_EmptyKeepsDefaults(t *testing.T) {
	pc, err := Parse(nil)
	require.NoError(t, err)

	opts, err := pc.Options(nil)
	require.NoError(t, err)
	assert.Empty(t, opts)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("retries: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strand/config: parse")
}

func TestOptions_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown load balancing", "load_balancing:\n  type: random\n"},
		{"unknown retry", "retry:\n  type: forever\n"},
		{"unknown speculative", "speculative:\n  type: hedged\n"},
		{"unknown reconnection", "reconnection:\n  type: linear\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := Parse([]byte(tt.doc))
			require.NoError(t, err)

			_, err = pc.Options(nil)
			require.ErrorIs(t, err, ErrUnknownPolicy)
		})
	}
}

func TestOptions_InvalidValues(t *testing.T) {
	pc, err := Parse([]byte("consistency: MOST\n"))
	require.NoError(t, err)
	_, err = pc.Options(nil)
	require.Error(t, err)

	pc, err = Parse([]byte("speculative:\n  type: constant\n  delay: 0s\n  max_executions: 1\n"))
	require.NoError(t, err)
	_, err = pc.Options(nil)
	require.ErrorIs(t, err, policy.ErrInvalidSpeculativeConfig)

	pc, err = Parse([]byte("reconnection:\n  type: exponential\n  base_delay: 2s\n  max_delay: 1s\n"))
	require.NoError(t, err)
	_, err = pc.Options(nil)
	require.ErrorIs(t, err, policy.ErrInvalidReconnectionDelay)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strand.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  type: fallthrough\n"), 0o600))

	pc, err := Load(path)
	require.NoError(t, err)

	opts, err := pc.Options(nil)
	require.NoError(t, err)
	cfg := apply(t, opts)
	_, ok := cfg.RetryPolicy.(*policy.FallthroughRetryPolicy)
	assert.True(t, ok)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestOptions_CircuitBreaker(t *testing.T) {
	pc, err := Parse([]byte("load_balancing:\n  type: round_robin\n  circuit_breaker:\n    threshold: 1\n    reset_timeout: 1m\n"))
	require.NoError(t, err)
	require.NotNil(t, pc.LoadBalancing.CircuitBreaker)

	opts, err := pc.Options(nil)
	require.NoError(t, err)
	cfg := apply(t, opts)

	breaker, ok := cfg.LoadBalancingPolicy.(*policy.HostCircuitBreakerPolicy)
	require.True(t, ok)
	_, ok = breaker.Child().(*policy.RoundRobinPolicy)
	assert.True(t, ok)

	host := types.NewHost("10.0.0.1:9042", "dc1", "r1")
	breaker.OnAttemptError(host, types.NewSocketError(nil), time.Millisecond)
	assert.True(t, breaker.IsOpen(host))

	// a breaker without a type wraps the default policy
	pc, err = Parse([]byte("load_balancing:\n  circuit_breaker: {}\n"))
	require.NoError(t, err)
	opts, err = pc.Options(nil)
	require.NoError(t, err)
	breaker, ok = apply(t, opts).LoadBalancingPolicy.(*policy.HostCircuitBreakerPolicy)
	require.True(t, ok)
	_, ok = breaker.Child().(*policy.DefaultLoadBalancingPolicy)
	assert.True(t, ok)

	pc, err = Parse([]byte("load_balancing:\n  circuit_breaker:\n    threshold: -1\n"))
	require.NoError(t, err)
	_, err = pc.Options(nil)
	require.Error(t, err)
}
