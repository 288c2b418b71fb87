package strand

import (
	"time"

	"github.com/arloliu/strand/internal/logging"
	"github.com/arloliu/strand/internal/metrics"
	"github.com/arloliu/strand/policy"
	"github.com/arloliu/strand/types"
)

// Default configuration values.
const (
	DefaultConsistency            = types.LocalOne
	DefaultSerialConsistency      = types.Serial
	DefaultReadTimeout            = 12 * time.Second
	DefaultMaxSchemaAgreementWait = 10 * time.Second
	DefaultReconnectionBaseDelay  = time.Second
	DefaultReconnectionMaxDelay   = 10 * time.Minute
)

// SessionConfig holds configuration for a Session.
//
// Policies are constructed explicitly per session; no policy instance is
// shared between sessions unless the caller passes the same one twice.
type SessionConfig struct {
	LoadBalancingPolicy        LoadBalancingPolicy
	RetryPolicy                RetryPolicy
	SpeculativeExecutionPolicy SpeculativeExecutionPolicy
	ReconnectionPolicy         ReconnectionPolicy

	Consistency       Consistency
	SerialConsistency Consistency
	// DefaultIdempotence applies to statements whose idempotence is unknown.
	DefaultIdempotence bool
	// ReadTimeout bounds every attempt; 0 disables the per-attempt timeout.
	ReadTimeout time.Duration
	Keyspace    string

	MaxSchemaAgreementWait time.Duration
	PrepareOnAllHosts      bool

	// Replayer receives the statements opted in with StmtReplayOnFailure
	// that fail with no host available; nil disables replay.
	Replayer Replayer

	Metrics MetricsCollector
	Logger  Logger
}

// DefaultConfig returns a SessionConfig with sensible defaults.
//
// Default policies:
//   - LoadBalancingPolicy: policy.NewDefaultLoadBalancingPolicy() (token-aware over DC-aware round-robin)
//   - RetryPolicy: policy.NewDefaultRetryPolicy()
//   - SpeculativeExecutionPolicy: policy.NewNoSpeculativeExecutionPolicy()
//   - ReconnectionPolicy: exponential from 1s to 10m
//
// Returns:
//   - *SessionConfig: Configuration with default settings
func DefaultConfig() *SessionConfig {
	reconnection, _ := policy.NewExponentialReconnectionPolicy(DefaultReconnectionBaseDelay, DefaultReconnectionMaxDelay)

	return &SessionConfig{
		LoadBalancingPolicy:        policy.NewDefaultLoadBalancingPolicy(),
		RetryPolicy:                policy.NewDefaultRetryPolicy(),
		SpeculativeExecutionPolicy: policy.NewNoSpeculativeExecutionPolicy(),
		ReconnectionPolicy:         reconnection,
		Consistency:                DefaultConsistency,
		SerialConsistency:          DefaultSerialConsistency,
		ReadTimeout:                DefaultReadTimeout,
		MaxSchemaAgreementWait:     DefaultMaxSchemaAgreementWait,
		PrepareOnAllHosts:          true,
		Metrics:                    metrics.NewNopMetrics(),
		Logger:                     logging.NewNopLogger(),
	}
}

// Option configures a SessionConfig.
type Option func(*SessionConfig)

// WithLoadBalancingPolicy sets the host selection policy.
//
// Parameters:
//   - p: The load balancing policy (e.g., policy.NewDCAwareRoundRobinPolicy())
//
// Returns:
//   - Option: Configuration option
func WithLoadBalancingPolicy(p LoadBalancingPolicy) Option {
	return func(c *SessionConfig) {
		c.LoadBalancingPolicy = p
	}
}

// WithRetryPolicy sets the session retry policy.
//
// Statements may override it with their own policy.
//
// Parameters:
//   - p: The retry policy (e.g., policy.NewIdempotenceAwareRetryPolicy(nil))
//
// Returns:
//   - Option: Configuration option
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *SessionConfig) {
		c.RetryPolicy = p
	}
}

// WithSpeculativeExecutionPolicy sets the speculative execution policy.
//
// Speculative executions are only started for idempotent statements.
//
// Parameters:
//   - p: The speculative execution policy
//
// Returns:
//   - Option: Configuration option
func WithSpeculativeExecutionPolicy(p SpeculativeExecutionPolicy) Option {
	return func(c *SessionConfig) {
		c.SpeculativeExecutionPolicy = p
	}
}

// WithReconnectionPolicy sets the policy scheduling reconnections to down hosts.
//
// The policy is handed to the topology collaborator when it accepts one.
//
// Parameters:
//   - p: The reconnection policy
//
// Returns:
//   - Option: Configuration option
func WithReconnectionPolicy(p ReconnectionPolicy) Option {
	return func(c *SessionConfig) {
		c.ReconnectionPolicy = p
	}
}

// WithConsistency sets the default consistency level.
//
// Parameters:
//   - cl: Consistency for statements that do not set one
//
// Returns:
//   - Option: Configuration option
func WithConsistency(cl Consistency) Option {
	return func(c *SessionConfig) {
		c.Consistency = cl
	}
}

// WithSerialConsistency sets the default serial consistency level.
//
// Parameters:
//   - cl: Serial or LocalSerial
//
// Returns:
//   - Option: Configuration option
func WithSerialConsistency(cl Consistency) Option {
	return func(c *SessionConfig) {
		c.SerialConsistency = cl
	}
}

// WithDefaultIdempotence sets the idempotence assumed for statements that
// do not declare it.
//
// It gates speculative executions and retries of client-side timeouts.
//
// Parameters:
//   - idempotent: Whether unknown statements are idempotent
//
// Returns:
//   - Option: Configuration option
func WithDefaultIdempotence(idempotent bool) Option {
	return func(c *SessionConfig) {
		c.DefaultIdempotence = idempotent
	}
}

// WithReadTimeout sets the per-attempt timeout.
//
// Parameters:
//   - d: Timeout for one attempt (0 disables it)
//
// Returns:
//   - Option: Configuration option
func WithReadTimeout(d time.Duration) Option {
	return func(c *SessionConfig) {
		c.ReadTimeout = d
	}
}

// WithKeyspace sets the initial session keyspace.
//
// Parameters:
//   - keyspace: Keyspace name
//
// Returns:
//   - Option: Configuration option
func WithKeyspace(keyspace string) Option {
	return func(c *SessionConfig) {
		c.Keyspace = keyspace
	}
}

// WithMaxSchemaAgreementWait bounds the wait for schema agreement after a
// schema-altering statement.
//
// Parameters:
//   - d: Maximum wait (0 disables the wait)
//
// Returns:
//   - Option: Configuration option
func WithMaxSchemaAgreementWait(d time.Duration) Option {
	return func(c *SessionConfig) {
		c.MaxSchemaAgreementWait = d
	}
}

// WithPrepareOnAllHosts controls whether a statement prepared on one host
// is prepared on every other up host as well.
//
// Parameters:
//   - enabled: Whether to prepare on all hosts
//
// Returns:
//   - Option: Configuration option
func WithPrepareOnAllHosts(enabled bool) Option {
	return func(c *SessionConfig) {
		c.PrepareOnAllHosts = enabled
	}
}

// WithMetrics sets the metrics collector.
//
// Parameters:
//   - collector: The metrics collector (e.g., vm.New())
//
// Returns:
//   - Option: Configuration option
func WithMetrics(collector MetricsCollector) Option {
	return func(c *SessionConfig) {
		c.Metrics = collector
	}
}

// WithLogger sets the structured logger.
//
// Parameters:
//   - logger: The logger
//
// Returns:
//   - Option: Configuration option
func WithLogger(logger Logger) Option {
	return func(c *SessionConfig) {
		c.Logger = logger
	}
}

// WithReplayer sets the replayer that receives failed writes opted in with
// StmtReplayOnFailure.
//
// Parameters:
//   - r: The replayer (e.g., replay.NewMemoryReplayer())
//
// Returns:
//   - Option: Configuration option
func WithReplayer(r Replayer) Option {
	return func(c *SessionConfig) {
		c.Replayer = r
	}
}
