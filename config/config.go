// Package config builds session options from a declarative YAML policy
// description.
//
// Example document:
//
//	keyspace: app
//	consistency: LOCAL_QUORUM
//	serial_consistency: LOCAL_SERIAL
//	default_idempotence: false
//	read_timeout: 2s
//	max_schema_agreement_wait: 10s
//	prepare_on_all_hosts: true
//	load_balancing:
//	  type: default         # round_robin | dc_aware | token_aware | default
//	  local_dc: dc1
//	  used_hosts_per_remote_dc: 1
//	  circuit_breaker:      # optional, defers failing hosts
//	    threshold: 3
//	    reset_timeout: 30s
//	    latency_max: 500ms
//	retry:
//	  type: default         # default | downgrading | fallthrough
//	  idempotence_aware: true
//	  logging: true
//	speculative:
//	  type: constant        # none | constant
//	  delay: 50ms
//	  max_executions: 2
//	reconnection:
//	  type: exponential     # constant | exponential
//	  base_delay: 1s
//	  max_delay: 10m
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/strand"
	"github.com/arloliu/strand/policy"
	"github.com/arloliu/strand/types"
)

// ErrUnknownPolicy is returned for an unknown policy type.
var ErrUnknownPolicy = errors.New("strand/config: unknown policy type")

// PolicyConfig is the root of the YAML document.
type PolicyConfig struct {
	Keyspace               string              `yaml:"keyspace"`
	Consistency            string              `yaml:"consistency"`
	SerialConsistency      string              `yaml:"serial_consistency"`
	DefaultIdempotence     *bool               `yaml:"default_idempotence"`
	ReadTimeout            time.Duration       `yaml:"read_timeout"`
	MaxSchemaAgreementWait time.Duration       `yaml:"max_schema_agreement_wait"`
	PrepareOnAllHosts      *bool               `yaml:"prepare_on_all_hosts"`
	LoadBalancing          LoadBalancingConfig `yaml:"load_balancing"`
	Retry                  RetryConfig         `yaml:"retry"`
	Speculative            SpeculativeConfig   `yaml:"speculative"`
	Reconnection           ReconnectionConfig  `yaml:"reconnection"`
}

// LoadBalancingConfig selects the load balancing policy.
type LoadBalancingConfig struct {
	Type                 string                `yaml:"type"`
	LocalDC              string                `yaml:"local_dc"`
	UsedHostsPerRemoteDC int                   `yaml:"used_hosts_per_remote_dc"`
	CircuitBreaker       *CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig wraps the load balancing policy in a
// policy.HostCircuitBreakerPolicy. Zero values keep the policy defaults.
type CircuitBreakerConfig struct {
	Threshold    int           `yaml:"threshold"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	LatencyMax   time.Duration `yaml:"latency_max"`
}

// RetryConfig selects the retry policy and its decorators.
type RetryConfig struct {
	Type             string `yaml:"type"`
	IdempotenceAware bool   `yaml:"idempotence_aware"`
	Logging          bool   `yaml:"logging"`
}

// SpeculativeConfig selects the speculative execution policy.
type SpeculativeConfig struct {
	Type          string        `yaml:"type"`
	Delay         time.Duration `yaml:"delay"`
	MaxExecutions int           `yaml:"max_executions"`
}

// ReconnectionConfig selects the reconnection policy.
type ReconnectionConfig struct {
	Type      string        `yaml:"type"`
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
}

// Load reads a policy configuration from a YAML file.
//
// Parameters:
//   - path: Path of the YAML file
//
// Returns:
//   - *PolicyConfig: The parsed configuration
//   - error: Read or parse error
func Load(path string) (*PolicyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("strand/config: read %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes a policy configuration. Unknown fields are rejected.
func Parse(data []byte) (*PolicyConfig, error) {
	var cfg PolicyConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("strand/config: parse: %w", err)
	}

	return &cfg, nil
}

// Options converts the configuration into session options.
//
// Empty sections keep the session defaults.
//
// Parameters:
//   - logger: Logger for the logging retry policy and the DC-aware policy; may be nil
//
// Returns:
//   - []strand.Option: Options for strand.NewSession
//   - error: Error for unknown policy types or invalid values
func (c *PolicyConfig) Options(logger types.Logger) ([]strand.Option, error) {
	var opts []strand.Option

	if c.Keyspace != "" {
		opts = append(opts, strand.WithKeyspace(c.Keyspace))
	}
	if c.Consistency != "" {
		cl, err := types.ParseConsistency(c.Consistency)
		if err != nil {
			return nil, fmt.Errorf("strand/config: consistency: %w", err)
		}
		opts = append(opts, strand.WithConsistency(cl))
	}
	if c.SerialConsistency != "" {
		cl, err := types.ParseConsistency(c.SerialConsistency)
		if err != nil {
			return nil, fmt.Errorf("strand/config: serial_consistency: %w", err)
		}
		opts = append(opts, strand.WithSerialConsistency(cl))
	}
	if c.DefaultIdempotence != nil {
		opts = append(opts, strand.WithDefaultIdempotence(*c.DefaultIdempotence))
	}
	if c.ReadTimeout > 0 {
		opts = append(opts, strand.WithReadTimeout(c.ReadTimeout))
	}
	if c.MaxSchemaAgreementWait > 0 {
		opts = append(opts, strand.WithMaxSchemaAgreementWait(c.MaxSchemaAgreementWait))
	}
	if c.PrepareOnAllHosts != nil {
		opts = append(opts, strand.WithPrepareOnAllHosts(*c.PrepareOnAllHosts))
	}

	lb, err := c.LoadBalancing.build(logger)
	if err != nil {
		return nil, err
	}
	if lb != nil {
		opts = append(opts, strand.WithLoadBalancingPolicy(lb))
	}

	retry, err := c.Retry.build(logger)
	if err != nil {
		return nil, err
	}
	if retry != nil {
		opts = append(opts, strand.WithRetryPolicy(retry))
	}

	spec, err := c.Speculative.build()
	if err != nil {
		return nil, err
	}
	if spec != nil {
		opts = append(opts, strand.WithSpeculativeExecutionPolicy(spec))
	}

	reconnection, err := c.Reconnection.build()
	if err != nil {
		return nil, err
	}
	if reconnection != nil {
		opts = append(opts, strand.WithReconnectionPolicy(reconnection))
	}

	if logger != nil {
		opts = append(opts, strand.WithLogger(logger))
	}

	return opts, nil
}

func (c LoadBalancingConfig) dcOptions(logger types.Logger) []policy.DCAwareOption {
	var opts []policy.DCAwareOption
	if c.LocalDC != "" {
		opts = append(opts, policy.WithLocalDC(c.LocalDC))
	}
	if c.UsedHostsPerRemoteDC > 0 {
		opts = append(opts, policy.WithUsedHostsPerRemoteDC(c.UsedHostsPerRemoteDC))
	}
	if logger != nil {
		opts = append(opts, policy.WithDCAwareLogger(logger))
	}

	return opts
}

func (c LoadBalancingConfig) build(logger types.Logger) (types.LoadBalancingPolicy, error) {
	var p types.LoadBalancingPolicy
	switch c.Type {
	case "":
		if c.CircuitBreaker == nil {
			return nil, nil
		}
		p = policy.NewDefaultLoadBalancingPolicy(c.dcOptions(logger)...)
	case "round_robin":
		p = policy.NewRoundRobinPolicy()
	case "dc_aware":
		p = policy.NewDCAwareRoundRobinPolicy(c.dcOptions(logger)...)
	case "token_aware":
		p = policy.NewTokenAwarePolicy(policy.NewDCAwareRoundRobinPolicy(c.dcOptions(logger)...))
	case "default":
		p = policy.NewDefaultLoadBalancingPolicy(c.dcOptions(logger)...)
	default:
		return nil, fmt.Errorf("%w: load_balancing %q", ErrUnknownPolicy, c.Type)
	}

	if cb := c.CircuitBreaker; cb != nil {
		if cb.Threshold < 0 || cb.ResetTimeout < 0 || cb.LatencyMax < 0 {
			return nil, errors.New("strand/config: circuit_breaker: negative value")
		}
		opts := []policy.HostCircuitBreakerOption{
			policy.WithBreakerThreshold(cb.Threshold),
			policy.WithBreakerResetTimeout(cb.ResetTimeout),
			policy.WithBreakerLatencyMax(cb.LatencyMax),
		}
		if logger != nil {
			opts = append(opts, policy.WithBreakerLogger(logger))
		}
		p = policy.NewHostCircuitBreakerPolicy(p, opts...)
	}

	return p, nil
}

func (c RetryConfig) build(logger types.Logger) (types.RetryPolicy, error) {
	var p types.RetryPolicy
	switch c.Type {
	case "":
		if !c.IdempotenceAware && !c.Logging {
			return nil, nil
		}
		p = policy.NewDefaultRetryPolicy()
	case "default":
		p = policy.NewDefaultRetryPolicy()
	case "downgrading":
		p = policy.NewDowngradingConsistencyRetryPolicy()
	case "fallthrough":
		p = policy.NewFallthroughRetryPolicy()
	default:
		return nil, fmt.Errorf("%w: retry %q", ErrUnknownPolicy, c.Type)
	}

	if c.IdempotenceAware {
		p = policy.NewIdempotenceAwareRetryPolicy(p)
	}
	if c.Logging {
		p = policy.NewLoggingRetryPolicy(p, policy.WithRetryLogger(logger))
	}

	return p, nil
}

func (c SpeculativeConfig) build() (types.SpeculativeExecutionPolicy, error) {
	switch c.Type {
	case "":
		return nil, nil
	case "none":
		return policy.NewNoSpeculativeExecutionPolicy(), nil
	case "constant":
		p, err := policy.NewConstantSpeculativeExecutionPolicy(c.Delay, c.MaxExecutions)
		if err != nil {
			return nil, fmt.Errorf("strand/config: speculative: %w", err)
		}

		return p, nil
	default:
		return nil, fmt.Errorf("%w: speculative %q", ErrUnknownPolicy, c.Type)
	}
}

func (c ReconnectionConfig) build() (types.ReconnectionPolicy, error) {
	switch c.Type {
	case "":
		return nil, nil
	case "constant":
		p, err := policy.NewConstantReconnectionPolicy(c.BaseDelay)
		if err != nil {
			return nil, fmt.Errorf("strand/config: reconnection: %w", err)
		}

		return p, nil
	case "exponential":
		p, err := policy.NewExponentialReconnectionPolicy(c.BaseDelay, c.MaxDelay)
		if err != nil {
			return nil, fmt.Errorf("strand/config: reconnection: %w", err)
		}

		return p, nil
	default:
		return nil, fmt.Errorf("%w: reconnection %q", ErrUnknownPolicy, c.Type)
	}
}
