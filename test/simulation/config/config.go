package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	strandconfig "github.com/arloliu/strand/config"
)

// Config represents the simulation configuration.
type Config struct {
	Simulation SimulationConfig          `yaml:"simulation"`
	Cluster    ClusterConfig             `yaml:"cluster"`
	Session    strandconfig.PolicyConfig `yaml:"session"`
}

type SimulationConfig struct {
	Profile string `yaml:"profile"`
	Rate    int    `yaml:"rate"` // requests per second
}

type ClusterConfig struct {
	Hosts             int           `yaml:"hosts"`
	Datacenters       int           `yaml:"datacenters"`
	ReplicationFactor int           `yaml:"replication_factor"`
	BaseLatency       time.Duration `yaml:"base_latency"`
	Jitter            time.Duration `yaml:"jitter"`
}

// Default returns the configuration used without a config file.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{Profile: "quick", Rate: 200},
		Cluster: ClusterConfig{
			Hosts:             6,
			Datacenters:       2,
			ReplicationFactor: 3,
			BaseLatency:       2 * time.Millisecond,
			Jitter:            3 * time.Millisecond,
		},
		Session: strandconfig.PolicyConfig{
			Keyspace: "sim",
			LoadBalancing: strandconfig.LoadBalancingConfig{
				Type:    "default",
				LocalDC: "dc1",
				CircuitBreaker: &strandconfig.CircuitBreakerConfig{
					Threshold:    5,
					ResetTimeout: 2 * time.Second,
				},
			},
			Retry: strandconfig.RetryConfig{Type: "default"},
			Speculative: strandconfig.SpeculativeConfig{
				Type:          "constant",
				Delay:         50 * time.Millisecond,
				MaxExecutions: 2,
			},
			Reconnection: strandconfig.ReconnectionConfig{
				Type:      "exponential",
				BaseDelay: 200 * time.Millisecond,
				MaxDelay:  5 * time.Second,
			},
			ReadTimeout: 2 * time.Second,
		},
	}
}

// Load reads configuration from a YAML file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Cluster.Hosts < 3 {
		return nil, fmt.Errorf("cluster.hosts must be at least 3, got %d", cfg.Cluster.Hosts)
	}
	if cfg.Cluster.Datacenters <= 0 {
		cfg.Cluster.Datacenters = 1
	}

	return cfg, nil
}
