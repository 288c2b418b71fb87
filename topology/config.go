package topology

import (
	"slices"
	"time"
)

// DrainConfig is the JSON document operators put in the NATS KV bucket to
// take hosts out of rotation.
//
// Example:
//
//	{"hosts": ["10.0.0.3:9042"], "reason": "disk replacement"}
type DrainConfig struct {
	// Hosts lists the addresses currently drained.
	Hosts []string `json:"hosts"`

	// Reason is a human-readable explanation, logged when draining.
	Reason string `json:"reason,omitempty"`
}

// Contains reports whether addr is in the drain list.
func (d *DrainConfig) Contains(addr string) bool {
	return slices.Contains(d.Hosts, addr)
}

// WatcherConfig holds configuration for the NATS drain watcher.
type WatcherConfig struct {
	// Key is the NATS KV key holding the DrainConfig.
	// Default: "strand.topology.drain"
	Key string

	// PollInterval is the fallback polling interval if the watch fails.
	// Default: 5 seconds
	PollInterval time.Duration

	// FetchTimeout bounds each KV read.
	// Default: 10 seconds
	FetchTimeout time.Duration
}

// DefaultWatcherConfig returns a WatcherConfig with default values.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		Key:          "strand.topology.drain",
		PollInterval: 5 * time.Second,
		FetchTimeout: 10 * time.Second,
	}
}

// WatcherOption configures a drain watcher.
type WatcherOption func(*WatcherConfig)

// WithKey sets the NATS KV key to watch.
//
// Parameters:
//   - key: The key name (e.g., "cassandra.prod.drain")
//
// Returns:
//   - WatcherOption: Configuration option
func WithKey(key string) WatcherOption {
	return func(c *WatcherConfig) {
		c.Key = key
	}
}

// WithPollInterval sets the fallback polling interval used when the KV
// watch cannot be established or is closed by the server.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(c *WatcherConfig) {
		if d > 0 {
			c.PollInterval = d
		}
	}
}

// WithFetchTimeout sets the timeout of each KV read.
func WithFetchTimeout(d time.Duration) WatcherOption {
	return func(c *WatcherConfig) {
		if d > 0 {
			c.FetchTimeout = d
		}
	}
}
