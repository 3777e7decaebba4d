// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory segment queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of persistence workers.
	WorkerCount int `koanf:"worker_count"`

	// ShardCount configures the number of shards in the transcript store.
	ShardCount int `koanf:"shard_count"`

	// MappingTTL is how long a meeting's participant mapping lives after
	// the last sync.
	MappingTTL time.Duration `koanf:"mapping_ttl"`

	// DedupeTTL is how long dedup cache entries live.
	DedupeTTL time.Duration `koanf:"dedupe_ttl"`

	// DedupeSweepInterval is how often expired dedup and mapping state
	// is evicted in the background.
	DedupeSweepInterval time.Duration `koanf:"dedupe_sweep_interval"`

	// MaxSegmentLimit caps GET /meetings/{id}/segments?limit.
	MaxSegmentLimit int `koanf:"max_segment_limit"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":8080",
		QueueSize:           65536,
		WorkerCount:         runtime.NumCPU() * 2,
		ShardCount:          16,
		MappingTTL:          24 * time.Hour,
		DedupeTTL:           time.Hour,
		DedupeSweepInterval: 5 * time.Minute,
		MaxSegmentLimit:     1000,
	}
}
