// Package identity resolves unstable capture device identifiers to
// participant display names.
package identity

import "time"

// Option applies a configuration option to the in-memory resolver.
type Option func(*inMemoryResolver)

// WithTTL sets how long a meeting's mapping survives after its last
// write. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(r *inMemoryResolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithClock overrides the time source, used by TTL tests.
func WithClock(now func() time.Time) Option {
	return func(r *inMemoryResolver) {
		if now != nil {
			r.now = now
		}
	}
}
