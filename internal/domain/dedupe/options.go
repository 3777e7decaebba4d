// Package dedupe suppresses identical caption retransmissions.
package dedupe

import "time"

// Option applies a configuration option to the in-memory cache.
type Option func(*inMemoryCache)

// WithTTL sets how long a recorded entry stays live. Non-positive values
// are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *inMemoryCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source, used by TTL tests.
func WithClock(now func() time.Time) Option {
	return func(c *inMemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}
