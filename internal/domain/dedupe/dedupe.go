// Package dedupe suppresses identical caption retransmissions.
//
// The capture client delivers at least once, so an accepted event can
// arrive again unchanged. The cache remembers, per meeting, the last
// accepted text and version under a (message id, device id) key; an
// incoming event is a duplicate only when both are unchanged. A changed
// text or version for the same key is a legitimate update, not a
// duplicate, and the caller re-records it after persisting. This is
// intentionally narrower than at-most-once delivery.
package dedupe

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// defaultTTL bounds the cache's memory: entries expire independently,
// measured from the moment they were recorded.
const defaultTTL = time.Hour

// Cache records accepted caption events and answers duplicate checks.
type Cache interface {
	// IsDuplicate reports whether an identical event was already
	// accepted within the TTL. Expired entries are evicted on access and
	// never reported as live.
	IsDuplicate(ctx context.Context, meetingID string, messageID *uint32, deviceID, text string, version uint32) bool

	// Record stores the event after it was successfully persisted.
	Record(ctx context.Context, meetingID string, messageID *uint32, deviceID, text string, version uint32)

	// Clear drops all cached state for a meeting.
	Clear(ctx context.Context, meetingID string)

	// Sweep evicts every expired entry and returns how many it removed.
	Sweep(ctx context.Context) int

	// Size returns the current number of live entries.
	Size() int64
}

// entry is one accepted event's fingerprint.
type entry struct {
	text        string
	version     uint32
	processedAt time.Time
}

// inMemoryCache implements Cache with per-meeting maps behind a single
// mutex. Operations are in-memory and complete in microseconds, so one
// lock does not serialize anything that matters.
type inMemoryCache struct {
	mu       sync.Mutex
	meetings map[string]map[string]entry
	ttl      time.Duration
	now      func() time.Time
}

// NewInMemoryCache creates a cache with configuration options.
func NewInMemoryCache(opts ...Option) Cache {
	c := &inMemoryCache{
		meetings: make(map[string]map[string]entry),
		ttl:      defaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// cacheKey builds the composite key. A nil message id collapses to the
// literal "none" so keyless events from the same device still collide
// with each other rather than with id-bearing ones.
func cacheKey(meetingID string, messageID *uint32, deviceID string) string {
	id := "none"
	if messageID != nil {
		id = strconv.FormatUint(uint64(*messageID), 10)
	}
	return meetingID + ":messages:" + id + "/" + deviceID
}

func (c *inMemoryCache) IsDuplicate(_ context.Context, meetingID string, messageID *uint32, deviceID, text string, version uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs, ok := c.meetings[meetingID]
	if !ok {
		return false
	}
	key := cacheKey(meetingID, messageID, deviceID)
	e, ok := msgs[key]
	if !ok {
		return false
	}

	if c.now().After(e.processedAt.Add(c.ttl)) {
		delete(msgs, key)
		if len(msgs) == 0 {
			delete(c.meetings, meetingID)
		}
		return false
	}

	return e.text == text && e.version == version
}

func (c *inMemoryCache) Record(_ context.Context, meetingID string, messageID *uint32, deviceID, text string, version uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs, ok := c.meetings[meetingID]
	if !ok {
		msgs = make(map[string]entry)
		c.meetings[meetingID] = msgs
	}
	msgs[cacheKey(meetingID, messageID, deviceID)] = entry{
		text:        text,
		version:     version,
		processedAt: c.now(),
	}
}

func (c *inMemoryCache) Clear(_ context.Context, meetingID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.meetings, meetingID)
}

func (c *inMemoryCache) Sweep(_ context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for meetingID, msgs := range c.meetings {
		for key, e := range msgs {
			if now.After(e.processedAt.Add(c.ttl)) {
				delete(msgs, key)
				removed++
			}
		}
		if len(msgs) == 0 {
			delete(c.meetings, meetingID)
		}
	}
	return removed
}

func (c *inMemoryCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	for _, msgs := range c.meetings {
		total += int64(len(msgs))
	}
	return total
}
