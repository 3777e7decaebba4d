// Package identity resolves unstable capture device identifiers to
// participant display names.
//
// The capture client pushes mapping tuples (canonical device id, display
// name, known alias variants) while a meeting runs; decoded captions then
// arrive carrying inconsistently truncated, prefixed or path-qualified
// versions of those ids. Resolution is permissive but deterministic: a
// fixed priority chain of lookups, first match wins, no scoring.
package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/meetscribe/captionflow/internal/domain/model"
)

// defaultTTL is how long a meeting's mapping lives after the last write.
// Expiry clears the whole meeting atomically, never single entries; the
// capture client resynchronizes on demand.
const defaultTTL = 24 * time.Hour

// unknownNameSuffixLen is how much of the device id the fallback display
// name reveals.
const unknownNameSuffixLen = 4

// Entry is one participant mapping as stored.
type Entry struct {
	DeviceID  string
	Name      string
	Variants  []string
	UpdatedAt time.Time
}

// Resolver maps device identifiers to display names per meeting.
type Resolver interface {
	// Save upserts the mapping for one participant and re-indexes its
	// variants. Resets the meeting's TTL clock.
	Save(ctx context.Context, meetingID string, p model.ParticipantSync)

	// Resolve returns the display name for a possibly malformed device
	// id. The second return is false when nothing matched.
	Resolve(ctx context.Context, meetingID, deviceID string) (string, bool)

	// Snapshot returns a copy of the meeting's entries.
	Snapshot(ctx context.Context, meetingID string) []Entry

	// Clear drops all mapping state for a meeting.
	Clear(ctx context.Context, meetingID string)

	// Sweep drops every expired meeting and returns how many it removed.
	Sweep(ctx context.Context) int

	// Meetings returns the number of meetings currently tracked.
	Meetings() int
}

// meetingMapping holds one meeting's table and its variant reverse index.
// The index maps every variant string (including the canonical id) back
// to the canonical id for O(1) lookup.
type meetingMapping struct {
	entries   map[string]Entry
	index     map[string]string
	expiresAt time.Time
}

// inMemoryResolver implements Resolver with a single RWMutex over all
// meetings. Writes replace index entries in place, so no reader can
// observe a partially updated variant index.
type inMemoryResolver struct {
	mu       sync.RWMutex
	meetings map[string]*meetingMapping
	ttl      time.Duration
	now      func() time.Time
}

// NewInMemoryResolver creates a resolver with configuration options.
func NewInMemoryResolver(opts ...Option) Resolver {
	r := &inMemoryResolver{
		meetings: make(map[string]*meetingMapping),
		ttl:      defaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *inMemoryResolver) Save(_ context.Context, meetingID string, p model.ParticipantSync) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.meetings[meetingID]
	if !ok {
		m = &meetingMapping{
			entries: make(map[string]Entry),
			index:   make(map[string]string),
		}
		r.meetings[meetingID] = m
	}

	now := r.now()
	m.entries[p.DeviceID] = Entry{
		DeviceID:  p.DeviceID,
		Name:      p.Name,
		Variants:  append([]string(nil), p.Variants...),
		UpdatedAt: now,
	}

	// The canonical id indexes itself; variants overwrite any prior owner.
	m.index[p.DeviceID] = p.DeviceID
	for _, variant := range p.Variants {
		if variant != "" {
			m.index[variant] = p.DeviceID
		}
	}

	m.expiresAt = now.Add(r.ttl)
}

func (r *inMemoryResolver) Resolve(_ context.Context, meetingID, deviceID string) (string, bool) {
	r.mu.RLock()
	m, ok := r.meetings[meetingID]
	if ok && r.now().After(m.expiresAt) {
		// Expired state must never resolve; drop it under the write lock.
		r.mu.RUnlock()
		r.mu.Lock()
		if cur, still := r.meetings[meetingID]; still && r.now().After(cur.expiresAt) {
			delete(r.meetings, meetingID)
		}
		r.mu.Unlock()
		return "", false
	}
	defer r.mu.RUnlock()
	if !ok {
		return "", false
	}

	// 1. Exact canonical match.
	if e, found := m.entries[deviceID]; found {
		return e.Name, true
	}

	// 2. Leading control characters stripped, direct and via the index.
	if cleaned := stripLeadingControl(deviceID); cleaned != "" && cleaned != deviceID {
		if e, found := m.entries[cleaned]; found {
			return e.Name, true
		}
		if name, found := m.lookupIndex(cleaned); found {
			return name, true
		}
	}

	if strings.Contains(deviceID, "devices/") {
		// 3. Suffix after "devices/".
		parts := strings.Split(deviceID, "devices/")
		if name, found := m.lookupIndex(parts[len(parts)-1]); found {
			return name, true
		}
		// 4. Full <space>/devices/<id> tail after "spaces/".
		if strings.Contains(deviceID, "spaces/") {
			tail := deviceID[strings.LastIndex(deviceID, "spaces/")+len("spaces/"):]
			if name, found := m.lookupIndex(tail); found {
				return name, true
			}
		}
	}

	if strings.Contains(deviceID, "/") {
		// 5. Substring after the last slash.
		if name, found := m.lookupIndex(deviceID[strings.LastIndex(deviceID, "/")+1:]); found {
			return name, true
		}
		// 6. Numeric token of a .../devices/<token> path segment.
		parts := strings.Split(deviceID, "/")
		if len(parts) >= 2 && parts[len(parts)-2] == "devices" {
			if name, found := m.lookupIndex(parts[len(parts)-1]); found {
				return name, true
			}
		}
	}

	// 7. Raw input through the reverse index.
	return m.lookupIndex(deviceID)
}

func (r *inMemoryResolver) Snapshot(_ context.Context, meetingID string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.meetings[meetingID]
	if !ok || r.now().After(m.expiresAt) {
		return nil
	}
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		e.Variants = append([]string(nil), e.Variants...)
		out = append(out, e)
	}
	return out
}

func (r *inMemoryResolver) Clear(_ context.Context, meetingID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.meetings, meetingID)
}

func (r *inMemoryResolver) Sweep(_ context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, m := range r.meetings {
		if now.After(m.expiresAt) {
			delete(r.meetings, id)
			removed++
		}
	}
	return removed
}

func (r *inMemoryResolver) Meetings() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.meetings)
}

// lookupIndex resolves a variant string to its canonical entry's name.
// Callers hold at least the read lock.
func (m *meetingMapping) lookupIndex(variant string) (string, bool) {
	canonical, ok := m.index[variant]
	if !ok {
		return "", false
	}
	e, ok := m.entries[canonical]
	if !ok {
		return "", false
	}
	return e.Name, true
}

// stripLeadingControl removes leading control characters (0x00-0x1F),
// which the capture client occasionally prepends to ids.
func stripLeadingControl(s string) string {
	return strings.TrimLeftFunc(s, func(r rune) bool { return r < 0x20 })
}

// UnknownName builds the fallback display name for an unresolvable
// device id: "Unknown (" plus the id's last four characters.
func UnknownName(deviceID string) string {
	runes := []rune(deviceID)
	if len(runes) > unknownNameSuffixLen {
		runes = runes[len(runes)-unknownNameSuffixLen:]
	}
	return "Unknown (" + string(runes) + ")"
}
