package repository

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/meetscribe/captionflow/internal/domain/model"
	"github.com/meetscribe/captionflow/pkg/metrics"
)

// Sharded, in-memory Store implementation.
//
// Meetings are spread over a fixed number of shards by FNV-1a hash of
// the meeting id, so concurrent ingest for different meetings never
// contends on one lock. Within a meeting, a segment keyed by
// (message id, device id) is updated in place when a newer version of
// the same caption arrives, which keeps the transcript in original
// utterance order even as the capture client rewrites lines.

const (
	defaultShardCount            = 16
	defaultMetricsUpdateInterval = 10 * time.Second
)

// meetingLog is one meeting's transcript plus the in-place update index.
type meetingLog struct {
	segments []model.Segment
	index    map[string]int
}

// shard holds a subset of meetings behind its own lock.
type shard struct {
	mu       sync.RWMutex
	meetings map[string]*meetingLog
}

// ShardedStore implements Store over hash-selected shards.
type ShardedStore struct {
	shards                []*shard
	shardCount            int
	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewShardedStore constructs a sharded store with configuration options.
func NewShardedStore(ctx context.Context, opts ...Option) *ShardedStore {
	s := &ShardedStore{
		shardCount:            defaultShardCount,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{meetings: make(map[string]*meetingLog)}
	}

	s.stopChan = make(chan struct{})
	s.startMetricsUpdater(ctx)

	return s
}

// startMetricsUpdater publishes the stored segment count at the
// configured interval.
func (s *ShardedStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateSegmentsTotal(s.Count(ctx))
			}
		}
	}()
}

// Close gracefully shuts down the metrics updater goroutine.
func (s *ShardedStore) Close() error {
	select {
	case <-s.stopChan:
		// Channel already closed
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}

// shardFor selects the shard owning a meeting.
func (s *ShardedStore) shardFor(meetingID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(meetingID))
	return s.shards[int(h.Sum32())%s.shardCount]
}

// updateKey builds the in-place update key. Segments without a message
// id never replace anything.
func updateKey(seg model.Segment) (string, bool) {
	if seg.MessageID == nil {
		return "", false
	}
	return seg.DeviceID + "/" + strconv.FormatUint(uint64(*seg.MessageID), 10), true
}

// Append implements Store.Append.
func (s *ShardedStore) Append(_ context.Context, seg model.Segment) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryAppendLatency(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	sh := s.shardFor(seg.MeetingID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	log, ok := sh.meetings[seg.MeetingID]
	if !ok {
		log = &meetingLog{index: make(map[string]int)}
		sh.meetings[seg.MeetingID] = log
	}

	if key, keyed := updateKey(seg); keyed {
		if pos, exists := log.index[key]; exists {
			log.segments[pos] = seg
			return nil
		}
		log.index[key] = len(log.segments)
	}
	log.segments = append(log.segments, seg)
	return nil
}

// Segments implements Store.Segments.
func (s *ShardedStore) Segments(_ context.Context, meetingID string, limit int) ([]model.Segment, error) {
	if limit < 0 {
		return nil, ErrInvalidLimit
	}

	sh := s.shardFor(meetingID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	log, ok := sh.meetings[meetingID]
	if !ok {
		return nil, ErrNotFound
	}

	segs := log.segments
	if limit > 0 && len(segs) > limit {
		segs = segs[len(segs)-limit:]
	}
	out := make([]model.Segment, len(segs))
	copy(out, segs)
	return out, nil
}

// Speakers implements Store.Speakers.
func (s *ShardedStore) Speakers(_ context.Context, meetingID string) ([]string, error) {
	sh := s.shardFor(meetingID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	log, ok := sh.meetings[meetingID]
	if !ok {
		return nil, ErrNotFound
	}

	seen := make(map[string]struct{}, len(log.segments))
	speakers := make([]string, 0, 8)
	for _, seg := range log.segments {
		if _, dup := seen[seg.Speaker]; dup {
			continue
		}
		seen[seg.Speaker] = struct{}{}
		speakers = append(speakers, seg.Speaker)
	}
	return speakers, nil
}

// Count implements Store.Count.
func (s *ShardedStore) Count(_ context.Context) int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, log := range sh.meetings {
			total += len(log.segments)
		}
		sh.mu.RUnlock()
	}
	return total
}

// Clear implements Store.Clear.
func (s *ShardedStore) Clear(_ context.Context, meetingID string) {
	sh := s.shardFor(meetingID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.meetings, meetingID)
}
