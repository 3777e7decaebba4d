// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	segmentqueue "github.com/meetscribe/captionflow/internal/adapters/mq/queue"
	workerpool "github.com/meetscribe/captionflow/internal/adapters/mq/worker"
	repository "github.com/meetscribe/captionflow/internal/adapters/repository"
	"github.com/meetscribe/captionflow/internal/domain/dedupe"
	"github.com/meetscribe/captionflow/internal/domain/identity"
	"github.com/meetscribe/captionflow/internal/domain/model"
	"github.com/meetscribe/captionflow/internal/domain/types"
	"github.com/meetscribe/captionflow/pkg/logger"
	"github.com/meetscribe/captionflow/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultQueueSize       = 65536
	defaultShardCount      = 16
	defaultSweepInterval   = 5 * time.Minute
	defaultMaxSegmentLimit = 1000
)

// Service wires the caption ingestion pipeline together: decode,
// identity resolution, deduplication, queueing and persistence.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    repository.Store
	cache    dedupe.Cache
	resolver identity.Resolver
	queue    segmentqueue.Queue
	pool     *workerpool.Pool

	// Configuration
	workerCount     int
	queueSize       int
	shardCount      int
	mappingTTL      time.Duration
	dedupeTTL       time.Duration
	sweepInterval   time.Duration
	maxSegmentLimit int

	// State
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of persistence workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the segment queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithShardCount sets the transcript store shard count.
func WithShardCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.shardCount = count
		}
	}
}

// WithMappingTTL sets how long a meeting's participant mapping lives.
func WithMappingTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.mappingTTL = ttl
		}
	}
}

// WithDedupeTTL sets how long dedup entries live.
func WithDedupeTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.dedupeTTL = ttl
		}
	}
}

// WithSweepInterval sets how often expired dedup and mapping state is
// swept.
func WithSweepInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// WithMaxSegmentLimit caps how many segments a single query may return.
func WithMaxSegmentLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxSegmentLimit = limit
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     runtime.NumCPU() * 2,
		queueSize:       defaultQueueSize,
		shardCount:      defaultShardCount,
		sweepInterval:   defaultSweepInterval,
		maxSegmentLimit: defaultMaxSegmentLimit,
		stopCh:          make(chan struct{}),
		logger:          nil, // Will be replaced when service starts
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting caption ingestion service...")

	s.store = repository.NewShardedStore(ctx,
		repository.WithShardCount(s.shardCount),
	)

	var dedupeOpts []dedupe.Option
	if s.dedupeTTL > 0 {
		dedupeOpts = append(dedupeOpts, dedupe.WithTTL(s.dedupeTTL))
	}
	s.cache = dedupe.NewInMemoryCache(dedupeOpts...)

	var identityOpts []identity.Option
	if s.mappingTTL > 0 {
		identityOpts = append(identityOpts, identity.WithTTL(s.mappingTTL))
	}
	s.resolver = identity.NewInMemoryResolver(identityOpts...)

	s.queue = segmentqueue.NewInMemoryQueue(
		segmentqueue.WithCapacity(s.queueSize),
		segmentqueue.WithBufferSize(s.queueSize),
	)

	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.store, s.cache)
	s.pool.Start(ctx)

	s.startSweeper(ctx)

	s.started = true
	s.logger.Info(ctx, "caption ingestion service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("shards", s.shardCount),
	)

	return nil
}

// startSweeper evicts expired dedup entries and participant mappings at
// the configured interval and refreshes the related gauges.
func (s *Service) startSweeper(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				dedupeRemoved := s.cache.Sweep(ctx)
				mappingsRemoved := s.resolver.Sweep(ctx)
				metrics.UpdateDedupeEntries(s.cache.Size())
				metrics.UpdateMappingMeetings(s.resolver.Meetings())
				if dedupeRemoved > 0 || mappingsRemoved > 0 {
					s.logger.Debug(ctx, "swept expired state",
						logger.Int("dedupe_entries", dedupeRemoved),
						logger.Int("mapping_meetings", mappingsRemoved),
					)
				}
			}
		}
	}()
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping caption ingestion service...")

	if s.pool != nil {
		s.pool.Stop()
	}

	if closer, ok := s.store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	if q, ok := s.queue.(*segmentqueue.InMemoryQueue); ok {
		_ = q.Close()
	}

	select {
	case <-s.stopCh:
		// Channel already closed
	default:
		close(s.stopCh)
	}
	s.wg.Wait()

	s.started = false
	s.logger.Info(context.Background(), "caption ingestion service stopped")
}

// SyncParticipants upserts the pushed mapping tuples for a meeting and
// returns how many were applied. Tuples missing a device id or name are
// skipped rather than failing the batch.
func (s *Service) SyncParticipants(ctx context.Context, meetingID string, parts []model.ParticipantSync) int {
	applied := 0
	for _, p := range parts {
		if p.DeviceID == "" || p.Name == "" {
			continue
		}
		s.resolver.Save(ctx, meetingID, p)
		applied++
	}
	if applied > 0 {
		metrics.RecordMappingSync()
		metrics.UpdateMappingMeetings(s.resolver.Meetings())
	}
	s.logger.Debug(ctx, "participant mapping synced",
		logger.String("meeting_id", meetingID),
		logger.Int("applied", applied),
		logger.Int("received", len(parts)),
	)
	return applied
}

// Participants returns a meeting's current mapping entries.
func (s *Service) Participants(ctx context.Context, meetingID string) []types.ParticipantView {
	entries := s.resolver.Snapshot(ctx, meetingID)
	views := make([]types.ParticipantView, len(entries))
	for i, e := range entries {
		views[i] = types.ParticipantView{
			DeviceID:  e.DeviceID,
			Name:      e.Name,
			Variants:  e.Variants,
			UpdatedAt: e.UpdatedAt,
		}
	}
	return views
}

// Segments returns a meeting's transcript, newest segments last. A zero
// limit falls back to the configured maximum.
func (s *Service) Segments(ctx context.Context, meetingID string, limit int) ([]types.SegmentView, error) {
	if limit <= 0 || limit > s.maxSegmentLimit {
		limit = s.maxSegmentLimit
	}

	segs, err := s.store.Segments(ctx, meetingID, limit)
	if err != nil {
		return nil, err
	}

	views := make([]types.SegmentView, len(segs))
	for i, seg := range segs {
		views[i] = types.SegmentView{
			SessionID: seg.SessionID,
			DeviceID:  seg.DeviceID,
			Speaker:   seg.Speaker,
			Text:      seg.Text,
			MessageID: seg.MessageID,
			Version:   seg.Version,
			LangID:    seg.LangID,
			Timestamp: seg.Timestamp,
		}
	}
	return views, nil
}

// Speakers returns the distinct speaker names of a meeting.
func (s *Service) Speakers(ctx context.Context, meetingID string) ([]string, error) {
	return s.store.Speakers(ctx, meetingID)
}

// ClearMeeting drops all state held for a meeting: transcript, dedup
// entries and participant mapping.
func (s *Service) ClearMeeting(ctx context.Context, meetingID string) {
	s.store.Clear(ctx, meetingID)
	s.cache.Clear(ctx, meetingID)
	s.resolver.Clear(ctx, meetingID)
	s.logger.Info(ctx, "meeting state cleared", logger.String("meeting_id", meetingID))
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":      s.started,
		"worker_count": s.workerCount,
		"queue_size":   s.queueSize,
		"shard_count":  s.shardCount,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		totalSegments := s.store.Count(ctx)
		dedupeEntries := s.cache.Size()
		mappingMeetings := s.resolver.Meetings()

		stats["queue_length"] = queueLen
		stats["total_segments"] = totalSegments
		stats["dedupe_entries"] = dedupeEntries
		stats["mapping_meetings"] = mappingMeetings

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateSegmentsTotal(totalSegments)
		metrics.UpdateDedupeEntries(dedupeEntries)
		metrics.UpdateMappingMeetings(mappingMeetings)
	}

	return stats
}
