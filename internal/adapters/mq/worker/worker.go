// Package worker defines worker contracts for asynchronous segment persistence.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/meetscribe/captionflow/internal/domain/model"
	"github.com/meetscribe/captionflow/pkg/logger"
	"github.com/meetscribe/captionflow/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	workerShutdownTimeout   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Segment is what workers read off the queue.
type Segment = model.Segment

// Appender persists accepted segments.
type Appender interface {
	Append(ctx context.Context, seg model.Segment) error
}

// Recorder remembers a persisted segment so identical retransmissions
// can be suppressed. Recording happens only after a successful append,
// so a failed write never poisons the duplicate check.
type Recorder interface {
	Record(ctx context.Context, meetingID string, messageID *uint32, deviceID, text string, version uint32)
}

// Queue defines how workers receive segments.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Segment
}

// Worker drains the queue and writes segments to the store.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	// It will process any remaining segments before stopping.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for persisting segments.
type InMemoryWorker struct {
	queue Queue
	store Appender
	cache Recorder
	name  string

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	// Logging
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, store Appender, cache Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		store:    store,
		cache:    cache,
		name:     "worker", // default name
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"), // will be updated by options
	}

	for _, opt := range opts {
		opt(w)
	}

	// Set up logger with worker name if not already set
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer func() {
		close(w.done)
	}()

	segChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case seg, ok := <-segChan:
			if !ok {
				// Channel closed, worker should stop
				return
			}

			if err := w.processSegment(ctx, seg); err != nil {
				w.logger.Error(ctx, "error persisting segment", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	// Wait for worker to finish or context to timeout
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processSegment persists a single segment, then records it in the
// dedup cache.
func (w *InMemoryWorker) processSegment(ctx context.Context, seg Segment) error { //nolint:gocritic // hugeParam: Segment must be passed by value for channel semantics
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordWorkerProcessingLatency(float64(latency))
	}()

	if err := w.store.Append(ctx, seg); err != nil {
		metrics.RecordWorkerError()
		w.logger.Error(ctx, "segment append failed",
			logger.String("meeting_id", seg.MeetingID),
			logger.String("device_id", seg.DeviceID),
			logger.Error(err),
		)
		return fmt.Errorf("failed to append segment for meeting %s: %w", seg.MeetingID, err)
	}

	metrics.RecordSegmentPersisted()

	// Only a persisted segment counts for deduplication.
	if w.cache != nil {
		w.cache.Record(ctx, seg.MeetingID, seg.MessageID, seg.DeviceID, seg.Text, seg.Version)
	}

	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	store   Appender
	cache   Recorder

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	// Logging
	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, queue Queue, store Appender, cache Recorder) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    queue,
		store:    store,
		cache:    cache,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			queue,
			store,
			cache,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	select {
	case <-p.shutdown:
	default:
		close(p.shutdown)
	}

	// Each worker watches its own shutdown channel.
	for _, worker := range p.workers {
		select {
		case <-worker.shutdown:
		default:
			close(worker.shutdown)
		}
	}

	// Wait for all workers to finish
	for _, worker := range p.workers {
		select {
		case <-worker.done:
			// Worker finished
		case <-time.After(workerShutdownTimeout):
			// Worker timeout
		}
	}
}

// Shutdown gracefully shuts down the entire worker pool.
func (p *Pool) Shutdown(ctx context.Context) error {
	// First close the queue to stop new segments
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	// Signal shutdown to all workers
	select {
	case <-p.shutdown:
	default:
		close(p.shutdown)
	}

	// Wait for all workers to finish or context to timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	return nil
}
