// Package queue defines the contract for enqueuing and consuming
// accepted caption segments.
//
// Ingest must answer the capture client quickly, so persistence is
// decoupled behind an in-memory bounded queue: the HTTP handler
// enqueues and returns, workers drain and write to the store.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/meetscribe/captionflow/internal/domain/model"
	"github.com/meetscribe/captionflow/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 65536
	defaultBufferSize    = 65536
)

// Segment is the payload type flowing through the queue.
type Segment = model.Segment

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a segment to the queue.
	// Returns false if the queue is full and the segment was not enqueued.
	Enqueue(ctx context.Context, seg Segment) bool

	// Dequeue returns a channel that receives segments as they become
	// available. The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Segment

	// Len returns the current number of queued segments.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue. After closing, no new
	// segments can be enqueued and the dequeue channel is closed.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	segments   chan Segment
	capacity   int
	bufferSize int
	mu         sync.RWMutex
	closed     bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(q)
	}

	q.segments = make(chan Segment, q.bufferSize)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Enqueue adds a segment to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, seg Segment) bool { //nolint:gocritic // hugeParam: Segment must be passed by value for channel semantics
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordQueueProcessingLatency(float64(latency))
	}()

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return false
	}

	if len(q.segments) >= q.capacity {
		metrics.RecordQueueEnqueueError()
		return false
	}

	select {
	case q.segments <- seg:
		metrics.RecordQueueEnqueue()
		currentSize := len(q.segments)
		metrics.UpdateQueueSize(currentSize)
		metrics.UpdateQueueUtilization(float64(currentSize) / float64(q.capacity))
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		return false // context cancelled
	default:
		metrics.RecordQueueEnqueueError()
		return false // queue is full
	}
}

// Dequeue returns a channel that receives segments as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Segment {
	// Wrap the channel to track dequeue metrics
	dequeueChan := make(chan Segment)
	go func() {
		defer close(dequeueChan)
		for seg := range q.segments {
			select {
			case dequeueChan <- seg:
				metrics.RecordQueueDequeue()
				currentSize := len(q.segments)
				metrics.UpdateQueueSize(currentSize)
				metrics.UpdateQueueUtilization(float64(currentSize) / float64(q.capacity))
			case <-ctx.Done():
				return
			}
		}
	}()
	return dequeueChan
}

// Len returns the current number of queued segments.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.segments)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil // already closed
	}

	close(q.segments)
	q.closed = true

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
