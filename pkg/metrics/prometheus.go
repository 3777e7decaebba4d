// Package metrics provides Prometheus metrics for the caption ingestion
// service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager holds every Prometheus metric the service records.
type Manager struct {
	namespace        string
	subsystem        string
	metricPrefix     string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Decode pipeline - what actually matters for caption quality
	blobsDecoded          prometheus.Counter
	decodeFailures        *prometheus.CounterVec
	unknownMessageLayouts prometheus.Counter
	decodeDuration        prometheus.Histogram

	// Identity resolution
	mappingHits    prometheus.Counter
	mappingMisses  prometheus.Counter
	fallbackNames  prometheus.Counter
	mappingSyncs   prometheus.Counter
	mappingMeetings prometheus.Gauge

	// Deduplication and persistence
	eventsDuplicate   prometheus.Counter
	segmentsPersisted prometheus.Counter
	ingestRejected    *prometheus.CounterVec
	dedupeEntries     prometheus.Gauge
	segmentsTotal     prometheus.Gauge

	// Queue health
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Repository
	repositoryAppendLatency prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewMetricsManager(WithPrometheusRegistry(customRegistry))
}

// NewMetricsManager creates a new metrics manager with default configuration.
func NewMetricsManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "captionflow",
		subsystem:        "ingest",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  15 * time.Second,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // metric declarations are naturally long
	auto := promauto.With(m.registry)

	m.blobsDecoded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "blobs_decoded_total",
		Help:      "Total number of capture blobs decoded successfully",
	})

	m.decodeFailures = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "decode_failures_total",
			Help:      "Total number of blobs rejected by the decoder, by stage",
		},
		[]string{"stage"},
	)

	m.unknownMessageLayouts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "unknown_message_layouts_total",
		Help:      "Records matching none of the known message-id patterns (future pattern discovery)",
	})

	m.decodeDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "decode_duration_milliseconds",
		Help:      "Histogram of blob decode duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.mappingHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mapping_hits_total",
		Help:      "Device ids resolved to a participant name",
	})

	m.mappingMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mapping_misses_total",
		Help:      "Device ids that matched no mapping entry",
	})

	m.fallbackNames = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fallback_names_total",
		Help:      "Segments attributed to a generated Unknown speaker name",
	})

	m.mappingSyncs = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mapping_syncs_total",
		Help:      "Participant mapping sync requests applied",
	})

	m.mappingMeetings = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mapping_meetings",
		Help:      "Meetings with a live participant mapping",
	})

	m.eventsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_duplicate_total",
		Help:      "Identical retransmissions suppressed by the dedup cache",
	})

	m.segmentsPersisted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "segments_persisted_total",
		Help:      "Caption segments appended to the transcript store",
	})

	m.ingestRejected = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "ingest_rejected_total",
			Help:      "Ingest requests rejected before persistence, by reason",
		},
		[]string{"reason"},
	)

	m.dedupeEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dedupe_entries",
		Help:      "Live entries in the dedup cache",
	})

	m.segmentsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "segments_total",
		Help:      "Segments currently held in the transcript store",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current number of queued segments",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Maximum queue capacity",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_utilization_ratio",
		Help:      "Queue utilization as a ratio of capacity",
	})

	m.queueEnqueueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_total",
		Help:      "Segments enqueued",
	})

	m.queueDequeueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_dequeue_total",
		Help:      "Segments dequeued",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_errors_total",
		Help:      "Enqueue attempts rejected by backpressure or shutdown",
	})

	m.queueProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_processing_latency_milliseconds",
		Help:      "Enqueue operation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Number of persistence workers",
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_processing_latency_milliseconds",
		Help:      "Per-segment worker processing latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_errors_total",
		Help:      "Worker processing errors",
	})

	m.repositoryAppendLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repository_append_latency_milliseconds",
		Help:      "Transcript store append latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint, method and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_time_milliseconds",
		Help:      "GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// RecordBlobDecoded increments the decoded blobs counter.
func RecordBlobDecoded() {
	globalManager.blobsDecoded.Inc()
}

// RecordDecodeFailure increments the decode failures counter for a stage.
func RecordDecodeFailure(stage string) {
	globalManager.decodeFailures.WithLabelValues(stage).Inc()
}

// RecordUnknownMessageLayout counts a record matching no known
// message-id pattern.
func RecordUnknownMessageLayout() {
	globalManager.unknownMessageLayouts.Inc()
}

// RecordDecodeDuration records decode latency in milliseconds.
func RecordDecodeDuration(latencyMs float64) {
	globalManager.decodeDuration.Observe(latencyMs)
}

// RecordMappingHit increments the mapping hits counter.
func RecordMappingHit() {
	globalManager.mappingHits.Inc()
}

// RecordMappingMiss increments the mapping misses counter.
func RecordMappingMiss() {
	globalManager.mappingMisses.Inc()
}

// RecordFallbackName increments the generated speaker names counter.
func RecordFallbackName() {
	globalManager.fallbackNames.Inc()
}

// RecordMappingSync increments the applied mapping syncs counter.
func RecordMappingSync() {
	globalManager.mappingSyncs.Inc()
}

// UpdateMappingMeetings sets the number of meetings with live mappings.
func UpdateMappingMeetings(count int) {
	globalManager.mappingMeetings.Set(float64(count))
}

// RecordEventDuplicate increments the duplicate events counter.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordSegmentPersisted increments the persisted segments counter.
func RecordSegmentPersisted() {
	globalManager.segmentsPersisted.Inc()
}

// RecordIngestRejected increments the rejected ingests counter for a
// reason.
func RecordIngestRejected(reason string) {
	globalManager.ingestRejected.WithLabelValues(reason).Inc()
}

// UpdateDedupeEntries sets the live dedup entry count.
func UpdateDedupeEntries(count int64) {
	globalManager.dedupeEntries.Set(float64(count))
}

// UpdateSegmentsTotal sets the stored segment count.
func UpdateSegmentsTotal(count int) {
	globalManager.segmentsTotal.Set(float64(count))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue errors counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records enqueue latency in milliseconds.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker errors counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordRepositoryAppendLatency records store append latency in
// milliseconds.
func RecordRepositoryAppendLatency(latencyMs float64) {
	globalManager.repositoryAppendLatency.Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateSystemMemoryUsage sets the memory usage gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom registry metrics are registered on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
