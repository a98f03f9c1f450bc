// Package metrics provides Prometheus metrics for the memo credibility pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Decoder metrics
	memosDecoded   prometheus.Counter
	memosSkipped   *prometheus.CounterVec
	memosDuplicate prometheus.Counter

	// Ledger source metrics
	ledgerPages          prometheus.Counter
	ledgerRequestLatency prometheus.Histogram
	ledgerErrors         prometheus.Counter

	// Resolver metrics
	linksResolved        *prometheus.CounterVec
	resolverCacheHits    prometheus.Counter
	documentFetchLatency prometheus.Histogram

	// Aggregation metrics
	documentsMerged prometheus.Counter
	authorsTotal    prometheus.Gauge

	// Scoring metrics
	authorsScored  *prometheus.CounterVec
	scoringLatency prometheus.Histogram
	scoringRetries prometheus.Counter
	scoringErrors  *prometheus.CounterVec

	// Queue and worker metrics
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueue            prometheus.Counter
	queueDequeue            prometheus.Counter
	queueEnqueueErrors      prometheus.Counter
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram

	// Pipeline and output metrics
	pipelineState         *prometheus.GaugeVec
	pipelineStageDuration *prometheus.HistogramVec
	snapshotWrites        *prometheus.CounterVec
	breakerState          *prometheus.GaugeVec

	// HTTP metrics for the status server
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "memocred",
		subsystem:        "pipeline",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gauge(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogram(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.memosDecoded = auto.NewCounter(m.counter("memos_decoded_total",
		"Total number of memo records decoded from qualifying transfers"))
	m.memosSkipped = auto.NewCounterVec(m.counter("memos_skipped_total",
		"Total number of ledger records skipped by reason"), []string{"reason"})
	m.memosDuplicate = auto.NewCounter(m.counter("memos_duplicate_total",
		"Total number of duplicate memo records dropped"))

	m.ledgerPages = auto.NewCounter(m.counter("ledger_pages_total",
		"Total number of ledger history pages fetched"))
	m.ledgerRequestLatency = auto.NewHistogram(m.histogram("ledger_request_latency_milliseconds",
		"Ledger history request latency in milliseconds"))
	m.ledgerErrors = auto.NewCounter(m.counter("ledger_errors_total",
		"Total number of failed ledger history requests"))

	m.linksResolved = auto.NewCounterVec(m.counter("links_resolved_total",
		"Total number of link resolutions by outcome"), []string{"status"})
	m.resolverCacheHits = auto.NewCounter(m.counter("resolver_cache_hits_total",
		"Total number of link resolutions served from the run cache"))
	m.documentFetchLatency = auto.NewHistogram(m.histogram("document_fetch_latency_milliseconds",
		"Document fetch latency in milliseconds"))

	m.documentsMerged = auto.NewCounter(m.counter("documents_merged_total",
		"Total number of documents produced by fragment merging"))
	m.authorsTotal = auto.NewGauge(m.gauge("authors_total",
		"Number of distinct authors in the current run"))

	m.authorsScored = auto.NewCounterVec(m.counter("authors_scored_total",
		"Total number of authors by scoring status"), []string{"status"})
	m.scoringLatency = auto.NewHistogram(m.histogram("scoring_latency_milliseconds",
		"Scoring request latency in milliseconds"))
	m.scoringRetries = auto.NewCounter(m.counter("scoring_retries_total",
		"Total number of scoring retries"))
	m.scoringErrors = auto.NewCounterVec(m.counter("scoring_errors_total",
		"Total number of scoring failures by kind"), []string{"kind"})

	m.queueSize = auto.NewGauge(m.gauge("queue_size",
		"Current number of author bundles waiting for scoring"))
	m.queueCapacity = auto.NewGauge(m.gauge("queue_capacity",
		"Maximum bundle queue capacity"))
	m.queueEnqueue = auto.NewCounter(m.counter("queue_enqueue_total",
		"Total number of bundles enqueued"))
	m.queueDequeue = auto.NewCounter(m.counter("queue_dequeue_total",
		"Total number of bundles dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counter("queue_enqueue_errors_total",
		"Total number of rejected enqueues"))
	m.workerActiveCount = auto.NewGauge(m.gauge("worker_active_count",
		"Number of active scoring workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogram("worker_processing_latency_milliseconds",
		"Time a worker spends on one bundle in milliseconds"))

	m.pipelineState = auto.NewGaugeVec(m.gauge("state",
		"Current pipeline state, 1 for the active state"), []string{"state"})
	m.pipelineStageDuration = auto.NewHistogramVec(m.histogram("stage_duration_milliseconds",
		"Pipeline stage duration in milliseconds"), []string{"stage"})
	m.snapshotWrites = auto.NewCounterVec(m.counter("snapshot_writes_total",
		"Total number of snapshot files written by kind"), []string{"kind"})
	m.breakerState = auto.NewGaugeVec(m.gauge("circuit_breaker_state",
		"Circuit breaker state (0 closed, 1 half-open, 2 open)"), []string{"name"})

	m.httpRequests = auto.NewCounterVec(m.counter("http_requests_total",
		"Total number of HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogram("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds"), []string{"endpoint", "method", "status_code"})
}

// Decoder Metrics Functions.

// RecordMemoDecoded increments the decoded memo counter.
func RecordMemoDecoded() {
	globalManager.memosDecoded.Inc()
}

// RecordMemoSkipped increments the skipped record counter for reason.
func RecordMemoSkipped(reason string) {
	globalManager.memosSkipped.WithLabelValues(reason).Inc()
}

// RecordMemoDuplicate increments the duplicate memo counter.
func RecordMemoDuplicate() {
	globalManager.memosDuplicate.Inc()
}

// Ledger Metrics Functions.

// RecordLedgerPage records one fetched history page and its latency.
func RecordLedgerPage(latencyMs float64) {
	globalManager.ledgerPages.Inc()
	globalManager.ledgerRequestLatency.Observe(latencyMs)
}

// RecordLedgerError increments the ledger error counter.
func RecordLedgerError() {
	globalManager.ledgerErrors.Inc()
}

// Resolver Metrics Functions.

// RecordLinkResolved increments the link resolution counter for status.
func RecordLinkResolved(status string) {
	globalManager.linksResolved.WithLabelValues(status).Inc()
}

// RecordResolverCacheHit increments the resolver cache hit counter.
func RecordResolverCacheHit() {
	globalManager.resolverCacheHits.Inc()
}

// RecordDocumentFetchLatency records document fetch latency.
func RecordDocumentFetchLatency(latencyMs float64) {
	globalManager.documentFetchLatency.Observe(latencyMs)
}

// Aggregation Metrics Functions.

// RecordDocumentsMerged adds n merged documents.
func RecordDocumentsMerged(n int) {
	globalManager.documentsMerged.Add(float64(n))
}

// UpdateAuthorsTotal sets the number of authors in the run.
func UpdateAuthorsTotal(count int) {
	globalManager.authorsTotal.Set(float64(count))
}

// Scoring Metrics Functions.

// RecordAuthorScored increments the author counter for status.
func RecordAuthorScored(status string) {
	globalManager.authorsScored.WithLabelValues(status).Inc()
}

// RecordScoringLatency records scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordScoringRetry increments the scoring retry counter.
func RecordScoringRetry() {
	globalManager.scoringRetries.Inc()
}

// RecordScoringError increments the scoring error counter for kind.
func RecordScoringError(kind string) {
	globalManager.scoringErrors.WithLabelValues(kind).Inc()
}

// Queue and Worker Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// Pipeline Metrics Functions.

// UpdatePipelineState marks state as active and clears the others.
func UpdatePipelineState(state string, all []string) {
	for _, s := range all {
		globalManager.pipelineState.WithLabelValues(s).Set(0)
	}
	globalManager.pipelineState.WithLabelValues(state).Set(1)
}

// RecordStageDuration records how long a pipeline stage took.
func RecordStageDuration(stage string, durationMs float64) {
	globalManager.pipelineStageDuration.WithLabelValues(stage).Observe(durationMs)
}

// RecordSnapshotWrite increments the snapshot write counter for kind.
func RecordSnapshotWrite(kind string) {
	globalManager.snapshotWrites.WithLabelValues(kind).Inc()
}

// UpdateBreakerState sets the circuit breaker state gauge.
func UpdateBreakerState(name string, state int) {
	globalManager.breakerState.WithLabelValues(name).Set(float64(state))
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
