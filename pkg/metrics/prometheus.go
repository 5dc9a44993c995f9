// Package metrics provides Prometheus metrics for the conjunction forecasting service.
package metrics

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          atomic.Bool
	refreshInterval  atomic.Int64 // nanoseconds
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Ingestion
	reportsIngested  prometheus.Counter
	numericCoercions *prometheus.CounterVec
	malformedRecords *prometheus.CounterVec
	eventsGrouped    prometheus.Counter
	emptyHistories   prometheus.Counter

	// Inference
	modelAvailable    prometheus.Gauge
	forecastLatency   prometheus.Histogram
	inferenceFailures prometheus.Counter
	certainty         prometheus.Histogram
	decisions         *prometheus.CounterVec

	// Refresh pipeline
	refreshes      *prometheus.CounterVec
	refreshLatency prometheus.Histogram
	trackedEvents  prometheus.Gauge
	storeErrors    *prometheus.CounterVec
	sourceFetches  *prometheus.CounterVec
	queueSize      prometheus.Gauge
	queueCapacity  prometheus.Gauge
	queueEnqueued  prometheus.Counter
	queueDequeued  prometheus.Counter
	queueRejected  *prometheus.CounterVec
	workerCount    prometheus.Gauge
	workerErrors   prometheus.Counter
	workerLatency  prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // custom registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "conjunction",
		subsystem:        "forecast",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	m.enabled.Store(true)
	m.refreshInterval.Store(int64(defaultRefreshInterval))
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.reportsIngested = m.counter("reports_ingested_total", "Raw conjunction reports received")
	m.numericCoercions = m.counterVec("numeric_coercions_total", "Numeric report fields coerced to a sentinel", "field")
	m.malformedRecords = m.counterVec("malformed_records_total", "Reports dropped for missing required fields", "reason")
	m.eventsGrouped = m.counter("events_grouped_total", "Conjunction events produced by grouping")
	m.emptyHistories = m.counter("empty_histories_total", "Events excluded because no valid report remained")

	m.modelAvailable = m.gauge("model_available", "1 when a forecasting model is loaded, 0 otherwise")
	m.forecastLatency = m.histogram("forecast_latency_milliseconds", "Latency of one ForecastEvents call", m.histogramBuckets)
	m.inferenceFailures = m.counter("inference_failures_total", "Forward passes that failed and emptied their batch")
	m.certainty = m.histogram("certainty", "Distribution of forecast certainty scores",
		[]float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99, 1})
	m.decisions = m.counterVec("decisions_total", "Decision records produced by status", "status")

	m.refreshes = m.counterVec("refreshes_total", "Refresh runs by result", "result")
	m.refreshLatency = m.histogram("refresh_latency_milliseconds", "Latency of a full refresh run", m.histogramBuckets)
	m.trackedEvents = m.gauge("tracked_events", "Events in the latest snapshot")
	m.storeErrors = m.counterVec("store_errors_total", "Repository errors by operation", "op")
	m.sourceFetches = m.counterVec("source_fetches_total", "Data source fetch attempts by source and result", "source", "result")
	m.queueSize = m.gauge("queue_size", "Pending refresh requests")
	m.queueCapacity = m.gauge("queue_capacity", "Refresh queue capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Refresh requests accepted")
	m.queueDequeued = m.counter("queue_dequeued_total", "Refresh requests handed to workers")
	m.queueRejected = m.counterVec("queue_rejected_total", "Refresh requests rejected by reason", "reason")
	m.workerCount = m.gauge("worker_count", "Refresh workers running")
	m.workerErrors = m.counter("worker_errors_total", "Refresh requests that failed in a worker")
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds", "Time a worker spends on one request", m.histogramBuckets)

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.httpErrors = m.counterVec("http_errors_total", "HTTP error responses by endpoint and type", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordReportsIngested adds n to the ingested reports counter.
func RecordReportsIngested(n int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.reportsIngested.Add(float64(n))
}

// RecordNumericCoercion counts one coerced field.
func RecordNumericCoercion(field string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.numericCoercions.WithLabelValues(field).Inc()
}

// RecordMalformedRecord counts one dropped report.
func RecordMalformedRecord(reason string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.malformedRecords.WithLabelValues(reason).Inc()
}

// RecordEventsGrouped adds n grouped events.
func RecordEventsGrouped(n int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.eventsGrouped.Add(float64(n))
}

// RecordEmptyHistory counts one excluded event.
func RecordEmptyHistory() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.emptyHistories.Inc()
}

// UpdateModelAvailable sets the model availability gauge.
func UpdateModelAvailable(available bool) {
	if !globalManager.enabled.Load() {
		return
	}
	v := 0.0
	if available {
		v = 1
	}
	globalManager.modelAvailable.Set(v)
}

// RecordForecastLatency observes one ForecastEvents latency.
func RecordForecastLatency(latencyMs float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.forecastLatency.Observe(latencyMs)
}

// RecordInferenceFailure counts one failed batch.
func RecordInferenceFailure() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.inferenceFailures.Inc()
}

// RecordCertainty observes one certainty score.
func RecordCertainty(c float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.certainty.Observe(c)
}

// RecordDecision counts one decision by status.
func RecordDecision(status string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.decisions.WithLabelValues(status).Inc()
}

// RecordRefresh counts one refresh run by result ("ok", "fetch_error", ...).
func RecordRefresh(result string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.refreshes.WithLabelValues(result).Inc()
}

// RecordRefreshLatency observes one refresh latency.
func RecordRefreshLatency(latencyMs float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.refreshLatency.Observe(latencyMs)
}

// UpdateTrackedEvents sets the number of events in the latest snapshot.
func UpdateTrackedEvents(n int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.trackedEvents.Set(float64(n))
}

// RecordStoreError counts one repository error.
func RecordStoreError(op string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.storeErrors.WithLabelValues(op).Inc()
}

// RecordSourceFetch counts one fetch attempt.
func RecordSourceFetch(source, result string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.sourceFetches.WithLabelValues(source, result).Inc()
}

// UpdateQueueSize sets the pending refresh request count.
func UpdateQueueSize(size int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the refresh queue capacity.
func UpdateQueueCapacity(capacity int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts one accepted request.
func RecordQueueEnqueue() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts one dequeued request.
func RecordQueueDequeue() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueDequeued.Inc()
}

// RecordQueueRejected counts one rejected request.
func RecordQueueRejected(reason string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the running worker count.
func UpdateWorkerCount(count int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerError counts one failed request.
func RecordWorkerError() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.workerErrors.Inc()
}

// RecordWorkerProcessingLatency observes one worker latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.workerLatency.Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint counts one HTTP error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.httpErrors.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// SetEnabled mutes or resumes every Record and Update helper.
func SetEnabled(enabled bool) {
	globalManager.enabled.Store(enabled)
}

// Enabled reports whether the helpers record.
func Enabled() bool {
	return globalManager.enabled.Load()
}

// SetRefreshInterval sets the stats refresh period. Non-positive values are
// ignored.
func SetRefreshInterval(d time.Duration) {
	if d > 0 {
		globalManager.refreshInterval.Store(int64(d))
	}
}

// RefreshInterval is the period at which stats gauges should be refreshed.
func RefreshInterval() time.Duration {
	return time.Duration(globalManager.refreshInterval.Load())
}

// GetRegistry returns the registry the global manager registers on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Family gathers the global registry and returns the family with the given
// fully qualified name.
func Family(name string) (*dto.MetricFamily, error) {
	families, err := customRegistry.Gather()
	if err != nil {
		return nil, err
	}
	for _, f := range families {
		if f.GetName() == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCollectorMissing, name)
}
