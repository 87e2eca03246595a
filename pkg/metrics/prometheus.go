// Package metrics provides Prometheus metrics for the huddle service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Check-in outcome label values.
const (
	CheckInAccepted      = "accepted"
	CheckInDuplicate     = "duplicate"
	CheckInOutsideWindow = "outside_window"
	CheckInFailed        = "failed"
)

// Manager manages all Prometheus metrics for the huddle service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Group formation
	groupsFormed       prometheus.Counter
	candidatesAssigned prometheus.Counter
	candidatesDropped  prometheus.Counter
	groupScore         prometheus.Histogram
	assemblyLatency    prometheus.Histogram

	// Freeze lifecycle
	groupsFrozen    prometheus.Counter
	groupsUnfrozen  prometheus.Counter
	freezeRefused   prometheus.Counter
	guardDecisions  *prometheus.CounterVec
	autoFreezeSweep prometheus.Counter

	// Reconciler
	reconcileFinalized prometheus.Counter
	reconcileCleaned   prometheus.Counter
	reconcileFailed    prometheus.Counter
	reconcileLatency   prometheus.Histogram

	// Attendance
	checkIns         *prometheus.CounterVec
	tokenValidations *prometheus.CounterVec

	// Streaks
	streakUpdates prometheus.Counter
	streakNoops   prometheus.Counter
	streakErrors  prometheus.Counter

	// Queue and workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueUtilization        prometheus.Gauge
	queueEnqueued           prometheus.Counter
	queueDequeued           prometheus.Counter
	queueEnqueueErrors      *prometheus.CounterVec
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
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
		namespace:        "huddle",
		subsystem:        "core",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// factory registers collectors with the manager's registry. A disabled
// manager still builds them so recording stays safe, but registers nothing.
func (m *Manager) factory() promauto.Factory {
	if !m.enabled {
		return promauto.With(nil)
	}
	return promauto.With(m.registry)
}

// Enabled reports whether the manager registers its collectors.
func (m *Manager) Enabled() bool { return m.enabled }

// RefreshInterval is how often gauge updaters should resample.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return m.factory().NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return m.factory().NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return m.factory().NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return m.factory().NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.groupsFormed = m.counter("groups_formed_total", "Total number of groups persisted by the assembler")
	m.candidatesAssigned = m.counter("candidates_assigned_total", "Total number of candidates placed into a group")
	m.candidatesDropped = m.counter("candidates_dropped_total", "Candidates left ungrouped because the pool was too small")
	m.groupScore = m.histogram("group_compatibility_score", "Compatibility score of assembled groups",
		[]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1})
	m.assemblyLatency = m.histogram("assembly_latency_milliseconds", "Time spent assembling one candidate pool", m.histogramBuckets)

	m.groupsFrozen = m.counter("groups_frozen_total", "Groups moved to frozen/locked by the freeze path")
	m.groupsUnfrozen = m.counter("groups_unfrozen_total", "Groups reopened by an explicit unfreeze")
	m.freezeRefused = m.counter("freeze_refused_total", "Freeze requests refused because the override lock was active")
	m.guardDecisions = m.counterVec("guard_decisions_total", "Freeze guard decisions by action and outcome", "action", "allowed")
	m.autoFreezeSweep = m.counter("auto_freeze_sweeps_total", "Automatic freeze sweeps executed")

	m.reconcileFinalized = m.counter("reconcile_finalized_total", "Stale groups finalized by the reconciler")
	m.reconcileCleaned = m.counter("reconcile_cleaned_total", "Stale groups discarded by the reconciler")
	m.reconcileFailed = m.counter("reconcile_failed_total", "Stale groups the reconciler failed to resolve")
	m.reconcileLatency = m.histogram("reconcile_sweep_latency_milliseconds", "Duration of one reconciler sweep", m.histogramBuckets)

	m.checkIns = m.counterVec("checkins_total", "Check-in attempts by outcome", "outcome")
	m.tokenValidations = m.counterVec("checkin_token_validations_total", "Check-in token validations by result", "result")

	m.streakUpdates = m.counter("streak_updates_total", "Streak rows written")
	m.streakNoops = m.counter("streak_noops_total", "Streak updates skipped because the week was already credited")
	m.streakErrors = m.counter("streak_errors_total", "Streak updates that failed")

	m.queueSize = m.gauge("queue_size", "Current number of queued streak jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (size / capacity)")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Jobs enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Jobs dequeued")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Enqueue failures by reason", "reason")
	m.workerCount = m.gauge("worker_count", "Number of streak workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Streak job processing latency", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Streak jobs that failed")

	m.httpRequests = m.factory().NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_requests_total"),
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: m.customLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = m.factory().NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_request_duration_milliseconds"),
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.customLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Group formation.

// RecordGroupFormed records one persisted group and its compatibility score.
func RecordGroupFormed(members int, score float64) {
	globalManager.groupsFormed.Inc()
	globalManager.candidatesAssigned.Add(float64(members))
	globalManager.groupScore.Observe(score)
}

// RecordCandidatesDropped counts candidates the assembler could not place.
func RecordCandidatesDropped(n int) {
	if n > 0 {
		globalManager.candidatesDropped.Add(float64(n))
	}
}

// RecordAssemblyLatency records assembly latency in milliseconds.
func RecordAssemblyLatency(latencyMs float64) {
	globalManager.assemblyLatency.Observe(latencyMs)
}

// Freeze lifecycle.

// RecordGroupsFrozen adds n to the frozen groups counter.
func RecordGroupsFrozen(n int) {
	globalManager.groupsFrozen.Add(float64(n))
}

// RecordGroupsUnfrozen adds n to the unfrozen groups counter.
func RecordGroupsUnfrozen(n int) {
	globalManager.groupsUnfrozen.Add(float64(n))
}

// RecordFreezeRefused increments the refused freeze counter.
func RecordFreezeRefused() {
	globalManager.freezeRefused.Inc()
}

// RecordGuardDecision records a freeze guard decision.
func RecordGuardDecision(action string, allowed bool) {
	label := "false"
	if allowed {
		label = "true"
	}
	globalManager.guardDecisions.WithLabelValues(action, label).Inc()
}

// RecordAutoFreezeSweep increments the auto freeze sweep counter.
func RecordAutoFreezeSweep() {
	globalManager.autoFreezeSweep.Inc()
}

// Reconciler.

// RecordReconcileSweep records the outcome of one reconciler sweep.
func RecordReconcileSweep(finalized, cleaned, failed int, latencyMs float64) {
	globalManager.reconcileFinalized.Add(float64(finalized))
	globalManager.reconcileCleaned.Add(float64(cleaned))
	globalManager.reconcileFailed.Add(float64(failed))
	globalManager.reconcileLatency.Observe(latencyMs)
}

// Attendance.

// RecordCheckIn records a check-in attempt by outcome.
func RecordCheckIn(outcome string) {
	globalManager.checkIns.WithLabelValues(outcome).Inc()
}

// RecordTokenValidation records a check-in token validation result.
func RecordTokenValidation(result string) {
	globalManager.tokenValidations.WithLabelValues(result).Inc()
}

// Streaks.

// RecordStreakUpdate increments the streak write or no-op counter.
func RecordStreakUpdate(applied bool) {
	if applied {
		globalManager.streakUpdates.Inc()
		return
	}
	globalManager.streakNoops.Inc()
}

// RecordStreakError increments the streak error counter.
func RecordStreakError() {
	globalManager.streakErrors.Inc()
}

// Queue.

// UpdateQueueSize sets the current queue size and utilization.
func UpdateQueueSize(size, capacity int) {
	globalManager.queueSize.Set(float64(size))
	if capacity > 0 {
		globalManager.queueUtilization.Set(float64(size) / float64(capacity))
	}
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError records an enqueue failure with its reason.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// Workers.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// RefreshInterval returns the resample interval of the global manager.
func RefreshInterval() time.Duration {
	return globalManager.RefreshInterval()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
