// Package metrics provides Prometheus metrics for the scoreboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus collectors for the service.
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	// Submission metrics
	submissionsTotal     prometheus.Counter
	submissionsDuplicate prometheus.Counter
	submissionsRejected  *prometheus.CounterVec
	suspiciousNames      prometheus.Counter

	// Store metrics
	storeRecords     *prometheus.GaugeVec
	storeWriteErrors prometheus.Counter
	storeReadErrors  prometheus.Counter

	// Lock metrics
	lockWaitSeconds  prometheus.Histogram
	lockTimeouts     prometheus.Counter
	staleLocksBroken prometheus.Counter

	// Cache metrics
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpNotModified     prometheus.Counter
	rateLimited         prometheus.Counter

	// System metrics
	systemMemoryBytes prometheus.Gauge
	systemGoroutines  prometheus.Gauge
}

var defaultManager *Manager

func init() { //nolint:gochecknoinits // global metrics setup, same lifetime as the process
	defaultManager = NewManager()
}

// NewManager creates a Manager with its own registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "scoreboard",
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	factory := promauto.With(m.registry)

	m.submissionsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "submissions_total",
		Help:      "Total score submissions accepted",
	})
	m.submissionsDuplicate = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "submissions_duplicate_total",
		Help:      "Submissions rejected by the duplicate window guard",
	})
	m.submissionsRejected = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "submissions_rejected_total",
		Help:      "Submissions rejected during validation, by reason",
	}, []string{"reason"})
	m.suspiciousNames = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "suspicious_names_total",
		Help:      "Names rejected by the injection denylist",
	})

	m.storeRecords = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "store_records",
		Help:      "Records currently in the store, by category",
	}, []string{"category"})
	m.storeWriteErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "store_write_errors_total",
		Help:      "Failed store writes",
	})
	m.storeReadErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "store_read_errors_total",
		Help:      "Store reads that degraded to an empty list",
	})

	m.lockWaitSeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "lock_wait_seconds",
		Help:      "Time spent acquiring the store lock",
		Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
	})
	m.lockTimeouts = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "lock_timeouts_total",
		Help:      "Lock acquisitions that exhausted the retry budget",
	})
	m.staleLocksBroken = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "stale_locks_broken_total",
		Help:      "Abandoned lock files reclaimed",
	})

	m.cacheHits = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "cache_hits_total",
		Help:      "Read cache hits, by slot",
	}, []string{"slot"})
	m.cacheMisses = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "cache_misses_total",
		Help:      "Read cache misses, by slot",
	}, []string{"slot"})
	m.cacheInvalidations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "cache_invalidations_total",
		Help:      "Cache invalidations, by cause (write, mtime, watch)",
	}, []string{"cause"})

	m.httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests, by endpoint, method and status",
	}, []string{"endpoint", "method", "status"})
	m.httpRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"endpoint", "method", "status"})
	m.httpNotModified = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "http_not_modified_total",
		Help:      "Conditional GETs answered with 304",
	})
	m.rateLimited = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter",
	})

	m.systemMemoryBytes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "system_memory_bytes",
		Help:      "Allocated heap bytes",
	})
	m.systemGoroutines = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "system_goroutines",
		Help:      "Current goroutine count",
	})
}

// Package-level helpers operating on the default manager.

func RecordSubmission()          { defaultManager.submissionsTotal.Inc() }
func RecordSubmissionDuplicate() { defaultManager.submissionsDuplicate.Inc() }
func RecordSubmissionRejected(reason string) {
	defaultManager.submissionsRejected.WithLabelValues(reason).Inc()
}
func RecordSuspiciousName() { defaultManager.suspiciousNames.Inc() }

func UpdateStoreRecords(category string, count int) {
	defaultManager.storeRecords.WithLabelValues(category).Set(float64(count))
}

// ResetStoreRecords drops all per-category record gauges so vanished
// categories are not reported with their last value forever.
func ResetStoreRecords() { defaultManager.storeRecords.Reset() }
func RecordStoreWriteError() { defaultManager.storeWriteErrors.Inc() }
func RecordStoreReadError()  { defaultManager.storeReadErrors.Inc() }

func RecordLockWait(seconds float64) { defaultManager.lockWaitSeconds.Observe(seconds) }
func RecordLockTimeout()             { defaultManager.lockTimeouts.Inc() }
func RecordStaleLockBroken()         { defaultManager.staleLocksBroken.Inc() }

func RecordCacheHit(slot string)  { defaultManager.cacheHits.WithLabelValues(slot).Inc() }
func RecordCacheMiss(slot string) { defaultManager.cacheMisses.WithLabelValues(slot).Inc() }
func RecordCacheInvalidation(cause string) {
	defaultManager.cacheInvalidations.WithLabelValues(cause).Inc()
}

func RecordHTTPRequest(endpoint, method, status string) {
	defaultManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}
func RecordHTTPRequestDuration(endpoint, method, status string, durationMs float64) {
	defaultManager.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(durationMs)
}
func RecordNotModified() { defaultManager.httpNotModified.Inc() }
func RecordRateLimited() { defaultManager.rateLimited.Inc() }

func UpdateSystemMemoryUsage(bytes uint64) { defaultManager.systemMemoryBytes.Set(float64(bytes)) }
func UpdateSystemGoroutineCount(count int) { defaultManager.systemGoroutines.Set(float64(count)) }

// GetRegistry returns the default manager's registry for serving /metrics.
func GetRegistry() *prometheus.Registry {
	return defaultManager.registry
}
