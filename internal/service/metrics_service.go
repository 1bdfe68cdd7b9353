package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

// Outcome labels.
const (
	outcomeSuccess = "success"
)

// MetricsService encapsulates Prometheus instrumentation of the HTTP layer and the engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	transitions     *prometheus.CounterVec
	ledgerOps       *prometheus.CounterVec
	remainingQuota  *prometheus.GaugeVec
	remainingBudget *prometheus.GaugeVec
	bookings        *prometheus.CounterVec
	bulkItems       *prometheus.CounterVec
	bulkDuration    prometheus.Histogram
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache set operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scholarship_transitions_total",
			Help: "Application status transitions by target status and outcome code",
		}, []string{"to", "outcome"}),
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scholarship_ledger_operations_total",
			Help: "Allocation ledger operations by kind and outcome code",
		}, []string{"operation", "outcome"}),
		remainingQuota: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scholarship_allocation_remaining_quota",
			Help: "Remaining award quota per offering",
		}, []string{"offering"}),
		remainingBudget: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scholarship_allocation_remaining_budget",
			Help: "Remaining budget per offering",
		}, []string{"offering"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scholarship_interview_operations_total",
			Help: "Interview slot operations by kind and outcome code",
		}, []string{"operation", "outcome"}),
		bulkItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scholarship_bulk_items_total",
			Help: "Bulk action items by action and outcome code",
		}, []string{"action", "outcome"}),
		bulkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scholarship_bulk_batch_seconds",
			Help:    "Wall time of complete bulk batches",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite, m.cacheHits, m.cacheMisses,
		m.transitions, m.ledgerOps, m.remainingQuota, m.remainingBudget, m.bookings, m.bulkItems,
		m.bulkDuration, goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests and additional collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordTransition counts a transition attempt towards the target status.
func (m *MetricsService) RecordTransition(to string, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to, outcomeLabel(err)).Inc()
}

// RecordLedgerOperation counts a reserve, release or resize.
func (m *MetricsService) RecordLedgerOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.ledgerOps.WithLabelValues(operation, outcomeLabel(err)).Inc()
}

// SetAllocationRemaining publishes the remainders of an offering's ledger.
func (m *MetricsService) SetAllocationRemaining(offeringID string, quota int, budget float64) {
	if m == nil {
		return
	}
	m.remainingQuota.WithLabelValues(offeringID).Set(float64(quota))
	m.remainingBudget.WithLabelValues(offeringID).Set(budget)
}

// RecordInterviewOperation counts a slot operation.
func (m *MetricsService) RecordInterviewOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(operation, outcomeLabel(err)).Inc()
}

// RecordBulkItem counts one processed bulk item.
func (m *MetricsService) RecordBulkItem(action, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = outcomeSuccess
	}
	m.bulkItems.WithLabelValues(action, code).Inc()
}

// ObserveBulkBatch records the duration of a complete batch.
func (m *MetricsService) ObserveBulkBatch(duration time.Duration) {
	if m == nil {
		return
	}
	m.bulkDuration.Observe(duration.Seconds())
}

func outcomeLabel(err error) string {
	if err == nil {
		return outcomeSuccess
	}
	return appErrors.FromError(err).Code
}
