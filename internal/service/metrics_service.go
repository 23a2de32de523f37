package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/hostelx-api/internal/models"
)

// domainMetrics receives lifecycle and gate events.
type domainMetrics interface {
	RecordTransition(kind, action, result string)
	RecordAdvisory(outcome string)
	RecordGateDecision(method, outcome, reason string)
	RecordCodeIssue(result string, attempts int)
	RecordExpired(source string)
}

type noopMetrics struct{}

func (noopMetrics) RecordTransition(string, string, string)   {}
func (noopMetrics) RecordAdvisory(string)                     {}
func (noopMetrics) RecordGateDecision(string, string, string) {}
func (noopMetrics) RecordCodeIssue(string, int)               {}
func (noopMetrics) RecordExpired(string)                      {}

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	transitions   *prometheus.CounterVec
	advisory      *prometheus.CounterVec
	gateDecisions *prometheus.CounterVec
	codeIssues    *prometheus.CounterVec
	codeAttempts  prometheus.Histogram
	expiredLeaves *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	gateGrants           uint64
	gateDenials          uint64
	gateOverrides        uint64
	advisoryFallbacks    uint64
}

// NewMetricsService registers core Prometheus collectors.
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
			Help:    "Latency for cache operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Ratio of cache hits to total cache lookups",
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
			Name: "hostelx_transitions_total",
			Help: "Lifecycle transitions by kind, action and result",
		}, []string{"kind", "action", "result"}),
		advisory: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hostelx_advisory_calls_total",
			Help: "Complaint triage calls by outcome",
		}, []string{"outcome"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hostelx_gate_decisions_total",
			Help: "Gate decisions by method, outcome and reason",
		}, []string{"method", "outcome", "reason"}),
		codeIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hostelx_access_codes_total",
			Help: "Access code issuance results",
		}, []string{"result"}),
		codeAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hostelx_access_code_attempts",
			Help:    "Draws needed to find a free access code",
			Buckets: []float64{1, 2, 3, 4, 8, 16},
		}),
		expiredLeaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hostelx_leaves_expired_total",
			Help: "Leaves moved to EXPIRED by source",
		}, []string{"source"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hostelx_rate_limited_total",
			Help: "Requests rejected by rate limiting",
		}, []string{"route"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(m.requestDuration, m.requestTotal, m.cacheLatency, m.cacheHitRatio, m.cacheHits, m.cacheMisses,
		m.transitions, m.advisory, m.gateDecisions, m.codeIssues, m.codeAttempts, m.expiredLeaves, m.rateLimited, goroutines)
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite records latency for cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
}

// RecordTransition counts a lifecycle transition attempt.
func (m *MetricsService) RecordTransition(kind, action, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, action, result).Inc()
}

// RecordAdvisory counts a complaint triage outcome.
func (m *MetricsService) RecordAdvisory(outcome string) {
	if m == nil {
		return
	}
	m.advisory.WithLabelValues(outcome).Inc()
	if outcome != "ok" {
		atomic.AddUint64(&m.advisoryFallbacks, 1)
	}
}

// RecordGateDecision counts a verify or override decision.
func (m *MetricsService) RecordGateDecision(method, outcome, reason string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(method, outcome, reason).Inc()
	switch {
	case method == string(models.GateMethodOverride):
		atomic.AddUint64(&m.gateOverrides, 1)
	case outcome == string(models.GateGrant):
		atomic.AddUint64(&m.gateGrants, 1)
	default:
		atomic.AddUint64(&m.gateDenials, 1)
	}
}

// RecordCodeIssue counts an issuance result and the draws it took.
func (m *MetricsService) RecordCodeIssue(result string, attempts int) {
	if m == nil {
		return
	}
	m.codeIssues.WithLabelValues(result).Inc()
	m.codeAttempts.Observe(float64(attempts))
}

// RecordExpired counts a leave moved to EXPIRED.
func (m *MetricsService) RecordExpired(source string) {
	if m == nil {
		return
	}
	m.expiredLeaves.WithLabelValues(source).Inc()
}

// RecordRateLimited counts a throttled request.
func (m *MetricsService) RecordRateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(route).Inc()
}

// Snapshot returns aggregated counters for the admin endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		GateGrants:               atomic.LoadUint64(&m.gateGrants),
		GateDenials:              atomic.LoadUint64(&m.gateDenials),
		GateOverrides:            atomic.LoadUint64(&m.gateOverrides),
		AdvisoryFallbacks:        atomic.LoadUint64(&m.advisoryFallbacks),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
