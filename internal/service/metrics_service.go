package service

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface, the attendance pipeline and the cache.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	attendanceTotal *prometheus.CounterVec
	matchDistance   prometheus.Histogram
	sweepTotal      prometheus.Counter
	cacheLatency    prometheus.Observer
	cacheWrites     prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	attendanceTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_entries_total",
		Help: "Attendance ledger entries recorded, by phase and match verdict",
	}, []string{"phase", "verdict"})

	matchDistance := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "face_match_distance",
		Help:    "Best Euclidean distance per face match attempt",
		Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.8, 1.0, 1.2},
	})

	sweepTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "absence_sweep_rows_total",
		Help: "Registrations transitioned to absent by the lazy sweep",
	})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrites := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_latency_seconds",
		Help:    "Latency for cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	registry.MustRegister(requestDuration, requestTotal, attendanceTotal, matchDistance, sweepTotal, cacheLatency, cacheWrites, cacheHitRatio, cacheHits, cacheMisses)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		attendanceTotal: attendanceTotal,
		matchDistance:   matchDistance,
		sweepTotal:      sweepTotal,
		cacheLatency:    cacheLatency,
		cacheWrites:     cacheWrites,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one HTTP request observation.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// RecordAttendance counts a recorded ledger entry. Verdict is empty for
// non-biometric activities.
func (s *MetricsService) RecordAttendance(phase, verdict string) {
	if verdict == "" {
		verdict = "none"
	}
	s.attendanceTotal.WithLabelValues(phase, verdict).Inc()
}

// ObserveMatchDistance records the best distance of one match attempt.
func (s *MetricsService) ObserveMatchDistance(distance float64) {
	s.matchDistance.Observe(distance)
}

// RecordSweep counts registrations swept to absent.
func (s *MetricsService) RecordSweep(rows int64) {
	if rows > 0 {
		s.sweepTotal.Add(float64(rows))
	}
}

// ObserveCacheWrite records the latency of one cache write.
func (s *MetricsService) ObserveCacheWrite(duration time.Duration) {
	s.cacheWrites.Observe(duration.Seconds())
}

// RecordCacheOperation tracks cache hit/miss counts and latency.
func (s *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	s.cacheLatency.Observe(duration.Seconds())
	if hit {
		s.cacheHits.Inc()
		atomic.AddUint64(&s.cacheHitCount, 1)
	} else {
		s.cacheMisses.Inc()
		atomic.AddUint64(&s.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&s.cacheHitCount)
	total := hits + atomic.LoadUint64(&s.cacheMissCount)
	if total > 0 {
		s.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}
