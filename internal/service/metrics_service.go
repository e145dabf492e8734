package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// progression engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheHitRatio   prometheus.Gauge
	lessonAttempts  *prometheus.CounterVec
	stageChecks     *prometheus.CounterVec
	enrollmentMoves *prometheus.CounterVec
	saveConflicts   prometheus.Counter

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

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_cache_hits_total",
		Help: "Total progress cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_cache_misses_total",
		Help: "Total progress cache misses",
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "progress_cache_hit_ratio",
		Help: "Ratio of progress cache hits to total lookups",
	})

	lessonAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lesson_attempts_total",
		Help: "Finalised lesson attempts by outcome",
	}, []string{"outcome"})

	stageChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stage_checks_total",
		Help: "Completed stage checks by outcome",
	}, []string{"outcome"})

	enrollmentMoves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_transitions_total",
		Help: "Enrollment status transitions by target status",
	}, []string{"status"})

	saveConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollment_save_conflicts_total",
		Help: "Optimistic lock conflicts on enrollment writes",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses, cacheHitRatio,
		lessonAttempts, stageChecks, enrollmentMoves, saveConflicts, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		cacheHitRatio:   cacheHitRatio,
		lessonAttempts:  lessonAttempts,
		stageChecks:     stageChecks,
		enrollmentMoves: enrollmentMoves,
		saveConflicts:   saveConflicts,
	}
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheLookup records a progress cache hit or miss.
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// RecordLessonAttempt counts a finalised lesson attempt.
func (m *MetricsService) RecordLessonAttempt(outcome string) {
	if m == nil {
		return
	}
	m.lessonAttempts.WithLabelValues(outcome).Inc()
}

// RecordStageCheck counts a completed stage check.
func (m *MetricsService) RecordStageCheck(outcome string) {
	if m == nil {
		return
	}
	m.stageChecks.WithLabelValues(outcome).Inc()
}

// RecordEnrollmentTransition counts a status transition.
func (m *MetricsService) RecordEnrollmentTransition(status string) {
	if m == nil {
		return
	}
	m.enrollmentMoves.WithLabelValues(status).Inc()
}

// RecordSaveConflict counts a lost optimistic lock race.
func (m *MetricsService) RecordSaveConflict() {
	if m == nil {
		return
	}
	m.saveConflicts.Inc()
}
