package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// layer and the registration workflows. A nil receiver is safe everywhere
// so wiring stays optional in tests.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	codesGenerated         prometheus.Counter
	registrationsSubmitted prometheus.Counter
	registrationsApproved  prometheus.Counter
	registrationsRejected  prometheus.Counter
	auditWriteFailures     prometheus.Counter
}

// NewMetricsService registers the collectors.
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
		Name: "reference_cache_hits_total",
		Help: "Total reference-data cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reference_cache_misses_total",
		Help: "Total reference-data cache misses",
	})

	codesGenerated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registration_codes_generated_total",
		Help: "Total registration codes minted",
	})

	registrationsSubmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registrations_submitted_total",
		Help: "Total registrations submitted",
	})

	registrationsApproved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registrations_approved_total",
		Help: "Total registrations approved",
	})

	registrationsRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registrations_rejected_total",
		Help: "Total registrations rejected",
	})

	auditWriteFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "system_log_write_failures_total",
		Help: "Total system log writes that fell back to the secondary sink",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses,
		codesGenerated, registrationsSubmitted, registrationsApproved,
		registrationsRejected, auditWriteFailures, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:               registry,
		handler:                handler,
		requestDuration:        requestDuration,
		requestTotal:           requestTotal,
		cacheHits:              cacheHits,
		cacheMisses:            cacheMisses,
		codesGenerated:         codesGenerated,
		registrationsSubmitted: registrationsSubmitted,
		registrationsApproved:  registrationsApproved,
		registrationsRejected:  registrationsRejected,
		auditWriteFailures:     auditWriteFailures,
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

// RecordCacheLookup records a reference-cache hit or miss.
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// IncCodeGenerated counts a minted code.
func (m *MetricsService) IncCodeGenerated() {
	if m == nil {
		return
	}
	m.codesGenerated.Inc()
}

// IncRegistrationSubmitted counts a committed submission.
func (m *MetricsService) IncRegistrationSubmitted() {
	if m == nil {
		return
	}
	m.registrationsSubmitted.Inc()
}

// IncRegistrationApproved counts an approval.
func (m *MetricsService) IncRegistrationApproved() {
	if m == nil {
		return
	}
	m.registrationsApproved.Inc()
}

// IncRegistrationRejected counts a rejection.
func (m *MetricsService) IncRegistrationRejected() {
	if m == nil {
		return
	}
	m.registrationsRejected.Inc()
}

// IncAuditWriteFailure counts a system-log write that degraded to the
// fallback sink.
func (m *MetricsService) IncAuditWriteFailure() {
	if m == nil {
		return
	}
	m.auditWriteFailures.Inc()
}
