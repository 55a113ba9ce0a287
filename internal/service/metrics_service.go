package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry and the application metric
// families. One instance is shared by the HTTP middleware and the services.
type MetricsService struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	admissions   *prometheus.CounterVec
	catalogCache *prometheus.CounterVec
}

// NewMetricsService builds the registry with Go runtime and process
// collectors plus the application families.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &MetricsService{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests processed, partitioned by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_admissions_total",
			Help: "Enrollment admission attempts, partitioned by outcome.",
		}, []string{"outcome"}),
		catalogCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_cache_requests_total",
			Help: "Catalog cache lookups, partitioned by result.",
		}, []string{"result"}),
	}
	registry.MustRegister(m.httpRequests, m.httpDuration, m.admissions, m.catalogCache)
	return m
}

// ObserveRequest records one finished HTTP request.
func (m *MetricsService) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveAdmission records one admission outcome, e.g. "admitted",
// "section_full", "conflict".
func (m *MetricsService) ObserveAdmission(outcome string) {
	m.admissions.WithLabelValues(outcome).Inc()
}

// ObserveCatalogCache records one cache lookup result, "hit" or "miss".
func (m *MetricsService) ObserveCatalogCache(result string) {
	m.catalogCache.WithLabelValues(result).Inc()
}

// Handler exposes the registry for scraping.
func (m *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
