package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exposed on /metrics.
// Each server owns its registry so tests can build several servers.
type Metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	diagnoses *prometheus.CounterVec
	diseases  *prometheus.CounterVec
	kbReloads prometheus.Counter
}

// NewMetrics registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "padi",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "padi",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		diagnoses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "padi",
			Name:      "diagnoses_total",
			Help:      "Diagnosis submissions by outcome.",
		}, []string{"status"}),
		diseases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "padi",
			Name:      "diagnosed_diseases_total",
			Help:      "Saved diagnoses by primary disease code.",
		}, []string{"disease"}),
		kbReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "padi",
			Name:      "knowledge_base_reloads_total",
			Help:      "Knowledge base reloads.",
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.latency,
		m.diagnoses,
		m.diseases,
		m.kbReloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		m.latency.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) observeDiagnosis(status, diseaseCode string) {
	m.diagnoses.WithLabelValues(status).Inc()
	if diseaseCode != "" {
		m.diseases.WithLabelValues(diseaseCode).Inc()
	}
}
