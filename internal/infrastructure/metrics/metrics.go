package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medtracker"

// Dose outcomes recorded by DoseAttempt.
const (
	DoseAccepted  = "accepted"
	DoseDuplicate = "duplicate"
)

// Metrics holds the tracker's Prometheus collectors.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	stockQuantity *prometheus.GaugeVec
	daysRemaining *prometheus.GaugeVec
	lowStock      *prometheus.GaugeVec
	doses         *prometheus.CounterVec
	serviceCalls  *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New builds the collectors on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stockQuantity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stock_quantity",
			Help:      "Current pill count per stock entity.",
		}, []string{"entity_id"}),
		daysRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "days_remaining",
			Help:      "Estimated days of supply left per sensor entity.",
		}, []string{"entity_id"}),
		lowStock: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "low_stock",
			Help:      "1 when the days remaining is at or below the threshold.",
		}, []string{"entity_id"}),
		doses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dose_attempts_total",
			Help:      "take_dose calls by entity and outcome.",
		}, []string{"entity_id", "outcome"}),
		serviceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_calls_total",
			Help:      "Service calls by domain, service and result.",
		}, []string{"domain", "service", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.stockQuantity,
		m.daysRemaining,
		m.lowStock,
		m.doses,
		m.serviceCalls,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetStock records the current quantity of a stock entity.
func (m *Metrics) SetStock(entityID string, quantity float64) {
	if m == nil {
		return
	}
	m.stockQuantity.WithLabelValues(entityID).Set(quantity)
}

// SetDaysRemaining records an estimate; known=false clears the series.
func (m *Metrics) SetDaysRemaining(entityID string, days float64, known, low bool) {
	if m == nil {
		return
	}
	if !known {
		m.daysRemaining.DeleteLabelValues(entityID)
		m.lowStock.DeleteLabelValues(entityID)
		return
	}
	m.daysRemaining.WithLabelValues(entityID).Set(days)
	lowValue := 0.0
	if low {
		lowValue = 1
	}
	m.lowStock.WithLabelValues(entityID).Set(lowValue)
}

// Forget drops every per-entity series, used when an entity is removed.
func (m *Metrics) Forget(entityID string) {
	if m == nil {
		return
	}
	m.stockQuantity.DeleteLabelValues(entityID)
	m.daysRemaining.DeleteLabelValues(entityID)
	m.lowStock.DeleteLabelValues(entityID)
	m.doses.DeletePartialMatch(prometheus.Labels{"entity_id": entityID})
}

// DoseAttempt counts a take_dose call by outcome.
func (m *Metrics) DoseAttempt(entityID, outcome string) {
	if m == nil {
		return
	}
	m.doses.WithLabelValues(entityID, outcome).Inc()
}

// ServiceCall counts a service call; err == nil is recorded as "ok".
func (m *Metrics) ServiceCall(domain, service string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.serviceCalls.WithLabelValues(domain, service, result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer, which the
// WebSocket upgrade needs.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// WrapHandler records request count and latency under a fixed route label.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.ObserveHTTP(route, recorder.status, time.Since(start))
	})
}
