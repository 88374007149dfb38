package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper and its sessions.
type Metrics struct {
	Registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  prometheus.Histogram
	PagesTotal       prometheus.Counter
	WorksParsedTotal *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	SessionsTotal    *prometheus.CounterVec
	SessionsInFlight prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ao3_requests_total",
			Help: "Total HTTP requests issued against the archive.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ao3_request_duration_seconds",
			Help:    "HTTP request latency for archive requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ao3_history_pages_total",
			Help: "Total reading-history pages processed.",
		},
	)
	works := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ao3_works_parsed_total",
			Help: "Listing entries by outcome (first, repeat, skipped).",
		},
		[]string{"outcome"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ao3_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	sessions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ao3_sessions_total",
			Help: "Scrape sessions by terminal outcome.",
		},
		[]string{"outcome"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ao3_sessions_in_flight",
			Help: "Scrape sessions currently running.",
		},
	)

	registry.MustRegister(requests, requestDuration, pages, works, errorsTotal, sessions, inFlight)

	return &Metrics{
		Registry:         registry,
		RequestsTotal:    requests,
		RequestDuration:  requestDuration,
		PagesTotal:       pages,
		WorksParsedTotal: works,
		ErrorsTotal:      errorsTotal,
		SessionsTotal:    sessions,
		SessionsInFlight: inFlight,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPages increments the processed pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// IncWorks increments the parsed works counter for an outcome.
func (m *Metrics) IncWorks(outcome string) {
	if m == nil {
		return
	}
	m.WorksParsedTotal.WithLabelValues(outcome).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// SessionStarted marks a session as running.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsInFlight.Inc()
}

// SessionFinished records the terminal outcome of a session.
func (m *Metrics) SessionFinished(outcome string) {
	if m == nil {
		return
	}
	m.SessionsInFlight.Dec()
	m.SessionsTotal.WithLabelValues(outcome).Inc()
}
