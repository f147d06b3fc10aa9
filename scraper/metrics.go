package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	DatesScrapedTotal prometheus.Counter
	ResumeSkipsTotal  prometheus.Counter
	InvalidDatesTotal prometheus.Counter
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timescrap_requests_total",
			Help: "Total HTTP requests issued to the holiday API.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "timescrap_request_duration_seconds",
			Help:    "HTTP request latency for holiday API requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	datesScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timescrap_dates_scraped_total",
			Help: "Total number of day records sent to the pipeline.",
		},
	)
	resumeSkips := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timescrap_resume_skips_total",
			Help: "Dates skipped because a previous run already scraped them.",
		},
	)
	invalidDates := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timescrap_invalid_dates_total",
			Help: "Dates the API rejected as nonexistent.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timescrap_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timescrap_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, datesScraped, resumeSkips, invalidDates, retries, errorsTotal)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		DatesScrapedTotal: datesScraped,
		ResumeSkipsTotal:  resumeSkips,
		InvalidDatesTotal: invalidDates,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
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

// IncScraped increments the scraped dates counter.
func (m *Metrics) IncScraped() {
	if m == nil {
		return
	}
	m.DatesScrapedTotal.Inc()
}

// IncResumeSkip increments the resume skip counter.
func (m *Metrics) IncResumeSkip() {
	if m == nil {
		return
	}
	m.ResumeSkipsTotal.Inc()
}

// IncInvalidDate increments the rejected date counter.
func (m *Metrics) IncInvalidDate() {
	if m == nil {
		return
	}
	m.InvalidDatesTotal.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
