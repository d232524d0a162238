// Package metrics provides Prometheus metrics for the lead engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lead_engine"

// Run outcomes recorded by DistributionRun.
const (
	RunPreview   = "preview"
	RunConfirmed = "confirmed"
	RunConflict  = "conflict"
	RunFailed    = "failed"
)

// Metrics owns a private registry and every collector the service exports.
type Metrics struct {
	registry *prometheus.Registry

	distributionRuns     *prometheus.CounterVec
	distributionDuration prometheus.Histogram
	leadsAllocated       *prometheus.CounterVec
	residualLeads        *prometheus.GaugeVec
	leadsCreated         *prometheus.CounterVec
	followUpAlerts       *prometheus.CounterVec
	cyclesClosed         prometheus.Counter

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	auto := promauto.With(reg)

	return &Metrics{
		registry: reg,

		distributionRuns: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "distribution",
			Name:      "runs_total",
			Help:      "Distribution engine runs by outcome",
		}, []string{"outcome"}),

		distributionDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "distribution",
			Name:      "duration_seconds",
			Help:      "Time spent computing one distribution",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),

		leadsAllocated: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "distribution",
			Name:      "leads_allocated_total",
			Help:      "Leads granted to brokers by confirmed runs and residual assignments",
		}, []string{"category"}),

		residualLeads: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "distribution",
			Name:      "residual_leads",
			Help:      "Unassigned leads left by the latest confirmed run",
		}, []string{"category"}),

		leadsCreated: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leads",
			Name:      "created_total",
			Help:      "Leads registered, by category and whether a broker was set",
		}, []string{"category", "delivered"}),

		followUpAlerts: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leads",
			Name:      "followup_alerts_total",
			Help:      "Follow-up alerts raised by type",
		}, []string{"type"}),

		cyclesClosed: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycles",
			Name:      "closed_total",
			Help:      "Sales cycles closed",
		}),

		httpRequests: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),

		httpRequestDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// DistributionRun records one engine run.
func (m *Metrics) DistributionRun(outcome string, took time.Duration) {
	m.distributionRuns.WithLabelValues(outcome).Inc()
	if outcome == RunPreview || outcome == RunConfirmed {
		m.distributionDuration.Observe(took.Seconds())
	}
}

// LeadsAllocated adds granted leads for a category.
func (m *Metrics) LeadsAllocated(category string, n int) {
	if n > 0 {
		m.leadsAllocated.WithLabelValues(category).Add(float64(n))
	}
}

// Residual sets the leftover of the latest run for a category.
func (m *Metrics) Residual(category string, n int) {
	m.residualLeads.WithLabelValues(category).Set(float64(n))
}

// LeadCreated counts a registered lead.
func (m *Metrics) LeadCreated(category string, delivered bool) {
	m.leadsCreated.WithLabelValues(category, strconv.FormatBool(delivered)).Inc()
}

// FollowUpAlert counts a raised alert.
func (m *Metrics) FollowUpAlert(alertType string) {
	m.followUpAlerts.WithLabelValues(alertType).Inc()
}

// CycleClosed counts a closed cycle.
func (m *Metrics) CycleClosed() {
	m.cyclesClosed.Inc()
}

// HTTPRequest records one served request. route is the chi route pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) HTTPRequest(method, route string, status int, took time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
