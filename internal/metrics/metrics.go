package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Catalog metrics
	CatalogRequestsTotal   *prometheus.CounterVec
	CatalogDurationSeconds *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Planner metrics
	CourseActionsTotal *prometheus.CounterVec
	ClassActionsTotal  *prometheus.CounterVec
	StaleFetchesTotal  prometheus.Counter
	SessionsActive     prometheus.Gauge
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	return &Metrics{
		CatalogRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "courseplan_catalog_requests_total",
				Help: "Total number of catalog queries by target and status",
			},
			[]string{"target", "status"}, // status: success, error
		),

		CatalogDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "courseplan_catalog_duration_seconds",
				Help:    "Catalog query duration in seconds by target",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"target"},
		),

		CacheHitsTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "courseplan_catalog_cache_hits_total",
				Help: "Total number of catalog cache hits",
			},
		),

		CacheMissesTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "courseplan_catalog_cache_misses_total",
				Help: "Total number of catalog cache misses",
			},
		),

		CourseActionsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "courseplan_course_actions_total",
				Help: "Course add/remove actions by outcome",
			},
			[]string{"action", "outcome"}, // action: add, remove
		),

		ClassActionsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "courseplan_class_actions_total",
				Help: "Class check/uncheck actions by outcome",
			},
			[]string{"action", "outcome"}, // action: check, uncheck, clear
		),

		StaleFetchesTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "courseplan_stale_fetches_total",
				Help: "Class-list fetches that completed after their selection was removed or superseded",
			},
		),

		SessionsActive: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "courseplan_sessions_active",
				Help: "Number of live planner sessions",
			},
		),
	}
}

// RecordCatalogRequest records one catalog query.
func (m *Metrics) RecordCatalogRequest(target, status string, seconds float64) {
	m.CatalogRequestsTotal.WithLabelValues(target, status).Inc()
	m.CatalogDurationSeconds.WithLabelValues(target).Observe(seconds)
}

func (m *Metrics) RecordCacheHit()  { m.CacheHitsTotal.Inc() }
func (m *Metrics) RecordCacheMiss() { m.CacheMissesTotal.Inc() }

func (m *Metrics) RecordCourseAction(action, outcome string) {
	m.CourseActionsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) RecordClassAction(action, outcome string) {
	m.ClassActionsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) RecordStaleFetch() { m.StaleFetchesTotal.Inc() }

func (m *Metrics) SetSessions(n int) { m.SessionsActive.Set(float64(n)) }
