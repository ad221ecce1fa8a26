package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	m := New(prometheus.NewRegistry())
	require.NotNil(t, m)

	assert.NotNil(t, m.CatalogRequestsTotal)
	assert.NotNil(t, m.CatalogDurationSeconds)
	assert.NotNil(t, m.CacheHitsTotal)
	assert.NotNil(t, m.CacheMissesTotal)
	assert.NotNil(t, m.CourseActionsTotal)
	assert.NotNil(t, m.ClassActionsTotal)
	assert.NotNil(t, m.StaleFetchesTotal)
	assert.NotNil(t, m.SessionsActive)
}

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordCatalogRequest("COURSE_SEARCH", "success", 0.2)
	m.RecordCatalogRequest("COURSE_SEARCH", "success", 0.3)
	m.RecordCatalogRequest("COURSE_CLASS_LIST", "error", 1)
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCacheMiss()
	m.RecordCourseAction("add", "fetched")
	m.RecordClassAction("check", "ok")
	m.RecordStaleFetch()
	m.SetSessions(3)

	assert.Equal(t, 2.0, value(t, m.CatalogRequestsTotal.WithLabelValues("COURSE_SEARCH", "success")))
	assert.Equal(t, 1.0, value(t, m.CatalogRequestsTotal.WithLabelValues("COURSE_CLASS_LIST", "error")))
	assert.Equal(t, 1.0, value(t, m.CacheHitsTotal))
	assert.Equal(t, 2.0, value(t, m.CacheMissesTotal))
	assert.Equal(t, 1.0, value(t, m.CourseActionsTotal.WithLabelValues("add", "fetched")))
	assert.Equal(t, 1.0, value(t, m.ClassActionsTotal.WithLabelValues("check", "ok")))
	assert.Equal(t, 1.0, value(t, m.StaleFetchesTotal))
	assert.Equal(t, 3.0, value(t, m.SessionsActive))
}

// value reads the current value of a counter or gauge.
func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, c.Write(&out))
	if out.Counter != nil {
		return out.Counter.GetValue()
	}
	if out.Gauge != nil {
		return out.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}
