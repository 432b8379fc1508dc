package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveBuild("PRINT", 3)
	m.ObserveBuild("PRINT", 0)
	m.ObserveJob("PRINT", "SUCCESS", 20*time.Millisecond)
	m.ObserveJob("PRINT", "FAILURE", time.Millisecond)
	m.ObserveStep("SUCCESS")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.instancesBuilt.WithLabelValues("PRINT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsTotal.WithLabelValues("PRINT", "FAILURE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepsTotal.WithLabelValues("SUCCESS")))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tracesweep_experiment_jobs_total")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBuild("PRINT", 1)
		m.ObserveJob("PRINT", "SUCCESS", time.Second)
		m.ObserveStep("FAILURE")
	})
}
