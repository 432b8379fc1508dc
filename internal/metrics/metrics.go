// Package metrics exposes Prometheus instruments for builds, steps and jobs.
//
// A nil *Metrics is valid and records nothing, so library callers and tests
// that do not care about metrics can pass nil.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tracesweep"

// Metrics holds the instruments registered on one prometheus.Registerer.
type Metrics struct {
	instancesBuilt *prometheus.CounterVec
	jobsTotal      *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	stepsTotal     *prometheus.CounterVec
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		// Labels: class
		instancesBuilt: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "builder",
			Name:      "instances_total",
			Help:      "Objects constructed by the builder, by class.",
		}, []string{"class"}),
		// Labels: job (object_type of the job), status
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "experiment",
			Name:      "jobs_total",
			Help:      "Finished jobs by type and final status.",
		}, []string{"job", "status"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "experiment",
			Name:      "job_duration_seconds",
			Help:      "Wall time of a single job run.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
		}, []string{"job"}),
		// Labels: status
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "experiment",
			Name:      "steps_total",
			Help:      "Finished experiment steps by final status.",
		}, []string{"status"}),
	}
}

// ObserveBuild records n instances constructed for class.
func (m *Metrics) ObserveBuild(class string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.instancesBuilt.WithLabelValues(class).Add(float64(n))
}

// ObserveJob records one finished job.
func (m *Metrics) ObserveJob(job, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(job, status).Inc()
	m.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

// ObserveStep records one finished step.
func (m *Metrics) ObserveStep(status string) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(status).Inc()
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
