package experiment

import (
	"go.opentelemetry.io/otel"

	"github.com/vk/tracesweep/internal/metrics"
)

var tracer = otel.Tracer("tracesweep.experiment")

// RunOption configures a step or experiment run.
type RunOption func(*runConfig)

type runConfig struct {
	metrics   *metrics.Metrics
	outputDir string
}

// WithMetrics records step and job outcomes on m.
func WithMetrics(m *metrics.Metrics) RunOption {
	return func(c *runConfig) { c.metrics = m }
}

// WithOutputDir sets the directory results are written to when the
// experiment does not name one itself.
func WithOutputDir(dir string) RunOption {
	return func(c *runConfig) { c.outputDir = dir }
}

func newRunConfig(opts []RunOption) *runConfig {
	cfg := &runConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
