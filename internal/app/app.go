package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vk/tracesweep/internal/builder"
	"github.com/vk/tracesweep/internal/ctxlog"
	"github.com/vk/tracesweep/internal/experiment"
	"github.com/vk/tracesweep/internal/metrics"
	"github.com/vk/tracesweep/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	config     *Config
	registry   *registry.Registry
	builder    *builder.Builder
	gatherer   *prometheus.Registry
	metrics    *metrics.Metrics
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger, registry and
// metrics. Without modules the core job modules are registered; the
// experiment classes are always present.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	if len(modules) == 0 {
		modules = coreModules
	}
	reg := registry.New(append([]registry.Module{experiment.Module{}}, modules...)...)
	logger.Debug("All Go modules registered.", "count", len(modules))

	// Validate the integrity of the registry.
	if err := reg.Validate(ctx); err != nil {
		// This is a programmer error (a params struct the engine cannot read), so we panic.
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	gatherer := prometheus.NewRegistry()
	gatherer.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(gatherer)

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		registry: reg,
		builder:  builder.New(reg, builder.WithMetrics(m)),
		gatherer: gatherer,
		metrics:  m,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}
