package app

import (
	"context"
	"fmt"

	"github.com/vk/tracesweep/internal/ctxlog"
	"github.com/vk/tracesweep/internal/experiment"
	"github.com/vk/tracesweep/internal/job"
)

// Run loads every configured document and runs the resulting experiments in
// order. Engine errors abort the run; experiments that finish with a failed
// step are reported and make Run return an error once all have run.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(ctx)
		defer func() {
			if err := a.closeHealthcheckServer(ctx); err != nil {
				a.logger.Error("Health check server did not close cleanly.", "error", err)
			}
		}()
	}

	plans, err := a.loadExperiments(ctx)
	if err != nil {
		return fmt.Errorf("failed to load experiments: %w", err)
	}
	if len(plans) == 0 {
		a.logger.Warn("No experiments found, execution not required.")
		return nil
	}

	a.logger.Info("🚀 Starting experiments...", "count", len(plans))
	failed := 0
	for i, p := range plans {
		ectx := ctxlog.With(ctx, "experiment", label(p, i), "source", p.source)
		out, err := p.experiment.Run(ectx,
			experiment.WithMetrics(a.metrics),
			experiment.WithOutputDir(p.outputDir),
		)
		if err != nil {
			return fmt.Errorf("experiment %s: %w", label(p, i), err)
		}
		status := p.experiment.Status()
		ctxlog.FromContext(ectx).Info("Experiment finished.", "status", status, "outputs", len(out))
		if status == job.StatusFailure {
			failed++
		}
	}
	a.logger.Info("🏁 Execution finished.", "experiments", len(plans), "failed", failed)

	if failed > 0 {
		return fmt.Errorf("%d of %d experiments failed", failed, len(plans))
	}
	a.logger.Debug("App.Run method finished.")
	return nil
}

func label(p planned, i int) string {
	if name := p.experiment.Name(); name != "" {
		return name
	}
	return fmt.Sprintf("#%d", i)
}
