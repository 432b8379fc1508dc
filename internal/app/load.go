package app

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/vk/tracesweep/internal/builder"
	"github.com/vk/tracesweep/internal/ctxlog"
	"github.com/vk/tracesweep/internal/document"
	"github.com/vk/tracesweep/internal/experiment"
	"github.com/vk/tracesweep/internal/fsutil"
	"github.com/vk/tracesweep/internal/variable"
)

// planned is one experiment instance ready to run.
type planned struct {
	source     string
	outputDir  string
	experiment *experiment.Experiment
}

// loadExperiments reads every document under the configured path and builds
// its experiments. A document whose top level sweeps yields one planned entry
// per instance, each with its own output directory.
func (a *App) loadExperiments(ctx context.Context) ([]planned, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading experiment documents...", "document_path", a.config.DocumentPath)

	paths, err := fsutil.ResolveDocuments(a.config.DocumentPath, document.Extensions...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve documents: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no experiment documents found in %s", a.config.DocumentPath)
	}

	var out []planned
	for _, path := range paths {
		exps, err := a.loadDocument(ctx, path)
		if err != nil {
			return nil, err
		}
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		for i, e := range exps {
			p := planned{source: path, experiment: e}
			if a.config.OutputDir != "" {
				p.outputDir = filepath.Join(a.config.OutputDir, stem)
				if len(exps) > 1 {
					p.outputDir = filepath.Join(p.outputDir, fmt.Sprintf("experiment_%d", i))
				}
			}
			out = append(out, p)
		}
		logger.Info("Document loaded.", "path", path, "experiments", len(exps))
	}
	return out, nil
}

func (a *App) loadDocument(ctx context.Context, path string) ([]*experiment.Experiment, error) {
	doc, err := document.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	v, err := variable.Parse(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	built, err := a.builder.BuildType(ctx, reflect.TypeOf(&experiment.Experiment{}), v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	exps, err := builder.Instances[*experiment.Experiment](built)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return exps, nil
}
