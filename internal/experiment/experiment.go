// Package experiment runs experiments: ordered steps of jobs, where the
// winners of one step supply the undetermined parameters of the next.
//
// A Step runs its jobs in batches on a bounded worker pool and, when it has a
// comparison criterion, keeps the best job. An Experiment chains steps and
// stops at the first step that ends FAILURE. A job that fails is recorded on
// its result; only problems with the experiment itself (mismatched winners,
// failed backfill, unwritable output) are returned as errors.
package experiment

import (
	"context"
	"fmt"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vk/tracesweep/internal/ctxlog"
	"github.com/vk/tracesweep/internal/job"
	"github.com/vk/tracesweep/internal/variable"
)

// ExperimentClass is the object_type of an experiment in a document.
const ExperimentClass = "EXPERIMENT"

// Params are the parameters of an EXPERIMENT definition.
type Params struct {
	Name      string  `param:"name,optional"`
	Steps     []*Step `param:"steps"`
	OutputDir string  `param:"output_dir,optional"`
}

// Experiment is an ordered list of steps.
type Experiment struct {
	name      string
	steps     []*Step
	outputDir string
	status    job.Status
	vars      variable.Provenance
}

// New creates an experiment.
func New(p Params) (*Experiment, error) {
	if len(p.Steps) == 0 {
		return nil, fmt.Errorf("experiment needs at least one step")
	}
	for i, s := range p.Steps {
		if s == nil {
			return nil, fmt.Errorf("step %d is null", i)
		}
	}
	return &Experiment{name: p.Name, steps: p.Steps, outputDir: p.OutputDir}, nil
}

// SetExperimentalVars records which parameters varied for this experiment
// when the document sweeps at the top level.
func (e *Experiment) SetExperimentalVars(vars variable.Provenance) { e.vars = vars }

// ExperimentalVars returns the parameters that varied for this experiment.
func (e *Experiment) ExperimentalVars() variable.Provenance { return e.vars }

func (e *Experiment) Name() string       { return e.name }
func (e *Experiment) Steps() []*Step     { return e.steps }
func (e *Experiment) Status() job.Status { return e.status }

// OutputDir returns the directory named by the document, which may be empty.
func (e *Experiment) OutputDir() string { return e.outputDir }

// Run runs the steps in order, passing each step's output to the next as its
// prior winners. It stops after a step that ends FAILURE and returns that
// step's output. Step i writes its results to step_<i> under the output
// directory: the experiment's own, else the one given by WithOutputDir.
func (e *Experiment) Run(ctx context.Context, opts ...RunOption) (out []job.Job, err error) {
	cfg := newRunConfig(opts)
	dir := e.outputDir
	if dir == "" {
		dir = cfg.outputDir
	}

	if e.status != job.StatusNotStarted {
		return nil, fmt.Errorf("experiment %s: %w", e.label(), ErrAlreadyRun)
	}

	ctx, span := tracer.Start(ctx, "experiment.Run",
		trace.WithAttributes(
			attribute.String("experiment.name", e.label()),
			attribute.Int("experiment.steps", len(e.steps)),
		),
	)
	defer span.End()

	logger := ctxlog.FromContext(ctx).With("experiment", e.label())
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Info("Experiment starting.", "steps", len(e.steps), "output_dir", dir)

	e.status = job.StatusInProgress
	defer func() {
		if err != nil {
			e.status = job.StatusFailure
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if e.status == job.StatusFailure {
			span.SetStatus(codes.Error, "a step failed")
		} else {
			span.SetStatus(codes.Ok, "")
		}
		if dir != "" {
			if werr := writeJSON(filepath.Join(dir, experimentResultsFile), e.Record()); werr != nil && err == nil {
				err = werr
			}
		}
	}()

	var prior []job.Job
	for i, s := range e.steps {
		stepDir := ""
		if dir != "" {
			stepDir = filepath.Join(dir, fmt.Sprintf("step_%d", i))
		}
		stepCtx := ctxlog.With(ctx, "step_index", i)

		out, err = s.Run(stepCtx, stepDir, prior, opts...)
		if err != nil {
			return nil, fmt.Errorf("experiment %s, step %d: %w", e.label(), i, err)
		}
		if s.Status() == job.StatusFailure {
			logger.Warn("Experiment stopped at a failed step.", "step_index", i)
			e.status = job.StatusFailure
			return out, nil
		}
		prior = out
	}

	e.status = job.StatusSuccess
	logger.Info("Experiment finished.", "status", e.status)
	return out, nil
}

// ExperimentRecord is the persisted summary of an experiment.
type ExperimentRecord struct {
	Name             string         `json:"name,omitempty"`
	Status           job.Status     `json:"status"`
	ExperimentalVars map[string]any `json:"experimental_vars,omitempty"`
	Steps            []StepSummary  `json:"steps"`
}

// StepSummary is one step in an ExperimentRecord.
type StepSummary struct {
	Name      string     `json:"name,omitempty"`
	Status    job.Status `json:"status"`
	Jobs      int        `json:"jobs"`
	BestJobID string     `json:"best_job_id,omitempty"`
}

// Record returns the persisted summary of the experiment.
func (e *Experiment) Record() ExperimentRecord {
	rec := ExperimentRecord{
		Name:             e.name,
		Status:           e.status,
		ExperimentalVars: jsonSafeMap(e.vars),
		Steps:            make([]StepSummary, 0, len(e.steps)),
	}
	for _, s := range e.steps {
		rec.Steps = append(rec.Steps, StepSummary{
			Name:      s.name,
			Status:    s.status,
			Jobs:      len(s.jobs),
			BestJobID: bestID(s.best),
		})
	}
	return rec
}

func (e *Experiment) label() string {
	if e.name != "" {
		return e.name
	}
	return ExperimentClass
}
