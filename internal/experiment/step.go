package experiment

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/vk/tracesweep/internal/backfill"
	"github.com/vk/tracesweep/internal/ctxlog"
	"github.com/vk/tracesweep/internal/errs"
	"github.com/vk/tracesweep/internal/job"
	"github.com/vk/tracesweep/internal/variable"
)

// StepClass is the object_type of a step in a document.
const StepClass = "STEP"

// ErrAlreadyRun is returned when a step or an experiment is run twice.
var ErrAlreadyRun = errors.New("already run")

// StepParams are the parameters of a STEP definition. jobs may be a single
// job, a list or a sweep; the step does not fan out over it.
type StepParams struct {
	Name      string                     `param:"name,optional"`
	Jobs      variable.Branches[job.Job] `param:"jobs"`
	Criterion *job.Criterion             `param:"comparison_criterion,optional"`
	FailFast  bool                       `param:"fail_fast,optional"`
	MaxJobs   int                        `param:"max_jobs" default:"1"`
}

// Step runs a group of jobs in batches and picks a winner.
type Step struct {
	name      string
	jobs      []job.Job
	criterion *job.Criterion
	failFast  bool
	maxJobs   int

	status job.Status
	best   job.Job
}

// NewStep creates a step from engine-built parameters. The provenance of
// every job branch is merged into that job's experimental vars.
func NewStep(p StepParams) (*Step, error) {
	if p.MaxJobs < 1 {
		return nil, fmt.Errorf("max_jobs must be at least 1, got %d", p.MaxJobs)
	}
	jobs := p.Jobs.Values()
	for i, j := range jobs {
		if j == nil {
			return nil, fmt.Errorf("job %d is null", i)
		}
		stamp(j, p.Jobs.ProvenanceAt(i))
	}
	return &Step{
		name:      p.Name,
		jobs:      jobs,
		criterion: p.Criterion,
		failFast:  p.FailFast,
		maxJobs:   p.MaxJobs,
	}, nil
}

// StepOption configures a step created by NewStepFromVariable.
type StepOption func(*StepParams)

// WithFailFast stops the step after the first batch with a failed job.
func WithFailFast(on bool) StepOption {
	return func(p *StepParams) { p.FailFast = on }
}

// WithMaxJobs sets the batch size and the number of concurrent jobs.
func WithMaxJobs(n int) StepOption {
	return func(p *StepParams) { p.MaxJobs = n }
}

// WithStepName names the step in logs and persisted results.
func WithStepName(name string) StepOption {
	return func(p *StepParams) { p.Name = name }
}

// NewStepFromVariable creates a step from already built jobs: a Literal
// holding one job, or a MultiVariable or Experimental of them. Sweep
// provenance is stamped onto the jobs.
func NewStepFromVariable(v variable.Variable, criterion *job.Criterion, opts ...StepOption) (*Step, error) {
	values := variable.Values(v)
	jobs := make([]job.Job, 0, len(values))
	for i, value := range values {
		j, ok := value.(job.Job)
		if !ok {
			return nil, &errs.TypeMismatchError{
				Class:    StepClass,
				Param:    fmt.Sprintf("jobs[%d]", i),
				Expected: "job.Job",
				Actual:   fmt.Sprintf("%T", value),
			}
		}
		jobs = append(jobs, j)
	}

	var prov []variable.Provenance
	if x, ok := v.(*variable.Experimental); ok && len(x.Values) == len(jobs) {
		prov = make([]variable.Provenance, len(jobs))
		for i := range jobs {
			prov[i] = x.ProvenanceAt(i)
		}
	}
	branches, err := variable.NewBranches(jobs, prov)
	if err != nil {
		return nil, err
	}

	p := StepParams{Jobs: branches, Criterion: criterion, MaxJobs: 1}
	for _, opt := range opts {
		opt(&p)
	}
	return NewStep(p)
}

func stamp(j job.Job, vars variable.Provenance) {
	if len(vars) == 0 {
		return
	}
	res := j.Result()
	merged := res.ExperimentalVars.Clone()
	if merged == nil {
		merged = make(variable.Provenance, len(vars))
	}
	for k, v := range vars {
		merged[k] = v
	}
	res.ExperimentalVars = merged
}

// Name returns the configured name, which may be empty.
func (s *Step) Name() string { return s.name }

// Jobs returns the jobs of the step in order.
func (s *Step) Jobs() []job.Job { return s.jobs }

// Status returns the lifecycle state of the step.
func (s *Step) Status() job.Status { return s.status }

// Best returns the winning job, or nil when no criterion is set or the step
// has not run.
func (s *Step) Best() job.Job { return s.best }

// Criterion returns the comparison criterion, which may be nil.
func (s *Step) Criterion() *job.Criterion { return s.criterion }

// Run executes the step. prior are the winners of the previous step; they
// backfill the undetermined parameters of this step's jobs. One winner fills
// every job, an equal number fills them positionally, and any other count is
// a type mismatch.
//
// Jobs run in batches of max_jobs, each batch concurrently. With fail_fast set,
// no further batch starts once a job has failed, and the step ends FAILURE.
// Job failures are otherwise data: the step ends SUCCESS.
//
// With a criterion the returned slice holds the best job; without one it
// holds every job. When outputDir is not empty the step results are written
// to step_results.json inside it.
func (s *Step) Run(ctx context.Context, outputDir string, prior []job.Job, opts ...RunOption) (out []job.Job, err error) {
	cfg := newRunConfig(opts)
	logger := ctxlog.FromContext(ctx).With("step", s.label())

	if s.status != job.StatusNotStarted {
		return nil, fmt.Errorf("step %s: %w", s.label(), ErrAlreadyRun)
	}

	ctx, span := tracer.Start(ctx, "experiment.Step",
		trace.WithAttributes(
			attribute.String("step.name", s.label()),
			attribute.Int("step.jobs", len(s.jobs)),
			attribute.Int("step.max_jobs", s.maxJobs),
		),
	)
	defer span.End()
	defer func() {
		cfg.metrics.ObserveStep(s.status.String())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		if s.status == job.StatusFailure {
			span.SetStatus(codes.Error, "step failed")
			return
		}
		span.SetStatus(codes.Ok, "")
	}()

	s.status = job.StatusInProgress
	logger.Debug("Step: Starting run.", "jobs", len(s.jobs), "prior", len(prior))

	if err := s.backfill(prior); err != nil {
		s.status = job.StatusFailure
		return nil, err
	}

	failed := false
	for start := 0; start < len(s.jobs); start += s.maxJobs {
		if err := ctx.Err(); err != nil {
			s.status = job.StatusFailure
			s.persistQuiet(ctx, outputDir)
			return nil, err
		}
		end := min(start+s.maxJobs, len(s.jobs))
		batch := s.jobs[start:end]
		s.runBatch(ctx, batch, cfg)

		for _, j := range batch {
			if j.Result().Status == job.StatusFailure {
				failed = true
			}
			if s.criterion != nil && (s.best == nil || s.criterion.Better(j, s.best)) {
				s.best = j
			}
		}
		logger.Debug("Step: Batch finished.", "from", start, "to", end, "failed", failed)

		if failed && s.failFast {
			logger.Info("Step: Stopping after failed batch.", "remaining", len(s.jobs)-end)
			break
		}
	}

	if failed && s.failFast {
		s.status = job.StatusFailure
	} else {
		s.status = job.StatusSuccess
	}

	if outputDir != "" {
		if err := s.persist(filepath.Join(outputDir, resultsFile)); err != nil {
			return nil, err
		}
	}

	logger.Info("Step finished.", "status", s.status, "best", bestID(s.best))
	if s.criterion == nil {
		return s.jobs, nil
	}
	if s.best == nil {
		return nil, nil
	}
	return []job.Job{s.best}, nil
}

func (s *Step) backfill(prior []job.Job) error {
	if len(prior) == 0 {
		return nil
	}
	if len(prior) != 1 && len(prior) != len(s.jobs) {
		return &errs.TypeMismatchError{
			Class:    StepClass,
			Param:    "jobs",
			Expected: fmt.Sprintf("1 or %d prior jobs", len(s.jobs)),
			Actual:   fmt.Sprintf("%d prior jobs", len(prior)),
			Reason:   "prior winners cannot be matched to the jobs of this step",
		}
	}
	for i, j := range s.jobs {
		source := prior[0]
		if len(prior) > 1 {
			source = prior[i]
		}
		if err := backfill.Backfill(j, source); err != nil {
			return fmt.Errorf("step %s, job %d: %w", s.label(), i, err)
		}
	}
	return nil
}

// runBatch runs every job of batch concurrently and waits for all of them.
func (s *Step) runBatch(ctx context.Context, batch []job.Job, cfg *runConfig) {
	var g errgroup.Group
	g.SetLimit(s.maxJobs)
	for _, j := range batch {
		g.Go(func() error {
			runJob(ctx, j, cfg)
			return nil
		})
	}
	_ = g.Wait()
}

func runJob(ctx context.Context, j job.Job, cfg *runConfig) {
	kind := job.KindOf(j)
	ctx, span := tracer.Start(ctx, "experiment.Job",
		trace.WithAttributes(
			attribute.String("job.id", j.ID()),
			attribute.String("job.kind", kind),
		),
	)
	defer span.End()

	logger := ctxlog.FromContext(ctx).With("job", j.ID(), "kind", kind)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Job: Starting.")

	start := time.Now()
	job.Execute(ctx, j)
	elapsed := time.Since(start)

	res := j.Result()
	cfg.metrics.ObserveJob(kind, res.Status.String(), elapsed)
	span.SetAttributes(attribute.String("job.status", res.Status.String()))
	if res.Status == job.StatusFailure {
		msg, _ := res.Body["error"].(string)
		span.SetStatus(codes.Error, msg)
		logger.Warn("Job failed.", "error", msg, "elapsed", elapsed)
		return
	}
	span.SetStatus(codes.Ok, "")
	logger.Debug("Job: Finished.", "status", res.Status, "elapsed", elapsed)
}

func (s *Step) label() string {
	if s.name != "" {
		return s.name
	}
	return StepClass
}

func bestID(j job.Job) string {
	if j == nil {
		return ""
	}
	return j.ID()
}
