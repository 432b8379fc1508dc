package experiment

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/tracesweep/internal/errs"
	"github.com/vk/tracesweep/internal/job"
	"github.com/vk/tracesweep/internal/metrics"
	"github.com/vk/tracesweep/internal/testutil"
	"github.com/vk/tracesweep/internal/variable"
)

func stubs(rec *testutil.Recorder, values ...float64) []job.Job {
	jobs := make([]job.Job, len(values))
	for i, v := range values {
		jobs[i] = testutil.NewStubJob(testutil.StubParams{
			Value: variable.Resolved(v),
			Label: string(rune('a' + i)),
		}, rec)
	}
	return jobs
}

func newStep(t *testing.T, jobs []job.Job, c *job.Criterion, opts ...StepOption) *Step {
	t.Helper()
	branches, err := variable.NewBranches(jobs, nil)
	require.NoError(t, err)
	p := StepParams{Jobs: branches, Criterion: c, MaxJobs: 1}
	for _, opt := range opts {
		opt(&p)
	}
	s, err := NewStep(p)
	require.NoError(t, err)
	return s
}

func score(t *testing.T, j job.Job) float64 {
	t.Helper()
	v, ok := job.Metric(j.Result().Body, "score")
	require.True(t, ok, "job %s has no score", j.ID())
	return v
}

func TestStep_ReturnsBestJob(t *testing.T) {
	tests := []struct {
		name      string
		direction job.Direction
		want      float64
	}{
		{"maximize", job.Maximize, 0.8},
		{"minimize", job.Minimize, 0.3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx, _ := testutil.Context(t)
			s := newStep(t, stubs(nil, 0.5, 0.8, 0.3), &job.Criterion{Metric: "score", Direction: tc.direction})

			out, err := s.Run(ctx, "", nil)
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, tc.want, score(t, out[0]))
			assert.Same(t, out[0], s.Best())
			assert.Equal(t, job.StatusSuccess, s.Status())
			for _, j := range s.Jobs() {
				assert.Equal(t, job.StatusSuccess, j.Result().Status)
			}
		})
	}
}

func TestStep_WithoutCriterionReturnsAllJobs(t *testing.T) {
	ctx, _ := testutil.Context(t)
	jobs := stubs(nil, 1, 2, 3)
	s := newStep(t, jobs, nil, WithMaxJobs(3))

	out, err := s.Run(ctx, "", nil)
	require.NoError(t, err)
	assert.Equal(t, jobs, out)
	assert.Nil(t, s.Best())
}

func TestStep_EmptyStep(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s := newStep(t, nil, &job.Criterion{Metric: "score"})

	out, err := s.Run(ctx, "", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, job.StatusSuccess, s.Status())
}

func TestStep_JobFailureIsData(t *testing.T) {
	ctx, _ := testutil.Context(t)
	jobs := stubs(nil, 0.9, 0.4)
	failing := testutil.NewStubJob(testutil.StubParams{Value: variable.Resolved(5.0), Fail: true}, nil)
	jobs = append(jobs, failing)

	s := newStep(t, jobs, &job.Criterion{Metric: "score"})
	out, err := s.Run(ctx, "", nil)
	require.NoError(t, err)

	assert.Equal(t, job.StatusSuccess, s.Status(), "without fail_fast a failed job does not fail the step")
	assert.Equal(t, job.StatusFailure, failing.Result().Status)
	assert.Equal(t, "stub job told to fail", failing.Result().Body["error"])
	require.Len(t, out, 1)
	assert.Equal(t, 0.9, score(t, out[0]))
}

func TestStep_PanickingJobIsCaptured(t *testing.T) {
	ctx, _ := testutil.Context(t)
	j := testutil.NewStubJob(testutil.StubParams{Value: variable.Resolved(1.0), Panic: true}, nil)
	s := newStep(t, []job.Job{j}, nil)

	_, err := s.Run(ctx, "", nil)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailure, j.Result().Status)
	assert.Contains(t, j.Result().Body["error"], "stub job told to panic")
}

func TestStep_FailFastStopsAfterFailedBatch(t *testing.T) {
	ctx, _ := testutil.Context(t)
	jobs := []job.Job{
		testutil.NewStubJob(testutil.StubParams{Value: variable.Resolved(1.0)}, nil),
		testutil.NewStubJob(testutil.StubParams{Value: variable.Resolved(2.0), Fail: true}, nil),
		testutil.NewStubJob(testutil.StubParams{Value: variable.Resolved(3.0)}, nil),
	}
	s := newStep(t, jobs, nil, WithFailFast(true))

	_, err := s.Run(ctx, "", nil)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailure, s.Status())
	assert.Equal(t, job.StatusSuccess, jobs[0].Result().Status)
	assert.Equal(t, job.StatusFailure, jobs[1].Result().Status)
	assert.Equal(t, job.StatusNotStarted, jobs[2].Result().Status, "no batch starts after a failure")
}

func TestStep_BatchesRunConcurrentlyUpToMaxJobs(t *testing.T) {
	ctx, _ := testutil.Context(t)
	rec := testutil.NewRecorder()
	jobs := make([]job.Job, 4)
	for i := range jobs {
		jobs[i] = testutil.NewStubJob(testutil.StubParams{
			Value: variable.Resolved(float64(i)),
			Label: string(rune('a' + i)),
			Sleep: 50 * time.Millisecond,
		}, rec)
	}
	s := newStep(t, jobs, nil, WithMaxJobs(2))

	_, err := s.Run(ctx, "", nil)
	require.NoError(t, err)

	a, _ := rec.Get("a")
	b, _ := rec.Get("b")
	c, _ := rec.Get("c")
	d, _ := rec.Get("d")
	assert.True(t, a.Start.Before(b.End) && b.Start.Before(a.End), "jobs of one batch overlap")
	assert.False(t, c.Start.Before(a.End), "the next batch waits for the previous one")
	assert.False(t, c.Start.Before(b.End), "the next batch waits for the previous one")
	assert.False(t, d.Start.Before(b.End), "the next batch waits for the previous one")
}

func TestStep_BackfillsFromPriorWinners(t *testing.T) {
	ctx, _ := testutil.Context(t)

	t.Run("one winner fills every job", func(t *testing.T) {
		targets := []job.Job{
			testutil.NewStubJob(testutil.StubParams{Label: "x"}, nil),
			testutil.NewStubJob(testutil.StubParams{Label: "y"}, nil),
		}
		s := newStep(t, targets, nil)
		out, err := s.Run(ctx, "", stubs(nil, 0.7))
		require.NoError(t, err)
		for _, j := range out {
			assert.Equal(t, 0.7, score(t, j))
		}
	})

	t.Run("equal counts fill positionally", func(t *testing.T) {
		targets := []job.Job{
			testutil.NewStubJob(testutil.StubParams{}, nil),
			testutil.NewStubJob(testutil.StubParams{}, nil),
		}
		s := newStep(t, targets, nil)
		out, err := s.Run(ctx, "", stubs(nil, 0.1, 0.2))
		require.NoError(t, err)
		assert.Equal(t, 0.1, score(t, out[0]))
		assert.Equal(t, 0.2, score(t, out[1]))
	})

	t.Run("other counts are a type mismatch", func(t *testing.T) {
		targets := stubs(nil, 1, 2, 3)
		s := newStep(t, targets, nil)
		_, err := s.Run(ctx, "", stubs(nil, 0.1, 0.2))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrTypeMismatch))
		assert.Equal(t, job.StatusFailure, s.Status())
		assert.Equal(t, job.StatusNotStarted, targets[0].Result().Status)
	})
}

func TestStep_CannotRunTwice(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s := newStep(t, stubs(nil, 1), nil)
	_, err := s.Run(ctx, "", nil)
	require.NoError(t, err)

	_, err = s.Run(ctx, "", nil)
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestStep_PersistsResults(t *testing.T) {
	ctx, _ := testutil.Context(t)
	dir := filepath.Join(t.TempDir(), "nested", "step_0")

	jobs := stubs(nil, 0.2, 0.6)
	jobs[1].Result().ExperimentalVars = variable.Provenance{"lr": 0.01}
	s := newStep(t, jobs, &job.Criterion{Metric: "score"}, WithStepName("train"))

	_, err := s.Run(ctx, dir, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "step_results.json"))
	require.NoError(t, err)

	var rec StepRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "train", rec.Name)
	assert.Equal(t, job.StatusSuccess, rec.Status)
	assert.Equal(t, jobs[1].ID(), rec.BestJobID)
	require.Len(t, rec.Jobs, 2)
	assert.Equal(t, jobs[0].ID(), rec.Jobs[0].ID)
	assert.Equal(t, "STUB", rec.Jobs[0].Kind)
	assert.Equal(t, map[string]any{"lr": 0.01}, rec.Jobs[1].ExperimentalVars)
	assert.Equal(t, 0.6, rec.Jobs[1].Body["score"])
	assert.Equal(t, "MAX", rec.Criterion.Direction.String())
}

func TestStep_RecordsMetrics(t *testing.T) {
	ctx, _ := testutil.Context(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	jobs := stubs(nil, 1, 2)
	jobs = append(jobs, testutil.NewStubJob(testutil.StubParams{Fail: true}, nil))
	s := newStep(t, jobs, nil)

	_, err := s.Run(ctx, "", nil, WithMetrics(m))
	require.NoError(t, err)

	count, err := promtest.GatherAndCount(reg, "tracesweep_experiment_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per status")
	count, err = promtest.GatherAndCount(reg, "tracesweep_experiment_steps_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewStepFromVariable_StampsProvenance(t *testing.T) {
	jobs := stubs(nil, 1, 2)
	sweep, err := variable.NewExperimental(
		[]variable.Variable{variable.Literal{Value: jobs[0]}, variable.Literal{Value: jobs[1]}},
		[]variable.Provenance{{"seed": 1}, {"seed": 2}},
	)
	require.NoError(t, err)

	s, err := NewStepFromVariable(sweep, nil, WithMaxJobs(2))
	require.NoError(t, err)
	require.Len(t, s.Jobs(), 2)
	assert.Equal(t, variable.Provenance{"seed": 1}, jobs[0].Result().ExperimentalVars)
	assert.Equal(t, variable.Provenance{"seed": 2}, jobs[1].Result().ExperimentalVars)
}

func TestNewStepFromVariable_RejectsNonJobs(t *testing.T) {
	_, err := NewStepFromVariable(variable.Literal{Value: "not a job"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTypeMismatch))
}

func TestNewStep_RejectsBadMaxJobs(t *testing.T) {
	_, err := NewStep(StepParams{MaxJobs: 0})
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	j := stubs(nil, 1)[0]
	assert.Equal(t, map[string]any{"id": j.ID(), "object_type": "STUB"}, Describe(j))
	assert.Equal(t, 1.5, Describe(1.5))
	assert.Equal(t, "3", Describe(variable.Resolved(3)).(variable.Deferred[int]).String())
	assert.IsType(t, "", Describe(make(chan int)))
}
