package quadratic

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/tracesweep/internal/builder"
	"github.com/vk/tracesweep/internal/document"
	"github.com/vk/tracesweep/internal/experiment"
	"github.com/vk/tracesweep/internal/job"
	"github.com/vk/tracesweep/internal/registry"
	"github.com/vk/tracesweep/internal/testutil"
	"github.com/vk/tracesweep/internal/variable"
)

const fitThenScore = `
object_type: EXPERIMENT
steps:
  - max_jobs: 3
    comparison_criterion: {metric: loss, direction: MIN}
    jobs:
      object_type: QUADRATIC_FIT
      x: {"*": [1, 2.5, 4, 6]}
  - jobs:
      object_type: QUADRATIC_SCORE
      x: "?"
      checkpoint: "?"
`

func TestFitThenScore(t *testing.T) {
	ctx, _ := testutil.Context(t)
	doc, err := document.ParseYAML([]byte(fitThenScore), "quadratic.yaml")
	require.NoError(t, err)
	v, err := variable.Parse(doc)
	require.NoError(t, err)

	reg := registry.New(experiment.Module{}, &Module{})
	require.NoError(t, reg.Validate(ctx))
	built, err := builder.New(reg).BuildType(ctx, reflect.TypeOf(&experiment.Experiment{}), v)
	require.NoError(t, err)
	exps, err := builder.Instances[*experiment.Experiment](built)
	require.NoError(t, err)
	require.Len(t, exps, 1)

	out, err := exps[0].Run(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)

	body := out[0].Result().Body
	assert.Equal(t, 2.5, body["x"], "the fit closest to the target wins")
	assert.Equal(t, "quadratic-x2.5", body["checkpoint"])
	assert.Equal(t, -0.25, body["score"])

	best := exps[0].Steps()[0].Best()
	assert.Equal(t, variable.Provenance{"x": 2.5}, best.Result().ExperimentalVars)
}

func TestScore_NeedsBackfill(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s, err := NewScore(ScoreParams{Target: 3})
	require.NoError(t, err)

	job.Execute(ctx, s)
	assert.Equal(t, job.StatusFailure, s.Result().Status)
	assert.Equal(t, "x was never determined", s.Result().Body["error"])
}

func TestFit_Loss(t *testing.T) {
	ctx, _ := testutil.Context(t)
	f, err := NewFit(FitParams{X: 5, Target: 3})
	require.NoError(t, err)

	body, err := f.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4.0, body["loss"])
	assert.Equal(t, "quadratic-x5", f.Checkpoint)
}
