package backfill

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/tracesweep/internal/errs"
	"github.com/vk/tracesweep/internal/variable"
)

type model struct {
	Path  string
	Width int `param:"hidden_width"`
}

type trainer struct {
	Model   *model
	Seed    int64
	Metrics map[string]float64
}

type evalModel struct {
	Path  variable.Deferred[string]
	Width variable.Deferred[int64] `param:"hidden_width"`
}

type evaluator struct {
	Model *evalModel
	Seed  variable.Deferred[int64]
	Label string
}

func TestBackfill_FillsNestedFields(t *testing.T) {
	source := &trainer{Model: &model{Path: "/ckpt/7", Width: 64}, Seed: 7}
	target := &evaluator{Model: &evalModel{}, Label: "eval"}

	require.NoError(t, Backfill(target, source))

	assert.Equal(t, "/ckpt/7", target.Model.Path.MustGet())
	assert.Equal(t, int64(64), target.Model.Width.MustGet())
	assert.Equal(t, int64(7), target.Seed.MustGet())
	assert.Equal(t, "eval", target.Label)
}

func TestBackfill_IsIdempotent(t *testing.T) {
	source := &trainer{Model: &model{Path: "/ckpt/1", Width: 8}, Seed: 1}
	target := &evaluator{Model: &evalModel{}}

	require.NoError(t, Backfill(target, source))
	first := *target.Model

	other := &trainer{Model: &model{Path: "/ckpt/2", Width: 16}, Seed: 2}
	require.NoError(t, Backfill(target, other), "a second pass has nothing left to fill")
	assert.Equal(t, first, *target.Model)
	assert.Equal(t, int64(1), target.Seed.MustGet())
}

func TestBackfill_KeepsResolvedFields(t *testing.T) {
	target := &evaluator{
		Model: &evalModel{Path: variable.Resolved("/fixed"), Width: variable.Resolved(int64(3))},
		Seed:  variable.Resolved(int64(99)),
	}
	require.NoError(t, Backfill(target, struct{}{}))
	assert.Equal(t, "/fixed", target.Model.Path.MustGet())
	assert.Equal(t, int64(99), target.Seed.MustGet())
}

func TestBackfill_MissingSourceField(t *testing.T) {
	type partialModel struct{ Path string }
	type partialSource struct{ Model *partialModel }

	target := &evaluator{Model: &evalModel{}}
	err := Backfill(target, &partialSource{Model: &partialModel{Path: "/p"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTypeMismatch))

	var tm *errs.TypeMismatchError
	require.True(t, errors.As(err, &tm))
	assert.Equal(t, "hidden_width", tm.Param)

	// Path was visited before the failing field and keeps its new value.
	assert.Equal(t, "/p", target.Model.Path.MustGet())
	assert.False(t, target.Seed.IsResolved(), "the walk stops at the first failure")
}

func TestBackfill_IncompatibleSourceType(t *testing.T) {
	type wrongSeed struct{ Seed string }
	target := &struct{ Seed variable.Deferred[int64] }{}
	err := Backfill(target, wrongSeed{Seed: "seven"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTypeMismatch))
}

func TestBackfill_UndeterminedSource(t *testing.T) {
	source := &struct{ Seed variable.Deferred[int64] }{}
	target := &struct{ Seed variable.Deferred[int64] }{}
	err := Backfill(target, source)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "itself undetermined")
}

func TestBackfill_DeferredSourceAndMapSource(t *testing.T) {
	source := &struct{ Seed variable.Deferred[int64] }{Seed: variable.Resolved(int64(5))}
	target := &struct{ Seed variable.Deferred[int64] }{}
	require.NoError(t, Backfill(target, source))
	assert.Equal(t, int64(5), target.Seed.MustGet())

	mapTarget := &struct {
		Checkpoint variable.Deferred[string] `param:"checkpoint"`
	}{}
	require.NoError(t, Backfill(mapTarget, map[string]any{"CHECKPOINT": "/m"}))
	assert.Equal(t, "/m", mapTarget.Checkpoint.MustGet())
}

type step interface{ Name() string }

type evalStep struct {
	Threshold variable.Deferred[float64] `param:"threshold"`
}

func (*evalStep) Name() string { return "eval" }

type trainStep struct {
	Threshold float64 `param:"threshold"`
}

func (*trainStep) Name() string { return "train" }

func TestBackfill_InterfacesAndSlices(t *testing.T) {
	target := &struct{ Steps []step }{Steps: []step{&evalStep{}, &evalStep{}}}
	source := &struct{ Steps []step }{Steps: []step{&trainStep{Threshold: 0.1}, &trainStep{Threshold: 0.2}}}

	require.NoError(t, Backfill(target, source))
	assert.Equal(t, 0.1, target.Steps[0].(*evalStep).Threshold.MustGet())
	assert.Equal(t, 0.2, target.Steps[1].(*evalStep).Threshold.MustGet())
}

type explicit struct {
	Value variable.Deferred[string]
	calls int
}

func (e *explicit) Backfill(source any) error {
	e.calls++
	s, ok := source.(string)
	if !ok {
		return errors.New("explicit merge wants a string")
	}
	e.Value.Set(s)
	return nil
}

func TestBackfill_UsesBackfiller(t *testing.T) {
	target := &explicit{}
	require.NoError(t, Backfill(target, "direct"))
	assert.Equal(t, "direct", target.Value.MustGet())
	assert.Equal(t, 1, target.calls)
}

func TestBackfill_RejectsNonPointer(t *testing.T) {
	assert.Error(t, Backfill(evaluator{}, trainer{}))
	var nilTarget *evaluator
	assert.Error(t, Backfill(nilTarget, trainer{}))
}

func TestBackfill_Cycles(t *testing.T) {
	type node struct {
		Next  *node
		Value variable.Deferred[int]
	}
	n := &node{}
	n.Next = n
	require.NoError(t, Backfill(n, map[string]any{"value": 4}))
	assert.Equal(t, 4, n.Value.MustGet())
}
