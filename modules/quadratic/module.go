// Package quadratic provides a toy objective for trying out sweeps.
//
// QUADRATIC_FIT "trains" at a point x and reports the loss (x-target)^2 along
// with a checkpoint name. QUADRATIC_SCORE evaluates a point; its x and
// checkpoint are usually "?" so that they are filled from the best fit of the
// previous step.
package quadratic

import (
	"context"
	"fmt"

	"github.com/vk/tracesweep/internal/ctxlog"
	"github.com/vk/tracesweep/internal/job"
	"github.com/vk/tracesweep/internal/registry"
	"github.com/vk/tracesweep/internal/variable"
)

const (
	FitClass   = "QUADRATIC_FIT"
	ScoreClass = "QUADRATIC_SCORE"
)

// Module registers QUADRATIC_FIT and QUADRATIC_SCORE.
type Module struct{}

type FitParams struct {
	X      float64 `param:"x"`
	Target float64 `param:"target" default:"3"`
}

// Fit reports the squared distance of X from Target.
type Fit struct {
	job.Base

	X          float64 `param:"x"`
	Checkpoint string  `param:"checkpoint"`

	target float64
}

func NewFit(p FitParams) (*Fit, error) {
	return &Fit{X: p.X, target: p.Target}, nil
}

func (*Fit) Kind() string { return FitClass }

func (f *Fit) Run(ctx context.Context) (job.Body, error) {
	loss := (f.X - f.target) * (f.X - f.target)
	f.Checkpoint = fmt.Sprintf("quadratic-x%g", f.X)
	ctxlog.FromContext(ctx).Debug("Fit finished.", "x", f.X, "loss", loss)
	return job.Body{"loss": loss, "x": f.X, "checkpoint": f.Checkpoint}, nil
}

type ScoreParams struct {
	X          variable.Deferred[float64] `param:"x"`
	Checkpoint variable.Deferred[string]  `param:"checkpoint"`
	Target     float64                    `param:"target" default:"3"`
}

// Score evaluates a fitted point; higher is better.
type Score struct {
	job.Base

	X          variable.Deferred[float64] `param:"x"`
	Checkpoint variable.Deferred[string]  `param:"checkpoint"`

	target float64
}

func NewScore(p ScoreParams) (*Score, error) {
	return &Score{X: p.X, Checkpoint: p.Checkpoint, target: p.Target}, nil
}

func (*Score) Kind() string { return ScoreClass }

func (s *Score) Run(ctx context.Context) (job.Body, error) {
	x, ok := s.X.Get()
	if !ok {
		return nil, fmt.Errorf("x was never determined")
	}
	checkpoint, ok := s.Checkpoint.Get()
	if !ok {
		return nil, fmt.Errorf("checkpoint was never determined")
	}
	score := -(x - s.target) * (x - s.target)
	ctxlog.FromContext(ctx).Debug("Score finished.", "checkpoint", checkpoint, "score", score)
	return job.Body{"score": score, "x": x, "checkpoint": checkpoint}, nil
}

func (m *Module) Register(r *registry.Registry) {
	registry.RegisterMember[job.Job](r, registry.NewClass(FitClass, NewFit))
	registry.RegisterMember[job.Job](r, registry.NewClass(ScoreClass, NewScore))
}
