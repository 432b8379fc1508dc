// Package job defines the contract the experiment orchestrator runs against.
//
// A Job does some work and reports a Body of results. Whatever the work is,
// failures are data: Execute turns a returned error or a panic into a
// FAILURE result carrying the error text, so one failing job never takes the
// rest of a sweep down with it.
package job

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/vk/tracesweep/internal/variable"
)

// Body is the free-form payload a job reports.
type Body map[string]any

// Result is the outcome of one job.
type Result struct {
	Status           Status
	Body             Body
	ExperimentalVars variable.Provenance
}

// Job is one schedulable unit of work.
type Job interface {
	ID() string
	Result() *Result
	Run(ctx context.Context) (Body, error)
}

// Kinded is implemented by jobs that report the object_type they were built
// from; it labels logs and metrics.
type Kinded interface {
	Kind() string
}

// Base carries the identity and result every job needs. Embed it by value.
type Base struct {
	idOnce sync.Once
	id     string
	result Result
}

// ID returns a random identifier assigned on first use.
func (b *Base) ID() string {
	b.idOnce.Do(func() { b.id = uuid.NewString() })
	return b.id
}

// Result returns the mutable result record.
func (b *Base) Result() *Result { return &b.result }

// SetExperimentalVars records which parameters varied for this job.
func (b *Base) SetExperimentalVars(vars variable.Provenance) {
	b.result.ExperimentalVars = vars
}

// KindOf returns the job's object_type, or its Go type name.
func KindOf(j Job) string {
	if k, ok := j.(Kinded); ok {
		return k.Kind()
	}
	t := reflect.TypeOf(j)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// Execute runs j and records the outcome on its result. It never fails: a
// returned error or a panic becomes a FAILURE result with the error text.
func Execute(ctx context.Context, j Job) {
	res := j.Result()
	res.Status = StatusInProgress

	body, err := run(ctx, j)
	if err != nil {
		res.Status = StatusFailure
		res.Body = Body{"error": err.Error()}
		return
	}
	res.Status = StatusSuccess
	res.Body = body
}

func run(ctx context.Context, j Job) (body Body, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return j.Run(ctx)
}
