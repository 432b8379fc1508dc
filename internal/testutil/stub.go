package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vk/tracesweep/internal/job"
	"github.com/vk/tracesweep/internal/registry"
	"github.com/vk/tracesweep/internal/variable"
)

// StubClass is the object_type of StubJob.
const StubClass = "STUB"

// StubParams are the parameters of a STUB job.
type StubParams struct {
	Value variable.Deferred[float64] `param:"value"`
	Label string                     `param:"label,optional"`
	Fail  bool                       `param:"fail,optional"`
	Panic bool                       `param:"panic,optional"`
	Sleep time.Duration              `param:"sleep,optional"`
}

// StubJob reports its value as the "score" metric. It can be told to fail,
// panic or sleep, and records when it ran.
type StubJob struct {
	job.Base

	Value variable.Deferred[float64] `param:"value"`
	Label string                     `param:"label"`

	fail     bool
	panics   bool
	sleep    time.Duration
	recorder *Recorder
}

// NewStubJob creates a stub job outside of any registry.
func NewStubJob(p StubParams, rec *Recorder) *StubJob {
	return &StubJob{
		Value:    p.Value,
		Label:    p.Label,
		fail:     p.Fail,
		panics:   p.Panic,
		sleep:    p.Sleep,
		recorder: rec,
	}
}

func (*StubJob) Kind() string { return StubClass }

func (j *StubJob) Run(ctx context.Context) (job.Body, error) {
	start := time.Now()
	if j.sleep > 0 {
		select {
		case <-time.After(j.sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	j.recorder.record(j.Label, start, time.Now())

	if j.panics {
		panic("stub job told to panic")
	}
	if j.fail {
		return nil, errors.New("stub job told to fail")
	}
	return job.Body{"score": j.Value.MustGet(), "label": j.Label}, nil
}

// ExecutionRecord holds the start and end times of one job run.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// Recorder collects the execution windows of stub jobs by label.
type Recorder struct {
	mu      sync.Mutex
	records map[string]ExecutionRecord
	order   []string
}

func NewRecorder() *Recorder {
	return &Recorder{records: make(map[string]ExecutionRecord)}
}

func (r *Recorder) record(label string, start, end time.Time) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[label] = ExecutionRecord{Start: start, End: end}
	r.order = append(r.order, label)
}

// Get returns the execution window of the job labelled label.
func (r *Recorder) Get(label string) (ExecutionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[label]
	return rec, ok
}

// Labels returns the labels in the order the jobs finished.
func (r *Recorder) Labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// StubModule registers STUB as a member of the job family. Every job it
// builds reports to Recorder when one is set.
type StubModule struct {
	Recorder *Recorder
}

func (m *StubModule) Register(r *registry.Registry) {
	registry.RegisterMember[job.Job](r, registry.NewClass(StubClass, func(p StubParams) (*StubJob, error) {
		return NewStubJob(p, m.Recorder), nil
	}))
}
