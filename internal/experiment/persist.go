package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/vk/tracesweep/internal/ctxlog"
	"github.com/vk/tracesweep/internal/job"
	"github.com/vk/tracesweep/internal/variable"
)

const (
	resultsFile           = "step_results.json"
	experimentResultsFile = "experiment_results.json"
)

// StepRecord is the persisted form of a finished step.
type StepRecord struct {
	Name      string         `json:"name,omitempty"`
	Status    job.Status     `json:"status"`
	Criterion *job.Criterion `json:"comparison_criterion,omitempty"`
	BestJobID string         `json:"best_job_id,omitempty"`
	Jobs      []JobRecord    `json:"jobs"`
}

// JobRecord is the persisted form of one job result.
type JobRecord struct {
	ID               string         `json:"id"`
	Kind             string         `json:"object_type"`
	Status           job.Status     `json:"status"`
	ExperimentalVars map[string]any `json:"experimental_vars,omitempty"`
	Body             map[string]any `json:"body,omitempty"`
}

// Record returns the persisted form of the step in its current state.
func (s *Step) Record() StepRecord {
	rec := StepRecord{
		Name:      s.name,
		Status:    s.status,
		Criterion: s.criterion,
		BestJobID: bestID(s.best),
		Jobs:      make([]JobRecord, 0, len(s.jobs)),
	}
	for _, j := range s.jobs {
		res := j.Result()
		rec.Jobs = append(rec.Jobs, JobRecord{
			ID:               j.ID(),
			Kind:             job.KindOf(j),
			Status:           res.Status,
			ExperimentalVars: jsonSafeMap(res.ExperimentalVars),
			Body:             jsonSafeMap(res.Body),
		})
	}
	return rec
}

func (s *Step) persist(path string) error {
	return writeJSON(path, s.Record())
}

// persistQuiet writes what is known of an interrupted step. Failures are
// only logged because the interruption is the error worth reporting.
func (s *Step) persistQuiet(ctx context.Context, outputDir string) {
	if outputDir == "" {
		return
	}
	if err := s.persist(filepath.Join(outputDir, resultsFile)); err != nil {
		ctxlog.FromContext(ctx).Warn("Could not write step results.", "error", err)
	}
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func jsonSafeMap[M ~map[string]any](m M) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Describe(v)
	}
	return out
}

// Describe returns v unchanged when it encodes as JSON. Jobs are replaced by
// their id and object_type, and anything else that does not encode by its
// printed form.
func Describe(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case job.Job:
		return map[string]any{"id": x.ID(), "object_type": job.KindOf(x)}
	case variable.Provenance:
		return jsonSafeMap(x)
	case map[string]any:
		return jsonSafeMap(x)
	case job.Body:
		return jsonSafeMap(x)
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Func || rv.Kind() == reflect.Chan {
		return fmt.Sprint(v)
	}
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprint(v)
	}
	return v
}
