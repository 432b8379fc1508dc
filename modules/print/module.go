// Package print provides the PRINT job, which logs and echoes its arguments.
package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/vk/tracesweep/internal/ctxlog"
	"github.com/vk/tracesweep/internal/job"
	"github.com/vk/tracesweep/internal/registry"
)

// Class is the object_type of the job.
const Class = "PRINT"

// Module registers PRINT. Out defaults to os.Stdout.
type Module struct {
	Out io.Writer
}

// Params defines the arguments of a PRINT job.
type Params struct {
	Message string            `param:"message,optional"`
	Values  map[string]string `param:"values,optional"`
}

// Job prints its message and values when run.
type Job struct {
	job.Base

	Message string            `param:"message"`
	Values  map[string]string `param:"values"`

	out io.Writer
}

func (*Job) Kind() string { return Class }

// Run writes the message and the values, sorted by key, and reports them back.
func (j *Job) Run(ctx context.Context) (job.Body, error) {
	ctxlog.FromContext(ctx).Info("Printing input", "message", j.Message, "values", len(j.Values))

	if j.Message != "" {
		fmt.Fprintf(j.out, "      %s\n", j.Message)
	}
	if j.Values == nil {
		fmt.Fprintln(j.out, "      (null)")
	}

	keys := make([]string, 0, len(j.Values))
	for k := range j.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make(map[string]any, len(keys))
	for _, k := range keys {
		fmt.Fprintf(j.out, "      %s = %q\n", k, j.Values[k])
		values[k] = j.Values[k]
	}

	return job.Body{"message": j.Message, "values": values}, nil
}

// Register registers PRINT as a member of the job family.
func (m *Module) Register(r *registry.Registry) {
	out := m.Out
	if out == nil {
		out = os.Stdout
	}
	registry.RegisterMember[job.Job](r, registry.NewClass(Class, func(p Params) (*Job, error) {
		return &Job{Message: p.Message, Values: p.Values, out: out}, nil
	}))
}
