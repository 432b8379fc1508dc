// Package env_vars provides the ENV_VARS job, which captures process
// environment variables into the job's results.
package env_vars

import (
	"context"
	"os"
	"strings"

	"github.com/vk/tracesweep/internal/ctxlog"
	"github.com/vk/tracesweep/internal/job"
	"github.com/vk/tracesweep/internal/registry"
)

// Class is the object_type of the job.
const Class = "ENV_VARS"

// Module registers ENV_VARS.
type Module struct{}

// Params selects which variables are captured. With neither set, every
// variable is captured.
type Params struct {
	Names  []string `param:"names,optional"`
	Prefix string   `param:"prefix,optional"`
}

// Job reports the selected environment variables under "all".
type Job struct {
	job.Base

	names  []string
	prefix string
}

func New(p Params) (*Job, error) {
	return &Job{names: p.Names, prefix: p.Prefix}, nil
}

func (*Job) Kind() string { return Class }

func (j *Job) Run(ctx context.Context) (job.Body, error) {
	envMap := make(map[string]any)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 && j.wants(pair[0]) {
			envMap[pair[0]] = pair[1]
		}
	}
	ctxlog.FromContext(ctx).Debug("Environment captured.", "count", len(envMap))
	return job.Body{"all": envMap}, nil
}

func (j *Job) wants(name string) bool {
	if len(j.names) == 0 && j.prefix == "" {
		return true
	}
	for _, n := range j.names {
		if n == name {
			return true
		}
	}
	return j.prefix != "" && strings.HasPrefix(name, j.prefix)
}

// Register registers ENV_VARS as a member of the job family.
func (m *Module) Register(r *registry.Registry) {
	registry.RegisterMember[job.Job](r, registry.NewClass(Class, New))
}
