package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/tracesweep/internal/registry"
)

type unresolvableParams struct {
	Source io.Reader `param:"source"`
}

// unresolvableModule registers a class whose parameter has no family, which
// fails registry validation inside app.NewApp.
type unresolvableModule struct{}

func (unresolvableModule) Register(r *registry.Registry) {
	r.RegisterClass(registry.NewClass("UNRESOLVABLE", func(p unresolvableParams) (*unresolvableParams, error) {
		return &p, nil
	}))
}

func writeDocument(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600), "failed to set up test file")
	return path
}

func TestRun_PanicRecovery(t *testing.T) {
	t.Parallel()

	path := writeDocument(t, "main.yaml", "object_type: EXPERIMENT\nsteps: []\n")
	out := &bytes.Buffer{}

	runErr := run(context.Background(), out, []string{path}, unresolvableModule{})

	require.Error(t, runErr, "run() should have returned an error after recovering from a panic")
	errStr := runErr.Error()
	require.True(t, strings.Contains(errStr, "application startup panicked"), "The error message should indicate that a panic was recovered.")
	require.True(t, strings.Contains(errStr, "no family registered"), "The error message should contain the underlying reason for the panic.")
}

func TestRun_Quadratic(t *testing.T) {
	t.Parallel()

	path := writeDocument(t, "quadratic.yaml", `
object_type: EXPERIMENT
name: quadratic
steps:
  - comparison_criterion: {metric: loss, direction: MIN}
    jobs:
      object_type: QUADRATIC_FIT
      x: {"*": [1, 3, 5]}
  - jobs:
      object_type: QUADRATIC_SCORE
      x: "?"
      checkpoint: "?"
`)
	results := t.TempDir()
	out := &bytes.Buffer{}

	err := run(context.Background(), out, []string{"--output-dir", results, "--log-format", "text", path})

	require.NoError(t, err, "logs:\n%s", out.String())
	require.FileExists(t, filepath.Join(results, "quadratic", "experiment_results.json"))
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	out := &bytes.Buffer{}

	err := run(context.Background(), out, []string{"-h"})

	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}

	err := run(context.Background(), out, []string{"--this-is-not-a-valid-flag"})

	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "unknown flag: --this-is-not-a-valid-flag")
}
