package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/tracesweep/internal/registry"
	"github.com/vk/tracesweep/internal/testutil"
)

const sweepDoc = `
object_type: EXPERIMENT
name: sweep
steps:
  - max_jobs: 2
    comparison_criterion: {metric: score, direction: MAX}
    jobs:
      object_type: STUB
      value: {"*": [0.2, 0.9, 0.4]}
  - jobs:
      object_type: STUB
      value: "?"
      label: eval
`

const twoExperimentsDoc = `
object_type: EXPERIMENT
name: {"*": [first, second]}
steps:
  - jobs:
      object_type: STUB
      value: 1
`

const failingDoc = `
object_type: EXPERIMENT
name: broken
steps:
  - fail_fast: true
    jobs:
      object_type: STUB
      value: 1
      fail: true
`

// newTestApp writes the given documents into a temp directory and returns an
// App configured to run them with the stub module.
func newTestApp(t *testing.T, docs map[string]string) (*App, *testutil.SafeBuffer, string) {
	t.Helper()
	dir := t.TempDir()
	for name, src := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	out := filepath.Join(t.TempDir(), "results")

	cfg, err := NewConfig(Config{DocumentPath: dir, OutputDir: out, LogLevel: "debug"})
	require.NoError(t, err)

	buf := &testutil.SafeBuffer{}
	a := NewApp(buf, cfg, &testutil.StubModule{})
	t.Cleanup(func() {
		if os.Getenv(testutil.LogsEnv) == "true" {
			t.Logf("--- Logs for %s ---\n%s", t.Name(), buf.String())
		}
	})
	return a, buf, out
}

func TestApp_RunWritesResults(t *testing.T) {
	a, buf, out := newTestApp(t, map[string]string{"sweep.yaml": sweepDoc})

	require.NoError(t, a.Run(context.Background()))

	assert.FileExists(t, filepath.Join(out, "sweep", "experiment_results.json"))
	assert.FileExists(t, filepath.Join(out, "sweep", "step_0", "step_results.json"))
	assert.FileExists(t, filepath.Join(out, "sweep", "step_1", "step_results.json"))
	assert.Contains(t, buf.String(), "Execution finished.")
}

func TestApp_SweptExperimentsGetOwnDirectories(t *testing.T) {
	a, _, out := newTestApp(t, map[string]string{"names.yml": twoExperimentsDoc})

	plans, err := a.loadExperiments(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "first", plans[0].experiment.Name())
	assert.Equal(t, "second", plans[1].experiment.Name())
	assert.Equal(t, filepath.Join(out, "names", "experiment_0"), plans[0].outputDir)
	assert.Equal(t, filepath.Join(out, "names", "experiment_1"), plans[1].outputDir)

	require.NoError(t, a.Run(context.Background()))
	assert.FileExists(t, filepath.Join(out, "names", "experiment_1", "experiment_results.json"))
}

func TestApp_FailedExperimentIsReported(t *testing.T) {
	a, _, _ := newTestApp(t, map[string]string{
		"ok.yaml":     sweepDoc,
		"broken.yaml": failingDoc,
	})

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 experiments failed")
}

func TestApp_BadDocumentAbortsRun(t *testing.T) {
	a, _, _ := newTestApp(t, map[string]string{"bad.yaml": "object_type: NOPE\n"})

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load experiments")
	assert.Contains(t, err.Error(), "bad.yaml")
}

func TestApp_EmptyDirectory(t *testing.T) {
	a, _, _ := newTestApp(t, nil)

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no experiment documents found")
}

func TestApp_HealthAndMetricsEndpoints(t *testing.T) {
	a, _, _ := newTestApp(t, map[string]string{"sweep.yaml": sweepDoc})
	require.NoError(t, a.Run(context.Background()))

	srv := httptest.NewServer(a.handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "tracesweep_experiment_jobs_total")
	assert.Contains(t, body.String(), "tracesweep_builder_instances_total")
}

func TestApp_DefaultModules(t *testing.T) {
	cfg, err := NewConfig(Config{DocumentPath: "unused"})
	require.NoError(t, err)
	a := NewApp(&bytes.Buffer{}, cfg)

	var names []string
	for _, c := range a.Registry().Classes() {
		names = append(names, c.Name)
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{"EXPERIMENT", "STEP", "PRINT", "ENV_VARS", "HTTP_REQUEST", "QUADRATIC_FIT", "QUADRATIC_SCORE"} {
		assert.Contains(t, joined, want)
	}
}

type brokenParams struct {
	Source io.Reader `param:"source"`
}

type brokenModule struct{}

func (brokenModule) Register(r *registry.Registry) {
	r.RegisterClass(registry.NewClass("BROKEN", func(p brokenParams) (*brokenParams, error) { return &p, nil }))
}

func TestNewApp_PanicsOnInvalidRegistry(t *testing.T) {
	cfg, err := NewConfig(Config{DocumentPath: "unused"})
	require.NoError(t, err)
	assert.Panics(t, func() { NewApp(&bytes.Buffer{}, cfg, brokenModule{}) })
}

func TestNewConfig(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "minimal", cfg: Config{DocumentPath: "x.yaml"}},
		{name: "missing document", cfg: Config{}, wantErr: "DocumentPath"},
		{name: "bad format", cfg: Config{DocumentPath: "x", LogFormat: "xml"}, wantErr: "invalid log format"},
		{name: "bad level", cfg: Config{DocumentPath: "x", LogLevel: "loud"}, wantErr: "invalid log level"},
		{name: "bad port", cfg: Config{DocumentPath: "x", HealthcheckPort: 70000}, wantErr: "invalid healthcheck port"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfig(tc.cfg)
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestApp_ExampleDocumentsLoad(t *testing.T) {
	cfg, err := NewConfig(Config{DocumentPath: filepath.Join("..", "..", "examples")})
	require.NoError(t, err)
	a := NewApp(&bytes.Buffer{}, cfg)

	plans, err := a.loadExperiments(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "probe", plans[0].experiment.Name())
	assert.Equal(t, "quadratic", plans[1].experiment.Name())
	assert.Len(t, plans[1].experiment.Steps()[0].Jobs(), 4)
}
