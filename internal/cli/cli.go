package cli

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vk/tracesweep/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

type flags struct {
	document        string
	outputDir       string
	healthcheckPort int
	logFormat       string
	logLevel        string
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")

	var (
		f      flags
		config *app.Config
	)

	cmd := &cobra.Command{
		Use:   "tracesweep [flags] [DOCUMENT_PATH]",
		Short: "Run parameter-sweep experiments described in YAML, JSON or HCL documents.",
		Long: `tracesweep - a declarative experiment runner.

Each document describes an EXPERIMENT: an ordered list of steps whose jobs
may sweep over parameter values. The best job of a step (by its comparison
criterion) fills the "?" parameters of the next step.

DOCUMENT_PATH is a single document or a directory searched recursively for
.yaml, .yml, .json and .hcl files.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, positional []string) error {
			path := f.document
			if path == "" && len(positional) > 0 {
				path = positional[0]
			}
			slog.Debug("Document path determined.", "path", path)

			if path == "" {
				slog.Debug("No document path provided, printing usage and exiting.")
				return cmd.Help()
			}

			cfg, err := app.NewConfig(app.Config{
				DocumentPath:    path,
				OutputDir:       f.outputDir,
				HealthcheckPort: f.healthcheckPort,
				LogFormat:       strings.ToLower(f.logFormat),
				LogLevel:        strings.ToLower(f.logLevel),
			})
			if err != nil {
				return err
			}
			config = cfg
			return nil
		},
	}
	cmd.SetArgs(args)
	cmd.SetOut(output)
	cmd.SetErr(output)

	fs := cmd.Flags()
	fs.StringVarP(&f.document, "document", "d", "", "Path to the experiment document or directory.")
	fs.StringVarP(&f.outputDir, "output-dir", "o", "results", "Directory for step and experiment results. Empty disables writing.")
	fs.IntVar(&f.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	fs.StringVar(&f.logFormat, "log-format", "json", "Log output format. Options: 'text' or 'json'.")
	fs.StringVar(&f.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := cmd.Execute(); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	if config == nil {
		// --help, or no document given.
		return nil, true, nil
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
