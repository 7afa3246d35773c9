package cli

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/specialistvlad/llmgrid/internal/app"
	"github.com/specialistvlad/llmgrid/internal/config"
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

// usageError marks bad flags or arguments; they exit with code 2.
type usageError struct {
	error
}

func (e usageError) Unwrap() error { return e.error }

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	outW, errW      io.Writer
	configPath      string
	logLevel        string
	logFormat       string
	healthcheckPort int
}

// Execute runs the command line args. Help output is not an error. Any
// failure is returned as an *ExitError.
func Execute(ctx context.Context, args []string, outW, errW io.Writer) error {
	root := newRootCmd(&rootOptions{outW: outW, errW: errW})
	root.SetArgs(args)
	root.SetOut(outW)
	root.SetErr(errW)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	var uerr usageError
	if errors.As(err, &uerr) || strings.HasPrefix(err.Error(), "unknown command") {
		return &ExitError{Code: 2, Message: err.Error()}
	}
	return &ExitError{Code: 1, Message: err.Error()}
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "llmgrid",
		Short: "Run declarative LLM pipelines over versioned datasets",
		Long: `llmgrid executes apps: HCL files of typed blocks (input, data, code, llm,
map, reduce, search, curl, browser) over datasets of JSON records, caching
every block result in the project store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", config.DefaultFile, "Path to the project config file.")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flags.StringVar(&opts.logFormat, "log-format", "json", "Log output format. Options: 'text' or 'json'.")
	flags.IntVar(&opts.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 defers to the config file.")

	root.AddCommand(
		newInitCmd(opts),
		newDatasetCmd(opts),
		newRunCmd(opts),
		newProviderCmd(opts),
	)
	return root
}

// args wraps a positional argument validator so its failures exit with
// code 2.
func args(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, a []string) error {
		if err := fn(cmd, a); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// newApp builds the app for a command. Logs go to the error stream so that
// command output stays parseable.
func (o *rootOptions) newApp(configPath string, required bool) (*app.App, error) {
	cfg, err := app.NewConfig(app.Config{
		ConfigPath:      configPath,
		ConfigRequired:  required,
		LogFormat:       strings.ToLower(o.logFormat),
		LogLevel:        strings.ToLower(o.logLevel),
		HealthcheckPort: o.healthcheckPort,
	})
	if err != nil {
		return nil, usageError{err}
	}
	return app.NewApp(o.errW, cfg)
}

// projectApp builds the app from --config. A missing file is only an error
// when --config was given explicitly.
func (o *rootOptions) projectApp(cmd *cobra.Command) (*app.App, error) {
	return o.newApp(o.configPath, cmd.Flags().Changed("config"))
}
