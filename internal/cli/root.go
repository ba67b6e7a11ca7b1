// Package cli implements the jobshell command-line interface.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"jobshell.dev/internal/config"
	"jobshell.dev/internal/logs"
	"jobshell.dev/internal/process"
	"jobshell.dev/internal/runner"
	"jobshell.dev/shell"
)

// Global flags shared by every subcommand. run and exec parse their own
// arguments, so they are also filled in by extractGlobalFlagsManual.
var (
	globalConfig     string
	globalWorkingDir string
	globalLogLevel   string
	globalLogFormat  string
)

// exitError carries a process exit code out of a RunE.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the CLI with os.Args and returns the process exit code.
func Execute(version string) int {
	globalConfig = ""
	globalWorkingDir = ""
	globalLogLevel = ""
	globalLogFormat = ""

	cmd := newRootCmd(version)
	if err := cmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(version string) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("JOBSHELL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "jobshell",
		Short: "Run and supervise the jobs of a project",
		Long: `jobshell runs the jobs declared in a project manifest as supervised child
processes. Every child is tracked until it is reaped, and SIGINT or SIGTERM
is forwarded to all of them before jobshell exits with 128+signal.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			if globalConfig == "" {
				globalConfig = v.GetString("config")
			}
			if globalWorkingDir == "" {
				globalWorkingDir = v.GetString("working-dir")
			}
			globalLogLevel = v.GetString("log-level")
			globalLogFormat = v.GetString("log-format")
			return setupLogging()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&globalConfig, "config", "", "Path to job manifest file")
	pf.StringVar(&globalWorkingDir, "working-dir", "", "Project directory to run in")
	pf.StringVar(&globalLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.StringVar(&globalLogFormat, "log-format", "text", "Log format (text or json)")
	for _, name := range []string{"config", "working-dir", "log-level", "log-format"} {
		_ = v.BindPFlag(name, pf.Lookup(name))
	}

	root.AddCommand(
		newInitCmd(),
		newListCmd(),
		newRunCmd(),
		newExecCmd(),
		newUpCmd(),
		newStatusCmd(),
		newStopCmd(),
		newLogsCmd(),
		newWatchCmd(),
		newServeCmd(version),
	)
	return root
}

// setupLogging installs the slog handler selected by --log-level and
// --log-format as the default logger and as the shell library's logger.
func setupLogging() error {
	var level slog.Level
	if globalLogLevel != "" {
		if err := level.UnmarshalText([]byte(globalLogLevel)); err != nil {
			return fmt.Errorf("invalid log level %q", globalLogLevel)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch globalLogFormat {
	case "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", globalLogFormat)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	shell.SetLogger(logger)
	return nil
}

// applyWorkingDir changes into --working-dir, if set
func applyWorkingDir() error {
	if globalWorkingDir == "" {
		return nil
	}
	if err := os.Chdir(globalWorkingDir); err != nil {
		return fmt.Errorf("failed to change to working directory %s: %w", globalWorkingDir, err)
	}
	return nil
}

// bootstrap loads the manifest and creates the job manager.
func bootstrap(configPath string) (*config.Manifest, *runner.Manager, *process.Manager, error) {
	if err := logs.Setup(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to setup logs: %w", err)
	}

	manifest, err := config.LoadManifest(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	processManager := process.NewManager()
	manager := runner.NewManager(manifest, processManager)
	return manifest, manager, processManager, nil
}

// extractGlobalFlagsManual pulls --config and --working-dir (with either
// one or two leading dashes, "=value" or separate value) out of args for
// commands that disable cobra's flag parsing.
func extractGlobalFlagsManual(args []string) (configPath, workingDir string, remaining []string) {
	remaining = []string{}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			remaining = append(remaining, args[i:]...)
			break
		}

		name := strings.TrimLeft(arg, "-")
		if name == arg {
			remaining = append(remaining, arg)
			continue
		}
		key, value, hasValue := strings.Cut(name, "=")
		if key != "config" && key != "working-dir" {
			remaining = append(remaining, arg)
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				continue
			}
			i++
			value = args[i]
		}
		if key == "config" {
			configPath = value
		} else {
			workingDir = value
		}
	}
	return configPath, workingDir, remaining
}

// mergeExtractedGlobals overrides the globals with any non-empty values
// found by extractGlobalFlagsManual.
func mergeExtractedGlobals(configPath, workingDir string) {
	if configPath != "" {
		globalConfig = configPath
	}
	if workingDir != "" {
		globalWorkingDir = workingDir
	}
}

// parseJobParams parses --key=value flags from args against the job's
// parameter definitions. Defaults are applied later by the runner, so only
// explicitly given values are returned.
func parseJobParams(job config.Job, args []string) (map[string]interface{}, error) {
	params := make(map[string]interface{})
	if len(job.Parameters) == 0 {
		if len(args) > 0 {
			return nil, fmt.Errorf("job does not accept parameters, but got: %s", strings.Join(args, " "))
		}
		return params, nil
	}

	fs := pflag.NewFlagSet("params", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	values := make(map[string]*string)
	for name, param := range job.Parameters {
		values[name] = fs.String(name, "", param.Description)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	fs.Visit(func(f *pflag.Flag) {
		params[f.Name] = *values[f.Name]
	})

	for name, param := range job.Parameters {
		if _, ok := params[name]; param.Required && !ok && param.Default == nil {
			return nil, fmt.Errorf("required parameter --%s is missing", name)
		}
	}
	return params, nil
}
