package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"jobshell.dev/internal/config"
	"jobshell.dev/internal/runner"
	"jobshell.dev/shell"
)

// helpRequested reports whether args ask for help. Commands that disable
// cobra's flag parsing handle --help themselves.
func helpRequested(args []string) bool {
	for _, a := range args {
		if a == "--" {
			return false
		}
		if a == "--help" || a == "-h" {
			return true
		}
	}
	return false
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "run <job> [--param=value...]",
		Short:              "Run a oneshot job in the foreground",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if helpRequested(args) {
				return cmd.Help()
			}
			extractedConfig, extractedWorkingDir, remaining := extractGlobalFlagsManual(args)
			mergeExtractedGlobals(extractedConfig, extractedWorkingDir)

			if err := applyWorkingDir(); err != nil {
				return err
			}
			if code := cmdRun(cmd.Context(), remaining); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

func cmdRun(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: jobshell run <job> [--param=value...]")
		return 1
	}

	jobName := args[0]
	jobArgs := args[1:]

	manifest, manager, _, err := bootstrap(globalConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	job, exists := manifest.Jobs[jobName]
	if !exists {
		fmt.Fprintf(os.Stderr, "Error: job '%s' not found\n", jobName)
		printAvailable(manifest)
		return 1
	}

	if job.Type == config.JobTypeDaemon {
		fmt.Fprintf(os.Stderr, "Error: '%s' is a daemon job. Use 'jobshell up %s' instead.\n", jobName, jobName)
		return 1
	}

	params, err := parseJobParams(job, jobArgs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	shell.TrapSignals(shell.WithKillAfter(killAfter(job)))
	manager.SetStreaming(os.Stdout, os.Stderr)

	result, err := manager.ExecuteOneShot(ctx, jobName, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	printExecutionResult(result)
	return resultCode(result)
}

// resultCode maps a run result to the CLI's exit code
func resultCode(r *runner.ExecutionResult) int {
	if r.Success {
		return 0
	}
	if r.ExitCode != 0 {
		return r.ExitCode
	}
	return 1
}

// killAfter is the grace period between the forwarded signal and SIGKILL
func killAfter(job config.Job) time.Duration {
	if job.KillAfter > 0 {
		return time.Duration(job.KillAfter) * time.Second
	}
	return config.DefaultKillAfter * time.Second
}

func printAvailable(manifest *config.Manifest) {
	var names []string
	for name, job := range manifest.Jobs {
		if !job.Disabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Available jobs:")
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %s (%s)\n", name, manifest.Jobs[name].Type)
	}
}

func newExecCmd() *cobra.Command {
	var group bool

	cmd := &cobra.Command{
		Use:   "exec [--group] -- <command> [args...]",
		Short: "Run an ad-hoc command under supervision",
		Long: `exec runs a command as a supervised child without a manifest entry. SIGINT
and SIGTERM are forwarded to it, and jobshell exits with its status.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyWorkingDir(); err != nil {
				return err
			}
			code, err := cmdExec(cmd.Context(), args, group)
			if err != nil {
				return err
			}
			if code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&group, "group", false, "Run the command as leader of its own process group")
	// Flags after the command name belong to the command
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// cmdExec runs argv to completion and returns its shell-style exit status.
func cmdExec(ctx context.Context, argv []string, group bool) (int, error) {
	spec := shell.Command(argv[0], argv[1:]...).
		Stdin(os.Stdin).
		Stdout(os.Stdout).
		Stderr(os.Stderr)
	if group {
		spec = spec.ProcessGroup()
	}

	shell.TrapSignals(shell.WithKillAfter(config.DefaultKillAfter * time.Second))

	err := shell.Run(ctx, spec)
	var exitErr *shell.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), nil
	default:
		return 0, err
	}
}
