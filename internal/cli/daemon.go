package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"jobshell.dev/internal/config"
	"jobshell.dev/internal/runner"
	"jobshell.dev/shell"
)

func newUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up [job|group...]",
		Short: "Start daemon jobs and supervise them until they exit",
		Long: `up starts the named daemon jobs (or the jobs of the named groups, or every
daemon job when none are named) and stays in the foreground supervising them.
Oneshot jobs of a named group run to completion first. SIGINT or SIGTERM stops
every daemon before up exits with 128+signal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyWorkingDir(); err != nil {
				return err
			}
			if code := cmdUp(cmd.Context(), args); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <job...>",
		Short: "Stop running daemons, wherever they were started",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyWorkingDir(); err != nil {
				return err
			}
			if code := cmdStop(args); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [job]",
		Short: "Show running daemons",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyWorkingDir(); err != nil {
				return err
			}
			if code := cmdStatus(args); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

// resolveUpTargets expands group names and splits the result into oneshot
// and daemon jobs, keeping the order they were named in and dropping repeats.
func resolveUpTargets(manifest *config.Manifest, names []string) (oneshots, daemons []string, err error) {
	if len(names) == 0 {
		for name, job := range manifest.Jobs {
			if job.Type == config.JobTypeDaemon && !job.Disabled {
				daemons = append(daemons, name)
			}
		}
		sort.Strings(daemons)
		return nil, daemons, nil
	}

	seen := make(map[string]bool)
	var add func(name string, viaGroup bool) error
	add = func(name string, viaGroup bool) error {
		if group, ok := manifest.Groups[name]; ok && !viaGroup {
			for _, member := range group.Jobs {
				if err := add(member, true); err != nil {
					return err
				}
			}
			return nil
		}
		job, ok := manifest.Jobs[name]
		if !ok {
			return fmt.Errorf("job or group '%s' not found", name)
		}
		if seen[name] {
			return nil
		}
		seen[name] = true
		switch {
		case job.Disabled:
			return fmt.Errorf("job '%s' is disabled", name)
		case job.Type == config.JobTypeDaemon:
			daemons = append(daemons, name)
		case viaGroup:
			oneshots = append(oneshots, name)
		default:
			return fmt.Errorf("'%s' is a oneshot job. Use 'jobshell run %s' instead", name, name)
		}
		return nil
	}

	for _, name := range names {
		if err := add(name, false); err != nil {
			return nil, nil, err
		}
	}
	return oneshots, daemons, nil
}

func cmdUp(ctx context.Context, names []string) int {
	manifest, manager, _, err := bootstrap(globalConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	oneshots, daemons, err := resolveUpTargets(manifest, names)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if len(daemons) == 0 {
		fmt.Fprintln(os.Stderr, "No daemon jobs to start.")
		return 0
	}

	shell.TrapSignals(shell.WithKillAfter(config.DefaultKillAfter * time.Second))
	manager.SetStreaming(os.Stdout, os.Stderr)

	for _, name := range oneshots {
		result, err := manager.ExecuteOneShot(ctx, name, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		if !result.Success {
			printExecutionResult(result)
			return resultCode(result)
		}
	}

	for _, name := range daemons {
		result, err := manager.StartDaemon(ctx, name, nil)
		if err != nil {
			result = &runner.DaemonStartResult{Error: err.Error()}
		}
		printDaemonStartResult(name, result)
		if !result.Success {
			if err := manager.StopAll(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			return 1
		}
	}

	fmt.Fprintf(os.Stderr, "\n%s %d daemon(s); press Ctrl-C to stop\n",
		color(colorCyan, "Supervising"), len(daemons))

	if err := manager.WaitDaemons(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color(colorRed, "Error:"), err)
		return 1
	}
	return 0
}

func cmdStop(names []string) int {
	_, manager, _, err := bootstrap(globalConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	code := 0
	for _, name := range names {
		result, err := manager.StopDaemon(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			code = 1
			continue
		}
		printDaemonStopResult(name, result)
		if !result.Success {
			code = 1
		}
	}
	return code
}

func cmdStatus(args []string) int {
	_, manager, processManager, err := bootstrap(globalConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if len(args) == 1 {
		status, err := manager.DaemonStatus(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		printDaemonStatus(args[0], status)
		return 0
	}

	statuses, err := processManager.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if len(statuses) == 0 {
		fmt.Fprintln(os.Stderr, "No daemons running.")
		return 0
	}
	printStatusTable(statuses)
	return 0
}
