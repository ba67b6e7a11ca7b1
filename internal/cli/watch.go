package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"jobshell.dev/internal/config"
	"jobshell.dev/internal/runner"
	"jobshell.dev/internal/watch"
	"jobshell.dev/shell"
)

func newWatchCmd() *cobra.Command {
	var (
		paths    []string
		patterns []string
		params   map[string]string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <job>",
		Short: "Rerun a oneshot job whenever watched files change",
		Long: `watch runs a oneshot job and reruns it when files change. A run still in
progress when a change arrives is terminated first. Patterns default to the
job's watch list in the manifest.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyWorkingDir(); err != nil {
				return err
			}
			if code := cmdWatch(cmd.Context(), args[0], paths, patterns, params, debounce); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&paths, "path", nil, "Directory to watch recursively (repeatable, default: .)")
	cmd.Flags().StringSliceVar(&patterns, "pattern", nil, "Glob selecting files that trigger a rerun, e.g. **/*.go (repeatable)")
	cmd.Flags().StringToStringVar(&params, "param", nil, "Job parameter as key=value (repeatable)")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before rerunning")
	return cmd
}

func cmdWatch(ctx context.Context, jobName string, paths, patterns []string, params map[string]string, debounce time.Duration) int {
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
	if job.Type != config.JobTypeOneShot {
		fmt.Fprintf(os.Stderr, "Error: '%s' is not a oneshot job\n", jobName)
		return 1
	}
	if len(patterns) == 0 {
		patterns = job.Watch
	}

	w, err := watch.New(watch.Config{
		Paths:    paths,
		Patterns: patterns,
		Debounce: debounce,
		Logger:   slog.Default(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	shell.TrapSignals(shell.WithKillAfter(killAfter(job)))
	manager.SetStreaming(os.Stdout, os.Stderr)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	changes := make(chan struct{}, 1)
	go func() {
		err := w.Watch(ctx, func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		})
		if err != nil && ctx.Err() == nil {
			slog.Error("watcher stopped", "error", err)
			cancel()
		}
	}()

	jobParams := make(map[string]interface{}, len(params))
	for k, v := range params {
		jobParams[k] = v
	}

	watchJob(ctx, manager, jobName, jobParams, changes, func(r *runner.ExecutionResult) {
		printExecutionResult(r)
		fmt.Fprintf(os.Stderr, "%s\n", color(colorDim, "Waiting for changes..."))
	})
	return 0
}

// watchJob runs jobName, then again after every signal on changes, until
// ctx is done. A change during a run cancels that run before the next one
// starts. onResult receives each completed or cancelled run.
func watchJob(ctx context.Context, manager *runner.Manager, jobName string, params map[string]interface{}, changes <-chan struct{}, onResult func(*runner.ExecutionResult)) {
	for {
		runCtx, cancelRun := context.WithCancel(ctx)
		done := make(chan *runner.ExecutionResult, 1)
		go func() {
			result, err := manager.ExecuteOneShot(runCtx, jobName, params)
			if err != nil {
				result = &runner.ExecutionResult{JobName: jobName, ExitCode: 1, Error: err.Error()}
			}
			done <- result
		}()

		restart := false
		select {
		case result := <-done:
			onResult(result)
		case <-changes:
			slog.Info("change detected, restarting job", "job", jobName)
			cancelRun()
			onResult(<-done)
			restart = true
		case <-ctx.Done():
			cancelRun()
			onResult(<-done)
			return
		}
		cancelRun()

		if restart {
			continue
		}
		select {
		case <-changes:
		case <-ctx.Done():
			return
		}
	}
}
