package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"jobshell.dev/internal/config"
	"jobshell.dev/internal/logs"
	"jobshell.dev/shell"
)

// Executor handles execution of one-shot jobs
type Executor struct {
	manifest *config.Manifest
	lookup   func(string) (string, bool)
	stdout   io.Writer
	stderr   io.Writer
}

// NewExecutor creates a new job executor
func NewExecutor(manifest *config.Manifest) *Executor {
	return &Executor{
		manifest: manifest,
		lookup:   os.LookupEnv,
	}
}

// Execute runs a one-shot job and, first, the jobs it depends on. The
// children are spawned in the scope carried by ctx; cancelling ctx
// terminates the running child.
func (e *Executor) Execute(ctx context.Context, jobName string, params map[string]interface{}) (*ExecutionResult, error) {
	return e.execute(ctx, jobName, params, nil)
}

func (e *Executor) execute(ctx context.Context, jobName string, params map[string]interface{}, chain []string) (*ExecutionResult, error) {
	job, exists := e.manifest.Jobs[jobName]
	if !exists {
		return nil, fmt.Errorf("job '%s' not found", jobName)
	}
	if job.Disabled {
		return nil, fmt.Errorf("job '%s' is disabled", jobName)
	}
	if job.Type == config.JobTypeDaemon {
		return nil, fmt.Errorf("job '%s' is a daemon, use daemon operations instead", jobName)
	}
	if slices.Contains(chain, jobName) {
		return nil, fmt.Errorf("circular dependency: %s -> %s", strings.Join(chain, " -> "), jobName)
	}
	chain = append(chain, jobName)

	startTime := time.Now()
	var deps []*ExecutionResult
	for _, dep := range job.DependsOn {
		result, err := e.execute(ctx, dep, nil, chain)
		if err != nil {
			return nil, err
		}
		deps = append(deps, result)
		if !result.Success {
			return &ExecutionResult{
				Success:      false,
				ExitCode:     result.ExitCode,
				JobName:      jobName,
				Error:        fmt.Sprintf("dependency '%s' failed: %s", dep, result.Error),
				Duration:     time.Since(startTime),
				Dependencies: deps,
			}, nil
		}
	}

	result := e.runOne(ctx, jobName, job, params)
	result.Dependencies = deps
	return result, nil
}

// runOne runs a single job under a new log session
func (e *Executor) runOne(ctx context.Context, jobName string, job config.Job, params map[string]interface{}) *ExecutionResult {
	startTime := time.Now()

	inv, err := Prepare(jobName, job, params, e.lookup)
	if err != nil {
		return &ExecutionResult{
			Success:  false,
			ExitCode: 1,
			JobName:  jobName,
			Error:    err.Error(),
			Duration: time.Since(startTime),
		}
	}

	cwd, _ := os.Getwd()
	if job.WorkingDirectory != "" {
		cwd = job.WorkingDirectory
	}

	sessionID := logs.GenerateSessionID()
	logWriter, err := logs.NewWriter(sessionID, &logs.SessionMetadata{
		SessionID:  sessionID,
		JobName:    jobName,
		JobType:    string(config.JobTypeOneShot),
		StartTime:  startTime,
		Parameters: inv.Params,
		Command:    inv.Command(),
		WorkingDir: cwd,
	})
	if err != nil {
		return &ExecutionResult{
			Success:   false,
			ExitCode:  1,
			JobName:   jobName,
			Error:     fmt.Sprintf("failed to create log writer: %v", err),
			Duration:  time.Since(startTime),
			SessionID: sessionID,
		}
	}
	defer logWriter.Close()

	// Output goes to the session log and is captured for the result; the
	// streaming writers are only set for interactive use.
	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := []io.Writer{&stdoutBuf, logWriter}
	stderr := []io.Writer{&stderrBuf, logWriter}
	if e.stdout != nil {
		stdout = append(stdout, e.stdout)
	}
	if e.stderr != nil {
		stderr = append(stderr, e.stderr)
	}

	spec := inv.Spec(io.MultiWriter(stdout...), io.MultiWriter(stderr...), false)
	handle, err := shell.Spawn(ctx, spec)
	if err != nil {
		return &ExecutionResult{
			Success:   false,
			ExitCode:  1,
			JobName:   jobName,
			Command:   inv.Command(),
			Error:     fmt.Sprintf("failed to start command: %v", err),
			Duration:  time.Since(startTime),
			SessionID: sessionID,
			LogPath:   logWriter.GetLogPath(),
		}
	}
	defer handle.Close()

	timeout := time.Duration(job.Timeout) * time.Second
	killAfter := time.Duration(job.KillAfter) * time.Second
	outcome, timedOut, waitErr := waitWithTimeout(ctx, handle, timeout, killAfter)
	duration := time.Since(startTime)

	result := &ExecutionResult{
		Success:   waitErr == nil && outcome.Success() && !timedOut,
		ExitCode:  outcome.ExitCode(),
		Outcome:   outcome.String(),
		Stdout:    stdoutBuf.String(),
		Stderr:    stderrBuf.String(),
		Duration:  duration,
		JobName:   jobName,
		Command:   inv.Command(),
		LogPath:   logWriter.GetLogPath(),
		TimedOut:  timedOut,
		SessionID: sessionID,
	}
	if outcome.Signaled() {
		result.Signal = outcome.Signal.String()
	}

	switch {
	case waitErr != nil:
		result.ExitCode = 1
		result.Error = fmt.Sprintf("failed to wait for command: %v", waitErr)
	case timedOut:
		result.Error = fmt.Sprintf("command timed out after %d seconds", job.Timeout)
	case !outcome.Success():
		result.Error = fmt.Sprintf("command failed: %s", outcome)
	}

	logWriter.UpdateMetadata(func(m *logs.SessionMetadata) {
		end := time.Now()
		m.PID = handle.Pid()
		m.EndTime = &end
		m.Duration = &duration
		m.ExitCode = &result.ExitCode
		m.Signal = result.Signal
		m.Success = &result.Success
		m.TimedOut = timedOut
	})

	return result
}
