package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"jobshell.dev/internal/config"
	"jobshell.dev/internal/logs"
	"jobshell.dev/internal/process"
	"jobshell.dev/shell"
)

// defaultReadyTimeout bounds the ready_url probe of daemons without a timeout
const defaultReadyTimeout = 30 * time.Second

// ProcessManager is the daemon supervisor used by Manager; implemented by
// *process.Manager
type ProcessManager interface {
	Start(ctx context.Context, req process.StartRequest) (int, error)
	Stop(jobName string, grace time.Duration) error
	Status(jobName string) (process.Status, error)
	StopAll(grace time.Duration) error
	Wait() error
}

// Manager coordinates job execution
type Manager struct {
	executor       *Executor
	processManager ProcessManager
	manifest       *config.Manifest
}

// NewManager creates a new job manager
func NewManager(manifest *config.Manifest, processManager ProcessManager) *Manager {
	return &Manager{
		executor:       NewExecutor(manifest),
		processManager: processManager,
		manifest:       manifest,
	}
}

// SetStreaming configures the executor to stream stdout/stderr to the given
// writers in addition to capturing them for logging. Leave unset for the MCP
// server so child output cannot corrupt the stdio protocol stream.
func (m *Manager) SetStreaming(stdout, stderr io.Writer) {
	m.executor.stdout = stdout
	m.executor.stderr = stderr
}

// ExecuteOneShot executes a one-shot job and its dependencies
func (m *Manager) ExecuteOneShot(ctx context.Context, jobName string, params map[string]interface{}) (*ExecutionResult, error) {
	return m.executor.Execute(ctx, jobName, params)
}

// StartDaemon starts a daemon job in its own supervised scope. The daemon
// outlives ctx's deadline but not its scope: signaling the scope carried by
// ctx, or a trapped signal, tears it down.
func (m *Manager) StartDaemon(ctx context.Context, jobName string, params map[string]interface{}) (*DaemonStartResult, error) {
	job, exists := m.manifest.Jobs[jobName]
	if !exists {
		return &DaemonStartResult{
			Success: false,
			Error:   fmt.Sprintf("job '%s' not found", jobName),
		}, nil
	}
	if job.Type != config.JobTypeDaemon {
		return &DaemonStartResult{
			Success: false,
			Error:   fmt.Sprintf("job '%s' is not a daemon", jobName),
		}, nil
	}
	if job.Disabled {
		return &DaemonStartResult{
			Success: false,
			Error:   fmt.Sprintf("job '%s' is disabled", jobName),
		}, nil
	}

	inv, err := Prepare(jobName, job, params, m.executor.lookup)
	if err != nil {
		return &DaemonStartResult{
			Success: false,
			Error:   err.Error(),
		}, nil
	}

	cwd, _ := os.Getwd()
	if job.WorkingDirectory != "" {
		cwd = job.WorkingDirectory
	}

	startTime := time.Now()
	sessionID := logs.GenerateSessionID()
	logWriter, err := logs.NewWriter(sessionID, &logs.SessionMetadata{
		SessionID:  sessionID,
		JobName:    jobName,
		JobType:    string(config.JobTypeDaemon),
		StartTime:  startTime,
		Parameters: inv.Params,
		Command:    inv.Command(),
		WorkingDir: cwd,
	})
	if err != nil {
		return &DaemonStartResult{
			Success: false,
			Error:   fmt.Sprintf("failed to create log writer: %v", err),
		}, nil
	}

	pid, err := m.processManager.Start(ctx, process.StartRequest{
		JobName:   jobName,
		SessionID: sessionID,
		LogFile:   logWriter.GetLogPath(),
		Spec:      inv.Spec(logWriter, logWriter, true),
		OnExit: func(outcome shell.ExitOutcome, err error) {
			recordExit(logWriter, startTime, outcome, err)
			_ = logWriter.Close()
		},
	})
	if err != nil {
		_ = logWriter.Close()
		return &DaemonStartResult{
			Success:   false,
			Error:     fmt.Sprintf("failed to start daemon: %v", err),
			SessionID: sessionID,
		}, nil
	}
	logWriter.UpdateMetadata(func(md *logs.SessionMetadata) {
		md.PID = pid
	})

	result := &DaemonStartResult{
		Success:   true,
		PID:       pid,
		LogPath:   logWriter.GetLogPath(),
		SessionID: sessionID,
	}

	if job.ReadyURL != "" {
		timeout := defaultReadyTimeout
		if job.Timeout > 0 {
			timeout = time.Duration(job.Timeout) * time.Second
		}
		if err := process.WaitReady(ctx, job.ReadyURL, timeout); err != nil {
			stopErr := m.processManager.Stop(jobName, time.Duration(job.KillAfter)*time.Second)
			result.Success = false
			result.Error = errors.Join(err, stopErr).Error()
			return result, nil
		}
		result.Ready = true
	}

	return result, nil
}

// StopDaemon stops a daemon job, whether this process or another invocation
// started it
func (m *Manager) StopDaemon(jobName string) (*DaemonStopResult, error) {
	job, exists := m.manifest.Jobs[jobName]
	if !exists {
		return &DaemonStopResult{
			Success: false,
			Error:   fmt.Sprintf("job '%s' not found", jobName),
		}, nil
	}
	if job.Type != config.JobTypeDaemon {
		return &DaemonStopResult{
			Success: false,
			Error:   fmt.Sprintf("job '%s' is not a daemon", jobName),
		}, nil
	}

	if err := m.processManager.Stop(jobName, time.Duration(job.KillAfter)*time.Second); err != nil {
		if errors.Is(err, process.ErrNotRunning) {
			return &DaemonStopResult{
				Success: false,
				Error:   fmt.Sprintf("daemon '%s' is not running", jobName),
			}, nil
		}
		return &DaemonStopResult{
			Success: false,
			Error:   fmt.Sprintf("failed to stop daemon: %v", err),
		}, nil
	}

	return &DaemonStopResult{
		Success: true,
		Message: fmt.Sprintf("daemon '%s' stopped successfully", jobName),
	}, nil
}

// DaemonStatus returns the status of a daemon job
func (m *Manager) DaemonStatus(jobName string) (*DaemonStatus, error) {
	job, exists := m.manifest.Jobs[jobName]
	if !exists {
		return nil, fmt.Errorf("job '%s' not found", jobName)
	}
	if job.Type != config.JobTypeDaemon {
		return nil, fmt.Errorf("job '%s' is not a daemon", jobName)
	}

	st, err := m.processManager.Status(jobName)
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	status := &DaemonStatus{
		Running:   st.Running,
		PID:       st.PID,
		SessionID: st.SessionID,
		LogPath:   st.LogFile,
		Owned:     st.Owned,
	}
	if st.Running {
		status.StartTime = st.StartTime
		status.Uptime = time.Since(st.StartTime).Round(time.Second).String()
		if job.ReadyURL != "" {
			ready := process.ProbeHTTP(job.ReadyURL)
			status.Ready = &ready
		}
	}
	return status, nil
}

// WaitDaemons blocks until every daemon started by this process has exited
func (m *Manager) WaitDaemons() error {
	return m.processManager.Wait()
}

// StopAll stops every daemon started by this process
func (m *Manager) StopAll() error {
	return m.processManager.StopAll(config.DefaultKillAfter * time.Second)
}

// GetManifest returns the manifest
func (m *Manager) GetManifest() *config.Manifest {
	return m.manifest
}

func recordExit(w *logs.Writer, startTime time.Time, outcome shell.ExitOutcome, err error) {
	w.UpdateMetadata(func(md *logs.SessionMetadata) {
		end := time.Now()
		duration := end.Sub(startTime)
		md.EndTime = &end
		md.Duration = &duration
		if err != nil {
			return
		}
		code := outcome.ExitCode()
		success := outcome.Success()
		md.ExitCode = &code
		md.Success = &success
		if outcome.Signaled() {
			md.Signal = outcome.Signal.String()
		}
	})
}
