package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"syscall"
	"time"

	"jobshell.dev/shell"
)

// ErrNotRunning is returned when stopping a daemon that is not running
var ErrNotRunning = errors.New("daemon is not running")

// stopPollInterval is how often Stop checks whether a daemon started by
// another invocation has exited
const stopPollInterval = 100 * time.Millisecond

// StartRequest describes a daemon to supervise
type StartRequest struct {
	JobName   string
	SessionID string
	LogFile   string
	Spec      shell.Spec
	// OnExit is called with the daemon's outcome once it has been reaped
	OnExit func(outcome shell.ExitOutcome, err error)
}

// Status describes a daemon known to this process or recorded in a pidfile
type Status struct {
	JobName   string
	Running   bool
	PID       int
	SessionID string
	LogFile   string
	StartTime time.Time
	// Owned is set when this process supervises the daemon
	Owned bool
}

// daemon is a job supervised by this process, each in its own worker scope
type daemon struct {
	name      string
	pid       int
	sessionID string
	logFile   string
	startTime time.Time
	worker    *shell.Worker
}

// Manager manages daemon processes
type Manager struct {
	daemons map[string]*daemon
	mu      sync.RWMutex
}

// NewManager creates a new process manager
func NewManager() *Manager {
	return &Manager{
		daemons: make(map[string]*daemon),
	}
}

type startResult struct {
	pid int
	err error
}

// Start spawns the daemon in a new worker scope derived from ctx and
// records its pidfile. It returns once the child is running.
func (pm *Manager) Start(ctx context.Context, req StartRequest) (int, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if d, exists := pm.daemons[req.JobName]; exists {
		return 0, fmt.Errorf("daemon '%s' is already running with PID %d", req.JobName, d.pid)
	}
	if data, err := readPIDFile(req.JobName); err == nil {
		if isProcessAlive(data.PID) {
			return 0, fmt.Errorf("daemon '%s' is already running with PID %d (supervised by PID %d)", req.JobName, data.PID, data.SupervisorPID)
		}
		// Stale pidfile from a run that was not cleaned up
		deletePIDFile(req.JobName)
	}

	d := &daemon{
		name:      req.JobName,
		sessionID: req.SessionID,
		logFile:   req.LogFile,
	}

	started := make(chan startResult, 1)
	d.worker = shell.Go(ctx, func(ctx context.Context) error {
		job, err := shell.Spawn(ctx, req.Spec)
		if err != nil {
			started <- startResult{err: err}
			return err
		}
		defer job.Close()
		started <- startResult{pid: job.Pid()}

		outcome, err := job.Wait()
		pm.forget(d)
		if req.OnExit != nil {
			req.OnExit(outcome, err)
		}
		if err != nil {
			return err
		}
		slog.Info("daemon exited", "job", req.JobName, "pid", job.Pid(), "outcome", outcome.String())
		return outcome.Err(req.Spec.String())
	})

	r := <-started
	if r.err != nil {
		_ = d.worker.Join()
		return 0, fmt.Errorf("failed to start process: %w", r.err)
	}

	d.pid = r.pid
	d.startTime = time.Now()
	pm.daemons[req.JobName] = d

	if err := writePIDFile(pidFileData{
		PID:           d.pid,
		SupervisorPID: os.Getpid(),
		Group:         true,
		SessionID:     d.sessionID,
		JobName:       d.name,
		StartTime:     d.startTime,
		LogFile:       d.logFile,
	}); err != nil {
		slog.Warn("failed to write pidfile", "job", d.name, "error", err)
	}

	slog.Info("daemon started", "job", d.name, "pid", d.pid, "scope", d.worker.ScopeID())
	return d.pid, nil
}

// forget drops d once its child has been reaped. It blocks on pm.mu, so it
// cannot run before Start has recorded d.
func (pm *Manager) forget(d *daemon) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.daemons[d.name] == d {
		delete(pm.daemons, d.name)
	}
	deletePIDFileFor(d.name, d.pid)
}

// Stop stops a running daemon: SIGTERM to its process group, then SIGKILL
// if it has not exited after grace. Daemons started by another invocation
// are found through their pidfile.
func (pm *Manager) Stop(jobName string, grace time.Duration) error {
	pm.mu.RLock()
	d, exists := pm.daemons[jobName]
	pm.mu.RUnlock()

	if exists {
		return d.stop(grace)
	}

	data, err := readPIDFile(jobName)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("daemon '%s': %w", jobName, ErrNotRunning)
		}
		return err
	}
	if !isProcessAlive(data.PID) {
		deletePIDFile(jobName)
		return fmt.Errorf("daemon '%s': %w", jobName, ErrNotRunning)
	}
	return stopRecorded(data, grace)
}

// stop signals the daemon's worker scope, which reaches its process group
func (d *daemon) stop(grace time.Duration) error {
	if err := d.worker.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, shell.ErrNoSuchProcess) {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	select {
	case <-d.worker.Done():
	case <-time.After(grace):
		if err := d.worker.Signal(syscall.SIGKILL); err != nil && !errors.Is(err, shell.ErrNoSuchProcess) {
			return fmt.Errorf("failed to kill process: %w", err)
		}
		<-d.worker.Done()
	}

	// A daemon that dies by the signal we sent is a successful stop
	_ = d.worker.Join()
	return nil
}

// stopRecorded stops a daemon supervised by another invocation. That
// invocation still reaps the child; here we can only signal and poll.
func stopRecorded(data *pidFileData, grace time.Duration) error {
	kill := killProcess
	if data.Group {
		kill = killProcessGroup
	}

	if err := kill(data.PID, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}
	if waitGone(data.PID, grace) {
		deletePIDFileFor(data.JobName, data.PID)
		return nil
	}

	if err := kill(data.PID, syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill process: %w", err)
	}
	if !waitGone(data.PID, grace) {
		return fmt.Errorf("daemon '%s' (PID %d) survived SIGKILL", data.JobName, data.PID)
	}
	deletePIDFileFor(data.JobName, data.PID)
	return nil
}

func waitGone(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !isProcessAlive(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(stopPollInterval)
	}
}

// Status returns the status of a daemon process
func (pm *Manager) Status(jobName string) (Status, error) {
	pm.mu.RLock()
	d, exists := pm.daemons[jobName]
	pm.mu.RUnlock()

	if exists {
		return Status{
			JobName:   d.name,
			Running:   true,
			PID:       d.pid,
			SessionID: d.sessionID,
			LogFile:   d.logFile,
			StartTime: d.startTime,
			Owned:     true,
		}, nil
	}

	data, err := readPIDFile(jobName)
	if err != nil {
		if os.IsNotExist(err) {
			return Status{JobName: jobName}, nil
		}
		return Status{JobName: jobName}, err
	}
	return recordedStatus(data), nil
}

// recordedStatus reports a pidfile, removing it when the process is gone
func recordedStatus(data *pidFileData) Status {
	if !isProcessAlive(data.PID) {
		deletePIDFile(data.JobName)
		return Status{JobName: data.JobName}
	}
	return Status{
		JobName:   data.JobName,
		Running:   true,
		PID:       data.PID,
		SessionID: data.SessionID,
		LogFile:   data.LogFile,
		StartTime: data.StartTime,
		Owned:     data.SupervisorPID == os.Getpid(),
	}
}

// List returns every running daemon recorded on disk, sorted by job name.
// Stale pidfiles are removed.
func (pm *Manager) List() ([]Status, error) {
	records, err := scanPIDFiles()
	if err != nil {
		return nil, err
	}

	var result []Status
	for _, data := range records {
		if st := recordedStatus(data); st.Running {
			result = append(result, st)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].JobName < result[j].JobName
	})
	return result, nil
}

// StopAll stops all daemons supervised by this process
func (pm *Manager) StopAll(grace time.Duration) error {
	pm.mu.RLock()
	daemons := make([]*daemon, 0, len(pm.daemons))
	for _, d := range pm.daemons {
		daemons = append(daemons, d)
	}
	pm.mu.RUnlock()

	var errs []error
	for _, d := range daemons {
		if err := d.stop(grace); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.name, err))
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until every daemon supervised by this process has exited and
// returns their failures joined
func (pm *Manager) Wait() error {
	pm.mu.RLock()
	workers := make(map[string]*shell.Worker, len(pm.daemons))
	for name, d := range pm.daemons {
		workers[name] = d.worker
	}
	pm.mu.RUnlock()

	var errs []error
	for name, w := range workers {
		if err := w.Join(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
