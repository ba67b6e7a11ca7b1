package runner

import (
	"time"
)

// ExecutionResult represents the result of a job execution
type ExecutionResult struct {
	Success      bool               `json:"success"`
	ExitCode     int                `json:"exit_code"`
	Signal       string             `json:"signal,omitempty"`
	Outcome      string             `json:"outcome,omitempty"`
	Stdout       string             `json:"stdout,omitempty"`
	Stderr       string             `json:"stderr,omitempty"`
	Duration     time.Duration      `json:"duration"`
	Error        string             `json:"error,omitempty"`
	JobName      string             `json:"job_name"`
	Command      string             `json:"command,omitempty"`
	LogPath      string             `json:"log_path,omitempty"`
	TimedOut     bool               `json:"timed_out"`
	SessionID    string             `json:"session_id,omitempty"`
	Dependencies []*ExecutionResult `json:"dependencies,omitempty"`
}

// DaemonStatus represents the status of a daemon job
type DaemonStatus struct {
	Running   bool      `json:"running"`
	PID       int       `json:"pid,omitempty"`
	StartTime time.Time `json:"start_time,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
	LogPath   string    `json:"log_path"`
	SessionID string    `json:"session_id,omitempty"`
	// Owned is set when this process supervises the daemon, as opposed to
	// having found its pidfile
	Owned bool `json:"owned"`
	// Ready is whether the job's ready_url answers; nil without one
	Ready *bool `json:"ready,omitempty"`
}

// DaemonStartResult represents the result of starting a daemon
type DaemonStartResult struct {
	Success   bool   `json:"success"`
	PID       int    `json:"pid"`
	LogPath   string `json:"log_path"`
	Error     string `json:"error,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Ready     bool   `json:"ready"`
}

// DaemonStopResult represents the result of stopping a daemon
type DaemonStopResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
