package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"jobshell.dev/internal/dirs"
)

// pidsDir holds one pidfile per running daemon
var pidsDir = filepath.Join(dirs.StateDir, "pids")

// pidFileData is what gets persisted to disk for each running daemon.
type pidFileData struct {
	PID           int       `json:"pid"`
	SupervisorPID int       `json:"supervisor_pid"`
	Group         bool      `json:"group"`
	SessionID     string    `json:"session_id"`
	JobName       string    `json:"job_name"`
	StartTime     time.Time `json:"start_time"`
	LogFile       string    `json:"log_file"`
}

func pidFilePath(jobName string) string {
	return filepath.Join(pidsDir, jobName+".pid")
}

func writePIDFile(data pidFileData) error {
	if err := os.MkdirAll(pidsDir, 0755); err != nil {
		return fmt.Errorf("failed to create pids directory: %w", err)
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal PID file: %w", err)
	}
	// Write then rename so a concurrent reader never sees a partial file
	tmp := pidFilePath(data.JobName) + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return os.Rename(tmp, pidFilePath(data.JobName))
}

func readPIDFile(jobName string) (*pidFileData, error) {
	b, err := os.ReadFile(pidFilePath(jobName))
	if err != nil {
		return nil, err
	}
	var data pidFileData
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("failed to parse PID file for %q: %w", jobName, err)
	}
	return &data, nil
}

func deletePIDFile(jobName string) {
	_ = os.Remove(pidFilePath(jobName))
}

// deletePIDFileFor removes the pidfile only while it still records pid, so
// a supervisor never removes the record of a newer run
func deletePIDFileFor(jobName string, pid int) {
	data, err := readPIDFile(jobName)
	if err != nil || data.PID != pid {
		return
	}
	deletePIDFile(jobName)
}

// scanPIDFiles returns all valid PID files found on disk.
func scanPIDFiles() ([]*pidFileData, error) {
	entries, err := os.ReadDir(pidsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pids directory: %w", err)
	}

	var result []*pidFileData
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".pid" {
			continue
		}
		jobName := strings.TrimSuffix(entry.Name(), ".pid")
		data, err := readPIDFile(jobName)
		if err != nil {
			// Corrupt PID file, remove and skip
			deletePIDFile(jobName)
			continue
		}
		result = append(result, data)
	}
	return result, nil
}
