package logs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// SessionMetadata is the metadata.json record of one job run. It is
// written when the run starts and completed when the child is reaped.
type SessionMetadata struct {
	SessionID  string                 `json:"session_id"`
	JobName    string                 `json:"job_name"`
	JobType    string                 `json:"job_type"` // "oneshot" or "daemon"
	PID        int                    `json:"pid,omitempty"`
	StartTime  time.Time              `json:"start_time"`
	EndTime    *time.Time             `json:"end_time,omitempty"`
	Duration   *time.Duration         `json:"duration,omitempty"`
	ExitCode   *int                   `json:"exit_code,omitempty"`
	Signal     string                 `json:"signal,omitempty"`
	Success    *bool                  `json:"success,omitempty"`
	TimedOut   bool                   `json:"timed_out"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Command    string                 `json:"command,omitempty"`
	WorkingDir string                 `json:"working_dir,omitempty"`
}

// Finished reports whether the run's child has been reaped
func (m *SessionMetadata) Finished() bool {
	return m.EndTime != nil || m.ExitCode != nil
}

// Status summarizes how the run ended: "ok", "timeout", the signal name
// for a signaled child, "exit N", or "running" while the child is alive.
func (m *SessionMetadata) Status() string {
	switch {
	case !m.Finished():
		return "running"
	case m.Success != nil && *m.Success:
		return "ok"
	case m.TimedOut:
		return "timeout"
	case m.Signal != "":
		return m.Signal
	case m.ExitCode != nil:
		return fmt.Sprintf("exit %d", *m.ExitCode)
	default:
		return "unknown"
	}
}

// SessionInfo is the listing entry for a session
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	JobName   string    `json:"job_name"`
	StartTime time.Time `json:"start_time"`
	Status    string    `json:"status"`
	LogPath   string    `json:"log_path"`
}

// GenerateSessionID generates a new UUID for a session
func GenerateSessionID() string {
	return uuid.New().String()
}

func sessionsDir() string {
	return filepath.Join(LogDir, "sessions")
}

// GetSessionDirectory returns the directory holding a session's log and metadata
func GetSessionDirectory(sessionID string) string {
	return filepath.Join(sessionsDir(), sessionID)
}

// GetSessionLogPath returns the path to a session's combined output log
func GetSessionLogPath(sessionID string) string {
	return filepath.Join(GetSessionDirectory(sessionID), "job.log")
}

// GetSessionMetadataPath returns the path to a session's metadata.json
func GetSessionMetadataPath(sessionID string) string {
	return filepath.Join(GetSessionDirectory(sessionID), "metadata.json")
}

// GetLatestSymlinkPath returns the path of the link to a job's newest session
func GetLatestSymlinkPath(jobName string) string {
	return filepath.Join(LogDir, "latest", jobName)
}

// CreateSessionDirectory creates the directory for a new session
func CreateSessionDirectory(sessionID string) error {
	if err := os.MkdirAll(GetSessionDirectory(sessionID), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	return nil
}

// WriteSessionMetadata replaces the stored metadata of a session
func WriteSessionMetadata(sessionID string, metadata *SessionMetadata) error {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(GetSessionMetadataPath(sessionID), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// ReadSessionMetadata loads the metadata of a session
func ReadSessionMetadata(sessionID string) (*SessionMetadata, error) {
	data, err := os.ReadFile(GetSessionMetadataPath(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var metadata SessionMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &metadata, nil
}

// UpdateSessionMetadata applies update to the stored metadata and writes
// it back
func UpdateSessionMetadata(sessionID string, update func(*SessionMetadata)) error {
	metadata, err := ReadSessionMetadata(sessionID)
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}
	update(metadata)
	return WriteSessionMetadata(sessionID, metadata)
}

// GetLatestSessionID resolves the newest session of a job through its
// latest link, which points at ../sessions/<id>
func GetLatestSessionID(jobName string) (string, error) {
	target, err := os.Readlink(GetLatestSymlinkPath(jobName))
	if err != nil {
		return "", fmt.Errorf("failed to read latest symlink: %w", err)
	}
	return filepath.Base(target), nil
}

// CreateLatestLink points the job's latest link at sessionID
func CreateLatestLink(jobName, sessionID string) error {
	link := GetLatestSymlinkPath(jobName)
	if err := os.MkdirAll(filepath.Dir(link), 0755); err != nil {
		return fmt.Errorf("failed to create latest directory: %w", err)
	}

	// Replace through a rename so readers never see the link missing
	tmp := fmt.Sprintf("%s.%s.tmp", link, sessionID)
	if err := os.Symlink(filepath.Join("..", "sessions", sessionID), tmp); err != nil {
		return fmt.Errorf("failed to create symlink: %w", err)
	}
	if err := os.Rename(tmp, link); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace symlink: %w", err)
	}
	return nil
}

// scanSessions loads the metadata of every session for which keep returns
// true. Sessions with missing or unreadable metadata are skipped.
func scanSessions(keep func(*SessionMetadata) bool) ([]*SessionMetadata, error) {
	entries, err := os.ReadDir(sessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var found []*SessionMetadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		metadata, err := ReadSessionMetadata(entry.Name())
		if err != nil {
			continue
		}
		metadata.SessionID = entry.Name()
		if keep == nil || keep(metadata) {
			found = append(found, metadata)
		}
	}
	return found, nil
}

// newestFirst orders sessions by descending start time
func newestFirst(sessions []*SessionMetadata) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
}

// ListSessions returns up to limit sessions of a job, newest first. A
// limit of 0 returns all of them.
func ListSessions(jobName string, limit int) ([]SessionInfo, error) {
	found, err := scanSessions(func(m *SessionMetadata) bool { return m.JobName == jobName })
	if err != nil {
		return nil, err
	}
	newestFirst(found)
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}

	sessions := make([]SessionInfo, 0, len(found))
	for _, m := range found {
		sessions = append(sessions, SessionInfo{
			SessionID: m.SessionID,
			JobName:   m.JobName,
			StartTime: m.StartTime,
			Status:    m.Status(),
			LogPath:   GetSessionLogPath(m.SessionID),
		})
	}
	return sessions, nil
}
