package logs

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Writer appends a job's output to its session log, rotating the file once
// it exceeds MaxLogSize. It is safe for concurrent use, so stdout and stderr
// of a child can share one Writer.
type Writer struct {
	mu        sync.Mutex
	sessionID string
	file      *os.File
	logPath   string
}

// NewWriter creates the session directory, writes the initial metadata,
// points the job's latest link at the session and opens the log file
func NewWriter(sessionID string, metadata *SessionMetadata) (*Writer, error) {
	if err := CreateSessionDirectory(sessionID); err != nil {
		return nil, err
	}
	if err := WriteSessionMetadata(sessionID, metadata); err != nil {
		return nil, err
	}
	if err := CreateLatestLink(metadata.JobName, sessionID); err != nil {
		return nil, err
	}

	logPath := GetSessionLogPath(sessionID)
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &Writer{
		sessionID: sessionID,
		file:      file,
		logPath:   logPath,
	}, nil
}

// Write appends p to the log file
func (w *Writer) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err = w.file.Write(p)
	if err != nil {
		return n, err
	}

	if err := w.rotateIfNeeded(); err != nil {
		// Rotation failure must not fail the job's write
		slog.Warn("log rotation failed", "session", w.sessionID, "error", err)
	}

	return n, nil
}

// UpdateMetadata applies update to the session's metadata file
func (w *Writer) UpdateMetadata(update func(*SessionMetadata)) {
	if err := UpdateSessionMetadata(w.sessionID, update); err != nil {
		slog.Warn("failed to update session metadata", "session", w.sessionID, "error", err)
	}
}

// GetLogPath returns the path of the active log file
func (w *Writer) GetLogPath() string {
	return w.logPath
}

// SessionID returns the session the writer belongs to
func (w *Writer) SessionID() string {
	return w.sessionID
}

// Close closes the log file
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}

// rotateIfNeeded renames the log with a timestamp suffix once it reaches
// MaxLogSize and continues in a fresh file
func (w *Writer) rotateIfNeeded() error {
	info, err := w.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	if info.Size() < MaxLogSize {
		return nil
	}

	rotatedPath := GetRotatedLogPath(w.sessionID, time.Now().UnixNano())
	if err := os.Rename(w.logPath, rotatedPath); err != nil {
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	file, err := os.OpenFile(w.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to reopen log file: %w", err)
	}
	_ = w.file.Close()
	w.file = file
	return nil
}
