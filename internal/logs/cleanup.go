package logs

import (
	"log/slog"
	"os"
	"time"
)

// SessionRetention bounds how many sessions are kept per job. Zero fields
// are unlimited.
type SessionRetention struct {
	MaxSessions int
	MaxAge      time.Duration
}

// DefaultRetention keeps a week of history, at most 100 runs per job
var DefaultRetention = SessionRetention{
	MaxSessions: 100,
	MaxAge:      7 * 24 * time.Hour,
}

// expired returns the sessions retention drops from one job's history,
// given newest first. Unfinished sessions and the newest one are never
// dropped: their children may still be writing to the log.
func (r SessionRetention) expired(history []*SessionMetadata, now time.Time) []*SessionMetadata {
	var drop []*SessionMetadata
	for i, m := range history {
		if i == 0 || !m.Finished() {
			continue
		}
		tooMany := r.MaxSessions > 0 && i >= r.MaxSessions
		tooOld := r.MaxAge > 0 && now.Sub(m.StartTime) > r.MaxAge
		if tooMany || tooOld {
			drop = append(drop, m)
		}
	}
	return drop
}

// CleanupOldSessions prunes one job's sessions and returns how many were
// removed
func CleanupOldSessions(jobName string, retention SessionRetention) (int, error) {
	history, err := scanSessions(func(m *SessionMetadata) bool { return m.JobName == jobName })
	if err != nil {
		return 0, err
	}
	newestFirst(history)
	return removeSessions(retention.expired(history, time.Now())), nil
}

// CleanupAllSessions prunes the sessions of every job
func CleanupAllSessions(retention SessionRetention) (int, error) {
	all, err := scanSessions(nil)
	if err != nil {
		return 0, err
	}

	byJob := make(map[string][]*SessionMetadata)
	for _, m := range all {
		byJob[m.JobName] = append(byJob[m.JobName], m)
	}

	now := time.Now()
	removed := 0
	for _, history := range byJob {
		newestFirst(history)
		removed += removeSessions(retention.expired(history, now))
	}
	return removed, nil
}

func removeSessions(sessions []*SessionMetadata) int {
	removed := 0
	for _, m := range sessions {
		if err := os.RemoveAll(GetSessionDirectory(m.SessionID)); err != nil {
			slog.Warn("failed to delete session", "session", m.SessionID, "job", m.JobName, "error", err)
			continue
		}
		removed++
	}
	return removed
}
