package logs

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
)

// ReadOptions contains options for reading log files
type ReadOptions struct {
	Lines     int    // Number of lines to tail (0 means all)
	Filter    string // Regex pattern to filter lines (empty means no filter)
	SessionID string // Optional session ID to read from (empty means latest)
	Offset    int    // Skip the last N lines before tailing (for paging backwards)
}

// ReadLog reads the log file for a job with optional tailing and filtering
// If SessionID is specified in opts, reads from that specific session
// Otherwise, reads from the latest session of the job
func ReadLog(jobName string, opts ReadOptions) ([]string, error) {
	sessionID := opts.SessionID
	if sessionID == "" {
		latest, err := GetLatestSessionID(jobName)
		if err != nil {
			return []string{}, nil // Job has never run
		}
		sessionID = latest
	}
	lines, _, err := readLogFile(GetSessionLogPath(sessionID), opts)
	return lines, err
}

// ReadSessionLog reads the log file for a specific session. It also returns
// the number of lines that matched the filter before tailing.
func ReadSessionLog(sessionID string, opts ReadOptions) ([]string, int, error) {
	return readLogFile(GetSessionLogPath(sessionID), opts)
}

func readLogFile(logPath string, opts ReadOptions) ([]string, int, error) {
	// Check if log file exists
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		return []string{}, 0, nil // No log file yet
	}

	// Open log file
	file, err := os.Open(logPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	// Read all lines
	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read log file: %w", err)
	}

	// Apply filter if specified
	if opts.Filter != "" {
		lines, err = filterLines(lines, opts.Filter)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to filter lines: %w", err)
		}
	}
	total := len(lines)

	// Apply offset, then tail
	if opts.Offset > 0 {
		if opts.Offset >= len(lines) {
			return []string{}, total, nil
		}
		lines = lines[:len(lines)-opts.Offset]
	}
	if opts.Lines > 0 && len(lines) > opts.Lines {
		lines = lines[len(lines)-opts.Lines:]
	}

	return lines, total, nil
}

// filterLines filters lines using a regex pattern
func filterLines(lines []string, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}

	var filtered []string
	for _, line := range lines {
		if re.MatchString(line) {
			filtered = append(filtered, line)
		}
	}

	return filtered, nil
}
