package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"jobshell.dev/internal/process"
	"jobshell.dev/internal/runner"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// isTerminal returns true if the given file is a terminal.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// color wraps text in ANSI color if stderr is a terminal.
func color(code, text string) string {
	if !isTerminal(os.Stderr) {
		return text
	}
	return code + text + colorReset
}

// printExecutionResult prints the summary of a oneshot run to stderr. The
// job's own output has already been streamed.
func printExecutionResult(r *runner.ExecutionResult) {
	for _, dep := range r.Dependencies {
		printStepLine(dep)
	}

	fmt.Fprintln(os.Stderr)
	switch {
	case r.Success:
		fmt.Fprintf(os.Stderr, "%s  %s\n",
			color(colorGreen+colorBold, "[OK]"),
			color(colorDim, formatDuration(r.Duration)))
	case r.TimedOut:
		fmt.Fprintf(os.Stderr, "%s  %s\n",
			color(colorYellow+colorBold, "[TIMEOUT]"),
			color(colorDim, formatDuration(r.Duration)))
	case r.Signal != "":
		fmt.Fprintf(os.Stderr, "%s  %s  %s\n",
			color(colorRed+colorBold, "[KILLED]"),
			r.Signal,
			color(colorDim, formatDuration(r.Duration)))
	default:
		fmt.Fprintf(os.Stderr, "%s  exit code %d  %s\n",
			color(colorRed+colorBold, "[FAIL]"),
			r.ExitCode,
			color(colorDim, formatDuration(r.Duration)))
	}
	if r.Error != "" {
		fmt.Fprintf(os.Stderr, "%s %s\n", color(colorRed, "Error:"), r.Error)
	}
	if r.SessionID != "" {
		fmt.Fprintf(os.Stderr, "%s %s\n", color(colorDim, "Session:"), r.SessionID)
	}
}

// printStepLine prints one line per dependency that ran before the job.
func printStepLine(r *runner.ExecutionResult) {
	for _, dep := range r.Dependencies {
		printStepLine(dep)
	}
	if r.Success {
		fmt.Fprintf(os.Stderr, "  %s %s  %s\n",
			color(colorGreen, "[OK]"),
			r.JobName,
			color(colorDim, formatDuration(r.Duration)))
		return
	}
	fmt.Fprintf(os.Stderr, "  %s %s  exit code %d  %s\n",
		color(colorRed, "[FAIL]"),
		r.JobName,
		r.ExitCode,
		color(colorDim, formatDuration(r.Duration)))
}

// printDaemonStartResult prints a daemon start result.
func printDaemonStartResult(name string, r *runner.DaemonStartResult) {
	if r.Success {
		fmt.Fprintf(os.Stderr, "%s  %s  PID %d\n",
			color(colorGreen+colorBold, "[STARTED]"),
			name,
			r.PID)
		fmt.Fprintf(os.Stderr, "%s %s\n", color(colorDim, "Logs:"), r.LogPath)
		if r.Ready {
			fmt.Fprintf(os.Stderr, "%s yes\n", color(colorDim, "Ready:"))
		}
	} else {
		fmt.Fprintf(os.Stderr, "%s %s\n",
			color(colorRed+colorBold, "[ERROR]"),
			r.Error)
	}
}

// printDaemonStopResult prints a daemon stop result.
func printDaemonStopResult(name string, r *runner.DaemonStopResult) {
	if r.Success {
		fmt.Fprintf(os.Stderr, "%s  %s\n", color(colorGreen+colorBold, "[STOPPED]"), name)
	} else {
		fmt.Fprintf(os.Stderr, "%s %s\n",
			color(colorRed+colorBold, "[ERROR]"),
			r.Error)
	}
}

// printStatusTable prints one row per recorded daemon.
func printStatusTable(statuses []process.Status) {
	col1 := len("JOB")
	for _, st := range statuses {
		if len(st.JobName) > col1 {
			col1 = len(st.JobName)
		}
	}

	fmt.Printf("%s%s  %-9s  %-7s  %s\n",
		color(colorBold, "JOB"), strings.Repeat(" ", col1-len("JOB")),
		"STATE", "PID", "UPTIME")
	for _, st := range statuses {
		state, uptime := "stopped", "-"
		if st.Running {
			state = "running"
			uptime = formatDuration(time.Since(st.StartTime))
		}
		fmt.Printf("%-*s  %-9s  %-7d  %s\n", col1, st.JobName, state, st.PID, uptime)
	}
}

// printDaemonStatus prints daemon status information.
func printDaemonStatus(name string, s *runner.DaemonStatus) {
	if s.Running {
		fmt.Fprintf(os.Stderr, "%s  %s  PID %d  up %s\n",
			color(colorGreen+colorBold, "[RUNNING]"),
			name,
			s.PID,
			s.Uptime)
		if s.LogPath != "" {
			fmt.Fprintf(os.Stderr, "%s %s\n", color(colorDim, "Logs:"), s.LogPath)
		}
		if s.SessionID != "" {
			fmt.Fprintf(os.Stderr, "%s %s\n", color(colorDim, "Session:"), s.SessionID)
		}
		if s.Ready != nil && !*s.Ready {
			fmt.Fprintf(os.Stderr, "%s %s\n", color(colorYellow, "Ready:"), "not answering")
		}
	} else {
		fmt.Fprintf(os.Stderr, "%s  %s\n", color(colorYellow+colorBold, "[STOPPED]"), name)
	}
}

// formatDuration formats a duration for human display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
