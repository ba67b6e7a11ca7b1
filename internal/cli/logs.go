package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"jobshell.dev/internal/logs"
)

func newLogsCmd() *cobra.Command {
	var (
		logsLines   int
		logsFilter  string
		logsSession string
		logsOffset  int
		logsList    bool
	)

	cmd := &cobra.Command{
		Use:   "logs <job>",
		Short: "Show job logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyWorkingDir(); err != nil {
				return err
			}
			var code int
			if logsList {
				code = execListSessions(args[0], logsLines)
			} else {
				code = execLogs(args[0], logs.ReadOptions{
					Lines:     logsLines,
					Filter:    logsFilter,
					SessionID: logsSession,
					Offset:    logsOffset,
				})
			}
			if code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&logsLines, "lines", 0, "Number of lines (or sessions with --sessions) to show (0 = all)")
	cmd.Flags().StringVar(&logsFilter, "filter", "", "Regex pattern to filter lines")
	cmd.Flags().StringVar(&logsSession, "session", "", "Session ID to read from (default: latest)")
	cmd.Flags().IntVar(&logsOffset, "offset", 0, "Skip last N lines (for paging backwards through history)")
	cmd.Flags().BoolVar(&logsList, "sessions", false, "List recorded sessions instead of printing a log")

	return cmd
}

func execLogs(jobName string, opts logs.ReadOptions) int {
	manifest, _, _, err := bootstrap(globalConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if _, exists := manifest.Jobs[jobName]; !exists {
		fmt.Fprintf(os.Stderr, "Error: job '%s' not found\n", jobName)
		return 1
	}

	logLines, err := logs.ReadLog(jobName, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if len(logLines) == 0 {
		fmt.Fprintln(os.Stderr, "No log output found.")
		return 0
	}

	for _, line := range logLines {
		fmt.Println(line)
	}
	return 0
}

func execListSessions(jobName string, limit int) int {
	if err := logs.Setup(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	sessions, err := logs.ListSessions(jobName, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if len(sessions) == 0 {
		fmt.Fprintln(os.Stderr, "No sessions found.")
		return 0
	}

	for _, s := range sessions {
		fmt.Printf("%s  %s  %s\n", s.SessionID, s.StartTime.Format("2006-01-02 15:04:05"), s.Status)
	}
	return 0
}
