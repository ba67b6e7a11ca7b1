package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"jobshell.dev/internal/config"
	"jobshell.dev/internal/server"
	"jobshell.dev/shell"
)

func newServeCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the manifest's jobs as MCP tools over stdio",
		Long: `serve exposes the manifest's jobs to an MCP client on stdin/stdout: one
run_<job> tool per oneshot job and start/stop/status/logs tools per daemon.
Every child it starts is supervised; when stdin closes all daemons are stopped,
and SIGINT or SIGTERM tears every child down before exiting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyWorkingDir(); err != nil {
				return err
			}
			return cmdServe(version)
		},
	}
}

func cmdServe(version string) error {
	manifest, _, processManager, err := bootstrap(globalConfig)
	if err != nil {
		return err
	}

	shell.TrapSignals(shell.WithKillAfter(config.DefaultKillAfter * time.Second))

	srv := server.NewServer(manifest, processManager, version, globalConfig)
	slog.Info("serving MCP over stdio", "jobs", len(manifest.Jobs))

	serveErr := srv.Serve()
	if err := processManager.StopAll(config.DefaultKillAfter * time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping daemons: %v\n", err)
	}
	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	return nil
}
