package server

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"jobshell.dev/internal/config"
	"jobshell.dev/internal/runner"
)

type refreshResult struct {
	Success bool     `json:"success"`
	Jobs    int      `json:"jobs"`
	Stopped []string `json:"stopped,omitempty"`
}

// registerRefreshConfigTool registers the refresh_config tool that reloads
// the manifest from disk while the server is running.
func (s *Server) registerRefreshConfigTool() {
	tool := mcp.NewTool("refresh_config",
		mcp.WithDescription("Reload the job manifest from disk and re-register job tools without restarting the server. "+
			"Daemons that are still declared keep running; daemons whose job was removed or disabled are stopped."),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stopped, err := s.Refresh()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		s.mu.RLock()
		jobs := len(s.manifest.Jobs)
		s.mu.RUnlock()

		return mcp.NewToolResultJSON(refreshResult{Success: true, Jobs: jobs, Stopped: stopped})
	})
}

// Refresh reloads the manifest, swaps in a job manager sharing the daemon
// supervisor and re-registers the job tools. Daemons that the new
// manifest no longer declares are stopped and returned.
func (s *Server) Refresh() ([]string, error) {
	manifest, err := config.LoadManifest(s.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to reload config: %w", err)
	}

	s.mu.Lock()
	previous := s.manifest
	oldToolNames := s.collectToolNames()
	s.manifest = manifest
	s.manager = runner.NewManager(manifest, s.processManager)
	if len(oldToolNames) > 0 {
		s.mcpServer.DeleteTools(oldToolNames...)
	}
	s.registerTools()
	s.mu.Unlock()

	slog.Info("manifest reloaded", "jobs", len(manifest.Jobs))
	return s.stopUndeclared(previous, manifest), nil
}

// stopUndeclared stops the daemons of previous that are gone, disabled or
// no longer daemons in current
func (s *Server) stopUndeclared(previous, current *config.Manifest) []string {
	var stopped []string
	for name, job := range previous.Jobs {
		if job.Type != config.JobTypeDaemon {
			continue
		}
		if next, ok := current.Jobs[name]; ok && next.Type == config.JobTypeDaemon && !next.Disabled {
			continue
		}

		status, err := s.processManager.Status(name)
		if err != nil || !status.Running || !status.Owned {
			continue
		}
		grace := time.Duration(job.KillAfter) * time.Second
		if err := s.processManager.Stop(name, grace); err != nil {
			slog.Warn("failed to stop undeclared daemon", "job", name, "error", err)
			continue
		}
		slog.Info("stopped undeclared daemon", "job", name, "pid", status.PID)
		stopped = append(stopped, name)
	}
	sort.Strings(stopped)
	return stopped
}
