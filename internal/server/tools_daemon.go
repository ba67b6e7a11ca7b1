package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"jobshell.dev/internal/config"
	"jobshell.dev/internal/logs"
)

// registerDaemonTools registers daemon job tools
func (s *Server) registerDaemonTools(jobName string, job config.Job) {
	s.registerDaemonStartTool(jobName, job)
	s.registerDaemonStopTool(jobName, job)
	s.registerDaemonStatusTool(jobName, job)
	s.registerDaemonLogsTool(jobName, job)
}

func (s *Server) registerDaemonStartTool(jobName string, job config.Job) {
	tool := mcp.Tool{
		Name:        "start_" + jobName,
		Description: fmt.Sprintf("Start daemon: %s", job.Description),
		InputSchema: paramSchema(job),
	}

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := s.Manager().StartDaemon(ctx, jobName, req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		resultJSON, _ := json.Marshal(result)
		if !result.Success {
			return mcp.NewToolResultError(string(resultJSON)), nil
		}
		return mcp.NewToolResultText(string(resultJSON)), nil
	}

	s.mcpServer.AddTool(tool, handler)
}

func (s *Server) registerDaemonStopTool(jobName string, job config.Job) {
	tool := mcp.Tool{
		Name:        "stop_" + jobName,
		Description: fmt.Sprintf("Stop daemon: %s", job.Description),
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: make(map[string]interface{})},
	}

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := s.Manager().StopDaemon(jobName)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		resultJSON, _ := json.Marshal(result)
		return mcp.NewToolResultText(string(resultJSON)), nil
	}

	s.mcpServer.AddTool(tool, handler)
}

func (s *Server) registerDaemonStatusTool(jobName string, job config.Job) {
	tool := mcp.Tool{
		Name:        "status_" + jobName,
		Description: fmt.Sprintf("Check status of daemon: %s", job.Description),
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: make(map[string]interface{})},
	}

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status, err := s.Manager().DaemonStatus(jobName)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		resultJSON, _ := json.Marshal(status)
		return mcp.NewToolResultText(string(resultJSON)), nil
	}

	s.mcpServer.AddTool(tool, handler)
}

// daemonLogsInputSchema returns the input schema for logs_<job> tools.
func daemonLogsInputSchema() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"lines": map[string]interface{}{
				"type":        "number",
				"description": "Number of lines to tail (default: 100)",
			},
			"filter": map[string]interface{}{
				"type":        "string",
				"description": "Regex pattern to filter logs",
			},
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Optional session ID to read logs from (default: latest)",
			},
			"offset": map[string]interface{}{
				"type":        "number",
				"description": "Skip the last N lines (for paging backwards through history)",
			},
		},
	}
}

func (s *Server) registerDaemonLogsTool(jobName string, job config.Job) {
	tool := mcp.Tool{
		Name:        "logs_" + jobName,
		Description: fmt.Sprintf("Read logs for daemon: %s", job.Description),
		InputSchema: daemonLogsInputSchema(),
	}

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		opts := readOptions(req.GetArguments())

		if opts.SessionID == "" {
			latest, err := logs.GetLatestSessionID(jobName)
			if err != nil {
				return mcp.NewToolResultJSON(&logPage{Lines: []string{}})
			}
			opts.SessionID = latest
		}

		page, err := readLogPage(opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read logs: %v", err)), nil
		}
		page.SessionID = opts.SessionID
		return mcp.NewToolResultJSON(page)
	}

	s.mcpServer.AddTool(tool, handler)
}

// readOptions extracts log paging arguments shared by the log tools
func readOptions(args map[string]interface{}) logs.ReadOptions {
	opts := logs.ReadOptions{Lines: 100}
	if lines, ok := args["lines"].(float64); ok {
		opts.Lines = int(lines)
	}
	if filter, ok := args["filter"].(string); ok {
		opts.Filter = filter
	}
	if sessionID, ok := args["session_id"].(string); ok {
		opts.SessionID = sessionID
	}
	if offset, ok := args["offset"].(float64); ok {
		opts.Offset = int(offset)
	}
	return opts
}
