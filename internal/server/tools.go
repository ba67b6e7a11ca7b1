package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"jobshell.dev/internal/config"
)

// oneShotResponse is the MCP response for one-shot job execution.
// Stdout and Stderr are truncated to the last mcpOutputMaxLines lines.
type oneShotResponse struct {
	JobName          string   `json:"job_name,omitempty"`
	SessionID        string   `json:"session_id,omitempty"`
	LogPath          string   `json:"log_path,omitempty"`
	Success          bool     `json:"success"`
	ExitCode         int      `json:"exit_code"`
	Signal           string   `json:"signal,omitempty"`
	Duration         string   `json:"duration"`
	Error            string   `json:"error,omitempty"`
	TimedOut         bool     `json:"timed_out,omitempty"`
	Dependencies     []string `json:"dependencies,omitempty"`
	Stdout           string   `json:"stdout,omitempty"`
	StdoutLines      int      `json:"stdout_lines,omitempty"`
	StdoutTotalLines int      `json:"stdout_total_lines,omitempty"`
	StdoutTruncated  bool     `json:"stdout_truncated,omitempty"`
	Stderr           string   `json:"stderr,omitempty"`
	StderrLines      int      `json:"stderr_lines,omitempty"`
	StderrTotalLines int      `json:"stderr_total_lines,omitempty"`
	StderrTruncated  bool     `json:"stderr_truncated,omitempty"`
}

// mcpOutputMaxLines is the maximum number of output lines returned in MCP responses.
const mcpOutputMaxLines = 100

// calcHasMore reports whether there are older lines beyond what was returned.
// When lines == 0 (all lines requested), there is nothing more to page through.
func calcHasMore(totalLines, lines, offset int) bool {
	return lines > 0 && totalLines > lines+offset
}

// truncateToLines splits s into lines, returns the last max lines (or all if max<=0),
// along with the number of lines shown and the total line count.
// A trailing newline does not count as an extra empty line.
func truncateToLines(s string, max int) (result string, shown int, total int) {
	if s == "" {
		return s, 0, 0
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	total = len(lines)
	if max > 0 && total > max {
		lines = lines[total-max:]
	}
	return strings.Join(lines, "\n"), len(lines), total
}

// exposed reports whether a job is visible to MCP clients
func exposed(job config.Job) bool {
	return !job.Disabled && !job.DisableMCP
}

// registerTools registers all jobs as MCP tools
func (s *Server) registerTools() {
	s.registerSessionManagementTools()

	for jobName, job := range s.manifest.Jobs {
		if !exposed(job) {
			continue
		}
		switch job.Type {
		case config.JobTypeOneShot:
			s.registerOneShotTool(jobName, job)
		case config.JobTypeDaemon:
			s.registerDaemonTools(jobName, job)
		}
	}
}

// collectToolNames returns the names of all currently registered job-derived tools.
// This is used during refresh to know which tools to remove before re-registering.
func (s *Server) collectToolNames() []string {
	names := []string{"list_sessions", "read_session_metadata", "read_session_log"}

	for jobName, job := range s.manifest.Jobs {
		if !exposed(job) {
			continue
		}
		switch job.Type {
		case config.JobTypeOneShot:
			names = append(names, "run_"+jobName)
		case config.JobTypeDaemon:
			names = append(names, "start_"+jobName, "stop_"+jobName, "status_"+jobName, "logs_"+jobName)
		}
	}

	sort.Strings(names)
	return names
}

// paramSchema builds the input schema properties for a job's parameters
func paramSchema(job config.Job) mcp.ToolInputSchema {
	inputSchema := mcp.ToolInputSchema{
		Type:       "object",
		Properties: make(map[string]interface{}),
		Required:   []string{},
	}

	for paramName, param := range job.Parameters {
		prop := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			prop["default"] = *param.Default
		}
		inputSchema.Properties[paramName] = prop
		if param.Required {
			inputSchema.Required = append(inputSchema.Required, paramName)
		}
	}
	sort.Strings(inputSchema.Required)
	return inputSchema
}

// registerOneShotTool registers a one-shot job as an MCP tool
func (s *Server) registerOneShotTool(jobName string, job config.Job) {
	inputSchema := paramSchema(job)

	// Add max_output_lines parameter for clients that want unlimited output
	inputSchema.Properties["max_output_lines"] = map[string]interface{}{
		"type":        "number",
		"description": "Maximum output lines to return per stream (default 100, 0=unlimited).",
	}

	tool := mcp.Tool{
		Name:        "run_" + jobName,
		Description: job.Description,
		InputSchema: inputSchema,
	}

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params := req.GetArguments()

		maxLines := mcpOutputMaxLines
		if v, ok := params["max_output_lines"].(float64); ok {
			maxLines = int(v)
			delete(params, "max_output_lines")
		}

		// The request context bounds the run: a cancelled call terminates
		// the child.
		result, err := s.Manager().ExecuteOneShot(ctx, jobName, params)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		stdout, stdoutShown, stdoutTotal := truncateToLines(result.Stdout, maxLines)
		stderr, stderrShown, stderrTotal := truncateToLines(result.Stderr, maxLines)

		resp := oneShotResponse{
			JobName:          result.JobName,
			SessionID:        result.SessionID,
			LogPath:          result.LogPath,
			Success:          result.Success,
			ExitCode:         result.ExitCode,
			Signal:           result.Signal,
			Duration:         result.Duration.String(),
			Error:            result.Error,
			TimedOut:         result.TimedOut,
			Stdout:           stdout,
			StdoutLines:      stdoutShown,
			StdoutTotalLines: stdoutTotal,
			StdoutTruncated:  stdoutTotal > stdoutShown,
			Stderr:           stderr,
			StderrLines:      stderrShown,
			StderrTotalLines: stderrTotal,
			StderrTruncated:  stderrTotal > stderrShown,
		}
		for _, dep := range result.Dependencies {
			resp.Dependencies = append(resp.Dependencies, dep.JobName)
		}

		resultJSON, err := json.Marshal(resp)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}

		return mcp.NewToolResultText(string(resultJSON)), nil
	}

	s.mcpServer.AddTool(tool, handler)
}
