package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"jobshell.dev/internal/logs"
)

// logPage is one page of a session log, read backwards from the end
type logPage struct {
	SessionID  string   `json:"session_id,omitempty"`
	Lines      []string `json:"lines"`
	Count      int      `json:"count"`
	TotalLines int      `json:"total_lines"`
	HasMore    bool     `json:"has_more"`
}

func readLogPage(opts logs.ReadOptions) (*logPage, error) {
	lines, total, err := logs.ReadSessionLog(opts.SessionID, opts)
	if err != nil {
		return nil, err
	}
	if lines == nil {
		lines = []string{}
	}
	return &logPage{
		Lines:      lines,
		Count:      len(lines),
		TotalLines: total,
		HasMore:    calcHasMore(total, opts.Lines, opts.Offset),
	}, nil
}

// registerSessionManagementTools registers the tools that browse run
// history across all jobs
func (s *Server) registerSessionManagementTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List recent runs of a job, newest first, with how each one ended"),
		mcp.WithString("job_name", mcp.Required(), mcp.Description("Job to list runs for")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of sessions to return (default: 20)")),
	), s.handleListSessions)

	s.mcpServer.AddTool(mcp.NewTool("read_session_metadata",
		mcp.WithDescription("Read the recorded command, pid, exit status and timing of one run"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to read")),
	), s.handleReadSessionMetadata)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "read_session_log",
		Description: "Read the combined output of one run",
		InputSchema: sessionLogInputSchema(),
	}, s.handleReadSessionLog)
}

func (s *Server) handleListSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobName, err := req.RequireString("job_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sessions, err := logs.ListSessions(jobName, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to list sessions", err), nil
	}
	return mcp.NewToolResultJSON(sessions)
}

func (s *Server) handleReadSessionMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	metadata, err := logs.ReadSessionMetadata(sessionID)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to read session metadata", err), nil
	}
	return mcp.NewToolResultJSON(metadata)
}

func (s *Server) handleReadSessionLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := readOptions(req.GetArguments())
	if opts.SessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	page, err := readLogPage(opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read session log: %v", err)), nil
	}
	return mcp.NewToolResultJSON(page)
}

// sessionLogInputSchema is the daemon log schema with a required session_id
func sessionLogInputSchema() mcp.ToolInputSchema {
	schema := daemonLogsInputSchema()
	schema.Properties["session_id"] = map[string]interface{}{
		"type":        "string",
		"description": "Session to read",
	}
	schema.Required = []string{"session_id"}
	return schema
}
