package server

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"jobshell.dev/internal/config"
	"jobshell.dev/shell"
)

type jobListing struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Running     bool   `json:"running,omitempty"`
	PID         int    `json:"pid,omitempty"`
}

// registerProcessTools registers tools that describe the manifest and the
// children this server is supervising
func (s *Server) registerProcessTools() {
	s.registerListJobsTool()
	s.registerListProcessesTool()
}

func (s *Server) registerListJobsTool() {
	tool := mcp.Tool{
		Name:        "list_jobs",
		Description: "List the jobs in the manifest, with the running state of daemons",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: make(map[string]interface{})},
	}

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.mu.RLock()
		manifest := s.manifest
		manager := s.manager
		s.mu.RUnlock()

		var listing []jobListing
		for name, job := range manifest.Jobs {
			if !exposed(job) {
				continue
			}
			entry := jobListing{Name: name, Type: string(job.Type), Description: job.Description}
			if job.Type == config.JobTypeDaemon {
				if st, err := manager.DaemonStatus(name); err == nil {
					entry.Running = st.Running
					entry.PID = st.PID
				}
			}
			listing = append(listing, entry)
		}
		sort.Slice(listing, func(i, j int) bool { return listing[i].Name < listing[j].Name })

		resultJSON, _ := json.Marshal(listing)
		return mcp.NewToolResultText(string(resultJSON)), nil
	}

	s.mcpServer.AddTool(tool, handler)
}

func (s *Server) registerListProcessesTool() {
	tool := mcp.Tool{
		Name:        "list_processes",
		Description: "List every child process currently supervised by this server",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: make(map[string]interface{})},
	}

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := map[string]interface{}{
			"processes":      shell.Jobs(),
			"delivery_state": shell.CurrentDeliveryState().String(),
			"time":           time.Now().Format(time.RFC3339),
		}
		resultJSON, _ := json.Marshal(result)
		return mcp.NewToolResultText(string(resultJSON)), nil
	}

	s.mcpServer.AddTool(tool, handler)
}
