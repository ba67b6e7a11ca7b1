package server

import (
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"jobshell.dev/internal/config"
	"jobshell.dev/internal/logs"
	"jobshell.dev/internal/runner"
)

// Server wraps the MCP server with job management
type Server struct {
	mu             sync.RWMutex
	mcpServer      *server.MCPServer
	manager        *runner.Manager
	manifest       *config.Manifest
	configPath     string
	version        string
	processManager runner.ProcessManager
}

// NewServer creates a new MCP server exposing the manifest's jobs as tools.
// Every child it starts is supervised by the process-wide registry, so a
// trapped signal tears them down with the server.
func NewServer(manifest *config.Manifest, processManager runner.ProcessManager, version string, configPath string) *Server {
	mcpServer := server.NewMCPServer(
		"jobshell",
		version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcpServer:      mcpServer,
		manager:        runner.NewManager(manifest, processManager),
		manifest:       manifest,
		configPath:     configPath,
		version:        version,
		processManager: processManager,
	}

	// Clean up old sessions at startup to bound directory size
	if _, err := logs.CleanupAllSessions(logs.DefaultRetention); err != nil {
		slog.Warn("session cleanup failed", "error", err)
	}

	s.registerRefreshConfigTool()
	s.registerProcessTools()
	s.registerTools()

	return s
}

// Serve starts the MCP server over stdio and returns when stdin closes
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// Manager returns the job manager for the current manifest
func (s *Server) Manager() *runner.Manager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manager
}

// GetMCPServer returns the underlying MCP server
func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
