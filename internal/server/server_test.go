package server

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobshell.dev/internal/config"
	"jobshell.dev/internal/process"
)

// newTestServer builds a Server rooted in a temporary working directory
func newTestServer(t *testing.T, manifest *config.Manifest) *Server {
	t.Helper()

	tmpDir := t.TempDir()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { _ = os.Chdir(oldWd) })

	pm := process.NewManager()
	s := NewServer(manifest, pm, "0.0.1", "")
	t.Cleanup(func() { _ = s.Manager().StopAll() })
	return s
}

func callTool(t *testing.T, s *Server, name string, args map[string]interface{}) (string, bool) {
	t.Helper()

	tool := s.GetMCPServer().GetTool(name)
	require.NotNil(t, tool, "tool %s is not registered", name)

	var req mcp.CallToolRequest
	req.Params.Name = name
	if args == nil {
		args = map[string]interface{}{}
	}
	req.Params.Arguments = args

	result, err := tool.Handler(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text, result.IsError
}

func testManifest() *config.Manifest {
	return &config.Manifest{
		Version: "1.0",
		Jobs: map[string]config.Job{
			"hello": {
				Type:        config.JobTypeOneShot,
				Description: "Say hello",
				Command:     "echo hello {{.name}}",
				Parameters: map[string]config.Param{
					"name": {Type: "string", Required: true, Description: "Who to greet"},
				},
			},
			"bigout": {
				Type:        config.JobTypeOneShot,
				Description: "200 lines stdout",
				Command:     "seq 1 200",
			},
			"hidden": {
				Type:        config.JobTypeOneShot,
				Description: "Hidden",
				Command:     "true",
				DisableMCP:  true,
			},
			"sleeper": {
				Type:        config.JobTypeDaemon,
				Description: "Sleeps",
				Command:     "sleep 30",
				KillAfter:   1,
			},
		},
	}
}

func TestRegisterToolsSkipsHiddenJobs(t *testing.T) {
	s := newTestServer(t, testManifest())

	tools := s.GetMCPServer().ListTools()
	for _, name := range []string{"run_hello", "run_bigout", "start_sleeper", "logs_sleeper", "refresh_config", "list_jobs", "list_processes", "read_session_log"} {
		assert.Contains(t, tools, name)
	}
	assert.NotContains(t, tools, "run_hidden")
	assert.NotContains(t, tools, "run_sleeper")
	assert.NotContains(t, tools, "start_hello")
}

func TestRunToolExecutesJob(t *testing.T) {
	s := newTestServer(t, testManifest())

	text, isErr := callTool(t, s, "run_hello", map[string]interface{}{"name": "world"})
	require.False(t, isErr, text)

	var resp oneShotResponse
	require.NoError(t, json.Unmarshal([]byte(text), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "hello world", resp.Stdout)
	assert.Equal(t, 1, resp.StdoutLines)
	assert.NotEmpty(t, resp.SessionID)

	text, isErr = callTool(t, s, "read_session_metadata", map[string]interface{}{"session_id": resp.SessionID})
	require.False(t, isErr, text)
	assert.Contains(t, text, `"job_name":"hello"`)
}

func TestRunToolMissingParameter(t *testing.T) {
	s := newTestServer(t, testManifest())

	text, _ := callTool(t, s, "run_hello", nil)
	var resp oneShotResponse
	require.NoError(t, json.Unmarshal([]byte(text), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "name")
}

func TestRunToolTruncatesOutput(t *testing.T) {
	s := newTestServer(t, testManifest())

	text, isErr := callTool(t, s, "run_bigout", nil)
	require.False(t, isErr, text)

	var resp oneShotResponse
	require.NoError(t, json.Unmarshal([]byte(text), &resp))
	assert.Equal(t, 100, resp.StdoutLines)
	assert.Equal(t, 200, resp.StdoutTotalLines)
	assert.True(t, resp.StdoutTruncated)

	text, isErr = callTool(t, s, "run_bigout", map[string]interface{}{"max_output_lines": float64(0)})
	require.False(t, isErr, text)
	require.NoError(t, json.Unmarshal([]byte(text), &resp))
	assert.Equal(t, 200, resp.StdoutLines)
	assert.False(t, resp.StdoutTruncated)
}

func TestDaemonTools(t *testing.T) {
	s := newTestServer(t, testManifest())

	text, isErr := callTool(t, s, "start_sleeper", nil)
	require.False(t, isErr, text)
	assert.Contains(t, text, `"success":true`)

	text, isErr = callTool(t, s, "status_sleeper", nil)
	require.False(t, isErr, text)
	assert.Contains(t, text, `"running":true`)

	text, isErr = callTool(t, s, "list_processes", nil)
	require.False(t, isErr, text)
	assert.Contains(t, text, "sleep 30")

	text, isErr = callTool(t, s, "list_jobs", nil)
	require.False(t, isErr, text)
	var listing []jobListing
	require.NoError(t, json.Unmarshal([]byte(text), &listing))
	require.Len(t, listing, 3)
	assert.Equal(t, "sleeper", listing[2].Name)
	assert.True(t, listing[2].Running)

	text, isErr = callTool(t, s, "stop_sleeper", nil)
	require.False(t, isErr, text)
	assert.Contains(t, text, `"success":true`)

	text, _ = callTool(t, s, "status_sleeper", nil)
	assert.Contains(t, text, `"running":false`)
}

func TestDaemonLogsBeforeFirstRun(t *testing.T) {
	s := newTestServer(t, testManifest())

	text, isErr := callTool(t, s, "logs_sleeper", nil)
	require.False(t, isErr)
	assert.JSONEq(t, `{"lines":[],"count":0,"total_lines":0,"has_more":false}`, text)
}

func TestSessionToolsRequireArguments(t *testing.T) {
	s := newTestServer(t, testManifest())

	_, isErr := callTool(t, s, "list_sessions", nil)
	assert.True(t, isErr)
	_, isErr = callTool(t, s, "read_session_log", nil)
	assert.True(t, isErr)
	_, isErr = callTool(t, s, "read_session_metadata", nil)
	assert.True(t, isErr)
}

func TestRefreshReregistersTools(t *testing.T) {
	s := newTestServer(t, testManifest())
	s.configPath = "jobshell.yaml"

	manifest := `version: "1.0"
jobs:
  fresh:
    description: Fresh job
    command: echo fresh
`
	require.NoError(t, os.WriteFile("jobshell.yaml", []byte(manifest), 0644))

	text, isErr := callTool(t, s, "refresh_config", nil)
	require.False(t, isErr, text)
	assert.Contains(t, text, `"jobs":1`)

	tools := s.GetMCPServer().ListTools()
	assert.Contains(t, tools, "run_fresh")
	assert.Contains(t, tools, "refresh_config")
	assert.NotContains(t, tools, "run_hello")
	assert.NotContains(t, tools, "start_sleeper")
}

func TestRefreshStopsRemovedDaemons(t *testing.T) {
	s := newTestServer(t, testManifest())
	s.configPath = "jobshell.yaml"

	text, isErr := callTool(t, s, "start_sleeper", nil)
	require.False(t, isErr, text)

	require.NoError(t, os.WriteFile("jobshell.yaml", []byte(`version: "1.0"
jobs:
  fresh:
    description: Fresh job
    command: echo fresh
`), 0644))

	text, isErr = callTool(t, s, "refresh_config", nil)
	require.False(t, isErr, text)
	assert.Contains(t, text, `"stopped":["sleeper"]`)

	status, err := s.processManager.Status("sleeper")
	require.NoError(t, err)
	assert.False(t, status.Running)
}

func TestRefreshKeepsToolsOnError(t *testing.T) {
	s := newTestServer(t, testManifest())
	s.configPath = "missing.yaml"

	_, isErr := callTool(t, s, "refresh_config", nil)
	assert.True(t, isErr)
	assert.NotNil(t, s.GetMCPServer().GetTool("run_hello"))
}
