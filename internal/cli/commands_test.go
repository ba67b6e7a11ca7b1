package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobshell.dev/internal/config"
	"jobshell.dev/internal/process"
	"jobshell.dev/internal/runner"
)

func upManifest() *config.Manifest {
	return &config.Manifest{
		Jobs: map[string]config.Job{
			"build":  {Command: "true", Type: config.JobTypeOneShot},
			"api":    {Command: "sleep 30", Type: config.JobTypeDaemon},
			"web":    {Command: "sleep 30", Type: config.JobTypeDaemon},
			"legacy": {Command: "sleep 30", Type: config.JobTypeDaemon, Disabled: true},
		},
		Groups: map[string]config.JobGroup{
			"local": {Jobs: []string{"build", "web", "api"}},
			"old":   {Jobs: []string{"legacy"}},
		},
	}
}

func TestResolveUpTargets(t *testing.T) {
	manifest := upManifest()

	t.Run("all daemons by default", func(t *testing.T) {
		oneshots, daemons, err := resolveUpTargets(manifest, nil)
		require.NoError(t, err)
		assert.Empty(t, oneshots)
		assert.Equal(t, []string{"api", "web"}, daemons)
	})

	t.Run("group expands in order", func(t *testing.T) {
		oneshots, daemons, err := resolveUpTargets(manifest, []string{"local"})
		require.NoError(t, err)
		assert.Equal(t, []string{"build"}, oneshots)
		assert.Equal(t, []string{"web", "api"}, daemons)
	})

	t.Run("repeats are dropped", func(t *testing.T) {
		_, daemons, err := resolveUpTargets(manifest, []string{"api", "local", "api"})
		require.NoError(t, err)
		assert.Equal(t, []string{"api", "web"}, daemons)
	})

	t.Run("oneshot named directly", func(t *testing.T) {
		_, _, err := resolveUpTargets(manifest, []string{"build"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jobshell run build")
	})

	t.Run("disabled job", func(t *testing.T) {
		_, _, err := resolveUpTargets(manifest, []string{"old"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disabled")
	})

	t.Run("unknown name", func(t *testing.T) {
		_, _, err := resolveUpTargets(manifest, []string{"nope"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestResultCode(t *testing.T) {
	assert.Equal(t, 0, resultCode(&runner.ExecutionResult{Success: true}))
	assert.Equal(t, 3, resultCode(&runner.ExecutionResult{ExitCode: 3}))
	assert.Equal(t, 143, resultCode(&runner.ExecutionResult{ExitCode: 143, Signal: "terminated"}))
	// timed out with a zero status still fails
	assert.Equal(t, 1, resultCode(&runner.ExecutionResult{TimedOut: true}))
}

func TestKillAfter(t *testing.T) {
	assert.Equal(t, 2*time.Second, killAfter(config.Job{KillAfter: 2}))
	assert.Equal(t, config.DefaultKillAfter*time.Second, killAfter(config.Job{}))
}

func writeManifest(t *testing.T, body string) {
	t.Helper()
	resetGlobals(t)
	tmp := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(tmp, manifestFile), []byte(body), 0644))
}

const runManifest = `version: "1.0"
jobs:
  fail:
    description: Exit with status 3
    command: exit 3
  greet:
    description: Print a greeting
    command: echo hello {{.name}}
    parameters:
      name:
        type: string
        required: true
        description: Who to greet
  serve:
    description: Long running
    type: daemon
    command: sleep 30
`

func TestCmdRunExitCodes(t *testing.T) {
	writeManifest(t, runManifest)
	ctx := context.Background()

	assert.Equal(t, 0, cmdRun(ctx, []string{"greet", "--name=world"}))
	assert.Equal(t, 3, cmdRun(ctx, []string{"fail"}))
	assert.Equal(t, 1, cmdRun(ctx, []string{"greet"}), "missing required parameter")
	assert.Equal(t, 1, cmdRun(ctx, []string{"serve"}), "daemon jobs are started with up")
	assert.Equal(t, 1, cmdRun(ctx, []string{"missing"}))
	assert.Equal(t, 1, cmdRun(ctx, nil))
}

func TestCmdExec(t *testing.T) {
	ctx := context.Background()

	code, err := cmdExec(ctx, []string{"sh", "-c", "exit 4"}, false)
	require.NoError(t, err)
	assert.Equal(t, 4, code)

	code, err = cmdExec(ctx, []string{"true"}, true)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	_, err = cmdExec(ctx, []string{"/nonexistent/binary"}, false)
	assert.Error(t, err)
}

func TestCmdUpRejectsUnknownTarget(t *testing.T) {
	writeManifest(t, runManifest)
	assert.Equal(t, 1, cmdUp(context.Background(), []string{"nope"}))
}

// resultRecorder collects the runs reported by watchJob
type resultRecorder struct {
	mu      sync.Mutex
	results []*runner.ExecutionResult
}

func (r *resultRecorder) add(result *runner.ExecutionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *resultRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func (r *resultRecorder) all() []*runner.ExecutionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*runner.ExecutionResult(nil), r.results...)
}

func countRuns(t *testing.T, path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return strings.Count(string(data), "run\n")
}

func newWatchManager(t *testing.T, command string) (*runner.Manager, string) {
	t.Helper()
	tmp := chdirTemp(t)
	manifest := &config.Manifest{Jobs: map[string]config.Job{
		"job": {Command: command, Type: config.JobTypeOneShot, KillAfter: 1},
	}}
	manager := runner.NewManager(manifest, process.NewManager())
	t.Cleanup(func() { _ = manager.StopAll() })
	return manager, filepath.Join(tmp, "runs.txt")
}

func TestWatchJobRerunsAfterChange(t *testing.T) {
	manager, runs := newWatchManager(t, "echo run >> runs.txt")

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan struct{}, 1)
	recorder := &resultRecorder{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		watchJob(ctx, manager, "job", nil, changes, recorder.add)
	}()

	require.Eventually(t, func() bool { return recorder.len() == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, countRuns(t, runs))

	changes <- struct{}{}
	require.Eventually(t, func() bool { return recorder.len() == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 2, countRuns(t, runs))

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watchJob did not return after cancel")
	}
	for _, r := range recorder.all() {
		assert.True(t, r.Success, r.Error)
	}
}

func TestWatchJobRestartsRunningJob(t *testing.T) {
	manager, runs := newWatchManager(t, "echo run >> runs.txt; exec sleep 30")

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan struct{}, 1)
	recorder := &resultRecorder{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		watchJob(ctx, manager, "job", nil, changes, recorder.add)
	}()

	require.Eventually(t, func() bool { return countRuns(t, runs) == 1 }, 5*time.Second, 20*time.Millisecond)

	changes <- struct{}{}
	require.Eventually(t, func() bool { return countRuns(t, runs) == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, recorder.len(), "the interrupted run is reported")

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watchJob did not return after cancel")
	}

	results := recorder.all()
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Success)
		assert.Equal(t, "terminated", r.Signal)
	}
}
