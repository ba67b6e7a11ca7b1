package server

import (
	"testing"

	"jobshell.dev/internal/config"
)

func TestCollectToolNamesExcludesRefreshConfig(t *testing.T) {
	manifest := &config.Manifest{
		Jobs: map[string]config.Job{
			"build": {Type: config.JobTypeOneShot, Command: "go build"},
			"serve": {Type: config.JobTypeDaemon, Command: "go run ."},
		},
	}

	s := &Server{manifest: manifest}
	names := s.collectToolNames()

	for _, name := range names {
		if name == "refresh_config" || name == "list_jobs" || name == "list_processes" {
			t.Errorf("collectToolNames() must not include %q (it is never deleted during refresh)", name)
		}
	}

	expected := map[string]bool{
		"run_build":     false,
		"start_serve":   false,
		"stop_serve":    false,
		"status_serve":  false,
		"logs_serve":    false,
		"list_sessions": false,
	}
	for _, name := range names {
		if _, ok := expected[name]; ok {
			expected[name] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("collectToolNames() missing expected name %q", name)
		}
	}
}

func TestCollectToolNamesExcludesHiddenJobs(t *testing.T) {
	manifest := &config.Manifest{
		Jobs: map[string]config.Job{
			"build":        {Type: config.JobTypeOneShot, Command: "go build"},
			"secret-setup": {Type: config.JobTypeOneShot, Command: "./setup.sh", DisableMCP: true},
			"retired":      {Type: config.JobTypeOneShot, Command: "./old.sh", Disabled: true},
			"serve":        {Type: config.JobTypeDaemon, Command: "go run ."},
			"priv-daemon":  {Type: config.JobTypeDaemon, Command: "./daemon.sh", DisableMCP: true},
		},
	}

	s := &Server{manifest: manifest}
	names := s.collectToolNames()

	forbidden := []string{
		"run_secret-setup",
		"run_retired",
		"start_priv-daemon",
		"stop_priv-daemon",
		"status_priv-daemon",
		"logs_priv-daemon",
	}
	nameSet := make(map[string]bool, len(names))
	for _, n := range names {
		nameSet[n] = true
	}
	for _, name := range forbidden {
		if nameSet[name] {
			t.Errorf("collectToolNames() should not include %q", name)
		}
	}
	if !nameSet["run_build"] || !nameSet["start_serve"] {
		t.Errorf("collectToolNames() dropped visible jobs: %v", names)
	}
}

func TestParamSchema(t *testing.T) {
	def := "dev"
	job := config.Job{
		Parameters: map[string]config.Param{
			"target": {Type: "string", Required: true, Description: "Build target"},
			"env":    {Type: "string", Description: "Environment", Default: &def},
			"arch":   {Type: "string", Required: true, Description: "Architecture"},
		},
	}

	schema := paramSchema(job)
	if schema.Type != "object" {
		t.Errorf("expected type=object, got %q", schema.Type)
	}
	if len(schema.Properties) != 3 {
		t.Fatalf("expected 3 properties, got %d", len(schema.Properties))
	}
	if len(schema.Required) != 2 || schema.Required[0] != "arch" || schema.Required[1] != "target" {
		t.Errorf("expected sorted required [arch target], got %v", schema.Required)
	}
	env, ok := schema.Properties["env"].(map[string]interface{})
	if !ok {
		t.Fatal("env property is not a map")
	}
	if env["default"] != "dev" {
		t.Errorf("expected env default=dev, got %v", env["default"])
	}
}

func TestTruncateToLines(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		max           int
		wantShown     int
		wantTotal     int
		wantTruncated bool
	}{
		{
			name:          "empty string",
			input:         "",
			max:           100,
			wantShown:     0,
			wantTotal:     0,
			wantTruncated: false,
		},
		{
			name:          "single line",
			input:         "hello",
			max:           100,
			wantShown:     1,
			wantTotal:     1,
			wantTruncated: false,
		},
		{
			name:          "trailing newline",
			input:         "a\nb\n",
			max:           100,
			wantShown:     2,
			wantTotal:     2,
			wantTruncated: false,
		},
		{
			name:          "over max lines",
			input:         "a\nb\nc\nd\ne",
			max:           3,
			wantShown:     3,
			wantTotal:     5,
			wantTruncated: true,
		},
		{
			name:          "max=0 means no truncation",
			input:         "a\nb\nc",
			max:           0,
			wantShown:     3,
			wantTotal:     3,
			wantTruncated: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, shown, total := truncateToLines(tt.input, tt.max)
			if shown != tt.wantShown {
				t.Errorf("shown=%d, want %d", shown, tt.wantShown)
			}
			if total != tt.wantTotal {
				t.Errorf("total=%d, want %d", total, tt.wantTotal)
			}
			if truncated := total > shown; truncated != tt.wantTruncated {
				t.Errorf("truncated=%v, want %v", truncated, tt.wantTruncated)
			}
		})
	}
}

func TestTruncateToLinesKeepsLastLines(t *testing.T) {
	result, shown, total := truncateToLines("line1\nline2\nline3\nline4\nline5", 3)
	if total != 5 || shown != 3 {
		t.Errorf("expected shown=3 total=5, got shown=%d total=%d", shown, total)
	}
	if result != "line3\nline4\nline5" {
		t.Errorf("expected last 3 lines, got %q", result)
	}
}

func TestLogSchemasHaveOffsetParam(t *testing.T) {
	schemas := map[string]map[string]interface{}{
		"daemon logs": daemonLogsInputSchema().Properties,
		"session log": sessionLogInputSchema().Properties,
	}
	for name, props := range schemas {
		offsetMap, ok := props["offset"].(map[string]interface{})
		if !ok {
			t.Fatalf("%s schema missing 'offset' parameter", name)
		}
		if offsetMap["type"] != "number" {
			t.Errorf("%s: expected offset type=number, got %v", name, offsetMap["type"])
		}
	}
}

func TestHasMoreCalculation(t *testing.T) {
	tests := []struct {
		name        string
		totalLines  int
		linesParam  int
		offsetParam int
		wantHasMore bool
	}{
		{"more lines available", 150, 100, 0, true},
		{"all lines fit", 50, 100, 0, false},
		{"with offset, more available", 300, 100, 100, true},
		{"with offset, nothing more", 200, 100, 100, false},
		{"lines=0 means all returned, never has_more", 50, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calcHasMore(tt.totalLines, tt.linesParam, tt.offsetParam); got != tt.wantHasMore {
				t.Errorf("calcHasMore(%d, %d, %d) = %v, want %v",
					tt.totalLines, tt.linesParam, tt.offsetParam, got, tt.wantHasMore)
			}
		})
	}
}

func TestReadOptionsDefaults(t *testing.T) {
	opts := readOptions(map[string]interface{}{})
	if opts.Lines != 100 {
		t.Errorf("expected default lines=100, got %d", opts.Lines)
	}

	opts = readOptions(map[string]interface{}{
		"lines":      float64(5),
		"filter":     "ERR",
		"session_id": "abc",
		"offset":     float64(10),
	})
	if opts.Lines != 5 || opts.Filter != "ERR" || opts.SessionID != "abc" || opts.Offset != 10 {
		t.Errorf("unexpected options: %+v", opts)
	}
}
