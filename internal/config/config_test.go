package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestParseManifest(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantError bool
		validate  func(*testing.T, *Manifest)
	}{
		{
			name: "valid minimal manifest",
			yaml: `version: "1.0"
jobs:
  test:
    description: "Run tests"
    command: "go test ./..."
`,
			validate: func(t *testing.T, m *Manifest) {
				if m.Version != "1.0" {
					t.Errorf("expected version 1.0, got %s", m.Version)
				}
				job := m.Jobs["test"]
				if job.Type != JobTypeOneShot {
					t.Errorf("expected default type oneshot, got %s", job.Type)
				}
				if job.KillAfter != DefaultKillAfter {
					t.Errorf("expected kill_after %d, got %d", DefaultKillAfter, job.KillAfter)
				}
				if job.UsesGroup() {
					t.Errorf("expected no process group by default")
				}
			},
		},
		{
			name: "manifest with defaults",
			yaml: `version: "1.0"
defaults:
  timeout: 300
  kill_after: 2
  shell: "/bin/bash"
  process_group: true
  env:
    NODE_ENV: "development"
jobs:
  web:
    description: "Serve"
    command: "npm start"
    type: daemon
`,
			validate: func(t *testing.T, m *Manifest) {
				job := m.Jobs["web"]
				if job.Timeout != 300 {
					t.Errorf("expected timeout 300, got %d", job.Timeout)
				}
				if job.KillAfter != 2 {
					t.Errorf("expected kill_after 2, got %d", job.KillAfter)
				}
				if job.Shell != "/bin/bash" {
					t.Errorf("expected shell /bin/bash, got %s", job.Shell)
				}
				if !job.UsesGroup() {
					t.Errorf("expected process group from defaults")
				}
				if job.Env["NODE_ENV"] != "development" {
					t.Errorf("expected NODE_ENV=development, got %s", job.Env["NODE_ENV"])
				}
			},
		},
		{
			name: "job overrides defaults",
			yaml: `version: "1.0"
defaults:
  process_group: true
  env:
    NODE_ENV: "development"
jobs:
  test:
    description: "Run tests"
    argv: ["npm", "test"]
    process_group: false
    env:
      NODE_ENV: "test"
`,
			validate: func(t *testing.T, m *Manifest) {
				job := m.Jobs["test"]
				if job.UsesGroup() {
					t.Errorf("expected job-level process_group false to win")
				}
				if job.Env["NODE_ENV"] != "test" {
					t.Errorf("expected NODE_ENV=test, got %s", job.Env["NODE_ENV"])
				}
				if !reflect.DeepEqual(job.Argv, []string{"npm", "test"}) {
					t.Errorf("unexpected argv %v", job.Argv)
				}
			},
		},
		{
			name:      "invalid yaml",
			yaml:      "version: [",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "jobshell.yaml")
			writeFile(t, path, tt.yaml)

			manifest, err := ParseManifest(path)
			if tt.wantError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.validate(t, manifest)
		})
	}
}

func TestTOMLAndYAMLAgree(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "jobs.yaml")
	tomlPath := filepath.Join(dir, "jobs.toml")

	writeFile(t, yamlPath, `version: "1.0"
defaults:
  timeout: 60
jobs:
  api:
    description: "API server"
    argv: ["./api", "--port", "8080"]
    type: daemon
    process_group: true
    ready_url: "http://localhost:8080/health"
    env:
      PORT: "8080"
groups:
  stack:
    description: "Everything"
    jobs: ["api"]
`)
	writeFile(t, tomlPath, `version = "1.0"

[defaults]
timeout = 60

[jobs.api]
description = "API server"
argv = ["./api", "--port", "8080"]
type = "daemon"
process_group = true
ready_url = "http://localhost:8080/health"
env = { PORT = "8080" }

[groups.stack]
description = "Everything"
jobs = ["api"]
`)

	fromYAML, err := ParseManifest(yamlPath)
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	fromTOML, err := ParseManifest(tomlPath)
	if err != nil {
		t.Fatalf("toml: %v", err)
	}
	if !reflect.DeepEqual(fromYAML, fromTOML) {
		t.Errorf("manifests differ:\nyaml: %+v\ntoml: %+v", fromYAML, fromTOML)
	}
}

func TestValidate(t *testing.T) {
	yes := true
	tests := []struct {
		name     string
		manifest Manifest
		wantErr  string
	}{
		{
			name: "valid",
			manifest: Manifest{Version: "1.0", Jobs: map[string]Job{
				"build": {Description: "Build", Command: "make"},
			}},
		},
		{
			name:     "missing version",
			manifest: Manifest{Jobs: map[string]Job{}},
			wantErr:  "version is required",
		},
		{
			name:     "nil jobs",
			manifest: Manifest{Version: "1.0"},
			wantErr:  "jobs map must be initialized",
		},
		{
			name: "command and argv",
			manifest: Manifest{Version: "1.0", Jobs: map[string]Job{
				"x": {Description: "x", Command: "a", Argv: []string{"a"}},
			}},
			wantErr: "mutually exclusive",
		},
		{
			name: "no command",
			manifest: Manifest{Version: "1.0", Jobs: map[string]Job{
				"x": {Description: "x"},
			}},
			wantErr: "command or argv is required",
		},
		{
			name: "bad type",
			manifest: Manifest{Version: "1.0", Jobs: map[string]Job{
				"x": {Description: "x", Command: "a", Type: "cron"},
			}},
			wantErr: "invalid type 'cron'",
		},
		{
			name: "ready_url on oneshot",
			manifest: Manifest{Version: "1.0", Jobs: map[string]Job{
				"x": {Description: "x", Command: "a", Type: JobTypeOneShot, ReadyURL: "http://localhost"},
			}},
			wantErr: "ready_url is only valid for daemon jobs",
		},
		{
			name: "daemon dependency",
			manifest: Manifest{Version: "1.0", Jobs: map[string]Job{
				"db":  {Description: "db", Command: "postgres", Type: JobTypeDaemon, ProcessGroup: &yes},
				"app": {Description: "app", Command: "run", DependsOn: []string{"db"}},
			}},
			wantErr: "dependency 'db' is a daemon",
		},
		{
			name: "missing dependency",
			manifest: Manifest{Version: "1.0", Jobs: map[string]Job{
				"app": {Description: "app", Command: "run", DependsOn: []string{"nope"}},
			}},
			wantErr: "dependency 'nope' does not exist",
		},
		{
			name: "bad watch pattern",
			manifest: Manifest{Version: "1.0", Jobs: map[string]Job{
				"x": {Description: "x", Command: "a", Watch: []string{"src/[a-"}},
			}},
			wantErr: "invalid watch pattern",
		},
		{
			name: "group with unknown job",
			manifest: Manifest{Version: "1.0", Jobs: map[string]Job{}, Groups: map[string]JobGroup{
				"all": {Description: "all", Jobs: []string{"ghost"}},
			}},
			wantErr: "job 'ghost' does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.manifest)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseManifestWithImports(t *testing.T) {
	t.Run("merges imported jobs", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "jobshell.yaml"), `version: "1.0"
imports:
  - "jobs/*.yaml"
defaults:
  timeout: 30
jobs:
  build:
    description: "Build"
    command: "make"
`)
		writeFile(t, filepath.Join(dir, "jobs", "web.yaml"), `version: "1.0"
jobs:
  web:
    description: "Web"
    command: "serve"
    type: daemon
`)
		writeFile(t, filepath.Join(dir, "jobs", "db.yaml"), `version: "1.0"
jobs:
  db:
    description: "DB"
    command: "postgres"
    type: daemon
`)

		m, err := ParseManifest(filepath.Join(dir, "jobshell.yaml"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(m.Jobs) != 3 {
			t.Fatalf("expected 3 jobs, got %d", len(m.Jobs))
		}
		if m.Jobs["web"].Timeout != 30 {
			t.Errorf("expected defaults to apply to imported jobs, got timeout %d", m.Jobs["web"].Timeout)
		}
	})

	t.Run("detects cycles", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "a.yaml"), "version: \"1.0\"\nimports: [\"b.yaml\"]\njobs: {}\n")
		writeFile(t, filepath.Join(dir, "b.yaml"), "version: \"1.0\"\nimports: [\"a.yaml\"]\njobs: {}\n")

		_, err := ParseManifest(filepath.Join(dir, "a.yaml"))
		if err == nil || !strings.Contains(err.Error(), "circular import") {
			t.Fatalf("expected circular import error, got %v", err)
		}
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "main.yaml"), `version: "1.0"
imports: ["other.yaml"]
jobs:
  build:
    description: "Build"
    command: "make"
`)
		writeFile(t, filepath.Join(dir, "other.yaml"), `version: "1.0"
jobs:
  build:
    description: "Build again"
    command: "make"
`)

		_, err := ParseManifest(filepath.Join(dir, "main.yaml"))
		if err == nil || !strings.Contains(err.Error(), "duplicate job name 'build'") {
			t.Fatalf("expected duplicate error, got %v", err)
		}
	})

	t.Run("shared import is loaded once", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "main.yaml"), "version: \"1.0\"\nimports: [\"web.yaml\", \"api.yaml\"]\njobs: {}\n")
		writeFile(t, filepath.Join(dir, "web.yaml"), "version: \"1.0\"\nimports: [\"common.yaml\"]\njobs:\n  web:\n    description: web\n    command: serve\n")
		writeFile(t, filepath.Join(dir, "api.yaml"), "version: \"1.0\"\nimports: [\"common.yaml\"]\njobs:\n  api:\n    description: api\n    command: serve\n")
		writeFile(t, filepath.Join(dir, "common.yaml"), "version: \"1.0\"\njobs:\n  deps:\n    description: deps\n    command: fetch\n")

		m, err := ParseManifest(filepath.Join(dir, "main.yaml"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(m.Jobs) != 3 {
			t.Errorf("expected 3 jobs, got %d", len(m.Jobs))
		}
	})

	t.Run("recursive glob", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "main.yaml"), "version: \"1.0\"\nimports: [\"services/**/*.yaml\"]\njobs: {}\n")
		writeFile(t, filepath.Join(dir, "services", "web", "jobs.yaml"), "version: \"1.0\"\njobs:\n  web:\n    description: web\n    command: serve\n")
		writeFile(t, filepath.Join(dir, "services", "api", "v2", "jobs.yaml"), "version: \"1.0\"\njobs:\n  api:\n    description: api\n    command: serve\n")

		m, err := ParseManifest(filepath.Join(dir, "main.yaml"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, name := range []string{"web", "api"} {
			if _, ok := m.Jobs[name]; !ok {
				t.Errorf("expected job %q from nested import", name)
			}
		}
	})

	t.Run("self import", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "main.yaml"), "version: \"1.0\"\nimports: [\"*.yaml\"]\njobs: {}\n")

		_, err := ParseManifest(filepath.Join(dir, "main.yaml"))
		if err == nil || !strings.Contains(err.Error(), "circular import") {
			t.Fatalf("expected circular import error, got %v", err)
		}
	})

	t.Run("import matching nothing", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "main.yaml"), "version: \"1.0\"\nimports: [\"missing/*.yaml\"]\njobs: {}\n")

		_, err := ParseManifest(filepath.Join(dir, "main.yaml"))
		if err == nil || !strings.Contains(err.Error(), "matched no files") {
			t.Fatalf("expected no-match error, got %v", err)
		}
	})
}

func TestLoadManifest(t *testing.T) {
	t.Run("search order prefers root yaml", func(t *testing.T) {
		t.Chdir(t.TempDir())
		writeFile(t, "jobshell.yaml", "version: \"1.0\"\njobs:\n  a:\n    description: a\n    command: a\n")
		writeFile(t, ".jobshell/jobs.yaml", "version: \"1.0\"\njobs:\n  b:\n    description: b\n    command: b\n")

		m, err := LoadManifest("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := m.Jobs["a"]; !ok {
			t.Errorf("expected job from ./jobshell.yaml, got %v", m.Jobs)
		}
	})

	t.Run("hidden directory toml", func(t *testing.T) {
		t.Chdir(t.TempDir())
		writeFile(t, ".jobshell/jobs.toml", "version = \"1.0\"\n[jobs.b]\ndescription = \"b\"\ncommand = \"b\"\n")

		m, err := LoadManifest("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := m.Jobs["b"]; !ok {
			t.Errorf("expected job b, got %v", m.Jobs)
		}
	})

	t.Run("missing custom path is an error", func(t *testing.T) {
		t.Chdir(t.TempDir())
		writeFile(t, "jobshell.yaml", "version: \"1.0\"\njobs: {}\n")

		if _, err := LoadManifest("nope.yaml"); err == nil {
			t.Fatal("expected error for missing custom manifest")
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		t.Chdir(t.TempDir())

		_, err := LoadManifest("")
		if err == nil || !strings.Contains(err.Error(), "no job manifest found") {
			t.Fatalf("expected not-found error, got %v", err)
		}
	})

	t.Run("applies overrides", func(t *testing.T) {
		t.Chdir(t.TempDir())
		writeFile(t, "jobshell.yaml", `version: "1.0"
jobs:
  web-api:
    description: "api"
    command: "api"
  web-ui:
    description: "ui"
    command: "ui"
  build:
    description: "build"
    command: "make"
`)
		writeFile(t, ".jobshell.overrides.yaml", `jobs:
  "web-*":
    disable_mcp: true
  build:
    disabled: true
`)

		m, err := LoadManifest("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !m.Jobs["web-api"].DisableMCP || !m.Jobs["web-ui"].DisableMCP {
			t.Errorf("expected web-* hidden from MCP")
		}
		if m.Jobs["web-api"].Disabled {
			t.Errorf("disable_mcp must not disable the job")
		}
		if !m.Jobs["build"].Disabled {
			t.Errorf("expected build disabled")
		}
	})

	t.Run("invalid overrides is fatal", func(t *testing.T) {
		t.Chdir(t.TempDir())
		writeFile(t, "jobshell.yaml", "version: \"1.0\"\njobs: {}\n")
		writeFile(t, ".jobshell.overrides.yaml", "jobs: [")

		if _, err := LoadManifest(""); err == nil {
			t.Fatal("expected overrides parse error")
		}
	})
}

func TestExpandEnv(t *testing.T) {
	lookup := func(name string) (string, bool) {
		env := map[string]string{"HOME": "/home/dev", "EMPTY": ""}
		v, ok := env[name]
		return v, ok
	}

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "plain", want: "plain"},
		{in: "$HOME/bin", want: "/home/dev/bin"},
		{in: "${HOME}/bin", want: "/home/dev/bin"},
		{in: "x${EMPTY}y", want: "xy"},
		{in: "cost: $$5", want: "cost: $5"},
		{in: "${MISSING}", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ExpandEnv(tt.in, lookup)
			if tt.wantErr {
				if !errors.Is(err, ErrEnvResolution) {
					t.Fatalf("expected ErrEnvResolution, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestResolveEnv(t *testing.T) {
	job := Job{Env: map[string]string{"B": "${USER_NAME}", "A": "1"}}

	pairs, err := job.ResolveEnv(func(name string) (string, bool) {
		if name == "USER_NAME" {
			return "dev", true
		}
		return "", false
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(pairs, []string{"A=1", "B=dev"}) {
		t.Errorf("unexpected pairs %v", pairs)
	}

	_, err = job.ResolveEnv(func(string) (string, bool) { return "", false })
	if !errors.Is(err, ErrEnvResolution) || !strings.Contains(err.Error(), "env B") {
		t.Errorf("expected resolution error for B, got %v", err)
	}
}

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		pattern, name string
		want          bool
	}{
		{"build", "build", true},
		{"web-*", "web-api", true},
		{"web-*", "api-web", false},
		{"{a,b}", "b", true},
		{"[", "[", false},
	}
	for _, tt := range tests {
		if got := matchesPattern(tt.pattern, tt.name); got != tt.want {
			t.Errorf("matchesPattern(%q, %q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
		}
	}
}
