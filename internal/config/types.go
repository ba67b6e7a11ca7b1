package config

// JobType represents how a job is run
type JobType string

const (
	// JobTypeOneShot runs to completion in the foreground
	JobTypeOneShot JobType = "oneshot"
	// JobTypeDaemon is a long-running process supervised until stopped
	JobTypeDaemon JobType = "daemon"
)

// DefaultKillAfter is the grace period, in seconds, between SIGTERM and
// SIGKILL when a job is stopped or times out
const DefaultKillAfter = 5

// Manifest represents the complete job configuration
type Manifest struct {
	Version  string              `yaml:"version" toml:"version"`
	Imports  []string            `yaml:"imports,omitempty" toml:"imports,omitempty"`
	Jobs     map[string]Job      `yaml:"jobs" toml:"jobs"`
	Groups   map[string]JobGroup `yaml:"groups" toml:"groups"`
	Defaults Defaults            `yaml:"defaults" toml:"defaults"`
}

// Job represents a single supervised command
type Job struct {
	Description      string            `yaml:"description" toml:"description"`
	Command          string            `yaml:"command" toml:"command"`
	Argv             []string          `yaml:"argv" toml:"argv"`
	Type             JobType           `yaml:"type" toml:"type"`
	WorkingDirectory string            `yaml:"working_directory" toml:"working_directory"`
	Env              map[string]string `yaml:"env" toml:"env"`
	Timeout          int               `yaml:"timeout" toml:"timeout"`
	KillAfter        int               `yaml:"kill_after" toml:"kill_after"`
	Shell            string            `yaml:"shell" toml:"shell"`
	ProcessGroup     *bool             `yaml:"process_group" toml:"process_group"`
	Parameters       map[string]Param  `yaml:"parameters" toml:"parameters"`
	DependsOn        []string          `yaml:"depends_on" toml:"depends_on"`
	ReadyURL         string            `yaml:"ready_url" toml:"ready_url"`
	Watch            []string          `yaml:"watch" toml:"watch"`
	Disabled         bool              `yaml:"disabled,omitempty" toml:"disabled,omitempty"`
	DisableMCP       bool              `yaml:"disable_mcp,omitempty" toml:"disable_mcp,omitempty"`
}

// UsesGroup reports whether the job runs as the leader of its own process
// group
func (j Job) UsesGroup() bool {
	return j.ProcessGroup != nil && *j.ProcessGroup
}

// Param represents a job parameter definition
type Param struct {
	Type        string  `yaml:"type" toml:"type"`
	Required    bool    `yaml:"required" toml:"required"`
	Description string  `yaml:"description" toml:"description"`
	Default     *string `yaml:"default" toml:"default"`
}

// JobGroup names a set of jobs started together by `up`
type JobGroup struct {
	Description string   `yaml:"description" toml:"description"`
	Jobs        []string `yaml:"jobs" toml:"jobs"`
}

// Defaults represents default values for job configuration
type Defaults struct {
	Timeout      int               `yaml:"timeout" toml:"timeout"`
	KillAfter    int               `yaml:"kill_after" toml:"kill_after"`
	Shell        string            `yaml:"shell" toml:"shell"`
	Env          map[string]string `yaml:"env" toml:"env"`
	ProcessGroup bool              `yaml:"process_group" toml:"process_group"`
}

// Overrides holds per-project visibility overrides, keyed by job name or
// glob pattern
type Overrides struct {
	Jobs map[string]JobOverride `yaml:"jobs"`
}

// JobOverride hides a job from the CLI (Disabled) or from MCP clients
// (DisableMCP)
type JobOverride struct {
	Disabled   bool `yaml:"disabled"`
	DisableMCP bool `yaml:"disable_mcp"`
}
