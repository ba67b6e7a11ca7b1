package runner

import (
	"fmt"
	"io"
	"strings"

	"jobshell.dev/internal/config"
	"jobshell.dev/internal/template"
	"jobshell.dev/shell"
)

// DefaultShell runs `command` jobs that do not name a shell
const DefaultShell = "/bin/sh"

// Invocation is a job with its parameters substituted and its environment
// resolved, ready to be spawned
type Invocation struct {
	JobName string
	Job     config.Job
	Params  map[string]interface{}
	Argv    []string
	Env     []string
}

// Prepare resolves parameters, substitutes them into the job's command or
// argv and expands its environment against lookup
func Prepare(jobName string, job config.Job, given map[string]interface{}, lookup func(string) (string, bool)) (*Invocation, error) {
	params, err := template.ResolveParameters(job.Parameters, given)
	if err != nil {
		return nil, err
	}

	var argv []string
	if len(job.Argv) > 0 {
		argv, err = template.SubstituteArgv(job.Argv, params)
		if err != nil {
			return nil, fmt.Errorf("parameter substitution failed: %w", err)
		}
	} else {
		command, err := template.SubstituteParameters(job.Command, params)
		if err != nil {
			return nil, fmt.Errorf("parameter substitution failed: %w", err)
		}
		sh := job.Shell
		if sh == "" {
			sh = DefaultShell
		}
		argv = []string{sh, "-c", command}
	}

	env, err := job.ResolveEnv(lookup)
	if err != nil {
		return nil, err
	}

	return &Invocation{
		JobName: jobName,
		Job:     job,
		Params:  params,
		Argv:    argv,
		Env:     env,
	}, nil
}

// Command returns the substituted command line for display and metadata
func (inv *Invocation) Command() string {
	if len(inv.Job.Argv) == 0 && len(inv.Argv) == 3 {
		return inv.Argv[2]
	}
	return strings.Join(inv.Argv, " ")
}

// Spec builds the shell command for the invocation. group forces the child
// into its own process group regardless of the job setting.
func (inv *Invocation) Spec(stdout, stderr io.Writer, group bool) *shell.Cmd {
	cmd := shell.Command(inv.Argv[0], inv.Argv[1:]...).
		Stdout(stdout).
		Stderr(stderr)
	if inv.Job.WorkingDirectory != "" {
		cmd.Dir(inv.Job.WorkingDirectory)
	}
	for _, kv := range inv.Env {
		key, value, _ := strings.Cut(kv, "=")
		cmd.Env(key, value)
	}
	if group || inv.Job.UsesGroup() {
		cmd.ProcessGroup()
	}
	return cmd
}
