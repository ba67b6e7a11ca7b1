//go:build linux

package shell

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// waitDelay bounds how long a reap waits for stdio copying after the child
// has exited. It only matters when a non-file writer was supplied and a
// grandchild keeps the pipe open.
const waitDelay = 5 * time.Second

// Spec is a fully resolved description of a child process. It is
// implemented by *Cmd and *Subshell.
type Spec interface {
	fmt.Stringer
	command() (*exec.Cmd, spawnOptions, error)
}

type spawnOptions struct {
	group    bool
	capture  bool
	subshell bool
}

// procAttrs holds the settings shared by every kind of Spec.
type procAttrs struct {
	dir     string
	env     []string
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	group   bool
	capture bool
}

func (a *procAttrs) apply(cmd *exec.Cmd) {
	cmd.Dir = a.dir
	cmd.Env = append(os.Environ(), a.env...)
	cmd.Stdin = a.stdin
	cmd.Stdout = a.stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = a.stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	// The child calls setpgid before exec, so the group exists by the time
	// Start returns.
	cmd.SysProcAttr.Setpgid = a.group
	cmd.WaitDelay = waitDelay
}

func (a *procAttrs) options() spawnOptions {
	return spawnOptions{group: a.group, capture: a.capture}
}

// Cmd runs an external executable.
type Cmd struct {
	procAttrs
	name string
	args []string
}

// Command returns a Cmd that runs name with args. The name is resolved
// against PATH when it contains no slash.
func Command(name string, args ...string) *Cmd {
	return &Cmd{name: name, args: args}
}

// Dir sets the working directory of the child.
func (c *Cmd) Dir(dir string) *Cmd {
	c.dir = dir
	return c
}

// Env adds an environment variable on top of the inherited environment.
func (c *Cmd) Env(key, value string) *Cmd {
	c.env = append(c.env, key+"="+value)
	return c
}

func (c *Cmd) Stdin(r io.Reader) *Cmd {
	c.stdin = r
	return c
}

// Stdout redirects standard output. By default the child shares the
// parent's standard output.
func (c *Cmd) Stdout(w io.Writer) *Cmd {
	c.stdout = w
	return c
}

func (c *Cmd) Stderr(w io.Writer) *Cmd {
	c.stderr = w
	return c
}

// ProcessGroup makes the child the leader of a new process group. Signals
// sent to the job then reach every process in the group.
func (c *Cmd) ProcessGroup() *Cmd {
	c.group = true
	return c
}

// CaptureStdout connects standard output to a pipe read by Job.Output.
func (c *Cmd) CaptureStdout() *Cmd {
	c.capture = true
	return c
}

func (c *Cmd) String() string {
	return formatArgv(append([]string{c.name}, c.args...))
}

func (c *Cmd) command() (*exec.Cmd, spawnOptions, error) {
	cmd := exec.Command(c.name, c.args...)
	if cmd.Err != nil {
		return nil, spawnOptions{}, &OSError{Op: "lookup " + c.name, Err: cmd.Err}
	}
	c.apply(cmd)
	return cmd, c.options(), nil
}

func formatArgv(argv []string) string {
	parts := make([]string, len(argv))
	for i, arg := range argv {
		if arg == "" || strings.ContainsAny(arg, " \t\n\"'\\$`") {
			parts[i] = strconv.Quote(arg)
		} else {
			parts[i] = arg
		}
	}
	return strings.Join(parts, " ")
}
