//go:build linux

package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime/debug"
	"strconv"
	"sync"
	"syscall"

	"github.com/docker/docker/pkg/reexec"
)

// statusFDEnv tells a subshell which inherited descriptor carries its panic
// record back to the parent.
const statusFDEnv = "JOBSHELL_STATUS_FD"

// maxPanicRecord caps the panic value sent over the status pipe.
const maxPanicRecord = 4096

// Func is the body of a subshell. It runs in its own process: a nil error
// exits 0, an *ExitError exits with its code, anything else is printed to
// standard error and exits 1.
type Func func(ctx context.Context, args []string) error

var (
	subshellsMu sync.RWMutex
	subshells   = make(map[string]Func)
)

// Register makes fn available to NewSubshell under name. It must be called
// from an init function or before Init, so that the re-executed binary
// knows the name too. Registering a name twice panics.
func Register(name string, fn Func) {
	subshellsMu.Lock()
	defer subshellsMu.Unlock()

	if _, exists := subshells[name]; exists {
		panic(fmt.Sprintf("shell: subshell %q already registered", name))
	}
	subshells[name] = fn
	reexec.Register(name, func() {
		os.Exit(runSubshell(name, fn))
	})
}

// Init runs the registered subshell named by os.Args[0], if any, and exits
// when it finishes. It returns false in the parent process.
func Init() bool {
	return reexec.Init()
}

func registered(name string) bool {
	subshellsMu.RLock()
	defer subshellsMu.RUnlock()
	_, ok := subshells[name]
	return ok
}

// Subshell runs a registered Func in a child process.
type Subshell struct {
	procAttrs
	name string
	args []string
}

// NewSubshell returns a Subshell that calls the Func registered as name with
// args.
func NewSubshell(name string, args ...string) *Subshell {
	return &Subshell{name: name, args: args}
}

func (s *Subshell) Dir(dir string) *Subshell {
	s.dir = dir
	return s
}

func (s *Subshell) Env(key, value string) *Subshell {
	s.env = append(s.env, key+"="+value)
	return s
}

func (s *Subshell) Stdin(r io.Reader) *Subshell {
	s.stdin = r
	return s
}

func (s *Subshell) Stdout(w io.Writer) *Subshell {
	s.stdout = w
	return s
}

func (s *Subshell) Stderr(w io.Writer) *Subshell {
	s.stderr = w
	return s
}

func (s *Subshell) ProcessGroup() *Subshell {
	s.group = true
	return s
}

func (s *Subshell) CaptureStdout() *Subshell {
	s.capture = true
	return s
}

func (s *Subshell) String() string {
	return formatArgv(append([]string{"subshell:" + s.name}, s.args...))
}

func (s *Subshell) command() (*exec.Cmd, spawnOptions, error) {
	if !registered(s.name) {
		return nil, spawnOptions{}, fmt.Errorf("subshell %q is not registered", s.name)
	}
	cmd := reexec.Command(append([]string{s.name}, s.args...)...)
	s.apply(cmd)
	opts := s.options()
	opts.subshell = true
	return cmd, opts, nil
}

// runSubshell is the whole life of a subshell process. It never lets a
// panic escape and waits for every child the closure left behind.
func runSubshell(name string, fn Func) (code int) {
	status := openStatusPipe()
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "subshell %s panicked: %v\n%s", name, r, debug.Stack())
			if status != nil {
				record := fmt.Sprint(r)
				if len(record) > maxPanicRecord {
					record = record[:maxPanicRecord]
				}
				_, _ = io.WriteString(status, record)
			}
			code = PanicExitCode
		}
		if status != nil {
			_ = status.Close()
		}
		if err := defaultRegistry().drain(); err != nil {
			log().Warn("wait for subshell children", "subshell", name, "error", err)
		}
	}()
	return subshellExitCode(name, fn(context.Background(), os.Args[1:]))
}

func subshellExitCode(name string, err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
	return 1
}

func openStatusPipe() *os.File {
	v, ok := os.LookupEnv(statusFDEnv)
	if !ok {
		return nil
	}
	_ = os.Unsetenv(statusFDEnv)
	fd, err := strconv.Atoi(v)
	if err != nil || fd < 3 {
		return nil
	}
	syscall.CloseOnExec(fd)
	return os.NewFile(uintptr(fd), "subshell-status")
}
