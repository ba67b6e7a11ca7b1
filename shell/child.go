//go:build linux

package shell

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// childCore owns one started process until it is reaped.
type childCore struct {
	cmd      *exec.Cmd
	pid      int
	hasGroup bool
	// stdout is the read end of the capture pipe, if requested. Whoever
	// takes it closes it.
	ioMu   sync.Mutex
	stdout *os.File
	// status delivers the panic record of a subshell once its write end
	// has been closed.
	status <-chan string
}

func startChild(cmd *exec.Cmd, opts spawnOptions) (*childCore, error) {
	core := &childCore{cmd: cmd, hasGroup: opts.group}

	// Write ends are closed in the parent once the child holds them.
	var parentEnds []*os.File
	closeAll := func(files ...*os.File) {
		for _, f := range files {
			_ = f.Close()
		}
	}

	if opts.capture {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, &OSError{Op: "pipe", Err: err}
		}
		cmd.Stdout = w
		core.stdout = r
		parentEnds = append(parentEnds, w)
	}

	var statusR *os.File
	if opts.subshell {
		r, w, err := os.Pipe()
		if err != nil {
			closeAll(parentEnds...)
			if core.stdout != nil {
				closeAll(core.stdout)
			}
			return nil, &OSError{Op: "pipe", Err: err}
		}
		statusR = r
		cmd.ExtraFiles = append(cmd.ExtraFiles, w)
		fd := 2 + len(cmd.ExtraFiles)
		cmd.Env = append(cmd.Env, statusFDEnv+"="+strconv.Itoa(fd))
		parentEnds = append(parentEnds, w)
	}

	err := cmd.Start()
	closeAll(parentEnds...)
	if err != nil {
		if core.stdout != nil {
			closeAll(core.stdout)
		}
		if statusR != nil {
			closeAll(statusR)
		}
		return nil, &OSError{Op: "start", Err: err}
	}
	core.pid = cmd.Process.Pid

	if statusR != nil {
		ch := make(chan string, 1)
		go func() {
			defer statusR.Close()
			b, _ := io.ReadAll(io.LimitReader(statusR, maxPanicRecord))
			ch <- string(b)
		}()
		core.status = ch
	}
	return core, nil
}

// signal sends sig to the process, or to its whole group when it leads one.
func (c *childCore) signal(sig syscall.Signal) error {
	target := c.pid
	if c.hasGroup {
		target = -c.pid
	}
	if err := unix.Kill(target, sig); err != nil {
		return &OSError{Op: "kill", Err: err}
	}
	return nil
}

// waitNoReap blocks until the process has exited but leaves it a zombie,
// so its pid stays valid for signal until reap.
func (c *childCore) waitNoReap() error {
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, c.pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EINTR) {
			return &OSError{Op: "waitid", Err: err}
		}
	}
}

// takeStdout hands the capture pipe to the caller. It returns nil when
// output is not captured or has already been taken.
func (c *childCore) takeStdout() *os.File {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()
	f := c.stdout
	c.stdout = nil
	return f
}

// reap collects the exit status. It must be called at most once.
func (c *childCore) reap() (ExitOutcome, error) {
	err := c.cmd.Wait()
	if f := c.takeStdout(); f != nil {
		_ = f.Close()
	}
	ps := c.cmd.ProcessState
	if ps == nil {
		return ExitOutcome{}, &OSError{Op: "wait", Err: err}
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		log().Debug("reap", "pid", c.pid, "error", err)
	}

	out := outcomeOf(ps)
	if c.status != nil {
		if record := <-c.status; record != "" {
			out.Panicked = true
			out.PanicValue = record
		}
	}
	return out, nil
}
