//go:build linux

package shell

import (
	"errors"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
)

// jobSlot is the state shared by every handle to one child. core is nil
// once the child has been reaped.
type jobSlot struct {
	mu   sync.RWMutex
	core *childCore

	pid     int
	command string
	group   bool
	scope   *Scope
	reg     *registry

	handles atomic.Int64
}

func (s *jobSlot) signal(sig syscall.Signal) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.core == nil {
		return ErrNoSuchProcess
	}
	return s.core.signal(sig)
}

// wait blocks under the read lock until the child exits, then takes the
// core under the write lock and reaps it. Only one caller gets the outcome;
// the others see ErrNoSuchProcess.
func (s *jobSlot) wait() (ExitOutcome, error) {
	s.mu.RLock()
	if s.core == nil {
		s.mu.RUnlock()
		return ExitOutcome{}, ErrNoSuchProcess
	}
	err := s.core.waitNoReap()
	s.mu.RUnlock()
	if err != nil {
		return ExitOutcome{}, err
	}

	s.mu.Lock()
	core := s.core
	s.core = nil
	if core == nil {
		s.mu.Unlock()
		return ExitOutcome{}, ErrNoSuchProcess
	}
	out, err := core.reap()
	s.mu.Unlock()

	s.deregister()
	return out, err
}

func (s *jobSlot) deregister() {
	s.reg.forget(s)
}

func (s *jobSlot) live() (*childCore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.core == nil {
		return nil, ErrNoSuchProcess
	}
	return s.core, nil
}

// release drops one handle and reaps the child when it was the last.
func (s *jobSlot) release() {
	if s.handles.Add(-1) > 0 {
		return
	}
	if _, err := s.wait(); err != nil && !errors.Is(err, ErrNoSuchProcess) {
		log().Warn("reap released job", "pid", s.pid, "command", s.command, "error", err)
	}
}

// Job is a handle to a spawned child. Handles are safe for concurrent use:
// one goroutine may Wait while others Signal. Every handle should be closed;
// the child is reaped when its last handle is closed.
type Job struct {
	slot    *jobSlot
	closed  atomic.Bool
	cleanup runtime.Cleanup
}

func newJob(slot *jobSlot) *Job {
	slot.handles.Add(1)
	j := &Job{slot: slot}
	j.cleanup = runtime.AddCleanup(j, func(s *jobSlot) {
		go s.release()
	}, slot)
	return j
}

// Clone returns a second handle to the same child.
func (j *Job) Clone() *Job {
	return newJob(j.slot)
}

// Pid returns the child's process id. It stays the same after the child
// has been reaped, but is then no longer meaningful to the OS.
func (j *Job) Pid() int {
	return j.slot.pid
}

func (j *Job) String() string {
	return j.slot.command
}

// Signal sends sig to the child, or to its process group. It fails with
// ErrNoSuchProcess once the child has been reaped.
func (j *Job) Signal(sig syscall.Signal) error {
	return j.slot.signal(sig)
}

// Wait blocks until the child exits and returns its outcome. Signal may be
// called concurrently from other goroutines while Wait blocks. After a
// successful Wait every handle to the child is spent.
func (j *Job) Wait() (ExitOutcome, error) {
	return j.slot.wait()
}

// Terminate sends SIGTERM and waits for the child. A child that had already
// exited, exits nonzero or dies by the signal is not an error.
func (j *Job) Terminate() error {
	if err := j.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, ErrNoSuchProcess) {
		return err
	}
	if _, err := j.Wait(); err != nil && !errors.Is(err, ErrNoSuchProcess) {
		return err
	}
	return nil
}

// Output reads the captured standard output to EOF, then waits. An
// unsuccessful exit is reported as an *ExitError alongside the data. The
// output can be read once; if another handle reaps the child meanwhile,
// the data is still returned, with ErrNoSuchProcess.
func (j *Job) Output() ([]byte, error) {
	core, err := j.slot.live()
	if err != nil {
		return nil, err
	}
	stdout := core.takeStdout()
	if stdout == nil {
		return nil, errors.New("standard output is not captured or already read")
	}
	data, readErr := io.ReadAll(stdout)
	_ = stdout.Close()
	out, err := j.Wait()
	if err != nil {
		return data, err
	}
	if readErr != nil {
		return data, &OSError{Op: "read", Err: readErr}
	}
	return data, out.Err(j.slot.command)
}

// Close releases the handle. When it is the last handle the child is
// waited for; wait errors are logged, not returned. Close is idempotent.
func (j *Job) Close() {
	if !j.closed.CompareAndSwap(false, true) {
		return
	}
	j.cleanup.Stop()
	j.slot.release()
}
