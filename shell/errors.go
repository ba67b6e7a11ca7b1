//go:build linux

package shell

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrNoSuchProcess is returned when a job's process has already been
	// reaped, or never existed.
	ErrNoSuchProcess = errors.New("no such process")

	// ErrScopeSignaled is returned by Spawn once the caller's scope has been
	// signaled or the process is shutting down.
	ErrScopeSignaled = errors.New("scope has been signaled")

	// ErrScopeClosed is returned by Spawn when the context carries a scope
	// whose owner has already finished.
	ErrScopeClosed = errors.New("scope is closed")
)

// OSError records a failed system call.
type OSError struct {
	Op  string
	Err error
}

func (e *OSError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *OSError) Unwrap() error {
	return e.Err
}

// Is reports ESRCH and ECHILD as ErrNoSuchProcess.
func (e *OSError) Is(target error) bool {
	if target != ErrNoSuchProcess {
		return false
	}
	return errors.Is(e.Err, syscall.ESRCH) || errors.Is(e.Err, syscall.ECHILD)
}

// ExitError reports a child that did not exit successfully.
type ExitError struct {
	Command string
	Outcome ExitOutcome
}

// Exit returns an error that makes a subshell exit with code.
func Exit(code int) error {
	return &ExitError{Outcome: Exited(code)}
}

func (e *ExitError) Error() string {
	if e.Command == "" {
		return e.Outcome.String()
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Outcome)
}

// ExitCode returns the shell-style status: the exit code, or 128+signal.
// See ExitOutcome.ExitCode for how a panic is reported.
func (e *ExitError) ExitCode() int {
	return e.Outcome.ExitCode()
}

// PanicError is returned by Worker.Join when the worker function panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker panicked: %v", e.Value)
}
