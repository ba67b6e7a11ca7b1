//go:build linux

package shell

import (
	"fmt"
	"os"
	"syscall"
)

// PanicExitCode is the status a subshell exits with when its closure panics.
// A closure may exit with the same code on purpose; ExitOutcome.Panicked
// tells the two apart.
const PanicExitCode = 101

// ExitOutcome is the collected status of a reaped child.
type ExitOutcome struct {
	// Code is the exit code. It is meaningful only when Signal is zero.
	Code int
	// Signal is the signal that terminated the child, or zero.
	Signal syscall.Signal
	// Panicked is set when a subshell closure panicked.
	Panicked bool
	// PanicValue is the formatted panic value reported by the subshell.
	PanicValue string
}

// Exited returns the outcome of a child that exited with code.
func Exited(code int) ExitOutcome {
	return ExitOutcome{Code: code}
}

// Signaled returns the outcome of a child killed by sig.
func Signaled(sig syscall.Signal) ExitOutcome {
	return ExitOutcome{Signal: sig}
}

func (o ExitOutcome) Exited() bool { return o.Signal == 0 }

func (o ExitOutcome) Signaled() bool { return o.Signal != 0 }

func (o ExitOutcome) Success() bool {
	return o.Signal == 0 && o.Code == 0 && !o.Panicked
}

// ExitCode maps the outcome to a shell-style status: the exit code, or
// 128+signal. A panicked subshell maps to PanicExitCode, the same status a
// closure returning Exit(PanicExitCode) produces; only Panicked, read from
// the subshell's status pipe, tells them apart. Callers that must
// distinguish a crash check Panicked, not the code.
func (o ExitOutcome) ExitCode() int {
	if o.Signal != 0 {
		return 128 + int(o.Signal)
	}
	return o.Code
}

// Err returns nil for a successful outcome and an *ExitError otherwise.
func (o ExitOutcome) Err(command string) error {
	if o.Success() {
		return nil
	}
	return &ExitError{Command: command, Outcome: o}
}

func (o ExitOutcome) String() string {
	switch {
	case o.Panicked:
		return fmt.Sprintf("panicked: %s", o.PanicValue)
	case o.Signal != 0:
		return fmt.Sprintf("terminated by signal %d (%s)", int(o.Signal), o.Signal)
	default:
		return fmt.Sprintf("exit status %d", o.Code)
	}
}

func outcomeOf(ps *os.ProcessState) ExitOutcome {
	ws, ok := ps.Sys().(syscall.WaitStatus)
	if !ok {
		return Exited(ps.ExitCode())
	}
	if ws.Signaled() {
		return Signaled(ws.Signal())
	}
	return Exited(ws.ExitStatus())
}
