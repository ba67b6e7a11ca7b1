//go:build linux

package shell

import (
	"context"
	"runtime/debug"
	"syscall"
)

// Worker is a goroutine with its own Scope, started by Go.
type Worker struct {
	scope *Scope
	done  chan struct{}
	err   error
}

// Go runs fn in a new goroutine whose context carries a fresh Scope. Every
// job fn spawns through that context can be signaled through the Worker. A
// panic in fn is recovered and returned by Join as a *PanicError.
func Go(ctx context.Context, fn func(ctx context.Context) error) *Worker {
	ctx, sc := WithScope(ctx)
	w := &Worker{scope: sc, done: make(chan struct{})}

	go func() {
		defer close(w.done)
		defer sc.Close()
		defer func() {
			if r := recover(); r != nil {
				w.err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		w.err = fn(ctx)
	}()
	return w
}

// ScopeID returns the ID of the worker's scope, as accepted by SignalScope.
func (w *Worker) ScopeID() string {
	return w.scope.id
}

// Signal marks the worker's scope signaled and sends sig to its jobs.
func (w *Worker) Signal(sig syscall.Signal) error {
	return w.scope.Signal(sig)
}

// Terminate sends SIGTERM to the worker's jobs and joins it.
func (w *Worker) Terminate() error {
	if err := w.Signal(syscall.SIGTERM); err != nil {
		log().Debug("terminate worker", "scope", w.scope.id, "error", err)
	}
	return w.Join()
}

// Join waits for the worker function to return and returns its error.
func (w *Worker) Join() error {
	<-w.done
	return w.err
}

// Done is closed when the worker function has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}
