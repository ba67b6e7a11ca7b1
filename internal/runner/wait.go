package runner

import (
	"context"
	"errors"
	"log/slog"
	"syscall"
	"time"

	"jobshell.dev/shell"
)

type waitResult struct {
	outcome shell.ExitOutcome
	err     error
}

// waitWithTimeout waits for job to exit. Once timeout elapses (if positive)
// or ctx is cancelled the job gets SIGTERM, and SIGKILL if it is still
// running killAfter later. The reported bool is true when the timeout fired.
func waitWithTimeout(ctx context.Context, job *shell.Job, timeout, killAfter time.Duration) (shell.ExitOutcome, bool, error) {
	done := make(chan waitResult, 1)
	go func() {
		out, err := job.Wait()
		done <- waitResult{outcome: out, err: err}
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	timedOut := false
	select {
	case r := <-done:
		return r.outcome, false, r.err
	case <-expired:
		timedOut = true
	case <-ctx.Done():
	}

	signalJob(job, syscall.SIGTERM)

	kill := time.NewTimer(killAfter)
	defer kill.Stop()
	select {
	case r := <-done:
		return r.outcome, timedOut, r.err
	case <-kill.C:
	}

	signalJob(job, syscall.SIGKILL)
	r := <-done
	return r.outcome, timedOut, r.err
}

func signalJob(job *shell.Job, sig syscall.Signal) {
	if err := job.Signal(sig); err != nil && !errors.Is(err, shell.ErrNoSuchProcess) {
		slog.Warn("failed to signal job", "pid", job.Pid(), "signal", sig, "error", err)
	}
}
