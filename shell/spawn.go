//go:build linux

package shell

import "context"

// Spawn starts spec as a child process tracked by the scope in ctx. It
// fails with ErrScopeSignaled once that scope has been signaled or a
// trapped signal is being delivered.
func Spawn(ctx context.Context, spec Spec) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return defaultRegistry().spawn(ScopeFrom(ctx), spec)
}

// Run spawns spec and waits for it. An unsuccessful exit is returned as an
// *ExitError.
func Run(ctx context.Context, spec Spec) error {
	job, err := Spawn(ctx, spec)
	if err != nil {
		return err
	}
	defer job.Close()

	out, err := job.Wait()
	if err != nil {
		return err
	}
	return out.Err(job.String())
}
