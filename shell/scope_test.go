//go:build linux

package shell

import (
	"context"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeFromDefaultsToRoot(t *testing.T) {
	assert.Same(t, defaultRegistry().root, ScopeFrom(context.Background()))

	ctx, sc := WithScope(context.Background())
	defer sc.Close()
	assert.Same(t, sc, ScopeFrom(ctx))
	assert.NotEqual(t, "root", sc.ID())
}

func TestScopeSignalVetoesSpawn(t *testing.T) {
	ctx, sc := WithScope(context.Background())
	defer sc.Close()

	a, err := Spawn(ctx, Command("sleep", "30"))
	require.NoError(t, err)
	defer a.Close()
	b, err := Spawn(ctx, Command("sleep", "30"))
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, []int{a.Pid(), b.Pid()}, sc.Pids())

	require.NoError(t, sc.Signal(syscall.SIGTERM))
	assert.True(t, sc.Signaled())

	_, err = Spawn(ctx, Command("true"))
	assert.ErrorIs(t, err, ErrScopeSignaled)

	out, err := a.Wait()
	require.NoError(t, err)
	assert.Equal(t, Signaled(syscall.SIGTERM), out)

	require.NoError(t, sc.Wait())
	assert.Zero(t, sc.Len())
	_, err = b.Wait()
	assert.ErrorIs(t, err, ErrNoSuchProcess)
}

func TestScopeSignalContinuesPastFailures(t *testing.T) {
	r := newRegistry(func(int) {})
	sc := r.newScope()

	gone := &jobSlot{pid: -1, command: "gone", scope: sc, reg: r}
	sc.jobs.Set(gone, struct{}{})
	job, err := r.spawn(sc, Command("sleep", "30"))
	require.NoError(t, err)
	defer job.Close()

	err = sc.Signal(syscall.SIGTERM)
	assert.ErrorIs(t, err, ErrNoSuchProcess)
	assert.Contains(t, err.Error(), "gone")

	out, err := job.Wait()
	require.NoError(t, err)
	assert.Equal(t, Signaled(syscall.SIGTERM), out)
	sc.remove(gone)
}

func TestClosedScopeRefusesSpawn(t *testing.T) {
	ctx, sc := WithScope(context.Background())
	sc.Close()
	sc.Close()

	_, err := Spawn(ctx, Command("true"))
	assert.ErrorIs(t, err, ErrScopeClosed)
	assert.ErrorIs(t, SignalScope(sc.ID(), syscall.SIGTERM), ErrScopeClosed)
}

func TestReapRemovesJobFromScope(t *testing.T) {
	ctx, sc := WithScope(context.Background())
	defer sc.Close()

	job, err := Spawn(ctx, Command("true"))
	require.NoError(t, err)
	assert.Equal(t, 1, sc.Len())

	job.Close()
	assert.Zero(t, sc.Len())
}
