//go:build linux

package shell

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/errgroup"
)

// Scope tracks the children spawned by one logical task. A Scope travels in
// a context.Context; Spawn attributes each child to the scope found in its
// context, or to the process-wide root scope.
type Scope struct {
	id  string
	reg *registry

	mu       sync.Mutex
	jobs     *orderedmap.OrderedMap[*jobSlot, struct{}]
	signaled bool
	closed   bool
}

func newScope(id string, reg *registry) *Scope {
	return &Scope{
		id:   id,
		reg:  reg,
		jobs: orderedmap.New[*jobSlot, struct{}](),
	}
}

type scopeKey struct{}

// WithScope returns a context carrying a new Scope. The caller must Close
// the scope when the task it belongs to ends.
func WithScope(ctx context.Context) (context.Context, *Scope) {
	sc := defaultRegistry().newScope()
	return context.WithValue(ctx, scopeKey{}, sc), sc
}

// ScopeFrom returns the Scope carried by ctx, or the root scope.
func ScopeFrom(ctx context.Context) *Scope {
	if sc, ok := ctx.Value(scopeKey{}).(*Scope); ok {
		return sc
	}
	return defaultRegistry().root
}

func (s *Scope) ID() string {
	return s.id
}

// Signaled reports whether the scope has been signaled. Spawns in a
// signaled scope fail with ErrScopeSignaled.
func (s *Scope) Signaled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signaled
}

// Len returns the number of live jobs in the scope.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs.Len()
}

// Pids returns the pids of the live jobs in spawn order.
func (s *Scope) Pids() []int {
	slots := s.snapshot()
	pids := make([]int, len(slots))
	for i, slot := range slots {
		pids[i] = slot.pid
	}
	return pids
}

// Signal marks the scope signaled and sends sig to every live job in spawn
// order. A failure for one job does not stop the others; all failures are
// returned joined.
func (s *Scope) Signal(sig syscall.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.signaled = true
	var errs []error
	for pair := s.jobs.Oldest(); pair != nil; pair = pair.Next() {
		slot := pair.Key
		if err := slot.signal(sig); err != nil {
			log().Debug("signal job", "scope", s.id, "pid", slot.pid, "signal", sig, "error", err)
			errs = append(errs, fmt.Errorf("signal %d (%s): %w", slot.pid, slot.command, err))
		}
	}
	return errors.Join(errs...)
}

// Wait waits for every live job in the scope and reaps it.
func (s *Scope) Wait() error {
	var g errgroup.Group
	for _, slot := range s.snapshot() {
		g.Go(func() error {
			if _, err := slot.wait(); err != nil && !errors.Is(err, ErrNoSuchProcess) {
				return fmt.Errorf("wait %d (%s): %w", slot.pid, slot.command, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close ends the scope: further spawns in it fail with ErrScopeClosed.
// Jobs still running keep their handles and stay reachable through
// SignalScope and a trapped signal; the scope leaves the process-wide
// index once the last of them is reaped.
func (s *Scope) Close() {
	s.reg.closeScope(s)
}

func (s *Scope) snapshot() []*jobSlot {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots := make([]*jobSlot, 0, s.jobs.Len())
	for pair := s.jobs.Oldest(); pair != nil; pair = pair.Next() {
		slots = append(slots, pair.Key)
	}
	return slots
}

// remove drops slot and reports whether the scope is now closed and empty.
func (s *Scope) remove(slot *jobSlot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs.Delete(slot)
	return s.closed && s.jobs.Len() == 0
}
