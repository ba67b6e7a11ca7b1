//go:build linux

package shell

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DeliveryState is the progress of a process-wide signal delivery.
type DeliveryState int32

const (
	// Idle: no signal has been trapped.
	Idle DeliveryState = iota
	// Delivering: the trapped signal is being sent to every tracked job.
	Delivering
	// Draining: every job has been signaled and is being waited for.
	Draining
	// Terminal: all jobs are reaped and the process is exiting.
	Terminal
)

func (s DeliveryState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Delivering:
		return "delivering"
	case Draining:
		return "draining"
	case Terminal:
		return "terminal"
	default:
		return fmt.Sprintf("DeliveryState(%d)", int32(s))
	}
}

var errDeliveryStarted = errors.New("signal delivery already started")

// registry is the process-wide index of scopes and jobs. mu serializes
// spawning against signal delivery. Lock order: registry, scope, job slot.
type registry struct {
	mu     sync.Mutex
	scopes map[string]*Scope
	byPid  map[int]*jobSlot
	root   *Scope

	state atomic.Int32
	exit  func(code int)
}

var (
	globalOnce sync.Once
	global     *registry
)

func defaultRegistry() *registry {
	globalOnce.Do(func() {
		global = newRegistry(os.Exit)
	})
	return global
}

func newRegistry(exit func(code int)) *registry {
	r := &registry{
		scopes: make(map[string]*Scope),
		byPid:  make(map[int]*jobSlot),
		exit:   exit,
	}
	r.root = newScope("root", r)
	r.scopes[r.root.id] = r.root
	return r
}

func (r *registry) deliveryState() DeliveryState {
	return DeliveryState(r.state.Load())
}

// newScope registers a new scope. Scopes created after delivery has
// started are born signaled.
func (r *registry) newScope() *Scope {
	r.mu.Lock()
	defer r.mu.Unlock()

	sc := newScope(uuid.NewString(), r)
	sc.signaled = r.deliveryState() != Idle
	r.scopes[sc.id] = sc
	return sc
}

// closeScope marks sc closed. A closed scope stays indexed until its last
// job is reaped, so delivery and SignalScope still reach those jobs.
func (r *registry) closeScope(sc *Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.closed {
		return
	}
	sc.closed = true
	if sc != r.root && sc.jobs.Len() == 0 {
		delete(r.scopes, sc.id)
	}
}

// forget drops a reaped job, and its scope once that is closed and empty.
func (r *registry) forget(slot *jobSlot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byPid[slot.pid] == slot {
		delete(r.byPid, slot.pid)
	}
	if slot.scope.remove(slot) && slot.scope != r.root {
		delete(r.scopes, slot.scope.id)
	}
}

func (r *registry) snapshot() []*Scope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *registry) snapshotLocked() []*Scope {
	scopes := make([]*Scope, 0, len(r.scopes))
	for _, sc := range r.scopes {
		scopes = append(scopes, sc)
	}
	return scopes
}

// spawn starts the child and registers it before any delivery can observe
// the registry again.
func (r *registry) spawn(sc *Scope, spec Spec) (*Job, error) {
	cmd, opts, err := spec.command()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	sc.mu.Lock()
	defer sc.mu.Unlock()

	switch {
	case sc.closed:
		return nil, fmt.Errorf("spawn %s: %w", spec, ErrScopeClosed)
	case sc.signaled || r.deliveryState() != Idle:
		return nil, fmt.Errorf("spawn %s: %w", spec, ErrScopeSignaled)
	}

	core, err := startChild(cmd, opts)
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", spec, err)
	}
	slot := &jobSlot{
		core:    core,
		pid:     core.pid,
		command: spec.String(),
		group:   opts.group,
		scope:   sc,
		reg:     r,
	}
	r.byPid[slot.pid] = slot
	sc.jobs.Set(slot, struct{}{})

	if opts.group {
		if err := core.signal(syscall.SIGCONT); err != nil {
			log().Debug("continue process group", "pid", slot.pid, "error", err)
		}
	}
	log().Debug("spawned job", "pid", slot.pid, "command", slot.command, "scope", sc.id, "group", opts.group)
	return newJob(slot), nil
}

// signalScope is the narrow delivery path: it signals one scope and
// returns without draining or exiting.
func (r *registry) signalScope(id string, sig syscall.Signal) error {
	r.mu.Lock()
	sc, ok := r.scopes[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("scope %s: %w", id, ErrScopeClosed)
	}
	return sc.Signal(sig)
}

// deliver moves Idle to Delivering, signals every job in every scope and
// moves on to Draining. Spawns are refused from the moment it takes the
// lock.
func (r *registry) deliver(sig syscall.Signal) error {
	r.mu.Lock()
	if !r.state.CompareAndSwap(int32(Idle), int32(Delivering)) {
		r.mu.Unlock()
		return errDeliveryStarted
	}
	var errs []error
	for _, sc := range r.snapshotLocked() {
		if err := sc.Signal(sig); err != nil {
			errs = append(errs, err)
		}
	}
	r.state.Store(int32(Draining))
	r.mu.Unlock()
	return errors.Join(errs...)
}

// drain waits for and reaps every tracked job.
func (r *registry) drain() error {
	var g errgroup.Group
	for _, sc := range r.snapshot() {
		g.Go(sc.Wait)
	}
	return g.Wait()
}

// shutdown is the whole delivery: signal, drain, exit with 128+sig. With a
// positive killAfter, jobs still alive after that long get SIGKILL.
func (r *registry) shutdown(sig syscall.Signal, killAfter time.Duration) {
	log().Info("delivering signal to all jobs", "signal", sig, "jobs", r.count())
	if err := r.deliver(sig); err != nil {
		if errors.Is(err, errDeliveryStarted) {
			return
		}
		log().Warn("signal delivery", "signal", sig, "error", err)
	}

	if killAfter > 0 {
		timer := time.AfterFunc(killAfter, func() {
			log().Warn("jobs still running, sending SIGKILL", "after", killAfter, "jobs", r.count())
			for _, sc := range r.snapshot() {
				_ = sc.Signal(syscall.SIGKILL)
			}
		})
		defer timer.Stop()
	}

	if err := r.drain(); err != nil {
		log().Warn("drain jobs", "error", err)
	}
	r.state.Store(int32(Terminal))
	log().Debug("all jobs reaped", "exit", 128+int(sig))
	r.exit(128 + int(sig))
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byPid)
}

func (r *registry) jobs() []JobInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]JobInfo, 0, len(r.byPid))
	for _, slot := range r.byPid {
		infos = append(infos, JobInfo{
			Pid:     slot.pid,
			Command: slot.command,
			Scope:   slot.scope.id,
			Group:   slot.group,
		})
	}
	slices.SortFunc(infos, func(a, b JobInfo) int { return a.Pid - b.Pid })
	return infos
}

func (r *registry) lookup(pid int) (*Job, bool) {
	r.mu.Lock()
	slot, ok := r.byPid[pid]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return newJob(slot), true
}

// JobInfo describes a tracked job.
type JobInfo struct {
	Pid     int    `json:"pid"`
	Command string `json:"command"`
	Scope   string `json:"scope"`
	Group   bool   `json:"group"`
}

// Jobs returns every job tracked in the process, ordered by pid.
func Jobs() []JobInfo {
	return defaultRegistry().jobs()
}

// Lookup returns a new handle to the tracked job with the given pid. The
// handle must be closed like any other.
func Lookup(pid int) (*Job, bool) {
	return defaultRegistry().lookup(pid)
}

// SignalScope signals every job in the scope with the given ID and marks it
// signaled.
func SignalScope(id string, sig syscall.Signal) error {
	return defaultRegistry().signalScope(id, sig)
}

// CurrentDeliveryState reports how far a trapped signal has progressed.
func CurrentDeliveryState() DeliveryState {
	return defaultRegistry().deliveryState()
}
