// Package thread implements Thread_t: a user thread's resumption state
// (user register context plus run state) and the state-waker fan-out that
// ProcWait/ThreadJoin park on. Grounded on tinfo/tinfo.go's Tnote_t
// (per-thread mutex, State field, alive/killed flags) generalized from
// biscuit's boolean alive/killed pair to the spec's full run-state enum;
// tinfo's runtime.Gptr()/Setgptr() current-thread accessor (a dependency
// on biscuit's modified Go runtime, see DESIGN.md's frame entry for the
// same substitution pattern) is replaced with an ordinary package-level
// variable, valid because this kernel is single-CPU (spec §5) so there is
// exactly one "current thread" at a time, not one per core.
package thread

import (
	"sync"

	"vesper/defs"
)

// State_t is a thread's run state (spec §3/§4.4).
type State_t int

const (
	Runnable State_t = iota
	Waiting
	Stop
	Suspended
	Exited
)

func (s State_t) String() string {
	switch s {
	case Runnable:
		return "Runnable"
	case Waiting:
		return "Waiting"
	case Stop:
		return "Stop"
	case Suspended:
		return "Suspended"
	case Exited:
		return "Exited"
	default:
		return "?"
	}
}

// UserCtx_t is a user thread's authoritative resumption state: the
// register file captured by the trap trampoline. Kernel service threads
// instead resume via KernelContext_t (see ktask) and carry no UserCtx_t.
type UserCtx_t struct {
	Rip, Rsp    uintptr
	Rax, Rdi, Rsi, Rdx, Rcx, R8, R9 uint64
	Fsbase uintptr
}

// Thread_t is one schedulable user thread.
type Thread_t struct {
	sync.Mutex
	Tid     defs.Tid_t
	State   State_t
	Ctx     UserCtx_t
	wakers  []func()
}

// New returns a Runnable thread with tid.
func New(tid defs.Tid_t) *Thread_t {
	return &Thread_t{Tid: tid, State: Runnable}
}

// SetState transitions the thread's run state. Per spec §5's cancellation
// note, setting state on an already-Exited thread is a silent no-op — an
// in-flight wakeup racing a just-exited thread must not resurrect it.
func (t *Thread_t) SetState(s State_t) {
	t.Lock()
	if t.State == Exited {
		t.Unlock()
		return
	}
	t.State = s
	var fire []func()
	if s == Exited {
		fire = t.wakers
		t.wakers = nil
	}
	t.Unlock()
	for _, w := range fire {
		w()
	}
}

// SetWaiting and SetRunnable implement ksync.Blocker_i.
func (t *Thread_t) SetWaiting()  { t.SetState(Waiting) }
func (t *Thread_t) SetRunnable() { t.SetState(Runnable) }

// GetState reads the current run state.
func (t *Thread_t) GetState() State_t {
	t.Lock()
	defer t.Unlock()
	return t.State
}

// AddExitWaker registers w to fire once this thread transitions to
// Exited (ThreadJoin's suspension point, spec §5); if the thread has
// already exited, w fires immediately.
func (t *Thread_t) AddExitWaker(w func()) {
	t.Lock()
	if t.State == Exited {
		t.Unlock()
		w()
		return
	}
	t.wakers = append(t.wakers, w)
	t.Unlock()
}

var current *Thread_t

// Current returns the thread presently executing on the (single) CPU.
func Current() *Thread_t {
	if current == nil {
		panic("no current thread")
	}
	return current
}

// SetCurrent installs t as the current thread until ClearCurrent or the
// next SetCurrent.
func SetCurrent(t *Thread_t) {
	current = t
}

// ClearCurrent removes the current-thread marker.
func ClearCurrent() {
	current = nil
}
