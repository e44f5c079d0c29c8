// Package sched implements spec §4.6's two-tier scheduler loop: kernel
// service threads (and the cooperative executor) get first refusal each
// pass, and only when none of them need to run does the loop pop one
// Runnable user thread and run it to its next trap. Fresh code — no
// teacher package models a scheduler distinct from the modified Go
// runtime's own goroutine scheduler, which this spec replaces outright —
// ported directly from spec §4.6's algorithm description onto
// [[ktask]]/[[executor]]/[[trap]]/[[thread]].
package sched

import (
	"vesper/executor"
	"vesper/ktask"
	"vesper/process"
	"vesper/stats"
	"vesper/thread"
	"vesper/trap"
)

// Unit_t is one entry in the scheduler's kernel-thread queue: the
// need-scheduling/run-once shape ktask.KThread_t and executor.Executor_t
// both have, under different method names. The root kernel thread is
// never a member of this queue — in this model it IS the scheduler's own
// loop, matching spec §4.6's "Root thread is always eligible but avoided
// when it is the caller."
type Unit_t struct {
	NeedSchedule func() bool
	RunOnce      func()
}

// ServerUnit wraps a FsServer/BlkServer-role kernel thread as a Unit_t.
func ServerUnit(kt *ktask.KThread_t) Unit_t {
	return Unit_t{NeedSchedule: kt.NeedSchedule, RunOnce: func() { kt.RunOnce() }}
}

// ExecutorUnit wraps the cooperative executor as a Unit_t: its "run once"
// is a single RunUntilIdle pass (spec §4.6 paragraph 3's "one pass" body,
// despite the method's name — it polls each currently queued task
// exactly once, not a live drain loop).
func ExecutorUnit(e *executor.Executor_t) Unit_t {
	return Unit_t{NeedSchedule: e.NeedSchedule, RunOnce: e.RunUntilIdle}
}

// RunUntilTrapFn runs t in user mode until a trap fires and returns the
// captured frame (spec §4.6 step 2's run_until_trap). This core has no
// real ring-3 switch to perform; the boot sequence supplies the concrete
// implementation.
type RunUntilTrapFn func(t *thread.Thread_t) *trap.Frame_t

// Scheduler_t is the root kernel thread's main loop state: the ordered
// kernel-thread queue and the global FIFO of user threads.
type Scheduler_t struct {
	units        []Unit_t
	userQ        []*thread.Thread_t
	runUntilTrap RunUntilTrapFn
}

// New returns a scheduler that drives user threads via runUntilTrap.
func New(runUntilTrap RunUntilTrapFn) *Scheduler_t {
	return &Scheduler_t{runUntilTrap: runUntilTrap}
}

// AddUnit appends a kernel-thread queue entry; registration order is scan
// order (spec §4.6: "the first ... whose need_schedule predicate holds").
func (s *Scheduler_t) AddUnit(u Unit_t) { s.units = append(s.units, u) }

// Enqueue adds t to the user-thread run queue — called once for every
// newly created thread (wire via process.SetNewThreadHook) and again by
// Pass's own cleanup step for every thread that survives its trap.
func (s *Scheduler_t) Enqueue(t *thread.Thread_t) { s.userQ = append(s.userQ, t) }

// Pass runs one iteration of the two-tier loop. It returns false when
// nothing was runnable this pass — every unit's NeedSchedule was false
// and no user thread was Runnable — the boot loop's cue to halt/idle.
func (s *Scheduler_t) Pass() bool {
	stats.Global.SchedulerPasses.Inc()

	for _, u := range s.units {
		if u.NeedSchedule() {
			u.RunOnce()
			return true
		}
	}
	return s.runUserThread()
}

// runUserThread implements spec §4.6 step 2 plus its post-trap cleanup
// rules: pop the first Runnable thread, run it to its trap, dispatch the
// trap, then requeue/drop it per its resulting state.
func (s *Scheduler_t) runUserThread() bool {
	idx := -1
	for i, t := range s.userQ {
		if t.GetState() == thread.Runnable {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	t := s.userQ[idx]
	s.userQ = append(s.userQ[:idx:idx], s.userQ[idx+1:]...)

	f := s.runUntilTrap(t)
	trap.Handle(t, f)

	switch t.GetState() {
	case thread.Exited:
		if p, ok := process.Owner(t); ok {
			p.ThreadExit(t)
		}
	case thread.Suspended:
		t.SetState(thread.Runnable)
		s.userQ = append(s.userQ, t)
	default:
		// Runnable | Waiting | Stop: re-enqueued as-is. Blocked states
		// simply won't be picked by the scan above until something wakes
		// them back to Runnable.
		s.userQ = append(s.userQ, t)
	}
	return true
}
