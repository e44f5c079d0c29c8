package sched

import (
	"testing"

	"vesper/frame"
	"vesper/process"
	"vesper/stats"
	"vesper/thread"
	"vesper/trap"
	"vesper/vmarea"
)

func init() { stats.Enabled = true }

func fakeProcess(t *testing.T) (*process.Process_t, *thread.Thread_t) {
	t.Helper()
	frame.Physmem = &frame.Physmem_t{}
	alloc := frame.Phys_init(64)
	as, err := vmarea.NewAddressSpace(alloc)
	if err != 0 {
		t.Fatalf("NewAddressSpace: %d", err)
	}
	p, perr := process.NewRoot(as, alloc)
	if perr != 0 {
		t.Fatalf("NewRoot: %d", perr)
	}
	return p, p.RootThread()
}

func TestPassPrefersKernelUnitsOverUserThreads(t *testing.T) {
	s := New(func(*thread.Thread_t) *trap.Frame_t {
		t.Fatal("runUntilTrap must not be called while a kernel unit needs scheduling")
		return nil
	})
	ran := false
	s.AddUnit(Unit_t{
		NeedSchedule: func() bool { return true },
		RunOnce:      func() { ran = true },
	})
	if !s.Pass() {
		t.Fatal("Pass must report true when a unit ran")
	}
	if !ran {
		t.Fatal("Pass must run the first unit whose NeedSchedule is true")
	}
}

func TestPassSkipsUnitsThatDontNeedScheduling(t *testing.T) {
	_, root := fakeProcess(t)
	ranUser := false
	s := New(func(*thread.Thread_t) *trap.Frame_t {
		ranUser = true
		return &trap.Frame_t{Num: trap.TimerIRQ, FromUser: true}
	})
	s.AddUnit(Unit_t{
		NeedSchedule: func() bool { return false },
		RunOnce:      func() { t.Fatal("RunOnce must not fire when NeedSchedule is false") },
	})
	s.Enqueue(root)
	if !s.Pass() {
		t.Fatal("Pass must fall through to the user thread")
	}
	if !ranUser {
		t.Fatal("Pass must run the Runnable user thread once no unit needs scheduling")
	}
}

func TestPassReturnsFalseWhenNothingRunnable(t *testing.T) {
	s := New(func(*thread.Thread_t) *trap.Frame_t {
		t.Fatal("runUntilTrap must not be called with an empty queue")
		return nil
	})
	if s.Pass() {
		t.Fatal("Pass on an idle scheduler must return false")
	}
}

func TestRunUserThreadSuspendedCleanupReenqueuesRunnable(t *testing.T) {
	_, root := fakeProcess(t)
	s := New(func(*thread.Thread_t) *trap.Frame_t {
		return &trap.Frame_t{Num: trap.TimerIRQ, FromUser: true}
	})
	s.Enqueue(root)

	if !s.Pass() {
		t.Fatal("Pass must run the Runnable root thread")
	}
	if root.GetState() != thread.Runnable {
		t.Fatal("a thread left Suspended by its trap must be flipped back to Runnable")
	}

	ranAgain := false
	s.runUntilTrap = func(*thread.Thread_t) *trap.Frame_t {
		ranAgain = true
		return &trap.Frame_t{Num: trap.TimerIRQ, FromUser: true}
	}
	if !s.Pass() || !ranAgain {
		t.Fatal("the requeued thread must be picked again on a later pass")
	}
}

func TestRunUserThreadWaitingCleanupStaysInQueueUntilWoken(t *testing.T) {
	_, root := fakeProcess(t)
	trap.SetSyscallHandler(func(th *thread.Thread_t, f *trap.Frame_t) {
		th.SetState(thread.Waiting)
	})
	defer trap.SetSyscallHandler(nil)

	s := New(func(*thread.Thread_t) *trap.Frame_t {
		return &trap.Frame_t{Num: trap.SyscallVec}
	})
	s.Enqueue(root)
	if !s.Pass() {
		t.Fatal("Pass must run the root thread")
	}
	if root.GetState() != thread.Waiting {
		t.Fatal("a Waiting thread must not be resurrected by cleanup")
	}

	// Not Runnable, so a later pass must not pick it again.
	if s.Pass() {
		t.Fatal("Pass must report false while the only queued thread is Waiting")
	}

	root.SetRunnable()
	picked := false
	s.runUntilTrap = func(*thread.Thread_t) *trap.Frame_t {
		picked = true
		return &trap.Frame_t{Num: trap.SyscallVec}
	}
	trap.SetSyscallHandler(func(*thread.Thread_t, *trap.Frame_t) {})
	if !s.Pass() || !picked {
		t.Fatal("waking the thread must make it eligible again")
	}
}

func TestRunUserThreadExitedCleanupCallsThreadExit(t *testing.T) {
	p, root := fakeProcess(t)
	trap.SetSyscallHandler(func(th *thread.Thread_t, f *trap.Frame_t) {
		th.SetState(thread.Exited)
	})
	defer trap.SetSyscallHandler(nil)

	s := New(func(*thread.Thread_t) *trap.Frame_t {
		return &trap.Frame_t{Num: trap.SyscallVec}
	})
	s.Enqueue(root)
	if !s.Pass() {
		t.Fatal("Pass must run the thread")
	}
	if _, ok := process.Lookup(p.Pid); ok {
		t.Fatal("tid-0 exit must cascade to full process exit")
	}
}
