// Package executor implements the cooperative, single-threaded task
// runner the spec's kernel service threads and blocking sync primitives
// are built on (§4.6). No biscuit package plays this role — biscuit
// schedules everything through a modified Go runtime's goroutine
// scheduler, which this spec deliberately replaces with an explicit,
// inspectable poll loop — so this is ported straight from
// original_source/kernel/src/future/executor.rs's Executor/Task, with
// Rust's Future::poll(&mut Context) expressed as a plain closure
// PollFn(wake func()) Poll_t.
package executor

import "sync"

// Poll_t is the two-outcome result a task's poll function reports.
type Poll_t int

const (
	Pending Poll_t = iota
	Ready
)

// PollFn is one task's unit of work: given a wake callback to register for
// later (if it needs to block), return whether it completed this pass.
type PollFn func(wake func()) Poll_t

// State_t mirrors the Rust original's ExecutorState.
type State_t int

const (
	Idle State_t = iota
	NeedRun
)

type task_t struct {
	poll      PollFn
	sleepFlag bool
}

// Executor_t is a FIFO queue of tasks, run one pass at a time. It is not
// safe for use from more than one CPU, consistent with spec §5's
// single-core model; the mutex exists only because wake callbacks can
// fire from a different call stack than the poll loop (e.g. a pipe's
// write-end Close, §4.8).
type Executor_t struct {
	sync.Mutex
	tasks []*task_t
	state State_t
}

// New returns an idle executor.
func New() *Executor_t {
	return &Executor_t{}
}

// Spawn enqueues a task and marks the executor as needing to run, the way
// original_source's spawn() does after constructing a Task.
func (e *Executor_t) Spawn(poll PollFn) {
	e.Lock()
	e.tasks = append(e.tasks, &task_t{poll: poll})
	e.state = NeedRun
	e.Unlock()
}

// NeedSchedule reports whether the scheduler should give this executor a
// turn (spec §4.6's "Executor needs scheduling iff it has tasks pending a
// poll").
func (e *Executor_t) NeedSchedule() bool {
	e.Lock()
	defer e.Unlock()
	return e.state == NeedRun
}

// RunUntilIdle polls every currently-queued task once — ported from
// run_until_idle's `for _ in 0..tasks_queue.len()` single pass over the
// snapshot length, not a live loop, so a task that re-enqueues itself
// doesn't get polled twice in the same pass.
func (e *Executor_t) RunUntilIdle() {
	e.Lock()
	// Idle from the start of the pass: a wake fired or a task spawned while
	// the pass runs sets NeedRun again, so neither is lost.
	e.state = Idle
	n := len(e.tasks)
	e.Unlock()

	for i := 0; i < n; i++ {
		e.Lock()
		if len(e.tasks) == 0 {
			e.Unlock()
			break
		}
		t := e.tasks[0]
		e.tasks = e.tasks[1:]
		needPoll := !t.sleepFlag
		if needPoll {
			t.sleepFlag = true
		}
		e.Unlock()

		if !needPoll {
			e.requeue(t)
			continue
		}

		wake := func() {
			e.Lock()
			t.sleepFlag = false
			e.state = NeedRun
			e.Unlock()
		}
		if t.poll(wake) == Pending {
			e.requeue(t)
		}
	}
}

func (e *Executor_t) requeue(t *task_t) {
	e.Lock()
	e.tasks = append(e.tasks, t)
	e.Unlock()
}

// Len reports the number of tasks currently queued, for tests and stats.
func (e *Executor_t) Len() int {
	e.Lock()
	defer e.Unlock()
	return len(e.tasks)
}
