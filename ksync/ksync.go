// Package ksync implements the three blocking synchronization primitives
// spec §4.7 builds on top of the executor: MutexBlocking, Sem, Condvar.
// Each follows the same shape — record the caller and a waker in a FIFO
// wait queue, mark the caller Waiting, spawn an executor task whose poll
// checks the primitive's condition — fresh code (no teacher package plays
// this role; biscuit blocks via goroutines parked in the modified
// runtime), grounded directly on spec.md §4.7's algorithm description and
// on hashtable's bucket-mutex idiom for the wait-queue locking style.
package ksync

import (
	"sync"

	"vesper/executor"
)

// Blocker_i is the thread-state transition a blocked caller exposes; the
// thread package's Thread_t implements this once it exists, so ksync has
// no dependency on it.
type Blocker_i interface {
	SetWaiting()
	SetRunnable()
}

// MutexBlocking_t is a mutex whose Lock does not spin or block the
// caller's goroutine: on contention it parks the caller (via Blocker_i)
// and returns immediately, letting the scheduler run something else
// while an executor task waits for the unlock wakeup.
type MutexBlocking_t struct {
	mu      sync.Mutex
	locked  bool
	waiters []func()
}

func (m *MutexBlocking_t) tryLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return false
	}
	m.locked = true
	return true
}

// Lock acquires the mutex if free; otherwise it parks who and arranges
// for an executor task to finish the acquisition once woken.
func (m *MutexBlocking_t) Lock(ex *executor.Executor_t, who Blocker_i) {
	if m.tryLock() {
		return
	}

	who.SetWaiting()
	registered := false
	ex.Spawn(func(wake func()) executor.Poll_t {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !registered {
			m.waiters = append(m.waiters, wake)
			registered = true
			return executor.Pending
		}
		if m.locked {
			return executor.Pending
		}
		m.locked = true
		who.SetRunnable()
		return executor.Ready
	})
}

// Unlock releases the mutex and wakes the oldest waiter, if any.
func (m *MutexBlocking_t) Unlock() {
	m.mu.Lock()
	m.locked = false
	wake := m.popWaiter()
	m.mu.Unlock()
	if wake != nil {
		wake()
	}
}

func (m *MutexBlocking_t) popWaiter() func() {
	if len(m.waiters) == 0 {
		return nil
	}
	w := m.waiters[0]
	m.waiters = m.waiters[1:]
	return w
}

// Sem_t is a counting semaphore, blocking on Down when the count is zero.
type Sem_t struct {
	mu      sync.Mutex
	n       int
	waiters []func()
}

// NewSem returns a semaphore initialized to n.
func NewSem(n int) *Sem_t {
	return &Sem_t{n: n}
}

// Down decrements the count if positive; otherwise it parks who until an
// Up makes the count positive again.
func (s *Sem_t) Down(ex *executor.Executor_t, who Blocker_i) {
	s.mu.Lock()
	if s.n >= 1 {
		s.n--
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	who.SetWaiting()
	registered := false
	ex.Spawn(func(wake func()) executor.Poll_t {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !registered {
			s.waiters = append(s.waiters, wake)
			registered = true
			return executor.Pending
		}
		if s.n < 1 {
			return executor.Pending
		}
		s.n--
		who.SetRunnable()
		return executor.Ready
	})
}

// Up increments the count and wakes the oldest waiter, if any.
func (s *Sem_t) Up() {
	s.mu.Lock()
	s.n++
	var wake func()
	if len(s.waiters) > 0 {
		wake = s.waiters[0]
		s.waiters = s.waiters[1:]
	}
	s.mu.Unlock()
	if wake != nil {
		wake()
	}
}

// Condvar_t is a FIFO-waiter condition variable that reacquires its
// associated mutex before marking the waiting caller Runnable again,
// matching spec §4.7's "two sequential executor tasks, the second spawned
// from inside the first's continuation" chain.
type Condvar_t struct {
	mu      sync.Mutex
	waiters []func()
}

// Wait releases m, parks who on the condvar, and — once Signal fires —
// reacquires m before marking who Runnable.
func (c *Condvar_t) Wait(ex *executor.Executor_t, m *MutexBlocking_t, who Blocker_i) {
	m.Unlock()
	who.SetWaiting()

	registered := false
	ex.Spawn(func(wake func()) executor.Poll_t {
		c.mu.Lock()
		if !registered {
			c.waiters = append(c.waiters, wake)
			registered = true
			c.mu.Unlock()
			return executor.Pending
		}
		c.mu.Unlock()
		// Reaching here only happens once Signal has fired our wake
		// (the executor keeps a sleeping task parked otherwise), so
		// the condition is satisfied; reacquire m before resuming.
		if m.tryLock() {
			who.SetRunnable()
		} else {
			m.Lock(ex, who)
		}
		return executor.Ready
	})
}

// Signal wakes the oldest waiter, if any.
func (c *Condvar_t) Signal() {
	c.mu.Lock()
	var wake func()
	if len(c.waiters) > 0 {
		wake = c.waiters[0]
		c.waiters = c.waiters[1:]
	}
	c.mu.Unlock()
	if wake != nil {
		wake()
	}
}
