// Package limits tracks system-wide resource caps the kernel core enforces:
// how many processes, pipes, kernel service threads, in-flight executor
// tasks, and outstanding per-server requests may exist at once.
package limits

import "sync/atomic"

// Sysatomic_t is a numeric limit that can be atomically taken from and
// given back to, the way a semaphore's count is managed without blocking.
type Sysatomic_t struct {
	n int64
}

// Syslimit_t tracks system-wide resource limits.
type Syslimit_t struct {
	Sysprocs      int          // max live processes
	Pipes         Sysatomic_t  // max live pipes
	Kthreads      int          // max kernel service threads
	ExecutorTasks Sysatomic_t  // max in-flight executor tasks
	Requests      int          // max outstanding requests per server
	Blocks        int          // max cached on-disk blocks
}

// Syslimit holds the configured system-wide limits.
var Syslimit = MkSysLimit()

// MkSysLimit returns the default set of limits.
func MkSysLimit() *Syslimit_t {
	sl := &Syslimit_t{
		Sysprocs: 4096,
		Kthreads: 64,
		Requests: 1024,
		Blocks:   100000,
	}
	sl.Pipes.Given(10000)
	sl.ExecutorTasks.Given(100000)
	return sl
}

// Given increases the limit by n.
func (s *Sysatomic_t) Given(n uint) {
	atomic.AddInt64(&s.n, int64(n))
}

// Taken tries to decrement the limit by n, returning true on success and
// leaving the count unchanged on failure.
func (s *Sysatomic_t) Taken(n uint) bool {
	if atomic.AddInt64(&s.n, -int64(n)) >= 0 {
		return true
	}
	atomic.AddInt64(&s.n, int64(n))
	return false
}

// Take decrements the limit by one.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}

// Remaining reports the current count, for diagnostics only.
func (s *Sysatomic_t) Remaining() int64 {
	return atomic.LoadInt64(&s.n)
}
