package defs

// Err_t is the kernel-internal error convention: zero means success,
// a negative value is a sentinel identifying the failure. Functions reached
// from the syscall boundary return Err_t (or fold it into a negative
// return word) instead of Go's error, per spec's "Invalid syscall
// arguments ... return a sentinel" rule.
type Err_t int

// Sentinel error codes. Values are arbitrary but stable within this kernel;
// they are never compared against host-OS errno numbers.
const (
	EFAULT       Err_t = 1 // bad user pointer / unmapped address
	ENOMEM       Err_t = 2 // out of physical frames
	ENOHEAP      Err_t = 3 // out of kernel heap (resource-bound exhaustion)
	EINVAL       Err_t = 4 // invalid argument
	ENAMETOOLONG Err_t = 5 // path/arg string too long
	EBADF        Err_t = 6 // bad or closed file descriptor
	ENOSYS       Err_t = 7 // unknown syscall number
	ESRCH        Err_t = 8 // no such process/thread
	ECHILD       Err_t = 9 // no such child / not a child
	EPERM        Err_t = 10 // operation not permitted (e.g. ThreadJoin by non-root thread)
	ENOENT       Err_t = 11 // path does not exist
	EEXIST       Err_t = 12 // path already exists
	EAGAIN       Err_t = 13 // resource temporarily exhausted (limits)
)

// Max is the sentinel returned in place of a pid/tid from operations that
// the spec defines as returning "pid or MAX" (ProcCreate, ProcWait on a
// nonexistent pid, ThreadJoin of a non-root caller).
const Max = ^uint(0)

// Tid_t identifies a thread within its owning process.
type Tid_t int

// Pid_t identifies a process within the global process table.
type Pid_t int

// Ktid_t identifies a kernel service thread within the global kthread table.
type Ktid_t int

// RootTid is the thread id of a process's root thread; its exit triggers
// process exit (spec §3, §4.4).
const RootTid Tid_t = 0
