// Package fdops declares the narrow interfaces a file descriptor's backing
// object (console, pipe, on-disk inode) must satisfy, and the Userio_i
// interface user-memory and kernel-memory buffers both implement so I/O
// code never needs to know which kind of buffer it was handed.
package fdops

import "vesper/defs"

// Userio_i is satisfied by anything read/write syscalls can copy bytes
// into or out of: a user-memory buffer (vmarea.Userbuf_t), a kernel buffer
// standing in for one (vmarea.Fakeubuf_t), or a pipe's internal copy path.
type Userio_i interface {
	Uioread(dst []uint8) (int, defs.Err_t)
	Uiowrite(src []uint8) (int, defs.Err_t)
	Remain() int
	Totalsz() int
}

// Fdops_i is the set of operations a file table entry's backing object
// must provide. Console, pipe and on-disk-file implementations each
// implement it and are stored in vfs.Fd_t's Fops field.
type Fdops_i interface {
	Close() defs.Err_t
	Fstat(st FstatTarget) defs.Err_t
	Lseek(off, whence int) (int, defs.Err_t)
	Read(dst Userio_i) (int, defs.Err_t)
	Reopen() defs.Err_t
	Write(src Userio_i) (int, defs.Err_t)
}

// FstatTarget is the subset of stat.Stat_t that Fstat implementations
// write into; kept as an interface here so fdops doesn't import stat and
// create an import cycle with packages stat itself depends on.
type FstatTarget interface {
	Wmode(uint)
	Wsize(uint)
	Wrdev(uint)
	Wino(uint)
}

// Pollmsg_t describes one readiness check: which events the caller cares
// about, and whether the caller is willing to block until they are ready.
type Pollmsg_t struct {
	Events Ready_t
	Dowait bool
}

// Ready_t is a bitmask of I/O readiness events.
type Ready_t uint8

const (
	R_READ  Ready_t = 1 << iota // data available to read
	R_WRITE                     // space available to write
	R_HUP                       // peer closed
	R_ERROR                     // error pending
)
