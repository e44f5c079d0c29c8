package vfs

import (
	"sync"

	"vesper/defs"
)

// FileTable_t is a process's open file descriptor table: a sparse slice
// of slots, indexed by fd number, guarded by a single mutex (this kernel
// is single-CPU but a process's threads still run concurrently on the
// cooperative executor).
type FileTable_t struct {
	sync.Mutex
	slots []*Fd_t
}

// NewFileTable returns an empty table.
func NewFileTable() *FileTable_t {
	return &FileTable_t{}
}

// Insert installs fd in the first free slot, growing the table if none is
// free, and returns the slot number.
func (ft *FileTable_t) Insert(fd *Fd_t) int {
	ft.Lock()
	defer ft.Unlock()
	for i, s := range ft.slots {
		if s == nil {
			ft.slots[i] = fd
			return i
		}
	}
	ft.slots = append(ft.slots, fd)
	return len(ft.slots) - 1
}

// Get returns the descriptor at fdn, or false if the slot is empty or out
// of range.
func (ft *FileTable_t) Get(fdn int) (*Fd_t, bool) {
	ft.Lock()
	defer ft.Unlock()
	if fdn < 0 || fdn >= len(ft.slots) || ft.slots[fdn] == nil {
		return nil, false
	}
	return ft.slots[fdn], true
}

// Close clears fdn's slot and closes the underlying descriptor.
func (ft *FileTable_t) Close(fdn int) defs.Err_t {
	ft.Lock()
	if fdn < 0 || fdn >= len(ft.slots) || ft.slots[fdn] == nil {
		ft.Unlock()
		return -defs.EBADF
	}
	fd := ft.slots[fdn]
	ft.slots[fdn] = nil
	ft.Unlock()
	return fd.Fops.Close()
}

// Dup clones the descriptor at fdn into the first free slot.
func (ft *FileTable_t) Dup(fdn int) (int, defs.Err_t) {
	src, ok := ft.Get(fdn)
	if !ok {
		return 0, -defs.EBADF
	}
	nfd, err := Copyfd(src)
	if err != 0 {
		return 0, err
	}
	return ft.Insert(nfd), 0
}

// Dup2 clones the descriptor at oldfd into newfd, closing whatever was
// previously there. A no-op that still validates oldfd when oldfd ==
// newfd, matching POSIX dup2 semantics.
func (ft *FileTable_t) Dup2(oldfd, newfd int) defs.Err_t {
	src, ok := ft.Get(oldfd)
	if !ok {
		return -defs.EBADF
	}
	if oldfd == newfd {
		return 0
	}
	nfd, err := Copyfd(src)
	if err != 0 {
		return err
	}

	ft.Lock()
	defer ft.Unlock()
	for newfd >= len(ft.slots) {
		ft.slots = append(ft.slots, nil)
	}
	old := ft.slots[newfd]
	ft.slots[newfd] = nfd
	if old != nil {
		old.Fops.Close()
	}
	return 0
}
