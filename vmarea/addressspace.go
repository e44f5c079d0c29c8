package vmarea

import (
	"sync"

	"vesper/defs"
	"vesper/frame"
	"vesper/pagetable"
)

// AddressSpace is a process's virtual address space: a page table plus the
// named memory areas backing it, indexed by start address so Insert can
// detect a duplicate start in O(1).
type AddressSpace struct {
	sync.Mutex
	Pt    *pagetable.Pagetable_t
	areas map[uintptr]*MemoryArea
	alloc frame.Page_i
}

// active records which address space's page table is currently loaded, so
// Activate is a no-op (no simulated CR3 write) when nothing changed.
var active *AddressSpace

// NewAddressSpace allocates a fresh page table and an empty area set.
func NewAddressSpace(alloc frame.Page_i) (*AddressSpace, defs.Err_t) {
	pt, err := pagetable.New(alloc)
	if err != 0 {
		return nil, err
	}
	return &AddressSpace{
		Pt:    pt,
		areas: make(map[uintptr]*MemoryArea),
		alloc: alloc,
	}, 0
}

// Insert adds area to the address space, panicking if another area
// already starts at the same address.
func (as *AddressSpace) Insert(area *MemoryArea) {
	as.Lock()
	defer as.Unlock()
	if _, ok := as.areas[area.Start]; ok {
		panic("overlapping memory area insert")
	}
	as.areas[area.Start] = area
}

// Lookup finds the area containing va, if any.
func (as *AddressSpace) Lookup(va uintptr) (*MemoryArea, bool) {
	as.Lock()
	defer as.Unlock()
	for _, a := range as.areas {
		if va >= a.Start && va < a.Start+uintptr(a.Size) {
			return a, true
		}
	}
	return nil, false
}

// ReadAt returns the n bytes of the area containing va, starting at va,
// clamped to that area's end. It returns nil if va falls in no known area
// (the same condition Fault treats as a fatal access) — callers that want a
// fault diagnostic's faulting-instruction bytes use this against the
// faulting thread's own address space.
func (as *AddressSpace) ReadAt(va uintptr, n int) []byte {
	area, ok := as.Lookup(va)
	if !ok {
		return nil
	}
	off := int(va - area.Start)
	if off+n > area.Size {
		n = area.Size - off
	}
	return area.ReadData(off, n)
}

// CloneSelf copies every area except those tagged UserStack: stacks are
// per-thread and must be split explicitly during fork so the child's
// caller thread gets its own stack with the parent's contents.
func (as *AddressSpace) CloneSelf() (*AddressSpace, defs.Err_t) {
	as.Lock()
	defer as.Unlock()
	n, err := NewAddressSpace(as.alloc)
	if err != 0 {
		return nil, err
	}
	for start, area := range as.areas {
		if area.Kind == UserStack {
			continue
		}
		cloned := area.CloneInto()
		if ierr := cloned.InstallInto(n.Pt); ierr != 0 {
			return nil, ierr
		}
		n.areas[start] = cloned
	}
	return n, 0
}

// CloneArea copies a single area of the receiver (typically the caller
// thread's UserStack) into dst, for the explicit per-thread stack split
// fork performs after CloneSelf.
func (as *AddressSpace) CloneArea(start uintptr, dst *AddressSpace) defs.Err_t {
	as.Lock()
	area, ok := as.areas[start]
	as.Unlock()
	if !ok {
		panic("clone of missing area")
	}
	cloned := area.CloneInto()
	if err := cloned.InstallInto(dst.Pt); err != 0 {
		return err
	}
	dst.Insert(cloned)
	return 0
}

// ClearElf removes every ElfSegment area and its backing pages, in
// preparation for loading a new image on exec.
func (as *AddressSpace) ClearElf() {
	as.Lock()
	defer as.Unlock()
	for start, area := range as.areas {
		if area.Kind != ElfSegment {
			continue
		}
		area.UnmapAll()
		delete(as.areas, start)
	}
}

// Teardown unmaps every area and its pages. Go has no destructors, so
// callers must invoke this explicitly when a process exits instead of
// relying on a drop.
func (as *AddressSpace) Teardown() {
	as.Lock()
	defer as.Unlock()
	for start, area := range as.areas {
		area.UnmapAll()
		delete(as.areas, start)
	}
}

// Activate installs this address space's page table as the running one.
// It is a CR3 write only when the page table differs from what's already
// active; since there is no real MMU here, "CR3 write" is tracked as
// which *AddressSpace is current.
func (as *AddressSpace) Activate() {
	if active == as {
		return
	}
	active = as
	as.Pt.FlushAll()
}

// Active reports the currently activated address space, or nil before the
// first Activate call.
func Active() *AddressSpace {
	return active
}

// Fault services a page-table miss at va within area by installing its
// lazily-allocated frame. Page faults that don't land inside a known area
// are fatal in this core — the syscall/trap layer treats them as a
// process-ending error rather than resuming.
func (as *AddressSpace) Fault(va uintptr) defs.Err_t {
	area, ok := as.Lookup(va)
	if !ok {
		return -defs.EFAULT
	}
	pageva := va &^ uintptr(frame.PGOFFSET)
	pa, err := area.Map(pageva)
	if err != 0 {
		return err
	}
	return as.Pt.Map(pageva, pa, pagetable.PTE_P|permsFor(area.Perms))
}
