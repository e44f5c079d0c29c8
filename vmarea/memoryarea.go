// Package vmarea implements the address-space object: a set of named
// memory areas (ELF segments, user stacks) with lazy per-page backing,
// layered over a pagetable.Pagetable_t.
package vmarea

import (
	"vesper/defs"
	"vesper/frame"
	"vesper/pagetable"
	"vesper/util"
)

// Kind_t distinguishes the two area kinds this core supports.
type Kind_t int

const (
	ElfSegment Kind_t = iota
	UserStack
)

// MemoryArea is a contiguous virtual region with lazy per-page backing:
// Map allocates and zeroes a frame for a page the first time it's
// touched, not when the area is created.
type MemoryArea struct {
	Start  uintptr
	Size   int
	Perms  frame.Pa_t
	Kind   Kind_t
	mapper map[uintptr]frame.Pa_t
	alloc  frame.Page_i
}

// NewMemoryArea creates an area of size bytes starting at start. Both must
// be page-aligned.
func NewMemoryArea(start uintptr, size int, perms frame.Pa_t, kind Kind_t, alloc frame.Page_i) *MemoryArea {
	if start%uintptr(frame.PGSIZE) != 0 || size%frame.PGSIZE != 0 {
		panic("memory area must be page aligned")
	}
	return &MemoryArea{
		Start:  start,
		Size:   size,
		Perms:  perms,
		Kind:   kind,
		mapper: make(map[uintptr]frame.Pa_t),
		alloc:  alloc,
	}
}

// Map returns the physical frame backing va, allocating and zeroing one on
// first touch.
func (ma *MemoryArea) Map(va uintptr) (frame.Pa_t, defs.Err_t) {
	if va%uintptr(frame.PGSIZE) != 0 {
		panic("unaligned va")
	}
	if pa, ok := ma.mapper[va]; ok {
		return pa, 0
	}
	_, pa, ok := ma.alloc.Refpg_new()
	if !ok {
		return 0, -defs.ENOMEM
	}
	ma.alloc.Refup(pa)
	ma.mapper[va] = pa
	return pa, 0
}

// Unmap drops the mapping for va, if any, releasing the backing frame.
func (ma *MemoryArea) Unmap(va uintptr) {
	if pa, ok := ma.mapper[va]; ok {
		ma.alloc.Refdown(pa)
		delete(ma.mapper, va)
	}
}

// UnmapAll releases every page this area currently backs, for teardown.
func (ma *MemoryArea) UnmapAll() {
	for va := range ma.mapper {
		ma.Unmap(va)
	}
}

// WriteData copies data into the area at offset, crossing page boundaries
// and allocating backing pages as needed. Used to load ELF segment
// contents and to push argv onto a fresh stack.
func (ma *MemoryArea) WriteData(offset int, data []byte) defs.Err_t {
	if offset+len(data) > ma.Size {
		panic("write past end of area")
	}
	start := offset
	remain := len(data)
	processed := 0
	for remain > 0 {
		alignedStart := util.Rounddown(start, frame.PGSIZE)
		pageOff := start - alignedStart
		n := frame.PGSIZE - pageOff
		if n > remain {
			n = remain
		}
		pa, err := ma.Map(ma.Start + uintptr(alignedStart))
		if err != 0 {
			return err
		}
		pg := ma.alloc.Dmap(pa)
		copy(pg[pageOff:pageOff+n], data[processed:processed+n])
		start += n
		remain -= n
		processed += n
	}
	return 0
}

// ReadData copies n bytes starting at offset out of the area's backing
// pages, crossing page boundaries as WriteData does; a byte in an unmapped
// (never-written) page reads as zero rather than faulting, since this core
// has no real MMU to raise a fault from a kernel-side read.
func (ma *MemoryArea) ReadData(offset, n int) []byte {
	if offset+n > ma.Size {
		panic("read past end of area")
	}
	out := make([]byte, n)
	start := offset
	remain := n
	processed := 0
	for remain > 0 {
		alignedStart := util.Rounddown(start, frame.PGSIZE)
		pageOff := start - alignedStart
		want := frame.PGSIZE - pageOff
		if want > remain {
			want = remain
		}
		if pa, ok := ma.mapper[ma.Start+uintptr(alignedStart)]; ok {
			pg := ma.alloc.Dmap(pa)
			copy(out[processed:processed+want], pg[pageOff:pageOff+want])
		}
		start += want
		remain -= want
		processed += want
	}
	return out
}

// CloneInto copies every currently-mapped page of ma into a fresh area of
// identical shape; pages are actual copies, not copy-on-write — this core
// has no demand-paging/COW fault path (Non-goals: demand paging).
func (ma *MemoryArea) CloneInto() *MemoryArea {
	n := NewMemoryArea(ma.Start, ma.Size, ma.Perms, ma.Kind, ma.alloc)
	for va, oldpa := range ma.mapper {
		newpa, err := n.Map(va)
		if err != 0 {
			panic("oom cloning memory area")
		}
		copy(ma.alloc.Dmap(newpa)[:], ma.alloc.Dmap(oldpa)[:])
	}
	return n
}

// InstallInto maps every currently-backed page of ma into pt with ma's
// permissions.
func (ma *MemoryArea) InstallInto(pt *pagetable.Pagetable_t) defs.Err_t {
	for va, pa := range ma.mapper {
		if err := pt.Map(va, pa, pagetable.PTE_P|permsFor(ma.Perms)); err != 0 {
			return err
		}
	}
	return 0
}

func permsFor(perms frame.Pa_t) frame.Pa_t {
	var p frame.Pa_t
	if perms&frame.PTE_W != 0 {
		p |= pagetable.PTE_W
	}
	if perms&frame.PTE_U != 0 {
		p |= pagetable.PTE_U
	}
	return p
}
