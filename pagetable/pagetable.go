// Package pagetable implements the 4-level x86-64 page table: a single
// page map is a tree of 512-entry tables indexed by the 9/9/9/9/12 split
// computed in dmap, with interior tables allocated on demand and leaves
// installed by Map.
package pagetable

import (
	"unsafe"

	"vesper/defs"
	"vesper/dmap"
	"vesper/frame"
)

// Entry permission/status bits, mirroring the hardware PTE format.
const (
	PTE_P  frame.Pa_t = 1 << 0 // present
	PTE_W  frame.Pa_t = 1 << 1 // writable
	PTE_U  frame.Pa_t = 1 << 2 // user-accessible
	PTE_PS frame.Pa_t = 1 << 7 // large page (unused above leaf level here)

	pteAddrMask frame.Pa_t = frame.PGMASK
)

// Pmap_t is one level of the page-table tree: 512 entries of either a
// physical frame (leaf) or another Pmap_t's physical address (interior).
type Pmap_t [512]frame.Pa_t

// Pagetable_t owns one process's top-level page map (PML4) and the frame
// allocator used to grow it.
type Pagetable_t struct {
	root    frame.Pa_t
	alloc   frame.Page_i
	flushes int
}

// New allocates a fresh, zeroed PML4 and seeds it with the kernel's
// captured windows (dmap.Kents) so every address space shares kernel
// virtual memory without needing to special-case kernel faults.
func New(alloc frame.Page_i) (*Pagetable_t, defs.Err_t) {
	_, p_pg, ok := alloc.Refpg_new()
	if !ok {
		return nil, -defs.ENOMEM
	}
	pt := &Pagetable_t{root: p_pg, alloc: alloc}
	pm := pt.table(p_pg)
	for _, k := range dmap.Kents {
		pm[k.Pml4slot] = k.Entry
	}
	return pt, 0
}

// Root returns the page map's physical address, the kernel core's
// equivalent of a CR3 value.
func (pt *Pagetable_t) Root() frame.Pa_t {
	return pt.root
}

// table reinterprets the byte page backing physical address p as a
// Pmap_t; both are exactly 4096 bytes (512 x 8-byte entries), so this is a
// plain reinterpretation of the same backing frame, not a copy.
func (pt *Pagetable_t) table(p frame.Pa_t) *Pmap_t {
	bpg := pt.alloc.Dmap(p)
	return (*Pmap_t)(unsafe.Pointer(bpg))
}

// walk descends the four levels toward va. When create is true, missing
// interior tables are allocated with Present|Writable|UserAccessible so
// user leaf entries can later be installed beneath them. It returns a
// pointer to the level-1 (leaf) slot.
func (pt *Pagetable_t) walk(va uintptr, create bool) (*frame.Pa_t, defs.Err_t) {
	l4, l3, l2, l1 := dmap.Pgbits(va)
	cur := pt.root
	for _, idx := range []uint{l4, l3, l2} {
		pm := pt.table(cur)
		e := pm[idx]
		if e&PTE_P == 0 {
			if !create {
				return nil, -defs.EFAULT
			}
			_, p_pg, ok := pt.alloc.Refpg_new()
			if !ok {
				return nil, -defs.ENOMEM
			}
			e = p_pg | PTE_P | PTE_W | PTE_U
			pm[idx] = e
		}
		cur = e & pteAddrMask
	}
	pm := pt.table(cur)
	return &pm[l1], 0
}

// GetOrCreateEntry returns the leaf PTE slot for va, allocating interior
// tables as needed.
func (pt *Pagetable_t) GetOrCreateEntry(va uintptr) (*frame.Pa_t, defs.Err_t) {
	return pt.walk(va, true)
}

// Lookup returns the physical frame mapped at va, if any, without
// allocating interior tables.
func (pt *Pagetable_t) Lookup(va uintptr) (frame.Pa_t, bool) {
	pte, err := pt.walk(va, false)
	if err != 0 || *pte&PTE_P == 0 {
		return 0, false
	}
	return *pte & pteAddrMask, true
}

// Map installs pa as the leaf mapping for va with the given permission
// bits. It panics on an attempt to overwrite a present leaf; this core
// never remaps without first unmapping.
func (pt *Pagetable_t) Map(va uintptr, pa frame.Pa_t, perms frame.Pa_t) defs.Err_t {
	pte, err := pt.walk(va, true)
	if err != 0 {
		return err
	}
	if *pte&PTE_P != 0 {
		panic("map: overwriting present leaf")
	}
	*pte = (pa & pteAddrMask) | perms | PTE_P
	pt.FlushAll()
	return 0
}

// Unmap clears the leaf mapping for va and returns the frame that was
// mapped there, if any.
func (pt *Pagetable_t) Unmap(va uintptr) (frame.Pa_t, bool) {
	pte, err := pt.walk(va, false)
	if err != 0 || *pte&PTE_P == 0 {
		return 0, false
	}
	old := *pte & pteAddrMask
	*pte = 0
	pt.FlushAll()
	return old, true
}

// MapArea installs pa(i) for a run of npages pages starting at va, one
// frame per page as supplied by next.
func (pt *Pagetable_t) MapArea(va uintptr, npages int, perms frame.Pa_t, next func(i int) frame.Pa_t) defs.Err_t {
	for i := 0; i < npages; i++ {
		a := va + uintptr(i*frame.PGSIZE)
		if err := pt.Map(a, next(i), perms); err != 0 {
			return err
		}
	}
	return 0
}

// UnmapArea clears npages leaf mappings starting at va, releasing each
// mapped frame's reference through release.
func (pt *Pagetable_t) UnmapArea(va uintptr, npages int, release func(frame.Pa_t)) {
	for i := 0; i < npages; i++ {
		a := va + uintptr(i*frame.PGSIZE)
		if pa, ok := pt.Unmap(a); ok && release != nil {
			release(pa)
		}
	}
}

// FlushAll invalidates the entire TLB. Since this kernel never runs two
// page tables truly concurrently on separate hardware TLBs, flush is a
// counter bumped for observability rather than a real instruction; Map
// and Unmap call it on every change and vmarea calls it at address-space
// activation, matching the coarse invalidation policy the spec calls for.
func (pt *Pagetable_t) FlushAll() {
	pt.flushes++
}

// Flushes reports how many times FlushAll has run, for tests and stats.
func (pt *Pagetable_t) Flushes() int {
	return pt.flushes
}
