// Package frame implements the physical frame allocator: a single-owner
// allocator over a simulated physical memory pool, handing out 4 KiB frames
// off a LIFO free list and reclaiming them by reference count.
package frame

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

// PGOFFSET masks offsets within a page.
const PGOFFSET Pa_t = 0xfff

// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^(PGOFFSET)

// PTE_P marks a page as present.
const PTE_P Pa_t = 1 << 0

// PTE_W marks a page writable.
const PTE_W Pa_t = 1 << 1

// PTE_U marks a page user-accessible.
const PTE_U Pa_t = 1 << 2

// PTE_PS indicates a large page.
const PTE_PS Pa_t = 1 << 7

// PTE_ADDR extracts the address bits of a PTE.
const PTE_ADDR Pa_t = PGMASK

// Pa_t is an offset into the simulated physical memory pool. There is no
// real MMU backing this kernel, so a "physical address" is just an index
// into Physmem's byte pool; the direct map (Dmap) is therefore a plain
// slice operation rather than a page-table walk.
type Pa_t uintptr

// Bytepg_t is a byte-addressed page.
type Bytepg_t [PGSIZE]uint8

// Page_i abstracts physical frame allocation so page-table and memory-area
// code doesn't depend on the global allocator directly.
type Page_i interface {
	Refpg_new() (*Bytepg_t, Pa_t, bool)
	Refpg_new_nozero() (*Bytepg_t, Pa_t, bool)
	Refcnt(Pa_t) int
	Dmap(Pa_t) *Bytepg_t
	Refup(Pa_t)
	Refdown(Pa_t) bool
}

type physpg_t struct {
	refcnt int32
	nexti  uint32
	used   bool
}

// Physmem_t is a LIFO frame allocator over a fixed-size byte pool. The free
// list and refcounts are protected by a single mutex; this kernel runs on
// one CPU, so there is no per-CPU sharding of the free list.
type Physmem_t struct {
	pool  []byte
	pgs   []physpg_t
	freei uint32
	nfree int32
	mu    sync.Mutex
}

// Physmem is the global physical memory allocator instance.
var Physmem = &Physmem_t{}

// Phys_init reserves npages frames of backing storage and primes the free
// list. It must be called exactly once, before any allocation.
func Phys_init(npages int) *Physmem_t {
	phys := Physmem
	phys.pool = make([]byte, npages*PGSIZE)
	phys.pgs = make([]physpg_t, npages)
	for i := range phys.pgs {
		phys.pgs[i].nexti = uint32(i + 1)
	}
	phys.pgs[npages-1].nexti = ^uint32(0)
	phys.freei = 0
	phys.nfree = int32(npages)
	fmt.Printf("frame: reserved %d pages (%dMB)\n", npages, npages>>8)
	return phys
}

func (phys *Physmem_t) pgn(p Pa_t) uint32 {
	return uint32(uintptr(p) >> PGSHIFT)
}

// Refcnt returns the current reference count of a page.
func (phys *Physmem_t) Refcnt(p Pa_t) int {
	return int(atomic.LoadInt32(&phys.pgs[phys.pgn(p)].refcnt))
}

// Refup increments the reference count of a page.
func (phys *Physmem_t) Refup(p Pa_t) {
	c := atomic.AddInt32(&phys.pgs[phys.pgn(p)].refcnt, 1)
	if c <= 0 {
		panic("refup of unheld page")
	}
}

// Refdown decrements the reference count of a page, returning it to the
// free list and reporting true when the count drops to zero.
func (phys *Physmem_t) Refdown(p Pa_t) bool {
	idx := phys.pgn(p)
	c := atomic.AddInt32(&phys.pgs[idx].refcnt, -1)
	if c < 0 {
		panic("refdown of unheld page")
	}
	if c != 0 {
		return false
	}
	phys.mu.Lock()
	phys.pgs[idx].nexti = phys.freei
	phys.pgs[idx].used = false
	phys.freei = idx
	phys.nfree++
	phys.mu.Unlock()
	return true
}

func (phys *Physmem_t) allocOne() (Pa_t, bool) {
	phys.mu.Lock()
	defer phys.mu.Unlock()
	if phys.freei == ^uint32(0) {
		return 0, false
	}
	idx := phys.freei
	phys.freei = phys.pgs[idx].nexti
	phys.nfree--
	if phys.nfree < 0 {
		panic("free count went negative")
	}
	phys.pgs[idx].refcnt = 0
	phys.pgs[idx].used = true
	return Pa_t(idx) << PGSHIFT, true
}

// Refpg_new_nozero allocates an uninitialized page. The refcount starts at
// zero; callers take ownership with Refup.
func (phys *Physmem_t) Refpg_new_nozero() (*Bytepg_t, Pa_t, bool) {
	p, ok := phys.allocOne()
	if !ok {
		return nil, 0, false
	}
	return phys.Dmap(p), p, true
}

// Refpg_new allocates a zero-filled page.
func (phys *Physmem_t) Refpg_new() (*Bytepg_t, Pa_t, bool) {
	pg, p, ok := phys.Refpg_new_nozero()
	if !ok {
		return nil, 0, false
	}
	for i := range pg {
		pg[i] = 0
	}
	return pg, p, true
}

// AllocContiguous allocates n frames forming one physically contiguous,
// alignLog2-aligned run, for DMA rings and other hardware queues that can't
// tolerate scatter. It falls back to ENOMEM (ok=false) rather than
// compacting; this core does not implement frame compaction.
func (phys *Physmem_t) AllocContiguous(n int, alignLog2 uint) (Pa_t, bool) {
	if n <= 0 {
		panic("bad contiguous frame count")
	}
	phys.mu.Lock()
	defer phys.mu.Unlock()

	align := uint32(1) << alignLog2
	total := uint32(len(phys.pgs))
	for start := uint32(0); start+uint32(n) <= total; start += align {
		ok := true
		for i := uint32(0); i < uint32(n); i++ {
			if phys.pgs[start+i].used {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		for i := uint32(0); i < uint32(n); i++ {
			phys.pgs[start+i].used = true
			phys.pgs[start+i].refcnt = 1
		}
		// unlink the run from the free list so allocOne cannot hand it out
		prev := ^uint32(0)
		for cur := phys.freei; cur != ^uint32(0); {
			next := phys.pgs[cur].nexti
			if cur >= start && cur < start+uint32(n) {
				if prev == ^uint32(0) {
					phys.freei = next
				} else {
					phys.pgs[prev].nexti = next
				}
				phys.nfree--
			} else {
				prev = cur
			}
			cur = next
		}
		return Pa_t(start) << PGSHIFT, true
	}
	return 0, false
}

// Dmap returns the direct-mapped view of the page containing p.
func (phys *Physmem_t) Dmap(p Pa_t) *Bytepg_t {
	off := uintptr(p) &^ uintptr(PGOFFSET)
	return (*Bytepg_t)(phys.pool[off : off+uintptr(PGSIZE) : off+uintptr(PGSIZE)])
}

// Dmap8 returns a byte slice mapped to the given physical address, offset
// within its page preserved.
func (phys *Physmem_t) Dmap8(p Pa_t) []uint8 {
	off := uintptr(p)
	return phys.pool[off : off/uintptr(PGSIZE)*uintptr(PGSIZE)+uintptr(PGSIZE)]
}

// Pgcount reports the number of free frames remaining.
func (phys *Physmem_t) Pgcount() int {
	phys.mu.Lock()
	defer phys.mu.Unlock()
	return int(phys.nfree)
}
