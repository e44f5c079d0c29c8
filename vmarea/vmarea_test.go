package vmarea

import (
	"testing"

	"vesper/frame"
)

func freshAlloc(t *testing.T, n int) frame.Page_i {
	t.Helper()
	frame.Physmem = &frame.Physmem_t{}
	return frame.Phys_init(n)
}

func TestMemoryAreaLazyMap(t *testing.T) {
	alloc := freshAlloc(t, 16)
	ma := NewMemoryArea(0x1000, frame.PGSIZE*2, frame.PTE_W|frame.PTE_U, ElfSegment, alloc)
	pa1, err := ma.Map(0x1000)
	if err != 0 {
		t.Fatalf("Map failed: %d", err)
	}
	pa2, _ := ma.Map(0x1000)
	if pa1 != pa2 {
		t.Fatal("mapping the same va twice must return the same frame")
	}
}

func TestMemoryAreaWriteData(t *testing.T) {
	alloc := freshAlloc(t, 16)
	ma := NewMemoryArea(0x2000, frame.PGSIZE*2, frame.PTE_W, ElfSegment, alloc)
	data := make([]byte, frame.PGSIZE+10)
	for i := range data {
		data[i] = byte(i)
	}
	if err := ma.WriteData(0, data); err != 0 {
		t.Fatalf("WriteData failed: %d", err)
	}
	pa, _ := ma.Map(0x2000)
	if alloc.Dmap(pa)[5] != 5 {
		t.Fatal("WriteData must place bytes at the right offset in page 0")
	}
	pa2, _ := ma.Map(0x2000 + uintptr(frame.PGSIZE))
	if alloc.Dmap(pa2)[0] != data[frame.PGSIZE] {
		t.Fatal("WriteData must cross page boundaries correctly")
	}
}

func TestAddressSpaceInsertOverlapPanics(t *testing.T) {
	alloc := freshAlloc(t, 16)
	as, _ := NewAddressSpace(alloc)
	as.Insert(NewMemoryArea(0x1000, frame.PGSIZE, frame.PTE_W, ElfSegment, alloc))
	defer func() {
		if recover() == nil {
			t.Fatal("inserting a duplicate start must panic")
		}
	}()
	as.Insert(NewMemoryArea(0x1000, frame.PGSIZE, frame.PTE_W, UserStack, alloc))
}

func TestCloneSelfSkipsUserStack(t *testing.T) {
	alloc := freshAlloc(t, 32)
	as, _ := NewAddressSpace(alloc)
	elf := NewMemoryArea(0x1000, frame.PGSIZE, frame.PTE_W, ElfSegment, alloc)
	elf.WriteData(0, []byte("hi"))
	stack := NewMemoryArea(0x2000, frame.PGSIZE, frame.PTE_W, UserStack, alloc)
	stack.Map(0x2000)
	as.Insert(elf)
	as.Insert(stack)

	clone, err := as.CloneSelf()
	if err != 0 {
		t.Fatalf("CloneSelf failed: %d", err)
	}
	if _, ok := clone.areas[0x2000]; ok {
		t.Fatal("CloneSelf must not copy UserStack areas")
	}
	if _, ok := clone.areas[0x1000]; !ok {
		t.Fatal("CloneSelf must copy ElfSegment areas")
	}
}

func TestActivateIsNoopWhenUnchanged(t *testing.T) {
	alloc := freshAlloc(t, 16)
	as, _ := NewAddressSpace(alloc)
	as.Activate()
	flushes := as.Pt.Flushes()
	as.Activate()
	if as.Pt.Flushes() != flushes {
		t.Fatal("Activate must not flush when already active")
	}
}

func TestFaultInstallsMapping(t *testing.T) {
	alloc := freshAlloc(t, 16)
	as, _ := NewAddressSpace(alloc)
	as.Insert(NewMemoryArea(0x3000, frame.PGSIZE, frame.PTE_W|frame.PTE_U, ElfSegment, alloc))
	if err := as.Fault(0x3000 + 5); err != 0 {
		t.Fatalf("Fault failed: %d", err)
	}
	if _, ok := as.Pt.Lookup(0x3000); !ok {
		t.Fatal("Fault must install the page-table mapping")
	}
}

func TestUserbufRoundtrip(t *testing.T) {
	alloc := freshAlloc(t, 16)
	as, _ := NewAddressSpace(alloc)
	as.Insert(NewMemoryArea(0x4000, frame.PGSIZE*2, frame.PTE_W|frame.PTE_U, ElfSegment, alloc))

	ub := NewUserbuf(as, 0x4000+uintptr(frame.PGSIZE)-3, 10)
	n, err := ub.Uiowrite([]byte("0123456789"))
	if err != 0 || n != 10 {
		t.Fatalf("Uiowrite = (%d, %d), want (10, 0)", n, err)
	}

	rb := NewUserbuf(as, 0x4000+uintptr(frame.PGSIZE)-3, 10)
	out := make([]byte, 10)
	n, err = rb.Uioread(out)
	if err != 0 || n != 10 || string(out) != "0123456789" {
		t.Fatalf("Uioread = (%q, %d, %d), want (0123456789, 10, 0)", out, n, err)
	}
}
