package pagetable

import (
	"testing"

	"vesper/defs"
	"vesper/frame"
)

func freshAlloc(t *testing.T, n int) frame.Page_i {
	t.Helper()
	frame.Physmem = &frame.Physmem_t{}
	return frame.Phys_init(n)
}

func TestMapLookupUnmap(t *testing.T) {
	alloc := freshAlloc(t, 32)
	pt, err := New(alloc)
	if err != 0 {
		t.Fatalf("New() failed: %d", err)
	}

	_, pa, ok := alloc.Refpg_new()
	if !ok {
		t.Fatal("frame allocation failed")
	}
	va := uintptr(0x59<<39 + 0x1000)
	if err := pt.Map(va, pa, PTE_P|PTE_W|PTE_U); err != 0 {
		t.Fatalf("Map failed: %d", err)
	}
	got, ok := pt.Lookup(va)
	if !ok || got != pa {
		t.Fatalf("Lookup = (%#x, %v), want (%#x, true)", got, ok, pa)
	}

	old, ok := pt.Unmap(va)
	if !ok || old != pa {
		t.Fatalf("Unmap = (%#x, %v), want (%#x, true)", old, ok, pa)
	}
	if _, ok := pt.Lookup(va); ok {
		t.Fatal("Lookup after Unmap must miss")
	}
}

func TestMapOverwritePanics(t *testing.T) {
	alloc := freshAlloc(t, 32)
	pt, _ := New(alloc)
	_, pa, _ := alloc.Refpg_new()
	va := uintptr(0x59 << 39)
	pt.Map(va, pa, PTE_P|PTE_W)

	defer func() {
		if recover() == nil {
			t.Fatal("remapping a present leaf must panic")
		}
	}()
	pt.Map(va, pa, PTE_P|PTE_W)
}

func TestLookupMissingWithoutCreate(t *testing.T) {
	alloc := freshAlloc(t, 32)
	pt, _ := New(alloc)
	if _, ok := pt.Lookup(uintptr(0x59 << 39)); ok {
		t.Fatal("Lookup on an unmapped address must miss, not allocate")
	}
}

func TestKernelWindowsSeeded(t *testing.T) {
	alloc := freshAlloc(t, 32)
	pt, _ := New(alloc)
	root := pt.table(pt.Root())
	if root[0x40] == 0 && root[0x44] == 0 {
		t.Skip("no kernel windows registered in dmap.Kents for this test run")
	}
}

func TestMapAreaUnmapArea(t *testing.T) {
	alloc := freshAlloc(t, 32)
	pt, _ := New(alloc)
	base := uintptr(0x59 << 39)
	frames := make([]frame.Pa_t, 3)
	for i := range frames {
		_, pa, _ := alloc.Refpg_new()
		frames[i] = pa
	}
	err := pt.MapArea(base, 3, PTE_P|PTE_W, func(i int) frame.Pa_t { return frames[i] })
	if err != defs.Err_t(0) {
		t.Fatalf("MapArea failed: %d", err)
	}
	for i, want := range frames {
		got, ok := pt.Lookup(base + uintptr(i*frame.PGSIZE))
		if !ok || got != want {
			t.Fatalf("page %d: Lookup = (%#x, %v), want (%#x, true)", i, got, ok, want)
		}
	}
	var released []frame.Pa_t
	pt.UnmapArea(base, 3, func(p frame.Pa_t) { released = append(released, p) })
	if len(released) != 3 {
		t.Fatalf("expected 3 released frames, got %d", len(released))
	}
}
