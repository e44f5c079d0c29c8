package circbuf

import (
	"testing"

	"vesper/defs"
	"vesper/frame"
)

func freshPhysmem(t *testing.T, n int) *frame.Physmem_t {
	t.Helper()
	frame.Physmem = &frame.Physmem_t{}
	return frame.Phys_init(n)
}

type memUio struct {
	buf []uint8
}

func (m *memUio) Uioread(dst []uint8) (int, defs.Err_t) {
	c := copy(dst, m.buf)
	m.buf = m.buf[c:]
	return c, 0
}

func (m *memUio) Uiowrite(src []uint8) (int, defs.Err_t) {
	m.buf = append(m.buf, src...)
	return len(src), 0
}

func (m *memUio) Remain() int  { return len(m.buf) }
func (m *memUio) Totalsz() int { return len(m.buf) }

func TestCopyinCopyoutRoundtrip(t *testing.T) {
	phys := freshPhysmem(t, 4)
	var cb Circbuf_t
	if err := cb.Cb_init(16, phys); err != 0 {
		t.Fatalf("Cb_init failed: %d", err)
	}

	src := &memUio{buf: []byte("hello")}
	n, err := cb.Copyin(src)
	if err != 0 || n != 5 {
		t.Fatalf("Copyin = (%d, %d), want (5, 0)", n, err)
	}
	if cb.Used() != 5 {
		t.Fatalf("Used() = %d, want 5", cb.Used())
	}

	dst := &memUio{}
	n, err = cb.Copyout(dst)
	if err != 0 || n != 5 {
		t.Fatalf("Copyout = (%d, %d), want (5, 0)", n, err)
	}
	if string(dst.buf) != "hello" {
		t.Fatalf("Copyout content = %q, want hello", dst.buf)
	}
	if !cb.Empty() {
		t.Fatal("buffer must be empty after full copyout")
	}
}

func TestFullBufferRejectsCopyin(t *testing.T) {
	phys := freshPhysmem(t, 4)
	var cb Circbuf_t
	cb.Cb_init(4, phys)
	src := &memUio{buf: []byte("abcd")}
	cb.Copyin(src)
	if !cb.Full() {
		t.Fatal("buffer should be full after filling to capacity")
	}
	n, err := cb.Copyin(&memUio{buf: []byte("z")})
	if n != 0 || err != 0 {
		t.Fatalf("Copyin on full buffer = (%d, %d), want (0, 0)", n, err)
	}
}

func TestCbRelease(t *testing.T) {
	phys := freshPhysmem(t, 4)
	var cb Circbuf_t
	cb.Cb_init(8, phys)
	cb.Cb_ensure()
	if cb.Buf == nil {
		t.Fatal("Cb_ensure must allocate a backing page")
	}
	cb.Cb_release()
	if cb.Buf != nil {
		t.Fatal("Cb_release must drop the backing buffer")
	}
}
