package pipe

import (
	"testing"

	"vesper/defs"
	"vesper/frame"
)

func freshPhysmem(t *testing.T, npages int) {
	t.Helper()
	frame.Physmem = frame.Phys_init(npages)
}

type memUio struct {
	buf []byte
	off int
}

func (m *memUio) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, m.buf[m.off:])
	m.off += n
	return n, 0
}

func (m *memUio) Uiowrite(src []uint8) (int, defs.Err_t) {
	m.buf = append(m.buf, src...)
	return len(src), 0
}

func (m *memUio) Remain() int  { return len(m.buf) - m.off }
func (m *memUio) Totalsz() int { return len(m.buf) }

func TestPipeWriteThenReadAfterClose(t *testing.T) {
	freshPhysmem(t, 8)
	read, write, err := MakePipe(frame.Physmem, 64)
	if err != 0 {
		t.Fatalf("MakePipe: %d", err)
	}
	src := &memUio{buf: []byte("hello")}
	n, err := write.Write(src)
	if err != 0 || n != 5 {
		t.Fatalf("Write = (%d, %d)", n, err)
	}
	if err := write.Close(); err != 0 {
		t.Fatalf("Close: %d", err)
	}
	if !read.Closed() {
		t.Fatal("read end should observe writers closed")
	}
	dst := &memUio{buf: make([]byte, 0, 5)}
	n, err = read.Read(dst)
	if err != 0 || n != 5 || string(dst.buf) != "hello" {
		t.Fatalf("Read = (%d, %d, %q)", n, err, dst.buf)
	}
}

func TestPipeAsyncReadWakesOnClose(t *testing.T) {
	freshPhysmem(t, 8)
	read, write, _ := MakePipe(frame.Physmem, 64)

	var woke bool
	dst := &memUio{buf: make([]byte, 0, 16)}
	_, _, ok := read.AsyncRead(dst, func() { woke = true })
	if ok {
		t.Fatal("AsyncRead must not complete before the write end closes")
	}

	src := &memUio{buf: []byte("bye")}
	write.Write(src)
	write.Close()
	if !woke {
		t.Fatal("closing the write end must fire the registered waker")
	}

	n, err, ok := read.AsyncRead(dst, func() {})
	if !ok || err != 0 || n != 3 || string(dst.buf) != "bye" {
		t.Fatalf("AsyncRead after close = (%d, %d, %v, %q)", n, err, ok, dst.buf)
	}
}

func TestPipeDup2WriteEndsKeepsOpenUntilLastClose(t *testing.T) {
	freshPhysmem(t, 8)
	read, write, _ := MakePipe(frame.Physmem, 64)
	write.Reopen()

	write.Close()
	if read.Closed() {
		t.Fatal("pipe must stay open while a reopened write end remains")
	}
	write.Close()
	if !read.Closed() {
		t.Fatal("pipe must close once every write end has closed")
	}
}

func TestWriteOnReadEndFails(t *testing.T) {
	freshPhysmem(t, 8)
	read, _, _ := MakePipe(frame.Physmem, 64)
	if _, err := read.Write(&memUio{}); err != -defs.EINVAL {
		t.Fatalf("Write on read end = %d, want EINVAL", err)
	}
}
