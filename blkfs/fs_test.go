package blkfs

import (
	"bytes"
	"testing"

	"vesper/defs"
)

func TestMkFSCreateWriteReadRoundtrip(t *testing.T) {
	disk := NewMemDisk(64)
	fs, err := MkFS(disk)
	if err != 0 {
		t.Fatalf("MkFS: %d", err)
	}
	f, err := fs.Create("hello")
	if err != 0 {
		t.Fatalf("Create: %d", err)
	}
	data := []byte("hello, world!")
	if n, err := f.WriteAt(0, data); err != 0 || n != len(data) {
		t.Fatalf("WriteAt = (%d, %d)", n, err)
	}

	got, err := fs.ReadAll("hello")
	if err != 0 || !bytes.Equal(got, data) {
		t.Fatalf("ReadAll = (%q, %d), want %q", got, err, data)
	}
}

func TestFindMissingIsENOENT(t *testing.T) {
	disk := NewMemDisk(64)
	fs, _ := MkFS(disk)
	if _, err := fs.Find("nope"); err != -defs.ENOENT {
		t.Fatalf("Find missing = %d, want ENOENT", err)
	}
}

func TestCreateDuplicateIsEEXIST(t *testing.T) {
	disk := NewMemDisk(64)
	fs, _ := MkFS(disk)
	fs.Create("dup")
	if _, err := fs.Create("dup"); err != -defs.EEXIST {
		t.Fatalf("Create dup = %d, want EEXIST", err)
	}
}

func TestLsListsCreatedFiles(t *testing.T) {
	disk := NewMemDisk(64)
	fs, _ := MkFS(disk)
	fs.Create("a")
	fs.Create("b")
	names, err := fs.Ls()
	if err != 0 || len(names) != 2 {
		t.Fatalf("Ls = (%v, %d)", names, err)
	}
}

func TestClearTruncatesFile(t *testing.T) {
	disk := NewMemDisk(64)
	fs, _ := MkFS(disk)
	f, _ := fs.Create("c")
	f.WriteAt(0, []byte("data"))
	if err := fs.Clear("c"); err != 0 {
		t.Fatalf("Clear: %d", err)
	}
	got, err := fs.ReadAll("c")
	if err != 0 || len(got) != 0 {
		t.Fatalf("ReadAll after Clear = (%q, %d)", got, err)
	}
}

func TestWriteSpanningMultipleBlocks(t *testing.T) {
	disk := NewMemDisk(64)
	fs, _ := MkFS(disk)
	f, _ := fs.Create("big")
	data := bytes.Repeat([]byte{0x5a}, BSIZE*3+17)
	if n, err := f.WriteAt(0, data); err != 0 || n != len(data) {
		t.Fatalf("WriteAt = (%d, %d)", n, err)
	}
	got, err := fs.ReadAll("big")
	if err != 0 || !bytes.Equal(got, data) {
		t.Fatalf("ReadAll mismatch, err=%d len=%d want=%d", err, len(got), len(data))
	}
}

func TestOnDiskFileSeekAndReadWrite(t *testing.T) {
	disk := NewMemDisk(64)
	fs, _ := MkFS(disk)
	wf, err := Open(fs, "f", O_CREAT|O_RDWR)
	if err != 0 {
		t.Fatalf("Open: %d", err)
	}
	src := &memUio{buf: []byte("0123456789")}
	if n, err := wf.Write(src); err != 0 || n != 10 {
		t.Fatalf("Write = (%d, %d)", n, err)
	}
	if _, err := wf.Lseek(5, 0); err != 0 {
		t.Fatalf("Lseek: %d", err)
	}
	dst := &capUio{cap: 5}
	n, err := wf.Read(dst)
	if err != 0 || n != 5 || string(dst.data) != "56789" {
		t.Fatalf("Read after seek = (%d, %d, %q)", n, err, dst.data)
	}
}

// capUio is a fixed-capacity destination double: Remain() reports
// remaining room (as a real user buffer would), and Uiowrite accumulates
// what was written into it.
type capUio struct {
	cap  int
	data []byte
}

func (m *capUio) Uioread([]uint8) (int, defs.Err_t) { return 0, 0 }
func (m *capUio) Uiowrite(src []uint8) (int, defs.Err_t) {
	m.data = append(m.data, src...)
	return len(src), 0
}
func (m *capUio) Remain() int  { return m.cap - len(m.data) }
func (m *capUio) Totalsz() int { return m.cap }

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
