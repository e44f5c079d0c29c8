package vfs

import (
	"fmt"
	"sync"

	"vesper/defs"
	"vesper/fdops"
)

// StdoutFile writes synchronously to the kernel's console output. Reads
// and writes on stdin/stdout are synchronous per the syscall surface
// (§4.5): no FsReq is involved.
type StdoutFile struct {
	mu sync.Mutex
}

func (f *StdoutFile) Close() defs.Err_t   { return 0 }
func (f *StdoutFile) Reopen() defs.Err_t  { return 0 }
func (f *StdoutFile) Lseek(int, int) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}
func (f *StdoutFile) Fstat(st fdops.FstatTarget) defs.Err_t {
	st.Wmode(0)
	st.Wsize(0)
	st.Wrdev(uint(defs.D_CONSOLE))
	return 0
}

func (f *StdoutFile) Read(fdops.Userio_i) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}

func (f *StdoutFile) Write(src fdops.Userio_i) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, src.Remain())
	n, err := src.Uioread(buf)
	if err != 0 {
		return 0, err
	}
	fmt.Print(string(buf[:n]))
	return n, 0
}

// StdinFile reads synchronously from the kernel's console input buffer.
type StdinFile struct {
	mu  sync.Mutex
	buf []byte
}

// Feed appends bytes the boot console received to the stdin buffer, for the
// trap layer's keyboard/serial IRQ handler to call.
func (f *StdinFile) Feed(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf = append(f.buf, b...)
}

func (f *StdinFile) Close() defs.Err_t  { return 0 }
func (f *StdinFile) Reopen() defs.Err_t { return 0 }
func (f *StdinFile) Lseek(int, int) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}
func (f *StdinFile) Fstat(st fdops.FstatTarget) defs.Err_t {
	st.Wmode(0)
	st.Wsize(0)
	st.Wrdev(uint(defs.D_CONSOLE))
	return 0
}

func (f *StdinFile) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	f.mu.Lock()
	n := dst.Totalsz()
	if n > len(f.buf) {
		n = len(f.buf)
	}
	take := f.buf[:n]
	f.buf = f.buf[n:]
	f.mu.Unlock()
	return dst.Uiowrite(take)
}

func (f *StdinFile) Write(fdops.Userio_i) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}

// DevnullFile discards writes and reads as empty, backing /dev/null.
type DevnullFile struct{}

func (DevnullFile) Close() defs.Err_t  { return 0 }
func (DevnullFile) Reopen() defs.Err_t { return 0 }
func (DevnullFile) Lseek(int, int) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}
func (DevnullFile) Fstat(st fdops.FstatTarget) defs.Err_t {
	st.Wmode(0)
	st.Wsize(0)
	st.Wrdev(uint(defs.D_DEVNULL))
	return 0
}
func (DevnullFile) Read(fdops.Userio_i) (int, defs.Err_t) { return 0, 0 }
func (DevnullFile) Write(src fdops.Userio_i) (int, defs.Err_t) {
	return src.Remain(), 0
}
