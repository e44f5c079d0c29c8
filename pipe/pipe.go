// Package pipe implements the read/write ends of an anonymous pipe (§4.8):
// a shared PipeBuffer_t wrapping a circbuf.Circbuf_t, with the write end
// waking the blocked reader when it closes. Grounded on
// original_source/kernel/src/fs/pipe.rs's Pipe/PipeBuffer/make_pipe, ported
// onto circbuf.Circbuf_t for the byte storage biscuit already provides.
package pipe

import (
	"sync"

	"vesper/circbuf"
	"vesper/defs"
	"vesper/fdops"
	"vesper/frame"
)

// PipeBuffer_t is the storage a read end and a write end share. writers
// counts live write-end handles (a pipe can be dup'd, so "the write end"
// may be more than one descriptor); the buffer is considered closed for
// reading purposes once writers drops to zero.
type PipeBuffer_t struct {
	sync.Mutex
	cb      circbuf.Circbuf_t
	writers int
	waker   func()
}

// Pipe_t is one end of a pipe. Readable xor writable, matching
// original_source's Pipe.readable()/writable().
type Pipe_t struct {
	writable bool
	buf      *PipeBuffer_t
}

// MakePipe allocates a pipe buffer of bufsz bytes (capped at one page, the
// same ceiling circbuf.Circbuf_t enforces) and returns its read and write
// ends.
func MakePipe(alloc frame.Page_i, bufsz int) (*Pipe_t, *Pipe_t, defs.Err_t) {
	pb := &PipeBuffer_t{writers: 1}
	if err := pb.cb.Cb_init(bufsz, alloc); err != 0 {
		return nil, nil, err
	}
	read := &Pipe_t{writable: false, buf: pb}
	write := &Pipe_t{writable: true, buf: pb}
	return read, write, 0
}

// AddWaker registers the callback the write end invokes once every write
// end has closed. Only meaningful on the read end; the syscall layer calls
// this before parking a thread in Waiting state on a pipe read (§4.8).
func (p *Pipe_t) AddWaker(w func()) {
	p.buf.Lock()
	defer p.buf.Unlock()
	p.buf.waker = w
}

// Closed reports whether every write end has closed, meaning a synchronous
// Read will see the pipe's final contents.
func (p *Pipe_t) Closed() bool {
	p.buf.Lock()
	defer p.buf.Unlock()
	return p.buf.writers == 0
}

func (p *Pipe_t) Close() defs.Err_t {
	if !p.writable {
		return 0
	}
	p.buf.Lock()
	p.buf.writers--
	fire := p.buf.writers == 0
	waker := p.buf.waker
	p.buf.Unlock()
	if fire && waker != nil {
		waker()
	}
	return 0
}

// Reopen bumps the write-end refcount on dup/fork of a write descriptor; a
// dup'd read end needs no bookkeeping since readers never gate closing.
func (p *Pipe_t) Reopen() defs.Err_t {
	if p.writable {
		p.buf.Lock()
		p.buf.writers++
		p.buf.Unlock()
	}
	return 0
}

func (p *Pipe_t) Lseek(int, int) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}

func (p *Pipe_t) Fstat(st fdops.FstatTarget) defs.Err_t {
	st.Wmode(0)
	st.Wsize(0)
	st.Wrdev(uint(defs.D_PIPE))
	return 0
}

// Read performs the synchronous copy out of the shared buffer. Per
// original_source's Pipe::read, this assumes the write end has already
// closed; the async path (the syscall entry point actually reached from
// user reads) is AsyncRead below.
func (p *Pipe_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	if p.writable {
		return 0, -defs.EINVAL
	}
	p.buf.Lock()
	defer p.buf.Unlock()
	return p.buf.cb.Copyout(dst)
}

func (p *Pipe_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	if !p.writable {
		return 0, -defs.EINVAL
	}
	p.buf.Lock()
	defer p.buf.Unlock()
	return p.buf.cb.Copyin(src)
}

// AsyncRead is what the read(2) syscall path actually calls on a pipe fd
// (spec §4.5, §4.8): if every write end is already closed it completes
// inline; otherwise it registers wake as the write-end waker and returns
// ok=false, and the caller is responsible for parking its thread in
// Waiting state and re-invoking AsyncRead once wake fires.
func (p *Pipe_t) AsyncRead(dst fdops.Userio_i, wake func()) (n int, err defs.Err_t, ok bool) {
	if p.Closed() {
		n, err = p.Read(dst)
		return n, err, true
	}
	p.AddWaker(wake)
	return 0, 0, false
}
