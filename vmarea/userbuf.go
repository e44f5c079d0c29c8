package vmarea

import (
	"vesper/defs"
	"vesper/frame"
)

// Userbuf_t copies between a user-memory region in some AddressSpace and a
// kernel []byte, faulting in area pages as needed. It implements
// fdops.Userio_i.
type Userbuf_t struct {
	as  *AddressSpace
	va  uintptr
	len int
	off int
}

// NewUserbuf initializes a buffer over [uva, uva+n) in as.
func NewUserbuf(as *AddressSpace, uva uintptr, n int) *Userbuf_t {
	if n < 0 {
		panic("negative user buffer length")
	}
	return &Userbuf_t{as: as, va: uva, len: n}
}

// Remain returns the number of unread/unwritten bytes left in the buffer.
func (ub *Userbuf_t) Remain() int {
	return ub.len - ub.off
}

// Totalsz reports the total size of the buffer in bytes.
func (ub *Userbuf_t) Totalsz() int {
	return ub.len
}

func (ub *Userbuf_t) tx(buf []uint8, write bool) (int, defs.Err_t) {
	ret := 0
	for len(buf) != 0 && ub.off != ub.len {
		va := ub.va + uintptr(ub.off)
		pageva := va &^ uintptr(frame.PGOFFSET)
		pageoff := int(va & uintptr(frame.PGOFFSET))

		area, ok := ub.as.Lookup(va)
		if !ok {
			return ret, -defs.EFAULT
		}
		pa, err := area.Map(pageva)
		if err != 0 {
			return ret, err
		}
		pg := area.alloc.Dmap(pa)
		seg := pg[pageoff:]

		left := ub.len - ub.off
		if len(seg) > left {
			seg = seg[:left]
		}
		var c int
		if write {
			c = copy(seg, buf)
		} else {
			c = copy(buf, seg)
		}
		buf = buf[c:]
		ub.off += c
		ret += c
		if c == 0 {
			break
		}
	}
	return ret, 0
}

// Uioread copies data from user memory into dst.
func (ub *Userbuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	return ub.tx(dst, false)
}

// Uiowrite copies data from src into user memory.
func (ub *Userbuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	return ub.tx(src, true)
}

// Fakeubuf_t implements the same interface as Userbuf_t but operates on a
// kernel buffer, for when the kernel needs to treat internal memory like
// user memory (e.g. building an argv blob before a stack push).
type Fakeubuf_t struct {
	buf []uint8
	len int
}

// NewFakeubuf wraps an existing kernel buffer.
func NewFakeubuf(buf []uint8) *Fakeubuf_t {
	return &Fakeubuf_t{buf: buf, len: len(buf)}
}

func (fb *Fakeubuf_t) Remain() int  { return len(fb.buf) }
func (fb *Fakeubuf_t) Totalsz() int { return fb.len }

func (fb *Fakeubuf_t) tx(buf []uint8, tofbuf bool) (int, defs.Err_t) {
	var c int
	if tofbuf {
		c = copy(fb.buf, buf)
	} else {
		c = copy(buf, fb.buf)
	}
	fb.buf = fb.buf[c:]
	return c, 0
}

func (fb *Fakeubuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	return fb.tx(dst, false)
}

func (fb *Fakeubuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	return fb.tx(src, true)
}
