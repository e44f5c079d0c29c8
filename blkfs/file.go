package blkfs

import (
	"encoding/binary"

	"vesper/defs"
)

// inodeFile_t binds a DiskInode_t to the inode table and block cache it
// lives in, and grows/shrinks/reads/writes it the way
// original_source/easy-fs/src/layout.rs's DiskInode::{read_at,write_at,
// clear_size,increase_size} do, minus the indirect2 level (see inode.go).
type inodeFile_t struct {
	fs  *Fs_t
	ino int
	di  *DiskInode_t
}

func (f *inodeFile_t) save() defs.Err_t {
	return f.fs.inodes.put(f.ino, f.di)
}

func (f *inodeFile_t) indirectBlock() (*Bdev_block_t, defs.Err_t) {
	if f.di.Indirect == 0 {
		n, ok := f.fs.dataBitmap.Alloc()
		if !ok {
			return nil, -defs.ENOMEM
		}
		f.di.Indirect = uint32(f.fs.dataStart + n)
	}
	return f.fs.cache.Get(int(f.di.Indirect))
}

func (f *inodeFile_t) blockAt(idx int) (int, defs.Err_t) {
	if idx < directCount {
		if f.di.Direct[idx] == 0 {
			n, ok := f.fs.dataBitmap.Alloc()
			if !ok {
				return 0, -defs.ENOMEM
			}
			f.di.Direct[idx] = uint32(f.fs.dataStart + n)
		}
		return int(f.di.Direct[idx]), 0
	}
	ib, err := f.indirectBlock()
	if err != 0 {
		return 0, err
	}
	slot := idx - directCount
	if slot >= indirectPtrs {
		return 0, -defs.EINVAL
	}
	ib.Lock()
	ptr := binary.LittleEndian.Uint32(ib.Data[slot*4:])
	if ptr == 0 {
		n, ok := f.fs.dataBitmap.Alloc()
		if !ok {
			ib.Unlock()
			return 0, -defs.ENOMEM
		}
		ptr = uint32(f.fs.dataStart + n)
		binary.LittleEndian.PutUint32(ib.Data[slot*4:], ptr)
	}
	ib.Unlock()
	f.fs.cache.Write(ib)
	return int(ptr), 0
}

// ReadAt copies min(len(buf), size-off) bytes starting at off into buf.
func (f *inodeFile_t) ReadAt(off int, buf []byte) (int, defs.Err_t) {
	end := off + len(buf)
	if end > int(f.di.Size) {
		end = int(f.di.Size)
	}
	if off >= end {
		return 0, 0
	}
	n := 0
	for pos := off; pos < end; {
		blkIdx := pos / BSIZE
		within := pos % BSIZE
		chunk := BSIZE - within
		if pos+chunk > end {
			chunk = end - pos
		}
		blkno, err := f.blockAt(blkIdx)
		if err != 0 {
			return n, err
		}
		b, err := f.fs.cache.Get(blkno)
		if err != 0 {
			return n, err
		}
		b.Lock()
		copy(buf[n:n+chunk], b.Data[within:within+chunk])
		b.Unlock()
		n += chunk
		pos += chunk
	}
	return n, 0
}

// WriteAt writes buf at off, growing the file (and allocating new data
// blocks) if off+len(buf) exceeds the current size.
func (f *inodeFile_t) WriteAt(off int, buf []byte) (int, defs.Err_t) {
	end := off + len(buf)
	n := 0
	for pos := off; pos < end; {
		blkIdx := pos / BSIZE
		within := pos % BSIZE
		chunk := BSIZE - within
		if pos+chunk > end {
			chunk = end - pos
		}
		blkno, err := f.blockAt(blkIdx)
		if err != 0 {
			return n, err
		}
		b, err := f.fs.cache.Get(blkno)
		if err != 0 {
			return n, err
		}
		b.Lock()
		copy(b.Data[within:within+chunk], buf[n:n+chunk])
		b.Unlock()
		if err := f.fs.cache.Write(b); err != 0 {
			return n, err
		}
		n += chunk
		pos += chunk
	}
	if uint32(end) > f.di.Size {
		f.di.Size = uint32(end)
	}
	return n, f.save()
}

// Clear frees every data block the inode owns and resets its size to 0.
func (f *inodeFile_t) Clear() defs.Err_t {
	nblk := dataBlocks(f.di.Size)
	for i := 0; i < nblk && i < directCount; i++ {
		if f.di.Direct[i] != 0 {
			f.fs.dataBitmap.Free(int(f.di.Direct[i]) - f.fs.dataStart)
			f.di.Direct[i] = 0
		}
	}
	if nblk > directCount && f.di.Indirect != 0 {
		ib, err := f.fs.cache.Get(int(f.di.Indirect))
		if err != 0 {
			return err
		}
		ib.Lock()
		for i := 0; i < nblk-directCount && i < indirectPtrs; i++ {
			ptr := binary.LittleEndian.Uint32(ib.Data[i*4:])
			if ptr != 0 {
				f.fs.dataBitmap.Free(int(ptr) - f.fs.dataStart)
				binary.LittleEndian.PutUint32(ib.Data[i*4:], 0)
			}
		}
		ib.Unlock()
		f.fs.cache.Write(ib)
		f.fs.dataBitmap.Free(int(f.di.Indirect) - f.fs.dataStart)
		f.di.Indirect = 0
	}
	f.di.Size = 0
	return f.save()
}
