package blkfs

import (
	"vesper/defs"
	"vesper/fdops"
)

// OpenFlags mirrors spec §6's on-disk FS facade flag set.
const (
	O_RDONLY = 0
	O_WRONLY = 1
	O_RDWR   = 2
	O_CREAT  = 1 << 9
	O_TRUNC  = 1 << 10
)

// OnDiskFile is the fdops.Fdops_i an open on-disk file presents to vfs.
// It pairs an inodeFile_t with a read/write cursor, the role fd/fd.go's
// file-descriptor-level wrapper plays for biscuit's inode files.
type OnDiskFile struct {
	file  *inodeFile_t
	off   int
	flags int
}

// Open resolves name against fs's root directory per flags, creating it
// on O_CREAT|find-miss and truncating on O_TRUNC.
func Open(fs *Fs_t, name string, flags int) (*OnDiskFile, defs.Err_t) {
	f, err := fs.Find(name)
	if err == -defs.ENOENT && flags&O_CREAT != 0 {
		f, err = fs.Create(name)
	}
	if err != 0 {
		return nil, err
	}
	if flags&O_TRUNC != 0 {
		if err := f.Clear(); err != 0 {
			return nil, err
		}
	}
	return &OnDiskFile{file: f, flags: flags}, 0
}

func (f *OnDiskFile) Close() defs.Err_t  { return 0 }
func (f *OnDiskFile) Reopen() defs.Err_t { return 0 }

func (f *OnDiskFile) Lseek(off, whence int) (int, defs.Err_t) {
	switch whence {
	case 0:
		f.off = off
	case 1:
		f.off += off
	case 2:
		f.off = int(f.file.di.Size) + off
	default:
		return 0, -defs.EINVAL
	}
	if f.off < 0 {
		f.off = 0
	}
	return f.off, 0
}

func (f *OnDiskFile) Fstat(st fdops.FstatTarget) defs.Err_t {
	st.Wmode(0)
	st.Wsize(uint(f.file.di.Size))
	st.Wino(uint(f.file.ino))
	return 0
}

func (f *OnDiskFile) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	buf := make([]byte, dst.Remain())
	n, err := f.file.ReadAt(f.off, buf)
	if err != 0 {
		return 0, err
	}
	f.off += n
	wrote, err := dst.Uiowrite(buf[:n])
	return wrote, err
}

func (f *OnDiskFile) Write(src fdops.Userio_i) (int, defs.Err_t) {
	if f.flags&(O_WRONLY|O_RDWR) == 0 {
		return 0, -defs.EINVAL
	}
	buf := make([]byte, src.Remain())
	n, err := src.Uioread(buf)
	if err != 0 {
		return 0, err
	}
	wrote, err := f.file.WriteAt(f.off, buf[:n])
	f.off += wrote
	return wrote, err
}
