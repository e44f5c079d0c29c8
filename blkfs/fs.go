package blkfs

import (
	"vesper/defs"
)

const maxInodes = 1024

// dirEntSz is the packed size of one directory entry: a 28-byte name
// field plus a 4-byte inode number, matching easy-fs's DIRENT_SZ layout
// (original_source/easy-fs/src/layout.rs's DirEntry).
const dirEntSz = 32
const dirNameLen = 28

// Fs_t is the on-disk filesystem: a superblock, an inode bitmap/area, a
// data bitmap/area, and inode 0 (the first slot of the inode area)
// holding the root directory's packed DirEntry list. There is exactly one directory level
// — this kernel's syscall surface (spec §6) never names a path with
// more than one component.
type Fs_t struct {
	disk       Disk_i
	cache      *BlockCache_t
	sb         *Superblock_t
	inodes     *inodeTable_t
	inodeBmp   *Bitmap_t
	dataBitmap *Bitmap_t
	dataStart  int
}

// MkFS formats disk with a fresh, empty filesystem.
func MkFS(disk Disk_i) (*Fs_t, defs.Err_t) {
	cache := NewBlockCache(disk)
	total := disk.Nblocks()
	if total < 8 {
		return nil, -defs.EINVAL
	}

	inodeBmpBlk := 1
	inodeAreaBlk := inodeBmpBlk + 1
	inodeAreaLen := (maxInodes + inodesPerBlock - 1) / inodesPerBlock
	dataBmpBlk := inodeAreaBlk + inodeAreaLen
	dataAreaBlk := dataBmpBlk + 1
	if dataAreaBlk >= total {
		return nil, -defs.EINVAL
	}

	sbBlk, err := cache.Get(0)
	if err != 0 {
		return nil, err
	}
	sb := &Superblock_t{Data: sbBlk.Data}
	sb.init(inodeBmpBlk, inodeAreaBlk, dataBmpBlk, dataAreaBlk, total)
	if err := cache.Write(sbBlk); err != 0 {
		return nil, err
	}

	fs := &Fs_t{
		disk:       disk,
		cache:      cache,
		sb:         sb,
		inodes:     &inodeTable_t{cache: cache, startBlock: inodeAreaBlk},
		inodeBmp:   NewBitmap(cache, inodeBmpBlk, 1),
		dataBitmap: NewBitmap(cache, dataBmpBlk, 1),
		dataStart:  dataAreaBlk,
	}

	rootIno, ok := fs.inodeBmp.Alloc()
	if !ok || rootIno != 0 {
		return nil, -defs.ENOMEM
	}
	root := &DiskInode_t{Valid: true}
	if err := fs.inodes.put(0, root); err != 0 {
		return nil, err
	}
	return fs, 0
}

// OpenFS mounts an already-formatted disk.
func OpenFS(disk Disk_i) (*Fs_t, defs.Err_t) {
	cache := NewBlockCache(disk)
	sbBlk, err := cache.Get(0)
	if err != 0 {
		return nil, err
	}
	sb := &Superblock_t{Data: sbBlk.Data}
	if !sb.Valid() {
		return nil, -defs.EINVAL
	}
	inodeAreaLen := (maxInodes + inodesPerBlock - 1) / inodesPerBlock
	fs := &Fs_t{
		disk:       disk,
		cache:      cache,
		sb:         sb,
		inodes:     &inodeTable_t{cache: cache, startBlock: sb.InodeArea()},
		inodeBmp:   NewBitmap(cache, sb.InodeBitmap(), 1),
		dataBitmap: NewBitmap(cache, sb.DataBitmap(), 1),
		dataStart:  sb.DataArea(),
	}
	_ = inodeAreaLen
	return fs, 0
}

func (fs *Fs_t) root() (*inodeFile_t, defs.Err_t) {
	return fs.openIno(0)
}

func (fs *Fs_t) openIno(ino int) (*inodeFile_t, defs.Err_t) {
	di, err := fs.inodes.get(ino)
	if err != 0 {
		return nil, err
	}
	return &inodeFile_t{fs: fs, ino: ino, di: di}, 0
}

type dirent struct {
	name string
	ino  int
}

func packDirent(d dirent) []byte {
	b := make([]byte, dirEntSz)
	n := copy(b, d.name)
	_ = n
	b[dirNameLen] = byte(d.ino)
	b[dirNameLen+1] = byte(d.ino >> 8)
	b[dirNameLen+2] = byte(d.ino >> 16)
	b[dirNameLen+3] = byte(d.ino >> 24)
	return b
}

func unpackDirent(b []byte) dirent {
	end := 0
	for end < dirNameLen && b[end] != 0 {
		end++
	}
	ino := int(b[dirNameLen]) | int(b[dirNameLen+1])<<8 | int(b[dirNameLen+2])<<16 | int(b[dirNameLen+3])<<24
	return dirent{name: string(b[:end]), ino: ino}
}

func (fs *Fs_t) listDir() ([]dirent, defs.Err_t) {
	root, err := fs.root()
	if err != 0 {
		return nil, err
	}
	n := dataBlocks(root.di.Size) // unused bound check kept simple
	_ = n
	raw := make([]byte, root.di.Size)
	if _, err := root.ReadAt(0, raw); err != 0 {
		return nil, err
	}
	var ents []dirent
	for off := 0; off+dirEntSz <= len(raw); off += dirEntSz {
		d := unpackDirent(raw[off : off+dirEntSz])
		if d.name != "" {
			ents = append(ents, d)
		}
	}
	return ents, 0
}

func (fs *Fs_t) appendDirent(d dirent) defs.Err_t {
	root, err := fs.root()
	if err != 0 {
		return err
	}
	_, err = root.WriteAt(int(root.di.Size), packDirent(d))
	return err
}

// Find looks a name up in the root directory.
func (fs *Fs_t) Find(name string) (*inodeFile_t, defs.Err_t) {
	ents, err := fs.listDir()
	if err != 0 {
		return nil, err
	}
	for _, d := range ents {
		if d.name == name {
			return fs.openIno(d.ino)
		}
	}
	return nil, -defs.ENOENT
}

// Create makes a new, empty file named name in the root directory.
func (fs *Fs_t) Create(name string) (*inodeFile_t, defs.Err_t) {
	if _, err := fs.Find(name); err == 0 {
		return nil, -defs.EEXIST
	}
	ino, ok := fs.inodeBmp.Alloc()
	if !ok {
		return nil, -defs.ENOMEM
	}
	di := &DiskInode_t{Valid: true}
	if err := fs.inodes.put(ino, di); err != 0 {
		return nil, err
	}
	if err := fs.appendDirent(dirent{name: name, ino: ino}); err != 0 {
		return nil, err
	}
	return &inodeFile_t{fs: fs, ino: ino, di: di}, 0
}

// Ls returns the names of every file in the root directory.
func (fs *Fs_t) Ls() ([]string, defs.Err_t) {
	ents, err := fs.listDir()
	if err != 0 {
		return nil, err
	}
	names := make([]string, len(ents))
	for i, d := range ents {
		names[i] = d.name
	}
	return names, 0
}

// Clear truncates the named file's contents to zero length.
func (fs *Fs_t) Clear(name string) defs.Err_t {
	f, err := fs.Find(name)
	if err != 0 {
		return err
	}
	return f.Clear()
}

// ReadAll reads the entire contents of the named file.
func (fs *Fs_t) ReadAll(name string) ([]byte, defs.Err_t) {
	f, err := fs.Find(name)
	if err != 0 {
		return nil, err
	}
	buf := make([]byte, f.di.Size)
	if _, err := f.ReadAt(0, buf); err != 0 {
		return nil, err
	}
	return buf, 0
}
