package blkfs

import (
	"os"

	"vesper/defs"
)

// MemDisk_t is an in-memory block device, used by tests. Grounded on
// ufs/driver.go's ahci_disk_t, with the file-seek-then-read/write pattern
// replaced by slicing directly into a byte buffer.
type MemDisk_t struct {
	blocks [][BSIZE]byte
}

func NewMemDisk(nblocks int) *MemDisk_t {
	return &MemDisk_t{blocks: make([][BSIZE]byte, nblocks)}
}

func (d *MemDisk_t) Nblocks() int { return len(d.blocks) }

func (d *MemDisk_t) Start(req *Bdev_req_t) defs.Err_t {
	if req.Block < 0 || req.Block >= len(d.blocks) {
		return -defs.EINVAL
	}
	switch req.Cmd {
	case BDEV_READ:
		*req.Data = d.blocks[req.Block]
	case BDEV_WRITE:
		d.blocks[req.Block] = *req.Data
	}
	return 0
}

// FileDisk_t backs a block device with a host file, the same role
// ahci_disk_t plays in ufs/driver.go for mkfsimg-style tooling outside the
// kernel proper.
type FileDisk_t struct {
	f *os.File
}

func OpenFileDisk(path string) (*FileDisk_t, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &FileDisk_t{f: f}, nil
}

func (d *FileDisk_t) Nblocks() int {
	fi, err := d.f.Stat()
	if err != nil {
		return 0
	}
	return int(fi.Size() / BSIZE)
}

func (d *FileDisk_t) Start(req *Bdev_req_t) defs.Err_t {
	off := int64(req.Block) * BSIZE
	switch req.Cmd {
	case BDEV_READ:
		if _, err := d.f.ReadAt(req.Data[:], off); err != nil {
			return -defs.EINVAL
		}
	case BDEV_WRITE:
		if _, err := d.f.WriteAt(req.Data[:], off); err != nil {
			return -defs.EINVAL
		}
	}
	return 0
}

func (d *FileDisk_t) Close() error {
	return d.f.Close()
}
