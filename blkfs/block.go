// Package blkfs implements the on-disk filesystem façade (spec external
// interface §6): a flat file table over a block device, with a block cache
// sitting in front of synchronous disk I/O. Grounded on
// fs/blk.go (Bdev_block_t/Disk_i/Bdev_req_t) and fs/super.go
// (Superblock_t), trimmed of biscuit's write-ahead log and orphan-inode
// bookkeeping — this kernel has no crash-consistency requirement (spec
// Non-goals) — and on original_source/easy-fs (layout.rs/bitmap.rs) for the
// inode/bitmap layout that replaces biscuit's logged allocator.
package blkfs

import (
	"sync"

	"vesper/defs"
	"vesper/hashtable"
)

// BSIZE is the size of a disk block in bytes.
const BSIZE = 4096

// Bdevcmd_t enumerates disk request types.
type Bdevcmd_t uint

const (
	BDEV_READ  Bdevcmd_t = 1
	BDEV_WRITE Bdevcmd_t = 2
)

// Bdev_req_t describes a single-block disk request. Kept synchronous (no
// IRQ-driven completion) since the simulated block device never actually
// blocks on hardware.
type Bdev_req_t struct {
	Cmd   Bdevcmd_t
	Block int
	Data  *[BSIZE]byte
}

// Disk_i is the block device interface MemDisk_t and FileDisk_t implement.
type Disk_i interface {
	Start(*Bdev_req_t) defs.Err_t
	Nblocks() int
}

// Bdev_block_t is a cached disk block, identified by its block number.
type Bdev_block_t struct {
	sync.Mutex
	Block int
	Data  *[BSIZE]byte
	dirty bool
}

func mkBlock(block int) *Bdev_block_t {
	return &Bdev_block_t{Block: block, Data: &[BSIZE]byte{}}
}

// BlockCache_t is a write-through cache of disk blocks fronting a Disk_i,
// keyed by block number in a hashtable.Hashtable_t.
type BlockCache_t struct {
	disk Disk_i
	ht   *hashtable.Hashtable_t
}

// NewBlockCache wraps disk with a block cache.
func NewBlockCache(disk Disk_i) *BlockCache_t {
	return &BlockCache_t{disk: disk, ht: hashtable.MkHash(64)}
}

// Get returns the cached block, reading it from disk on a miss.
func (bc *BlockCache_t) Get(blkno int) (*Bdev_block_t, defs.Err_t) {
	if v, ok := bc.ht.Get(blkno); ok {
		return v.(*Bdev_block_t), 0
	}
	b := mkBlock(blkno)
	req := &Bdev_req_t{Cmd: BDEV_READ, Block: blkno, Data: b.Data}
	if err := bc.disk.Start(req); err != 0 {
		return nil, err
	}
	bc.ht.Set(blkno, b)
	return b, 0
}

// Write marks b dirty and flushes it to disk immediately — there is no
// write-back delay or log to batch behind, so "dirty" stays set only on a
// block whose disk write failed.
func (bc *BlockCache_t) Write(b *Bdev_block_t) defs.Err_t {
	b.Lock()
	b.dirty = true
	req := &Bdev_req_t{Cmd: BDEV_WRITE, Block: b.Block, Data: b.Data}
	err := bc.disk.Start(req)
	if err == 0 {
		b.dirty = false
	}
	b.Unlock()
	return err
}

// Clear evicts every cached block without flushing.
func (bc *BlockCache_t) Clear() {
	bc.ht = hashtable.MkHash(64)
}
