package blkfs

import (
	"encoding/binary"

	"vesper/defs"
)

// directCount is how many data block pointers an on-disk inode stores
// inline; larger files spill into a single indirect block. Grounded on
// original_source/easy-fs/src/layout.rs's DiskInode, with the second
// indirection level (indirect2) dropped — this kernel's test workloads
// (spec §8) never approach the size a single indirect block already
// covers (directCount+1024 blocks, 4 MiB+).
const directCount = 12
const indirectPtrs = BSIZE / 4

// inodeSize is the on-disk encoded size of one DiskInode_t, chosen so
// inodesPerBlock divides BSIZE evenly.
const inodeSize = 128
const inodesPerBlock = BSIZE / inodeSize

// DiskInode_t is the on-disk inode layout: a byte size, a fixed run of
// direct block numbers, and one indirect block number.
type DiskInode_t struct {
	Size     uint32
	Direct   [directCount]uint32
	Indirect uint32
	Valid    bool
}

func decodeInode(b []byte) *DiskInode_t {
	di := &DiskInode_t{}
	di.Valid = b[0] != 0
	di.Size = binary.LittleEndian.Uint32(b[4:8])
	for i := 0; i < directCount; i++ {
		di.Direct[i] = binary.LittleEndian.Uint32(b[8+i*4:])
	}
	di.Indirect = binary.LittleEndian.Uint32(b[8+directCount*4:])
	return di
}

func (di *DiskInode_t) encode(b []byte) {
	if di.Valid {
		b[0] = 1
	} else {
		b[0] = 0
	}
	binary.LittleEndian.PutUint32(b[4:8], di.Size)
	for i := 0; i < directCount; i++ {
		binary.LittleEndian.PutUint32(b[8+i*4:], di.Direct[i])
	}
	binary.LittleEndian.PutUint32(b[8+directCount*4:], di.Indirect)
}

func dataBlocks(size uint32) int {
	return int((size + BSIZE - 1) / BSIZE)
}

// inodeTable_t reads (get) and writes back (put) inodes in the inode area
// through the block cache — standing in for the Rust original's
// get_block_cache(...).lock().modify(...) pattern.
type inodeTable_t struct {
	cache      *BlockCache_t
	startBlock int
}

func (it *inodeTable_t) blockFor(ino int) (int, int) {
	blk := it.startBlock + ino/inodesPerBlock
	off := (ino % inodesPerBlock) * inodeSize
	return blk, off
}

func (it *inodeTable_t) get(ino int) (*DiskInode_t, defs.Err_t) {
	blkno, off := it.blockFor(ino)
	b, err := it.cache.Get(blkno)
	if err != 0 {
		return nil, err
	}
	b.Lock()
	di := decodeInode(b.Data[off : off+inodeSize])
	b.Unlock()
	return di, 0
}

func (it *inodeTable_t) put(ino int, di *DiskInode_t) defs.Err_t {
	blkno, off := it.blockFor(ino)
	b, err := it.cache.Get(blkno)
	if err != 0 {
		return err
	}
	b.Lock()
	di.encode(b.Data[off : off+inodeSize])
	b.Unlock()
	return it.cache.Write(b)
}
