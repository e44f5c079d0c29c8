package blkfs

import "encoding/binary"

// superblock occupies block 0. Layout fields follow fs/super.go's
// field-per-slot convention (fieldr/fieldw over a raw page), trimmed to
// the five fields a log-free, bitmap-allocated filesystem needs; the
// write-ahead-log and orphan-inode fields biscuit's Superblock_t carries
// are dropped along with the journal itself (see DESIGN.md).
type Superblock_t struct {
	Data *[BSIZE]byte
}

const (
	sbMagic        = 0
	sbInodeBitmap  = 1
	sbInodeArea    = 2
	sbDataBitmap   = 3
	sbDataArea     = 4
	sbTotalBlocks  = 5
)

const magicNumber uint32 = 0xf00dfeed

func fieldr(d *[BSIZE]byte, slot int) uint32 {
	return binary.LittleEndian.Uint32(d[slot*4:])
}

func fieldw(d *[BSIZE]byte, slot int, v uint32) {
	binary.LittleEndian.PutUint32(d[slot*4:], v)
}

func (sb *Superblock_t) Valid() bool    { return fieldr(sb.Data, sbMagic) == magicNumber }
func (sb *Superblock_t) InodeBitmap() int { return int(fieldr(sb.Data, sbInodeBitmap)) }
func (sb *Superblock_t) InodeArea() int   { return int(fieldr(sb.Data, sbInodeArea)) }
func (sb *Superblock_t) DataBitmap() int  { return int(fieldr(sb.Data, sbDataBitmap)) }
func (sb *Superblock_t) DataArea() int    { return int(fieldr(sb.Data, sbDataArea)) }
func (sb *Superblock_t) TotalBlocks() int { return int(fieldr(sb.Data, sbTotalBlocks)) }

func (sb *Superblock_t) init(inodeBitmap, inodeArea, dataBitmap, dataArea, total int) {
	fieldw(sb.Data, sbMagic, magicNumber)
	fieldw(sb.Data, sbInodeBitmap, uint32(inodeBitmap))
	fieldw(sb.Data, sbInodeArea, uint32(inodeArea))
	fieldw(sb.Data, sbDataBitmap, uint32(dataBitmap))
	fieldw(sb.Data, sbDataArea, uint32(dataArea))
	fieldw(sb.Data, sbTotalBlocks, uint32(total))
}
