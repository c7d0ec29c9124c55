package pfs

import "encoding/binary"

// Inode is the common surface the layout planner and writer use. The
// concrete encoding (signed or plain) is selected once, at Setup time,
// from the Sign option — the planner never needs to know which one it's
// holding.
type Inode interface {
	InodeNumber() uint64
	SetMode(mode uint16)
	SetFlags(flags uint16)
	Flags() uint16
	SetNlink(n uint32)
	Nlink() uint32
	SetSize(size uint64)
	Size() uint64
	SetCompressedSize(size uint64)
	SetBlocks(n uint64)
	Blocks() uint64
	SetTimestamps(sec uint64)
	SetDirectBlock(i int, block uint64)
	DirectBlock(i int) uint64

	// DirectBlockOffset returns the absolute byte offset, within the
	// whole image, of direct-block-pointer slot i in this inode's
	// on-disk record. Only meaningful for the signed encoding, where
	// the reserved signature area sits at a fixed internal offset.
	DirectBlockOffset(i int) int64

	// Encode serializes the inode's current state into its fixed-size
	// on-disk record.
	Encode() []byte

	// SizeOf is the fixed size in bytes of this inode's on-disk record.
	SizeOf() int64
}

// ---- plain (unsigned / "inner") encoding ----------------------------------

const (
	plainOffMode           = 0x00
	plainOffFlags          = 0x02
	plainOffNlink          = 0x04
	plainOffIno            = 0x08
	plainOffSize           = 0x10
	plainOffCompressedSize = 0x18
	plainOffBlocks         = 0x20
	plainOffATime          = 0x28
	plainOffMTime          = 0x30
	plainOffCTime          = 0x38
	plainOffDirect         = 0x40
	plainSizeOf            = plainOffDirect + 8*directSlotCount // 0x140
)

// DinodePlain is the unsigned inode encoding used by the inner PFS
// profile: no reserved signature area, direct pointers follow the core
// fields immediately.
type DinodePlain struct {
	ino uint64
	buf []byte
}

// NewDinodePlain allocates a zeroed plain inode record for the given inode
// number, with every direct-block slot stamped with the unused sentinel.
func NewDinodePlain(ino uint64) *DinodePlain {
	d := &DinodePlain{ino: ino, buf: make([]byte, plainSizeOf)}
	binary.LittleEndian.PutUint64(d.buf[plainOffIno:], ino)
	for i := 0; i < directSlotCount; i++ {
		d.SetDirectBlock(i, unusedDirectSentinel)
	}
	return d
}

func (d *DinodePlain) InodeNumber() uint64 { return d.ino }

func (d *DinodePlain) SetMode(mode uint16) {
	binary.LittleEndian.PutUint16(d.buf[plainOffMode:], mode)
}

func (d *DinodePlain) SetFlags(flags uint16) {
	binary.LittleEndian.PutUint16(d.buf[plainOffFlags:], flags)
}

func (d *DinodePlain) Flags() uint16 {
	return binary.LittleEndian.Uint16(d.buf[plainOffFlags:])
}

func (d *DinodePlain) SetNlink(n uint32) {
	binary.LittleEndian.PutUint32(d.buf[plainOffNlink:], n)
}

func (d *DinodePlain) Nlink() uint32 {
	return binary.LittleEndian.Uint32(d.buf[plainOffNlink:])
}

func (d *DinodePlain) SetSize(size uint64) {
	binary.LittleEndian.PutUint64(d.buf[plainOffSize:], size)
}

func (d *DinodePlain) Size() uint64 {
	return binary.LittleEndian.Uint64(d.buf[plainOffSize:])
}

func (d *DinodePlain) SetCompressedSize(size uint64) {
	binary.LittleEndian.PutUint64(d.buf[plainOffCompressedSize:], size)
}

func (d *DinodePlain) SetBlocks(n uint64) {
	binary.LittleEndian.PutUint64(d.buf[plainOffBlocks:], n)
}

func (d *DinodePlain) Blocks() uint64 {
	return binary.LittleEndian.Uint64(d.buf[plainOffBlocks:])
}

func (d *DinodePlain) SetTimestamps(sec uint64) {
	binary.LittleEndian.PutUint64(d.buf[plainOffATime:], sec)
	binary.LittleEndian.PutUint64(d.buf[plainOffMTime:], sec)
	binary.LittleEndian.PutUint64(d.buf[plainOffCTime:], sec)
}

func (d *DinodePlain) SetDirectBlock(i int, block uint64) {
	off := plainOffDirect + 8*i
	binary.LittleEndian.PutUint64(d.buf[off:], block)
}

func (d *DinodePlain) DirectBlock(i int) uint64 {
	off := plainOffDirect + 8*i
	return binary.LittleEndian.Uint64(d.buf[off:])
}

func (d *DinodePlain) DirectBlockOffset(i int) int64 {
	return int64(plainOffDirect + 8*i)
}

func (d *DinodePlain) Encode() []byte { return d.buf }

func (d *DinodePlain) SizeOf() int64 { return plainSizeOf }

// ---- signed ("outer") encoding ---------------------------------------------

const (
	signedOffMode           = 0x00
	signedOffFlags          = 0x02
	signedOffNlink          = 0x04
	signedOffIno            = 0x08
	signedOffSize           = 0x10
	signedOffCompressedSize = 0x18
	signedOffBlocks         = 0x20
	signedOffATime          = 0x28
	signedOffMTime          = 0x30
	signedOffCTime          = 0x38
	signedOffSigArea        = 0x64
	signedOffDirect         = signedOffSigArea + sigEntrySize*directSlotCount // 0x4E4
	signedSizeOf            = signedOffDirect + 8*directSlotCount            // 0x5E4
)

// DinodeS32 is the signed inode encoding used by the outer PFS profile. It
// reserves one 36-byte signature slot per direct-block pointer at a fixed
// internal offset, per spec.md's layout-planner formula
// `BlockSize + DinodeS32.SizeOf*inodeNumber + 0x64 + 36*directBlockIndex`.
type DinodeS32 struct {
	ino       uint64
	blockSize int64
	buf       []byte
}

// NewDinodeS32 allocates a zeroed signed inode record. blockSize is the
// image's block size, needed to compute DirectBlockOffset.
func NewDinodeS32(ino uint64, blockSize int64) *DinodeS32 {
	d := &DinodeS32{ino: ino, blockSize: blockSize, buf: make([]byte, signedSizeOf)}
	binary.LittleEndian.PutUint64(d.buf[signedOffIno:], ino)
	return d
}

func (d *DinodeS32) InodeNumber() uint64 { return d.ino }

func (d *DinodeS32) SetMode(mode uint16) {
	binary.LittleEndian.PutUint16(d.buf[signedOffMode:], mode)
}

func (d *DinodeS32) SetFlags(flags uint16) {
	binary.LittleEndian.PutUint16(d.buf[signedOffFlags:], flags)
}

func (d *DinodeS32) Flags() uint16 {
	return binary.LittleEndian.Uint16(d.buf[signedOffFlags:])
}

func (d *DinodeS32) SetNlink(n uint32) {
	binary.LittleEndian.PutUint32(d.buf[signedOffNlink:], n)
}

func (d *DinodeS32) Nlink() uint32 {
	return binary.LittleEndian.Uint32(d.buf[signedOffNlink:])
}

func (d *DinodeS32) SetSize(size uint64) {
	binary.LittleEndian.PutUint64(d.buf[signedOffSize:], size)
}

func (d *DinodeS32) Size() uint64 {
	return binary.LittleEndian.Uint64(d.buf[signedOffSize:])
}

func (d *DinodeS32) SetCompressedSize(size uint64) {
	binary.LittleEndian.PutUint64(d.buf[signedOffCompressedSize:], size)
}

func (d *DinodeS32) SetBlocks(n uint64) {
	binary.LittleEndian.PutUint64(d.buf[signedOffBlocks:], n)
}

func (d *DinodeS32) Blocks() uint64 {
	return binary.LittleEndian.Uint64(d.buf[signedOffBlocks:])
}

func (d *DinodeS32) SetTimestamps(sec uint64) {
	binary.LittleEndian.PutUint64(d.buf[signedOffATime:], sec)
	binary.LittleEndian.PutUint64(d.buf[signedOffMTime:], sec)
	binary.LittleEndian.PutUint64(d.buf[signedOffCTime:], sec)
}

func (d *DinodeS32) SetDirectBlock(i int, block uint64) {
	off := signedOffDirect + 8*i
	binary.LittleEndian.PutUint64(d.buf[off:], block)
}

func (d *DinodeS32) DirectBlock(i int) uint64 {
	off := signedOffDirect + 8*i
	return binary.LittleEndian.Uint64(d.buf[off:])
}

// DirectBlockOffset returns the absolute image offset of direct-block
// slot i's reserved signature slot. Inodes are packed inodesPerBlock to
// an inode-table block with any remainder left as padding (the same
// block-boundary-aware placement the Writer uses), so this must locate
// ino's containing block before applying the fixed in-record offset of
// its signature area.
func (d *DinodeS32) DirectBlockOffset(i int) int64 {
	inodesPerBlock := d.blockSize / d.SizeOf()
	blockIndex := int64(d.ino) / inodesPerBlock
	offsetInBlock := (int64(d.ino) % inodesPerBlock) * d.SizeOf()
	return (1+blockIndex)*d.blockSize + offsetInBlock + signedOffSigArea + sigEntrySize*int64(i)
}

func (d *DinodeS32) Encode() []byte { return d.buf }

func (d *DinodeS32) SizeOf() int64 { return signedSizeOf }
