package pfs

import "encoding/binary"

// Fixed format constants. Offsets are given relative to block 0 (the
// header) or to the start of an inode record, matching the byte-exact
// positions the reference PFS tooling expects.
const (
	// DefaultBlockSize is the only block size exercised by the current
	// PS4 package ecosystem.
	DefaultBlockSize = 65536

	// sigEntrySize is the size in bytes of one signing-queue payload: a
	// 32-byte HMAC-SHA256 tag followed by the 4-byte little-endian block
	// index it covers.
	sigEntrySize = 36

	// directBlocks is the number of direct (level-0) block pointers in
	// an inode. Slot 12 holds the single-indirect pointer, slot 13 the
	// doubly-indirect pointer; the remaining slots exist in the on-disk
	// layout but are never populated by this builder.
	directBlocks       = 12
	indirectSlot       = 12
	doublyIndirectSlot = 13
	directSlotCount    = 32

	// unusedDirectSentinel is stamped into unused direct-block slots in
	// the unsigned (inner) profile.
	unusedDirectSentinel = ^uint64(0)

	// Header layout (block 0).
	hdrOffMode           = 0x00 // uint32 mode flags
	hdrOffBlockSize      = 0x04 // uint32
	hdrOffSeed           = 0x08 // [16]byte
	hdrOffNdblock        = 0x18 // uint64
	hdrOffNinode         = 0x20 // uint64
	hdrOffNdinodeblock   = 0x28 // uint64
	hdrOffFileTime       = 0x30 // uint64
	hdrOffDinodeDirect   = 0x38 // [32]uint32, direct pointers of the inode-block-sig descriptor
	hdrOffDinodeSigArea  = 0xB8 // (32+4)-byte signature slots, one per inode block, sig_offset = 0xB8 + 36*i; at most inodeSigSlotLimit fit
	hdrOffSelfSig        = 0x380
	hdrSelfSigSpan       = 0x5A0
	hdrSignedPayloadSize = hdrSelfSigSpan

	// Header mode flags.
	ModeSigned    uint32 = 0x1
	ModeEncrypted uint32 = 0x2
	modeAlwaysSet uint32 = 0x8 // set unconditionally by the reference tool; meaning unknown

	// Inode mode bits.
	InodeModeDir  uint16 = 0x1000
	InodeModeFile uint16 = 0x2000
	permReadExec  uint16 = 0x0500 // rx_only, applied to both dir and file inodes

	// Inode flag bits.
	FlagReadonly   uint16 = 0x0001
	FlagInternal   uint16 = 0x0002
	FlagCompressed uint16 = 0x0004
	flagUnknown1   uint16 = 0x0008 // "unknown-but-always-set-when-signed"
	flagUnknown2   uint16 = 0x0010

	// Fixed inode numbers assigned during root structure setup.
	InoSuperRoot      = 0
	InoFlatPathTable  = 1
	InoURoot          = 2
	firstDynamicInode = 3

	// Names used by the super-root dirents.
	nameFlatPathTable = "flat_path_table"
	nameURoot         = "uroot"
)

// inodeSigSlotLimit is how many inode-block signature slots fit in the
// header before they would start to overlap the header's own self-signed
// region at hdrOffSelfSig. Building an image whose inode table needs more
// blocks than this is a LayoutOverflow: the fixed-offset header has no
// indirection scheme for this array, exactly as the reference header
// format does not.
const inodeSigSlotLimit = (hdrOffSelfSig - hdrOffDinodeSigArea) / sigEntrySize

// Header is the on-disk representation of PFS block 0. It is manipulated
// as a flat byte buffer with fixed offsets (mirroring the teacher's
// pkg/xfs structures, which are POD structs written with encoding/binary)
// rather than as a Go struct, because the signed self-signature slot at
// hdrOffSelfSig is not 36-byte aligned relative to the inode-block
// signature array that precedes it and so cannot be expressed as a single
// contiguous run of same-sized array elements.
type Header struct {
	buf       []byte
	blockSize int64
}

// NewHeader allocates a zeroed header block of the given block size.
func NewHeader(blockSize int64) *Header {
	return &Header{buf: make([]byte, blockSize), blockSize: blockSize}
}

// Bytes returns the full block-sized backing buffer.
func (h *Header) Bytes() []byte { return h.buf }

func (h *Header) SetMode(mode uint32) {
	binary.LittleEndian.PutUint32(h.buf[hdrOffMode:], mode|modeAlwaysSet)
}

func (h *Header) Mode() uint32 {
	return binary.LittleEndian.Uint32(h.buf[hdrOffMode:])
}

func (h *Header) SetBlockSize(size uint32) {
	binary.LittleEndian.PutUint32(h.buf[hdrOffBlockSize:], size)
}

func (h *Header) SetSeed(seed [16]byte) {
	copy(h.buf[hdrOffSeed:hdrOffSeed+16], seed[:])
}

func (h *Header) Seed() [16]byte {
	var s [16]byte
	copy(s[:], h.buf[hdrOffSeed:hdrOffSeed+16])
	return s
}

func (h *Header) SetNdblock(n uint64) {
	binary.LittleEndian.PutUint64(h.buf[hdrOffNdblock:], n)
}

func (h *Header) SetNinode(n uint64) {
	binary.LittleEndian.PutUint64(h.buf[hdrOffNinode:], n)
}

func (h *Header) SetNdinodeblock(n uint64) {
	binary.LittleEndian.PutUint64(h.buf[hdrOffNdinodeblock:], n)
}

func (h *Header) SetFileTime(t uint64) {
	binary.LittleEndian.PutUint64(h.buf[hdrOffFileTime:], t)
}

// SetDinodeBlockDirect sets direct pointer i (0-based) of the embedded
// inode-block-signature descriptor to the given block number.
func (h *Header) SetDinodeBlockDirect(i int, block uint32) {
	off := hdrOffDinodeDirect + 4*i
	binary.LittleEndian.PutUint32(h.buf[off:], block)
}

// DinodeSigOffset returns the absolute offset within block 0 where the
// signature for inode block i is stored.
func DinodeSigOffset(i int) int64 {
	return hdrOffDinodeSigArea + int64(i)*sigEntrySize
}

// WriteSignature writes a signing-queue result (32-byte tag plus 4-byte
// little-endian block index) at the given absolute offset into buf.
func WriteSignature(buf []byte, offset int64, tag [32]byte, blockIndex uint32) {
	copy(buf[offset:offset+32], tag[:])
	binary.LittleEndian.PutUint32(buf[offset+32:offset+36], blockIndex)
}

// HeaderSelfSigOffset and HeaderSelfSigSpan are exported so the signing
// queue can reference them without reaching into package-private
// constants.
const (
	HeaderSelfSigOffset = hdrOffSelfSig
	HeaderSelfSigSpan   = hdrSelfSigSpan
)

// DirentKind enumerates the kinds of directory entry.
type DirentKind uint8

const (
	DirentSelf DirentKind = iota
	DirentParent
	DirentFile
	DirentDirectory
)

// Dirent is one directory entry: a name, the inode it targets, and the
// entry's kind. Serialized size is name-dependent; see direntSize.
type Dirent struct {
	Name  string
	Ino   uint32
	Kind  DirentKind
}

// MaxDirentSize is the serialized size of a dirent with a 255-byte name.
// The layout planner does not use it: it decides when a directory's
// entries spill into a new block from each entry's exact direntSize.
const MaxDirentSize = 1 + 1 + 255 + 4 // kind + name length + max name + inode number

// direntSize returns the exact serialized length of d.
func direntSize(d Dirent) int64 {
	return int64(1 + 1 + len(d.Name) + 4)
}

// encodeDirent appends d's wire encoding to buf and returns the result.
func encodeDirent(buf []byte, d Dirent) []byte {
	buf = append(buf, byte(d.Kind))
	buf = append(buf, byte(len(d.Name)))
	buf = append(buf, d.Name...)
	var ino [4]byte
	binary.LittleEndian.PutUint32(ino[:], d.Ino)
	return append(buf, ino[:]...)
}
