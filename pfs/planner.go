package pfs

import (
	"encoding/binary"
	"fmt"
	"io"
)

// SignEntry is one entry in the signing work queue: the block whose Span
// bytes (from the start of BlockIndex*BlockSize) get hashed, and the
// absolute image offset the resulting tag and BlockIndex are written to.
// When SigOffset falls inside the hashed span itself (the header's own
// self-signature), the signer zeroes that sub-range before hashing.
type SignEntry struct {
	BlockIndex uint64
	SigOffset  int64
	Span       int64
}

// Plan is the complete, pre-computed layout a Writer needs to stream an
// image: every inode's on-disk record, every directory's packed dirent
// blocks, every file's data/indirect block assignments, and (for the
// signed profile) the ordered signing queue.
type Plan struct {
	BlockSize int64
	Signed    bool

	Header *Header
	Inodes map[uint32]Inode

	// DirentBlocks maps a block index to its packed, block-sized dirent
	// payload (already zero-padded to BlockSize).
	DirentBlocks map[uint64][]byte

	// FileBlocks maps a file's inode number to the ordered list of data
	// block indices its content occupies (indirect pointer blocks are
	// not included; those live in IndirectBlocks).
	FileBlocks map[uint32][]uint64

	// IndirectBlocks maps an indirect or doubly-indirect block's own
	// index to its block-sized content: in the plain profile a
	// little-endian 8-byte pointer table, in the signed profile a zeroed
	// block whose 36-byte slots the Signer fills in.
	IndirectBlocks map[uint64][]byte

	// FileProducers maps a file's inode number to the callback the
	// Writer invokes to stream its content across the blocks listed in
	// FileBlocks.
	FileProducers map[uint32]ContentProducer

	SignQueue []SignEntry

	EmptyBlock    uint64
	ReservedBlock uint64
	Ndblock       uint64
	Ninode        uint64
	NdinodeBlock  uint64
	FlatPathInode uint32
	FlatPathBytes []byte
}

// PlanLayout walks tree, assigns inode numbers and block numbers to every
// node, and returns the complete layout. It implements both PFS profiles:
// signed (outer, HMAC-signed, XTS-encryptable) when signed is true, and
// plain (inner, unsigned) otherwise.
func PlanLayout(tree *Directory, blockSize int64, signed bool) (*Plan, error) {
	if err := validateTree(tree); err != nil {
		return nil, err
	}

	inoOf := make(map[interface{}]uint32)
	inoOf[tree] = InoURoot

	nextIno := uint32(firstDynamicInode)
	var dirsInOrder []*Directory
	walkDirsPreOrder(tree, func(d *Directory) {
		dirsInOrder = append(dirsInOrder, d)
		if d == tree {
			return
		}
		inoOf[d] = nextIno
		nextIno++
	})

	filePairs := collectFilesByPath(tree)
	for _, fp := range filePairs {
		inoOf[fp.file] = nextIno
		nextIno++
	}

	ninode := uint64(nextIno)

	var newInode func(ino uint32) Inode
	var inodeSize int64
	if signed {
		newInode = func(ino uint32) Inode { return NewDinodeS32(uint64(ino), blockSize) }
		inodeSize = signedSizeOf
	} else {
		newInode = func(ino uint32) Inode { return NewDinodePlain(uint64(ino)) }
		inodeSize = plainSizeOf
	}

	inodesPerBlock := blockSize / inodeSize
	ndinodeBlock := uint64(divide(int64(ninode), inodesPerBlock))
	if signed && int64(ndinodeBlock) > inodeSigSlotLimit {
		return nil, fmt.Errorf("pfs: %d inode blocks exceeds %d signable slots: %w", ndinodeBlock, inodeSigSlotLimit, ErrLayoutOverflow)
	}

	plan := &Plan{
		BlockSize:      blockSize,
		Signed:         signed,
		Header:         NewHeader(blockSize),
		Inodes:         make(map[uint32]Inode, ninode),
		DirentBlocks:   make(map[uint64][]byte),
		FileBlocks:     make(map[uint32][]uint64),
		IndirectBlocks: make(map[uint64][]byte),
		FileProducers:  make(map[uint32]ContentProducer),
		Ninode:         ninode,
		NdinodeBlock:   ndinodeBlock,
		FlatPathInode:  InoFlatPathTable,
	}

	for ino := uint32(0); ino < uint32(ninode); ino++ {
		plan.Inodes[ino] = newInode(ino)
	}

	for i := uint64(0); i < ndinodeBlock; i++ {
		plan.Header.SetDinodeBlockDirect(int(i), uint32(1+i))
		if signed {
			plan.SignQueue = append(plan.SignQueue, SignEntry{
				BlockIndex: 1 + i,
				SigOffset:  DinodeSigOffset(int(i)),
				Span:       blockSize,
			})
		}
	}

	nextBlock := uint64(1 + ndinodeBlock)

	flatPathEntries := CollectFlatPathEntries(tree, func(n interface{}) uint32 { return inoOf[n] })
	plan.FlatPathBytes = EncodeFlatPathTable(flatPathEntries)
	plan.FileProducers[InoFlatPathTable] = func(w io.Writer) error {
		_, err := w.Write(plan.FlatPathBytes)
		return err
	}

	superRootBlock := nextBlock
	nextBlock++

	fptInode := plan.Inodes[InoFlatPathTable]
	fptBlocks := allocateBlocks(divide(int64(len(plan.FlatPathBytes)), blockSize), &nextBlock)
	wireBlocks(plan, fptInode, fptBlocks, &nextBlock)
	plan.FileBlocks[InoFlatPathTable] = fptBlocks
	setInodeCommon(fptInode, InodeModeFile, 1, int64(len(plan.FlatPathBytes)), signed, true)

	plan.ReservedBlock = nextBlock
	nextBlock++
	plan.EmptyBlock = nextBlock
	nextBlock++

	for _, d := range dirsInOrder {
		ino := inoOf[d]
		inode := plan.Inodes[ino]
		entries := buildDirentEntries(d, ino, inoOf)
		blocks := packDirentBlocks(entries, blockSize, &nextBlock, plan.DirentBlocks)
		wireBlocks(plan, inode, blocks, &nextBlock)
		d.Dirents = entries
		// Every directory's Nlink is 2 (".", the parent's entry for it)
		// plus one per child directory. uroot's self-referential ".."
		// is an extra link nobody else contributes, so its base is 3.
		nlinkBase := uint32(2)
		if ino == InoURoot {
			nlinkBase = 3
		}
		setInodeCommon(inode, InodeModeDir, nlinkBase+uint32(len(d.Dirs)), 0, signed, ino == InoURoot)
	}

	for _, fp := range filePairs {
		ino := inoOf[fp.file]
		inode := plan.Inodes[ino]
		blocks := allocateBlocks(divide(fp.file.Size, blockSize), &nextBlock)
		wireBlocks(plan, inode, blocks, &nextBlock)
		plan.FileBlocks[ino] = blocks
		plan.FileProducers[ino] = fp.file.Produce
		setInodeCommon(inode, InodeModeFile, 1, fp.file.Size, signed, false)
		if fp.file.Compress {
			inode.SetFlags(inode.Flags() | FlagCompressed)
		}
		cs := fp.file.CompressedSize
		if cs == 0 {
			cs = fp.file.Size
		}
		inode.SetCompressedSize(uint64(cs))
	}

	// Super-root dirents: self, parent (self-referential), flat path
	// table, uroot.
	superEntries := []Dirent{
		{Name: ".", Ino: InoSuperRoot, Kind: DirentSelf},
		{Name: "..", Ino: InoSuperRoot, Kind: DirentParent},
		{Name: nameFlatPathTable, Ino: InoFlatPathTable, Kind: DirentFile},
		{Name: nameURoot, Ino: InoURoot, Kind: DirentDirectory},
	}
	superBuf := make([]byte, 0, blockSize)
	for _, e := range superEntries {
		superBuf = encodeDirent(superBuf, e)
	}
	superBuf = append(superBuf, make([]byte, blockSize-int64(len(superBuf)))...)
	plan.DirentBlocks[superRootBlock] = superBuf
	superInode := plan.Inodes[InoSuperRoot]
	wireBlocks(plan, superInode, []uint64{superRootBlock}, &nextBlock)
	setInodeCommon(superInode, InodeModeDir, 3, 0, signed, true)

	mode := uint32(0)
	if signed {
		mode |= ModeSigned
	}
	plan.Header.SetMode(mode)
	plan.Header.SetBlockSize(uint32(blockSize))
	plan.Header.SetNinode(ninode)
	plan.Header.SetNdinodeblock(ndinodeBlock)

	if signed {
		// Inode-table blocks hold every node's per-slot signatures, so
		// they are queued again here, after all of those entries, and
		// these later tags overwrite the ones from the entries queued
		// above. The header, whose span covers the inode-block signature
		// area, comes last.
		for i := uint64(0); i < ndinodeBlock; i++ {
			plan.SignQueue = append(plan.SignQueue, SignEntry{
				BlockIndex: 1 + i,
				SigOffset:  DinodeSigOffset(int(i)),
				Span:       blockSize,
			})
		}
		plan.SignQueue = append(plan.SignQueue, SignEntry{
			BlockIndex: 0,
			SigOffset:  HeaderSelfSigOffset,
			Span:       HeaderSelfSigSpan,
		})
	}

	plan.Ndblock = nextBlock
	plan.Header.SetNdblock(nextBlock)
	return plan, nil
}

func allocateBlocks(count int64, nextBlock *uint64) []uint64 {
	blocks := make([]uint64, 0, count)
	for i := int64(0); i < count; i++ {
		blocks = append(blocks, *nextBlock)
		*nextBlock++
	}
	return blocks
}

// wireBlocks wires a node's already-allocated data blocks into its
// inode's direct/single-indirect/doubly-indirect pointer slots,
// allocating whatever indirect pointer blocks are needed beyond the
// twelve direct slots, and (in the signed profile) records every
// signing-queue entry the node's blocks require. The data blocks
// themselves must already be reserved, in order; this call only
// reserves additional blocks to hold indirect pointer tables.
func wireBlocks(plan *Plan, ino Inode, blocks []uint64, nextBlock *uint64) {
	if plan.Signed {
		wireBlocksSigned(plan, ino.(*DinodeS32), blocks, nextBlock)
		return
	}
	wireBlocksPlain(ino, blocks, plan.BlockSize, nextBlock, plan.IndirectBlocks)
}

// wireBlocksPlain implements the unsigned (inner) profile: direct pointers
// followed by a plain 8-byte-per-entry pointer table for single- and
// doubly-indirect blocks. No signing queue exists in this profile.
func wireBlocksPlain(ino Inode, blocks []uint64, blockSize int64, nextBlock *uint64, indirectStore map[uint64][]byte) {
	ino.SetBlocks(uint64(len(blocks)))

	direct := blocks
	if int64(len(direct)) > directBlocks {
		direct = blocks[:directBlocks]
	}
	for i, b := range direct {
		ino.SetDirectBlock(i, b)
	}

	remaining := blocks[len(direct):]
	if len(remaining) == 0 {
		return
	}

	ptrsPerBlock := blockSize / 8

	single := remaining
	if int64(len(single)) > ptrsPerBlock {
		single = remaining[:ptrsPerBlock]
	}
	singleBlock := *nextBlock
	*nextBlock++
	ino.SetDirectBlock(indirectSlot, singleBlock)
	indirectStore[singleBlock] = encodePointerBlock(single, blockSize)
	ino.SetBlocks(ino.Blocks() + 1)

	remaining = remaining[len(single):]
	if len(remaining) == 0 {
		return
	}

	doublyBlock := *nextBlock
	*nextBlock++
	ino.SetDirectBlock(doublyIndirectSlot, doublyBlock)
	ino.SetBlocks(ino.Blocks() + 1)

	numIndirects := divide(int64(len(remaining)), ptrsPerBlock)
	doublyPtrs := make([]uint64, 0, numIndirects)
	for i := int64(0); i < numIndirects; i++ {
		end := (i + 1) * ptrsPerBlock
		if end > int64(len(remaining)) {
			end = int64(len(remaining))
		}
		chunk := remaining[i*ptrsPerBlock : end]

		indBlock := *nextBlock
		*nextBlock++
		doublyPtrs = append(doublyPtrs, indBlock)
		indirectStore[indBlock] = encodePointerBlock(chunk, blockSize)
		ino.SetBlocks(ino.Blocks() + 1)
	}
	indirectStore[doublyBlock] = encodePointerBlock(doublyPtrs, blockSize)
}

// encodePointerBlock serializes a list of block numbers as consecutive
// 8-byte little-endian values, zero-padding the remainder of the block.
// Zero is never a valid pointer (block 0 is always the header), so it
// also doubles as the "no entry" sentinel for unused trailing slots.
func encodePointerBlock(ptrs []uint64, blockSize int64) []byte {
	buf := make([]byte, blockSize)
	for i, p := range ptrs {
		binary.LittleEndian.PutUint64(buf[8*i:], p)
	}
	return buf
}

// wireBlocksSigned implements the signed (outer) profile. Every direct
// data block gets its own signing-queue entry whose tag lands in ino's
// own reserved per-slot signature area. Blocks beyond the twelve direct
// slots are indexed through indirect pointer blocks whose capacity is
// governed by sigsPerBlock (BlockSize/36), not BlockSize/8: per
// spec.md §4.5, a signed indirect block packs interleaved 36-byte
// (32-byte tag + 4-byte block index) slots, so the pointer table and the
// per-block signature array are the same structure — each slot is both
// "which block this points to" and "that block's signature", filled in
// by the Signer once the pointed-to block's final content is known.
//
// The indirect block's own content is, in turn, signed as a whole
// (reading back the slots the loop below has already queued) and that
// tag is stored in ino's reserved slot for index 12 (or 13, for the
// doubly-indirect block) — so each "whole block" entry is queued after
// the entries for its own interior slots, guaranteeing the signer (which
// processes the queue in order) writes every interior slot before it
// hashes the block that contains them.
func wireBlocksSigned(plan *Plan, ino *DinodeS32, blocks []uint64, nextBlock *uint64) {
	ino.SetBlocks(uint64(len(blocks)))

	direct := blocks
	if int64(len(direct)) > directBlocks {
		direct = blocks[:directBlocks]
	}
	for i, b := range direct {
		ino.SetDirectBlock(i, b)
		plan.SignQueue = append(plan.SignQueue, SignEntry{
			BlockIndex: b,
			SigOffset:  ino.DirectBlockOffset(i),
			Span:       plan.BlockSize,
		})
	}

	remaining := blocks[len(direct):]
	if len(remaining) == 0 {
		return
	}

	sigsPerBlock := plan.BlockSize / sigEntrySize

	single := remaining
	if int64(len(single)) > sigsPerBlock {
		single = remaining[:sigsPerBlock]
	}
	singleBlock := *nextBlock
	*nextBlock++
	ino.SetDirectBlock(indirectSlot, singleBlock)
	plan.IndirectBlocks[singleBlock] = make([]byte, plan.BlockSize)
	ino.SetBlocks(ino.Blocks() + 1)
	for i, b := range single {
		plan.SignQueue = append(plan.SignQueue, SignEntry{
			BlockIndex: b,
			SigOffset:  int64(singleBlock)*plan.BlockSize + int64(i)*sigEntrySize,
			Span:       plan.BlockSize,
		})
	}
	plan.SignQueue = append(plan.SignQueue, SignEntry{
		BlockIndex: singleBlock,
		SigOffset:  ino.DirectBlockOffset(indirectSlot),
		Span:       plan.BlockSize,
	})

	remaining = remaining[len(single):]
	if len(remaining) == 0 {
		return
	}

	doublyBlock := *nextBlock
	*nextBlock++
	ino.SetDirectBlock(doublyIndirectSlot, doublyBlock)
	plan.IndirectBlocks[doublyBlock] = make([]byte, plan.BlockSize)
	ino.SetBlocks(ino.Blocks() + 1)

	numIndirects := divide(int64(len(remaining)), sigsPerBlock)
	for i := int64(0); i < numIndirects; i++ {
		end := (i + 1) * sigsPerBlock
		if end > int64(len(remaining)) {
			end = int64(len(remaining))
		}
		chunk := remaining[i*sigsPerBlock : end]

		indBlock := *nextBlock
		*nextBlock++
		plan.IndirectBlocks[indBlock] = make([]byte, plan.BlockSize)
		ino.SetBlocks(ino.Blocks() + 1)
		for j, b := range chunk {
			plan.SignQueue = append(plan.SignQueue, SignEntry{
				BlockIndex: b,
				SigOffset:  int64(indBlock)*plan.BlockSize + int64(j)*sigEntrySize,
				Span:       plan.BlockSize,
			})
		}
		plan.SignQueue = append(plan.SignQueue, SignEntry{
			BlockIndex: indBlock,
			SigOffset:  int64(doublyBlock)*plan.BlockSize + i*sigEntrySize,
			Span:       plan.BlockSize,
		})
	}
	plan.SignQueue = append(plan.SignQueue, SignEntry{
		BlockIndex: doublyBlock,
		SigOffset:  ino.DirectBlockOffset(doublyIndirectSlot),
		Span:       plan.BlockSize,
	})
}

func setInodeCommon(ino Inode, mode uint16, nlink uint32, size int64, signed, clearReadonly bool) {
	ino.SetMode(mode | permReadExec)
	ino.SetNlink(nlink)
	ino.SetSize(uint64(size))
	flags := FlagReadonly | FlagInternal
	if signed {
		flags |= flagUnknown1
	}
	if clearReadonly {
		flags &^= FlagReadonly
	}
	ino.SetFlags(flags)
}

func buildDirentEntries(d *Directory, ino uint32, inoOf map[interface{}]uint32) []Dirent {
	parentIno := uint32(InoSuperRoot)
	switch {
	case ino == InoURoot:
		// uroot has no parent in the tree; per spec.md §4.2 its own ".."
		// is self-referential, pointing back at inode 2.
		parentIno = InoURoot
	case d.Parent != nil:
		parentIno = inoOf[d.Parent]
	}
	entries := []Dirent{
		{Name: ".", Ino: ino, Kind: DirentSelf},
		{Name: "..", Ino: parentIno, Kind: DirentParent},
	}
	for _, sub := range d.Dirs {
		entries = append(entries, Dirent{Name: sub.Name, Ino: inoOf[sub], Kind: DirentDirectory})
	}
	for _, f := range d.Files {
		entries = append(entries, Dirent{Name: f.Name, Ino: inoOf[f], Kind: DirentFile})
	}
	return entries
}

// packDirentBlocks serializes entries into one or more block-sized,
// zero-padded buffers, spilling into a new block whenever the next entry
// would overflow the current one.
func packDirentBlocks(entries []Dirent, blockSize int64, nextBlock *uint64, store map[uint64][]byte) []uint64 {
	var blocks []uint64
	cur := make([]byte, 0, blockSize)
	flush := func() {
		if len(cur) == 0 && len(blocks) > 0 {
			return
		}
		padded := make([]byte, blockSize)
		copy(padded, cur)
		b := *nextBlock
		*nextBlock++
		store[b] = padded
		blocks = append(blocks, b)
		cur = cur[:0]
	}
	for _, e := range entries {
		if int64(len(cur))+direntSize(e) > blockSize {
			flush()
		}
		cur = encodeDirent(cur, e)
	}
	flush()
	return blocks
}
