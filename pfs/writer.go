package pfs

import (
	"fmt"
	"io"
	"sort"

	"github.com/orbispfs/pfsimage/pfslog"
)

// Writer streams a Plan's content into an ImageSink in the same six
// phases the reference layout implies: header, inode table, directory
// entries, indirect pointer tables, file content, and a final
// size-fixing truncate.
type Writer struct {
	plan   *Plan
	sink   ImageSink
	logger pfslog.Logger
}

// NewWriter returns a Writer for plan that streams into sink. A nil
// logger is replaced with pfslog.Nop.
func NewWriter(plan *Plan, sink ImageSink, logger pfslog.Logger) *Writer {
	if logger == nil {
		logger = pfslog.Nop
	}
	return &Writer{plan: plan, sink: sink, logger: logger}
}

// WriteImage writes every block the plan describes and extends the sink
// to the image's full size.
func (w *Writer) WriteImage() error {
	w.logger.Debugf("pfs: writing header")
	if _, err := w.sink.WriteAt(w.plan.Header.Bytes(), 0); err != nil {
		return fmt.Errorf("pfs: write header: %w", ErrIoFailure)
	}

	if err := w.writeInodeTable(); err != nil {
		return err
	}
	if err := w.writeBlockMap(w.plan.DirentBlocks, "directory entries"); err != nil {
		return err
	}
	if err := w.writeBlockMap(w.plan.IndirectBlocks, "indirect pointer tables"); err != nil {
		return err
	}
	if err := w.writeFileContent(); err != nil {
		return err
	}

	finalSize := int64(w.plan.Ndblock) * w.plan.BlockSize
	w.logger.Debugf("pfs: truncating image to %d bytes", finalSize)
	if err := w.sink.Truncate(finalSize); err != nil {
		return fmt.Errorf("pfs: truncate image: %w", ErrIoFailure)
	}
	return nil
}

func (w *Writer) inodeSize() int64 {
	if w.plan.Signed {
		return signedSizeOf
	}
	return plainSizeOf
}

// writeInodeTable places every inode's record at its block-boundary-aware
// offset: inodes are packed inodesPerBlock-to-a-block, and any bytes left
// over at the end of a block (when the record size doesn't divide the
// block size evenly) are skipped rather than treated as part of the next
// inode's record.
func (w *Writer) writeInodeTable() error {
	w.logger.Debugf("pfs: writing %d inodes across %d blocks", w.plan.Ninode, w.plan.NdinodeBlock)
	inodesPerBlock := w.plan.BlockSize / w.inodeSize()

	for ino := uint32(0); ino < uint32(w.plan.Ninode); ino++ {
		inode := w.plan.Inodes[ino]
		blockIndex := int64(ino) / inodesPerBlock
		offsetInBlock := (int64(ino) % inodesPerBlock) * w.inodeSize()
		absolute := (1+blockIndex)*w.plan.BlockSize + offsetInBlock
		if _, err := w.sink.WriteAt(inode.Encode(), absolute); err != nil {
			return fmt.Errorf("pfs: write inode %d: %w", ino, ErrIoFailure)
		}
	}
	return nil
}

func (w *Writer) writeBlockMap(blocks map[uint64][]byte, label string) error {
	if len(blocks) == 0 {
		return nil
	}
	indices := make([]uint64, 0, len(blocks))
	for idx := range blocks {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	w.logger.Debugf("pfs: writing %d %s blocks", len(indices), label)
	for _, idx := range indices {
		if _, err := w.sink.WriteAt(blocks[idx], int64(idx)*w.plan.BlockSize); err != nil {
			return fmt.Errorf("pfs: write %s block %d: %w", label, idx, ErrIoFailure)
		}
	}
	return nil
}

// writeFileContent invokes each file's producer and streams its output
// across the blocks the planner reserved for it, zero-padding the final
// block if the producer's output is shorter than the reserved space and
// failing if it overruns it.
func (w *Writer) writeFileContent() error {
	inos := make([]uint32, 0, len(w.plan.FileBlocks))
	for ino := range w.plan.FileBlocks {
		inos = append(inos, ino)
	}
	sort.Slice(inos, func(i, j int) bool { return inos[i] < inos[j] })

	for _, ino := range inos {
		blocks := w.plan.FileBlocks[ino]
		if len(blocks) == 0 {
			continue
		}
		produce := w.plan.FileProducers[ino]
		if produce == nil {
			continue
		}

		sw := &spanWriter{sink: w.sink, blocks: blocks, blockSize: w.plan.BlockSize}
		if err := produce(sw); err != nil {
			return fmt.Errorf("pfs: produce content for inode %d: %w", ino, ErrIoFailure)
		}
		if err := sw.finish(); err != nil {
			return err
		}
	}
	return nil
}

// spanWriter is an io.Writer that fans writes out across a fixed,
// pre-allocated sequence of equal-sized blocks in an ImageSink, exactly
// the way a file's content producer expects to stream into its reserved
// space without knowing block geometry itself.
type spanWriter struct {
	sink      ImageSink
	blocks    []uint64
	blockSize int64
	written   int64
}

func (s *spanWriter) Write(p []byte) (int, error) {
	total := int64(len(s.blocks)) * s.blockSize
	if s.written+int64(len(p)) > total {
		return 0, fmt.Errorf("pfs: content producer overran its reserved blocks: %w", ErrLayoutOverflow)
	}
	off := s.absoluteOffset(s.written)
	n, err := s.sink.WriteAt(p, off)
	s.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("pfs: stream file content: %w", ErrIoFailure)
	}
	return n, nil
}

func (s *spanWriter) absoluteOffset(logical int64) int64 {
	blockNum := s.blocks[logical/s.blockSize]
	return int64(blockNum)*s.blockSize + logical%s.blockSize
}

// finish zero-fills whatever the producer left unwritten in the final
// reserved block, so partial last blocks never contain stale sink bytes.
func (s *spanWriter) finish() error {
	total := int64(len(s.blocks)) * s.blockSize
	if s.written >= total {
		return nil
	}
	pad := make([]byte, total-s.written)
	if _, err := s.Write(pad); err != nil {
		return err
	}
	return nil
}

var _ io.Writer = (*spanWriter)(nil)
