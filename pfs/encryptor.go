package pfs

import (
	"fmt"
	"io"

	"github.com/orbispfs/pfsimage/pfscrypto"
)

const sectorSize = 4096

// Encryptor applies XTS-AES-128 sector encryption to a finished,
// plaintext image in place. The header block is never encrypted (a
// reader must be able to parse it before it can derive any key), and the
// plan's single reserved empty block is skipped unconditionally,
// matching the reference tool's behavior of leaving it as plaintext
// zeros regardless of what the image otherwise contains.
type Encryptor struct {
	sink      ImageSink
	blockSize int64
	xts       *pfscrypto.XTS
}

// NewEncryptor returns an Encryptor that encrypts sink's sectors with
// xts, typically built from pfscrypto.PfsGenEncKey.
func NewEncryptor(sink ImageSink, blockSize int64, xts *pfscrypto.XTS) *Encryptor {
	return &Encryptor{sink: sink, blockSize: blockSize, xts: xts}
}

// EncryptImage walks every sector from the end of block 0 through
// ndblock, skipping emptyBlock's sectors.
func (e *Encryptor) EncryptImage(ndblock, emptyBlock uint64) error {
	sectorsPerBlock := e.blockSize / sectorSize
	firstSector := uint64(sectorsPerBlock)
	totalSectors := ndblock * uint64(sectorsPerBlock)

	for sector := firstSector; sector < totalSectors; sector++ {
		if sector/uint64(sectorsPerBlock) == emptyBlock {
			continue
		}

		off := int64(sector) * sectorSize
		buf := make([]byte, sectorSize)
		n, err := e.sink.ReadAt(buf, off)
		if err != nil && !(err == io.EOF && n == sectorSize) {
			return fmt.Errorf("pfs: read sector %d for encryption: %w", sector, ErrIoFailure)
		}

		if err := e.xts.EncryptSector(buf, sector); err != nil {
			return fmt.Errorf("pfs: encrypt sector %d: %w", sector, err)
		}

		if _, err := e.sink.WriteAt(buf, off); err != nil {
			return fmt.Errorf("pfs: write encrypted sector %d: %w", sector, ErrIoFailure)
		}
	}
	return nil
}
