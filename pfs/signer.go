package pfs

import (
	"fmt"
	"io"

	"github.com/orbispfs/pfsimage/pfscrypto"
)

// Signer walks a signing queue and writes one HMAC-SHA256 tag plus
// covered-block index per entry, exactly the way the signed PFS profile
// expects: every direct data block, every populated indirect pointer
// block, every inode-table block, and finally the header's own
// self-signature.
type Signer struct {
	sink      ImageSink
	blockSize int64
	signKey   []byte
}

// NewSigner returns a Signer that reads from and writes into sink using
// signKey, typically produced by pfscrypto.PfsGenSignKey.
func NewSigner(sink ImageSink, blockSize int64, signKey []byte) *Signer {
	return &Signer{sink: sink, blockSize: blockSize, signKey: signKey}
}

// Sign processes queue in order. The header's self-signature entry must
// be last in queue (PlanLayout appends it last) since it is the only
// entry whose hashed span includes its own write offset.
func (s *Signer) Sign(queue []SignEntry) error {
	for _, entry := range queue {
		if err := s.signOne(entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *Signer) signOne(entry SignEntry) error {
	blockStart := int64(entry.BlockIndex) * s.blockSize
	buf := make([]byte, entry.Span)
	n, err := s.sink.ReadAt(buf, blockStart)
	if err != nil && !(err == io.EOF && int64(n) == entry.Span) {
		return fmt.Errorf("pfs: read block %d for signing: %w", entry.BlockIndex, ErrIoFailure)
	}

	// Self-referential entries (the header signing its own bytes) must
	// hash the signature slot as zero, since the real tag isn't known
	// until after the hash is computed.
	if entry.SigOffset >= blockStart && entry.SigOffset+36 <= blockStart+entry.Span {
		local := entry.SigOffset - blockStart
		for i := local; i < local+36; i++ {
			buf[i] = 0
		}
	}

	tag := pfscrypto.SignBlock(s.signKey, buf)
	sigBuf := make([]byte, 36)
	WriteSignature(sigBuf, 0, tag, uint32(entry.BlockIndex))
	if _, err := s.sink.WriteAt(sigBuf, entry.SigOffset); err != nil {
		return fmt.Errorf("pfs: write signature at offset %d: %w", entry.SigOffset, ErrIoFailure)
	}
	return nil
}
