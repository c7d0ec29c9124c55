package pfs

import (
	"fmt"
	"io"
)

// ImageSink is the destination the writer, signer, and encryptor all
// operate on. An *os.File satisfies it directly; MemorySink exists so
// tests don't need a scratch file on disk.
type ImageSink interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
}

// MemorySink is an in-memory ImageSink, grown on demand by WriteAt and
// Truncate. It exists purely for tests.
type MemorySink struct {
	buf []byte
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

// Bytes returns the sink's current backing buffer. The caller must not
// retain it across further writes.
func (m *MemorySink) Bytes() []byte { return m.buf }

func (m *MemorySink) grow(size int64) {
	if int64(len(m.buf)) >= size {
		return
	}
	grown := make([]byte, size)
	copy(grown, m.buf)
	m.buf = grown
}

func (m *MemorySink) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("pfs: negative offset: %w", ErrIoFailure)
	}
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemorySink) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("pfs: negative offset: %w", ErrIoFailure)
	}
	m.grow(off + int64(len(p)))
	copy(m.buf[off:], p)
	return len(p), nil
}

func (m *MemorySink) Truncate(size int64) error {
	if size < 0 {
		return fmt.Errorf("pfs: negative truncate size: %w", ErrIoFailure)
	}
	if size <= int64(len(m.buf)) {
		m.buf = m.buf[:size]
		return nil
	}
	m.grow(size)
	return nil
}
