package pfs

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/orbispfs/pfsimage/pfscrypto"
)

func buildImage(t *testing.T, root *Directory, sign, encrypt bool, ekpfs []byte) (*Builder, *MemorySink) {
	t.Helper()
	b, err := NewBuilder(BuilderArgs{
		Root:     root,
		Sign:     sign,
		Encrypt:  encrypt,
		EKPFS:    ekpfs,
		FileTime: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	sink := NewMemorySink()
	if err := b.Build(sink); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return b, sink
}

func headerField(buf []byte, off int64, n int) uint64 {
	switch n {
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf[off:]))
	case 8:
		return binary.LittleEndian.Uint64(buf[off:])
	default:
		panic("bad field width")
	}
}

func TestEmptyTreeUnsigned(t *testing.T) {
	root := NewRoot()
	b, sink := buildImage(t, root, false, false, nil)

	size, err := b.CalculatePfsSize()
	if err != nil {
		t.Fatalf("CalculatePfsSize: %v", err)
	}
	if int64(len(sink.Bytes())) != size {
		t.Fatalf("sink size %d != reported size %d", len(sink.Bytes()), size)
	}

	buf := sink.Bytes()
	ninode := headerField(buf, hdrOffNinode, 8)
	if ninode != 3 {
		t.Fatalf("Ninode = %d, want 3 (super-root, fpt, uroot)", ninode)
	}
	ndblock := headerField(buf, hdrOffNdblock, 8)
	if ndblock < 6 {
		t.Fatalf("Ndblock = %d, want at least 6", ndblock)
	}
}

func TestSingleFileUnsigned(t *testing.T) {
	root := NewRoot()
	content := []byte("hello pfs")
	root.AddFile("hello.txt", int64(len(content)), 0, false, func(w io.Writer) error {
		_, err := w.Write(content)
		return err
	})

	b, sink := buildImage(t, root, false, false, nil)
	plan := b.Plan()
	if plan.Ninode != 4 {
		t.Fatalf("Ninode = %d, want 4", plan.Ninode)
	}

	blocks := plan.FileBlocks[uint32(firstDynamicInode)]
	if len(blocks) != 1 {
		t.Fatalf("expected single-block file, got %d blocks", len(blocks))
	}
	off := int64(blocks[0]) * plan.BlockSize
	got := sink.Bytes()[off : off+int64(len(content))]
	if !bytes.Equal(got, content) {
		t.Fatalf("file content = %q, want %q", got, content)
	}
}

func TestDeepTreeNlinkAndDirents(t *testing.T) {
	root := NewRoot()
	a := root.AddDir("a")
	b := a.AddDir("b")
	b.AddDir("c")
	b.AddFile("leaf.bin", 4, 0, false, func(w io.Writer) error {
		_, err := w.Write([]byte{1, 2, 3, 4})
		return err
	})

	builder, sink := buildImage(t, root, false, false, nil)
	plan := builder.Plan()

	bIno := uint32(0)
	for ino := uint32(firstDynamicInode); ino < uint32(plan.Ninode); ino++ {
		if plan.Inodes[ino].Nlink() == 3 {
			bIno = ino
		}
	}
	if bIno == 0 {
		t.Fatalf("no directory inode with nlink 3 found (expected directory b, which has one subdirectory)")
	}

	// Inodes are allocated a=3, b=4, c=5 (directories in pre-order), then
	// leaf.bin=6.
	wantDirents := []Dirent{
		{Name: ".", Ino: 4, Kind: DirentSelf},
		{Name: "..", Ino: 3, Kind: DirentParent},
		{Name: "c", Ino: 5, Kind: DirentDirectory},
		{Name: "leaf.bin", Ino: 6, Kind: DirentFile},
	}
	if len(b.Dirents) != len(wantDirents) {
		t.Fatalf("b has %d dirents, want %d", len(b.Dirents), len(wantDirents))
	}
	for i, want := range wantDirents {
		if b.Dirents[i] != want {
			t.Fatalf("b dirent %d = %+v, want %+v", i, b.Dirents[i], want)
		}
	}
	_ = sink
}

func TestSignOnlyQueueVerifiesUnderRecomputation(t *testing.T) {
	root := NewRoot()
	root.AddFile("f", 10, 0, false, func(w io.Writer) error {
		_, err := w.Write(bytes.Repeat([]byte{0x42}, 10))
		return err
	})

	ekpfs := bytes.Repeat([]byte{0x01}, pfscrypto.KeySize)
	_, sink := buildImage(t, root, true, false, ekpfs)

	signKey := pfscrypto.PfsGenSignKey(ekpfs, make([]byte, 16))
	buf := sink.Bytes()

	// Recompute the header's own self-signature and confirm it matches
	// what Build wrote, proving the signer zeroed the slot before
	// hashing rather than including its own (unknown) tag.
	span := make([]byte, HeaderSelfSigSpan)
	copy(span, buf[:HeaderSelfSigSpan])
	for i := int64(HeaderSelfSigOffset); i < HeaderSelfSigOffset+36; i++ {
		span[i] = 0
	}
	wantTag := pfscrypto.SignBlock(signKey, span)
	gotTag := buf[HeaderSelfSigOffset : HeaderSelfSigOffset+32]
	if !bytes.Equal(gotTag, wantTag[:]) {
		t.Fatalf("header self-signature mismatch")
	}
}

func TestSignAndEncryptLeavesHeaderPlaintext(t *testing.T) {
	root := NewRoot()
	root.AddFile("f", 10, 0, false, func(w io.Writer) error {
		_, err := w.Write(bytes.Repeat([]byte{0x77}, 10))
		return err
	})

	ekpfs := bytes.Repeat([]byte{0x02}, pfscrypto.KeySize)
	builder, sink := buildImage(t, root, true, true, ekpfs)
	plan := builder.Plan()

	buf := sink.Bytes()
	mode := headerField(buf, hdrOffMode, 4)
	if mode&uint64(ModeSigned) == 0 {
		t.Fatalf("header mode missing ModeSigned bit")
	}

	// The file's data block should no longer equal the plaintext content,
	// since XTS encryption ran over it.
	blocks := plan.FileBlocks[uint32(firstDynamicInode)]
	if len(blocks) != 1 {
		t.Fatalf("expected one data block, got %d", len(blocks))
	}
	off := int64(blocks[0]) * plan.BlockSize
	got := buf[off : off+10]
	if bytes.Equal(got, bytes.Repeat([]byte{0x77}, 10)) {
		t.Fatalf("file block was not encrypted")
	}
}

func TestLargeFileUsesSingleIndirectBlock(t *testing.T) {
	root := NewRoot()
	size := 13 * DefaultBlockSize
	root.AddFile("big.bin", int64(size), 0, false, func(w io.Writer) error {
		_, err := io.CopyN(w, zeroReader{}, int64(size))
		return err
	})

	builder, _ := buildImage(t, root, false, false, nil)
	plan := builder.Plan()

	fileIno := uint32(firstDynamicInode)
	inode := plan.Inodes[fileIno]
	if inode.DirectBlock(indirectSlot) == unusedDirectSentinel {
		t.Fatalf("expected single-indirect slot to be populated for a 13-block file")
	}
	if inode.DirectBlock(doublyIndirectSlot) != unusedDirectSentinel {
		t.Fatalf("did not expect doubly-indirect slot for a 13-block file")
	}

	blocks := plan.FileBlocks[fileIno]
	if len(blocks) != 13 {
		t.Fatalf("FileBlocks length = %d, want 13", len(blocks))
	}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestConfigMismatchWithoutEKPFS(t *testing.T) {
	_, err := NewBuilder(BuilderArgs{Root: NewRoot(), Sign: true})
	if err == nil {
		t.Fatalf("expected ErrConfigMismatch")
	}
}

func TestInvalidTreeRejectsDuplicateNames(t *testing.T) {
	root := NewRoot()
	root.AddDir("dup")
	root.AddDir("dup")

	_, err := PlanLayout(root, DefaultBlockSize, false)
	if err == nil {
		t.Fatalf("expected ErrInvalidTree for duplicate directory name")
	}
}
