package pfs

import (
	"encoding/binary"
	"testing"
)

func TestHeaderFieldRoundTrip(t *testing.T) {
	h := NewHeader(DefaultBlockSize)
	h.SetBlockSize(DefaultBlockSize)
	h.SetNdblock(123)
	h.SetNinode(45)
	h.SetNdinodeblock(2)
	h.SetSeed([16]byte{1, 2, 3})

	if got := h.Seed(); got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("Seed() = %v", got)
	}
	buf := h.Bytes()
	if got := binary.LittleEndian.Uint64(buf[hdrOffNdblock:]); got != 123 {
		t.Fatalf("Ndblock = %d, want 123", got)
	}
	if got := binary.LittleEndian.Uint64(buf[hdrOffNinode:]); got != 45 {
		t.Fatalf("Ninode = %d, want 45", got)
	}
	if got := binary.LittleEndian.Uint64(buf[hdrOffNdinodeblock:]); got != 2 {
		t.Fatalf("Ndinodeblock = %d, want 2", got)
	}
	if len(h.Bytes()) != DefaultBlockSize {
		t.Fatalf("header buffer size = %d, want %d", len(h.Bytes()), DefaultBlockSize)
	}
}

func TestDinodeSigOffsetSpacing(t *testing.T) {
	if DinodeSigOffset(0) != hdrOffDinodeSigArea {
		t.Fatalf("DinodeSigOffset(0) = %d, want %d", DinodeSigOffset(0), hdrOffDinodeSigArea)
	}
	if DinodeSigOffset(1)-DinodeSigOffset(0) != sigEntrySize {
		t.Fatalf("DinodeSigOffset spacing = %d, want %d", DinodeSigOffset(1)-DinodeSigOffset(0), sigEntrySize)
	}
}

func TestEncodeDirentSize(t *testing.T) {
	d := Dirent{Name: "uroot", Ino: 2, Kind: DirentDirectory}
	buf := encodeDirent(nil, d)
	if int64(len(buf)) != direntSize(d) {
		t.Fatalf("encodeDirent length = %d, want %d", len(buf), direntSize(d))
	}
	if buf[0] != byte(DirentDirectory) {
		t.Fatalf("kind byte = %d, want %d", buf[0], DirentDirectory)
	}
	if buf[1] != byte(len("uroot")) {
		t.Fatalf("name length byte = %d, want %d", buf[1], len("uroot"))
	}
}

func TestInodeSigSlotLimitPositive(t *testing.T) {
	if inodeSigSlotLimit <= 0 {
		t.Fatalf("inodeSigSlotLimit = %d, must be positive", inodeSigSlotLimit)
	}
}
