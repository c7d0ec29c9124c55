package pfs

import (
	"encoding/binary"
	"testing"
)

func TestDinodePlainUnusedDirectSentinel(t *testing.T) {
	d := NewDinodePlain(7)
	for i := 0; i < directSlotCount; i++ {
		if d.DirectBlock(i) != unusedDirectSentinel {
			t.Fatalf("direct slot %d = %d, want sentinel", i, d.DirectBlock(i))
		}
	}
	d.SetDirectBlock(0, 99)
	if d.DirectBlock(0) != 99 {
		t.Fatalf("DirectBlock(0) = %d, want 99", d.DirectBlock(0))
	}
	if int64(len(d.Encode())) != d.SizeOf() {
		t.Fatalf("Encode length = %d, want %d", len(d.Encode()), d.SizeOf())
	}
}

func TestDinodeS32DirectBlockOffsetFormula(t *testing.T) {
	d := NewDinodeS32(5, DefaultBlockSize)
	got := d.DirectBlockOffset(0)
	want := int64(DefaultBlockSize) + d.SizeOf()*5 + signedOffSigArea
	if got != want {
		t.Fatalf("DirectBlockOffset(0) = %d, want %d", got, want)
	}
	if d.DirectBlockOffset(1)-d.DirectBlockOffset(0) != sigEntrySize {
		t.Fatalf("DirectBlockOffset spacing = %d, want %d", d.DirectBlockOffset(1)-d.DirectBlockOffset(0), sigEntrySize)
	}
}

func TestInodeTimestampsAndSize(t *testing.T) {
	d := NewDinodePlain(1)
	d.SetSize(4096)
	d.SetCompressedSize(2048)
	d.SetTimestamps(1577836800)
	if d.Size() != 4096 {
		t.Fatalf("Size() = %d, want 4096", d.Size())
	}
	buf := d.Encode()
	for _, off := range []int{plainOffATime, plainOffMTime, plainOffCTime} {
		if got := binary.LittleEndian.Uint64(buf[off:]); got != 1577836800 {
			t.Fatalf("timestamp at 0x%X = %d, want 1577836800", off, got)
		}
	}
}
