package pfs

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeFlatPathTableRoundTrips(t *testing.T) {
	entries := []FlatPathEntry{
		{Path: "/uroot", Ino: 2},
		{Path: "/uroot/file.bin", Ino: 3},
	}

	buf := EncodeFlatPathTable(entries)

	off := 0
	for _, want := range entries {
		length := binary.LittleEndian.Uint16(buf[off:])
		off += 2
		path := string(buf[off : off+int(length)])
		off += int(length)
		ino := binary.LittleEndian.Uint32(buf[off:])
		off += 4

		if path != want.Path {
			t.Fatalf("path = %q, want %q", path, want.Path)
		}
		if ino != want.Ino {
			t.Fatalf("ino = %d, want %d", ino, want.Ino)
		}
	}

	terminator := buf[off : off+2]
	if !bytes.Equal(terminator, []byte{0, 0}) {
		t.Fatalf("missing zero-length terminator row")
	}
}

func TestCollectFlatPathEntriesSorted(t *testing.T) {
	root := NewRoot()
	root.AddFile("z", 0, 0, false, nil)
	sub := root.AddDir("a")
	sub.AddFile("inner", 0, 0, false, nil)

	inoOf := map[interface{}]uint32{}
	n := uint32(2)
	walkDirsPreOrder(root, func(d *Directory) {
		inoOf[d] = n
		n++
		for _, f := range d.Files {
			inoOf[f] = n
			n++
		}
	})

	entries := CollectFlatPathEntries(root, func(node interface{}) uint32 { return inoOf[node] })
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Path > entries[i].Path {
			t.Fatalf("entries not sorted: %q before %q", entries[i-1].Path, entries[i].Path)
		}
	}
}
