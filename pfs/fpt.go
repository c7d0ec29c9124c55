package pfs

import (
	"encoding/binary"
	"path"
	"sort"
)

// FlatPathEntry is one row of the flat path table: the absolute path of a
// directory or file and the inode number it resolves to. The flat path
// table exists so a reader can resolve any path to an inode in one linear
// scan instead of walking directory entries level by level.
type FlatPathEntry struct {
	Path string
	Ino  uint32
}

// flatPathEntrySize is the serialized size of one row, which depends on
// its path length: a 2-byte LE path length, up to 65535 bytes of path, and
// a 4-byte LE inode number.
func flatPathEntrySize(e FlatPathEntry) int64 {
	return 2 + int64(len(e.Path)) + 4
}

// CollectFlatPathEntries walks the tree (rooted at uroot, path "/") and
// returns one entry per directory and file, plus the flat-path-table
// pseudo-file's own entry (it lives under super-root, not under uroot,
// but the flat path table still records it so a reader can resolve
// "/flat_path_table" in the same linear scan). The super-root itself has
// no entry; it is never addressed by path.
func CollectFlatPathEntries(root *Directory, inoOf func(interface{}) uint32) []FlatPathEntry {
	entries := []FlatPathEntry{
		{Path: "/" + nameFlatPathTable, Ino: InoFlatPathTable},
	}

	walkDirsPreOrder(root, func(d *Directory) {
		entries = append(entries, FlatPathEntry{Path: parentPath(d), Ino: inoOf(d)})
		for _, f := range d.Files {
			entries = append(entries, FlatPathEntry{Path: path.Join(parentPath(d), f.Name), Ino: inoOf(f)})
		}
	})

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}

// EncodeFlatPathTable serializes entries into the flat path table's file
// content: a sequence of (length-prefixed path, inode number) rows
// terminated by a zero-length row.
func EncodeFlatPathTable(entries []FlatPathEntry) []byte {
	var size int64
	for _, e := range entries {
		size += flatPathEntrySize(e)
	}
	size += 2 // terminator

	buf := make([]byte, 0, size)
	for _, e := range entries {
		var lenField [2]byte
		binary.LittleEndian.PutUint16(lenField[:], uint16(len(e.Path)))
		buf = append(buf, lenField[:]...)
		buf = append(buf, e.Path...)
		var inoField [4]byte
		binary.LittleEndian.PutUint32(inoField[:], e.Ino)
		buf = append(buf, inoField[:]...)
	}
	buf = append(buf, 0, 0)
	return buf
}
