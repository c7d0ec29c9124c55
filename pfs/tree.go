package pfs

import (
	"fmt"
	"io"
	"os"
	"path"
	"sort"
)

// ContentProducer streams a file's raw, uncompressed bytes into w. It is
// invoked synchronously by the Writer and may read from the host
// filesystem or anywhere else.
type ContentProducer func(w io.Writer) error

// Directory is a filesystem-tree directory node. Children are held in two
// ordered slices (sub-directories and files) because the two need
// different inode-allocation order: spec.md requires directories
// enumerated in stable pre-order but files gathered and sorted by full
// path, so keeping them separate avoids re-sorting a mixed slice later.
//
// Parent is a non-owning back-reference, following the teacher's
// vio.TreeNode.Parent rather than an arena/index scheme — Go's garbage
// collector has no trouble with the resulting reference cycle.
type Directory struct {
	Name   string
	Parent *Directory

	Dirs  []*Directory
	Files []*File

	// Dirents is populated by root-structure setup / inode allocation,
	// not by the caller.
	Dirents []Dirent

	ino Inode
}

// File is a filesystem-tree file node.
type File struct {
	Name   string
	Parent *Directory

	// Size is the exact uncompressed byte length.
	Size int64

	// CompressedSize is the size the reference reader should expect
	// after decompressing content this builder stores verbatim. Zero
	// means "same as Size" (no compression applied). The builder never
	// compresses content itself — see spec.md's Non-goals.
	CompressedSize int64
	Compress       bool

	Produce ContentProducer

	ino Inode
}

// NewRoot creates an empty directory intended to be passed as
// BuilderArgs.Root. Its Name is not written into the image: the
// super-root's entry for it is always "uroot" and its flat path table
// path is always "/".
func NewRoot() *Directory {
	return &Directory{Name: "uroot"}
}

// AddDir creates, links, and returns a new subdirectory named name.
func (d *Directory) AddDir(name string) *Directory {
	child := &Directory{Name: name, Parent: d}
	d.Dirs = append(d.Dirs, child)
	return child
}

// AddFile creates, links, and returns a new file node described entirely
// by the caller-supplied metadata and producer.
func (d *Directory) AddFile(name string, size, compressedSize int64, compress bool, produce ContentProducer) *File {
	f := &File{
		Name:           name,
		Parent:         d,
		Size:           size,
		CompressedSize: compressedSize,
		Compress:       compress,
		Produce:        produce,
	}
	d.Files = append(d.Files, f)
	return f
}

// AddOSFile stats the host file at hostPath and adds it to d as a file
// node named name, streaming its content directly from disk when the
// builder later invokes its producer.
func (d *Directory) AddOSFile(name, hostPath string) (*File, error) {
	fi, err := os.Stat(hostPath)
	if err != nil {
		return nil, fmt.Errorf("pfs: stat %s: %w", hostPath, ErrIoFailure)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("pfs: %s is a directory: %w", hostPath, ErrInvalidTree)
	}

	produce := func(w io.Writer) error {
		f, err := os.Open(hostPath)
		if err != nil {
			return fmt.Errorf("pfs: open %s: %w", hostPath, ErrIoFailure)
		}
		defer f.Close()
		if _, err := io.Copy(w, f); err != nil {
			return fmt.Errorf("pfs: read %s: %w", hostPath, ErrIoFailure)
		}
		return nil
	}

	return d.AddFile(name, fi.Size(), 0, false, produce), nil
}

// parentPath returns d's absolute path in the flat path table. The tree
// root (uroot, the user-visible mount point) is "/" regardless of its
// Name field; every descendant is joined beneath that.
func parentPath(d *Directory) string {
	if d.Parent == nil {
		return "/"
	}
	return path.Join(parentPath(d.Parent), d.Name)
}

// walkDirsPreOrder visits root and every descendant directory in stable
// pre-order (root, then each child subtree in slice order).
func walkDirsPreOrder(root *Directory, fn func(*Directory)) {
	fn(root)
	for _, child := range root.Dirs {
		walkDirsPreOrder(child, fn)
	}
}

type filePathPair struct {
	file *File
	path string
}

// collectFilesByPath gathers every file under root and sorts the result by
// full path, byte-lexicographically, per spec.md's deterministic inode
// assignment rule.
func collectFilesByPath(root *Directory) []filePathPair {
	var out []filePathPair
	walkDirsPreOrder(root, func(d *Directory) {
		dirPath := parentPath(d)
		for _, f := range d.Files {
			out = append(out, filePathPair{file: f, path: path.Join(dirPath, f.Name)})
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

// validateTree checks the structural invariants spec.md assigns to
// ErrInvalidTree: no duplicate name within one directory, every parent
// link consistent, and no cycles.
func validateTree(root *Directory) error {
	visiting := make(map[*Directory]bool)

	var visit func(d *Directory) error
	visit = func(d *Directory) error {
		if visiting[d] {
			return fmt.Errorf("pfs: directory %q revisited: %w", d.Name, ErrInvalidTree)
		}
		visiting[d] = true
		defer delete(visiting, d)

		seen := make(map[string]bool, len(d.Dirs)+len(d.Files))
		for _, sub := range d.Dirs {
			if seen[sub.Name] {
				return fmt.Errorf("pfs: duplicate name %q in directory %q: %w", sub.Name, d.Name, ErrInvalidTree)
			}
			seen[sub.Name] = true
			if sub.Parent != d {
				return fmt.Errorf("pfs: directory %q has inconsistent parent link: %w", sub.Name, ErrInvalidTree)
			}
			if err := visit(sub); err != nil {
				return err
			}
		}
		for _, f := range d.Files {
			if seen[f.Name] {
				return fmt.Errorf("pfs: duplicate name %q in directory %q: %w", f.Name, d.Name, ErrInvalidTree)
			}
			seen[f.Name] = true
			if f.Parent != d {
				return fmt.Errorf("pfs: file %q has inconsistent parent link: %w", f.Name, ErrInvalidTree)
			}
		}
		return nil
	}

	return visit(root)
}
