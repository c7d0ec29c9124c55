package pfs

import "testing"

func TestCollectFilesByPathSortsLexicographically(t *testing.T) {
	root := NewRoot()
	root.AddFile("zeta.bin", 1, 0, false, nil)
	sub := root.AddDir("sub")
	sub.AddFile("alpha.bin", 1, 0, false, nil)
	root.AddFile("beta.bin", 1, 0, false, nil)

	got := collectFilesByPath(root)
	want := []string{"/beta.bin", "/sub/alpha.bin", "/zeta.bin"}
	if len(got) != len(want) {
		t.Fatalf("got %d files, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].path != w {
			t.Fatalf("entry %d = %q, want %q", i, got[i].path, w)
		}
	}
}

func TestWalkDirsPreOrder(t *testing.T) {
	root := NewRoot()
	a := root.AddDir("a")
	a.AddDir("a1")
	root.AddDir("b")

	var order []string
	walkDirsPreOrder(root, func(d *Directory) { order = append(order, d.Name) })

	want := []string{"uroot", "a", "a1", "b"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("order[%d] = %q, want %q", i, order[i], w)
		}
	}
}

func TestValidateTreeRejectsNameCollisionBetweenDirAndFile(t *testing.T) {
	root := NewRoot()
	root.AddDir("x")
	root.AddFile("x", 0, 0, false, nil)

	if err := validateTree(root); err == nil {
		t.Fatal("expected ErrInvalidTree for a directory and file sharing a name")
	}
}

func TestValidateTreeAcceptsWellFormedTree(t *testing.T) {
	root := NewRoot()
	sub := root.AddDir("sub")
	sub.AddFile("f", 0, 0, false, nil)

	if err := validateTree(root); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
