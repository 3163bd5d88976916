package memory

import (
	"context"
	"testing"
	"time"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
)

func TestReadDirLists(t *testing.T) {
	b := New()
	now := time.Now()
	b.PutFile("docs/a.txt", []byte("hello"), now)
	b.PutFile("docs/b.txt", []byte("hi"), now)
	b.PutDir("docs/sub")

	entries, err := b.ReadDir(context.Background(), "docs")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
}

func TestInodePreservedAcrossMove(t *testing.T) {
	b := New()
	b.PutFile("a.txt", []byte("x"), time.Now())
	ino, ok := b.InodeOf("a.txt")
	if !ok {
		t.Fatal("expected inode")
	}

	if err := b.Rename(context.Background(), "a.txt", "b.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	newIno, ok := b.InodeOf("b.txt")
	if !ok {
		t.Fatal("expected inode after rename")
	}
	if newIno != ino {
		t.Fatalf("inode changed across rename: %d != %d", ino, newIno)
	}
}

func TestRemoveRemovesSubtree(t *testing.T) {
	b := New()
	b.PutFile("a/b/c.txt", []byte("x"), time.Now())
	b.Remove("a")

	if ok, _ := b.Exists(context.Background(), "a/b/c.txt"); ok {
		t.Fatal("file still present after removing ancestor directory")
	}
}

func TestReadMissingFile(t *testing.T) {
	b := New()
	_, err := b.Read(context.Background(), "nope.txt")
	if errs.KindOf(err) != errs.NotFound {
		t.Fatalf("got %v, want NotFound", err)
	}
}

func TestBackendIdentity(t *testing.T) {
	b := New()
	if !b.IsLocal() {
		t.Fatal("expected IsLocal true")
	}
	if b.BackendType() != volume.BackendLocal {
		t.Fatalf("got %v, want BackendLocal", b.BackendType())
	}
}
