package content

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spacedriveapp/spacedrive-sub011/internal/volume/memory"
)

func TestIdentifyFullIsDeterministic(t *testing.T) {
	b := memory.New()
	b.PutFile("a.bin", []byte("the quick brown fox"), time.Now())

	id1, err := Identify(context.Background(), b, "a.bin", IdentifyOptions{})
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	id2, err := Identify(context.Background(), b, "a.bin", IdentifyOptions{})
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if id1.Hash != id2.Hash {
		t.Fatalf("hash not deterministic: %q != %q", id1.Hash, id2.Hash)
	}
	if id1.Scheme != SchemeFull {
		t.Fatalf("got scheme %v, want full", id1.Scheme)
	}
}

func TestIdentifyDifferentContentDifferentHash(t *testing.T) {
	b := memory.New()
	b.PutFile("a.bin", []byte("aaaa"), time.Now())
	b.PutFile("b.bin", []byte("bbbb"), time.Now())

	idA, err := Identify(context.Background(), b, "a.bin", IdentifyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	idB, err := Identify(context.Background(), b, "b.bin", IdentifyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if idA.Hash == idB.Hash {
		t.Fatal("distinct content hashed identically")
	}
}

func TestIdentifyUsesPartialSchemeAboveThreshold(t *testing.T) {
	b := memory.New()
	data := bytes.Repeat([]byte("x"), 10)
	b.PutFile("big.bin", data, time.Now())

	id, err := Identify(context.Background(), b, "big.bin", IdentifyOptions{Threshold: 5})
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if id.Scheme != SchemePartial {
		t.Fatalf("got scheme %v, want partial", id.Scheme)
	}
	if id.Size != int64(len(data)) {
		t.Fatalf("got size %d, want %d", id.Size, len(data))
	}
}

func TestIdentifyRejectsDirectory(t *testing.T) {
	b := memory.New()
	b.PutDir("dir")
	if _, err := Identify(context.Background(), b, "dir", IdentifyOptions{}); err == nil {
		t.Fatal("expected error identifying a directory")
	}
}
