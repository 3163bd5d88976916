package sidecar

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestComputePathPersistentLayout(t *testing.T) {
	s := New("/lib", "/tmp/spacedrive-ephemeral-lib")
	path, err := s.ComputePath(Key{ContentIdentity: "abcdef0123456789"}, KindThumb, "256", "webp")
	if err != nil {
		t.Fatalf("ComputePath: %v", err)
	}
	want := filepath.Join("/lib", "sidecars", "ab", "abcdef0123456789", "thumb", "256.webp")
	if path != want {
		t.Fatalf("got %q, want %q", path, want)
	}
}

func TestComputePathEphemeralLayout(t *testing.T) {
	s := New("/lib", "/tmp/spacedrive-ephemeral-lib")
	path, err := s.ComputePath(Key{EntryUUID: "entry-uuid"}, KindPreview, "1024", "jpg")
	if err != nil {
		t.Fatalf("ComputePath: %v", err)
	}
	want := filepath.Join("/tmp/spacedrive-ephemeral-lib", "sidecars", "entry", "entry-uuid", "preview", "1024.jpg")
	if path != want {
		t.Fatalf("got %q, want %q", path, want)
	}
}

func TestComputePathRejectsAmbiguousKey(t *testing.T) {
	s := New("/lib", "/tmp/eph")
	if _, err := s.ComputePath(Key{}, KindThumb, "256", "webp"); err == nil {
		t.Fatal("expected error for a key with neither field set")
	}
	if _, err := s.ComputePath(Key{ContentIdentity: "a", EntryUUID: "b"}, KindThumb, "256", "webp"); err == nil {
		t.Fatal("expected error for a key with both fields set")
	}
}

func TestInsertAndHasRoundTrip(t *testing.T) {
	s := New("/lib", "/tmp/eph")
	key := Key{ContentIdentity: "deadbeef"}

	has, err := s.Has(key, KindThumb, "256", "webp")
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if has {
		t.Fatal("expected no sidecar recorded yet")
	}

	if err := s.Insert(key, KindThumb, "256", "webp"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	has, err = s.Has(key, KindThumb, "256", "webp")
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if !has {
		t.Fatal("expected sidecar to be recorded present after Insert")
	}
}

func TestGenerateOnceDedupesConcurrentCallers(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, filepath.Join(dir, "eph"))
	key := Key{ContentIdentity: "deadbeef"}

	var calls int32
	gen := func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.GenerateOnce(context.Background(), key, KindThumb, "256", gen); err != nil {
				t.Errorf("GenerateOnce: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("generator ran %d times, want 1", got)
	}

	has, err := s.Has(key, KindThumb, "256", "")
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if !has {
		t.Fatal("expected sidecar recorded present after GenerateOnce")
	}
}

func TestGenerateOncePropagatesLeaderError(t *testing.T) {
	s := New(t.TempDir(), t.TempDir())
	key := Key{ContentIdentity: "abc"}
	wantErr := os.ErrInvalid

	err := s.GenerateOnce(context.Background(), key, KindThumb, "256", func(context.Context) error {
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("got %v, want %v", err, wantErr)
	}

	has, _ := s.Has(key, KindThumb, "256", "")
	if has {
		t.Fatal("expected no sidecar recorded after a failed generation")
	}

	// A later call must be able to acquire leadership again (the failed
	// leader must have released the key).
	ran := false
	if err := s.GenerateOnce(context.Background(), key, KindThumb, "256", func(context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("GenerateOnce retry: %v", err)
	}
	if !ran {
		t.Fatal("expected retry to run the generator")
	}
}

func TestScanExistingRebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, filepath.Join(dir, "eph"))

	path, err := s.ComputePath(Key{ContentIdentity: "abcdef01"}, KindThumb, "256", "webp")
	if err != nil {
		t.Fatalf("ComputePath: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte("fake-thumb"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := s.ScanExisting(); err != nil {
		t.Fatalf("ScanExisting: %v", err)
	}

	has, err := s.Has(Key{ContentIdentity: "abcdef01"}, KindThumb, "256", "webp")
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if !has {
		t.Fatal("expected ScanExisting to discover the on-disk sidecar")
	}
}

func TestCleanupOrphansRemovesUnlistedFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, filepath.Join(dir, "eph"))

	live := Key{ContentIdentity: "live"}
	orphan := Key{ContentIdentity: "orphan"}
	for _, k := range []Key{live, orphan} {
		path, err := s.ComputePath(k, KindThumb, "256", "webp")
		if err != nil {
			t.Fatalf("ComputePath: %v", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if err := s.Insert(k, KindThumb, "256", "webp"); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	livePath, _ := s.ComputePath(live, KindThumb, "256", "webp")
	removed, err := s.CleanupOrphans(map[string]bool{livePath: true})
	if err != nil {
		t.Fatalf("CleanupOrphans: %v", err)
	}
	if removed != 1 {
		t.Fatalf("got %d removed, want 1", removed)
	}

	if has, _ := s.Has(live, KindThumb, "256", "webp"); !has {
		t.Fatal("expected live sidecar to survive cleanup")
	}
	if has, _ := s.Has(orphan, KindThumb, "256", "webp"); has {
		t.Fatal("expected orphan sidecar to be removed from the index")
	}
	if _, err := os.Stat(livePath); err != nil {
		t.Fatalf("expected live file to remain on disk: %v", err)
	}
}

func TestClearAllRemovesEverything(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, filepath.Join(dir, "eph"))

	key := Key{ContentIdentity: "abc"}
	path, err := s.ComputePath(key, KindThumb, "256", "webp")
	if err != nil {
		t.Fatalf("ComputePath: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := s.Insert(key, KindThumb, "256", "webp"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if has, _ := s.Has(key, KindThumb, "256", "webp"); has {
		t.Fatal("expected index empty after ClearAll")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected file removed from disk after ClearAll")
	}
}
