// Package sidecar implements the content-addressed derivative store
// (spec.md §4.5, §3 "Sidecar"): thumbnails, previews, transcripts and
// similar artifacts keyed by content identity, or by entry UUID for
// ephemeral (not-yet-hashed) entries.
package sidecar

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
)

// Kind is one of the derivative dimensions spec.md §3 "Sidecar" names.
type Kind string

const (
	KindThumb      Kind = "thumb"
	KindPreview    Kind = "preview"
	KindTranscript Kind = "transcript"
	KindEmbedding  Kind = "embedding"
)

// Key identifies a sidecar subject: either a content identity (persistent)
// or an entry UUID (ephemeral), never both.
type Key struct {
	ContentIdentity string // hex hash, set for persistent sidecars
	EntryUUID       string // set for ephemeral sidecars
}

func (k Key) persistent() bool { return k.ContentIdentity != "" }

// Store computes sidecar paths and tracks which ones exist on disk,
// matching the operations spec.md §4.5 names: compute_path, has, insert,
// scan_existing, cleanup_orphans, clear_all.
type Store struct {
	// LibraryDir is `<library>` from spec.md §4.5's persistent path layout.
	LibraryDir string
	// EphemeralRoot is `<temp>/spacedrive-ephemeral-<library>` from the
	// ephemeral path layout.
	EphemeralRoot string

	keyed keyedLock

	mu      sync.RWMutex
	present map[string]bool // ComputePath result -> exists
}

// New creates a sidecar store rooted at libraryDir for persistent sidecars
// and ephemeralRoot for entry-UUID-keyed ones.
func New(libraryDir, ephemeralRoot string) *Store {
	return &Store{
		LibraryDir:    libraryDir,
		EphemeralRoot: ephemeralRoot,
		present:       make(map[string]bool),
	}
}

// ComputePath derives the on-disk path for key/kind/variant/ext, per the
// two layouts in spec.md §4.5.
func (s *Store) ComputePath(key Key, kind Kind, variant, ext string) (string, error) {
	if key.persistent() == (key.EntryUUID != "") {
		return "", errs.New(errs.Validation, "sidecar key must set exactly one of ContentIdentity or EntryUUID")
	}
	if key.persistent() {
		ci := key.ContentIdentity
		prefix := ci
		if len(prefix) > 2 {
			prefix = prefix[:2]
		}
		return filepath.Join(s.LibraryDir, "sidecars", prefix, ci, string(kind), variant+"."+ext), nil
	}
	return filepath.Join(s.EphemeralRoot, "sidecars", "entry", key.EntryUUID, string(kind), variant+"."+ext), nil
}

// Has reports whether a sidecar is recorded present for key/kind/variant.
// It does not stat the filesystem; Insert and ScanExisting are what
// populate the index.
func (s *Store) Has(key Key, kind Kind, variant, ext string) (bool, error) {
	path, err := s.ComputePath(key, kind, variant, ext)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.present[path], nil
}

// Insert records a sidecar as present (spec.md §4.5: "records presence;
// the writer already placed the file").
func (s *Store) Insert(key Key, kind Kind, variant, ext string) error {
	path, err := s.ComputePath(key, kind, variant, ext)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present[path] = true
	return nil
}

// GenerateOnce ensures at most one generator runs per (key, kind, variant)
// at a time (spec.md §4.5 "Concurrency"). The first caller for a given key
// runs gen and its result is recorded via Insert on success; concurrent
// callers for the same key block until it finishes, then return nil so
// they can re-check Has and reuse the file — mirroring the teacher's
// refreshing-map dedup in internal/repo/sqlite.go, generalized from
// "in-flight API refresh" to "in-flight sidecar generation" and made
// synchronous since callers here need the result, not fire-and-forget.
func (s *Store) GenerateOnce(ctx context.Context, key Key, kind Kind, variant string, gen func(context.Context) error) error {
	path, err := s.ComputePath(key, kind, variant, "")
	if err != nil {
		return err
	}
	leader, wait := s.keyed.acquire(path)
	if !leader {
		select {
		case <-wait:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer s.keyed.release(path)

	if err := gen(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.present[path] = true
	s.mu.Unlock()
	return nil
}

// ScanExisting rebuilds the presence index from disk, for startup (spec.md
// §4.5 "scan_existing()").
func (s *Store) ScanExisting() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present = make(map[string]bool)

	for _, root := range []string{filepath.Join(s.LibraryDir, "sidecars"), filepath.Join(s.EphemeralRoot, "sidecars")} {
		if root == "" {
			continue
		}
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if !info.IsDir() {
				s.present[path] = true
			}
			return nil
		})
		if err != nil {
			return errs.Wrap(errs.IO, "scan existing sidecars", err)
		}
	}
	return nil
}

// CleanupOrphans removes every recorded sidecar whose path is not in
// liveKeys, and deletes the underlying file (spec.md §4.5
// "cleanup_orphans(live_keys_set)"). Returns the number removed.
func (s *Store) CleanupOrphans(liveKeys map[string]bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	for path := range s.present {
		if liveKeys[path] {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, errs.Wrap(errs.IO, "remove orphan sidecar", err)
		}
		delete(s.present, path)
		removed++
	}
	return removed, nil
}

// ClearAll removes every tracked sidecar file and resets the index
// (spec.md §4.5 "clear_all()").
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path := range s.present {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errs.Wrap(errs.IO, "remove sidecar", err)
		}
	}
	s.present = make(map[string]bool)
	return nil
}

// keyedLock is the generalized form of the teacher's refreshing
// map[string]bool + sync.Mutex pattern: one in-flight operation per key,
// with waiters blocking on a channel instead of the teacher's fire-and-
// forget goroutine.
type keyedLock struct {
	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// acquire returns (true, nil) if the caller is the leader for key and must
// run the operation and call release when done. Otherwise it returns
// (false, ch) where ch closes when the leader finishes.
func (k *keyedLock) acquire(key string) (leader bool, wait chan struct{}) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.inflight == nil {
		k.inflight = make(map[string]chan struct{})
	}
	if ch, ok := k.inflight[key]; ok {
		return false, ch
	}
	ch := make(chan struct{})
	k.inflight[key] = ch
	return true, ch
}

func (k *keyedLock) release(key string) {
	k.mu.Lock()
	ch := k.inflight[key]
	delete(k.inflight, key)
	k.mu.Unlock()
	close(ch)
}
