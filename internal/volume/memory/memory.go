// Package memory implements an in-memory volume.Backend used by indexer
// and job-system tests, grounded on the teacher's in-memory test fixture
// filesystem (internal/testutil/fixtures/fstest.go) so unit tests for
// change detection never touch real disk.
package memory

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
)

type node struct {
	kind    volume.EntryKind
	data    []byte
	modTime time.Time
	inode   uint64
	target  string // symlink target, unused by walkers but kept for completeness
}

// Backend is an in-memory filesystem keyed by slash-separated path.
type Backend struct {
	mu      sync.RWMutex
	nodes   map[string]*node
	nextIno uint64
}

// New creates an empty in-memory backend with just a root directory.
func New() *Backend {
	b := &Backend{nodes: make(map[string]*node)}
	b.nodes["."] = &node{kind: volume.KindDirectory, modTime: time.Now()}
	return b
}

func clean(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "."
	}
	return path
}

func parentOf(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "."
	}
	return path[:idx]
}

// PutFile inserts or replaces a file at path with the given content and
// modification time, creating parent directories as needed. Intended for
// test setup, not part of volume.Backend.
func (b *Backend) PutFile(path string, data []byte, modTime time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	path = clean(path)
	b.ensureParents(path)
	b.nextIno++
	b.nodes[path] = &node{kind: volume.KindFile, data: append([]byte(nil), data...), modTime: modTime, inode: b.nextIno}
}

// PutDir inserts a directory at path, creating parents as needed.
func (b *Backend) PutDir(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	path = clean(path)
	b.ensureParents(path)
	if _, ok := b.nodes[path]; !ok {
		b.nextIno++
		b.nodes[path] = &node{kind: volume.KindDirectory, modTime: time.Now(), inode: b.nextIno}
	}
}

// PutSymlink inserts a symlink at path pointing at target.
func (b *Backend) PutSymlink(path, target string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	path = clean(path)
	b.ensureParents(path)
	b.nextIno++
	b.nodes[path] = &node{kind: volume.KindSymlink, target: target, modTime: time.Now(), inode: b.nextIno}
}

// Remove deletes path (and, if it is a directory, everything under it),
// for tests simulating external deletion between scans.
func (b *Backend) Remove(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	path = clean(path)
	delete(b.nodes, path)
	prefix := path + "/"
	for p := range b.nodes {
		if strings.HasPrefix(p, prefix) {
			delete(b.nodes, p)
		}
	}
}

// InodeOf returns the inode assigned to path, for tests asserting move
// detection by inode.
func (b *Backend) InodeOf(path string) (uint64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.nodes[clean(path)]
	if !ok {
		return 0, false
	}
	return n.inode, true
}

func (b *Backend) ensureParents(path string) {
	for p := parentOf(path); p != "."; p = parentOf(p) {
		if _, ok := b.nodes[p]; ok {
			continue
		}
		b.nextIno++
		b.nodes[p] = &node{kind: volume.KindDirectory, modTime: time.Now(), inode: b.nextIno}
	}
}

func (b *Backend) Read(ctx context.Context, path string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.nodes[clean(path)]
	if !ok || n.kind != volume.KindFile {
		return nil, errs.New(errs.NotFound, "no such file: "+path)
	}
	return append([]byte(nil), n.data...), nil
}

func (b *Backend) ReadRange(ctx context.Context, path string, start, end int64) ([]byte, error) {
	data, err := b.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	if start < 0 || end > int64(len(data)) || end < start {
		return nil, errs.New(errs.Validation, "range out of bounds")
	}
	return data[start:end], nil
}

func (b *Backend) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	data, err := b.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *Backend) Write(ctx context.Context, path string, data []byte) error {
	b.PutFile(path, data, time.Now())
	return nil
}

func (b *Backend) ReadDir(ctx context.Context, path string) ([]volume.DirEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	path = clean(path)
	if _, ok := b.nodes[path]; !ok {
		return nil, errs.New(errs.NotFound, "no such directory: "+path)
	}

	prefix := path + "/"
	if path == "." {
		prefix = ""
	}
	seen := make(map[string]bool)
	var out []volume.DirEntry
	for p, n := range b.nodes {
		if p == path || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if strings.Contains(rest, "/") {
			continue // not an immediate child
		}
		if seen[rest] {
			continue
		}
		seen[rest] = true
		ino := n.inode
		out = append(out, volume.DirEntry{
			Name:    rest,
			Kind:    n.kind,
			Size:    int64(len(n.data)),
			ModTime: n.modTime,
			Inode:   &ino,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (b *Backend) Metadata(ctx context.Context, path string) (volume.Metadata, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.nodes[clean(path)]
	if !ok {
		return volume.Metadata{}, errs.New(errs.NotFound, "no such path: "+path)
	}
	ino := n.inode
	return volume.Metadata{
		Kind:       n.kind,
		Size:       int64(len(n.data)),
		ModTime:    n.modTime,
		ChangeTime: n.modTime,
		AccessTime: n.modTime,
		Inode:      &ino,
	}, nil
}

func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.nodes[clean(path)]
	return ok, nil
}

func (b *Backend) Delete(ctx context.Context, path string) error {
	b.Remove(path)
	return nil
}

func (b *Backend) CreateDirectory(ctx context.Context, path string, recursive bool) error {
	b.PutDir(path)
	return nil
}

func (b *Backend) Rename(ctx context.Context, oldPath, newPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	oldPath, newPath = clean(oldPath), clean(newPath)
	n, ok := b.nodes[oldPath]
	if !ok {
		return errs.New(errs.NotFound, "no such path: "+oldPath)
	}
	delete(b.nodes, oldPath)
	b.ensureParents(newPath)
	b.nodes[newPath] = n
	return nil
}

func (b *Backend) IsLocal() bool                   { return true }
func (b *Backend) BackendType() volume.BackendType { return volume.BackendLocal }
func (b *Backend) OptimalChunkSize() int64         { return 64 << 10 } // 64 KiB, small on purpose for tests
