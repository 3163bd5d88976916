// Package volume defines the uniform async capability surface over a mount
// point (spec.md §4.1) and tracks the set of mounted Volumes (spec.md §3
// "Volume"). Concrete backends (local, memory-for-tests; cloud/virtual are
// pluggable by contract only, per spec §1 Out of scope) live in
// subpackages.
package volume

import (
	"context"
	"io"
	"time"
)

// EntryKind mirrors spec.md §3 Entry.kind, reused here since a directory
// listing reports the kind of each child without yet creating an Entry
// record.
type EntryKind string

const (
	KindFile      EntryKind = "file"
	KindDirectory EntryKind = "directory"
	KindSymlink   EntryKind = "symlink"
)

// BackendType identifies the kind of storage a Volume presents, per spec
// §3 "Volume".
type BackendType string

const (
	BackendLocal BackendType = "local"
	BackendCloud BackendType = "cloud"
)

// DirEntry is one row of a read_dir result (spec §4.1). Inode is optional:
// Windows backends may leave it nil, and callers must not require it for
// correctness, only for move-detection optimization (spec §4.1, §4.7).
type DirEntry struct {
	Name    string
	Kind    EntryKind
	Size    int64
	ModTime time.Time
	Inode   *uint64
}

// Metadata is the result of a metadata(path) call (spec §4.1).
type Metadata struct {
	Kind        EntryKind
	Size        int64
	ModTime     time.Time
	ChangeTime  time.Time
	AccessTime  time.Time
	Inode       *uint64
	Permissions *uint32
}

// Backend is the uniform operation surface spec.md §4.1 requires so local,
// cloud, and virtual volumes present one surface to the indexer and job
// system. All operations are context-aware so callers can cancel blocking
// I/O (spec §5).
type Backend interface {
	// Read returns the full contents of path.
	Read(ctx context.Context, path string) ([]byte, error)
	// ReadRange returns exactly end-start bytes of path, starting at start.
	ReadRange(ctx context.Context, path string, start, end int64) ([]byte, error)
	// ReadStream opens path for streaming reads, for large-file content
	// hashing and media extraction where buffering the whole file would be
	// wasteful. Callers must Close the returned reader.
	ReadStream(ctx context.Context, path string) (io.ReadCloser, error)
	// Write creates parent directories as needed and writes bytes to path.
	// Atomicity across concurrent writers is not guaranteed by the
	// backend; callers needing atomic replace write to a sibling temp path
	// and rename (spec §4.1).
	Write(ctx context.Context, path string, data []byte) error
	// ReadDir lists the immediate children of path in no particular order.
	ReadDir(ctx context.Context, path string) ([]DirEntry, error)
	// Metadata stats path.
	Metadata(ctx context.Context, path string) (Metadata, error)
	// Exists reports whether path is present.
	Exists(ctx context.Context, path string) (bool, error)
	// Delete removes path, recursively if it is a directory.
	Delete(ctx context.Context, path string) error
	// CreateDirectory creates path, and its parents if recursive is true.
	CreateDirectory(ctx context.Context, path string, recursive bool) error
	// Rename moves oldPath to newPath within the same backend.
	Rename(ctx context.Context, oldPath, newPath string) error

	// IsLocal reports whether operations against this backend are on local
	// disk (used by callers deciding whether to schedule blocking I/O on a
	// dedicated pool, spec §5).
	IsLocal() bool
	// BackendType identifies the backend kind (spec §3 "Volume").
	BackendType() BackendType
	// OptimalChunkSize is the backend's advertised chunk size for content
	// hashing and streaming reads (spec §4.7).
	OptimalChunkSize() int64
}
