// Package indexer implements the central indexing pipeline (spec.md §4.7):
// Discovery, Processing, Aggregation and Content identification, run as a
// job.Handler so the same pause/resume/cancel and checkpoint contract job
// gives every other long-running task applies here too.
package indexer

import (
	"path"
	"time"

	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
)

// Mode selects how much work the indexer does per entry (spec.md §4.7).
type Mode string

const (
	ModeShallow Mode = "shallow" // metadata only
	ModeContent Mode = "content" // + content-identity hashing
	ModeDeep    Mode = "deep"    // + media metadata / derivative dispatch
)

// Scope bounds how far Discovery walks from the root.
type Scope struct {
	// Recursive walks the entire subtree. When false, MaxDepth bounds it.
	Recursive bool
	// MaxDepth is the deepest level walked when !Recursive. 1 means
	// ShallowDir (root's immediate children only); N means Limited(N).
	MaxDepth int
}

// ScopeRecursive walks the whole subtree.
func ScopeRecursive() Scope { return Scope{Recursive: true} }

// ScopeShallowDir walks only the root's immediate children.
func ScopeShallowDir() Scope { return Scope{MaxDepth: 1} }

// ScopeLimited walks down to depth levels below the root.
func ScopeLimited(depth int) Scope { return Scope{MaxDepth: depth} }

func (s Scope) allows(depth int) bool {
	if s.Recursive {
		return true
	}
	return depth <= s.MaxDepth
}

// Persistence selects where indexed entries are written (spec.md §4.7).
type Persistence string

const (
	PersistencePersistent Persistence = "persistent" // writes to the entry store
	PersistenceEphemeral  Persistence = "ephemeral"   // writes to the in-memory arena
)

// Options configures one indexing run.
type Options struct {
	Mode          Mode
	Scope         Scope
	Persistence   Persistence
	IncludeHidden bool
	// ContentThreshold overrides content.LargeFileThreshold when non-zero.
	ContentThreshold int64
}

// walkEntry is one Discovery-phase result: a raw filesystem entry plus its
// path relative to the indexed root and its BFS depth.
type walkEntry struct {
	AbsPath string
	RelPath string
	Depth   int
	Kind    volume.EntryKind
	Size    int64
	ModTime time.Time
	Inode   *uint64
}

func joinRel(parent, name string) string {
	if parent == "" {
		return name
	}
	return path.Join(parent, name)
}

func isHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}

func relBase(relPath string) string {
	return path.Base(relPath)
}
