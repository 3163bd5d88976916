// Package ephemeral implements the in-memory index used for browse
// sessions over a volume root that hasn't (or won't) be added as a
// Location (spec.md §2/§6 "Ephemeral index"/"Ephemeral index snapshot").
// Entries live in an arena with interned names rather than library.db rows,
// since persistence and change tracking against library.db's closure table
// and sync log aren't needed for a transient browse.
package ephemeral

import (
	"time"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
)

// NodeID indexes into an Index's arena.
type NodeID int32

// Node is one arena-resident entry. Name is interned; ParentID is -1 for
// the root.
type Node struct {
	Name     int32 // index into Index.names
	Kind     volume.EntryKind
	Size     int64
	ModTime  time.Time
	Inode    uint64
	HasInode bool
	ParentID NodeID
	Children []NodeID
}

// Index is an in-memory arena + string-interning table for one browse
// root, built fresh on browse and optionally restored from a Snapshot.
type Index struct {
	RootPath string
	RootID   NodeID

	nodes   []Node
	names   []string
	interns map[string]int32
}

// New creates an empty index rooted at rootPath.
func New(rootPath string) *Index {
	idx := &Index{RootPath: rootPath, interns: make(map[string]int32)}
	idx.RootID = idx.addNode(rootPath, volume.KindDirectory, 0, time.Time{}, nil, -1)
	return idx
}

func (idx *Index) intern(name string) int32 {
	if id, ok := idx.interns[name]; ok {
		return id
	}
	id := int32(len(idx.names))
	idx.names = append(idx.names, name)
	idx.interns[name] = id
	return id
}

func (idx *Index) addNode(name string, kind volume.EntryKind, size int64, modTime time.Time, inode *uint64, parent NodeID) NodeID {
	n := Node{Name: idx.intern(name), Kind: kind, Size: size, ModTime: modTime, ParentID: parent}
	if inode != nil {
		n.Inode = *inode
		n.HasInode = true
	}
	id := NodeID(len(idx.nodes))
	idx.nodes = append(idx.nodes, n)
	if parent >= 0 {
		idx.nodes[parent].Children = append(idx.nodes[parent].Children, id)
	}
	return id
}

// AddChild records a directory entry found under parent.
func (idx *Index) AddChild(parent NodeID, entry volume.DirEntry) NodeID {
	return idx.addNode(entry.Name, entry.Kind, entry.Size, entry.ModTime, entry.Inode, parent)
}

// Node returns the node at id.
func (idx *Index) Node(id NodeID) (Node, error) {
	if int(id) < 0 || int(id) >= len(idx.nodes) {
		return Node{}, errs.New(errs.NotFound, "ephemeral node not found")
	}
	return idx.nodes[id], nil
}

// Name resolves an interned name index back to its string.
func (idx *Index) Name(nameID int32) string {
	return idx.names[nameID]
}

// Children returns the child nodes of id.
func (idx *Index) Children(id NodeID) ([]Node, error) {
	n, err := idx.Node(id)
	if err != nil {
		return nil, err
	}
	out := make([]Node, len(n.Children))
	for i, cid := range n.Children {
		out[i] = idx.nodes[cid]
	}
	return out, nil
}

// Path reconstructs the full path of id by walking parents, the same
// ancestor-walk discipline entrystore.ResolvePath uses for persistent
// entries.
func (idx *Index) Path(id NodeID) (string, error) {
	n, err := idx.Node(id)
	if err != nil {
		return "", err
	}
	if n.ParentID < 0 {
		return idx.Name(n.Name), nil
	}
	parentPath, err := idx.Path(n.ParentID)
	if err != nil {
		return "", err
	}
	return parentPath + "/" + idx.Name(n.Name), nil
}

// Len reports the number of nodes in the arena, including the root.
func (idx *Index) Len() int { return len(idx.nodes) }
