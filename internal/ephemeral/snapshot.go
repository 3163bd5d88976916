package ephemeral

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
)

// snapshotVersion must match between writer and reader; a mismatch
// discards the snapshot and reindexes (spec.md §6: "Version prefix
// required; mismatch → discard and reindex").
const snapshotVersion uint32 = 1

// SnapshotDir returns `<data>/cache/volume-index/`, the location spec.md §6
// names for ephemeral index snapshots.
func SnapshotDir(dataDir string) string {
	return filepath.Join(dataDir, "cache", "volume-index")
}

// SnapshotFileName is the 16-hex-digit hash of the canonicalized root path,
// per spec.md §6.
func SnapshotFileName(rootPath string) string {
	canon := filepath.Clean(rootPath)
	sum := sha256.Sum256([]byte(canon))
	return hex.EncodeToString(sum[:])[:16]
}

// SnapshotMeta accompanies the encoded index and is checked before trusting
// a cached snapshot.
type SnapshotMeta struct {
	RootPath    string
	RootModTime time.Time
}

// Save serializes idx with rootModTime (the root directory's mtime at
// snapshot time, used later for invalidation) to path, zstd level 6
// compressed per spec.md §6.
func Save(path string, idx *Index, rootModTime time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errs.Wrap(errs.IO, "create snapshot directory", err)
	}

	var raw bytes.Buffer
	if err := encode(&raw, idx, rootModTime); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), "snapshot-*.tmp")
	if err != nil {
		return errs.Wrap(errs.IO, "create temp snapshot file", err)
	}
	tmpPath := f.Name()
	defer os.Remove(tmpPath)

	// klauspost/compress/zstd exposes speed tiers rather than raw 1-22
	// levels; SpeedBetterCompression is the closest match to the "zstd
	// level 6" spec.md §6 names.
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		f.Close()
		return errs.Wrap(errs.IO, "create zstd encoder", err)
	}
	if _, err := enc.Write(raw.Bytes()); err != nil {
		enc.Close()
		f.Close()
		return errs.Wrap(errs.IO, "write snapshot", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return errs.Wrap(errs.IO, "close zstd encoder", err)
	}
	if err := f.Close(); err != nil {
		return errs.Wrap(errs.IO, "close temp snapshot file", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return errs.Wrap(errs.IO, "rename snapshot into place", err)
	}
	return nil
}

// Load decompresses and decodes a snapshot from path without checking
// freshness; callers use LoadValid for the verify-then-use contract.
func Load(path string) (*Index, SnapshotMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, SnapshotMeta{}, errs.Wrap(errs.NotFound, "open snapshot", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, SnapshotMeta{}, errs.Wrap(errs.IO, "create zstd decoder", err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, SnapshotMeta{}, errs.Wrap(errs.IO, "decompress snapshot", err)
	}
	return decode(bytes.NewReader(data))
}

// LoadValid loads the snapshot for rootPath, verifying it against the
// root directory's current mtime before trusting it (the Open Question
// decision: verify-then-use via directory-mtime check, not a version
// token alone). Any mismatch, missing file, or decode error returns
// ok=false so the caller falls back to a full reindex.
func LoadValid(ctx context.Context, dataDir, rootPath string, statRootModTime func(context.Context, string) (time.Time, error)) (*Index, bool) {
	path := filepath.Join(SnapshotDir(dataDir), SnapshotFileName(rootPath))
	idx, meta, err := Load(path)
	if err != nil {
		return nil, false
	}
	if meta.RootPath != filepath.Clean(rootPath) {
		return nil, false
	}
	currentModTime, err := statRootModTime(ctx, rootPath)
	if err != nil {
		return nil, false
	}
	if !currentModTime.Equal(meta.RootModTime) {
		return nil, false
	}
	return idx, true
}

func encode(w io.Writer, idx *Index, rootModTime time.Time) error {
	if err := binary.Write(w, binary.BigEndian, snapshotVersion); err != nil {
		return errs.Wrap(errs.SerializationForm, "write snapshot version", err)
	}
	if err := writeString(w, filepath.Clean(idx.RootPath)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, rootModTime.UnixNano()); err != nil {
		return errs.Wrap(errs.SerializationForm, "write root mtime", err)
	}

	if err := binary.Write(w, binary.BigEndian, uint32(len(idx.names))); err != nil {
		return errs.Wrap(errs.SerializationForm, "write name table length", err)
	}
	for _, name := range idx.names {
		if err := writeString(w, name); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.BigEndian, uint32(len(idx.nodes))); err != nil {
		return errs.Wrap(errs.SerializationForm, "write node table length", err)
	}
	for _, n := range idx.nodes {
		if err := writeNode(w, n); err != nil {
			return err
		}
	}
	return nil
}

func decode(r io.Reader) (*Index, SnapshotMeta, error) {
	var version uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, SnapshotMeta{}, errs.Wrap(errs.SerializationForm, "read snapshot version", err)
	}
	if version != snapshotVersion {
		return nil, SnapshotMeta{}, errs.New(errs.SerializationForm, fmt.Sprintf("snapshot version mismatch: got %d, want %d", version, snapshotVersion))
	}

	rootPath, err := readString(r)
	if err != nil {
		return nil, SnapshotMeta{}, err
	}

	var rootModNanos int64
	if err := binary.Read(r, binary.BigEndian, &rootModNanos); err != nil {
		return nil, SnapshotMeta{}, errs.Wrap(errs.SerializationForm, "read root mtime", err)
	}

	var nameCount uint32
	if err := binary.Read(r, binary.BigEndian, &nameCount); err != nil {
		return nil, SnapshotMeta{}, errs.Wrap(errs.SerializationForm, "read name table length", err)
	}
	names := make([]string, nameCount)
	interns := make(map[string]int32, nameCount)
	for i := range names {
		s, err := readString(r)
		if err != nil {
			return nil, SnapshotMeta{}, err
		}
		names[i] = s
		interns[s] = int32(i)
	}

	var nodeCount uint32
	if err := binary.Read(r, binary.BigEndian, &nodeCount); err != nil {
		return nil, SnapshotMeta{}, errs.Wrap(errs.SerializationForm, "read node table length", err)
	}
	nodes := make([]Node, nodeCount)
	for i := range nodes {
		n, err := readNode(r)
		if err != nil {
			return nil, SnapshotMeta{}, err
		}
		nodes[i] = n
	}

	idx := &Index{RootPath: rootPath, RootID: 0, nodes: nodes, names: names, interns: interns}
	meta := SnapshotMeta{RootPath: rootPath, RootModTime: time.Unix(0, rootModNanos)}
	return idx, meta, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(s))); err != nil {
		return errs.Wrap(errs.SerializationForm, "write string length", err)
	}
	if _, err := io.WriteString(w, s); err != nil {
		return errs.Wrap(errs.SerializationForm, "write string bytes", err)
	}
	return nil
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", errs.Wrap(errs.SerializationForm, "read string length", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", errs.Wrap(errs.SerializationForm, "read string bytes", err)
	}
	return string(buf), nil
}

func writeNode(w io.Writer, n Node) error {
	fields := []any{n.Name, kindCode(n.Kind), n.Size, n.ModTime.UnixNano(), n.Inode, n.HasInode, int32(n.ParentID)}
	for _, f := range fields {
		if err := binary.Write(w, binary.BigEndian, f); err != nil {
			return errs.Wrap(errs.SerializationForm, "write node field", err)
		}
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(n.Children))); err != nil {
		return errs.Wrap(errs.SerializationForm, "write children count", err)
	}
	for _, c := range n.Children {
		if err := binary.Write(w, binary.BigEndian, int32(c)); err != nil {
			return errs.Wrap(errs.SerializationForm, "write child id", err)
		}
	}
	return nil
}

func readNode(r io.Reader) (Node, error) {
	var name int32
	var kindByte int8
	var size int64
	var modNanos int64
	var inode uint64
	var hasInode bool
	var parentID int32

	for _, f := range []any{&name, &kindByte, &size, &modNanos, &inode, &hasInode, &parentID} {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return Node{}, errs.Wrap(errs.SerializationForm, "read node field", err)
		}
	}

	var childCount uint32
	if err := binary.Read(r, binary.BigEndian, &childCount); err != nil {
		return Node{}, errs.Wrap(errs.SerializationForm, "read children count", err)
	}
	children := make([]NodeID, childCount)
	for i := range children {
		var c int32
		if err := binary.Read(r, binary.BigEndian, &c); err != nil {
			return Node{}, errs.Wrap(errs.SerializationForm, "read child id", err)
		}
		children[i] = NodeID(c)
	}

	return Node{
		Name: name, Kind: kindFromCode(kindByte), Size: size,
		ModTime: time.Unix(0, modNanos), Inode: inode, HasInode: hasInode,
		ParentID: NodeID(parentID), Children: children,
	}, nil
}

func kindCode(k volume.EntryKind) int8 {
	switch k {
	case volume.KindFile:
		return 0
	case volume.KindSymlink:
		return 2
	default:
		return 1 // volume.KindDirectory, and any unrecognized kind
	}
}

func kindFromCode(c int8) volume.EntryKind {
	switch c {
	case 0:
		return volume.KindFile
	case 2:
		return volume.KindSymlink
	default:
		return volume.KindDirectory
	}
}
