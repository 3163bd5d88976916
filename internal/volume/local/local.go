// Package local implements volume.Backend over the local filesystem using
// os and io/fs, the only backend this repo ships (cloud/virtual backends
// are pluggable by contract only, per spec.md §1 Out of scope).
package local

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
)

// Backend is a volume.Backend rooted at Root on local disk.
type Backend struct {
	Root string
}

// New creates a local backend rooted at root. All paths passed to Backend
// methods are relative to root.
func New(root string) *Backend {
	return &Backend{Root: root}
}

func (b *Backend) resolve(path string) string {
	return filepath.Join(b.Root, path)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case os.IsNotExist(err):
		return errs.Wrap(errs.NotFound, "path not found", err)
	case os.IsPermission(err):
		return errs.Wrap(errs.PermissionDenied, "permission denied", err)
	default:
		return errs.Wrap(errs.IO, "volume i/o error", err)
	}
}

func (b *Backend) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.resolve(path))
	if err != nil {
		return nil, mapErr(err)
	}
	return data, nil
}

func (b *Backend) ReadRange(ctx context.Context, path string, start, end int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if end < start {
		return nil, errs.New(errs.Validation, "end must be >= start")
	}
	f, err := os.Open(b.resolve(path))
	if err != nil {
		return nil, mapErr(err)
	}
	defer f.Close()

	buf := make([]byte, end-start)
	n, err := f.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return nil, errs.Wrap(errs.IO, "read range failed", err)
	}
	if int64(n) != end-start {
		return nil, errs.New(errs.Validation, "short read: out of range")
	}
	return buf, nil
}

func (b *Backend) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(b.resolve(path))
	if err != nil {
		return nil, mapErr(err)
	}
	return f, nil
}

func (b *Backend) Write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full := b.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return mapErr(err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return mapErr(err)
	}
	return nil
}

func (b *Backend) ReadDir(ctx context.Context, path string) ([]volume.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(b.resolve(path))
	if err != nil {
		return nil, mapErr(err)
	}

	out := make([]volume.DirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			// Entry vanished between readdir and stat; skip it rather than
			// fail the whole listing (transient, non-critical per §7).
			continue
		}
		out = append(out, volume.DirEntry{
			Name:    e.Name(),
			Kind:    kindOf(info),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Inode:   inodeOf(info),
		})
	}
	return out, nil
}

func (b *Backend) Metadata(ctx context.Context, path string) (volume.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return volume.Metadata{}, err
	}
	info, err := os.Lstat(b.resolve(path))
	if err != nil {
		return volume.Metadata{}, mapErr(err)
	}
	md := volume.Metadata{
		Kind:       kindOf(info),
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		ChangeTime: info.ModTime(), // ctime is not read; the modification time stands in
		AccessTime: info.ModTime(),
		Inode:      inodeOf(info),
	}
	if perm := uint32(info.Mode().Perm()); true {
		md.Permissions = &perm
	}
	return md, nil
}

func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Lstat(b.resolve(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, mapErr(err)
}

func (b *Backend) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(b.resolve(path)); err != nil {
		return mapErr(err)
	}
	return nil
}

func (b *Backend) CreateDirectory(ctx context.Context, path string, recursive bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full := b.resolve(path)
	var err error
	if recursive {
		err = os.MkdirAll(full, 0755)
	} else {
		err = os.Mkdir(full, 0755)
	}
	return mapErr(err)
}

func (b *Backend) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(b.resolve(oldPath), b.resolve(newPath)); err != nil {
		return mapErr(err)
	}
	return nil
}

func (b *Backend) IsLocal() bool                   { return true }
func (b *Backend) BackendType() volume.BackendType { return volume.BackendLocal }
func (b *Backend) OptimalChunkSize() int64         { return 1 << 20 } // 1 MiB

func kindOf(info os.FileInfo) volume.EntryKind {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return volume.KindSymlink
	case info.IsDir():
		return volume.KindDirectory
	default:
		return volume.KindFile
	}
}
