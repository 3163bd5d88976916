// Package content computes and represents content identity (spec.md §3
// "Content identity"): the hash an entry's bytes are keyed by for
// deduplication, sidecar addressing, and cross-device matching.
package content

import (
	"context"
	"encoding/hex"
	"io"

	"lukechampine.com/blake3"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
)

// LargeFileThreshold is the default size above which Identify switches from
// full-content hashing to the partial scheme (first 1 MiB + last 1 MiB +
// exact size). Configurable via IdentifyOptions.Threshold.
const LargeFileThreshold = 4 << 30 // 4 GiB

// sampleSize is the amount read from each end of a large file for the
// partial scheme.
const sampleSize = 1 << 20 // 1 MiB

// Scheme records which hashing strategy produced an Identity, so a reader
// can tell a full blake3 digest from the large-file sample scheme without
// re-deriving it from size and threshold.
type Scheme string

const (
	// SchemeFull hashes the entire file content with blake3.
	SchemeFull Scheme = "full"
	// SchemePartial hashes only the first and last sampleSize bytes plus
	// the exact file size, for files above the configured threshold. This
	// is the documented "large-file scheme" referenced by spec.md §8's
	// content-identity invariant.
	SchemePartial Scheme = "partial"
)

// Identity is the content-identity record keyed by Hash (spec.md §3
// "Content identity"), persisted in the library.db content_identity table
// and referenced by Entry.content_identity_id.
type Identity struct {
	Hash   string // hex-encoded blake3 digest (or partial-scheme digest)
	Size   int64
	Scheme Scheme
}

// IdentifyOptions configures Identify. The zero value uses LargeFileThreshold
// and the backend's advertised OptimalChunkSize for streaming reads.
type IdentifyOptions struct {
	// Threshold overrides LargeFileThreshold when non-zero.
	Threshold int64
}

// Identify computes the content identity of path on backend, choosing the
// full or partial scheme by size per spec.md §4.7 "Content identification".
// Chunk size for streaming follows the backend's OptimalChunkSize, per
// spec.md §4.7: "Chunk size for hashing follows the volume's advertised
// optimal chunk size."
func Identify(ctx context.Context, b volume.Backend, path string, opts IdentifyOptions) (Identity, error) {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = LargeFileThreshold
	}

	md, err := b.Metadata(ctx, path)
	if err != nil {
		return Identity{}, err
	}
	if md.Kind != volume.KindFile {
		return Identity{}, errs.New(errs.Validation, "content identity requires a file, got "+string(md.Kind))
	}

	if md.Size > threshold {
		return identifyPartial(ctx, b, path, md.Size)
	}
	return identifyFull(ctx, b, path, md.Size, int(b.OptimalChunkSize()))
}

func identifyFull(ctx context.Context, b volume.Backend, path string, size int64, chunkSize int) (Identity, error) {
	r, err := b.ReadStream(ctx, path)
	if err != nil {
		return Identity{}, err
	}
	defer r.Close()

	if chunkSize <= 0 {
		chunkSize = 1 << 20
	}
	h := blake3.New(32, nil)
	buf := make([]byte, chunkSize)
	startSize := size
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return Identity{}, err
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			total += int64(n)
			h.Write(buf[:n])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return Identity{}, errs.Wrap(errs.IO, "content hash read failed", rerr)
		}
	}

	// A file that changes size during hashing is discarded per spec.md §8:
	// re-stat and compare against the size observed before hashing began.
	if err := checkSizeUnchanged(ctx, b, path, startSize); err != nil {
		return Identity{}, err
	}
	if total != startSize {
		return Identity{}, errs.New(errs.Conflict, "file size changed during hashing")
	}

	return Identity{Hash: hex.EncodeToString(h.Sum(nil)), Size: total, Scheme: SchemeFull}, nil
}

func identifyPartial(ctx context.Context, b volume.Backend, path string, size int64) (Identity, error) {
	head, err := b.ReadRange(ctx, path, 0, minInt64(sampleSize, size))
	if err != nil {
		return Identity{}, err
	}
	tailStart := size - sampleSize
	if tailStart < 0 {
		tailStart = 0
	}
	tail, err := b.ReadRange(ctx, path, tailStart, size)
	if err != nil {
		return Identity{}, err
	}

	if err := checkSizeUnchanged(ctx, b, path, size); err != nil {
		return Identity{}, err
	}

	h := blake3.New(32, nil)
	h.Write(head)
	h.Write(tail)
	writeSize(h, size)

	return Identity{Hash: hex.EncodeToString(h.Sum(nil)), Size: size, Scheme: SchemePartial}, nil
}

func checkSizeUnchanged(ctx context.Context, b volume.Backend, path string, expect int64) error {
	md, err := b.Metadata(ctx, path)
	if err != nil {
		return err
	}
	if md.Size != expect {
		return errs.New(errs.Conflict, "file size changed during hashing")
	}
	return nil
}

func writeSize(h io.Writer, size int64) {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(size >> (8 * i))
	}
	h.Write(buf[:])
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
