package processor

import (
	"context"

	"github.com/spacedriveapp/spacedrive-sub011/internal/entrystore"
	"github.com/spacedriveapp/spacedrive-sub011/internal/sidecar"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
)

// ThumbnailVariant names one output size configuration (spec.md §4.9:
// "scale to configured variant dimensions").
type ThumbnailVariant struct {
	Name string // e.g. "small", "large"
	Ext  string // sidecar file extension, e.g. "thumb"
}

// ThumbnailProcessor is the one in-repo stand-in codec spec.md §4.9 asks
// for: it does not actually scale or re-encode image bytes (a real image
// codec is out of scope per spec.md §1), it copies the source bytes
// through to the sidecar path so the dispatch/concurrency/sidecar-write
// contract has something real to exercise end to end. This is clearly a
// stand-in, not a production thumbnailer.
type ThumbnailProcessor struct {
	Store   *sidecar.Store
	Variant ThumbnailVariant
	// SidecarBackend writes the generated sidecar file. Sidecar paths
	// always live on local disk (spec.md §4.5) regardless of which
	// backend the source entry's volume uses, so this is deliberately a
	// separate handle from the backend argument Process receives.
	SidecarBackend volume.Backend
	// ContentHash resolves an entry's content-identity hash, when known,
	// so the sidecar is keyed by content (shared across hardlinked/
	// duplicate entries) rather than by EntryUUID. Left nil, every entry
	// gets its own per-UUID sidecar — still correct, just not deduplicated
	// across identical content.
	ContentHash func(ctx context.Context, entry entrystore.Entry) (string, error)
}

// NewThumbnailProcessor builds the stand-in thumbnail processor writing
// through store via sidecarBackend, for the given variant.
func NewThumbnailProcessor(store *sidecar.Store, sidecarBackend volume.Backend, variant ThumbnailVariant) *ThumbnailProcessor {
	return &ThumbnailProcessor{Store: store, SidecarBackend: sidecarBackend, Variant: variant}
}

func (p *ThumbnailProcessor) Name() string { return "thumbnail" }

func (p *ThumbnailProcessor) MIMETypes() []string {
	return []string{"image/jpeg", "image/png", "image/gif", "image/webp"}
}

func (p *ThumbnailProcessor) key(entry entrystore.Entry, hash string) sidecar.Key {
	if hash != "" {
		return sidecar.Key{ContentIdentity: hash}
	}
	return sidecar.Key{EntryUUID: entry.UUID}
}

// ShouldProcess reports false once a sidecar of this variant already
// exists for entry's content identity (spec.md §4.9).
func (p *ThumbnailProcessor) ShouldProcess(ctx context.Context, entry entrystore.Entry) (bool, error) {
	hash, err := p.hashFor(ctx, entry)
	if err != nil {
		return false, err
	}
	has, err := p.Store.Has(p.key(entry, hash), sidecar.KindThumb, p.Variant.Name, p.Variant.Ext)
	if err != nil {
		return false, err
	}
	return !has, nil
}

func (p *ThumbnailProcessor) hashFor(ctx context.Context, entry entrystore.Entry) (string, error) {
	if p.ContentHash == nil {
		return "", nil
	}
	return p.ContentHash(ctx, entry)
}

// Process reads absPath's bytes and writes them through to the sidecar
// store under the configured variant, deduplicated via GenerateOnce so
// concurrent dispatches for the same entry only run the stand-in "encode"
// once (spec.md §4.9 concurrency contract, spec.md §3 "at most one
// generator per (key, kind, variant)").
func (p *ThumbnailProcessor) Process(ctx context.Context, backend volume.Backend, absPath string, entry entrystore.Entry) Result {
	hash, err := p.hashFor(ctx, entry)
	if err != nil {
		return Result{Success: false, Err: err}
	}
	key := p.key(entry, hash)

	var bytesWritten int64
	err = p.Store.GenerateOnce(ctx, key, sidecar.KindThumb, p.Variant.Name, func(ctx context.Context) error {
		data, err := backend.Read(ctx, absPath)
		if err != nil {
			return err
		}
		sidecarPath, err := p.Store.ComputePath(key, sidecar.KindThumb, p.Variant.Name, p.Variant.Ext)
		if err != nil {
			return err
		}
		if err := p.SidecarBackend.Write(ctx, sidecarPath, data); err != nil {
			return err
		}
		if err := p.Store.Insert(key, sidecar.KindThumb, p.Variant.Name, p.Variant.Ext); err != nil {
			return err
		}
		bytesWritten = int64(len(data))
		return nil
	})
	if err != nil {
		return Result{Success: false, Err: err}
	}
	return Result{Success: true, BytesProcessed: bytesWritten}
}
