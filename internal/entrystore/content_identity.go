package entrystore

import (
	"context"
	"database/sql"

	"github.com/spacedriveapp/spacedrive-sub011/internal/content"
	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
)

// ContentIdentityRecord is spec.md §3 "Content identity": a record keyed by
// a hash of file content, refcounted for garbage collection.
type ContentIdentityRecord struct {
	ID       int64
	Hash     string
	Size     int64
	Scheme   content.Scheme
	MimeType *string
	RefCount int64
}

// UpsertContentIdentity inserts a content identity if absent, or returns
// the existing row's id, incrementing ref_count either way — the indexer's
// Content identification phase (spec.md §4.7) calls this once per hashed
// file, linking the entry afterward via UpdateBatch.
func (q *Queries) UpsertContentIdentity(ctx context.Context, id content.Identity) (int64, error) {
	if _, err := q.db.ExecContext(ctx, `
		INSERT INTO content_identity (hash, size, scheme, ref_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(hash) DO UPDATE SET ref_count = ref_count + 1`,
		id.Hash, id.Size, string(id.Scheme),
	); err != nil {
		return 0, errs.Wrap(errs.IO, "upsert content identity", err)
	}

	// LastInsertId is unreliable across the insert/conflict-update branches
	// of an upsert, so the id is always read back by the natural key.
	var existingID int64
	if err := q.db.QueryRowContext(ctx,
		"SELECT id FROM content_identity WHERE hash = ?", id.Hash,
	).Scan(&existingID); err != nil {
		return 0, errs.Wrap(errs.IO, "load upserted content identity id", err)
	}
	return existingID, nil
}

// ReleaseContentIdentity decrements ref_count, for when an entry is
// deleted or re-linked to a different content identity. Rows at ref_count
// zero are left for a sweep (spec.md §3 Lifecycles: "garbage-collectable
// when refcount drops to zero and no sidecar references it") rather than
// deleted immediately, since a sidecar may still reference the hash.
func (q *Queries) ReleaseContentIdentity(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx,
		"UPDATE content_identity SET ref_count = MAX(ref_count - 1, 0) WHERE id = ?", id,
	); err != nil {
		return errs.Wrap(errs.IO, "release content identity", err)
	}
	return nil
}

// GetContentIdentity loads a content identity by id.
func (q *Queries) GetContentIdentity(ctx context.Context, id int64) (ContentIdentityRecord, error) {
	var r ContentIdentityRecord
	var scheme string
	var mime sql.NullString
	err := q.db.QueryRowContext(ctx,
		"SELECT id, hash, size, scheme, mime_type, ref_count FROM content_identity WHERE id = ?", id,
	).Scan(&r.ID, &r.Hash, &r.Size, &scheme, &mime, &r.RefCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return ContentIdentityRecord{}, errs.New(errs.NotFound, "content identity not found")
		}
		return ContentIdentityRecord{}, errs.Wrap(errs.IO, "scan content identity", err)
	}
	r.Scheme = content.Scheme(scheme)
	if mime.Valid {
		r.MimeType = &mime.String
	}
	return r, nil
}

// ZeroRefCountIdentities lists content identities eligible for sweep, i.e.
// ref_count = 0, for the sidecar store's cleanup_orphans pass.
func (q *Queries) ZeroRefCountIdentities(ctx context.Context) ([]ContentIdentityRecord, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, hash, size, scheme, mime_type, ref_count FROM content_identity WHERE ref_count <= 0")
	if err != nil {
		return nil, errs.Wrap(errs.IO, "query zero refcount identities", err)
	}
	defer rows.Close()

	var out []ContentIdentityRecord
	for rows.Next() {
		var r ContentIdentityRecord
		var scheme string
		var mime sql.NullString
		if err := rows.Scan(&r.ID, &r.Hash, &r.Size, &scheme, &mime, &r.RefCount); err != nil {
			return nil, errs.Wrap(errs.IO, "scan content identity row", err)
		}
		r.Scheme = content.Scheme(scheme)
		if mime.Valid {
			r.MimeType = &mime.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
