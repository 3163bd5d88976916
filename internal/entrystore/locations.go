package entrystore

import (
	"context"
	"database/sql"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
)

// CreateLocation persists a new Location (spec.md §3 "Location"), which is
// immutable once created until it is removed (spec.md §3 Lifecycles).
func (q *Queries) CreateLocation(ctx context.Context, loc Location) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO locations (uuid, device_id, root_entry_id, display_name, index_mode, include_hidden, created_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))`,
		loc.UUID, loc.DeviceID, nullInt64(loc.RootEntryID), loc.DisplayName, string(loc.IndexMode), loc.IncludeHidden,
	)
	if err != nil {
		return 0, errs.Wrap(errs.IO, "create location", err)
	}
	return res.LastInsertId()
}

// SetLocationRoot records the root entry id once the root directory entry
// has been inserted (locations are created before their root entry exists).
func (q *Queries) SetLocationRoot(ctx context.Context, locationID, rootEntryID int64) error {
	if _, err := q.db.ExecContext(ctx,
		"UPDATE locations SET root_entry_id = ? WHERE id = ?", rootEntryID, locationID,
	); err != nil {
		return errs.Wrap(errs.IO, "set location root", err)
	}
	return nil
}

// GetLocation loads a location by id.
func (q *Queries) GetLocation(ctx context.Context, id int64) (Location, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, uuid, device_id, root_entry_id, display_name, index_mode, include_hidden, created_at
		FROM locations WHERE id = ?`, id)

	var loc Location
	var rootEntryID sql.NullInt64
	var indexMode string
	if err := row.Scan(&loc.ID, &loc.UUID, &loc.DeviceID, &rootEntryID, &loc.DisplayName,
		&indexMode, &loc.IncludeHidden, &loc.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Location{}, errs.New(errs.NotFound, "location not found")
		}
		return Location{}, errs.Wrap(errs.IO, "scan location", err)
	}
	loc.RootEntryID = ptrFromNullInt64(rootEntryID)
	loc.IndexMode = IndexMode(indexMode)
	return loc, nil
}

// DeleteLocation removes a location. Per spec.md §3 Lifecycles, "root entry
// is deleted when the location is removed" — callers must pass the root
// entry's full descendant set (via GetDescendants) plus the root itself to
// DeleteBatch before calling this, the same explicit-cascade discipline
// DeleteBatch itself enforces.
func (q *Queries) DeleteLocation(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM locations WHERE id = ?", id); err != nil {
		return errs.Wrap(errs.IO, "delete location", err)
	}
	return nil
}

// ListLocations returns every tracked location.
func (q *Queries) ListLocations(ctx context.Context) ([]Location, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, uuid, device_id, root_entry_id, display_name, index_mode, include_hidden, created_at
		FROM locations ORDER BY id`)
	if err != nil {
		return nil, errs.Wrap(errs.IO, "list locations", err)
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		var loc Location
		var rootEntryID sql.NullInt64
		var indexMode string
		if err := rows.Scan(&loc.ID, &loc.UUID, &loc.DeviceID, &rootEntryID, &loc.DisplayName,
			&indexMode, &loc.IncludeHidden, &loc.CreatedAt); err != nil {
			return nil, errs.Wrap(errs.IO, "scan location row", err)
		}
		loc.RootEntryID = ptrFromNullInt64(rootEntryID)
		loc.IndexMode = IndexMode(indexMode)
		out = append(out, loc)
	}
	return out, rows.Err()
}
