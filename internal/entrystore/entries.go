package entrystore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
)

// maxBindChunk honors SQLite's ~999 bind-parameter limit (spec.md §4.2:
// "SQLite bind-parameter limit (~999) is honored by chunking batches
// (chunk size 200–900)"). Kept at the low end of that range since several
// call sites bind more than one parameter per logical row.
const maxBindChunk = 400

func chunkInt64(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = maxBindChunk
	}
	var chunks [][]int64
	for len(ids) > 0 {
		n := size
		if n > len(ids) {
			n = len(ids)
		}
		chunks = append(chunks, ids[:n])
		ids = ids[n:]
	}
	return chunks
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullUint64(p *uint64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func ptrFromNullInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func ptrUintFromNullInt64(n sql.NullInt64) *uint64 {
	if !n.Valid {
		return nil
	}
	v := uint64(n.Int64)
	return &v
}

// InsertBatch inserts entries (each carrying an already-resolved ParentID
// pointer, per spec.md §4.2) and maintains the closure table per the
// discipline in spec.md §4.2: "INSERT self row then INSERT (a, new, d+1)
// FOR (a, parent, d)". Returns the assigned numeric ids in input order.
func (q *Queries) InsertBatch(ctx context.Context, entries []NewEntry) ([]int64, error) {
	ids := make([]int64, len(entries))
	for i, e := range entries {
		res, err := q.db.ExecContext(ctx, `
			INSERT INTO entries
				(uuid, location_id, parent_id, name, kind, size, mtime, ctime, indexed_at, inode)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), ?)`,
			e.UUID, e.LocationID, nullInt64(e.ParentID), e.Name, string(e.Kind), e.Size,
			e.ModTime, e.ChangeTime, nullUint64(e.Inode),
		)
		if err != nil {
			return nil, errs.Wrap(errs.IO, "insert entry", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, errs.Wrap(errs.IO, "read inserted entry id", err)
		}
		ids[i] = id

		if _, err := q.db.ExecContext(ctx,
			`INSERT INTO entry_closure (ancestor_id, descendant_id, depth) VALUES (?, ?, 0)`,
			id, id,
		); err != nil {
			return nil, errs.Wrap(errs.IO, "insert closure self row", err)
		}

		if e.ParentID != nil {
			if err := q.insertAncestorClosure(ctx, *e.ParentID, id); err != nil {
				return nil, err
			}
		}
	}
	return ids, nil
}

// insertAncestorClosure copies every ancestor of parentID into childID's
// closure row set at depth+1, the second half of spec.md §4.2's insert
// discipline.
func (q *Queries) insertAncestorClosure(ctx context.Context, parentID, childID int64) error {
	rows, err := q.db.QueryContext(ctx,
		`SELECT ancestor_id, depth FROM entry_closure WHERE descendant_id = ?`, parentID)
	if err != nil {
		return errs.Wrap(errs.IO, "load parent closure rows", err)
	}
	type ancestor struct {
		id    int64
		depth int
	}
	var ancestors []ancestor
	for rows.Next() {
		var a ancestor
		if err := rows.Scan(&a.id, &a.depth); err != nil {
			rows.Close()
			return errs.Wrap(errs.IO, "scan closure row", err)
		}
		ancestors = append(ancestors, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return errs.Wrap(errs.IO, "iterate closure rows", err)
	}
	rows.Close()

	for _, a := range ancestors {
		if _, err := q.db.ExecContext(ctx,
			`INSERT INTO entry_closure (ancestor_id, descendant_id, depth) VALUES (?, ?, ?)`,
			a.id, childID, a.depth+1,
		); err != nil {
			return errs.Wrap(errs.IO, "insert ancestor closure row", err)
		}
	}
	return nil
}

// UpdateBatch applies diff atomically per id (spec.md §4.2: "update_batch(id,
// diff) atomic per-id"). Only non-nil EntryDiff fields change.
func (q *Queries) UpdateBatch(ctx context.Context, diffs []EntryDiff) error {
	for _, d := range diffs {
		var sets []string
		var args []any
		if d.Size != nil {
			sets = append(sets, "size = ?")
			args = append(args, *d.Size)
		}
		if d.ModTime != nil {
			sets = append(sets, "mtime = ?")
			args = append(args, *d.ModTime)
		}
		if d.ChangeTime != nil {
			sets = append(sets, "ctime = ?")
			args = append(args, *d.ChangeTime)
		}
		if d.Inode != nil {
			sets = append(sets, "inode = ?")
			args = append(args, int64(*d.Inode))
		}
		if d.ContentIdentityID != nil {
			sets = append(sets, "content_identity_id = ?")
			args = append(args, *d.ContentIdentityID)
		}
		if d.AggregateSize != nil {
			sets = append(sets, "aggregate_size = ?")
			args = append(args, *d.AggregateSize)
		}
		if d.ChildCount != nil {
			sets = append(sets, "child_count = ?")
			args = append(args, *d.ChildCount)
		}
		if d.FileCount != nil {
			sets = append(sets, "file_count = ?")
			args = append(args, *d.FileCount)
		}
		if len(sets) == 0 {
			continue
		}
		sets = append(sets, "indexed_at = datetime('now')")
		args = append(args, d.ID)

		query := fmt.Sprintf("UPDATE entries SET %s WHERE id = ?", strings.Join(sets, ", "))
		if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
			return errs.Wrap(errs.IO, "update entry", err)
		}
	}
	return nil
}

// DeleteBatch removes entries and their closure rows. It does not cascade
// to children by design (spec.md §4.2): callers must supply descendant ids
// themselves, obtained from GetDescendants, to keep the operation explicit.
func (q *Queries) DeleteBatch(ctx context.Context, ids []int64) error {
	for _, chunk := range chunkInt64(ids, maxBindChunk) {
		ph := placeholders(len(chunk))
		args := int64Args(chunk)

		if _, err := q.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM entry_closure WHERE ancestor_id IN (%s) OR descendant_id IN (%s)", ph, ph),
			append(append([]any{}, args...), args...)...,
		); err != nil {
			return errs.Wrap(errs.IO, "delete closure rows", err)
		}
		if _, err := q.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM entries WHERE id IN (%s)", ph), args...,
		); err != nil {
			return errs.Wrap(errs.IO, "delete entries", err)
		}
	}
	return nil
}

func scanEntry(row interface {
	Scan(dest ...any) error
}) (Entry, error) {
	var e Entry
	var kind string
	var parentID, contentIdentityID, metadataID, inode sql.NullInt64
	var modTime, changeTime sql.NullTime
	if err := row.Scan(
		&e.ID, &e.UUID, &e.LocationID, &parentID, &e.Name, &kind, &e.Size,
		&modTime, &changeTime, &e.IndexedAt, &inode, &contentIdentityID, &metadataID,
		&e.AggregateSize, &e.ChildCount, &e.FileCount,
	); err != nil {
		return Entry{}, err
	}
	e.Kind = Kind(kind)
	e.ParentID = ptrFromNullInt64(parentID)
	e.ContentIdentityID = ptrFromNullInt64(contentIdentityID)
	e.MetadataID = ptrFromNullInt64(metadataID)
	e.Inode = ptrUintFromNullInt64(inode)
	if modTime.Valid {
		e.ModTime = modTime.Time
	}
	if changeTime.Valid {
		e.ChangeTime = changeTime.Time
	}
	return e, nil
}

const entryColumns = `id, uuid, location_id, parent_id, name, kind, size,
	mtime, ctime, indexed_at, inode, content_identity_id, metadata_id,
	aggregate_size, child_count, file_count`

// GetChildren returns the immediate children of id.
func (q *Queries) GetChildren(ctx context.Context, id int64) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE parent_id = ?", id)
	if err != nil {
		return nil, errs.Wrap(errs.IO, "query children", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// GetDescendants returns all descendants of id via the closure table,
// ordered by depth so shallower entries (e.g. for cascading delete
// planning) come first.
func (q *Queries) GetDescendants(ctx context.Context, id int64) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+qualifiedColumns("e")+`
		FROM entry_closure c
		JOIN entries e ON e.id = c.descendant_id
		WHERE c.ancestor_id = ? AND c.depth > 0
		ORDER BY c.depth ASC`, id)
	if err != nil {
		return nil, errs.Wrap(errs.IO, "query descendants", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// GetAncestors returns the ancestors of id ordered by depth ascending
// (closest parent first), per spec.md §4.2.
func (q *Queries) GetAncestors(ctx context.Context, id int64) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+qualifiedColumns("e")+`
		FROM entry_closure c
		JOIN entries e ON e.id = c.ancestor_id
		WHERE c.descendant_id = ? AND c.depth > 0
		ORDER BY c.depth ASC`, id)
	if err != nil {
		return nil, errs.Wrap(errs.IO, "query ancestors", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func qualifiedColumns(alias string) string {
	cols := strings.Split(strings.ReplaceAll(entryColumns, "\n", ""), ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errs.Wrap(errs.IO, "scan entry row", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountDescendants returns the number of descendants of id (excluding
// itself).
func (q *Queries) CountDescendants(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entry_closure WHERE ancestor_id = ? AND depth > 0", id,
	).Scan(&n)
	if err != nil {
		return 0, errs.Wrap(errs.IO, "count descendants", err)
	}
	return n, nil
}

// AggregateSize sums the size of every file descendant of id, for
// verifying the aggregation phase (spec.md §4.7) independently of the
// stored aggregate_size column.
func (q *Queries) AggregateSize(ctx context.Context, id int64) (int64, error) {
	var total sql.NullInt64
	err := q.db.QueryRowContext(ctx, `
		SELECT SUM(e.size)
		FROM entry_closure c
		JOIN entries e ON e.id = c.descendant_id
		WHERE c.ancestor_id = ? AND c.depth > 0 AND e.kind = 'file'`, id,
	).Scan(&total)
	if err != nil {
		return 0, errs.Wrap(errs.IO, "aggregate size", err)
	}
	return total.Int64, nil
}

// ResolvePath reconstructs the full path of id by walking its ancestors
// (spec.md §4.2: "resolve_path(id) → full path string by walking
// ancestors").
func (q *Queries) ResolvePath(ctx context.Context, id int64) (string, error) {
	ancestors, err := q.GetAncestors(ctx, id)
	if err != nil {
		return "", err
	}
	self, err := q.GetEntry(ctx, id)
	if err != nil {
		return "", err
	}

	// Ancestors come back closest-first; reverse to root-first order.
	parts := make([]string, 0, len(ancestors)+1)
	for i := len(ancestors) - 1; i >= 0; i-- {
		parts = append(parts, ancestors[i].Name)
	}
	parts = append(parts, self.Name)
	return strings.Join(parts, "/"), nil
}

// GetEntry loads a single entry by id.
func (q *Queries) GetEntry(ctx context.Context, id int64) (Entry, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM entries WHERE id = ?", id)
	e, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, errs.New(errs.NotFound, "entry not found")
		}
		return Entry{}, errs.Wrap(errs.IO, "scan entry", err)
	}
	return e, nil
}

// GetExisting returns path -> (id, inode, mtime, size) for every entry
// under locationID, for the indexer's change-detection pass (spec.md §4.2
// "get_existing"). Paths are computed the same way ResolvePath does, but
// in bulk.
func (q *Queries) GetExisting(ctx context.Context, locationID int64) (map[string]ExistingEntry, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE location_id = ?", locationID)
	if err != nil {
		return nil, errs.Wrap(errs.IO, "query existing entries", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	out := make(map[string]ExistingEntry, len(entries))
	for _, e := range entries {
		out[pathOf(e, byID)] = ExistingEntry{ID: e.ID, Kind: e.Kind, Inode: e.Inode, ModTime: e.ModTime, Size: e.Size}
	}
	return out, nil
}

func pathOf(e Entry, byID map[int64]Entry) string {
	parts := []string{e.Name}
	cur := e
	for cur.ParentID != nil {
		parent, ok := byID[*cur.ParentID]
		if !ok {
			break
		}
		parts = append([]string{parent.Name}, parts...)
		cur = parent
	}
	return strings.Join(parts, "/")
}
