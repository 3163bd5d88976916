package entrystore

import (
	"context"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
)

// Move rewires id (and everything under it) to a new parent, per spec.md
// §4.2's closure-table move discipline: "delete rows where descendant is
// in subtree-of-new and ancestor is NOT in subtree-of-new (disconnect);
// rewire to new parent subtree." Used by the indexer's Moved classification
// (spec.md §4.7).
func (q *Queries) Move(ctx context.Context, id, newParentID int64, newName string) error {
	// Disconnect id's subtree from its old ancestor chain: remove closure
	// rows pairing an ancestor outside the subtree with a descendant inside
	// it (every row but the subtree's own internal ones).
	if _, err := q.db.ExecContext(ctx, `
		DELETE FROM entry_closure
		WHERE descendant_id IN (
			SELECT descendant_id FROM entry_closure WHERE ancestor_id = ?
		)
		AND ancestor_id IN (
			SELECT ancestor_id FROM entry_closure WHERE descendant_id = ? AND ancestor_id != descendant_id
		)`, id, id,
	); err != nil {
		return errs.Wrap(errs.IO, "disconnect subtree closure rows", err)
	}

	if _, err := q.db.ExecContext(ctx,
		"UPDATE entries SET parent_id = ?, name = ?, indexed_at = datetime('now') WHERE id = ?",
		newParentID, newName, id,
	); err != nil {
		return errs.Wrap(errs.IO, "update moved entry", err)
	}

	// Re-attach: every ancestor of newParentID (plus newParentID itself)
	// becomes an ancestor of every node in id's subtree, at the
	// corresponding shifted depth.
	rows, err := q.db.QueryContext(ctx,
		"SELECT ancestor_id, depth FROM entry_closure WHERE descendant_id = ?", newParentID)
	if err != nil {
		return errs.Wrap(errs.IO, "load new parent ancestors", err)
	}
	type ancestor struct {
		id    int64
		depth int
	}
	var newAncestors []ancestor
	for rows.Next() {
		var a ancestor
		if err := rows.Scan(&a.id, &a.depth); err != nil {
			rows.Close()
			return errs.Wrap(errs.IO, "scan new parent ancestor", err)
		}
		newAncestors = append(newAncestors, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return errs.Wrap(errs.IO, "iterate new parent ancestors", err)
	}
	rows.Close()

	subtreeRows, err := q.db.QueryContext(ctx,
		"SELECT descendant_id, depth FROM entry_closure WHERE ancestor_id = ?", id)
	if err != nil {
		return errs.Wrap(errs.IO, "load subtree rows", err)
	}
	type subtreeMember struct {
		id    int64
		depth int
	}
	var subtree []subtreeMember
	for subtreeRows.Next() {
		var m subtreeMember
		if err := subtreeRows.Scan(&m.id, &m.depth); err != nil {
			subtreeRows.Close()
			return errs.Wrap(errs.IO, "scan subtree row", err)
		}
		subtree = append(subtree, m)
	}
	if err := subtreeRows.Err(); err != nil {
		subtreeRows.Close()
		return errs.Wrap(errs.IO, "iterate subtree rows", err)
	}
	subtreeRows.Close()

	for _, a := range newAncestors {
		for _, m := range subtree {
			if _, err := q.db.ExecContext(ctx,
				`INSERT OR IGNORE INTO entry_closure (ancestor_id, descendant_id, depth) VALUES (?, ?, ?)`,
				a.id, m.id, a.depth+1+m.depth,
			); err != nil {
				return errs.Wrap(errs.IO, "insert re-attached closure row", err)
			}
		}
	}
	return nil
}
