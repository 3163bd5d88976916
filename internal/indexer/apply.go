package indexer

import (
	"context"
	"path"

	"github.com/spacedriveapp/spacedrive-sub011/internal/content"
	"github.com/spacedriveapp/spacedrive-sub011/internal/entrystore"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
	"github.com/spacedriveapp/spacedrive-sub011/internal/watcher"
)

// Applier implements watcher.BatchApplier by running Processing onward for
// only the paths a watcher batch names, rather than the full four-phase
// scan a Handler runs (spec.md §4.8: "batches are applied via a subset of
// the indexer phases (Processing onward), never triggering a full
// rescan").
type Applier struct {
	Backend    volume.Backend
	Store      *entrystore.Store
	LocationID int64
	RootPath   string
	RootName   string
	Mode       Mode
	Threshold  int64
}

// ApplyBatch implements watcher.BatchApplier.
func (a *Applier) ApplyBatch(ctx context.Context, batch watcher.Batch) error {
	q := a.Store.Queries()

	for _, c := range batch.Changes {
		if err := a.applyOne(ctx, q, c); err != nil {
			return err
		}
	}
	return nil
}

func (a *Applier) applyOne(ctx context.Context, q *entrystore.Queries, c watcher.Change) error {
	switch c.Kind {
	case watcher.ChangeDeleted:
		return a.applyDelete(ctx, q, c.Path)
	case watcher.ChangeMoved:
		return a.applyMove(ctx, q, c.OldPath, c.Path)
	case watcher.ChangeCreated:
		return a.applyUpsert(ctx, q, c.Path)
	case watcher.ChangeModified:
		return a.applyUpsert(ctx, q, c.Path)
	default:
		return nil
	}
}

func (a *Applier) relPath(changePath string) string {
	return joinRel(a.RootName, changePath)
}

func (a *Applier) absPath(changePath string) string {
	return path.Join(a.RootPath, changePath)
}

func (a *Applier) applyDelete(ctx context.Context, q *entrystore.Queries, changePath string) error {
	rel := a.relPath(changePath)
	existing, err := q.GetExisting(ctx, a.LocationID)
	if err != nil {
		return err
	}
	ex, ok := existing[rel]
	if !ok {
		return nil // already gone, or never indexed (e.g. a hidden file)
	}
	ids := []int64{ex.ID}
	if ex.Kind == entrystore.KindDirectory {
		descendants, err := q.GetDescendants(ctx, ex.ID)
		if err != nil {
			return err
		}
		for _, d := range descendants {
			ids = append(ids, d.ID)
		}
	}
	// Ancestors are looked up before the delete removes ex's closure rows.
	ancestors, err := q.GetAncestors(ctx, ex.ID)
	if err != nil {
		return err
	}
	if err := q.DeleteBatch(ctx, ids); err != nil {
		return err
	}
	return a.refold(ctx, q, ancestors)
}

func (a *Applier) applyMove(ctx context.Context, q *entrystore.Queries, oldChangePath, newChangePath string) error {
	oldRel := a.relPath(oldChangePath)
	newRel := a.relPath(newChangePath)

	existing, err := q.GetExisting(ctx, a.LocationID)
	if err != nil {
		return err
	}
	ex, ok := existing[oldRel]
	if !ok {
		// The old path was never indexed (e.g. it was hidden); treat the
		// destination as a fresh entry instead of a move.
		return a.applyUpsert(ctx, q, newChangePath)
	}

	newParent, parentOK := existing[parentRelPath(newRel)]
	if !parentOK {
		return nil // destination parent not yet indexed; a later rescan will reconcile
	}
	parentID := newParent.ID

	oldParentAncestors, err := q.GetAncestors(ctx, ex.ID)
	var oldParentID int64
	if err == nil && len(oldParentAncestors) > 0 {
		oldParentID = oldParentAncestors[0].ID
	}

	if err := q.Move(ctx, ex.ID, parentID, path.Base(newRel)); err != nil {
		return err
	}
	if oldParentID != 0 {
		if err := a.reaggregateAncestors(ctx, q, oldParentID); err != nil {
			return err
		}
	}
	return a.reaggregateAncestors(ctx, q, ex.ID)
}

func (a *Applier) applyUpsert(ctx context.Context, q *entrystore.Queries, changePath string) error {
	rel := a.relPath(changePath)
	abs := a.absPath(changePath)

	meta, err := a.Backend.Metadata(ctx, abs)
	if err != nil {
		return nil // path vanished between the event and now; a later Delete will follow
	}

	existing, err := q.GetExisting(ctx, a.LocationID)
	if err != nil {
		return err
	}

	if ex, ok := existing[rel]; ok {
		size, mtime := meta.Size, meta.ModTime
		if err := q.UpdateBatch(ctx, []entrystore.EntryDiff{{ID: ex.ID, Size: &size, ModTime: &mtime}}); err != nil {
			return err
		}
		if a.Mode != ModeShallow && meta.Kind == volume.KindFile {
			if err := a.identifyOne(ctx, q, ex.ID, abs); err != nil {
				return err
			}
		}
		return a.reaggregateAncestors(ctx, q, ex.ID)
	}

	parentRel := parentRelPath(rel)
	parent, ok := existing[parentRel]
	if !ok && parentRel != "" {
		return nil // parent not indexed yet; a later rescan will pick this up
	}
	var parentID *int64
	if ok {
		parentID = &parent.ID
	}

	id, err := insertOne(ctx, q, entrystore.NewEntry{
		UUID: newEntryUUID(), LocationID: a.LocationID, ParentID: parentID,
		Name: path.Base(rel), Kind: toEntryKind(meta.Kind), Size: meta.Size,
		ModTime: meta.ModTime, Inode: meta.Inode,
	})
	if err != nil {
		return err
	}
	if a.Mode != ModeShallow && meta.Kind == volume.KindFile {
		if err := a.identifyOne(ctx, q, id, abs); err != nil {
			return err
		}
	}
	return a.reaggregateAncestors(ctx, q, id)
}

func (a *Applier) identifyOne(ctx context.Context, q *entrystore.Queries, id int64, abs string) error {
	threshold := a.Threshold
	if threshold == 0 {
		threshold = content.LargeFileThreshold
	}
	identity, err := content.Identify(ctx, a.Backend, abs, content.IdentifyOptions{Threshold: threshold})
	if err != nil {
		return nil // non-critical in the full-scan phase too; a rescan will retry
	}
	ciID, err := q.UpsertContentIdentity(ctx, identity)
	if err != nil {
		return err
	}
	ciIDCopy := ciID
	return q.UpdateBatch(ctx, []entrystore.EntryDiff{{ID: id, ContentIdentityID: &ciIDCopy}})
}

// reaggregateAncestors recomputes child_count/file_count/aggregate_size for
// every ancestor of id, deepest first, the same fold Aggregation uses but
// scoped to one chain instead of the whole tree (spec.md §4.8's "subset of
// the indexer phases").
func (a *Applier) reaggregateAncestors(ctx context.Context, q *entrystore.Queries, id int64) error {
	ancestors, err := q.GetAncestors(ctx, id)
	if err != nil {
		return err
	}
	return a.refold(ctx, q, ancestors)
}

// refold recomputes the totals of each of ancestors, given closest-first.
func (a *Applier) refold(ctx context.Context, q *entrystore.Queries, ancestors []entrystore.Entry) error {
	// GetAncestors returns closest-first; that's already deepest-first.
	for _, anc := range ancestors {
		children, err := q.GetChildren(ctx, anc.ID)
		if err != nil {
			return err
		}
		var childCount, fileCount, aggregateSize int64
		for _, child := range children {
			childCount++
			if child.Kind == entrystore.KindFile {
				fileCount++
				aggregateSize += child.Size
			} else {
				fileCount += child.FileCount
				aggregateSize += child.AggregateSize
			}
		}
		if err := q.UpdateBatch(ctx, []entrystore.EntryDiff{{
			ID: anc.ID, ChildCount: &childCount, FileCount: &fileCount, AggregateSize: &aggregateSize,
		}}); err != nil {
			return err
		}
	}
	return nil
}
