package indexer

import (
	"context"
	"path"
	"time"

	"github.com/spacedriveapp/spacedrive-sub011/internal/entrystore"
	"github.com/spacedriveapp/spacedrive-sub011/internal/job"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
)

// modTimePrecision is the tolerance spec.md §4.7 allows when comparing
// mtimes ("within precision tolerance"), accommodating filesystems that
// truncate to whole-second resolution.
const modTimePrecision = time.Second

func sameModTime(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= modTimePrecision
}

func toEntryKind(k volume.EntryKind) entrystore.Kind {
	switch k {
	case volume.KindFile:
		return entrystore.KindFile
	case volume.KindSymlink:
		return entrystore.KindSymlink
	default:
		return entrystore.KindDirectory
	}
}

func parentRelPath(relPath string) string {
	dir := path.Dir(relPath)
	if dir == "." {
		return ""
	}
	return dir
}

// process runs the Processing phase (spec.md §4.7 step 2): change
// detection against the entry store, move/hardlink detection by inode, and
// application as batched inserts/updates/deletes against locationID.
// Returns the fully resolved relPath -> entry id map, for the Aggregation
// and Content-identification phases to reuse.
func process(ctx context.Context, jc *job.Context, q *entrystore.Queries, locationID int64, walked []walkEntry) (map[string]int64, error) {
	existing, err := q.GetExisting(ctx, locationID)
	if err != nil {
		return nil, err
	}

	inodeIndex := make(map[uint64]string, len(existing))
	for p, e := range existing {
		if e.Inode != nil {
			if _, taken := inodeIndex[*e.Inode]; !taken {
				inodeIndex[*e.Inode] = p
			}
		}
	}

	walkedSet := make(map[string]bool, len(walked))
	for _, w := range walked {
		walkedSet[w.RelPath] = true
	}

	idByPath := make(map[string]int64, len(existing))
	for p, e := range existing {
		idByPath[p] = e.ID
	}

	relocated := make(map[string]bool) // old paths resolved by a move, excluded from deletion
	var modified []entrystore.EntryDiff
	processed := 0

	for _, w := range walked {
		if err := jc.CheckInterrupt(); err != nil {
			return nil, err
		}

		ex, ok := existing[w.RelPath]
		if ok {
			wantKind := toEntryKind(w.Kind)
			if ex.Kind == wantKind {
				if ex.Size != w.Size || !sameModTime(ex.ModTime, w.ModTime) {
					size, mtime := w.Size, w.ModTime
					modified = append(modified, entrystore.EntryDiff{ID: ex.ID, Size: &size, ModTime: &mtime})
				}
				processed++
				continue
			}

			// Path conflict: same path, different kind. Newer mtime wins;
			// a tie favors the directory (spec.md §4.7 "Ordering and
			// tie-breaks").
			replace := w.ModTime.After(ex.ModTime) ||
				(w.ModTime.Equal(ex.ModTime) && w.Kind == volume.KindDirectory)
			if !replace {
				processed++
				continue
			}
			if err := q.DeleteBatch(ctx, []int64{ex.ID}); err != nil {
				return nil, err
			}
			delete(idByPath, w.RelPath)
		}

		if w.Depth == 0 {
			id, err := insertOne(ctx, q, entrystore.NewEntry{
				UUID: newEntryUUID(), LocationID: locationID, Name: path.Base(w.RelPath),
				Kind: toEntryKind(w.Kind), Size: w.Size, ModTime: w.ModTime, Inode: w.Inode,
			})
			if err != nil {
				return nil, err
			}
			idByPath[w.RelPath] = id
			processed++
			continue
		}

		if w.Inode != nil {
			if oldPath, found := inodeIndex[*w.Inode]; found && oldPath != w.RelPath && !walkedSet[oldPath] {
				oldEntry := existing[oldPath]
				parentID, parentOK := idByPath[parentRelPath(w.RelPath)]
				if parentOK {
					if err := q.Move(ctx, oldEntry.ID, parentID, path.Base(w.RelPath)); err != nil {
						return nil, err
					}
					idByPath[w.RelPath] = oldEntry.ID
					relocated[oldPath] = true
					processed++
					continue
				}
			}
		}

		parentID, parentOK := idByPath[parentRelPath(w.RelPath)]
		if !parentOK {
			jc.AddNonCriticalError("no resolved parent for " + w.RelPath + "; skipping")
			continue
		}
		parentIDCopy := parentID
		id, err := insertOne(ctx, q, entrystore.NewEntry{
			UUID: newEntryUUID(), LocationID: locationID, ParentID: &parentIDCopy,
			Name: path.Base(w.RelPath), Kind: toEntryKind(w.Kind), Size: w.Size,
			ModTime: w.ModTime, Inode: w.Inode,
		})
		if err != nil {
			return nil, err
		}
		idByPath[w.RelPath] = id
		processed++

		if processed%discoveryBatchSize == 0 {
			jc.Progress(job.Progress{Count: int64(processed), Indeterminate: "processing"})
		}
	}

	if len(modified) > 0 {
		if err := q.UpdateBatch(ctx, modified); err != nil {
			return nil, err
		}
	}

	var deletes []int64
	for p, e := range existing {
		if walkedSet[p] || relocated[p] {
			continue
		}
		deletes = append(deletes, e.ID)
	}
	if len(deletes) > 0 {
		if err := q.DeleteBatch(ctx, deletes); err != nil {
			return nil, err
		}
	}

	jc.Progress(job.Progress{Count: int64(processed), Indeterminate: "processing complete"})
	return idByPath, nil
}

// insertOne inserts a single entry, the simplest way to honor the BFS
// parent-before-child ordering InsertBatch relies on when ParentID values
// are being resolved live within the same scan rather than already
// persisted from a previous run.
func insertOne(ctx context.Context, q *entrystore.Queries, e entrystore.NewEntry) (int64, error) {
	ids, err := q.InsertBatch(ctx, []entrystore.NewEntry{e})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}
