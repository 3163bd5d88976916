package indexer

import (
	"context"
	"sort"

	"github.com/spacedriveapp/spacedrive-sub011/internal/entrystore"
	"github.com/spacedriveapp/spacedrive-sub011/internal/job"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
)

type dirTotals struct {
	childCount    int64
	fileCount     int64
	aggregateSize int64
}

// aggregate runs the Aggregation phase (spec.md §4.7 step 3): directories
// are visited deepest-first by parent-chain depth so each directory's
// totals can be folded from its already-finalized children in one pass,
// rather than re-summing the whole subtree per directory.
func aggregate(ctx context.Context, jc *job.Context, q *entrystore.Queries, idByPath map[string]int64, walked []walkEntry) error {
	var dirs []walkEntry
	for _, w := range walked {
		if w.Kind == volume.KindDirectory {
			dirs = append(dirs, w)
		}
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Depth > dirs[j].Depth })

	computed := make(map[int64]dirTotals, len(dirs))
	var diffs []entrystore.EntryDiff

	for _, d := range dirs {
		if err := jc.CheckInterrupt(); err != nil {
			return err
		}

		id, ok := idByPath[d.RelPath]
		if !ok {
			continue
		}
		children, err := q.GetChildren(ctx, id)
		if err != nil {
			return err
		}

		var totals dirTotals
		totals.childCount = int64(len(children))
		for _, c := range children {
			switch c.Kind {
			case entrystore.KindFile:
				totals.fileCount++
				totals.aggregateSize += c.Size
			case entrystore.KindDirectory:
				sub := computed[c.ID]
				totals.fileCount += sub.fileCount
				totals.aggregateSize += sub.aggregateSize
			}
		}
		computed[id] = totals

		childCount, fileCount, size := totals.childCount, totals.fileCount, totals.aggregateSize
		diffs = append(diffs, entrystore.EntryDiff{
			ID: id, ChildCount: &childCount, FileCount: &fileCount, AggregateSize: &size,
		})
	}

	if len(diffs) == 0 {
		return nil
	}
	jc.Progress(job.Progress{Count: int64(len(diffs)), Indeterminate: "aggregating"})
	return q.UpdateBatch(ctx, diffs)
}
