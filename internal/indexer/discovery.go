package indexer

import (
	"context"
	"path"
	"sort"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
	"github.com/spacedriveapp/spacedrive-sub011/internal/job"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
)

// discoveryBatchSize is the typical batch spec.md §4.7 names for Discovery
// progress reporting.
const discoveryBatchSize = 1000

// discover walks rootPath honoring scope and the hidden-entry policy,
// producing a flat, breadth-first-ordered list (parents always precede
// their children) with per-batch progress emitted through jc.
func discover(ctx context.Context, jc *job.Context, backend volume.Backend, rootPath string, rootName string, scope Scope, includeHidden bool) ([]walkEntry, error) {
	rootMeta, err := backend.Metadata(ctx, rootPath)
	if err != nil {
		return nil, errs.Wrap(errs.IO, "stat root", err)
	}

	root := walkEntry{
		AbsPath: rootPath, RelPath: rootName, Depth: 0,
		Kind: volume.KindDirectory, ModTime: rootMeta.ModTime, Inode: rootMeta.Inode,
	}

	var out []walkEntry
	out = append(out, root)

	queue := []walkEntry{root}
	emitted := 0

	for len(queue) > 0 {
		if err := jc.CheckInterrupt(); err != nil {
			return nil, err
		}

		dir := queue[0]
		queue = queue[1:]

		if dir.Kind != volume.KindDirectory || !scope.allows(dir.Depth+1) {
			continue
		}

		children, err := backend.ReadDir(ctx, dir.AbsPath)
		if err != nil {
			jc.AddNonCriticalError("read dir " + dir.AbsPath + ": " + err.Error())
			continue
		}
		sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })

		for _, c := range children {
			if !includeHidden && isHidden(c.Name) {
				continue
			}
			entry := walkEntry{
				AbsPath: path.Join(dir.AbsPath, c.Name),
				RelPath: joinRel(dir.RelPath, c.Name),
				Depth:   dir.Depth + 1,
				Kind:    c.Kind,
				Size:    c.Size,
				ModTime: c.ModTime,
				Inode:   c.Inode,
			}
			out = append(out, entry)
			emitted++
			if entry.Kind == volume.KindDirectory {
				queue = append(queue, entry)
			}
			if emitted%discoveryBatchSize == 0 {
				jc.Progress(job.Progress{Count: int64(emitted), Indeterminate: "discovering"})
			}
		}
	}

	jc.Progress(job.Progress{Count: int64(emitted), Indeterminate: "discovery complete"})
	return out, nil
}
