package indexer

import (
	"github.com/spacedriveapp/spacedrive-sub011/internal/ephemeral"
	"github.com/spacedriveapp/spacedrive-sub011/internal/job"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
)

// runEphemeral builds an in-memory arena for a browse root (spec.md §4.7
// Persistence: Ephemeral). Only Discovery applies: there is no entry store
// to diff against, no previous index to detect moves from, and content
// identity exists to deduplicate library state across scans, which an
// ephemeral browse that never persists has no use for. Mode is otherwise
// ignored for ephemeral runs, a scope narrowing recorded in DESIGN.md.
func (h *Handler) runEphemeral(jc *job.Context, rootName string) error {
	walked, err := discover(jc.Context(), jc, h.Backend, h.RootPath, rootName, h.Options.Scope, h.Options.IncludeHidden)
	if err != nil {
		return err
	}

	idx := ephemeral.New(h.RootPath)
	idByPath := map[string]ephemeral.NodeID{rootName: idx.RootID}

	for _, w := range walked {
		if w.Depth == 0 {
			continue
		}
		parentID, ok := idByPath[parentRelPath(w.RelPath)]
		if !ok {
			jc.AddNonCriticalError("no resolved parent for " + w.RelPath + "; skipping")
			continue
		}
		nodeID := idx.AddChild(parentID, volume.DirEntry{
			Name: relBase(w.RelPath), Kind: w.Kind, Size: w.Size, ModTime: w.ModTime, Inode: w.Inode,
		})
		idByPath[w.RelPath] = nodeID
	}

	h.Result = idx
	jc.Progress(job.Progress{Count: int64(idx.Len()), Indeterminate: "ephemeral index built"})
	checkpoint(jc, phaseDone, nil)
	return nil
}
