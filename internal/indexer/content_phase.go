package indexer

import (
	"context"

	"github.com/spacedriveapp/spacedrive-sub011/internal/content"
	"github.com/spacedriveapp/spacedrive-sub011/internal/entrystore"
	"github.com/spacedriveapp/spacedrive-sub011/internal/job"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
)

// identifyContent runs the Content-identification phase (spec.md §4.7 step
// 4, Content and Deep modes only): every file entry without a current
// content identity is hashed, upserted into content_identity, and linked.
// Chunk size follows the volume's advertised optimal chunk size, honored
// inside content.Identify.
func identifyContent(ctx context.Context, jc *job.Context, backend volume.Backend, q *entrystore.Queries, idByPath map[string]int64, walked []walkEntry, threshold int64) error {
	opts := content.IdentifyOptions{Threshold: threshold}
	if opts.Threshold == 0 {
		opts.Threshold = content.LargeFileThreshold
	}

	processed := 0
	for _, w := range walked {
		if w.Kind != volume.KindFile {
			continue
		}
		if err := jc.CheckInterrupt(); err != nil {
			return err
		}

		id, ok := idByPath[w.RelPath]
		if !ok {
			continue
		}
		entry, err := q.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		if entry.ContentIdentityID != nil {
			continue
		}

		identity, err := content.Identify(ctx, backend, w.AbsPath, opts)
		if err != nil {
			jc.AddNonCriticalError("identify " + w.AbsPath + ": " + err.Error())
			continue
		}
		ciID, err := q.UpsertContentIdentity(ctx, identity)
		if err != nil {
			return err
		}
		ciIDCopy := ciID
		if err := q.UpdateBatch(ctx, []entrystore.EntryDiff{{ID: id, ContentIdentityID: &ciIDCopy}}); err != nil {
			return err
		}

		processed++
		if processed%discoveryBatchSize == 0 {
			jc.Progress(job.Progress{Count: int64(processed), Indeterminate: "identifying content"})
		}
	}

	jc.Progress(job.Progress{Count: int64(processed), Indeterminate: "content identification complete"})
	return nil
}
