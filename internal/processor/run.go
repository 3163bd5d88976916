package processor

import (
	"context"
	"strconv"

	"github.com/spacedriveapp/spacedrive-sub011/internal/entrystore"
	"github.com/spacedriveapp/spacedrive-sub011/internal/job"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
)

// Handler runs the Registry's processors over a set of entries as a
// job.Handler, giving processor dispatch the same pause/resume/cancel and
// progress contract every other long-running task gets (spec.md §4.6).
type Handler struct {
	Registry *Registry
	Store    *entrystore.Store
	Backend  volume.Backend
	Workers  int

	// Entries is the work list: (entry, resolved absolute path) pairs.
	// Callers build this from a location scan or a watcher-triggered
	// subset, same as the indexer's Applier scopes to affected paths.
	Entries []EntryRef
}

// EntryRef pairs an entrystore.Entry with its resolved absolute path,
// since Processor.Process needs a path to read through the backend.
type EntryRef struct {
	Entry   entrystore.Entry
	AbsPath string
}

func (h *Handler) Name() string    { return "processor" }
func (h *Handler) Resumable() bool { return false } // a fresh dispatch list is cheap to rebuild after restart

// Run dispatches every entry to the Processor claiming its MIME type,
// through a bounded worker pool (spec.md §4.9).
func (h *Handler) Run(jc *job.Context) error {
	ctx := jc.Context()
	pool := NewPool(h.Backend, h.Workers)

	var tasks []Task
	var skipped int
	for _, ref := range h.Entries {
		mime := DetectMIME(ref.Entry.Name)
		proc, ok := h.Registry.Lookup(mime)
		if !ok {
			skipped++
			continue
		}
		tasks = append(tasks, Task{Processor: proc, AbsPath: ref.AbsPath, Entry: ref.Entry})
	}
	if skipped > 0 {
		jc.Log("no processor claims " + strconv.Itoa(skipped) + " of the dispatched entries' MIME types")
	}

	results, err := pool.Run(ctx, tasks)
	if err != nil {
		return err
	}

	var processed, failed int64
	for i, r := range results {
		if err := jc.CheckInterrupt(); err != nil {
			return err
		}
		if r.Err != nil {
			jc.AddNonCriticalError(tasks[i].AbsPath + ": " + r.Err.Error())
			failed++
			continue
		}
		if r.Success {
			processed++
		}
	}

	jc.Progress(job.Progress{Count: processed, Indeterminate: "processing complete"})
	if failed > 0 {
		jc.Log(strconv.Itoa(int(failed)) + " entries failed processing, see non-critical log")
	}
	return nil
}
