package processor

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/spacedriveapp/spacedrive-sub011/internal/entrystore"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
)

// DefaultWorkers is the default bounded worker pool size per job (spec.md
// §4.9: "a bounded worker pool per job (configurable, default 4)").
const DefaultWorkers = 4

// Task is one (processor, entry) dispatch unit.
type Task struct {
	Processor Processor
	AbsPath   string
	Entry     entrystore.Entry
}

// Pool runs Tasks against backend with at most Workers concurrent,
// each worker owning one file at a time (spec.md §4.9), via
// golang.org/x/sync/semaphore — the same library the teacher's discovery
// fan-out and rclone's transfer scheduling both lean on for bounded
// concurrency.
type Pool struct {
	Backend volume.Backend
	Workers int
}

// NewPool builds a Pool with workers concurrent slots, defaulting to
// DefaultWorkers when workers <= 0.
func NewPool(backend volume.Backend, workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pool{Backend: backend, Workers: workers}
}

// Run dispatches every task, honoring ShouldProcess, and returns results in
// the same order as tasks. It stops launching new tasks once ctx is
// cancelled but waits for in-flight ones to finish.
func (p *Pool) Run(ctx context.Context, tasks []Task) ([]Result, error) {
	results := make([]Result, len(tasks))
	sem := semaphore.NewWeighted(int64(p.Workers))

	for i, task := range tasks {
		i, task := i, task

		should, err := task.Processor.ShouldProcess(ctx, task.Entry)
		if err != nil {
			results[i] = Result{Success: false, Err: err}
			continue
		}
		if !should {
			results[i] = Result{Success: true}
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Result{Success: false, Err: err}
			continue
		}
		go func() {
			defer sem.Release(1)
			results[i] = task.Processor.Process(ctx, p.Backend, task.AbsPath, task.Entry)
		}()
	}

	// Acquiring the full weight blocks until every released slot has
	// returned, the simplest correct join for a semaphore-bounded pool. It
	// runs under context.Background so a cancelled ctx still waits for the
	// in-flight tasks.
	if err := sem.Acquire(context.Background(), int64(p.Workers)); err != nil {
		return results, err
	}
	sem.Release(int64(p.Workers))

	return results, ctx.Err()
}
