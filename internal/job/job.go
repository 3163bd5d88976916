// Package job implements the resumable, pausable, cancellable task
// scheduler described in spec.md §4.6. Its control-loop shape generalizes
// the teacher's Worker (stopCh/doneCh/mu/running in internal/sync/worker.go)
// from one fixed background sync loop into a per-job, typed state machine.
package job

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spacedriveapp/spacedrive-sub011/internal/entrystore"
	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
	"github.com/spacedriveapp/spacedrive-sub011/internal/eventbus"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
)

// Status is one of the job record's lifecycle states (spec.md §3 "Job
// record").
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether status accepts no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Progress is reported via JobContext.Progress, one of three shapes per
// spec.md §4.6.
type Progress struct {
	// Percent is set for determinate progress; ignored when Indeterminate
	// or Count is used.
	Percent float64
	// Indeterminate carries a free-text status message when percentage
	// isn't meaningful (e.g. "scanning directories").
	Indeterminate string
	// Count carries a raw item count for phases counted in items rather
	// than percent (e.g. "10000 entries processed").
	Count int64
}

// Handler is the interface a Job implementation satisfies (spec.md §4.6:
// "a value that implements a handler trait"). State is whatever the job
// needs to resume after a checkpoint; it round-trips through JSON via
// Checkpoint/Restore.
type Handler interface {
	// Name identifies the job type, used for the persisted record and for
	// matching a Handler to resume saved state against.
	Name() string
	// Resumable reports whether Run can be called again against
	// previously checkpointed state after a process restart.
	Resumable() bool
	// Run executes the job body. It must poll ctx.CheckInterrupt() at
	// reasonable intervals (between batches, not mid I/O-call) to honor
	// pause/cancel.
	Run(ctx *Context) error
}

// Resumer is implemented by Handlers whose Resumable() is true. Manager's
// restart-recovery path (Redispatch) calls Restore with a persisted
// Record's StateBlob before starting Run, so a resumed job continues from
// its last checkpoint instead of restarting from scratch (spec.md §4.7:
// "On restart, the saved phase is resumed").
type Resumer interface {
	Restore(state []byte) error
}

// MetaProvider lets a Handler attach small descriptive metadata to its
// persisted Record (e.g. which Location it indexes). A Handler holding a
// volume.Backend can't be reconstructed generically from a Record alone,
// so a domain-specific restart-recovery path (e.g. Core.ResumeIndexing)
// reads Meta to find and rebuild the right Handler before calling
// Manager.Redispatch.
type MetaProvider interface {
	JobMeta() []byte
}

// PauseHook and CancelHook are optional lifecycle hooks a Handler may
// additionally implement (spec.md §4.6: "optional on_pause/on_resume/
// on_cancel lifecycle hooks").
type PauseHook interface {
	OnPause(ctx *Context)
}
type ResumeHook interface {
	OnResume(ctx *Context)
}
type CancelHook interface {
	OnCancel(ctx *Context)
}

// Record is the persisted representation of a job (spec.md §3 "Job
// record").
type Record struct {
	ID              string
	Name            string
	Status          Status
	Progress        Progress
	StateBlob       []byte
	ParentID        *string
	// Meta is set from a Handler's MetaProvider at Dispatch time, if it
	// implements one; otherwise nil.
	Meta            []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	NonCriticalLogs []string
}

// Store persists job Records (spec.md §3 "Job record ... persisted at
// creation; checkpointed periodically", §6 "jobs"). Implemented by
// *entrystore.Queries; kept as an interface here (rather than depending on
// *entrystore.Store directly) so Manager stays testable against a fake.
type Store interface {
	SaveJob(ctx context.Context, r entrystore.JobRow) error
	ListJobs(ctx context.Context) ([]entrystore.JobRow, error)
}

func recordToRow(r Record) entrystore.JobRow {
	return entrystore.JobRow{
		ID:                    r.ID,
		Name:                  r.Name,
		Status:                string(r.Status),
		ProgressPercent:       r.Progress.Percent,
		ProgressIndeterminate: r.Progress.Indeterminate,
		ProgressCount:         r.Progress.Count,
		StateBlob:             r.StateBlob,
		ParentID:              r.ParentID,
		Meta:                  r.Meta,
		NonCriticalLogs:       r.NonCriticalLogs,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

// RecordFromRow converts a persisted entrystore.JobRow back to a Record,
// for restart-recovery callers (e.g. Core.ResumeIndexing) that load a row
// directly rather than through Manager.
func RecordFromRow(row entrystore.JobRow) Record {
	return Record{
		ID:     row.ID,
		Name:   row.Name,
		Status: Status(row.Status),
		Progress: Progress{
			Percent:       row.ProgressPercent,
			Indeterminate: row.ProgressIndeterminate,
			Count:         row.ProgressCount,
		},
		StateBlob:       row.StateBlob,
		ParentID:        row.ParentID,
		Meta:            row.Meta,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		NonCriticalLogs: row.NonCriticalLogs,
	}
}

// Deps bundles the handles a Context exposes to running jobs, matching
// spec.md §4.6's JobContext surface (library_db/volume_manager/event_bus).
// A Manager is constructed once with a Deps value and hands the same
// handles to every job it runs — no package-level singletons (spec.md §9).
type Deps struct {
	VolumeManager *volume.Manager
	EventBus      *eventbus.Bus
	// LibraryDB is left as `any` here rather than *entrystore.Store so
	// handlers stay agnostic of exactly which store type backs a given
	// library; handlers type-assert to the concrete store they expect.
	LibraryDB any
	// Store persists every Record mutation so a job survives a process
	// restart (spec.md §4.6/§4.7). May be nil in tests that don't need
	// persistence, in which case Checkpoint/Progress/Log degrade to the
	// old in-memory-only behavior.
	Store Store
}

// control is the pause/resume/cancel signal a running job selects against
// at each CheckInterrupt call, mirroring the teacher's ctx.Done()/w.stopCh
// select in Worker.run.
type control struct {
	pauseCh  chan struct{}
	resumeCh chan struct{}
	cancelCh chan struct{}
	paused   bool
}

// Context is the per-run JobContext handed to Handler.Run (spec.md §4.6).
type Context struct {
	ctx     context.Context
	job     *handle
	deps    Deps
	log     func(msg string)
	control *control
}

// CheckInterrupt blocks while paused and returns an error if the job has
// been cancelled, the suspension/cancel check point spec.md §4.6 requires
// Handler.Run to poll.
func (c *Context) CheckInterrupt() error {
	for {
		select {
		case <-c.control.cancelCh:
			return errs.New(errs.Cancelled, "job cancelled")
		case <-c.control.pauseCh:
			c.control.paused = true
			c.job.setStatus(StatusPaused)
			if h, ok := c.job.handler.(PauseHook); ok {
				h.OnPause(c)
			}
			select {
			case <-c.control.resumeCh:
				c.control.paused = false
				c.job.setStatus(StatusRunning)
				if h, ok := c.job.handler.(ResumeHook); ok {
					h.OnResume(c)
				}
			case <-c.control.cancelCh:
				return errs.New(errs.Cancelled, "job cancelled while paused")
			}
		default:
			if err := c.ctx.Err(); err != nil {
				return errs.Wrap(errs.Cancelled, "job context done", err)
			}
			return nil
		}
	}
}

// Progress records a Progress update on the job's record and persists it.
func (c *Context) Progress(p Progress) {
	c.job.setProgress(p)
	c.persist()
}

// Log appends an informational message visible via Info, and persists it.
func (c *Context) Log(msg string) {
	c.job.appendLog(msg)
	c.log(msg)
	c.persist()
}

// AddNonCriticalError records a recoverable per-item failure without
// stopping the job (spec.md §4.6, §4.7: "per-entry errors go to
// non-critical").
func (c *Context) AddNonCriticalError(msg string) {
	c.job.appendLog("error: " + msg)
	c.persist()
}

// Checkpoint persists state so a resumable job can continue from here
// after a restart (spec.md §4.6): it writes the state blob into the job's
// record in the in-memory handle and, when a Store is configured, through
// to the jobs table immediately, not just at the next status change.
func (c *Context) Checkpoint(state []byte) {
	c.job.setStateBlob(state)
	c.persist()
}

// persist writes the job's current record to deps.Store, if one is
// configured. Best-effort: a failed write is not fatal to the running
// job, since the next mutation retries it and a crash before any
// successful write simply resumes from the previous checkpoint.
func (c *Context) persist() {
	if c.deps.Store == nil {
		return
	}
	_ = c.deps.Store.SaveJob(c.ctx, recordToRow(c.job.snapshot()))
}

// VolumeManager returns the volume manager handed to the owning Manager.
func (c *Context) VolumeManager() *volume.Manager { return c.deps.VolumeManager }

// EventBus returns the event bus handed to the owning Manager.
func (c *Context) EventBus() *eventbus.Bus { return c.deps.EventBus }

// LibraryDB returns the library database handle, typed `any` to avoid an
// import cycle; handlers type-assert to their expected store type.
func (c *Context) LibraryDB() any { return c.deps.LibraryDB }

// Context returns the underlying context.Context for calls that need one
// directly (e.g. volume.Backend methods).
func (c *Context) Context() context.Context { return c.ctx }

func newJobID() string { return uuid.NewString() }
