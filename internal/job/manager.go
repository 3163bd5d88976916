package job

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
	"github.com/spacedriveapp/spacedrive-sub011/internal/logging"
)

// handle is a Manager's internal bookkeeping for one dispatched job,
// generalizing the teacher's Worker struct (stopCh/doneCh/mu/running) from
// "the one background sync loop" to "one of many concurrently running
// jobs", each with its own control channels and record.
type handle struct {
	mu      sync.Mutex
	record  Record
	handler Handler
	control *control
	done    chan struct{}
}

func (h *handle) setStatus(s Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record.Status = s
	h.record.UpdatedAt = time.Now()
}

func (h *handle) setProgress(p Progress) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record.Progress = p
	h.record.UpdatedAt = time.Now()
}

func (h *handle) setStateBlob(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record.StateBlob = b
	h.record.UpdatedAt = time.Now()
}

func (h *handle) appendLog(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record.NonCriticalLogs = append(h.record.NonCriticalLogs, msg)
}

func (h *handle) snapshot() Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.record
}

// Manager dispatches jobs, tracks status, and persists every Record
// mutation to deps.Store when one is configured (spec.md §4.6
// "JobManager"). It holds no global state: a Core owns one Manager and
// hands it the Deps every job needs.
type Manager struct {
	deps Deps
	log  zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*handle
}

// NewManager creates a job manager with deps shared by every job it runs.
// If deps.Store is set, every non-terminal Record persisted by a prior
// process is reloaded immediately so List/Info see it again after a
// restart (spec.md §4.7: "On restart, the saved phase is resumed" — the
// record itself, and its reachability, resume here; resuming the actual
// Handler goroutine is a separate, domain-specific step via Redispatch,
// since a Handler's volume.Backend can't be reconstructed generically).
func NewManager(deps Deps) *Manager {
	m := &Manager{
		deps: deps,
		log:  logging.WithComponent("job_manager"),
		jobs: make(map[string]*handle),
	}
	m.reload()
	return m
}

func (m *Manager) reload() {
	if m.deps.Store == nil {
		return
	}
	rows, err := m.deps.Store.ListJobs(context.Background())
	if err != nil {
		m.log.Error().Err(err).Msg("reload persisted jobs")
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		rec := RecordFromRow(row)
		if rec.Status.Terminal() {
			continue
		}
		// Orphaned: no handler/control/done, since the goroutine that
		// was running it died with the previous process. Pause/Resume/
		// Cancel/Wait reject these until Redispatch attaches a live
		// handler.
		m.jobs[rec.ID] = &handle{record: rec}
	}
}

// persist writes hd's current record through to deps.Store, if one is
// configured. Errors are logged, not returned: a failed persist doesn't
// stop the job, it just means a crash before the next successful write
// would resume from an older checkpoint.
func (m *Manager) persist(hd *handle) {
	if m.deps.Store == nil {
		return
	}
	if err := m.deps.Store.SaveJob(context.Background(), recordToRow(hd.snapshot())); err != nil {
		m.log.Warn().Err(err).Str("job_id", hd.snapshot().ID).Msg("persist job record")
	}
}

// Dispatch starts a new job and returns its id (spec.md §4.6: "dispatch(job)
// → handle (unique job id)"). The job runs on its own goroutine — "a single
// cooperatively-yielding task" per spec.md §4.6's scheduling model.
func (m *Manager) Dispatch(ctx context.Context, h Handler, parentID *string) string {
	id := newJobID()
	now := time.Now()
	var meta []byte
	if mp, ok := h.(MetaProvider); ok {
		meta = mp.JobMeta()
	}
	hd := &handle{
		record: Record{
			ID: id, Name: h.Name(), Status: StatusQueued, ParentID: parentID, Meta: meta,
			CreatedAt: now, UpdatedAt: now,
		},
		handler: h,
		control: &control{
			pauseCh:  make(chan struct{}, 1),
			resumeCh: make(chan struct{}, 1),
			cancelCh: make(chan struct{}),
		},
		done: make(chan struct{}),
	}

	m.mu.Lock()
	m.jobs[id] = hd
	m.mu.Unlock()
	m.persist(hd)

	go m.run(ctx, hd)
	return id
}

// Redispatch resumes a previously persisted job under its existing id: it
// restores h's checkpointed state from rec.StateBlob (when h implements
// Resumer), attaches a live handle in place of whatever orphaned one
// reload left behind, and starts Run — making the indexer's {phase,
// walked} checkpoint machinery (and any other Resumer) reachable after a
// restart (spec.md §4.7). Callers reconstruct h themselves (e.g.
// Core.ResumeIndexing rebuilds an indexer.Handler bound to a live
// volume.Backend) since Manager cannot do that generically.
func (m *Manager) Redispatch(ctx context.Context, rec Record, h Handler) (string, error) {
	if h.Resumable() {
		if resumer, ok := h.(Resumer); ok {
			if err := resumer.Restore(rec.StateBlob); err != nil {
				return "", err
			}
		}
	}

	now := time.Now()
	rec.Status = StatusQueued
	rec.UpdatedAt = now
	hd := &handle{
		record: rec,
		handler: h,
		control: &control{
			pauseCh:  make(chan struct{}, 1),
			resumeCh: make(chan struct{}, 1),
			cancelCh: make(chan struct{}),
		},
		done: make(chan struct{}),
	}

	m.mu.Lock()
	m.jobs[rec.ID] = hd
	m.mu.Unlock()
	m.persist(hd)

	go m.run(ctx, hd)
	return rec.ID, nil
}

func (m *Manager) run(ctx context.Context, hd *handle) {
	defer close(hd.done)
	hd.setStatus(StatusRunning)
	m.persist(hd)

	jobLog := m.log.With().Str("job_name", hd.record.Name).Logger()
	jc := &Context{
		ctx: ctx, job: hd, deps: m.deps,
		log:     func(msg string) { jobLog.Info().Str("job_id", hd.record.ID).Msg(msg) },
		control: hd.control,
	}

	err := m.runHandlerSafely(jc, hd.handler)

	switch {
	case err == nil:
		hd.setStatus(StatusCompleted)
	case errs.KindOf(err) == errs.Cancelled:
		hd.setStatus(StatusCancelled)
		hd.setStateBlob(nil) // per spec.md §4.6: "state blob is discarded" on cancel
		if ch, ok := hd.handler.(CancelHook); ok {
			ch.OnCancel(jc)
		}
	default:
		hd.setStatus(StatusFailed)
		hd.appendLog(err.Error())
		jobLog.Error().Str("job_id", hd.record.ID).Err(err).Msg("job failed")
	}
	m.persist(hd)
}

// runHandlerSafely converts a panic in Handler.Run to a Failed status with
// a diagnostic message, per spec.md §4.6: "Panics are converted to Failed
// with a diagnostic message."
func (m *Manager) runHandlerSafely(jc *Context, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.Internal, panicMessage(r))
		}
	}()
	return h.Run(jc)
}

func panicMessage(r any) string {
	if e, ok := r.(error); ok {
		return "job panicked: " + e.Error()
	}
	return "job panicked"
}

// Pause is valid only from Running (spec.md §4.6 state rules).
func (m *Manager) Pause(id string) error {
	hd, err := m.get(id)
	if err != nil {
		return err
	}
	if hd.snapshot().Status != StatusRunning {
		return errs.New(errs.Validation, "job is not running")
	}
	if hd.control == nil {
		return errs.New(errs.Validation, "job has no live handler in this process; resume it via Redispatch first")
	}
	select {
	case hd.control.pauseCh <- struct{}{}:
		return nil
	default:
		return errs.New(errs.Validation, "job is not at an interrupt point yet")
	}
}

// Resume is valid only from Paused (spec.md §4.6 state rules).
func (m *Manager) Resume(id string) error {
	hd, err := m.get(id)
	if err != nil {
		return err
	}
	if hd.snapshot().Status != StatusPaused {
		return errs.New(errs.Validation, "job is not paused")
	}
	if hd.control == nil {
		return errs.New(errs.Validation, "job has no live handler in this process; resume it via Redispatch first")
	}
	select {
	case hd.control.resumeCh <- struct{}{}:
		return nil
	default:
		return errs.New(errs.Validation, "job is not awaiting resume")
	}
}

// Cancel is valid from Queued, Running, or Paused; terminal states reject
// (spec.md §4.6 state rules).
func (m *Manager) Cancel(id string) error {
	hd, err := m.get(id)
	if err != nil {
		return err
	}
	if hd.snapshot().Status.Terminal() {
		return errs.New(errs.Validation, "job is already in a terminal state")
	}
	if hd.control == nil {
		// No live handler: mark the persisted record cancelled directly,
		// there is no running goroutine to signal.
		hd.setStatus(StatusCancelled)
		hd.setStateBlob(nil)
		m.persist(hd)
		return nil
	}
	close(hd.control.cancelCh)
	return nil
}

// List returns the records of jobs matching statusFilter, or all jobs if
// statusFilter is nil.
func (m *Manager) List(statusFilter *Status) []Record {
	m.mu.Lock()
	handles := make([]*handle, 0, len(m.jobs))
	for _, hd := range m.jobs {
		handles = append(handles, hd)
	}
	m.mu.Unlock()

	out := make([]Record, 0, len(handles))
	for _, hd := range handles {
		r := hd.snapshot()
		if statusFilter == nil || r.Status == *statusFilter {
			out = append(out, r)
		}
	}
	return out
}

// Info returns the current record for id.
func (m *Manager) Info(id string) (Record, error) {
	hd, err := m.get(id)
	if err != nil {
		return Record{}, err
	}
	return hd.snapshot(), nil
}

// Wait blocks until the job referenced by id reaches a terminal state, for
// tests and synchronous callers.
func (m *Manager) Wait(id string) error {
	hd, err := m.get(id)
	if err != nil {
		return err
	}
	if hd.done == nil {
		return errs.New(errs.Validation, "job has no live handler in this process; resume it via Redispatch first")
	}
	<-hd.done
	return nil
}

func (m *Manager) get(id string) (*handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hd, ok := m.jobs[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "job not found: "+id)
	}
	return hd, nil
}
