package actions

import (
	"context"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
	"github.com/spacedriveapp/spacedrive-sub011/internal/job"
)

// JobIDArgs is the argument shape shared by the pause/resume/cancel
// actions, each of which only needs a job id.
type JobIDArgs struct {
	JobID string
}

// PauseJobAction pauses a running job (spec.md §4.6).
type PauseJobAction struct {
	Manager *job.Manager
}

func (a *PauseJobAction) Name() string       { return "jobs.pause" }
func (a *PauseJobAction) RequiredFlag() Flag { return JobsPauseResume }

func (a *PauseJobAction) Run(_ context.Context, args any) (any, error) {
	in, ok := args.(JobIDArgs)
	if !ok {
		return nil, errs.New(errs.Validation, "jobs.pause expects JobIDArgs")
	}
	return nil, a.Manager.Pause(in.JobID)
}

// ResumeJobAction resumes a paused job.
type ResumeJobAction struct {
	Manager *job.Manager
}

func (a *ResumeJobAction) Name() string       { return "jobs.resume" }
func (a *ResumeJobAction) RequiredFlag() Flag { return JobsPauseResume }

func (a *ResumeJobAction) Run(_ context.Context, args any) (any, error) {
	in, ok := args.(JobIDArgs)
	if !ok {
		return nil, errs.New(errs.Validation, "jobs.resume expects JobIDArgs")
	}
	return nil, a.Manager.Resume(in.JobID)
}

// CancelJobAction cancels a queued, running, or paused job.
type CancelJobAction struct {
	Manager *job.Manager
}

func (a *CancelJobAction) Name() string       { return "jobs.cancel" }
func (a *CancelJobAction) RequiredFlag() Flag { return JobsCancel }

func (a *CancelJobAction) Run(_ context.Context, args any) (any, error) {
	in, ok := args.(JobIDArgs)
	if !ok {
		return nil, errs.New(errs.Validation, "jobs.cancel expects JobIDArgs")
	}
	return nil, a.Manager.Cancel(in.JobID)
}

// ListJobsArgs is the argument shape for ListJobsQuery; StatusFilter is
// nil to list every job regardless of status.
type ListJobsArgs struct {
	StatusFilter *job.Status
}

// ListJobsQuery lists job records, optionally filtered by status.
type ListJobsQuery struct {
	Manager *job.Manager
}

func (q *ListJobsQuery) Name() string       { return "jobs.list" }
func (q *ListJobsQuery) RequiredFlag() Flag { return JobsList }

func (q *ListJobsQuery) Run(_ context.Context, args any) (any, error) {
	var filter *job.Status
	if in, ok := args.(ListJobsArgs); ok {
		filter = in.StatusFilter
	}
	return q.Manager.List(filter), nil
}
