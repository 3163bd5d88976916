package job

import (
	"context"
	"testing"
	"time"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
)

type countingJob struct {
	ticks      int
	pauseAfter int
	paused     chan struct{}
	resumed    chan struct{}
}

func (j *countingJob) Name() string    { return "counting" }
func (j *countingJob) Resumable() bool { return true }

func (j *countingJob) Run(ctx *Context) error {
	for i := 0; i < j.ticks; i++ {
		if err := ctx.CheckInterrupt(); err != nil {
			return err
		}
		ctx.Progress(Progress{Count: int64(i)})
		if j.paused != nil && i == j.pauseAfter {
			select {
			case j.paused <- struct{}{}:
			default:
			}
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

func (j *countingJob) OnResume(ctx *Context) {
	if j.resumed != nil {
		select {
		case j.resumed <- struct{}{}:
		default:
		}
	}
}

func TestDispatchRunsToCompletion(t *testing.T) {
	m := NewManager(Deps{})
	id := m.Dispatch(context.Background(), &countingJob{ticks: 5}, nil)

	if err := m.Wait(id); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	rec, err := m.Info(id)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if rec.Status != StatusCompleted {
		t.Fatalf("got status %v, want Completed", rec.Status)
	}
}

func TestPauseOnlyValidFromRunning(t *testing.T) {
	m := NewManager(Deps{})
	id := m.Dispatch(context.Background(), &countingJob{ticks: 1}, nil)
	if err := m.Wait(id); err != nil {
		t.Fatal(err)
	}

	if err := m.Pause(id); errs.KindOf(err) != errs.Validation {
		t.Fatalf("expected Validation pausing a completed job, got %v", err)
	}
}

func TestResumeOnlyValidFromPaused(t *testing.T) {
	m := NewManager(Deps{})
	id := m.Dispatch(context.Background(), &countingJob{ticks: 50}, nil)

	// Give the job a moment to reach Running and hit its first interrupt
	// check before asserting the rejection.
	time.Sleep(5 * time.Millisecond)

	if err := m.Resume(id); errs.KindOf(err) != errs.Validation {
		t.Fatalf("expected Validation resuming a non-paused job, got %v", err)
	}
	_ = m.Cancel(id)
	m.Wait(id)
}

func TestCancelRejectedFromTerminalState(t *testing.T) {
	m := NewManager(Deps{})
	id := m.Dispatch(context.Background(), &countingJob{ticks: 1}, nil)
	if err := m.Wait(id); err != nil {
		t.Fatal(err)
	}

	if err := m.Cancel(id); errs.KindOf(err) != errs.Validation {
		t.Fatalf("expected Validation cancelling a completed job, got %v", err)
	}
}

func TestCancelDiscardsStateBlobAndSetsCancelled(t *testing.T) {
	m := NewManager(Deps{})
	id := m.Dispatch(context.Background(), &countingJob{ticks: 10000}, nil)

	time.Sleep(5 * time.Millisecond)
	if err := m.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := m.Wait(id); err != nil {
		t.Fatal(err)
	}

	rec, err := m.Info(id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusCancelled {
		t.Fatalf("got status %v, want Cancelled", rec.Status)
	}
	if rec.StateBlob != nil {
		t.Fatalf("expected state blob discarded on cancel, got %v", rec.StateBlob)
	}
}

type panickyJob struct{}

func (panickyJob) Name() string    { return "panicky" }
func (panickyJob) Resumable() bool { return false }
func (panickyJob) Run(ctx *Context) error {
	panic("boom")
}

func TestPanicConvertsToFailed(t *testing.T) {
	m := NewManager(Deps{})
	id := m.Dispatch(context.Background(), panickyJob{}, nil)
	if err := m.Wait(id); err != nil {
		t.Fatal(err)
	}

	rec, err := m.Info(id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusFailed {
		t.Fatalf("got status %v, want Failed", rec.Status)
	}
}

func TestPauseResumeCycle(t *testing.T) {
	m := NewManager(Deps{})
	j := &countingJob{ticks: 200}
	id := m.Dispatch(context.Background(), j, nil)

	time.Sleep(5 * time.Millisecond)
	if err := m.Pause(id); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	// Wait for the job to actually observe Paused (CheckInterrupt runs
	// between ticks, so this may take a moment).
	deadline := time.Now().Add(time.Second)
	for {
		rec, err := m.Info(id)
		if err != nil {
			t.Fatal(err)
		}
		if rec.Status == StatusPaused {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never reached Paused, last status %v", rec.Status)
		}
		time.Sleep(time.Millisecond)
	}

	if err := m.Resume(id); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	_ = m.Cancel(id)
	if err := m.Wait(id); err != nil {
		t.Fatal(err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	m := NewManager(Deps{})
	id1 := m.Dispatch(context.Background(), &countingJob{ticks: 1}, nil)
	m.Wait(id1)

	completed := StatusCompleted
	records := m.List(&completed)
	if len(records) != 1 {
		t.Fatalf("got %d completed records, want 1", len(records))
	}
}
