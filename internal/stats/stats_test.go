package stats

import (
	"context"
	"testing"
	"time"

	"github.com/spacedriveapp/spacedrive-sub011/internal/entrystore"
	"github.com/spacedriveapp/spacedrive-sub011/internal/eventbus"
)

func TestListenerRecomputesAfterChangeEvent(t *testing.T) {
	store, err := entrystore.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer store.Close()
	q := store.Queries()

	locID, err := q.CreateLocation(context.Background(), entrystore.Location{
		UUID: "loc-1", DeviceID: "device-a", DisplayName: "root", IndexMode: entrystore.ModeContent,
	})
	if err != nil {
		t.Fatalf("CreateLocation: %v", err)
	}
	rootID, err := q.InsertBatch(context.Background(), []entrystore.NewEntry{
		{UUID: "root-uuid", LocationID: locID, Name: "root", Kind: entrystore.KindDirectory, ModTime: time.Now()},
	})
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if err := q.SetLocationRoot(context.Background(), locID, rootID[0]); err != nil {
		t.Fatalf("SetLocationRoot: %v", err)
	}
	size := int64(4096)
	fileCount := int64(3)
	childCount := int64(3)
	if err := q.UpdateBatch(context.Background(), []entrystore.EntryDiff{
		{ID: rootID[0], AggregateSize: &size, FileCount: &fileCount, ChildCount: &childCount},
	}); err != nil {
		t.Fatalf("UpdateBatch: %v", err)
	}

	bus := eventbus.New()
	listener := New(bus, store, "lib-1", 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	listener.Start(ctx)
	defer listener.Stop()

	if got := listener.Totals(); got.TotalSize != 0 {
		t.Fatalf("expected zero totals before any event, got %+v", got)
	}

	bus.Publish(eventbus.Event{Kind: eventbus.KindEntryCreated, LibraryID: "lib-1"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if listener.Totals().TotalSize == size {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := listener.Totals()
	if got.TotalSize != size || got.FileCount != fileCount || got.EntryCount != childCount {
		t.Fatalf("got totals %+v, want size=%d files=%d entries=%d", got, size, fileCount, childCount)
	}
}

func TestListenerIgnoresEventsForOtherLibraries(t *testing.T) {
	store, _ := entrystore.OpenMemory()
	defer store.Close()

	bus := eventbus.New()
	listener := New(bus, store, "lib-1", 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	listener.Start(ctx)
	defer listener.Stop()

	bus.Publish(eventbus.Event{Kind: eventbus.KindEntryCreated, LibraryID: "lib-other"})
	time.Sleep(100 * time.Millisecond)

	if got := listener.Totals(); !got.UpdatedAt.IsZero() {
		t.Fatalf("expected no recompute for an unrelated library's event, got %+v", got)
	}
}
