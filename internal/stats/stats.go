// Package stats implements the statistics listener component (spec.md
// component table: "Throttled recomputation of library aggregates in
// response to change events"). A Listener is scoped to one library (one
// entrystore.Store): it subscribes to internal/eventbus for entry change
// events and recomputes that library's aggregate totals at most once per
// throttle interval, however many change events arrived in between.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/spacedriveapp/spacedrive-sub011/internal/entrystore"
	"github.com/spacedriveapp/spacedrive-sub011/internal/eventbus"
)

// Totals is a library's recomputed aggregate snapshot, summed across every
// Location it contains.
type Totals struct {
	EntryCount int64
	FileCount  int64
	TotalSize  int64
	UpdatedAt  time.Time
}

// DefaultThrottle is how long a dirty flag waits before being recomputed,
// coalescing a burst of change events into one recompute.
const DefaultThrottle = 2 * time.Second

// Listener owns the background loop that drains eventbus change events and
// recomputes this library's totals. Its lifecycle (stopCh/doneCh/mu/
// running) is the same shape as the teacher's sync.Worker, generalized
// from "one fixed background sync loop" into "one throttled recompute loop
// per running instance" — constructed per library, not a package-level
// singleton (spec.md §9).
type Listener struct {
	bus       *eventbus.Bus
	store     *entrystore.Store
	libraryID string
	throttle  time.Duration

	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.RWMutex
	running bool
	dirty   bool
	totals  Totals
}

// New builds a Listener over bus and store for libraryID, recomputing at
// most once per throttle (DefaultThrottle if zero). libraryID narrows
// which bus events this listener reacts to when the bus is shared across
// multiple open libraries; it is purely a filter, not used to address
// locations within store.
func New(bus *eventbus.Bus, store *entrystore.Store, libraryID string, throttle time.Duration) *Listener {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	return &Listener{
		bus:       bus,
		store:     store,
		libraryID: libraryID,
		throttle:  throttle,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background listen/recompute loop.
func (l *Listener) Start(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	go l.run(ctx)
}

// Stop gracefully stops the listener, waiting for the loop to exit.
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	close(l.stopCh)
	<-l.doneCh
}

// Totals returns the last recomputed snapshot. Returns the zero value if
// no recompute has happened yet.
func (l *Listener) Totals() Totals {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totals
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.doneCh)

	opts := eventbus.SubscribeOptions{
		Kinds: []eventbus.Kind{
			eventbus.KindEntryCreated, eventbus.KindEntryUpdated,
			eventbus.KindEntryDeleted, eventbus.KindEntryMoved,
		},
		LibraryID: l.libraryID,
	}
	sub := l.bus.Subscribe(opts)
	defer sub.Unsubscribe()

	ticker := time.NewTicker(l.throttle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
			l.mu.Lock()
			l.dirty = true
			l.mu.Unlock()
		case <-ticker.C:
			l.recomputeIfDirty(ctx)
		}
	}
}

func (l *Listener) recomputeIfDirty(ctx context.Context) {
	l.mu.Lock()
	due := l.dirty
	l.dirty = false
	l.mu.Unlock()
	if !due {
		return
	}

	totals, err := l.recompute(ctx)
	if err != nil {
		l.mu.Lock()
		l.dirty = true // best-effort; the next throttle tick retries
		l.mu.Unlock()
		return
	}
	l.mu.Lock()
	l.totals = totals
	l.mu.Unlock()
}

// recompute sums every Location's root entry's stored aggregate fields
// (already maintained by the indexer's Aggregation phase and the
// incremental applier) rather than re-summing the whole tree itself — the
// listener's job is throttled *delivery* of already-aggregated numbers,
// not a second aggregation implementation.
func (l *Listener) recompute(ctx context.Context) (Totals, error) {
	q := l.store.Queries()
	locations, err := q.ListLocations(ctx)
	if err != nil {
		return Totals{}, err
	}

	var totals Totals
	for _, loc := range locations {
		if loc.RootEntryID == nil {
			continue
		}
		root, err := q.GetEntry(ctx, *loc.RootEntryID)
		if err != nil {
			continue
		}
		totals.EntryCount += root.ChildCount
		totals.FileCount += root.FileCount
		totals.TotalSize += root.AggregateSize
	}
	totals.UpdatedAt = time.Now()
	return totals, nil
}
