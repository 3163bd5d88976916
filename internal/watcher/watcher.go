// Package watcher implements the per-Location filesystem notification
// stream (spec.md §4.8): a raw fsnotify.Watcher feeds an explicit
// coalescing state machine that turns a burst of OS events into batched,
// de-duplicated Changes delivered to a BatchApplier.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
	"github.com/spacedriveapp/spacedrive-sub011/internal/logging"
)

// ChangeKind is the coalesced outcome of one or more raw fsnotify events on
// a path, per spec.md §4.8's coalescing rules.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeMoved    ChangeKind = "moved"
)

// Change is one coalesced filesystem change, ready for the indexer's
// Processing-onward phases to apply against a single path (spec.md §4.8:
// "Batches are applied... for only the affected paths, never triggering
// full rescans").
type Change struct {
	Kind    ChangeKind
	Path    string
	OldPath string // set only for ChangeMoved
}

// Batch is one flush of coalesced changes for a single location.
type Batch struct {
	LocationID int64
	Changes    []Change
}

// BatchApplier consumes a flushed Batch. Implementations live outside this
// package (the indexer) so watcher has no import-time dependency on it.
type BatchApplier interface {
	ApplyBatch(ctx context.Context, batch Batch) error
}

// Options configures one Watcher.
type Options struct {
	// DebounceWindow is how long a pending change waits for a pairing or
	// superseding event before it flushes (spec.md §4.8: "typically
	// 200-500ms").
	DebounceWindow time.Duration
	// MaxQueueDepth bounds the pending-change set; an event arriving when
	// it is full discards that event and every pending change, and
	// Metrics.QueueOverflows increments. No rescan is scheduled for the
	// discarded paths.
	MaxQueueDepth int
}

func (o Options) withDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = 300 * time.Millisecond
	}
	if o.MaxQueueDepth <= 0 {
		o.MaxQueueDepth = 4096
	}
	return o
}

// Watcher watches one Location root and delivers coalesced batches to an
// Applier. One Watcher per watched location, mirroring spec.md §4.8's "a
// background stream of filesystem notifications per watched location".
type Watcher struct {
	locationID int64
	root       string
	opts       Options
	applier    BatchApplier
	metrics    *Metrics

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	coalesc *coalescer
}

// New creates a Watcher for locationID rooted at root. Dependencies
// (applier, metrics) are passed in rather than looked up globally, per
// spec.md §9's no-package-level-singletons design note.
func New(locationID int64, root string, applier BatchApplier, metrics *Metrics, opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.Wrap(errs.IO, "create fsnotify watcher", err)
	}
	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, errs.Wrap(errs.IO, "watch root", err)
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Watcher{
		locationID: locationID,
		root:       root,
		opts:       opts.withDefaults(),
		applier:    applier,
		metrics:    metrics,
		coalesc:    newCoalescer(),
	}, nil
}

// Metrics exposes the watcher's metric collectors for registration.
func (w *Watcher) Metrics() *Metrics { return w.metrics }

// Close stops watching and releases the underlying fsnotify handle.
func (w *Watcher) Close() error { return w.fsw.Close() }

// Run processes events until ctx is cancelled, flushing coalesced batches
// to the applier on a tick of opts.DebounceWindow/4.
func (w *Watcher) Run(ctx context.Context) error {
	log := logging.WithComponent("watcher")
	flushInterval := w.opts.DebounceWindow / 4
	if flushInterval <= 0 {
		flushInterval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("fsnotify error")
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Changes carry paths relative to the watched root.
	if rel, err := filepath.Rel(w.root, ev.Name); err == nil {
		ev.Name = filepath.ToSlash(rel)
	}

	w.metrics.EventsProcessed.Inc()
	if w.coalesc.size() >= w.opts.MaxQueueDepth {
		w.metrics.QueueOverflows.Inc()
		w.coalesc.reset()
		return
	}

	coalesced := w.coalesc.handle(ev, time.Now())
	if coalesced {
		w.metrics.EventsCoalesced.Inc()
	}
	if depth := w.coalesc.size(); depth > 0 {
		w.metrics.observeQueueDepth(depth)
	}
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	changes := w.coalesc.flushReady(time.Now(), w.opts.DebounceWindow)
	w.mu.Unlock()

	if len(changes) == 0 {
		return
	}

	start := time.Now()
	batch := Batch{LocationID: w.locationID, Changes: changes}
	if err := w.applier.ApplyBatch(ctx, batch); err != nil {
		logging.WithComponent("watcher").Error().Err(err).Msg("apply batch")
	}
	w.metrics.BatchesProcessed.Inc()
	w.metrics.observeBatchDuration(time.Since(start))
}
