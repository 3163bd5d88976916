// Package core wires every other component together behind one
// injected-dependency root (spec.md §9: "the top-level Core owns manager
// handles; each job receives the handles it needs through its context.
// No static mutable state"). Core is constructed once per running
// daemon process and handed to cmd/spacedrived; nothing in this package
// is a package-level var.
package core

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spacedriveapp/spacedrive-sub011/internal/actions"
	"github.com/spacedriveapp/spacedrive-sub011/internal/config"
	"github.com/spacedriveapp/spacedrive-sub011/internal/entrystore"
	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
	"github.com/spacedriveapp/spacedrive-sub011/internal/eventbus"
	"github.com/spacedriveapp/spacedrive-sub011/internal/hlc"
	"github.com/spacedriveapp/spacedrive-sub011/internal/indexer"
	"github.com/spacedriveapp/spacedrive-sub011/internal/job"
	"github.com/spacedriveapp/spacedrive-sub011/internal/keystore"
	"github.com/spacedriveapp/spacedrive-sub011/internal/logging"
	"github.com/spacedriveapp/spacedrive-sub011/internal/processor"
	"github.com/spacedriveapp/spacedrive-sub011/internal/sidecar"
	"github.com/spacedriveapp/spacedrive-sub011/internal/stats"
	"github.com/spacedriveapp/spacedrive-sub011/internal/syncstate"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume/local"
	"github.com/spacedriveapp/spacedrive-sub011/internal/watcher"
)

// Core owns every long-lived handle one running library needs: the
// entry store, volume manager, event bus, job manager, processor
// registry, statistics listener, sidecar store, the action/query
// registry dispatch runs through, and the watchers tracking each open
// Location. One process may construct more than one Core (e.g. under
// test) without the instances interfering, since nothing here is held
// at package scope.
type Core struct {
	Config        *config.Config
	Store         *entrystore.Store
	VolumeManager *volume.Manager
	EventBus      *eventbus.Bus
	JobManager    *job.Manager
	Processors    *processor.Registry
	Sidecars      *sidecar.Store
	Stats         *stats.Listener
	Actions       *actions.Registry

	// SyncLog is this device's per-peer log of shared CRDT operations
	// (spec.md §6 "sync_log"); Clock is the HLC generator stamping
	// locally-originated changes. SyncMachine is the per-library state
	// machine that drains buffered changes into the store once a P2P
	// transport starts feeding it (spec.md §4.4). Keys is nil unless
	// cfg.Sync.KeyHex configures an encryption key.
	SyncLog     *hlc.Log
	Clock       *hlc.Clock
	SyncMachine *syncstate.Machine
	Keys        *keystore.Store

	libraryID string

	mu          sync.Mutex
	watchers    map[int64]*watchedLocation
	resolvePath *actions.ResolvePathQuery
}

type watchedLocation struct {
	w      *watcher.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Core over cfg, opening (or creating) the library database
// at cfg.LibraryDir/library.db. libraryID identifies this library for
// eventbus filtering (internal/stats, internal/syncstate) — it does not
// need to equal any on-disk value; callers typically derive it from the
// library's own settings row once one exists.
func New(cfg *config.Config, libraryID string) (*Core, error) {
	if err := ensureDir(cfg.LibraryDir); err != nil {
		return nil, err
	}
	dbPath := filepath.Join(cfg.LibraryDir, "library.db")
	store, err := entrystore.Open(dbPath)
	if err != nil {
		return nil, errs.Wrap(errs.IO, "open library store", err)
	}

	sidecarDir := filepath.Join(cfg.LibraryDir, "sidecars")
	ephemeralDir := filepath.Join(cfg.LibraryDir, "cache", "volume-index")
	sidecars := sidecar.New(sidecarDir, ephemeralDir)

	volumeManager := volume.NewManager()
	bus := eventbus.New()

	jobManager := job.NewManager(job.Deps{
		VolumeManager: volumeManager,
		EventBus:      bus,
		LibraryDB:     store,
		Store:         store.Queries(),
	})

	statsListener := stats.New(bus, store, libraryID, stats.DefaultThrottle)

	deviceID := cfg.Sync.DeviceID
	if deviceID == "" {
		deviceID = libraryID
	}
	syncLog := hlc.NewLog(store.DB())
	clock := hlc.NewClock(deviceID, cfg.Sync.ClockSkewBound)
	syncMachine := buildSyncMachine(libraryID, deviceID, store, syncLog, clock)

	var keys *keystore.Store
	if cfg.Sync.KeyHex != "" {
		keyBytes, err := hex.DecodeString(cfg.Sync.KeyHex)
		if err != nil {
			store.Close()
			return nil, errs.Wrap(errs.Validation, "decode sync.key_hex", err)
		}
		keys, err = keystore.New(keyBytes)
		if err != nil {
			store.Close()
			return nil, errs.Wrap(errs.Crypto, "build keystore", err)
		}
	}

	registry := processor.NewRegistry()
	sidecarBackend := local.New(sidecarDir)
	registry.Register(processor.NewThumbnailProcessor(sidecars, sidecarBackend, processor.ThumbnailVariant{Name: "small", Ext: "thumb"}))

	c := &Core{
		Config:        cfg,
		Store:         store,
		VolumeManager: volumeManager,
		EventBus:      bus,
		JobManager:    jobManager,
		Processors:    registry,
		Sidecars:      sidecars,
		Stats:         statsListener,
		SyncLog:       syncLog,
		Clock:         clock,
		SyncMachine:   syncMachine,
		Keys:          keys,
		libraryID:     libraryID,
		watchers:      make(map[int64]*watchedLocation),
	}
	c.Actions = buildActionsRegistry(c)
	return c, nil
}

// Start begins the background listeners (currently: the statistics
// listener). Watchers are started individually via WatchLocation once
// their Location is known, not implicitly here.
func (c *Core) Start(ctx context.Context) {
	c.Stats.Start(ctx)
}

// Close stops every running watcher and the statistics listener, then
// closes the library store.
func (c *Core) Close() error {
	c.mu.Lock()
	for id, wl := range c.watchers {
		wl.cancel()
		<-wl.done
		_ = wl.w.Close()
		delete(c.watchers, id)
	}
	c.mu.Unlock()

	c.Stats.Stop()
	c.resolvePath.Close()
	return c.Store.Close()
}

// IndexLocation dispatches an indexer.Handler job against an already
// registered Location (spec.md §4.7), returning the new job's id.
func (c *Core) IndexLocation(ctx context.Context, backend volume.Backend, locationID int64, rootPath string, mode indexer.Mode) string {
	h := &indexer.Handler{
		Backend:    backend,
		RootPath:   rootPath,
		Store:      c.Store,
		LocationID: locationID,
		Options: indexer.Options{
			Mode:        mode,
			Persistence: indexer.PersistencePersistent,
		},
	}
	return c.JobManager.Dispatch(ctx, h, nil)
}

// ResumeIndexing looks up the most recent non-terminal indexer job
// persisted against locationID and redispatches it against backend,
// restoring its checkpointed {phase, walked} state instead of starting
// Discovery over (spec.md §4.7: "On restart, the saved phase is
// resumed"). It returns resumed=false if there is nothing to resume.
// Callers invoke this explicitly after a restart, once they have a live
// volume.Backend for the location in hand — Core cannot reconstruct one
// itself (spec.md §9: backends are runtime-injected, not persisted).
func (c *Core) ResumeIndexing(ctx context.Context, backend volume.Backend, locationID int64) (jobID string, resumed bool, err error) {
	rows, err := c.Store.Queries().ListJobsByNameForLocation(ctx, "indexer", locationID)
	if err != nil {
		return "", false, errs.Wrap(errs.IO, "list persisted indexer jobs", err)
	}

	for _, row := range rows {
		rec := job.RecordFromRow(row)
		if rec.Status.Terminal() {
			continue
		}

		var meta struct {
			RootPath string          `json:"root_path"`
			Options  indexer.Options `json:"options"`
		}
		if err := json.Unmarshal(row.Meta, &meta); err != nil {
			return "", false, errs.Wrap(errs.SerializationForm, "decode indexer job meta", err)
		}

		h := &indexer.Handler{
			Backend:    backend,
			RootPath:   meta.RootPath,
			Store:      c.Store,
			LocationID: locationID,
			Options:    meta.Options,
		}
		id, err := c.JobManager.Redispatch(ctx, rec, h)
		if err != nil {
			return "", false, err
		}
		return id, true, nil
	}
	return "", false, nil
}

// WatchLocation starts a watcher.Watcher over root, applying incremental
// changes through an indexer.Applier scoped to locationID (spec.md §4.8).
// Calling it twice for the same locationID is a no-op on the second call
// — stop the first watcher via Close before replacing it.
func (c *Core) WatchLocation(backend volume.Backend, locationID int64, rootPath, rootName string, mode indexer.Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.watchers[locationID]; exists {
		return nil
	}

	applier := &indexer.Applier{
		Backend:    backend,
		Store:      c.Store,
		LocationID: locationID,
		RootPath:   rootPath,
		RootName:   rootName,
		Mode:       mode,
	}

	opts := watcher.Options{
		DebounceWindow: c.Config.Watcher.DebounceWindow,
		MaxQueueDepth:  c.Config.Watcher.QueueDepth,
	}
	w, err := watcher.New(locationID, rootPath, applier, nil, opts)
	if err != nil {
		return errs.Wrap(errs.IO, fmt.Sprintf("watch location %d", locationID), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	log := logging.WithComponent("core")
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Int64("location_id", locationID).Msg("watcher exited")
		}
	}()

	c.watchers[locationID] = &watchedLocation{w: w, cancel: cancel, done: done}
	return nil
}

// UnwatchLocation stops the watcher for locationID, if one is running.
func (c *Core) UnwatchLocation(locationID int64) {
	c.mu.Lock()
	wl, ok := c.watchers[locationID]
	if ok {
		delete(c.watchers, locationID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	wl.cancel()
	<-wl.done
	_ = wl.w.Close()
}

func ensureDir(dir string) error {
	if dir == "" {
		return errs.New(errs.Validation, "library dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.IO, "create library dir", err)
	}
	return nil
}
