package actions

import (
	"context"
	"strconv"
	"time"

	"github.com/spacedriveapp/spacedrive-sub011/internal/cache"
	"github.com/spacedriveapp/spacedrive-sub011/internal/entrystore"
	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
)

// ResolvePathCacheTTL bounds how long a resolved path may be served stale
// before ResolvePathQuery re-walks the entry's ancestor chain. It is short
// enough that a move/rename a caller just performed is visible again
// almost immediately, while still absorbing the repeated re-resolution a
// sync peer does against the same handful of entries in one pass.
const ResolvePathCacheTTL = 2 * time.Second

// AddLocationArgs is the argument shape for AddLocationAction.
type AddLocationArgs struct {
	Location entrystore.Location
}

// AddLocationAction registers a new tracked root directory against a
// library's store (spec.md §4.10: actions mutate the store or dispatch
// jobs). Indexing the new location is a separate action/job, not implied
// by adding it.
type AddLocationAction struct {
	Store *entrystore.Store
}

func (a *AddLocationAction) Name() string       { return "library.add_location" }
func (a *AddLocationAction) RequiredFlag() Flag { return LibraryManageLocations }

func (a *AddLocationAction) Run(ctx context.Context, args any) (any, error) {
	in, ok := args.(AddLocationArgs)
	if !ok {
		return nil, errs.New(errs.Validation, "library.add_location expects AddLocationArgs")
	}
	id, err := a.Store.Queries().CreateLocation(ctx, in.Location)
	if err != nil {
		return nil, errs.Wrap(errs.IO, "create location", err)
	}
	return id, nil
}

// RemoveLocationArgs is the argument shape for RemoveLocationAction.
type RemoveLocationArgs struct {
	LocationID int64
}

// RemoveLocationAction untracks a location by deleting its row through
// DeleteLocation. It deletes none of the location's entries, root entry
// included; entries reference their location, so with foreign keys
// enforced the removal fails with an IO error while any entry remains.
type RemoveLocationAction struct {
	Store *entrystore.Store
}

func (a *RemoveLocationAction) Name() string       { return "library.remove_location" }
func (a *RemoveLocationAction) RequiredFlag() Flag { return LibraryManageLocations }

func (a *RemoveLocationAction) Run(ctx context.Context, args any) (any, error) {
	in, ok := args.(RemoveLocationArgs)
	if !ok {
		return nil, errs.New(errs.Validation, "library.remove_location expects RemoveLocationArgs")
	}
	if err := a.Store.Queries().DeleteLocation(ctx, in.LocationID); err != nil {
		return nil, errs.Wrap(errs.IO, "delete location", err)
	}
	return nil, nil
}

// ListLocationsQuery lists every tracked location in a library.
type ListLocationsQuery struct {
	Store *entrystore.Store
}

func (q *ListLocationsQuery) Name() string       { return "library.list_locations" }
func (q *ListLocationsQuery) RequiredFlag() Flag { return LibraryRead }

func (q *ListLocationsQuery) Run(ctx context.Context, _ any) (any, error) {
	locs, err := q.Store.Queries().ListLocations(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.IO, "list locations", err)
	}
	return locs, nil
}

// ResolvePathQuery resolves an entry's id to its full path within its
// location, for callers that only have an id (e.g. a sync peer). Results
// are memoized in a short-TTL cache.Cache, so a burst of queries against
// the same entry (a sync peer replaying a batch of changes that all touch
// one directory) costs one ancestor walk instead of one per call.
type ResolvePathQuery struct {
	Store *entrystore.Store
	cache *cache.Cache[string]
}

// NewResolvePathQuery builds a ResolvePathQuery with its path cache ready.
func NewResolvePathQuery(store *entrystore.Store) *ResolvePathQuery {
	return &ResolvePathQuery{Store: store, cache: cache.New[string](ResolvePathCacheTTL, 4096)}
}

// ResolvePathArgs is the argument shape for ResolvePathQuery.
type ResolvePathArgs struct {
	EntryID int64
}

func (q *ResolvePathQuery) Name() string       { return "library.resolve_path" }
func (q *ResolvePathQuery) RequiredFlag() Flag { return LibraryRead }

func (q *ResolvePathQuery) Run(ctx context.Context, args any) (any, error) {
	in, ok := args.(ResolvePathArgs)
	if !ok {
		return nil, errs.New(errs.Validation, "library.resolve_path expects ResolvePathArgs")
	}
	key := strconv.FormatInt(in.EntryID, 10)
	if q.cache != nil {
		if path, ok := q.cache.Get(key); ok {
			return path, nil
		}
	}
	path, err := q.Store.Queries().ResolvePath(ctx, in.EntryID)
	if err != nil {
		return nil, err
	}
	if q.cache != nil {
		q.cache.Set(key, path)
	}
	return path, nil
}

// Close stops the query's background cache cleanup goroutine.
func (q *ResolvePathQuery) Close() {
	if q.cache != nil {
		q.cache.Stop()
	}
}
