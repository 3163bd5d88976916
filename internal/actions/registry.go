package actions

import (
	"context"
	"sort"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
)

// Registry is the action/query catalog cmd/spacedrived dispatches through.
// It is constructed per Core instance (see internal/core) rather than held
// as a package-level var — unlike the teacher's cobra rootCmd, which is a
// package-level *cobra.Command wired up in an init() — so that two Core
// instances in the same process (e.g. under test) never share dispatch
// state. Names are registered once at startup the same way cmd/linear-fuse
// registers cobra subcommands under rootCmd, just onto a plain map instead
// of a command tree; there is no viper layer here; anything config-shaped
// an action needs comes through its own constructor, not global flags.
type Registry struct {
	actions map[string]Action
	queries map[string]Query
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]Action),
		queries: make(map[string]Query),
	}
}

// Register adds an Action to the catalog, by its Name(). Registering a
// second Action under the same name replaces the first, the same
// last-registration-wins rule processor.Registry uses for MIME types.
func (r *Registry) Register(a Action) {
	r.actions[a.Name()] = a
}

// RegisterQuery adds a Query to the catalog.
func (r *Registry) RegisterQuery(q Query) {
	r.queries[q.Name()] = q
}

// ActionNames lists every registered action name, sorted, for discovery
// (e.g. cmd/spacedrived enumerating subcommands).
func (r *Registry) ActionNames() []string {
	names := make([]string, 0, len(r.actions))
	for n := range r.actions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// QueryNames lists every registered query name, sorted.
func (r *Registry) QueryNames() []string {
	names := make([]string, 0, len(r.queries))
	for n := range r.queries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Dispatch authorizes and runs the named action against session and args.
func (r *Registry) Dispatch(ctx context.Context, session Session, name string, args any) (any, error) {
	a, ok := r.actions[name]
	if !ok {
		return nil, errs.New(errs.NotFound, "no such action: "+name)
	}
	if err := Authorize(session, a.Name(), a.RequiredFlag()); err != nil {
		return nil, err
	}
	return a.Run(ctx, args)
}

// DispatchQuery authorizes and runs the named query against session and
// args.
func (r *Registry) DispatchQuery(ctx context.Context, session Session, name string, args any) (any, error) {
	q, ok := r.queries[name]
	if !ok {
		return nil, errs.New(errs.NotFound, "no such query: "+name)
	}
	if err := Authorize(session, q.Name(), q.RequiredFlag()); err != nil {
		return nil, err
	}
	return q.Run(ctx, args)
}
