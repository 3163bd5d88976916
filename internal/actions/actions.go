// Package actions implements permission-checked action and query dispatch
// (spec.md §4.10): named, versioned entry points that either dispatch jobs
// or mutate the store (Actions), or read it back (Queries), each declaring
// the capability flag a caller's Session must hold.
package actions

import (
	"context"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
)

// Flag is one capability a session may or may not hold (spec.md §4.10).
type Flag string

const (
	CoreReadStatus      Flag = "core.read_status"
	CoreManageLibraries Flag = "core.manage_libraries"
	CoreModifySettings  Flag = "core.modify_settings"

	LibraryRead            Flag = "library.read"
	LibraryWrite           Flag = "library.write"
	LibraryDelete          Flag = "library.delete"
	LibraryManageLocations Flag = "library.manage_locations"
	LibrarySearch          Flag = "library.search"
	LibraryIndex           Flag = "library.index"

	NetworkPair Flag = "network.pair"
	NetworkSend Flag = "network.send"

	JobsList        Flag = "jobs.list"
	JobsPauseResume Flag = "jobs.pause_resume"
	JobsCancel      Flag = "jobs.cancel"
)

// Session is the set of capability flags a caller holds for one dispatch.
// It carries no identity beyond the flags themselves — actions never see
// who is calling, only what the caller is allowed to do.
type Session struct {
	flags map[Flag]struct{}
}

// NewSession builds a Session holding exactly the given flags.
func NewSession(flags ...Flag) Session {
	s := Session{flags: make(map[Flag]struct{}, len(flags))}
	for _, f := range flags {
		s.flags[f] = struct{}{}
	}
	return s
}

// Has reports whether the session holds flag.
func (s Session) Has(flag Flag) bool {
	_, ok := s.flags[flag]
	return ok
}

// Action is a named, permission-checked entry point that dispatches a job
// or mutates the store. Input and output are opaque to the registry; each
// concrete Action type asserts its own argument/result shapes.
type Action interface {
	Name() string
	RequiredFlag() Flag
	Run(ctx context.Context, args any) (any, error)
}

// Query is the read-only counterpart of Action.
type Query interface {
	Name() string
	RequiredFlag() Flag
	Run(ctx context.Context, args any) (any, error)
}

// Authorize denies with a typed errs.PermissionDenied error if session
// lacks flag, identifying the action/query by name in the message.
func Authorize(session Session, name string, flag Flag) error {
	if session.Has(flag) {
		return nil
	}
	return errs.New(errs.PermissionDenied, name+" requires "+string(flag))
}
