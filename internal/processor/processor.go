// Package processor implements the pluggable media/text processor dispatch
// (spec.md §4.9): a Registry keyed by MIME type, a bounded worker pool per
// job, and the should_process/process contract. Thumbnail/transcript/
// classification codecs themselves are out of scope (spec.md §1); this
// package ships one trivial in-repo thumbnail processor as a stand-in to
// exercise dispatch, concurrency, and the sidecar-write contract end to
// end.
package processor

import (
	"context"

	"github.com/spacedriveapp/spacedrive-sub011/internal/entrystore"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
)

// Result is a processor's outcome for one entry (spec.md §4.9
// "ProcessResult { success, bytes_processed, error? }").
type Result struct {
	Success        bool
	BytesProcessed int64
	Err            error
}

// Processor is one pluggable codec, dispatched by MIME type.
type Processor interface {
	// Name identifies the processor for logging and registry bookkeeping.
	Name() string
	// MIMETypes lists the MIME types this processor claims.
	MIMETypes() []string
	// ShouldProcess reports whether entry still needs this processor's
	// output (spec.md §4.9: "already has sidecar of target variant ->
	// false").
	ShouldProcess(ctx context.Context, entry entrystore.Entry) (bool, error)
	// Process runs the processor against entry, reading absPath through
	// backend and writing its output via the sidecar store. absPath is
	// resolved by the caller (entrystore.ResolvePath) since Processor
	// itself has no store handle.
	Process(ctx context.Context, backend volume.Backend, absPath string, entry entrystore.Entry) Result
}

// Registry dispatches entries to the Processor claiming their MIME type.
// No package-level singleton: a Registry is constructed per Core instance
// and handed to jobs via dependency injection (spec.md §9).
type Registry struct {
	byMIME map[string]Processor
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byMIME: make(map[string]Processor)}
}

// Register adds p under every MIME type it claims, later registrations for
// the same MIME type replacing earlier ones.
func (r *Registry) Register(p Processor) {
	for _, mime := range p.MIMETypes() {
		r.byMIME[mime] = p
	}
}

// Lookup returns the Processor claiming mime, if any.
func (r *Registry) Lookup(mime string) (Processor, bool) {
	p, ok := r.byMIME[mime]
	return p, ok
}
