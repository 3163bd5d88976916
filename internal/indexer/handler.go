package indexer

import (
	"encoding/json"
	"path"

	"github.com/spacedriveapp/spacedrive-sub011/internal/entrystore"
	"github.com/spacedriveapp/spacedrive-sub011/internal/ephemeral"
	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
	"github.com/spacedriveapp/spacedrive-sub011/internal/job"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
)

// phaseName identifies which of the four spec.md §4.7 phases a checkpoint
// was taken after, so a resumed run knows where to continue from.
type phaseName string

const (
	phaseDiscovery  phaseName = "discovery"
	phaseProcessing phaseName = "processing"
	phaseAggregate  phaseName = "aggregate"
	phaseContent    phaseName = "content"
	phaseDone       phaseName = "done"
)

// checkpointState is the JSON blob round-tripped through job.Context's
// Checkpoint/Restore contract (spec.md §4.6: "state... round-trips through
// JSON"). Discovery's walked-entry list is saved whole since this repo
// indexes directories sized for a desktop library, not a distributed
// crawl; spec.md §4.7 only requires "batch index for discovery" to be
// recorded, which this generalizes to "the whole discovered batch so far".
type checkpointState struct {
	Phase  phaseName   `json:"phase"`
	Walked []walkEntry `json:"walked,omitempty"`
}

// Handler runs one indexing job against a single Location (persistent) or
// browse root (ephemeral), implementing job.Handler.
type Handler struct {
	Backend  volume.Backend
	Options  Options
	RootPath string

	// Store and LocationID are required when Options.Persistence is
	// PersistencePersistent.
	Store      *entrystore.Store
	LocationID int64

	// Result holds the built arena after a successful ephemeral run.
	Result *ephemeral.Index

	resume *checkpointState
}

// Name identifies the job type (spec.md §4.6).
func (h *Handler) Name() string { return "indexer" }

// Resumable reports whether Run can continue from a saved checkpoint.
func (h *Handler) Resumable() bool { return true }

// handlerMeta is what JobMeta persists alongside a job.Record so a
// restart-recovery path can rebuild an equivalent Handler without
// serializing h.Backend itself (spec.md §4.7's resume, constrained by
// spec.md §9: volume.Backend is runtime-injected, never deserialized).
type handlerMeta struct {
	LocationID int64    `json:"location_id"`
	RootPath   string   `json:"root_path"`
	Options    Options  `json:"options"`
}

// JobMeta implements job.MetaProvider.
func (h *Handler) JobMeta() []byte {
	if h.Options.Persistence != PersistencePersistent {
		return nil // ephemeral runs have nothing durable worth resuming
	}
	b, err := json.Marshal(handlerMeta{LocationID: h.LocationID, RootPath: h.RootPath, Options: h.Options})
	if err != nil {
		return nil
	}
	return b
}

// Restore loads previously checkpointed state so Run resumes instead of
// restarting Discovery from scratch.
func (h *Handler) Restore(state []byte) error {
	if len(state) == 0 {
		return nil
	}
	var cs checkpointState
	if err := json.Unmarshal(state, &cs); err != nil {
		return errs.Wrap(errs.SerializationForm, "decode indexer checkpoint", err)
	}
	h.resume = &cs
	return nil
}

// Run executes the four indexing phases in strict order, checkpointing
// between each (spec.md §4.7).
func (h *Handler) Run(jc *job.Context) error {
	rootName := path.Base(h.RootPath)

	if h.Options.Persistence == PersistenceEphemeral {
		return h.runEphemeral(jc, rootName)
	}
	return h.runPersistent(jc, rootName)
}

func (h *Handler) runPersistent(jc *job.Context, rootName string) error {
	if h.Store == nil {
		return errs.New(errs.Validation, "indexer: persistent mode requires a Store")
	}
	q := h.Store.Queries()

	var walked []walkEntry
	var err error
	phase := phaseDiscovery
	if h.resume != nil {
		phase = h.resume.Phase
		walked = h.resume.Walked
	}

	if phase == phaseDiscovery {
		walked, err = discover(jc.Context(), jc, h.Backend, h.RootPath, rootName, h.Options.Scope, h.Options.IncludeHidden)
		if err != nil {
			return err
		}
		checkpoint(jc, phaseProcessing, walked)
		phase = phaseProcessing
	}

	var idByPath map[string]int64
	if phase == phaseProcessing {
		idByPath, err = process(jc.Context(), jc, q, h.LocationID, walked)
		if err != nil {
			return err
		}
		if rootID, ok := idByPath[rootName]; ok {
			if err := q.SetLocationRoot(jc.Context(), h.LocationID, rootID); err != nil {
				return err
			}
		}
		checkpoint(jc, phaseAggregate, walked)
		phase = phaseAggregate
	} else {
		existing, existErr := q.GetExisting(jc.Context(), h.LocationID)
		if existErr != nil {
			return existErr
		}
		idByPath = make(map[string]int64, len(existing))
		for p, e := range existing {
			idByPath[p] = e.ID
		}
	}

	if phase == phaseAggregate {
		if err := aggregate(jc.Context(), jc, q, idByPath, walked); err != nil {
			return err
		}
		checkpoint(jc, phaseContent, walked)
		phase = phaseContent
	}

	if phase == phaseContent && h.Options.Mode != ModeShallow {
		if err := identifyContent(jc.Context(), jc, h.Backend, q, idByPath, walked, h.Options.ContentThreshold); err != nil {
			return err
		}
	}

	checkpoint(jc, phaseDone, nil)
	return nil
}

func checkpoint(jc *job.Context, phase phaseName, walked []walkEntry) {
	blob, err := json.Marshal(checkpointState{Phase: phase, Walked: walked})
	if err != nil {
		return // best-effort; resuming from scratch on failure is safe
	}
	jc.Checkpoint(blob)
}
