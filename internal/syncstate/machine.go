package syncstate

import (
	"context"
	"sort"
	"sync"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
	"github.com/spacedriveapp/spacedrive-sub011/internal/hlc"
)

// State is one of the sync state machine's five states (spec.md §4.4).
type State string

const (
	StateUninitialized State = "uninitialized"
	StateBackfilling   State = "backfilling"
	StateCatchingUp    State = "catching_up"
	StateReady         State = "ready"
	StatePaused        State = "paused"
)

// Status is a snapshot of the machine's current state and its associated
// fields (spec.md §4.4's per-state payload: source_peer/progress while
// Backfilling, buffered_count while CatchingUp).
type Status struct {
	State         State
	SourcePeer    string
	Progress      int64
	BufferedCount int
}

// Appliers bundles the callbacks Machine uses to apply drained changes
// to the local library. Machine has no entrystore/hlc.Log handle of its
// own — Core wires these in, the same injected-deps shape job.Deps and
// indexer.Applier use.
type Appliers struct {
	ApplyShared func(ctx context.Context, change SharedChange) error
	ApplyState  func(ctx context.Context, change StateChange) error
	Ack         func(ctx context.Context, ack Ack) error
	// LocalEmpty reports whether this library has no local state yet,
	// gating the U → B transition ("local store empty for that
	// library").
	LocalEmpty func(ctx context.Context) (bool, error)
}

type bufferedItem struct {
	msg    Message
	origin string // peer id the message arrived from; "" means locally generated
}

// Machine is one library's sync state machine (spec.md §4.4). It holds
// only the Transport interface, never the network layer's concrete peer
// type (spec.md §9's circular-ownership note), and is constructed per
// library by Core rather than held as a package-level var.
type Machine struct {
	libraryID string
	transport Transport
	appliers  Appliers

	mu     sync.Mutex
	status Status
	buffer []bufferedItem
}

// New builds a Machine for libraryID in the Uninitialized state.
func New(libraryID string, transport Transport, appliers Appliers) *Machine {
	return &Machine{
		libraryID: libraryID,
		transport: transport,
		appliers:  appliers,
		status:    Status{State: StateUninitialized},
	}
}

// Status returns the current state snapshot.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// buffering reports whether incoming/local changes must be enqueued
// rather than applied. The spec states this explicitly for Backfilling
// and CatchingUp; Paused is folded in here too, since applying changes
// while administratively paused would defeat the point of pausing, and
// Uninitialized likewise since there is no established local view yet
// for an incoming change to be applied against.
func (m *Machine) buffering() bool {
	switch m.status.State {
	case StateReady:
		return false
	default:
		return true
	}
}

// OnPeerConnected handles a new peer connection, transitioning
// Uninitialized → Backfilling if the local library is empty (spec.md
// §4.4: "U → B on first peer connect & local store empty for that
// library"), requesting a backfill from peerID.
func (m *Machine) OnPeerConnected(ctx context.Context, peerID string) error {
	m.mu.Lock()
	if m.status.State != StateUninitialized {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	empty, err := m.appliers.LocalEmpty(ctx)
	if err != nil {
		return errs.Wrap(errs.IO, "check local library empty", err)
	}
	if !empty {
		return nil
	}

	m.mu.Lock()
	if m.status.State != StateUninitialized {
		m.mu.Unlock()
		return nil
	}
	m.status = Status{State: StateBackfilling, SourcePeer: peerID}
	m.mu.Unlock()

	req, err := Encode(MsgBackfillRequest, BackfillRequest{LibraryID: m.libraryID})
	if err != nil {
		return err
	}
	return m.transport.Send(ctx, peerID, req)
}

// Deliver handles one inbound wire message (Machine implements Delivery).
func (m *Machine) Deliver(ctx context.Context, fromPeer string, msg Message) error {
	switch msg.Type {
	case MsgBackfillChunk:
		return m.handleBackfillChunk(ctx, msg)
	case MsgBackfillComplete:
		return m.handleBackfillComplete()
	case MsgSharedChange, MsgStateChange, MsgAck:
		return m.handleReplicated(ctx, fromPeer, msg)
	default:
		return errs.New(errs.Validation, "unknown sync message type: "+string(msg.Type))
	}
}

// handleBackfillChunk applies a chunk's entries directly: a backfill
// chunk IS the seed state, distinct from the "incoming changes" the
// buffering rule enqueues, so it is never buffered even while
// Backfilling.
func (m *Machine) handleBackfillChunk(ctx context.Context, msg Message) error {
	var chunk BackfillChunk
	if err := Decode(msg, &chunk); err != nil {
		return err
	}
	for _, e := range chunk.Entries {
		if err := m.appliers.ApplyShared(ctx, SharedChange{LibraryID: chunk.LibraryID, Entry: e}); err != nil {
			return err
		}
	}
	for _, r := range chunk.Records {
		if err := m.appliers.ApplyState(ctx, StateChange{LibraryID: chunk.LibraryID, Record: r}); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.status.Progress += int64(len(chunk.Entries) + len(chunk.Records))
	m.mu.Unlock()
	return nil
}

func (m *Machine) handleBackfillComplete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.State != StateBackfilling {
		return nil
	}
	m.status = Status{State: StateCatchingUp, SourcePeer: m.status.SourcePeer, BufferedCount: len(m.buffer)}
	return nil
}

// handleReplicated buffers or applies a SharedChange/StateChange/Ack
// depending on the current state.
func (m *Machine) handleReplicated(ctx context.Context, fromPeer string, msg Message) error {
	m.mu.Lock()
	if m.buffering() {
		m.buffer = append(m.buffer, bufferedItem{msg: msg, origin: fromPeer})
		m.status.BufferedCount = len(m.buffer)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return m.apply(ctx, msg)
}

// RecordLocalChange is called when this device generates a change while
// a Machine might be buffering (spec.md §4.4: "Own changes generated
// during buffering are broadcast on entering R"). If not buffering, the
// caller should broadcast immediately instead of holding the change.
func (m *Machine) RecordLocalChange(msg Message) (buffered bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.buffering() {
		return false
	}
	m.buffer = append(m.buffer, bufferedItem{msg: msg, origin: ""})
	m.status.BufferedCount = len(m.buffer)
	return true
}

// Drain applies every buffered item in order — shared changes in HLC
// order, state-based changes in device-id-then-HLC order (spec.md
// §4.4) — then, if the buffer is now empty and the state was
// CatchingUp, transitions to Ready and broadcasts locally-originated
// buffered changes to every connected peer.
func (m *Machine) Drain(ctx context.Context) error {
	m.mu.Lock()
	items := m.buffer
	m.buffer = nil
	wasCatchingUp := m.status.State == StateCatchingUp
	m.mu.Unlock()

	sortBuffered(items)

	var localChanges []Message
	for i, it := range items {
		if err := m.apply(ctx, it.msg); err != nil {
			// Put back the rest of the buffer (including this failed
			// item) so the next Drain call retries from here.
			m.mu.Lock()
			m.buffer = append(items[i:], m.buffer...)
			m.status.BufferedCount = len(m.buffer)
			m.mu.Unlock()
			return err
		}
		if it.origin == "" {
			localChanges = append(localChanges, it.msg)
		}
	}

	m.mu.Lock()
	m.status.BufferedCount = len(m.buffer)
	if wasCatchingUp && len(m.buffer) == 0 {
		m.status = Status{State: StateReady}
	}
	m.mu.Unlock()

	for _, msg := range localChanges {
		m.broadcast(ctx, msg)
	}
	return nil
}

func (m *Machine) apply(ctx context.Context, msg Message) error {
	switch msg.Type {
	case MsgSharedChange:
		var c SharedChange
		if err := Decode(msg, &c); err != nil {
			return err
		}
		return m.appliers.ApplyShared(ctx, c)
	case MsgStateChange:
		var c StateChange
		if err := Decode(msg, &c); err != nil {
			return err
		}
		return m.appliers.ApplyState(ctx, c)
	case MsgAck:
		var a Ack
		if err := Decode(msg, &a); err != nil {
			return err
		}
		if m.appliers.Ack != nil {
			return m.appliers.Ack(ctx, a)
		}
		return nil
	default:
		return errs.New(errs.Validation, "cannot apply message type: "+string(msg.Type))
	}
}

func (m *Machine) broadcast(ctx context.Context, msg Message) {
	for _, peer := range m.transport.ListConnected() {
		_ = m.transport.Send(ctx, peer, msg)
	}
}

// sortBuffered orders shared changes by HLC timestamp and state changes
// by (device id, HLC timestamp) — spec.md §4.4's drain order. Shared
// changes come first, then state changes; Acks and undecodable messages
// come last, in the order they were buffered.
func sortBuffered(items []bufferedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, di, ti := sortKey(items[i].msg)
		rj, dj, tj := sortKey(items[j].msg)
		if ri != rj {
			return ri < rj
		}
		if di != dj {
			return di < dj
		}
		return ti.Compare(tj) < 0
	})
}

// sortKey returns a message's (kind rank, device id, HLC timestamp) sort
// key; the device id is set only for state changes.
func sortKey(msg Message) (int, string, hlc.Timestamp) {
	switch msg.Type {
	case MsgSharedChange:
		var c SharedChange
		if Decode(msg, &c) != nil {
			return 2, "", hlc.Timestamp{}
		}
		return 0, "", c.Entry.Timestamp
	case MsgStateChange:
		var c StateChange
		if Decode(msg, &c) != nil {
			return 2, "", hlc.Timestamp{}
		}
		return 1, c.Record.DeviceID, c.Record.Timestamp
	default:
		return 2, "", hlc.Timestamp{}
	}
}

// Pause transitions Ready → Paused (spec.md §4.4).
func (m *Machine) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.State != StateReady {
		return errs.New(errs.Validation, "can only pause from Ready")
	}
	m.status = Status{State: StatePaused}
	return nil
}

// Resume transitions Paused → Ready, then drains whatever buffered while
// paused (spec.md §4.4: "P → R on resume").
func (m *Machine) Resume(ctx context.Context) error {
	m.mu.Lock()
	if m.status.State != StatePaused {
		m.mu.Unlock()
		return errs.New(errs.Validation, "can only resume from Paused")
	}
	m.status = Status{State: StateReady}
	m.mu.Unlock()
	return m.Drain(ctx)
}

// Reset discards the buffer and returns to Uninitialized from any state
// (spec.md §4.4: "Any → U on library reset"). Partial mutations already
// applied are kept — the store is idempotent under re-backfill, so
// nothing is rolled back here.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = nil
	m.status = Status{State: StateUninitialized}
}
