// Package syncstate implements the per-library sync state machine
// (spec.md §4.4): Uninitialized | Backfilling | CatchingUp | Ready |
// Paused, the buffering rule around those states, and the wire protocol
// (spec.md §6) the state machine drains and fills. The P2P transport
// itself is out of scope (spec.md §1 Non-goals); this package defines
// only the two interfaces spec.md §9's circular-ownership note calls
// for — Transport (what the sync layer needs from the network layer) and
// Delivery (what the network layer needs from the sync layer) — each
// side holding only the other's interface, never its concrete type.
package syncstate

import (
	"encoding/json"

	"github.com/spacedriveapp/spacedrive-sub011/internal/hlc"
)

// MessageType tags a wire message's payload shape (spec.md §6: "events
// are sum-typed (tag + payload)").
type MessageType string

const (
	MsgBackfillRequest  MessageType = "backfill_request"
	MsgBackfillChunk    MessageType = "backfill_chunk"
	MsgBackfillComplete MessageType = "backfill_complete"
	MsgStateChange      MessageType = "state_change"
	MsgSharedChange     MessageType = "shared_change"
	MsgAck              MessageType = "ack"
)

// Message is one length-prefixed wire frame: a type tag plus its
// JSON-encoded payload, matching spec.md §6's "tag + payload" schema.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// BackfillRequest asks a peer to start streaming its library state for
// libraryID, resuming from after.
type BackfillRequest struct {
	LibraryID string        `json:"library_id"`
	After     hlc.Timestamp `json:"after"`
}

// BackfillChunk is one batch of records in an ongoing backfill.
type BackfillChunk struct {
	LibraryID string         `json:"library_id"`
	Entries   []hlc.LogEntry `json:"entries"`
	Records   []StateRecord  `json:"records"`
}

// BackfillComplete signals the source peer has no more backfill data.
type BackfillComplete struct {
	LibraryID string `json:"library_id"`
}

// StateChange carries one device-owned (state-based) record update —
// spec.md §9's Open Question decision: these use last-write-wins by HLC,
// not the per-peer log, so they travel as a distinct message type rather
// than riding inside SharedChange/hlc.LogEntry.
type StateChange struct {
	LibraryID string      `json:"library_id"`
	Record    StateRecord `json:"record"`
}

// StateRecord is one device-owned record: identified by (device_id,
// record_uuid), superseded by last-write-wins on Timestamp.
type StateRecord struct {
	DeviceID   string        `json:"device_id"`
	RecordUUID string        `json:"record_uuid"`
	ModelType  string        `json:"model_type"`
	Timestamp  hlc.Timestamp `json:"timestamp"`
	Payload    []byte        `json:"payload"`
}

// SharedChange carries one shared CRDT operation from the per-peer log.
type SharedChange struct {
	LibraryID string       `json:"library_id"`
	Entry     hlc.LogEntry `json:"entry"`
}

// Ack acknowledges shared changes up to and including Upto for
// (PeerID, ResourceType) — spec.md §4.3's per-resource watermark.
type Ack struct {
	LibraryID    string        `json:"library_id"`
	PeerID       string        `json:"peer_id"`
	ResourceType string        `json:"resource_type"`
	Upto         hlc.Timestamp `json:"upto"`
}
