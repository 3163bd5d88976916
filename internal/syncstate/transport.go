package syncstate

import "context"

// Transport is what the sync layer depends on from the network layer
// (spec.md §9: "define a transport interface (send, request, list-
// connected, is-reachable)"). A syncstate.Machine holds only this
// interface, never the network layer's concrete peer/connection types.
type Transport interface {
	// Send broadcasts msg to peerID over a unidirectional stream
	// (spec.md §6: "broadcast uses open_uni").
	Send(ctx context.Context, peerID string, msg Message) error
	// Request sends msg to peerID and waits for its single response,
	// over a bidirectional stream (spec.md §6: "Request/response
	// pattern uses open_bi").
	Request(ctx context.Context, peerID string, msg Message) (Message, error)
	// ListConnected lists currently-connected peer ids.
	ListConnected() []string
	// IsReachable reports whether peerID is currently reachable.
	IsReachable(peerID string) bool
}

// Delivery is what the network layer depends on from the sync layer
// (spec.md §9's other half of the circular-ownership break): an inbound
// handler the network layer calls as frames arrive, without needing to
// know anything about Machine's internal state.
type Delivery interface {
	// Deliver hands one inbound message from fromPeer to the sync layer.
	Deliver(ctx context.Context, fromPeer string, msg Message) error
}
