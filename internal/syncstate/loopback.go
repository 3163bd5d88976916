package syncstate

import (
	"context"
	"sync"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
)

// LoopbackTransport is an in-process Transport connecting named
// Delivery endpoints directly. Tests use it to exercise Machine without a
// real network layer; Core also constructs one per library as a stand-in
// Transport until a real P2P layer is wired in (spec.md §9 leaves the
// transport itself out of scope — something satisfying the interface is
// still needed both to test the state machine and to let it run before
// that layer exists).
type LoopbackTransport struct {
	selfID string
	net    *LoopbackNetwork
}

// LoopbackNetwork is a shared registry of (peer id → Delivery) a group
// of LoopbackTransports route through, standing in for a real connection
// table.
type LoopbackNetwork struct {
	mu    sync.Mutex
	peers map[string]Delivery
}

// NewLoopbackNetwork builds an empty peer registry.
func NewLoopbackNetwork() *LoopbackNetwork {
	return &LoopbackNetwork{peers: make(map[string]Delivery)}
}

// Join registers peerID's Delivery with the network and returns a
// Transport handle peerID can use to reach every other joined peer.
func (n *LoopbackNetwork) Join(peerID string, delivery Delivery) *LoopbackTransport {
	n.mu.Lock()
	n.peers[peerID] = delivery
	n.mu.Unlock()
	return &LoopbackTransport{selfID: peerID, net: n}
}

func (t *LoopbackTransport) Send(ctx context.Context, peerID string, msg Message) error {
	t.net.mu.Lock()
	d, ok := t.net.peers[peerID]
	t.net.mu.Unlock()
	if !ok {
		return errs.New(errs.NotFound, "loopback: unknown peer "+peerID)
	}
	return d.Deliver(ctx, t.selfID, msg)
}

// Request is modeled as a Send with no reply: tests that need a
// request/response exchange wire the reply as a separate Send from the
// responder's own Delivery.Deliver, since the loopback network has no
// real bidirectional stream to carry one back synchronously.
func (t *LoopbackTransport) Request(ctx context.Context, peerID string, msg Message) (Message, error) {
	return Message{}, t.Send(ctx, peerID, msg)
}

func (t *LoopbackTransport) ListConnected() []string {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	ids := make([]string, 0, len(t.net.peers))
	for id := range t.net.peers {
		if id != t.selfID {
			ids = append(ids, id)
		}
	}
	return ids
}

func (t *LoopbackTransport) IsReachable(peerID string) bool {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	_, ok := t.net.peers[peerID]
	return ok
}
