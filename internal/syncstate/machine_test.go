package syncstate

import (
	"context"
	"testing"

	"github.com/spacedriveapp/spacedrive-sub011/internal/hlc"
)

func ts(wall int64, counter uint32, device string) hlc.Timestamp {
	return hlc.Timestamp{WallMS: wall, Counter: counter, Device: device}
}

func newTestMachine(t *testing.T, transport Transport, localEmpty bool) (*Machine, *[]SharedChange, *[]StateChange) {
	t.Helper()
	var shared []SharedChange
	var state []StateChange
	m := New("lib-1", transport, Appliers{
		ApplyShared: func(_ context.Context, c SharedChange) error {
			shared = append(shared, c)
			return nil
		},
		ApplyState: func(_ context.Context, c StateChange) error {
			state = append(state, c)
			return nil
		},
		LocalEmpty: func(_ context.Context) (bool, error) { return localEmpty, nil },
	})
	return m, &shared, &state
}

type noopTransport struct {
	sent []Message
}

func (n *noopTransport) Send(_ context.Context, _ string, msg Message) error {
	n.sent = append(n.sent, msg)
	return nil
}
func (n *noopTransport) Request(_ context.Context, _ string, msg Message) (Message, error) {
	return Message{}, nil
}
func (n *noopTransport) ListConnected() []string { return []string{"peer-b"} }
func (n *noopTransport) IsReachable(_ string) bool { return true }

func TestUninitializedTransitionsToBackfillingWhenEmpty(t *testing.T) {
	transport := &noopTransport{}
	m, _, _ := newTestMachine(t, transport, true)

	if err := m.OnPeerConnected(context.Background(), "peer-a"); err != nil {
		t.Fatalf("OnPeerConnected: %v", err)
	}
	status := m.Status()
	if status.State != StateBackfilling || status.SourcePeer != "peer-a" {
		t.Fatalf("got %+v, want Backfilling from peer-a", status)
	}
	if len(transport.sent) != 1 || transport.sent[0].Type != MsgBackfillRequest {
		t.Fatalf("expected one BackfillRequest sent, got %+v", transport.sent)
	}
}

func TestUninitializedStaysWhenLocalNotEmpty(t *testing.T) {
	m, _, _ := newTestMachine(t, &noopTransport{}, false)
	if err := m.OnPeerConnected(context.Background(), "peer-a"); err != nil {
		t.Fatalf("OnPeerConnected: %v", err)
	}
	if m.Status().State != StateUninitialized {
		t.Fatalf("expected to stay Uninitialized, got %+v", m.Status())
	}
}

func TestBackfillChunkAppliesImmediatelyDuringBackfilling(t *testing.T) {
	m, shared, _ := newTestMachine(t, &noopTransport{}, true)
	ctx := context.Background()
	_ = m.OnPeerConnected(ctx, "peer-a")

	chunk, _ := Encode(MsgBackfillChunk, BackfillChunk{
		LibraryID: "lib-1",
		Entries:   []hlc.LogEntry{{Seq: 1, Timestamp: ts(100, 0, "peer-a")}},
	})
	if err := m.Deliver(ctx, "peer-a", chunk); err != nil {
		t.Fatalf("Deliver backfill chunk: %v", err)
	}
	if len(*shared) != 1 {
		t.Fatalf("expected chunk applied immediately, got %v", *shared)
	}
	if m.Status().Progress != 1 {
		t.Fatalf("expected progress 1, got %d", m.Status().Progress)
	}
}

func TestBackfillCompleteTransitionsToCatchingUp(t *testing.T) {
	m, _, _ := newTestMachine(t, &noopTransport{}, true)
	ctx := context.Background()
	_ = m.OnPeerConnected(ctx, "peer-a")

	complete, _ := Encode(MsgBackfillComplete, BackfillComplete{LibraryID: "lib-1"})
	if err := m.Deliver(ctx, "peer-a", complete); err != nil {
		t.Fatalf("Deliver backfill complete: %v", err)
	}
	if m.Status().State != StateCatchingUp {
		t.Fatalf("expected CatchingUp, got %+v", m.Status())
	}
}

func TestChangesBufferedDuringCatchingUpThenDrainToReady(t *testing.T) {
	m, shared, state := newTestMachine(t, &noopTransport{}, true)
	ctx := context.Background()
	_ = m.OnPeerConnected(ctx, "peer-a")
	complete, _ := Encode(MsgBackfillComplete, BackfillComplete{LibraryID: "lib-1"})
	_ = m.Deliver(ctx, "peer-a", complete)

	later, _ := Encode(MsgSharedChange, SharedChange{Entry: hlc.LogEntry{Seq: 2, Timestamp: ts(300, 0, "peer-a")}})
	earlier, _ := Encode(MsgSharedChange, SharedChange{Entry: hlc.LogEntry{Seq: 3, Timestamp: ts(200, 0, "peer-a")}})
	if err := m.Deliver(ctx, "peer-a", later); err != nil {
		t.Fatalf("Deliver later: %v", err)
	}
	if err := m.Deliver(ctx, "peer-a", earlier); err != nil {
		t.Fatalf("Deliver earlier: %v", err)
	}
	if len(*shared) != 0 {
		t.Fatalf("expected changes buffered, not applied yet, got %v", *shared)
	}
	if m.Status().BufferedCount != 2 {
		t.Fatalf("expected BufferedCount 2, got %d", m.Status().BufferedCount)
	}

	stateMsg, _ := Encode(MsgStateChange, StateChange{Record: StateRecord{DeviceID: "dev-z", Timestamp: ts(50, 0, "dev-z")}})
	_ = m.Deliver(ctx, "peer-a", stateMsg)

	if err := m.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if m.Status().State != StateReady {
		t.Fatalf("expected Ready after drain, got %+v", m.Status())
	}
	if len(*shared) != 2 || (*shared)[0].Entry.Timestamp.WallMS != 200 {
		t.Fatalf("expected shared changes applied in HLC order, got %+v", *shared)
	}
	if len(*state) != 1 {
		t.Fatalf("expected state change applied, got %v", *state)
	}
}

func TestLocalChangeDuringBufferingBroadcastsOnDrain(t *testing.T) {
	transport := &noopTransport{}
	m, _, _ := newTestMachine(t, transport, true)
	ctx := context.Background()
	_ = m.OnPeerConnected(ctx, "peer-a")
	complete, _ := Encode(MsgBackfillComplete, BackfillComplete{LibraryID: "lib-1"})
	_ = m.Deliver(ctx, "peer-a", complete)

	local, _ := Encode(MsgSharedChange, SharedChange{Entry: hlc.LogEntry{Seq: 9, Timestamp: ts(10, 0, "me")}})
	if buffered := m.RecordLocalChange(local); !buffered {
		t.Fatal("expected local change to be buffered while CatchingUp")
	}

	transport.sent = nil
	if err := m.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(transport.sent) != 1 {
		t.Fatalf("expected the local change broadcast on entering Ready, got %v", transport.sent)
	}
}

func TestPauseResumeRoundTrip(t *testing.T) {
	m, _, _ := newTestMachine(t, &noopTransport{}, true)
	ctx := context.Background()
	_ = m.OnPeerConnected(ctx, "peer-a")
	complete, _ := Encode(MsgBackfillComplete, BackfillComplete{LibraryID: "lib-1"})
	_ = m.Deliver(ctx, "peer-a", complete)
	if err := m.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if m.Status().State != StateReady {
		t.Fatalf("expected Ready, got %+v", m.Status())
	}

	if err := m.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if m.Status().State != StatePaused {
		t.Fatalf("expected Paused, got %+v", m.Status())
	}
	if err := m.Pause(); err == nil {
		t.Fatal("expected Pause from non-Ready to fail")
	}

	if err := m.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if m.Status().State != StateReady {
		t.Fatalf("expected Ready after resume, got %+v", m.Status())
	}
}

func TestResetDiscardsBufferAndReturnsToUninitialized(t *testing.T) {
	m, _, _ := newTestMachine(t, &noopTransport{}, true)
	ctx := context.Background()
	_ = m.OnPeerConnected(ctx, "peer-a")
	msg, _ := Encode(MsgSharedChange, SharedChange{Entry: hlc.LogEntry{Seq: 1, Timestamp: ts(1, 0, "peer-a")}})
	_ = m.Deliver(ctx, "peer-a", msg)
	if m.Status().BufferedCount != 1 {
		t.Fatalf("expected one buffered item, got %+v", m.Status())
	}

	m.Reset()
	status := m.Status()
	if status.State != StateUninitialized || status.BufferedCount != 0 {
		t.Fatalf("expected clean Uninitialized reset, got %+v", status)
	}
}

func TestLoopbackTransportDeliversAcrossPeers(t *testing.T) {
	net := NewLoopbackNetwork()
	var received []Message
	delivery := deliveryFunc(func(_ context.Context, from string, msg Message) error {
		received = append(received, msg)
		return nil
	})
	net.Join("peer-b", delivery)
	transportA := net.Join("peer-a", deliveryFunc(func(context.Context, string, Message) error { return nil }))

	msg, _ := Encode(MsgAck, Ack{PeerID: "peer-a", ResourceType: "entries"})
	if err := transportA.Send(context.Background(), "peer-b", msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(received) != 1 || received[0].Type != MsgAck {
		t.Fatalf("expected peer-b to receive one Ack, got %+v", received)
	}
}

type deliveryFunc func(ctx context.Context, fromPeer string, msg Message) error

func (f deliveryFunc) Deliver(ctx context.Context, fromPeer string, msg Message) error {
	return f(ctx, fromPeer, msg)
}
