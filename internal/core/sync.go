package core

import (
	"context"

	"github.com/spacedriveapp/spacedrive-sub011/internal/entrystore"
	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
	"github.com/spacedriveapp/spacedrive-sub011/internal/hlc"
	"github.com/spacedriveapp/spacedrive-sub011/internal/syncstate"
)

// deliveryRef forwards Deliver calls to a *syncstate.Machine constructed
// after the Transport that needs to hold a Delivery for it — Machine and
// LoopbackTransport each need the other at construction time, so this
// breaks the cycle by deferring the binding one step.
type deliveryRef struct {
	machine *syncstate.Machine
}

func (d *deliveryRef) Deliver(ctx context.Context, fromPeer string, msg syncstate.Message) error {
	return d.machine.Deliver(ctx, fromPeer, msg)
}

// buildSyncMachine wires a syncstate.Machine for libraryID against c's
// store and per-peer log: ApplyShared/ApplyState/Ack/LocalEmpty are real
// entrystore-backed operations, not test doubles (spec.md §4.4). Its
// Transport is a LoopbackTransport with no peers joined yet — the P2P
// layer that would join real peers to it is out of scope here (spec.md §9
// Non-goals), but the Machine, its on-disk sync_log, and the HLC clock
// are all live and reachable from this running Core.
func buildSyncMachine(libraryID, deviceID string, store *entrystore.Store, syncLog *hlc.Log, clock *hlc.Clock) *syncstate.Machine {
	ref := &deliveryRef{}
	network := syncstate.NewLoopbackNetwork()
	transport := network.Join(deviceID, ref)

	appliers := syncstate.Appliers{
		ApplyShared: func(ctx context.Context, change syncstate.SharedChange) error {
			if err := clock.Update(change.Entry.Timestamp); err != nil {
				return err
			}
			if _, err := syncLog.Append(ctx, change.Entry); err != nil {
				return errs.Wrap(errs.IO, "record shared change", err)
			}
			return nil
		},
		ApplyState: func(ctx context.Context, change syncstate.StateChange) error {
			if err := clock.Update(change.Record.Timestamp); err != nil {
				return err
			}
			_, err := store.Queries().UpsertDeviceState(ctx, entrystore.DeviceStateRow{
				DeviceID:   change.Record.DeviceID,
				RecordUUID: change.Record.RecordUUID,
				ModelType:  change.Record.ModelType,
				WallMS:     change.Record.Timestamp.WallMS,
				Counter:    change.Record.Timestamp.Counter,
				Payload:    change.Record.Payload,
			})
			if err != nil {
				return errs.Wrap(errs.IO, "apply state change", err)
			}
			return nil
		},
		Ack: func(ctx context.Context, ack syncstate.Ack) error {
			return syncLog.RecordAck(ctx, ack.PeerID, ack.ResourceType, ack.Upto)
		},
		LocalEmpty: func(ctx context.Context) (bool, error) {
			n, err := store.Queries().CountEntries(ctx)
			if err != nil {
				return false, errs.Wrap(errs.IO, "count entries", err)
			}
			return n == 0, nil
		},
	}

	machine := syncstate.New(libraryID, transport, appliers)
	ref.machine = machine
	return machine
}
