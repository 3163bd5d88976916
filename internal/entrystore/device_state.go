package entrystore

import (
	"context"
	"database/sql"
	"fmt"
)

// DeviceStateRow is the local projection of one device-owned, last-write-
// wins sync record (syncstate.StateRecord) — spec.md §9's Open Question
// decision that these replicate outside the per-peer log since ordering
// them is by HLC timestamp alone, not append order.
type DeviceStateRow struct {
	DeviceID   string
	RecordUUID string
	ModelType  string
	WallMS     int64
	Counter    uint32
	Payload    []byte
}

// UpsertDeviceState applies r if it is newer than whatever is already
// stored for (DeviceID, RecordUUID), per the last-write-wins rule. It
// reports applied=false when an existing row's timestamp already
// dominates r, so callers (Core's syncstate.Appliers.ApplyState) can tell
// a no-op apart from an error.
func (q *Queries) UpsertDeviceState(ctx context.Context, r DeviceStateRow) (applied bool, err error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO device_state (device_id, record_uuid, model_type, wall_ms, counter, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id, record_uuid) DO UPDATE SET
			model_type = excluded.model_type, wall_ms = excluded.wall_ms,
			counter = excluded.counter, payload = excluded.payload
		WHERE excluded.wall_ms > device_state.wall_ms
			OR (excluded.wall_ms = device_state.wall_ms AND excluded.counter > device_state.counter)`,
		r.DeviceID, r.RecordUUID, r.ModelType, r.WallMS, r.Counter, r.Payload)
	if err != nil {
		return false, fmt.Errorf("upsert device state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert device state rows affected: %w", err)
	}
	return n > 0, nil
}

// GetDeviceState returns the stored row for (deviceID, recordUUID), or
// ok=false if nothing has been applied yet.
func (q *Queries) GetDeviceState(ctx context.Context, deviceID, recordUUID string) (r DeviceStateRow, ok bool, err error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT device_id, record_uuid, model_type, wall_ms, counter, payload
		FROM device_state WHERE device_id = ? AND record_uuid = ?`, deviceID, recordUUID)
	err = row.Scan(&r.DeviceID, &r.RecordUUID, &r.ModelType, &r.WallMS, &r.Counter, &r.Payload)
	if err == sql.ErrNoRows {
		return DeviceStateRow{}, false, nil
	}
	if err != nil {
		return DeviceStateRow{}, false, fmt.Errorf("get device state: %w", err)
	}
	return r, true, nil
}

// CountEntries reports how many entries exist across every location,
// Core's syncstate.Appliers.LocalEmpty probe for "local store empty for
// that library" (spec.md §4.4: "U → B on first peer connect & local
// store empty").
func (q *Queries) CountEntries(ctx context.Context) (int64, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}
