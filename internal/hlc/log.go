package hlc

import (
	"context"
	"database/sql"
	"fmt"
)

// LogEntry is one record in a per-peer log: a shared CRDT operation as
// described in spec.md §3 ("CRDT operation (shared)").
type LogEntry struct {
	Seq        int64
	Timestamp  Timestamp
	ModelType  string
	RecordUUID string
	Change     string // "insert" | "update" | "delete"
	Payload    []byte
}

// Schema is executed by entrystore.Open and OpenMemory right after the
// entry store's own schema, on the same library database; kept here
// so the per-peer log owns its own table definition the way each teacher
// package owns its slice of the database.
const Schema = `
CREATE TABLE IF NOT EXISTS peer_log (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	wall_ms     INTEGER NOT NULL,
	counter     INTEGER NOT NULL,
	device_id   TEXT NOT NULL,
	model_type  TEXT NOT NULL,
	record_uuid TEXT NOT NULL,
	change      TEXT NOT NULL,
	payload     BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_peer_log_order ON peer_log(wall_ms, counter, device_id);
CREATE INDEX IF NOT EXISTS idx_peer_log_record ON peer_log(record_uuid);

CREATE TABLE IF NOT EXISTS peer_watermarks (
	peer_id       TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	wall_ms       INTEGER NOT NULL,
	counter       INTEGER NOT NULL,
	device_id     TEXT NOT NULL,
	PRIMARY KEY (peer_id, resource_type)
);
`

// Log is an append-only per-peer log of shared CRDT operations with
// per-(peer, resource_type) ack watermarks, per spec §4.3. A single global
// watermark is forbidden by spec so every watermark operation is scoped to
// a resource_type.
type Log struct {
	db *sql.DB
}

// NewLog wraps an already-open *sql.DB whose schema includes Schema above.
func NewLog(db *sql.DB) *Log {
	return &Log{db: db}
}

// Append durably persists entry with a monotonic local sequence number,
// returning the assigned sequence once the write (and, per the sqlite
// driver's default synchronous setting, its fsync) completes.
func (l *Log) Append(ctx context.Context, e LogEntry) (int64, error) {
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO peer_log (wall_ms, counter, device_id, model_type, record_uuid, change, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp.WallMS, e.Timestamp.Counter, e.Timestamp.Device,
		e.ModelType, e.RecordUUID, e.Change, e.Payload)
	if err != nil {
		return 0, fmt.Errorf("append peer log entry: %w", err)
	}
	return res.LastInsertId()
}

// RecordAck stores the high-water mark peerID has acknowledged for
// resourceType. Watermarks are per (peer, resource_type): spec §4.3 forbids
// a single global "last synced" watermark because a backfill making
// progress on one resource type must not cause the filter to hide other
// resource types' older-but-unsynced entries.
func (l *Log) RecordAck(ctx context.Context, peerID, resourceType string, upTo Timestamp) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO peer_watermarks (peer_id, resource_type, wall_ms, counter, device_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(peer_id, resource_type) DO UPDATE SET
			wall_ms = excluded.wall_ms, counter = excluded.counter, device_id = excluded.device_id
		WHERE excluded.wall_ms > peer_watermarks.wall_ms
			OR (excluded.wall_ms = peer_watermarks.wall_ms AND excluded.counter > peer_watermarks.counter)`,
		peerID, resourceType, upTo.WallMS, upTo.Counter, upTo.Device)
	if err != nil {
		return fmt.Errorf("record ack: %w", err)
	}
	return nil
}

// Watermark returns the stored ack watermark for (peerID, resourceType), or
// the zero Timestamp if none has been recorded yet.
func (l *Log) Watermark(ctx context.Context, peerID, resourceType string) (Timestamp, error) {
	var ts Timestamp
	err := l.db.QueryRowContext(ctx, `
		SELECT wall_ms, counter, device_id FROM peer_watermarks
		WHERE peer_id = ? AND resource_type = ?`, peerID, resourceType).
		Scan(&ts.WallMS, &ts.Counter, &ts.Device)
	if err == sql.ErrNoRows {
		return Timestamp{}, nil
	}
	if err != nil {
		return Timestamp{}, fmt.Errorf("load watermark: %w", err)
	}
	return ts, nil
}

// QuerySince returns entries for resourceType with HLC strictly greater
// than sinceHLC, in HLC order, capped at limit. Filtering is scoped to a
// single (peer-relative) resource type per the watermark discipline above;
// callers pass the already-looked-up since value (typically from
// Watermark) so the query itself stays a pure range scan.
func (l *Log) QuerySince(ctx context.Context, resourceType string, since Timestamp, limit int) ([]LogEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT seq, wall_ms, counter, device_id, model_type, record_uuid, change, payload
		FROM peer_log
		WHERE model_type = ?
			AND (wall_ms > ? OR (wall_ms = ? AND counter > ?))
		ORDER BY wall_ms ASC, counter ASC, device_id ASC
		LIMIT ?`,
		resourceType, since.WallMS, since.WallMS, since.Counter, limit)
	if err != nil {
		return nil, fmt.Errorf("query since: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.Seq, &e.Timestamp.WallMS, &e.Timestamp.Counter, &e.Timestamp.Device,
			&e.ModelType, &e.RecordUUID, &e.Change, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan peer log entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneAcked removes entries whose HLC is less than or equal to the
// minimum ack watermark across every peer for the entry's model_type (spec
// §4.3 "prune_acked"). It never touches an entry a peer has not yet acked,
// which is also what spec §8's ack-pruning property requires. Pruning is
// done per model_type (peer_log's "resource_type" analog) rather than with
// one global cutoff, for the same reason watermarks themselves are scoped
// per resource: a fast-acking resource must not let a slower one get
// pruned out from under it.
func (l *Log) PruneAcked(ctx context.Context) (int64, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT DISTINCT model_type FROM peer_log`)
	if err != nil {
		return 0, fmt.Errorf("list model types: %w", err)
	}
	var modelTypes []string
	for rows.Next() {
		var mt string
		if err := rows.Scan(&mt); err != nil {
			rows.Close()
			return 0, err
		}
		modelTypes = append(modelTypes, mt)
	}
	rows.Close()

	var total int64
	for _, mt := range modelTypes {
		var minWall sql.NullInt64
		var minCounter sql.NullInt64
		err := l.db.QueryRowContext(ctx, `
			SELECT MIN(wall_ms), MIN(counter) FROM peer_watermarks WHERE resource_type = ?`, mt).
			Scan(&minWall, &minCounter)
		if err != nil || !minWall.Valid {
			continue // no peer has acked this resource type yet; nothing to prune
		}
		res, err := l.db.ExecContext(ctx, `
			DELETE FROM peer_log
			WHERE model_type = ?
				AND (wall_ms < ? OR (wall_ms = ? AND counter <= ?))`,
			mt, minWall.Int64, minWall.Int64, minCounter.Int64)
		if err != nil {
			return total, fmt.Errorf("prune model type %s: %w", mt, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
