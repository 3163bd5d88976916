package entrystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// JobRow is the persisted shape of a job.Record (spec.md §3 "Job record",
// §6 "jobs"). It lives in entrystore rather than internal/job so the
// storage layer stays independent of the job scheduler that uses it — job
// imports entrystore, not the other way around.
type JobRow struct {
	ID                    string
	Name                  string
	Status                string
	ProgressPercent       float64
	ProgressIndeterminate string
	ProgressCount         int64
	StateBlob             []byte
	ParentID              *string
	Meta                  []byte
	NonCriticalLogs       []string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// SaveJob inserts or overwrites the row for r.ID (spec.md §4.6: "Job
// record ... persisted at creation; checkpointed periodically"). Every
// status, progress, checkpoint, and log mutation the job package makes
// goes through this single upsert.
func (q *Queries) SaveJob(ctx context.Context, r JobRow) error {
	logs, err := json.Marshal(r.NonCriticalLogs)
	if err != nil {
		return fmt.Errorf("marshal job non-critical logs: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO jobs (id, name, status, progress_percent, progress_indeterminate,
			progress_count, state_blob, parent_id, meta, non_critical_logs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			progress_percent = excluded.progress_percent,
			progress_indeterminate = excluded.progress_indeterminate,
			progress_count = excluded.progress_count,
			state_blob = excluded.state_blob,
			meta = excluded.meta,
			non_critical_logs = excluded.non_critical_logs,
			updated_at = excluded.updated_at`,
		r.ID, r.Name, r.Status, r.ProgressPercent, r.ProgressIndeterminate,
		r.ProgressCount, r.StateBlob, r.ParentID, r.Meta, string(logs), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save job %s: %w", r.ID, err)
	}
	return nil
}

// GetJob loads the row for id.
func (q *Queries) GetJob(ctx context.Context, id string) (JobRow, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, name, status, progress_percent, progress_indeterminate, progress_count,
			state_blob, parent_id, meta, non_critical_logs, created_at, updated_at
		FROM jobs WHERE id = ?`, id)
	return scanJobRow(row)
}

// ListJobs returns every persisted job row, most recently created first.
func (q *Queries) ListJobs(ctx context.Context) ([]JobRow, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, name, status, progress_percent, progress_indeterminate, progress_count,
			state_blob, parent_id, meta, non_critical_logs, created_at, updated_at
		FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []JobRow
	for rows.Next() {
		r, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListJobsByNameForLocation is a restart-recovery lookup: it returns
// persisted rows for jobName whose Meta decodes to the given locationID,
// most recent first, letting a caller like indexer's resume path find the
// latest in-flight job for one Location without scanning every job row
// itself.
func (q *Queries) ListJobsByNameForLocation(ctx context.Context, jobName string, locationID int64) ([]JobRow, error) {
	rows, err := q.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	var out []JobRow
	for _, r := range rows {
		if r.Name != jobName || len(r.Meta) == 0 {
			continue
		}
		var meta struct {
			LocationID int64 `json:"location_id"`
		}
		if err := json.Unmarshal(r.Meta, &meta); err != nil {
			continue
		}
		if meta.LocationID == locationID {
			out = append(out, r)
		}
	}
	return out, nil
}

func scanJobRow(row interface {
	Scan(dest ...any) error
}) (JobRow, error) {
	var r JobRow
	var logs string
	var parentID sql.NullString
	if err := row.Scan(&r.ID, &r.Name, &r.Status, &r.ProgressPercent, &r.ProgressIndeterminate,
		&r.ProgressCount, &r.StateBlob, &parentID, &r.Meta, &logs, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return JobRow{}, err
		}
		return JobRow{}, fmt.Errorf("scan job row: %w", err)
	}
	if parentID.Valid {
		r.ParentID = &parentID.String
	}
	if logs != "" {
		if err := json.Unmarshal([]byte(logs), &r.NonCriticalLogs); err != nil {
			return JobRow{}, fmt.Errorf("unmarshal job non-critical logs: %w", err)
		}
	}
	return r, nil
}
