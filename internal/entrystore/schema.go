package entrystore

// schemaSQL creates the entry store's portion of library.db (spec.md §6:
// "library.db — relational store (entries, closure, locations, volumes,
// devices, content_identity, jobs, ...)"). The closure table carries the
// ancestor/descendant/depth triples spec.md §4.2 describes. jobs persists
// job.Manager's records (spec.md §3 "Job record") so a queued, running or
// paused job survives a process restart; device_state is the local
// projection of last-write-wins, device-owned sync records (spec.md §9's
// Open Question decision, syncstate.StateRecord) applied by Core's
// syncstate.Appliers.ApplyState.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS locations (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid          TEXT NOT NULL UNIQUE,
	device_id     TEXT NOT NULL,
	root_entry_id INTEGER,
	display_name  TEXT NOT NULL,
	index_mode    TEXT NOT NULL,
	include_hidden INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS content_identity (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	hash       TEXT NOT NULL UNIQUE,
	size       INTEGER NOT NULL,
	scheme     TEXT NOT NULL,
	mime_type  TEXT,
	ref_count  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS entries (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid                TEXT NOT NULL UNIQUE,
	location_id         INTEGER NOT NULL REFERENCES locations(id),
	parent_id           INTEGER REFERENCES entries(id),
	name                TEXT NOT NULL,
	kind                TEXT NOT NULL,
	size                INTEGER NOT NULL DEFAULT 0,
	mtime               DATETIME,
	ctime               DATETIME,
	indexed_at          DATETIME NOT NULL,
	inode               INTEGER,
	content_identity_id INTEGER REFERENCES content_identity(id),
	metadata_id         INTEGER,
	aggregate_size      INTEGER NOT NULL DEFAULT 0,
	child_count         INTEGER NOT NULL DEFAULT 0,
	file_count          INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_entries_location_parent ON entries(location_id, parent_id);
CREATE INDEX IF NOT EXISTS idx_entries_inode ON entries(location_id, inode);
CREATE INDEX IF NOT EXISTS idx_entries_content_identity ON entries(content_identity_id);

CREATE TABLE IF NOT EXISTS entry_closure (
	ancestor_id   INTEGER NOT NULL REFERENCES entries(id),
	descendant_id INTEGER NOT NULL REFERENCES entries(id),
	depth         INTEGER NOT NULL,
	PRIMARY KEY (ancestor_id, descendant_id)
);

CREATE INDEX IF NOT EXISTS idx_closure_descendant ON entry_closure(descendant_id);
CREATE INDEX IF NOT EXISTS idx_closure_ancestor_depth ON entry_closure(ancestor_id, depth);

CREATE TABLE IF NOT EXISTS jobs (
	id                     TEXT PRIMARY KEY,
	name                   TEXT NOT NULL,
	status                 TEXT NOT NULL,
	progress_percent       REAL NOT NULL DEFAULT 0,
	progress_indeterminate TEXT NOT NULL DEFAULT '',
	progress_count         INTEGER NOT NULL DEFAULT 0,
	state_blob             BLOB,
	parent_id              TEXT,
	meta                   BLOB,
	non_critical_logs      TEXT NOT NULL DEFAULT '[]',
	created_at             DATETIME NOT NULL,
	updated_at             DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);

CREATE TABLE IF NOT EXISTS device_state (
	device_id   TEXT NOT NULL,
	record_uuid TEXT NOT NULL,
	model_type  TEXT NOT NULL,
	wall_ms     INTEGER NOT NULL,
	counter     INTEGER NOT NULL,
	payload     BLOB NOT NULL,
	PRIMARY KEY (device_id, record_uuid)
);

CREATE INDEX IF NOT EXISTS idx_device_state_model ON device_state(model_type);
`
