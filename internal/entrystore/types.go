package entrystore

import "time"

// Kind mirrors spec.md §3 Entry.kind.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
	KindSymlink   Kind = "symlink"
)

// IndexMode mirrors spec.md §3 Location.index_mode.
type IndexMode string

const (
	ModeShallow IndexMode = "shallow"
	ModeContent IndexMode = "content"
	ModeDeep    IndexMode = "deep"
)

// Entry is spec.md §3 "Entry": a filesystem object rooted at a Location.
type Entry struct {
	ID                int64
	UUID              string
	LocationID        int64
	ParentID          *int64
	Name              string
	Kind              Kind
	Size              int64
	ModTime           time.Time
	ChangeTime        time.Time
	IndexedAt         time.Time
	Inode             *uint64
	ContentIdentityID *int64
	MetadataID        *int64
	AggregateSize     int64
	ChildCount        int64
	FileCount         int64
}

// NewEntry is the input shape for InsertBatch: a parent is identified by
// its numeric ParentID, which must already be assigned (by an earlier
// insert or an already-persisted row) when the batch is inserted, since
// newly discovered entries don't have numeric ids until insert.
type NewEntry struct {
	UUID       string
	LocationID int64
	ParentID   *int64 // nil for a location root
	Name       string
	Kind       Kind
	Size       int64
	ModTime    time.Time
	ChangeTime time.Time
	Inode      *uint64
}

// EntryDiff is the input shape for UpdateBatch: only non-nil fields change.
type EntryDiff struct {
	ID                int64
	Size              *int64
	ModTime           *time.Time
	ChangeTime        *time.Time
	Inode             *uint64
	ContentIdentityID *int64
	AggregateSize     *int64
	ChildCount        *int64
	FileCount         *int64
}

// ExistingEntry is one row of GetExisting's result: enough to drive the
// indexer's change-detection comparison (spec.md §4.7 Processing phase)
// without loading the full Entry.
type ExistingEntry struct {
	ID      int64
	Kind    Kind
	Inode   *uint64
	ModTime time.Time
	Size    int64
}

// Location mirrors spec.md §3 "Location".
type Location struct {
	ID            int64
	UUID          string
	DeviceID      string
	RootEntryID   *int64
	DisplayName   string
	IndexMode     IndexMode
	IncludeHidden bool
	CreatedAt     time.Time
}
