package watcher

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

// pendingKind is the coalescer's working classification for one path,
// distinct from ChangeKind because "pending rename-from" needs a timeout
// that a terminal Change never does.
type pendingKind int

const (
	pendingCreate pendingKind = iota
	pendingModify
	pendingRemove
	pendingRenameFrom
)

type pendingEntry struct {
	kind     pendingKind
	lastSeen time.Time
}

// coalescer implements spec.md §4.8's explicit coalescing state machine:
//
//   - repeated writes to the same path collapse into one Modified
//   - a Create immediately followed by a Remove (within the debounce
//     window) neutralizes — no Change is emitted at all
//   - a Rename-From paired with a later Rename-To (fsnotify reports
//     renames as a from/to pair on platforms that support it) becomes one
//     Moved; a Rename-From with no matching Rename-To before its entry
//     times out becomes a Deleted
//   - a Write observed on a path with a pending Create merges into that
//     Create, keeping the latest metadata rather than emitting a separate
//     Modified
//
// It holds no goroutines of its own; Watcher drives it from handle() on
// each raw event and flushReady() on each debounce tick.
type coalescer struct {
	pending map[string]*pendingEntry
	// renameFrom holds the most recent un-paired Rename-From path, along
	// with when it was observed, so a subsequent Rename-To (fsnotify emits
	// these as two independent events with no shared identifier) can be
	// matched to it.
	renameFromPath string
	renameFromAt   time.Time

	// movedPairs holds Rename-From/Rename-To pairs resolved since the last
	// flushReady, queued separately from pending since a Moved is already
	// terminal and needs no further debounce wait.
	movedPairs []movedPair
}

func newCoalescer() *coalescer {
	return &coalescer{pending: make(map[string]*pendingEntry)}
}

func (c *coalescer) size() int { return len(c.pending) }

func (c *coalescer) reset() {
	c.pending = make(map[string]*pendingEntry)
	c.renameFromPath = ""
}

// handle folds one raw fsnotify event into the pending set. It returns true
// when the event was absorbed into an existing pending entry rather than
// starting a new one, so the caller can count it as coalesced.
func (c *coalescer) handle(ev fsnotify.Event, now time.Time) bool {
	switch {
	case ev.Has(fsnotify.Create):
		return c.handleCreate(ev.Name, now)
	case ev.Has(fsnotify.Write):
		return c.handleWrite(ev.Name, now)
	case ev.Has(fsnotify.Remove):
		return c.handleRemove(ev.Name, now)
	case ev.Has(fsnotify.Rename):
		// fsnotify reports a rename as a Rename event on the source path;
		// the destination path arrives as its own Create event.
		return c.handleRenameFrom(ev.Name, now)
	default:
		return true // Chmod and anything else is not tracked, drop silently
	}
}

func (c *coalescer) handleCreate(p string, now time.Time) bool {
	if c.renameFromPath != "" {
		from := c.renameFromPath
		c.renameFromPath = ""
		delete(c.pending, from)
		c.movedPairs = append(c.movedPairs, movedPair{from: from, to: p})
		return false
	}
	if existing, ok := c.pending[p]; ok {
		existing.lastSeen = now
		return true
	}
	c.pending[p] = &pendingEntry{kind: pendingCreate, lastSeen: now}
	return false
}

func (c *coalescer) handleWrite(p string, now time.Time) bool {
	if existing, ok := c.pending[p]; ok {
		// A write on a pending Create merges into the Create (keeps the
		// latest metadata, stays a Create rather than also emitting a
		// Modified). A write on anything else is itself, repeated.
		existing.lastSeen = now
		return true
	}
	c.pending[p] = &pendingEntry{kind: pendingModify, lastSeen: now}
	return false
}

func (c *coalescer) handleRemove(p string, now time.Time) bool {
	if existing, ok := c.pending[p]; ok {
		if existing.kind == pendingCreate {
			// Create immediately undone by Remove: neutralizes entirely.
			delete(c.pending, p)
			return true
		}
		existing.kind = pendingRemove
		existing.lastSeen = now
		return true
	}
	c.pending[p] = &pendingEntry{kind: pendingRemove, lastSeen: now}
	return false
}

func (c *coalescer) handleRenameFrom(p string, now time.Time) bool {
	if existing, ok := c.pending[p]; ok {
		existing.kind = pendingRenameFrom
		existing.lastSeen = now
	} else {
		c.pending[p] = &pendingEntry{kind: pendingRenameFrom, lastSeen: now}
	}
	c.renameFromPath = p
	c.renameFromAt = now
	return false
}

type movedPair struct{ from, to string }

// flushReady drains every pending entry whose debounce window has elapsed
// (Removes included) into terminal Changes, preceded by the Moved pairs
// resolved since the last flush, which do not wait for the window.
func (c *coalescer) flushReady(now time.Time, window time.Duration) []Change {
	var changes []Change

	for _, mp := range c.movedPairs {
		changes = append(changes, Change{Kind: ChangeMoved, Path: mp.to, OldPath: mp.from})
	}
	c.movedPairs = nil

	for p, e := range c.pending {
		if now.Sub(e.lastSeen) < window {
			continue
		}
		switch e.kind {
		case pendingCreate:
			changes = append(changes, Change{Kind: ChangeCreated, Path: p})
		case pendingModify:
			changes = append(changes, Change{Kind: ChangeModified, Path: p})
		case pendingRemove:
			changes = append(changes, Change{Kind: ChangeDeleted, Path: p})
		case pendingRenameFrom:
			// No matching Rename-To arrived before the window elapsed:
			// treat the source path as deleted.
			changes = append(changes, Change{Kind: ChangeDeleted, Path: p})
			if c.renameFromPath == p {
				c.renameFromPath = ""
			}
		}
		delete(c.pending, p)
	}
	return changes
}
