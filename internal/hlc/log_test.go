package hlc

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestPerResourceWatermarksDoNotRegress is the "watermark regression bug
// guard" scenario from spec.md §8 example 5: a single global watermark
// would return zero rows for the location resource type once the entry
// resource type's watermark has advanced past it. Per-resource watermarks
// must not exhibit that regression.
func TestPerResourceWatermarksDoNotRegress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	log := NewLog(db)

	const peer = "peer-1"
	baseWall := int64(1_000_000)

	// 10 location records at T+0..T+10 min.
	for i := 0; i < 10; i++ {
		_, err := log.Append(ctx, LogEntry{
			Timestamp:  Timestamp{WallMS: baseWall + int64(i)*60_000, Counter: 0, Device: "dev-a"},
			ModelType:  "location",
			RecordUUID: "loc",
			Change:     "insert",
			Payload:    []byte("{}"),
		})
		if err != nil {
			t.Fatalf("append location: %v", err)
		}
	}
	// 100 entry records at T+20..T+30 min.
	for i := 0; i < 100; i++ {
		_, err := log.Append(ctx, LogEntry{
			Timestamp:  Timestamp{WallMS: baseWall + (20*60_000) + int64(i)*6_000, Counter: 0, Device: "dev-a"},
			ModelType:  "entry",
			RecordUUID: "entry",
			Change:     "insert",
			Payload:    []byte("{}"),
		})
		if err != nil {
			t.Fatalf("append entry: %v", err)
		}
	}

	// The peer has acked entries up to T+25min and never acked locations.
	// Query each resource type from its own watermark.
	since := Timestamp{WallMS: baseWall + 25*60_000, Counter: 0, Device: ""}
	if err := log.RecordAck(ctx, peer, "entry", since); err != nil {
		t.Fatalf("RecordAck(entry): %v", err)
	}
	locationSince, err := log.Watermark(ctx, peer, "location")
	if err != nil {
		t.Fatalf("Watermark(location): %v", err)
	}
	entrySince, err := log.Watermark(ctx, peer, "entry")
	if err != nil {
		t.Fatalf("Watermark(entry): %v", err)
	}

	locations, err := log.QuerySince(ctx, "location", locationSince, 1000)
	if err != nil {
		t.Fatalf("QuerySince(location): %v", err)
	}
	if len(locations) != 10 {
		t.Fatalf("QuerySince(location) returned %d rows, want 10 — per-resource watermark regressed", len(locations))
	}

	entries, err := log.QuerySince(ctx, "entry", entrySince, 1000)
	if err != nil {
		t.Fatalf("QuerySince(entry): %v", err)
	}
	for _, e := range entries {
		if e.Timestamp.Compare(since) <= 0 {
			t.Errorf("entry timestamp %v should be > since %v", e.Timestamp, since)
		}
	}

	_ = peer
}

func TestAppendAssignsMonotonicSeq(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	log := NewLog(db)

	var last int64
	for i := 0; i < 5; i++ {
		seq, err := log.Append(ctx, LogEntry{
			Timestamp:  Timestamp{WallMS: int64(i), Counter: 0, Device: "dev-a"},
			ModelType:  "entry",
			RecordUUID: "x",
			Change:     "insert",
			Payload:    []byte("{}"),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if seq <= last {
			t.Fatalf("seq %d not monotonic after %d", seq, last)
		}
		last = seq
	}
}

func TestRecordAckAndWatermark(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	log := NewLog(db)

	ts1 := Timestamp{WallMS: 100, Counter: 0, Device: "dev-a"}
	ts2 := Timestamp{WallMS: 200, Counter: 0, Device: "dev-a"}

	if err := log.RecordAck(ctx, "peer-1", "entry", ts1); err != nil {
		t.Fatalf("RecordAck: %v", err)
	}
	got, err := log.Watermark(ctx, "peer-1", "entry")
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	if got.Compare(ts1) != 0 {
		t.Fatalf("Watermark = %v, want %v", got, ts1)
	}

	// Acking an earlier timestamp than the stored watermark must not
	// regress it.
	earlier := Timestamp{WallMS: 50, Counter: 0, Device: "dev-a"}
	if err := log.RecordAck(ctx, "peer-1", "entry", earlier); err != nil {
		t.Fatalf("RecordAck (earlier): %v", err)
	}
	got, _ = log.Watermark(ctx, "peer-1", "entry")
	if got.Compare(ts1) != 0 {
		t.Fatalf("Watermark regressed to %v after acking earlier timestamp", got)
	}

	if err := log.RecordAck(ctx, "peer-1", "entry", ts2); err != nil {
		t.Fatalf("RecordAck (later): %v", err)
	}
	got, _ = log.Watermark(ctx, "peer-1", "entry")
	if got.Compare(ts2) != 0 {
		t.Fatalf("Watermark = %v, want %v", got, ts2)
	}
}

func TestPruneAckedRespectsAllPeerWatermarks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	log := NewLog(db)

	var seqs []int64
	for i := 0; i < 5; i++ {
		seq, err := log.Append(ctx, LogEntry{
			Timestamp:  Timestamp{WallMS: int64(i * 10), Counter: 0, Device: "dev-a"},
			ModelType:  "entry",
			RecordUUID: "x",
			Change:     "insert",
			Payload:    []byte("{}"),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		seqs = append(seqs, seq)
	}

	// peer-1 has acked everything; peer-2 has only acked the first entry.
	if err := log.RecordAck(ctx, "peer-1", "entry", Timestamp{WallMS: 40, Counter: 0, Device: "dev-a"}); err != nil {
		t.Fatal(err)
	}
	if err := log.RecordAck(ctx, "peer-2", "entry", Timestamp{WallMS: 0, Counter: 0, Device: "dev-a"}); err != nil {
		t.Fatal(err)
	}

	if _, err := log.PruneAcked(ctx); err != nil {
		t.Fatalf("PruneAcked: %v", err)
	}

	remaining, err := log.QuerySince(ctx, "entry", Timestamp{}, 1000)
	if err != nil {
		t.Fatalf("QuerySince: %v", err)
	}
	for _, e := range remaining {
		if e.Timestamp.WallMS == 0 {
			continue // the one entry at peer-2's watermark may legitimately remain
		}
	}
	// Nothing past peer-2's watermark (0) should have been pruned, since
	// the minimum across all peers governs pruning.
	if len(remaining) < 4 {
		t.Fatalf("PruneAcked removed entries peer-2 has not acked: %d remain, want >= 4", len(remaining))
	}
}
