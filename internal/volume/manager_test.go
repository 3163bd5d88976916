package volume

import (
	"context"
	"testing"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
)

type fakeBackend struct{ Backend }

func TestFingerprintStableAcrossRemount(t *testing.T) {
	fp1 := Fingerprint("disk-serial-123", 500_000_000_000, "apfs")
	fp2 := Fingerprint("disk-serial-123", 500_000_000_000, "apfs")
	if fp1 != fp2 {
		t.Fatalf("fingerprint not deterministic: %q != %q", fp1, fp2)
	}
	if len(fp1) != 32 {
		t.Fatalf("got fingerprint length %d, want 32", len(fp1))
	}
}

func TestFingerprintDiffersOnCapacityOrFilesystem(t *testing.T) {
	base := Fingerprint("dev", 100, "ext4")
	if Fingerprint("dev", 200, "ext4") == base {
		t.Fatal("fingerprint did not change with capacity")
	}
	if Fingerprint("dev", 100, "ntfs") == base {
		t.Fatal("fingerprint did not change with filesystem")
	}
}

func TestManagerTrackGetUntrack(t *testing.T) {
	m := NewManager()
	v := Volume{Fingerprint: "fp1", MountPoint: "/mnt/data", Filesystem: "ext4", Capacity: 1000}
	be := &fakeBackend{}

	m.Track(v, be)

	got, gotBackend, err := m.Get("fp1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != v {
		t.Fatalf("got %+v, want %+v", got, v)
	}
	if gotBackend != be {
		t.Fatal("backend mismatch")
	}

	list := m.List(context.Background())
	if len(list) != 1 {
		t.Fatalf("got %d volumes, want 1", len(list))
	}

	m.Untrack("fp1")
	if _, _, err := m.Get("fp1"); errs.KindOf(err) != errs.NotFound {
		t.Fatalf("expected NotFound after untrack, got %v", err)
	}
}

func TestManagerGetUnknownFingerprint(t *testing.T) {
	m := NewManager()
	if _, _, err := m.Get("nope"); errs.KindOf(err) != errs.NotFound {
		t.Fatalf("got %v, want NotFound", err)
	}
}
