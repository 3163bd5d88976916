package volume

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
)

// Volume is a tracked mount point (spec.md §3 "Volume"). Fingerprint is
// stable across restarts and unmount/remount because it is derived from
// durable properties rather than the current OS-assigned mount path.
type Volume struct {
	Fingerprint string
	MountPoint  string
	Filesystem  string
	DiskType    string
	Capacity    int64
	Backend     BackendType
}

// Fingerprint derives the stable identifier described in spec.md §3:
// "derived from device id + size + filesystem tag... stable across
// restarts and unmount/remount". Using capacity instead of the live free-
// space figure is what makes it remount-stable: free space changes as
// files are written, capacity does not.
func Fingerprint(deviceID string, capacity int64, filesystem string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s:%d:%s", deviceID, capacity, filesystem)
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Manager tracks mounted Volumes and the Backend used to talk to each one,
// answering the TrackVolume/ListVolumes actions from spec §4.10. It holds
// no global/static state (spec §9 design note on singletons): a Core owns
// one Manager instance and hands it to jobs through their JobContext.
type Manager struct {
	mu       sync.RWMutex
	volumes  map[string]Volume
	backends map[string]Backend
}

// NewManager creates an empty volume manager.
func NewManager() *Manager {
	return &Manager{
		volumes:  make(map[string]Volume),
		backends: make(map[string]Backend),
	}
}

// Track registers a volume and the backend used to access it, keyed by its
// fingerprint. Re-tracking the same fingerprint replaces the backend (e.g.
// after a remount changed the mount point) without changing identity.
func (m *Manager) Track(v Volume, backend Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumes[v.Fingerprint] = v
	m.backends[v.Fingerprint] = backend
}

// Untrack removes a volume, e.g. on clean unmount.
func (m *Manager) Untrack(fingerprint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.volumes, fingerprint)
	delete(m.backends, fingerprint)
}

// List returns all tracked volumes.
func (m *Manager) List(_ context.Context) []Volume {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Volume, 0, len(m.volumes))
	for _, v := range m.volumes {
		out = append(out, v)
	}
	return out
}

// Get returns the volume and its backend for fingerprint.
func (m *Manager) Get(fingerprint string) (Volume, Backend, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.volumes[fingerprint]
	if !ok {
		return Volume{}, nil, errs.New(errs.NotFound, "volume not tracked: "+fingerprint)
	}
	return v, m.backends[fingerprint], nil
}

// Backend returns just the backend for fingerprint, the common case for
// job handlers that already hold a Location's volume fingerprint.
func (m *Manager) Backend(fingerprint string) (Backend, error) {
	_, b, err := m.Get(fingerprint)
	return b, err
}
