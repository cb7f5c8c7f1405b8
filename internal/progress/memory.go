package progress

import (
	"context"
	"sync"
	"time"

	"git.home.luguber.info/inful/linkscan/internal/model"
)

// MemoryTracker keeps snapshots in process memory.
type MemoryTracker struct {
	mu    sync.RWMutex
	snaps map[model.ScanID]Snapshot
	now   func() time.Time
}

// NewMemoryTracker creates an empty tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{snaps: make(map[model.ScanID]Snapshot), now: time.Now}
}

// Reset starts a fresh snapshot and evicts the snapshots of finished scans,
// so at most the latest completed scan outlives the next start.
func (m *MemoryTracker) Reset(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, prev := range m.snaps {
		if prev.Status != model.StatusRunning {
			delete(m.snaps, id)
		}
	}
	snap.UpdatedAt = m.now()
	m.snaps[snap.ScanID] = snap
	return nil
}

func (m *MemoryTracker) Merge(_ context.Context, id model.ScanID, u Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.snaps[id]
	if !ok {
		prev = Snapshot{ScanID: id}
	}
	next := prev.Apply(u)
	next.UpdatedAt = m.now()
	m.snaps[id] = next
	return nil
}

func (m *MemoryTracker) Get(_ context.Context, id model.ScanID) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[id]
	if !ok {
		return Snapshot{}, ErrNoScanInProgress
	}
	return snap, nil
}

func (m *MemoryTracker) Clear(_ context.Context, id model.ScanID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, id)
	return nil
}
