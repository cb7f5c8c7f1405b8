package store

import (
	"context"
	"sort"
	"sync"

	"git.home.luguber.info/inful/linkscan/internal/model"
)

// Memory is an in-memory Store for tests and single-shot CLI runs.
type Memory struct {
	mu       sync.RWMutex
	scans    []model.ScanRecord
	findings []model.Finding
	closed   bool
}

// NewMemory creates an empty store.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) CreateScan(_ context.Context, rec model.ScanRecord) (model.ScanID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = model.ScanID(len(m.scans) + 1)
	if rec.Status == "" {
		rec.Status = model.StatusRunning
	}
	m.scans = append(m.scans, rec)
	return rec.ID, nil
}

func (m *Memory) UpdateScan(_ context.Context, id model.ScanID, u model.ScanUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.scanIndex(id)
	if !ok {
		return ErrScanNotFound.WithContext("scan_id", int64(id))
	}
	rec := &m.scans[i]
	if u.Status.IsTerminal() && rec.Status != model.StatusRunning {
		return nil
	}
	if u.Status != "" {
		rec.Status = u.Status
	}
	if u.Totals != nil {
		rec.TotalPages = u.Totals.Pages
		rec.TotalLinks = u.Totals.Links
		rec.BrokenLinks = u.Totals.Broken
	}
	if u.CompletedAt != nil {
		t := *u.CompletedAt
		rec.CompletedAt = &t
	}
	return nil
}

func (m *Memory) GetScan(_ context.Context, id model.ScanID) (model.ScanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.scanIndex(id)
	if !ok {
		return model.ScanRecord{}, ErrScanNotFound.WithContext("scan_id", int64(id))
	}
	return m.scans[i], nil
}

func (m *Memory) ListScans(_ context.Context, f model.ScanFilter) ([]model.ScanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ScanRecord, 0, len(m.scans))
	for i := len(m.scans) - 1; i >= 0; i-- {
		if f.Status != "" && m.scans[i].Status != f.Status {
			continue
		}
		out = append(out, m.scans[i])
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) InsertFinding(_ context.Context, f model.Finding) (model.FindingID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scanIndex(f.ScanID); !ok {
		return 0, ErrScanNotFound.WithContext("scan_id", int64(f.ScanID))
	}
	f.ID = model.FindingID(len(m.findings) + 1)
	m.findings = append(m.findings, f)
	return f.ID, nil
}

func (m *Memory) GetFinding(_ context.Context, id model.FindingID) (model.Finding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id < 1 || int(id) > len(m.findings) {
		return model.Finding{}, ErrFindingNotFound.WithContext("finding_id", int64(id))
	}
	return m.findings[id-1], nil
}

func (m *Memory) ListFindings(_ context.Context, f model.FindingFilter) ([]model.Finding, int, error) {
	f = f.Normalize()
	m.mu.RLock()
	matched := make([]model.Finding, 0)
	for _, fd := range m.findings {
		if !fd.IsBroken {
			continue
		}
		if f.ScanID != 0 && fd.ScanID != f.ScanID {
			continue
		}
		if !f.Category.Matches(fd) || !f.MatchesSearch(fd) {
			continue
		}
		matched = append(matched, fd)
	}
	m.mu.RUnlock()

	sortNewestFirst(matched)
	total := len(matched)
	start := min(f.Offset(), total)
	end := min(start+f.PerPage, total)
	return matched[start:end], total, nil
}

func (m *Memory) BrokenFindings(ctx context.Context, scanID model.ScanID) ([]model.Finding, error) {
	m.mu.RLock()
	out := make([]model.Finding, 0)
	for _, fd := range m.findings {
		if fd.IsBroken && (scanID == 0 || fd.ScanID == scanID) {
			out = append(out, fd)
		}
	}
	m.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func (m *Memory) SetFindingFlags(_ context.Context, id model.FindingID, flags model.FindingFlags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 1 || int(id) > len(m.findings) {
		return ErrFindingNotFound.WithContext("finding_id", int64(id))
	}
	fd := &m.findings[id-1]
	if flags.IsBroken != nil {
		fd.IsBroken = *flags.IsBroken
	}
	if flags.IsFixed != nil {
		fd.IsFixed = *flags.IsFixed
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) scanIndex(id model.ScanID) (int, bool) {
	i := int(id) - 1
	if i < 0 || i >= len(m.scans) {
		return 0, false
	}
	return i, true
}

func sortNewestFirst(fs []model.Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		if !fs[i].FoundAt.Equal(fs[j].FoundAt) {
			return fs[i].FoundAt.After(fs[j].FoundAt)
		}
		return fs[i].ID > fs[j].ID
	})
}
