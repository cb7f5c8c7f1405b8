// Package progress holds the polled view of in-flight scans.
package progress

import (
	"context"
	"time"

	"git.home.luguber.info/inful/linkscan/internal/foundation/errors"
	"git.home.luguber.info/inful/linkscan/internal/model"
)

// ErrNoScanInProgress is returned by Get when no snapshot exists for a scan.
var ErrNoScanInProgress = errors.NotFoundError("no scan in progress").Build()

// InitialLabel is the current-page label published when a scan starts.
const InitialLabel = "Initializing..."

// Snapshot is the progress of one scan.
type Snapshot struct {
	ScanID       model.ScanID     `json:"scan_id"`
	Status       model.ScanStatus `json:"status"`
	PagesScanned int              `json:"pages_scanned"`
	TotalPages   int              `json:"total_pages"`
	LinksFound   int              `json:"links_found"`
	BrokenFound  int              `json:"broken_found"`
	CurrentPage  string           `json:"current_page"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Initial is the snapshot published by a freshly started scan.
func Initial(id model.ScanID) Snapshot {
	return Snapshot{ScanID: id, Status: model.StatusRunning, CurrentPage: InitialLabel}
}

// Update is a partial snapshot. Nil fields keep their previous value.
type Update struct {
	Status       *model.ScanStatus
	PagesScanned *int
	TotalPages   *int
	LinksFound   *int
	BrokenFound  *int
	CurrentPage  *string
}

// Ptr returns a pointer to v, for building updates inline.
func Ptr[T any](v T) *T { return &v }

// Apply merges u onto s field by field.
func (s Snapshot) Apply(u Update) Snapshot {
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.PagesScanned != nil {
		s.PagesScanned = *u.PagesScanned
	}
	if u.TotalPages != nil {
		s.TotalPages = *u.TotalPages
	}
	if u.LinksFound != nil {
		s.LinksFound = *u.LinksFound
	}
	if u.BrokenFound != nil {
		s.BrokenFound = *u.BrokenFound
	}
	if u.CurrentPage != nil {
		s.CurrentPage = *u.CurrentPage
	}
	return s
}

// Tracker stores progress snapshots keyed by scan id.
type Tracker interface {
	// Reset replaces whatever is stored for the scan with snap.
	Reset(ctx context.Context, snap Snapshot) error
	// Merge applies u onto the stored snapshot. A missing snapshot starts
	// from the zero value.
	Merge(ctx context.Context, id model.ScanID, u Update) error
	// Get returns ErrNoScanInProgress when nothing is stored.
	Get(ctx context.Context, id model.ScanID) (Snapshot, error)
	// Clear deletes the snapshot. Clearing a missing key is not an error.
	Clear(ctx context.Context, id model.ScanID) error
}
