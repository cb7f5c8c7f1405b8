// Package store persists scans and their broken-link findings.
package store

import (
	"context"

	"git.home.luguber.info/inful/linkscan/internal/foundation/errors"
	"git.home.luguber.info/inful/linkscan/internal/model"
)

var (
	// ErrScanNotFound is returned for unknown scan ids.
	ErrScanNotFound = errors.NotFoundError("scan not found").Build()
	// ErrFindingNotFound is returned for unknown finding ids.
	ErrFindingNotFound = errors.NotFoundError("finding not found").Build()
)

// Store is the persistence sink for scans and findings. Every method may
// fail; callers decide whether a failure is fatal.
type Store interface {
	// CreateScan inserts rec and returns the assigned id.
	CreateScan(ctx context.Context, rec model.ScanRecord) (model.ScanID, error)
	// UpdateScan applies u. A terminal status only replaces "running", so
	// repeating a stop or completion is a no-op.
	UpdateScan(ctx context.Context, id model.ScanID, u model.ScanUpdate) error
	GetScan(ctx context.Context, id model.ScanID) (model.ScanRecord, error)
	// ListScans returns scans newest first.
	ListScans(ctx context.Context, f model.ScanFilter) ([]model.ScanRecord, error)

	// InsertFinding stores a finding for an existing scan.
	InsertFinding(ctx context.Context, f model.Finding) (model.FindingID, error)
	GetFinding(ctx context.Context, id model.FindingID) (model.Finding, error)
	// ListFindings pages through broken findings matching f, newest first,
	// and returns the total match count.
	ListFindings(ctx context.Context, f model.FindingFilter) ([]model.Finding, int, error)
	// BrokenFindings lists every broken finding of a scan, or of all scans
	// when scanID is 0, newest first.
	BrokenFindings(ctx context.Context, scanID model.ScanID) ([]model.Finding, error)
	// SetFindingFlags updates the review flags of a finding.
	SetFindingFlags(ctx context.Context, id model.FindingID, flags model.FindingFlags) error

	Close() error
}

func storeErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.WrapError(err, errors.CategoryStore, msg).Build()
}
