// Package model holds the value types shared by the scan engine, its
// persistence sink and the HTTP boundary.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ScanID identifies a scan. It is assigned by the persistence sink.
type ScanID int64

// ScanStatus is the lifecycle state of a scan.
type ScanStatus string

const (
	StatusPending   ScanStatus = "pending"
	StatusRunning   ScanStatus = "running"
	StatusCompleted ScanStatus = "completed"
	StatusStopped   ScanStatus = "stopped"
)

// IsTerminal reports whether no further transition is possible.
func (s ScanStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusStopped
}

// Valid reports whether s is a known status.
func (s ScanStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusStopped:
		return true
	}
	return false
}

// DefaultMaxPages caps a scan when the request leaves max_pages unset.
const DefaultMaxPages = 100

// ScanRequest is the configuration of a scan. It is serialized into the
// scan record when the scan starts and never changes afterwards.
type ScanRequest struct {
	Depth           Depth `json:"scan_depth" yaml:"depth"`
	MaxPages        int   `json:"max_pages" yaml:"max_pages"`
	IncludeExternal bool  `json:"include_external" yaml:"include_external"`
}

// Normalize fills unset fields with their defaults.
func (r ScanRequest) Normalize() ScanRequest {
	if r.Depth == 0 {
		r.Depth = DefaultDepth
	}
	if r.MaxPages <= 0 {
		r.MaxPages = DefaultMaxPages
	}
	return r
}

// Encode serializes the request for storage in ScanRecord.Config.
func (r ScanRequest) Encode() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode scan request: %w", err)
	}
	return string(b), nil
}

// DecodeScanRequest parses a serialized request.
func DecodeScanRequest(raw string) (ScanRequest, error) {
	var r ScanRequest
	if raw == "" {
		return r, fmt.Errorf("decode scan request: empty config")
	}
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return r, fmt.Errorf("decode scan request: %w", err)
	}
	return r, nil
}

// ScanTotals are the final counters of a scan, written once at completion.
type ScanTotals struct {
	Pages  int `json:"total_pages"`
	Links  int `json:"total_links"`
	Broken int `json:"broken_links"`
}

// ScanRecord is the persisted state of one scan.
type ScanRecord struct {
	ID          ScanID     `json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	Status      ScanStatus `json:"status"`
	TotalPages  int        `json:"total_pages"`
	TotalLinks  int        `json:"total_links"`
	BrokenLinks int        `json:"broken_links"`
	Config      string     `json:"config"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewScan builds the record persisted when a scan starts.
func NewScan(req ScanRequest, now time.Time) (ScanRecord, error) {
	cfg, err := req.Encode()
	if err != nil {
		return ScanRecord{}, err
	}
	return ScanRecord{CreatedAt: now, Status: StatusRunning, Config: cfg}, nil
}

// Request decodes the configuration the scan was started with.
func (r ScanRecord) Request() (ScanRequest, error) {
	return DecodeScanRequest(r.Config)
}

// ScanUpdate is a partial update of a scan record. A transition to a
// terminal status only applies while the scan is still running.
type ScanUpdate struct {
	Status      ScanStatus
	Totals      *ScanTotals
	CompletedAt *time.Time
}

// ScanFilter narrows ListScans. Zero values mean no restriction.
type ScanFilter struct {
	Status ScanStatus
	Limit  int
}
