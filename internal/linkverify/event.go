package linkverify

import (
	"time"
)

// BrokenLinkEvent is published for every persisted finding so downstream
// consumers (issue trackers, chat notifiers) can react.
type BrokenLinkEvent struct {
	EventID    string    `json:"event_id"`
	ScanID     int64     `json:"scan_id"`
	SourceURL  string    `json:"source_url"`
	SourceDoc  int64     `json:"source_document_id"`
	Title      string    `json:"source_title,omitempty"`
	TargetURL  string    `json:"target_url"`
	LinkText   string    `json:"link_text,omitempty"`
	Status     int       `json:"status"` // HTTP status code (0 for non-HTTP errors)
	Error      string    `json:"error,omitempty"`
	IsInternal bool      `json:"is_internal"`
	Revision   string    `json:"source_revision,omitempty"` // content fingerprint of the source document
	Timestamp  time.Time `json:"timestamp"`
}
