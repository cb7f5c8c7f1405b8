package model

import (
	"fmt"
	"strings"
	"time"
)

// FindingID identifies a persisted finding.
type FindingID int64

// Finding is a broken link discovered during a scan. StatusCode 0 means
// the failure was not an HTTP response.
type Finding struct {
	ID           FindingID `json:"id"`
	ScanID       ScanID    `json:"scan_id"`
	SourceURL    string    `json:"source_url"`
	TargetURL    string    `json:"target_url"`
	LinkText     string    `json:"link_text"`
	StatusCode   int       `json:"status_code"`
	ErrorMessage string    `json:"error_message"`
	IsBroken     bool      `json:"is_broken"`
	IsFixed      bool      `json:"is_fixed"`
	FoundAt      time.Time `json:"found_at"`
}

// ExportRow is the stable export field order: source, target, text,
// status, error, discovery time.
type ExportRow struct {
	SourceURL    string    `json:"source_url"`
	TargetURL    string    `json:"target_url"`
	LinkText     string    `json:"link_text"`
	StatusCode   int       `json:"status_code"`
	ErrorMessage string    `json:"error_message"`
	FoundAt      time.Time `json:"found_at"`
}

// ExportRow projects f onto the export columns.
func (f Finding) ExportRow() ExportRow {
	return ExportRow{
		SourceURL:    f.SourceURL,
		TargetURL:    f.TargetURL,
		LinkText:     f.LinkText,
		StatusCode:   f.StatusCode,
		ErrorMessage: f.ErrorMessage,
		FoundAt:      f.FoundAt,
	}
}

// FindingCategory filters findings by failure kind.
type FindingCategory string

const (
	CategoryAll      FindingCategory = "all"
	CategoryNotFound FindingCategory = "404"
	CategoryRedirect FindingCategory = "redirect"
	CategoryTimeout  FindingCategory = "timeout"
)

// RedirectCodes are the statuses counted by CategoryRedirect.
var RedirectCodes = []int{301, 302, 303, 307, 308}

// ParseFindingCategory accepts "" as CategoryAll.
func ParseFindingCategory(raw string) (FindingCategory, error) {
	switch c := FindingCategory(strings.ToLower(strings.TrimSpace(raw))); c {
	case "", CategoryAll:
		return CategoryAll, nil
	case CategoryNotFound, CategoryRedirect, CategoryTimeout:
		return c, nil
	default:
		return "", fmt.Errorf("unknown finding category %q", raw)
	}
}

// Matches reports whether f belongs to category c.
func (c FindingCategory) Matches(f Finding) bool {
	switch c {
	case CategoryNotFound:
		return f.StatusCode == 404
	case CategoryRedirect:
		for _, code := range RedirectCodes {
			if f.StatusCode == code {
				return true
			}
		}
		return false
	case CategoryTimeout:
		return strings.Contains(strings.ToLower(f.ErrorMessage), "timeout")
	default:
		return true
	}
}

// Findings pagination bounds. Normalize clamps larger values.
const (
	DefaultPerPage = 10
	MaxPerPage     = 500
	MaxPage        = 100_000
)

// FindingFilter selects broken findings for review. ScanID 0 means all scans.
type FindingFilter struct {
	ScanID   ScanID
	Category FindingCategory
	Search   string
	Page     int
	PerPage  int
}

// Normalize clamps pagination to sane values.
func (f FindingFilter) Normalize() FindingFilter {
	if f.Category == "" {
		f.Category = CategoryAll
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Offset is the number of rows skipped for the current page.
func (f FindingFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}

// MatchesSearch reports whether the search text occurs in any text column.
func (f FindingFilter) MatchesSearch(fd Finding) bool {
	if f.Search == "" {
		return true
	}
	needle := strings.ToLower(f.Search)
	for _, hay := range []string{fd.TargetURL, fd.SourceURL, fd.LinkText, fd.ErrorMessage} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}

// FindingPage is one page of a findings query.
type FindingPage struct {
	Findings   []Finding `json:"links"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	PerPage    int       `json:"per_page"`
	TotalPages int       `json:"total_pages"`
}

// NewFindingPage computes the page count for total rows.
func NewFindingPage(rows []Finding, total int, f FindingFilter) FindingPage {
	pages := 0
	if f.PerPage > 0 {
		pages = (total + f.PerPage - 1) / f.PerPage
	}
	if rows == nil {
		rows = []Finding{}
	}
	return FindingPage{Findings: rows, Total: total, Page: f.Page, PerPage: f.PerPage, TotalPages: pages}
}

// FixAction is a remediation applied to a finding by a reviewer.
type FixAction string

const (
	FixReplace FixAction = "replace"
	FixRemove  FixAction = "remove"
	FixIgnore  FixAction = "ignore"
)

// FindingFlags is a partial update of a finding's review flags.
type FindingFlags struct {
	IsBroken *bool
	IsFixed  *bool
}

// FlagsFor returns the flag change applied by action.
func FlagsFor(action FixAction, replacementURL string) (FindingFlags, error) {
	t, f := true, false
	switch action {
	case FixReplace:
		if strings.TrimSpace(replacementURL) == "" {
			return FindingFlags{}, fmt.Errorf("replacement URL is required")
		}
		return FindingFlags{IsFixed: &t}, nil
	case FixRemove:
		return FindingFlags{IsFixed: &t}, nil
	case FixIgnore:
		return FindingFlags{IsBroken: &f}, nil
	default:
		return FindingFlags{}, fmt.Errorf("unknown fix action %q", action)
	}
}
