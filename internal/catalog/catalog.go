// Package catalog is the read-only content catalog a scan walks: it lists
// published documents by type, and maps URLs back to documents.
package catalog

import (
	"context"
	"net"
	"net/url"
	"slices"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/linkscan/internal/foundation/errors"
	"git.home.luguber.info/inful/linkscan/internal/model"
)

// DocID identifies a document within a catalog.
type DocID int64

// Status is a document's publish state.
type Status string

const (
	StatusPublished Status = "publish"
	StatusDraft     Status = "draft"
	StatusPrivate   Status = "private"
)

// ErrDocumentNotFound is returned by Status for unknown ids.
var ErrDocumentNotFound = errors.NotFoundError("document not found").Build()

// Document is one piece of site content. Content is HTML.
type Document struct {
	ID          DocID
	Type        string
	Title       string
	Content     string
	Permalink   string
	Status      Status
	PublishedAt time.Time
	Fingerprint string
}

// Query selects documents for a scan. Limit <= 0 means no limit.
type Query struct {
	Types []string
	Limit int
}

// Catalog is the content source consumed by a scan.
type Catalog interface {
	// SiteURL is the site root every permalink lives under.
	SiteURL() string
	// PublicTypes lists the public content types in registration order.
	PublicTypes(ctx context.Context) ([]string, error)
	// Documents returns published documents of the given types, newest first.
	Documents(ctx context.Context, q Query) ([]Document, error)
	// Lookup resolves a URL to the document it addresses.
	Lookup(ctx context.Context, rawURL string) (DocID, bool, error)
	// Status returns the publish state of a document.
	Status(ctx context.Context, id DocID) (Status, error)
}

// index is an immutable lookup structure over a document set.
type index struct {
	docs  []Document
	byID  map[DocID]int
	byKey map[string]DocID
}

func newIndex(docs []Document) *index {
	ix := &index{
		docs:  docs,
		byID:  make(map[DocID]int, len(docs)),
		byKey: make(map[string]DocID, len(docs)),
	}
	for i, d := range docs {
		ix.byID[d.ID] = i
		if d.Permalink != "" {
			ix.byKey[URLKey(d.Permalink)] = d.ID
		}
	}
	return ix
}

func (ix *index) documents(q Query) []Document {
	out := make([]Document, 0, len(ix.docs))
	for _, d := range ix.docs {
		if d.Status != StatusPublished {
			continue
		}
		if len(q.Types) > 0 && !slices.Contains(q.Types, d.Type) {
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].ID > out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (ix *index) lookup(rawURL string) (DocID, bool) {
	id, ok := ix.byKey[URLKey(rawURL)]
	return id, ok
}

func (ix *index) status(id DocID) (Status, error) {
	i, ok := ix.byID[id]
	if !ok {
		return "", ErrDocumentNotFound.WithContext("document_id", int64(id))
	}
	return ix.docs[i].Status, nil
}

// URLKey canonicalizes a URL for document lookup: scheme, query, fragment
// and trailing slashes are ignored, the host is lowercased and default
// ports are dropped.
func URLKey(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(raw, "/")
	}
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		host = net.JoinHostPort(host, port)
	}
	return host + strings.TrimRight(u.Path, "/")
}

// orderTypes puts post and page first, then the remaining types in the
// order they were first seen.
func orderTypes(seen []string) []string {
	out := make([]string, 0, len(seen))
	for _, t := range []string{model.TypePost, model.TypePage} {
		if slices.Contains(seen, t) {
			out = append(out, t)
		}
	}
	for _, t := range seen {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}
