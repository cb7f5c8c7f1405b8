package catalog

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-memory Catalog. It is safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	site   string
	types  []string
	docs   []Document
	ix     *index
	nextID DocID
}

// NewMemory creates an empty catalog. When no public types are given they
// are derived from the added documents.
func NewMemory(siteURL string, publicTypes ...string) *Memory {
	return &Memory{site: strings.TrimRight(siteURL, "/"), types: publicTypes, ix: newIndex(nil)}
}

// Add stores d, assigning an id and defaulting the status to published.
func (m *Memory) Add(d Document) Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == 0 {
		m.nextID++
		d.ID = m.nextID
	} else if d.ID > m.nextID {
		m.nextID = d.ID
	}
	if d.Status == "" {
		d.Status = StatusPublished
	}
	m.docs = append(m.docs, d)
	m.ix = newIndex(m.docs)
	return d
}

func (m *Memory) SiteURL() string { return m.site }

func (m *Memory) PublicTypes(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.types) > 0 {
		return append([]string(nil), m.types...), nil
	}
	var seen []string
	for _, d := range m.docs {
		seen = appendUnique(seen, d.Type)
	}
	return orderTypes(seen), nil
}

func (m *Memory) Documents(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ix.documents(q), nil
}

func (m *Memory) Lookup(_ context.Context, rawURL string) (DocID, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.ix.lookup(rawURL)
	return id, ok, nil
}

func (m *Memory) Status(_ context.Context, id DocID) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ix.status(id)
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
