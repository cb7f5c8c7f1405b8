package scan

import (
	"sync"

	"git.home.luguber.info/inful/linkscan/internal/catalog"
	"git.home.luguber.info/inful/linkscan/internal/linkverify"
)

// extractionCache keeps the links parsed from each document, keyed by the
// document's content fingerprint. A document whose fingerprint is unchanged
// since the previous scan is not parsed again. Cached slices are read-only.
type extractionCache struct {
	mu      sync.Mutex
	entries map[catalog.DocID]cachedLinks
}

type cachedLinks struct {
	fingerprint string
	links       []linkverify.ExtractedLink
}

func newExtractionCache() *extractionCache {
	return &extractionCache{entries: make(map[catalog.DocID]cachedLinks)}
}

// links returns the anchors of doc and whether they came from the cache.
// Documents without a fingerprint are always parsed.
func (c *extractionCache) links(doc catalog.Document) ([]linkverify.ExtractedLink, bool) {
	if doc.Fingerprint == "" {
		return linkverify.ExtractLinks(doc.Content, doc.ID), false
	}
	c.mu.Lock()
	e, ok := c.entries[doc.ID]
	c.mu.Unlock()
	if ok && e.fingerprint == doc.Fingerprint {
		return e.links, true
	}

	links := linkverify.ExtractLinks(doc.Content, doc.ID)
	c.mu.Lock()
	c.entries[doc.ID] = cachedLinks{fingerprint: doc.Fingerprint, links: links}
	c.mu.Unlock()
	return links, false
}

// retain drops entries for documents outside docs.
func (c *extractionCache) retain(docs []catalog.Document) {
	keep := make(map[catalog.DocID]struct{}, len(docs))
	for _, d := range docs {
		keep[d.ID] = struct{}{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.entries {
		if _, ok := keep[id]; !ok {
			delete(c.entries, id)
		}
	}
}
