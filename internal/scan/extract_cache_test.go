package scan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/linkscan/internal/catalog"
	"git.home.luguber.info/inful/linkscan/internal/model"
)

func TestExtractionCache(t *testing.T) {
	c := newExtractionCache()
	doc := catalog.Document{ID: 1, Content: `<a href="/a/">a</a>`, Fingerprint: "v1"}

	links, hit := c.links(doc)
	require.Len(t, links, 1)
	assert.False(t, hit)

	// Same fingerprint: parsed links are reused even though content differs.
	doc.Content = `<a href="/b/">b</a><a href="/c/">c</a>`
	links, hit = c.links(doc)
	assert.True(t, hit)
	assert.Equal(t, "/a/", links[0].Href)

	doc.Fingerprint = "v2"
	links, hit = c.links(doc)
	assert.False(t, hit)
	assert.Len(t, links, 2)

	c.retain(nil)
	_, hit = c.links(doc)
	assert.False(t, hit)

	unstamped := catalog.Document{ID: 2, Content: `<a href="/x/">x</a>`}
	c.links(unstamped)
	_, hit = c.links(unstamped)
	assert.False(t, hit)
}

func TestCoordinator_EventsCarrySourceRevision(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, goTrigger{}, func(o *Options) { o.Publisher = pub })
	f.catalog.Add(catalog.Document{
		Type:        "page",
		Title:       "Stamped",
		Permalink:   site + "/stamped/",
		Content:     `<a href="/missing/">gone</a>`,
		PublishedAt: fixedNow,
		Fingerprint: "rev-42",
	})
	ctx := context.Background()

	for range 2 {
		id, err := f.coord.Start(ctx, model.ScanRequest{})
		require.NoError(t, err)
		waitDone(t, f.coord, id)

		rec, err := f.store.GetScan(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, rec.BrokenLinks)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.events, 2)
	for _, e := range pub.events {
		assert.Equal(t, "rev-42", e.Revision)
	}
}
