package linkverify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	const site = "https://example.com"
	const permalink = "https://example.com/blog/post/"

	cases := []struct {
		href string
		want string
	}{
		{"https://other.org/x", "https://other.org/x"},
		{"HTTP://other.org/x", "HTTP://other.org/x"},
		{"/internal-page", "https://example.com/internal-page"},
		{"sibling", "https://example.com/blog/post/sibling"},
		{"../up", "https://example.com/blog/post/../up"},
		{"//cdn.example.net/lib.js", "https://cdn.example.net/lib.js"},
		{"tel:123", "https://example.com/blog/post/tel:123"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Resolve(c.href, permalink, site), c.href)
	}

	assert.Equal(t, "https://example.com/x", Resolve("/x", permalink, site+"/"))
}

func TestResolveAlwaysAbsolute(t *testing.T) {
	for _, href := range []string{"", "a", "/", "?q=1", "javascript:void(0)", "%%%", " spaced"} {
		got := Resolve(href, "https://example.com/p/", "https://example.com")
		assert.True(t, strings.HasPrefix(got, "http"), "%q resolved to %q", href, got)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		url  string
		site string
		want LinkClass
	}{
		{"https://example.com/x", "https://example.com", Internal},
		{"https://external.com/x", "https://example.com", External},
		{"https://EXAMPLE.com/x", "https://example.com", Internal},
		{"http://example.com/x", "https://example.com", Internal},
		{"https://example.com:443/x", "https://example.com", Internal},
		{"https://example.com:8443/x", "https://example.com", External},
		{"https://example.com.evil.com/x", "https://example.com", External},
		{"https://blog.example.com/x", "https://example.com", External},
		{"https://example.com/blog/a", "https://example.com/blog/", Internal},
		{"https://example.com/blog", "https://example.com/blog", Internal},
		{"https://example.com/blogroll", "https://example.com/blog", External},
		{"https://example.com/shop", "https://example.com/blog", External},
		{"not a url", "https://example.com", External},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.url, c.site), "%s vs %s", c.url, c.site)
	}
}

func TestResolveLink(t *testing.T) {
	l := ResolveLink(ExtractedLink{Href: "/about/", Text: "About", SourceID: 3}, "https://example.com/p/", "https://example.com")
	assert.Equal(t, ResolvedLink{URL: "https://example.com/about/", Text: "About", SourceID: 3, Class: Internal}, l)
}
