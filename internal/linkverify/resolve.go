package linkverify

import (
	"net"
	"net/url"
	"strings"

	"git.home.luguber.info/inful/linkscan/internal/catalog"
)

// LinkClass tells whether a link points into the scanned site.
type LinkClass string

const (
	Internal LinkClass = "internal"
	External LinkClass = "external"
)

// ResolvedLink is an extracted link made absolute and classified.
type ResolvedLink struct {
	URL      string
	Text     string
	SourceID catalog.DocID
	Class    LinkClass
}

// Resolve turns href into an absolute URL. Absolute http(s) URLs are kept,
// root-relative paths are joined to siteRoot and anything else is appended
// to the source permalink verbatim. Resolve never fails.
func Resolve(href, permalink, siteRoot string) string {
	lower := strings.ToLower(href)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return href
	case strings.HasPrefix(href, "//"):
		return siteScheme(siteRoot) + ":" + href
	case strings.HasPrefix(href, "/"):
		return strings.TrimRight(siteRoot, "/") + href
	default:
		return permalink + href
	}
}

// ResolveLink resolves and classifies an extracted link.
func ResolveLink(l ExtractedLink, permalink, siteRoot string) ResolvedLink {
	abs := Resolve(l.Href, permalink, siteRoot)
	return ResolvedLink{URL: abs, Text: l.Text, SourceID: l.SourceID, Class: Classify(abs, siteRoot)}
}

// Classify reports Internal when absURL is on the same host as siteRoot
// (case-insensitive, default ports ignored) and under its path. Input that
// does not parse as a URL with a host falls back to a prefix match.
func Classify(absURL, siteRoot string) LinkClass {
	u, uerr := url.Parse(absURL)
	s, serr := url.Parse(siteRoot)
	if uerr != nil || serr != nil || u.Host == "" || s.Host == "" {
		if siteRoot != "" && strings.HasPrefix(absURL, siteRoot) {
			return Internal
		}
		return External
	}
	if !strings.EqualFold(hostKey(u), hostKey(s)) {
		return External
	}
	base := strings.TrimRight(s.Path, "/")
	if base == "" || u.Path == base || strings.HasPrefix(u.Path, base+"/") {
		return Internal
	}
	return External
}

func hostKey(u *url.URL) string {
	host := u.Hostname()
	port := u.Port()
	if port == "" || (port == "80" && u.Scheme != "https") || (port == "443" && u.Scheme != "http") {
		return host
	}
	return net.JoinHostPort(host, port)
}

func siteScheme(siteRoot string) string {
	if u, err := url.Parse(siteRoot); err == nil && u.Scheme != "" {
		return u.Scheme
	}
	return "https"
}
